// Package questionbank holds the static catalog of compatibility questions creators pick from.
package questionbank

import "matchpoint/internal/domain"

var templates = []domain.QuestionTemplate{
	{ID: "q1", Text: "What's your ideal way to spend a weekend?", Options: []string{
		"Binge-watch shows with takeout",
		"Out exploring the city",
		"Reading or doing something chill at home",
		"Mixed of all, depending on the vibe",
	}},
	{ID: "q2", Text: "How do you prefer to communicate in a relationship?", Options: []string{
		"Texting all day",
		"Phone calls & FaceTime",
		"I'm open to all",
		"In person only",
	}},
	{ID: "q3", Text: "Your love language?", Options: []string{
		"Words of affirmation",
		"Physical touch",
		"Gifts",
		"Quality time",
		"Acts of service",
	}, MultiSelect: true},
	{ID: "q4", Text: "What's your take on posting each other on socials?", Options: []string{
		"Post me or we got problems",
		"Post if it feels right",
		"I'd rather keep things private",
	}},
	{ID: "q5", Text: "What's most important in a partner?", Options: []string{
		"Loyalty and trust",
		"Fun and connection",
		"Shared goals and values",
		"Ambition",
	}, MultiSelect: true},
	{ID: "q6", Text: "What's your energy level in relationships?", Options: []string{
		"High energy, always doing something",
		"Balanced, mix of active and chill",
		"Low key, prefer quiet moments",
	}},
	{ID: "q7", Text: "How do you handle conflict?", Options: []string{
		"Talk it out immediately",
		"Take space and revisit later",
		"Let it blow over naturally",
	}},
	{ID: "q8", Text: "Pick your perfect first date.", Options: []string{
		"Coffee and a long walk",
		"Dinner somewhere fancy",
		"Something active like climbing or bowling",
		"A concert or a comedy show",
	}},
	{ID: "q9", Text: "Are you a morning person or a night owl?", Options: []string{
		"Up with the sun",
		"Late nights all the way",
		"Depends on the day",
	}},
	{ID: "q10", Text: "How do you feel about pets?", Options: []string{
		"Dog person",
		"Cat person",
		"Love them all",
		"Not really a pet person",
	}},
	{ID: "q11", Text: "Which vacations sound the best?", Options: []string{
		"Beach and sunshine",
		"City break with museums",
		"Mountains and hiking",
		"Road trip with no plan",
	}, MultiSelect: true},
	{ID: "q12", Text: "How often do you like to go out with friends?", Options: []string{
		"Every weekend",
		"A couple of times a month",
		"Rarely, I'm a homebody",
	}},
	{ID: "q13", Text: "How tidy are you?", Options: []string{
		"Everything has its place",
		"Organized chaos",
		"I'll clean when it gets bad",
	}},
	{ID: "q14", Text: "How do you handle money in a relationship?", Options: []string{
		"Split everything 50/50",
		"Whoever earns more pays more",
		"Take turns treating each other",
		"Shared account for everything",
	}},
	{ID: "q15", Text: "Where do you see yourself in five years?", Options: []string{
		"Settled down with a family",
		"Focused on my career",
		"Traveling the world",
		"Still figuring it out",
	}},
	{ID: "q16", Text: "What's your relationship with fitness?", Options: []string{
		"Gym is my second home",
		"I stay active when I can",
		"Walks count, right?",
	}},
	{ID: "q17", Text: "What's your favorite way to show affection?", Options: []string{
		"Surprise gifts",
		"Cooking for them",
		"Planning dates",
		"Long conversations",
	}, MultiSelect: true},
	{ID: "q18", Text: "How important is religion or spirituality to you?", Options: []string{
		"Very important",
		"Somewhat important",
		"Not important",
	}},
	{ID: "q19", Text: "Do you want kids?", Options: []string{
		"Yes, definitely",
		"Maybe someday",
		"No",
		"Already have them",
	}},
	{ID: "q20", Text: "How much alone time do you need?", Options: []string{
		"Lots, I recharge solo",
		"Some, but I love company",
		"Hardly any",
	}},
	{ID: "q21", Text: "What's your take on jealousy?", Options: []string{
		"A little is cute",
		"It's a red flag",
		"Talk about it openly",
	}},
	{ID: "q22", Text: "Which hobbies would you love to share?", Options: []string{
		"Cooking together",
		"Gaming",
		"Live music",
		"Outdoor adventures",
		"Movie nights",
	}, MultiSelect: true},
	{ID: "q23", Text: "How fast do you like to move in a relationship?", Options: []string{
		"Slow and steady",
		"Go with the flow",
		"When you know, you know",
	}},
	{ID: "q24", Text: "How do you feel about long distance?", Options: []string{
		"I could make it work",
		"Only for a short while",
		"Not for me",
	}},
}

var byID = func() map[string]int {
	idx := make(map[string]int, len(templates))
	for i, t := range templates {
		idx[t.ID] = i
	}
	return idx
}()

// All returns a copy of the catalog in display order.
func All() []domain.QuestionTemplate {
	out := make([]domain.QuestionTemplate, len(templates))
	for i, t := range templates {
		out[i] = clone(t)
	}
	return out
}

// Get returns the template with id.
func Get(id string) (domain.QuestionTemplate, bool) {
	i, ok := byID[id]
	if !ok {
		return domain.QuestionTemplate{}, false
	}
	return clone(templates[i]), true
}

// Len returns the catalog size.
func Len() int { return len(templates) }

func clone(t domain.QuestionTemplate) domain.QuestionTemplate {
	t.Options = append([]string(nil), t.Options...)
	return t
}
