package mongo

import (
	"sort"
	"time"

	"matchpoint/internal/domain"
)

type questionDoc struct {
	TemplateID      string   `bson:"templateId"`
	Text            string   `bson:"text"`
	Options         []string `bson:"options"`
	MultiSelect     bool     `bson:"multiSelect"`
	PreferredAnswer []int    `bson:"preferredAnswer"`
}

// answerDoc flattens one AnswerSet entry; BSON documents need string keys.
type answerDoc struct {
	Question int   `bson:"question"`
	Selected []int `bson:"selected"`
}

type responseDoc struct {
	ID             string      `bson:"id"`
	RespondentName string      `bson:"respondentName"`
	Answers        []answerDoc `bson:"answers"`
	Score          int         `bson:"score"`
	SubmittedAt    time.Time   `bson:"submittedAt"`
}

type quizDoc struct {
	ID        string        `bson:"_id"`
	OwnerID   string        `bson:"ownerId"`
	Name      string        `bson:"name"`
	ImageRef  string        `bson:"imageRef,omitempty"`
	Questions []questionDoc `bson:"questions"`
	Responses []responseDoc `bson:"responses"`
	CreatedAt time.Time     `bson:"createdAt"`
}

type profileDoc struct {
	FirstName string   `bson:"firstName"`
	LastName  string   `bson:"lastName"`
	Age       int      `bson:"age"`
	PhotoURL  string   `bson:"photoUrl,omitempty"`
	Gender    string   `bson:"gender,omitempty"`
	AgeMin    int      `bson:"ageMin"`
	AgeMax    int      `bson:"ageMax"`
	Interests []string `bson:"interests"`
}

type accountDoc struct {
	UID                 string      `bson:"_id"`
	Name                string      `bson:"name"`
	Email               string      `bson:"email"`
	SubscriptionTier    string      `bson:"subscriptionTier"`
	OnboardingCompleted bool        `bson:"onboardingCompleted"`
	Profile             *profileDoc `bson:"profile,omitempty"`
	Revision            int64       `bson:"revision"`
	CreatedAt           time.Time   `bson:"createdAt"`
	UpdatedAt           time.Time   `bson:"updatedAt"`
}

func toResponseDoc(r domain.ResponseEntry) responseDoc {
	doc := responseDoc{
		ID:             r.ID,
		RespondentName: r.RespondentName,
		Answers:        make([]answerDoc, 0, len(r.Answers)),
		Score:          r.Score,
		SubmittedAt:    r.SubmittedAt,
	}
	for q, sel := range r.Answers {
		doc.Answers = append(doc.Answers, answerDoc{Question: q, Selected: []int(sel)})
	}
	sort.Slice(doc.Answers, func(i, j int) bool { return doc.Answers[i].Question < doc.Answers[j].Question })
	return doc
}

func (d responseDoc) entry() domain.ResponseEntry {
	answers := make(domain.AnswerSet, len(d.Answers))
	for _, a := range d.Answers {
		answers[a.Question] = domain.Selection(a.Selected)
	}
	return domain.ResponseEntry{
		ID:             d.ID,
		RespondentName: d.RespondentName,
		Answers:        answers,
		Score:          d.Score,
		SubmittedAt:    d.SubmittedAt.UTC(),
	}
}

func toQuizDoc(q domain.QuizDefinition) quizDoc {
	doc := quizDoc{
		ID:        q.ID,
		OwnerID:   q.OwnerID,
		Name:      q.Name,
		ImageRef:  q.ImageRef,
		Questions: make([]questionDoc, 0, len(q.Questions)),
		Responses: make([]responseDoc, 0, len(q.Responses)),
		CreatedAt: q.CreatedAt,
	}
	for _, qq := range q.Questions {
		doc.Questions = append(doc.Questions, questionDoc{
			TemplateID:      qq.TemplateID,
			Text:            qq.Text,
			Options:         qq.Options,
			MultiSelect:     qq.MultiSelect,
			PreferredAnswer: []int(qq.PreferredAnswer),
		})
	}
	for _, r := range q.Responses {
		doc.Responses = append(doc.Responses, toResponseDoc(r))
	}
	return doc
}

func (d quizDoc) quiz() domain.QuizDefinition {
	q := domain.QuizDefinition{
		ID:        d.ID,
		OwnerID:   d.OwnerID,
		Name:      d.Name,
		ImageRef:  d.ImageRef,
		Questions: make([]domain.QuizQuestion, 0, len(d.Questions)),
		CreatedAt: d.CreatedAt.UTC(),
	}
	for _, qd := range d.Questions {
		q.Questions = append(q.Questions, domain.QuizQuestion{
			TemplateID:      qd.TemplateID,
			Text:            qd.Text,
			Options:         qd.Options,
			MultiSelect:     qd.MultiSelect,
			PreferredAnswer: domain.Selection(qd.PreferredAnswer),
		})
	}
	for _, r := range d.Responses {
		q.Responses = append(q.Responses, r.entry())
	}
	return q
}

func toAccountDoc(a domain.Account) accountDoc {
	doc := accountDoc{
		UID:                 a.UID,
		Name:                a.Name,
		Email:               a.Email,
		SubscriptionTier:    string(a.SubscriptionTier),
		OnboardingCompleted: a.OnboardingCompleted,
		Revision:            a.Revision,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
	if p := a.Profile; p != nil {
		doc.Profile = &profileDoc{
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Age:       p.Age,
			PhotoURL:  p.PhotoURL,
			Gender:    p.Gender,
			AgeMin:    p.AgeRange.Min,
			AgeMax:    p.AgeRange.Max,
			Interests: p.Interests,
		}
	}
	return doc
}

func (d accountDoc) account() domain.Account {
	a := domain.Account{
		UID:                 d.UID,
		Name:                d.Name,
		Email:               d.Email,
		SubscriptionTier:    domain.SubscriptionTier(d.SubscriptionTier),
		OnboardingCompleted: d.OnboardingCompleted,
		Revision:            d.Revision,
		CreatedAt:           d.CreatedAt.UTC(),
		UpdatedAt:           d.UpdatedAt.UTC(),
	}
	if p := d.Profile; p != nil {
		a.Profile = &domain.Profile{
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Age:       p.Age,
			PhotoURL:  p.PhotoURL,
			Gender:    p.Gender,
			AgeRange:  domain.AgeRange{Min: p.AgeMin, Max: p.AgeMax},
			Interests: p.Interests,
		}
	}
	return a
}
