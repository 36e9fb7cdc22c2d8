package app

import (
	"math"

	"matchpoint/internal/domain"
)

const (
	singlePoints    = 1.0
	multiFullPoints = 1.5
	multiHalfPoints = 1.0
)

// QuestionScore is the per-question outcome shown on the result page.
type QuestionScore struct {
	Index    int     `json:"index"`
	Answered bool    `json:"answered"`
	Awarded  float64 `json:"awarded"`
	Possible float64 `json:"possible"`
}

// Score maps a quiz and an answer set to a compatibility percentage in [0,100].
// Unanswered questions are left out of the denominator; nothing answered scores 0.
func Score(quiz domain.QuizDefinition, answers domain.AnswerSet) int {
	_, score := Breakdown(quiz, answers)
	return score
}

// Breakdown returns the per-question points together with the final score.
func Breakdown(quiz domain.QuizDefinition, answers domain.AnswerSet) ([]QuestionScore, int) {
	var awarded, possible float64
	details := make([]QuestionScore, 0, len(quiz.Questions))
	for i, q := range quiz.Questions {
		qs := QuestionScore{Index: i}
		sel, ok := answers[i]
		if ok && !sel.Empty() {
			qs.Answered = true
			if q.MultiSelect {
				qs.Possible = multiFullPoints
				qs.Awarded = scoreMulti(q.PreferredAnswer, sel)
			} else {
				qs.Possible = singlePoints
				qs.Awarded = scoreSingle(q.PreferredAnswer, sel)
			}
		}
		awarded += qs.Awarded
		possible += qs.Possible
		details = append(details, qs)
	}
	if possible == 0 {
		return details, 0
	}
	score := int(math.Round(100 * awarded / possible))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return details, score
}

func scoreSingle(preferred, sel domain.Selection) float64 {
	if len(preferred) == 0 || len(sel) != 1 {
		return 0
	}
	if sel[0] == preferred[0] {
		return singlePoints
	}
	return 0
}

// scoreMulti awards 1.5 when both picks are preferred, 1 when exactly one is.
func scoreMulti(preferred, sel domain.Selection) float64 {
	matched := 0
	for _, idx := range sel.Normalize() {
		if preferred.Contains(idx) {
			matched++
		}
	}
	switch {
	case matched >= 2:
		return multiFullPoints
	case matched == 1:
		return multiHalfPoints
	default:
		return 0
	}
}
