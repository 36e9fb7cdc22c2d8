package app

import (
	"context"
	"math"
	"sort"
	"time"

	"matchpoint/internal/domain"
)

const recentResponseLimit = 5

// QuizStats summarises one quiz's ledger.
type QuizStats struct {
	QuizID        string    `json:"quizId"`
	Name          string    `json:"name"`
	Responses     int       `json:"responses"`
	Matches       int       `json:"matches"`
	AverageScore  int       `json:"averageScore"`
	CreatedAt     time.Time `json:"createdAt"`
	QuestionCount int       `json:"questionCount"`
}

// RecentResponse is a response annotated with the quiz it belongs to.
type RecentResponse struct {
	QuizID         string    `json:"quizId"`
	QuizName       string    `json:"quizName"`
	RespondentName string    `json:"respondentName"`
	Score          int       `json:"score"`
	Match          bool      `json:"match"`
	SubmittedAt    time.Time `json:"submittedAt"`
}

// Dashboard is the creator's analytics overview.
type Dashboard struct {
	TotalQuizzes       int              `json:"totalQuizzes"`
	TotalResponses     int              `json:"totalResponses"`
	TotalMatches       int              `json:"totalMatches"`
	MatchRate          int              `json:"matchRate"`
	QuizzesWithReplies int              `json:"quizzesWithResponses"`
	EngagementRate     int              `json:"engagementRate"`
	BestQuiz           *QuizStats       `json:"bestQuiz,omitempty"`
	Quizzes            []QuizStats      `json:"quizzes"`
	Recent             []RecentResponse `json:"recentResponses"`
	Degraded           bool             `json:"degraded"`
}

// AnalyticsService computes dashboards from the creator's quizzes.
type AnalyticsService struct {
	quizzes *QuizService
	syncer  *Syncer
}

func NewAnalyticsService(quizzes *QuizService, syncer *Syncer) *AnalyticsService {
	return &AnalyticsService{quizzes: quizzes, syncer: syncer}
}

// Dashboard loads ownerID's quizzes and aggregates their ledgers.
func (a *AnalyticsService) Dashboard(ctx context.Context, ownerID string) (Dashboard, error) {
	quizzes, err := a.quizzes.ListByOwner(ctx, ownerID)
	if err != nil {
		return Dashboard{}, err
	}
	d := Summarize(quizzes)
	if a.syncer != nil {
		d.Degraded = a.syncer.Degraded()
	}
	return d, nil
}

// Summarize is the pure aggregation behind Dashboard.
func Summarize(quizzes []domain.QuizDefinition) Dashboard {
	d := Dashboard{
		TotalQuizzes: len(quizzes),
		Quizzes:      make([]QuizStats, 0, len(quizzes)),
		Recent:       []RecentResponse{},
	}
	for _, q := range quizzes {
		st := QuizStats{
			QuizID:        q.ID,
			Name:          q.Name,
			Responses:     len(q.Responses),
			CreatedAt:     q.CreatedAt,
			QuestionCount: len(q.Questions),
		}
		sum := 0
		for _, r := range q.Responses {
			sum += r.Score
			if r.IsMatch() {
				st.Matches++
			}
			d.Recent = append(d.Recent, RecentResponse{
				QuizID:         q.ID,
				QuizName:       q.Name,
				RespondentName: r.RespondentName,
				Score:          r.Score,
				Match:          r.IsMatch(),
				SubmittedAt:    r.SubmittedAt,
			})
		}
		if st.Responses > 0 {
			st.AverageScore = percent(sum, st.Responses*100)
			d.QuizzesWithReplies++
		}
		d.TotalResponses += st.Responses
		d.TotalMatches += st.Matches
		d.Quizzes = append(d.Quizzes, st)
	}

	d.MatchRate = percent(d.TotalMatches, d.TotalResponses)
	d.EngagementRate = percent(d.QuizzesWithReplies, d.TotalQuizzes)

	for i := range d.Quizzes {
		st := d.Quizzes[i]
		if st.Responses == 0 {
			continue
		}
		if d.BestQuiz == nil || st.AverageScore > d.BestQuiz.AverageScore {
			d.BestQuiz = &d.Quizzes[i]
		}
	}

	sort.SliceStable(d.Recent, func(i, j int) bool {
		return d.Recent[i].SubmittedAt.After(d.Recent[j].SubmittedAt)
	})
	if len(d.Recent) > recentResponseLimit {
		d.Recent = d.Recent[:recentResponseLimit]
	}
	return d
}

func percent(part, whole int) int {
	if whole == 0 {
		return 0
	}
	return int(math.Round(100 * float64(part) / float64(whole)))
}
