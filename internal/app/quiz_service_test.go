package app_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"matchpoint/internal/app"
	"matchpoint/internal/domain"
	"matchpoint/internal/infra/memory"
	"matchpoint/internal/questionbank"
)

func questions(n int) []app.PublishQuestion {
	all := questionbank.All()
	out := make([]app.PublishQuestion, 0, n)
	for _, tmpl := range all[:n] {
		out = append(out, app.PublishQuestion{TemplateID: tmpl.ID, PreferredAnswer: domain.Single(0)})
	}
	return out
}

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	return verr.Fields
}

func TestPublishQuestionCountBounds(t *testing.T) {
	f := newFixture(t)
	f.newAccount(t, "owner", domain.TierPremium)
	ctx := context.Background()

	for _, n := range []int{1, 20} {
		if _, err := f.quizSvc.Publish(ctx, "owner", app.PublishRequest{Name: "quiz", Questions: questions(n)}); err != nil {
			t.Fatalf("publish with %d questions: %v", n, err)
		}
	}

	_, err := f.quizSvc.Publish(ctx, "owner", app.PublishRequest{Name: "quiz"})
	if msg := fieldErrors(t, err)["questions"]; msg != "Please select at least 1 question for your quiz" {
		t.Fatalf("unexpected message for 0 questions: %q", msg)
	}

	many := make([]app.PublishQuestion, 21)
	for i := range many {
		many[i] = app.PublishQuestion{TemplateID: fmt.Sprintf("q%d", i+1), PreferredAnswer: domain.Single(0)}
	}
	_, err = f.quizSvc.Publish(ctx, "owner", app.PublishRequest{Name: "quiz", Questions: many})
	if _, ok := fieldErrors(t, err)["questions"]; !ok {
		t.Fatalf("expected questions error for 21 questions")
	}
}

func TestPublishReportsEveryFailingField(t *testing.T) {
	f := newFixture(t)
	f.newAccount(t, "owner", domain.TierFree)

	_, err := f.quizSvc.Publish(context.Background(), "owner", app.PublishRequest{
		Name: "  ",
		Questions: []app.PublishQuestion{
			{TemplateID: "q1"},
			{TemplateID: "q2", PreferredAnswer: domain.Multi(0, 1)},
			{TemplateID: "q3", PreferredAnswer: domain.Multi(0, 1, 2)},
			{TemplateID: "q4", PreferredAnswer: domain.Single(9)},
			{TemplateID: "nope", PreferredAnswer: domain.Single(0)},
		},
	})
	fields := fieldErrors(t, err)
	for _, key := range []string{
		"name",
		"questions[0].preferredAnswer",
		"questions[1].preferredAnswer",
		"questions[2].preferredAnswer",
		"questions[3].preferredAnswer",
		"questions[4].templateId",
	} {
		if _, ok := fields[key]; !ok {
			t.Fatalf("expected error for %s, got %v", key, fields)
		}
	}
	if fields["questions[0].preferredAnswer"] != "Please set your preferred answer for all selected questions" {
		t.Fatalf("unexpected message %q", fields["questions[0].preferredAnswer"])
	}
	if all, _ := f.quizzes.ListAll(context.Background()); len(all) != 0 {
		t.Fatalf("nothing may be persisted on validation failure")
	}
}

func TestPublishCopiesBankQuestions(t *testing.T) {
	f := newFixture(t)
	f.newAccount(t, "owner", domain.TierFree)
	quiz := f.publish(t, "owner")

	tmpl, _ := questionbank.Get("q3")
	got := quiz.Questions[1]
	if got.Text != tmpl.Text || !got.MultiSelect || len(got.Options) != len(tmpl.Options) {
		t.Fatalf("question not copied from bank: %+v", got)
	}
	if quiz.ID == "" || quiz.OwnerID != "owner" {
		t.Fatalf("unexpected quiz identity %+v", quiz)
	}

	view, err := f.quizSvc.PublicView(context.Background(), quiz.ID)
	if err != nil {
		t.Fatalf("public view: %v", err)
	}
	if len(view.Questions) != 2 || view.Questions[1].Text != tmpl.Text {
		t.Fatalf("unexpected public view %+v", view)
	}
}

func TestPublishEnforcesFreeQuota(t *testing.T) {
	f := newFixture(t)
	f.newAccount(t, "free", domain.TierFree)
	f.newAccount(t, "premium", domain.TierPremium)

	f.publish(t, "free")
	_, err := f.quizSvc.Publish(context.Background(), "free", app.PublishRequest{Name: "second", Questions: questions(1)})
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected quota exceeded, got %v", err)
	}

	f.publish(t, "premium")
	f.publish(t, "premium")

	free, _ := f.accounts.Get(context.Background(), "free")
	q, err := f.quizSvc.Quota(context.Background(), free)
	if err != nil {
		t.Fatalf("quota: %v", err)
	}
	if q.Used != 1 || q.Limit != 1 || q.CanCreate {
		t.Fatalf("unexpected free quota %+v", q)
	}
	premium, _ := f.accounts.Get(context.Background(), "premium")
	q, _ = f.quizSvc.Quota(context.Background(), premium)
	if q.Limit != 0 || !q.CanCreate || q.Used != 2 {
		t.Fatalf("unexpected premium quota %+v", q)
	}
}

func TestConcurrentPublishesRespectFreeQuota(t *testing.T) {
	ctx := context.Background()
	store := memory.NewQuizStore()
	accounts := memory.NewAccountStore()
	owner := domain.NewAccount(domain.Principal{UID: "free", Email: "free@example.com"}, time.Now())
	if err := accounts.Create(ctx, owner); err != nil {
		t.Fatalf("create account: %v", err)
	}
	// two services over one store behave like two server processes
	replicas := []*app.QuizService{
		app.NewQuizService(store, nil, accounts, nil),
		app.NewQuizService(store, nil, accounts, nil),
	}

	var published, rejected int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := replicas[i%2].Publish(ctx, "free", app.PublishRequest{Name: fmt.Sprintf("quiz %d", i), Questions: questions(1)})
			switch {
			case err == nil:
				atomic.AddInt32(&published, 1)
			case errors.Is(err, domain.ErrQuotaExceeded):
				atomic.AddInt32(&rejected, 1)
			default:
				t.Errorf("publish: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if published != 1 || rejected != 15 {
		t.Fatalf("expected 1 published and 15 rejected, got %d and %d", published, rejected)
	}
	owned, _ := store.ListByOwner(ctx, "free")
	if len(owned) != 1 {
		t.Fatalf("expected 1 stored quiz, got %d", len(owned))
	}
}

func pngImage(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 16, 16))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestDeleteCascadesImageAndChecksOwner(t *testing.T) {
	f := newFixture(t)
	f.newAccount(t, "owner", domain.TierFree)
	ctx := context.Background()

	quiz, err := f.quizSvc.Publish(ctx, "owner", app.PublishRequest{
		Name:      "with image",
		Questions: questions(1),
		Image:     &app.ImageUpload{Filename: "cover image.png", ContentType: "image/png", Data: pngImage(t)},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if quiz.ImageRef == "" || f.blob.Len() != 1 {
		t.Fatalf("expected image stored, ref=%q blobs=%d", quiz.ImageRef, f.blob.Len())
	}
	if _, err := f.ledger.Submit(ctx, quiz.ID, "Sam", domain.AnswerSet{0: domain.Single(0)}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := f.quizSvc.Delete(ctx, "intruder", quiz.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := f.quizSvc.Delete(ctx, "owner", quiz.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if f.blob.Len() != 0 {
		t.Fatalf("expected image deleted with quiz")
	}
	if _, err := f.ledger.Submit(ctx, quiz.ID, "Kim", nil); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz gone, got %v", err)
	}
}

func TestReplaceAndRemoveImage(t *testing.T) {
	f := newFixture(t)
	f.newAccount(t, "owner", domain.TierFree)
	ctx := context.Background()
	quiz := f.publish(t, "owner")

	ref, err := f.quizSvc.ReplaceImage(ctx, "owner", quiz.ID, app.ImageUpload{Filename: "a.png", Data: pngImage(t)})
	if err != nil {
		t.Fatalf("replace image: %v", err)
	}
	next, err := f.quizSvc.ReplaceImage(ctx, "owner", quiz.ID, app.ImageUpload{Filename: "b.png", Data: pngImage(t)})
	if err != nil {
		t.Fatalf("replace image again: %v", err)
	}
	if ref == next || f.blob.Len() != 1 {
		t.Fatalf("expected old image replaced, blobs=%d", f.blob.Len())
	}

	if err := f.quizSvc.RemoveImage(ctx, "owner", quiz.ID); err != nil {
		t.Fatalf("remove image: %v", err)
	}
	stored, _ := f.quizzes.Get(ctx, quiz.ID)
	if stored.ImageRef != "" || f.blob.Len() != 0 {
		t.Fatalf("expected image cleared, ref=%q blobs=%d", stored.ImageRef, f.blob.Len())
	}
}
