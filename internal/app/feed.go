package app

import (
	"sync"
	"time"

	"matchpoint/internal/domain"
)

// ResponseEvent is pushed to creators watching a quiz live.
type ResponseEvent struct {
	QuizID   string               `json:"quizId"`
	Response domain.ResponseEntry `json:"response"`
	Total    int                  `json:"total"`
	At       time.Time            `json:"at"`
}

// ResponseFeed fans out newly recorded responses to per-quiz subscribers.
type ResponseFeed struct {
	mu          sync.Mutex
	now         func() time.Time
	subscribers map[string]map[chan ResponseEvent]struct{}
	totals      map[string]int
}

func NewResponseFeed() *ResponseFeed {
	return &ResponseFeed{
		now:         time.Now,
		subscribers: make(map[string]map[chan ResponseEvent]struct{}),
		totals:      make(map[string]int),
	}
}

// Subscribe registers a listener for quizID. known seeds the running total.
// The caller must invoke the returned cancel function to avoid leaks.
func (f *ResponseFeed) Subscribe(quizID string, known int) (<-chan ResponseEvent, func()) {
	ch := make(chan ResponseEvent, 8)

	f.mu.Lock()
	subs, ok := f.subscribers[quizID]
	if !ok {
		subs = make(map[chan ResponseEvent]struct{})
		f.subscribers[quizID] = subs
	}
	subs[ch] = struct{}{}
	if known > f.totals[quizID] {
		f.totals[quizID] = known
	}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		subs := f.subscribers[quizID]
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(f.subscribers, quizID)
			delete(f.totals, quizID)
		}
	}
	return ch, cancel
}

// Publish delivers entry to every subscriber of quizID.
func (f *ResponseFeed) Publish(quizID string, entry domain.ResponseEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()

	subs := f.subscribers[quizID]
	if len(subs) == 0 {
		return
	}
	f.totals[quizID]++
	ev := ResponseEvent{QuizID: quizID, Response: entry, Total: f.totals[quizID], At: f.now()}
	for ch := range subs {
		select {
		case ch <- ev:
		default:
			// slow watcher: drop its oldest event so the newest always lands
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// Watchers returns the number of live subscribers for quizID.
func (f *ResponseFeed) Watchers(quizID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers[quizID])
}
