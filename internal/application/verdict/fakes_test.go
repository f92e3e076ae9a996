package verdict

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanwahyu/verdict/internal/application"
	domain "github.com/bryanwahyu/verdict/internal/domain/verdict"
)

type fakeRepo struct {
	mu        sync.Mutex
	rows      []domain.Record
	seq       int
	insertErr error
	listErr   error
	removeErr error
	removed   []domain.RecordID
}

func (r *fakeRepo) Insert(_ context.Context, rec domain.Record) (domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return domain.Record{}, r.insertErr
	}
	r.seq++
	rec.ID = domain.RecordID(fmt.Sprintf("rec-%d", r.seq))
	r.rows = append(r.rows, rec.Clone())
	return rec, nil
}

func (r *fakeRepo) List(_ context.Context, userID string) ([]domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []domain.Record
	for _, row := range r.rows {
		if row.UserID == userID {
			out = append(out, row.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

func (r *fakeRepo) Remove(_ context.Context, userID string, id domain.RecordID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, id)
	if r.removeErr != nil {
		return r.removeErr
	}
	for i, row := range r.rows {
		if row.ID == id && row.UserID == userID {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			break
		}
	}
	return nil
}

func (r *fakeRepo) removeCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.removed)
}

type fakeDrafts struct {
	mu     sync.Mutex
	drafts map[string]domain.Draft
}

func newFakeDrafts() *fakeDrafts { return &fakeDrafts{drafts: map[string]domain.Draft{}} }

func (d *fakeDrafts) Put(_ context.Context, userID string, draft domain.Draft) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drafts[userID] = draft
	return nil
}

func (d *fakeDrafts) Get(_ context.Context, userID string) (*domain.Draft, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	draft, ok := d.drafts[userID]
	if !ok {
		return nil, nil
	}
	return &draft, nil
}

func (d *fakeDrafts) Delete(_ context.Context, userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.drafts, userID)
	return nil
}

// stubAnalyzer counts calls; when gate is set each call blocks on it.
type stubAnalyzer struct {
	calls   atomic.Int32
	started chan struct{}
	gate    chan struct{}
	payload domain.Payload
	err     error
}

func (a *stubAnalyzer) Analyze(ctx context.Context, _ domain.Request) (domain.Payload, error) {
	a.calls.Add(1)
	if a.started != nil {
		a.started <- struct{}{}
	}
	if a.gate != nil {
		select {
		case <-a.gate:
		case <-ctx.Done():
			return domain.Payload{}, ctx.Err()
		}
	}
	if a.err != nil {
		return domain.Payload{}, a.err
	}
	return a.payload, nil
}

// tickClock advances one second per call.
func tickClock(start time.Time) application.Clock {
	var mu sync.Mutex
	t := start
	return application.ClockFunc(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	})
}

func samplePayload() domain.Payload {
	return domain.Payload{
		Meaning:           "They are stalling to avoid saying no.",
		IntentLevel:       domain.IntentLow,
		IntentExplanation: "Vague timeline, no next step offered.",
		CloseProbability:  "5-10%",
		BestResponse:      "Totally fair. What would need to be true for this to move forward next week?",
		WhatNotToSay:      []string{"Sure, take all the time you need!"},
		FollowUpStrategy: domain.FollowUpStrategy{
			MaxFollowUps:  "1",
			TimeGap:       "7 days",
			StopCondition: "No concrete date offered",
		},
		WalkAwaySignal: "They avoid naming a decision maker.",
	}
}

func validForm() Form {
	return Form{
		ObjectionText: "We need to think about it and will call you back next week",
		DealSizeTier:  TierHighTicket,
		Sector:        "Consulting",
		DealStage:     StageDiscovery,
		Mode:          string(domain.ModeDisqualify),
	}
}

var errStore = errors.New("store unavailable")
