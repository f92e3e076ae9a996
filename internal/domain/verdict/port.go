package verdict

import (
	"context"
	"time"
)

// Repository port for persisting and querying analyses. Every call is scoped
// to the owning user; the adapters always filter by user_id.
type Repository interface {
	Insert(ctx context.Context, r Record) (Record, error)
	List(ctx context.Context, userID string) ([]Record, error)
	Remove(ctx context.Context, userID string, id RecordID) error
}

// Draft is a completed verdict whose insert failed, kept so only the save
// step has to be retried.
type Draft struct {
	ID      string    `json:"id"`
	Record  Record    `json:"record"`
	SavedAt time.Time `json:"savedAt"`
}

// DraftStore port for pending drafts, at most one per user.
type DraftStore interface {
	Put(ctx context.Context, userID string, d Draft) error
	Get(ctx context.Context, userID string) (*Draft, error)
	Delete(ctx context.Context, userID string) error
}
