package verdict

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/bryanwahyu/verdict/internal/application"
	domain "github.com/bryanwahyu/verdict/internal/domain/verdict"
)

// Analyzer is the analysis client as seen by the pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, req domain.Request) (domain.Payload, error)
}

// Service implements the submit/list/delete use-cases.
// Service is stateless and safe for concurrent use.
type Service struct {
	Repo     domain.Repository
	Drafts   domain.DraftStore
	Analyzer Analyzer
	Clock    application.Clock
	// MinObjectionLength defaults to DefaultMinObjectionLength when zero.
	MinObjectionLength int
	Log                zerolog.Logger
}

//
// ==== USE CASES ====
//

// Submit runs request builder → analysis → insert. When the insert fails the
// completed verdict is parked as a pending draft and the returned error wraps
// domain.ErrPersistence.
func (s *Service) Submit(ctx context.Context, userID string, form Form) (domain.Record, error) {
	// timestamp diambil di awal submit, bukan setelah AI selesai
	createdAt := s.now().UnixMilli()

	req, err := BuildRequest(form, s.minLen())
	if err != nil {
		return domain.Record{}, err
	}

	payload, err := s.Analyzer.Analyze(ctx, req)
	if err != nil {
		return domain.Record{}, err
	}

	rec := domain.Record{
		UserID:        userID,
		CreatedAt:     createdAt,
		ObjectionText: req.ObjectionText,
		Mode:          req.Mode,
		Context:       req.Context,
		Result:        payload,
	}
	return s.save(ctx, rec, false)
}

// Validate runs the request builder checks without calling anything.
func (s *Service) Validate(form Form) error {
	_, err := BuildRequest(form, s.minLen())
	return err
}

// RetryDraft re-attempts the insert of the user's pending draft.
func (s *Service) RetryDraft(ctx context.Context, userID string) (domain.Record, error) {
	if s.Drafts == nil {
		return domain.Record{}, domain.ErrNoPendingDraft
	}
	d, err := s.Drafts.Get(ctx, userID)
	if err != nil {
		return domain.Record{}, errors.Wrap(err, "load pending draft")
	}
	if d == nil {
		return domain.Record{}, domain.ErrNoPendingDraft
	}
	return s.save(ctx, d.Record, true)
}

// PendingDraft returns the user's pending draft, nil when there is none.
func (s *Service) PendingDraft(ctx context.Context, userID string) (*domain.Draft, error) {
	if s.Drafts == nil {
		return nil, nil
	}
	return s.Drafts.Get(ctx, userID)
}

// List returns the user's analyses newest first.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Record, error) {
	out, err := s.Repo.List(ctx, userID)
	if err != nil {
		return nil, persistence(err, "list analyses")
	}
	if out == nil {
		out = []domain.Record{}
	}
	return out, nil
}

// Remove deletes one analysis. Removing an absent id succeeds.
func (s *Service) Remove(ctx context.Context, userID string, id domain.RecordID) error {
	if err := s.Repo.Remove(ctx, userID, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return persistence(err, "remove analysis")
	}
	return nil
}

// save inserts rec. The pending draft slot holds one record per user: a failed
// insert overwrites it, a successful retry clears it.
func (s *Service) save(ctx context.Context, rec domain.Record, retry bool) (domain.Record, error) {
	saved, err := s.Repo.Insert(ctx, rec)
	if err == nil {
		if retry {
			s.clearDraft(ctx, rec.UserID)
		}
		return saved, nil
	}

	s.Log.Error().Err(err).Str("user_id", rec.UserID).Msg("insert analysis failed, keeping pending draft")
	if s.Drafts != nil {
		d := domain.Draft{ID: uuid.NewString(), Record: rec.Clone(), SavedAt: s.now()}
		if derr := s.Drafts.Put(ctx, rec.UserID, d); derr != nil {
			s.Log.Error().Err(derr).Str("user_id", rec.UserID).Msg("store pending draft failed")
		}
	}
	return domain.Record{}, persistence(err, "insert analysis")
}

func (s *Service) clearDraft(ctx context.Context, userID string) {
	if s.Drafts == nil {
		return
	}
	if err := s.Drafts.Delete(ctx, userID); err != nil {
		s.Log.Warn().Err(err).Str("user_id", userID).Msg("clear pending draft failed")
	}
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return application.SystemClock{}.Now()
	}
	return s.Clock.Now()
}

func (s *Service) minLen() int {
	if s.MinObjectionLength <= 0 {
		return DefaultMinObjectionLength
	}
	return s.MinObjectionLength
}

// persistence tags err as a store failure unless it already is one.
func persistence(err error, msg string) error {
	if errors.Is(err, domain.ErrPersistence) {
		return errors.Wrap(err, msg)
	}
	return fmt.Errorf("%s: %w: %w", msg, domain.ErrPersistence, err)
}
