// Package feedback collects free-form messages from dashboard users.
package feedback

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"floodwatch/internal/model"
	"floodwatch/internal/storage"
)

var ErrEmptyMessage = errors.New("feedback message is empty")

const defaultLimit = 500

type Store struct {
	mu      sync.RWMutex
	buf     []model.Feedback
	limit   int
	persist storage.Store
	clock   clockwork.Clock
	logger  *slog.Logger
}

func NewStore(limit int, persist storage.Store, clock clockwork.Clock, logger *slog.Logger) *Store {
	if limit <= 0 {
		limit = defaultLimit
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{limit: limit, persist: persist, clock: clock, logger: logger}
}

// Submit records a feedback entry and returns it with id and timestamp set.
func (s *Store) Submit(ctx context.Context, name, email, message string) (model.Feedback, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return model.Feedback{}, ErrEmptyMessage
	}
	fb := model.Feedback{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		Email:     strings.TrimSpace(email),
		Message:   message,
		CreatedAt: s.clock.Now().UTC(),
	}
	s.mu.Lock()
	if len(s.buf) < s.limit {
		s.buf = append(s.buf, fb)
	} else {
		copy(s.buf, s.buf[1:])
		s.buf[len(s.buf)-1] = fb
	}
	s.mu.Unlock()

	if s.persist != nil {
		if err := s.persist.SaveFeedback(ctx, fb); err != nil && s.logger != nil {
			s.logger.Warn("persist feedback failed", "id", fb.ID, "err", err)
		}
	}
	return fb, nil
}

func (s *Store) List(limit int) []model.Feedback {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.buf) {
		limit = len(s.buf)
	}
	out := make([]model.Feedback, 0, limit)
	start := len(s.buf) - limit
	for i := start; i < len(s.buf); i++ {
		out = append(out, s.buf[i])
	}
	return out
}
