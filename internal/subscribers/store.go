// Package subscribers keeps the SMS subscriber roster. Numbers are stored in
// canonical international form so duplicate signups with different formatting
// collapse to one entry.
package subscribers

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"floodwatch/internal/model"
	"floodwatch/internal/normalize"
	"floodwatch/internal/storage"
)

var ErrAlreadySubscribed = errors.New("phone number already subscribed")

type Store struct {
	mu          sync.RWMutex
	list        []model.Subscriber
	persist     storage.Store
	clock       clockwork.Clock
	countryCode string
	logger      *slog.Logger
}

func NewStore(countryCode string, persist storage.Store, clock clockwork.Clock, logger *slog.Logger) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if countryCode == "" {
		countryCode = "63"
	}
	return &Store{
		persist:     persist,
		clock:       clock,
		countryCode: countryCode,
		logger:      logger,
	}
}

// Subscribe normalizes raw and adds it to the roster. Returns the canonical
// number, or ErrAlreadySubscribed when it is already present.
func (s *Store) Subscribe(ctx context.Context, raw string) (string, error) {
	phone, err := normalize.Phone(raw, s.countryCode)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	for _, sub := range s.list {
		if sub.PhoneNumber == phone {
			s.mu.Unlock()
			return phone, ErrAlreadySubscribed
		}
	}
	sub := model.Subscriber{PhoneNumber: phone, SubscribedAt: s.clock.Now().UTC()}
	s.list = append(s.list, sub)
	s.mu.Unlock()

	if s.persist != nil {
		if err := s.persist.SaveSubscriber(ctx, sub); err != nil && s.logger != nil {
			s.logger.Warn("persist subscriber failed", "err", err)
		}
	}
	return phone, nil
}

// List returns the roster in signup order. The error return exists so callers
// reading the roster at send time share one signature with remote sources.
func (s *Store) List(ctx context.Context) ([]model.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Subscriber, len(s.list))
	copy(out, s.list)
	return out, nil
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.list)
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = nil
}

// LoadPersisted seeds the roster from storage, skipping numbers already
// present in memory.
func (s *Store) LoadPersisted(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	saved, err := s.persist.ListSubscribers(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range saved {
		dup := false
		for _, have := range s.list {
			if have.PhoneNumber == sub.PhoneNumber {
				dup = true
				break
			}
		}
		if !dup {
			s.list = append(s.list, sub)
		}
	}
	return nil
}
