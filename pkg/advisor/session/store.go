package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"course-advisor-be/internal/pkg/logger"
	"course-advisor-be/pkg/advisor"
)

// Repository is the storage backend behind Store. Implementations own expiry
// and capacity; Store owns per-session serialization.
type Repository interface {
	Load(ctx context.Context, id string) (*Context, bool, error)
	Save(ctx context.Context, sc *Context) error
	Delete(ctx context.Context, id string) error
}

type Store struct {
	repo       Repository
	locks      *keyedMutex
	maxHistory int
	now        func() time.Time
	logger     logger.ILogger
}

func NewStore(repo Repository, maxHistory int, log logger.ILogger) *Store {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistoryTurns
	}
	return &Store{
		repo:       repo,
		locks:      newKeyedMutex(),
		maxHistory: maxHistory,
		now:        time.Now,
		logger:     log,
	}
}

func (s *Store) MaxHistory() int {
	return s.maxHistory
}

// Get returns a copy of the session, creating it when absent.
func (s *Store) Get(ctx context.Context, id string) (*Context, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	sc, err := s.loadOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}
	return sc.Clone(), nil
}

// Update applies mutate to a copy of the session and saves the result. Calls
// for the same id run one at a time; different ids do not block each other.
// When mutate fails the stored session is left as it was.
func (s *Store) Update(ctx context.Context, id string, mutate func(*Context) error) (*Context, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	current, err := s.loadOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.Id = id
	next.LastTouched = s.now()
	if len(next.History) > s.maxHistory {
		next.History = next.History[len(next.History)-s.maxHistory:]
	}

	if err := s.repo.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return next.Clone(), nil
}

// Expire drops the session. Unknown ids are not an error.
func (s *Store) Expire(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.logger.Debug("SESSION", "Session expired", map[string]interface{}{"session_id": id})
	return nil
}

func (s *Store) loadOrCreate(ctx context.Context, id string) (*Context, error) {
	sc, found, err := s.repo.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if found {
		return sc, nil
	}
	sc = newContext(id, s.now())
	if err := s.repo.Save(ctx, sc); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.logger.Debug("SESSION", "Session created", map[string]interface{}{"session_id": id})
	return sc, nil
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return advisor.NewValidationError("sessionId", "must not be empty")
	}
	if len(id) > 128 {
		return advisor.NewValidationError("sessionId", "too long")
	}
	return nil
}
