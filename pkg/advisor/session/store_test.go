package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"course-advisor-be/internal/pkg/logger"
	"course-advisor-be/pkg/advisor"
	"course-advisor-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapRepo struct {
	mu    sync.Mutex
	items map[string]*Context
}

func newMapRepo() *mapRepo {
	return &mapRepo{items: map[string]*Context{}}
}

func (r *mapRepo) Load(_ context.Context, id string) (*Context, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.items[id]
	if !ok {
		return nil, false, nil
	}
	return sc.Clone(), true, nil
}

func (r *mapRepo) Save(_ context.Context, sc *Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[sc.Id] = sc.Clone()
	return nil
}

func (r *mapRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func newTestStore(maxHistory int) (*Store, *mapRepo) {
	repo := newMapRepo()
	return NewStore(repo, maxHistory, logger.NewNopLogger()), repo
}

func TestStore_GetCreatesLazily(t *testing.T) {
	store, repo := newTestStore(10)
	ctx := context.Background()

	sc, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", sc.Id)
	assert.Nil(t, sc.Major)
	assert.Empty(t, sc.Interests)
	assert.Len(t, repo.items, 1)
}

func TestStore_UpdateAccumulates(t *testing.T) {
	store, _ := newTestStore(10)
	ctx := context.Background()

	_, err := store.Update(ctx, "s1", func(sc *Context) error {
		sc.SetMajor("Computer Science")
		sc.AddInterests("machine learning")
		return nil
	})
	require.NoError(t, err)

	sc, err := store.Update(ctx, "s1", func(sc *Context) error {
		sc.SetMajor("Applied Math")
		sc.AddInterests("Machine Learning", "visualization")
		return nil
	})
	require.NoError(t, err)

	require.NotNil(t, sc.Major)
	assert.Equal(t, "Applied Math", *sc.Major, "latest major wins")
	assert.Equal(t, []string{"machine learning", "visualization"}, sc.Interests)
}

func TestStore_FailingMutatorLeavesStateUntouched(t *testing.T) {
	store, _ := newTestStore(10)
	ctx := context.Background()

	_, err := store.Update(ctx, "s1", func(sc *Context) error {
		sc.AddInterests("robotics")
		return nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = store.Update(ctx, "s1", func(sc *Context) error {
		sc.AddInterests("databases")
		sc.SetMajor("History")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	sc, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"robotics"}, sc.Interests)
	assert.Nil(t, sc.Major)
}

func TestStore_HistoryIsBounded(t *testing.T) {
	store, _ := newTestStore(4)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.Update(ctx, "s1", func(sc *Context) error {
			sc.AppendTurn(llm.RoleUser, fmt.Sprintf("q%d", i), 100)
			sc.AppendTurn(llm.RoleAssistant, fmt.Sprintf("a%d", i), 100)
			return nil
		})
		require.NoError(t, err)
	}

	sc, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, sc.History, 4)
	assert.Equal(t, "q3", sc.History[0].Content)
	assert.Equal(t, "a4", sc.History[3].Content)
}

func TestStore_ReturnedContextIsACopy(t *testing.T) {
	store, _ := newTestStore(10)
	ctx := context.Background()

	sc, err := store.Update(ctx, "s1", func(sc *Context) error {
		sc.AddInterests("art")
		return nil
	})
	require.NoError(t, err)
	sc.Interests[0] = "mutated"

	again, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"art"}, again.Interests)
}

func TestStore_ConcurrentSessionsStayIsolated(t *testing.T) {
	store, _ := newTestStore(100)
	ctx := context.Background()

	const sessions = 8
	const perSession = 25

	var wg sync.WaitGroup
	for s := 0; s < sessions; s++ {
		for i := 0; i < perSession; i++ {
			wg.Add(1)
			go func(s, i int) {
				defer wg.Done()
				id := fmt.Sprintf("session-%d", s)
				_, err := store.Update(ctx, id, func(sc *Context) error {
					sc.AddInterests(fmt.Sprintf("%s-topic-%d", id, i))
					return nil
				})
				assert.NoError(t, err)
			}(s, i)
		}
	}
	wg.Wait()

	for s := 0; s < sessions; s++ {
		id := fmt.Sprintf("session-%d", s)
		sc, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Len(t, sc.Interests, perSession, "no lost updates in %s", id)
		for _, in := range sc.Interests {
			assert.Contains(t, in, id+"-topic-", "interest leaked across sessions")
		}
	}
	assert.Zero(t, store.locks.size(), "lock entries are released")
}

func TestStore_ExpireDropsSession(t *testing.T) {
	store, repo := newTestStore(10)
	ctx := context.Background()

	_, err := store.Update(ctx, "s1", func(sc *Context) error {
		sc.SetMajor("Physics")
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, store.Expire(ctx, "s1"))
	assert.Empty(t, repo.items)

	sc, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, sc.Major, "a fresh context replaces the expired one")
}

func TestStore_RejectsEmptyID(t *testing.T) {
	store, _ := newTestStore(10)

	_, err := store.Get(context.Background(), "  ")
	var verr *advisor.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestStore_LastTouchedAdvances(t *testing.T) {
	store, _ := newTestStore(10)
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	_, err := store.Get(context.Background(), "s1")
	require.NoError(t, err)

	now = now.Add(5 * time.Minute)
	sc, err := store.Update(context.Background(), "s1", func(*Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, now, sc.LastTouched)
}
