package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"course-advisor-be/pkg/advisor/metrics"
	"course-advisor-be/pkg/advisor/session"

	"github.com/patrickmn/go-cache"
)

const DefaultMaxEntries = 10000

// SessionRepository keeps session contexts in process memory. Entries expire
// after ttl of inactivity; when maxEntries is reached the least recently
// saved session is evicted to make room. Recency is tracked in a list next to
// the cache so eviction does not scan the cache.
type SessionRepository struct {
	cache      *cache.Cache
	maxEntries int
	// serializes capacity checks with inserts
	mu sync.Mutex

	// guards order and elems; never held while calling into the cache
	lruMu sync.Mutex
	order *list.List // front is the most recently saved id
	elems map[string]*list.Element
}

func NewSessionRepository(ttl time.Duration, maxEntries int) *SessionRepository {
	if ttl <= 0 {
		ttl = 45 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	purge := ttl / 4
	if purge < time.Second {
		purge = time.Second
	}
	c := cache.New(ttl, purge)
	r := &SessionRepository{
		cache:      c,
		maxEntries: maxEntries,
		order:      list.New(),
		elems:      make(map[string]*list.Element),
	}
	c.OnEvicted(func(id string, _ interface{}) {
		r.forget(id)
		metrics.ActiveSessions.Set(float64(c.ItemCount()))
	})
	return r
}

func (r *SessionRepository) Load(_ context.Context, id string) (*session.Context, bool, error) {
	if x, found := r.cache.Get(id); found {
		return x.(*session.Context).Clone(), true, nil
	}
	return nil, false, nil
}

func (r *SessionRepository) Save(_ context.Context, sc *session.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.cache.Get(sc.Id); !exists && r.cache.ItemCount() >= r.maxEntries {
		r.evictOldest()
	}
	r.cache.Set(sc.Id, sc.Clone(), cache.DefaultExpiration)
	r.touch(sc.Id)
	metrics.ActiveSessions.Set(float64(r.cache.ItemCount()))
	return nil
}

func (r *SessionRepository) Delete(_ context.Context, id string) error {
	r.cache.Delete(id)
	return nil
}

func (r *SessionRepository) Len() int {
	return r.cache.ItemCount()
}

// evictOldest drops least recently saved ids until there is room. Ids whose
// entry already left the cache are only unlinked.
func (r *SessionRepository) evictOldest() {
	for r.cache.ItemCount() >= r.maxEntries {
		r.lruMu.Lock()
		back := r.order.Back()
		r.lruMu.Unlock()
		if back == nil {
			return
		}
		id := back.Value.(string)
		r.cache.Delete(id)
		r.forget(id)
	}
}

func (r *SessionRepository) touch(id string) {
	r.lruMu.Lock()
	defer r.lruMu.Unlock()
	if e, ok := r.elems[id]; ok {
		r.order.MoveToFront(e)
		return
	}
	r.elems[id] = r.order.PushFront(id)
}

func (r *SessionRepository) forget(id string) {
	r.lruMu.Lock()
	defer r.lruMu.Unlock()
	if e, ok := r.elems[id]; ok {
		r.order.Remove(e)
		delete(r.elems, id)
	}
}
