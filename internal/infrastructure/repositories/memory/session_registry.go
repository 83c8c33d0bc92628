package memory

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"pairlink/internal/core/domain"

	"go.uber.org/zap"
)

// SessionRegistry keeps pending session codes in memory and expires them
// after a fixed TTL. Expiry uses one time-ordered min-heap drained by a
// single goroutine instead of one sleeping timer per code, so the number of
// pending codes never grows the number of blocked tasks.
type SessionRegistry struct {
	ttl    time.Duration
	logger *zap.SugaredLogger

	mu        sync.Mutex
	codes     map[domain.SessionCode]registryEntry
	byCreator map[domain.Identity]domain.SessionCode
	expiries  expiryHeap
	nextSeq   uint64

	// onExpire is invoked outside the registry lock for every code removed
	// by TTL. May be nil.
	onExpire func(code domain.SessionCode, creator domain.Identity)

	wake chan struct{}
	done chan struct{}
}

type registryEntry struct {
	creator domain.Identity
	seq     uint64
}

type expiryItem struct {
	code domain.SessionCode
	seq  uint64
	at   time.Time
}

type expiryHeap []expiryItem

func (h expiryHeap) Len() int            { return len(h) }
func (h expiryHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h expiryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x interface{}) { *h = append(*h, x.(expiryItem)) }
func (h *expiryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func NewSessionRegistry(ttl time.Duration, logger *zap.SugaredLogger, onExpire func(domain.SessionCode, domain.Identity)) *SessionRegistry {
	r := &SessionRegistry{
		ttl:       ttl,
		logger:    logger,
		codes:     make(map[domain.SessionCode]registryEntry),
		byCreator: make(map[domain.Identity]domain.SessionCode),
		onExpire:  onExpire,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go r.expireLoop()
	return r
}

// Close stops the expiry goroutine. Pending codes are left in place.
func (r *SessionRegistry) Close() {
	close(r.done)
}

func (r *SessionRegistry) Create(ctx context.Context, code domain.SessionCode, creator domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.codes[code]; exists && existing.creator != creator {
		return domain.ErrDuplicateCode
	}

	// One pending code per creator: a new create cancels the previous one.
	// The stale heap item is skipped on pop via its sequence number.
	if prev, exists := r.byCreator[creator]; exists {
		delete(r.codes, prev)
	}

	r.nextSeq++
	r.codes[code] = registryEntry{creator: creator, seq: r.nextSeq}
	r.byCreator[creator] = code
	heap.Push(&r.expiries, expiryItem{code: code, seq: r.nextSeq, at: time.Now().Add(r.ttl)})

	select {
	case r.wake <- struct{}{}:
	default:
	}
	return nil
}

func (r *SessionRegistry) Resolve(ctx context.Context, code domain.SessionCode) (domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.codes[code]
	if !exists {
		return "", domain.ErrSessionNotFound
	}
	return entry.creator, nil
}

func (r *SessionRegistry) Consume(ctx context.Context, code domain.SessionCode) (domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.codes[code]
	if !exists {
		return "", domain.ErrSessionNotFound
	}

	delete(r.codes, code)
	delete(r.byCreator, entry.creator)
	return entry.creator, nil
}

func (r *SessionRegistry) Snapshot(ctx context.Context) (map[domain.SessionCode]domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := make(map[domain.SessionCode]domain.Identity, len(r.codes))
	for code, entry := range r.codes {
		snapshot[code] = entry.creator
	}
	return snapshot, nil
}

func (r *SessionRegistry) expireLoop() {
	const idleWait = time.Minute

	for {
		expired, wait := r.collectExpired()

		for _, e := range expired {
			if r.logger != nil {
				r.logger.Debugw("session code expired", "code", e.code, "creator", e.creator)
			}
			if r.onExpire != nil {
				r.onExpire(e.code, e.creator)
			}
		}

		if wait <= 0 || wait > idleWait {
			wait = idleWait
		}

		select {
		case <-r.done:
			return
		case <-r.wake:
		case <-time.After(wait):
		}
	}
}

type expiredCode struct {
	code    domain.SessionCode
	creator domain.Identity
}

// collectExpired pops every due heap item, removing a code only when its
// sequence still matches the live entry (compare-and-delete: a consumed or
// replaced code must not be destroyed again).
func (r *SessionRegistry) collectExpired() ([]expiredCode, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var expired []expiredCode
	for r.expiries.Len() > 0 {
		head := r.expiries[0]
		if head.at.After(now) {
			return expired, head.at.Sub(now)
		}
		heap.Pop(&r.expiries)

		entry, exists := r.codes[head.code]
		if !exists || entry.seq != head.seq {
			continue
		}
		delete(r.codes, head.code)
		delete(r.byCreator, entry.creator)
		expired = append(expired, expiredCode{code: head.code, creator: entry.creator})
	}
	return expired, 0
}
