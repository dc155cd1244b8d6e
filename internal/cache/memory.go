package cache

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"remindbot/internal/types"
)

// Compile-time assertion that Memory implements types.FastStore.
var _ types.FastStore = (*Memory)(nil)

// Memory is an in-process FastStore backed by maps under a single mutex,
// with per-entry expiry. It gives a single-node deployment the same
// scheduler behavior as an external fast store: the scheduler's logic is
// identical either way.
//
// Expired entries are dropped lazily on access, so no sweeper goroutine is
// needed; the worker touches every hot key on each poll cycle.
type Memory struct {
	mu        sync.Mutex
	keyPrefix string
	entries   map[string]memoryEntry
	sets      map[string]map[string]float64

	// now is injectable for expiry tests.
	now func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !e.expiresAt.After(now)
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock overrides the store's time source. Intended for expiry tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory creates an empty in-process store. keyPrefix is prepended to
// every key, mirroring the namespacing an external shared store would use.
func NewMemory(keyPrefix string, opts ...MemoryOption) *Memory {
	m := &Memory{
		keyPrefix: keyPrefix,
		entries:   make(map[string]memoryEntry),
		sets:      make(map[string]map[string]float64),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Available always reports true: the in-process store is a real backing
// store, just not a durable or shared one.
func (m *Memory) Available() bool { return true }

func (m *Memory) buildKey(key string) string {
	return m.keyPrefix + key
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := m.buildKey(key)
	entry, ok := m.entries[k]
	if !ok {
		return "", false, nil
	}
	if entry.expired(m.now()) {
		delete(m.entries, k)
		return "", false, nil
	}
	return entry.value, true, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[m.buildKey(key)] = memoryEntry{
		value:     value,
		expiresAt: m.expiry(ttl),
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := m.buildKey(key)
	entry, ok := m.entries[k]
	if !ok || entry.expired(m.now()) {
		delete(m.entries, k)
		return false, nil
	}
	delete(m.entries, k)
	return true, nil
}

func (m *Memory) Increment(_ context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := m.buildKey(key)
	var current int64
	if entry, ok := m.entries[k]; ok && !entry.expired(m.now()) {
		parsed, err := strconv.ParseInt(entry.value, 10, 64)
		if err != nil {
			return 0, types.NewAppError(types.ErrCodeInternalCache, "counter key holds a non-numeric value", err)
		}
		current = parsed
	}

	current += delta
	entry := memoryEntry{value: strconv.FormatInt(current, 10)}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	} else if existing, ok := m.entries[k]; ok {
		entry.expiresAt = existing.expiresAt
	}
	m.entries[k] = entry

	return current, nil
}

// AcquireLock is a single atomic check-and-set under the store mutex: two
// concurrent callers can never both observe "no lock" for the same key.
func (m *Memory) AcquireLock(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := m.buildKey(key)
	if entry, ok := m.entries[k]; ok && !entry.expired(m.now()) {
		return false, nil
	}

	m.entries[k] = memoryEntry{
		value:     token,
		expiresAt: m.expiry(ttl),
	}
	return true, nil
}

// ReleaseLock releases only when the unexpired lock holds the matching
// token, so a worker whose lease already expired and was re-acquired by
// another worker cannot release the new holder's lock.
func (m *Memory) ReleaseLock(_ context.Context, key, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := m.buildKey(key)
	entry, ok := m.entries[k]
	if !ok || entry.expired(m.now()) || entry.value != token {
		return false, nil
	}
	delete(m.entries, k)
	return true, nil
}

func (m *Memory) SortedSetAdd(_ context.Context, key, member string, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := m.buildKey(key)
	set, ok := m.sets[k]
	if !ok {
		set = make(map[string]float64)
		m.sets[k] = set
	}
	set[member] = score
	return nil
}

func (m *Memory) SortedSetRangeByScore(_ context.Context, key string, minScore, maxScore float64, limit int) ([]types.ScoredMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.sets[m.buildKey(key)]
	if len(set) == 0 {
		return nil, nil
	}

	matches := make([]types.ScoredMember, 0, len(set))
	for member, score := range set {
		if score >= minScore && score <= maxScore {
			matches = append(matches, types.ScoredMember{Member: member, Score: score})
		}
	}

	// Ascending score, member as tie-breaker for deterministic order.
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score < matches[j].Score
		}
		return matches[i].Member < matches[j].Member
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (m *Memory) SortedSetRemove(_ context.Context, key string, members ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.sets[m.buildKey(key)]
	var removed int64
	for _, member := range members {
		if _, ok := set[member]; ok {
			delete(set, member)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) SortedSetRemoveRangeByScore(_ context.Context, key string, minScore, maxScore float64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.sets[m.buildKey(key)]
	var removed int64
	for member, score := range set {
		if score >= minScore && score <= maxScore {
			delete(set, member)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}
