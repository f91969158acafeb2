// Package summary – matcher.go resolves partial session names against
// every stored session id and holds the pending disambiguation state for
// the two-step selection protocol.
package summary

import (
	"context"
	"sync"
	"time"
)

// pendingTTL bounds how long a disambiguation candidate list stays valid.
const pendingTTL = 5 * time.Minute

// SessionDirectory enumerates every stored session id in stable order.
type SessionDirectory interface {
	DistinctSessions(ctx context.Context) ([]string, error)
}

// Matcher finds stored sessions by bidirectional substring containment.
type Matcher struct {
	dir SessionDirectory
}

// NewMatcher creates a matcher over the given session directory.
func NewMatcher(dir SessionDirectory) *Matcher {
	return &Matcher{dir: dir}
}

// Match returns every known session id where the escaped pattern and the
// escaped id contain each other, in directory enumeration order. The
// order is stable so a numbered disambiguation reply stays valid for the
// follow-up selection.
func (m *Matcher) Match(ctx context.Context, pattern string) ([]string, error) {
	sessions, err := m.dir.DistinctSessions(ctx)
	if err != nil {
		return nil, err
	}

	var matches []string
	for _, id := range sessions {
		if containsEither(pattern, id) {
			matches = append(matches, id)
		}
	}
	return matches, nil
}

// pendingEntry is one stored candidate list awaiting selection.
type pendingEntry struct {
	candidates []string
	createdAt  time.Time
}

// PendingStore holds disambiguation candidate lists keyed by requesting
// session, so concurrent disambiguations from different conversations
// never cross-talk. Entries expire after pendingTTL and are not
// persisted across restarts.
type PendingStore struct {
	entries map[string]*pendingEntry
	mu      sync.Mutex
}

// NewPendingStore creates an empty pending disambiguation store.
func NewPendingStore() *PendingStore {
	return &PendingStore{entries: make(map[string]*pendingEntry)}
}

// Put stores a candidate list for the requester, superseding any prior
// pending list.
func (p *PendingStore) Put(requester string, candidates []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries[requester] = &pendingEntry{
		candidates: candidates,
		createdAt:  time.Now(),
	}
}

// Consume resolves a 1-based index against the requester's pending list
// and removes the list. Returns ErrSelectionExpired when no valid list
// is pending or the index is out of [1, N].
func (p *PendingStore) Consume(requester string, index int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[requester]
	if !ok || time.Since(entry.createdAt) > pendingTTL {
		delete(p.entries, requester)
		return "", ErrSelectionExpired
	}

	if index < 1 || index > len(entry.candidates) {
		return "", ErrSelectionExpired
	}

	delete(p.entries, requester)
	return entry.candidates[index-1], nil
}

// Prune drops expired entries. Called periodically by the scheduler so
// abandoned disambiguations do not accumulate.
func (p *PendingStore) Prune() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for requester, entry := range p.entries {
		if time.Since(entry.createdAt) > pendingTTL {
			delete(p.entries, requester)
		}
	}
}
