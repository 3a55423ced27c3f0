// Package presence keeps the authoritative table of authenticated connections
// and the display names they registered under.
//
// The Registry is the single source of truth for who is connected. It is
// mutated only by the gateway's lifecycle transitions (Register on a
// successful handshake, Deregister on disconnect) and every read returns a
// copy taken under the lock, so callers never observe a partial update.
package presence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrIdentityNotFound is returned by Register when the subject cannot be
	// resolved to a display name.
	ErrIdentityNotFound = errors.New("presence: identity not found")
	// ErrConnectionNotRegistered is returned for lookups of unknown ids.
	ErrConnectionNotRegistered = errors.New("presence: connection not registered")
	// ErrAlreadyRegistered is returned when a connection id is reused.
	ErrAlreadyRegistered = errors.New("presence: connection already registered")
)

// IdentityResolver maps a subject id to a display name.
type IdentityResolver interface {
	ResolveDisplayName(ctx context.Context, subjectID string) (string, error)
}

// Record describes one authenticated connection. Records are immutable.
type Record struct {
	ConnectionID string
	SubjectID    string
	DisplayName  string
	ConnectedAt  time.Time
}

// Entry is one line of a presence snapshot.
type Entry struct {
	ConnectionID string `json:"id"`
	DisplayName  string `json:"fullName"`
}

type slot struct {
	record Record
	seq    uint64
}

// Registry maps connection ids to records.
type Registry struct {
	resolver IdentityResolver

	mu      sync.RWMutex
	records map[string]slot
	nextSeq uint64

	now func() time.Time
}

// NewRegistry creates an empty registry backed by resolver.
func NewRegistry(resolver IdentityResolver) *Registry {
	return &Registry{
		resolver: resolver,
		records:  make(map[string]slot),
		now:      time.Now,
	}
}

// Register resolves subjectID and stores a record for connectionID. It
// returns the resolved display name. Nothing is stored when resolution fails.
func (r *Registry) Register(ctx context.Context, connectionID, subjectID string) (string, error) {
	// Resolution may block on I/O, so it happens before taking the lock.
	displayName, err := r.resolver.ResolveDisplayName(ctx, subjectID)
	if err != nil {
		return "", fmt.Errorf("%w: subject %q: %w", ErrIdentityNotFound, subjectID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[connectionID]; exists {
		return "", fmt.Errorf("%w: %s", ErrAlreadyRegistered, connectionID)
	}

	r.nextSeq++
	r.records[connectionID] = slot{
		record: Record{
			ConnectionID: connectionID,
			SubjectID:    subjectID,
			DisplayName:  displayName,
			ConnectedAt:  r.now(),
		},
		seq: r.nextSeq,
	}

	return displayName, nil
}

// Deregister removes connectionID and reports whether it was present.
// Removing an unknown id is a no-op.
func (r *Registry) Deregister(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[connectionID]; !ok {
		return false
	}
	delete(r.records, connectionID)
	return true
}

// Snapshot returns the current membership ordered by registration time.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	slots := make([]slot, 0, len(r.records))
	for _, s := range r.records {
		slots = append(slots, s)
	}
	r.mu.RUnlock()

	sort.Slice(slots, func(i, j int) bool { return slots[i].seq < slots[j].seq })

	entries := make([]Entry, len(slots))
	for i, s := range slots {
		entries[i] = Entry{
			ConnectionID: s.record.ConnectionID,
			DisplayName:  s.record.DisplayName,
		}
	}
	return entries
}

// DisplayNameOf returns the name registered for connectionID.
func (r *Registry) DisplayNameOf(connectionID string) (string, error) {
	rec, ok := r.Lookup(connectionID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrConnectionNotRegistered, connectionID)
	}
	return rec.DisplayName, nil
}

// Lookup returns the full record for connectionID.
func (r *Registry) Lookup(connectionID string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.records[connectionID]
	return s.record, ok
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Reset discards every record. Used on shutdown.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[string]slot)
}
