package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnknown = errors.New("unknown subject")

type mapResolver map[string]string

func (m mapResolver) ResolveDisplayName(_ context.Context, subjectID string) (string, error) {
	name, ok := m[subjectID]
	if !ok {
		return "", errUnknown
	}
	return name, nil
}

func newTestRegistry() *Registry {
	return NewRegistry(mapResolver{"u1": "Ana", "u2": "Bob", "u3": "Cy"})
}

func TestRegisterAndSnapshot(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	name, err := r.Register(ctx, "A", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", name)

	name, err = r.Register(ctx, "B", "u2")
	require.NoError(t, err)
	assert.Equal(t, "Bob", name)

	assert.Equal(t, []Entry{{"A", "Ana"}, {"B", "Bob"}}, r.Snapshot())
	assert.Equal(t, 2, r.Len())

	rec, ok := r.Lookup("B")
	require.True(t, ok)
	assert.Equal(t, "u2", rec.SubjectID)
	assert.False(t, rec.ConnectedAt.IsZero())
}

func TestRegisterUnresolvableLeavesNoRecord(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Register(context.Background(), "X", "ghost")
	require.ErrorIs(t, err, ErrIdentityNotFound)
	require.ErrorIs(t, err, errUnknown)

	assert.Empty(t, r.Snapshot())
	_, ok := r.Lookup("X")
	assert.False(t, ok)
}

func TestRegisterDuplicateID(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	_, err := r.Register(ctx, "A", "u1")
	require.NoError(t, err)

	_, err = r.Register(ctx, "A", "u2")
	require.ErrorIs(t, err, ErrAlreadyRegistered)

	name, err := r.DisplayNameOf("A")
	require.NoError(t, err)
	assert.Equal(t, "Ana", name, "existing record must be untouched")
}

func TestDeregisterIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	_, err := r.Register(ctx, "A", "u1")
	require.NoError(t, err)
	_, err = r.Register(ctx, "B", "u2")
	require.NoError(t, err)

	assert.True(t, r.Deregister("B"))
	assert.False(t, r.Deregister("B"))
	assert.False(t, r.Deregister("never-seen"))

	assert.Equal(t, []Entry{{"A", "Ana"}}, r.Snapshot())
}

func TestDisplayNameOfUnknown(t *testing.T) {
	r := newTestRegistry()
	_, err := r.DisplayNameOf("missing")
	require.ErrorIs(t, err, ErrConnectionNotRegistered)
}

func TestSnapshotOrderSurvivesRemoval(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	for i, subject := range []string{"u1", "u2", "u3"} {
		_, err := r.Register(ctx, fmt.Sprintf("c%d", i), subject)
		require.NoError(t, err)
	}
	r.Deregister("c1")
	_, err := r.Register(ctx, "c3", "u2")
	require.NoError(t, err)

	assert.Equal(t, []Entry{{"c0", "Ana"}, {"c2", "Cy"}, {"c3", "Bob"}}, r.Snapshot())
}

func TestSnapshotIsACopy(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Register(context.Background(), "A", "u1")
	require.NoError(t, err)

	snap := r.Snapshot()
	snap[0].DisplayName = "changed"

	name, err := r.DisplayNameOf("A")
	require.NoError(t, err)
	assert.Equal(t, "Ana", name)
}

func TestReset(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Register(context.Background(), "A", "u1")
	require.NoError(t, err)

	r.Reset()
	assert.Zero(t, r.Len())
	assert.Empty(t, r.Snapshot())
}

func TestConcurrentRegisterDeregister(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("conn-%d", i)
			if _, err := r.Register(ctx, id, "u1"); err != nil {
				t.Errorf("Register(%s) failed: %v", id, err)
				return
			}
			_ = r.Snapshot()
			if i%2 == 0 {
				r.Deregister(id)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, workers/2, r.Len())
	for _, e := range r.Snapshot() {
		assert.Equal(t, "Ana", e.DisplayName)
	}
}
