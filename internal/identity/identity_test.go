package identity

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryResolve(t *testing.T) {
	d := NewDirectory(
		User{ID: "u1", FullName: "Ana", IsActive: true},
		User{ID: "u2", FullName: "Bob", IsActive: false},
	)

	name, err := d.ResolveDisplayName(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", name)

	_, err = d.ResolveDisplayName(context.Background(), "u2")
	require.ErrorIs(t, err, ErrNotFound, "inactive users must not resolve")

	_, err = d.ResolveDisplayName(context.Background(), "nobody")
	require.ErrorIs(t, err, ErrNotFound)

	d.Put(User{ID: "u2", FullName: "Bob", IsActive: true})
	name, err = d.ResolveDisplayName(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, "Bob", name)
	assert.Equal(t, 2, d.Len())
}

func TestLoadDirectory(t *testing.T) {
	t.Setenv("TEST_ANA_NAME", "Ana Lopez")

	contents := `
users:
  - id: u1
    fullName: ${TEST_ANA_NAME}
    isActive: true
  - id: u2
    fullName: Bob
    isActive: true
`
	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	d, err := LoadDirectory(path)
	require.NoError(t, err)

	name, err := d.ResolveDisplayName(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana Lopez", name)
	assert.Equal(t, 2, d.Len())
}

func TestLoadDirectoryErrors(t *testing.T) {
	_, err := LoadDirectory(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = ParseDirectory([]byte("users: [unterminated"))
	require.Error(t, err)

	_, err = ParseDirectory([]byte("users:\n  - fullName: Nameless\n"))
	require.Error(t, err)
}

func TestConnectPostgresRejectsBadURL(t *testing.T) {
	_, err := ConnectPostgres(context.Background(), "postgres://%zz", PoolConfig{})
	require.Error(t, err)
}
