// Package identity resolves authenticated subject ids to the display names
// shown in presence lists and chat messages.
//
// Two resolvers are provided: Directory, an in-memory table usually loaded
// from a YAML file, and PostgresResolver, which reads the users table.
package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a subject is unknown or inactive.
var ErrNotFound = errors.New("identity: subject not found")

// User is a directory entry.
type User struct {
	ID       string `yaml:"id"`
	FullName string `yaml:"fullName"`
	IsActive bool   `yaml:"isActive"`
}

type directoryFile struct {
	Users []User `yaml:"users"`
}

// Directory is a concurrency-safe in-memory resolver.
type Directory struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewDirectory builds a directory from users. Later duplicates win.
func NewDirectory(users ...User) *Directory {
	d := &Directory{users: make(map[string]User, len(users))}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

// LoadDirectory reads a YAML file of the form:
//
//	users:
//	  - id: u1
//	    fullName: Ana
//	    isActive: true
//
// Environment variables in the file are expanded before parsing.
func LoadDirectory(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identity file: %w", err)
	}
	return ParseDirectory(data)
}

// ParseDirectory parses YAML directory contents.
func ParseDirectory(data []byte) (*Directory, error) {
	expanded := os.ExpandEnv(string(data))

	var file directoryFile
	if err := yaml.Unmarshal([]byte(expanded), &file); err != nil {
		return nil, fmt.Errorf("parse identity file: %w", err)
	}

	for i, u := range file.Users {
		if u.ID == "" {
			return nil, fmt.Errorf("identity file: user %d has no id", i)
		}
	}

	return NewDirectory(file.Users...), nil
}

// Put adds or replaces a user.
func (d *Directory) Put(u User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

// Len reports the number of users, active or not.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}

// ResolveDisplayName returns the full name of an active user.
func (d *Directory) ResolveDisplayName(_ context.Context, subjectID string) (string, error) {
	d.mu.RLock()
	u, ok := d.users[subjectID]
	d.mu.RUnlock()

	if !ok || !u.IsActive {
		return "", fmt.Errorf("%w: %q", ErrNotFound, subjectID)
	}
	return u.FullName, nil
}
