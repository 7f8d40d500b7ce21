package gitrepo

import (
	"context"
	"fmt"
	"sync"
)

// MemoryClient is an in-memory Client for tests and dry runs. It tracks
// staged paths and fakes commit hashes; the "working tree" is whatever
// directory the caller points it at.
type MemoryClient struct {
	mu sync.Mutex

	root    string
	staged  map[string]struct{}
	history []string
	commits []string
	pushed  int

	// EnsureErr, CommitErr and PushErr force failures when set.
	EnsureErr error
	CommitErr error
	PushErr   error
}

// NewMemoryClient returns a MemoryClient rooted at dir.
func NewMemoryClient(dir string) *MemoryClient {
	return &MemoryClient{
		root:    dir,
		staged:  make(map[string]struct{}),
		commits: []string{"initial"},
	}
}

func (c *MemoryClient) Root() string { return c.root }

func (c *MemoryClient) Ensure(_ context.Context) error {
	return c.EnsureErr
}

func (c *MemoryClient) Head(_ context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commits[len(c.commits)-1], nil
}

func (c *MemoryClient) Stage(_ context.Context, paths ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range paths {
		c.staged[p] = struct{}{}
	}
	c.history = append(c.history, paths...)
	return nil
}

func (c *MemoryClient) Commit(_ context.Context, message string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CommitErr != nil {
		return "", c.CommitErr
	}
	if len(c.staged) == 0 {
		return c.commits[len(c.commits)-1], nil
	}
	hash := fmt.Sprintf("commit-%d", len(c.commits))
	c.commits = append(c.commits, hash)
	c.staged = make(map[string]struct{})
	return hash, nil
}

func (c *MemoryClient) Push(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.PushErr != nil {
		return c.PushErr
	}
	c.pushed++
	return nil
}

// Staged returns the currently staged paths.
func (c *MemoryClient) Staged() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.staged))
	for p := range c.staged {
		out = append(out, p)
	}
	return out
}

// StagedHistory returns every path ever staged, in call order,
// including paths already swept into a commit.
func (c *MemoryClient) StagedHistory() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.history))
	copy(out, c.history)
	return out
}

// Commits returns the fake commit history, oldest first.
func (c *MemoryClient) Commits() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.commits))
	copy(out, c.commits)
	return out
}

// Pushes returns how many pushes succeeded.
func (c *MemoryClient) Pushes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pushed
}
