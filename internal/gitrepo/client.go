// Package gitrepo manages the local working tree of a fabric's
// configuration repository. All git access goes through the Client
// interface so the orchestrator and ingestion pipeline never shell out
// directly, and tests can substitute the in-memory implementation.
package gitrepo

import (
	"context"
)

// Client is the repository access layer for one fabric.
type Client interface {
	// Ensure makes the working tree available and current: clone on
	// first use, otherwise reset and pull.
	Ensure(ctx context.Context) error

	// Root returns the absolute path of the working tree.
	Root() string

	// Head returns the commit hash the working tree is at.
	Head(ctx context.Context) (string, error)

	// Stage adds paths (relative to the root) to the index. Deleted
	// paths are staged as removals.
	Stage(ctx context.Context, paths ...string) error

	// Commit records staged changes and returns the new commit hash.
	// A clean index returns the current head and no error.
	Commit(ctx context.Context, message string) (string, error)

	// Push publishes local commits to the remote branch.
	Push(ctx context.Context) error
}
