// Package fabrics defines the Fabric type: a named boundary binding one
// version-control repository, one cluster context, one directory tree
// and one set of tracked resources.
package fabrics

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/netfabric/fabsync/pkg/errors"
)

// Fabric scopes one managed environment. Every orchestrator and manager
// call takes the fabric explicitly; there is no ambient "current fabric".
type Fabric struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`

	// Repository endpoint for the GitOps tree.
	RepoURL    string `json:"repo_url" yaml:"repo_url"`
	RepoBranch string `json:"repo_branch,omitempty" yaml:"repo_branch,omitempty"`

	// RepoToken authenticates against the version-control host. Injected
	// into the clone URL, never logged.
	RepoToken string `json:"-" yaml:"-"`

	// Cluster API endpoint.
	ClusterURL   string `json:"cluster_url" yaml:"cluster_url"`
	ClusterToken string `json:"-" yaml:"-"`

	// WorkDir is where the fabric's working tree clone lives. Exclusive
	// to one sync operation at a time.
	WorkDir string `json:"work_dir,omitempty" yaml:"work_dir,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// Validate checks the fields every component depends on.
func (f *Fabric) Validate() error {
	if f.ID == "" {
		return errors.NewValidationError("id", nil, "required field missing")
	}
	if strings.ContainsAny(f.ID, "/\\ ") {
		return errors.NewValidationError("id", f.ID, "must not contain path separators or spaces")
	}
	if f.RepoURL == "" {
		return errors.NewValidationError("repo_url", nil, "required field missing")
	}
	if f.ClusterURL == "" {
		return errors.NewValidationError("cluster_url", nil, "required field missing")
	}
	return nil
}

// Branch returns the configured branch or the default "main".
func (f *Fabric) Branch() string {
	if f.RepoBranch == "" {
		return "main"
	}
	return f.RepoBranch
}

// TreePath resolves a repository-relative path inside the fabric's
// working tree.
func (f *Fabric) TreePath(rel string) string {
	return filepath.Join(f.WorkDir, filepath.FromSlash(rel))
}
