// Package layout owns the canonical directory topology of a fabric's
// working tree: raw/ for inbound documents, unmanaged/ for externally
// owned configuration, managed/ for reconciled resources. It creates,
// validates and backs up the tree; it never parses document contents.
package layout

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/netfabric/fabsync/pkg/errors"
	"github.com/netfabric/fabsync/pkg/fabrics"
	"github.com/netfabric/fabsync/pkg/resources"
)

const (
	dirPermissions = 0o755

	// RawPending receives files dropped for ingestion.
	RawPending = "raw/pending"
	// RawProcessed archives successfully ingested files.
	RawProcessed = "raw/processed"
	// RawErrors quarantines rejected files with a sibling error report.
	RawErrors = "raw/errors"

	// UnmanagedExternal holds configuration owned by other systems.
	UnmanagedExternal = "unmanaged/external-configs"
	// UnmanagedOverrides holds operator-maintained manual overrides.
	UnmanagedOverrides = "unmanaged/manual-overrides"

	// ManagedRoot is the reconciled resource tree.
	ManagedRoot = "managed"
	// ManagedMetadata holds tree-level bookkeeping files.
	ManagedMetadata = "managed/metadata"
)

// Tree returns every directory of the canonical topology, repository
// relative, in creation order.
func Tree() []string {
	dirs := []string{
		RawPending, RawProcessed, RawErrors,
		UnmanagedExternal, UnmanagedOverrides,
	}
	for _, k := range resources.DefaultKinds() {
		dirs = append(dirs, ManagedRoot+"/"+k.Dir())
	}
	return append(dirs, ManagedMetadata)
}

// roots are the only entries allowed at the tree top level besides
// repository housekeeping files.
var roots = map[string]bool{"raw": true, "unmanaged": true, "managed": true}

// tolerated top-level files that are not part of the topology.
var housekeeping = map[string]bool{".gitignore": true, "README.md": true, "LICENSE": true}

// InitOptions controls Initialize behavior.
type InitOptions struct {
	// Force recreates the tree even when it already exists.
	Force bool
	// Backup copies the existing tree aside before a forced recreate.
	Backup bool
}

// InitResult reports what Initialize did.
type InitResult struct {
	Created    []string `json:"created"`
	Existing   []string `json:"existing"`
	BackupPath string   `json:"backup_path,omitempty"`
}

// DirectoryStatus is one directory's validation snapshot.
type DirectoryStatus struct {
	Path      string `json:"path"`
	Exists    bool   `json:"exists"`
	FileCount int    `json:"file_count"`
}

// Issue is one actionable validation finding.
type Issue struct {
	Path       string `json:"path"`
	Problem    string `json:"problem"`
	Suggestion string `json:"suggestion"`
}

// ValidationResult reports the tree's health without mutating it.
type ValidationResult struct {
	Valid       bool              `json:"valid"`
	Directories []DirectoryStatus `json:"directories"`
	Issues      []Issue           `json:"issues,omitempty"`
}

// Manager creates and inspects one fabric's directory tree.
type Manager struct {
	fabric *fabrics.Fabric
	logger *zerolog.Logger
}

// NewManager returns a Manager for the fabric's working tree.
func NewManager(fabric *fabrics.Fabric, logger *zerolog.Logger) *Manager {
	return &Manager{fabric: fabric, logger: logger}
}

// Initialize creates the canonical topology. Idempotent: existing
// directories are reported, not touched. With Force the prior tree is
// recreated, after an optional timestamped backup. Nothing is written
// when the working tree root is unavailable.
func (m *Manager) Initialize(opts InitOptions) (*InitResult, error) {
	root := m.fabric.WorkDir
	if root == "" {
		return nil, errors.NewValidationError("work_dir", nil, "fabric has no working tree")
	}
	if _, err := os.Stat(root); err != nil {
		return nil, errors.WrapIO("stat", root, err)
	}

	result := &InitResult{}

	if opts.Force {
		if opts.Backup {
			backup, err := m.backupTree()
			if err != nil {
				return nil, err
			}
			result.BackupPath = backup
		}
		for name := range roots {
			if err := os.RemoveAll(filepath.Join(root, name)); err != nil {
				return nil, errors.WrapIO("remove", name, err)
			}
		}
	}

	for _, rel := range Tree() {
		abs := m.fabric.TreePath(rel)
		if _, err := os.Stat(abs); err == nil {
			result.Existing = append(result.Existing, rel)
			continue
		}
		if err := os.MkdirAll(abs, dirPermissions); err != nil {
			// Report what was created before the failure; partial
			// creation must not pass for success.
			return result, errors.WrapIO("create", rel, err)
		}
		result.Created = append(result.Created, rel)
	}

	m.logger.Info().
		Str("fabric", m.fabric.ID).
		Int("created", len(result.Created)).
		Int("existing", len(result.Existing)).
		Msg("directory tree initialized")
	return result, nil
}

// Validate inspects the tree read-only: per-directory existence and
// file counts, missing-directory issues with remediation suggestions,
// and stray files outside the expected topology.
func (m *Manager) Validate() (*ValidationResult, error) {
	root := m.fabric.WorkDir
	if _, err := os.Stat(root); err != nil {
		return nil, errors.WrapIO("stat", root, err)
	}

	result := &ValidationResult{Valid: true}

	for _, rel := range Tree() {
		status := DirectoryStatus{Path: rel}
		abs := m.fabric.TreePath(rel)
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			status.Exists = true
			status.FileCount = countFiles(abs)
		} else {
			result.Issues = append(result.Issues, Issue{
				Path:       rel,
				Problem:    "directory missing",
				Suggestion: fmt.Sprintf("run initialize to create %s", rel),
			})
		}
		result.Directories = append(result.Directories, status)
	}

	strays, err := m.findStrays()
	if err != nil {
		return nil, err
	}
	for _, s := range strays {
		result.Issues = append(result.Issues, Issue{
			Path:       s,
			Problem:    "file outside expected topology",
			Suggestion: "move into raw/pending for ingestion, or under unmanaged/",
		})
	}

	result.Valid = len(result.Issues) == 0
	return result, nil
}

// backupTree copies raw/, unmanaged/ and managed/ into a timestamped
// sibling directory before a forced recreate.
func (m *Manager) backupTree() (string, error) {
	stamp := time.Now().UTC().Format("20060102T150405Z")
	backup := m.fabric.WorkDir + ".backup-" + stamp
	if err := os.MkdirAll(backup, dirPermissions); err != nil {
		return "", errors.WrapIO("create", backup, err)
	}
	for name := range roots {
		src := filepath.Join(m.fabric.WorkDir, name)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := copyTree(src, filepath.Join(backup, name)); err != nil {
			return "", err
		}
	}
	m.logger.Info().Str("fabric", m.fabric.ID).Str("backup", backup).Msg("tree backed up")
	return backup, nil
}

// findStrays walks the tree root and reports files that sit outside
// raw/, unmanaged/ and managed/ or loose at the top level.
func (m *Manager) findStrays() ([]string, error) {
	entries, err := os.ReadDir(m.fabric.WorkDir)
	if err != nil {
		return nil, errors.WrapIO("read", m.fabric.WorkDir, err)
	}

	var strays []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || housekeeping[name] {
			continue
		}
		if e.IsDir() {
			if !roots[name] {
				strays = append(strays, name+"/")
			}
			continue
		}
		strays = append(strays, name)
	}
	sort.Strings(strays)
	return strays, nil
}

func countFiles(dir string) int {
	count := 0
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			count++
		}
		return nil
	})
	return count
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.WrapIO("walk", path, err)
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return errors.WrapIO("resolve", path, err)
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, dirPermissions)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.WrapIO("read", path, err)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return errors.WrapIO("write", target, err)
		}
		return nil
	})
}
