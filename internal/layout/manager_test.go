package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfabric/fabsync/pkg/fabrics"
	"github.com/netfabric/fabsync/pkg/logging"
)

func testFabric(t *testing.T) *fabrics.Fabric {
	t.Helper()
	return &fabrics.Fabric{
		ID:         "fab-1",
		RepoURL:    "https://git.example.com/net/fabric-config.git",
		ClusterURL: "https://cluster.example.com",
		WorkDir:    t.TempDir(),
	}
}

func TestInitializeCreatesTopology(t *testing.T) {
	f := testFabric(t)
	m := NewManager(f, &logging.Nop)

	result, err := m.Initialize(InitOptions{})
	require.NoError(t, err)
	assert.Len(t, result.Created, len(Tree()))
	assert.Empty(t, result.Existing)
	assert.Empty(t, result.BackupPath)

	for _, rel := range []string{
		"raw/pending", "raw/processed", "raw/errors",
		"unmanaged/external-configs", "unmanaged/manual-overrides",
		"managed/vpcs", "managed/subnets", "managed/firewallrules",
		"managed/routetables", "managed/gateways", "managed/metadata",
	} {
		info, err := os.Stat(f.TreePath(rel))
		require.NoError(t, err, rel)
		assert.True(t, info.IsDir(), rel)
	}
}

func TestInitializeIdempotent(t *testing.T) {
	f := testFabric(t)
	m := NewManager(f, &logging.Nop)

	_, err := m.Initialize(InitOptions{})
	require.NoError(t, err)

	result, err := m.Initialize(InitOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Created)
	assert.Len(t, result.Existing, len(Tree()))
}

func TestInitializeForceWithBackup(t *testing.T) {
	f := testFabric(t)
	m := NewManager(f, &logging.Nop)

	_, err := m.Initialize(InitOptions{})
	require.NoError(t, err)

	keep := f.TreePath("managed/vpcs/prod.yaml")
	require.NoError(t, os.WriteFile(keep, []byte("kind: VPC\nname: prod\n"), 0o644))

	result, err := m.Initialize(InitOptions{Force: true, Backup: true})
	require.NoError(t, err)
	require.NotEmpty(t, result.BackupPath)
	assert.Len(t, result.Created, len(Tree()))

	// Forced recreate wiped the tree; the backup kept the file.
	_, err = os.Stat(keep)
	assert.True(t, os.IsNotExist(err))
	data, err := os.ReadFile(filepath.Join(result.BackupPath, "managed", "vpcs", "prod.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: prod")
}

func TestInitializeFailsWhenRootMissing(t *testing.T) {
	f := testFabric(t)
	f.WorkDir = filepath.Join(f.WorkDir, "does-not-exist")
	m := NewManager(f, &logging.Nop)

	_, err := m.Initialize(InitOptions{})
	require.Error(t, err)
}

func TestValidateHealthyTree(t *testing.T) {
	f := testFabric(t)
	m := NewManager(f, &logging.Nop)

	_, err := m.Initialize(InitOptions{})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(f.TreePath("managed/vpcs/prod.yaml"), []byte("x"), 0o644))

	result, err := m.Validate()
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Issues)

	var vpcs *DirectoryStatus
	for i := range result.Directories {
		if result.Directories[i].Path == "managed/vpcs" {
			vpcs = &result.Directories[i]
		}
	}
	require.NotNil(t, vpcs)
	assert.True(t, vpcs.Exists)
	assert.Equal(t, 1, vpcs.FileCount)
}

func TestValidateReportsMissingAndStray(t *testing.T) {
	f := testFabric(t)
	m := NewManager(f, &logging.Nop)

	_, err := m.Initialize(InitOptions{})
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(f.TreePath("raw/errors")))
	require.NoError(t, os.WriteFile(filepath.Join(f.WorkDir, "stray.yaml"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(f.WorkDir, "scratch"), 0o755))

	result, err := m.Validate()
	require.NoError(t, err)
	assert.False(t, result.Valid)

	problems := map[string]string{}
	for _, issue := range result.Issues {
		problems[issue.Path] = issue.Problem
		assert.NotEmpty(t, issue.Suggestion, issue.Path)
	}
	assert.Equal(t, "directory missing", problems["raw/errors"])
	assert.Equal(t, "file outside expected topology", problems["stray.yaml"])
	assert.Equal(t, "file outside expected topology", problems["scratch/"])
}

func TestValidateNeverMutates(t *testing.T) {
	f := testFabric(t)
	m := NewManager(f, &logging.Nop)

	_, err := m.Validate()
	require.NoError(t, err)

	entries, err := os.ReadDir(f.WorkDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestValidateIgnoresHousekeepingFiles(t *testing.T) {
	f := testFabric(t)
	m := NewManager(f, &logging.Nop)

	_, err := m.Initialize(InitOptions{})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(f.WorkDir, ".gitignore"), []byte("*.tmp\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(f.WorkDir, "README.md"), []byte("# tree\n"), 0o644))

	result, err := m.Validate()
	require.NoError(t, err)
	assert.True(t, result.Valid)
}
