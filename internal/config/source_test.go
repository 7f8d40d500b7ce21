package config

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfabric/fabsync/internal/registry"
	"github.com/netfabric/fabsync/pkg/errors"
)

func testConfig(dataDir string) *Config {
	return &Config{
		DataDir: dataDir,
		Fabrics: []FabricConfig{
			{
				ID:           "dc-east",
				Name:         "east datacenter",
				RepoURL:      "https://git.example.com/net/dc-east.git",
				ClusterURL:   "https://east.example.com",
				RepoTokenEnv: "DC_EAST_GIT_TOKEN",
			},
			{
				ID:         "dc-west",
				RepoURL:    "https://git.example.com/net/dc-west.git",
				ClusterURL: "https://west.example.com",
				WorkDir:    filepath.Join(dataDir, "custom-west"),
			},
		},
	}
}

func TestSeedRegistersDeclaredFabrics(t *testing.T) {
	reg := registry.NewMemory()
	src := NewSource(reg, testConfig(t.TempDir()))

	require.NoError(t, src.Seed(context.Background()))

	list, err := reg.ListFabrics(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestFabricOverlaysCredentials(t *testing.T) {
	dataDir := t.TempDir()
	reg := registry.NewMemory()
	src := NewSource(reg, testConfig(dataDir))
	require.NoError(t, src.Seed(context.Background()))

	t.Setenv("DC_EAST_GIT_TOKEN", "tok-repo")
	t.Setenv("FABSYNC_DC_EAST_CLUSTER_TOKEN", "tok-cluster")

	fabric, err := src.Fabric(context.Background(), "dc-east")
	require.NoError(t, err)
	assert.Equal(t, "tok-repo", fabric.RepoToken)
	assert.Equal(t, "tok-cluster", fabric.ClusterToken)
	assert.Equal(t, filepath.Join(dataDir, "dc-east"), fabric.WorkDir)

	// The registry row itself never carries tokens.
	row, err := reg.GetFabric(context.Background(), "dc-east")
	require.NoError(t, err)
	assert.Empty(t, row.RepoToken)
	assert.Empty(t, row.ClusterToken)
}

func TestFabricDeclaredWorkDirWins(t *testing.T) {
	dataDir := t.TempDir()
	reg := registry.NewMemory()
	src := NewSource(reg, testConfig(dataDir))
	require.NoError(t, src.Seed(context.Background()))

	fabric, err := src.Fabric(context.Background(), "dc-west")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dataDir, "custom-west"), fabric.WorkDir)
}

func TestFabricUnknown(t *testing.T) {
	src := NewSource(registry.NewMemory(), testConfig(t.TempDir()))
	_, err := src.Fabric(context.Background(), "nope")
	assert.True(t, errors.IsNotFound(err))
}

func TestSeedRejectsInvalidDeclaration(t *testing.T) {
	cfg := &Config{
		DataDir: t.TempDir(),
		Fabrics: []FabricConfig{{ID: "broken"}},
	}
	src := NewSource(registry.NewMemory(), cfg)
	assert.Error(t, src.Seed(context.Background()))
}
