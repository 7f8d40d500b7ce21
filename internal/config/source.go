package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/netfabric/fabsync/internal/registry"
	"github.com/netfabric/fabsync/pkg/fabrics"
)

// Source resolves fabrics from the registry and overlays their
// credentials from the environment. The registry never sees tokens;
// this is the only place they are attached.
type Source struct {
	reg registry.Registry
	cfg *Config
}

// NewSource creates a fabric source over a registry.
func NewSource(reg registry.Registry, cfg *Config) *Source {
	return &Source{reg: reg, cfg: cfg}
}

// Seed saves every fabric declared in the configuration into the
// registry, assigning a working directory under the data dir when none
// is declared. Existing registry rows are overwritten by declaration.
func (s *Source) Seed(ctx context.Context) error {
	for _, fc := range s.cfg.Fabrics {
		fabric := &fabrics.Fabric{
			ID:         fc.ID,
			Name:       fc.Name,
			RepoURL:    fc.RepoURL,
			RepoBranch: fc.RepoBranch,
			ClusterURL: fc.ClusterURL,
			WorkDir:    fc.WorkDir,
		}
		if fabric.WorkDir == "" {
			fabric.WorkDir = filepath.Join(s.cfg.DataDir, fabric.ID)
		}
		if err := fabric.Validate(); err != nil {
			return err
		}
		if err := s.reg.SaveFabric(ctx, fabric); err != nil {
			return err
		}
	}
	return nil
}

// Fabric returns the fabric with credentials overlaid and a working
// directory guaranteed.
func (s *Source) Fabric(ctx context.Context, id string) (*fabrics.Fabric, error) {
	fabric, err := s.reg.GetFabric(ctx, id)
	if err != nil {
		return nil, err
	}
	if fabric.WorkDir == "" {
		fabric.WorkDir = filepath.Join(s.cfg.DataDir, fabric.ID)
	}

	decl := s.declaration(id)
	fabric.RepoToken = tokenFor(decl.RepoTokenEnv, id, "REPO_TOKEN")
	fabric.ClusterToken = tokenFor(decl.ClusterTokenEnv, id, "CLUSTER_TOKEN")
	return fabric, nil
}

// declaration finds the config-file entry for a fabric, if any.
func (s *Source) declaration(id string) FabricConfig {
	for _, fc := range s.cfg.Fabrics {
		if fc.ID == id {
			return fc
		}
	}
	return FabricConfig{}
}

// tokenFor reads a token from its declared env var, falling back to
// the conventional FABSYNC_<ID>_<SUFFIX> name.
func tokenFor(declared, fabricID, suffix string) string {
	if declared != "" {
		return os.Getenv(declared)
	}
	name := "FABSYNC_" + strings.ToUpper(strings.ReplaceAll(fabricID, "-", "_")) + "_" + suffix
	return os.Getenv(name)
}
