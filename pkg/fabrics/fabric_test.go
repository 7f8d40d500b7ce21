package fabrics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/netfabric/fabsync/pkg/errors"
)

func TestFabricValidate(t *testing.T) {
	tests := []struct {
		name   string
		fabric Fabric
		valid  bool
	}{
		{
			name: "complete fabric",
			fabric: Fabric{
				ID:         "f1",
				RepoURL:    "https://git.example.com/fabrics.git",
				ClusterURL: "https://cluster.example.com",
			},
			valid: true,
		},
		{
			name:   "missing id",
			fabric: Fabric{RepoURL: "https://git.example.com/f.git", ClusterURL: "https://c"},
			valid:  false,
		},
		{
			name: "id with path separator",
			fabric: Fabric{
				ID: "a/b", RepoURL: "https://git.example.com/f.git", ClusterURL: "https://c",
			},
			valid: false,
		},
		{
			name:   "missing repo url",
			fabric: Fabric{ID: "f1", ClusterURL: "https://c"},
			valid:  false,
		},
		{
			name:   "missing cluster url",
			fabric: Fabric{ID: "f1", RepoURL: "https://git.example.com/f.git"},
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fabric.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, errors.ErrInvalidInput)
			}
		})
	}
}

func TestBranchDefault(t *testing.T) {
	f := Fabric{}
	assert.Equal(t, "main", f.Branch())

	f.RepoBranch = "release"
	assert.Equal(t, "release", f.Branch())
}

func TestTreePath(t *testing.T) {
	f := Fabric{WorkDir: "/var/lib/fabsync/f1"}
	assert.Equal(t, "/var/lib/fabsync/f1/managed/vpcs/prod.yaml", f.TreePath("managed/vpcs/prod.yaml"))
}
