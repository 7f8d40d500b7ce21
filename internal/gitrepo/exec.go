package gitrepo

import (
	"context"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/netfabric/fabsync/pkg/errors"
	"github.com/netfabric/fabsync/pkg/fabrics"
)

const dirPermissions = 0o755

// execClient shells out to the git binary. One instance per fabric;
// callers serialize access through the orchestrator's per-fabric lock.
type execClient struct {
	fabric *fabrics.Fabric
	logger *zerolog.Logger
}

// NewExecClient returns a Client backed by the git binary, operating on
// the fabric's working tree.
func NewExecClient(fabric *fabrics.Fabric, logger *zerolog.Logger) Client {
	return &execClient{fabric: fabric, logger: logger}
}

func (c *execClient) Root() string {
	return c.fabric.WorkDir
}

func (c *execClient) Ensure(ctx context.Context) error {
	if c.exists() {
		return c.refresh(ctx)
	}
	return c.clone(ctx)
}

func (c *execClient) Head(ctx context.Context) (string, error) {
	out, err := c.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (c *execClient) Stage(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	// -A stages deletions of the named paths too.
	args := append([]string{"add", "-A", "--"}, paths...)
	_, err := c.git(ctx, args...)
	return err
}

func (c *execClient) Commit(ctx context.Context, message string) (string, error) {
	staged, err := c.git(ctx, "diff", "--cached", "--name-only")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(staged) == "" {
		return c.Head(ctx)
	}
	if _, err := c.git(ctx, "commit", "-m", message); err != nil {
		return "", err
	}
	return c.Head(ctx)
}

func (c *execClient) Push(ctx context.Context) error {
	_, err := c.git(ctx, "push", c.remoteURL(), "HEAD:"+c.fabric.Branch())
	return err
}

func (c *execClient) exists() bool {
	_, err := os.Stat(filepath.Join(c.fabric.WorkDir, ".git"))
	return err == nil
}

func (c *execClient) clone(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(c.fabric.WorkDir), dirPermissions); err != nil {
		return errors.WrapIO("create", "working tree parent", err)
	}
	cmd := exec.CommandContext(ctx, "git", "clone", "--branch", c.fabric.Branch(), c.remoteURL(), c.fabric.WorkDir) //nolint:gosec // arguments come from fabric config
	output, err := cmd.CombinedOutput()
	if err != nil {
		return errors.NewRepositoryError("clone", redact(c.fabric.RepoURL), redact(string(output)), err)
	}
	c.logger.Debug().Str("fabric", c.fabric.ID).Str("branch", c.fabric.Branch()).Msg("repository cloned")
	return nil
}

// refresh discards local state and fast-forwards to the remote branch.
// The working tree is owned by the sync engine, so local changes are
// leftovers from an interrupted run.
func (c *execClient) refresh(ctx context.Context) error {
	if _, err := c.git(ctx, "reset", "--hard", "HEAD"); err != nil {
		return err
	}
	if _, err := c.git(ctx, "fetch", c.remoteURL(), c.fabric.Branch()); err != nil {
		return err
	}
	if _, err := c.git(ctx, "reset", "--hard", "FETCH_HEAD"); err != nil {
		return err
	}
	if _, err := c.git(ctx, "clean", "-fd"); err != nil {
		return err
	}
	c.logger.Debug().Str("fabric", c.fabric.ID).Msg("repository refreshed")
	return nil
}

func (c *execClient) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.fabric.WorkDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", errors.NewRepositoryError("git "+args[0], redact(c.fabric.RepoURL), redact(string(output)), err)
	}
	return string(output), nil
}

// remoteURL injects the fabric's token into the clone URL so push and
// fetch authenticate without a credential helper.
func (c *execClient) remoteURL() string {
	if c.fabric.RepoToken == "" {
		return c.fabric.RepoURL
	}
	u, err := url.Parse(c.fabric.RepoURL)
	if err != nil || u.Scheme == "" {
		return c.fabric.RepoURL
	}
	u.User = url.UserPassword("token", c.fabric.RepoToken)
	return u.String()
}

// redact strips userinfo from anything URL-shaped so tokens never reach
// logs or error chains.
func redact(s string) string {
	for _, scheme := range []string{"https://", "http://"} {
		var b strings.Builder
		for {
			start := strings.Index(s, scheme)
			if start < 0 {
				break
			}
			prefix := start + len(scheme)
			b.WriteString(s[:prefix])
			rest := s[prefix:]
			at := strings.IndexByte(rest, '@')
			end := strings.IndexAny(rest, " \n\t'\"")
			if at >= 0 && (end < 0 || at < end) {
				b.WriteString("***")
				rest = rest[at:]
			}
			s = rest
		}
		b.WriteString(s)
		s = b.String()
	}
	return s
}
