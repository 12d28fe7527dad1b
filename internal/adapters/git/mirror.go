package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"github.com/MyCarrier-DevOps/pcb-deps/internal/domain"
	"github.com/MyCarrier-DevOps/pcb-deps/internal/infrastructure/filelock"
)

const (
	mirrorsDir = "mirrors"

	// tagRefSpec fetches every tag, moving tags that were re-pointed upstream.
	tagRefSpec = config.RefSpec("+refs/tags/*:refs/tags/*")
)

// MirrorCache implements domain.RemoteRepositories with one bare mirror per
// repository under <cacheDir>/mirrors/<host>/<owner>/<repo>.git.
//
// go-git has no partial clone, so a mirror is a full bare clone carrying
// every tag. Operations on one mirror are serialized by an in-process mutex
// and an flock, the latter guarding against other processes sharing the cache.
type MirrorCache struct {
	dir    string
	logger Logger

	// urls returns the remote URLs to try for a repository, in order.
	urls func(repo string) []string

	sshAuth  transport.AuthMethod
	httpAuth transport.AuthMethod

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// MirrorOption configures a MirrorCache.
type MirrorOption func(*MirrorCache)

// WithURLResolver replaces the HTTPS-then-SSH URL candidates. Used to point
// mirrors at local repositories in tests.
func WithURLResolver(fn func(repo string) []string) MirrorOption {
	return func(c *MirrorCache) {
		c.urls = fn
	}
}

// WithAuth overrides the detected SSH and HTTP credentials.
func WithAuth(sshAuth, httpAuth transport.AuthMethod) MirrorOption {
	return func(c *MirrorCache) {
		c.sshAuth = sshAuth
		c.httpAuth = httpAuth
	}
}

// NewMirrorCache creates a MirrorCache under cacheDir. Credentials are picked
// up from ~/.ssh keys and GITHUB_TOKEN / GITLAB_TOKEN / GIT_TOKEN.
func NewMirrorCache(cacheDir string, log Logger, opts ...MirrorOption) *MirrorCache {
	c := &MirrorCache{
		dir:      filepath.Join(cacheDir, mirrorsDir),
		logger:   log,
		urls:     cloneURLs,
		sshAuth:  trySSHAuth(),
		httpAuth: tryHTTPAuth(),
		locks:    map[string]*sync.Mutex{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MirrorPath returns the bare mirror directory for repo.
func (c *MirrorCache) MirrorPath(repo string) string {
	return filepath.Join(c.dir, filepath.FromSlash(repo)+".git")
}

// FetchTags ensures an up-to-date mirror of repo and returns its tags.
func (c *MirrorCache) FetchTags(ctx context.Context, repo string) ([]string, error) {
	var tags []string
	err := c.withMirror(ctx, repo, true, func(r *git.Repository) error {
		var err error
		tags, err = listTags(r)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tags, nil
}

// Materialize writes the tree of tag, restricted to subPath, into dest.
// The tree is written to a sibling temp directory and renamed into place.
// Symlinks and submodules are skipped. An existing mirror is used as is;
// a missing one is created.
func (c *MirrorCache) Materialize(ctx context.Context, repo, tag, subPath, dest string) error {
	return c.withMirror(ctx, repo, false, func(r *git.Repository) error {
		tree, err := tagTree(r, tag)
		if err != nil {
			return err
		}
		if sub := strings.Trim(subPath, "/"); sub != "" {
			tree, err = tree.Tree(sub)
			if err != nil {
				return fmt.Errorf("%s has no directory %q at %s: %w", repo, sub, tag, err)
			}
		}
		return writeTree(tree, dest)
	})
}

// withMirror runs fn on the mirror of repo while holding its locks. With
// refresh set, an existing mirror fetches tag updates first.
func (c *MirrorCache) withMirror(ctx context.Context, repo string, refresh bool, fn func(*git.Repository) error) error {
	mu := c.repoLock(repo)
	mu.Lock()
	defer mu.Unlock()

	path := c.MirrorPath(repo)
	lock, err := filelock.Acquire(path + ".lock")
	if err != nil {
		return fmt.Errorf("failed to lock mirror of %s: %w", repo, err)
	}
	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil {
			c.logger.Warn(ctx, "failed to release mirror lock", map[string]any{
				"repository": repo,
				"error":      releaseErr.Error(),
			})
		}
	}()

	r, err := git.PlainOpen(path)
	switch {
	case err == nil:
		if refresh {
			c.fetch(ctx, repo, r)
		}
	case errors.Is(err, git.ErrRepositoryNotExists):
		r, err = c.clone(ctx, repo, path)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("failed to open mirror %s: %w", path, err)
	}

	return fn(r)
}

func (c *MirrorCache) repoLock(repo string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	mu, ok := c.locks[repo]
	if !ok {
		mu = &sync.Mutex{}
		c.locks[repo] = mu
	}
	return mu
}

// clone creates the bare mirror, trying each candidate URL in turn.
func (c *MirrorCache) clone(ctx context.Context, repo, path string) (*git.Repository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create mirror directory: %w", err)
	}

	var lastErr error
	for _, url := range c.urls(repo) {
		r, err := git.PlainCloneContext(ctx, path, true, &git.CloneOptions{
			URL:  url,
			Auth: c.authFor(url),
			Tags: git.AllTags,
		})
		if err == nil {
			c.logger.Debug(ctx, "cloned mirror", map[string]any{
				"repository": repo,
				"url":        url,
				"path":       path,
			})
			return r, nil
		}

		lastErr = err
		// Clean up failed attempt (best-effort)
		_ = os.RemoveAll(path)
		c.logger.Warn(ctx, "failed to clone repository", map[string]any{
			"repository": repo,
			"url":        url,
			"error":      err.Error(),
		})
		if ctx.Err() != nil {
			break
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no clone URLs")
	}
	return nil, fmt.Errorf("%w: %s: %w", domain.ErrDiscoveryUnavailable, repo, lastErr)
}

// fetch updates the tags of an existing mirror. Failures are logged and the
// mirror is used as it is.
func (c *MirrorCache) fetch(ctx context.Context, repo string, r *git.Repository) {
	var url string
	if remote, err := r.Remote(git.DefaultRemoteName); err == nil && len(remote.Config().URLs) > 0 {
		url = remote.Config().URLs[0]
	}

	err := r.FetchContext(ctx, &git.FetchOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs:   []config.RefSpec{tagRefSpec},
		Auth:       c.authFor(url),
		Tags:       git.AllTags,
		Force:      true,
	})

	// ErrAlreadyUpToDate is not a real error
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		c.logger.Warn(ctx, "failed to fetch mirror; using cached tags", map[string]any{
			"repository": repo,
			"url":        url,
			"error":      err.Error(),
		})
	}
}

func (c *MirrorCache) authFor(url string) transport.AuthMethod {
	switch {
	case isHTTPURL(url):
		return c.httpAuth
	case isSSHURL(url):
		return c.sshAuth
	default:
		return nil
	}
}

// tagTree returns the root tree of the commit tag points to, dereferencing
// annotated tags.
func tagTree(r *git.Repository, tag string) (*object.Tree, error) {
	ref, err := r.Reference(plumbing.NewTagReferenceName(tag), true)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrTagNotFound, tag, err)
	}

	var commit *object.Commit
	if tagObj, err := r.TagObject(ref.Hash()); err == nil {
		commit, err = tagObj.Commit()
		if err != nil {
			return nil, fmt.Errorf("tag %s does not point to a commit: %w", tag, err)
		}
	} else {
		commit, err = r.CommitObject(ref.Hash())
		if err != nil {
			return nil, fmt.Errorf("failed to read commit for tag %s: %w", tag, err)
		}
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to read tree for tag %s: %w", tag, err)
	}
	return tree, nil
}

func writeTree(tree *object.Tree, dest string) error {
	parent := filepath.Dir(dest)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", parent, err)
	}
	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	err = tree.Files().ForEach(func(f *object.File) error {
		if f.Mode == filemode.Symlink || f.Mode == filemode.Submodule {
			return nil
		}
		mode, err := f.Mode.ToOSFileMode()
		if err != nil {
			return err
		}
		target := filepath.Join(tmp, filepath.FromSlash(f.Name))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		contents, err := f.Contents()
		if err != nil {
			return err
		}
		return os.WriteFile(target, []byte(contents), mode.Perm())
	})
	if err != nil {
		return fmt.Errorf("failed to write tree: %w", err)
	}

	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("failed to replace %s: %w", dest, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("failed to move tree into %s: %w", dest, err)
	}
	return nil
}

// trySSHAuth loads the first usable private key from ~/.ssh.
func trySSHAuth() transport.AuthMethod {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil
	}

	keyPaths := []string{
		filepath.Join(homeDir, ".ssh", "id_ed25519"),
		filepath.Join(homeDir, ".ssh", "id_rsa"),
		filepath.Join(homeDir, ".ssh", "id_ecdsa"),
	}

	for _, keyPath := range keyPaths {
		if _, err := os.Stat(keyPath); err == nil {
			auth, err := ssh.NewPublicKeysFromFile("git", keyPath, "")
			if err == nil {
				return auth
			}
		}
	}

	return nil
}

// tryHTTPAuth builds basic auth from a forge token in the environment.
func tryHTTPAuth() transport.AuthMethod {
	tokens := []struct {
		env      string
		username string
	}{
		{env: "GITHUB_TOKEN", username: "x-access-token"},
		{env: "GITLAB_TOKEN", username: "gitlab-ci-token"},
		{env: "GIT_TOKEN", username: "git"},
	}
	for _, t := range tokens {
		if token := os.Getenv(t.env); token != "" {
			return &http.BasicAuth{Username: t.username, Password: token}
		}
	}
	return nil
}

// Ensure MirrorCache implements domain.RemoteRepositories.
var _ domain.RemoteRepositories = (*MirrorCache)(nil)
