// Package git provides go-git/v5 adapters: the workspace repository and the
// bare mirror cache used for remote discovery.
package git

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/MyCarrier-DevOps/pcb-deps/internal/domain"
)

// Logger defines the logging interface for the git adapters.
// This interface enables dependency injection and testability.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]any)
	Warn(ctx context.Context, msg string, fields map[string]any)
}

// GoGitRepository implements domain.WorkspaceRepository using go-git/v5.
// Calls are serialized because go-git repositories are not safe for
// concurrent use.
type GoGitRepository struct {
	mu     sync.Mutex
	repo   *git.Repository
	root   string
	logger Logger
}

// NewGoGitRepository opens the repository containing path, searching parent
// directories for the .git directory.
// Returns domain.ErrRepositoryNotFound if there is none.
func NewGoGitRepository(path string, log Logger) (*GoGitRepository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRepositoryNotFound, path)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("%w: %s has no working tree: %w", domain.ErrRepositoryNotFound, path, err)
	}

	return &GoGitRepository{
		repo:   repo,
		root:   wt.Filesystem.Root(),
		logger: log,
	}, nil
}

// OpenWorkspaceRepository is a domain.RepositoryOpener over NewGoGitRepository.
func OpenWorkspaceRepository(log Logger) domain.RepositoryOpener {
	return func(path string) (domain.WorkspaceRepository, error) {
		return NewGoGitRepository(path, log)
	}
}

// Root returns the root of the working tree.
func (r *GoGitRepository) Root() string {
	return r.root
}

// OriginRepository returns host/owner/repo parsed from the origin remote.
// Returns domain.ErrNoRemoteOrigin if no origin remote is configured.
func (r *GoGitRepository) OriginRepository(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	remote, err := r.repo.Remote("origin")
	if err != nil {
		return "", fmt.Errorf("%w: failed to get origin remote: %w", domain.ErrNoRemoteOrigin, err)
	}

	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", fmt.Errorf("%w: origin remote has no URLs configured", domain.ErrNoRemoteOrigin)
	}

	repoName, err := parseRepoFromURL(urls[0])
	if err != nil {
		return "", fmt.Errorf("%w: failed to parse URL: %w", domain.ErrInvalidRemoteURL, err)
	}

	r.logger.Debug(ctx, "resolved origin repository", map[string]any{
		"url":        urls[0],
		"repository": repoName,
	})
	return repoName, nil
}

// ListTags returns every tag name, sorted.
func (r *GoGitRepository) ListTags(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tags, err := listTags(r.repo)
	if err != nil {
		return nil, err
	}

	r.logger.Debug(ctx, "listed workspace tags", map[string]any{
		"path":  r.root,
		"count": len(tags),
	})
	return tags, nil
}

// TagAnnotation returns the message of an annotated tag, or "" for a
// lightweight tag. Returns domain.ErrTagNotFound for unknown tags.
func (r *GoGitRepository) TagAnnotation(_ context.Context, tag string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return tagAnnotation(r.repo, tag)
}

// UncommittedPaths returns paths that differ from HEAD in the index or the
// working tree, including untracked files. Ignored files are not reported.
func (r *GoGitRepository) UncommittedPaths(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree status: %w", err)
	}

	var paths []string
	for path, st := range status {
		if st.Staging == git.Unmodified && st.Worktree == git.Unmodified {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)

	r.logger.Debug(ctx, "computed worktree status", map[string]any{
		"path":        r.root,
		"uncommitted": len(paths),
	})
	return paths, nil
}

// Close releases any resources held by the repository.
// For go-git, this is a no-op as the repository doesn't hold persistent resources.
func (r *GoGitRepository) Close() error {
	return nil
}

func listTags(repo *git.Repository) ([]string, error) {
	iter, err := repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer iter.Close()

	var tags []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		tags = append(tags, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate tags: %w", err)
	}
	sort.Strings(tags)
	return tags, nil
}

func tagAnnotation(repo *git.Repository, tag string) (string, error) {
	ref, err := repo.Tag(tag)
	if err != nil {
		if errors.Is(err, git.ErrTagNotFound) {
			return "", fmt.Errorf("%w: %s", domain.ErrTagNotFound, tag)
		}
		return "", fmt.Errorf("failed to resolve tag %s: %w", tag, err)
	}

	obj, err := repo.TagObject(ref.Hash())
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			// Lightweight tag.
			return "", nil
		}
		return "", fmt.Errorf("failed to read tag object %s: %w", tag, err)
	}
	return obj.Message, nil
}

// Ensure GoGitRepository implements domain.WorkspaceRepository.
var _ domain.WorkspaceRepository = (*GoGitRepository)(nil)
