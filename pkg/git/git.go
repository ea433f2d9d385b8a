package git

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
)

type GitRepo struct {
	path      string
	url       string
	reference string
	memory    bool
	repo      *git.Repository
}

// NewGitRepo prepares an empty (or missing) local folder to clone into. With
// memory the git objects are not written to disk, only the worktree.
func NewGitRepo(local string, memory bool) (*GitRepo, error) {
	if err := os.MkdirAll(local, 0755); err != nil {
		return nil, err
	}
	f, err := os.Open(local)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err = f.Readdirnames(1); err != io.EOF {
		if err == nil {
			err = fmt.Errorf("folder '%s' is not empty", local)
		}
		return nil, err
	}
	g := GitRepo{
		path:   local,
		memory: memory,
	}
	return &g, nil
}

// Open loads the git repository containing path
func Open(path string) (*GitRepo, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, err
	}
	g := GitRepo{
		path: path,
		repo: repo,
	}
	if remote, err := repo.Remote(git.DefaultRemoteName); err == nil && len(remote.Config().URLs) > 0 {
		g.url = remote.Config().URLs[0]
	}
	if head, err := repo.Head(); err == nil {
		g.reference = head.Name().String()
	}
	return &g, nil
}

func reference(reference string) (plumbing.ReferenceName, error) {
	if reference == "" {
		return "", nil
	}
	ref := plumbing.ReferenceName(reference)
	if !strings.HasPrefix(reference, "refs/") {
		ref = plumbing.NewBranchReferenceName(reference)
	}
	if !ref.IsBranch() && !ref.IsTag() {
		return "", fmt.Errorf("invalid git reference: %s", reference)
	}
	return ref, nil
}

// Clone clones remote at the branch or tag reference ("" for the remote
// HEAD). A short reference is taken as a branch name.
func (g *GitRepo) Clone(ctx context.Context, remote, ref string, recursive bool) error {
	name, err := reference(ref)
	if err != nil {
		return err
	}
	options := git.CloneOptions{
		URL:  remote,
		Tags: git.AllTags,
	}
	if recursive {
		options.RecurseSubmodules = git.DefaultSubmoduleRecursionDepth
	}
	if name != "" {
		options.ReferenceName = name
		options.SingleBranch = name.IsBranch()
	}
	var repo *git.Repository
	if g.memory {
		// objects in memory, worktree on disk
		storer := memory.NewStorage()
		fs := osfs.New(g.path)
		repo, err = git.CloneContext(ctx, storer, fs, &options)
	} else {
		repo, err = git.PlainCloneContext(ctx, g.path, false, &options)
	}
	if err != nil {
		return err
	}
	g.url = remote
	g.reference = name.String()
	g.repo = repo
	return nil
}

func (g *GitRepo) Path() string {
	return g.path
}

func (g *GitRepo) URL() string {
	return g.url
}

// Revision returns the short reference name and the commit of HEAD
func (g *GitRepo) Revision() (string, string, error) {
	if g.repo == nil {
		return "", "", fmt.Errorf("repository not cloned")
	}
	head, err := g.repo.Head()
	if err != nil {
		return "", "", err
	}
	return head.Name().Short(), head.Hash().String(), nil
}

// Delete removes the local folder
func (g *GitRepo) Delete() error {
	g.repo = nil
	return os.RemoveAll(g.path)
}
