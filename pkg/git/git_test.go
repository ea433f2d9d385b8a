package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) (string, string) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "serverless.yml"), []byte("service: template\n"), 0644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("serverless.yml")
	require.NoError(t, err)
	hash, err := wt.Commit("template", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir, hash.String()
}

func TestCloneMemory(t *testing.T) {
	src, hash := initRepo(t)
	dst := filepath.Join(t.TempDir(), "service")
	g, err := NewGitRepo(dst, true)
	require.NoError(t, err)
	require.NoError(t, g.Clone(context.Background(), src, "", false))
	assert.FileExists(t, filepath.Join(dst, "serverless.yml"))
	assert.NoDirExists(t, filepath.Join(dst, ".git"))
	_, commit, err := g.Revision()
	require.NoError(t, err)
	assert.Equal(t, hash, commit)
	assert.Equal(t, src, g.URL())
	require.NoError(t, g.Delete())
	assert.NoDirExists(t, dst)
}

func TestNewGitRepoNotEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file"), []byte("x"), 0644))
	_, err := NewGitRepo(dir, true)
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	src, _ := initRepo(t)
	g, err := Open(src)
	require.NoError(t, err)
	_, commit, err := g.Revision()
	require.NoError(t, err)
	assert.NotEmpty(t, commit)
}

func TestReference(t *testing.T) {
	ref, err := reference("main")
	require.NoError(t, err)
	assert.Equal(t, "refs/heads/main", ref.String())
	ref, err = reference("refs/tags/v1.0.0")
	require.NoError(t, err)
	assert.True(t, ref.IsTag())
	_, err = reference("refs/notes/x")
	assert.Error(t, err)
}
