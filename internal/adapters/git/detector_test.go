package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) (string, *git.Repository, plumbing.Hash) {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("focus"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("notes.txt")
	require.NoError(t, err)

	hash, err := wt.Commit("Initial commit", &git.CommitOptions{
		Author: &object.Signature{Name: "Test User", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir, repo, hash
}

func TestDetector_Detect(t *testing.T) {
	dir, _, hash := initRepo(t)

	info, err := NewDetector().Detect(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "master", info.Branch)
	assert.Equal(t, hash.String()[:7], info.Commit)
}

func TestDetector_DetectFromSubdirectory(t *testing.T) {
	dir, _, _ := initRepo(t)
	sub := filepath.Join(dir, "src", "pkg")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	info, err := NewDetector().Detect(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, "master", info.Branch)
}

func TestDetector_DetachedHead(t *testing.T) {
	dir, repo, hash := initRepo(t)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.Checkout(&git.CheckoutOptions{Hash: hash}))

	info, err := NewDetector().Detect(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, detachedBranch, info.Branch)
}

func TestDetector_NoRepository(t *testing.T) {
	_, err := NewDetector().Detect(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrNoRepository)
}

func TestShortHash(t *testing.T) {
	assert.Equal(t, "abc1234", ShortHash("abc1234def5678"))
	assert.Equal(t, "abc", ShortHash("abc"))
}
