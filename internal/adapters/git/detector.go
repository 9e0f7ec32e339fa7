// Package git records which branch and commit a focus session ran on.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/xvierd/stepflow/internal/ports"
)

// detachedBranch is reported when HEAD does not point at a branch.
const detachedBranch = "HEAD detached"

// ErrNoRepository is returned when no repository encloses the directory.
var ErrNoRepository = errors.New("not inside a git repository")

// Detector implements ports.GitDetector using go-git.
type Detector struct{}

// NewDetector creates a new git detector.
func NewDetector() *Detector {
	return &Detector{}
}

var _ ports.GitDetector = (*Detector)(nil)

// Detect opens the repository enclosing workingDir, searching parent
// directories, and reports its branch and short commit hash. An empty
// workingDir means the current directory.
func (d *Detector) Detect(ctx context.Context, workingDir string) (*ports.GitInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if workingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		workingDir = wd
	}

	repo, err := git.PlainOpenWithOptions(workingDir, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, ErrNoRepository
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			// Fresh repository without commits.
			return &ports.GitInfo{}, nil
		}
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}

	branch := detachedBranch
	if head.Name().IsBranch() {
		branch = head.Name().Short()
	}
	return &ports.GitInfo{
		Branch: branch,
		Commit: ShortHash(head.Hash().String()),
	}, nil
}

// ShortHash returns the seven character form of a commit hash.
func ShortHash(commit string) string {
	if len(commit) > 7 {
		return commit[:7]
	}
	return commit
}
