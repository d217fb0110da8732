// Package gitutil inspects the git repository holding the package
// definitions, so every submit can be tied to the exact definition state.
package gitutil

import (
	git "github.com/go-git/go-git/v5"
	"github.com/pkg/errors"
)

// IsClean reports whether the repository at path has no uncommitted changes.
func IsClean(path string) (bool, error) {
	r, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return false, errors.Wrapf(err, "opening repository at %s", path)
	}

	wt, err := r.Worktree()
	if err != nil {
		return false, errors.Wrap(err, "getting worktree")
	}

	status, err := wt.Status()
	if err != nil {
		return false, errors.Wrap(err, "getting worktree status")
	}

	return status.IsClean(), nil
}

// HeadHash returns the commit hash of HEAD.
func HeadHash(path string) (string, error) {
	r, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", errors.Wrapf(err, "opening repository at %s", path)
	}

	head, err := r.Head()
	if err != nil {
		return "", errors.Wrapf(err, "getting HEAD from repository at %s", path)
	}

	return head.Hash().String(), nil
}
