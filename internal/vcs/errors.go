package vcs

import (
	"errors"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	platformerrors "github.com/jmgilman/go/errors"
)

// wrapError classifies err and wraps it with message. The original error
// stays in the chain for errors.Is.
func wrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return platformerrors.Wrap(err, classify(err), message)
}

// classify maps go-git and git CLI failures to error codes.
func classify(err error) platformerrors.ErrorCode {
	switch {
	case errors.Is(err, gogit.ErrRepositoryNotExists):
		return platformerrors.CodeNotFound
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		return platformerrors.CodeNotFound
	case errors.Is(err, plumbing.ErrObjectNotFound):
		return platformerrors.CodeNotFound
	}

	// git CLI reports through stderr text only.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "not a git repository"):
		return platformerrors.CodeNotFound
	case strings.Contains(msg, "unknown revision"),
		strings.Contains(msg, "bad revision"),
		strings.Contains(msg, "bad object"):
		return platformerrors.CodeNotFound
	case strings.Contains(msg, "ambiguous argument"):
		return platformerrors.CodeInvalidInput
	}
	return platformerrors.CodeExecutionFailed
}
