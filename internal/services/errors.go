// Package services holds the application logic that sits between the HTTP
// shell and storage: conversation management and the orchestrator that
// drives a provider call from user prompt to persisted reply.
//
// This file centralizes the service-level error values so that handlers can
// map them to HTTP results consistently.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/go-llm-chat/internal/repo"
)

var (
	// ErrConversationNotFound indicates that the referenced conversation does
	// not exist (or was deleted while the operation was in flight).
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrMessageNotFound indicates that the referenced message does not exist
	// within the given conversation.
	ErrMessageNotFound = errors.New("message not found")

	// ErrEmptyPrompt is returned when a send carries only whitespace.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrEmptyContent is returned when a message edit would blank it out.
	ErrEmptyContent = errors.New("message content is empty")

	// ErrTooLong is returned when a prompt exceeds the configured rune limit.
	ErrTooLong = errors.New("prompt too long")

	// ErrEmptyReply is reported when a provider completes without any text.
	// Nothing is persisted in that case.
	ErrEmptyReply = errors.New("provider returned an empty reply")

	// ErrInvalidFormat is returned by Export for an unsupported format.
	ErrInvalidFormat = errors.New("unsupported export format")
)

// StorageError wraps a persistence failure. It is fatal to the current
// operation and always surfaced to the caller.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// storageErr classifies a repository error: not-found becomes notFound (when
// given), anything else is wrapped in StorageError.
func storageErr(op string, err error, notFound error) error {
	if err == nil {
		return nil
	}
	if notFound != nil && errors.Is(err, repo.ErrNotFound) {
		return notFound
	}
	return &StorageError{Op: op, Err: err}
}
