package storage

import (
	"context"
	"errors"
	"fmt"

	"htmlurl/internal/model"
)

// Package storage owns the on-disk artifact set: identifier generation, atomic
// publication, and concurrency-safe read/stat/delete/list.

var (
	// ErrInvalidIdentifier is returned for ids that do not have the fixed hex shape.
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrNotFound is returned when the artifact is absent, including when it expired mid-request.
	ErrNotFound = errors.New("artifact not found")
	// ErrPayloadTooLarge is returned before any disk write when content exceeds the configured cap.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrStorageUnavailable wraps every filesystem failure other than not-found.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrExists is returned by CreateWithID when the target artifact is already published.
	ErrExists = errors.New("artifact already exists")
)

// ContentStore is the artifact store used by the service, janitor and converter.
// Implementations must be safe for concurrent use by multiple goroutines.
type ContentStore interface {
	// Create validates the size, mints a fresh id and publishes data all-or-nothing.
	Create(ctx context.Context, kind model.Kind, data []byte) (model.Artifact, error)
	// CreateWithID publishes data under an id minted earlier, pairing a PDF with its HTML.
	CreateWithID(ctx context.Context, id string, kind model.Kind, data []byte) (model.Artifact, error)
	// Read returns the full content of an artifact along with its descriptor.
	Read(ctx context.Context, id string, kind model.Kind) ([]byte, model.Artifact, error)
	// Stat returns the descriptor without reading content.
	Stat(ctx context.Context, id string, kind model.Kind) (model.Artifact, error)
	// Delete removes an artifact. Deleting an absent artifact is not an error.
	Delete(ctx context.Context, id string, kind model.Kind) error
	// List returns a point-in-time snapshot of all published artifacts.
	List(ctx context.Context) ([]model.Artifact, error)
}

// IDSource produces candidate artifact ids.
type IDSource interface {
	Generate() (string, error)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}
