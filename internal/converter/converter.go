package converter

import (
	"context"

	"htmlurl/internal/model"
)

// Status is the outcome of a conversion attempt.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Result is returned by Convert. Failures are values, not errors: a failed
// conversion never fails the upload that triggered it.
type Result struct {
	Status Status
	// PDF is the stored artifact on success.
	PDF *model.Artifact
	// Reason describes a failure.
	Reason string
}

// Succeeded reports whether a PDF artifact was stored.
func (r Result) Succeeded() bool {
	return r.Status == StatusSucceeded && r.PDF != nil
}

// Converter renders stored HTML to a PDF artifact that shares the HTML's id.
type Converter interface {
	// Convert renders html and stores the PDF under id. It never retries.
	Convert(ctx context.Context, id string, html []byte) Result
	// Ping checks that the renderer is reachable.
	Ping(ctx context.Context) error
}
