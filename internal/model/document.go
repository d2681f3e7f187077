package model

import "time"

// Kind identifies the rendering of a stored artifact.
type Kind string

const (
	KindHTML Kind = "html"
	KindPDF  Kind = "pdf"
)

// Extension returns the file extension (with leading dot) for the kind.
func (k Kind) Extension() string {
	return "." + string(k)
}

// ContentType returns the MIME type served for the kind.
func (k Kind) ContentType() string {
	switch k {
	case KindPDF:
		return "application/pdf"
	default:
		return "text/html; charset=utf-8"
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindHTML || k == KindPDF
}

// Artifact represents a single stored file on disk.
// The on-disk path is always derived from ID and Kind, never from client input.
type Artifact struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Filename returns the public file name, e.g. "a3f2c1b9e4d7.html".
func (a Artifact) Filename() string {
	return a.ID + a.Kind.Extension()
}

// Payload is an upload validated at the HTTP boundary before it enters the core.
// DeclaredLength is the client supplied Content-Length, or -1 when unknown.
type Payload struct {
	Kind           Kind
	Data           []byte
	DeclaredLength int64
}

// Document pairs an HTML artifact with its optional PDF rendering sharing the same ID.
type Document struct {
	HTML Artifact
	PDF  *Artifact
}
