package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"htmlurl/internal/config"
	"htmlurl/internal/model"
)

const (
	// tempPrefix marks in-flight writes; List never reports them.
	tempPrefix = ".tmp-"
	// maxIDAttempts bounds the collision retry loop. At 2^-48 per attempt it is never reached in practice.
	maxIDAttempts = 8
)

// LocalStore implements ContentStore on a single local directory.
// Every artifact is written to a temp file inside the root and then published
// under its final name in one step, so readers observe either nothing or the
// complete file. It is safe for concurrent use by multiple goroutines.
type LocalStore struct {
	root    string
	maxHTML int64
	maxPDF  int64
	ids     IDSource
}

// Option customizes a LocalStore.
type Option func(*LocalStore)

// WithIDSource replaces the default crypto-random id generator.
func WithIDSource(src IDSource) Option {
	return func(s *LocalStore) { s.ids = src }
}

var _ ContentStore = (*LocalStore)(nil)

// NewLocal opens (creating if missing) the artifact directory and removes temp
// files abandoned by an earlier crash.
func NewLocal(cfg config.StorageConfig, opts ...Option) (*LocalStore, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("storage dir is required")
	}
	if cfg.MaxContentLength <= 0 {
		return nil, fmt.Errorf("max content length must be positive")
	}
	root, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", root, err)
	}

	s := &LocalStore{
		root:    root,
		maxHTML: cfg.MaxContentLength,
		maxPDF:  cfg.MaxPDFSize,
		ids:     NewIDGenerator(nil),
	}
	if s.maxPDF <= 0 {
		s.maxPDF = s.maxHTML
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.removeTemps(); err != nil {
		return nil, err
	}
	return s, nil
}

// Root returns the absolute artifact directory.
func (s *LocalStore) Root() string { return s.root }

// Create validates the size, mints a fresh id that collides with neither kind,
// and publishes data under it.
func (s *LocalStore) Create(ctx context.Context, kind model.Kind, data []byte) (model.Artifact, error) {
	if err := s.checkWrite(ctx, kind, data); err != nil {
		return model.Artifact{}, err
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := s.ids.Generate()
		if err != nil {
			return model.Artifact{}, err
		}
		if !ValidID(id) {
			return model.Artifact{}, fmt.Errorf("%w: generated id %q", ErrInvalidIdentifier, id)
		}
		taken, err := s.taken(id)
		if err != nil {
			return model.Artifact{}, err
		}
		if taken {
			continue
		}

		a, err := s.publish(id, kind, data)
		if errors.Is(err, ErrExists) {
			// Lost a race with a concurrent create for the same id.
			continue
		}
		return a, err
	}
	return model.Artifact{}, fmt.Errorf("%w: no free id after %d attempts", ErrStorageUnavailable, maxIDAttempts)
}

// CreateWithID publishes data under an existing id. It never replaces a published artifact.
func (s *LocalStore) CreateWithID(ctx context.Context, id string, kind model.Kind, data []byte) (model.Artifact, error) {
	if !ValidID(id) {
		return model.Artifact{}, ErrInvalidIdentifier
	}
	if err := s.checkWrite(ctx, kind, data); err != nil {
		return model.Artifact{}, err
	}
	return s.publish(id, kind, data)
}

// Read returns the complete content of an artifact. A file removed by the janitor
// after it was opened is still read in full; one removed before resolves to ErrNotFound.
func (s *LocalStore) Read(ctx context.Context, id string, kind model.Kind) ([]byte, model.Artifact, error) {
	p, err := s.resolve(ctx, id, kind)
	if err != nil {
		return nil, model.Artifact{}, err
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, model.Artifact{}, notFoundOr("open", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, model.Artifact{}, notFoundOr("stat", err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, model.Artifact{}, unavailable("read", err)
	}
	return data, artifactFrom(id, kind, fi), nil
}

// Stat returns the descriptor of an artifact without reading its content.
func (s *LocalStore) Stat(ctx context.Context, id string, kind model.Kind) (model.Artifact, error) {
	p, err := s.resolve(ctx, id, kind)
	if err != nil {
		return model.Artifact{}, err
	}
	fi, err := os.Stat(p)
	if err != nil {
		return model.Artifact{}, notFoundOr("stat", err)
	}
	return artifactFrom(id, kind, fi), nil
}

// Delete removes an artifact; an already-absent artifact is not an error.
func (s *LocalStore) Delete(ctx context.Context, id string, kind model.Kind) error {
	p, err := s.resolve(ctx, id, kind)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return unavailable("delete", err)
	}
	return nil
}

// List returns a snapshot of published artifacts ordered by file name.
// Entries that vanish while the directory is being scanned are skipped.
func (s *LocalStore) List(ctx context.Context) ([]model.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, unavailable("list", err)
	}

	out := make([]model.Artifact, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		id, kind, ok := ParseFilename(e.Name())
		if !ok {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, unavailable("list", err)
		}
		out = append(out, artifactFrom(id, kind, fi))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename() < out[j].Filename() })
	return out, nil
}

// ParseFilename splits a public file name such as "a3f2c1b9e4d7.pdf" into id and kind.
func ParseFilename(name string) (string, model.Kind, bool) {
	ext := filepath.Ext(name)
	kind := model.Kind(strings.TrimPrefix(ext, "."))
	if !kind.Valid() {
		return "", "", false
	}
	id := strings.TrimSuffix(name, ext)
	if !ValidID(id) {
		return "", "", false
	}
	return id, kind, true
}

func (s *LocalStore) checkWrite(ctx context.Context, kind model.Kind, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !kind.Valid() {
		return fmt.Errorf("unsupported artifact kind %q", kind)
	}
	limit := s.maxHTML
	if kind == model.KindPDF {
		limit = s.maxPDF
	}
	if int64(len(data)) > limit {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, len(data), limit)
	}
	return nil
}

// resolve validates input and derives the path. id is never used as a path fragment
// beyond its literal hex characters.
func (s *LocalStore) resolve(ctx context.Context, id string, kind model.Kind) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !ValidID(id) || !kind.Valid() {
		return "", ErrInvalidIdentifier
	}
	return s.path(id, kind), nil
}

func (s *LocalStore) path(id string, kind model.Kind) string {
	return filepath.Join(s.root, id+kind.Extension())
}

// taken reports whether any kind is already published under id.
func (s *LocalStore) taken(id string) (bool, error) {
	for _, k := range []model.Kind{model.KindHTML, model.KindPDF} {
		_, err := os.Lstat(s.path(id, k))
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return false, unavailable("stat", err)
		}
	}
	return false, nil
}

// publish writes data to a temp file in the root and then hard-links it into
// place. The link is atomic and fails if the final name exists, so a published
// artifact is never replaced and never observable half-written.
func (s *LocalStore) publish(id string, kind model.Kind, data []byte) (model.Artifact, error) {
	tmp, err := os.CreateTemp(s.root, tempPrefix+"*")
	if err != nil {
		return model.Artifact{}, unavailable("create temp file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return model.Artifact{}, unavailable("write", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return model.Artifact{}, unavailable("sync", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return model.Artifact{}, unavailable("chmod", err)
	}
	if err := tmp.Close(); err != nil {
		return model.Artifact{}, unavailable("close temp file", err)
	}

	final := s.path(id, kind)
	if err := os.Link(tmpPath, final); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return model.Artifact{}, fmt.Errorf("%w: %s", ErrExists, filepath.Base(final))
		}
		return model.Artifact{}, unavailable("publish", err)
	}

	fi, err := os.Stat(final)
	if err != nil {
		return model.Artifact{}, notFoundOr("stat", err)
	}
	return artifactFrom(id, kind, fi), nil
}

func (s *LocalStore) removeTemps() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("scan storage dir: %w", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), tempPrefix) {
			_ = os.Remove(filepath.Join(s.root, e.Name()))
		}
	}
	return nil
}

func artifactFrom(id string, kind model.Kind, fi fs.FileInfo) model.Artifact {
	return model.Artifact{
		ID:        id,
		Kind:      kind,
		Size:      fi.Size(),
		CreatedAt: fi.ModTime(),
	}
}

func notFoundOr(op string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return unavailable(op, err)
}
