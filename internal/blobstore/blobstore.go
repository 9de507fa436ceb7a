// Package blobstore stores uploaded file content and hands out stable
// retrieval URLs for it.
package blobstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/crypto/blake2b"
)

// ErrInvalidPath is returned for object paths that are empty, absolute
// or escape the store root.
var ErrInvalidPath = errors.New("invalid blob path")

// Ref identifies a stored object.
type Ref struct {
	Path     string
	Size     int64
	Checksum string
}

// Store is the blob storage consumed by the group components.
type Store interface {
	// Upload stores data at objectPath, replacing any previous object.
	Upload(ctx context.Context, objectPath string, data []byte) (Ref, error)

	// URL returns the retrieval URL for ref.
	URL(ctx context.Context, ref Ref) (string, error)
}

// Ensure Local implements Store
var _ Store = (*Local)(nil)

// Local keeps objects on the filesystem below Root and serves them under
// BaseURL (see Handler).
type Local struct {
	root    string
	baseURL string
}

// NewLocal creates the root directory if needed.
func NewLocal(root, baseURL string) (*Local, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &Local{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// CleanPath validates an object path and returns its canonical form.
func CleanPath(objectPath string) (string, error) {
	if objectPath == "" || strings.HasPrefix(objectPath, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, objectPath)
	}
	clean := path.Clean(objectPath)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, objectPath)
	}
	return clean, nil
}

// ObjectPath builds "{prefix}/{scope}/{unixMillis}-{basename}". Only the
// base name of filename is kept.
func ObjectPath(prefix, scope string, at time.Time, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == ".." {
		base = "file"
	}
	return fmt.Sprintf("%s/%s/%d-%s", prefix, scope, at.UnixMilli(), base)
}

// ContentType returns declared if set, otherwise the type sniffed from
// data.
func ContentType(declared string, data []byte) string {
	if declared != "" {
		return declared
	}
	return mimetype.Detect(data).String()
}

// Upload writes data atomically (temp file then rename).
func (l *Local) Upload(ctx context.Context, objectPath string, data []byte) (Ref, error) {
	clean, err := CleanPath(objectPath)
	if err != nil {
		return Ref{}, err
	}
	if err := ctx.Err(); err != nil {
		return Ref{}, err
	}

	target := filepath.Join(l.root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return Ref{}, fmt.Errorf("failed to create blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return Ref{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return Ref{}, fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Ref{}, fmt.Errorf("failed to close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return Ref{}, fmt.Errorf("failed to store blob: %w", err)
	}

	sum := blake2b.Sum256(data)
	return Ref{Path: clean, Size: int64(len(data)), Checksum: hex.EncodeToString(sum[:])}, nil
}

// URL joins the base URL and the escaped object path. The checksum is
// appended as a version parameter so a replaced object gets a new URL.
func (l *Local) URL(_ context.Context, ref Ref) (string, error) {
	clean, err := CleanPath(ref.Path)
	if err != nil {
		return "", err
	}
	segments := strings.Split(clean, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	u := l.baseURL + "/" + strings.Join(segments, "/")
	if v := ref.Checksum; v != "" {
		if len(v) > 16 {
			v = v[:16]
		}
		u += "?v=" + v
	}
	return u, nil
}

// Handler serves stored objects; mount it at the path of the base URL.
// Only regular files are served. Directories and dot files, including
// in-flight uploads, are reported as missing.
func (l *Local) Handler(prefix string) http.Handler {
	return http.StripPrefix(prefix, http.FileServer(objectsOnly{http.Dir(l.root)}))
}

type objectsOnly struct {
	fs http.FileSystem
}

func (o objectsOnly) Open(name string) (http.File, error) {
	for _, seg := range strings.Split(name, "/") {
		if strings.HasPrefix(seg, ".") {
			return nil, os.ErrNotExist
		}
	}
	f, err := o.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}
