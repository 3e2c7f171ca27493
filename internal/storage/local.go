package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LocalStore keeps objects on disk under root. The server mounts root at
// MediaPath so URLs resolve in development.
type LocalStore struct {
	root    string
	baseURL string
}

// MediaPath is the URL prefix the server serves local objects from
const MediaPath = "/media"

var _ Store = (*LocalStore)(nil)

func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{root: root, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Root is the directory objects are written under
func (l *LocalStore) Root() string { return l.root }

func (l *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(l.root, clean), nil
}

func (l *LocalStore) PutObject(_ context.Context, key string, body io.Reader, _ string, _ map[string]string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.Create(p)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	return f.Close()
}

func (l *LocalStore) GetObject(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := l.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	return f, err
}

func (l *LocalStore) Delete(_ context.Context, key string) error {
	if key == "" {
		return nil
	}
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (l *LocalStore) URL(key string) string {
	return l.baseURL + MediaPath + "/" + key
}

// SignedURL appends an expiry hint; local objects are not access controlled.
func (l *LocalStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))
	return l.URL(key) + "?" + q.Encode(), nil
}

func (l *LocalStore) CheckAccess(context.Context) error {
	probe := filepath.Join(l.root, ".probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("storage dir %s not writable: %w", l.root, err)
	}
	return os.Remove(probe)
}
