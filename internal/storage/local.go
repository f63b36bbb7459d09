package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

// LocalStore writes images into a directory and hands back URL paths under urlPrefix.
type LocalStore struct {
	dir       string
	urlPrefix string
	now       func() time.Time
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir, urlPrefix string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return &LocalStore{
		dir:       dir,
		urlPrefix: "/" + strings.Trim(urlPrefix, "/"),
		now:       time.Now,
	}, nil
}

func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) Save(ctx context.Context, filename, _ string, body io.Reader) (string, error) {
	f, name, err := s.create(filename)
	if err != nil {
		return "", err
	}

	fullPath := filepath.Join(s.dir, name)
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(fullPath)
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("close %s: %w", name, err)
	}

	log.Debug().Str("file", fullPath).Msg("storage: image written")
	return path.Join(s.urlPrefix, name), nil
}

// create opens a fresh file named "<unix-millis>-<base>", falling back to a
// random infix when that name is already taken.
func (s *LocalStore) create(filename string) (*os.File, string, error) {
	base := SafeBaseName(filename)
	name := fmt.Sprintf("%d-%s", s.now().UnixMilli(), base)

	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err == nil {
		return f, name, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return nil, "", fmt.Errorf("create %s: %w", name, err)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, "", fmt.Errorf("generate file name: %w", err)
	}
	name = fmt.Sprintf("%d-%s-%s", s.now().UnixMilli(), id.String()[:8], base)

	f, err = os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("create %s: %w", name, err)
	}
	return f, name, nil
}

func (s *LocalStore) Remove(_ context.Context, urlPath string) error {
	name := path.Base(urlPath)
	if name == "." || name == "/" {
		return fmt.Errorf("invalid image path %q", urlPath)
	}

	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// SafeBaseName strips directories (either separator) from a client-supplied name.
func SafeBaseName(filename string) string {
	filename = strings.ReplaceAll(filename, `\`, "/")
	base := path.Base(filename)
	if base == "." || base == "/" || base == ".." || base == "" {
		return "upload"
	}
	return base
}
