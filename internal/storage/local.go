package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"flariki/internal/domain"
)

// LocalStore пишет файлы в каталог, отдаваемый статикой под URLPrefix.
type LocalStore struct {
	dir       string
	urlPrefix string
	logger    *zerolog.Logger
	now       func() time.Time
}

func NewLocalStore(dir, urlPrefix string, logger *zerolog.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	l := logger.With().Str("component", "storage").Logger()
	return &LocalStore{
		dir:       dir,
		urlPrefix: "/" + strings.Trim(urlPrefix, "/"),
		logger:    &l,
		now:       time.Now,
	}, nil
}

func (s *LocalStore) Dir() string { return s.dir }

// Save copies r into a new file named {unix-ms}-{uuid}{ext}.
func (s *LocalStore) Save(ctx context.Context, ext string, r io.Reader) (*domain.StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if strings.ContainsAny(ext, `/\`) {
		return nil, fmt.Errorf("invalid file extension %q", ext)
	}

	filename := fmt.Sprintf("%d-%s%s", s.now().UnixMilli(), uuid.NewString(), ext)

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, filename)); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	s.logger.Debug().Str("file", filename).Msg("upload stored")
	return &domain.StoredFile{
		URL:      path.Join(s.urlPrefix, filename),
		Filename: filename,
	}, nil
}
