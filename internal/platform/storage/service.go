package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthassist/healthassist/pkg/apperr"
)

const (
	DefaultMaxSize = 10 << 20
	keyPrefix      = "prescriptions/"
)

// allowedTypes maps accepted content types to the extension stored keys get.
var allowedTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
}

type Service struct {
	store   ObjectStore
	files   FileRepository
	maxSize int64
	logger  zerolog.Logger
}

func NewService(store ObjectStore, files FileRepository, maxSize int64, logger zerolog.Logger) *Service {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Service{store: store, files: files, maxSize: maxSize, logger: logger}
}

func (s *Service) MaxSize() int64 { return s.maxSize }

// Upload stores src under prescriptions/<uuid>.<ext> and records it. The
// content type and extension come from the sniffed bytes; the client's file
// name is only kept as OriginalName.
func (s *Service) Upload(ctx context.Context, userID uuid.UUID, originalName string, size int64, src io.ReadSeeker) (*File, error) {
	if size > s.maxSize {
		return nil, apperr.New(apperr.KindTooLarge, fmt.Sprintf("file exceeds the %d byte limit", s.maxSize))
	}

	mt, err := mimetype.DetectReader(src)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindBadRequest, "file could not be read")
	}
	contentType, ext, ok := accepted(mt)
	if !ok {
		return nil, apperr.New(apperr.KindUnsupportedMedia, "only PDF, PNG and JPEG files are allowed")
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, apperr.Internal(fmt.Errorf("rewind upload: %w", err))
	}

	id := uuid.New()
	name := id.String() + ext
	key := keyPrefix + name

	if err := s.store.Put(ctx, key, io.LimitReader(src, s.maxSize), contentType); err != nil {
		return nil, apperr.Internal(fmt.Errorf("upload file: %w", err))
	}

	f := &File{
		ID:           id,
		UserID:       userID,
		Name:         name,
		OriginalName: originalName,
		ContentType:  contentType,
		Size:         size,
		Bucket:       s.store.Bucket(),
		Key:          key,
		URL:          s.store.URL(key),
	}
	if err := s.files.Create(ctx, f); err != nil {
		// Best effort; the request may already be cancelled.
		if derr := s.store.Delete(context.WithoutCancel(ctx), key); derr != nil {
			s.logger.Error().Err(derr).Str("key", key).Msg("remove orphaned object")
		}
		return nil, apperr.Internal(fmt.Errorf("record file: %w", err))
	}

	s.logger.Info().Str("file_id", id.String()).Str("key", key).Int64("size", size).Msg("file uploaded")
	return f, nil
}

// OwnedFile returns the file stored under key if userID uploaded it. Files
// of other users are reported as missing.
func (s *Service) OwnedFile(ctx context.Context, userID uuid.UUID, key string) (*File, error) {
	f, err := s.files.GetByKey(ctx, key)
	if errors.Is(err, ErrNotFound) || (err == nil && f.UserID != userID) {
		return nil, apperr.NotFound("file not found")
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("get file: %w", err))
	}
	return f, nil
}

func accepted(mt *mimetype.MIME) (contentType, ext string, ok bool) {
	for m := mt; m != nil; m = m.Parent() {
		if ext, ok := allowedTypes[m.String()]; ok {
			return m.String(), ext, true
		}
	}
	return "", "", false
}
