package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthassist/healthassist/internal/platform/db"
)

var ErrNotFound = errors.New("file not found")

// File is the metadata row of an uploaded object.
type File struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"userId"`
	Name         string    `json:"name"`
	OriginalName string    `json:"originalName"`
	ContentType  string    `json:"contentType"`
	Size         int64     `json:"size"`
	Bucket       string    `json:"bucket"`
	Key          string    `json:"key"`
	URL          string    `json:"url"`
	CreatedAt    time.Time `json:"createdAt"`
}

type FileRepository interface {
	Create(ctx context.Context, f *File) error
	// GetByKey returns ErrNotFound for an unknown key.
	GetByKey(ctx context.Context, key string) (*File, error)
}

type fileRepoPG struct {
	pool *pgxpool.Pool
}

func NewFileRepo(pool *pgxpool.Pool) FileRepository {
	return &fileRepoPG{pool: pool}
}

func (r *fileRepoPG) Create(ctx context.Context, f *File) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO files (id, user_id, name, original_name, content_type, size, bucket, object_key, url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		f.ID, f.UserID, f.Name, f.OriginalName, f.ContentType, f.Size, f.Bucket, f.Key, f.URL,
	).Scan(&f.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

func (r *fileRepoPG) GetByKey(ctx context.Context, key string) (*File, error) {
	var f File
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, user_id, name, original_name, content_type, size, bucket, object_key, url, created_at
		FROM files WHERE object_key = $1`, key).
		Scan(&f.ID, &f.UserID, &f.Name, &f.OriginalName, &f.ContentType, &f.Size, &f.Bucket, &f.Key, &f.URL, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return &f, nil
}
