package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orchids/video-gallery/internal/domain"
)

const (
	galleryColumns = `id, name, collection_id, videos, created_at, updated_at`

	uniqueViolation = "23505"
)

type PostgresGalleryRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresGalleryRepository(pool *pgxpool.Pool) *PostgresGalleryRepository {
	return &PostgresGalleryRepository{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// EnsureSchema creates the galleries table. Videos live in a JSONB array so
// a gallery stays a single document, as in the Mongo store.
func (r *PostgresGalleryRepository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS galleries (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			collection_id TEXT,
			videos JSONB NOT NULL DEFAULT '[]'::jsonb,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_galleries_created_at ON galleries (created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_galleries_collection_id ON galleries (collection_id)`,
		`CREATE INDEX IF NOT EXISTS idx_galleries_videos ON galleries USING GIN (videos jsonb_path_ops)`,
	}

	for _, stmt := range statements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure gallery schema: %w", err)
		}
	}
	return nil
}

func (r *PostgresGalleryRepository) FindOrCreate(ctx context.Context, id, defaultName string) (*domain.Gallery, error) {
	gallery, err := r.GetByID(ctx, id)
	if err == nil {
		return gallery, nil
	}
	if !errors.Is(err, domain.ErrGalleryNotFound) {
		return nil, err
	}

	gallery = domain.NewGallery(id, defaultName)
	err = r.Create(ctx, gallery)
	if errors.Is(err, domain.ErrGalleryExists) {
		return r.GetByID(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	return gallery, nil
}

func (r *PostgresGalleryRepository) BindCollection(ctx context.Context, id, collectionID string) (*domain.Gallery, error) {
	query := `
		UPDATE galleries
		SET collection_id = $2, updated_at = $3
		WHERE id = $1 AND collection_id IS NULL
		RETURNING ` + galleryColumns

	gallery, err := scanGallery(r.pool.QueryRow(ctx, query, id, collectionID, r.now()))
	if errors.Is(err, pgx.ErrNoRows) {
		// Either already bound or gone; the stored row tells which.
		return r.GetByID(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to bind collection: %w", err)
	}

	return gallery, nil
}

func (r *PostgresGalleryRepository) AppendVideo(ctx context.Context, id string, entry domain.VideoEntry) (*domain.Gallery, error) {
	encoded, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal video entry: %w", err)
	}

	query := `
		UPDATE galleries
		SET videos = videos || jsonb_build_array($2::jsonb), updated_at = $3
		WHERE id = $1
		RETURNING ` + galleryColumns

	gallery, err := scanGallery(r.pool.QueryRow(ctx, query, id, encoded, r.now()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrGalleryNotFound
		}
		return nil, fmt.Errorf("failed to append video: %w", err)
	}

	return gallery, nil
}

func (r *PostgresGalleryRepository) Create(ctx context.Context, gallery *domain.Gallery) error {
	if err := gallery.Validate(); err != nil {
		return err
	}

	videos := gallery.Videos
	if videos == nil {
		videos = []domain.VideoEntry{}
	}
	encoded, err := json.Marshal(videos)
	if err != nil {
		return fmt.Errorf("failed to marshal videos: %w", err)
	}

	query := `
		INSERT INTO galleries (id, name, collection_id, videos, created_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6)
	`

	_, err = r.pool.Exec(ctx, query,
		gallery.ID,
		gallery.Name,
		nullableString(gallery.CollectionID),
		encoded,
		gallery.CreatedAt,
		gallery.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrGalleryExists
		}
		return fmt.Errorf("failed to create gallery: %w", err)
	}

	return nil
}

func (r *PostgresGalleryRepository) GetByID(ctx context.Context, id string) (*domain.Gallery, error) {
	query := `SELECT ` + galleryColumns + ` FROM galleries WHERE id = $1`

	gallery, err := scanGallery(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrGalleryNotFound
		}
		return nil, fmt.Errorf("failed to get gallery: %w", err)
	}

	return gallery, nil
}

func (r *PostgresGalleryRepository) List(ctx context.Context, limit, offset int) ([]*domain.Gallery, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM galleries`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count galleries: %w", err)
	}

	query := `
		SELECT ` + galleryColumns + `
		FROM galleries
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list galleries: %w", err)
	}
	defer rows.Close()

	galleries := []*domain.Gallery{}
	for rows.Next() {
		gallery, err := scanGallery(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan gallery: %w", err)
		}
		galleries = append(galleries, gallery)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating galleries: %w", err)
	}

	return galleries, total, nil
}

func (r *PostgresGalleryRepository) IsVideoReferenced(ctx context.Context, videoID string) (bool, error) {
	probe, err := json.Marshal([]map[string]string{{"videoId": videoID}})
	if err != nil {
		return false, fmt.Errorf("failed to marshal video probe: %w", err)
	}

	var exists bool
	err = r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM galleries WHERE videos @> $1::jsonb)`, probe,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check video reference: %w", err)
	}

	return exists, nil
}

func (r *PostgresGalleryRepository) IsCollectionBound(ctx context.Context, collectionID string) (bool, error) {
	if collectionID == "" {
		return false, nil
	}

	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM galleries WHERE collection_id = $1)`, collectionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check collection binding: %w", err)
	}

	return exists, nil
}

func (r *PostgresGalleryRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanGallery(row pgx.Row) (*domain.Gallery, error) {
	var (
		gallery      domain.Gallery
		collectionID *string
		videos       []byte
	)

	err := row.Scan(
		&gallery.ID,
		&gallery.Name,
		&collectionID,
		&videos,
		&gallery.CreatedAt,
		&gallery.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if collectionID != nil {
		gallery.CollectionID = *collectionID
	}
	gallery.Videos = []domain.VideoEntry{}
	if len(videos) > 0 {
		if err := json.Unmarshal(videos, &gallery.Videos); err != nil {
			return nil, fmt.Errorf("failed to unmarshal videos: %w", err)
		}
	}

	return &gallery, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
