package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/studygroup/internal/logger"
	"github.com/studygroup/internal/model"
)

const fileCols = `id, file_name, original_name, COALESCE(mime_type,''), COALESCE(group_id,''), COALESCE(uploaded_by,''), url, COALESCE(public_id,''), uploaded_at`

// FileRepository хранит метаданные загруженных файлов (files-сервис).
type FileRepository struct {
	pool *pgxpool.Pool
}

func NewFileRepository(pool *pgxpool.Pool) *FileRepository {
	return &FileRepository{pool: pool}
}

func scanFile(s interface{ Scan(dest ...any) error }, f *model.FileRecord) error {
	return s.Scan(&f.ID, &f.FileName, &f.OriginalName, &f.MimeType, &f.GroupID, &f.UploadedBy, &f.URL, &f.PublicID, &f.UploadedAt)
}

func (r *FileRepository) Create(ctx context.Context, f *model.FileRecord) error {
	defer logger.DeferLogDuration("file.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO files (id, file_name, original_name, mime_type, group_id, uploaded_by, url, public_id, uploaded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		f.ID, f.FileName, f.OriginalName, f.MimeType, nullEmpty(f.GroupID), nullEmpty(f.UploadedBy), f.URL, nullEmpty(f.PublicID), f.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("fileRepo.Create: %w", err)
	}
	return nil
}

func (r *FileRepository) GetByID(ctx context.Context, id string) (*model.FileRecord, error) {
	defer logger.DeferLogDuration("file.GetByID", time.Now())()
	f := &model.FileRecord{}
	row := r.pool.QueryRow(ctx, `SELECT `+fileCols+` FROM files WHERE id = $1`, id)
	if err := scanFile(row, f); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fileRepo.GetByID: %w", err)
	}
	return f, nil
}

func (r *FileRepository) ListByGroup(ctx context.Context, groupID string) ([]model.FileRecord, error) {
	defer logger.DeferLogDuration("file.ListByGroup", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+fileCols+` FROM files WHERE group_id = $1 ORDER BY uploaded_at DESC`, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("fileRepo.ListByGroup query: %w", err)
	}
	defer rows.Close()

	files := make([]model.FileRecord, 0, 16)
	for rows.Next() {
		var f model.FileRecord
		if err := scanFile(rows, &f); err != nil {
			return nil, fmt.Errorf("fileRepo.ListByGroup scan: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fileRepo.ListByGroup rows: %w", err)
	}
	return files, nil
}

func (r *FileRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("file.Delete", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("fileRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nullEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
