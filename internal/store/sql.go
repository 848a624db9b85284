package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Todor-5rov/Vexcel/internal/cloud"
)

// Placeholders are numbered and appear in ascending order in every statement;
// both pgx and the SQLite driver bind them positionally.

const fileColumns = `id, user_id, file_name, file_path, file_size, uploaded_at, last_accessed,
	last_synced_at, mcp_filename, mcp_file_path, onedrive_file_id, onedrive_web_url,
	onedrive_embed_url, onedrive_uploaded_at, onedrive_folder_path`

// SQLRepository implements Repository over database/sql.
type SQLRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLRepository wraps an open, migrated database.
func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db, now: time.Now}
}

// Insert implements Repository.
func (r *SQLRepository) Insert(ctx context.Context, f *LogicalFile) error {
	if f.OwnerID == "" || f.Filename == "" {
		return fmt.Errorf("insert file: owner and filename are required")
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := r.now()
	if f.UploadedAt.IsZero() {
		f.UploadedAt = now
	}
	if f.LastAccessedAt.IsZero() {
		f.LastAccessedAt = now
	}
	f.CloudEmbedURL = cloud.NormalizeEmbedURL(f.CloudEmbedURL)

	const q = `INSERT INTO user_files (` + fileColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (user_id, file_name) DO UPDATE SET
	file_path = excluded.file_path,
	file_size = excluded.file_size,
	uploaded_at = excluded.uploaded_at,
	last_accessed = excluded.last_accessed,
	mcp_filename = excluded.mcp_filename,
	mcp_file_path = excluded.mcp_file_path,
	onedrive_file_id = excluded.onedrive_file_id,
	onedrive_web_url = excluded.onedrive_web_url,
	onedrive_embed_url = excluded.onedrive_embed_url,
	onedrive_uploaded_at = excluded.onedrive_uploaded_at,
	onedrive_folder_path = excluded.onedrive_folder_path
RETURNING id`

	var id string
	err := r.db.QueryRowContext(ctx, q,
		f.ID, f.OwnerID, f.Filename, nullString(f.BackupKey), f.SizeBytes,
		millis(f.UploadedAt), millis(f.LastAccessedAt), nullMillis(f.LastSyncedAt),
		f.RemoteFilename, f.RemotePath,
		nullString(f.CloudFileID), nullString(f.CloudWebURL), nullString(f.CloudEmbedURL),
		nullMillis(f.CloudUploadedAt), nullString(f.CloudFolder),
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert file %s: %w", f.Filename, err)
	}
	f.ID = id
	return nil
}

// Get implements Repository.
func (r *SQLRepository) Get(ctx context.Context, id, ownerID string) (*LogicalFile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM user_files WHERE id = $1 AND user_id = $2`, id, ownerID)
	return scanFile(row)
}

// GetByName implements Repository.
func (r *SQLRepository) GetByName(ctx context.Context, ownerID, filename string) (*LogicalFile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM user_files WHERE user_id = $1 AND file_name = $2`, ownerID, filename)
	return scanFile(row)
}

// List implements Repository.
func (r *SQLRepository) List(ctx context.Context, ownerID string) ([]LogicalFile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM user_files WHERE user_id = $1 ORDER BY uploaded_at DESC, file_name`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	files := []LogicalFile{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return files, nil
}

// UpdateEmbedURL implements Repository.
func (r *SQLRepository) UpdateEmbedURL(ctx context.Context, id, ownerID, embedURL string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE user_files SET onedrive_embed_url = $1, last_accessed = $2, last_synced_at = $3
WHERE id = $4 AND user_id = $5`,
		cloud.NormalizeEmbedURL(embedURL), millis(at), millis(at), id, ownerID)
	if err != nil {
		return fmt.Errorf("update embed url: %w", err)
	}
	return expectOne(res)
}

// UpdateCloud implements Repository.
func (r *SQLRepository) UpdateCloud(ctx context.Context, id, ownerID string, ref CloudRef) error {
	uploaded := ref.UploadedAt
	if uploaded.IsZero() {
		uploaded = r.now()
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE user_files SET onedrive_file_id = $1, onedrive_web_url = $2, onedrive_embed_url = $3,
	onedrive_folder_path = $4, onedrive_uploaded_at = $5
WHERE id = $6 AND user_id = $7`,
		nullString(ref.FileID), nullString(ref.WebURL), nullString(cloud.NormalizeEmbedURL(ref.EmbedURL)),
		nullString(ref.Folder), millis(uploaded), id, ownerID)
	if err != nil {
		return fmt.Errorf("update cloud reference: %w", err)
	}
	return expectOne(res)
}

// GetCloudFileID implements Repository.
func (r *SQLRepository) GetCloudFileID(ctx context.Context, id, ownerID string) (string, error) {
	var fileID sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT onedrive_file_id FROM user_files WHERE id = $1 AND user_id = $2`, id, ownerID).Scan(&fileID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get cloud file id: %w", err)
	}
	return fileID.String, nil
}

// Touch implements Repository.
func (r *SQLRepository) Touch(ctx context.Context, id, ownerID string, sizeBytes int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE user_files SET file_size = $1, last_accessed = $2 WHERE id = $3 AND user_id = $4`,
		sizeBytes, millis(at), id, ownerID)
	if err != nil {
		return fmt.Errorf("touch file: %w", err)
	}
	return expectOne(res)
}

// Delete implements Repository.
func (r *SQLRepository) Delete(ctx context.Context, id, ownerID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM user_files WHERE id = $1 AND user_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return expectOne(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(s scanner) (*LogicalFile, error) {
	var (
		f                                      LogicalFile
		backup, cloudID, webURL, embed, folder sql.NullString
		uploaded, accessed                     int64
		synced, cloudUploaded                  sql.NullInt64
	)
	err := s.Scan(&f.ID, &f.OwnerID, &f.Filename, &backup, &f.SizeBytes, &uploaded, &accessed,
		&synced, &f.RemoteFilename, &f.RemotePath, &cloudID, &webURL, &embed, &cloudUploaded, &folder)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	f.BackupKey = backup.String
	f.UploadedAt = time.UnixMilli(uploaded)
	f.LastAccessedAt = time.UnixMilli(accessed)
	f.LastSyncedAt = fromMillis(synced)
	f.CloudFileID = cloudID.String
	f.CloudWebURL = webURL.String
	f.CloudEmbedURL = embed.String
	f.CloudFolder = folder.String
	f.CloudUploadedAt = fromMillis(cloudUploaded)
	return &f, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
