// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides box/content persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys so box deletion cascades to content rows
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS boxes (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			password_protected INTEGER NOT NULL DEFAULT 0,
			password_hash TEXT,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_boxes_created_at
			ON boxes(created_at);

		CREATE TABLE IF NOT EXISTS content_items (
			id TEXT PRIMARY KEY,
			box_id TEXT NOT NULL,
			type TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (box_id) REFERENCES boxes(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_content_items_box_created
			ON content_items(box_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateBox persists a new box after checking the credential invariant.
func (s *SQLiteStore) CreateBox(ctx context.Context, box *Box) error {
	if box.PasswordProtected == (box.PasswordHash == "") {
		return ErrInvalidBox
	}

	var hash sql.NullString
	if box.PasswordHash != "" {
		hash = sql.NullString{String: box.PasswordHash, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO boxes (id, name, password_protected, password_hash, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		box.ID, box.Name, box.PasswordProtected, hash, box.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting box: %w", err)
	}
	return nil
}

// GetBox returns a box by id
func (s *SQLiteStore) GetBox(ctx context.Context, id string) (*Box, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, password_protected, password_hash, created_at
		 FROM boxes WHERE id = ?`, id)

	box, err := scanBox(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying box: %w", err)
	}
	return box, nil
}

// SearchBoxes returns boxes whose name contains the query substring
func (s *SQLiteStore) SearchBoxes(ctx context.Context, query string) ([]*Box, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, password_protected, password_hash, created_at
		 FROM boxes
		 WHERE name LIKE '%' || ? || '%' COLLATE NOCASE
		 ORDER BY created_at DESC`, query)
	if err != nil {
		return nil, fmt.Errorf("searching boxes: %w", err)
	}
	defer rows.Close()

	return collectBoxes(rows)
}

// InsertContent persists a content item for a box
func (s *SQLiteStore) InsertContent(ctx context.Context, item *ContentItem) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO content_items (id, box_id, type, content, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		item.ID, item.BoxID, item.Type, item.Content, item.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting content item: %w", err)
	}
	return nil
}

// ListContent returns all content items of a box ordered by creation time ascending
func (s *SQLiteStore) ListContent(ctx context.Context, boxID string) ([]*ContentItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, box_id, type, content, created_at
		 FROM content_items
		 WHERE box_id = ?
		 ORDER BY created_at ASC, id ASC`, boxID)
	if err != nil {
		return nil, fmt.Errorf("listing content: %w", err)
	}
	defer rows.Close()

	var items []*ContentItem
	for rows.Next() {
		item := &ContentItem{}
		if err := rows.Scan(&item.ID, &item.BoxID, &item.Type, &item.Content, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning content item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetContent returns a single content item belonging to a box
func (s *SQLiteStore) GetContent(ctx context.Context, boxID, itemID string) (*ContentItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, box_id, type, content, created_at
		 FROM content_items WHERE id = ? AND box_id = ?`, itemID, boxID)

	item := &ContentItem{}
	err := row.Scan(&item.ID, &item.BoxID, &item.Type, &item.Content, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying content item: %w", err)
	}
	return item, nil
}

// ListExpiredBoxes returns boxes created before the cutoff
func (s *SQLiteStore) ListExpiredBoxes(ctx context.Context, cutoff time.Time) ([]*Box, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, password_protected, password_hash, created_at
		 FROM boxes WHERE created_at < ?
		 ORDER BY created_at ASC`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("listing expired boxes: %w", err)
	}
	defer rows.Close()

	return collectBoxes(rows)
}

// DeleteBox removes a box; content rows go with it via the cascade
func (s *SQLiteStore) DeleteBox(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM boxes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting box: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting box: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBox(row rowScanner) (*Box, error) {
	box := &Box{}
	var hash sql.NullString
	if err := row.Scan(&box.ID, &box.Name, &box.PasswordProtected, &hash, &box.CreatedAt); err != nil {
		return nil, err
	}
	box.PasswordHash = hash.String
	return box, nil
}

func collectBoxes(rows *sql.Rows) ([]*Box, error) {
	var boxes []*Box
	for rows.Next() {
		box, err := scanBox(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning box: %w", err)
		}
		boxes = append(boxes, box)
	}
	return boxes, rows.Err()
}
