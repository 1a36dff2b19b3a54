package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"stocktake-api/internal/model"
	"stocktake-api/pkg/uid"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteStore implements Store using SQLite. Reserved item fields map to
// columns; passthrough CSV columns are stored as one JSON TEXT column.
// An atomic batch is one transaction. Thread-safe with WAL mode.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (or creates) the SQLite database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[SQLiteStore] Initialized with database: %s", dbPath)
	return &SQLiteStore{db: db}, nil
}

func createTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		file_name TEXT NOT NULL,
		columns_json TEXT NOT NULL,
		item_count INTEGER NOT NULL,
		updated_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		created_by TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS items (
		session_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		barcode TEXT NOT NULL,
		title TEXT NOT NULL,
		sku TEXT NOT NULL DEFAULT '',
		product_barcode TEXT NOT NULL DEFAULT '',
		extra_json TEXT NOT NULL DEFAULT '{}',
		modified INTEGER NOT NULL DEFAULT 0,
		quantity INTEGER,
		modified_at DATETIME,
		modified_by TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		PRIMARY KEY (session_id, item_id)
	);
	CREATE INDEX IF NOT EXISTS idx_items_sku ON items(session_id, sku);
	CREATE INDEX IF NOT EXISTS idx_items_modified ON items(session_id, modified);
	CREATE TABLE IF NOT EXISTS unknown_barcodes (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		barcode TEXT NOT NULL,
		scanned_at DATETIME NOT NULL,
		scanned_by TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_unknown_session ON unknown_barcodes(session_id, scanned_at);
	CREATE TABLE IF NOT EXISTS presence (
		session_id TEXT NOT NULL,
		operator TEXT NOT NULL,
		seen_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		PRIMARY KEY (session_id, operator)
	);
	`
	_, err := db.Exec(query)
	return err
}

func (s *SQLiteStore) Sessions() SessionStore               { return (*sqliteSessions)(s) }
func (s *SQLiteStore) Items() ItemStore                     { return (*sqliteItems)(s) }
func (s *SQLiteStore) UnknownBarcodes() UnknownBarcodeStore { return (*sqliteUnknown)(s) }
func (s *SQLiteStore) Presence() PresenceStore              { return (*sqlitePresence)(s) }

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteSessions SQLiteStore

func (r *sqliteSessions) Create(ctx context.Context, sess *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	columnsJSON, err := json.Marshal(sess.Columns)
	if err != nil {
		return fmt.Errorf("failed to encode columns: %w", err)
	}

	query := `
		INSERT INTO sessions (id, file_name, columns_json, item_count, updated_count, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		sess.ID, sess.FileName, string(columnsJSON), sess.ItemCount,
		sess.UpdatedCount, sess.CreatedAt, sess.CreatedBy)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func scanSession(row *sql.Row) (*model.Session, error) {
	var sess model.Session
	var columnsJSON string

	err := row.Scan(&sess.ID, &sess.FileName, &columnsJSON, &sess.ItemCount,
		&sess.UpdatedCount, &sess.CreatedAt, &sess.CreatedBy)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	if err := json.Unmarshal([]byte(columnsJSON), &sess.Columns); err != nil {
		return nil, fmt.Errorf("failed to decode columns: %w", err)
	}
	return &sess, nil
}

func (r *sqliteSessions) Get(ctx context.Context, id string) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `SELECT id, file_name, columns_json, item_count, updated_count, created_at, created_by
		FROM sessions WHERE id = ?`
	return scanSession(r.db.QueryRowContext(ctx, query, id))
}

func (r *sqliteSessions) List(ctx context.Context, limit int) ([]model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `SELECT id, file_name, columns_json, item_count, updated_count, created_at, created_by
		FROM sessions ORDER BY created_at DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []model.Session{}
	for rows.Next() {
		var sess model.Session
		var columnsJSON string
		if err := rows.Scan(&sess.ID, &sess.FileName, &columnsJSON, &sess.ItemCount,
			&sess.UpdatedCount, &sess.CreatedAt, &sess.CreatedBy); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if err := json.Unmarshal([]byte(columnsJSON), &sess.Columns); err != nil {
			return nil, fmt.Errorf("failed to decode columns: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (r *sqliteSessions) IncrementUpdatedCount(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET updated_count = updated_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to increment updated count: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteSessions) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

type sqliteItems SQLiteStore

const itemColumns = `item_id, barcode, title, sku, product_barcode, extra_json,
	modified, quantity, modified_at, modified_by, created_at`

func (r *sqliteItems) BulkPut(ctx context.Context, sessionID string, items []model.Item) error {
	if len(items) == 0 {
		return nil
	}
	if len(items) > MaxBatchSize {
		return ErrBatchTooLarge
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO items (session_id, `+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, item_id) DO UPDATE SET
			barcode = excluded.barcode,
			title = excluded.title,
			sku = excluded.sku,
			product_barcode = excluded.product_barcode,
			extra_json = excluded.extra_json,
			modified = excluded.modified,
			quantity = excluded.quantity,
			modified_at = excluded.modified_at,
			modified_by = excluded.modified_by,
			created_at = excluded.created_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := range items {
		it := &items[i]
		extraJSON, err := json.Marshal(it.Extra)
		if err != nil {
			return fmt.Errorf("failed to encode extra columns for %s: %w", it.ID, err)
		}

		var quantity sql.NullInt64
		if it.Quantity != nil {
			quantity = sql.NullInt64{Int64: int64(*it.Quantity), Valid: true}
		}
		var modifiedAt sql.NullTime
		if it.ModifiedAt != nil {
			modifiedAt = sql.NullTime{Time: *it.ModifiedAt, Valid: true}
		}

		_, err = stmt.ExecContext(ctx, sessionID, it.ID, it.Barcode, it.Title, it.SKU,
			it.ProductBarcode, string(extraJSON), it.Modified, quantity, modifiedAt,
			it.ModifiedBy, it.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to write item %s: %w", it.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type itemScanner interface {
	Scan(dest ...any) error
}

func scanItem(row itemScanner) (*model.Item, error) {
	var it model.Item
	var extraJSON string
	var quantity sql.NullInt64
	var modifiedAt sql.NullTime

	err := row.Scan(&it.ID, &it.Barcode, &it.Title, &it.SKU, &it.ProductBarcode,
		&extraJSON, &it.Modified, &quantity, &modifiedAt, &it.ModifiedBy, &it.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}

	if err := json.Unmarshal([]byte(extraJSON), &it.Extra); err != nil {
		return nil, fmt.Errorf("failed to decode extra columns: %w", err)
	}
	if quantity.Valid {
		q := int(quantity.Int64)
		it.Quantity = &q
	}
	if modifiedAt.Valid {
		t := modifiedAt.Time
		it.ModifiedAt = &t
	}
	return &it, nil
}

func (r *sqliteItems) Get(ctx context.Context, sessionID, itemID string) (*model.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `SELECT ` + itemColumns + ` FROM items WHERE session_id = ? AND item_id = ?`
	return scanItem(r.db.QueryRowContext(ctx, query, sessionID, itemID))
}

func (r *sqliteItems) FindBySKU(ctx context.Context, sessionID, sku string) (*model.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `SELECT ` + itemColumns + ` FROM items WHERE session_id = ? AND sku = ? LIMIT 1`
	return scanItem(r.db.QueryRowContext(ctx, query, sessionID, sku))
}

func (r *sqliteItems) list(ctx context.Context, query string, args ...any) ([]model.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	items := []model.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func (r *sqliteItems) List(ctx context.Context, sessionID string) ([]model.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE session_id = ? ORDER BY created_at, rowid`
	return r.list(ctx, query, sessionID)
}

func (r *sqliteItems) ListModified(ctx context.Context, sessionID string) ([]model.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE session_id = ? AND modified = 1 ORDER BY created_at, rowid`
	return r.list(ctx, query, sessionID)
}

func (r *sqliteItems) SaveCount(ctx context.Context, sessionID, itemID, productBarcode string, quantity int, operator string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `UPDATE items
		SET product_barcode = ?, quantity = ?, modified = 1, modified_at = ?, modified_by = ?
		WHERE session_id = ? AND item_id = ?`

	res, err := r.db.ExecContext(ctx, query, productBarcode, quantity, time.Now(), operator, sessionID, itemID)
	if err != nil {
		return fmt.Errorf("failed to save count: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteItems) PageIDs(ctx context.Context, sessionID string, limit int) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx,
		`SELECT item_id FROM items WHERE session_id = ? LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to page item ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *sqliteItems) BulkDelete(ctx context.Context, sessionID string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	if len(itemIDs) > MaxBatchSize {
		return ErrBatchTooLarge
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	placeholders := strings.Repeat("?,", len(itemIDs)-1) + "?"
	args := make([]any, 0, len(itemIDs)+1)
	args = append(args, sessionID)
	for _, id := range itemIDs {
		args = append(args, id)
	}

	query := `DELETE FROM items WHERE session_id = ? AND item_id IN (` + placeholders + `)`
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to bulk delete items: %w", err)
	}
	return nil
}

type sqliteUnknown SQLiteStore

func (r *sqliteUnknown) Add(ctx context.Context, sessionID string, rec *model.UnknownBarcode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uid.New()
	}

	query := `INSERT INTO unknown_barcodes (id, session_id, barcode, scanned_at, scanned_by)
		VALUES (?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, rec.ID, sessionID, rec.Barcode, rec.ScannedAt, rec.ScannedBy); err != nil {
		return fmt.Errorf("failed to log unknown barcode: %w", err)
	}
	return nil
}

func (r *sqliteUnknown) List(ctx context.Context, sessionID string) ([]model.UnknownBarcode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `SELECT id, barcode, scanned_at, scanned_by FROM unknown_barcodes
		WHERE session_id = ? ORDER BY scanned_at DESC, rowid DESC`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unknown barcodes: %w", err)
	}
	defer rows.Close()

	recs := []model.UnknownBarcode{}
	for rows.Next() {
		var rec model.UnknownBarcode
		if err := rows.Scan(&rec.ID, &rec.Barcode, &rec.ScannedAt, &rec.ScannedBy); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (r *sqliteUnknown) PageIDs(ctx context.Context, sessionID string, limit int) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM unknown_barcodes WHERE session_id = ? LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to page unknown barcode ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *sqliteUnknown) BulkDelete(ctx context.Context, sessionID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) > MaxBatchSize {
		return ErrBatchTooLarge
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]any, 0, len(ids)+1)
	args = append(args, sessionID)
	for _, id := range ids {
		args = append(args, id)
	}

	query := `DELETE FROM unknown_barcodes WHERE session_id = ? AND id IN (` + placeholders + `)`
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to bulk delete unknown barcodes: %w", err)
	}
	return nil
}

type sqlitePresence SQLiteStore

func (r *sqlitePresence) Heartbeat(ctx context.Context, sessionID, operator string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	query := `INSERT INTO presence (session_id, operator, seen_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, operator) DO UPDATE SET
			seen_at = excluded.seen_at,
			expires_at = excluded.expires_at`

	if _, err := r.db.ExecContext(ctx, query, sessionID, operator, now, now.Add(ttl)); err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	return nil
}

func (r *sqlitePresence) Leave(ctx context.Context, sessionID, operator string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM presence WHERE session_id = ? AND operator = ?`, sessionID, operator); err != nil {
		return fmt.Errorf("failed to remove presence: %w", err)
	}
	return nil
}

func (r *sqlitePresence) Roster(ctx context.Context, sessionID string) ([]model.Presence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `SELECT operator, seen_at FROM presence
		WHERE session_id = ? AND expires_at > ? ORDER BY operator COLLATE NOCASE`

	rows, err := r.db.QueryContext(ctx, query, sessionID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to list presence: %w", err)
	}
	defer rows.Close()

	out := []model.Presence{}
	for rows.Next() {
		var p model.Presence
		if err := rows.Scan(&p.Operator, &p.SeenAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *sqlitePresence) Clear(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM presence WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear presence: %w", err)
	}
	return nil
}

// Ensure SQLiteStore satisfies Store.
var _ Store = (*SQLiteStore)(nil)
