package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id        TEXT PRIMARY KEY,
	source    TEXT NOT NULL,
	text      TEXT NOT NULL,
	embedding BLOB NOT NULL,
	metadata  TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source);
`

// SQLiteBackend keeps chunks in a local SQLite database. Rows are read
// back in rowid order, which is insertion order.
type SQLiteBackend struct {
	db   *sql.DB
	path string
}

// NewSQLiteBackend opens or creates the database at path.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", ErrInvalidConfig)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteBackend{db: db, path: path}, nil
}

// Name implements Backend.
func (s *SQLiteBackend) Name() string { return "sqlite" }

// Ping implements Pinger.
func (s *SQLiteBackend) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetAll implements Backend.
func (s *SQLiteBackend) GetAll(ctx context.Context) ([]ChunkRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, text, embedding, metadata FROM chunks ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	records := make([]ChunkRecord, 0)
	for rows.Next() {
		var (
			rec      ChunkRecord
			blob     []byte
			metaJSON string
		)
		if err := rows.Scan(&rec.ID, &rec.Text, &blob, &metaJSON); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("chunk %s: %w", rec.ID, err)
		}
		rec.Embedding = decodeFloat32s(blob)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return records, nil
}

// InsertOne implements Backend.
func (s *SQLiteBackend) InsertOne(ctx context.Context, rec ChunkRecord) error {
	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chunks(id, source, text, embedding, metadata) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Metadata.Source, rec.Text, encodeFloat32s(rec.Embedding), string(metaJSON))
	if err != nil {
		return fmt.Errorf("inserting chunk %s: %w", rec.ID, err)
	}
	return nil
}

// DeleteMany implements Backend.
func (s *SQLiteBackend) DeleteMany(ctx context.Context, source string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE source = ?`, source)
	if err != nil {
		return 0, fmt.Errorf("deleting source %q: %w", source, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting source %q: %w", source, err)
	}
	return int(n), nil
}

// Clear implements Backend.
func (s *SQLiteBackend) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}
	return nil
}

// Seed implements Seeder.
func (s *SQLiteBackend) Seed(ctx context.Context, records []ChunkRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}
	for _, rec := range records {
		metaJSON, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunks(id, source, text, embedding, metadata) VALUES (?, ?, ?, ?, ?)`,
			rec.ID, rec.Metadata.Source, rec.Text, encodeFloat32s(rec.Embedding), string(metaJSON)); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", rec.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing seed: %w", err)
	}
	return nil
}

// Close implements Backend.
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeFloat32s(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

var (
	_ Backend = (*SQLiteBackend)(nil)
	_ Pinger  = (*SQLiteBackend)(nil)
	_ Seeder  = (*SQLiteBackend)(nil)
)
