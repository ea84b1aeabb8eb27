package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
	"ragchat/internal/vectorstore/memory"
)

// FileName is the database file created inside the index directory.
const FileName = "index.db"

type Mode int

const (
	ReadWrite Mode = iota
	ReadOnly
)

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS chunks (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	source      TEXT NOT NULL,
	page        INTEGER NOT NULL,
	position    INTEGER NOT NULL,
	start_pos   INTEGER NOT NULL,
	end_pos     INTEGER NOT NULL,
	content     TEXT NOT NULL,
	embedding   BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source, position);
`

// Storage persists chunks and their vectors in a single SQLite file.
// Searches load every row into an in-memory index on first use.
type Storage struct {
	db   *sql.DB
	path string

	mu     sync.Mutex
	cache  *memory.Storage
	dim    int
	loaded bool
}

// Open opens the index inside dir. ReadOnly fails with ErrIndexNotFound when
// no index file exists; ReadWrite creates the directory and schema.
func Open(dir string, mode Mode) (*Storage, error) {
	dbPath := filepath.Join(dir, FileName)
	dsn := dbPath + "?_pragma=busy_timeout(5000)"

	if mode == ReadOnly {
		if _, err := os.Stat(dbPath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", vectorstore.ErrIndexNotFound, dbPath)
			}
			return nil, fmt.Errorf("checking index file: %w", err)
		}
		dsn += "&_pragma=query_only(1)"
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating index directory: %w", err)
		}
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &Storage{db: db, path: dbPath}

	if mode == ReadWrite {
		if _, err := db.Exec(schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	} else if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return s, nil
}

// Remove deletes the index files inside dir. Missing files are ignored.
func Remove(dir string) error {
	for _, name := range []string{FileName, FileName + "-wal", FileName + "-shm"} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (s *Storage) Path() string { return s.path }

func (s *Storage) Init(ctx context.Context, meta vectorstore.IndexMeta) error {
	if meta.Dimension < 0 {
		return fmt.Errorf("invalid dimension %d", meta.Dimension)
	}
	n, err := s.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return vectorstore.ErrIndexNotEmpty
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createdAt := meta.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	values := map[string]string{
		"embedding_model": meta.EmbeddingModel,
		"dimension":       strconv.Itoa(meta.Dimension),
		"digest":          meta.Digest,
		"created_at":      createdAt.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range values {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO meta (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			return fmt.Errorf("saving meta %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	s.mu.Lock()
	s.dim = meta.Dimension
	s.loaded = false
	s.mu.Unlock()
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}
	s.mu.Lock()
	dim := s.dim
	s.mu.Unlock()
	for _, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: got %d, want %d", vectorstore.ErrDimensionMismatch, len(v), dim)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, source, page, position, start_pos, end_pos, content, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			source = excluded.source,
			page = excluded.page,
			position = excluded.position,
			start_pos = excluded.start_pos,
			end_pos = excluded.end_pos,
			content = excluded.content,
			embedding = excluded.embedding
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.Source, c.Page, c.Index,
			c.Start, c.End, c.Text, float32SliceToBytes(vectors[i])); err != nil {
			return fmt.Errorf("saving chunk: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	s.mu.Lock()
	s.loaded = false
	s.mu.Unlock()
	return nil
}

// Meta returns ErrIndexNotFound when the index was never initialised.
func (s *Storage) Meta(ctx context.Context) (vectorstore.IndexMeta, error) {
	meta, err := s.readMeta(ctx)
	if err != nil {
		return vectorstore.IndexMeta{}, err
	}
	s.mu.Lock()
	s.dim = meta.Dimension
	s.mu.Unlock()
	return meta, nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	cache, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return cache.Search(ctx, vector, topK)
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) load(ctx context.Context) (*memory.Storage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.cache, nil
	}

	meta, err := s.readMeta(ctx)
	if err != nil {
		return nil, err
	}
	s.dim = meta.Dimension
	cache := memory.NewStorage()
	if err := cache.Init(ctx, meta); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, source, page, position, start_pos, end_pos, content, embedding
		FROM chunks ORDER BY source, position`)
	if err != nil {
		return nil, fmt.Errorf("loading chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	var vectors [][]float32
	for rows.Next() {
		var c domain.Chunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Source, &c.Page, &c.Index,
			&c.Start, &c.End, &c.Text, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunks = append(chunks, c)
		vectors = append(vectors, bytesToFloat32Slice(blob))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading chunks: %w", err)
	}
	if err := cache.Upsert(ctx, chunks, vectors); err != nil {
		return nil, err
	}
	s.cache = cache
	s.loaded = true
	return cache, nil
}

func (s *Storage) readMeta(ctx context.Context) (vectorstore.IndexMeta, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return vectorstore.IndexMeta{}, fmt.Errorf("reading meta: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return vectorstore.IndexMeta{}, fmt.Errorf("scanning meta: %w", err)
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return vectorstore.IndexMeta{}, fmt.Errorf("reading meta: %w", err)
	}
	if len(values) == 0 {
		return vectorstore.IndexMeta{}, fmt.Errorf("%w: %s has no metadata", vectorstore.ErrIndexNotFound, s.path)
	}

	meta := vectorstore.IndexMeta{
		EmbeddingModel: values["embedding_model"],
		Digest:         values["digest"],
	}
	if meta.Dimension, err = strconv.Atoi(values["dimension"]); err != nil {
		return vectorstore.IndexMeta{}, fmt.Errorf("parsing dimension: %w", err)
	}
	if v := values["created_at"]; v != "" {
		if meta.CreatedAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return vectorstore.IndexMeta{}, fmt.Errorf("parsing created_at: %w", err)
		}
	}
	return meta, nil
}

// float32SliceToBytes converts a []float32 to a little-endian byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
