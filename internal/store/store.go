// Package store provides SQLite persistence for discovery: the persistent
// cache tier, the bookshelf and per-source health.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row addressed by key does not exist.
var ErrNotFound = errors.New("store: not found")

// compressThreshold is the value size above which values are zstd-compressed.
const compressThreshold = 1024

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex // Protects all database operations
	now func() time.Time

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// newCodec builds the value compressor pair used by Get and Put.
func newCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(64<<20))
	if err != nil {
		enc.Close()
		return nil, nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return enc, dec, nil
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for better concurrent read performance (file-based DBs only).
func Open(dbPath string) (*Store, error) {
	enc, dec, err := newCodec()
	if err != nil {
		return nil, err
	}

	connStr := dbPath
	if dbPath == ":memory:" {
		// Shared cache so every pooled connection sees the same database;
		// a unique name keeps separate Stores apart.
		connStr = "file:discover-" + uuid.NewString() + "?mode=memory&cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		enc.Close()
		dec.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		enc.Close()
		dec.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			enc.Close()
			dec.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db, now: time.Now, enc: enc, dec: dec}

	if err := s.createTables(); err != nil {
		s.closeCodec()
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return s, nil
}

// SetClock replaces the time source used for expiry. For tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// createTables creates the required tables and indexes if they don't exist.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		compressed INTEGER DEFAULT 0,
		expires_at INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_kv_expires ON kv(expires_at);

	CREATE TABLE IF NOT EXISTS bookshelf (
		name_key TEXT NOT NULL,
		author_key TEXT NOT NULL,
		name TEXT NOT NULL,
		author TEXT,
		added_at DATETIME NOT NULL,
		PRIMARY KEY (name_key, author_key)
	);

	CREATE TABLE IF NOT EXISTS sources (
		url TEXT PRIMARY KEY,
		avg_response_ms INTEGER DEFAULT 0,
		failures INTEGER DEFAULT 0,
		backoff_until DATETIME,
		last_update DATETIME,
		item_count INTEGER DEFAULT 0,
		last_error TEXT
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCodec()
	return s.db.Close()
}

func (s *Store) closeCodec() {
	s.enc.Close()
	s.dec.Close()
}

// Get returns the value stored under key. ok is false when the key is
// missing or expired; expired rows are removed.
// Thread-safe: acquires write lock (may delete).
func (s *Store) Get(key string) (value []byte, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		raw        []byte
		compressed int
		expiresAt  int64
	)
	err = sq.Select("value", "compressed", "expires_at").
		From("kv").
		Where(sq.Eq{"key": key}).
		RunWith(s.db).
		QueryRow().
		Scan(&raw, &compressed, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}

	if expiresAt > 0 && s.now().UnixMilli() >= expiresAt {
		if _, err := sq.Delete("kv").Where(sq.Eq{"key": key}).RunWith(s.db).Exec(); err != nil {
			return nil, false, fmt.Errorf("delete expired %s: %w", key, err)
		}
		return nil, false, nil
	}

	if compressed != 0 {
		raw, err = s.dec.DecodeAll(raw, nil)
		if err != nil {
			return nil, false, fmt.Errorf("decompress %s: %w", key, err)
		}
	}
	return raw, true, nil
}

// Put stores value under key, replacing any previous value. A ttl <= 0 never
// expires. Values larger than 1 KiB are compressed.
// Thread-safe: acquires write lock.
func (s *Store) Put(key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var expiresAt int64
	if ttl > 0 {
		expiresAt = now.Add(ttl).UnixMilli()
	}

	compressed := 0
	if len(value) > compressThreshold {
		value = s.enc.EncodeAll(value, make([]byte, 0, len(value)/2))
		compressed = 1
	}

	_, err := sq.Insert("kv").
		Columns("key", "value", "compressed", "expires_at", "created_at").
		Values(key, value, compressed, expiresAt, now.UnixMilli()).
		Suffix(`ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			compressed = excluded.compressed,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at`).
		RunWith(s.db).
		Exec()
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
// Thread-safe: acquires write lock.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := sq.Delete("kv").Where(sq.Eq{"key": key}).RunWith(s.db).Exec()
	return err
}

// DeleteByPrefix removes every key starting with prefix and returns the
// number of rows removed. An empty prefix removes everything.
// Thread-safe: acquires write lock.
func (s *Store) DeleteByPrefix(prefix string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := sq.Delete("kv")
	if prefix != "" {
		q = q.Where(sq.Expr("substr(key, 1, ?) = ?", len(prefix), prefix))
	}
	res, err := q.RunWith(s.db).Exec()
	if err != nil {
		return 0, fmt.Errorf("delete prefix %q: %w", prefix, err)
	}
	return res.RowsAffected()
}

// DeleteExpired purges rows whose TTL has passed.
// Thread-safe: acquires write lock.
func (s *Store) DeleteExpired() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := sq.Delete("kv").
		Where(sq.And{
			sq.Gt{"expires_at": 0},
			sq.LtOrEq{"expires_at": s.now().UnixMilli()},
		}).
		RunWith(s.db).
		Exec()
	if err != nil {
		return 0, fmt.Errorf("delete expired: %w", err)
	}
	return res.RowsAffected()
}

// KVStats summarizes the persistent cache tier.
type KVStats struct {
	Rows       int
	Compressed int
	Expired    int
	Bytes      int64
}

// Stats reports row counts and stored bytes for the kv table.
// Thread-safe: acquires read lock.
func (s *Store) Stats() (KVStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st KVStats
	err := sq.Select("COUNT(*)", "COALESCE(SUM(compressed), 0)").
		Column(sq.Expr("COALESCE(SUM(CASE WHEN expires_at > 0 AND expires_at <= ? THEN 1 ELSE 0 END), 0)", s.now().UnixMilli())).
		Column("COALESCE(SUM(LENGTH(value)), 0)").
		From("kv").
		RunWith(s.db).
		QueryRow().
		Scan(&st.Rows, &st.Compressed, &st.Expired, &st.Bytes)
	if err != nil {
		return KVStats{}, fmt.Errorf("kv stats: %w", err)
	}
	return st, nil
}

// Keys lists stored keys with the given prefix, sorted.
// Thread-safe: acquires read lock.
func (s *Store) Keys(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := sq.Select("key").From("kv").OrderBy("key")
	if prefix != "" {
		q = q.Where(sq.Expr("substr(key, 1, ?) = ?", len(prefix), prefix))
	}
	rows, err := q.RunWith(s.db).Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
