package cache

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// Entry is one cached value together with the schema version that wrote it.
type Entry struct {
	Key           string
	Value         []byte
	SchemaVersion string
	CreatedAt     time.Time
}

// entryRow is the on-disk representation. Values above the compression
// threshold are stored zstd-compressed.
type entryRow struct {
	bun.BaseModel `bun:"table:entries"`

	CacheKey      string `bun:"cache_key,pk"`
	Value         []byte `bun:"value,notnull"`
	Compressed    bool   `bun:"compressed,notnull"`
	Size          int    `bun:"size,notnull"`
	SchemaVersion string `bun:"schema_version,notnull"`
	CreatedAt     int64  `bun:"created_at,notnull"`
}

// StoreOptions bounds and tunes a Store.
type StoreOptions struct {
	// CapacityBytes caps the database file size. Writes past it fail with
	// ErrCapacityExceeded. Zero means DefaultCapacityMB.
	CapacityBytes int64
	// CompressionThreshold is the value size in bytes above which values are
	// compressed. Zero or negative disables compression.
	CompressionThreshold int
}

// Store is a single module's on-disk key/value database. It is owned by
// whoever opened it and is not meant to be shared across processes.
type Store struct {
	path string
	opts StoreOptions

	mu sync.Mutex
	db *bun.DB
}

// maxDecodedBytes bounds a single decompressed value.
const maxDecodedBytes = 1 << 30

var (
	coderOnce   sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	errCoder    error
)

// coders returns the shared zstd encoder and decoder, building them on first
// use.
func coders() (*zstd.Encoder, *zstd.Decoder, error) {
	coderOnce.Do(func() {
		zstdEncoder, errCoder = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if errCoder != nil {
			return
		}
		zstdDecoder, errCoder = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedBytes))
	})
	if errCoder != nil {
		return nil, nil, fmt.Errorf("%w: zstd: %w", ErrStorageUnavailable, errCoder)
	}
	return zstdEncoder, zstdDecoder, nil
}

// connector dials SQLite connections that all carry the capacity pragma, so
// a redialed connection keeps the bound.
type connector struct {
	dsn    string
	driver *sqlite3.SQLiteDriver
}

func newConnector(path string, capacity int64) *connector {
	return &connector{
		dsn: path + "?_busy_timeout=5000",
		driver: &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return limitPages(conn, capacity)
			},
		},
	}
}

func (c *connector) Connect(context.Context) (driver.Conn, error) { return c.driver.Open(c.dsn) }
func (c *connector) Driver() driver.Driver                        { return c.driver }

// minPages leaves room for the schema itself in very small stores.
const minPages = 8

// limitPages sets max_page_count so the file stays within capacity bytes.
// SQLite clamps the limit to the current page count, never below it.
func limitPages(conn *sqlite3.SQLiteConn, capacity int64) error {
	pageSize, err := pragmaInt(conn, "page_size")
	if err != nil {
		return fmt.Errorf("read page size: %w", err)
	}
	if pageSize <= 0 {
		pageSize = 4096
	}
	maxPages := capacity / pageSize
	if maxPages < minPages {
		maxPages = minPages
	}
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA max_page_count = %d", maxPages), nil); err != nil {
		return fmt.Errorf("set capacity: %w", err)
	}
	return nil
}

func pragmaInt(conn *sqlite3.SQLiteConn, name string) (int64, error) {
	rows, err := conn.Query("PRAGMA "+name, nil)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	dest := make([]driver.Value, 1)
	if err := rows.Next(dest); err != nil {
		return 0, err
	}
	n, _ := dest[0].(int64)
	return n, nil
}

// OpenStore opens (creating if needed) the SQLite database at path. Any
// failure is reported as ErrStorageUnavailable.
func OpenStore(ctx context.Context, path string, opts StoreOptions) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty path", ErrStorageUnavailable)
	}
	if opts.CapacityBytes <= 0 {
		opts.CapacityBytes = DefaultCapacityMB << 20
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create dir: %w", ErrStorageUnavailable, err)
	}

	sqldb := sql.OpenDB(newConnector(path, opts.CapacityBytes))
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)
	sqldb.SetConnMaxLifetime(0)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: init %s: %w", ErrStorageUnavailable, path, err)
	}
	return &Store{path: path, opts: opts, db: db}, nil
}

func initSchema(ctx context.Context, db *bun.DB) error {
	if err := db.PingContext(ctx); err != nil {
		return err
	}
	if _, err := db.NewCreateTable().Model((*entryRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	if _, err := db.NewCreateIndex().
		Model((*entryRow)(nil)).
		Index("entries_created_at_idx").
		Column("created_at").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) handle() (*bun.DB, error) {
	if s == nil {
		return nil, ErrStoreClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, ErrStoreClosed
	}
	return s.db, nil
}

// Get returns the entry for key. An unknown key is (Entry{}, false, nil).
func (s *Store) Get(ctx context.Context, key string) (Entry, bool, error) {
	db, err := s.handle()
	if err != nil {
		return Entry{}, false, err
	}
	row := new(entryRow)
	err = db.NewSelect().Model(row).Where("cache_key = ?", key).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("%w: read: %w", ErrStorageUnavailable, err)
	}
	value := row.Value
	if row.Compressed {
		if value, err = decompress(row); err != nil {
			return Entry{}, false, err
		}
	}
	return Entry{
		Key:           row.CacheKey,
		Value:         value,
		SchemaVersion: row.SchemaVersion,
		CreatedAt:     time.Unix(0, row.CreatedAt).UTC(),
	}, true, nil
}

// decompress inflates a compressed row. The stored size is checked, never
// trusted as an allocation hint.
func decompress(row *entryRow) ([]byte, error) {
	if row.Size < 0 || row.Size > maxDecodedBytes {
		return nil, fmt.Errorf("%w: size %d out of range", ErrCorruptEntry, row.Size)
	}
	_, dec, err := coders()
	if err != nil {
		return nil, err
	}
	value, err := dec.DecodeAll(row.Value, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptEntry, err)
	}
	if len(value) != row.Size {
		return nil, fmt.Errorf("%w: decoded %d bytes, want %d", ErrCorruptEntry, len(value), row.Size)
	}
	return value, nil
}

// Put stores e, replacing any previous value under the same key.
func (s *Store) Put(ctx context.Context, e Entry) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	row := entryRow{
		CacheKey:      e.Key,
		Value:         e.Value,
		Size:          len(e.Value),
		SchemaVersion: e.SchemaVersion,
		CreatedAt:     created.UTC().UnixNano(),
	}
	if t := s.opts.CompressionThreshold; t > 0 && len(e.Value) > t {
		enc, _, err := coders()
		if err != nil {
			return err
		}
		packed := enc.EncodeAll(e.Value, make([]byte, 0, len(e.Value)))
		if len(packed) < len(e.Value) {
			row.Value = packed
			row.Compressed = true
		}
	}
	_, err = db.NewInsert().
		Model(&row).
		On("CONFLICT (cache_key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("compressed = EXCLUDED.compressed").
		Set("size = EXCLUDED.size").
		Set("schema_version = EXCLUDED.schema_version").
		Set("created_at = EXCLUDED.created_at").
		Exec(ctx)
	if err != nil {
		if isFull(err) {
			return fmt.Errorf("%w: %s: %w", ErrCapacityExceeded, s.path, err)
		}
		return fmt.Errorf("%w: write: %w", ErrStorageUnavailable, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if _, err := db.NewDelete().Model((*entryRow)(nil)).Where("cache_key = ?", key).Exec(ctx); err != nil {
		return fmt.Errorf("%w: delete: %w", ErrStorageUnavailable, err)
	}
	return nil
}

// Keys lists stored keys in ascending order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	var keys []string
	if err := db.NewSelect().Model((*entryRow)(nil)).Column("cache_key").Order("cache_key ASC").Scan(ctx, &keys); err != nil {
		return nil, fmt.Errorf("%w: list: %w", ErrStorageUnavailable, err)
	}
	return keys, nil
}

// Stats summarizes a store's contents.
type Stats struct {
	Path          string `json:"path"`
	Entries       int    `json:"entries"`
	StoredBytes   int64  `json:"stored_bytes"`
	RawBytes      int64  `json:"raw_bytes"`
	Compressed    int    `json:"compressed_entries"`
	CapacityBytes int64  `json:"capacity_bytes"`
}

// Stats returns entry counts and byte totals.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	db, err := s.handle()
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Path: s.path, CapacityBytes: s.opts.CapacityBytes}
	err = db.NewSelect().
		Model((*entryRow)(nil)).
		ColumnExpr("COUNT(*)").
		ColumnExpr("COALESCE(SUM(LENGTH(value)), 0)").
		ColumnExpr("COALESCE(SUM(size), 0)").
		ColumnExpr("COALESCE(SUM(compressed), 0)").
		Scan(ctx, &st.Entries, &st.StoredBytes, &st.RawBytes, &st.Compressed)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: stats: %w", ErrStorageUnavailable, err)
	}
	return st, nil
}

// PurgeOlderThan removes entries created more than maxAge ago and reports how
// many were removed. A non-positive maxAge is a no-op.
func (s *Store) PurgeOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge).UTC().UnixNano()
	res, err := db.NewDelete().Model((*entryRow)(nil)).Where("created_at < ?", cutoff).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: purge: %w", ErrStorageUnavailable, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close releases the database handle. It is safe on a nil or closed store.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func isFull(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrFull
	}
	return false
}
