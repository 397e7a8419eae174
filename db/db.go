package db

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"modernc.org/sqlite"
)

const driverName = "sqlite"

// MemoryDSN opens a private in-memory database. The image lives only as long
// as the single pooled connection, which is why the pool is pinned below.
const MemoryDSN = ":memory:"

// sqliteHeader is the magic string every SQLite database image starts with.
var sqliteHeader = []byte("SQLite format 3\x00")

// DB represents our database layer
type DB struct {
	*sql.DB
	now func() time.Time
}

// Option configures a DB.
type Option func(*DB)

// WithClock overrides the clock used for server-assigned timestamps.
func WithClock(now func() time.Time) Option {
	return func(db *DB) {
		db.now = now
	}
}

// Open initializes and connects to the SQLite database
func Open(dsn string, opts ...Option) (*DB, error) {
	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection owns the whole database image: every statement, the
	// registration transaction and snapshot export all run on it in turn.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{DB: sqlDB, now: time.Now}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// OpenMemory opens a fresh, empty in-memory database. The schema is not applied.
func OpenMemory(opts ...Option) (*DB, error) {
	return Open(MemoryDSN, opts...)
}

// FromBytes opens a new in-memory database whose contents are the given image.
// The image is checked for the SQLite header and basic readability; the caller
// decides whether the schema it contains is acceptable.
//
// The image is staged in a temporary file and copied page by page into the
// in-memory database with SQLite's online backup API. The driver's
// Deserialize is not used: handles loaded through it fault on Close.
func FromBytes(ctx context.Context, image []byte, opts ...Option) (*DB, error) {
	if len(image) < 100 || !bytes.HasPrefix(image, sqliteHeader) {
		return nil, errors.New("not a sqlite database image")
	}

	path, err := stageImage(image)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	db, err := OpenMemory(opts...)
	if err != nil {
		return nil, err
	}

	err = db.raw(ctx, func(driverConn any) error {
		r, ok := driverConn.(restorer)
		if !ok {
			return fmt.Errorf("driver connection %T does not support restore", driverConn)
		}
		bck, err := r.NewRestore("file:" + path)
		if err != nil {
			return err
		}
		_, stepErr := bck.Step(-1)
		return errors.Join(stepErr, bck.Finish())
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load database image: %w", err)
	}

	if err := db.CheckIntegrity(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func stageImage(image []byte) (string, error) {
	f, err := os.CreateTemp("", "eventreg-*.sqlite")
	if err != nil {
		return "", fmt.Errorf("failed to stage database image: %w", err)
	}
	path := f.Name()
	_, err = f.Write(image)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to stage database image: %w", err)
	}
	return path, nil
}

// Export returns the complete binary image of the database. The result is a
// valid SQLite file that FromBytes (or any SQLite tool) can open.
func (db *DB) Export(ctx context.Context) ([]byte, error) {
	var image []byte
	err := db.raw(ctx, func(driverConn any) error {
		s, ok := driverConn.(serializer)
		if !ok {
			return fmt.Errorf("driver connection %T does not support serialization", driverConn)
		}
		b, err := s.Serialize()
		if err != nil {
			return err
		}
		image = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize database: %w", err)
	}
	if len(image) == 0 {
		return nil, errors.New("failed to serialize database: empty image")
	}
	return image, nil
}

// CheckIntegrity runs SQLite's quick_check and fails unless it reports "ok".
func (db *DB) CheckIntegrity(ctx context.Context) error {
	var result string
	if err := db.QueryRowContext(ctx, `PRAGMA quick_check`).Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// serializer and restorer are implemented by the modernc.org/sqlite driver connection.
type serializer interface {
	Serialize() ([]byte, error)
}

type restorer interface {
	NewRestore(srcURI string) (*sqlite.Backup, error)
}

func (db *DB) raw(ctx context.Context, fn func(driverConn any) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	return conn.Raw(fn)
}
