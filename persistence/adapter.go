package persistence

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"eventreg/db"
)

// DefaultKey is the slot the snapshot is stored under.
const DefaultKey = "event_management_db"

// BackupFilename is the conventional name for downloaded backups.
const BackupFilename = "event_management_backup.sqlite"

// Adapter moves whole-database snapshots between a live db.DB and a Store.
// Every save is a full export; there is no incremental persistence.
type Adapter struct {
	store  Store
	key    string
	logger *slog.Logger
	dbOpts []db.Option
}

type AdapterOption func(*Adapter)

func WithKey(key string) AdapterOption {
	return func(a *Adapter) { a.key = key }
}

func WithLogger(logger *slog.Logger) AdapterOption {
	return func(a *Adapter) { a.logger = logger }
}

// WithClock sets the clock of every database handle the adapter opens.
func WithClock(now func() time.Time) AdapterOption {
	return func(a *Adapter) { a.dbOpts = append(a.dbOpts, db.WithClock(now)) }
}

func NewAdapter(store Store, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		store:  store,
		key:    DefaultKey,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Key() string { return a.key }

// Load opens the database from the stored snapshot. When there is no
// snapshot yet it creates a fresh database with the schema applied and
// saves it straight away; the boolean reports that first-run case.
//
// Decode or engine failures are returned as *LoadError; a failure of that
// first save is returned as *SaveError together with the usable database.
func (a *Adapter) Load(ctx context.Context) (*db.DB, bool, error) {
	encoded, err := a.store.Get(ctx, a.key)
	if errors.Is(err, ErrNotFound) {
		d, err := a.Fresh(ctx)
		if err != nil {
			return nil, false, &LoadError{Key: a.key, Err: err}
		}
		a.logger.Info("created new database")
		return d, true, a.Save(ctx, d)
	}
	if err != nil {
		return nil, false, &LoadError{Key: a.key, Err: err}
	}

	image, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, false, &LoadError{Key: a.key, Err: fmt.Errorf("decode snapshot: %w", err)}
	}
	d, err := db.FromBytes(ctx, image, a.dbOpts...)
	if err != nil {
		return nil, false, &LoadError{Key: a.key, Err: err}
	}
	// Older or foreign images may lack a table; creating it is harmless.
	if err := d.EnsureSchema(ctx); err != nil {
		d.Close()
		return nil, false, &LoadError{Key: a.key, Err: err}
	}

	a.logger.Info("database loaded from snapshot", "key", a.key, "bytes", len(image))
	return d, false, nil
}

// Fresh opens an empty in-memory database with the schema applied. Nothing is saved.
func (a *Adapter) Fresh(ctx context.Context) (*db.DB, error) {
	d, err := db.OpenMemory(a.dbOpts...)
	if err != nil {
		return nil, err
	}
	if err := d.EnsureSchema(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// Save exports the whole database and overwrites the stored snapshot.
// The store is only written once the export has fully succeeded.
func (a *Adapter) Save(ctx context.Context, d *db.DB) error {
	_, err := a.save(ctx, d)
	return err
}

// SaveSize is Save reporting the size of the raw image that was written.
func (a *Adapter) SaveSize(ctx context.Context, d *db.DB) (int, error) {
	return a.save(ctx, d)
}

func (a *Adapter) save(ctx context.Context, d *db.DB) (int, error) {
	image, err := d.Export(ctx)
	if err != nil {
		return 0, &SaveError{Key: a.key, Err: err}
	}
	if err := a.store.Put(ctx, a.key, base64.StdEncoding.EncodeToString(image)); err != nil {
		return 0, &SaveError{Key: a.key, Err: err}
	}
	a.logger.Debug("database saved", "key", a.key, "bytes", len(image))
	return len(image), nil
}

// Clear removes the stored snapshot.
func (a *Adapter) Clear(ctx context.Context) error {
	if err := a.store.Delete(ctx, a.key); err != nil {
		return fmt.Errorf("clear snapshot %q: %w", a.key, err)
	}
	return nil
}

// ExportToFile returns the raw database image for a user download.
// It does not touch the store.
func (a *Adapter) ExportToFile(ctx context.Context, d *db.DB) ([]byte, error) {
	return d.Export(ctx)
}

// ImportFromBytes opens a new database from a user-supplied image. The image
// must be a readable SQLite database containing the events and registrations
// tables. Nothing is saved; the caller persists the result with Save.
func (a *Adapter) ImportFromBytes(ctx context.Context, image []byte) (*db.DB, error) {
	d, err := db.FromBytes(ctx, image, a.dbOpts...)
	if err != nil {
		return nil, &RestoreError{Err: err}
	}
	ok, err := d.HasSchema(ctx)
	if err != nil {
		d.Close()
		return nil, &RestoreError{Err: err}
	}
	if !ok {
		d.Close()
		return nil, &RestoreError{Err: errors.New("image does not contain the events and registrations tables")}
	}
	return d, nil
}
