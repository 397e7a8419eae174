package persistence_test

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"eventreg/db"
	"eventreg/models"
	"eventreg/persistence"
	"eventreg/persistence/mocks"
)

func newFileAdapter(t *testing.T) (*persistence.Adapter, *persistence.FileStore) {
	t.Helper()
	store, err := persistence.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return persistence.NewAdapter(store), store
}

func TestLoadFirstRunCreatesAndSavesEmptyDatabase(t *testing.T) {
	ctx := context.Background()
	adapter, store := newFileAdapter(t)

	d, created, err := adapter.Load(ctx)
	require.NoError(t, err)
	defer d.Close()
	assert.True(t, created)

	encoded, err := store.Get(ctx, persistence.DefaultKey)
	require.NoError(t, err)
	image, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	snap, err := db.FromBytes(ctx, image)
	require.NoError(t, err)
	defer snap.Close()

	ok, err := snap.HasSchema(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	events, err := snap.ListEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestLoadReopensSavedState(t *testing.T) {
	ctx := context.Background()
	adapter, _ := newFileAdapter(t)

	d, _, err := adapter.Load(ctx)
	require.NoError(t, err)
	evt, err := d.CreateEvent(ctx, models.NewEvent{Title: "Talk", DateTime: time.Now(), Location: "Hall"})
	require.NoError(t, err)
	require.NoError(t, adapter.Save(ctx, d))
	require.NoError(t, d.Close())

	reopened, created, err := adapter.Load(ctx)
	require.NoError(t, err)
	defer reopened.Close()
	assert.False(t, created)

	got, err := reopened.GetEvent(ctx, evt.ID)
	require.NoError(t, err)
	assert.Equal(t, "Talk", got.Title)
}

func TestLoadRejectsUnreadableSnapshots(t *testing.T) {
	ctx := context.Background()

	cases := map[string]string{
		"not base64":     "***",
		"not a database": base64.StdEncoding.EncodeToString([]byte("hello world")),
		"empty":          "",
	}
	for name, stored := range cases {
		t.Run(name, func(t *testing.T) {
			adapter, store := newFileAdapter(t)
			require.NoError(t, store.Put(ctx, persistence.DefaultKey, stored))

			d, _, err := adapter.Load(ctx)
			assert.Nil(t, d)
			assert.ErrorIs(t, err, persistence.ErrLoad)
		})
	}
}

func TestLoadStoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	adapter := persistence.NewAdapter(store, persistence.WithKey("custom"))

	store.EXPECT().Get(gomock.Any(), "custom").Return("", errors.New("disk on fire"))

	_, _, err := adapter.Load(context.Background())
	assert.ErrorIs(t, err, persistence.ErrLoad)

	var loadErr *persistence.LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, "custom", loadErr.Key)
}

func TestSaveFailureIsReportedAndKeepsDatabaseUsable(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	adapter := persistence.NewAdapter(store)

	d, err := adapter.Fresh(ctx)
	require.NoError(t, err)
	defer d.Close()

	store.EXPECT().Put(gomock.Any(), persistence.DefaultKey, gomock.Any()).Return(errors.New("quota exceeded"))

	err = adapter.Save(ctx, d)
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrSave)

	_, err = d.CreateEvent(ctx, models.NewEvent{Title: "Still works", DateTime: time.Now(), Location: "Hall"})
	assert.NoError(t, err)
}

func TestSaveDoesNotWriteWhenExportFails(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl) // no Put expected
	adapter := persistence.NewAdapter(store)

	d, err := adapter.Fresh(ctx)
	require.NoError(t, err)
	require.NoError(t, d.Close())

	err = adapter.Save(ctx, d)
	assert.ErrorIs(t, err, persistence.ErrSave)
}

func TestSaveWritesBase64Image(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	adapter := persistence.NewAdapter(store)

	d, err := adapter.Fresh(ctx)
	require.NoError(t, err)
	defer d.Close()

	var written string
	store.EXPECT().Put(gomock.Any(), persistence.DefaultKey, gomock.Any()).DoAndReturn(
		func(_ context.Context, _, value string) error {
			written = value
			return nil
		})

	size, err := adapter.SaveSize(ctx, d)
	require.NoError(t, err)

	image, err := base64.StdEncoding.DecodeString(written)
	require.NoError(t, err)
	assert.Equal(t, size, len(image))
	assert.Equal(t, "SQLite format 3\x00", string(image[:16]))
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	adapter, _ := newFileAdapter(t)

	d, err := adapter.Fresh(ctx)
	require.NoError(t, err)
	defer d.Close()
	capacity := 3
	evt, err := d.CreateEvent(ctx, models.NewEvent{Title: "Talk", DateTime: time.Now(), Location: "Hall", Capacity: &capacity})
	require.NoError(t, err)
	_, err = d.Register(ctx, evt.ID, models.Attendee{FullName: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)

	image, err := adapter.ExportToFile(ctx, d)
	require.NoError(t, err)

	restored, err := adapter.ImportFromBytes(ctx, image)
	require.NoError(t, err)
	defer restored.Close()

	want, err := d.ListRegistrations(ctx)
	require.NoError(t, err)
	got, err := restored.ListRegistrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestImportFromBytesRejectsBadImages(t *testing.T) {
	ctx := context.Background()
	adapter, _ := newFileAdapter(t)

	_, err := adapter.ImportFromBytes(ctx, []byte{0x00, 0x01, 0x02})
	assert.ErrorIs(t, err, persistence.ErrRestore)

	// A valid SQLite file without the application tables.
	other, err := db.OpenMemory()
	require.NoError(t, err)
	defer other.Close()
	_, err = other.Exec(`CREATE TABLE notes (body TEXT)`)
	require.NoError(t, err)
	image, err := other.Export(ctx)
	require.NoError(t, err)

	_, err = adapter.ImportFromBytes(ctx, image)
	assert.ErrorIs(t, err, persistence.ErrRestore)

	// A real image with a valid header whose pages after the first are garbage.
	good, err := adapter.Fresh(ctx)
	require.NoError(t, err)
	defer good.Close()
	image, err = good.Export(ctx)
	require.NoError(t, err)
	pageSize := int(image[16])<<8 | int(image[17])
	for i := pageSize; i < len(image); i++ {
		image[i] = 0xAB
	}
	_, err = adapter.ImportFromBytes(ctx, image)
	assert.ErrorIs(t, err, persistence.ErrRestore)
}
