package registry_test

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"eventreg/db"
	"eventreg/models"
	"eventreg/persistence"
	"eventreg/persistence/mocks"
	"eventreg/registry"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

type RegistrySuite struct {
	suite.Suite
	store *persistence.FileStore
	reg   *registry.Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	store, err := persistence.NewFileStore(s.T().TempDir())
	s.Require().NoError(err)
	s.store = store
	s.reg = s.open()
}

func (s *RegistrySuite) TearDownTest() {
	s.Require().NoError(s.reg.Close())
}

func (s *RegistrySuite) open(opts ...registry.Option) *registry.Registry {
	adapter := persistence.NewAdapter(s.store, persistence.WithClock(clock))
	reg := registry.New(adapter, append([]registry.Option{registry.WithClock(clock)}, opts...)...)
	s.Require().NoError(reg.Open(context.Background()))
	return reg
}

func (s *RegistrySuite) createEvent(title string, capacity *int) *models.Event {
	evt, err := s.reg.CreateEvent(context.Background(), models.NewEvent{
		Title:    title,
		DateTime: now.Add(24 * time.Hour),
		Location: "Main Hall",
		Capacity: capacity,
	})
	s.Require().NoError(err)
	return evt
}

func (s *RegistrySuite) snapshot() string {
	v, err := s.store.Get(context.Background(), persistence.DefaultKey)
	s.Require().NoError(err)
	return v
}

func attendee(name string) models.Attendee {
	return models.Attendee{FullName: name, Email: name + "@example.com"}
}

func (s *RegistrySuite) TestFreshStartSavesEmptySnapshot() {
	image, err := base64.StdEncoding.DecodeString(s.snapshot())
	s.Require().NoError(err)

	d, err := db.FromBytes(context.Background(), image)
	s.Require().NoError(err)
	defer d.Close()

	events, err := d.ListEvents(context.Background())
	s.Require().NoError(err)
	s.Empty(events)
}

func (s *RegistrySuite) TestCapacityScenario() {
	ctx := context.Background()
	capacity := 2
	evt := s.createEvent("Talk", &capacity)

	_, err := s.reg.Register(ctx, evt.ID, attendee("a"))
	s.Require().NoError(err)
	_, err = s.reg.Register(ctx, evt.ID, attendee("b"))
	s.Require().NoError(err)

	_, err = s.reg.Register(ctx, evt.ID, attendee("c"))
	s.ErrorIs(err, db.ErrCapacityExceeded)

	detail, err := s.reg.Event(ctx, evt.ID)
	s.Require().NoError(err)
	s.Len(detail.Registrations, 2)
	s.Equal(models.AvailabilityFull, detail.Availability)
	s.Equal(models.StatusUpcoming, detail.Status)
}

func (s *RegistrySuite) TestMutationsSurviveReload() {
	ctx := context.Background()
	evt := s.createEvent("Talk", nil)
	reg, err := s.reg.Register(ctx, evt.ID, attendee("a"))
	s.Require().NoError(err)
	drop := s.createEvent("Dropped", nil)
	s.Require().NoError(s.reg.DeleteEvent(ctx, drop.ID))
	s.Require().NoError(s.reg.Close())

	s.reg = s.open()

	regs, err := s.reg.ListRegistrations(ctx)
	s.Require().NoError(err)
	s.Require().Len(regs, 1)
	s.Equal(reg.ID, regs[0].ID)
	s.Equal("Talk", regs[0].EventTitle)

	events, err := s.reg.ListEvents(ctx)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(evt.ID, events[0].ID)
}

func (s *RegistrySuite) TestDeleteEventCascades() {
	ctx := context.Background()
	evt := s.createEvent("Talk", nil)
	for i := 0; i < 3; i++ {
		_, err := s.reg.Register(ctx, evt.ID, attendee(fmt.Sprint("guest", i)))
		s.Require().NoError(err)
	}

	s.Require().NoError(s.reg.DeleteEvent(ctx, evt.ID))

	_, err := s.reg.Event(ctx, evt.ID)
	s.ErrorIs(err, db.ErrNotFound)
	regs, err := s.reg.ListRegistrations(ctx)
	s.Require().NoError(err)
	s.Empty(regs)

	s.ErrorIs(s.reg.DeleteEvent(ctx, evt.ID), db.ErrNotFound)
}

func (s *RegistrySuite) TestDeleteUnknownRegistrationIsNoop() {
	before := s.snapshot()

	deleted, err := s.reg.DeleteRegistration(context.Background(), 404)
	s.Require().NoError(err)
	s.False(deleted)
	s.Equal(before, s.snapshot())
}

func (s *RegistrySuite) TestRestoreCorruptKeepsLiveDatabaseAndSnapshot() {
	ctx := context.Background()
	evt := s.createEvent("Keep me", nil)
	before := s.snapshot()

	err := s.reg.Restore(ctx, []byte("this is not sqlite"))
	s.ErrorIs(err, persistence.ErrRestore)

	detail, err := s.reg.Event(ctx, evt.ID)
	s.Require().NoError(err)
	s.Equal("Keep me", detail.Event.Title)
	s.Equal(before, s.snapshot())
}

func corruptPages(image []byte) []byte {
	pageSize := int(image[16])<<8 | int(image[17])
	out := append([]byte(nil), image...)
	for i := pageSize; i < len(out); i++ {
		out[i] = 0xAB
	}
	return out
}

func (s *RegistrySuite) TestRestoreRejectsDamagedAndForeignImages() {
	ctx := context.Background()
	evt := s.createEvent("Keep me", nil)
	before := s.snapshot()

	backup, err := s.reg.Backup(ctx)
	s.Require().NoError(err)
	s.ErrorIs(s.reg.Restore(ctx, corruptPages(backup)), persistence.ErrRestore)

	foreign, err := db.OpenMemory()
	s.Require().NoError(err)
	_, err = foreign.Exec(`CREATE TABLE notes (body TEXT)`)
	s.Require().NoError(err)
	image, err := foreign.Export(ctx)
	s.Require().NoError(err)
	s.Require().NoError(foreign.Close())
	s.ErrorIs(s.reg.Restore(ctx, image), persistence.ErrRestore)

	detail, err := s.reg.Event(ctx, evt.ID)
	s.Require().NoError(err)
	s.Equal("Keep me", detail.Event.Title)
	s.Equal(before, s.snapshot())
}

func (s *RegistrySuite) TestRestoreAndResetAfterReload() {
	ctx := context.Background()
	s.createEvent("Persisted", nil)

	// The reopened registry holds a handle loaded from the stored snapshot.
	s.Require().NoError(s.reg.Close())
	s.reg = s.open()

	backup, err := s.reg.Backup(ctx)
	s.Require().NoError(err)

	s.Require().NoError(s.reg.Restore(ctx, backup))
	events, err := s.reg.ListEvents(ctx)
	s.Require().NoError(err)
	s.Require().Len(events, 1)

	s.Require().NoError(s.reg.Close())
	s.reg = s.open()
	s.Require().NoError(s.reg.Reset(ctx))
	events, err = s.reg.ListEvents(ctx)
	s.Require().NoError(err)
	s.Empty(events)

	s.Require().NoError(s.reg.Restore(ctx, backup))
	events, err = s.reg.ListEvents(ctx)
	s.Require().NoError(err)
	s.Len(events, 1)
}

func (s *RegistrySuite) TestBackupAndRestore() {
	ctx := context.Background()
	evt := s.createEvent("Backed up", nil)
	_, err := s.reg.Register(ctx, evt.ID, attendee("a"))
	s.Require().NoError(err)

	backup, err := s.reg.Backup(ctx)
	s.Require().NoError(err)

	s.Require().NoError(s.reg.Reset(ctx))
	events, err := s.reg.ListEvents(ctx)
	s.Require().NoError(err)
	s.Empty(events)

	s.Require().NoError(s.reg.Restore(ctx, backup))
	events, err = s.reg.ListEvents(ctx)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal("Backed up", events[0].Title)
	s.Equal(1, events[0].RegistrationCount)

	// The restored state is what a restart sees.
	s.Require().NoError(s.reg.Close())
	s.reg = s.open()
	events, err = s.reg.ListEvents(ctx)
	s.Require().NoError(err)
	s.Len(events, 1)
}

func (s *RegistrySuite) TestResetSurvivesReload() {
	ctx := context.Background()
	s.createEvent("Gone", nil)

	s.Require().NoError(s.reg.Reset(ctx))
	s.Require().NoError(s.reg.Close())
	s.reg = s.open()

	stats, err := s.reg.Stats(ctx)
	s.Require().NoError(err)
	s.Equal(models.Stats{}, stats)
}

func (s *RegistrySuite) TestCorruptSnapshotFallsBackToFreshDatabase() {
	ctx := context.Background()
	s.Require().NoError(s.reg.Close())
	s.Require().NoError(s.store.Put(ctx, persistence.DefaultKey, "%%% not base64 %%%"))

	s.reg = s.open()

	events, err := s.reg.ListEvents(ctx)
	s.Require().NoError(err)
	s.Empty(events)

	_, err = base64.StdEncoding.DecodeString(s.snapshot())
	s.NoError(err, "the fresh database replaces the unreadable snapshot")
}

func (s *RegistrySuite) TestSampleDataOnFirstRunOnly() {
	ctx := context.Background()
	s.Require().NoError(s.reg.Close())
	s.Require().NoError(s.store.Delete(ctx, persistence.DefaultKey))

	s.reg = s.open(registry.WithSampleData(true))
	dash, err := s.reg.Dashboard(ctx)
	s.Require().NoError(err)
	s.Equal(5, dash.Stats.TotalEvents)
	s.Len(dash.Upcoming, 3)
	s.Len(dash.Recent, 3)
	s.Equal("Web Programming Workshop", dash.Upcoming[0].Title)

	first := dash.Upcoming[0]
	s.Require().NoError(s.reg.DeleteEvent(ctx, first.ID))
	s.Require().NoError(s.reg.Close())

	s.reg = s.open(registry.WithSampleData(true))
	stats, err := s.reg.Stats(ctx)
	s.Require().NoError(err)
	s.Equal(4, stats.TotalEvents)
}

func (s *RegistrySuite) TestValidation() {
	ctx := context.Background()

	_, err := s.reg.CreateEvent(ctx, models.NewEvent{Title: "  ", DateTime: now, Location: "x"})
	s.ErrorIs(err, models.ErrValidation)

	zero := 0
	_, err = s.reg.CreateEvent(ctx, models.NewEvent{Title: "t", DateTime: now, Location: "x", Capacity: &zero})
	s.ErrorIs(err, models.ErrValidation)

	evt := s.createEvent("Talk", nil)
	_, err = s.reg.Register(ctx, evt.ID, models.Attendee{FullName: "No Email"})
	s.ErrorIs(err, models.ErrValidation)
}

func (s *RegistrySuite) TestConcurrentRegistrations() {
	ctx := context.Background()
	capacity := 7
	evt := s.createEvent("Popular", &capacity)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		full    int
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.reg.Register(ctx, evt.ID, attendee(fmt.Sprint("g", i)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, db.ErrCapacityExceeded):
				full++
			}
		}(i)
	}
	wg.Wait()

	s.Equal(capacity, success)
	s.Equal(40-capacity, full)
}

func TestSaveFailureKeepsMutation(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)

	gomock.InOrder(
		store.EXPECT().Get(gomock.Any(), persistence.DefaultKey).Return("", persistence.ErrNotFound),
		store.EXPECT().Put(gomock.Any(), persistence.DefaultKey, gomock.Any()).Return(nil),
		store.EXPECT().Put(gomock.Any(), persistence.DefaultKey, gomock.Any()).Return(errors.New("quota exceeded")),
	)

	reg := registry.New(persistence.NewAdapter(store), registry.WithClock(clock))
	require.NoError(t, reg.Open(ctx))
	defer reg.Close()

	evt, err := reg.CreateEvent(ctx, models.NewEvent{Title: "Talk", DateTime: now, Location: "Hall"})
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrSave)
	require.NotNil(t, evt)

	events, err := reg.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, evt.ID, events[0].ID)
}

func TestClosedRegistry(t *testing.T) {
	store, err := persistence.NewFileStore(t.TempDir())
	require.NoError(t, err)
	reg := registry.New(persistence.NewAdapter(store))

	_, err = reg.ListEvents(context.Background())
	assert.ErrorIs(t, err, registry.ErrClosed)
	_, err = reg.Backup(context.Background())
	assert.ErrorIs(t, err, registry.ErrClosed)
	assert.NoError(t, reg.Close())
}
