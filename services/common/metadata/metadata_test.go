package metadata_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/watchme-app/vault-api/services/common/metadata"
	"github.com/watchme-app/vault-api/services/common/models"
	"github.com/watchme-app/vault-api/services/common/pathkey"
)

func openTestStore(t *testing.T) *metadata.Store {
	t.Helper()
	store, err := metadata.Open(testContext(t), zaptest.NewLogger(t), metadata.DriverSQLite, filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	require.NoError(t, store.Migrate(testContext(t)))
	return store
}

func insert(ctx context.Context, t *testing.T, store *metadata.Store, device, recordedAt string) *models.AudioFile {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, recordedAt)
	require.NoError(t, err)
	slot := pathkey.SlotLabel(ts)
	rec := &models.AudioFile{
		DeviceID:      device,
		RecordedAt:    ts,
		FilePath:      "files/" + device + "/" + ts.Format("2006-01-02") + "/" + slot + "/audio.wav",
		LocalDate:     pathkey.DateLabel(ts),
		TimeBlock:     slot,
		FileSizeBytes: 88244,
	}
	rec.SetInitialStatus(models.StatusPending)
	id, err := store.Insert(ctx, rec)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return rec
}

func TestInsertAndList(t *testing.T) {
	ctx := testContext(t)
	store := openTestStore(t)

	first := insert(ctx, t, store, "dev-b", "2025-07-18T14:31:00+09:00")
	insert(ctx, t, store, "dev-a", "2025-07-17T09:00:00+09:00")
	insert(ctx, t, store, "dev-b", "2025-07-18T08:05:00+09:00")

	files, err := store.List(ctx, metadata.Filter{DeviceID: "dev-b"})
	require.NoError(t, err)
	require.Len(t, files, 2)

	got := files[0]
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, first.FilePath, got.FilePath)
	assert.Equal(t, "2025-07-18", got.LocalDate)
	assert.Equal(t, "14-30", got.TimeBlock)
	assert.Equal(t, int64(88244), got.FileSizeBytes)
	assert.Equal(t, models.StatusPending, got.TranscriberStatus)
	assert.Equal(t, models.StatusPending, got.EmotionStatus)
	assert.True(t, first.RecordedAt.Equal(got.RecordedAt))
	_, offset := got.RecordedAt.Zone()
	assert.Equal(t, 9*3600, offset)
	assert.Equal(t, "08-00", files[1].TimeBlock)
}

func TestListFiltersAndPagination(t *testing.T) {
	ctx := testContext(t)
	store := openTestStore(t)

	for _, ts := range []string{
		"2025-07-15T10:00:00Z",
		"2025-07-16T10:00:00Z",
		"2025-07-17T10:00:00Z",
		"2025-07-18T10:00:00Z",
	} {
		insert(ctx, t, store, "dev", ts)
	}

	files, err := store.List(ctx, metadata.Filter{StartDate: "2025-07-16", EndDate: "2025-07-17"})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "2025-07-17", files[0].LocalDate)
	assert.Equal(t, "2025-07-16", files[1].LocalDate)

	page, err := store.List(ctx, metadata.Filter{Limit: 3, Offset: 3})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "2025-07-15", page[0].LocalDate)

	none, err := store.List(ctx, metadata.Filter{DeviceID: "missing"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestDevices(t *testing.T) {
	ctx := testContext(t)
	store := openTestStore(t)

	devices, err := store.Devices(ctx)
	require.NoError(t, err)
	assert.Empty(t, devices)

	insert(ctx, t, store, "zeta", "2025-07-18T10:00:00Z")
	insert(ctx, t, store, "alpha", "2025-07-18T10:00:00Z")
	insert(ctx, t, store, "zeta", "2025-07-18T11:00:00Z")

	devices, err = store.Devices(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, devices)
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	ctx := testContext(t)
	store, err := metadata.Open(ctx, zaptest.NewLogger(t), metadata.DriverSQLite, filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Close())

	_, err = store.List(ctx, metadata.Filter{})
	require.Error(t, err)
	assert.True(t, metadata.ErrUnavailable.Has(err))

	_, err = store.Devices(ctx)
	assert.True(t, metadata.ErrUnavailable.Has(err))
}

func TestUnreachableStore(t *testing.T) {
	ctx := testContext(t)
	log := zaptest.NewLogger(t)
	dsn := filepath.Join(t.TempDir(), "missing", "vault.db")

	_, err := metadata.Open(ctx, log, metadata.DriverSQLite, dsn)
	require.Error(t, err)
	assert.True(t, metadata.ErrUnavailable.Has(err))

	store, err := metadata.New(log, metadata.DriverSQLite, dsn)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	assert.True(t, metadata.ErrUnavailable.Has(store.Ping(ctx)))
	assert.True(t, metadata.ErrUnavailable.Has(store.Migrate(ctx)))

	rec := &models.AudioFile{DeviceID: "dev-1", RecordedAt: time.Now(), FilePath: "files/dev-1/2025-07-18/10-00/audio.wav"}
	_, err = store.Insert(ctx, rec)
	require.Error(t, err)
	assert.True(t, metadata.ErrUnavailable.Has(err))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := metadata.Open(testContext(t), zaptest.NewLogger(t), "mysql", "")
	require.Error(t, err)
	assert.True(t, metadata.Error.Has(err))
}
