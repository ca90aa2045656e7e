package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/amplify-storage/internal/config"
	"github.com/prn-tf/amplify-storage/internal/domain"
	"github.com/prn-tf/amplify-storage/internal/lock"
	"github.com/prn-tf/amplify-storage/internal/storage"
)

func deletedRecord(size int64) *domain.UserStorageRecord {
	rec := domain.NewUserStorageRecord(uuid.New(), "users/x/images/"+uuid.NewString()+".png", "a.png", size, "image/png")
	markRecordDeleted(rec, time.Now().Add(-40*24*time.Hour))
	return rec
}

func newTestCleanup(records *mockRecordRepository, locker lock.Locker, cfg config.CleanupConfig, providers ...storage.Provider) *CleanupService {
	return NewCleanupService(records, locker, nil, zerolog.Nop(), cfg, providers...)
}

func TestCleanup_RunOnce(t *testing.T) {
	ctx := context.Background()
	records := new(mockRecordRepository)
	primary := newMockProvider("b2", storage.RolePrimary, 1, 0.005)
	backup := newMockProvider("r2", storage.RoleBackup, 2, 0.015)

	ok := deletedRecord(100)
	missing := deletedRecord(200)
	stuck := deletedRecord(300)

	records.On("ListPurgeable", mock.Anything, mock.AnythingOfType("time.Time"), 500).
		Return([]*domain.UserStorageRecord{ok, missing, stuck}, nil)

	primary.On("Delete", mock.Anything, mock.Anything).Return(nil)
	backup.On("Delete", mock.Anything, ok.FilePath).Return(nil)
	backup.On("Delete", mock.Anything, missing.FilePath).
		Return(&storage.ProviderError{Provider: "r2", Op: "delete", Code: "NoSuchKey"})
	backup.On("Delete", mock.Anything, stuck.FilePath).
		Return(&storage.ProviderError{Provider: "r2", Op: "delete", Code: "AccessDenied"})

	records.On("Purge", mock.Anything, []uuid.UUID{ok.ID, missing.ID}).Return(int64(2), nil)

	c := newTestCleanup(records, lock.NewNoOpLocker(), DefaultCleanupConfig(), primary, backup)
	res := c.RunOnce(ctx)

	require.Equal(t, int64(2), res.RecordsPurged)
	require.Equal(t, int64(300), res.BytesFreed)
	require.Equal(t, 1, res.Errors)
	require.False(t, res.Skipped)
	require.False(t, res.Remaining)
	records.AssertExpectations(t)
}

func TestCleanup_UsesRetentionCutoff(t *testing.T) {
	records := new(mockRecordRepository)
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultCleanupConfig()
	cfg.Retention = 7 * 24 * time.Hour

	records.On("ListPurgeable", mock.Anything, mock.MatchedBy(func(t time.Time) bool {
		return t.Equal(now.Add(-7 * 24 * time.Hour))
	}), cfg.BatchSize).Return([]*domain.UserStorageRecord{}, nil)

	c := newTestCleanup(records, nil, cfg)
	c.now = func() time.Time { return now }

	res := c.RunOnce(context.Background())
	require.Zero(t, res.RecordsPurged)
	require.Zero(t, res.Errors)
	records.AssertExpectations(t)
}

func TestCleanup_DryRunDeletesNothing(t *testing.T) {
	records := new(mockRecordRepository)
	primary := newMockProvider("b2", storage.RolePrimary, 1, 0.005)
	cfg := DefaultCleanupConfig()
	cfg.DryRun = true

	records.On("ListPurgeable", mock.Anything, mock.Anything, cfg.BatchSize).
		Return([]*domain.UserStorageRecord{deletedRecord(10), deletedRecord(20)}, nil)

	res := newTestCleanup(records, nil, cfg, primary).RunOnce(context.Background())
	require.True(t, res.DryRun)
	require.Equal(t, int64(2), res.RecordsPurged)
	require.Equal(t, int64(30), res.BytesFreed)
	primary.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	records.AssertNotCalled(t, "Purge", mock.Anything, mock.Anything)
}

func TestCleanup_SkipsWhenLockHeld(t *testing.T) {
	locker := lock.NewMemoryLocker()
	defer locker.Stop()

	_, held, err := locker.Acquire(context.Background(), lock.Keys.RetentionCleanup(), time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	records := new(mockRecordRepository)
	res := newTestCleanup(records, locker, DefaultCleanupConfig()).RunOnce(context.Background())
	require.True(t, res.Skipped)
	records.AssertNotCalled(t, "ListPurgeable", mock.Anything, mock.Anything, mock.Anything)
}

func TestCleanup_ReportsRemaining(t *testing.T) {
	records := new(mockRecordRepository)
	primary := newMockProvider("b2", storage.RolePrimary, 1, 0.005)
	cfg := DefaultCleanupConfig()
	cfg.BatchSize = 1

	first := deletedRecord(10)
	records.On("ListPurgeable", mock.Anything, mock.Anything, 1).
		Return([]*domain.UserStorageRecord{first}, nil).Once()
	records.On("ListPurgeable", mock.Anything, mock.Anything, 1).
		Return([]*domain.UserStorageRecord{deletedRecord(20)}, nil).Once()
	records.On("Purge", mock.Anything, []uuid.UUID{first.ID}).Return(int64(1), nil)
	primary.On("Delete", mock.Anything, first.FilePath).Return(nil)

	res := newTestCleanup(records, nil, cfg, primary).RunOnce(context.Background())
	require.Equal(t, int64(1), res.RecordsPurged)
	require.True(t, res.Remaining)
}

func TestCleanup_ListFailure(t *testing.T) {
	records := new(mockRecordRepository)
	records.On("ListPurgeable", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	res := newTestCleanup(records, nil, DefaultCleanupConfig()).RunOnce(context.Background())
	require.Equal(t, 1, res.Errors)
	require.Zero(t, res.RecordsPurged)
}

func TestCleanup_StartStop(t *testing.T) {
	var runs atomic.Int32
	records := new(mockRecordRepository)
	records.On("ListPurgeable", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { runs.Add(1) }).
		Return([]*domain.UserStorageRecord{}, nil)

	cfg := DefaultCleanupConfig()
	cfg.Interval = 10 * time.Millisecond
	c := newTestCleanup(records, nil, cfg)

	c.Start()
	c.Start()
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	c.Stop()
	c.Stop()
}
