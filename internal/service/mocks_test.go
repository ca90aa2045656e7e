package service

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/prn-tf/amplify-storage/internal/domain"
	"github.com/prn-tf/amplify-storage/internal/repository"
	"github.com/prn-tf/amplify-storage/internal/storage"
)

// =============================================================================
// Mock Repositories
// =============================================================================

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) UpdateStorageUsage(ctx context.Context, id uuid.UUID, usedBytes, limitBytes int64) error {
	args := m.Called(ctx, id, usedBytes, limitBytes)
	return args.Error(0)
}

type mockRecordRepository struct {
	mock.Mock
}

func (m *mockRecordRepository) Create(ctx context.Context, record *domain.UserStorageRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *mockRecordRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.UserStorageRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserStorageRecord), args.Error(1)
}

func (m *mockRecordRepository) GetByPath(ctx context.Context, userID uuid.UUID, filePath string, includeDeleted bool) (*domain.UserStorageRecord, error) {
	args := m.Called(ctx, userID, filePath, includeDeleted)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserStorageRecord), args.Error(1)
}

func (m *mockRecordRepository) ListByUser(ctx context.Context, userID uuid.UUID, opts repository.FileListOptions) (*repository.ListResult[domain.UserStorageRecord], error) {
	args := m.Called(ctx, userID, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.ListResult[domain.UserStorageRecord]), args.Error(1)
}

func (m *mockRecordRepository) MarkDeleted(ctx context.Context, id, userID uuid.UUID) (*domain.DeletedFile, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DeletedFile), args.Error(1)
}

func (m *mockRecordRepository) UpdateAccess(ctx context.Context, id, userID uuid.UUID) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}

func (m *mockRecordRepository) CalculateUsage(ctx context.Context, userID uuid.UUID) (*domain.StorageUsage, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StorageUsage), args.Error(1)
}

func (m *mockRecordRepository) UsageByCategory(ctx context.Context, userID uuid.UUID) ([]domain.CategoryUsage, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CategoryUsage), args.Error(1)
}

func (m *mockRecordRepository) Analytics(ctx context.Context, userID uuid.UUID, since time.Time, topN int) (*domain.StorageAnalytics, error) {
	args := m.Called(ctx, userID, since, topN)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StorageAnalytics), args.Error(1)
}

func (m *mockRecordRepository) CleanupDeleted(ctx context.Context, userID uuid.UUID, olderThan time.Time) (*domain.CleanupResult, error) {
	args := m.Called(ctx, userID, olderThan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CleanupResult), args.Error(1)
}

func (m *mockRecordRepository) ListPurgeable(ctx context.Context, cutoff time.Time, limit int) ([]*domain.UserStorageRecord, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.UserStorageRecord), args.Error(1)
}

func (m *mockRecordRepository) Purge(ctx context.Context, ids []uuid.UUID) (int64, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRecordRepository) SumActiveSize(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// =============================================================================
// Mock Provider
// =============================================================================

type mockProvider struct {
	mock.Mock
	name     string
	role     storage.Role
	priority int
	cost     float64
}

func newMockProvider(name string, role storage.Role, priority int, cost float64) *mockProvider {
	return &mockProvider{name: name, role: role, priority: priority, cost: cost}
}

func (m *mockProvider) Name() string       { return m.name }
func (m *mockProvider) Role() storage.Role { return m.role }
func (m *mockProvider) Priority() int      { return m.priority }
func (m *mockProvider) CostPerGB() float64 { return m.cost }

func (m *mockProvider) PublicURL(key string) string {
	return "https://" + m.name + ".example.com/" + key
}

func (m *mockProvider) Upload(ctx context.Context, in storage.UploadInput) (*storage.UploadOutput, error) {
	args := m.Called(ctx, in)
	switch v := args.Get(0).(type) {
	case nil:
		return nil, args.Error(1)
	case func(storage.UploadInput) *storage.UploadOutput:
		return v(in), args.Error(1)
	default:
		return v.(*storage.UploadOutput), args.Error(1)
	}
}

func (m *mockProvider) Download(ctx context.Context, key string) (*storage.DownloadOutput, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.DownloadOutput), args.Error(1)
}

func (m *mockProvider) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *mockProvider) CheckHealth(ctx context.Context) storage.HealthStatus {
	args := m.Called(ctx)
	return args.Get(0).(storage.HealthStatus)
}

// =============================================================================
// In-memory Provider
// =============================================================================

// memProvider keeps objects in a map. Used by end-to-end tests.
type memProvider struct {
	name    string
	role    storage.Role
	mu      sync.Mutex
	objects map[string][]byte
	failErr error
}

func newMemProvider(name string, role storage.Role) *memProvider {
	return &memProvider{name: name, role: role, objects: make(map[string][]byte)}
}

func (p *memProvider) Name() string       { return p.name }
func (p *memProvider) Role() storage.Role { return p.role }
func (p *memProvider) Priority() int {
	if p.role == storage.RolePrimary {
		return 1
	}
	return 2
}
func (p *memProvider) CostPerGB() float64 { return 0.005 }

func (p *memProvider) PublicURL(key string) string {
	return "https://" + p.name + ".example.com/" + key
}

func (p *memProvider) Upload(_ context.Context, in storage.UploadInput) (*storage.UploadOutput, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failErr != nil {
		return nil, p.failErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	p.objects[in.Key] = data
	return &storage.UploadOutput{Key: in.Key, URL: p.PublicURL(in.Key), Size: int64(len(data))}, nil
}

func (p *memProvider) Download(_ context.Context, key string) (*storage.DownloadOutput, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.objects[key]
	if !ok {
		return nil, &storage.ProviderError{Provider: p.name, Op: "download", Code: "NoSuchKey"}
	}
	return &storage.DownloadOutput{Body: io.NopCloser(bytes.NewReader(data)), Size: int64(len(data))}, nil
}

func (p *memProvider) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.objects, key)
	return nil
}

func (p *memProvider) CheckHealth(context.Context) storage.HealthStatus {
	return storage.HealthStatus{Healthy: p.failErr == nil, CheckedAt: time.Now().UTC()}
}

func (p *memProvider) has(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.objects[key]
	return ok
}

func (p *memProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.objects)
}

var (
	_ storage.Provider                   = (*mockProvider)(nil)
	_ storage.Provider                   = (*memProvider)(nil)
	_ repository.UserRepository          = (*mockUserRepository)(nil)
	_ repository.StorageRecordRepository = (*mockRecordRepository)(nil)
)

// markRecordDeleted puts rec into the soft-deleted state at the given time.
func markRecordDeleted(rec *domain.UserStorageRecord, at time.Time) {
	rec.State = domain.RecordSoftDeleted
	rec.DeletedDate = &at
}
