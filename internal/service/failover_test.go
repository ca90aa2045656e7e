package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/amplify-storage/internal/cache/memory"
	"github.com/prn-tf/amplify-storage/internal/config"
	"github.com/prn-tf/amplify-storage/internal/metrics"
	"github.com/prn-tf/amplify-storage/internal/repository"
	"github.com/prn-tf/amplify-storage/internal/storage"
)

type probeServer struct {
	*httptest.Server
	hits   atomic.Int32
	status atomic.Int32
}

func newProbeServer(t *testing.T, status int) *probeServer {
	t.Helper()
	ps := &probeServer{}
	ps.status.Store(int32(status))
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ps.hits.Add(1)
		if r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(int(ps.status.Load()))
	}))
	t.Cleanup(ps.Close)
	return ps
}

func newTestResolver(t *testing.T, cache repository.Cache) *FailoverResolver {
	t.Helper()
	return NewFailoverResolver(nil, cache, config.FailoverConfig{
		HealthCacheTTL: time.Minute,
		ProbeTimeout:   time.Second,
	}, nil, zerolog.Nop())
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name          string
		primaryStatus int
		backupStatus  int
		preferred     storage.Role
		wantBackup    bool
	}{
		{"primary healthy", http.StatusOK, http.StatusOK, storage.RolePrimary, false},
		{"primary down", http.StatusServiceUnavailable, http.StatusOK, storage.RolePrimary, true},
		{"both down fails open to primary", http.StatusNotFound, http.StatusBadGateway, storage.RolePrimary, false},
		{"backup preferred", http.StatusOK, http.StatusOK, storage.RoleBackup, true},
		{"backup preferred but down", http.StatusOK, http.StatusInternalServerError, storage.RoleBackup, false},
		{"redirect counts as reachable", http.StatusFound, http.StatusOK, storage.RolePrimary, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := newProbeServer(t, tt.primaryStatus)
			backup := newProbeServer(t, tt.backupStatus)
			r := newTestResolver(t, nil)

			got := r.Resolve(context.Background(), primary.URL+"/a.png", backup.URL+"/a.png", tt.preferred)
			if tt.wantBackup {
				require.Equal(t, backup.URL+"/a.png", got)
			} else {
				require.Equal(t, primary.URL+"/a.png", got)
			}
		})
	}
}

func TestResolve_NoBackupSkipsProbe(t *testing.T) {
	primary := newProbeServer(t, http.StatusServiceUnavailable)
	r := newTestResolver(t, nil)

	got := r.Resolve(context.Background(), primary.URL+"/a.png", "", storage.RolePrimary)
	require.Equal(t, primary.URL+"/a.png", got)
	require.Zero(t, primary.hits.Load())
}

func TestResolve_CachesProbeResults(t *testing.T) {
	cache := memory.NewCache()
	defer cache.Stop()

	primary := newProbeServer(t, http.StatusServiceUnavailable)
	backup := newProbeServer(t, http.StatusOK)
	r := newTestResolver(t, cache)

	for i := 0; i < 3; i++ {
		got := r.Resolve(context.Background(), primary.URL+"/a.png", backup.URL+"/a.png", storage.RolePrimary)
		require.Equal(t, backup.URL+"/a.png", got)
	}
	require.Equal(t, int32(1), primary.hits.Load())
	require.Equal(t, int32(1), backup.hits.Load())

	v, err := cache.Get(context.Background(), repository.CacheKeys.URLHealth(primary.URL+"/a.png"))
	require.NoError(t, err)
	require.Equal(t, probeUnreachable, string(v))

	// Cached state wins until the entry expires.
	primary.status.Store(http.StatusOK)
	got := r.Resolve(context.Background(), primary.URL+"/a.png", backup.URL+"/a.png", storage.RolePrimary)
	require.Equal(t, backup.URL+"/a.png", got)
}

func TestResolve_ProbeTimeout(t *testing.T) {
	block := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(block)

	backup := newProbeServer(t, http.StatusOK)
	r := NewFailoverResolver(nil, nil, config.FailoverConfig{ProbeTimeout: 50 * time.Millisecond}, nil, zerolog.Nop())

	start := time.Now()
	got := r.Resolve(context.Background(), slow.URL+"/a.png", backup.URL+"/a.png", storage.RolePrimary)
	require.Equal(t, backup.URL+"/a.png", got)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestResolve_CanceledCallerDoesNotCache(t *testing.T) {
	cache := memory.NewCache()
	defer cache.Stop()

	primary := newProbeServer(t, http.StatusServiceUnavailable)
	backup := newProbeServer(t, http.StatusOK)
	r := newTestResolver(t, cache)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	r.Resolve(canceled, primary.URL+"/a.png", backup.URL+"/a.png", storage.RolePrimary)

	_, err := cache.Get(context.Background(), repository.CacheKeys.URLHealth(backup.URL+"/a.png"))
	require.ErrorIs(t, err, repository.ErrCacheMiss)

	got := r.Resolve(context.Background(), primary.URL+"/a.png", backup.URL+"/a.png", storage.RolePrimary)
	require.Equal(t, backup.URL+"/a.png", got)
	require.Equal(t, int32(1), backup.hits.Load())
}

func failoverCount(t *testing.T, reg *prometheus.Registry, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "test_url_failovers_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestResolve_FailoverMetricUsesServedRole(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New("test", reg)
	r := NewFailoverResolver(nil, nil, config.FailoverConfig{ProbeTimeout: time.Second}, m, zerolog.Nop())

	primary := newProbeServer(t, http.StatusOK)
	backup := newProbeServer(t, http.StatusServiceUnavailable)

	got := r.Resolve(context.Background(), primary.URL+"/a.png", backup.URL+"/a.png", storage.RoleBackup)
	require.Equal(t, primary.URL+"/a.png", got)
	require.Equal(t, 1.0, failoverCount(t, reg, "primary"))
	require.Zero(t, failoverCount(t, reg, "backup"))

	primary.status.Store(http.StatusBadGateway)
	got = r.Resolve(context.Background(), primary.URL+"/a.png", backup.URL+"/a.png", storage.RoleBackup)
	require.Equal(t, primary.URL+"/a.png", got)
	require.Equal(t, 1.0, failoverCount(t, reg, "fail_open"))
}
