package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/amplify-storage/internal/config"
	"github.com/prn-tf/amplify-storage/internal/metrics"
	"github.com/prn-tf/amplify-storage/internal/repository"
	"github.com/prn-tf/amplify-storage/internal/storage"
)

const (
	defaultProbeTimeout = 5 * time.Second
	defaultHealthTTL    = 5 * time.Minute

	probeReachable   = "1"
	probeUnreachable = "0"
)

// FailoverResolver picks a reachable URL among a file's primary and backup copies.
type FailoverResolver struct {
	client  *http.Client
	cache   repository.Cache
	config  config.FailoverConfig
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewFailoverResolver creates a resolver. A nil client gets one that does not
// follow redirects; a nil cache disables probe caching.
func NewFailoverResolver(client *http.Client, cache repository.Cache, cfg config.FailoverConfig, m *metrics.Metrics, logger zerolog.Logger) *FailoverResolver {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.HealthCacheTTL == 0 {
		cfg.HealthCacheTTL = defaultHealthTTL
	}
	if client == nil {
		client = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return &FailoverResolver{
		client:  client,
		cache:   cache,
		config:  cfg,
		metrics: m,
		logger:  logger.With().Str("service", "failover").Logger(),
	}
}

// Resolve returns the first reachable URL in preference order. When neither
// answers it fails open to the primary URL. An empty backup skips probing.
func (r *FailoverResolver) Resolve(ctx context.Context, primaryURL, backupURL string, preferred storage.Role) string {
	if backupURL == "" {
		return primaryURL
	}

	candidates := []string{primaryURL, backupURL}
	roles := []storage.Role{storage.RolePrimary, storage.RoleBackup}
	if preferred == storage.RoleBackup {
		candidates = []string{backupURL, primaryURL}
		roles = []storage.Role{storage.RoleBackup, storage.RolePrimary}
	}

	for i, url := range candidates {
		if !r.reachable(ctx, url) {
			continue
		}
		if i > 0 {
			r.metrics.Failover(string(roles[i]))
			r.logger.Info().
				Str("preferred_url", candidates[0]).
				Str("served_url", url).
				Str("served_by", string(roles[i])).
				Msg("preferred copy unreachable, serving alternate")
		}
		return url
	}

	r.metrics.Failover("fail_open")
	r.logger.Warn().
		Str("primary_url", primaryURL).
		Str("backup_url", backupURL).
		Msg("no copy reachable, failing open to primary")
	return primaryURL
}

// reachable reports whether url answers a HEAD request below 400, consulting the cache first.
func (r *FailoverResolver) reachable(ctx context.Context, url string) bool {
	key := repository.CacheKeys.URLHealth(url)
	if r.cache != nil {
		v, err := r.cache.Get(ctx, key)
		switch {
		case err == nil:
			return string(v) == probeReachable
		case !errors.Is(err, repository.ErrCacheMiss):
			r.logger.Debug().Err(err).Str("url", url).Msg("probe cache read failed")
		}
	}

	ok := r.probe(ctx, url)

	// A cancelled caller says nothing about the URL.
	if ctx.Err() != nil {
		return false
	}

	if r.cache != nil && r.config.HealthCacheTTL > 0 {
		v := probeUnreachable
		if ok {
			v = probeReachable
		}
		if err := r.cache.Set(ctx, key, []byte(v), r.config.HealthCacheTTL); err != nil {
			r.logger.Debug().Err(err).Str("url", url).Msg("probe cache write failed")
		}
	}
	return ok
}

func (r *FailoverResolver) probe(ctx context.Context, url string) bool {
	ctx, cancel := context.WithTimeout(ctx, r.config.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		r.logger.Debug().Err(err).Str("url", url).Msg("invalid probe url")
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug().Err(err).Str("url", url).Msg("probe failed")
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusBadRequest
}
