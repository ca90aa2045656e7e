package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/prn-tf/amplify-storage/internal/domain"
	"github.com/prn-tf/amplify-storage/internal/metrics"
	"github.com/prn-tf/amplify-storage/internal/repository"
	"github.com/prn-tf/amplify-storage/internal/storage"
)

// Health statuses.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// ReferencePricing is the USD per GB-month of common object stores.
var ReferencePricing = []ReferencePrice{
	{Name: "aws_s3", CostPerGB: 0.023},
	{Name: "google_cloud_storage", CostPerGB: 0.020},
	{Name: "azure_blob", CostPerGB: 0.018},
}

// ReferencePrice is one comparison price point.
type ReferencePrice struct {
	Name      string  `json:"name"`
	CostPerGB float64 `json:"cost_per_gb"`
}

// HealthService reports provider health and projects storage cost.
// Its output never feeds upload or quota decisions.
type HealthService struct {
	records   repository.StorageRecordRepository
	providers []storage.Provider
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewHealthService creates a new HealthService.
func NewHealthService(records repository.StorageRecordRepository, m *metrics.Metrics, logger zerolog.Logger, providers ...storage.Provider) *HealthService {
	return &HealthService{
		records:   records,
		providers: providers,
		metrics:   m,
		logger:    logger.With().Str("service", "health").Logger(),
	}
}

// ProviderHealth is one provider's health snapshot.
type ProviderHealth struct {
	Name         string        `json:"name"`
	Role         storage.Role  `json:"role"`
	Healthy      bool          `json:"healthy"`
	Status       string        `json:"status"`
	ResponseTime time.Duration `json:"response_time"`
	LastCheck    time.Time     `json:"last_check"`
	Error        string        `json:"error,omitempty"`
	Priority     int           `json:"priority"`
	CostPerGB    float64       `json:"cost_per_gb"`
}

// GetStorageHealth checks every provider concurrently, ordered by priority.
func (s *HealthService) GetStorageHealth(ctx context.Context) []ProviderHealth {
	out := make([]ProviderHealth, len(s.providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range s.providers {
		g.Go(func() error {
			hs := p.CheckHealth(gctx)
			status := HealthHealthy
			if !hs.Healthy {
				status = HealthUnhealthy
				s.logger.Warn().
					Str("provider", p.Name()).
					Str("error", hs.Error).
					Msg("provider health check failed")
			}
			s.metrics.SetProviderHealth(p.Name(), string(p.Role()), hs.Healthy, hs.ResponseTime)
			out[i] = ProviderHealth{
				Name:         p.Name(),
				Role:         p.Role(),
				Healthy:      hs.Healthy,
				Status:       status,
				ResponseTime: hs.ResponseTime,
				LastCheck:    hs.CheckedAt,
				Error:        hs.Error,
				Priority:     p.Priority(),
				CostPerGB:    p.CostPerGB(),
			}
			return nil
		})
	}
	// Checks report failures in their snapshot, never through the group.
	_ = g.Wait()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// OverallStatus summarizes snapshots: healthy when all are up, unhealthy
// when none are, degraded otherwise.
func OverallStatus(health []ProviderHealth) string {
	if len(health) == 0 {
		return HealthUnhealthy
	}
	up := 0
	for _, h := range health {
		if h.Healthy {
			up++
		}
	}
	switch up {
	case len(health):
		return HealthHealthy
	case 0:
		return HealthUnhealthy
	default:
		return HealthDegraded
	}
}

// =============================================================================
// Cost projection
// =============================================================================

// ProviderCost is the projected cost of one provider.
type ProviderCost struct {
	Name        string       `json:"name"`
	Role        storage.Role `json:"role"`
	CostPerGB   float64      `json:"cost_per_gb"`
	MonthlyCost float64      `json:"monthly_cost"`
	AnnualCost  float64      `json:"annual_cost"`
}

// CostComparison compares the redundant setup with a reference store.
type CostComparison struct {
	Name           string  `json:"name"`
	CostPerGB      float64 `json:"cost_per_gb"`
	MonthlyCost    float64 `json:"monthly_cost"`
	MonthlySavings float64 `json:"monthly_savings"`
	SavingsPercent float64 `json:"savings_percent"`
}

// CostReport is a cost projection for a stored byte total.
type CostReport struct {
	StoredBytes      int64            `json:"stored_bytes"`
	StoredGB         float64          `json:"stored_gb"`
	Providers        []ProviderCost   `json:"providers"`
	TotalCostPerGB   float64          `json:"total_cost_per_gb"`
	TotalMonthlyCost float64          `json:"total_monthly_cost"`
	TotalAnnualCost  float64          `json:"total_annual_cost"`
	Comparisons      []CostComparison `json:"comparisons"`
}

// ProjectCosts multiplies storedBytes by each provider's declared price.
// Every provider holds a full copy, so the redundant total is their sum.
func (s *HealthService) ProjectCosts(storedBytes int64) CostReport {
	gb := float64(storedBytes) / float64(domain.GB)
	report := CostReport{
		StoredBytes: storedBytes,
		StoredGB:    roundTo(gb, 4),
	}

	providers := append([]storage.Provider(nil), s.providers...)
	sort.SliceStable(providers, func(i, j int) bool { return providers[i].Priority() < providers[j].Priority() })

	for _, p := range providers {
		monthly := gb * p.CostPerGB()
		report.Providers = append(report.Providers, ProviderCost{
			Name:        p.Name(),
			Role:        p.Role(),
			CostPerGB:   p.CostPerGB(),
			MonthlyCost: roundTo(monthly, 4),
			AnnualCost:  roundTo(monthly*12, 4),
		})
		report.TotalCostPerGB += p.CostPerGB()
	}
	totalMonthly := gb * report.TotalCostPerGB
	report.TotalCostPerGB = roundTo(report.TotalCostPerGB, 6)
	report.TotalMonthlyCost = roundTo(totalMonthly, 4)
	report.TotalAnnualCost = roundTo(totalMonthly*12, 4)

	for _, ref := range ReferencePricing {
		c := CostComparison{
			Name:           ref.Name,
			CostPerGB:      ref.CostPerGB,
			MonthlyCost:    roundTo(gb*ref.CostPerGB, 4),
			MonthlySavings: roundTo(gb*(ref.CostPerGB-report.TotalCostPerGB), 4),
		}
		if ref.CostPerGB > 0 {
			c.SavingsPercent = roundTo((ref.CostPerGB-report.TotalCostPerGB)/ref.CostPerGB*100, 2)
		}
		report.Comparisons = append(report.Comparisons, c)
	}
	return report
}

// PlatformCostReport projects cost for all active bytes in the ledger.
func (s *HealthService) PlatformCostReport(ctx context.Context) (*CostReport, error) {
	total, err := s.records.SumActiveSize(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to sum active storage")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	report := s.ProjectCosts(total)
	return &report, nil
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
