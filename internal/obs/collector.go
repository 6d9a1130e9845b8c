package obs

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"uspguard.org/internal/compliance"
)

// ComplianceSource is the read side of the compliance engine the collector scrapes.
type ComplianceSource interface {
	Pharmacies(ctx context.Context) ([]string, error)
	OverallCompliance(ctx context.Context, pharmacyID string) (int, error)
	CriticalIssues(ctx context.Context, pharmacyID string) ([]compliance.ComplianceDetail, error)
}

// ComplianceCollector computes per-pharmacy compliance gauges at scrape time.
type ComplianceCollector struct {
	src     ComplianceSource
	timeout time.Duration

	overall  *prometheus.Desc
	critical *prometheus.Desc
}

// NewComplianceCollector returns a collector over src.
func NewComplianceCollector(src ComplianceSource) *ComplianceCollector {
	return &ComplianceCollector{
		src:     src,
		timeout: 5 * time.Second,
		overall: prometheus.NewDesc(
			"uspguard_overall_compliance_percent",
			"Unweighted mean of chapter compliance percentages.",
			[]string{"pharmacy"}, nil,
		),
		critical: prometheus.NewDesc(
			"uspguard_critical_issues",
			"Critical requirements that are not met.",
			[]string{"pharmacy"}, nil,
		),
	}
}

func (c *ComplianceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.overall
	ch <- c.critical
}

func (c *ComplianceCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	pharmacies, err := c.src.Pharmacies(ctx)
	if err != nil {
		Logger().Error().Err(err).Msg("compliance collector: list pharmacies")
		return
	}
	for _, p := range pharmacies {
		pct, err := c.src.OverallCompliance(ctx, p)
		if err != nil {
			Logger().Error().Err(err).Str("pharmacy", p).Msg("compliance collector: overall")
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.overall, prometheus.GaugeValue, float64(pct), p)

		issues, err := c.src.CriticalIssues(ctx, p)
		if err != nil {
			Logger().Error().Err(err).Str("pharmacy", p).Msg("compliance collector: critical issues")
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.critical, prometheus.GaugeValue, float64(len(issues)), p)
	}
}
