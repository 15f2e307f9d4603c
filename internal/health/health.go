package health

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
	StatusDisabled Status = "disabled"
)

// Probe checks one dependency. A nil Probe means the dependency has no
// remote component in this configuration and is reported as disabled.
type Probe func(ctx context.Context) error

type CheckResult struct {
	Status    Status `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

type Snapshot struct {
	Status      Status      `json:"status"`
	GeneratedAt time.Time   `json:"generated_at"`
	Accounts    CheckResult `json:"accounts"`
	Sessions    CheckResult `json:"sessions"`
	Upstream    CheckResult `json:"upstream"`
}

// Service probes the proxy's dependencies: the account backend, the session
// store, and resolution of the upstream authority.
type Service struct {
	accountsProbe Probe
	sessionsProbe Probe
	upstreamProbe Probe
}

func New(accountsProbe, sessionsProbe, upstreamProbe Probe) *Service {
	return &Service{
		accountsProbe: accountsProbe,
		sessionsProbe: sessionsProbe,
		upstreamProbe: upstreamProbe,
	}
}

func (s *Service) Snapshot(ctx context.Context) Snapshot {
	snap := Snapshot{
		Status:      StatusOK,
		GeneratedAt: time.Now().UTC(),
		Accounts:    runProbe(ctx, s.accountsProbe),
		Sessions:    runProbe(ctx, s.sessionsProbe),
		Upstream:    runProbe(ctx, s.upstreamProbe),
	}
	for _, result := range []CheckResult{snap.Accounts, snap.Sessions, snap.Upstream} {
		if result.Status == StatusDown {
			snap.Status = StatusDegraded
		}
	}
	return snap
}

// Handler serves the snapshot as JSON on the health route.
func (s *Service) Handler(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Snapshot(c.Request().Context()))
}

func runProbe(ctx context.Context, probe Probe) CheckResult {
	if probe == nil {
		return CheckResult{Status: StatusDisabled}
	}
	start := time.Now()
	err := probe(ctx)
	result := CheckResult{
		Status:    StatusOK,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		result.Status = StatusDown
		result.Message = err.Error()
	}
	return result
}
