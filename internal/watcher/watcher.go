package watcher

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/twinscape/twinscape/result"
	"github.com/twinscape/twinscape/types"
)

// Checker is the subset of the scene adapter the watcher needs.
type Checker interface {
	GetMissingStorageContainerAccessRoles(ctx context.Context, containerURL string) result.Result[types.MissingRoleAssignments]
	AddMissingRolesToStorageContainer(ctx context.Context, containerResourceID string, missing types.RoleGroup) result.Result[[]types.RoleAssignment]
}

// Config holds watcher configuration
type Config struct {
	Interval     time.Duration
	ContainerURL string
	AutoFix      bool
}

// Watcher periodically checks storage container role compliance and
// optionally repairs drift.
type Watcher struct {
	checker      Checker
	interval     time.Duration
	containerURL string
	autoFix      bool
	log          zerolog.Logger
	metrics      *Metrics
	startTime    time.Time
	checkCount   atomic.Int64
}

// New creates a watcher. Metrics creation failure is not fatal; the
// watcher runs without instrumentation.
func New(checker Checker, config Config, log zerolog.Logger) *Watcher {
	metrics, err := NewMetrics()
	if err != nil {
		log.Warn().Err(err).Msg("watcher metrics unavailable")
	}
	return &Watcher{
		checker:      checker,
		interval:     config.Interval,
		containerURL: config.ContainerURL,
		autoFix:      config.AutoFix,
		log:          log,
		metrics:      metrics,
		startTime:    time.Now(),
	}
}

// Run executes the compliance loop until ctx is cancelled. The first
// check runs immediately rather than waiting a full interval.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.runCheck(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.runCheck(ctx)
		}
	}
}

func (w *Watcher) runCheck(ctx context.Context) {
	w.checkCount.Add(1)
	start := time.Now()

	res := w.checker.GetMissingStorageContainerAccessRoles(ctx, w.containerURL)
	status := w.evaluate(ctx, res)

	w.metrics.RecordCheck(ctx, status, time.Since(start).Seconds())
	w.log.Info().
		Str("status", status).
		Dur("took", time.Since(start)).
		Msg("role compliance check")
}

// evaluate inspects one check outcome and repairs drift when auto-fix
// is on. Returns the status label recorded in metrics.
func (w *Watcher) evaluate(ctx context.Context, res result.Result[types.MissingRoleAssignments]) string {
	if info := res.ErrorInfo(); info != nil && info.Catastrophic != nil {
		w.log.Error().Str("error", info.Catastrophic.Message).Msg("compliance check failed")
		return "error"
	}
	if res.HasNoData() {
		return "error"
	}

	missing := res.Data()
	switch {
	case missing.NotFound():
		w.log.Warn().Msg("storage container not found")
		return "not_found"
	case missing.Compliant():
		return "compliant"
	}

	w.metrics.RecordDrift(ctx, len(missing.Enforced)+len(missing.Interchangeables))
	w.log.Warn().
		Str("resource_id", missing.ResourceID).
		Strs("enforced", missing.Enforced).
		Msg("role assignments missing")

	if !w.autoFix {
		return "drift"
	}

	fixRes := w.checker.AddMissingRolesToStorageContainer(ctx, missing.ResourceID, missing.RoleGroup())
	if info := fixRes.ErrorInfo(); info != nil && len(info.Errors) > 0 {
		w.log.Error().Int("errors", len(info.Errors)).Msg("repair incomplete")
		return "repair_partial"
	}
	w.log.Info().Int("assigned", len(fixRes.Data())).Msg("missing roles assigned")
	return "repaired"
}

// Health returns watcher health status
func (w *Watcher) Health() HealthStatus {
	return HealthStatus{
		Status: "healthy",
		Uptime: int64(time.Since(w.startTime).Seconds()),
	}
}

// HealthStatus represents watcher health
type HealthStatus struct {
	Status string `json:"status"`
	Uptime int64  `json:"uptime_seconds"`
}

// CheckCount returns total compliance checks run
func (w *Watcher) CheckCount() int64 {
	return w.checkCount.Load()
}
