package server

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/aristath/oracle-portfolio/internal/database"
	"github.com/aristath/oracle-portfolio/internal/events"
	"github.com/aristath/oracle-portfolio/internal/modules/plugins"
	"github.com/rs/zerolog"
)

const pingTimeout = 5 * time.Second

// StatusMonitor periodically checks database reachability and registry size and
// emits SYSTEM_STATUS_CHANGED when either changes.
type StatusMonitor struct {
	eventManager *events.Manager
	databases    []*database.DB
	registry     *plugins.Registry
	log          zerolog.Logger

	// Previous state; nil until the first check
	last *events.SystemStatusData
}

// NewStatusMonitor creates a new status monitor
func NewStatusMonitor(
	eventManager *events.Manager,
	databases []*database.DB,
	registry *plugins.Registry,
	log zerolog.Logger,
) *StatusMonitor {
	return &StatusMonitor{
		eventManager: eventManager,
		databases:    databases,
		registry:     registry,
		log:          log.With().Str("component", "status_monitor").Logger(),
	}
}

// Start begins periodic status monitoring until ctx is cancelled
func (m *StatusMonitor) Start(ctx context.Context, interval time.Duration) {
	go m.monitor(ctx, interval)
}

func (m *StatusMonitor) monitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.checkStatus(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkStatus(ctx)
		}
	}
}

// checkStatus computes the current status and emits it when it differs from the last one
func (m *StatusMonitor) checkStatus(ctx context.Context) {
	current := m.currentStatus(ctx)

	if m.last != nil && sameStatus(m.last, current) {
		return
	}

	if m.last != nil && current.Status != m.last.Status {
		m.log.Warn().
			Str("status", current.Status).
			Strs("unhealthy", current.Unhealthy).
			Msg("System status changed")
	}
	m.last = current

	if m.eventManager != nil {
		m.eventManager.EmitTyped("status_monitor", current)
	}
}

func (m *StatusMonitor) currentStatus(ctx context.Context) *events.SystemStatusData {
	status := &events.SystemStatusData{Status: "healthy"}

	for _, db := range m.databases {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := db.Conn().PingContext(pingCtx)
		cancel()
		if err != nil {
			status.Unhealthy = append(status.Unhealthy, db.Name())
		}
	}
	if len(status.Unhealthy) > 0 {
		status.Status = "degraded"
	}

	if m.registry != nil {
		status.Plugins, _ = pluginCounts(m.registry)
	}
	return status
}

func sameStatus(a, b *events.SystemStatusData) bool {
	return a.Status == b.Status &&
		slices.Equal(a.Unhealthy, b.Unhealthy) &&
		maps.Equal(a.Plugins, b.Plugins)
}
