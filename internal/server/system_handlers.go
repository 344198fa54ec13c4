package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/oracle-portfolio/internal/database"
	"github.com/aristath/oracle-portfolio/internal/modules/plugins"
	"github.com/aristath/oracle-portfolio/internal/scheduler"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemHandlers serves process, host and database status
type SystemHandlers struct {
	log       zerolog.Logger
	dataDir   string
	databases []*database.DB
	registry  *plugins.Registry
	scheduler *scheduler.Scheduler // may be nil
	startTime time.Time
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	databases []*database.DB,
	registry *plugins.Registry,
	sched *scheduler.Scheduler,
) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("service", "system").Logger(),
		dataDir:   dataDir,
		databases: databases,
		registry:  registry,
		scheduler: sched,
		startTime: time.Now(),
	}
}

// SystemStatusResponse represents the system status response
type SystemStatusResponse struct {
	Status        string             `json:"status"`
	Version       string             `json:"version"`
	Hostname      string             `json:"hostname,omitempty"`
	Platform      string             `json:"platform,omitempty"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	CPUPercent    float64            `json:"cpu_percent"`
	MemoryPercent float64            `json:"memory_percent"`
	Disk          *DiskUsageResponse `json:"disk,omitempty"`
	Plugins       map[string]int     `json:"plugins"`
	PluginTotal   int                `json:"plugin_total"`
}

// DiskUsageResponse represents the filesystem holding the data directory
type DiskUsageResponse struct {
	Path        string  `json:"path"`
	TotalGB     float64 `json:"total_gb"`
	FreeGB      float64 `json:"free_gb"`
	UsedPercent float64 `json:"used_percent"`
}

// DBInfo represents one database in the stats response
type DBInfo struct {
	Name    string          `json:"name"`
	Profile string          `json:"profile"`
	Stats   *database.Stats `json:"stats,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// DatabaseStatsResponse represents database statistics
type DatabaseStatsResponse struct {
	Databases []DBInfo `json:"databases"`
}

// JobsStatusResponse represents the scheduled jobs
type JobsStatusResponse struct {
	Jobs []scheduler.JobStatus `json:"jobs"`
}

// pluginCounts returns registry sizes keyed by plural kind name
func pluginCounts(reg *plugins.Registry) (map[string]int, int) {
	counts := make(map[string]int, len(plugins.Kinds))
	total := 0
	for kind, n := range reg.Counts() {
		counts[kind.Plural()] = n
		total += n
	}
	return counts, total
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.getSystemStats()
	counts, total := pluginCounts(h.registry)

	resp := SystemStatusResponse{
		Status:        "healthy",
		Version:       Version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Disk:          h.getDiskUsage(),
		Plugins:       counts,
		PluginTotal:   total,
	}

	if info, err := host.Info(); err == nil {
		resp.Hostname = info.Hostname
		resp.Platform = info.Platform
	} else {
		h.log.Debug().Err(err).Msg("Failed to get host info")
	}

	for _, db := range h.databases {
		if err := db.Conn().PingContext(r.Context()); err != nil {
			resp.Status = "degraded"
			break
		}
	}

	h.writeJSON(w, resp)
}

// HandleDatabaseStats handles GET /api/system/databases
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	resp := DatabaseStatsResponse{Databases: make([]DBInfo, 0, len(h.databases))}

	for _, db := range h.databases {
		info := DBInfo{Name: db.Name(), Profile: string(db.Profile())}
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to get database stats")
			info.Error = err.Error()
		} else {
			info.Stats = stats
		}
		resp.Databases = append(resp.Databases, info)
	}

	h.writeJSON(w, resp)
}

// HandleJobsStatus handles GET /api/system/jobs
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	resp := JobsStatusResponse{Jobs: []scheduler.JobStatus{}}
	if h.scheduler != nil {
		resp.Jobs = h.scheduler.Jobs()
	}
	h.writeJSON(w, resp)
}

// getSystemStats returns CPU and RAM usage percentages.
// CPU is sampled over 100ms to keep the call fast.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(cpuPercent) == 0 {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return cpuPercent[0], 0
	}

	return cpuPercent[0], memStat.UsedPercent
}

func (h *SystemHandlers) getDiskUsage() *DiskUsageResponse {
	if h.dataDir == "" {
		return nil
	}
	usage, err := disk.Usage(h.dataDir)
	if err != nil {
		h.log.Warn().Err(err).Str("dir", h.dataDir).Msg("Failed to get disk usage")
		return nil
	}
	return &DiskUsageResponse{
		Path:        h.dataDir,
		TotalGB:     float64(usage.Total) / 1e9,
		FreeGB:      float64(usage.Free) / 1e9,
		UsedPercent: usage.UsedPercent,
	}
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
