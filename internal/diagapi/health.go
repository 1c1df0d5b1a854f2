package diagapi

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/pipelka/robotv-go/internal/server"
)

// healthHandler serves /health, grounded on the teacher's
// internal/http/handlers/health.go CPU/memory reporting, trimmed of the
// database/circuit-breaker sections this domain doesn't have.
type healthHandler struct {
	startTime time.Time
	version   string
	srv       *server.Server
}

func newHealthHandler(startTime time.Time, version string, srv *server.Server) *healthHandler {
	return &healthHandler{startTime: startTime, version: version, srv: srv}
}

func (h *healthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"System"},
	}, h.get)
}

type healthInput struct{}

type healthOutput struct {
	Body healthResponse
}

type healthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	ServerID      uint64  `json:"server_id"`
	ActiveSessions int    `json:"active_sessions"`
	CPU           cpuInfo `json:"cpu"`
	Memory        memInfo `json:"memory"`
}

type cpuInfo struct {
	Cores    int     `json:"cores"`
	Load1Min float64 `json:"load1_min"`
}

type memInfo struct {
	TotalMB           float64 `json:"total_mb"`
	UsedMB            float64 `json:"used_mb"`
	ProcessRSSMB      float64 `json:"process_rss_mb"`
}

func (h *healthHandler) get(ctx context.Context, input *healthInput) (*healthOutput, error) {
	return &healthOutput{
		Body: healthResponse{
			Status:         "healthy",
			Version:        h.version,
			UptimeSeconds:  time.Since(h.startTime).Seconds(),
			ServerID:       h.srv.ServerID(),
			ActiveSessions: h.srv.SessionCount(),
			CPU:            cpuStats(),
			Memory:         memStats(),
		},
	}, nil
}

func cpuStats() cpuInfo {
	info := cpuInfo{Cores: runtime.NumCPU()}
	if avg, err := load.Avg(); err == nil && avg != nil {
		info.Load1Min = avg.Load1
	}
	return info
}

func memStats() memInfo {
	info := memInfo{}
	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		info.TotalMB = float64(vm.Total) / 1024 / 1024
		info.UsedMB = float64(vm.Used) / 1024 / 1024
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if pm, err := proc.MemoryInfo(); err == nil && pm != nil {
			info.ProcessRSSMB = float64(pm.RSS) / 1024 / 1024
		}
	}
	return info
}
