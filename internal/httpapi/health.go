package httpapi

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

var startTime = time.Now()

type healthInput struct{}

type healthOutput struct {
	Body struct {
		Status       string  `json:"status"`
		Version      string  `json:"version"`
		UptimeSecs   float64 `json:"uptime_seconds"`
		CPUPercent   float64 `json:"cpu_percent"`
		MemUsedBytes uint64  `json:"mem_used_bytes"`
	}
}

func registerHealthRoute(api huma.API, version string) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"System"},
	}, func(ctx context.Context, input *healthInput) (*healthOutput, error) {
		out := &healthOutput{}
		out.Body.Status = "ok"
		out.Body.Version = version
		out.Body.UptimeSecs = time.Since(startTime).Seconds()

		if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
			out.Body.CPUPercent = percents[0]
		}
		if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
			out.Body.MemUsedBytes = vm.Used
		}

		return out, nil
	})
}
