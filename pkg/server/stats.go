// pkg/server/stats.go
// Copyright(c) 2025-2026 towerview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	"net/http"
	"net/http/pprof"
	"runtime"
	"slices"
	"text/template"
	"time"

	"github.com/shirou/gopsutil/cpu"

	"github.com/towercab/towerview/pkg/math"
	"github.com/towercab/towerview/pkg/predict"
)

func registerPprof(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}

type serverStats struct {
	Uptime           time.Duration
	AllocMemory      uint64
	TotalAllocMemory uint64
	SysMemory        uint64
	NumGC            uint32
	NumGoRoutines    int
	CPUUsage         int

	Engine predict.Stats

	Tracked      int
	Interpolated int
	Coasting     int
	OnGround     int

	Removed []removedStatus
}

type removedStatus struct {
	Callsign string
	Ago      time.Duration
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := serverStats{
		Uptime:           time.Since(s.startTime).Round(time.Second),
		AllocMemory:      m.Alloc / (1024 * 1024),
		TotalAllocMemory: m.TotalAlloc / (1024 * 1024),
		SysMemory:        m.Sys / (1024 * 1024),
		NumGC:            m.NumGC,
		NumGoRoutines:    runtime.NumGoroutine(),

		Engine: s.engine.Stats(),
	}

	if usage, err := cpu.Percent(time.Second, false); err == nil && len(usage) > 0 {
		stats.CPUUsage = int(math.Round(float32(usage[0])))
	}

	for _, state := range s.engine.View() {
		stats.Tracked++
		if state.Interpolated {
			stats.Interpolated++
		}
		if state.Coasting {
			stats.Coasting++
		}
		if state.OnGround {
			stats.OnGround++
		}
	}

	now := time.Now()
	for _, callsign := range s.removed.Keys() {
		if at, ok := s.removed.Get(callsign); ok {
			stats.Removed = append(stats.Removed, removedStatus{
				Callsign: callsign,
				Ago:      now.Sub(at).Round(time.Second),
			})
		}
	}
	slices.SortFunc(stats.Removed, func(a, b removedStatus) int {
		return int(a.Ago - b.Ago)
	})

	statsTemplate.Execute(w, stats)
}

var statsTemplate = template.Must(template.New("").Parse(`
<!DOCTYPE html>
<html>
<head>
<title>towerview</title>
</head>
<style>
table {
  border-collapse: collapse;
  width: 100%;
}

th, td {
  border: 1px solid #dddddd;
  padding: 8px;
  text-align: left;
}

tr:nth-child(even) {
  background-color: #f2f2f2;
}
</style>
<body>
<h1>Server Status</h1>
<ul>
  <li>Uptime: {{.Uptime}}</li>
  <li>CPU usage: {{.CPUUsage}}%</li>
  <li>Allocated memory: {{.AllocMemory}} MB</li>
  <li>Total allocated memory: {{.TotalAllocMemory}} MB</li>
  <li>System memory: {{.SysMemory}} MB</li>
  <li>Garbage collection passes: {{.NumGC}}</li>
  <li>Running goroutines: {{.NumGoRoutines}}</li>
</ul>

<h1>Engine</h1>
<ul>
  <li>Ticks: {{.Engine.Steps}}</li>
  <li>Attached consumers: {{.Engine.Attached}}</li>
  <li>Average tick: {{.Engine.AvgStep}}</li>
  <li>Slowest recent tick: {{.Engine.MaxStep}}</li>
</ul>

<h1>Traffic</h1>
<table>
  <tr>
  <th>Tracked</th>
  <th>Interpolated</th>
  <th>Coasting</th>
  <th>On Ground</th>
  </tr>
  <tr>
  <td>{{.Tracked}}</td>
  <td>{{.Interpolated}}</td>
  <td>{{.Coasting}}</td>
  <td>{{.OnGround}}</td>
  </tr>
</table>

{{if .Removed}}
<h1>Recently Dropped</h1>
<table>
  <tr>
  <th>Callsign</th>
  <th>Ago</th>
  </tr>
{{range .Removed}}
  <tr>
  <td>{{.Callsign}}</td>
  <td>{{.Ago}}</td>
  </tr>
{{end}}
</table>
{{end}}

</body>
</html>
`))
