// Package metrics derives normalized CPU and memory percentages from raw
// container counter snapshots.
package metrics

import "math"

// CounterSnapshot holds the cumulative counters captured at one instant.
// A zero value for any counter means the runtime did not report it.
type CounterSnapshot struct {
	CPUTotal      uint64 // container CPU time, nanoseconds
	SystemCPUTime uint64 // host-wide CPU time, nanoseconds
	OnlineCPUs    uint32 // explicit online CPU count, 0 if not reported
	PerCPUCount   int    // length of the per-CPU usage array

	MemUsage    uint64
	MemCache    uint64
	HasMemCache bool // MemCache is only subtracted when the runtime reported it
	MemLimit    uint64
}

// UsageResult is the derived resource usage of a container.
// Both fields are always finite and non-negative.
type UsageResult struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

// ComputeUsage derives CPU and memory percentages from the current snapshot
// and the snapshot taken just before it. It never fails: anything that
// cannot be derived yields 0 for that metric.
func ComputeUsage(current, previous CounterSnapshot) UsageResult {
	return UsageResult{
		CPUPercent:    round2(cpuPercent(current, previous)),
		MemoryPercent: round2(memoryPercent(current)),
	}
}

// onlineCPUs returns the explicit count, else the per-CPU array length, else 1.
func onlineCPUs(s CounterSnapshot) float64 {
	if s.OnlineCPUs > 0 {
		return float64(s.OnlineCPUs)
	}
	if s.PerCPUCount > 0 {
		return float64(s.PerCPUCount)
	}
	return 1
}

func cpuPercent(current, previous CounterSnapshot) float64 {
	// Counters are unsigned; subtract as floats so a counter reset goes
	// negative instead of wrapping.
	cpuDelta := float64(current.CPUTotal) - float64(previous.CPUTotal)
	systemDelta := float64(current.SystemCPUTime) - float64(previous.SystemCPUTime)
	cpus := onlineCPUs(current)

	if systemDelta <= 0 || cpus <= 0 {
		return 0
	}
	return (cpuDelta / systemDelta) * 100 * cpus
}

func memoryPercent(current CounterSnapshot) float64 {
	if current.MemLimit == 0 {
		return 0
	}
	usage := float64(current.MemUsage)
	if current.HasMemCache {
		usage -= float64(current.MemCache)
	}
	return usage / float64(current.MemLimit) * 100
}

// round2 rounds to two decimals and clamps anything negative or non-finite to 0.
func round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0
	}
	return math.Round(v*100) / 100
}
