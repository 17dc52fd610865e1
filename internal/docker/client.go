// Package docker provides the container runtime adapter backed by the Docker Engine API.
package docker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"golang.org/x/sync/semaphore"

	apperrors "github.com/zorak1103/whatsrunning/internal/errors"
	"github.com/zorak1103/whatsrunning/internal/metrics"
)

// DefaultMaxConcurrentRequests bounds the number of in-flight daemon calls.
const DefaultMaxConcurrentRequests = 4

// ErrConnectionFailed is returned when the daemon cannot be reached.
var ErrConnectionFailed = errors.New("docker connection failed")

// Client defines the runtime capabilities the snapshot engine depends on.
// Implementations must be safe for concurrent use.
// All methods accept context.Context for cancellation and timeout support.
type Client interface {
	// Ping verifies the Docker daemon is accessible. Returns error if connection fails.
	Ping(ctx context.Context) error
	// Close closes the Docker client connection and releases resources.
	Close() error

	// ListRunningContainers lists running containers.
	// Failures are reported as a RuntimeError of kind RuntimeUnavailable.
	ListRunningContainers(ctx context.Context) ([]ContainerRef, error)

	// CounterSnapshots returns the current counters and the counters sampled
	// just before them, read from a single stats response.
	// Failures are reported as a RuntimeError of kind StatsUnavailable.
	CounterSnapshots(ctx context.Context, ref ContainerRef) (current, previous metrics.CounterSnapshot, err error)

	// Attributes returns state, health, start time and published ports.
	// Failures are reported as a RuntimeError of kind AttributesUnavailable.
	Attributes(ctx context.Context, ref ContainerRef) (Attributes, error)
}

// dockerClientWrapper adapts the Docker SDK client to our interface
type dockerClientWrapper struct {
	api        client.APIClient
	socketPath string
	sem        *semaphore.Weighted
}

// Compile-time verification that dockerClientWrapper implements Client
var _ Client = (*dockerClientWrapper)(nil)

// NewClient connects to the Docker daemon at socketPath (or default if empty).
// At most maxConcurrent daemon requests are in flight at once; values below 1
// fall back to DefaultMaxConcurrentRequests.
func NewClient(socketPath string, maxConcurrent int) (Client, error) {
	opts := []client.Opt{
		client.WithAPIVersionNegotiation(),
	}

	// Add host option if socket path is specified
	if socketPath != "" {
		opts = append(opts, client.WithHost(socketPath))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client for socket %s: %w", socketPath, err)
	}

	return NewClientWithAPI(cli, socketPath, maxConcurrent), nil
}

// NewClientWithAPI wraps an existing SDK client. Used for testing with fakes.
func NewClientWithAPI(api client.APIClient, socketPath string, maxConcurrent int) Client {
	if maxConcurrent < 1 {
		maxConcurrent = DefaultMaxConcurrentRequests
	}
	return &dockerClientWrapper{
		api:        api,
		socketPath: socketPath,
		sem:        semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// acquire takes a worker slot, giving up when ctx is done.
func (w *dockerClientWrapper) acquire(ctx context.Context) (func(), error) {
	if err := w.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { w.sem.Release(1) }, nil
}

func (w *dockerClientWrapper) Ping(ctx context.Context) error {
	_, err := w.api.Ping(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping Docker daemon at %s: %w", w.socketPath, err)
	}
	return nil
}

func (w *dockerClientWrapper) Close() error {
	return w.api.Close()
}

func (w *dockerClientWrapper) ListRunningContainers(ctx context.Context) ([]ContainerRef, error) {
	release, err := w.acquire(ctx)
	if err != nil {
		return nil, &apperrors.RuntimeError{Kind: apperrors.RuntimeUnavailable, Operation: "ContainerList", Err: err}
	}
	defer release()

	containers, err := w.api.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, &apperrors.RuntimeError{
			Kind:      apperrors.RuntimeUnavailable,
			Operation: "ContainerList",
			Err:       fmt.Errorf("socket %s: %w", w.socketPath, err),
		}
	}

	result := make([]ContainerRef, 0, len(containers))
	for _, ctr := range containers {
		// Extract container name (remove leading slash)
		name := ""
		if len(ctr.Names) > 0 {
			name = strings.TrimPrefix(ctr.Names[0], "/")
		}
		result = append(result, ContainerRef{ID: ctr.ID, Name: name})
	}

	return result, nil
}

func (w *dockerClientWrapper) CounterSnapshots(ctx context.Context, ref ContainerRef) (metrics.CounterSnapshot, metrics.CounterSnapshot, error) {
	statsErr := func(err error) error {
		return &apperrors.RuntimeError{Kind: apperrors.StatsUnavailable, Operation: "ContainerStats", ContainerID: ref.ID, Err: err}
	}

	release, err := w.acquire(ctx)
	if err != nil {
		return metrics.CounterSnapshot{}, metrics.CounterSnapshot{}, statsErr(err)
	}
	defer release()

	// stream=false makes the daemon sample twice, so precpu_stats is populated
	resp, err := w.api.ContainerStats(ctx, ref.ID, false)
	if err != nil {
		return metrics.CounterSnapshot{}, metrics.CounterSnapshot{}, statsErr(err)
	}
	// Close body after decoding; error not actionable in defer context
	defer func() { _ = resp.Body.Close() }()

	var stats container.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return metrics.CounterSnapshot{}, metrics.CounterSnapshot{}, statsErr(fmt.Errorf("decode stats: %w", err))
	}

	current, previous := countersFromStats(stats)
	return current, previous, nil
}

func (w *dockerClientWrapper) Attributes(ctx context.Context, ref ContainerRef) (Attributes, error) {
	release, err := w.acquire(ctx)
	if err != nil {
		return Attributes{}, &apperrors.RuntimeError{Kind: apperrors.AttributesUnavailable, Operation: "ContainerInspect", ContainerID: ref.ID, Err: err}
	}
	defer release()

	info, err := w.api.ContainerInspect(ctx, ref.ID)
	if err != nil {
		return Attributes{}, &apperrors.RuntimeError{Kind: apperrors.AttributesUnavailable, Operation: "ContainerInspect", ContainerID: ref.ID, Err: err}
	}

	return attributesFromInspect(info), nil
}

// pageCache returns the reclaimable page cache from memory_stats.stats.
// cgroup v1 reports "cache"; cgroup v2 has no such key and reports "inactive_file".
func pageCache(stats map[string]uint64) (uint64, bool) {
	if cache, ok := stats["cache"]; ok {
		return cache, true
	}
	if inactive, ok := stats["inactive_file"]; ok {
		return inactive, true
	}
	return 0, false
}

// countersFromStats maps a stats response onto the current/previous snapshot pair.
// Memory is only sampled once, so the previous snapshot carries CPU counters only.
func countersFromStats(stats container.StatsResponse) (metrics.CounterSnapshot, metrics.CounterSnapshot) {
	current := metrics.CounterSnapshot{
		CPUTotal:      stats.CPUStats.CPUUsage.TotalUsage,
		SystemCPUTime: stats.CPUStats.SystemUsage,
		OnlineCPUs:    stats.CPUStats.OnlineCPUs,
		PerCPUCount:   len(stats.CPUStats.CPUUsage.PercpuUsage),
		MemUsage:      stats.MemoryStats.Usage,
		MemLimit:      stats.MemoryStats.Limit,
	}
	current.MemCache, current.HasMemCache = pageCache(stats.MemoryStats.Stats)

	previous := metrics.CounterSnapshot{
		CPUTotal:      stats.PreCPUStats.CPUUsage.TotalUsage,
		SystemCPUTime: stats.PreCPUStats.SystemUsage,
		OnlineCPUs:    stats.PreCPUStats.OnlineCPUs,
		PerCPUCount:   len(stats.PreCPUStats.CPUUsage.PercpuUsage),
	}

	return current, previous
}

func attributesFromInspect(info container.InspectResponse) Attributes {
	var attrs Attributes

	if info.ContainerJSONBase != nil && info.State != nil {
		attrs.Status = string(info.State.Status)
		attrs.StartedAt = info.State.StartedAt
		if info.State.Health != nil {
			attrs.Health = string(info.State.Health.Status)
		}
	}

	if info.NetworkSettings != nil {
		attrs.Ports = publishedPorts(info.NetworkSettings.Ports)
	}

	return attrs
}

// publishedPorts flattens a port map into bindings ordered by container port
// number, then protocol, then binding order. Bindings without a usable host
// port are skipped.
func publishedPorts(portMap nat.PortMap) []PortBinding {
	keys := make([]nat.Port, 0, len(portMap))
	for p := range portMap {
		keys = append(keys, p)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Int() != keys[j].Int() {
			return keys[i].Int() < keys[j].Int()
		}
		return keys[i].Proto() < keys[j].Proto()
	})

	var bindings []PortBinding
	for _, p := range keys {
		for _, b := range portMap[p] {
			hostPort, err := nat.ParsePort(b.HostPort)
			if err != nil || hostPort <= 0 {
				continue
			}
			bindings = append(bindings, PortBinding{
				ContainerPort: p.Int(),
				Proto:         p.Proto(),
				HostIP:        b.HostIP,
				HostPort:      hostPort,
			})
		}
	}
	return bindings
}
