// Package inspector builds the record for a single container: resource usage,
// status, health, uptime and the published ports that answer HTTP or HTTPS.
package inspector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"golang.org/x/sync/errgroup"

	"github.com/zorak1103/whatsrunning/internal/docker"
	"github.com/zorak1103/whatsrunning/internal/metrics"
	"github.com/zorak1103/whatsrunning/internal/probe"
)

// Field defaults used when the runtime does not report a value.
const (
	DefaultStatus = "unknown"
	DefaultHealth = "N/A"
	DefaultUptime = "00:00:00"
	DefaultHost   = "localhost"
)

// Port is a published host port together with the protocol it answered.
type Port struct {
	Protocol string `json:"protocol"`
	Port     int    `json:"port"`
}

// URL returns the address a browser would use to reach the port on host.
func (p Port) URL(host string) string {
	return fmt.Sprintf("%s://%s:%d", p.Protocol, host, p.Port)
}

// ContainerRecord is the externally visible summary of one container.
type ContainerRecord struct {
	Name          string  `json:"name"`
	Status        string  `json:"status"`
	Health        string  `json:"health"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	Ports         []Port  `json:"ports"`
	Uptime        string  `json:"uptime"`
}

// PortClassifier probes candidate ports. Results are returned in input order.
type PortClassifier interface {
	ClassifyAll(ctx context.Context, host string, ports []int) []probe.Classification
}

// Options configures an Inspector.
type Options struct {
	Hostname string // host the published ports are probed on
	SelfID   string // container id prefix of the process itself, empty disables exclusion
	Logger   *slog.Logger
	Now      func() time.Time
}

// Inspector builds ContainerRecords.
type Inspector struct {
	client     docker.Client
	classifier PortClassifier
	hostname   string
	selfID     string
	logger     *slog.Logger
	now        func() time.Time
}

// New creates an Inspector.
func New(client docker.Client, classifier PortClassifier, opts Options) *Inspector {
	if opts.Hostname == "" {
		opts.Hostname = DefaultHost
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Inspector{
		client:     client,
		classifier: classifier,
		hostname:   opts.Hostname,
		selfID:     opts.SelfID,
		logger:     opts.Logger,
		now:        opts.Now,
	}
}

// IsSelf reports whether ref is the container running this process.
func (i *Inspector) IsSelf(ref docker.ContainerRef) bool {
	return i.selfID != "" && strings.HasPrefix(ref.ID, i.selfID)
}

// Inspect builds the record for ref. It returns false only for the
// self-container; every other failure degrades individual fields.
func (i *Inspector) Inspect(ctx context.Context, ref docker.ContainerRef) (ContainerRecord, bool) {
	if i.IsSelf(ref) {
		i.logger.Debug("Skipping own container.", "container", ref.Name)
		return ContainerRecord{}, false
	}

	record := ContainerRecord{
		Name:   ref.Name,
		Status: DefaultStatus,
		Health: DefaultHealth,
		Uptime: DefaultUptime,
		Ports:  []Port{},
	}

	// Each goroutine writes disjoint fields of record.
	var g errgroup.Group
	g.Go(func() error {
		usage := i.usage(ctx, ref)
		record.CPUPercent = usage.CPUPercent
		record.MemoryPercent = usage.MemoryPercent
		return nil
	})
	g.Go(func() error {
		attrs, err := i.client.Attributes(ctx, ref)
		if err != nil {
			i.logFieldFailure("Could not inspect container.", ref, err)
			return nil
		}
		if attrs.Status != "" {
			record.Status = attrs.Status
		}
		if attrs.Health != "" {
			record.Health = attrs.Health
		}
		record.Uptime = i.uptime(ref, attrs.StartedAt)
		record.Ports = i.classifyPorts(ctx, candidatePorts(attrs.Ports))
		return nil
	})
	_ = g.Wait() // field derivations never return errors

	return record, true
}

func (i *Inspector) usage(ctx context.Context, ref docker.ContainerRef) metrics.UsageResult {
	current, previous, err := i.client.CounterSnapshots(ctx, ref)
	if err != nil {
		i.logFieldFailure("Could not read container stats.", ref, err)
		return metrics.UsageResult{}
	}
	return metrics.ComputeUsage(current, previous)
}

func (i *Inspector) uptime(ref docker.ContainerRef, startedAt string) string {
	started, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		i.logger.Warn("Could not parse container start time.", "container", ref.Name, "started_at", startedAt, "err", err)
		return DefaultUptime
	}
	if started.IsZero() {
		return DefaultUptime
	}
	return FormatUptime(i.now().Sub(started))
}

func (i *Inspector) classifyPorts(ctx context.Context, candidates []int) []Port {
	ports := []Port{}
	if len(candidates) == 0 {
		return ports
	}
	for _, c := range i.classifier.ClassifyAll(ctx, i.hostname, candidates) {
		if c.Protocol == probe.None {
			continue
		}
		ports = append(ports, Port{Protocol: string(c.Protocol), Port: c.Port})
	}
	return ports
}

func (i *Inspector) logFieldFailure(msg string, ref docker.ContainerRef, err error) {
	if errdefs.IsNotFound(err) {
		i.logger.Debug(msg, "container", ref.Name, "err", err)
		return
	}
	i.logger.Warn(msg, "container", ref.Name, "err", err)
}

// candidatePorts returns the distinct TCP host ports in binding order.
func candidatePorts(bindings []docker.PortBinding) []int {
	seen := make(map[int]struct{}, len(bindings))
	var ports []int
	for _, b := range bindings {
		if b.Proto != "tcp" {
			continue
		}
		if _, dup := seen[b.HostPort]; dup {
			continue
		}
		seen[b.HostPort] = struct{}{}
		ports = append(ports, b.HostPort)
	}
	return ports
}

// FormatUptime renders d as HH:MM:SS. Hours are not wrapped at a day and
// negative durations render as zero.
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total/60%60, total%60)
}
