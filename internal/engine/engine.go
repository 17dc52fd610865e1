// Package engine produces point-in-time snapshots of every running container.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zorak1103/whatsrunning/internal/docker"
	apperrors "github.com/zorak1103/whatsrunning/internal/errors"
	"github.com/zorak1103/whatsrunning/internal/inspector"
)

// DefaultDeadline bounds a whole snapshot, measured from fan-out start.
const DefaultDeadline = 25 * time.Second

// Snapshot is the list of container records ordered by name.
type Snapshot []inspector.ContainerRecord

// ContainerInspector builds one record per container. It returns false for
// containers that must not appear in a snapshot.
type ContainerInspector interface {
	Inspect(ctx context.Context, ref docker.ContainerRef) (inspector.ContainerRecord, bool)
}

// Options configures an Engine.
type Options struct {
	Deadline time.Duration // DefaultDeadline if zero
	Logger   *slog.Logger
}

// Engine aggregates container records into snapshots.
// It holds no state between calls and is safe for concurrent use.
type Engine struct {
	client    docker.Client
	inspector ContainerInspector
	deadline  time.Duration
	logger    *slog.Logger
}

// New creates an Engine.
func New(client docker.Client, insp ContainerInspector, opts Options) *Engine {
	if opts.Deadline <= 0 {
		opts.Deadline = DefaultDeadline
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		client:    client,
		inspector: insp,
		deadline:  opts.Deadline,
		logger:    opts.Logger,
	}
}

// Snapshot lists the running containers and inspects them all concurrently.
// It always returns either the complete snapshot or an empty one: a failed
// listing, an expired deadline or a cancelled ctx all yield no records.
func (e *Engine) Snapshot(ctx context.Context) Snapshot {
	snap, err := e.snapshot(ctx)
	if err != nil {
		e.logger.Error("Snapshot failed.", "err", err)
		return Snapshot{}
	}
	return snap
}

func (e *Engine) snapshot(ctx context.Context) (Snapshot, error) {
	refs, err := e.client.ListRunningContainers(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })

	ctx, cancel := context.WithTimeout(ctx, e.deadline)
	defer cancel()

	type result struct {
		record inspector.ContainerRecord
		ok     bool
	}
	// Slot i is written only by task i and read only after all tasks finish.
	results := make([]result, len(refs))

	var g errgroup.Group
	for i, ref := range refs {
		g.Go(func() error {
			record, ok := e.inspector.Inspect(ctx, ref)
			results[i] = result{record: record, ok: ok}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// In-flight tasks see the cancelled ctx and unwind on their own;
		// their results are never read.
	}
	// Tasks that finished after expiry may hold fields degraded by the
	// cancellation, so a late completion counts as a failed poll too.
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.ErrDeadlineExceeded
		}
		return nil, err
	}

	snap := make(Snapshot, 0, len(results))
	for _, r := range results {
		if r.ok {
			snap = append(snap, r.record)
		}
	}
	return snap, nil
}
