// Package workerbin implements the cross-thread worker composite of
// spec.md §5: "pipelines that need a worker thread wrap a subpipeline
// behind a pair of queues plus a transfer manager." This is a goroutine
// analogue of a process-supervision loop (context cancellation,
// fail-fast-vs-restart, backoff with jitter), retargeted from spawning OS
// processes to migrating an inner upipe subpipeline onto its own
// goroutine, with two bounded Go channels standing in for the
// main->worker input queue and the worker->main output queue.
package workerbin

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/snapetech/upipe-go/internal/upipe"
	"github.com/snapetech/upipe-go/internal/uprobe"
	"github.com/snapetech/upipe-go/internal/uref"
)

// BuildFunc constructs one instance of the inner subpipeline, wiring its
// last stage's output to sink, and returns the inner subpipeline's first
// pipe (the one that should receive urefs crossing the input queue). It is
// called once per Start and again after every restart, so it must not
// capture state that can't be rebuilt from scratch.
type BuildFunc func(sink upipe.InputPipe) (upipe.InputPipe, error)

// Config controls the worker bin's queue sizing and its restart policy on
// inner-pipeline failure.
type Config struct {
	// QueueDepth bounds both the input and output queues (spec.md §5's
	// max_urefs). A full queue blocks the sender rather than dropping.
	QueueDepth int
	// Restart re-builds and re-runs the inner subpipeline after it fails.
	Restart bool
	// RestartDelay is the base backoff between restarts; an actual delay
	// is jittered +/-20% around it.
	RestartDelay time.Duration
	// FailFast tears the whole bin down (instead of restarting or idling)
	// on the first inner-pipeline failure.
	FailFast bool
}

func (c Config) withDefaults() Config {
	if c.QueueDepth <= 0 {
		c.QueueDepth = 64
	}
	if c.RestartDelay <= 0 {
		c.RestartDelay = 2 * time.Second
	}
	return c
}

type queuedURef struct {
	u    *uref.Uref
	pump any
}

// Bin is a worker composite: one InputPipe/ControlPipe facade in front of
// an inner subpipeline that actually runs on a dedicated goroutine.
type Bin struct {
	*upipe.Pipe
	*upipe.Output

	cfg   Config
	build BuildFunc

	mu     sync.Mutex
	inner  upipe.InputPipe
	cancel context.CancelFunc

	inCh chan queuedURef
}

// NewBin allocates a worker bin. The inner subpipeline is not built until
// Start is called.
func NewBin(mgr upipe.Manager, probes *uprobe.Probe, cfg Config, build BuildFunc) *Bin {
	cfg = cfg.withDefaults()
	b := &Bin{
		Output: upipe.NewOutput(cfg.QueueDepth),
		cfg:    cfg,
		build:  build,
		inCh:   make(chan queuedURef, cfg.QueueDepth),
	}
	b.Pipe = upipe.NewBase(mgr, probes, "worker_bin", b.teardown, nil)
	b.MarkValid()
	return b
}

func (b *Bin) teardown() {
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Input enqueues u on the main->worker queue, blocking (never dropping)
// once the queue reaches QueueDepth — the "producer observes backpressure
// via the blocker mechanism, not data loss" rule of spec.md §5, simplified
// here to an ordinary blocking channel send since Go gives every goroutine
// its own stack to block on.
func (b *Bin) Input(u *uref.Uref, pump any) {
	b.inCh <- queuedURef{u: u, pump: pump}
}

// Control handles the generic output commands itself and forwards anything
// else to the currently running inner subpipeline's first pipe, mirroring
// upipe.BinInput.Control's forwarding rule.
func (b *Bin) Control(cmd upipe.Command) upipe.Status {
	switch c := cmd.(type) {
	case upipe.SetOutput:
		b.SetOutput(c.Output)
		return upipe.StatusNone
	case upipe.GetOutput:
		*c.Out = b.GetOutput()
		return upipe.StatusNone
	default:
		b.mu.Lock()
		inner := b.inner
		b.mu.Unlock()
		if cp, ok := inner.(upipe.ControlPipe); ok {
			return cp.Control(cmd)
		}
		return upipe.StatusUnhandled
	}
}

// QueueLen reports the current depth of the main->worker queue, for
// internal/pipemetrics.Registry.WorkerBinQueueDepth.
func (b *Bin) QueueLen() int { return len(b.inCh) }

// Start migrates the inner subpipeline onto its own goroutine and begins
// pumping urefs between the two queues. Start returns immediately; failures
// are reported via UPROBE_FATAL on the bin's own probe chain, not a
// returned error, since by the time one occurs the caller has long since
// moved on.
func (b *Bin) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()
	go b.runLoop(runCtx)
}

// runLoop is the restart-supervision loop: run once, and on failure either
// restart after a jittered backoff, fail fast, or give up quietly.
func (b *Bin) runLoop(ctx context.Context) {
	for {
		err := b.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			return
		}
		log.Printf("worker_bin: inner pipeline failed: %v", err)
		b.Throw(uprobe.Fatal, uprobe.Args{ErrCode: int(upipe.StatusExternal)})
		if b.cfg.FailFast {
			b.mu.Lock()
			cancel := b.cancel
			b.mu.Unlock()
			if cancel != nil {
				cancel()
			}
			return
		}
		if !b.cfg.Restart {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(jitter(b.cfg.RestartDelay)):
		}
	}
}

// runOnce builds one instance of the inner subpipeline (the "one-shot pipe
// migration" of spec.md §5), then pumps the main->worker queue into it and
// its sink's worker->main queue back out through the bin's own Output,
// until ctx is cancelled or the inner pipeline panics.
func (b *Bin) runOnce(ctx context.Context) (err error) {
	outCh := make(chan *uref.Uref, b.cfg.QueueDepth)
	sink := &chanSink{ch: outCh}

	inner, buildErr := b.build(sink)
	if buildErr != nil {
		return fmt.Errorf("build inner pipeline: %w", buildErr)
	}

	b.mu.Lock()
	b.inner = inner
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.inner = nil
		b.mu.Unlock()
	}()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("inner pipeline panic: %v", r)
		}
	}()

	forwarderDone := make(chan struct{})
	go func() {
		defer close(forwarderDone)
		for {
			select {
			case u := <-outCh:
				b.Emit(u)
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case qu := <-b.inCh:
			inner.Input(qu.u, qu.pump)
		case <-ctx.Done():
			<-forwarderDone
			return nil
		}
	}
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	n := int64(d) / 5
	if n <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(2*n)-n)
}

// chanSink is the inner subpipeline's terminal pipe: every uref it
// receives is handed to the worker->main queue, blocking (not dropping)
// when that queue is full.
type chanSink struct {
	ch chan *uref.Uref
}

func (s *chanSink) Name() string { return "worker_bin_sink" }

func (s *chanSink) Input(u *uref.Uref, _ any) {
	s.ch <- u
}
