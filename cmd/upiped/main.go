// Command upiped runs one pipeline: an HTTP(S) source feeding a TS demux,
// with elementary streams consumed through worker bins as programs are
// discovered. It is the production wiring SPEC_FULL.md's pipe core and TS
// demux modules are built for, in the same single-process-many-pipes shape
// a single top-level binary wiring its components together would use.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/snapetech/upipe-go/internal/dump"
	"github.com/snapetech/upipe-go/internal/health"
	"github.com/snapetech/upipe-go/internal/httpsrc"
	"github.com/snapetech/upipe-go/internal/pipeconfig"
	"github.com/snapetech/upipe-go/internal/pipefs"
	"github.com/snapetech/upipe-go/internal/pipemetrics"
	"github.com/snapetech/upipe-go/internal/ratelog"
	"github.com/snapetech/upipe-go/internal/tsdemux"
	"github.com/snapetech/upipe-go/internal/tsdemux/ca"
	"github.com/snapetech/upipe-go/internal/upipe"
	"github.com/snapetech/upipe-go/internal/uprobe"
	"github.com/snapetech/upipe-go/internal/uref"
	"github.com/snapetech/upipe-go/internal/workerbin"
	"golang.org/x/time/rate"
)

func main() {
	cfg := pipeconfig.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("upiped: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := pipemetrics.New()
	rl := ratelog.New(rate.Every(cfg.RateLogEvery), cfg.RateLogBurst)

	mgr := upipe.NewSimpleManager("upiped")
	probes := rootProbes(rl)

	if cfg.BissCAKeyPath != "" {
		log.Printf("upiped: UPIPE_BISSCA_KEY_PATH is set but no key-recovery backend is wired; CAT/PMT CA plumbing runs with a null decoder")
	}

	demux := tsdemux.NewDemux(mgr, probes, ca.NullEMMDecoder{}, rl)
	source := httpsrc.NewSource(mgr, probes, cfg.HTTPTimeout)
	if status := source.Control(upipe.SetURI{URI: cfg.SourceURI}); status != upipe.StatusNone {
		log.Fatalf("upiped: invalid source URI %q", cfg.SourceURI)
	}
	source.SetOutput(demux)

	graph := dump.New()
	graph.AddNode("http_src", "http_src")
	graph.AddNode("ts_demux", "ts_demux")
	graph.AddEdge("http_src", "ts_demux", "")

	seen := newSeenESSet()
	demux.OnProgramsChanged(func() {
		for _, programNumber := range demux.Programs() {
			for _, pid := range demux.ElementaryStreams(programNumber) {
				if !seen.add(programNumber, pid) {
					continue
				}
				wireElementaryStream(ctx, mgr, probes, demux, metrics, cfg, graph, programNumber, pid)
			}
		}
		if cfg.DumpPath != "" {
			writeDump(cfg.DumpPath, graph)
		}
	})

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, metrics)
	}
	if cfg.HealthAddr != "" {
		go serveHealth(ctx, cfg.HealthAddr, cfg.SourceURI)
	}
	if cfg.FUSEMount != "" {
		go mountPipefs(ctx, cfg.FUSEMount, demux)
	}

	if err := source.Start(ctx); err != nil {
		log.Fatalf("upiped: starting source: %v", err)
	}

	<-ctx.Done()
	log.Printf("upiped: shutting down")
}

// rootProbes builds the probe chain every pipe in this process shares: a
// catch-all handler that logs terminal events through the rate limiter
// (spec.md §7) first, then the HTTP scheme-hook resolver for events the
// catch-all leaves Unhandled.
func rootProbes(rl *ratelog.Limiter) *uprobe.Probe {
	root := uprobe.New(httpsrc.SchemeHookHandler())
	return root.Chained(func(pipe uprobe.Pipe, event uprobe.Event, args uprobe.Args) uprobe.Status {
		switch event {
		case uprobe.Fatal:
			rl.Warnf(ratelog.Key{Pipe: pipe.Name(), Reason: "fatal"}, "error code %d", args.ErrCode)
			return uprobe.Handled
		case uprobe.SourceEnd:
			rl.Warnf(ratelog.Key{Pipe: pipe.Name(), Reason: "source_end"}, "upstream ended")
			return uprobe.Handled
		case uprobe.Stalled:
			rl.Warnf(ratelog.Key{Pipe: pipe.Name(), Reason: "stalled"}, "no data before watchdog")
			return uprobe.Handled
		default:
			return uprobe.Unhandled
		}
	})
}

// wireElementaryStream allocates the ES output AllocES lazily creates once
// a program's PMT names pid, then drives it through a worker bin into a
// small counting sink — the concrete per-output consumption path spec.md
// §5 describes, rather than wrapping the whole multi-output demux bin in a
// single worker (a demux has one output per ES, not one overall).
func wireElementaryStream(ctx context.Context, mgr upipe.Manager, probes *uprobe.Probe, demux *tsdemux.Demux, metrics *pipemetrics.Registry, cfg *pipeconfig.Config, graph *dump.Graph, programNumber, pid uint16) {
	es, ok := demux.AllocES(programNumber, pid)
	if !ok {
		return
	}

	binName := esBinName(programNumber, pid)
	bin := workerbin.NewBin(mgr, probes, workerbin.Config{
		QueueDepth:   cfg.WorkerQueueDepth,
		Restart:      true,
		RestartDelay: 2 * time.Second,
	}, func(sink upipe.InputPipe) (upipe.InputPipe, error) {
		return &countingSink{metrics: metrics, pipe: binName}, nil
	})
	es.SetOutput(bin)
	bin.Start(ctx)

	flowDef, _ := demux.ProgramFlowDef(programNumber, pid)
	graph.AddNode(binName, binName)
	graph.AddEdge("ts_demux", binName, flowDef)
	log.Printf("upiped: wired elementary stream program=%d pid=%d flow_def=%q", programNumber, pid, flowDef)
}

func esBinName(programNumber, pid uint16) string {
	return "es_" + itoa(int(programNumber)) + "_" + itoa(int(pid))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// countingSink is the worker bin's inner subpipeline terminus: it just
// counts urefs into pipemetrics and releases them, standing in for a real
// consumer (a remux, a file writer, an AES67 sink) this binary doesn't
// otherwise need to demonstrate the cross-thread worker composite.
type countingSink struct {
	metrics *pipemetrics.Registry
	pipe    string
}

func (c *countingSink) Name() string { return c.pipe }

func (c *countingSink) Input(u *uref.Uref, _ any) {
	if !u.IsControl() {
		c.metrics.UrefsTotal.WithLabelValues(c.pipe).Inc()
	}
	u.Release()
}

// seenESSet tracks which (program, pid) pairs have already been wired so
// OnProgramsChanged's repeated full scans don't double-allocate an ES
// output every time any program changes.
type seenESSet struct {
	seen map[uint32]struct{}
}

func newSeenESSet() *seenESSet { return &seenESSet{seen: make(map[uint32]struct{})} }

func (s *seenESSet) add(programNumber, pid uint16) bool {
	key := uint32(programNumber)<<16 | uint32(pid)
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

func serveMetrics(addr string, metrics *pipemetrics.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	log.Printf("upiped: metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		log.Printf("upiped: metrics server: %v", err)
	}
}

func serveHealth(ctx context.Context, addr, sourceURI string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := health.CheckSource(checkCtx, sourceURI); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Printf("upiped: health listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("upiped: health server: %v", err)
	}
}

func mountPipefs(ctx context.Context, mountPoint string, demux *tsdemux.Demux) {
	log.Printf("upiped: mounting pipefs at %s", mountPoint)
	if err := pipefs.Mount(ctx, mountPoint, demux); err != nil {
		log.Printf("upiped: pipefs mount: %v", err)
	}
}

func writeDump(path string, graph *dump.Graph) {
	f, err := os.Create(path)
	if err != nil {
		log.Printf("upiped: writing dump: %v", err)
		return
	}
	defer f.Close()
	if err := graph.WriteDOT(f); err != nil {
		log.Printf("upiped: writing dump: %v", err)
	}
}
