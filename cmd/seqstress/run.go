// run.go implements the 'seqstress run' command.
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/kolkov/seqlock/seqlock"
)

const (
	// ErrTornRead is returned when a reader sees fields from two writes.
	ErrTornRead = errors.ConstError("torn read")

	// ErrUncommitted is returned when a reader sees a value no write produced,
	// or an older value after a newer one.
	ErrUncommitted = errors.ConstError("uncommitted value")
)

// flushEvery is how many reads (or contended TryLock calls) a goroutine
// counts locally before publishing them to the shared totals. Must be a power
// of two.
const flushEvery = 1024

// stressConfig holds the validated flags of 'seqstress run'.
type stressConfig struct {
	readers     int
	writes      uint64
	initial     uint64
	metricsAddr string
	logLevel    string
}

// record is the value under test. The writer stores the same number in
// every field, word by word, so a torn copy has fields that disagree.
type record struct {
	A, B, C, D uint64
}

func fill(v uint64) record {
	return record{A: v, B: v, C: v, D: v}
}

// stressReport summarizes a completed run.
type stressReport struct {
	Reads     uint64
	Writes    uint64
	Contended uint64
	Final     uint64
	Sequence  uint64
	Elapsed   time.Duration
}

// runCommand implements the 'seqstress run' command.
//
// Flow:
//  1. Parse and validate flags
//  2. Configure logging and, if requested, the metrics endpoint
//  3. Run the stress scenario until the writer finishes or a check fails
//  4. Print the report
func runCommand(args []string) error {
	cfg, err := parseRunArgs(args)
	if err != nil {
		return errors.Trace(err)
	}

	if err := loggo.ConfigureLoggers("seqstress=" + cfg.logLevel); err != nil {
		return errors.Annotatef(err, "configuring logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	collector := NewCollector()
	if cfg.metricsAddr != "" {
		addr, shutdown, err := serveMetrics(cfg.metricsAddr, collector)
		if err != nil {
			return errors.Trace(err)
		}
		defer shutdown()
		logger.Infof("serving metrics on http://%s/metrics", addr)
	}

	report, err := runStress(ctx, cfg, collector)
	if err != nil {
		return errors.Trace(err)
	}

	printReport(os.Stdout, report)
	return nil
}

// parseRunArgs parses 'seqstress run' flags into a stressConfig.
func parseRunArgs(args []string) (stressConfig, error) {
	fs := gnuflag.NewFlagSet("run", gnuflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var cfg stressConfig
	fs.IntVar(&cfg.readers, "readers", 8, "concurrent reader goroutines")
	fs.Uint64Var(&cfg.writes, "writes", 10000, "writes committed by the writer")
	fs.Uint64Var(&cfg.initial, "initial", 0, "initial value")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	fs.StringVar(&cfg.logLevel, "log-level", "INFO", "log level")

	if err := fs.Parse(true, args); err != nil {
		return stressConfig{}, errors.NotValidf("flags: %v", err)
	}
	if fs.NArg() > 0 {
		return stressConfig{}, errors.NotValidf("unexpected arguments %q", fs.Args())
	}
	if cfg.readers < 1 {
		return stressConfig{}, errors.NotValidf("--readers %d (need at least 1)", cfg.readers)
	}
	if cfg.writes == 0 {
		return stressConfig{}, errors.NotValidf("--writes 0")
	}
	if cfg.initial+cfg.writes < cfg.initial {
		return stressConfig{}, errors.NotValidf("--initial %d with --writes %d overflows", cfg.initial, cfg.writes)
	}
	if _, ok := loggo.ParseLevel(cfg.logLevel); !ok {
		return stressConfig{}, errors.NotValidf("--log-level %q", cfg.logLevel)
	}

	return cfg, nil
}

// serveMetrics starts an HTTP server exposing collector on addr. It returns
// the bound address and a function that stops the server.
func serveMetrics(addr string, collector *Collector) (net.Addr, func(), error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collector); err != nil {
		return nil, nil, errors.Annotatef(err, "registering metrics")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, errors.Annotatef(err, "listening on %s", addr)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Errorf("metrics server: %v", err)
		}
	}()
	return ln.Addr(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// runStress runs the scenario described by cfg.
//
// Goroutines:
//   - cfg.readers readers calling Read and validating every snapshot
//   - one writer committing cfg.writes increments
//   - one prober calling TryLock to exercise the non-blocking path
//
// The first failed check cancels the group and is returned.
func runStress(ctx context.Context, cfg stressConfig, collector *Collector) (stressReport, error) {
	lock := seqlock.New(fill(cfg.initial))
	last := cfg.initial + cfg.writes

	var (
		stop      atomic.Bool
		reads     atomic.Uint64
		contended atomic.Uint64
	)

	logger.Infof("starting %d readers against %d writes from %d", cfg.readers, cfg.writes, cfg.initial)
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)

	for r := 0; r < cfg.readers; r++ {
		id := r
		g.Go(func() error {
			var n, flushed uint64
			flush := func() {
				reads.Add(n - flushed)
				collector.reads.Add(float64(n - flushed))
				flushed = n
			}
			defer func() {
				flush()
				logger.Debugf("reader %d: %d reads", id, n)
			}()

			prev := cfg.initial
			for !stop.Load() {
				if n&(flushEvery-1) == 0 {
					flush()
					if ctx.Err() != nil {
						return nil
					}
				}

				v := lock.Read()
				if err := checkSnapshot(v, prev, last); err != nil {
					collector.tornReads.Inc()
					return errors.Annotatef(err, "reader %d after %d reads", id, n)
				}
				prev = v.A
				n++
			}
			return nil
		})
	}

	g.Go(func() error {
		var n uint64
		defer func() {
			contended.Add(n)
			collector.contended.Add(float64(n))
		}()

		for !stop.Load() {
			if ctx.Err() != nil {
				return nil
			}
			if guard, ok := lock.TryLock(); ok {
				guard.Unlock()
			} else if n++; n == flushEvery {
				contended.Add(n)
				collector.contended.Add(float64(n))
				n = 0
			}
			runtime.Gosched()
		}
		return nil
	})

	g.Go(func() error {
		defer stop.Store(true)

		for n := uint64(1); n <= cfg.writes; n++ {
			i := cfg.initial + n
			if err := ctx.Err(); err != nil {
				return errors.Annotatef(err, "writer stopped at %d", i)
			}

			guard := lock.Lock()
			p := guard.Value()
			p.A = i
			p.B = i
			p.C = i
			p.D = i
			guard.Unlock()
			collector.writes.Inc()
		}
		logger.Debugf("writer done at sequence %d", lock.Sequence())
		return nil
	})

	if err := g.Wait(); err != nil {
		return stressReport{}, err
	}

	final := lock.IntoInner()
	if final != fill(last) {
		return stressReport{}, errors.Annotatef(ErrUncommitted, "final value %+v, want %d", final, last)
	}

	report := stressReport{
		Reads:     reads.Load(),
		Writes:    cfg.writes,
		Contended: contended.Load(),
		Final:     final.A,
		Sequence:  lock.Sequence(),
		Elapsed:   time.Since(start),
	}
	logger.Infof("done: %d reads, %d writes in %v", report.Reads, report.Writes, report.Elapsed)
	return report, nil
}

// checkSnapshot validates one Read result: all fields equal, inside
// [prev, last], where prev is the reader's previous observation.
func checkSnapshot(v record, prev, last uint64) error {
	if v.B != v.A || v.C != v.A || v.D != v.A {
		return errors.Annotatef(ErrTornRead, "%+v", v)
	}
	if v.A < prev || v.A > last {
		return errors.Annotatef(ErrUncommitted, "%d outside [%d, %d]", v.A, prev, last)
	}
	return nil
}

// printReport writes the human-readable summary of a run.
func printReport(w io.Writer, r stressReport) {
	fmt.Fprintf(w, "reads:      %d\n", r.Reads)
	fmt.Fprintf(w, "writes:     %d\n", r.Writes)
	fmt.Fprintf(w, "contended:  %d\n", r.Contended)
	fmt.Fprintf(w, "final:      %d\n", r.Final)
	fmt.Fprintf(w, "sequence:   %d\n", r.Sequence)
	fmt.Fprintf(w, "elapsed:    %v\n", r.Elapsed.Round(time.Millisecond))
}
