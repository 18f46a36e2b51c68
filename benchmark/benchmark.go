// MODUL: benchmark
// ZWECK: Latenz-, Durchsatz- und Speichermessung fuer InferCore-Instanzen
// INPUT: InferCore + Blob-Container oder ml.Pool, Config
// OUTPUT: Result mit Latenz-Statistiken
// NEBENEFFEKTE: Geraete-Last waehrend der Messung, erzwingt GC vor der Messung
// ABHAENGIGKEITEN: ml, gonum/stat, x/sync/errgroup
// HINWEISE: Warmup-Laeufe werden nicht gemessen

package benchmark

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/easydeploy/infercore/ml"
)

// ============================================================================
// Konfiguration und Ergebnis
// ============================================================================

// Config controls one benchmark run.
type Config struct {
	Iterations int // gemessene Durchlaeufe pro Lane
	Warmup     int // ungemessene Durchlaeufe pro Lane
}

// DefaultConfig returns 100 measured and 10 warmup iterations.
func DefaultConfig() Config {
	return Config{Iterations: 100, Warmup: 10}
}

// Result holds the statistics of one run.
type Result struct {
	Core       string
	Backend    ml.CoreType
	Lanes      int
	Iterations int

	Total  time.Duration // Wanduhrzeit aller gemessenen Durchlaeufe
	Avg    time.Duration
	Min    time.Duration
	Max    time.Duration
	P50    time.Duration
	P95    time.Duration
	StdDev time.Duration

	Throughput float64 // Inferenzen pro Sekunde
	HeapGrowth int64   // Heap-Zuwachs in Bytes, negativ wenn geschrumpft
}

// ============================================================================
// Messung
// ============================================================================

// Run measures core on blobs. The first failing iteration aborts the run.
func Run(ctx context.Context, core ml.InferCore, blobs *ml.Blobs, cfg Config) (Result, error) {
	if cfg.Iterations < 1 {
		return Result{}, fmt.Errorf("benchmark: need at least one iteration, got %d", cfg.Iterations)
	}

	req := ml.NewRequest(blobs)
	for range cfg.Warmup {
		if err := ml.Process(ctx, core, req); err != nil {
			return Result{}, fmt.Errorf("warmup: %w", err)
		}
	}

	before := heapAlloc()
	start := time.Now()
	latencies, err := measure(ctx, core, blobs, cfg.Iterations)
	if err != nil {
		return Result{}, err
	}

	r := summarize(latencies, time.Since(start))
	r.Core, r.Backend, r.Lanes = core.Name(), core.Type(), 1
	r.HeapGrowth = int64(heapAlloc()) - int64(before)
	return r, nil
}

// RunParallel measures every lane of pool concurrently, each for
// cfg.Iterations. Throughput is based on wall time across all lanes.
func RunParallel(ctx context.Context, pool *ml.Pool, cfg Config) (Result, error) {
	if cfg.Iterations < 1 {
		return Result{}, fmt.Errorf("benchmark: need at least one iteration, got %d", cfg.Iterations)
	}

	lanes := pool.Lanes()
	for _, l := range lanes {
		req := ml.NewRequest(l.Blobs)
		for range cfg.Warmup {
			if err := ml.Process(ctx, l.Core, req); err != nil {
				return Result{}, fmt.Errorf("lane %d warmup: %w", l.Index, err)
			}
		}
	}

	var (
		mu  sync.Mutex
		all []time.Duration
	)

	before := heapAlloc()
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range lanes {
		g.Go(func() error {
			latencies, err := measure(gctx, l.Core, l.Blobs, cfg.Iterations)
			if err != nil {
				return fmt.Errorf("lane %d: %w", l.Index, err)
			}
			mu.Lock()
			all = append(all, latencies...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	r := summarize(all, time.Since(start))
	r.Core, r.Backend, r.Lanes = lanes[0].Core.Name(), lanes[0].Core.Type(), len(lanes)
	r.HeapGrowth = int64(heapAlloc()) - int64(before)
	return r, nil
}

func measure(ctx context.Context, core ml.InferCore, blobs *ml.Blobs, n int) ([]time.Duration, error) {
	req := ml.NewRequest(blobs)
	latencies := make([]time.Duration, 0, n)
	for range n {
		start := time.Now()
		if err := ml.Process(ctx, core, req); err != nil {
			return nil, err
		}
		latencies = append(latencies, time.Since(start))
	}
	return latencies, nil
}

func heapAlloc() uint64 {
	runtime.GC()
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapAlloc
}

// ============================================================================
// Statistik
// ============================================================================

func summarize(latencies []time.Duration, wall time.Duration) Result {
	r := Result{Iterations: len(latencies), Total: wall}
	if len(latencies) == 0 {
		return r
	}

	xs := make([]float64, len(latencies))
	for i, d := range latencies {
		xs[i] = float64(d)
	}
	slices.Sort(xs)

	r.Avg = time.Duration(stat.Mean(xs, nil))
	r.Min = time.Duration(xs[0])
	r.Max = time.Duration(xs[len(xs)-1])
	r.P50 = time.Duration(stat.Quantile(0.50, stat.Empirical, xs, nil))
	r.P95 = time.Duration(stat.Quantile(0.95, stat.Empirical, xs, nil))
	if sd := stat.StdDev(xs, nil); !math.IsNaN(sd) {
		r.StdDev = time.Duration(sd)
	}
	if wall > 0 {
		r.Throughput = float64(len(latencies)) / wall.Seconds()
	}
	return r
}
