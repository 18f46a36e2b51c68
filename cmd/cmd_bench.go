// cmd_bench.go - bench Command
// Hauptfunktionen: BenchHandler, spinner
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/easydeploy/infercore/benchmark"
	"github.com/easydeploy/infercore/ml"
)

// BenchHandler - Misst Latenz und Durchsatz eines Modells
func BenchHandler(cmd *cobra.Command, args []string) error {
	var cfg benchmark.Config
	cfg.Iterations, _ = cmd.Flags().GetInt("iterations")
	cfg.Warmup, _ = cmd.Flags().GetInt("warmup")
	parallel, _ := cmd.Flags().GetInt("parallel")

	t, p, err := coreParams(cmd, args[0])
	if err != nil {
		return err
	}

	var stop func()
	if term.IsTerminal(int(os.Stderr.Fd())) {
		stop = spinner(cmd.Context(), os.Stderr, fmt.Sprintf("measuring %d iterations on %d lanes", cfg.Iterations, parallel))
	}

	result, err := bench(cmd.Context(), t, p, cfg, parallel)
	if stop != nil {
		stop()
	}
	if err != nil {
		return err
	}

	results := []benchmark.Result{result}
	benchmark.PrintResults(cmd.OutOrStdout(), results)

	if path, _ := cmd.Flags().GetString("csv"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()

		if err := benchmark.WriteCSV(f, results); err != nil {
			return err
		}
		return f.Close()
	}
	return nil
}

func bench(ctx context.Context, t ml.CoreType, p ml.Params, cfg benchmark.Config, parallel int) (benchmark.Result, error) {
	if parallel <= 1 {
		core, err := ml.NewCore(t, p)
		if err != nil {
			return benchmark.Result{}, err
		}
		defer core.Close()

		blobs, err := core.AllocBlobsBuffer()
		if err != nil {
			return benchmark.Result{}, err
		}
		return benchmark.Run(ctx, core, blobs, cfg)
	}

	f, err := ml.NewFactory(t, p)
	if err != nil {
		return benchmark.Result{}, err
	}
	pool, err := ml.NewPool(ctx, f, parallel)
	if err != nil {
		return benchmark.Result{}, err
	}
	defer pool.Close()

	return benchmark.RunParallel(ctx, pool, cfg)
}

// spinner - Zeigt einen Fortschritts-Spinner bis stop aufgerufen wird
func spinner(ctx context.Context, w io.Writer, msg string) (stop func()) {
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for i := 0; ; i++ {
			fmt.Fprintf(w, "\r%s %s", frames[i%len(frames)], msg)
			select {
			case <-ctx.Done():
				fmt.Fprint(w, "\r\033[K")
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
