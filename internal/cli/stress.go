package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/codelif/futexsync"
	"github.com/codelif/futexsync/internal/stress"
)

type stressArgs struct {
	workers    int
	iterations int
	shared     bool
}

// NewStressCmd returns the stress command.
func NewStressCmd() *cobra.Command {
	args := &stressArgs{}

	cmd := &cobra.Command{
		Use:       "stress [primitive...]",
		Short:     "Hammer primitives from many goroutines and check their guarantees",
		ValidArgs: stress.Primitives(),
		Args:      cobra.OnlyValidArgs,
		Example: fmt.Sprintf(`  futexsync stress -w 16 -n 100000 mutex rwlock
  %s futexsync stress --shared condvar`, futexsync.GetEnvPair("LOG_LEVEL", "debug")),
		Long: fmt.Sprintf(`Run contention workloads against the futex primitives.

Without arguments every workload runs: %s.
With --shared the primitives are placed in a memfd region and wait on the
shared futex queue.`, strings.Join(stress.Primitives(), ", ")),
		RunE: func(cc *cobra.Command, primitives []string) error {
			if len(primitives) == 0 {
				primitives = stress.Primitives()
			}

			cfg := stress.Config{
				Workers:    args.workers,
				Iterations: args.iterations,
				Shared:     args.shared,
			}

			for _, p := range primitives {
				report, err := stress.Run(cc.Context(), p, cfg)
				if err != nil {
					return err
				}
				log.Info("workload passed", "primitive", p, "ops", report.Ops, "elapsed", report.Elapsed)
				fmt.Fprintln(cc.OutOrStdout(), report)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&args.workers, "workers", "w", 8, "Number of concurrent goroutines")
	cmd.Flags().IntVarP(&args.iterations, "iterations", "n", 10000, "Iterations per goroutine")
	cmd.Flags().BoolVar(&args.shared, "shared", false, "Use shared-memory primitives in a memfd region")

	return cmd
}
