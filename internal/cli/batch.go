package cli

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/liamcoop/claims/pipeline"
	"github.com/liamcoop/claims/worker"
)

// BatchEntry is one claim of a batch run
type BatchEntry struct {
	Index     int              `json:"index" yaml:"index"`
	Documents []string         `json:"documents" yaml:"documents"`
	Report    *pipeline.Report `json:"report,omitempty" yaml:"report,omitempty"`
	Error     string           `json:"error,omitempty" yaml:"error,omitempty"`
}

// BatchOutput is the result of the batch command
type BatchOutput struct {
	Total     int          `json:"total" yaml:"total"`
	Completed int          `json:"completed" yaml:"completed"`
	Failed    int          `json:"failed" yaml:"failed"`
	Claims    []BatchEntry `json:"claims" yaml:"claims"`
}

func newBatchCmd(opts *options) *cobra.Command {
	var (
		concurrency  int
		batchTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Process many claims from a file in parallel",
		Long: `Batch processes one claim per line of the input file:
- Each line lists the claim's document paths, separated by commas
- Blank lines and lines starting with # are skipped
- Claims are processed in parallel under the default policy
- A failed claim does not stop the others

Example:
  claimctl batch claims.txt
  claimctl batch claims.txt --concurrency 8 --timeout 5m -o yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
			defer cancel()

			svc, err := opts.service(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			if concurrency <= 0 {
				concurrency = svc.Config.Pipeline.Workers
			}
			processor := worker.NewBatchProcessor(svc.Processor, concurrency)

			results, err := processor.ProcessFile(ctx, args[0])
			if err != nil {
				return fmt.Errorf("process file: %w", err)
			}

			out := BatchOutput{Total: len(results), Claims: make([]BatchEntry, 0, len(results))}
			for _, r := range results {
				entry := BatchEntry{Index: r.Index, Documents: r.Documents}
				if r.Claim != nil {
					entry.Report = pipeline.BuildReport(r.Claim)
				}
				if r.Error != nil {
					entry.Error = r.Error.Error()
					out.Failed++
				} else {
					out.Completed++
				}
				out.Claims = append(out.Claims, entry)
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Batch complete: %d claims, %d completed, %d failed\n", out.Total, out.Completed, out.Failed)
			return opts.print(cmd, out)
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent workers (0 uses pipeline.workers)")
	cmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")
	return cmd
}
