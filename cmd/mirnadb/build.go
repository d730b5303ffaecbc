package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"mirnadb/internal/loader"
)

func newBuildCommand(a *app) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the store unless it already exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}

			bar := newProgress(os.Stderr, reg.Len())
			out, err := a.ensureBuilt(cmd.Context(), func(loader.ItemResult) {
				if bar != nil {
					_ = bar.Add(1)
				}
			})
			if bar != nil {
				_ = bar.Finish()
			}
			if err != nil {
				if out.Built {
					printReport(cmd.OutOrStdout(), out.Report)
				}
				return err
			}

			w := cmd.OutOrStdout()
			if !out.Built {
				fmt.Fprintf(w, "store already exists at %s; nothing to do\n", a.cfg.GateLocation())
				return nil
			}
			printReport(w, out.Report)

			if n := len(out.Report.Failures()); strict && n > 0 {
				return fmt.Errorf("%d of %d sources failed", n, len(out.Report.Items))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any source fails to load")
	return cmd
}

// newProgress returns a bar over total items when w is a terminal, else nil.
func newProgress(w *os.File, total int) *progressbar.ProgressBar {
	if !isatty.IsTerminal(w.Fd()) && !isatty.IsCygwinTerminal(w.Fd()) {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Building"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("sources"),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func printReport(w io.Writer, rep loader.Report) {
	for _, it := range rep.Items {
		if it.OK() {
			key := ""
			if it.JoinKey {
				key = ", miRNA_ID"
			}
			fmt.Fprintf(w, "ok    %s -> %s (%d rows%s)\n", it.Item, it.Table, it.Rows, key)
			continue
		}
		fmt.Fprintf(w, "FAIL  %s: %s: %v\n", it.Item, it.Kind(), it.Err)
	}
	fmt.Fprintf(w, "build %s: %s in %s\n", rep.BuildID, rep.Summary(), rep.Finished.Sub(rep.Started).Truncate(time.Millisecond))
}
