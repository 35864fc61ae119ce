package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yourusername/paper-agent/internal/jobs"
	"github.com/yourusername/paper-agent/internal/pdf"
)

func newResumeCmd(root *rootOptions) *cobra.Command {
	opts := &submitOptions{}
	cmd := &cobra.Command{
		Use:   "resume [files...]",
		Short: "Resume the job left running by a previous session",
		Long: `Resume checks the saved checkpoint and follows the job it names until it
finishes. Checkpoints older than CHECKPOINT_TTL are discarded.

If the job ends with a question, pass the original files to answer it in the
same session.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setupAgent(root.cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, stop := a.watchInterrupt(cmd.Context())
			defer stop()

			out := cmd.OutOrStdout()
			outcome, ok, err := a.manager.Resume(ctx)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, "No pending job.")
				return nil
			}
			a.handleOutcome(ctx, out, outcome, opts)
			if outcome.State != jobs.StateAwaitingClarification {
				return outcomeError(outcome)
			}
			if len(args) == 0 {
				fmt.Fprintln(out, "Run `paper-agent submit <files>` to answer the question.")
				return nil
			}

			sel := pdf.NewSelection(root.cfg.MaxFiles)
			res, err := sel.Add(args...)
			if err != nil {
				return err
			}
			reportSelection(out, sel, res)
			return a.converse(ctx, cmd.InOrStdin(), out, sel, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", ".", "directory for downloaded results")
	cmd.Flags().BoolVar(&opts.noDownload, "no-download", false, "do not download results")
	return cmd
}
