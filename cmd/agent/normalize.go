package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yourusername/paper-agent/internal/clarify"
	"github.com/yourusername/paper-agent/internal/jobs"
	"github.com/yourusername/paper-agent/internal/pdf"
	"github.com/yourusername/paper-agent/internal/prompt"
)

type normalizeOptions struct {
	sizeMB   float64
	question string
	base     string
	options  []string
}

// newNormalizeCmd はバックエンドに接続せずに、入力がどのコマンドとして送られるかを表示します。
func newNormalizeCmd(root *rootOptions) *cobra.Command {
	opts := &normalizeOptions{}
	cmd := &cobra.Command{
		Use:   "normalize <instruction...>",
		Short: "Print the command an instruction would be sent as",
		Long: `Normalize runs the same rewriting as submit without contacting the backend.

With --question the instruction is treated as a reply to that clarification
question and composed with --base.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			n := prompt.New(prompt.Options{
				FuzzyThreshold:    cfg.FuzzyThreshold,
				AutoCompressRatio: cfg.AutoCompressRatio,
				AutoCompressMinMB: cfg.AutoCompressMinMB,
			})
			out := cmd.OutOrStdout()
			raw := prompt.NormalizeWhitespace(strings.Join(args, " "))

			var composed string
			fromOption := false
			if opts.question != "" {
				res := clarify.Resolve(clarify.Context{
					Question:        opts.question,
					BaseInstruction: opts.base,
					Options:         opts.options,
				}, raw)
				composed = res.Command
				fromOption = res.FromOption
				fmt.Fprintf(out, "kind:     %s\n", res.Kind)
				fmt.Fprintf(out, "source:   %s\n", res.InputSource())
			} else {
				composed = prompt.ApplyDefaultInterpretation(raw)
			}
			if !fromOption && opts.sizeMB > 0 {
				composed, _ = n.ApplyAutoCompress(composed, opts.sizeMB)
			}
			command := n.PrepareForSend(composed)

			fmt.Fprintf(out, "command:  %s\n", command)
			if opts.sizeMB > 0 {
				fmt.Fprintf(out, "estimate: %s\n", jobs.FormatRemaining(float64(pdf.EstimateWaitTime(opts.sizeMB, raw))))
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&opts.sizeMB, "size-mb", 0, "total input size in MB (enables the automatic compression target)")
	cmd.Flags().StringVar(&opts.question, "question", "", "clarification question the instruction answers")
	cmd.Flags().StringVar(&opts.base, "base", "", "instruction that led to the question")
	cmd.Flags().StringSliceVar(&opts.options, "option", nil, "option offered with the question (repeatable)")
	return cmd
}
