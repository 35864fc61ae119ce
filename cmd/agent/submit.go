package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yourusername/paper-agent/internal/jobs"
	"github.com/yourusername/paper-agent/internal/pdf"
)

type submitOptions struct {
	prompt     string
	outDir     string
	noDownload bool
}

func newSubmitCmd(root *rootOptions) *cobra.Command {
	opts := &submitOptions{}
	cmd := &cobra.Command{
		Use:   "submit [files...]",
		Short: "Upload files and run an instruction",
		Long: `Submit uploads the given files and sends an instruction to the backend.

With --prompt the instruction is sent once; if the backend asks a question the
command waits for an answer on stdin. Without --prompt an interactive session
starts and every line is sent as a new instruction for the same files. Files
are uploaded only once per session while the selection stays the same.

Press Ctrl+C to cancel the running job, and again to quit.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd, root, opts, args)
		},
	}
	cmd.Flags().StringVarP(&opts.prompt, "prompt", "p", "", "instruction to send (interactive when omitted)")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", ".", "directory for downloaded results")
	cmd.Flags().BoolVar(&opts.noDownload, "no-download", false, "do not download results")
	return cmd
}

func runSubmit(cmd *cobra.Command, root *rootOptions, opts *submitOptions, paths []string) error {
	a, err := setupAgent(root.cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, stop := a.watchInterrupt(cmd.Context())
	defer stop()

	a.probeBackend(ctx)

	out := cmd.OutOrStdout()
	sel := pdf.NewSelection(root.cfg.MaxFiles)
	res, err := sel.Add(paths...)
	if err != nil {
		return err
	}
	reportSelection(out, sel, res)
	a.manager.SelectionChanged(sel.Refs())

	// 前回の実行で終わらなかったジョブがあれば先に片付ける
	if outcome, ok, err := a.manager.Resume(ctx); err != nil {
		return err
	} else if ok {
		a.handleOutcome(ctx, out, outcome, opts)
	}

	if opts.prompt != "" {
		outcome, err := a.manager.Submit(ctx, opts.prompt, sel.Files())
		if err != nil {
			return err
		}
		a.handleOutcome(ctx, out, outcome, opts)
		if outcome.State != jobs.StateAwaitingClarification {
			return outcomeError(outcome)
		}
	}
	return a.converse(ctx, cmd.InOrStdin(), out, sel, opts)
}

// converse は標準入力の各行を指示として送ります。
// 確認質問に選択肢がある場合は番号でも答えられます。
func (a *agent) converse(ctx context.Context, in io.Reader, out io.Writer, sel *pdf.Selection, opts *submitOptions) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(out, "> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
			line = l
		}

		text := strings.TrimSpace(line)
		switch strings.ToLower(text) {
		case "":
			continue
		case "quit", "exit":
			return nil
		}
		if strings.HasPrefix(text, "/") {
			a.selectionCommand(out, sel, text)
			continue
		}
		if a.manager.PendingClarification() != nil {
			text = resolveOptionInput(text, a.log.LastOptions())
		}

		outcome, err := a.manager.Submit(ctx, text, sel.Files())
		switch {
		case errors.Is(err, jobs.ErrEmptyInstruction), errors.Is(err, jobs.ErrNoFiles), errors.Is(err, jobs.ErrBusy):
			fmt.Fprintln(out, err)
			continue
		case err != nil:
			return err
		}
		a.handleOutcome(ctx, out, outcome, opts)
	}
}

// selectionCommand は対話中のファイル選択の変更を扱います。
//
//	/files          選択中のファイルを表示
//	/add <path...>  ファイルを追加
//	/remove <name>  ファイルを外す
//	/clear          選択を空にする
func (a *agent) selectionCommand(out io.Writer, sel *pdf.Selection, text string) {
	fields := strings.Fields(text)
	switch fields[0] {
	case "/files":
	case "/add":
		res, err := sel.Add(fields[1:]...)
		if err != nil {
			fmt.Fprintf(out, "  %v\n", err)
			return
		}
		if res.Added == 0 && res.Duplicates == 0 && res.Dropped == 0 {
			fmt.Fprintln(out, "  usage: /add <path...>")
			return
		}
	case "/remove":
		if len(fields) < 2 || !sel.Remove(fields[1]) {
			fmt.Fprintln(out, "  usage: /remove <file name>")
			return
		}
	case "/clear":
		sel.Clear()
	default:
		fmt.Fprintln(out, "  commands: /files, /add <path...>, /remove <name>, /clear, quit")
		return
	}
	a.manager.SelectionChanged(sel.Refs())
	reportSelection(out, sel, pdf.AddResult{})
}

// handleOutcome は成功したジョブの成果物をダウンロードします。
func (a *agent) handleOutcome(ctx context.Context, out io.Writer, outcome jobs.Outcome, opts *submitOptions) {
	ref := outcome.DownloadRef()
	if ref == "" || opts.noDownload {
		return
	}
	path, err := a.client.Download(ctx, ref, opts.outDir)
	if err != nil {
		a.logger.Error().Err(err).Str("ref", ref).Msg("download failed")
		fmt.Fprintf(out, "  download failed: %v\n", err)
		return
	}
	kind, err := pdf.DetectKind(path)
	if err != nil {
		a.logger.Debug().Err(err).Str("path", path).Msg("could not detect result kind")
	}
	if expected := pdf.KindForFilename(path); kind != expected {
		a.logger.Warn().Str("path", path).Str("detected", string(kind)).Str("expected", string(expected)).Msg("result content does not match its extension")
	}
	fmt.Fprintf(out, "  %s: saved %s\n", outcome.DownloadLabel, path)
}

func reportSelection(out io.Writer, sel *pdf.Selection, res pdf.AddResult) {
	fmt.Fprintf(out, "Selected %d file(s), %.1f MB (%s)\n", sel.Len(), sel.TotalMB(), sel.Category())
	if res.Duplicates > 0 {
		fmt.Fprintf(out, "  skipped %d duplicate file(s)\n", res.Duplicates)
	}
	if res.Dropped > 0 {
		fmt.Fprintf(out, "  dropped %d file(s) over the limit\n", res.Dropped)
	}
	for _, meta := range pdf.InspectSelection(sel) {
		if meta.Pages > 0 {
			fmt.Fprintf(out, "  %s (%d pages)\n", meta.Name, meta.Pages)
		} else {
			fmt.Fprintf(out, "  %s\n", meta.Name)
		}
	}
	for _, w := range sel.Warnings() {
		fmt.Fprintf(out, "  warning: %s\n", w.Message)
	}
}

// outcomeError は一回きりの実行の終了コードに使うエラーを返します。
func outcomeError(outcome jobs.Outcome) error {
	switch outcome.State {
	case jobs.StateFailed:
		return fmt.Errorf("job failed: %s", outcome.Message)
	case jobs.StateCancelled:
		return errors.New("job cancelled")
	}
	return nil
}
