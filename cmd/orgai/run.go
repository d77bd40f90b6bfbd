package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/youruser/orgai/internal/config"
	"github.com/youruser/orgai/internal/diff"
	"github.com/youruser/orgai/internal/llm"
	"github.com/youruser/orgai/internal/prompt"
	"github.com/youruser/orgai/internal/run"
	"github.com/youruser/orgai/internal/session"
)

type runOptions struct {
	dir       string
	pattern   string
	prompt    string
	files     []string
	modify    bool
	apply     bool
	dryRun    bool
	stream    bool
	streamSet bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Send one prompt over the matched files and print the response",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.streamSet = cmd.Flags().Changed("stream")
			return runOnce(opts)
		},
	}
	cmd.Flags().StringVarP(&opts.dir, "dir", "d", ".", "project base directory")
	cmd.Flags().StringVarP(&opts.pattern, "pattern", "p", "**/*", "space-separated glob patterns to match files")
	cmd.Flags().StringVarP(&opts.prompt, "prompt", "m", "", "request text (reads stdin when omitted)")
	cmd.Flags().StringSliceVarP(&opts.files, "file", "f", nil, "choose only these matched files (default: all)")
	cmd.Flags().BoolVar(&opts.modify, "modify", false, "ask for modified files and write them as shadow files")
	cmd.Flags().BoolVar(&opts.apply, "apply", false, "with --modify, copy shadow files over the originals")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print the prompt that would be sent and exit")
	cmd.Flags().BoolVar(&opts.stream, "stream", true, "stream the response (overrides the config setting)")
	return cmd
}

func runOnce(opts *runOptions) error {
	promptText := opts.prompt
	if promptText == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read prompt from stdin: %w", err)
		}
		promptText = strings.TrimSpace(string(data))
	}

	var sessOpts []session.Option
	if idx := session.DetectGitIndex(opts.dir); idx != nil {
		sessOpts = append(sessOpts, session.WithIndex(idx))
	}
	sess, err := session.New(opts.dir, sessOpts...)
	if err != nil {
		return err
	}
	if err := sess.Search(opts.pattern); err != nil {
		return err
	}
	if err := chooseFiles(sess, opts.files); err != nil {
		return err
	}
	sess.SetPrompt(promptText)
	sess.SetModifyCode(opts.modify)

	if opts.dryRun {
		text, err := prompt.Build(sess)
		if err != nil {
			return err
		}
		fmt.Print(text)
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	client := llm.NewClient(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.MaxTokens)

	streaming := *cfg.Streaming
	if opts.streamSet {
		streaming = opts.stream
	}

	done := make(chan error, 1)
	var result *run.Result
	runner := run.New(client, streaming, nil, run.Hooks{
		Chunk: func(_, content string) {
			fmt.Print(content)
		},
		Done: func(_ string, res *run.Result, err error) {
			result = res
			done <- err
		},
	})

	if _, err := runner.Run(sess); err != nil {
		return err
	}
	if err := <-done; err != nil {
		return err
	}
	if result != nil && !strings.HasSuffix(result.Text, "\n") {
		fmt.Println()
	}

	if opts.modify && result != nil {
		return reportShadows(sess, result.Files, opts.apply)
	}
	return nil
}

// chooseFiles restricts the selection when -f flags were given. Everything
// matched starts chosen, so the restriction deselects first and then
// re-chooses only the listed files.
func chooseFiles(sess *session.Session, only []string) error {
	if len(only) == 0 {
		return nil
	}
	for _, f := range sess.Files {
		if err := sess.Choose(f.File, false); err != nil {
			return err
		}
	}
	for _, file := range only {
		if err := sess.Choose(file, true); err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
	}
	return nil
}

func reportShadows(sess *session.Session, files []string, apply bool) error {
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "No file changes in response.")
		return nil
	}
	for _, file := range files {
		original, err := sess.OriginalContent(file)
		if err != nil {
			return err
		}
		shadow, err := sess.ShadowContent(file)
		if err != nil {
			return err
		}
		stats := diff.Stat(original, shadow)
		fmt.Fprintf(os.Stderr, "%s: +%d -%d (%s)\n", file, stats.Added, stats.Removed, session.ShadowPath(file))
	}
	if !apply {
		fmt.Fprintln(os.Stderr, "Shadow files written. Re-run with --apply to overwrite the originals.")
		return nil
	}
	for _, file := range files {
		if err := sess.ApplyShadow(file); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "applied %s\n", file)
	}
	return nil
}
