package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/youruser/orgai/internal/config"
	"github.com/youruser/orgai/internal/diff"
	"github.com/youruser/orgai/internal/llm"
	"github.com/youruser/orgai/internal/prompt"
	"github.com/youruser/orgai/internal/run"
	"github.com/youruser/orgai/internal/session"
)

// server speaks the line-delimited JSON protocol on stdin/stdout. One
// request per line in, one or more responses per line out; unsolicited
// "state" pushes follow every session change.
type server struct {
	out io.Writer

	respondMu sync.Mutex
	configMu  sync.Mutex
	stateMu   sync.Mutex

	cfg    *config.Config
	runner *run.Runner
	sess   *session.Session

	watchCancel context.CancelFunc
	watchWG     sync.WaitGroup
	quit        bool
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the stdin/stdout JSON protocol for editor frontends",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(os.Stdin, os.Stdout)
		},
	}
}

func serve(in io.Reader, out io.Writer) error {
	srv := &server{out: out}
	defer func() {
		srv.stopWatch()
		srv.watchWG.Wait()
	}()

	if os.Getenv("ORGAI_DEBUG") == "1" {
		fmt.Fprintf(os.Stderr, "orgai: process started with ORGAI_DEBUG=1\n")
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		srv.handleRequest(scanner.Text())
		if srv.quit {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			srv.respond("", map[string]any{
				"type":    "error",
				"message": "Request too large (max 1MB). Reduce context size or split the request.",
			})
			return err
		}
		return fmt.Errorf("stdin: %w", err)
	}
	return nil
}

// actionBlockedDuringRun lists the actions refused while a completion
// request is in flight. Read-only actions and cancel stay available.
func actionBlockedDuringRun(action string) bool {
	switch action {
	case "ping", "version", "state", "estimate", "diff", "cancel", "shutdown":
		return false
	}
	return true
}

func (s *server) handleRequest(line string) {
	var req map[string]any
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		log.Error("Invalid JSON request: %s", line)
		s.respond("", map[string]any{"type": "error", "message": "Invalid JSON"})
		return
	}

	action, _ := req["action"].(string)
	log.Request(action, line)
	reqID := requestID(req)

	if s.runner != nil && s.runner.Active() && actionBlockedDuringRun(action) {
		s.respond(reqID, map[string]any{"type": "error", "message": "Another request is already in progress"})
		return
	}

	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	switch action {
	case "ping":
		s.respond(reqID, map[string]any{"type": "ok"})

	case "version":
		s.respond(reqID, map[string]any{"type": "version", "version": versionString()})

	case "init":
		baseDir, _ := req["base_dir"].(string)
		if baseDir == "" {
			s.respond(reqID, map[string]any{"type": "error", "message": "Missing required field: base_dir"})
			return
		}
		if err := s.initSession(baseDir); err != nil {
			s.respond(reqID, errorResponse(err))
			return
		}
		if watch, _ := req["watch"].(bool); watch {
			s.startWatch()
		}
		s.respond(reqID, map[string]any{"type": "ok"})

	case "search":
		if s.sess == nil {
			s.respond(reqID, errorResponse(errNotInitialized))
			return
		}
		pattern, _ := req["pattern"].(string)
		if err := s.sess.Search(pattern); err != nil {
			s.respond(reqID, errorResponse(err))
			return
		}
		s.respond(reqID, s.statePayload())

	case "select":
		if s.sess == nil {
			s.respond(reqID, errorResponse(errNotInitialized))
			return
		}
		file, _ := req["file"].(string)
		if file == "" {
			s.respond(reqID, map[string]any{"type": "error", "message": "Missing required field: file"})
			return
		}
		chosen, _ := req["chosen"].(bool)
		if err := s.sess.Choose(file, chosen); err != nil {
			s.respond(reqID, errorResponse(err))
			return
		}
		s.respond(reqID, map[string]any{"type": "ok"})

	case "set_region":
		if s.sess == nil {
			s.respond(reqID, errorResponse(errNotInitialized))
			return
		}
		file, _ := req["file"].(string)
		start, startOK := req["start"].(float64)
		end, endOK := req["end"].(float64)
		if file == "" || !startOK || !endOK {
			s.respond(reqID, map[string]any{"type": "error", "message": "Missing required fields: file, start, end"})
			return
		}
		if err := s.sess.SetRegion(file, int(start), int(end)); err != nil {
			s.respond(reqID, errorResponse(err))
			return
		}
		s.respond(reqID, map[string]any{"type": "ok"})

	case "clear_region":
		if s.sess == nil {
			s.respond(reqID, errorResponse(errNotInitialized))
			return
		}
		file, _ := req["file"].(string)
		if file == "" {
			s.respond(reqID, map[string]any{"type": "error", "message": "Missing required field: file"})
			return
		}
		if err := s.sess.ClearRegion(file); err != nil {
			s.respond(reqID, errorResponse(err))
			return
		}
		s.respond(reqID, map[string]any{"type": "ok"})

	case "set_prompt":
		if s.sess == nil {
			s.respond(reqID, errorResponse(errNotInitialized))
			return
		}
		text, _ := req["prompt"].(string)
		s.sess.SetPrompt(text)
		s.respond(reqID, map[string]any{"type": "ok"})

	case "set_modify":
		if s.sess == nil {
			s.respond(reqID, errorResponse(errNotInitialized))
			return
		}
		modify, _ := req["modify"].(bool)
		s.sess.SetModifyCode(modify)
		s.respond(reqID, map[string]any{"type": "ok"})

	case "state":
		if s.sess == nil {
			s.respond(reqID, errorResponse(errNotInitialized))
			return
		}
		s.respond(reqID, s.statePayload())

	case "estimate":
		if s.sess == nil {
			s.respond(reqID, errorResponse(errNotInitialized))
			return
		}
		promptText, err := prompt.BuildPreview(s.sess)
		if err != nil {
			s.respond(reqID, errorResponse(err))
			return
		}
		tokens, err := llm.EstimateTokens(promptText)
		if err != nil {
			tokens = llm.EstimateTokensSimple(promptText)
		}
		perFile := make([]map[string]any, 0, len(s.sess.ChosenFiles()))
		for _, f := range s.sess.ChosenFiles() {
			if data, err := os.ReadFile(f.FullPath); err == nil {
				perFile = append(perFile, map[string]any{
					"file":   f.File,
					"tokens": llm.EstimateTokensSimple(string(data)),
				})
			}
		}
		s.respond(reqID, map[string]any{
			"type":   "estimate",
			"tokens": tokens,
			"bytes":  len(promptText),
			"files":  perFile,
		})

	case "run":
		if s.sess == nil {
			s.respond(reqID, errorResponse(errNotInitialized))
			return
		}
		if err := s.ensureConfig(); err != nil {
			s.respond(reqID, errorResponse(err))
			return
		}
		started, err := s.runner.Run(s.sess)
		if err != nil {
			s.respond(reqID, errorResponse(err))
			return
		}
		s.respond(reqID, map[string]any{"type": "run_started", "request_id": started.ID})

	case "cancel":
		if s.runner == nil {
			s.respond(reqID, errorResponse(run.ErrNoRequest))
			return
		}
		if err := s.runner.Cancel(); err != nil {
			s.respond(reqID, errorResponse(err))
			return
		}
		s.respond(reqID, map[string]any{"type": "ok"})

	case "diff":
		if s.sess == nil {
			s.respond(reqID, errorResponse(errNotInitialized))
			return
		}
		file, _ := req["file"].(string)
		if file == "" {
			s.respond(reqID, map[string]any{"type": "error", "message": "Missing required field: file"})
			return
		}
		shadow, err := s.sess.ShadowContent(file)
		if err != nil {
			s.respond(reqID, errorResponse(err))
			return
		}
		original, err := s.sess.OriginalContent(file)
		if err != nil {
			s.respond(reqID, errorResponse(err))
			return
		}
		stats := diff.Stat(original, shadow)
		s.respond(reqID, map[string]any{
			"type":    "diff",
			"file":    file,
			"diff":    diff.Unified(original, shadow),
			"added":   stats.Added,
			"removed": stats.Removed,
		})

	case "apply":
		if s.sess == nil {
			s.respond(reqID, errorResponse(errNotInitialized))
			return
		}
		file, _ := req["file"].(string)
		applied, err := s.applyShadows(file)
		if err != nil {
			s.respond(reqID, errorResponse(err))
			return
		}
		s.respond(reqID, map[string]any{"type": "ok", "applied": applied})

	case "reject":
		if s.sess == nil {
			s.respond(reqID, errorResponse(errNotInitialized))
			return
		}
		file, _ := req["file"].(string)
		var err error
		if file == "" {
			_, err = s.sess.RemoveAllShadows()
		} else {
			_, err = s.sess.RemoveShadow(file)
		}
		if err != nil {
			s.respond(reqID, errorResponse(err))
			return
		}
		s.respond(reqID, map[string]any{"type": "ok"})

	case "reset":
		if s.sess == nil {
			s.respond(reqID, errorResponse(errNotInitialized))
			return
		}
		if _, err := s.sess.RemoveAllShadows(); err != nil {
			s.respond(reqID, errorResponse(err))
			return
		}
		s.sess.SetPrompt("")
		s.sess.SetModifyCode(false)
		if err := s.sess.Search(""); err != nil {
			s.respond(reqID, errorResponse(err))
			return
		}
		s.respond(reqID, map[string]any{"type": "ok"})

	case "shutdown":
		s.respond(reqID, map[string]any{"type": "ok"})
		s.quit = true

	default:
		s.respond(reqID, map[string]any{"type": "error", "message": "Unknown action: " + action})
	}
}

var errNotInitialized = errors.New("not initialized")

func (s *server) initSession(baseDir string) error {
	s.stopWatch()
	opts := []session.Option{
		session.WithNotifier(func(*session.Session) { s.pushState() }),
	}
	if idx := session.DetectGitIndex(baseDir); idx != nil {
		opts = append(opts, session.WithIndex(idx))
	}
	sess, err := session.New(baseDir, opts...)
	if err != nil {
		return err
	}
	s.sess = sess
	return nil
}

// ensureConfig loads config lazily on first use and wires the runner.
func (s *server) ensureConfig() error {
	s.configMu.Lock()
	defer s.configMu.Unlock()

	if s.cfg != nil {
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	s.cfg = cfg
	client := llm.NewClient(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.MaxTokens)
	s.runner = run.New(client, *cfg.Streaming, &s.stateMu, run.Hooks{
		Chunk: func(requestID, content string) {
			s.respond("", map[string]any{"type": "chunk", "request_id": requestID, "content": content})
		},
		Done: func(requestID string, res *run.Result, err error) {
			if err != nil {
				s.respond("", map[string]any{"type": "error", "request_id": requestID, "message": err.Error()})
				return
			}
			resp := map[string]any{"type": "done", "request_id": requestID, "canceled": res.Canceled}
			if len(res.Files) > 0 {
				resp["files"] = res.Files
			}
			if res.Usage != nil {
				resp["usage"] = map[string]any{
					"prompt_tokens":     res.Usage.PromptTokens,
					"completion_tokens": res.Usage.CompletionTokens,
				}
			}
			s.respond("", resp)
		},
	})
	return nil
}

// applyShadows copies shadow content over the originals. An empty file
// argument applies every pending shadow file.
func (s *server) applyShadows(file string) ([]string, error) {
	if file != "" {
		if err := s.sess.ApplyShadow(file); err != nil {
			return nil, err
		}
		return []string{file}, nil
	}
	files := make([]string, 0, len(s.sess.ShadowFiles))
	for original := range s.sess.ShadowFiles {
		files = append(files, original)
	}
	var applied []string
	for _, original := range files {
		if err := s.sess.ApplyShadow(original); err != nil {
			return applied, err
		}
		applied = append(applied, original)
	}
	return applied, nil
}

func (s *server) startWatch() {
	ctx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel
	sess := s.sess
	s.watchWG.Add(1)
	go func() {
		defer s.watchWG.Done()
		err := session.Watch(ctx, sess, &s.stateMu, func(searchErr error) {
			if searchErr != nil {
				log.Error("Watch re-search failed: %v", searchErr)
				return
			}
			s.pushState()
		})
		if err != nil && ctx.Err() == nil {
			log.Error("Watcher stopped: %v", err)
		}
	}()
}

// stopWatch cancels the watcher without waiting for it. The init path calls
// it under stateMu and the watcher blocks on the same lock, so the wait
// happens in serve once the request loop exits.
func (s *server) stopWatch() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
}

func (s *server) statePayload() map[string]any {
	files := make([]map[string]any, 0, len(s.sess.Files))
	for _, f := range s.sess.Files {
		entry := map[string]any{"file": f.File, "chosen": f.Chosen}
		if f.Region != nil {
			entry["region"] = map[string]any{"start": f.Region.Start, "end": f.Region.End}
		}
		if s.sess.HasShadow(f.File) {
			entry["shadow"] = session.ShadowPath(f.File)
		}
		files = append(files, entry)
	}
	active := s.runner != nil && s.runner.Active()
	return map[string]any{
		"type":           "state",
		"base_dir":       s.sess.BaseDir,
		"pattern":        s.sess.SearchPattern,
		"prompt":         s.sess.Prompt,
		"modify_code":    s.sess.ModifyCode,
		"files":          files,
		"shadow_count":   len(s.sess.ShadowFiles),
		"request_active": active,
	}
}

func (s *server) pushState() {
	if s.sess == nil {
		return
	}
	s.respond("", s.statePayload())
}

func errorResponse(err error) map[string]any {
	var msg string
	switch {
	case errors.Is(err, errNotInitialized):
		msg = "Not initialized. Send init with base_dir first."
	case errors.Is(err, session.ErrNotDirectory):
		msg = "Base directory does not exist or is not a directory"
	case errors.Is(err, session.ErrFileNotFound):
		msg = "File is not part of the current selection"
	case errors.Is(err, session.ErrBadRegion):
		msg = "Invalid region bounds"
	case errors.Is(err, session.ErrPathEscape):
		msg = "Path escapes the base directory"
	case errors.Is(err, run.ErrRequestActive):
		msg = "Another request is already in progress"
	case errors.Is(err, run.ErrNoRequest):
		msg = "No active request"
	case errors.Is(err, prompt.ErrNoSelection):
		msg = "No files chosen. Select at least one file."
	case errors.Is(err, prompt.ErrEmptyPrompt):
		msg = "Prompt is empty"
	case errors.Is(err, config.ErrNoConfig):
		msg = "Config file not found: ~/.config/orgai/config.json"
	case errors.Is(err, config.ErrNoAPIKey):
		msg = "API key not set in config"
	default:
		msg = err.Error()
	}
	return map[string]any{"type": "error", "message": msg}
}

func (s *server) respond(reqID string, data map[string]any) {
	out, _ := json.Marshal(addResponseID(reqID, data))
	msgType, _ := data["type"].(string)
	s.respondMu.Lock()
	defer s.respondMu.Unlock()
	log.Response(msgType, string(out))
	fmt.Fprintln(s.out, string(out))
}

func addResponseID(reqID string, data map[string]any) map[string]any {
	if reqID == "" {
		return data
	}
	data["request_id"] = reqID
	return data
}

func requestID(req map[string]any) string {
	switch v := req["request_id"].(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	default:
		return ""
	}
}
