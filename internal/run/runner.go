// Package run owns the lifecycle of the single in-flight completion request:
// prompt build, dispatch to the completion service, and on completion the
// parse-persist-notify sequence that turns a modify-mode reply into shadow
// files.
package run

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/youruser/orgai/internal/llm"
	"github.com/youruser/orgai/internal/logging"
	"github.com/youruser/orgai/internal/prompt"
	"github.com/youruser/orgai/internal/session"
)

var (
	ErrRequestActive = errors.New("another request is already in progress")
	ErrNoRequest     = errors.New("no active request to cancel")
	log              = logging.Get()
)

const markerLen = 60

// Completer is the completion service boundary: send one prompt, receive
// output text incrementally or atomically, plus a completion signal.
type Completer interface {
	Complete(ctx context.Context, promptText string, streaming bool, callback llm.StreamCallback) error
}

// Request is one in-flight completion run. At most one exists per Runner.
type Request struct {
	ID            string
	Session       *session.Session
	StartPosition int // offset in the result surface where model output begins

	buf    strings.Builder
	cancel context.CancelFunc
}

// Surface returns the full result surface accumulated so far, header
// included.
func (rq *Request) Surface() string {
	return rq.buf.String()
}

// output returns the model output portion of the result surface.
func (rq *Request) output() string {
	return rq.buf.String()[rq.StartPosition:]
}

// Result is delivered through Hooks.Done once per run.
type Result struct {
	Text     string     // model output, StartPosition onward
	Usage    *llm.Usage // token usage if the service reported it
	Files    []string   // originals persisted as shadow files (modify mode)
	Canceled bool
}

// Hooks connect the runner to the consuming UI. Chunk fires per content
// chunk while streaming; Done fires exactly once per run, after the request
// has been cleared.
type Hooks struct {
	Chunk func(requestID, content string)
	Done  func(requestID string, res *Result, err error)
}

// Runner coordinates runs. States: idle (req nil) → running → completing →
// idle. A second Run while one is active is rejected, never superseded.
type Runner struct {
	mu        sync.Mutex
	client    Completer
	streaming bool
	sessLock  sync.Locker
	hooks     Hooks
	req       *Request
}

// New creates a Runner. streaming selects incremental or batch delivery
// from the completion service. sessLock, if non-nil, is held while the
// completing transition mutates the session; callers that read the session
// from another goroutine pass the lock guarding those reads.
func New(client Completer, streaming bool, sessLock sync.Locker, hooks Hooks) *Runner {
	return &Runner{client: client, streaming: streaming, sessLock: sessLock, hooks: hooks}
}

// Active reports whether a request is in flight.
func (r *Runner) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.req != nil
}

// Run validates the session, builds the prompt, and launches the request.
// Validation failures (empty selection, empty prompt) are reported before
// any request starts. Returns ErrRequestActive while a run is in flight.
func (r *Runner) Run(s *session.Session) (*Request, error) {
	promptText, err := prompt.Build(s)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.req != nil {
		r.mu.Unlock()
		return nil, ErrRequestActive
	}

	ctx, cancel := context.WithCancel(context.Background())
	req := &Request{
		ID:      uuid.NewString(),
		Session: s,
		cancel:  cancel,
	}
	req.buf.WriteString(makeMarker("response", '=') + "\n")
	req.StartPosition = req.buf.Len()
	r.req = req
	r.mu.Unlock()

	log.Info("Run %s: prompt %d bytes, streaming=%v, modify=%v",
		req.ID, len(promptText), r.streaming, s.ModifyCode)

	go r.execute(ctx, req, promptText)
	return req, nil
}

// Cancel aborts the in-flight request, if any. No shadow files are
// persisted for a cancelled run.
func (r *Runner) Cancel() error {
	r.mu.Lock()
	req := r.req
	r.mu.Unlock()
	if req == nil {
		return ErrNoRequest
	}
	log.Info("Cancel %s", req.ID)
	req.cancel()
	return nil
}

// execute drives one request to completion and performs the completing
// transition: cleanup, optional parse+persist, state update, Done hook.
func (r *Runner) execute(ctx context.Context, req *Request, promptText string) {
	defer req.cancel()

	var usage *llm.Usage
	var serviceErr string

	err := r.client.Complete(ctx, promptText, r.streaming, func(event llm.StreamEvent) {
		switch event.Type {
		case "content":
			req.buf.WriteString(event.Content)
			if r.hooks.Chunk != nil {
				r.hooks.Chunk(req.ID, event.Content)
			}
		case "done":
			usage = event.Usage
		case "error":
			serviceErr = event.Error
		}
	})

	canceled := ctx.Err() != nil
	res := &Result{
		Text:     req.output(),
		Usage:    usage,
		Canceled: canceled,
	}

	if err == nil && serviceErr != "" {
		err = errors.New(serviceErr)
	}
	if canceled {
		err = nil // user abort is not a failure
	}

	if err == nil && !canceled && req.Session.ModifyCode {
		if r.sessLock != nil {
			r.sessLock.Lock()
		}
		res.Files, err = persistBlocks(req.Session, res.Text)
		if r.sessLock != nil {
			r.sessLock.Unlock()
		}
	}

	// Back to idle before the UI hears about completion, so a Done handler
	// can immediately start the next run.
	r.mu.Lock()
	r.req = nil
	r.mu.Unlock()

	if r.hooks.Done != nil {
		r.hooks.Done(req.ID, res, err)
	}
}

// persistBlocks feeds every parsed file block to the shadow manager.
// A write failure stops persistence but keeps the files already written.
func persistBlocks(s *session.Session, text string) ([]string, error) {
	blocks := prompt.Parse(text)
	var files []string
	for _, name := range blocks.Names() {
		content, _ := blocks.Get(name)
		if _, err := s.PersistShadow(name, content); err != nil {
			log.Error("Failed to persist shadow for %s: %v", name, err)
			return files, fmt.Errorf("persist %s: %w", name, err)
		}
		files = append(files, name)
	}
	if len(files) > 0 {
		s.Changed()
	}
	log.Info("Parsed %d file block(s), persisted %d shadow file(s)", blocks.Len(), len(files))
	return files, nil
}

func makeMarker(label string, ch rune) string {
	text := " " + label + " "
	if len(text) >= markerLen {
		return text[:markerLen]
	}
	pad := markerLen - len(text)
	left := pad / 2
	right := pad - left
	return strings.Repeat(string(ch), left) + text + strings.Repeat(string(ch), right)
}
