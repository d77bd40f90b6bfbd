package session

import (
	"os"
	"path/filepath"

	"github.com/youruser/orgai/internal/logging"
)

var log = logging.Get()

// Option configures a new Session.
type Option func(*Session)

// WithIndex filters discovery to files known to the given project index.
func WithIndex(index ProjectIndex) Option {
	return func(s *Session) { s.index = index }
}

// WithNotifier registers the render trigger fired on every state change.
func WithNotifier(fn Notifier) Option {
	return func(s *Session) { s.notify = fn }
}

// New creates a Session rooted at baseDir. The directory must exist; the
// resolved absolute path is fixed for the session's lifetime.
func New(baseDir string, opts ...Option) (*Session, error) {
	info, err := os.Stat(baseDir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, ErrNotDirectory
	}

	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, err
	}

	s := &Session{BaseDir: abs}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Search replaces the file list wholesale from a fresh pattern expansion.
// The shadow mapping is rebuilt from what is actually on disk, so stale
// shadow files from earlier rounds keep showing up until removed.
func (s *Session) Search(pattern string) error {
	files, shadows, err := Match(s.BaseDir, pattern, s.index)
	if err != nil {
		return err
	}

	s.SearchPattern = pattern
	s.Files = files
	if len(shadows) == 0 {
		s.ShadowFiles = nil
	} else {
		s.ShadowFiles = shadows
	}
	log.Debug("Search %q: %d files, %d shadow files", pattern, len(files), len(shadows))
	s.Changed()
	return nil
}

// Find returns the FileSelection for a base-dir-relative path, or nil.
func (s *Session) Find(file string) *FileSelection {
	for _, fs := range s.Files {
		if fs.File == file {
			return fs
		}
	}
	return nil
}

// Choose sets the chosen flag for a discovered file.
func (s *Session) Choose(file string, chosen bool) error {
	fs := s.Find(file)
	if fs == nil {
		return ErrFileNotFound
	}
	fs.Chosen = chosen
	s.Changed()
	return nil
}

// SetRegion narrows a discovered file to a byte-offset sub-range.
func (s *Session) SetRegion(file string, start, end int) error {
	if start < 0 || end < start {
		return ErrBadRegion
	}
	fs := s.Find(file)
	if fs == nil {
		return ErrFileNotFound
	}
	fs.Region = &Region{Start: start, End: end}
	s.Changed()
	return nil
}

// ClearRegion restores a file selection to whole-file extraction.
func (s *Session) ClearRegion(file string) error {
	fs := s.Find(file)
	if fs == nil {
		return ErrFileNotFound
	}
	fs.Region = nil
	s.Changed()
	return nil
}

// SetPrompt records the user's free-text request.
func (s *Session) SetPrompt(prompt string) {
	s.Prompt = prompt
	s.Changed()
}

// SetModifyCode selects between the modify and plain-answer trailing
// instruction of the built prompt.
func (s *Session) SetModifyCode(modify bool) {
	s.ModifyCode = modify
	s.Changed()
}

// ChosenFiles returns the chosen selections in discovery order.
func (s *Session) ChosenFiles() []*FileSelection {
	var chosen []*FileSelection
	for _, fs := range s.Files {
		if fs.Chosen {
			chosen = append(chosen, fs)
		}
	}
	return chosen
}

// HasShadow reports whether a completed modification round left a shadow
// file for the given original path.
func (s *Session) HasShadow(file string) bool {
	_, ok := s.ShadowFiles[file]
	return ok
}

// Changed fires the registered notifier, if any.
func (s *Session) Changed() {
	if s.notify != nil {
		s.notify(s)
	}
}
