package session

import "errors"

// Sentinel errors for expected conditions.
var (
	ErrNotDirectory = errors.New("base dir must be a directory")
	ErrFileNotFound = errors.New("file not found in session")
	ErrBadRegion    = errors.New("region offsets must satisfy 0 <= start <= end")
)

// Region delimits a sub-range of a file by byte offsets, [Start, End).
// The prompt builder expands it to full lines; offsets are best-effort and
// not re-validated against the file after selection.
type Region struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// FileSelection is one discovered file with its selection bookkeeping.
type FileSelection struct {
	File     string  `json:"file"`      // path relative to the session base dir
	FullPath string  `json:"full_path"` // resolved absolute path
	Region   *Region `json:"region,omitempty"`
	Chosen   bool    `json:"chosen"`
}

// Notifier is invoked after every session state change so the consuming UI
// can re-render. The session never renders anything itself.
type Notifier func(*Session)

// Session aggregates the state of one prompt-and-edit workflow.
type Session struct {
	BaseDir       string            `json:"base_dir"` // absolute; immutable for the session's lifetime
	SearchPattern string            `json:"search_pattern"`
	Files         []*FileSelection  `json:"files"`
	ShadowFiles   map[string]string `json:"shadow_files,omitempty"` // original path -> shadow path, both base-dir relative
	ModifyCode    bool              `json:"modify_code"`
	Prompt        string            `json:"prompt"`

	index  ProjectIndex
	notify Notifier
}
