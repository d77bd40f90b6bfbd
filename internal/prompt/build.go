// Package prompt implements the textual convention between the session and
// the completion service: serializing selected files into one prompt, and
// extracting file contents back out of the model's reply.
package prompt

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/youruser/orgai/internal/session"
)

// Fence is the delimiter marking literal file content in both directions.
const Fence = "```"

var (
	ErrNoSelection = errors.New("no files selected")
	ErrEmptyPrompt = errors.New("prompt is empty")
)

const introTemplate = `Here is my request:

%s

Listed below are the project files relevant to the request. Each file is given as its name on one line followed by its content in a fenced block.

`

const modifyInstruction = "Modify the files to satisfy the request. Reply with every file you change, in exactly the format used above: the file name on its own line, then the complete new file content in a fenced block. Do not abbreviate file content."

const answerInstruction = "Answer the request using the files above as context."

// previewPrompt stands in for the request text when sizing a prompt before
// the user has written one.
const previewPrompt = "(no request text yet)"

// Build serializes the session's chosen files and prompt into the single
// text document sent to the completion service. It has no side effects and
// is deterministic for an unchanged session and unchanged files on disk.
func Build(s *session.Session) (string, error) {
	if strings.TrimSpace(s.Prompt) == "" {
		return "", ErrEmptyPrompt
	}
	return build(s, s.Prompt)
}

// BuildPreview is Build with an empty prompt allowed: a placeholder stands
// in for the request text so the token footprint of the file context can be
// sized while the user is still selecting files.
func BuildPreview(s *session.Session) (string, error) {
	promptText := s.Prompt
	if strings.TrimSpace(promptText) == "" {
		promptText = previewPrompt
	}
	return build(s, promptText)
}

func build(s *session.Session, promptText string) (string, error) {
	chosen := s.ChosenFiles()
	if len(chosen) == 0 {
		return "", ErrNoSelection
	}

	var b strings.Builder
	fmt.Fprintf(&b, introTemplate, promptText)

	for _, fs := range chosen {
		data, err := os.ReadFile(fs.FullPath)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", fs.File, err)
		}
		content := string(data)
		if fs.Region != nil {
			content = regionLines(content, fs.Region)
		}

		b.WriteString(fs.File)
		b.WriteString("\n")
		b.WriteString(Fence)
		b.WriteString("\n")
		b.WriteString(content)
		if !strings.HasSuffix(content, "\n") {
			b.WriteString("\n")
		}
		b.WriteString(Fence)
		b.WriteString("\n\n")
	}

	if s.ModifyCode {
		b.WriteString(modifyInstruction)
	} else {
		b.WriteString(answerInstruction)
	}
	b.WriteString("\n")

	return b.String(), nil
}

// regionLines extracts the region's byte range expanded to full lines: back
// from Start to the beginning of its line, forward from End through the end
// of its line. Offsets beyond the content are clamped, not rejected, since
// the file may have changed since the region was selected.
func regionLines(content string, r *session.Region) string {
	start := r.Start
	if start > len(content) {
		start = len(content)
	}
	end := r.End
	if end > len(content) {
		end = len(content)
	}

	if idx := strings.LastIndexByte(content[:start], '\n'); idx >= 0 {
		start = idx + 1
	} else {
		start = 0
	}

	if idx := strings.IndexByte(content[end:], '\n'); idx >= 0 {
		end += idx + 1
	} else {
		end = len(content)
	}

	return content[start:end]
}
