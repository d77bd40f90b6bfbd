// Package diff renders shadow-vs-original differences for display. The
// actual diff algorithm is go-diff; nothing here inspects file semantics.
package diff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	redColor   = "\x1b[31m"
	greenColor = "\x1b[32m"
	resetColor = "\x1b[0m"
)

// Stats summarizes a line-granular diff.
type Stats struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// Unified returns original→modified as patch text, suitable for the editor's
// diff surface.
func Unified(original, modified string) string {
	dmp := diffmatchpatch.New()
	patches := dmp.PatchMake(original, modified)
	return dmp.PatchToText(patches)
}

// lineDiffs computes a line-granular diff.
func lineDiffs(original, modified string) []diffmatchpatch.Diff {
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(original, modified)
	diffs := dmp.DiffMain(a, b, false)
	return dmp.DiffCharsToLines(diffs, lineArray)
}

// Pretty returns a colored +/- line diff for terminal output.
func Pretty(original, modified string) string {
	var b strings.Builder
	for _, d := range lineDiffs(original, modified) {
		for _, line := range splitDiffLines(d.Text) {
			switch d.Type {
			case diffmatchpatch.DiffInsert:
				b.WriteString(greenColor + "+" + line + resetColor + "\n")
			case diffmatchpatch.DiffDelete:
				b.WriteString(redColor + "-" + line + resetColor + "\n")
			default:
				b.WriteString(" " + line + "\n")
			}
		}
	}
	return b.String()
}

// Stat counts added and removed lines between two versions.
func Stat(original, modified string) Stats {
	var st Stats
	for _, d := range lineDiffs(original, modified) {
		n := len(splitDiffLines(d.Text))
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			st.Added += n
		case diffmatchpatch.DiffDelete:
			st.Removed += n
		}
	}
	return st
}

func splitDiffLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
