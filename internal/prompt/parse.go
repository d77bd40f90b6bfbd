package prompt

import "strings"

// FileBlocks is the ordered file-name → content mapping extracted from a
// model response. Order is first appearance; a repeated name keeps its
// position but the later content wins.
type FileBlocks struct {
	order   []string
	content map[string]string
}

// Len returns the number of extracted files.
func (fb *FileBlocks) Len() int {
	return len(fb.order)
}

// Names returns the extracted file names in first-appearance order.
func (fb *FileBlocks) Names() []string {
	return fb.order
}

// Get returns the content for a file name.
func (fb *FileBlocks) Get(name string) (string, bool) {
	c, ok := fb.content[name]
	return c, ok
}

func (fb *FileBlocks) put(name, content string) {
	if _, ok := fb.content[name]; !ok {
		fb.order = append(fb.order, name)
	}
	fb.content[name] = content
}

// isFence reports whether a line opens or closes a fenced block. The
// delimiter counts only at column 0; indented fences are ordinary content.
func isFence(line string) bool {
	return strings.HasPrefix(line, Fence)
}

// Parse scans response text for the repeated <file-name>\n<fenced-block>
// convention and extracts the file contents. Parsing is purely textual: a
// block ends at the next column-0 fence, with no awareness of nested code.
// Malformed segments (a fence with no name line above it, or a block cut off
// by truncated output) are skipped; Parse never fails.
func Parse(text string) *FileBlocks {
	fb := &FileBlocks{content: make(map[string]string)}
	lines := strings.Split(text, "\n")

	var lastNonBlank string
	haveName := false

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if !isFence(line) {
			if strings.TrimSpace(line) != "" {
				lastNonBlank = strings.TrimSpace(line)
				haveName = true
			}
			continue
		}

		// Opening fence. Collect content up to the closing fence; if the
		// response was truncated mid-block there is nothing reliable to keep.
		var content []string
		closed := false
		j := i + 1
		for ; j < len(lines); j++ {
			if isFence(lines[j]) {
				closed = true
				break
			}
			content = append(content, lines[j])
		}

		if closed && haveName {
			fb.put(lastNonBlank, joinBlock(content))
		}

		// The closing fence is consumed; it is not a name for the next block.
		haveName = false
		lastNonBlank = ""
		i = j
	}

	return fb
}

// joinBlock reassembles block lines into file content. A non-empty block
// always ends in a newline: the closing fence sat on its own line.
func joinBlock(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
