package prompt

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/youruser/orgai/internal/session"
)

func buildSession(t *testing.T, files map[string]string, pattern string) *session.Session {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	s, err := session.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Search(pattern); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestBuildRequiresSelectionAndPrompt(t *testing.T) {
	s := buildSession(t, map[string]string{"a.py": "x\n"}, "*.py")

	s.SetPrompt("")
	if _, err := Build(s); !errors.Is(err, ErrEmptyPrompt) {
		t.Errorf("empty prompt error = %v, want ErrEmptyPrompt", err)
	}
	s.SetPrompt("   \n\t")
	if _, err := Build(s); !errors.Is(err, ErrEmptyPrompt) {
		t.Errorf("blank prompt error = %v, want ErrEmptyPrompt", err)
	}

	s.SetPrompt("do it")
	if err := s.Choose("a.py", false); err != nil {
		t.Fatal(err)
	}
	if _, err := Build(s); !errors.Is(err, ErrNoSelection) {
		t.Errorf("no selection error = %v, want ErrNoSelection", err)
	}
}

func TestBuildFormat(t *testing.T) {
	s := buildSession(t, map[string]string{
		"a.py": "print(1)\n",
		"b.py": "print(2)\n",
	}, "*.py")
	s.SetPrompt("Add docstrings.")
	s.SetModifyCode(true)

	got, err := Build(s)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	want := `Here is my request:

Add docstrings.

Listed below are the project files relevant to the request. Each file is given as its name on one line followed by its content in a fenced block.

a.py
` + "```" + `
print(1)
` + "```" + `

b.py
` + "```" + `
print(2)
` + "```" + `

` + modifyInstruction + "\n"

	if got != want {
		t.Errorf("Build output mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestBuildAnswerInstruction(t *testing.T) {
	s := buildSession(t, map[string]string{"a.py": "x\n"}, "*.py")
	s.SetPrompt("What does this do?")
	s.SetModifyCode(false)

	got, err := Build(s)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(got, answerInstruction+"\n") {
		t.Errorf("output does not end with answer instruction:\n%s", got)
	}
	if strings.Contains(got, modifyInstruction) {
		t.Error("modify instruction present in answer mode")
	}
}

func TestBuildDeterministic(t *testing.T) {
	s := buildSession(t, map[string]string{
		"a.py": "x\n",
		"b.py": "y\n",
	}, "*.py")
	s.SetPrompt("do it")

	first, err := Build(s)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := Build(s)
		if err != nil {
			t.Fatal(err)
		}
		if again != first {
			t.Fatalf("Build output changed on iteration %d", i)
		}
	}
}

func TestBuildAddsMissingTrailingNewline(t *testing.T) {
	s := buildSession(t, map[string]string{"a.py": "no newline"}, "*.py")
	s.SetPrompt("do it")

	got, err := Build(s)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "no newline\n"+Fence) {
		t.Errorf("closing fence not on its own line:\n%s", got)
	}
}

func TestBuildSkipsUnchosenFiles(t *testing.T) {
	s := buildSession(t, map[string]string{
		"a.py": "keep\n",
		"b.py": "skip\n",
	}, "*.py")
	s.SetPrompt("do it")
	if err := s.Choose("b.py", false); err != nil {
		t.Fatal(err)
	}

	got, err := Build(s)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(got, "skip") {
		t.Error("unchosen file content leaked into prompt")
	}
}

func TestBuildRegionExpandsToFullLines(t *testing.T) {
	s := buildSession(t, map[string]string{"a.py": "alpha\nbeta\ngamma\n"}, "*.py")
	s.SetPrompt("do it")
	// Offsets land mid-"beta"; extraction covers the whole line.
	if err := s.SetRegion("a.py", 7, 8); err != nil {
		t.Fatal(err)
	}

	got, err := Build(s)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "a.py\n"+Fence+"\nbeta\n"+Fence) {
		t.Errorf("region not expanded to full line:\n%s", got)
	}
	if strings.Contains(got, "alpha") || strings.Contains(got, "gamma") {
		t.Errorf("content outside region leaked:\n%s", got)
	}
}

func TestRegionLines(t *testing.T) {
	content := "one\ntwo\nthree\nfour"

	tests := []struct {
		name  string
		start int
		end   int
		want  string
	}{
		{"whole first line", 0, 3, "one\n"},
		{"mid line expands both ways", 5, 6, "two\n"},
		{"spanning lines", 5, 9, "two\nthree\n"},
		{"last line without newline", 15, 17, "four"},
		{"offsets past end clamp", 100, 200, "four"},
		{"empty region inside line", 4, 4, "two\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := regionLines(content, &session.Region{Start: tt.start, End: tt.end})
			if got != tt.want {
				t.Errorf("regionLines(%d, %d) = %q, want %q", tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestBuildMissingFileFails(t *testing.T) {
	s := buildSession(t, map[string]string{"a.py": "x\n"}, "*.py")
	s.SetPrompt("do it")
	if err := os.Remove(filepath.Join(s.BaseDir, "a.py")); err != nil {
		t.Fatal(err)
	}

	if _, err := Build(s); err == nil {
		t.Error("expected error for vanished file")
	}
}

func TestBuildPreviewAllowsEmptyPrompt(t *testing.T) {
	s := buildSession(t, map[string]string{"a.py": "print(1)\n"}, "*.py")

	text, err := BuildPreview(s)
	if err != nil {
		t.Fatalf("BuildPreview failed: %v", err)
	}
	if !strings.Contains(text, previewPrompt) {
		t.Errorf("preview text does not contain the placeholder:\n%s", text)
	}
	if !strings.Contains(text, "a.py\n"+Fence+"\nprint(1)\n"+Fence) {
		t.Errorf("preview text missing the file block:\n%s", text)
	}

	s.SetPrompt("do it")
	text, err = BuildPreview(s)
	if err != nil {
		t.Fatalf("BuildPreview failed: %v", err)
	}
	if strings.Contains(text, previewPrompt) {
		t.Errorf("placeholder used despite a real prompt:\n%s", text)
	}

	if err := s.Choose("a.py", false); err != nil {
		t.Fatal(err)
	}
	if _, err := BuildPreview(s); !errors.Is(err, ErrNoSelection) {
		t.Errorf("no selection error = %v, want ErrNoSelection", err)
	}
}
