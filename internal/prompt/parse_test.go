package prompt

import (
	"reflect"
	"sort"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestParseSingleBlock(t *testing.T) {
	fb := Parse("a.py\n```\nprint(1)\n```\n\n")

	if fb.Len() != 1 {
		t.Fatalf("Len = %d, want 1", fb.Len())
	}
	got, ok := fb.Get("a.py")
	if !ok || got != "print(1)\n" {
		t.Errorf("Get(a.py) = %q, %v", got, ok)
	}
}

func TestParseProseAroundBlocks(t *testing.T) {
	text := `I changed both files as requested.

a.py
` + "```" + `
print("one")
` + "```" + `

And the second one:

sub/b.py
` + "```" + `
print("two")
` + "```" + `

That should cover it.
`
	fb := Parse(text)

	if got := fb.Names(); !reflect.DeepEqual(got, []string{"a.py", "sub/b.py"}) {
		t.Fatalf("Names = %v", got)
	}
	if got, _ := fb.Get("a.py"); got != "print(\"one\")\n" {
		t.Errorf("a.py = %q", got)
	}
	if got, _ := fb.Get("sub/b.py"); got != "print(\"two\")\n" {
		t.Errorf("sub/b.py = %q", got)
	}
}

func TestParseNameIsLastNonBlankLine(t *testing.T) {
	text := "Here is the new version of the file:\n\na.py\n\n\n```\nx\n```\n"
	fb := Parse(text)

	if got, ok := fb.Get("a.py"); !ok || got != "x\n" {
		t.Errorf("Get(a.py) = %q, %v; names = %v", got, ok, fb.Names())
	}
}

func TestParseNameIsTrimmed(t *testing.T) {
	fb := Parse("  a.py  \n```\nx\n```\n")

	if _, ok := fb.Get("a.py"); !ok {
		t.Errorf("trimmed name not found; names = %v", fb.Names())
	}
}

func TestParseLastWriteWins(t *testing.T) {
	text := "a.py\n```\nfirst\n```\n\nb.py\n```\nmiddle\n```\n\na.py\n```\nsecond\n```\n"
	fb := Parse(text)

	if got := fb.Names(); !reflect.DeepEqual(got, []string{"a.py", "b.py"}) {
		t.Errorf("Names = %v, want first-seen order preserved", got)
	}
	if got, _ := fb.Get("a.py"); got != "second\n" {
		t.Errorf("a.py = %q, want the later block", got)
	}
}

func TestParseIndentedFenceIsContent(t *testing.T) {
	text := "a.md\n```\nUsage:\n\n    ```\n    example\n    ```\n\ndone\n```\n"
	fb := Parse(text)

	if fb.Len() != 1 {
		t.Fatalf("Len = %d, want 1; names = %v", fb.Len(), fb.Names())
	}
	got, _ := fb.Get("a.md")
	if !strings.Contains(got, "    ```\n    example\n    ```\n") {
		t.Errorf("indented fences not kept as content: %q", got)
	}
}

func TestParseFenceWithoutNameSkipped(t *testing.T) {
	fb := Parse("```\norphan\n```\n")
	if fb.Len() != 0 {
		t.Errorf("unnamed block extracted: %v", fb.Names())
	}
}

func TestParseClosingFenceIsNotAName(t *testing.T) {
	// The block after a.py's closing fence has no name line of its own.
	text := "a.py\n```\nx\n```\n```\ny\n```\n"
	fb := Parse(text)

	if got := fb.Names(); !reflect.DeepEqual(got, []string{"a.py"}) {
		t.Errorf("Names = %v, want [a.py]", got)
	}
}

func TestParseTruncatedBlockDropped(t *testing.T) {
	text := "a.py\n```\nok\n```\n\nb.py\n```\ncut off mid-"
	fb := Parse(text)

	if got := fb.Names(); !reflect.DeepEqual(got, []string{"a.py"}) {
		t.Errorf("Names = %v, want only the closed block", got)
	}
}

func TestParseEmptyBlock(t *testing.T) {
	fb := Parse("a.py\n```\n```\n")

	got, ok := fb.Get("a.py")
	if !ok || got != "" {
		t.Errorf("empty block = %q, %v", got, ok)
	}
}

func TestParseLanguageTagOnFence(t *testing.T) {
	fb := Parse("a.py\n```python\nprint(1)\n```\n")

	if got, ok := fb.Get("a.py"); !ok || got != "print(1)\n" {
		t.Errorf("Get(a.py) = %q, %v", got, ok)
	}
}

func TestParseNoBlocks(t *testing.T) {
	fb := Parse("Just prose, no code at all.\n")
	if fb.Len() != 0 {
		t.Errorf("Len = %d, want 0", fb.Len())
	}
}

func TestParseRoundTrip(t *testing.T) {
	nameGen := rapid.StringMatching(`[a-z][a-z0-9_/.-]{0,12}\.py`)
	lineGen := rapid.StringMatching(`[ a-zA-Z0-9._()-]{0,20}`)

	rapid.Check(t, func(t *rapid.T) {
		files := rapid.MapOfN(nameGen, rapid.SliceOfN(lineGen, 0, 6), 1, 5).Draw(t, "files")

		var names []string
		for name := range files {
			names = append(names, name)
		}
		sort.Strings(names)

		var b strings.Builder
		for _, name := range names {
			b.WriteString(name)
			b.WriteString("\n" + Fence + "\n")
			if lines := files[name]; len(lines) > 0 {
				b.WriteString(strings.Join(lines, "\n"))
				b.WriteString("\n")
			}
			b.WriteString(Fence + "\n\n")
		}

		fb := Parse(b.String())
		if fb.Len() != len(files) {
			t.Fatalf("Len = %d, want %d (names %v)", fb.Len(), len(files), fb.Names())
		}
		for _, name := range names {
			want := ""
			if lines := files[name]; len(lines) > 0 {
				want = strings.Join(lines, "\n") + "\n"
			}
			got, ok := fb.Get(name)
			if !ok || got != want {
				t.Fatalf("Get(%q) = %q, %v; want %q", name, got, ok, want)
			}
		}
	})
}
