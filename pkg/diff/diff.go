package diff

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DefaultMaxLines bounds the size of a diff attached to a probe result.
const DefaultMaxLines = 200

// Unified renders a line-oriented diff turning current into desired.
// Identical inputs produce an empty string. When maxLines is positive the
// body is truncated after that many lines.
func Unified(current, desired []byte, path string, maxLines int) string {
	if bytes.Equal(current, desired) {
		return ""
	}

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(string(current), string(desired))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "--- %s (current)\n", path)
	fmt.Fprintf(&buf, "+++ %s (desired)\n", path)

	written := 0
	truncated := false
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		}
		for _, line := range splitLines(d.Text) {
			if maxLines > 0 && written >= maxLines {
				truncated = true
				break
			}
			buf.WriteString(prefix)
			buf.WriteString(line)
			buf.WriteByte('\n')
			written++
		}
	}

	if truncated {
		fmt.Fprintf(&buf, "... (diff truncated after %d lines) ...\n", maxLines)
	}
	return buf.String()
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}
