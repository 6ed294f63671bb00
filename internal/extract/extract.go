// Package extract normalizes a raw document artifact into line-oriented text
// for prompt assembly and fallback parsing. Extraction failures degrade to a
// descriptive ERROR string instead of an error value: a broken sample must
// not crash the run, only weaken the prompt.
package extract

import (
	"os"
	"strings"
	"unicode/utf8"
)

// Text reads the artifact and returns its non-empty lines, trimmed. On a
// missing or unreadable file the returned string starts with "ERROR:".
func Text(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "ERROR: cannot read input artifact: " + err.Error()
	}
	if !utf8.Valid(data) {
		return "ERROR: input artifact is not valid text: " + path
	}

	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return strings.Join(lines, "\n")
}

// Sample returns at most limit bytes of the extracted text, cut on a line
// boundary where possible. Used to keep prompt excerpts bounded.
func Sample(path string, limit int) string {
	text := Text(path)
	if limit <= 0 || len(text) <= limit {
		return text
	}
	cut := text[:limit]
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		cut = cut[:i]
	}
	return cut
}
