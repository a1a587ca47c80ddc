package infra

import (
	"strings"
)

// hostsLine is one physical line of the hosts file.
// text never contains the terminator; eol is "\n", "\r\n" or "" for a
// final line without newline.
type hostsLine struct {
	text string
	eol  string
}

// blockSpan holds the line indexes of a start marker and its end marker.
type blockSpan struct {
	start int
	end   int
}

// scanResult is the outcome of locating marker-delimited blocks.
type scanResult struct {
	spans []blockSpan

	// dangling is the index of a start marker that has no end marker,
	// or -1 when every start marker is closed.
	dangling int

	// problem describes the first malformed construct, empty if none.
	problem     string
	problemLine int // 1-based
}

func splitLines(content string) []hostsLine {
	var lines []hostsLine
	for len(content) > 0 {
		i := strings.IndexByte(content, '\n')
		if i < 0 {
			lines = append(lines, hostsLine{text: content})
			break
		}
		text, eol := content[:i], "\n"
		if strings.HasSuffix(text, "\r") {
			text, eol = text[:len(text)-1], "\r\n"
		}
		lines = append(lines, hostsLine{text: text, eol: eol})
		content = content[i+1:]
	}
	return lines
}

func joinLines(lines []hostsLine) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l.text)
		b.WriteString(l.eol)
	}
	return b.String()
}

// detectEOL returns the line terminator used by the file, "\n" by default.
func detectEOL(lines []hostsLine) string {
	for _, l := range lines {
		if l.eol != "" {
			return l.eol
		}
	}
	return "\n"
}

// scanBlocks locates marker lines by exact match (surrounding whitespace
// ignored). A stray end marker outside a block is not ours and is skipped.
func scanBlocks(lines []hostsLine, startMarker, endMarker string) scanResult {
	res := scanResult{dangling: -1}
	open := -1

	for i, l := range lines {
		switch strings.TrimSpace(l.text) {
		case startMarker:
			if open >= 0 {
				if res.problem == "" {
					res.problem = "start marker inside an open block"
					res.problemLine = i + 1
				}
				// Treat the earlier start as dangling; restart from here.
				res.dangling = open
			}
			open = i
		case endMarker:
			if open < 0 {
				continue
			}
			res.spans = append(res.spans, blockSpan{start: open, end: i})
			open = -1
		}
	}

	if open >= 0 {
		res.dangling = open
		if res.problem == "" {
			res.problem = "start marker without matching end marker"
			res.problemLine = open + 1
		}
	}
	return res
}

// removeSpans drops the given spans and extra single-line indexes.
func removeSpans(lines []hostsLine, spans []blockSpan, extra ...int) []hostsLine {
	drop := dropSet(spans, extra)
	kept := make([]hostsLine, 0, len(lines))
	for i, l := range lines {
		if !drop[i] {
			kept = append(kept, l)
		}
	}
	return kept
}

func dropSet(spans []blockSpan, extra []int) map[int]bool {
	drop := make(map[int]bool)
	for _, s := range spans {
		for i := s.start; i <= s.end; i++ {
			drop[i] = true
		}
	}
	for _, i := range extra {
		if i >= 0 {
			drop[i] = true
		}
	}
	return drop
}

// spanHasLine reports whether text appears strictly between the span's markers.
func spanHasLine(lines []hostsLine, span blockSpan, text string) bool {
	for _, l := range lines[span.start+1 : span.end] {
		if strings.TrimSpace(l.text) == text {
			return true
		}
	}
	return false
}
