package builder

import (
	"strings"
	"unicode/utf8"
)

// Default chunking parameters for semantic documents.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunk is a slice of a document with its byte offsets.
type Chunk struct {
	Text  string
	Start int
	End   int
}

// SplitText cuts content into chunks of at most size bytes, breaking on line
// boundaries where possible. Consecutive chunks share up to overlap bytes.
func SplitText(content string, size, overlap int) []Chunk {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}

	var (
		chunks  []Chunk
		current strings.Builder
		start   int
		offset  int
		fresh   bool // current holds text not yet emitted
	)

	emit := func() {
		text := strings.TrimSpace(current.String())
		if text != "" && fresh {
			chunks = append(chunks, Chunk{Text: text, Start: start, End: offset})
		}
		fresh = false

		carry := current.String()
		current.Reset()
		if overlap > 0 && len(carry) > overlap {
			cut := len(carry) - overlap
			for cut < len(carry) && !utf8.RuneStart(carry[cut]) {
				cut++
			}
			current.WriteString(carry[cut:])
			start = offset - (len(carry) - cut)
		} else {
			start = offset
		}
	}

	for _, piece := range pieces(content, size-overlap) {
		if current.Len() > 0 && current.Len()+len(piece) > size {
			emit()
		}
		current.WriteString(piece)
		offset += len(piece)
		fresh = true
	}
	if fresh {
		emit()
	}
	return chunks
}

// pieces splits content into lines (keeping newlines), cutting lines longer
// than max at rune boundaries.
func pieces(content string, max int) []string {
	if max <= 0 {
		max = 1
	}
	var out []string
	for len(content) > 0 {
		line := content
		if i := strings.IndexByte(content, '\n'); i >= 0 {
			line = content[:i+1]
		}
		content = content[len(line):]

		for len(line) > max {
			cut := max
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				cut = max
			}
			out = append(out, line[:cut])
			line = line[cut:]
		}
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
