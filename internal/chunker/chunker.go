// Package chunker splits condominium documents into bounded, overlapping
// passages aligned to structural boundaries (markdown headings, regulation
// article markers). Chunks are the unit of embedding and retrieval.
package chunker

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// headingPattern matches markdown headings of level 1-3 at line start.
	headingPattern = regexp.MustCompile(`^#{1,3}\s`)

	// articlePattern matches bolded regulation article markers, e.g.
	// "**Artigo 12º**" at line start. Case-insensitive: scanned minutes
	// frequently upcase the whole line.
	articlePattern = regexp.MustCompile(`(?i)^\*\*\s*artigo\b`)
)

// Chunk is a bounded passage of a source document.
type Chunk struct {
	// Content is the chunk text, prefixed with the document title line.
	Content string

	// Seq is the chunk sequence number within the document, starting at 0.
	Seq int

	// Start and End are best-effort character offsets into the source
	// text. Approximate once overlap re-seeding kicks in.
	Start int
	End   int
}

// Options controls the chunking pass. Zero values take defaults.
type Options struct {
	// TargetSize is the soft upper bound on chunk length in characters.
	TargetSize int

	// Overlap is the approximate character budget carried from the tail
	// of a closed chunk into the next one. The carried text is measured
	// in words (Overlap/5 trailing words), so the realized overlap is an
	// approximation of this budget, not a guaranteed byte count.
	Overlap int

	// MinSection discards boundary-delimited sections shorter than this
	// (page numbers, signature fragments, OCR noise).
	MinSection int

	// MinChunk is the minimum buffer length required to emit a chunk.
	MinChunk int
}

// ApplyDefaults sets default values for unset fields.
func (o *Options) ApplyDefaults() {
	if o.TargetSize == 0 {
		o.TargetSize = 1000
	}
	if o.Overlap == 0 {
		o.Overlap = 200
	}
	if o.MinSection == 0 {
		o.MinSection = 50
	}
	if o.MinChunk == 0 {
		o.MinChunk = 100
	}
}

// IsBoundary reports whether a line starts a new structural section:
// a markdown heading (1-3 '#') or a bolded article marker.
func IsBoundary(line string) bool {
	return headingPattern.MatchString(line) || articlePattern.MatchString(line)
}

// section is a boundary-delimited run of lines with source offsets.
type section struct {
	text  string
	start int
	end   int
}

// splitSections cuts text immediately before every boundary line.
// Content preceding the first boundary forms the leading section.
func splitSections(text string) []section {
	var sections []section
	var cur strings.Builder
	curStart := 0
	offset := 0

	flush := func(end int) {
		s := strings.TrimSpace(cur.String())
		if s != "" {
			sections = append(sections, section{text: s, start: curStart, end: end})
		}
		cur.Reset()
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		if IsBoundary(line) && cur.Len() > 0 {
			flush(offset)
			curStart = offset
		}
		if cur.Len() == 0 {
			curStart = offset
		}
		cur.WriteString(line)
		offset += len(line)
	}
	flush(offset)

	return sections
}

// Split chunks a document. It is deterministic: identical input and
// options always yield an identical chunk sequence.
//
// Sections are accumulated greedily into a title-prefixed buffer. When
// appending the next section would push the buffer over TargetSize and
// the buffer already holds more than MinChunk characters, the buffer is
// closed as a chunk and a new one is seeded with the title prefix, an
// overlap taken from the closed chunk's tail, and the triggering section.
//
// If the boundary pass yields no chunks (unstructured or short input),
// Split falls back to fixed-width slicing so any non-empty document
// produces at least one chunk.
func Split(text, title string, opts Options) []Chunk {
	opts.ApplyDefaults()

	if strings.TrimSpace(text) == "" {
		return nil
	}

	prefix := titlePrefix(title)
	var chunks []Chunk

	buf := prefix
	bufStart, bufEnd := 0, 0
	seeded := false

	emit := func() {
		content := strings.TrimRight(buf, " \t\n")
		chunks = append(chunks, Chunk{
			Content: content,
			Seq:     len(chunks),
			Start:   bufStart,
			End:     bufEnd,
		})
	}

	for _, sec := range splitSections(text) {
		if len(sec.text) < opts.MinSection {
			continue
		}

		if len(buf)+len(sec.text)+2 > opts.TargetSize && len(buf) > opts.MinChunk {
			emit()
			tail := tailWords(buf, opts.Overlap/5)
			buf = prefix + tail + "\n\n" + sec.text
			bufStart, bufEnd = sec.start, sec.end
			seeded = true
			continue
		}

		if !seeded {
			bufStart = sec.start
			seeded = true
		} else {
			buf += "\n\n"
		}
		if buf == prefix {
			// First section goes straight after the title prefix.
			buf = prefix + sec.text
		} else {
			buf += sec.text
		}
		bufEnd = sec.end
	}

	if seeded && len(buf) > opts.MinChunk {
		emit()
	}

	if len(chunks) == 0 {
		return slidingChunks(text, prefix, opts)
	}
	return chunks
}

// slidingChunks is the fallback for documents without usable structural
// boundaries: fixed-width windows over the title-prefixed text, advancing
// by TargetSize-Overlap so consecutive windows share the overlap budget.
func slidingChunks(text, prefix string, opts Options) []Chunk {
	stride := opts.TargetSize - opts.Overlap
	if stride <= 0 {
		stride = opts.TargetSize
	}

	full := []rune(prefix + strings.TrimSpace(text))
	skip := len([]rune(prefix))

	var chunks []Chunk
	for i := 0; i < len(full); i += stride {
		end := i + opts.TargetSize
		if end > len(full) {
			end = len(full)
		}
		content := strings.TrimRight(string(full[i:end]), " \t\n")
		if content == "" {
			break
		}
		chunks = append(chunks, Chunk{
			Content: content,
			Seq:     len(chunks),
			Start:   max(0, i-skip),
			End:     max(0, end-skip),
		})
		if end == len(full) {
			break
		}
	}
	return chunks
}

// titlePrefix builds the per-chunk document header. Prefixing every chunk
// with the title keeps retrieval anchored to the parent document even for
// passages that never mention it.
func titlePrefix(title string) string {
	return fmt.Sprintf("Document: %s\n\n", title)
}

// tailWords returns the last n whitespace-separated words of s.
func tailWords(s string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(s)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}
