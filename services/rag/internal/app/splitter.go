package app

import (
	"strings"
	"unicode/utf8"
)

var defaultSeparators = []string{"\n\n", "\n", ".", " ", ""}

// splitText breaks text into chunks of at most size runes with roughly
// overlap runes shared between neighbors. Separators are tried in
// order; a piece that still exceeds size is re-split with the finer
// separators that follow. Separators stay attached to the start of the
// piece they precede, so every chunk is a contiguous slice of the
// input.
func splitText(text string, size, overlap int, separators []string) []string {
	if size <= 0 || text == "" {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}
	if len(separators) == 0 {
		separators = defaultSeparators
	}
	var out []string
	splitRecursive(text, size, overlap, separators, &out)
	return out
}

func splitRecursive(text string, size, overlap int, separators []string, out *[]string) {
	sep := separators[len(separators)-1]
	var finer []string
	for i, s := range separators {
		if s == "" {
			sep = ""
			finer = nil
			break
		}
		if strings.Contains(text, s) {
			sep = s
			finer = separators[i+1:]
			break
		}
	}

	var pending []string
	flush := func() {
		if len(pending) == 0 {
			return
		}
		*out = append(*out, mergeSplits(pending, size, overlap)...)
		pending = nil
	}
	for _, piece := range splitKeepSeparator(text, sep) {
		if utf8.RuneCountInString(piece) < size {
			pending = append(pending, piece)
			continue
		}
		flush()
		if len(finer) == 0 {
			if trimmed := strings.TrimSpace(piece); trimmed != "" {
				*out = append(*out, trimmed)
			}
			continue
		}
		splitRecursive(piece, size, overlap, finer, out)
	}
	flush()
}

// splitKeepSeparator splits text on sep, keeping sep as the prefix of
// the piece that follows it. An empty sep splits into single runes.
func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		parts := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			parts = append(parts, string(r))
		}
		return parts
	}
	raw := strings.Split(text, sep)
	parts := make([]string, 0, len(raw))
	for i, p := range raw {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// mergeSplits greedily packs pieces into windows of at most size
// runes. When a window is emitted, pieces are dropped from its front
// until at most overlap runes remain to seed the next window.
func mergeSplits(splits []string, size, overlap int) []string {
	var docs []string
	var window []string
	total := 0
	for _, piece := range splits {
		n := utf8.RuneCountInString(piece)
		if total+n > size && len(window) > 0 {
			if doc := strings.TrimSpace(strings.Join(window, "")); doc != "" {
				docs = append(docs, doc)
			}
			for total > overlap || (total+n > size && total > 0) {
				total -= utf8.RuneCountInString(window[0])
				window = window[1:]
			}
		}
		window = append(window, piece)
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(window, "")); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}
