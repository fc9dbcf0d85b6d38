// Package ingest turns uploaded and scraped documents into embedded chunks
// through a SQLite-backed job queue.
package ingest

import "strings"

// Chunk splits text into overlapping character windows, breaking at word
// boundaries when one falls near the window end so chunks do not split
// words mid-token. size and overlap are in characters; overlap must be
// smaller than size.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			chunk := strings.TrimSpace(text[start:])
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		// Back up to the last whitespace inside the window, unless that
		// would throw away most of the chunk.
		cut := end
		if idx := strings.LastIndexAny(text[start:end], " \t\n"); idx > size/2 {
			cut = start + idx
		}

		chunk := strings.TrimSpace(text[start:cut])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		// Resume behind the cut to keep the overlap, always moving forward.
		next := cut - overlap
		if next <= start {
			next = end - overlap
		}
		start = next
	}
	return chunks
}
