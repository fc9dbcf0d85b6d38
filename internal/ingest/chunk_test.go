package ingest

import (
	"strings"
	"testing"
)

func TestChunk_ShortTextSingleChunk(t *testing.T) {
	got := Chunk("a short document", 100, 20)
	if len(got) != 1 || got[0] != "a short document" {
		t.Fatalf("chunks = %v, want one chunk with the whole text", got)
	}
}

func TestChunk_EmptyAndInvalid(t *testing.T) {
	if got := Chunk("", 100, 20); got != nil {
		t.Errorf("empty text: chunks = %v, want nil", got)
	}
	if got := Chunk("   \n\t ", 100, 20); got != nil {
		t.Errorf("whitespace text: chunks = %v, want nil", got)
	}
	if got := Chunk("text", 0, 0); got != nil {
		t.Errorf("size 0: chunks = %v, want nil", got)
	}
}

func TestChunk_BreaksAtWordBoundary(t *testing.T) {
	text := strings.Repeat("word ", 100) // 500 chars
	chunks := Chunk(text, 120, 20)
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want several", len(chunks))
	}
	for i, c := range chunks {
		if strings.HasPrefix(c, "ord") || strings.HasSuffix(c, "wo") || strings.HasSuffix(c, "wor") {
			t.Errorf("chunk %d splits a word: %q", i, c)
		}
	}
}

func TestChunk_OverlapPreservesContinuity(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta ", 50)
	chunks := Chunk(text, 100, 30)
	for i := 1; i < len(chunks); i++ {
		head := chunks[i]
		if len(head) > 20 {
			head = head[:20]
		}
		// Text at the start of each chunk must also appear near the end
		// of its predecessor.
		if !strings.Contains(chunks[i-1], strings.Fields(head)[0]) {
			t.Errorf("chunk %d start %q not found in previous chunk", i, head)
		}
	}
}

func TestChunk_AlwaysTerminates(t *testing.T) {
	// A single unbroken token forces the word-boundary heuristic off and
	// the forward-progress clause on.
	text := strings.Repeat("x", 5000)
	chunks := Chunk(text, 100, 99)
	if len(chunks) == 0 {
		t.Fatal("no chunks produced")
	}
	var total int
	for _, c := range chunks {
		total += len(c)
	}
	if total < len(text) {
		t.Errorf("chunks cover %d chars of %d", total, len(text))
	}
}

func TestChunk_CoversAllText(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("the quick brown fox jumps over the lazy dog ", 40))
	chunks := Chunk(text, 200, 40)
	if !strings.Contains(chunks[0], "the quick") {
		t.Errorf("first chunk missing opening text: %q", chunks[0])
	}
	last := chunks[len(chunks)-1]
	if !strings.HasSuffix(last, "lazy dog") {
		t.Errorf("last chunk missing closing text: %q", last)
	}
}
