package channels

import (
	"strings"
	"testing"
)

func TestRenderWithOptions(t *testing.T) {
	got := renderWithOptions("¿Confirmás?", []string{"Sí", "No"})
	if !strings.Contains(got, "¿Confirmás?") {
		t.Fatalf("content missing: %q", got)
	}
	if !strings.Contains(got, "👉 Sí") || !strings.Contains(got, "👉 No") {
		t.Fatalf("options missing: %q", got)
	}

	if got := renderWithOptions("solo texto", nil); got != "solo texto" {
		t.Fatalf("no-button content changed: %q", got)
	}
}

func TestChunkContent(t *testing.T) {
	short := chunkContent("hola", 2000)
	if len(short) != 1 || short[0] != "hola" {
		t.Fatalf("short content should not split: %v", short)
	}

	long := strings.Repeat("línea de texto\n", 300)
	chunks := chunkContent(long, 2000)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 2000 {
			t.Fatalf("chunk %d exceeds limit: %d", i, len(c))
		}
	}
	joined := strings.Join(chunks, "\n")
	if strings.Count(joined, "línea de texto") != 300 {
		t.Fatalf("content lost while chunking")
	}
}
