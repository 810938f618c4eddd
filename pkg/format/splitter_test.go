package format

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestExtractButtons_RoundTrip(t *testing.T) {
	labels := []string{"Opción 1", "Opción 2", "Dormir"}
	text := "Te propongo tres caminos."

	clean, def := ExtractButtons(AppendButtons(text, labels))
	if clean != text {
		t.Fatalf("clean = %q, want %q", clean, text)
	}
	if got := ParseButtonDef(def); !reflect.DeepEqual(got, labels) {
		t.Fatalf("labels = %v, want %v", got, labels)
	}
}

func TestExtractButtons_CaseInsensitiveAndMultiline(t *testing.T) {
	text := "Hola.\n<<buttons: a,\nb>>\nChau."
	clean, def := ExtractButtons(text)
	if strings.Contains(clean, "<<") {
		t.Fatalf("directive not stripped: %q", clean)
	}
	labels := ParseButtonDef(def)
	if len(labels) != 2 || labels[0] != "a" || labels[1] != "b" {
		t.Fatalf("labels = %v", labels)
	}
}

func TestExtractButtons_AbsentMeansNoButtons(t *testing.T) {
	clean, def := ExtractButtons("  sin botones acá  ")
	if clean != "sin botones acá" || def != "" {
		t.Fatalf("clean=%q def=%q", clean, def)
	}
}

func TestParseButtonDef_TrimsAndTruncates(t *testing.T) {
	long := strings.Repeat("x", 50)
	labels := ParseButtonDef(" a | , " + long + " ,b ")
	if len(labels) != 3 {
		t.Fatalf("labels = %v", labels)
	}
	if len(labels[1]) != 30 {
		t.Fatalf("long label not truncated to 30: %d", len(labels[1]))
	}
}

func TestParseButtonDef_TruncationCountsRunes(t *testing.T) {
	long := strings.Repeat("ñ", 40)
	labels := ParseButtonDef(long)
	if len(labels) != 1 {
		t.Fatalf("labels = %v", labels)
	}
	got := labels[0]
	if utf8.RuneCountInString(got) != 30 {
		t.Fatalf("rune count = %d, want 30", utf8.RuneCountInString(got))
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncated label is not valid UTF-8: %q", got)
	}
	if got != strings.Repeat("ñ", 30) {
		t.Fatalf("label = %q", got)
	}
}

func TestSplitText_ShortParagraphIsOneBubble(t *testing.T) {
	sp := NewSplitter(0, 0)
	bubbles := sp.SplitText("Párrafo corto.\n\nOtro párrafo.")
	if len(bubbles) != 2 {
		t.Fatalf("bubbles = %v", bubbles)
	}
	if bubbles[0] != "Párrafo corto." {
		t.Fatalf("bubble 0 = %q", bubbles[0])
	}
}

func TestSplitText_LongParagraphRespectsBound(t *testing.T) {
	sp := NewSplitter(0, 0)

	// ~900 chars of short sentences in a single paragraph.
	var b strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, "Esta es la oración número %d del texto. ", i)
	}
	text := strings.TrimSpace(b.String())

	bubbles := sp.SplitText(text)
	if len(bubbles) < 4 {
		t.Fatalf("expected >=4 bubbles for ~900 chars, got %d", len(bubbles))
	}
	for i, bub := range bubbles {
		if len(bub) > sp.MaxCharsPerBubble {
			t.Errorf("bubble %d exceeds bound: %d chars", i, len(bub))
		}
	}

	// No loss: rejoining the bubbles yields the original sentence stream.
	if joined := strings.Join(bubbles, " "); joined != text {
		t.Errorf("rejoined text differs from input")
	}
}

func TestSplitText_OversizedSentenceKeptWhole(t *testing.T) {
	sp := NewSplitter(0, 0)
	giant := strings.Repeat("palabra ", 60) + "final."
	bubbles := sp.SplitText("Corta. " + giant)
	found := false
	for _, b := range bubbles {
		if strings.HasSuffix(b, "final.") && len(b) > sp.MaxCharsPerBubble {
			found = true
		}
	}
	if !found {
		t.Fatalf("oversized sentence should own a bubble, got %v", bubbles)
	}
}

func TestNextBatch_Pagination(t *testing.T) {
	sp := NewSplitter(280, 3)
	bubbles := []string{"a", "b", "c", "d", "e", "f", "g"}

	var collected []string
	remaining := bubbles
	rounds := 0
	for len(remaining) > 0 {
		var batch []string
		batch, remaining = sp.NextBatch(remaining)
		if len(batch) == 0 {
			t.Fatalf("empty batch with %d remaining", len(remaining))
		}
		if len(batch) > sp.MaxBubblesPerBatch {
			t.Fatalf("batch too large: %d", len(batch))
		}
		collected = append(collected, batch...)
		rounds++
	}

	if rounds != 3 {
		t.Errorf("rounds = %d, want 3", rounds)
	}
	if !reflect.DeepEqual(collected, bubbles) {
		t.Errorf("pagination lost or reordered bubbles: %v", collected)
	}
}

func TestNextBatch_ExactBatchHasNoRemainder(t *testing.T) {
	sp := NewSplitter(280, 3)
	batch, remaining := sp.NextBatch([]string{"a", "b", "c"})
	if len(batch) != 3 || remaining != nil {
		t.Fatalf("batch=%v remaining=%v", batch, remaining)
	}
}
