package format

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	DefaultMaxCharsPerBubble  = 280
	DefaultMaxBubblesPerBatch = 3
	maxButtonLabel            = 30
)

var (
	buttonsTagRe  = regexp.MustCompile(`(?is)<<BUTTONS:(.*?)>>`)
	sentenceEndRe = regexp.MustCompile(`(?s)([.?!])\s+`)
	labelSplitRe  = regexp.MustCompile(`[,|]`)
)

// Splitter turns free-form model output into chat-sized bubbles.
type Splitter struct {
	MaxCharsPerBubble  int
	MaxBubblesPerBatch int
}

func NewSplitter(maxChars, maxBubbles int) *Splitter {
	if maxChars <= 0 {
		maxChars = DefaultMaxCharsPerBubble
	}
	if maxBubbles <= 0 {
		maxBubbles = DefaultMaxBubblesPerBatch
	}
	return &Splitter{MaxCharsPerBubble: maxChars, MaxBubblesPerBatch: maxBubbles}
}

// ExtractButtons strips one embedded <<BUTTONS: ...>> directive and returns
// the clean text plus the raw button definition. The directive is optional;
// def is "" when absent.
func ExtractButtons(text string) (clean, def string) {
	m := buttonsTagRe.FindStringSubmatchIndex(text)
	if m == nil {
		return strings.TrimSpace(text), ""
	}
	def = strings.TrimSpace(text[m[2]:m[3]])
	clean = strings.TrimSpace(text[:m[0]] + text[m[1]:])
	return clean, def
}

// AppendButtons is the inverse of ExtractButtons for well-formed defs.
func AppendButtons(text string, labels []string) string {
	if len(labels) == 0 {
		return text
	}
	return text + "\n\n<<BUTTONS: " + strings.Join(labels, ", ") + ">>"
}

// ParseButtonDef splits a definition on commas/pipes into trimmed, non-empty
// labels, each capped at the keyboard label limit.
func ParseButtonDef(def string) []string {
	if strings.TrimSpace(def) == "" {
		return nil
	}
	parts := labelSplitRe.Split(def, -1)
	labels := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		// Labels carry accents and emoji, so the cap counts runes.
		if utf8.RuneCountInString(p) > maxButtonLabel {
			p = string([]rune(p)[:maxButtonLabel])
		}
		labels = append(labels, p)
	}
	return labels
}

// SplitText splits clean text into bubbles. Paragraphs (blank-line separated)
// at or under the bound pass through verbatim; longer ones are re-segmented at
// sentence boundaries and greedily packed. Sentences are never split: a single
// sentence longer than the bound keeps its own bubble.
func (sp *Splitter) SplitText(text string) []string {
	var bubbles []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if len(p) <= sp.MaxCharsPerBubble {
			bubbles = append(bubbles, p)
			continue
		}

		current := ""
		for _, s := range splitSentences(p) {
			if len(current)+len(s) < sp.MaxCharsPerBubble {
				current += s + " "
				continue
			}
			if current != "" {
				bubbles = append(bubbles, strings.TrimSpace(current))
			}
			current = s + " "
		}
		if current != "" {
			bubbles = append(bubbles, strings.TrimSpace(current))
		}
	}
	return bubbles
}

// splitSentences cuts on terminal punctuation followed by whitespace, keeping
// the punctuation with the preceding sentence.
func splitSentences(p string) []string {
	var out []string
	last := 0
	for _, m := range sentenceEndRe.FindAllStringSubmatchIndex(p, -1) {
		// m[3] is the end of the punctuation group, m[1] the end of the match.
		out = append(out, p[last:m[3]])
		last = m[1]
	}
	if last < len(p) {
		out = append(out, p[last:])
	}
	return out
}

// NextBatch takes the next batch of bubbles off the front of the queue.
func (sp *Splitter) NextBatch(bubbles []string) (batch, remaining []string) {
	if len(bubbles) <= sp.MaxBubblesPerBatch {
		return bubbles, nil
	}
	return bubbles[:sp.MaxBubblesPerBatch], bubbles[sp.MaxBubblesPerBatch:]
}
