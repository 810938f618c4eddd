package gateway

import "strings"

// cleanJSON strips markdown fences and slices out the outermost JSON value.
// Models frequently wrap their JSON in ```json blocks or prose.
func cleanJSON(raw string) string {
	raw = strings.ReplaceAll(raw, "```json", "")
	raw = strings.ReplaceAll(raw, "```", "")
	raw = strings.TrimSpace(raw)

	start := strings.IndexAny(raw, "[{")
	end := strings.LastIndexAny(raw, "]}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
