package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decodeJSON parses a model response that is supposed to be a bare JSON
// object, tolerating markdown code fences some models wrap around it.
func decodeJSON(text string, out any) error {
	t := strings.TrimSpace(text)
	if strings.HasPrefix(t, "```") {
		t = strings.TrimPrefix(t, "```json")
		t = strings.TrimPrefix(t, "```")
		if i := strings.LastIndex(t, "```"); i >= 0 {
			t = t[:i]
		}
		t = strings.TrimSpace(t)
	}
	if t == "" {
		return fmt.Errorf("empty response")
	}
	return json.Unmarshal([]byte(t), out)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
