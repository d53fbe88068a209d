package retrieval

import "strings"

const (
	chunkSize    = 1200
	chunkOverlap = 200
)

// ChunkText splits text into fixed windows with overlap so passage
// boundaries do not cut context. NUL bytes are scrubbed first since they
// break downstream JSON storage.
func ChunkText(text string) []string {
	text = strings.ReplaceAll(text, "\x00", "")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	var out []string
	step := chunkSize - chunkOverlap
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}
