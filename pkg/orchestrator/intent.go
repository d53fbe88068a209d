package orchestrator

import (
	"strings"

	"atelier/pkg/models"
	"atelier/pkg/utils"
)

// Keyword heuristics that pre-create pending side-effect placeholders so
// the client can show a saving indicator before the model decides to act.
// Execution itself is driven by structured tool calls; a heuristic miss
// only costs an early indicator, never a stuck one.

var exportVerbs = []string{"export", "save", "download", "write out", "turn this into"}
var imageVerbs = []string{"generate", "draw", "create", "make", "render", "paint"}
var imageNouns = []string{"image", "picture", "illustration", "artwork", "sketch", "concept art"}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// DetectIntents inspects the user text and returns pending placeholders
// for the side effects it appears to request.
func DetectIntents(text string) []models.SideEffectResult {
	t := strings.ToLower(text)
	var out []models.SideEffectResult
	if containsAny(t, exportVerbs) && (strings.Contains(t, "pdf") || strings.Contains(t, "docx") || strings.Contains(t, "word doc")) {
		out = append(out, models.SideEffectResult{
			Kind:   models.SideEffectDocument,
			Status: models.SideEffectPending,
			ID:     utils.GenID(),
		})
	}
	if containsAny(t, imageVerbs) && containsAny(t, imageNouns) {
		out = append(out, models.SideEffectResult{
			Kind:   models.SideEffectImage,
			Status: models.SideEffectPending,
			ID:     utils.GenID(),
		})
	}
	return out
}
