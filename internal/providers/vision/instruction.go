package vision

import (
	"strings"
)

// FallbackInstruction is used when neither an analysis nor a prompt is
// available.
const FallbackInstruction = "Enhance this photo: balance exposure, correct white balance, improve clarity and keep it natural."

// BuildEditInstruction combines the user's prompt with the analysis findings
// into one editing instruction.
func BuildEditInstruction(analysis *Analysis, prompt string) string {
	parts := []string{}
	if p := strings.TrimSpace(prompt); p != "" {
		parts = append(parts, strings.TrimRight(p, ".")+".")
	} else {
		parts = append(parts, FallbackInstruction)
	}
	if analysis != nil {
		if desc := strings.TrimSpace(analysis.Description); desc != "" {
			parts = append(parts, "Photo: "+strings.TrimRight(desc, ".")+".")
		}
		if subjects := joinNonEmpty(analysis.Subjects); subjects != "" {
			parts = append(parts, "Keep the main subjects intact: "+subjects+".")
		}
		if issues := joinNonEmpty(analysis.Issues); issues != "" {
			parts = append(parts, "Fix: "+issues+".")
		}
		if suggestions := joinNonEmpty(analysis.Suggestions); suggestions != "" {
			parts = append(parts, "Consider: "+suggestions+".")
		}
	}
	parts = append(parts, "Preserve composition and proportions, no added text or watermarks.")
	return strings.Join(parts, " ")
}

func joinNonEmpty(values []string) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, ", ")
}
