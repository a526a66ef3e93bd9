// Package vision defines the analysis and editing provider ports used by the
// worker and the concrete Gemini, Seedream and stub implementations.
package vision

import (
	"context"
	"fmt"
	"strings"
)

// Kind names a provider implementation. The set is closed.
type Kind string

const (
	KindGemini   Kind = "gemini"
	KindSeedream Kind = "seedream"
	KindStub     Kind = "stub"
)

// Capability is what a provider is asked to do.
type Capability string

const (
	CapabilityAnalysis Capability = "analysis"
	CapabilityEditing  Capability = "editing"
)

// ParseKind resolves a configured provider name for the given capability.
func ParseKind(name string, capability Capability) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(name)))
	switch kind {
	case KindGemini, KindStub:
		return kind, nil
	case KindSeedream:
		if capability == CapabilityAnalysis {
			return "", fmt.Errorf("vision: provider %q does not support %s", name, capability)
		}
		return kind, nil
	}
	return "", fmt.Errorf("vision: unknown %s provider %q", capability, name)
}

// Analysis is the structured description an analysis provider returns.
type Analysis struct {
	Description string   `json:"description"`
	Subjects    []string `json:"subjects,omitempty"`
	Issues      []string `json:"issues,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// AnalysisRequest asks a provider to describe the image at ImageURL.
type AnalysisRequest struct {
	ImageURL string
	Prompt   string
}

// AnalysisResult reports the outcome. Failures are values, not errors, so the
// pipeline can continue without an analysis.
type AnalysisResult struct {
	Success       bool
	Data          *Analysis
	FailureReason string
}

// EditRequest asks a provider to edit the image at ImageURL.
type EditRequest struct {
	ImageURL     string
	Analysis     *Analysis
	Instructions string
}

// EditResult carries the location of the edited image. EditedImageURL may be
// an http(s) URL or a data: URL.
type EditResult struct {
	Success        bool
	EditedImageURL string
	FailureReason  string
}

// Analyzer is an analysis provider.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, req AnalysisRequest) AnalysisResult
	HealthCheck(ctx context.Context) error
}

// Editor is an editing provider.
type Editor interface {
	Name() string
	Edit(ctx context.Context, req EditRequest) EditResult
	HealthCheck(ctx context.Context) error
}

func analysisFailure(format string, args ...any) AnalysisResult {
	return AnalysisResult{FailureReason: fmt.Sprintf(format, args...)}
}

func editFailure(format string, args ...any) EditResult {
	return EditResult{FailureReason: fmt.Sprintf(format, args...)}
}
