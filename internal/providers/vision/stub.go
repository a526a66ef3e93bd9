package vision

import (
	"context"
	"strings"
)

// StubAnalyzer returns a fixed analysis. It is used for local runs without
// provider credentials.
type StubAnalyzer struct{}

func (StubAnalyzer) Name() string { return string(KindStub) }

func (StubAnalyzer) Analyze(ctx context.Context, req AnalysisRequest) AnalysisResult {
	if err := ctx.Err(); err != nil {
		return analysisFailure("%v", err)
	}
	desc := "A photo"
	if p := strings.TrimSpace(req.Prompt); p != "" {
		desc += " to edit as requested: " + p
	}
	return AnalysisResult{Success: true, Data: &Analysis{
		Description: desc,
		Suggestions: []string{"balance exposure", "correct white balance"},
	}}
}

func (StubAnalyzer) HealthCheck(ctx context.Context) error { return nil }

// StubEditor performs an identity edit: the edited image is the input image.
type StubEditor struct{}

func (StubEditor) Name() string { return string(KindStub) }

func (StubEditor) Edit(ctx context.Context, req EditRequest) EditResult {
	if err := ctx.Err(); err != nil {
		return editFailure("%v", err)
	}
	if strings.TrimSpace(req.ImageURL) == "" {
		return editFailure("stub edit: image url is required")
	}
	return EditResult{Success: true, EditedImageURL: req.ImageURL}
}

func (StubEditor) HealthCheck(ctx context.Context) error { return nil }

var (
	_ Analyzer = StubAnalyzer{}
	_ Editor   = StubEditor{}
)
