package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"photoflow/internal/providers/genai"
)

const analysisPromptTemplate = `You are a photo editor. Look at the attached photo and answer with JSON only:
{"description": string, "subjects": [string], "issues": [string], "suggestions": [string]}
"issues" lists technical problems (exposure, color cast, noise, blur, tilt). "suggestions" lists edits that would improve the photo.`

// GeminiAnalyzer describes photos with the Gemini text model.
type GeminiAnalyzer struct {
	client *genai.Client
}

func NewGeminiAnalyzer(client *genai.Client) *GeminiAnalyzer {
	return &GeminiAnalyzer{client: client}
}

func (a *GeminiAnalyzer) Name() string { return string(KindGemini) }

func (a *GeminiAnalyzer) Analyze(ctx context.Context, req AnalysisRequest) AnalysisResult {
	img, err := a.client.Download(ctx, req.ImageURL)
	if err != nil {
		return analysisFailure("download image: %v", err)
	}
	prompt := analysisPromptTemplate
	if p := strings.TrimSpace(req.Prompt); p != "" {
		prompt += "\nThe user wants: " + p
	}
	text, err := a.client.GenerateText(ctx, genai.TextRequest{Prompt: prompt, Image: img, JSONMode: true})
	if err != nil {
		return analysisFailure("gemini analysis: %v", err)
	}
	return AnalysisResult{Success: true, Data: parseAnalysis(text)}
}

func (a *GeminiAnalyzer) HealthCheck(ctx context.Context) error {
	return a.client.Ping(ctx)
}

// parseAnalysis accepts the JSON reply, optionally fenced, and falls back to
// using the raw text as the description.
func parseAnalysis(text string) *Analysis {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var analysis Analysis
	if err := json.Unmarshal([]byte(trimmed), &analysis); err == nil && analysis.Description != "" {
		return &analysis
	}
	return &Analysis{Description: strings.TrimSpace(text)}
}

// GeminiEditor edits photos with the Gemini image model. The edited image is
// returned inline as a data: URL.
type GeminiEditor struct {
	client *genai.Client
}

func NewGeminiEditor(client *genai.Client) *GeminiEditor {
	return &GeminiEditor{client: client}
}

func (e *GeminiEditor) Name() string { return string(KindGemini) }

func (e *GeminiEditor) Edit(ctx context.Context, req EditRequest) EditResult {
	img, err := e.client.Download(ctx, req.ImageURL)
	if err != nil {
		return editFailure("download image: %v", err)
	}
	instruction := strings.TrimSpace(req.Instructions)
	if instruction == "" {
		instruction = BuildEditInstruction(req.Analysis, "")
	}
	edited, err := e.client.EditImage(ctx, genai.ImageEditRequest{Instruction: instruction, Image: *img})
	if err != nil {
		return editFailure("gemini edit: %v", err)
	}
	mime := edited.MimeType
	if mime == "" {
		mime = "image/png"
	}
	return EditResult{
		Success:        true,
		EditedImageURL: fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(edited.Data)),
	}
}

func (e *GeminiEditor) HealthCheck(ctx context.Context) error {
	return e.client.Ping(ctx)
}

var (
	_ Analyzer = (*GeminiAnalyzer)(nil)
	_ Editor   = (*GeminiEditor)(nil)
)
