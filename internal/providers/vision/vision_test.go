package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photoflow/internal/providers/genai"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func respond(status int, contentType, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{contentType}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind(" Gemini ", CapabilityAnalysis)
	require.NoError(t, err)
	assert.Equal(t, KindGemini, kind)

	kind, err = ParseKind("seedream", CapabilityEditing)
	require.NoError(t, err)
	assert.Equal(t, KindSeedream, kind)

	_, err = ParseKind("seedream", CapabilityAnalysis)
	require.Error(t, err)
	_, err = ParseKind("dall-e", CapabilityEditing)
	require.Error(t, err)
}

func TestNewRegistryValidatesAtBoot(t *testing.T) {
	_, err := NewRegistry(Config{Analysis: "nope", Editing: KindStub})
	require.Error(t, err)

	_, err = NewRegistry(Config{Analysis: KindGemini, Editing: KindStub})
	require.ErrorContains(t, err, "api key")

	_, err = NewRegistry(Config{Analysis: KindStub, Editing: KindSeedream})
	require.ErrorContains(t, err, "api key")

	reg, err := NewRegistry(Config{Analysis: KindStub, Editing: KindStub})
	require.NoError(t, err)
	assert.Equal(t, "stub", reg.Analyzer.Name())
	assert.Equal(t, "stub", reg.Editor.Name())
	assert.True(t, reg.HealthCheck(context.Background()).OK())
}

func TestNewRegistryNormalizesKinds(t *testing.T) {
	reg, err := NewRegistry(Config{Analysis: " stub", Editing: "STUB "})
	require.NoError(t, err)
	require.NotNil(t, reg.Analyzer)
	require.NotNil(t, reg.Editor)
	assert.Equal(t, "stub", reg.Analyzer.Name())
	assert.Equal(t, "stub", reg.Editor.Name())

	reg, err = NewRegistry(Config{Analysis: "Gemini", Editing: " seedream", Gemini: genai.Options{APIKey: "k"}, Seedream: SeedreamOptions{APIKey: "k"}})
	require.NoError(t, err)
	assert.IsType(t, &GeminiAnalyzer{}, reg.Analyzer)
	assert.IsType(t, &SeedreamEditor{}, reg.Editor)
}

func TestNewRegistrySharesGeminiClient(t *testing.T) {
	reg, err := NewRegistry(Config{
		Analysis: KindGemini,
		Editing:  KindGemini,
		Gemini:   genai.Options{APIKey: "k"},
	})
	require.NoError(t, err)
	a := reg.Analyzer.(*GeminiAnalyzer)
	e := reg.Editor.(*GeminiEditor)
	assert.Same(t, a.client, e.client)
}

func TestRegistryHealthReportsFailures(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return respond(401, "application/json", `{}`), nil
	})}
	reg, err := NewRegistry(Config{
		Analysis:   KindStub,
		Editing:    KindSeedream,
		Seedream:   SeedreamOptions{APIKey: "k"},
		HTTPClient: client,
	})
	require.NoError(t, err)
	h := reg.HealthCheck(context.Background())
	assert.True(t, h.Analysis)
	assert.False(t, h.Editing)
	assert.Contains(t, h.EditingError, "401")
	assert.False(t, h.OK())
}

func geminiTransport(t *testing.T, reply string) roundTripFunc {
	return func(r *http.Request) (*http.Response, error) {
		if r.Method == http.MethodGet {
			return respond(200, "image/jpeg", "jpeg-bytes"), nil
		}
		return respond(200, "application/json", reply), nil
	}
}

func TestGeminiAnalyzerParsesJSON(t *testing.T) {
	reply := `{"candidates":[{"content":{"parts":[{"text":"` + "```json" + `\n{\"description\":\"A cat on a sofa\",\"issues\":[\"underexposed\"]}\n` + "```" + `"}]}}]}`
	client, err := genai.NewClient(genai.Options{APIKey: "k", HTTPClient: &http.Client{Transport: geminiTransport(t, reply)}})
	require.NoError(t, err)

	res := NewGeminiAnalyzer(client).Analyze(context.Background(), AnalysisRequest{ImageURL: "https://s3/opt.jpg", Prompt: "Enhance contrast"})
	require.True(t, res.Success, res.FailureReason)
	assert.Equal(t, "A cat on a sofa", res.Data.Description)
	assert.Equal(t, []string{"underexposed"}, res.Data.Issues)
}

func TestGeminiAnalyzerFailureIsAValue(t *testing.T) {
	client, err := genai.NewClient(genai.Options{APIKey: "k", HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("network down")
	})}})
	require.NoError(t, err)

	res := NewGeminiAnalyzer(client).Analyze(context.Background(), AnalysisRequest{ImageURL: "https://s3/opt.jpg"})
	assert.False(t, res.Success)
	assert.Contains(t, res.FailureReason, "network down")
}

func TestGeminiEditorReturnsDataURL(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("edited"))
	reply := `{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/png","data":"` + encoded + `"}}]}}]}`
	client, err := genai.NewClient(genai.Options{APIKey: "k", HTTPClient: &http.Client{Transport: geminiTransport(t, reply)}})
	require.NoError(t, err)

	res := NewGeminiEditor(client).Edit(context.Background(), EditRequest{ImageURL: "https://s3/opt.jpg", Instructions: "brighten"})
	require.True(t, res.Success, res.FailureReason)
	assert.Equal(t, "data:image/png;base64,"+encoded, res.EditedImageURL)
}

func TestSeedreamEditor(t *testing.T) {
	var captured seedreamRequest
	editor := NewSeedreamEditor(SeedreamOptions{
		APIKey:  "ark",
		BaseURL: "https://ark.test/api/v3",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			assert.Equal(t, "/api/v3/images/generations", r.URL.Path)
			assert.Equal(t, "Bearer ark", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
			return respond(200, "application/json", `{"data":[{"url":"https://cdn.ark/edited.jpg"}]}`), nil
		})},
	})

	res := editor.Edit(context.Background(), EditRequest{ImageURL: "https://s3/opt.jpg", Instructions: "warm tones"})
	require.True(t, res.Success, res.FailureReason)
	assert.Equal(t, "https://cdn.ark/edited.jpg", res.EditedImageURL)
	assert.Equal(t, "https://s3/opt.jpg", captured.Image)
	assert.Equal(t, "warm tones", captured.Prompt)
	assert.Equal(t, "url", captured.ResponseFormat)
}

func TestSeedreamEditorAPIError(t *testing.T) {
	editor := NewSeedreamEditor(SeedreamOptions{
		APIKey: "ark",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return respond(400, "application/json", `{"error":{"code":"InvalidParameter","message":"image too small"}}`), nil
		})},
	})
	res := editor.Edit(context.Background(), EditRequest{ImageURL: "https://s3/opt.jpg", Instructions: "x"})
	assert.False(t, res.Success)
	assert.Contains(t, res.FailureReason, "image too small")
}

func TestStubEditorIsIdentity(t *testing.T) {
	res := StubEditor{}.Edit(context.Background(), EditRequest{ImageURL: "https://s3/opt.jpg"})
	assert.True(t, res.Success)
	assert.Equal(t, "https://s3/opt.jpg", res.EditedImageURL)

	res = StubEditor{}.Edit(context.Background(), EditRequest{})
	assert.False(t, res.Success)
}

func TestBuildEditInstruction(t *testing.T) {
	got := BuildEditInstruction(&Analysis{
		Description: "A cat on a sofa",
		Subjects:    []string{"cat", " "},
		Issues:      []string{"underexposed", "blue cast"},
	}, "Enhance contrast")

	for _, expect := range []string{
		"Enhance contrast.",
		"Photo: A cat on a sofa.",
		"Keep the main subjects intact: cat.",
		"Fix: underexposed, blue cast.",
		"Preserve composition",
	} {
		assert.Contains(t, got, expect)
	}
	assert.NotContains(t, got, "Consider:")

	assert.True(t, strings.HasPrefix(BuildEditInstruction(nil, ""), FallbackInstruction))
}
