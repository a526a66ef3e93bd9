package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"photoflow/internal/infra"
)

// ErrMissingAPIKey indicates that the Seedream editor has no credentials.
var ErrMissingAPIKey = errors.New("seedream: api key is required")

// SeedreamOptions configures the BytePlus ModelArk Seedream editor.
type SeedreamOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// SeedreamEditor edits photos through the ARK images/generations endpoint.
// It has no analysis capability.
type SeedreamEditor struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

type seedreamRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Image          string `json:"image"`
	ResponseFormat string `json:"response_format"`
	Size           string `json:"size,omitempty"`
	Watermark      bool   `json:"watermark"`
}

type seedreamResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewSeedreamEditor(opts SeedreamOptions) *SeedreamEditor {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://ark.ap-southeast.bytepluses.com/api/v3"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "seedream-4-0-250828"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	return &SeedreamEditor{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (e *SeedreamEditor) Name() string { return string(KindSeedream) }

func (e *SeedreamEditor) Edit(ctx context.Context, req EditRequest) EditResult {
	if e.apiKey == "" {
		return editFailure("%v", ErrMissingAPIKey)
	}
	instruction := strings.TrimSpace(req.Instructions)
	if instruction == "" {
		instruction = BuildEditInstruction(req.Analysis, "")
	}
	payload := seedreamRequest{
		Model:          e.model,
		Prompt:         instruction,
		Image:          req.ImageURL,
		ResponseFormat: "url",
		Size:           "adaptive",
		Watermark:      false,
	}
	var resp seedreamResponse
	if err := e.post(ctx, "/images/generations", payload, &resp); err != nil {
		return editFailure("seedream edit: %v", err)
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return editFailure("seedream edit: %s: %s", resp.Error.Code, resp.Error.Message)
	}
	for _, item := range resp.Data {
		if strings.TrimSpace(item.URL) != "" {
			e.logger.Debug().Str("model", e.model).Msg("seedream: edited image")
			return EditResult{Success: true, EditedImageURL: item.URL}
		}
	}
	return editFailure("seedream edit: response contained no image")
}

// HealthCheck lists models; any 2xx means the key and endpoint work.
func (e *SeedreamEditor) HealthCheck(ctx context.Context) error {
	if e.apiKey == "" {
		return ErrMissingAPIKey
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("seedream health: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("seedream status %d", resp.StatusCode)
	}
	return nil
}

func (e *SeedreamEditor) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke seedream: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr seedreamResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != nil && apiErr.Error.Message != "" {
			return fmt.Errorf("seedream status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("seedream status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode seedream response: %w", err)
	}
	return nil
}

var _ Editor = (*SeedreamEditor)(nil)
