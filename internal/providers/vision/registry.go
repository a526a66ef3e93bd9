package vision

import (
	"context"
	"fmt"
	"net/http"

	"photoflow/internal/infra"
	"photoflow/internal/providers/genai"
)

// Config selects and configures the providers for one process.
type Config struct {
	Analysis   Kind
	Editing    Kind
	Gemini     genai.Options
	Seedream   SeedreamOptions
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Registry holds the providers resolved at boot. It is built once and
// passed to the worker by reference.
type Registry struct {
	Analyzer Analyzer
	Editor   Editor
}

// Health is the per-capability health of a registry.
type Health struct {
	Analysis      bool   `json:"analysis"`
	Editing       bool   `json:"editing"`
	AnalysisError string `json:"analysisError,omitempty"`
	EditingError  string `json:"editingError,omitempty"`
}

// OK reports whether every provider is healthy.
func (h Health) OK() bool { return h.Analysis && h.Editing }

// NewRegistry builds the configured providers. Unknown or unsupported kinds
// fail here rather than at first use.
func NewRegistry(cfg Config) (*Registry, error) {
	analysis, err := ParseKind(string(cfg.Analysis), CapabilityAnalysis)
	if err != nil {
		return nil, err
	}
	editing, err := ParseKind(string(cfg.Editing), CapabilityEditing)
	if err != nil {
		return nil, err
	}

	var gemini *genai.Client
	geminiClient := func() (*genai.Client, error) {
		if gemini != nil {
			return gemini, nil
		}
		opts := cfg.Gemini
		if opts.HTTPClient == nil {
			opts.HTTPClient = cfg.HTTPClient
		}
		if opts.Logger == nil {
			opts.Logger = cfg.Logger
		}
		if opts.APIKey == "" {
			return nil, fmt.Errorf("vision: gemini selected but no api key configured")
		}
		c, err := genai.NewClient(opts)
		if err != nil {
			return nil, err
		}
		gemini = c
		return gemini, nil
	}

	reg := &Registry{}
	switch analysis {
	case KindGemini:
		c, err := geminiClient()
		if err != nil {
			return nil, err
		}
		reg.Analyzer = NewGeminiAnalyzer(c)
	case KindStub:
		reg.Analyzer = StubAnalyzer{}
	}

	switch editing {
	case KindGemini:
		c, err := geminiClient()
		if err != nil {
			return nil, err
		}
		reg.Editor = NewGeminiEditor(c)
	case KindSeedream:
		opts := cfg.Seedream
		if opts.HTTPClient == nil {
			opts.HTTPClient = cfg.HTTPClient
		}
		if opts.Logger == nil {
			opts.Logger = cfg.Logger
		}
		if opts.APIKey == "" {
			return nil, fmt.Errorf("vision: seedream selected but no api key configured")
		}
		reg.Editor = NewSeedreamEditor(opts)
	case KindStub:
		reg.Editor = StubEditor{}
	}
	return reg, nil
}

// HealthCheck probes both providers.
func (r *Registry) HealthCheck(ctx context.Context) Health {
	var h Health
	if err := r.Analyzer.HealthCheck(ctx); err != nil {
		h.AnalysisError = err.Error()
	} else {
		h.Analysis = true
	}
	if err := r.Editor.HealthCheck(ctx); err != nil {
		h.EditingError = err.Error()
	} else {
		h.Editing = true
	}
	return h
}
