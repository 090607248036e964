// Package llm talks to the hosted model that produces clinical analyses.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/and161185/clinical-insight/internal/errs"
)

const (
	DefaultBaseURL   = "https://generativelanguage.googleapis.com"
	DefaultModel     = "gemini-2.5-pro"
	DefaultMaxTokens = 8192
	DefaultTimeout   = 120 * time.Second
)

// InlineFile is an attachment sent with the prompt.
type InlineFile struct {
	Name     string
	MimeType string
	Data     []byte
}

// Request is one single-turn generation call.
type Request struct {
	System string
	Prompt string
	Files  []InlineFile
}

// Generator produces a text completion for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeminiConfig configures the generateContent client.
type GeminiConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration
}

// GeminiClient calls the Gemini generateContent REST endpoint.
type GeminiClient struct {
	apiKey     string
	model      string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
}

var _ Generator = (*GeminiClient)(nil)

// NewGeminiClient fills defaults for empty settings.
func NewGeminiClient(cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &GeminiClient{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	Error *geminiError `json:"error"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Generate sends the prompt and attachments and returns the concatenated text
// of the first candidate. Failures wrap errs.ErrUpstream.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	parts := []geminiPart{{Text: req.Prompt}}
	for _, f := range req.Files {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: f.MimeType,
			Data:     base64.StdEncoding.EncodeToString(f.Data),
		}})
	}
	body := geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: geminiGenerationConfig{MaxOutputTokens: c.maxTokens},
	}
	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: gemini request: %v", errs.ErrUpstream, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read gemini response: %v", errs.ErrUpstream, err)
	}

	var out geminiResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", fmt.Errorf("%w: gemini status %d: undecodable body", errs.ErrUpstream, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK || out.Error != nil {
		msg := http.StatusText(resp.StatusCode)
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return "", fmt.Errorf("%w: gemini status %d: %s", errs.ErrUpstream, resp.StatusCode, msg)
	}
	if len(out.Candidates) == 0 {
		reason := "no candidates"
		if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
			reason = "blocked: " + out.PromptFeedback.BlockReason
		}
		return "", fmt.Errorf("%w: gemini %s", errs.ErrUpstream, reason)
	}

	var b strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}

// Disabled is a Generator that always fails; used when no API key is configured.
type Disabled struct{}

func (Disabled) Generate(context.Context, Request) (string, error) {
	return "", fmt.Errorf("%w: analysis model is disabled", errs.ErrUpstream)
}
