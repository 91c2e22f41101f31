package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Defaults for the OpenAI-compatible provider.
const (
	DefaultBaseURL   = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	DefaultModel     = "text-embedding-v4"
	DefaultDimension = 1024
	DefaultTimeout   = 30 * time.Second
)

// OpenAIConfig configures the OpenAI-compatible embedder.
type OpenAIConfig struct {
	// BaseURL of the API (default: DashScope compatible mode).
	BaseURL string
	// APIKey is sent as a bearer token.
	APIKey string
	// Model name (default: text-embedding-v4).
	Model string
	// Dimension of returned vectors (default: 1024).
	Dimension int
	// Timeout bounds each request when HTTPClient is nil (default: 30s).
	Timeout time.Duration
	// HTTPClient overrides the client used for requests.
	HTTPClient *http.Client
}

// OpenAI embeds text through an OpenAI-compatible /embeddings endpoint.
type OpenAI struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	model     string
	dimension int
}

type openaiRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	Dimensions     *int     `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

type openaiResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

type openaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// NewOpenAI creates an OpenAI-compatible embedder, filling defaults for
// empty fields.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &OpenAI{
		client:    client,
		baseURL:   baseURL,
		apiKey:    cfg.APIKey,
		model:     model,
		dimension: dimension,
	}
}

// Dimension returns the configured vector length.
func (e *OpenAI) Dimension() int { return e.dimension }

// Model returns the configured model name.
func (e *OpenAI) Model() string { return e.model }

// Embed returns the embedding of text.
func (e *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	reqBody := openaiRequest{
		Model:          e.model,
		Input:          []string{text},
		EncodingFormat: "float",
	}
	if supportsDimensions(e.model) {
		dim := e.dimension
		reqBody.Dimensions = &dim
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrProvider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr openaiErrorResponse
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}

	var parsed openaiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrProvider, err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: response contained no embedding", ErrProvider)
	}

	vec := parsed.Data[0].Embedding
	if err := checkDimension(vec, e.dimension); err != nil {
		return nil, err
	}
	return vec, nil
}

// supportsDimensions reports whether the model accepts the dimensions
// request parameter. Older models reject it.
func supportsDimensions(model string) bool {
	switch {
	case strings.HasPrefix(model, "text-embedding-3"):
		return true
	case model == "text-embedding-v3", model == "text-embedding-v4":
		return true
	default:
		return false
	}
}
