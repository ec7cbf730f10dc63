package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"vitalis/internal/logging"
)

// =============================================================================
// GOOGLE GENAI GENERATION GATEWAY
// =============================================================================

// GenAIGateway implements Generator using Google's Gemini API.
type GenAIGateway struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// GenAIConfig configures the gateway.
type GenAIConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// DefaultGenAIConfig returns sensible defaults.
func DefaultGenAIConfig(apiKey string) GenAIConfig {
	return GenAIConfig{
		APIKey:  apiKey,
		Model:   "gemini-2.5-flash",
		Timeout: 5 * time.Minute,
	}
}

// NewGenAIGateway creates a new Gemini-backed gateway.
func NewGenAIGateway(cfg GenAIConfig) (*GenAIGateway, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIGateway{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}, nil
}

// Generate sends one generation request. When the request carries an output
// shape, the provider is asked for schema-constrained JSON and the response
// object is parsed and returned; otherwise plain text comes back.
func (g *GenAIGateway) Generate(ctx context.Context, req Request) (*Response, error) {
	// Auto-apply timeout if context has no deadline
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	startTime := time.Now()
	model := req.Params.Model
	if model == "" {
		model = g.model
	}
	logging.GatewayDebug("Generate: model=%s prompt_len=%d shaped=%t", model, len(req.Prompt), req.OutputShape != nil)

	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Params.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Params.Temperature))
	}
	if req.Params.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(req.Params.MaxOutputTokens)
	}
	if req.OutputShape != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = toGenAISchema(req.OutputShape)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(req.Prompt, genai.RoleUser),
	}

	result, err := g.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		logging.GatewayError("Generate: request failed after %v: %v", time.Since(startTime), err)
		if req.OutputShape != nil && strings.Contains(strings.ToLower(err.Error()), "schema") {
			return nil, ErrSchemaNotSupported
		}
		return nil, fmt.Errorf("generation request failed: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return nil, fmt.Errorf("no completion returned")
	}

	resp := &Response{}
	if result.UsageMetadata != nil {
		resp.Usage = Usage{
			PromptUnits:     int(result.UsageMetadata.PromptTokenCount),
			CompletionUnits: int(result.UsageMetadata.CandidatesTokenCount),
			TotalUnits:      int(result.UsageMetadata.TotalTokenCount),
		}
	}

	if req.OutputShape != nil {
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(text), &obj); err != nil {
			return nil, fmt.Errorf("structured output did not parse as JSON: %w", err)
		}
		resp.Object = obj
	} else {
		resp.Text = text
	}

	logging.Gateway("Generate: completed in %v model=%s units=%d shaped=%t",
		time.Since(startTime), model, resp.Usage.TotalUnits, req.OutputShape != nil)
	return resp, nil
}

// Close releases the underlying client. The google.golang.org/genai
// client holds no resources that require explicit closing.
func (g *GenAIGateway) Close() error {
	return nil
}
