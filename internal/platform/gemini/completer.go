package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/phrazzld/llmbatch/internal/config"
	"github.com/phrazzld/llmbatch/internal/generation"
)

// Supported provider names.
const (
	ProviderGemini = "gemini"
	ProviderVertex = "vertex"
)

// contentGenerator is the subset of the genai models service the completer
// uses; *genai.Models satisfies it.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content,
		config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Completer implements generation.Completer on top of the genai client.
type Completer struct {
	models contentGenerator
	logger *slog.Logger
}

var _ generation.Completer = (*Completer)(nil)

// NewCompleter creates a Completer for the configured provider.
//
// Parameters:
//   - ctx: Context used while creating the client
//   - cfg: LLM configuration; gemini needs an API key, vertex a project and location
//   - logger: A structured logger for operation logging
//
// Returns:
//   - A Completer or an error wrapping generation.ErrInvalidConfig
func NewCompleter(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*Completer, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	var clientConfig *genai.ClientConfig
	switch cfg.Provider {
	case ProviderGemini, "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
		}
		clientConfig = &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		}
	case ProviderVertex:
		if cfg.Project == "" {
			return nil, fmt.Errorf("%w: vertex project cannot be empty", generation.ErrInvalidConfig)
		}
		clientConfig = &genai.ClientConfig{
			Project:  cfg.Project,
			Location: cfg.Location,
			Backend:  genai.BackendVertexAI,
		}
	default:
		return nil, fmt.Errorf("%w: unsupported provider %q", generation.ErrInvalidConfig, cfg.Provider)
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create genai client: %v", generation.ErrInvalidConfig, err)
	}

	return newCompleter(client.Models, logger), nil
}

func newCompleter(models contentGenerator, logger *slog.Logger) *Completer {
	return &Completer{models: models, logger: logger}
}

// Complete performs a single generate-content request.
func (c *Completer) Complete(ctx context.Context, req generation.Request) (*generation.Response, error) {
	model := modelName(req)
	contents, cfg, err := buildRequest(req)
	if err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "calling gemini",
		slog.String("model", model),
		slog.Int("messages", len(req.Messages)))

	resp, err := c.models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, classify(err)
	}
	return parseResponse(model, resp)
}

// modelName strips a provider prefix such as "gemini/".
func modelName(req generation.Request) string {
	if req.Provider != "" {
		return strings.TrimPrefix(req.Model, req.Provider+"/")
	}
	return req.Model
}

func buildRequest(req generation.Request) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	var system []*genai.Part
	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case generation.RoleSystem:
			system = append(system, &genai.Part{Text: m.Content})
		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: m.Content}},
			})
		}
	}
	if len(contents) == 0 {
		return nil, nil, fmt.Errorf("%w: %w", generation.ErrCompletionFailed, ErrNoMessages)
	}
	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: system}
	}
	return contents, cfg, nil
}

func parseResponse(model string, resp *genai.GenerateContentResponse) (*generation.Response, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil, fmt.Errorf("%w: no candidates", generation.ErrInvalidResponse)
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("%w: %w", generation.ErrCompletionFailed, ErrContentBlocked)
	}
	if candidate.Content == nil {
		return nil, fmt.Errorf("%w: empty content", generation.ErrInvalidResponse)
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}

	return &generation.Response{
		Text:         text.String(),
		Model:        model,
		FinishReason: string(candidate.FinishReason),
	}, nil
}
