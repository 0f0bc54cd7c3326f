package nlu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/garyellow/whatsapp-commerce-bot/internal/logger"
)

// GeminiClassifier classifies intents with Gemini function calling.
type GeminiClassifier struct {
	client *genai.Client
	model  string
	tools  []*genai.Tool
	log    *logger.Logger
}

// NewGeminiClassifier returns nil without an API key.
func NewGeminiClassifier(ctx context.Context, apiKey, model string, log *logger.Logger) (*GeminiClassifier, error) {
	if apiKey == "" {
		return nil, nil //nolint:nilnil // Classifier disabled without a key
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiClassifier{
		client: client,
		model:  model,
		tools:  []*genai.Tool{{FunctionDeclarations: geminiDeclarations()}},
		log:    log.WithModule("nlu").WithField("provider", ProviderGemini),
	}, nil
}

func geminiDeclarations() []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(functions))
	for _, f := range functions {
		decl := &genai.FunctionDeclaration{
			Name:        f.name,
			Description: f.description,
			Parameters:  &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}},
		}
		if f.param != "" {
			decl.Parameters.Properties[f.param] = &genai.Schema{
				Type:        genai.TypeString,
				Description: f.paramDesc,
			}
			decl.Parameters.Required = []string{f.param}
		}
		decls = append(decls, decl)
	}
	return decls
}

// Classify asks the model to call exactly one function.
func (c *GeminiClassifier) Classify(ctx context.Context, text string) (Result, error) {
	config := &genai.GenerateContentConfig{
		Tools:             c.tools,
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ToolConfig: &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeAny,
			},
		},
		Temperature:     genai.Ptr[float32](0.1),
		MaxOutputTokens: 256,
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(text), config)
	if err != nil {
		c.log.WithError(err).Warnf("Gemini call failed after %s", time.Since(start).Round(time.Millisecond))
		return Result{}, fmt.Errorf("generate content: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Result{}, errors.New("empty response from model")
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.FunctionCall != nil {
			res, err := resultFor(part.FunctionCall.Name, part.FunctionCall.Args)
			if err == nil && resp.UsageMetadata != nil {
				c.log.WithFields(map[string]any{
					"function":     part.FunctionCall.Name,
					"total_tokens": resp.UsageMetadata.TotalTokenCount,
					"duration_ms":  time.Since(start).Milliseconds(),
				}).Debugf("Intent classified")
			}
			return res, err
		}
	}
	return Result{}, errors.New("no function call in response")
}

// Provider implements Classifier.
func (c *GeminiClassifier) Provider() Provider { return ProviderGemini }
