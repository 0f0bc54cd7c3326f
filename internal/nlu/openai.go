package nlu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/garyellow/whatsapp-commerce-bot/internal/logger"
)

// OpenAIClassifier classifies intents through an OpenAI-compatible chat
// completions API. Groq is the configured provider.
type OpenAIClassifier struct {
	client   openai.Client
	model    string
	tools    []openai.ChatCompletionToolUnionParam
	provider Provider
	log      *logger.Logger
}

// NewGroqClassifier returns nil without an API key.
func NewGroqClassifier(apiKey, model string, log *logger.Logger) *OpenAIClassifier {
	if apiKey == "" {
		return nil
	}
	if model == "" {
		model = DefaultGroqModel
	}
	return newOpenAIClassifier(ProviderGroq, GroqBaseURL, apiKey, model, log)
}

func newOpenAIClassifier(provider Provider, baseURL, apiKey, model string, log *logger.Logger) *OpenAIClassifier {
	return &OpenAIClassifier{
		client: openai.NewClient(
			option.WithBaseURL(baseURL),
			option.WithAPIKey(apiKey),
			option.WithMaxRetries(0),
		),
		model:    model,
		tools:    openAITools(),
		provider: provider,
		log:      log.WithModule("nlu").WithField("provider", provider),
	}
}

func openAITools() []openai.ChatCompletionToolUnionParam {
	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(functions))
	for _, f := range functions {
		properties := map[string]any{}
		required := []string{}
		if f.param != "" {
			properties[f.param] = map[string]string{
				"type":        "string",
				"description": f.paramDesc,
			}
			required = append(required, f.param)
		}
		tools = append(tools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        f.name,
			Description: openai.String(f.description),
			Parameters: openai.FunctionParameters{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		}))
	}
	return tools
}

// Classify forces a tool call with tool_choice "required".
func (c *OpenAIClassifier) Classify(ctx context.Context, text string) (Result, error) {
	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(text),
		},
		Tools: c.tools,
		ToolChoice: openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String(string(openai.ChatCompletionToolChoiceOptionAutoRequired)),
		},
		Temperature: openai.Float(0.1),
		MaxTokens:   openai.Int(256),
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		c.log.WithError(err).Warnf("Chat completion failed after %s", time.Since(start).Round(time.Millisecond))
		return Result{}, fmt.Errorf("chat completion: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return Result{}, errors.New("empty response from model")
	}

	calls := resp.Choices[0].Message.ToolCalls
	if len(calls) == 0 {
		return Result{}, errors.New("no tool call in response")
	}
	call := calls[0].Function
	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return Result{}, fmt.Errorf("decode tool arguments: %w", err)
		}
	}

	res, err := resultFor(call.Name, args)
	if err == nil {
		c.log.WithFields(map[string]any{
			"function":     call.Name,
			"total_tokens": resp.Usage.TotalTokens,
			"duration_ms":  time.Since(start).Milliseconds(),
		}).Debugf("Intent classified")
	}
	return res, err
}

// Provider implements Classifier.
func (c *OpenAIClassifier) Provider() Provider { return c.provider }
