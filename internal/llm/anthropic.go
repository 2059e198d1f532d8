package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"scrobblerd/internal/core"
)

type AnthropicClient struct {
	config *core.LLMConfig
	logger *zap.Logger
	client *anthropic.Client
}

const defaultAnthropicModel = "claude-3-haiku-20240307"

func NewAnthropicClient(config *core.LLMConfig, logger *zap.Logger) (*AnthropicClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	var opts []option.RequestOption
	opts = append(opts, option.WithAPIKey(config.APIKey))

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	client := anthropic.NewClient(opts...)

	return &AnthropicClient{
		config: config,
		logger: logger,
		client: &client,
	}, nil
}

func (a *AnthropicClient) ExtractSongInfo(ctx context.Context, text string) (*core.ExtractedSong, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty text provided")
	}

	model := a.config.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokensExtraction,
		System: []anthropic.TextBlockParam{{
			Type: "text",
			Text: extractSongPrompt,
		}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
		Temperature: anthropic.Float(defaultTemperature),
	})
	if err != nil {
		return nil, fmt.Errorf("Anthropic API call failed: %w", err)
	}

	if len(message.Content) == 0 {
		return nil, fmt.Errorf("no response from Anthropic")
	}

	content := message.Content[0].Text

	var response SongExtractResponse
	if err := json.Unmarshal([]byte(content), &response); err != nil {
		a.logger.Error("Failed to parse Anthropic response", zap.Error(err), zap.String("content", content))
		return nil, fmt.Errorf("failed to parse Anthropic response: %w", err)
	}

	if !response.Found {
		a.logger.Debug("No song found in text", zap.String("reason", response.Reason))
		return &core.ExtractedSong{Found: false}, nil
	}

	return &core.ExtractedSong{
		Found:  true,
		Artist: response.Artist,
		Track:  response.Track,
		Album:  response.Album,
	}, nil
}
