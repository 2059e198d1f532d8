// Package llm resolves messy page titles into structured song metadata
// through a configurable language-model backend.
package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"scrobblerd/internal/core"
)

// Provider dispatches extraction calls to the configured backend client.
type Provider struct {
	config *core.LLMConfig
	logger *zap.Logger
	client Client
}

// Client is implemented by each LLM backend.
type Client interface {
	ExtractSongInfo(ctx context.Context, text string) (*core.ExtractedSong, error)
}

func NewProvider(config *core.LLMConfig, logger *zap.Logger) (*Provider, error) {
	var client Client
	var err error

	switch config.Provider {
	case "openai":
		client, err = NewOpenAIClient(config, logger)
	case "anthropic":
		client, err = NewAnthropicClient(config, logger)
	case "ollama":
		client, err = NewOllamaClient(config, logger)
	case "none", "":
		client = &NoOpClient{}
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", config.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", config.Provider, err)
	}

	return &Provider{
		config: config,
		logger: logger,
		client: client,
	}, nil
}

// Enabled reports whether a real backend is configured. With "none" the
// extraction pipeline stage is skipped entirely.
func (p *Provider) Enabled() bool {
	_, noop := p.client.(*NoOpClient)
	return !noop
}

func (p *Provider) ExtractSongInfo(ctx context.Context, text string) (*core.ExtractedSong, error) {
	extracted, err := p.client.ExtractSongInfo(ctx, text)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("LLM extraction completed",
		zap.String("input", text),
		zap.Bool("found", extracted.Found),
		zap.String("artist", extracted.Artist),
		zap.String("track", extracted.Track))

	return extracted, nil
}

// NoOpClient stands in when no LLM provider is configured.
type NoOpClient struct{}

func (n *NoOpClient) ExtractSongInfo(ctx context.Context, text string) (*core.ExtractedSong, error) {
	return nil, fmt.Errorf("LLM provider not configured")
}

var _ core.MetadataExtractor = (*Provider)(nil)
