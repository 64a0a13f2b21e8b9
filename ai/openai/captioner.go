package openai

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/poiesic/querysafe/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrEmptyCaption is returned when the model produces no description.
var ErrEmptyCaption = errors.New("model returned no caption")

// Captioner implements ai.Captioner using an OpenAI-compatible vision model.
type Captioner struct {
	client llms.Model
	logger *slog.Logger
}

func newCaptioner(config *ai.Config) (*Captioner, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.GenerationHost),
		openai.WithToken(config.APIToken),
		openai.WithModel(config.CaptionModel),
	)
	if err != nil {
		return nil, err
	}

	return &Captioner{
		client: client,
		logger: slog.Default().With("component", "openai-captioner"),
	}, nil
}

// NewCaptioner creates a new captioner using the provided configuration.
//
// Returns ai.Captioner interface to enforce abstraction.
func NewCaptioner(config *ai.Config) (ai.Captioner, error) {
	return newCaptioner(config)
}

// Caption asks the vision model to describe the image.
func (c *Captioner) Caption(ctx context.Context, image []byte, mimeType string) (string, error) {
	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{
				llms.TextPart(captionSystemPrompt),
			},
		},
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(captionUserPrompt),
				llms.BinaryPart(mimeType, image),
			},
		},
	}

	response, err := c.client.GenerateContent(ctx, content, llms.WithTemperature(0.0))
	if err != nil {
		c.logger.Error("failed to caption image", "mime", mimeType, "size", len(image), "err", err)
		return "", err
	}
	if len(response.Choices) < 1 {
		return "", ErrEmptyCaption
	}

	caption := strings.TrimSpace(response.Choices[0].Content)
	if caption == "" {
		return "", ErrEmptyCaption
	}
	c.logger.Debug("captioned image", "mime", mimeType, "length", len(caption))
	return caption, nil
}
