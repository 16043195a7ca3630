// Package openai implements receipt extraction with the OpenAI vision models.
package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/garyjia/agreement-validation/internal/application/port"
	"github.com/garyjia/agreement-validation/internal/domain/extraction"
)

// Config holds extractor settings
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Extractor implements port.InvoiceExtractor using the chat completions API
type Extractor struct {
	client  *openai.Client
	prompts *PromptConfig
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewExtractor creates an extractor. It returns a *extraction.ConfigurationError
// when no API key is configured; no request is ever made in that case.
func NewExtractor(cfg Config, prompts *PromptConfig, logger *zap.Logger) (*Extractor, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &extraction.ConfigurationError{Setting: "openai.api_key"}
	}
	if prompts == nil {
		var err error
		if prompts, err = LoadPrompts(""); err != nil {
			return nil, err
		}
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Extractor{
		client:  openai.NewClientWithConfig(clientCfg),
		prompts: prompts,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  logger,
	}, nil
}

// Extract sends the receipt pages to the model and returns its raw JSON answer
func (e *Extractor) Extract(ctx context.Context, images []port.ReceiptImage, categories []string) ([]byte, error) {
	if len(images) == 0 {
		return nil, extraction.NewExtractionFailure("no receipt image to read", nil)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	p := e.prompts.InvoiceExtraction
	prompt, err := renderTemplate(p.UserTemplate, promptData{Categories: categories, Pages: len(images)})
	if err != nil {
		return nil, err
	}

	parts := []openai.ChatMessagePart{{
		Type: openai.ChatMessagePartTypeText,
		Text: prompt,
	}}
	for _, img := range images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    fmt.Sprintf("data:%s;base64,%s", img.MimeType, base64.StdEncoding.EncodeToString(img.Data)),
				Detail: openai.ImageURLDetailHigh,
			},
		})
	}

	e.logger.Info("Extracting invoice data with Vision API",
		zap.String("model", e.model),
		zap.Int("pages", len(images)),
		zap.Int("categories", len(categories)))

	start := time.Now()
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: p.System,
			},
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: parts,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		e.logger.Error("Vision API call failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return nil, extraction.NewExtractionFailure("vision API call failed", err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, extraction.NewExtractionFailure("no response from Vision API", nil)
	}

	e.logger.Info("Invoice data extracted",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))

	return []byte(resp.Choices[0].Message.Content), nil
}

// Verify interface compliance
var _ port.InvoiceExtractor = (*Extractor)(nil)
