// Package gemini generates text with the Google Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/JakeFAU/booth-harvest/internal/provider"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.0-flash-001"

// Sampling parameters applied to every request.
const (
	temperature = 0.2
	topK        = 40
	topP        = 0.95
)

// Config carries the API credentials and model.
type Config struct {
	APIKey string
	Model  string
}

type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client implements provider.Provider for Gemini.
type Client struct {
	models generator
	model  string
}

// New connects a genai client using the Gemini API backend.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required (set GEMINI_API_KEY)")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newClient(client.Models, cfg.Model), nil
}

func newClient(models generator, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{models: models, model: model}
}

// Name implements provider.Provider.
func (c *Client) Name() string { return provider.Gemini }

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Generate sends the prompt as a single user turn and returns the text reply.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](temperature),
		TopK:        genai.Ptr[float32](topK),
		TopP:        genai.Ptr[float32](topP),
	})
	if err != nil {
		return "", wrapError(err)
	}
	return resp.Text(), nil
}

func wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &provider.StatusError{Provider: provider.Gemini, Code: apiErr.Code, Message: apiErr.Status + ": " + apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &provider.StatusError{Provider: provider.Gemini, Code: apiErrPtr.Code, Message: apiErrPtr.Status + ": " + apiErrPtr.Message}
	}
	return fmt.Errorf("gemini generate: %w", err)
}
