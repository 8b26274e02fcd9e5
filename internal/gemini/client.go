// Package gemini adapts the genai SDK to the gateway interfaces the
// orchestrator depends on: content generation over a full history, and
// file upload into the Gemini asset store.
package gemini

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/mtessier/visiochat/internal/model"
)

// Options tune the generation request. Zero values fall back to the
// service defaults carried over from the original deployment.
type Options struct {
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int32
}

// Client implements agent.CompletionGateway and agent.AssetPublisher on
// top of one genai client.
type Client struct {
	client *genai.Client
	model  string
	opts   Options
}

// New wraps an existing genai client for the given model.
func New(client *genai.Client, modelName string, opts Options) *Client {
	return &Client{
		client: client,
		model:  modelName,
		opts:   opts,
	}
}

// Complete sends the full history to the model and returns the reply text.
func (c *Client) Complete(ctx context.Context, history []model.Turn) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, toContents(history), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(c.opts.Temperature),
		TopP:             genai.Ptr(c.opts.TopP),
		TopK:             genai.Ptr(c.opts.TopK),
		MaxOutputTokens:  c.opts.MaxOutputTokens,
		ResponseMIMEType: "text/plain",
	})
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini: empty completion for model %q", c.model)
	}

	return text, nil
}

// Publish uploads the staged file to the Gemini file store and returns
// the URI the model resolves when the history is replayed.
func (c *Client) Publish(ctx context.Context, path string, mediaType string) (model.AssetRef, error) {
	file, err := c.client.Files.UploadFromPath(ctx, path, &genai.UploadFileConfig{
		MIMEType:    mediaType,
		DisplayName: uuid.NewString(),
	})
	if err != nil {
		return model.AssetRef{}, fmt.Errorf("gemini: upload file: %w", err)
	}

	return model.AssetRef{URI: file.URI, MediaType: file.MIMEType}, nil
}

// toContents converts ledger turns into genai contents. Part order is
// preserved; caller maps to the user role, assistant to the model role.
func toContents(history []model.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		role := genai.RoleUser
		if turn.Role == model.RoleAssistant {
			role = genai.RoleModel
		}
		content := &genai.Content{
			Role:  role,
			Parts: make([]*genai.Part, 0, len(turn.Parts)),
		}
		for _, part := range turn.Parts {
			if part.AssetRef != nil {
				content.Parts = append(content.Parts, &genai.Part{
					FileData: &genai.FileData{
						FileURI:  part.AssetRef.URI,
						MIMEType: part.AssetRef.MediaType,
					},
				})
				continue
			}
			content.Parts = append(content.Parts, &genai.Part{Text: part.Text})
		}
		contents = append(contents, content)
	}
	return contents
}
