package agent

import (
	"context"

	"github.com/mtessier/visiochat/internal/model"
)

// CompletionGateway issues one completion request against the generative
// engine for a full conversation history and returns the textual reply.
type CompletionGateway interface {
	Complete(ctx context.Context, history []model.Turn) (string, error)
}

// AssetPublisher uploads a staged file to the engine's asset store and
// returns a stable reference the engine can resolve later.
type AssetPublisher interface {
	Publish(ctx context.Context, path string, mediaType string) (model.AssetRef, error)
}
