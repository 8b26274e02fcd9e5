// Package agent runs the per-request turn algorithm: resolve the
// conversation, stage and publish an optional attachment, append the
// caller's turn, call the completion engine with the accumulated history,
// and record the reply.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mtessier/visiochat/internal/attachment"
	"github.com/mtessier/visiochat/internal/model"
	"github.com/mtessier/visiochat/internal/session"
)

// resetKeyword clears the conversation when sent as the whole prompt,
// matched case-insensitively after trimming. Substring matches do not
// count.
const resetKeyword = "stop"

// resetAck is returned for a reset turn; the engine is never contacted.
const resetAck = "Conversation history cleared."

// TurnRequest carries one incoming turn.
type TurnRequest struct {
	// ConversationID is the caller's identity token. Empty is allowed in
	// lenient mode and mints a server-assigned id.
	ConversationID string
	// Prompt is mandatory on every turn, including attachment turns.
	Prompt string
	// Attachment is the optional raw binary payload, with its declared
	// media type.
	Attachment []byte
	MediaType  string
	// Strict requires ConversationID to name an existing conversation
	// instead of auto-creating one.
	Strict bool
}

// TurnResult is the successful outcome of a turn.
type TurnResult struct {
	Reply          string
	ConversationID string
}

// Agent orchestrates turns over an injected registry and engine adapters.
type Agent struct {
	registry  *session.Registry
	gateway   CompletionGateway
	publisher AssetPublisher
	logger    zerolog.Logger
}

// New creates an Agent. All collaborators are required.
func New(registry *session.Registry, gateway CompletionGateway, publisher AssetPublisher, logger zerolog.Logger) *Agent {
	return &Agent{
		registry:  registry,
		gateway:   gateway,
		publisher: publisher,
		logger:    logger,
	}
}

// Submit runs one turn end to end.
//
// Failure modes bound the side effects: validation, lookup, staging and
// publish failures leave the ledger exactly as it was. A completion
// failure leaves the caller's turn recorded with no assistant turn; that
// dangling turn is deliberate, the history keeps the caller's attempt.
func (a *Agent) Submit(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, &MissingFieldError{Field: "prompt"}
	}

	var sess *session.Session
	if req.Strict {
		if req.ConversationID == "" {
			return nil, &MissingFieldError{Field: "user_id"}
		}
		var err error
		sess, err = a.registry.Get(req.ConversationID)
		if err != nil {
			return nil, err
		}
	} else {
		_, sess = a.registry.Resolve(req.ConversationID)
	}
	id := sess.ID()

	// A reset turn must be side-effect-free apart from clearing history:
	// checked before any staging or ledger mutation.
	if strings.EqualFold(prompt, resetKeyword) {
		a.registry.Reset(id)
		a.logger.Info().Str("conversation_id", id).Msg("conversation reset")
		return &TurnResult{Reply: resetAck, ConversationID: id}, nil
	}

	var parts []model.Part
	if len(req.Attachment) > 0 {
		ref, err := a.publishAttachment(ctx, req.Attachment, req.MediaType)
		if err != nil {
			return nil, err
		}
		parts = append(parts, model.AssetPart(ref))
	}
	parts = append(parts, model.TextPart(prompt))

	// The turn lock spans from the caller append to the assistant append
	// so concurrent turns on one conversation serialize; other
	// conversations proceed independently.
	sess.Lock()
	defer sess.Unlock()

	sess.Append(model.CallerTurn(parts...))

	reply, err := a.gateway.Complete(ctx, sess.Snapshot())
	if err != nil {
		// No rollback: the ledger keeps the caller's turn.
		a.logger.Error().Err(err).Str("conversation_id", id).Msg("completion failed")
		return nil, fmt.Errorf("%w: %v", ErrCompletionFailed, err)
	}

	sess.Append(model.AssistantTurn(reply))

	a.logger.Debug().
		Str("conversation_id", id).
		Int("history_len", sess.Len()).
		Msg("turn completed")

	return &TurnResult{Reply: reply, ConversationID: id}, nil
}

// History returns a snapshot of an existing conversation.
func (a *Agent) History(id string) ([]model.Turn, error) {
	sess, err := a.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return sess.Snapshot(), nil
}

// Clear resets the conversation under id, creating it if absent.
func (a *Agent) Clear(id string) {
	a.registry.Reset(id)
	a.logger.Info().Str("conversation_id", id).Msg("conversation reset")
}

// publishAttachment stages the payload and uploads it. The staged file is
// released as soon as publishing finishes, on success and failure alike.
func (a *Agent) publishAttachment(ctx context.Context, payload []byte, mediaType string) (model.AssetRef, error) {
	staged, err := attachment.Stage(payload, mediaType)
	if err != nil {
		return model.AssetRef{}, err
	}
	defer func() {
		if rerr := staged.Release(); rerr != nil {
			a.logger.Warn().Err(rerr).Str("path", staged.Path()).Msg("release staged attachment")
		}
	}()

	ref, err := a.publisher.Publish(ctx, staged.Path(), staged.MediaType())
	if err != nil {
		return model.AssetRef{}, fmt.Errorf("%w: %v", ErrAssetPublishFailed, err)
	}

	return ref, nil
}
