package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtessier/visiochat/internal/attachment"
	"github.com/mtessier/visiochat/internal/model"
	"github.com/mtessier/visiochat/internal/session"
)

type fakeGateway struct {
	mu       sync.Mutex
	calls    int
	complete func(ctx context.Context, history []model.Turn) (string, error)
}

func (f *fakeGateway) Complete(ctx context.Context, history []model.Turn) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.complete != nil {
		return f.complete(ctx, history)
	}
	return "ok", nil
}

func (f *fakeGateway) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePublisher struct {
	mu      sync.Mutex
	calls   int
	paths   []string
	publish func(ctx context.Context, path, mediaType string) (model.AssetRef, error)
}

func (f *fakePublisher) Publish(ctx context.Context, path, mediaType string) (model.AssetRef, error) {
	f.mu.Lock()
	f.calls++
	f.paths = append(f.paths, path)
	f.mu.Unlock()
	if f.publish != nil {
		return f.publish(ctx, path, mediaType)
	}
	return model.AssetRef{URI: "files/fake", MediaType: mediaType}, nil
}

func newTestAgent(gw *fakeGateway, pub *fakePublisher) (*Agent, *session.Registry) {
	registry := session.NewRegistry()
	return New(registry, gw, pub, zerolog.Nop()), registry
}

func TestTextTurnOnFreshConversation(t *testing.T) {
	gw := &fakeGateway{complete: func(_ context.Context, history []model.Turn) (string, error) {
		// The snapshot already contains the caller's turn.
		require.Len(t, history, 1)
		require.Equal(t, model.RoleCaller, history[0].Role)
		require.Equal(t, "hello", history[0].Parts[0].Text)
		return "hi", nil
	}}
	a, registry := newTestAgent(gw, &fakePublisher{})

	result, err := a.Submit(context.Background(), TurnRequest{Prompt: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "hi", result.Reply)
	assert.Equal(t, "1", result.ConversationID)

	sess, err := registry.Get("1")
	require.NoError(t, err)
	snap := sess.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, model.RoleCaller, snap[0].Role)
	assert.Equal(t, model.RoleAssistant, snap[1].Role)
	assert.Equal(t, "hi", snap[1].Parts[0].Text)
}

func TestAttachmentTurnPartOrderAndRelease(t *testing.T) {
	pub := &fakePublisher{publish: func(_ context.Context, path, mediaType string) (model.AssetRef, error) {
		// The staged file must exist while the publisher runs.
		_, err := os.Stat(path)
		require.NoError(t, err)
		require.Equal(t, "image/jpeg", mediaType)
		return model.AssetRef{URI: "files/u", MediaType: mediaType}, nil
	}}
	a, registry := newTestAgent(&fakeGateway{}, pub)

	result, err := a.Submit(context.Background(), TurnRequest{
		Prompt:     "describe this",
		Attachment: []byte("jpeg bytes"),
		MediaType:  "image/jpeg",
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Reply)

	// Released after publishing.
	require.Len(t, pub.paths, 1)
	_, statErr := os.Stat(pub.paths[0])
	assert.True(t, os.IsNotExist(statErr))

	sess, err := registry.Get(result.ConversationID)
	require.NoError(t, err)
	snap := sess.Snapshot()
	require.Len(t, snap, 2)

	parts := snap[0].Parts
	require.Len(t, parts, 2)
	require.NotNil(t, parts[0].AssetRef)
	assert.Equal(t, "files/u", parts[0].AssetRef.URI)
	assert.Equal(t, "image/jpeg", parts[0].AssetRef.MediaType)
	assert.Equal(t, "describe this", parts[1].Text)
}

func TestStrictLookupMiss(t *testing.T) {
	gw := &fakeGateway{}
	a, registry := newTestAgent(gw, &fakePublisher{})

	_, err := a.Submit(context.Background(), TurnRequest{
		ConversationID: "missing-id",
		Prompt:         "hello",
		Strict:         true,
	})

	require.ErrorIs(t, err, session.ErrConversationNotFound)
	assert.Equal(t, 0, gw.callCount())
	assert.Equal(t, 0, registry.Len())
}

func TestStrictRequiresConversationID(t *testing.T) {
	a, _ := newTestAgent(&fakeGateway{}, &fakePublisher{})

	_, err := a.Submit(context.Background(), TurnRequest{Prompt: "hello", Strict: true})

	var missing *MissingFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "user_id", missing.Field)
}

func TestCompletionFailureKeepsCallerTurn(t *testing.T) {
	gw := &fakeGateway{complete: func(context.Context, []model.Turn) (string, error) {
		return "", errors.New("engine unavailable")
	}}
	a, registry := newTestAgent(gw, &fakePublisher{})

	_, err := a.Submit(context.Background(), TurnRequest{ConversationID: "alice", Prompt: "hello"})
	require.ErrorIs(t, err, ErrCompletionFailed)

	sess, getErr := registry.Get("alice")
	require.NoError(t, getErr)
	snap := sess.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, model.RoleCaller, snap[0].Role)
}

func TestPublishFailureLeavesLedgerUntouched(t *testing.T) {
	pub := &fakePublisher{publish: func(context.Context, string, string) (model.AssetRef, error) {
		return model.AssetRef{}, errors.New("upload refused")
	}}
	gw := &fakeGateway{}
	a, registry := newTestAgent(gw, pub)

	_, err := a.Submit(context.Background(), TurnRequest{
		ConversationID: "alice",
		Prompt:         "describe this",
		Attachment:     []byte("bytes"),
		MediaType:      "image/png",
	})

	require.ErrorIs(t, err, ErrAssetPublishFailed)
	assert.Equal(t, 0, gw.callCount())

	sess, getErr := registry.Get("alice")
	require.NoError(t, getErr)
	assert.Equal(t, 0, sess.Len())

	// Staged file released on the failure path too.
	require.Len(t, pub.paths, 1)
	_, statErr := os.Stat(pub.paths[0])
	assert.True(t, os.IsNotExist(statErr))
}

func TestStagingFailureAbortsBeforeLedgerMutation(t *testing.T) {
	// Point the temp dir at a path that does not exist so staging the
	// attachment fails before anything else happens.
	t.Setenv("TMPDIR", filepath.Join(t.TempDir(), "missing"))

	gw := &fakeGateway{}
	pub := &fakePublisher{}
	a, registry := newTestAgent(gw, pub)

	_, err := a.Submit(context.Background(), TurnRequest{
		ConversationID: "alice",
		Prompt:         "describe this",
		Attachment:     []byte("bytes"),
		MediaType:      "image/jpeg",
	})

	require.ErrorIs(t, err, attachment.ErrStagingFailed)
	assert.Equal(t, 0, gw.callCount())
	assert.Equal(t, 0, pub.calls)

	sess, getErr := registry.Get("alice")
	require.NoError(t, getErr)
	assert.Equal(t, 0, sess.Len())
}

func TestResetKeywordSkipsEngineAndStaging(t *testing.T) {
	gw := &fakeGateway{}
	pub := &fakePublisher{}
	a, registry := newTestAgent(gw, pub)

	_, err := a.Submit(context.Background(), TurnRequest{ConversationID: "alice", Prompt: "hello"})
	require.NoError(t, err)
	require.Equal(t, 1, gw.callCount())

	for _, prompt := range []string{"stop", "STOP", "  Stop  ", "\tstop\n"} {
		result, err := a.Submit(context.Background(), TurnRequest{
			ConversationID: "alice",
			Prompt:         prompt,
			Attachment:     []byte("ignored"),
			MediaType:      "image/jpeg",
		})
		require.NoError(t, err)
		assert.Equal(t, resetAck, result.Reply)
		assert.Equal(t, "alice", result.ConversationID)
	}

	// Neither the engine nor the publisher saw the reset turns.
	assert.Equal(t, 1, gw.callCount())
	assert.Equal(t, 0, pub.calls)

	sess, err := registry.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, 0, sess.Len())
}

func TestResetKeywordIsExactWord(t *testing.T) {
	gw := &fakeGateway{}
	a, registry := newTestAgent(gw, &fakePublisher{})

	_, err := a.Submit(context.Background(), TurnRequest{ConversationID: "alice", Prompt: "please stop doing that"})
	require.NoError(t, err)

	assert.Equal(t, 1, gw.callCount())
	sess, getErr := registry.Get("alice")
	require.NoError(t, getErr)
	assert.Equal(t, 2, sess.Len())
}

func TestEmptyPromptRejectedBeforeLookup(t *testing.T) {
	a, registry := newTestAgent(&fakeGateway{}, &fakePublisher{})

	for _, prompt := range []string{"", "   ", "\n\t"} {
		_, err := a.Submit(context.Background(), TurnRequest{Prompt: prompt})

		var missing *MissingFieldError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, "prompt", missing.Field)
	}

	// No conversation was minted for the rejected turns.
	assert.Equal(t, 0, registry.Len())
}

func TestHistoryAndClear(t *testing.T) {
	a, _ := newTestAgent(&fakeGateway{}, &fakePublisher{})

	_, err := a.Submit(context.Background(), TurnRequest{ConversationID: "alice", Prompt: "hello"})
	require.NoError(t, err)

	turns, err := a.History("alice")
	require.NoError(t, err)
	assert.Len(t, turns, 2)

	_, err = a.History("missing-id")
	require.ErrorIs(t, err, session.ErrConversationNotFound)

	a.Clear("alice")
	turns, err = a.History("alice")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestConcurrentSubmitsSameConversation(t *testing.T) {
	const (
		submitters = 4
		turns      = 5
	)

	gw := &fakeGateway{complete: func(_ context.Context, history []model.Turn) (string, error) {
		// Under the turn lock the snapshot always ends with the caller
		// turn that triggered this call.
		last := history[len(history)-1]
		if last.Role != model.RoleCaller {
			return "", fmt.Errorf("snapshot ends with %q", last.Role)
		}
		return "ok", nil
	}}
	a, registry := newTestAgent(gw, &fakePublisher{})

	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < turns; j++ {
				_, err := a.Submit(context.Background(), TurnRequest{
					ConversationID: "shared",
					Prompt:         fmt.Sprintf("submitter-%d-turn-%d", i, j),
				})
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	sess, err := registry.Get("shared")
	require.NoError(t, err)
	snap := sess.Snapshot()
	require.Len(t, snap, submitters*turns*2)

	// Full serialization: every caller turn is immediately followed by
	// its assistant turn.
	for i, turn := range snap {
		if i%2 == 0 {
			assert.Equal(t, model.RoleCaller, turn.Role, "index %d", i)
		} else {
			assert.Equal(t, model.RoleAssistant, turn.Role, "index %d", i)
		}
	}
}
