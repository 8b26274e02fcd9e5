package model

// Role identifies which side of the conversation produced a turn.
type Role string

const (
	// RoleCaller marks turns submitted by the requesting user.
	RoleCaller Role = "user"
	// RoleAssistant marks turns produced by the completion engine.
	RoleAssistant Role = "assistant"
)

// AssetRef points at a binary asset already uploaded to the engine's
// file store. The engine resolves the URI when the history is replayed.
type AssetRef struct {
	URI       string `json:"uri"`
	MediaType string `json:"media_type"`
}

// Part is a single piece of a conversation turn: either inline text or a
// reference to an uploaded asset. Exactly one field is set.
type Part struct {
	Text     string    `json:"text,omitempty"`
	AssetRef *AssetRef `json:"asset_ref,omitempty"`
}

// TextPart builds a text-only part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// AssetPart builds a part referencing an uploaded asset.
func AssetPart(ref AssetRef) Part {
	return Part{AssetRef: &ref}
}

// Turn is a single conversation entry. Part order is meaningful: the
// engine consumes parts in sequence.
type Turn struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// CallerTurn builds a turn attributed to the caller.
func CallerTurn(parts ...Part) Turn {
	return Turn{Role: RoleCaller, Parts: parts}
}

// AssistantTurn builds a text-only turn attributed to the assistant.
func AssistantTurn(text string) Turn {
	return Turn{Role: RoleAssistant, Parts: []Part{TextPart(text)}}
}
