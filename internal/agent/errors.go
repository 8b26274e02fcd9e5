package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrAssetPublishFailed wraps failures uploading an attachment to the
	// engine's asset store. The ledger is untouched when this is returned.
	ErrAssetPublishFailed = errors.New("asset publish failed")

	// ErrCompletionFailed wraps failures of the completion call itself.
	// The caller's turn is already recorded when this is returned; no
	// assistant turn is appended. Callers retry the whole turn.
	ErrCompletionFailed = errors.New("completion failed")
)

// MissingFieldError reports a required request field that was absent or
// empty after trimming.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}
