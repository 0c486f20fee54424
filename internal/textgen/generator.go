// Package textgen wraps the external text-generation collaborator used for
// automatic replies to inbound messages.
package textgen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/unclebandit/leadreach-backend/internal/model"
)

// generationErrorSentinel is the upstream collaborator's quirk: instead of a
// proper error it can return the failure as a string prefixed with this
// marker. The check is isolated here; callers only ever see ErrGenerationFailed.
const generationErrorSentinel = "[GENERATION_ERROR]"

// ErrGenerationFailed is returned whenever the collaborator fails, whether it
// raised an error or returned the sentinel-prefixed string.
var ErrGenerationFailed = errors.New("generation-failed")

// Generator produces a reply for a lead given its conversation history.
type Generator interface {
	GenerateMessage(ctx context.Context, lead *model.Lead, history []model.Message, template string, ch model.Channel) (string, error)
}

// translateResult applies the sentinel convention: an upstream error and a
// sentinel-prefixed reply are treated identically.
func translateResult(reply string, err error) (string, error) {
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	trimmed := strings.TrimSpace(reply)
	if strings.HasPrefix(trimmed, generationErrorSentinel) {
		reason := strings.TrimSpace(strings.TrimPrefix(trimmed, generationErrorSentinel))
		return "", fmt.Errorf("%w: %s", ErrGenerationFailed, reason)
	}
	return trimmed, nil
}
