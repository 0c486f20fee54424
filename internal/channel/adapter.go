// Package channel holds the uniform send contract over heterogeneous
// messaging channels and the adapters implementing it.
package channel

import (
	"context"

	"github.com/unclebandit/leadreach-backend/internal/model"
)

// Adapter is the per-channel transport. Adapters return the provider's
// message ID on success and a classified *appErrors.DispatchError on every
// expected failure mode; anything else is normalized by the dispatcher.
type Adapter interface {
	Channel() model.Channel
	TransportMethod() model.TransportMethod
	Send(ctx context.Context, contact, content string) (providerMessageID string, err error)
}
