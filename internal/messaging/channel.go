// Package messaging provides the delivery channels PromptDeck notifies through.
//
// The in-app channel keeps a bounded in-process feed of notices; the native
// channel pushes notices through an external sender (Twilio or WhatsApp) and
// reports whether that sender is currently permitted to deliver.
package messaging

import (
	"context"
	"errors"

	"github.com/BTreeMap/PromptDeck/internal/models"
)

// Constants for channel configuration
const (
	// DefaultChannelBufferSize defines the buffer of each live notice subscription
	DefaultChannelBufferSize = 100
	// DefaultFeedCapacity is the number of notices the in-app feed retains
	DefaultFeedCapacity = 50
)

// ErrServiceStopped is returned when delivering through a stopped channel.
var ErrServiceStopped = errors.New("messaging service stopped")

// Channel delivers notices to the user.
type Channel interface {
	// Name identifies the channel kind.
	Name() models.DeliveryChannel
	// Deliver presents the notice to the user.
	Deliver(ctx context.Context, notice models.Notice) error
}

// PermissionProber reports whether a channel may deliver.
type PermissionProber interface {
	RequestPermission(ctx context.Context) (models.Permission, error)
}
