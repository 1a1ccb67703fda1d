package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/PromptDeck/internal/models"
)

// ErrInvalidRecipient marks a malformed phone number.
var ErrInvalidRecipient = fmt.Errorf("%w: invalid phone number", models.ErrValidation)

// PushSender is a native push backend. twiliowhatsapp.Client and
// whatsapp.Client both satisfy it.
type PushSender interface {
	SendMessage(ctx context.Context, to string, body string) error
	Authorized(ctx context.Context) (bool, error)
}

// NativeChannel pushes notices to one recipient through a PushSender.
type NativeChannel struct {
	sender    PushSender
	recipient string
}

// NewNativeChannel validates the recipient and builds the channel.
func NewNativeChannel(sender PushSender, recipient string) (*NativeChannel, error) {
	if sender == nil {
		return nil, errors.New("native channel requires a push sender")
	}
	canonical, err := CanonicalizeRecipient(recipient)
	if err != nil {
		return nil, err
	}
	return &NativeChannel{sender: sender, recipient: canonical}, nil
}

// Name implements Channel.
func (c *NativeChannel) Name() models.DeliveryChannel { return models.ChannelNative }

// Deliver sends the notice title and body as one message.
func (c *NativeChannel) Deliver(ctx context.Context, notice models.Notice) error {
	body := strings.TrimSpace(notice.Title + "\n" + notice.Body)
	if err := c.sender.SendMessage(ctx, c.recipient, body); err != nil {
		return fmt.Errorf("%w: native delivery: %w", models.ErrTransientIO, err)
	}
	slog.Debug("NativeChannel.Deliver: notice pushed", "noticeID", notice.ID, "packID", notice.PackID)
	return nil
}

// RequestPermission maps the sender's authorisation to a permission state.
// A failed probe leaves the state undecided.
func (c *NativeChannel) RequestPermission(ctx context.Context) (models.Permission, error) {
	ok, err := c.sender.Authorized(ctx)
	if err != nil {
		return models.PermissionDefault, err
	}
	if ok {
		return models.PermissionGranted, nil
	}
	return models.PermissionDenied, nil
}
