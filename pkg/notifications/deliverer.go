package notifications

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"slices"

	"github.com/inkpress/coord/pkg/email"
	"github.com/inkpress/coord/pkg/logger"
)

// Deliverer sends stored notifications through an extra channel, such as
// email. Failures are logged by the pipeline and never undo the write.
type Deliverer interface {
	Deliver(ctx context.Context, notif Notification) error
	DeliverBatch(ctx context.Context, notifs []Notification) error
}

// MultiDeliverer fans out to several deliverers. A failing deliverer is
// logged and does not stop the others.
type MultiDeliverer struct {
	deliverers []Deliverer
	logger     *slog.Logger
}

type MultiDelivererOption func(*MultiDeliverer)

func WithMultiDelivererLogger(l *slog.Logger) MultiDelivererOption {
	return func(m *MultiDeliverer) {
		if l != nil {
			m.logger = l
		}
	}
}

func NewMultiDeliverer(deliverers []Deliverer, opts ...MultiDelivererOption) *MultiDeliverer {
	m := &MultiDeliverer{
		deliverers: deliverers,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MultiDeliverer) Deliver(ctx context.Context, notif Notification) error {
	for i, d := range m.deliverers {
		if err := d.Deliver(ctx, notif); err != nil {
			m.logger.LogAttrs(ctx, slog.LevelError, "failed to deliver notification",
				slog.String("notification_id", notif.ID),
				logger.UserID(notif.UserID),
				slog.Int("deliverer_index", i),
				logger.Error(err),
			)
		}
	}
	return nil
}

func (m *MultiDeliverer) DeliverBatch(ctx context.Context, notifs []Notification) error {
	for i, d := range m.deliverers {
		if err := d.DeliverBatch(ctx, notifs); err != nil {
			m.logger.LogAttrs(ctx, slog.LevelError, "failed to deliver notification batch",
				logger.Count(int64(len(notifs))),
				slog.Int("deliverer_index", i),
				logger.Error(err),
			)
		}
	}
	return nil
}

// NoOpDeliverer does nothing.
type NoOpDeliverer struct{}

func (NoOpDeliverer) Deliver(context.Context, Notification) error { return nil }

func (NoOpDeliverer) DeliverBatch(context.Context, []Notification) error { return nil }

// RecipientResolver returns the email address of a user, or "" when the
// user has none or opted out.
type RecipientResolver func(ctx context.Context, userID string) (string, error)

// EmailDeliverer emails notifications of selected types.
type EmailDeliverer struct {
	sender  email.EmailSender
	resolve RecipientResolver
	types   []Type
}

// NewEmailDeliverer emails notifications whose type is in types.
func NewEmailDeliverer(sender email.EmailSender, resolve RecipientResolver, types ...Type) *EmailDeliverer {
	return &EmailDeliverer{sender: sender, resolve: resolve, types: types}
}

func (d *EmailDeliverer) Deliver(ctx context.Context, notif Notification) error {
	if !slices.Contains(d.types, notif.Type) {
		return nil
	}

	to, err := d.resolve(ctx, notif.UserID)
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}
	if to == "" {
		return nil
	}

	_, err = d.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:   to,
		Subject:  notif.Title,
		BodyText: notif.Message,
		BodyHTML: "<p>" + html.EscapeString(notif.Message) + "</p>",
		Tag:      "notification-" + string(notif.Type),
	})
	return err
}

func (d *EmailDeliverer) DeliverBatch(ctx context.Context, notifs []Notification) error {
	var errs []error
	for _, n := range notifs {
		if err := d.Deliver(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
