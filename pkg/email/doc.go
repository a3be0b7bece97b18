// Package email sends transactional email.
//
// EmailSender is the outbound email interface. Two implementations exist:
// the Postmark client for production and DevSender, which writes each email
// to disk for local development.
//
//	var sender email.EmailSender
//	if cfg.PostmarkEnabled() {
//		sender, err = email.NewPostmarkClient(cfg)
//	} else {
//		sender = email.NewDevSender(cfg.DevOutputDir)
//	}
//
//	receipt, err := sender.SendEmail(ctx, email.SendEmailParams{
//		SendTo:   "reader@example.com",
//		Subject:  "Payment received",
//		BodyText: "You received a payment.",
//		Tag:      "notification-payment",
//	})
//
// Parameters are validated before sending; invalid ones return an error
// wrapping ErrInvalidParams. Provider failures wrap ErrFailedToSendEmail.
package email
