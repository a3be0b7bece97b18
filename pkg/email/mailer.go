package email

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
)

// EmailSender sends one transactional email.
type EmailSender interface {
	SendEmail(ctx context.Context, params SendEmailParams) (Receipt, error)
}

// SendEmailParams are the parameters of one email. At least one body is
// required.
type SendEmailParams struct {
	SendTo   string `json:"send_to"`
	Subject  string `json:"subject"`
	BodyText string `json:"body_text,omitempty"`
	BodyHTML string `json:"body_html,omitempty"`
	Tag      string `json:"tag,omitempty"`
}

// Receipt identifies an accepted email.
type Receipt struct {
	MessageID string `json:"message_id"`
}

// Validate checks the recipient, the subject and that a body is present.
func (p SendEmailParams) Validate() error {
	var errs []error
	if !validAddress(p.SendTo) {
		errs = append(errs, fmt.Errorf("send_to %q is not a valid email address", p.SendTo))
	}
	if p.Subject == "" {
		errs = append(errs, errors.New("subject is required"))
	}
	if p.BodyText == "" && p.BodyHTML == "" {
		errs = append(errs, errors.New("body_text or body_html is required"))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidParams}, errs...)...)
	}
	return nil
}

func validAddress(s string) bool {
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
