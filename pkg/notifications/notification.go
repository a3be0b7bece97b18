package notifications

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/inkpress/coord/pkg/validator"
)

// Field limits enforced by Params.Validate.
const (
	MaxTitleLength   = 200
	MaxMessageLength = 2000
	MaxIDLength      = 128
)

// Type is the kind of event a notification reports. Each type has one
// content shape.
type Type string

const (
	TypeComment          Type = "comment"
	TypeReply            Type = "reply"
	TypeChapterPublished Type = "chapter_published"
	TypeFollow           Type = "follow"
	TypeLike             Type = "like"
	TypePayment          Type = "payment"
	TypeSystem           Type = "system"
)

// Types lists every known notification type.
var Types = []Type{
	TypeComment,
	TypeReply,
	TypeChapterPublished,
	TypeFollow,
	TypeLike,
	TypePayment,
	TypeSystem,
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Notification is a persisted notification row.
type Notification struct {
	ID        string
	UserID    string
	Type      Type
	Title     string
	Message   string
	Content   Content
	ActorID   string
	Read      bool
	CreatedAt time.Time
}

type notificationJSON struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Type      Type            `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Content   json.RawMessage `json:"content,omitempty"`
	ActorID   string          `json:"actorId,omitempty"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"createdAt"`
}

func (n Notification) MarshalJSON() ([]byte, error) {
	content, err := marshalContent(n.Content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(notificationJSON{
		ID:        n.ID,
		UserID:    n.UserID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Content:   content,
		ActorID:   n.ActorID,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	})
}

func (n *Notification) UnmarshalJSON(data []byte) error {
	var w notificationJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	content, err := DecodeContent(w.Type, w.Content)
	if err != nil {
		return err
	}
	*n = Notification{
		ID:        w.ID,
		UserID:    w.UserID,
		Type:      w.Type,
		Title:     w.Title,
		Message:   w.Message,
		Content:   content,
		ActorID:   w.ActorID,
		Read:      w.Read,
		CreatedAt: w.CreatedAt,
	}
	return nil
}

// Params are the inputs of Pipeline.Create.
type Params struct {
	UserID  string
	Type    Type
	Title   string
	Message string
	// Content is optional. When set, its Type must match Type.
	Content Content
	ActorID string
}

// Validate checks every field and the content variant. The returned error
// wraps validator.ValidationErrors with all failing fields, joined with the
// sentinel of each failure class (ErrUserIDRequired, ErrInvalidType,
// ErrTitleRequired, ErrContentMismatch, ErrInvalidContent).
func (p Params) Validate() error {
	var sentinels []error
	var errs validator.ValidationErrors

	err := validator.Apply(
		validator.Required("userId", p.UserID),
		validator.OneOf("type", p.Type, Types),
		validator.Required("title", p.Title),
		validator.MaxLen("title", p.Title, MaxTitleLength),
		validator.MaxLen("message", p.Message, MaxMessageLength),
		validator.MaxLen("actorId", p.ActorID, MaxIDLength),
	)
	if ve := validator.ExtractValidationErrors(err); ve != nil {
		errs = append(errs, ve...)
		if ve.Has("userId") {
			sentinels = append(sentinels, ErrUserIDRequired)
		}
		if ve.Has("type") {
			sentinels = append(sentinels, fmt.Errorf("%w: %q", ErrInvalidType, p.Type))
		}
		if ve.Has("title") {
			sentinels = append(sentinels, ErrTitleRequired)
		}
		if ve.Has("message") || ve.Has("actorId") {
			sentinels = append(sentinels, ErrInvalidParams)
		}
	}

	if p.Content != nil {
		if p.Type.Valid() && p.Content.Type() != p.Type {
			sentinels = append(sentinels, fmt.Errorf("%w: %s content on %s notification", ErrContentMismatch, p.Content.Type(), p.Type))
			errs.Add(validator.ValidationError{
				Field:   "content",
				Message: fmt.Sprintf("must be %s content", p.Type),
				Code:    "validation.content_type",
			})
		} else if cerr := p.Content.Validate(); cerr != nil {
			sentinels = append(sentinels, ErrInvalidContent)
			if ve := validator.ExtractValidationErrors(cerr); ve != nil {
				errs = append(errs, ve.Prefixed("content.")...)
			} else {
				sentinels = append(sentinels, cerr)
			}
		}
	}

	if len(sentinels) == 0 {
		return nil
	}
	if !errs.IsEmpty() {
		sentinels = append(sentinels, errs)
	}
	return errors.Join(sentinels...)
}

type paramsJSON struct {
	UserID  string          `json:"userId"`
	Type    Type            `json:"type"`
	Title   string          `json:"title"`
	Message string          `json:"message"`
	Content json.RawMessage `json:"content,omitempty"`
	ActorID string          `json:"actorId,omitempty"`
}

func (p Params) MarshalJSON() ([]byte, error) {
	content, err := marshalContent(p.Content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(paramsJSON{
		UserID:  p.UserID,
		Type:    p.Type,
		Title:   p.Title,
		Message: p.Message,
		Content: content,
		ActorID: p.ActorID,
	})
}

func (p *Params) UnmarshalJSON(data []byte) error {
	var w paramsJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	content, err := DecodeContent(w.Type, w.Content)
	if err != nil {
		return err
	}
	*p = Params{
		UserID:  w.UserID,
		Type:    w.Type,
		Title:   w.Title,
		Message: w.Message,
		Content: content,
		ActorID: w.ActorID,
	}
	return nil
}
