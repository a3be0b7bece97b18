package notifications

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/inkpress/coord/pkg/validator"
)

// MaxExcerptLength bounds the quoted comment text carried by comment and
// reply content.
const MaxExcerptLength = 500

// Content is the type-specific payload of a notification. Every Type has
// exactly one implementation.
type Content interface {
	Type() Type
	Validate() error
}

// CommentContent reports a new comment on one of the user's stories.
type CommentContent struct {
	StoryID   string `json:"storyId"`
	ChapterID string `json:"chapterId,omitempty"`
	CommentID string `json:"commentId"`
	Excerpt   string `json:"excerpt,omitempty"`
}

func (CommentContent) Type() Type { return TypeComment }

func (c CommentContent) Validate() error {
	return validator.Apply(
		validator.Required("storyId", c.StoryID),
		validator.Required("commentId", c.CommentID),
		validator.MaxLen("excerpt", c.Excerpt, MaxExcerptLength),
	)
}

// ReplyContent reports a reply to one of the user's comments.
type ReplyContent struct {
	StoryID   string `json:"storyId"`
	CommentID string `json:"commentId"`
	ParentID  string `json:"parentId"`
	Excerpt   string `json:"excerpt,omitempty"`
}

func (ReplyContent) Type() Type { return TypeReply }

func (c ReplyContent) Validate() error {
	return validator.Apply(
		validator.Required("storyId", c.StoryID),
		validator.Required("commentId", c.CommentID),
		validator.Required("parentId", c.ParentID),
		validator.MaxLen("excerpt", c.Excerpt, MaxExcerptLength),
	)
}

// ChapterPublishedContent reports a new chapter of a followed story.
type ChapterPublishedContent struct {
	StoryID      string `json:"storyId"`
	ChapterID    string `json:"chapterId"`
	ChapterTitle string `json:"chapterTitle,omitempty"`
}

func (ChapterPublishedContent) Type() Type { return TypeChapterPublished }

func (c ChapterPublishedContent) Validate() error {
	return validator.Apply(
		validator.Required("storyId", c.StoryID),
		validator.Required("chapterId", c.ChapterID),
	)
}

// FollowContent reports a new follower.
type FollowContent struct {
	FollowerID string `json:"followerId"`
}

func (FollowContent) Type() Type { return TypeFollow }

func (c FollowContent) Validate() error {
	return validator.Apply(validator.Required("followerId", c.FollowerID))
}

// LikeContent reports a like on a story or chapter.
type LikeContent struct {
	StoryID   string `json:"storyId"`
	ChapterID string `json:"chapterId,omitempty"`
}

func (LikeContent) Type() Type { return TypeLike }

func (c LikeContent) Validate() error {
	return validator.Apply(validator.Required("storyId", c.StoryID))
}

// PaymentContent reports a payment event. Amount is in minor units.
type PaymentContent struct {
	PaymentID string `json:"paymentId"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
}

func (PaymentContent) Type() Type { return TypePayment }

func (c PaymentContent) Validate() error {
	return validator.Apply(
		validator.Required("paymentId", c.PaymentID),
		validator.MinNum("amount", c.Amount, 0),
		validator.Required("currency", c.Currency),
		validator.Required("status", c.Status),
	)
}

// SystemSeverities are the accepted SystemContent.Severity values. Empty
// means informational.
var SystemSeverities = []string{"", "info", "warning", "critical"}

// SystemContent carries an optional link for announcements.
type SystemContent struct {
	Link     string `json:"link,omitempty"`
	Severity string `json:"severity,omitempty"`
}

func (SystemContent) Type() Type { return TypeSystem }

func (c SystemContent) Validate() error {
	return validator.Apply(
		validator.OneOf("severity", c.Severity, SystemSeverities),
	)
}

// DecodeContent parses raw into the content variant of t. Empty or null raw
// yields nil content.
func DecodeContent(t Type, raw json.RawMessage) (Content, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var c Content
	switch t {
	case TypeComment:
		c = new(CommentContent)
	case TypeReply:
		c = new(ReplyContent)
	case TypeChapterPublished:
		c = new(ChapterPublishedContent)
	case TypeFollow:
		c = new(FollowContent)
	case TypeLike:
		c = new(LikeContent)
	case TypePayment:
		c = new(PaymentContent)
	case TypeSystem:
		c = new(SystemContent)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, t)
	}

	if err := json.Unmarshal(raw, c); err != nil {
		return nil, errors.Join(ErrInvalidContent, err)
	}
	return deref(c), nil
}

// deref turns the decoded pointer back into the value variant so decoded
// content compares equal to what was created.
func deref(c Content) Content {
	switch v := c.(type) {
	case *CommentContent:
		return *v
	case *ReplyContent:
		return *v
	case *ChapterPublishedContent:
		return *v
	case *FollowContent:
		return *v
	case *LikeContent:
		return *v
	case *PaymentContent:
		return *v
	case *SystemContent:
		return *v
	}
	return c
}

func marshalContent(c Content) (json.RawMessage, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}
