package notifications

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpress/coord/pkg/validator"
)

func TestNotificationJSONKeepsContentVariant(t *testing.T) {
	t.Parallel()

	n := Notification{
		ID:        "n1",
		UserID:    "u",
		Type:      TypePayment,
		Title:     "Payment received",
		Content:   PaymentContent{PaymentID: "p1", Amount: 499, Currency: "EUR", Status: "succeeded"},
		ActorID:   "buyer",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(n)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"content":{"paymentId":"p1","amount":499,"currency":"EUR","status":"succeeded"}`)

	var decoded Notification
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, n, decoded)
}

func TestParamsJSON(t *testing.T) {
	t.Parallel()

	p := Params{
		UserID:  "u",
		Type:    TypeReply,
		Title:   "New reply",
		Content: ReplyContent{StoryID: "s", CommentID: "c2", ParentID: "c1"},
	}

	data, err := json.Marshal(DelayedNotification{Params: p})
	require.NoError(t, err)

	var decoded DelayedNotification
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, p, decoded.Params)
	assert.NoError(t, decoded.Params.Validate())
}

func TestDecodeContent(t *testing.T) {
	t.Parallel()

	c, err := DecodeContent(TypeSystem, nil)
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = DecodeContent(TypeFollow, json.RawMessage("null"))
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = DecodeContent("unknown", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrInvalidType)

	_, err = DecodeContent(TypeLike, json.RawMessage(`[1,2]`))
	assert.ErrorIs(t, err, ErrInvalidContent)
}

func TestContentValidate(t *testing.T) {
	t.Parallel()

	assert.Error(t, ReplyContent{StoryID: "s"}.Validate())
	assert.Error(t, PaymentContent{PaymentID: "p", Currency: "EUR", Status: "ok", Amount: -1}.Validate())
	assert.NoError(t, SystemContent{}.Validate())
	assert.NoError(t, ChapterPublishedContent{StoryID: "s", ChapterID: "c"}.Validate())
}

func TestParamsValidate_CollectsEveryField(t *testing.T) {
	t.Parallel()

	err := Params{Type: "bogus", Message: strings.Repeat("x", MaxMessageLength+1)}.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUserIDRequired)
	assert.ErrorIs(t, err, ErrInvalidType)
	assert.ErrorIs(t, err, ErrTitleRequired)
	assert.ErrorIs(t, err, ErrInvalidParams)

	ve := validator.ExtractValidationErrors(err)
	assert.Equal(t, []string{"userId", "type", "title", "message"}, ve.Fields())
}

func TestParamsValidate_ContentFields(t *testing.T) {
	t.Parallel()

	err := Params{UserID: "u", Type: TypeReply, Title: "New reply", Content: ReplyContent{StoryID: "s"}}.Validate()
	assert.ErrorIs(t, err, ErrInvalidContent)
	assert.Equal(t, []string{"content.commentId", "content.parentId"}, validator.ExtractValidationErrors(err).Fields())

	err = Params{UserID: "u", Type: TypeSystem, Title: "Maintenance", Content: SystemContent{Severity: "panic"}}.Validate()
	assert.ErrorIs(t, err, ErrInvalidContent)
	assert.True(t, validator.ExtractValidationErrors(err).Has("content.severity"))

	err = Params{UserID: "u", Type: TypeLike, Title: "Like", Content: FollowContent{FollowerID: "f"}}.Validate()
	assert.ErrorIs(t, err, ErrContentMismatch)
	assert.True(t, validator.ExtractValidationErrors(err).Has("content"))

	assert.NoError(t, Params{UserID: "u", Type: TypeSystem, Title: "Maintenance", Content: SystemContent{Severity: "warning"}}.Validate())
}
