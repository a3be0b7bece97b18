package notifications

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/inkpress/coord/pkg/email"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendEmail(ctx context.Context, params email.SendEmailParams) (email.Receipt, error) {
	args := m.Called(ctx, params)
	return email.Receipt{MessageID: "msg-1"}, args.Error(0)
}

type mockDeliverer struct {
	mock.Mock
}

func (m *mockDeliverer) Deliver(ctx context.Context, n Notification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *mockDeliverer) DeliverBatch(ctx context.Context, ns []Notification) error {
	return m.Called(ctx, ns).Error(0)
}

func TestEmailDeliverer(t *testing.T) {
	t.Parallel()

	sender := &mockSender{}
	sender.On("SendEmail", mock.Anything, email.SendEmailParams{
		SendTo:   "reader@example.com",
		Subject:  "Payment received",
		BodyText: "You earned <5 EUR>",
		BodyHTML: "<p>You earned &lt;5 EUR&gt;</p>",
		Tag:      "notification-payment",
	}).Return(nil).Once()

	resolve := func(_ context.Context, userID string) (string, error) {
		if userID == "u" {
			return "reader@example.com", nil
		}
		return "", nil
	}

	d := NewEmailDeliverer(sender, resolve, TypePayment)
	ctx := context.Background()

	require.NoError(t, d.Deliver(ctx, Notification{UserID: "u", Type: TypePayment, Title: "Payment received", Message: "You earned <5 EUR>"}))
	// Other types and users without an address are skipped.
	require.NoError(t, d.Deliver(ctx, Notification{UserID: "u", Type: TypeLike, Title: "x"}))
	require.NoError(t, d.Deliver(ctx, Notification{UserID: "nomail", Type: TypePayment, Title: "x"}))

	sender.AssertExpectations(t)
}

func TestEmailDeliverer_ResolveError(t *testing.T) {
	t.Parallel()

	d := NewEmailDeliverer(&mockSender{}, func(context.Context, string) (string, error) {
		return "", errors.New("user lookup failed")
	}, TypePayment)

	err := d.DeliverBatch(context.Background(), []Notification{{UserID: "u", Type: TypePayment}})
	assert.Error(t, err)
}

func TestMultiDeliverer_ContinuesAfterFailure(t *testing.T) {
	t.Parallel()

	first := &mockDeliverer{}
	second := &mockDeliverer{}
	n := Notification{ID: "n1", UserID: "u"}
	first.On("Deliver", mock.Anything, n).Return(errors.New("smtp down"))
	second.On("Deliver", mock.Anything, n).Return(nil)

	m := NewMultiDeliverer([]Deliverer{first, second})
	assert.NoError(t, m.Deliver(context.Background(), n))

	first.AssertExpectations(t)
	second.AssertExpectations(t)
}

func TestPipeline_DeliversAfterStore(t *testing.T) {
	t.Parallel()

	d := &mockDeliverer{}
	d.On("Deliver", mock.Anything, mock.AnythingOfType("notifications.Notification")).Return(errors.New("boom"))

	p := newTestPipeline(t, NewMemoryStorage(), WithDeliverer(d))
	_, err := p.Create(context.Background(), comment("u"))
	require.NoError(t, err, "delivery failure does not fail creation")
	d.AssertExpectations(t)
}
