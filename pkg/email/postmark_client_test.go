package email_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpress/coord/pkg/email"
)

func postmarkConfig(baseURL string) email.Config {
	return email.Config{
		PostmarkServerToken:  "server-token",
		PostmarkAccountToken: "account-token",
		PostmarkBaseURL:      baseURL,
		SenderEmail:          "noreply@example.com",
		SupportEmail:         "support@example.com",
	}
}

func TestNewPostmarkClient_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*email.Config)
		want   string
	}{
		{"missing server token", func(c *email.Config) { c.PostmarkServerToken = "" }, "PostmarkServerToken"},
		{"missing account token", func(c *email.Config) { c.PostmarkAccountToken = "" }, "PostmarkAccountToken"},
		{"bad sender", func(c *email.Config) { c.SenderEmail = "nope" }, "SenderEmail"},
		{"bad support", func(c *email.Config) { c.SupportEmail = "" }, "SupportEmail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := postmarkConfig("")
			tt.mutate(&cfg)

			client, err := email.NewPostmarkClient(cfg)
			require.ErrorIs(t, err, email.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
			assert.Nil(t, client)
		})
	}
}

func TestPostmarkClient_SendEmail(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "server-token", r.Header.Get("X-Postmark-Server-Token"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"To":"reader@example.com","MessageID":"pm-123","ErrorCode":0,"Message":"OK"}`))
	}))
	t.Cleanup(srv.Close)

	client, err := email.NewPostmarkClient(postmarkConfig(srv.URL))
	require.NoError(t, err)

	receipt, err := client.SendEmail(context.Background(), email.SendEmailParams{
		SendTo:   "reader@example.com",
		Subject:  "Payment received",
		BodyText: "You received a payment.",
		Tag:      "notification-payment",
	})
	require.NoError(t, err)
	assert.Equal(t, "pm-123", receipt.MessageID)
	assert.Equal(t, "support@example.com", got["ReplyTo"])
	assert.Equal(t, "You received a payment.", got["TextBody"])
}

func TestPostmarkClient_ProviderError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ErrorCode":406,"Message":"Inactive recipient"}`))
	}))
	t.Cleanup(srv.Close)

	client, err := email.NewPostmarkClient(postmarkConfig(srv.URL))
	require.NoError(t, err)

	_, err = client.SendEmail(context.Background(), email.SendEmailParams{
		SendTo:   "reader@example.com",
		Subject:  "x",
		BodyText: "y",
	})
	require.ErrorIs(t, err, email.ErrFailedToSendEmail)
	assert.Contains(t, err.Error(), "406")
}
