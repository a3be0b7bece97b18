package email

// Config holds email service configuration. Without Postmark tokens the
// application falls back to DevSender.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	// PostmarkBaseURL overrides the API endpoint, e.g. for a relay.
	PostmarkBaseURL string `env:"POSTMARK_BASE_URL"`
	SenderEmail     string `env:"SENDER_EMAIL" envDefault:"noreply@localhost"`
	SupportEmail    string `env:"SUPPORT_EMAIL" envDefault:"support@localhost"`
	// DevOutputDir is where DevSender writes emails.
	DevOutputDir string `env:"EMAIL_DEV_OUTPUT_DIR" envDefault:"tmp/emails"`
}

// PostmarkEnabled reports whether both Postmark tokens are set.
func (c Config) PostmarkEnabled() bool {
	return c.PostmarkServerToken != "" && c.PostmarkAccountToken != ""
}
