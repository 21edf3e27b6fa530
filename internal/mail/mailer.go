// Package mail sends transactional email over SMTP.
package mail

import (
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"
)

// Mailer sends invitation emails. A nil-configured host disables delivery,
// which keeps local development working without an SMTP server.
type Mailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	baseURL  string
}

// Config carries the SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// BaseURL is the public address invitation links point at.
	BaseURL string
}

func New(cfg Config) *Mailer {
	return &Mailer{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		baseURL:  cfg.BaseURL,
	}
}

// SendInvitation delivers the invitation link to a freshly invited user.
func (m *Mailer) SendInvitation(ctx context.Context, email, name, token string) error {
	if m.host == "" {
		return fmt.Errorf("mail: smtp host not configured")
	}
	msg := gomail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("mail: from address: %w", err)
	}
	if err := msg.To(email); err != nil {
		return fmt.Errorf("mail: to address: %w", err)
	}
	msg.Subject("You have been invited to Worklane")
	msg.SetBodyString(gomail.TypeTextPlain, fmt.Sprintf(
		"Hi %s,\n\nYou have been invited to Worklane. Set your password here:\n\n%s/invite/%s\n\nThe link expires in 24 hours.\n",
		name, m.baseURL, token))

	opts := []gomail.Option{gomail.WithPort(m.port)}
	if m.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.username),
			gomail.WithPassword(m.password))
	}
	client, err := gomail.NewClient(m.host, opts...)
	if err != nil {
		return fmt.Errorf("mail: client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}
