package notifier

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"pisowatch/internal/scraper"
	"pisowatch/logger"
	errs "pisowatch/pkg/errors"
)

// EmailNotifier sends one HTML digest per run over SMTP.
type EmailNotifier struct {
	host     string
	port     int
	user     string
	password string
	from     string
	to       []string
	log      *logger.Logger
}

func NewEmailNotifier(host string, port int, user, password, from string, to []string) *EmailNotifier {
	return &EmailNotifier{
		host:     host,
		port:     port,
		user:     user,
		password: password,
		from:     from,
		to:       to,
		log:      logger.ForNotifier("email"),
	}
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) IsConfigured() bool {
	return e.host != "" && e.from != "" && len(e.to) > 0
}

func (e *EmailNotifier) Notify(ctx context.Context, listings []*scraper.Listing, testMode bool) error {
	if len(listings) == 0 {
		return nil
	}

	subject := fmt.Sprintf("🏠 %d nuevos pisos encontrados", len(listings))
	body := e.buildDigest(listings)

	if testMode {
		e.log.Info().Str("subject", subject).Int("bytes", len(body)).Msg("Test mode, not sending")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return errs.NewNotification("email", "notification cancelled", err)
	}

	msg := strings.Join([]string{
		"From: " + e.from,
		"To: " + strings.Join(e.to, ", "),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
		"Date: " + time.Now().Format(time.RFC1123Z),
		"",
		body,
	}, "\r\n")

	var auth smtp.Auth
	if e.user != "" {
		auth = smtp.PlainAuth("", e.user, e.password, e.host)
	}

	addr := fmt.Sprintf("%s:%d", e.host, e.port)
	if err := smtp.SendMail(addr, auth, e.from, e.to, []byte(msg)); err != nil {
		return errs.NewNotification("email", fmt.Sprintf("failed to send via %s", addr), err)
	}

	e.log.Info().Int("listings", len(listings)).Int("recipients", len(e.to)).Msg("Email digest sent")
	return nil
}

// buildDigest reuses the channel-agnostic HTML snippets; the bits of
// Telegram markup they contain render fine in mail clients.
func (e *EmailNotifier) buildDigest(listings []*scraper.Listing) string {
	var b strings.Builder
	b.WriteString("<html><body style=\"font-family: sans-serif\">")
	b.WriteString("<pre style=\"font-family: inherit\">")
	b.WriteString(summaryText(listings))
	b.WriteString("</pre><hr>")

	for _, l := range listings {
		b.WriteString("<pre style=\"font-family: inherit\">")
		b.WriteString(listingText(l))
		b.WriteString("</pre><hr>")
	}

	b.WriteString("</body></html>")
	return b.String()
}
