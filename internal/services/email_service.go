package services

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/agora/internal/config"
	"github.com/BradenHooton/agora/internal/models"
	pkglogger "github.com/BradenHooton/agora/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"gopkg.in/gomail.v2"
)

// Email is one outbound message with plain text and HTML bodies.
type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers emails.
type Mailer interface {
	Send(ctx context.Context, email *Email) error
}

// NewMailer selects the transport configured by EMAIL_PROVIDER.
func NewMailer(cfg config.EmailConfig, logger *slog.Logger) (Mailer, error) {
	switch cfg.Provider {
	case "ses":
		return NewSESMailer(cfg.SESRegion, cfg.From, logger)
	case "smtp":
		return NewSMTPMailer(cfg, logger), nil
	case "log":
		return NewLogMailer(logger), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}

// SESMailer sends emails using AWS SES.
type SESMailer struct {
	client *ses.Client
	from   string
	logger *slog.Logger
}

func NewSESMailer(region, from string, logger *slog.Logger) (*SESMailer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &SESMailer{client: ses.NewFromConfig(cfg), from: from, logger: logger}, nil
}

func (m *SESMailer) Send(ctx context.Context, email *Email) error {
	input := &ses.SendEmailInput{
		Source:      aws.String(m.from),
		Destination: &types.Destination{ToAddresses: []string{email.To}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(email.Subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(email.HTML), Charset: aws.String("UTF-8")},
				Text: &types.Content{Data: aws.String(email.Text), Charset: aws.String("UTF-8")},
			},
		},
	}

	result, err := m.client.SendEmail(ctx, input)
	if err != nil {
		m.logger.Error("failed to send email via SES",
			slog.String("to", pkglogger.SanitizedEmail(email.To)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.logger.Info("email sent",
		slog.String("provider", "ses"),
		slog.String("to", pkglogger.SanitizedEmail(email.To)),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

// SMTPMailer sends emails through an SMTP relay.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
	logger *slog.Logger
}

func NewSMTPMailer(cfg config.EmailConfig, logger *slog.Logger) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		from:   cfg.From,
		logger: logger,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, email *Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", email.To)
	msg.SetHeader("Subject", email.Subject)
	msg.SetBody("text/plain", email.Text)
	if email.HTML != "" {
		msg.AddAlternative("text/html", email.HTML)
	}

	if err := m.dialer.DialAndSend(msg); err != nil {
		m.logger.Error("failed to send email via SMTP",
			slog.String("to", pkglogger.SanitizedEmail(email.To)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.logger.Info("email sent",
		slog.String("provider", "smtp"),
		slog.String("to", pkglogger.SanitizedEmail(email.To)))
	return nil
}

// LogMailer writes emails to the log instead of sending them. Development only.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, email *Email) error {
	m.logger.Info("email (log provider)",
		slog.String("to", pkglogger.SanitizedEmail(email.To)),
		slog.String("subject", email.Subject),
		slog.String("body", email.Text))
	return nil
}

var codeEmailSubjects = map[models.CodePurpose]string{
	models.PurposeEmailVerification: "Verify your email address",
	models.PurposePasswordReset:     "Your password reset code",
	models.PurposePayment:           "Confirm your purchase",
}

var codeEmailHTML = template.Must(template.New("code").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>{{.Subject}}</h2>
  <p>{{.Intro}}</p>
  <p style="font-size: 28px; letter-spacing: 6px;"><strong>{{.Code}}</strong></p>
  <p>This code expires at {{.ExpiresAt}}. If you did not request it, ignore this email.</p>
</body>
</html>`))

// buildCodeEmail renders the purpose-specific email carrying a one-time code.
func buildCodeEmail(to string, purpose models.CodePurpose, code string, expiresAt time.Time) (*Email, error) {
	subject, ok := codeEmailSubjects[purpose]
	if !ok {
		return nil, fmt.Errorf("no email template for purpose %s", purpose)
	}

	intro := "Use the code below to continue."
	switch purpose {
	case models.PurposeEmailVerification:
		intro = "Welcome! Enter the code below to activate your account."
	case models.PurposePasswordReset:
		intro = "Enter the code below to choose a new password."
	case models.PurposePayment:
		intro = "Enter the code below to authorise your marketplace purchase."
	}

	data := struct {
		Subject, Intro, Code, ExpiresAt string
	}{subject, intro, code, expiresAt.UTC().Format(time.RFC1123)}

	var html strings.Builder
	if err := codeEmailHTML.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("render email: %w", err)
	}

	text := fmt.Sprintf("%s\n\n%s\n\n    %s\n\nThis code expires at %s. If you did not request it, ignore this email.\n",
		subject, intro, code, data.ExpiresAt)

	return &Email{To: to, Subject: subject, Text: text, HTML: html.String()}, nil
}
