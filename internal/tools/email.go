package tools

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/flight-assistant/internal/llm"
)

// EmailToolName is the name the model uses to request an email.
const EmailToolName = "send_email"

// MissingCredentialsMessage is returned when sender credentials are not configured.
const MissingCredentialsMessage = "❌ Error de configuración: Credenciales de email no encontradas en el entorno."

// EmailArgs are the arguments of an email submission.
type EmailArgs struct {
	Subject   string `json:"subject" jsonschema_description:"Subject line (e.g. Flight Summary: MAD to LON)"`
	Body      string `json:"body" jsonschema_description:"Plain-text body with the flight summary"`
	Recipient string `json:"recipient" jsonschema_description:"Recipient email address"`
}

// EmailSettings holds sender credentials and the submission server.
type EmailSettings struct {
	Sender      string
	AppPassword string
	SMTPHost    string
	SMTPPort    int
}

// Envelope is one outgoing message.
type Envelope struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Mailer submits a message.
type Mailer interface {
	Send(ctx context.Context, env Envelope) error
}

// Email sends summaries to the user through a Mailer.
type Email struct {
	settings EmailSettings
	mailer   Mailer
}

// NewEmail creates the email adapter. A nil mailer submits over SMTP with STARTTLS.
func NewEmail(settings EmailSettings, mailer Mailer) *Email {
	if mailer == nil {
		mailer = NewSMTPMailer(settings)
	}
	return &Email{settings: settings, mailer: mailer}
}

// Tool returns the registry entry for email.
func (e *Email) Tool() Tool {
	return Tool{
		Definition: llm.ToolDefinition{
			Name:        EmailToolName,
			Description: "Sends an email with the given subject and body. Useful for emailing flight summaries to the user.",
			InputSchema: llm.MustSchemaFor(&EmailArgs{}),
		},
		Handler: e.handle,
	}
}

func (e *Email) handle(ctx context.Context, arguments map[string]any) (string, error) {
	var args EmailArgs
	if err := decodeArguments(arguments, &args); err != nil {
		return "", err
	}
	return e.Send(ctx, args), nil
}

// Send submits one message synchronously without retry. The outcome is reported in the returned text.
func (e *Email) Send(ctx context.Context, args EmailArgs) string {
	if e.settings.Sender == "" || e.settings.AppPassword == "" {
		return MissingCredentialsMessage
	}

	recipient, err := mail.ParseAddress(strings.TrimSpace(args.Recipient))
	if err != nil {
		return fmt.Sprintf("❌ Error al enviar el correo: %v", err)
	}

	err = e.mailer.Send(ctx, Envelope{
		From:    e.settings.Sender,
		To:      recipient.Address,
		Subject: args.Subject,
		Body:    args.Body,
	})
	if err != nil {
		return fmt.Sprintf("❌ Error al enviar el correo: %v", err)
	}
	return fmt.Sprintf("✅ Correo enviado exitosamente a %s.", recipient.Address)
}

// SMTPMailer submits messages with STARTTLS and PLAIN auth.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	timeout  time.Duration
}

// NewSMTPMailer creates a mailer for the configured submission server.
func NewSMTPMailer(settings EmailSettings) *SMTPMailer {
	return &SMTPMailer{
		host:     settings.SMTPHost,
		port:     settings.SMTPPort,
		username: settings.Sender,
		password: settings.AppPassword,
		timeout:  30 * time.Second,
	}
}

// Send performs one SMTP transaction.
func (m *SMTPMailer) Send(ctx context.Context, env Envelope) error {
	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))

	dialer := &net.Dialer{Timeout: m.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(m.timeout))
	}

	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: m.host, MinVersion: tls.VersionTLS12}); err != nil {
		return fmt.Errorf("starttls: %w", err)
	}
	if err := client.Auth(smtp.PlainAuth("", m.username, m.password, m.host)); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := client.Mail(env.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(env.To); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(composeMessage(env)); err != nil {
		_ = w.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}
	return client.Quit()
}

// composeMessage renders a plain-text RFC 5322 message.
func composeMessage(env Envelope) []byte {
	var b strings.Builder
	b.WriteString("From: " + env.From + "\r\n")
	b.WriteString("To: " + env.To + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", env.Subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(env.Body, "\r\n", "\n"), "\n", "\r\n"))
	return []byte(b.String())
}
