// Package email sends notification mail over SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
	"time"
)

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendHTMLEmail sends a multipart message with a plain-text fallback.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}
	msg := s.buildMessage(to, subject, textBody, htmlBody)
	if err := s.send(s.server, s.auth, s.config.From, to, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func (s *Service) buildMessage(to []string, subject, textBody, htmlBody string) []byte {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	boundary := "skribe-" + fmt.Sprint(time.Now().UnixNano())

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", boundary)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", textBody)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", htmlBody)
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)
	return msg.Bytes()
}

type FeedbackData struct {
	UserName    string
	UserEmail   string
	ProjectName string
	Rating      int
	Message     string
	Page        string
}

// SendFeedbackNotification mails a feedback submission to the team inbox.
func (s *Service) SendFeedbackNotification(to string, data FeedbackData) error {
	html, err := renderTemplate(feedbackEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render feedback template: %w", err)
	}
	subject := fmt.Sprintf("Skribe feedback: %d/5 from %s", data.Rating, data.UserName)
	text := fmt.Sprintf("%s <%s> rated %d/5 on %s\n\n%s", data.UserName, data.UserEmail, data.Rating, data.Page, data.Message)
	return s.SendHTMLEmail([]string{to}, subject, text, html)
}

type WelcomeData struct {
	UserName string
}

func (s *Service) SendWelcomeEmail(to string, data WelcomeData) error {
	html, err := renderTemplate(welcomeEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render welcome template: %w", err)
	}
	text := fmt.Sprintf("Welcome to Skribe, %s. Create a project to start writing your first vision document.", data.UserName)
	return s.SendHTMLEmail([]string{to}, "Welcome to Skribe", text, html)
}

func renderTemplate(tmpl string, data any) (string, error) {
	t, err := template.New("email").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const emailStyle = `body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #1f2328; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #6d28d9; padding-bottom: 10px; margin-bottom: 20px; }
        .quote { background: #f6f8fa; border-left: 4px solid #6d28d9; padding: 12px; white-space: pre-wrap; }
        .meta { font-size: 13px; color: #57606a; }`

const feedbackEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Skribe feedback</title>
    <style>` + emailStyle + `</style>
</head>
<body>
    <div class="header"><h1>New feedback</h1></div>
    <p class="meta">{{.UserName}} &lt;{{.UserEmail}}&gt;{{if .ProjectName}} in {{.ProjectName}}{{end}}</p>
    <p><strong>Rating:</strong> {{.Rating}}/5</p>
    {{if .Page}}<p class="meta">Page: {{.Page}}</p>{{end}}
    <div class="quote">{{.Message}}</div>
</body>
</html>`

const welcomeEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Welcome to Skribe</title>
    <style>` + emailStyle + `</style>
</head>
<body>
    <div class="header"><h1>Skribe</h1></div>
    <h2>Welcome, {{.UserName}}!</h2>
    <p>Create a project and start with a vision document. The assistant can draft, restructure and tighten any section you point it at.</p>
</body>
</html>`
