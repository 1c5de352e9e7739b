package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPDispatcher sends OTP codes by email over SMTP with STARTTLS.
type SMTPDispatcher struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// NewSMTPDispatcher returns a dispatcher that sends via the given SMTP server.
func NewSMTPDispatcher(host string, port int, username, password, from string) *SMTPDispatcher {
	return &SMTPDispatcher{Host: host, Port: port, Username: username, Password: password, From: from}
}

// SendCode emails the code to destination. The ctx deadline is not honored by
// net/smtp; the server connection carries its own timeouts.
func (d *SMTPDispatcher) SendCode(ctx context.Context, destination, code, displayName string) error {
	if d.Host == "" {
		return fmt.Errorf("smtp: host not configured")
	}
	if displayName == "" {
		displayName = "Customer"
	}
	addr := fmt.Sprintf("%s:%d", d.Host, d.Port)
	msg := buildOTPMessage(d.From, destination, code, displayName)

	var auth smtp.Auth
	if d.Username != "" {
		auth = smtp.PlainAuth("", d.Username, d.Password, d.Host)
	}
	return smtp.SendMail(addr, auth, d.From, []string{destination}, msg)
}

func buildOTPMessage(from, to, code, displayName string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: Your Verification Code\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString("<html><body>")
	b.WriteString("<p>Hello " + displayName + ",</p>")
	b.WriteString("<p>Your verification code is: <strong>" + code + "</strong></p>")
	b.WriteString("<p>This code expires shortly and can be used once.</p>")
	b.WriteString("</body></html>\r\n")
	return []byte(b.String())
}
