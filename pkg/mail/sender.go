// Package mail sends outbound messages on behalf of a user.
package mail

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/mail"
	"strings"
)

// Message is one rendered outbound mail.
type Message struct {
	From    string
	To      string
	ToName  string
	Subject string
	Body    string
}

// Sender delivers a single message. Implementations are bound to one
// credential; callers create one Sender per user.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// BuildRFC2822 renders msg as a plain-text RFC 2822 message with UTF-8 encoded
// headers and a base64 body.
func BuildRFC2822(msg Message) ([]byte, error) {
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}

	to := (&mail.Address{Name: msg.ToName, Address: msg.To}).String()

	var b strings.Builder
	if msg.From != "" {
		b.WriteString("From: " + msg.From + "\r\n")
	}
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n")
	b.WriteString("\r\n")

	encoded := base64.StdEncoding.EncodeToString([]byte(msg.Body))
	for len(encoded) > 76 {
		b.WriteString(encoded[:76] + "\r\n")
		encoded = encoded[76:]
	}
	b.WriteString(encoded + "\r\n")
	return []byte(b.String()), nil
}
