package mail

import (
	"context"
	"encoding/base64"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/ekaya-inc/ekaya-crm/pkg/logging"
	"github.com/ekaya-inc/ekaya-crm/pkg/models"
)

// GmailSender sends through the Gmail API using a stored OAuth credential.
type GmailSender struct {
	svc    *gmail.Service
	from   string
	logger *zap.Logger
}

var _ Sender = (*GmailSender)(nil)

// NewGmailSender builds a sender for an opened (plaintext) credential. Extra
// options are appended after the token source, which lets tests point the
// client at a local endpoint.
func NewGmailSender(ctx context.Context, cred models.MailCredential, logger *zap.Logger, opts ...option.ClientOption) (*GmailSender, error) {
	if cred.AccessToken == "" {
		return nil, fmt.Errorf("mail credential for %s has no access token", cred.UserID)
	}

	token := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       cred.ExpiresAt,
	}
	clientOpts := append([]option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(token)),
	}, opts...)

	svc, err := gmail.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	return &GmailSender{
		svc:    svc,
		from:   cred.Sender,
		logger: logger.Named("gmail"),
	}, nil
}

// Send delivers one message as the authenticated user.
func (s *GmailSender) Send(ctx context.Context, msg Message) error {
	if msg.From == "" {
		msg.From = s.from
	}
	raw, err := BuildRFC2822(msg)
	if err != nil {
		return err
	}

	sent, err := s.svc.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gmail send failed: %s", logging.SanitizeError(err))
	}

	s.logger.Debug("Message sent",
		zap.String("message_id", sent.Id),
		zap.String("to", msg.To))
	return nil
}
