package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-crm/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-crm/pkg/crypto"
	"github.com/ekaya-inc/ekaya-crm/pkg/logging"
	mailpkg "github.com/ekaya-inc/ekaya-crm/pkg/mail"
	"github.com/ekaya-inc/ekaya-crm/pkg/models"
	"github.com/ekaya-inc/ekaya-crm/pkg/repositories"
)

// MinSendDelay is the smallest pause between two sends.
const MinSendDelay = 200 * time.Millisecond

// Recipient is one addressee of a bulk send. Data feeds {variable} substitution.
type Recipient struct {
	Email string            `json:"email"`
	Name  string            `json:"name,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

// BulkSendRequest is a template sent to many recipients.
type BulkSendRequest struct {
	Recipients []Recipient `json:"recipients"`
	Subject    string      `json:"subject"`
	Body       string      `json:"body"`
}

// SenderFactory builds a mail sender from an opened credential.
type SenderFactory func(ctx context.Context, cred models.MailCredential) (mailpkg.Sender, error)

// BulkSendService sends templated mail on behalf of a user.
type BulkSendService interface {
	// SaveCredential seals and stores the user's outbound mail credential.
	SaveCredential(ctx context.Context, cred models.MailCredential) error
	// Send delivers to every recipient in order. Per-recipient failures are
	// tallied; only a missing credential or an invalid request is an error.
	Send(ctx context.Context, userID uuid.UUID, req BulkSendRequest, onProgress ProgressFunc) (*models.BulkSendResult, error)
}

type bulkSendService struct {
	creds     repositories.MailCredentialRepository
	sealer    *crypto.TokenSealer
	newSender SenderFactory
	delay     time.Duration
	logger    *zap.Logger
}

// NewBulkSendService creates a bulk send service. sealer may be nil when mail
// is not configured; every call then fails with a ConfigurationError.
func NewBulkSendService(
	creds repositories.MailCredentialRepository,
	sealer *crypto.TokenSealer,
	newSender SenderFactory,
	delay time.Duration,
	logger *zap.Logger,
) BulkSendService {
	if delay < MinSendDelay {
		delay = MinSendDelay
	}
	return &bulkSendService{
		creds:     creds,
		sealer:    sealer,
		newSender: newSender,
		delay:     delay,
		logger:    logger.Named("bulk-send"),
	}
}

var _ BulkSendService = (*bulkSendService)(nil)

func (s *bulkSendService) SaveCredential(ctx context.Context, cred models.MailCredential) error {
	if s.sealer == nil {
		return apperrors.NewConfigurationError("credentials_key", "mail credentials cannot be stored without a credentials key")
	}
	if cred.UserID == uuid.Nil {
		return apperrors.NewValidationError("user_id", "user id is required")
	}
	if _, err := mail.ParseAddress(cred.Sender); err != nil {
		return apperrors.NewValidationError("sender", "sender must be an email address")
	}
	if strings.TrimSpace(cred.AccessToken) == "" {
		return apperrors.NewValidationError("access_token", "access token is required")
	}
	if cred.Provider == "" {
		cred.Provider = "gmail"
	}

	sealed, err := s.sealer.SealCredential(cred)
	if err != nil {
		return fmt.Errorf("seal mail credential: %w", err)
	}
	if err := s.creds.Upsert(ctx, &sealed); err != nil {
		return fmt.Errorf("store mail credential: %w", err)
	}

	s.logger.Info("Mail credential stored",
		zap.String("user_id", cred.UserID.String()),
		zap.String("provider", cred.Provider))
	return nil
}

func (s *bulkSendService) Send(ctx context.Context, userID uuid.UUID, req BulkSendRequest, onProgress ProgressFunc) (*models.BulkSendResult, error) {
	if err := validateBulkSend(req); err != nil {
		return nil, err
	}

	sender, err := s.senderFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &models.BulkSendResult{Errors: []string{}}
	progress := models.BatchProgress{Total: len(req.Recipients)}
	report := func() {
		if onProgress != nil {
			onProgress(progress)
		}
	}
	report()

	start := time.Now()
	for i, r := range req.Recipients {
		if ctx.Err() != nil {
			break
		}

		if err := s.sendOne(ctx, sender, r, req); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", r.Email, logging.SanitizeError(err)))
			s.logger.Warn("Send failed",
				zap.String("user_id", userID.String()),
				zap.String("to", r.Email),
				zap.Error(err))
		} else {
			result.Successful++
		}

		progress.Completed++
		progress.Successful, progress.Failed, progress.CurrentItem = result.Successful, result.Failed, r.Email
		report()

		if i < len(req.Recipients)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(s.delay):
			}
		}
	}

	s.logger.Info("Bulk send finished",
		zap.String("user_id", userID.String()),
		zap.Int("recipients", len(req.Recipients)),
		zap.Int("successful", result.Successful),
		zap.Int("failed", result.Failed),
		zap.Bool("cancelled", ctx.Err() != nil),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

func validateBulkSend(req BulkSendRequest) error {
	if len(req.Recipients) == 0 {
		return apperrors.NewValidationError("recipients", "at least one recipient is required")
	}
	if strings.TrimSpace(req.Subject) == "" {
		return apperrors.NewValidationError("subject", "subject is required")
	}
	if strings.TrimSpace(req.Body) == "" {
		return apperrors.NewValidationError("body", "body is required")
	}
	return nil
}

// senderFor loads and opens the user's credential.
func (s *bulkSendService) senderFor(ctx context.Context, userID uuid.UUID) (mailpkg.Sender, error) {
	if s.sealer == nil || s.newSender == nil {
		return nil, apperrors.NewConfigurationError("mail", "outbound mail is not configured")
	}

	stored, err := s.creds.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NewConfigurationError("mail_credential", "no mail credential is stored for this user")
		}
		return nil, fmt.Errorf("load mail credential: %w", err)
	}

	cred, err := s.sealer.OpenCredential(*stored)
	if err != nil {
		return nil, apperrors.NewConfigurationError("mail_credential", "stored mail credential cannot be decrypted")
	}
	if !cred.ExpiresAt.IsZero() && cred.ExpiresAt.Before(time.Now()) && cred.RefreshToken == "" {
		return nil, apperrors.NewConfigurationError("mail_credential", "mail credential has expired")
	}

	sender, err := s.newSender(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("create mail sender: %w", err)
	}
	return sender, nil
}

func (s *bulkSendService) sendOne(ctx context.Context, sender mailpkg.Sender, r Recipient, req BulkSendRequest) error {
	addr, err := mail.ParseAddress(strings.TrimSpace(r.Email))
	if err != nil {
		return errors.New("invalid email address")
	}

	vars := recipientVars(r)
	return sender.Send(ctx, mailpkg.Message{
		To:      addr.Address,
		ToName:  r.Name,
		Subject: RenderTemplate(req.Subject, vars),
		Body:    RenderTemplate(req.Body, vars),
	})
}

func recipientVars(r Recipient) map[string]string {
	vars := make(map[string]string, len(r.Data)+2)
	vars["email"] = r.Email
	if r.Name != "" {
		vars["name"] = r.Name
	}
	for k, v := range r.Data {
		vars[k] = v
	}
	return vars
}

var templateVarPattern = regexp.MustCompile(`\{([^{}\s]+)\}`)

// RenderTemplate replaces {variableName} tokens with values from vars.
// Unknown tokens are left as written.
func RenderTemplate(tmpl string, vars map[string]string) string {
	return templateVarPattern.ReplaceAllStringFunc(tmpl, func(token string) string {
		if v, ok := vars[token[1:len(token)-1]]; ok {
			return v
		}
		return token
	})
}
