package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-crm/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-crm/pkg/crypto"
	mailpkg "github.com/ekaya-inc/ekaya-crm/pkg/mail"
	"github.com/ekaya-inc/ekaya-crm/pkg/models"
	"github.com/ekaya-inc/ekaya-crm/pkg/repositories"
)

type sentLog struct {
	mu    sync.Mutex
	msgs  []mailpkg.Message
	times []time.Time
}

func (l *sentLog) factory(fail map[string]error) SenderFactory {
	return func(ctx context.Context, cred models.MailCredential) (mailpkg.Sender, error) {
		return mailpkg.SenderFunc(func(ctx context.Context, msg mailpkg.Message) error {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.msgs = append(l.msgs, msg)
			l.times = append(l.times, time.Now())
			return fail[msg.To]
		}), nil
	}
}

type bulkSendTestContext struct {
	svc    BulkSendService
	creds  repositories.MailCredentialRepository
	sealer *crypto.TokenSealer
	sent   *sentLog
	userID uuid.UUID
}

func setupBulkSend(t *testing.T, fail map[string]error) *bulkSendTestContext {
	t.Helper()
	sealer, err := crypto.NewTokenSealer("bulk-send-test-key")
	require.NoError(t, err)
	tc := &bulkSendTestContext{
		creds:  repositories.NewMemoryMailCredentialRepository(),
		sealer: sealer,
		sent:   &sentLog{},
		userID: uuid.New(),
	}
	tc.svc = NewBulkSendService(tc.creds, sealer, tc.sent.factory(fail), 0, zap.NewNop())
	return tc
}

func (tc *bulkSendTestContext) saveCredential(t *testing.T) {
	t.Helper()
	require.NoError(t, tc.svc.SaveCredential(context.Background(), models.MailCredential{
		UserID:       tc.userID,
		Sender:       "sales@example.com",
		AccessToken:  "ya29.access",
		RefreshToken: "1//refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}))
}

func TestBulkSend_TalliesAndReportsProgress(t *testing.T) {
	tc := setupBulkSend(t, map[string]error{"b@example.com": errors.New("mailbox full")})
	tc.saveCredential(t)
	log := &progressLog{}

	res, err := tc.svc.Send(context.Background(), tc.userID, BulkSendRequest{
		Recipients: []Recipient{
			{Email: "a@example.com", Name: "Aiko"},
			{Email: "b@example.com", Name: "Ben"},
		},
		Subject: "Hello {name}",
		Body:    "Dear {name}, about {company}.",
	}, log.record)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Successful)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{"b@example.com: mailbox full"}, res.Errors)

	events := log.all()
	require.Len(t, events, 3)
	assert.Equal(t, models.BatchProgress{Total: 2}, events[0])
	assert.Equal(t, 1, events[1].Completed)
	assert.Equal(t, 2, events[2].Completed)
	assert.Equal(t, 1, events[2].Failed)

	require.Len(t, tc.sent.msgs, 2)
	assert.Equal(t, "Hello Aiko", tc.sent.msgs[0].Subject)
	assert.Equal(t, "Dear Aiko, about {company}.", tc.sent.msgs[0].Body)
	assert.GreaterOrEqual(t, tc.sent.times[1].Sub(tc.sent.times[0]), MinSendDelay)
}

func TestBulkSend_InvalidAddressIsPerRecipient(t *testing.T) {
	tc := setupBulkSend(t, nil)
	tc.saveCredential(t)

	res, err := tc.svc.Send(context.Background(), tc.userID, BulkSendRequest{
		Recipients: []Recipient{{Email: "not-an-address"}, {Email: "ok@example.com"}},
		Subject:    "Hi",
		Body:       "Body",
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Successful)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, "not-an-address: invalid email address", res.Errors[0])
	require.Len(t, tc.sent.msgs, 1)
	assert.Equal(t, "ok@example.com", tc.sent.msgs[0].To)
}

func TestBulkSend_Validation(t *testing.T) {
	tc := setupBulkSend(t, nil)
	tc.saveCredential(t)

	for _, req := range []BulkSendRequest{
		{Subject: "s", Body: "b"},
		{Recipients: []Recipient{{Email: "a@example.com"}}, Body: "b"},
		{Recipients: []Recipient{{Email: "a@example.com"}}, Subject: "s"},
	} {
		_, err := tc.svc.Send(context.Background(), tc.userID, req, nil)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	}
	assert.Empty(t, tc.sent.msgs)
}

func TestBulkSend_CredentialProblemsAreConfigurationErrors(t *testing.T) {
	req := BulkSendRequest{Recipients: []Recipient{{Email: "a@example.com"}}, Subject: "s", Body: "b"}

	t.Run("missing", func(t *testing.T) {
		tc := setupBulkSend(t, nil)
		log := &progressLog{}

		_, err := tc.svc.Send(context.Background(), tc.userID, req, log.record)

		assert.ErrorIs(t, err, apperrors.ErrConfiguration)
		assert.Empty(t, log.all(), "no progress before the credential check passes")
	})

	t.Run("expired without refresh token", func(t *testing.T) {
		tc := setupBulkSend(t, nil)
		require.NoError(t, tc.svc.SaveCredential(context.Background(), models.MailCredential{
			UserID:      tc.userID,
			Sender:      "sales@example.com",
			AccessToken: "ya29.old",
			ExpiresAt:   time.Now().Add(-time.Hour),
		}))

		_, err := tc.svc.Send(context.Background(), tc.userID, req, nil)

		assert.ErrorIs(t, err, apperrors.ErrConfiguration)
	})

	t.Run("sealed with another key", func(t *testing.T) {
		tc := setupBulkSend(t, nil)
		other, err := crypto.NewTokenSealer("a-different-key")
		require.NoError(t, err)
		sealed, err := other.SealCredential(models.MailCredential{UserID: tc.userID, Sender: "s@example.com", AccessToken: "tok"})
		require.NoError(t, err)
		require.NoError(t, tc.creds.Upsert(context.Background(), &sealed))

		_, err = tc.svc.Send(context.Background(), tc.userID, req, nil)

		assert.ErrorIs(t, err, apperrors.ErrConfiguration)
	})

	t.Run("mail not configured", func(t *testing.T) {
		svc := NewBulkSendService(repositories.NewMemoryMailCredentialRepository(), nil, nil, 0, zap.NewNop())

		_, err := svc.Send(context.Background(), uuid.New(), req, nil)
		assert.ErrorIs(t, err, apperrors.ErrConfiguration)

		err = svc.SaveCredential(context.Background(), models.MailCredential{UserID: uuid.New(), Sender: "a@example.com", AccessToken: "t"})
		assert.ErrorIs(t, err, apperrors.ErrConfiguration)
	})
}

func TestBulkSend_StoresSealedTokens(t *testing.T) {
	tc := setupBulkSend(t, nil)
	tc.saveCredential(t)

	stored, err := tc.creds.Get(context.Background(), tc.userID)
	require.NoError(t, err)
	assert.NotEqual(t, "ya29.access", stored.AccessToken)
	assert.Equal(t, "gmail", stored.Provider)

	opened, err := tc.sealer.OpenCredential(*stored)
	require.NoError(t, err)
	assert.Equal(t, "ya29.access", opened.AccessToken)
	assert.Equal(t, "1//refresh", opened.RefreshToken)
}

func TestBulkSend_CancelStopsBetweenRecipients(t *testing.T) {
	tc := setupBulkSend(t, nil)
	tc.saveCredential(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := &progressLog{}
	res, err := tc.svc.Send(ctx, tc.userID, BulkSendRequest{
		Recipients: []Recipient{{Email: "a@example.com"}, {Email: "b@example.com"}, {Email: "c@example.com"}},
		Subject:    "s",
		Body:       "b",
	}, func(p models.BatchProgress) {
		log.record(p)
		if p.Completed == 1 {
			cancel()
		}
	})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Successful)
	assert.Len(t, tc.sent.msgs, 1)
	assert.Len(t, log.all(), 2)
}

func TestRenderTemplate(t *testing.T) {
	vars := map[string]string{"name": "Aiko", "company": "Acme"}

	assert.Equal(t, "Hi Aiko at Acme", RenderTemplate("Hi {name} at {company}", vars))
	assert.Equal(t, "Hi {title} Aiko", RenderTemplate("Hi {title} Aiko", vars))
	assert.Equal(t, "{ name }", RenderTemplate("{ name }", vars))
	assert.Equal(t, "", RenderTemplate("", vars))
}
