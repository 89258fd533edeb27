package repositories

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-crm/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-crm/pkg/database"
	"github.com/ekaya-inc/ekaya-crm/pkg/models"
)

// MailCredentialRepository stores per-user outbound mail credentials.
// Tokens are stored as given; callers encrypt before Upsert.
type MailCredentialRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.MailCredential, error)
	Upsert(ctx context.Context, cred *models.MailCredential) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

type mailCredentialRepository struct {
	db *database.DB
}

// NewMailCredentialRepository creates a PostgreSQL-backed MailCredentialRepository.
func NewMailCredentialRepository(db *database.DB) MailCredentialRepository {
	return &mailCredentialRepository{db: db}
}

var _ MailCredentialRepository = (*mailCredentialRepository)(nil)

func (r *mailCredentialRepository) Get(ctx context.Context, userID uuid.UUID) (*models.MailCredential, error) {
	query := `
		SELECT user_id, provider, sender, access_token, refresh_token, expires_at, updated_at
		FROM mail_credentials
		WHERE user_id = $1`

	var c models.MailCredential
	var expiresAt *time.Time
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&c.UserID, &c.Provider, &c.Sender, &c.AccessToken, &c.RefreshToken, &expiresAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get mail credential: %w", err)
	}
	if expiresAt != nil {
		c.ExpiresAt = *expiresAt
	}
	return &c, nil
}

func (r *mailCredentialRepository) Upsert(ctx context.Context, cred *models.MailCredential) error {
	var expiresAt *time.Time
	if !cred.ExpiresAt.IsZero() {
		expiresAt = &cred.ExpiresAt
	}

	query := `
		INSERT INTO mail_credentials (user_id, provider, sender, access_token, refresh_token, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (user_id) DO UPDATE SET
			provider = EXCLUDED.provider,
			sender = EXCLUDED.sender,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			updated_at = now()
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		cred.UserID, cred.Provider, cred.Sender, cred.AccessToken, cred.RefreshToken, expiresAt,
	).Scan(&cred.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert mail credential: %w", err)
	}
	return nil
}

func (r *mailCredentialRepository) Delete(ctx context.Context, userID uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM mail_credentials WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete mail credential: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

type memoryMailCredentialRepository struct {
	mu    sync.RWMutex
	creds map[uuid.UUID]models.MailCredential
}

// NewMemoryMailCredentialRepository creates an in-memory MailCredentialRepository.
func NewMemoryMailCredentialRepository() MailCredentialRepository {
	return &memoryMailCredentialRepository{creds: make(map[uuid.UUID]models.MailCredential)}
}

var _ MailCredentialRepository = (*memoryMailCredentialRepository)(nil)

func (r *memoryMailCredentialRepository) Get(ctx context.Context, userID uuid.UUID) (*models.MailCredential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.creds[userID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &c, nil
}

func (r *memoryMailCredentialRepository) Upsert(ctx context.Context, cred *models.MailCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cred.UpdatedAt = time.Now()
	r.creds[cred.UserID] = *cred
	return nil
}

func (r *memoryMailCredentialRepository) Delete(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.creds[userID]; !ok {
		return apperrors.ErrNotFound
	}
	delete(r.creds, userID)
	return nil
}
