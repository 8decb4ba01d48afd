package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RefreshValidation carries the token record plus a snapshot of its owner so
// callers need no second directory round trip to gate on role or status.
type RefreshValidation struct {
	Token *RefreshToken
	User  *User
}

// RefreshTokens is the store contract for refresh credentials. The directory
// is the sole source of truth for revocation; access tokens never pass
// through here.
type RefreshTokens interface {
	Create(ctx context.Context, userID uuid.UUID, rawToken string, expiresAt time.Time) (*RefreshToken, error)
	CreateTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, rawToken string, expiresAt time.Time) (*RefreshToken, error)

	// Validate resolves a raw token to its record and owner snapshot.
	// Not-found, expired, and revoked all surface as ErrInvalidRefresh.
	Validate(ctx context.Context, rawToken string) (*RefreshValidation, error)

	// Revoke invalidates a single device's token, or every token for the
	// user when rawToken is nil. Returns the number of tokens revoked.
	Revoke(ctx context.Context, userID uuid.UUID, rawToken *string) (int, error)
	RevokeTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, rawToken *string) (int, error)

	PurgeExpired(ctx context.Context, olderThan time.Time) (int, error)
}

type refreshTokens struct {
	db     *bun.DB
	logger Logger
	now    func() time.Time
}

var _ RefreshTokens = (*refreshTokens)(nil)

func NewRefreshTokensRepository(db *bun.DB) RefreshTokens {
	return &refreshTokens{
		db:     db,
		logger: defLogger{},
		now:    time.Now,
	}
}

func (r *refreshTokens) WithLogger(logger Logger) *refreshTokens {
	if logger != nil {
		r.logger = logger
	}
	return r
}

func (r *refreshTokens) Create(ctx context.Context, userID uuid.UUID, rawToken string, expiresAt time.Time) (*RefreshToken, error) {
	return r.CreateTx(ctx, r.db, userID, rawToken, expiresAt)
}

func (r *refreshTokens) CreateTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, rawToken string, expiresAt time.Time) (*RefreshToken, error) {
	record := &RefreshToken{
		ID:          uuid.New(),
		UserID:      userID,
		TokenDigest: TokenDigest(rawToken),
		ExpiresAt:   expiresAt,
	}

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store refresh token")
	}

	return record, nil
}

func (r *refreshTokens) Validate(ctx context.Context, rawToken string) (*RefreshValidation, error) {
	record := &RefreshToken{}

	err := r.db.NewSelect().
		Model(record).
		Relation("User").
		Where("?TableAlias.token_digest = ?", TokenDigest(rawToken)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug("refresh validate: token not found")
			return nil, ErrInvalidRefresh
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up refresh token")
	}

	if record.Revoked {
		r.logger.Debug("refresh validate: token revoked", "user_id", record.UserID)
		return nil, ErrInvalidRefresh
	}

	if !record.ExpiresAt.After(r.now()) {
		r.logger.Debug("refresh validate: token expired", "user_id", record.UserID)
		return nil, ErrInvalidRefresh
	}

	if record.User == nil || record.User.DeletedAt != nil {
		r.logger.Debug("refresh validate: owner missing or deleted", "user_id", record.UserID)
		return nil, ErrInvalidRefresh
	}

	record.User.EnsureStatus()

	return &RefreshValidation{Token: record, User: record.User}, nil
}

func (r *refreshTokens) Revoke(ctx context.Context, userID uuid.UUID, rawToken *string) (int, error) {
	return r.RevokeTx(ctx, r.db, userID, rawToken)
}

func (r *refreshTokens) RevokeTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, rawToken *string) (int, error) {
	now := r.now()

	q := tx.NewUpdate().
		Model((*RefreshToken)(nil)).
		Set("revoked = TRUE").
		Set("revoked_at = ?", now).
		Where("user_id = ?", userID).
		Where("revoked = FALSE")

	if rawToken != nil {
		q = q.Where("token_digest = ?", TokenDigest(*rawToken))
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke refresh tokens")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to count revoked refresh tokens")
	}

	return int(affected), nil
}

func (r *refreshTokens) PurgeExpired(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := r.db.NewDelete().
		Model((*RefreshToken)(nil)).
		Where("expires_at < ?", olderThan).
		Exec(ctx)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to purge expired refresh tokens")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	return int(affected), nil
}
