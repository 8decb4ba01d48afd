package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SessionExchanges persists one-shot handoff tokens. Claim is the only read
// path and doubles as the consume step so redemption is at-most-once even
// under concurrent requests.
type SessionExchanges interface {
	Create(ctx context.Context, userID uuid.UUID, rawToken string, expiresAt time.Time) (*SessionExchange, error)
	CreateTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, rawToken string, expiresAt time.Time) (*SessionExchange, error)

	// Claim atomically marks the token consumed and returns its record. A
	// token that is unknown, expired, or already consumed yields
	// ErrInvalidSessionToken; the update-where-unconsumed statement is the
	// compare-and-swap that closes the redeem race.
	Claim(ctx context.Context, rawToken string) (*SessionExchange, error)

	PurgeExpired(ctx context.Context, olderThan time.Time) (int, error)
}

type sessionExchanges struct {
	db     *bun.DB
	logger Logger
	now    func() time.Time
}

var _ SessionExchanges = (*sessionExchanges)(nil)

func NewSessionExchangesRepository(db *bun.DB) SessionExchanges {
	return &sessionExchanges{
		db:     db,
		logger: defLogger{},
		now:    time.Now,
	}
}

func (r *sessionExchanges) WithLogger(logger Logger) *sessionExchanges {
	if logger != nil {
		r.logger = logger
	}
	return r
}

func (r *sessionExchanges) Create(ctx context.Context, userID uuid.UUID, rawToken string, expiresAt time.Time) (*SessionExchange, error) {
	return r.CreateTx(ctx, r.db, userID, rawToken, expiresAt)
}

func (r *sessionExchanges) CreateTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, rawToken string, expiresAt time.Time) (*SessionExchange, error) {
	record := &SessionExchange{
		ID:          uuid.New(),
		UserID:      userID,
		TokenDigest: TokenDigest(rawToken),
		ExpiresAt:   expiresAt,
	}

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store session exchange token")
	}

	return record, nil
}

func (r *sessionExchanges) Claim(ctx context.Context, rawToken string) (*SessionExchange, error) {
	now := r.now()
	record := &SessionExchange{}

	res, err := r.db.NewUpdate().
		Model(record).
		Set("consumed_at = ?", now).
		Where("token_digest = ?", TokenDigest(rawToken)).
		Where("consumed_at IS NULL").
		Where("expires_at > ?", now).
		Returning("*").
		Exec(ctx)

	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to claim session exchange token")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to inspect session exchange claim")
	}

	if affected == 0 {
		r.logger.Debug("session exchange claim rejected: token unknown, expired, or already consumed")
		return nil, ErrInvalidSessionToken
	}

	return record, nil
}

func (r *sessionExchanges) PurgeExpired(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := r.db.NewDelete().
		Model((*SessionExchange)(nil)).
		Where("expires_at < ?", olderThan).
		Exec(ctx)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to purge expired session exchange tokens")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	return int(affected), nil
}
