package account

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TokenFilter narrows token lookups
type TokenFilter func(*bun.SelectQuery) *bun.SelectQuery

// WithKind restricts the lookup to a single token kind
func WithKind(kind TokenKind) TokenFilter {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.kind = ?", kind)
	}
}

// OnlyUnused restricts the lookup to tokens that were never consumed
func OnlyUnused() TokenFilter {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.used = ?", false)
	}
}

// AccountTokens is the persistence surface for AccountToken records.
// Supersession and consumption always run against the caller's transaction
// so issuance stays atomic.
type AccountTokens interface {
	GetByValue(ctx context.Context, value string, filters ...TokenFilter) (*AccountToken, error)
	GetByValueTx(ctx context.Context, tx bun.IDB, value string, filters ...TokenFilter) (*AccountToken, error)
	FindUnusedTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, kind TokenKind) (*AccountToken, error)
	ValueExistsTx(ctx context.Context, tx bun.IDB, value string) (bool, error)
	CreateTx(ctx context.Context, tx bun.IDB, token *AccountToken) (*AccountToken, error)
	MarkUsedTx(ctx context.Context, tx bun.IDB, token *AccountToken) error
	DeleteUnusedTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, kind TokenKind) error
	DeleteByAccountTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) error
	PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error)
}

type accountTokens struct {
	db *bun.DB
}

var _ AccountTokens = (*accountTokens)(nil)

func NewAccountTokensRepository(db *bun.DB) AccountTokens {
	return &accountTokens{db: db}
}

func (r *accountTokens) GetByValue(ctx context.Context, value string, filters ...TokenFilter) (*AccountToken, error) {
	return r.GetByValueTx(ctx, r.db, value, filters...)
}

func (r *accountTokens) GetByValueTx(ctx context.Context, tx bun.IDB, value string, filters ...TokenFilter) (*AccountToken, error) {
	record := &AccountToken{}

	q := tx.NewSelect().
		Model(record).
		Where("?TableAlias.value = ?", value)

	for _, f := range filters {
		q = f(q)
	}

	if err := q.Limit(1).Scan(ctx); err != nil {
		return nil, err
	}

	return record, nil
}

func (r *accountTokens) FindUnusedTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, kind TokenKind) (*AccountToken, error) {
	record := &AccountToken{}

	q := tx.NewSelect().
		Model(record).
		Where("?TableAlias.account_id = ?", accountID)

	for _, f := range []TokenFilter{WithKind(kind), OnlyUnused()} {
		q = f(q)
	}

	if err := q.Limit(1).Scan(ctx); err != nil {
		return nil, err
	}

	return record, nil
}

func (r *accountTokens) ValueExistsTx(ctx context.Context, tx bun.IDB, value string) (bool, error) {
	return tx.NewSelect().
		Model((*AccountToken)(nil)).
		Where("?TableAlias.value = ?", value).
		Exists(ctx)
}

func (r *accountTokens) CreateTx(ctx context.Context, tx bun.IDB, token *AccountToken) (*AccountToken, error) {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}

	if _, err := tx.NewInsert().Model(token).Exec(ctx); err != nil {
		return nil, err
	}

	return token, nil
}

func (r *accountTokens) MarkUsedTx(ctx context.Context, tx bun.IDB, token *AccountToken) error {
	token.MarkUsed()

	_, err := tx.NewUpdate().
		Model(token).
		Set("used = ?", true).
		Where("?TableAlias.id = ?", token.ID).
		Exec(ctx)

	return err
}

func (r *accountTokens) DeleteUnusedTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, kind TokenKind) error {
	_, err := tx.NewDelete().
		Model((*AccountToken)(nil)).
		Where("account_id = ?", accountID).
		Where("kind = ?", kind).
		Where("used = ?", false).
		Exec(ctx)

	return err
}

// DeleteByAccountTx mirrors the FK cascade for stores that cannot enforce it
func (r *accountTokens) DeleteByAccountTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*AccountToken)(nil)).
		Where("account_id = ?", accountID).
		Exec(ctx)

	return err
}

// PurgeExpired removes tokens whose expiry is older than the given cutoff.
// Meant for a maintenance job, not the request path.
func (r *accountTokens) PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*AccountToken)(nil)).
		Where("expires_at < ?", olderThan).
		Exec(ctx)

	if err != nil {
		return 0, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}

	return n, nil
}
