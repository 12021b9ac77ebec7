package tokens

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-magiclink/pkg/storage"
	"github.com/goliatone/go-magiclink/pkg/types"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// RepositoryConfig wires the Bun-backed token repository.
type RepositoryConfig struct {
	DB         *bun.DB
	Repository repository.Repository[*Record]
	Clock      types.Clock
}

// Repository implements types.TokenStore using Bun.
type Repository struct {
	store repository.Repository[*Record]
	clock types.Clock
	db    *bun.DB
}

// NewRepository constructs the default token repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Repository == nil && cfg.DB == nil {
		return nil, errors.New("tokens: db or repository required")
	}
	repo := cfg.Repository
	if repo == nil {
		repo = repository.NewRepository(cfg.DB, repository.ModelHandlers[*Record]{
			NewRecord: func() *Record { return &Record{} },
			GetID: func(rec *Record) uuid.UUID {
				if rec == nil {
					return uuid.Nil
				}
				return rec.ID
			},
			SetID: func(rec *Record, id uuid.UUID) {
				if rec != nil {
					rec.ID = id
				}
			},
		})
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.SystemClock{}
	}
	db := cfg.DB
	if db == nil {
		if withDB, ok := repo.(interface{ DB() *bun.DB }); ok {
			db = withDB.DB()
		}
	}
	if db == nil {
		return nil, errors.New("tokens: db required for updates")
	}
	return &Repository{store: repo, clock: clock, db: db}, nil
}

var _ types.TokenStore = (*Repository)(nil)

// Create persists a magic link. It joins the transaction carried by ctx.
func (r *Repository) Create(ctx context.Context, link types.MagicLink) (*types.MagicLink, error) {
	if link.Identifier.IsZero() {
		return nil, types.ErrIdentifierRequired
	}
	if strings.TrimSpace(link.Guard) == "" {
		return nil, types.ErrGuardRequired
	}
	rec := fromDomain(link)
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := r.clock.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	if _, ok := storage.TxFromContext(ctx); !ok {
		created, err := r.store.Create(ctx, rec)
		if err != nil {
			return nil, err
		}
		return toDomain(created), nil
	}
	if _, err := r.conn(ctx).NewInsert().Model(rec).Exec(ctx); err != nil {
		return nil, repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return toDomain(rec), nil
}

// FindRedeemable returns the unused, unexpired link for secret and guard.
func (r *Repository) FindRedeemable(ctx context.Context, secret, guard string, at time.Time) (*types.MagicLink, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, nil
	}
	rec, err := r.get(ctx, selectRedeemable(secret, strings.TrimSpace(guard), at))
	if err != nil || rec == nil {
		return nil, err
	}
	return toDomain(rec), nil
}

// GetByID returns the link regardless of state, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*types.MagicLink, error) {
	rec, err := r.get(ctx, repository.SelectBy("id", "=", id.String()))
	if err != nil || rec == nil {
		return nil, err
	}
	return toDomain(rec), nil
}

// Consume flips used on a redeemable link. Concurrent callers race on the
// conditional update and only one sees a changed row.
func (r *Repository) Consume(ctx context.Context, id uuid.UUID, at time.Time) error {
	rec := &Record{Used: true, UpdatedAt: r.clock.Now()}
	res, err := r.conn(ctx).NewUpdate().Model(rec).
		Column("used", "updated_at").
		Where("id = ?", id).
		Where("used = ?", false).
		Where("expires_at > ?", at).
		Exec(ctx)
	if err != nil {
		return repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	if err := repository.SQLExpectedCount(res, 1); err != nil {
		if repository.IsSQLExpectedCountViolation(err) {
			return types.ErrLinkNotRedeemable
		}
		return err
	}
	return nil
}

// MarkUsed flips used regardless of expiry.
func (r *Repository) MarkUsed(ctx context.Context, id uuid.UUID) error {
	rec := &Record{Used: true, UpdatedAt: r.clock.Now()}
	_, err := r.conn(ctx).NewUpdate().Model(rec).
		Column("used", "updated_at").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return nil
}

// InvalidateRedeemable marks redeemable links for the identifier as used. On
// PostgreSQL it first takes a transaction scoped advisory lock on the
// (identifier, guard) pair so concurrent issuers serialize.
func (r *Repository) InvalidateRedeemable(ctx context.Context, identifier types.Identifier, guard string, at time.Time) (int, error) {
	if identifier.IsZero() {
		return 0, types.ErrIdentifierRequired
	}
	guard = strings.TrimSpace(guard)
	if err := r.lockPair(ctx, identifier, guard); err != nil {
		return 0, err
	}
	rec := &Record{Used: true, UpdatedAt: r.clock.Now()}
	q := r.conn(ctx).NewUpdate().Model(rec).
		Column("used", "updated_at").
		Where("? = ?", bun.Ident(identifierColumn(identifier)), identifier.Value).
		Where("used = ?", false).
		Where("expires_at > ?", at)
	if guard != "" {
		q = q.Where("guard = ?", guard)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return rowsAffected(res)
}

// DeleteExpired removes every link whose deadline is before at.
func (r *Repository) DeleteExpired(ctx context.Context, at time.Time) (int, error) {
	res, err := r.conn(ctx).NewDelete().Model((*Record)(nil)).
		Where("expires_at < ?", at).
		Exec(ctx)
	if err != nil {
		return 0, repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return rowsAffected(res)
}

// Stats aggregates link counts for the filter.
func (r *Repository) Stats(ctx context.Context, filter types.StatsFilter, at time.Time) (types.LinkStats, error) {
	var stats types.LinkStats
	q := r.conn(ctx).NewSelect().Model((*Record)(nil)).
		ColumnExpr("COUNT(*)").
		ColumnExpr("COALESCE(SUM(CASE WHEN used = ? THEN 1 ELSE 0 END), 0)", true).
		ColumnExpr("COALESCE(SUM(CASE WHEN used = ? AND expires_at <= ? THEN 1 ELSE 0 END), 0)", false, at).
		ColumnExpr("COALESCE(SUM(CASE WHEN used = ? AND expires_at > ? THEN 1 ELSE 0 END), 0)", false, at)
	if filter.Identifier != nil && !filter.Identifier.IsZero() {
		q = q.Where("? = ?", bun.Ident(identifierColumn(*filter.Identifier)), filter.Identifier.Value)
	}
	if guard := strings.TrimSpace(filter.Guard); guard != "" {
		q = q.Where("guard = ?", guard)
	}
	if err := q.Scan(ctx, &stats.Total, &stats.Used, &stats.Expired, &stats.Active); err != nil {
		return types.LinkStats{}, repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return stats, nil
}

func (r *Repository) conn(ctx context.Context) bun.IDB {
	return storage.Conn(ctx, r.db)
}

// get reads through the generic store unless a transaction is open, in which
// case the read must run on the transaction connection.
func (r *Repository) get(ctx context.Context, criteria repository.SelectCriteria) (*Record, error) {
	if tx, ok := storage.TxFromContext(ctx); ok {
		rec := &Record{}
		err := criteria(tx.NewSelect().Model(rec)).Limit(1).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, repository.MapDatabaseError(err, repository.DetectDriver(r.db))
		}
		return rec, nil
	}
	rec, err := r.store.Get(ctx, criteria)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (r *Repository) lockPair(ctx context.Context, identifier types.Identifier, guard string) error {
	tx, ok := storage.TxFromContext(ctx)
	if !ok || r.db.Dialect().Name() != dialect.PG {
		return nil
	}
	key := string(identifier.Kind) + ":" + identifier.Value + "|" + guard
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?))", key); err != nil {
		return repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return nil
}

func selectRedeemable(secret, guard string, at time.Time) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		q = q.Where("secret = ?", secret).
			Where("used = ?", false).
			Where("expires_at > ?", at)
		if guard != "" {
			q = q.Where("guard = ?", guard)
		}
		return q
	}
}

func identifierColumn(identifier types.Identifier) string {
	if identifier.IsEmail() {
		return "email"
	}
	return "phone"
}

func rowsAffected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func fromDomain(link types.MagicLink) *Record {
	return &Record{
		ID:         link.ID,
		Email:      link.Identifier.Email(),
		Phone:      link.Identifier.Phone(),
		Secret:     link.Secret,
		Guard:      strings.TrimSpace(link.Guard),
		Used:       link.Used,
		Attributes: cloneMap(link.Attributes),
		ExpiresAt:  link.ExpiresAt,
		CreatedAt:  link.CreatedAt,
		UpdatedAt:  link.UpdatedAt,
	}
}

func toDomain(rec *Record) *types.MagicLink {
	if rec == nil {
		return nil
	}
	identifier := types.PhoneIdentifier(rec.Phone)
	if rec.Email != "" {
		identifier = types.EmailIdentifier(rec.Email)
	}
	return &types.MagicLink{
		ID:         rec.ID,
		Identifier: identifier,
		Secret:     rec.Secret,
		Guard:      rec.Guard,
		Used:       rec.Used,
		Attributes: cloneMap(rec.Attributes),
		ExpiresAt:  rec.ExpiresAt,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
