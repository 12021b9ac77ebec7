package users

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/goliatone/go-magiclink/pkg/storage"
	"github.com/goliatone/go-magiclink/pkg/types"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryConfig wires the Bun-backed user repository.
type RepositoryConfig struct {
	DB         *bun.DB
	Repository repository.Repository[*Record]
	Clock      types.Clock
}

// Repository implements types.UserRepository using Bun.
type Repository struct {
	store repository.Repository[*Record]
	clock types.Clock
	db    *bun.DB
}

// NewRepository constructs the default user repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Repository == nil && cfg.DB == nil {
		return nil, errors.New("users: db or repository required")
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
		return nil, errors.New("users: db required for updates")
	}
	return &Repository{store: repo, clock: clock, db: db}, nil
}

var _ types.UserRepository = (*Repository)(nil)

// FindByIdentifier returns the user owning the email or phone, or nil.
func (r *Repository) FindByIdentifier(ctx context.Context, identifier types.Identifier) (*types.User, error) {
	if identifier.IsZero() {
		return nil, types.ErrIdentifierRequired
	}
	column := "phone"
	if identifier.IsEmail() {
		column = "email"
	}
	criteria := repository.SelectBy(column, "=", identifier.Value)

	if tx, ok := storage.TxFromContext(ctx); ok {
		rec := &Record{}
		err := criteria(tx.NewSelect().Model(rec)).Limit(1).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, repository.MapDatabaseError(err, repository.DetectDriver(r.db))
		}
		return toDomain(rec), nil
	}

	rec, err := r.store.Get(ctx, criteria)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return toDomain(rec), nil
}

// Create inserts a new user. It joins the transaction carried by ctx and
// returns types.ErrUserExists when the email or phone is already taken.
func (r *Repository) Create(ctx context.Context, user types.User) (*types.User, error) {
	if strings.TrimSpace(user.Email) == "" && strings.TrimSpace(user.Phone) == "" {
		return nil, types.ErrIdentifierRequired
	}
	rec := fromDomain(user)
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
			if repository.IsDuplicatedKey(err) {
				return nil, types.ErrUserExists
			}
			return nil, err
		}
		return toDomain(created), nil
	}
	// a raised conflict would abort the surrounding Postgres transaction
	res, err := storage.Conn(ctx, r.db).NewInsert().Model(rec).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return nil, types.ErrUserExists
	}
	return toDomain(rec), nil
}

// SetPassword stores a new password hash.
func (r *Repository) SetPassword(ctx context.Context, id uuid.UUID, hash string) error {
	if id == uuid.Nil {
		return errors.New("users: id required")
	}
	rec := &Record{PasswordHash: hash, UpdatedAt: r.clock.Now()}
	res, err := storage.Conn(ctx, r.db).NewUpdate().Model(rec).
		Column("password_hash", "updated_at").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return repository.SQLExpectedCount(res, 1)
}

func fromDomain(user types.User) *Record {
	return &Record{
		ID:              user.ID,
		Email:           strings.ToLower(strings.TrimSpace(user.Email)),
		Phone:           strings.TrimSpace(user.Phone),
		Name:            user.Name,
		PasswordHash:    user.PasswordHash,
		EmailVerifiedAt: user.EmailVerifiedAt,
		Attributes:      user.Attributes,
		CreatedAt:       user.CreatedAt,
		UpdatedAt:       user.UpdatedAt,
	}
}

func toDomain(rec *Record) *types.User {
	if rec == nil {
		return nil
	}
	return &types.User{
		ID:              rec.ID,
		Email:           rec.Email,
		Phone:           rec.Phone,
		Name:            rec.Name,
		PasswordHash:    rec.PasswordHash,
		EmailVerifiedAt: rec.EmailVerifiedAt,
		Attributes:      rec.Attributes,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
}
