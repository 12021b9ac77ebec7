package users

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-magiclink/pkg/storage"
	"github.com/goliatone/go-magiclink/pkg/types"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"golang.org/x/crypto/bcrypt"
)

func TestRepository_CreateAndFindByIdentifier(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	verified := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	created, err := repo.Create(ctx, types.User{
		Email:           "Alice@Example.com",
		Name:            "Alice",
		PasswordHash:    "hash",
		EmailVerifiedAt: &verified,
		Attributes:      map[string]any{"plan": "pro"},
	})
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", created.Email)

	found, err := repo.FindByIdentifier(ctx, types.EmailIdentifier("alice@example.com"))
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, created.ID, found.ID)
	require.Equal(t, "Alice", found.Name)
	require.Equal(t, "pro", found.Attributes["plan"])
	require.NotNil(t, found.EmailVerifiedAt)

	missing, err := repo.FindByIdentifier(ctx, types.PhoneIdentifier("+15550000000"))
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestRepository_SetPasswordInsideTransaction(t *testing.T) {
	ctx := context.Background()
	repo, db := newRepo(t)
	tx, err := storage.NewTxManager(db, nil)
	require.NoError(t, err)

	created, err := repo.Create(ctx, types.User{Phone: "+15550001111", Name: "+15550001111"})
	require.NoError(t, err)
	require.Empty(t, created.PasswordHash)

	err = tx.RunInTx(ctx, func(ctx context.Context) error {
		found, err := repo.FindByIdentifier(ctx, types.PhoneIdentifier("+15550001111"))
		if err != nil {
			return err
		}
		return repo.SetPassword(ctx, found.ID, "new-hash")
	})
	require.NoError(t, err)

	found, err := repo.FindByIdentifier(ctx, types.PhoneIdentifier("+15550001111"))
	require.NoError(t, err)
	require.Equal(t, "new-hash", found.PasswordHash)
}

func TestRepository_CreateRolledBack(t *testing.T) {
	ctx := context.Background()
	repo, db := newRepo(t)
	tx, err := storage.NewTxManager(db, nil)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := repo.Create(ctx, types.User{Email: "bob@example.com", Name: "bob"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	found, err := repo.FindByIdentifier(ctx, types.EmailIdentifier("bob@example.com"))
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestRepository_CreateDuplicateReportsExisting(t *testing.T) {
	ctx := context.Background()
	repo, db := newRepo(t)
	tx, err := storage.NewTxManager(db, nil)
	require.NoError(t, err)

	first, err := repo.Create(ctx, types.User{Email: "erin@example.com", Name: "erin", PasswordHash: "first"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, types.User{Email: "erin@example.com", Name: "erin"})
	require.ErrorIs(t, err, types.ErrUserExists)

	var found *types.User
	err = tx.RunInTx(ctx, func(ctx context.Context) error {
		_, err := repo.Create(ctx, types.User{Email: "erin@example.com", Name: "erin"})
		if !errors.Is(err, types.ErrUserExists) {
			return err
		}
		// the transaction is still usable after the conflict
		found, err = repo.FindByIdentifier(ctx, types.EmailIdentifier("erin@example.com"))
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, first.ID, found.ID)
	require.Equal(t, "first", found.PasswordHash)
}

func TestBcryptHasher(t *testing.T) {
	hash, err := BcryptHasher{Cost: bcrypt.MinCost}.Hash("placeholder")
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("placeholder")))
}

func newRepo(t *testing.T) (*Repository, *bun.DB) {
	db := newTestDB(t)
	applyDDL(t, db)
	repo, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)
	return repo, db
}

func newTestDB(t *testing.T) *bun.DB {
	sqldb, err := sql.Open("sqlite3", ":memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		_ = db.Close()
		_ = sqldb.Close()
	})
	return db
}

func applyDDL(t *testing.T, db *bun.DB) {
	content, err := os.ReadFile("../data/sql/migrations/sqlite/00002_magic_users.up.sql")
	require.NoError(t, err)
	for _, stmt := range splitStatements(string(content)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
}

func splitStatements(sql string) []string {
	lines := strings.Split(sql, "\n")
	var builder strings.Builder
	var statements []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		builder.WriteString(line)
		if strings.HasSuffix(line, ";") {
			statements = append(statements, strings.TrimSuffix(builder.String(), ";"))
			builder.Reset()
		} else {
			builder.WriteString(" ")
		}
	}
	if builder.Len() > 0 {
		statements = append(statements, builder.String())
	}
	return statements
}
