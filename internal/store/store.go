package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/iurnickita/digimart/internal/model"
	"github.com/iurnickita/digimart/internal/store/config"
)

type Store interface {
	// Покупки
	CreatePurchase(ctx context.Context, purchase model.Purchase) (model.Purchase, error)
	Transition(ctx context.Context, id string, from, to model.PurchaseStatus, fields model.TransitionFields) (model.Purchase, error)
	FindByID(ctx context.Context, id string) (model.Purchase, error)
	FindByPaymentRef(ctx context.Context, paymentRef string) (model.Purchase, error)
	FindByBuyer(ctx context.Context, buyer string) ([]model.Purchase, error)
	FindByToken(ctx context.Context, token string) (model.Purchase, error)
	FindAbandoned(ctx context.Context, olderThan time.Time, limit int) ([]model.Purchase, error)

	// Каталог
	CreateListing(ctx context.Context, listing model.Listing) (model.Listing, error)
	GetListing(ctx context.Context, id string) (model.Listing, error)
	AdjustSales(ctx context.Context, listingID string, delta int64) error
	RecountSales(ctx context.Context) (int64, error)

	Close() error
}

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrConflict          = errors.New("state conflict")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrInvariant         = errors.New("purchase invariant violated")
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// код ошибки PostgreSQL unique_violation
const pgUniqueViolation = "23505"

type store struct {
	database *sql.DB
}

func NewStore(cfg config.Config) (Store, error) {
	var schema []string
	switch cfg.Driver {
	case DriverPostgres:
		schema = postgresSchema
	case DriverSQLite:
		schema = sqliteSchema
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DBDsn)
	if err != nil {
		return nil, err
	}
	if cfg.Driver == DriverSQLite {
		// один писатель
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	for _, stmt := range schema {
		if _, err = db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	return &store{
		database: db,
	}, nil
}

func (store *store) Close() error {
	return store.database.Close()
}

// Таблица покупок - журнал, записи не удаляются.
// Уникальный payment_ref исключает повторное создание покупки,
// смена статуса выполняется условным UPDATE (compare-and-swap).
var postgresSchema = []string{
	"CREATE TABLE IF NOT EXISTS listings (" +
		" id VARCHAR (36) PRIMARY KEY," +
		" seller VARCHAR (64) NOT NULL," +
		" title TEXT NOT NULL," +
		" price NUMERIC (12, 2) NOT NULL CHECK (price >= 0)," +
		" file_locator TEXT NOT NULL," +
		" sales BIGINT NOT NULL DEFAULT 0," +
		" created_at TIMESTAMPTZ NOT NULL" +
		" );",
	"CREATE TABLE IF NOT EXISTS purchases (" +
		" id VARCHAR (36) PRIMARY KEY," +
		" buyer VARCHAR (64) NOT NULL," +
		" listing_id VARCHAR (36) NOT NULL REFERENCES listings (id)," +
		" amount NUMERIC (12, 2) NOT NULL CHECK (amount >= 0)," +
		" payment_ref VARCHAR (128) NOT NULL UNIQUE," +
		" proof_ref VARCHAR (128)," +
		" status VARCHAR (24) NOT NULL" +
		"   CHECK (status IN ('pending', 'verification_needed', 'completed', 'refunded'))," +
		" download_token VARCHAR (64) UNIQUE," +
		" token_expiry TIMESTAMPTZ," +
		" created_at TIMESTAMPTZ NOT NULL," +
		" updated_at TIMESTAMPTZ NOT NULL," +
		" CHECK ((status = 'completed') = (download_token IS NOT NULL))," +
		" CHECK ((download_token IS NULL) = (token_expiry IS NULL))" +
		" );",
	"CREATE INDEX IF NOT EXISTS purchases_buyer_idx ON purchases (buyer, created_at DESC);",
}

var sqliteSchema = []string{
	"CREATE TABLE IF NOT EXISTS listings (" +
		" id TEXT PRIMARY KEY," +
		" seller TEXT NOT NULL," +
		" title TEXT NOT NULL," +
		" price TEXT NOT NULL," +
		" file_locator TEXT NOT NULL," +
		" sales INTEGER NOT NULL DEFAULT 0," +
		" created_at DATETIME NOT NULL" +
		" );",
	"CREATE TABLE IF NOT EXISTS purchases (" +
		" id TEXT PRIMARY KEY," +
		" buyer TEXT NOT NULL," +
		" listing_id TEXT NOT NULL REFERENCES listings (id)," +
		" amount TEXT NOT NULL," +
		" payment_ref TEXT NOT NULL UNIQUE," +
		" proof_ref TEXT," +
		" status TEXT NOT NULL" +
		"   CHECK (status IN ('pending', 'verification_needed', 'completed', 'refunded'))," +
		" download_token TEXT UNIQUE," +
		" token_expiry DATETIME," +
		" created_at DATETIME NOT NULL," +
		" updated_at DATETIME NOT NULL," +
		" CHECK ((status = 'completed') = (download_token IS NOT NULL))," +
		" CHECK ((download_token IS NULL) = (token_expiry IS NULL))" +
		" );",
	"CREATE INDEX IF NOT EXISTS purchases_buyer_idx ON purchases (buyer, created_at DESC);",
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
