package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iurnickita/digimart/internal/model"
)

const purchaseColumns = "id, buyer, listing_id, amount, payment_ref, proof_ref, status," +
	" download_token, token_expiry, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPurchase(row rowScanner) (model.Purchase, error) {
	var (
		purchase    model.Purchase
		proofRef    sql.NullString
		status      string
		token       sql.NullString
		tokenExpiry sql.NullTime
	)
	err := row.Scan(&purchase.ID,
		&purchase.Data.Buyer,
		&purchase.Data.Listing,
		&purchase.Data.Amount,
		&purchase.Data.PaymentRef,
		&proofRef,
		&status,
		&token,
		&tokenExpiry,
		&purchase.Data.CreatedAt,
		&purchase.Data.UpdatedAt)
	if err != nil {
		return model.Purchase{}, err
	}
	purchase.Data.ProofRef = proofRef.String
	purchase.Data.Status = model.PurchaseStatus(status)
	purchase.Data.DownloadToken = token.String
	if tokenExpiry.Valid {
		purchase.Data.TokenExpiry = tokenExpiry.Time.UTC()
	}
	purchase.Data.CreatedAt = purchase.Data.CreatedAt.UTC()
	purchase.Data.UpdatedAt = purchase.Data.UpdatedAt.UTC()
	return purchase, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}

// CreatePurchase записывает новую покупку в статусе pending.
// При повторе payment_ref возвращает существующую запись и ErrAlreadyExists.
func (store *store) CreatePurchase(ctx context.Context, purchase model.Purchase) (model.Purchase, error) {
	if purchase.Data.Amount.IsNegative() {
		return model.Purchase{}, fmt.Errorf("%w: negative amount", ErrInvariant)
	}
	created := purchase.Data.CreatedAt.UTC()
	if created.IsZero() {
		created = time.Now().UTC()
	}

	row := store.database.QueryRowContext(ctx,
		"INSERT INTO purchases (id, buyer, listing_id, amount, payment_ref, status, created_at, updated_at)"+
			" VALUES ($1, $2, $3, $4, $5, $6, $7, $8)"+
			" ON CONFLICT (payment_ref) DO NOTHING"+
			" RETURNING "+purchaseColumns,
		purchase.ID,
		purchase.Data.Buyer,
		purchase.Data.Listing,
		purchase.Data.Amount.StringFixed(2),
		purchase.Data.PaymentRef,
		string(model.PurchaseStatusPending),
		created,
		created)
	stored, err := scanPurchase(row)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		if isUniqueViolation(err) {
			// совпал id, а не payment_ref
			return model.Purchase{}, fmt.Errorf("create purchase %s: %w", purchase.ID, ErrAlreadyExists)
		}
		return model.Purchase{}, fmt.Errorf("create purchase: %w", err)
	}

	// Проверка: уже существует
	existing, err := store.FindByPaymentRef(ctx, purchase.Data.PaymentRef)
	if err != nil {
		return model.Purchase{}, err
	}
	return existing, ErrAlreadyExists
}

// Transition меняет статус покупки, только если текущий статус равен from.
func (store *store) Transition(ctx context.Context, id string, from, to model.PurchaseStatus, fields model.TransitionFields) (model.Purchase, error) {
	if !model.CanTransition(from, to) {
		return model.Purchase{}, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}

	var (
		token  sql.NullString
		expiry sql.NullTime
	)
	if to == model.PurchaseStatusCompleted {
		if fields.DownloadToken == "" || fields.TokenExpiry.IsZero() {
			return model.Purchase{}, fmt.Errorf("%w: completed purchase requires a download token", ErrInvariant)
		}
		token = nullString(fields.DownloadToken)
		expiry = nullTime(fields.TokenExpiry)
	}
	updated := fields.UpdatedAt.UTC()
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	// expiry > created_at проверяется в той же инструкции
	row := store.database.QueryRowContext(ctx,
		"UPDATE purchases"+
			" SET status = $1,"+
			"     download_token = $2,"+
			"     token_expiry = $3,"+
			"     proof_ref = COALESCE($4, proof_ref),"+
			"     updated_at = $5"+
			" WHERE id = $6"+
			"   AND status = $7"+
			"   AND ($3 IS NULL OR $3 > created_at)"+
			" RETURNING "+purchaseColumns,
		string(to),
		token,
		expiry,
		nullString(fields.ProofRef),
		updated,
		id,
		string(from))
	purchase, err := scanPurchase(row)
	if err == nil {
		return purchase, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		if isUniqueViolation(err) {
			return model.Purchase{}, fmt.Errorf("download token collision: %w", ErrAlreadyExists)
		}
		return model.Purchase{}, fmt.Errorf("transition purchase %s: %w", id, err)
	}

	current, err := store.FindByID(ctx, id)
	if err != nil {
		return model.Purchase{}, err
	}
	if current.Data.Status == from {
		// статус совпал, значит не прошла проверка срока токена
		return model.Purchase{}, fmt.Errorf("%w: token expiry must be after creation time", ErrInvariant)
	}
	return model.Purchase{}, ErrConflict
}

func (store *store) FindByID(ctx context.Context, id string) (model.Purchase, error) {
	return store.findOne(ctx, "id", id)
}

func (store *store) FindByPaymentRef(ctx context.Context, paymentRef string) (model.Purchase, error) {
	return store.findOne(ctx, "payment_ref", paymentRef)
}

func (store *store) FindByToken(ctx context.Context, token string) (model.Purchase, error) {
	if token == "" {
		return model.Purchase{}, ErrNotFound
	}
	return store.findOne(ctx, "download_token", token)
}

// column - только константы из этого файла
func (store *store) findOne(ctx context.Context, column string, value string) (model.Purchase, error) {
	row := store.database.QueryRowContext(ctx,
		"SELECT "+purchaseColumns+
			" FROM purchases"+
			" WHERE "+column+" = $1",
		value)
	purchase, err := scanPurchase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Purchase{}, ErrNotFound
		}
		return model.Purchase{}, fmt.Errorf("find purchase by %s: %w", column, err)
	}
	return purchase, nil
}

// FindByBuyer возвращает покупки пользователя, новые первыми.
func (store *store) FindByBuyer(ctx context.Context, buyer string) ([]model.Purchase, error) {
	rows, err := store.database.QueryContext(ctx,
		"SELECT "+purchaseColumns+
			" FROM purchases"+
			" WHERE buyer = $1"+
			" ORDER BY created_at DESC, id DESC",
		buyer)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var purchases []model.Purchase
	for rows.Next() {
		purchase, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, purchase)
	}
	return purchases, rows.Err()
}

// FindAbandoned возвращает неоплаченные покупки, созданные раньше olderThan,
// старые первыми. Статус не меняется: решение об отмене принимает вызывающий.
func (store *store) FindAbandoned(ctx context.Context, olderThan time.Time, limit int) ([]model.Purchase, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := store.database.QueryContext(ctx,
		"SELECT "+purchaseColumns+
			" FROM purchases"+
			" WHERE status = $1"+
			"   AND created_at < $2"+
			" ORDER BY created_at, id"+
			" LIMIT $3",
		string(model.PurchaseStatusPending),
		olderThan.UTC(),
		limit)
	if err != nil {
		return nil, fmt.Errorf("find abandoned purchases: %w", err)
	}
	defer rows.Close()

	var purchases []model.Purchase
	for rows.Next() {
		purchase, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, purchase)
	}
	return purchases, rows.Err()
}
