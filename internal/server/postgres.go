package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/pi-trace/registry/internal/domain/identity"
	"github.com/pi-trace/registry/internal/domain/payment"
	"github.com/pi-trace/registry/internal/domain/product"
)

// uniqueViolation is the Postgres error code for unique constraint failures.
const uniqueViolation = "23505"

// PostgresStore is the production Store backed by Postgres via sqlx.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an open connection pool.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// DialPostgres opens and pings a Postgres pool.
func DialPostgres(ctx context.Context, databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

type userRow struct {
	UID           string `db:"uid"`
	Username      string `db:"username"`
	LoginType     string `db:"login_type"`
	WalletAddress string `db:"wallet_address"`
}

func (s *PostgresStore) UpsertUser(ctx context.Context, ident identity.Identity) (identity.Identity, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `
		INSERT INTO users (uid, username, login_type, wallet_address)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (uid) DO UPDATE SET
			username       = COALESCE(NULLIF(EXCLUDED.username, ''), users.username),
			login_type     = EXCLUDED.login_type,
			wallet_address = COALESCE(NULLIF(EXCLUDED.wallet_address, ''), users.wallet_address)
		RETURNING uid, username, login_type, wallet_address`,
		ident.UID, ident.Username, ident.Kind, ident.WalletAddress)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("upsert user: %w", err)
	}
	return identity.Identity{
		UID:           row.UID,
		Username:      row.Username,
		Kind:          identity.Kind(row.LoginType),
		WalletAddress: row.WalletAddress,
	}, nil
}

type productRow struct {
	ID            string    `db:"id"`
	OwnerID       string    `db:"owner_id"`
	Name          string    `db:"name"`
	Category      string    `db:"category"`
	Description   string    `db:"description"`
	Quantity      int       `db:"quantity"`
	Unit          string    `db:"unit"`
	Price         float64   `db:"price"`
	OriginCountry string    `db:"origin_country"`
	OriginCity    string    `db:"origin_city"`
	Hash          string    `db:"hash"`
	UploadedAt    time.Time `db:"uploaded_at"`
}

func (r productRow) toDomain() product.Product {
	return product.Product{
		ID:          r.ID,
		Name:        r.Name,
		Category:    product.Category(r.Category),
		Description: r.Description,
		Quantity:    r.Quantity,
		Unit:        r.Unit,
		Price:       r.Price,
		Origin:      product.Origin{Country: r.OriginCountry, City: r.OriginCity},
		Hash:        r.Hash,
		UploadedAt:  r.UploadedAt,
		OwnerID:     r.OwnerID,
	}
}

func (s *PostgresStore) ListProducts(ctx context.Context, ownerID string) ([]product.Product, error) {
	var rows []productRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, owner_id, name, category, description, quantity, unit, price,
		       origin_country, origin_city, hash, uploaded_at
		FROM products
		WHERE owner_id = $1
		ORDER BY uploaded_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	out := make([]product.Product, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *PostgresStore) InsertProduct(ctx context.Context, p product.Product) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, owner_id, name, category, description, quantity,
		                      unit, price, origin_country, origin_city, hash, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.OwnerID, p.Name, p.Category, p.Description, p.Quantity,
		p.Unit, p.Price, p.Origin.Country, p.Origin.City, p.Hash, p.UploadedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type paymentRow struct {
	PaymentID  string         `db:"payment_id"`
	Identifier sql.NullString `db:"identifier"`
	Amount     float64        `db:"amount"`
	Memo       string         `db:"memo"`
	Metadata   []byte         `db:"metadata"`
	Status     string         `db:"status"`
	ProductID  sql.NullString `db:"product_id"`
	OwnerID    string         `db:"owner_id"`
	CreatedAt  time.Time      `db:"created_at"`
}

func (r paymentRow) toDomain() (payment.Payment, error) {
	p := payment.Payment{
		PaymentID:  r.PaymentID,
		Identifier: r.Identifier.String,
		Amount:     r.Amount,
		Memo:       r.Memo,
		Status:     payment.Status(r.Status),
		ProductID:  r.ProductID.String,
		OwnerID:    r.OwnerID,
		CreatedAt:  r.CreatedAt,
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &p.Metadata); err != nil {
			return payment.Payment{}, fmt.Errorf("decode payment metadata: %w", err)
		}
	}
	return p, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *PostgresStore) InsertPayment(ctx context.Context, p payment.Payment) error {
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("encode payment metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO payments (payment_id, identifier, amount, memo, metadata,
		                      status, product_id, owner_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.PaymentID, nullable(p.Identifier), p.Amount, p.Memo, meta,
		p.Status, nullable(p.ProductID), p.OwnerID, p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

const paymentColumns = `payment_id, identifier, amount, memo, metadata, status, product_id, owner_id, created_at`

func (s *PostgresStore) GetPayment(ctx context.Context, paymentID string) (payment.Payment, error) {
	var row paymentRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+paymentColumns+` FROM payments WHERE payment_id = $1`, paymentID)
	if errors.Is(err, sql.ErrNoRows) {
		return payment.Payment{}, ErrNotFound
	}
	if err != nil {
		return payment.Payment{}, fmt.Errorf("get payment: %w", err)
	}
	return row.toDomain()
}

func (s *PostgresStore) GetPaymentByIdentifier(ctx context.Context, identifier string) (payment.Payment, error) {
	var row paymentRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+paymentColumns+` FROM payments WHERE identifier = $1`, identifier)
	if errors.Is(err, sql.ErrNoRows) {
		return payment.Payment{}, ErrNotFound
	}
	if err != nil {
		return payment.Payment{}, fmt.Errorf("get payment by identifier: %w", err)
	}
	return row.toDomain()
}

func (s *PostgresStore) UpdatePayment(ctx context.Context, p payment.Payment) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payments SET identifier = $2, status = $3
		WHERE payment_id = $1`,
		p.PaymentID, nullable(p.Identifier), p.Status)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListPayments(ctx context.Context, ownerID string) ([]payment.Payment, error) {
	var rows []paymentRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+paymentColumns+` FROM payments WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	out := make([]payment.Payment, 0, len(rows))
	for _, r := range rows {
		p, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
