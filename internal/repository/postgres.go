package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schemaSQL string

// PostgreSQL error codes the store translates into domain errors
const (
	pgForeignKeyViolation  = "23503"
	pgUniqueViolation      = "23505"
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgNumericOutOfRange    = "22003"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepo is the PostgreSQL implementation of AuctionDB.
// Per-product exclusivity is a row lock on the product taken with SELECT ... FOR UPDATE.
type PostgresRepo struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

var _ AuctionDB = (*PostgresRepo)(nil)

// NewPostgresRepo wraps an existing connection pool
func NewPostgresRepo(pool *pgxpool.Pool, opts ...Option) *PostgresRepo {
	o := buildOptions(opts)
	return &PostgresRepo{pool: pool, lockTimeout: o.lockTimeout}
}

// ConnectPostgres opens a pool for url and verifies it with a ping
func ConnectPostgres(ctx context.Context, url string, opts ...Option) (*PostgresRepo, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewPostgresRepo(pool, opts...), nil
}

// Migrate creates the four relations and their indexes if they do not exist
func (r *PostgresRepo) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return classifyPgError("migrate schema", err)
	}
	return nil
}

// Close closes the connection pool
func (r *PostgresRepo) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}

func (r *PostgresRepo) CreateUser(ctx context.Context, user model.User) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, username, email, role, created_at) VALUES ($1, $2, $3, $4, $5)`,
		user.UserID, user.Username, user.Email, string(user.Role), user.CreatedAt)
	if err != nil {
		return classifyPgError("create user "+user.UserID, err)
	}
	return nil
}

func (r *PostgresRepo) GetUser(ctx context.Context, userID string) (model.User, error) {
	var (
		u    model.User
		role string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, username, email, role, created_at FROM users WHERE id = $1`, userID,
	).Scan(&u.UserID, &u.Username, &u.Email, &role, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, fmt.Errorf("get user %s: %w", userID, biddingerrors.ErrUserNotFound)
	}
	if err != nil {
		return model.User{}, classifyPgError("get user "+userID, err)
	}
	u.Role = model.Role(role)
	return u, nil
}

func (r *PostgresRepo) CreateProduct(ctx context.Context, p model.Product) error {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO products (id, name, description, base_price, seller_id, category, images, status, end_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4::text::numeric, $5, $6, $7, $8, $9, $10, $11)`,
		p.ProductID, p.Name, p.Description, p.BasePrice.String(), p.SellerID, p.Category,
		images, string(p.Status), p.EndTime, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return classifyPgError("create product "+p.ProductID, err)
	}
	return nil
}

func (r *PostgresRepo) GetProduct(ctx context.Context, productID string) (model.ProductSnapshot, error) {
	var snap model.ProductSnapshot
	err := r.readOnly(ctx, func(tx pgx.Tx) error {
		var err error
		snap, err = loadSnapshot(ctx, tx, productID, false)
		return err
	})
	return snap, err
}

func (r *PostgresRepo) QueryProducts(ctx context.Context, q ProductQuery) ([]model.ProductSnapshot, error) {
	where := []string{"TRUE"}
	args := []any{}
	addArg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if s := strings.TrimSpace(q.Search); s != "" {
		ph := addArg("%" + s + "%")
		where = append(where, fmt.Sprintf("(p.name ILIKE %s OR p.description ILIKE %s)", ph, ph))
	}
	if q.Category != "" {
		where = append(where, "p.category = "+addArg(q.Category))
	}
	if q.Status != "" {
		where = append(where, "p.status = "+addArg(string(q.Status)))
	}
	if q.SellerID != "" {
		where = append(where, "p.seller_id = "+addArg(q.SellerID))
	}

	var snaps []model.ProductSnapshot
	err := r.readOnly(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, productSelect+" WHERE "+strings.Join(where, " AND ")+" ORDER BY p.created_at, p.id", args...)
		if err != nil {
			return classifyPgError("query products", err)
		}
		snaps, err = collectSnapshots(rows)
		if err != nil {
			return err
		}
		return attachRelations(ctx, tx, snaps)
	})
	if err != nil {
		return nil, err
	}
	return snaps, nil
}

func (r *PostgresRepo) DueProductIDs(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM products WHERE status = $1 AND end_time <= $2 ORDER BY end_time, id`,
		string(model.ProductActive), now)
	if err != nil {
		return nil, classifyPgError("due products", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, classifyPgError("due products", err)
	}
	return ids, nil
}

func (r *PostgresRepo) GetBidsByProduct(ctx context.Context, productID string) ([]model.Bid, error) {
	var bids []model.Bid
	err := r.readOnly(ctx, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
			return classifyPgError("get bids for product "+productID, err)
		}
		if !exists {
			return fmt.Errorf("get bids for product %s: %w", productID, biddingerrors.ErrProductNotFound)
		}
		var err error
		bids, err = loadBids(ctx, tx, productID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return bids, nil
}

func (r *PostgresRepo) GetProductsByBidder(ctx context.Context, userID string) ([]model.Product, error) {
	if _, err := r.GetUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("get products for bidder: %w", err)
	}

	rows, err := r.pool.Query(ctx, productSelect+`
		WHERE p.id IN (SELECT product_id FROM bids WHERE bidder_id = $1)
		ORDER BY p.created_at, p.id`, userID)
	if err != nil {
		return nil, classifyPgError("get products for bidder "+userID, err)
	}
	snaps, err := collectSnapshots(rows)
	if err != nil {
		return nil, err
	}

	products := make([]model.Product, len(snaps))
	for i, s := range snaps {
		products[i] = s.Product
	}
	return products, nil
}

func (r *PostgresRepo) GetOrderByProduct(ctx context.Context, productID string) (model.Order, error) {
	order, err := loadOrder(ctx, r.pool, productID)
	if err != nil {
		return model.Order{}, err
	}
	if order == nil {
		return model.Order{}, fmt.Errorf("get order for product %s: %w", productID, biddingerrors.ErrOrderNotFound)
	}
	return *order, nil
}

func (r *PostgresRepo) GetOrdersByBuyer(ctx context.Context, userID string) ([]model.Order, error) {
	if _, err := r.GetUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("get orders for buyer: %w", err)
	}

	rows, err := r.pool.Query(ctx, orderSelect+` WHERE buyer_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, classifyPgError("get orders for buyer "+userID, err)
	}
	defer rows.Close()

	orders := make([]model.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError("get orders for buyer "+userID, err)
	}
	return orders, nil
}

// WithProduct locks the product row for the duration of fn and commits fn's writes on success
func (r *PostgresRepo) WithProduct(ctx context.Context, productID string, fn func(tx ProductTx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classifyPgError("begin product transaction", err)
	}
	defer func() {
		// no-op once committed
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	timeout := fmt.Sprintf("%dms", r.lockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
		return classifyPgError("set lock timeout", err)
	}

	snap, err := loadSnapshot(ctx, tx, productID, true)
	if err != nil {
		return err
	}

	if err := fn(&postgresTx{ctx: ctx, tx: tx, snap: snap}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return classifyPgError("commit product "+productID, err)
	}
	return nil
}

// readOnly runs fn inside a repeatable-read, read-only transaction so multi-table reads are consistent
func (r *PostgresRepo) readOnly(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return classifyPgError("begin read transaction", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return classifyPgError("commit read transaction", err)
	}
	return nil
}

// postgresTx executes writes immediately inside the locked transaction
// and mirrors them into its snapshot.
type postgresTx struct {
	ctx  context.Context
	tx   pgx.Tx
	snap model.ProductSnapshot
}

func (t *postgresTx) Snapshot() model.ProductSnapshot {
	snap := t.snap
	snap.Bids = append([]model.Bid{}, t.snap.Bids...)
	if t.snap.Order != nil {
		o := *t.snap.Order
		snap.Order = &o
	}
	return snap
}

func (t *postgresTx) InsertBid(b model.Bid) error {
	if b.ProductID != t.snap.Product.ProductID {
		return fmt.Errorf("insert bid %s: product %s: %w", b.BidID, b.ProductID, biddingerrors.ErrReferentialIntegrity)
	}
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO bids (id, product_id, bidder_id, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4::text::numeric, $5, $6, $7)`,
		b.BidID, b.ProductID, b.BidderID, b.Amount.String(), string(b.Status), b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return classifyPgError("insert bid "+b.BidID, err)
	}
	t.snap.Bids = append(t.snap.Bids, b)
	return nil
}

func (t *postgresTx) SetProductStatus(status model.ProductStatus, at time.Time) error {
	_, err := t.tx.Exec(t.ctx,
		`UPDATE products SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), at, t.snap.Product.ProductID)
	if err != nil {
		return classifyPgError("set product status", err)
	}
	t.snap.Product.Status = status
	t.snap.Product.UpdatedAt = at
	return nil
}

func (t *postgresTx) SetBidStatus(bidID string, status model.BidStatus, at time.Time) error {
	tag, err := t.tx.Exec(t.ctx,
		`UPDATE bids SET status = $1, updated_at = $2 WHERE id = $3 AND product_id = $4`,
		string(status), at, bidID, t.snap.Product.ProductID)
	if err != nil {
		return classifyPgError("set bid status", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set status of bid %s: %w", bidID, biddingerrors.ErrNotFound)
	}
	for i := range t.snap.Bids {
		if t.snap.Bids[i].BidID == bidID {
			t.snap.Bids[i].Status = status
			t.snap.Bids[i].UpdatedAt = at
		}
	}
	return nil
}

func (t *postgresTx) InsertOrder(o model.Order) error {
	if t.snap.Order != nil {
		return fmt.Errorf("insert order for product %s: %w", o.ProductID, biddingerrors.ErrAlreadySettled)
	}
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO orders (id, product_id, buyer_id, seller_id, final_price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7, $8)`,
		o.OrderID, o.ProductID, o.BuyerID, o.SellerID, o.FinalPrice.String(), string(o.Status), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return classifyPgError("insert order "+o.OrderID, err)
	}
	t.snap.Order = &o
	return nil
}

const productSelect = `
	SELECT p.id, p.name, p.description, p.base_price::text, p.seller_id, p.category, p.images,
	       p.status, p.end_time, p.created_at, p.updated_at,
	       u.id, u.username, u.email, u.role, u.created_at
	FROM products p
	JOIN users u ON u.id = p.seller_id`

const bidSelect = `SELECT id, product_id, bidder_id, amount::text, status, created_at, updated_at FROM bids`

const orderSelect = `SELECT id, product_id, buyer_id, seller_id, final_price::text, status, created_at, updated_at FROM orders`

func loadSnapshot(ctx context.Context, q querier, productID string, forUpdate bool) (model.ProductSnapshot, error) {
	sql := productSelect + ` WHERE p.id = $1`
	if forUpdate {
		sql += ` FOR UPDATE OF p`
	}

	snap, err := scanSnapshot(q.QueryRow(ctx, sql, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ProductSnapshot{}, fmt.Errorf("load product %s: %w", productID, biddingerrors.ErrProductNotFound)
	}
	if err != nil {
		return model.ProductSnapshot{}, classifyPgError("load product "+productID, err)
	}

	if snap.Bids, err = loadBids(ctx, q, productID); err != nil {
		return model.ProductSnapshot{}, err
	}
	if snap.Order, err = loadOrder(ctx, q, productID); err != nil {
		return model.ProductSnapshot{}, err
	}
	return snap, nil
}

func loadBids(ctx context.Context, q querier, productID string) ([]model.Bid, error) {
	rows, err := q.Query(ctx, bidSelect+` WHERE product_id = $1 ORDER BY created_at, id`, productID)
	if err != nil {
		return nil, classifyPgError("load bids for product "+productID, err)
	}
	defer rows.Close()

	bids := make([]model.Bid, 0)
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError("load bids for product "+productID, err)
	}
	return bids, nil
}

func loadOrder(ctx context.Context, q querier, productID string) (*model.Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, orderSelect+` WHERE product_id = $1`, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// attachRelations fills bids and orders for a batch of snapshots with two queries
func attachRelations(ctx context.Context, q querier, snaps []model.ProductSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	ids := make([]string, len(snaps))
	index := make(map[string]int, len(snaps))
	for i, s := range snaps {
		ids[i] = s.Product.ProductID
		index[s.Product.ProductID] = i
	}

	rows, err := q.Query(ctx, bidSelect+` WHERE product_id = ANY($1) ORDER BY created_at, id`, ids)
	if err != nil {
		return classifyPgError("load bids", err)
	}
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			rows.Close()
			return err
		}
		i := index[b.ProductID]
		snaps[i].Bids = append(snaps[i].Bids, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return classifyPgError("load bids", err)
	}

	rows, err = q.Query(ctx, orderSelect+` WHERE product_id = ANY($1)`, ids)
	if err != nil {
		return classifyPgError("load orders", err)
	}
	defer rows.Close()
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return err
		}
		snaps[index[o.ProductID]].Order = &o
	}
	if err := rows.Err(); err != nil {
		return classifyPgError("load orders", err)
	}
	return nil
}

func collectSnapshots(rows pgx.Rows) ([]model.ProductSnapshot, error) {
	defer rows.Close()

	snaps := make([]model.ProductSnapshot, 0)
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, classifyPgError("scan product", err)
		}
		s.Bids = []model.Bid{}
		snaps = append(snaps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError("scan products", err)
	}
	return snaps, nil
}

func scanSnapshot(row pgx.Row) (model.ProductSnapshot, error) {
	var (
		s                 model.ProductSnapshot
		basePrice, status string
		role              string
	)
	err := row.Scan(
		&s.Product.ProductID, &s.Product.Name, &s.Product.Description, &basePrice, &s.Product.SellerID,
		&s.Product.Category, &s.Product.Images, &status, &s.Product.EndTime, &s.Product.CreatedAt, &s.Product.UpdatedAt,
		&s.Seller.UserID, &s.Seller.Username, &s.Seller.Email, &role, &s.Seller.CreatedAt,
	)
	if err != nil {
		return model.ProductSnapshot{}, err
	}
	if s.Product.BasePrice, err = decimal.NewFromString(basePrice); err != nil {
		return model.ProductSnapshot{}, fmt.Errorf("parse base price %q: %w", basePrice, err)
	}
	s.Product.Status = model.ProductStatus(status)
	s.Seller.Role = model.Role(role)
	return s, nil
}

func scanBid(row pgx.Row) (model.Bid, error) {
	var (
		b              model.Bid
		amount, status string
	)
	if err := row.Scan(&b.BidID, &b.ProductID, &b.BidderID, &amount, &status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return model.Bid{}, classifyPgError("scan bid", err)
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return model.Bid{}, fmt.Errorf("parse bid amount %q: %w", amount, err)
	}
	b.Amount = d
	b.Status = model.BidStatus(status)
	return b, nil
}

func scanOrder(row pgx.Row) (model.Order, error) {
	var (
		o             model.Order
		price, status string
	)
	err := row.Scan(&o.OrderID, &o.ProductID, &o.BuyerID, &o.SellerID, &price, &status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Order{}, err
	}
	if err != nil {
		return model.Order{}, classifyPgError("scan order", err)
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return model.Order{}, fmt.Errorf("parse final price %q: %w", price, err)
	}
	o.FinalPrice = d
	o.Status = model.OrderStatus(status)
	return o, nil
}

// classifyPgError maps driver failures onto the domain error taxonomy
func classifyPgError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, biddingerrors.ErrReferentialIntegrity)
		case pgUniqueViolation:
			if pgErr.ConstraintName == "orders_product_key" {
				return fmt.Errorf("%s: %w", op, biddingerrors.ErrAlreadySettled)
			}
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, biddingerrors.ErrDuplicateEntity)
		case pgLockNotAvailable, pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%s: %w", op, biddingerrors.ErrConcurrencyConflict)
		case pgNumericOutOfRange:
			return fmt.Errorf("%s: %w", op, biddingerrors.ErrValueOutOfRange)
		}
	}
	return biddingerrors.NewPersistenceError(op, err)
}
