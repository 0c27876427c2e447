package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
)

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB
type MemoryRepo struct {
	mu           sync.RWMutex
	users        map[string]model.User    // key: userID -> value: user
	usernames    map[string]string        // key: lower(username) -> value: userID
	emails       map[string]string        // key: lower(email) -> value: userID
	products     map[string]model.Product // key: productID -> value: product
	productOrder []string                 // productIDs in creation order
	bids         map[string][]model.Bid   // key: productID -> value: list of bids
	bidderItems  map[string][]string      // key: userID -> value: list of productIDs user has bid on
	orders       map[string]model.Order   // key: productID -> value: order
	productLocks *keyedLock
	lockTimeout  time.Duration
}

var _ AuctionDB = (*MemoryRepo)(nil)

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo(opts ...Option) *MemoryRepo {
	o := buildOptions(opts)
	return &MemoryRepo{
		users:        make(map[string]model.User),
		usernames:    make(map[string]string),
		emails:       make(map[string]string),
		products:     make(map[string]model.Product),
		bids:         make(map[string][]model.Bid),
		bidderItems:  make(map[string][]string),
		orders:       make(map[string]model.Order),
		productLocks: newKeyedLock(),
		lockTimeout:  o.lockTimeout,
	}
}

// CreateUser stores a user, enforcing unique id, username and email
func (r *MemoryRepo) CreateUser(_ context.Context, user model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.UserID]; ok {
		return fmt.Errorf("create user %s: %w", user.UserID, biddingerrors.ErrDuplicateEntity)
	}
	uname, email := strings.ToLower(user.Username), strings.ToLower(user.Email)
	if _, ok := r.usernames[uname]; ok {
		return fmt.Errorf("create user: username %q: %w", user.Username, biddingerrors.ErrDuplicateEntity)
	}
	if _, ok := r.emails[email]; ok {
		return fmt.Errorf("create user: email %q: %w", user.Email, biddingerrors.ErrDuplicateEntity)
	}

	r.users[user.UserID] = user
	r.usernames[uname] = user.UserID
	r.emails[email] = user.UserID
	return nil
}

// GetUser returns a user by id
func (r *MemoryRepo) GetUser(_ context.Context, userID string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[userID]
	if !ok {
		return model.User{}, fmt.Errorf("get user %s: %w", userID, biddingerrors.ErrUserNotFound)
	}
	return user, nil
}

// CreateProduct stores a product whose seller must already exist
func (r *MemoryRepo) CreateProduct(_ context.Context, product model.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[product.ProductID]; ok {
		return fmt.Errorf("create product %s: %w", product.ProductID, biddingerrors.ErrDuplicateEntity)
	}
	if !model.InMoneyRange(product.BasePrice) {
		return fmt.Errorf("create product %s: base price: %w", product.ProductID, biddingerrors.ErrValueOutOfRange)
	}
	if _, ok := r.users[product.SellerID]; !ok {
		return fmt.Errorf("create product %s: seller %s: %w", product.ProductID, product.SellerID, biddingerrors.ErrReferentialIntegrity)
	}

	product.Images = append([]string(nil), product.Images...)
	r.products[product.ProductID] = product
	r.productOrder = append(r.productOrder, product.ProductID)
	return nil
}

// GetProduct returns a product with its seller, bids and order
func (r *MemoryRepo) GetProduct(_ context.Context, productID string) (model.ProductSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap, ok := r.snapshotLocked(productID)
	if !ok {
		return model.ProductSnapshot{}, fmt.Errorf("get product %s: %w", productID, biddingerrors.ErrProductNotFound)
	}
	return snap, nil
}

// QueryProducts returns snapshots of products matching q, in creation order
func (r *MemoryRepo) QueryProducts(_ context.Context, q ProductQuery) ([]model.ProductSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]model.ProductSnapshot, 0, len(r.productOrder))
	for _, id := range r.productOrder {
		p := r.products[id]
		if q.Category != "" && p.Category != q.Category {
			continue
		}
		if q.Status != "" && p.Status != q.Status {
			continue
		}
		if q.SellerID != "" && p.SellerID != q.SellerID {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Description), search) {
			continue
		}
		snap, _ := r.snapshotLocked(id)
		out = append(out, snap)
	}
	return out, nil
}

// DueProductIDs returns active products whose end time is at or before now, earliest first
func (r *MemoryRepo) DueProductIDs(_ context.Context, now time.Time) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	due := make([]model.Product, 0)
	for _, p := range r.products {
		if p.IsDue(now) {
			due = append(due, p)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].EndTime.Equal(due[j].EndTime) {
			return due[i].ProductID < due[j].ProductID
		}
		return due[i].EndTime.Before(due[j].EndTime)
	})

	ids := make([]string, len(due))
	for i, p := range due {
		ids[i] = p.ProductID
	}
	return ids, nil
}

// GetBidsByProduct returns all bids for a product in admission order
func (r *MemoryRepo) GetBidsByProduct(_ context.Context, productID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.products[productID]; !ok {
		return nil, fmt.Errorf("get bids for product %s: %w", productID, biddingerrors.ErrProductNotFound)
	}
	return append([]model.Bid{}, r.bids[productID]...), nil
}

// GetProductsByBidder returns all products a user has bid on
func (r *MemoryRepo) GetProductsByBidder(_ context.Context, userID string) ([]model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.users[userID]; !ok {
		return nil, fmt.Errorf("get products for bidder %s: %w", userID, biddingerrors.ErrUserNotFound)
	}

	ids := r.bidderItems[userID]
	products := make([]model.Product, 0, len(ids))
	for _, id := range ids {
		if p, exists := r.products[id]; exists {
			products = append(products, p)
		}
	}
	return products, nil
}

// GetOrderByProduct returns the order created when the product settled
func (r *MemoryRepo) GetOrderByProduct(_ context.Context, productID string) (model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[productID]
	if !ok {
		return model.Order{}, fmt.Errorf("get order for product %s: %w", productID, biddingerrors.ErrOrderNotFound)
	}
	return order, nil
}

// GetOrdersByBuyer returns every order won by a user, oldest first
func (r *MemoryRepo) GetOrdersByBuyer(_ context.Context, userID string) ([]model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.users[userID]; !ok {
		return nil, fmt.Errorf("get orders for buyer %s: %w", userID, biddingerrors.ErrUserNotFound)
	}

	orders := make([]model.Order, 0)
	for _, o := range r.orders {
		if o.BuyerID == userID {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	return orders, nil
}

// WithProduct runs fn under the product's exclusive lock and commits its writes on success
func (r *MemoryRepo) WithProduct(ctx context.Context, productID string, fn func(tx ProductTx) error) error {
	release, err := r.productLocks.acquire(ctx, productID, r.lockTimeout)
	if err != nil {
		return err
	}
	defer release()

	r.mu.RLock()
	snap, ok := r.snapshotLocked(productID)
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("with product %s: %w", productID, biddingerrors.ErrProductNotFound)
	}

	tx := &memoryTx{repo: r, snap: snap}
	if err := fn(tx); err != nil {
		return err
	}

	// An abandoned caller gets nothing committed.
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("with product %s: %w", productID, err)
	}

	r.commit(tx)
	return nil
}

// Close is a no-op for the in-memory store
func (r *MemoryRepo) Close() error {
	return nil
}

func (r *MemoryRepo) commit(tx *memoryTx) {
	r.mu.Lock()
	defer r.mu.Unlock()

	productID := tx.snap.Product.ProductID
	r.products[productID] = tx.snap.Product
	r.bids[productID] = tx.snap.Bids

	for _, b := range tx.inserted {
		r.trackBidderLocked(b.BidderID, productID)
	}
	if tx.snap.Order != nil {
		r.orders[productID] = *tx.snap.Order
	}
}

func (r *MemoryRepo) trackBidderLocked(userID, productID string) {
	for _, id := range r.bidderItems[userID] {
		if id == productID {
			return
		}
	}
	r.bidderItems[userID] = append(r.bidderItems[userID], productID)
}

// snapshotLocked builds a deep copy of a product and its relations; r.mu must be held
func (r *MemoryRepo) snapshotLocked(productID string) (model.ProductSnapshot, bool) {
	p, ok := r.products[productID]
	if !ok {
		return model.ProductSnapshot{}, false
	}
	p.Images = append([]string(nil), p.Images...)

	snap := model.ProductSnapshot{
		Product: p,
		Seller:  r.users[p.SellerID],
		Bids:    append([]model.Bid{}, r.bids[productID]...),
	}
	if o, ok := r.orders[productID]; ok {
		snap.Order = &o
	}
	return snap, true
}

func (r *MemoryRepo) userExists(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID]
	return ok
}

// memoryTx buffers writes against a private copy of the snapshot
type memoryTx struct {
	repo     *MemoryRepo
	snap     model.ProductSnapshot
	inserted []model.Bid
}

func (tx *memoryTx) Snapshot() model.ProductSnapshot {
	snap := tx.snap
	snap.Bids = append([]model.Bid{}, tx.snap.Bids...)
	if tx.snap.Order != nil {
		o := *tx.snap.Order
		snap.Order = &o
	}
	return snap
}

func (tx *memoryTx) InsertBid(bid model.Bid) error {
	if bid.ProductID != tx.snap.Product.ProductID {
		return fmt.Errorf("insert bid %s: product %s: %w", bid.BidID, bid.ProductID, biddingerrors.ErrReferentialIntegrity)
	}
	if !model.InMoneyRange(bid.Amount) {
		return fmt.Errorf("insert bid %s: amount: %w", bid.BidID, biddingerrors.ErrValueOutOfRange)
	}
	if !tx.repo.userExists(bid.BidderID) {
		return fmt.Errorf("insert bid %s: bidder %s: %w", bid.BidID, bid.BidderID, biddingerrors.ErrReferentialIntegrity)
	}
	for _, b := range tx.snap.Bids {
		if b.BidID == bid.BidID {
			return fmt.Errorf("insert bid %s: %w", bid.BidID, biddingerrors.ErrDuplicateEntity)
		}
	}

	tx.snap.Bids = append(tx.snap.Bids, bid)
	tx.inserted = append(tx.inserted, bid)
	return nil
}

func (tx *memoryTx) SetProductStatus(status model.ProductStatus, at time.Time) error {
	tx.snap.Product.Status = status
	tx.snap.Product.UpdatedAt = at
	return nil
}

func (tx *memoryTx) SetBidStatus(bidID string, status model.BidStatus, at time.Time) error {
	for i := range tx.snap.Bids {
		if tx.snap.Bids[i].BidID == bidID {
			tx.snap.Bids[i].Status = status
			tx.snap.Bids[i].UpdatedAt = at
			return nil
		}
	}
	return fmt.Errorf("set status of bid %s: %w", bidID, biddingerrors.ErrNotFound)
}

func (tx *memoryTx) InsertOrder(order model.Order) error {
	if tx.snap.Order != nil {
		return fmt.Errorf("insert order for product %s: %w", order.ProductID, biddingerrors.ErrAlreadySettled)
	}
	if order.ProductID != tx.snap.Product.ProductID {
		return fmt.Errorf("insert order %s: product %s: %w", order.OrderID, order.ProductID, biddingerrors.ErrReferentialIntegrity)
	}
	if !tx.repo.userExists(order.BuyerID) || !tx.repo.userExists(order.SellerID) {
		return fmt.Errorf("insert order %s: buyer or seller: %w", order.OrderID, biddingerrors.ErrReferentialIntegrity)
	}

	tx.snap.Order = &order
	return nil
}
