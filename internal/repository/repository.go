package repository

import (
	"context"
	"time"

	model "auction-engine/internal/models"
)

//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=repository

// AuctionDB defines the entity storage interface for the auction system.
// It is pure data access: admission and settlement rules live in the services
// and run inside WithProduct.
type AuctionDB interface {
	CreateUser(ctx context.Context, user model.User) error
	GetUser(ctx context.Context, userID string) (model.User, error)

	CreateProduct(ctx context.Context, product model.Product) error
	GetProduct(ctx context.Context, productID string) (model.ProductSnapshot, error)
	QueryProducts(ctx context.Context, q ProductQuery) ([]model.ProductSnapshot, error)
	DueProductIDs(ctx context.Context, now time.Time) ([]string, error)

	GetBidsByProduct(ctx context.Context, productID string) ([]model.Bid, error)
	GetProductsByBidder(ctx context.Context, userID string) ([]model.Product, error)

	GetOrderByProduct(ctx context.Context, productID string) (model.Order, error)
	GetOrdersByBuyer(ctx context.Context, userID string) ([]model.Order, error)

	// WithProduct runs fn while holding the exclusive lock for productID.
	// fn sees the latest committed snapshot; its writes are applied
	// atomically if it returns nil and discarded otherwise.
	WithProduct(ctx context.Context, productID string, fn func(tx ProductTx) error) error

	Close() error
}

// ProductTx is the unit of work handed to WithProduct callbacks
type ProductTx interface {
	Snapshot() model.ProductSnapshot
	InsertBid(bid model.Bid) error
	SetProductStatus(status model.ProductStatus, at time.Time) error
	SetBidStatus(bidID string, status model.BidStatus, at time.Time) error
	InsertOrder(order model.Order) error
}

// ProductQuery filters products on stored fields. Zero values match everything.
type ProductQuery struct {
	Search   string
	Category string
	Status   model.ProductStatus
	SellerID string
}
