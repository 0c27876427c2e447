package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role is the part a user plays in the marketplace
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleSeller, RoleAdmin:
		return true
	}
	return false
}

// ProductStatus is the auction state of a product
type ProductStatus string

const (
	ProductActive  ProductStatus = "active"
	ProductSold    ProductStatus = "sold"
	ProductExpired ProductStatus = "expired"
)

// BidStatus is the resolution state of a bid
type BidStatus string

const (
	BidActive BidStatus = "active"
	BidWon    BidStatus = "won"
	BidLost   BidStatus = "lost"
)

// OrderStatus is the payment state of an order
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderCancelled OrderStatus = "cancelled"
)

// User represents a participant in the auction
type User struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Product represents an item put up for auction by a seller.
// The current price is never stored; it is derived from the bid set.
type Product struct {
	ProductID   string          `json:"product_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	BasePrice   decimal.Decimal `json:"base_price"`
	SellerID    string          `json:"seller_id"`
	Category    string          `json:"category"`
	Images      []string        `json:"images"`
	Status      ProductStatus   `json:"status"`
	EndTime     time.Time       `json:"end_time"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// IsOpen reports whether the product still accepts bids at now
func (p Product) IsOpen(now time.Time) bool {
	return p.Status == ProductActive && now.Before(p.EndTime)
}

// IsDue reports whether the auction has ended but the product is not yet resolved
func (p Product) IsDue(now time.Time) bool {
	return p.Status == ProductActive && !p.EndTime.After(now)
}

// Bid represents a user's bid on a product
type Bid struct {
	BidID     string          `json:"bid_id"`
	ProductID string          `json:"product_id"`
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    BidStatus       `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Order represents the sale created when an auction settles
type Order struct {
	OrderID    string          `json:"order_id"`
	ProductID  string          `json:"product_id"`
	BuyerID    string          `json:"buyer_id"`
	SellerID   string          `json:"seller_id"`
	FinalPrice decimal.Decimal `json:"final_price"`
	Status     OrderStatus     `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ProductSnapshot is a consistent read of a product together with
// its directly related entities.
type ProductSnapshot struct {
	Product Product `json:"product"`
	Seller  User    `json:"seller"`
	Bids    []Bid   `json:"bids"`
	Order   *Order  `json:"order,omitempty"`
}
