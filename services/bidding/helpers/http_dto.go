package helpers

import (
	"time"

	"auction-engine/internal/lifecycle"
	model "auction-engine/internal/models"

	"github.com/shopspring/decimal"
)

// Request/Response DTOs
type PlaceBidRequest struct {
	ProductID string          `json:"product_id" binding:"required"`
	BidderID  string          `json:"bidder_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
}

type BidResponse struct {
	BidID     string `json:"bid_id"`
	ProductID string `json:"product_id"`
	BidderID  string `json:"bidder_id"`
	Amount    string `json:"amount"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// NewBidResponse renders a bid with a fixed two-digit amount
func NewBidResponse(bid model.Bid) BidResponse {
	return BidResponse{
		BidID:     bid.BidID,
		ProductID: bid.ProductID,
		BidderID:  bid.BidderID,
		Amount:    bid.Amount.StringFixed(model.MoneyPrecision),
		Status:    string(bid.Status),
		CreatedAt: bid.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Role     string `json:"role" binding:"omitempty,oneof=buyer seller admin"`
}

type CreateProductRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	BasePrice   decimal.Decimal `json:"base_price"`
	SellerID    string          `json:"seller_id" binding:"required"`
	Category    string          `json:"category"`
	Images      []string        `json:"images"`
	EndTime     time.Time       `json:"end_time"`
}

// ListProductsQuery is bound from the GET /products query string
type ListProductsQuery struct {
	Search   string `form:"search"`
	Category string `form:"category"`
	Status   string `form:"status" binding:"omitempty,oneof=active sold expired"`
	SellerID string `form:"seller_id"`
	Sort     string `form:"sort"`
	Limit    int    `form:"limit" binding:"omitempty,min=0,max=100"`
	Offset   int    `form:"offset" binding:"omitempty,min=0"`
}

type SweepResponse struct {
	Sold    int    `json:"sold"`
	Expired int    `json:"expired"`
	Skipped int    `json:"skipped"`
	Total   int    `json:"total"`
	RanAt   string `json:"ran_at"`
}

// NewSweepResponse renders the outcome of a lifecycle sweep
func NewSweepResponse(result lifecycle.SweepResult, now time.Time) SweepResponse {
	return SweepResponse{
		Sold:    result.Sold,
		Expired: result.Expired,
		Skipped: result.Skipped,
		Total:   result.Total(),
		RanAt:   now.UTC().Format(time.RFC3339),
	}
}
