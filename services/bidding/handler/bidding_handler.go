package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/lifecycle"
	model "auction-engine/internal/models"
	"auction-engine/internal/pricing"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=bidding_handler.go -destination=mock_handler.go -package=handler

type BiddingServiceInterface interface {
	PlaceBid(ctx context.Context, productID, bidderID string, amount decimal.Decimal, now time.Time) (model.Bid, error)
	GetBidsForProduct(ctx context.Context, productID string) ([]model.Bid, error)
	GetLeadingBid(ctx context.Context, productID string) (model.Bid, error)
	GetProductsByBidder(ctx context.Context, userID string) ([]model.Product, error)

	CreateUser(ctx context.Context, username, email string, role model.Role) (model.User, error)
	CreateProduct(ctx context.Context, in bidding.NewProductInput) (model.Product, error)
	GetProductView(ctx context.Context, productID string) (pricing.ProductView, error)
	ListProducts(ctx context.Context, filter bidding.ProductFilter) ([]pricing.ProductView, error)
	GetOrdersByBuyer(ctx context.Context, userID string) ([]model.Order, error)
	GetOrderForProduct(ctx context.Context, productID string) (model.Order, error)

	RunLifecycleSweep(ctx context.Context, now time.Time) (lifecycle.SweepResult, error)
}

type BiddingHandler struct {
	service BiddingServiceInterface
	now     func() time.Time
}

func NewBiddingHandler(service BiddingServiceInterface) *BiddingHandler {
	return &BiddingHandler{
		service: service,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RecordBidHandler handles POST /bids
func (h *BiddingHandler) RecordBidHandler(c *gin.Context) {
	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "RecordBidHandler", err)
		return
	}
	if !req.Amount.IsPositive() {
		helpers.HandleBindError(c, "RecordBidHandler", errors.New("amount must be greater than zero"))
		return
	}
	if !model.InMoneyRange(req.Amount) {
		helpers.HandleBindError(c, "RecordBidHandler", fmt.Errorf("amount must not exceed %s", model.MaxMoney.StringFixed(model.MoneyPrecision)))
		return
	}

	bid, err := h.service.PlaceBid(c.Request.Context(), req.ProductID, req.BidderID, req.Amount, h.now())
	if err != nil {
		helpers.HandleServiceError(c, "RecordBidHandler", err, map[string]any{
			"product_id": req.ProductID,
			"bidder_id":  req.BidderID,
			"amount":     req.Amount.String(),
		})
		return
	}

	resp := helpers.NewBidResponse(bid)
	utils.JSONResponse(c, http.StatusCreated, resp, "bid recorded successfully")
	helpers.LogSuccess("RecordBidHandler", "bid recorded successfully", map[string]any{
		"bid_id":     bid.BidID,
		"product_id": bid.ProductID,
		"bidder_id":  bid.BidderID,
		"amount":     resp.Amount,
	})
}

// GetBidsByProductHandler handles GET /products/:product_id/bids
func (h *BiddingHandler) GetBidsByProductHandler(c *gin.Context) {
	productID := c.Param("product_id")
	bids, err := h.service.GetBidsForProduct(c.Request.Context(), productID)
	if err != nil {
		helpers.HandleServiceError(c, "GetBidsByProductHandler", err, map[string]any{"product_id": productID})
		return
	}

	resp := make([]helpers.BidResponse, len(bids))
	for i, b := range bids {
		resp[i] = helpers.NewBidResponse(b)
	}

	utils.JSONList(c, http.StatusOK, resp, "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByProductHandler", "bids retrieved successfully", map[string]any{
		"product_id": productID,
		"count":      len(resp),
	})
}

// GetLeadingBidHandler handles GET /products/:product_id/winning
func (h *BiddingHandler) GetLeadingBidHandler(c *gin.Context) {
	productID := c.Param("product_id")
	bid, err := h.service.GetLeadingBid(c.Request.Context(), productID)
	if err != nil {
		helpers.HandleServiceError(c, "GetLeadingBidHandler", err, map[string]any{"product_id": productID})
		return
	}

	resp := helpers.NewBidResponse(bid)
	utils.JSONResponse(c, http.StatusOK, resp, "winning bid retrieved successfully")
	helpers.LogSuccess("GetLeadingBidHandler", "winning bid retrieved successfully", map[string]any{
		"bid_id":     bid.BidID,
		"product_id": bid.ProductID,
		"bidder_id":  bid.BidderID,
		"amount":     resp.Amount,
	})
}

// GetProductsByUserHandler handles GET /users/:user_id/products
func (h *BiddingHandler) GetProductsByUserHandler(c *gin.Context) {
	userID := c.Param("user_id")
	products, err := h.service.GetProductsByBidder(c.Request.Context(), userID)
	if err != nil {
		helpers.HandleServiceError(c, "GetProductsByUserHandler", err, map[string]any{"user_id": userID})
		return
	}

	utils.JSONList(c, http.StatusOK, products, "products retrieved successfully")
	helpers.LogSuccess("GetProductsByUserHandler", "products retrieved successfully", map[string]any{
		"user_id":        userID,
		"products_count": len(products),
	})
}

// SweepHandler handles POST /admin/sweep; an optional ?now=RFC3339 replaces the clock
func (h *BiddingHandler) SweepHandler(c *gin.Context) {
	now := h.now()
	if raw := c.Query("now"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			helpers.HandleBindError(c, "SweepHandler", err)
			return
		}
		now = parsed.UTC()
	}

	result, err := h.service.RunLifecycleSweep(c.Request.Context(), now)
	if err != nil {
		helpers.HandleServiceError(c, "SweepHandler", err, map[string]any{
			"sold":    result.Sold,
			"expired": result.Expired,
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewSweepResponse(result, now), "lifecycle sweep completed")
	helpers.LogSuccess("SweepHandler", "lifecycle sweep completed", map[string]any{
		"sold":    result.Sold,
		"expired": result.Expired,
		"skipped": result.Skipped,
	})
}
