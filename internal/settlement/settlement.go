// Package settlement creates the order that records a resolved sale.
package settlement

import (
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/utils"
)

// Settle creates the pending order for product won by leading.
// It must run inside the product's critical section; a product that already
// carries an order yields ErrAlreadySettled and nothing is written.
func Settle(tx repository.ProductTx, product models.Product, leading models.Bid, now time.Time) (models.Order, error) {
	if tx.Snapshot().Order != nil {
		return models.Order{}, fmt.Errorf("settle product %s: %w", product.ProductID, biddingerrors.ErrAlreadySettled)
	}
	if leading.ProductID != product.ProductID {
		return models.Order{}, fmt.Errorf("settle product %s with bid for %s: %w",
			product.ProductID, leading.ProductID, biddingerrors.ErrReferentialIntegrity)
	}

	order := models.Order{
		OrderID:    utils.GenerateID(),
		ProductID:  product.ProductID,
		BuyerID:    leading.BidderID,
		SellerID:   product.SellerID,
		FinalPrice: leading.Amount,
		Status:     models.OrderPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := tx.InsertOrder(order); err != nil {
		if errors.Is(err, biddingerrors.ErrAlreadySettled) {
			return models.Order{}, err
		}
		return models.Order{}, fmt.Errorf("settle product %s: %w", product.ProductID, err)
	}

	utils.Info("order settled", map[string]any{
		"order_id":    order.OrderID,
		"product_id":  order.ProductID,
		"buyer_id":    order.BuyerID,
		"seller_id":   order.SellerID,
		"final_price": order.FinalPrice.StringFixed(models.MoneyPrecision),
	})
	return order, nil
}
