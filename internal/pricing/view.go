package pricing

import (
	"auction-engine/internal/models"

	"github.com/shopspring/decimal"
)

// ProductView is the read model handed to rendering collaborators
type ProductView struct {
	models.Product
	SellerName   string          `json:"seller_name"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	TotalBids    int             `json:"total_bids"`
	LeadingBid   *models.Bid     `json:"leading_bid,omitempty"`
	Bids         []models.Bid    `json:"bids"`
	Order        *models.Order   `json:"order,omitempty"`
}

// NewProductView projects a snapshot into its view
func NewProductView(snap models.ProductSnapshot) ProductView {
	view := ProductView{
		Product:      snap.Product,
		SellerName:   snap.Seller.Username,
		CurrentPrice: CurrentPrice(snap.Product, snap.Bids),
		TotalBids:    TotalBids(snap.Bids),
		Bids:         RankBids(snap.Bids),
		Order:        snap.Order,
	}
	if leading, ok := LeadingBid(snap.Bids); ok {
		view.LeadingBid = &leading
	}
	if view.Bids == nil {
		view.Bids = []models.Bid{}
	}
	return view
}
