// Package pricing derives a product's price and bid statistics from its bid set.
// Every function here is pure; callers pass in whatever snapshot they hold.
package pricing

import (
	"sort"

	"auction-engine/internal/models"

	"github.com/shopspring/decimal"
)

// counts reports whether a bid contributes to the current price.
// A won bid keeps counting so a settled product still shows its final price.
func counts(b models.Bid) bool {
	return b.Status == models.BidActive || b.Status == models.BidWon
}

// CurrentPrice returns the highest counted bid amount, or the base price when unbid
func CurrentPrice(product models.Product, bids []models.Bid) decimal.Decimal {
	price := product.BasePrice
	found := false
	for _, b := range bids {
		if !counts(b) {
			continue
		}
		if !found || b.Amount.GreaterThan(price) {
			price = b.Amount
			found = true
		}
	}
	return price
}

// TotalBids returns the number of bids placed on a product
func TotalBids(bids []models.Bid) int {
	return len(bids)
}

// outranks reports whether a should be ordered before b:
// higher amount first, then earlier admission, then lower id.
func outranks(a, b models.Bid) bool {
	if c := a.Amount.Cmp(b.Amount); c != 0 {
		return c > 0
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.BidID < b.BidID
}

// LeadingBid returns the bid that would currently win the auction.
// The second return value is false when there are no bids.
func LeadingBid(bids []models.Bid) (models.Bid, bool) {
	if len(bids) == 0 {
		return models.Bid{}, false
	}
	leading := bids[0]
	for _, b := range bids[1:] {
		if outranks(b, leading) {
			leading = b
		}
	}
	return leading, true
}

// RankBids returns a copy of bids in winning order
func RankBids(bids []models.Bid) []models.Bid {
	ranked := append([]models.Bid(nil), bids...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return outranks(ranked[i], ranked[j])
	})
	return ranked
}
