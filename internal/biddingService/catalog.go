package bidding

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
	"auction-engine/internal/pricing"
	"auction-engine/internal/repository"
	"auction-engine/utils"

	"github.com/shopspring/decimal"
)

// Product list orderings
const (
	SortEndTime          = "endTime"
	SortCurrentPrice     = "currentPrice"
	SortCurrentPriceDesc = "currentPriceDesc"
	SortTotalBids        = "totalBids"
	SortNewest           = "newest"
)

// NewProductInput carries the seller-supplied fields of a new listing
type NewProductInput struct {
	Name        string
	Description string
	BasePrice   decimal.Decimal
	SellerID    string
	Category    string
	Images      []string
	EndTime     time.Time
}

// ProductFilter selects and orders products for listing
type ProductFilter struct {
	Search   string
	Category string
	Status   models.ProductStatus
	SellerID string
	Sort     string
	Limit    int
	Offset   int
}

// CreateUser registers a user; an empty role defaults to buyer
func (s *BiddingService) CreateUser(ctx context.Context, username, email string, role models.Role) (models.User, error) {
	username, email = strings.TrimSpace(username), strings.TrimSpace(email)
	if username == "" {
		return models.User{}, fmt.Errorf("service: %w - empty username", biddingerrors.ErrInvalidUser)
	}
	if !strings.Contains(email, "@") {
		return models.User{}, fmt.Errorf("service: %w - malformed email %q", biddingerrors.ErrInvalidUser, email)
	}
	if role == "" {
		role = models.RoleBuyer
	}
	if !role.Valid() {
		return models.User{}, fmt.Errorf("service: %w - unknown role %q", biddingerrors.ErrInvalidUser, role)
	}

	user := models.User{
		UserID:    utils.GenerateID(),
		Username:  username,
		Email:     email,
		Role:      role,
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return models.User{}, fmt.Errorf("service: failed to create user %s: %w", username, err)
	}

	utils.Info("user created", map[string]any{"user_id": user.UserID, "username": user.Username, "role": string(user.Role)})
	return user, nil
}

// CreateProduct lists a new product for auction
func (s *BiddingService) CreateProduct(ctx context.Context, in NewProductInput) (models.Product, error) {
	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		return models.Product{}, fmt.Errorf("service: %w - empty name", biddingerrors.ErrInvalidProduct)
	case in.SellerID == "":
		return models.Product{}, fmt.Errorf("service: %w - missing sellerID", biddingerrors.ErrInvalidProduct)
	case in.BasePrice.IsNegative():
		return models.Product{}, fmt.Errorf("service: %w - negative base price", biddingerrors.ErrInvalidProduct)
	case !models.InMoneyRange(in.BasePrice):
		return models.Product{}, fmt.Errorf("service: %w - base price exceeds %s or its precision",
			biddingerrors.ErrInvalidProduct, models.MaxMoney.StringFixed(models.MoneyPrecision))
	case !models.IsValidMoney(in.BasePrice):
		return models.Product{}, fmt.Errorf("service: %w - base price %s has more than %d decimal places",
			biddingerrors.ErrInvalidProduct, in.BasePrice, models.MoneyPrecision)
	case in.EndTime.IsZero():
		return models.Product{}, fmt.Errorf("service: %w - missing end time", biddingerrors.ErrInvalidProduct)
	}

	now := s.now()
	product := models.Product{
		ProductID:   utils.GenerateID(),
		Name:        name,
		Description: in.Description,
		BasePrice:   in.BasePrice,
		SellerID:    in.SellerID,
		Category:    in.Category,
		Images:      append([]string{}, in.Images...),
		Status:      models.ProductActive,
		EndTime:     in.EndTime.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateProduct(ctx, product); err != nil {
		return models.Product{}, fmt.Errorf("service: failed to create product %q: %w", name, err)
	}

	utils.Info("product listed", map[string]any{
		"product_id": product.ProductID,
		"seller_id":  product.SellerID,
		"base_price": product.BasePrice.StringFixed(models.MoneyPrecision),
		"end_time":   product.EndTime.Format(time.RFC3339),
	})
	return product, nil
}

// GetProductView returns a product with its derived price and ranked bids
func (s *BiddingService) GetProductView(ctx context.Context, productID string) (pricing.ProductView, error) {
	if productID == "" {
		return pricing.ProductView{}, fmt.Errorf("service: %w - empty product ID", biddingerrors.ErrInvalidProduct)
	}

	snap, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return pricing.ProductView{}, fmt.Errorf("service: failed to get product %s: %w", productID, err)
	}
	return pricing.NewProductView(snap), nil
}

// ListProducts returns the views of products matching filter, ordered and paged
func (s *BiddingService) ListProducts(ctx context.Context, filter ProductFilter) ([]pricing.ProductView, error) {
	less, err := productOrdering(filter.Sort)
	if err != nil {
		return nil, err
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, fmt.Errorf("service: %w - negative limit or offset", biddingerrors.ErrInvalidFilter)
	}

	snaps, err := s.repo.QueryProducts(ctx, repository.ProductQuery{
		Search:   filter.Search,
		Category: filter.Category,
		Status:   filter.Status,
		SellerID: filter.SellerID,
	})
	if err != nil {
		return nil, fmt.Errorf("service: failed to list products: %w", err)
	}

	views := make([]pricing.ProductView, len(snaps))
	for i, snap := range snaps {
		views[i] = pricing.NewProductView(snap)
	}
	sort.SliceStable(views, func(i, j int) bool { return less(views[i], views[j]) })

	if filter.Offset >= len(views) {
		return []pricing.ProductView{}, nil
	}
	views = views[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(views) {
		views = views[:filter.Limit]
	}
	return views, nil
}

func productOrdering(key string) (func(a, b pricing.ProductView) bool, error) {
	switch key {
	case "", SortEndTime:
		return func(a, b pricing.ProductView) bool { return a.EndTime.Before(b.EndTime) }, nil
	case SortCurrentPrice:
		return func(a, b pricing.ProductView) bool { return a.CurrentPrice.LessThan(b.CurrentPrice) }, nil
	case SortCurrentPriceDesc:
		return func(a, b pricing.ProductView) bool { return a.CurrentPrice.GreaterThan(b.CurrentPrice) }, nil
	case SortTotalBids:
		return func(a, b pricing.ProductView) bool { return a.TotalBids > b.TotalBids }, nil
	case SortNewest:
		return func(a, b pricing.ProductView) bool { return a.CreatedAt.After(b.CreatedAt) }, nil
	default:
		return nil, fmt.Errorf("service: %w - unknown sort %q", biddingerrors.ErrInvalidFilter, key)
	}
}

// GetOrdersByBuyer returns the orders a user has won
func (s *BiddingService) GetOrdersByBuyer(ctx context.Context, userID string) ([]models.Order, error) {
	if userID == "" {
		return nil, fmt.Errorf("service: %w - empty user ID", biddingerrors.ErrInvalidUser)
	}

	orders, err := s.repo.GetOrdersByBuyer(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get orders for user %s: %w", userID, err)
	}
	return orders, nil
}

// GetOrderForProduct returns the order a sold product settled into
func (s *BiddingService) GetOrderForProduct(ctx context.Context, productID string) (models.Order, error) {
	if productID == "" {
		return models.Order{}, fmt.Errorf("service: %w - empty product ID", biddingerrors.ErrInvalidProduct)
	}

	order, err := s.repo.GetOrderByProduct(ctx, productID)
	if err != nil {
		return models.Order{}, fmt.Errorf("service: failed to get order for product %s: %w", productID, err)
	}
	return order, nil
}
