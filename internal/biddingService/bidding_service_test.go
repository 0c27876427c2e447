package bidding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/lifecycle"
	model "auction-engine/internal/models"
	"auction-engine/internal/pricing"
	"auction-engine/internal/repository"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func openSnapshot(base string, bids ...model.Bid) model.ProductSnapshot {
	return model.ProductSnapshot{
		Product: model.Product{
			ProductID: "product1",
			BasePrice: model.Money(base),
			SellerID:  "seller1",
			Status:    model.ProductActive,
			EndTime:   baseTime.Add(time.Hour),
		},
		Seller: model.User{UserID: "seller1", Username: "seller1"},
		Bids:   bids,
	}
}

// lockedWith makes WithProduct run its callback against tx
func lockedWith(tx repository.ProductTx) func(context.Context, string, func(repository.ProductTx) error) error {
	return func(_ context.Context, _ string, fn func(repository.ProductTx) error) error {
		return fn(tx)
	}
}

// Tests PlaceBid against a mocked store
func TestBiddingService_PlaceBid(t *testing.T) {
	t.Parallel()

	buyer := model.User{UserID: "user1", Username: "user1", Role: model.RoleBuyer}
	dbDown := biddingerrors.NewPersistenceError("insert bid", errors.New("connection reset"))

	// Table-driven test cases
	tests := []struct {
		name          string
		productID     string
		bidderID      string
		amount        string
		mockSetup     func(ctrl *gomock.Controller, repo *repository.MockAuctionDB)
		expectedError error
	}{
		{
			name:      "valid_first_bid",
			productID: "product1",
			bidderID:  "user1",
			amount:    "100",
			mockSetup: func(ctrl *gomock.Controller, repo *repository.MockAuctionDB) {
				tx := repository.NewMockProductTx(ctrl)
				repo.EXPECT().GetProduct(gomock.Any(), "product1").Return(openSnapshot("90"), nil)
				repo.EXPECT().GetUser(gomock.Any(), "user1").Return(buyer, nil)
				repo.EXPECT().WithProduct(gomock.Any(), "product1", gomock.Any()).DoAndReturn(lockedWith(tx))
				tx.EXPECT().Snapshot().Return(openSnapshot("90"))
				tx.EXPECT().InsertBid(gomock.Any()).Return(nil)
			},
		},
		{
			name:          "empty_productID",
			productID:     "",
			bidderID:      "user1",
			amount:        "50",
			mockSetup:     func(*gomock.Controller, *repository.MockAuctionDB) {},
			expectedError: biddingerrors.ErrInvalidBid,
		},
		{
			name:          "empty_bidderID",
			productID:     "product1",
			bidderID:      "",
			amount:        "50",
			mockSetup:     func(*gomock.Controller, *repository.MockAuctionDB) {},
			expectedError: biddingerrors.ErrInvalidBid,
		},
		{
			name:          "zero_amount",
			productID:     "product1",
			bidderID:      "user1",
			amount:        "0",
			mockSetup:     func(*gomock.Controller, *repository.MockAuctionDB) {},
			expectedError: biddingerrors.ErrInvalidBid,
		},
		{
			name:          "negative_amount",
			productID:     "product1",
			bidderID:      "user1",
			amount:        "-50",
			mockSetup:     func(*gomock.Controller, *repository.MockAuctionDB) {},
			expectedError: biddingerrors.ErrInvalidBid,
		},
		{
			name:          "sub_cent_amount",
			productID:     "product1",
			bidderID:      "user1",
			amount:        "100.005",
			mockSetup:     func(*gomock.Controller, *repository.MockAuctionDB) {},
			expectedError: biddingerrors.ErrInvalidBid,
		},
		{
			name:          "amount_exponent_far_below_cents",
			productID:     "product1",
			bidderID:      "user1",
			amount:        "1e-2000000000",
			mockSetup:     func(*gomock.Controller, *repository.MockAuctionDB) {},
			expectedError: biddingerrors.ErrInvalidBid,
		},
		{
			name:          "amount_exponent_huge",
			productID:     "product1",
			bidderID:      "user1",
			amount:        "1e2000000000",
			mockSetup:     func(*gomock.Controller, *repository.MockAuctionDB) {},
			expectedError: biddingerrors.ErrInvalidBid,
		},
		{
			name:          "amount_above_storable_maximum",
			productID:     "product1",
			bidderID:      "user1",
			amount:        "10000000000",
			mockSetup:     func(*gomock.Controller, *repository.MockAuctionDB) {},
			expectedError: biddingerrors.ErrInvalidBid,
		},
		{
			name:      "product_not_found",
			productID: "ghost",
			bidderID:  "user1",
			amount:    "100",
			mockSetup: func(_ *gomock.Controller, repo *repository.MockAuctionDB) {
				repo.EXPECT().GetProduct(gomock.Any(), "ghost").Return(model.ProductSnapshot{}, biddingerrors.ErrProductNotFound)
			},
			expectedError: biddingerrors.ErrNotFound,
		},
		{
			name:      "auction_ended",
			productID: "product1",
			bidderID:  "user1",
			amount:    "100",
			mockSetup: func(_ *gomock.Controller, repo *repository.MockAuctionDB) {
				snap := openSnapshot("90")
				snap.Product.EndTime = baseTime.Add(-time.Second)
				repo.EXPECT().GetProduct(gomock.Any(), "product1").Return(snap, nil)
			},
			expectedError: biddingerrors.ErrAuctionEnded,
		},
		{
			name:      "auction_ends_exactly_now",
			productID: "product1",
			bidderID:  "user1",
			amount:    "100",
			mockSetup: func(_ *gomock.Controller, repo *repository.MockAuctionDB) {
				snap := openSnapshot("90")
				snap.Product.EndTime = baseTime
				repo.EXPECT().GetProduct(gomock.Any(), "product1").Return(snap, nil)
			},
			expectedError: biddingerrors.ErrAuctionEnded,
		},
		{
			name:      "product_already_sold",
			productID: "product1",
			bidderID:  "user1",
			amount:    "100",
			mockSetup: func(_ *gomock.Controller, repo *repository.MockAuctionDB) {
				snap := openSnapshot("90")
				snap.Product.Status = model.ProductSold
				repo.EXPECT().GetProduct(gomock.Any(), "product1").Return(snap, nil)
			},
			expectedError: biddingerrors.ErrAuctionEnded,
		},
		{
			name:      "bid_too_low",
			productID: "product1",
			bidderID:  "user2",
			amount:    "80",
			mockSetup: func(_ *gomock.Controller, repo *repository.MockAuctionDB) {
				repo.EXPECT().GetProduct(gomock.Any(), "product1").Return(openSnapshot("90"), nil)
			},
			expectedError: biddingerrors.ErrBidTooLow,
		},
		{
			name:      "bid_equal_to_current_price",
			productID: "product1",
			bidderID:  "user2",
			amount:    "100",
			mockSetup: func(_ *gomock.Controller, repo *repository.MockAuctionDB) {
				repo.EXPECT().GetProduct(gomock.Any(), "product1").Return(openSnapshot("90", model.Bid{
					BidID: "bid1", ProductID: "product1", BidderID: "user1", Amount: model.Money("100"), Status: model.BidActive,
				}), nil)
			},
			expectedError: biddingerrors.ErrBidTooLow,
		},
		{
			name:      "bidder_not_found",
			productID: "product1",
			bidderID:  "ghost",
			amount:    "100",
			mockSetup: func(_ *gomock.Controller, repo *repository.MockAuctionDB) {
				repo.EXPECT().GetProduct(gomock.Any(), "product1").Return(openSnapshot("90"), nil)
				repo.EXPECT().GetUser(gomock.Any(), "ghost").Return(model.User{}, biddingerrors.ErrUserNotFound)
			},
			expectedError: biddingerrors.ErrNotFound,
		},
		{
			name:      "outbid_inside_critical_section",
			productID: "product1",
			bidderID:  "user1",
			amount:    "100",
			mockSetup: func(ctrl *gomock.Controller, repo *repository.MockAuctionDB) {
				tx := repository.NewMockProductTx(ctrl)
				repo.EXPECT().GetProduct(gomock.Any(), "product1").Return(openSnapshot("90"), nil)
				repo.EXPECT().GetUser(gomock.Any(), "user1").Return(buyer, nil)
				repo.EXPECT().WithProduct(gomock.Any(), "product1", gomock.Any()).DoAndReturn(lockedWith(tx))
				tx.EXPECT().Snapshot().Return(openSnapshot("90", model.Bid{
					BidID: "fast", ProductID: "product1", BidderID: "user2", Amount: model.Money("105"), Status: model.BidActive,
				}))
			},
			expectedError: biddingerrors.ErrBidTooLow,
		},
		{
			name:      "store_rejects_unknown_bidder",
			productID: "product1",
			bidderID:  "user1",
			amount:    "100",
			mockSetup: func(ctrl *gomock.Controller, repo *repository.MockAuctionDB) {
				tx := repository.NewMockProductTx(ctrl)
				repo.EXPECT().GetProduct(gomock.Any(), "product1").Return(openSnapshot("90"), nil)
				repo.EXPECT().GetUser(gomock.Any(), "user1").Return(buyer, nil)
				repo.EXPECT().WithProduct(gomock.Any(), "product1", gomock.Any()).DoAndReturn(lockedWith(tx))
				tx.EXPECT().Snapshot().Return(openSnapshot("90"))
				tx.EXPECT().InsertBid(gomock.Any()).Return(biddingerrors.ErrReferentialIntegrity)
			},
			expectedError: biddingerrors.ErrUserNotFound,
		},
		{
			name:      "persistence_error_not_retried",
			productID: "product1",
			bidderID:  "user3",
			amount:    "120",
			mockSetup: func(_ *gomock.Controller, repo *repository.MockAuctionDB) {
				repo.EXPECT().GetProduct(gomock.Any(), "product1").Return(openSnapshot("90"), nil)
				repo.EXPECT().GetUser(gomock.Any(), "user3").Return(model.User{UserID: "user3"}, nil)
				repo.EXPECT().WithProduct(gomock.Any(), "product1", gomock.Any()).Return(dbDown).Times(1)
			},
			expectedError: biddingerrors.ErrPersistence,
		},
		{
			name:      "conflict_then_admitted",
			productID: "product1",
			bidderID:  "user1",
			amount:    "100",
			mockSetup: func(ctrl *gomock.Controller, repo *repository.MockAuctionDB) {
				tx := repository.NewMockProductTx(ctrl)
				repo.EXPECT().GetProduct(gomock.Any(), "product1").Return(openSnapshot("90"), nil).Times(2)
				repo.EXPECT().GetUser(gomock.Any(), "user1").Return(buyer, nil).Times(2)
				gomock.InOrder(
					repo.EXPECT().WithProduct(gomock.Any(), "product1", gomock.Any()).Return(biddingerrors.ErrConcurrencyConflict),
					repo.EXPECT().WithProduct(gomock.Any(), "product1", gomock.Any()).DoAndReturn(lockedWith(tx)),
				)
				tx.EXPECT().Snapshot().Return(openSnapshot("90"))
				tx.EXPECT().InsertBid(gomock.Any()).Return(nil)
			},
		},
		{
			name:      "conflict_retries_exhausted",
			productID: "product1",
			bidderID:  "user1",
			amount:    "100",
			mockSetup: func(_ *gomock.Controller, repo *repository.MockAuctionDB) {
				repo.EXPECT().GetProduct(gomock.Any(), "product1").Return(openSnapshot("90"), nil).Times(DefaultMaxBidAttempts)
				repo.EXPECT().GetUser(gomock.Any(), "user1").Return(buyer, nil).Times(DefaultMaxBidAttempts)
				repo.EXPECT().WithProduct(gomock.Any(), "product1", gomock.Any()).
					Return(biddingerrors.ErrConcurrencyConflict).Times(DefaultMaxBidAttempts)
			},
			expectedError: biddingerrors.ErrConcurrencyConflict,
		},
	}

	for _, tc := range tests {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel() // Run tests concurrently

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockRepo := repository.NewMockAuctionDB(ctrl)
			tc.mockSetup(ctrl, mockRepo)
			service := NewBiddingService(mockRepo)

			amount := decimal.RequireFromString(tc.amount)
			bid, err := service.PlaceBid(context.Background(), tc.productID, tc.bidderID, amount, baseTime)

			if tc.expectedError != nil {
				require.Error(t, err)
				require.True(t, errors.Is(err, tc.expectedError), "expected error: %v, got: %v", tc.expectedError, err)
				require.Empty(t, bid.BidID)
				return
			}

			require.NoError(t, err)

			// Validate generated BidID
			_, parseErr := uuid.Parse(bid.BidID)
			require.NoError(t, parseErr, "BidID should be a valid UUID")

			require.Equal(t, tc.productID, bid.ProductID)
			require.Equal(t, tc.bidderID, bid.BidderID)
			require.True(t, amount.Equal(bid.Amount))
			require.Equal(t, model.BidActive, bid.Status)
			require.Equal(t, baseTime, bid.CreatedAt)
		})
	}
}

func TestBiddingService_PlaceBid_CustomAttempts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := repository.NewMockAuctionDB(ctrl)
	mockRepo.EXPECT().GetProduct(gomock.Any(), "product1").Return(openSnapshot("90"), nil).Times(5)
	mockRepo.EXPECT().GetUser(gomock.Any(), "user1").Return(model.User{UserID: "user1"}, nil).Times(5)
	mockRepo.EXPECT().WithProduct(gomock.Any(), "product1", gomock.Any()).Return(biddingerrors.ErrConcurrencyConflict).Times(5)

	service := NewBiddingService(mockRepo, WithMaxBidAttempts(5))
	_, err := service.PlaceBid(context.Background(), "product1", "user1", model.Money("100"), baseTime)
	require.ErrorIs(t, err, biddingerrors.ErrConcurrencyConflict)
}

// seededService returns a service over a memory store holding seller1, buyer1..buyer3
// and product1 (base price 90, ending an hour after baseTime)
func seededService(t *testing.T) (*BiddingService, *repository.MemoryRepo) {
	t.Helper()
	ctx := context.Background()
	repo := repository.NewMemoryRepo()

	for _, id := range []string{"seller1", "buyer1", "buyer2", "buyer3"} {
		role := model.RoleBuyer
		if id == "seller1" {
			role = model.RoleSeller
		}
		require.NoError(t, repo.CreateUser(ctx, model.User{UserID: id, Username: id, Email: id + "@example.com", Role: role, CreatedAt: baseTime}))
	}
	require.NoError(t, repo.CreateProduct(ctx, model.Product{
		ProductID: "product1",
		Name:      "Vintage camera",
		BasePrice: model.Money("90"),
		SellerID:  "seller1",
		Status:    model.ProductActive,
		EndTime:   baseTime.Add(time.Hour),
		CreatedAt: baseTime,
	}))

	return NewBiddingService(repo, WithClock(func() time.Time { return baseTime })), repo
}

func currentPrice(t *testing.T, repo repository.AuctionDB) (decimal.Decimal, int) {
	t.Helper()
	snap, err := repo.GetProduct(context.Background(), "product1")
	require.NoError(t, err)
	return pricing.CurrentPrice(snap.Product, snap.Bids), pricing.TotalBids(snap.Bids)
}

func TestBiddingService_PlaceBid_PriceTracksEveryAdmission(t *testing.T) {
	t.Parallel()
	service, repo := seededService(t)
	ctx := context.Background()

	price, total := currentPrice(t, repo)
	require.Equal(t, "90", price.String())
	require.Zero(t, total)

	for i, amount := range []string{"90.01", "95", "120.50", "121"} {
		bidder := []string{"buyer1", "buyer2", "buyer3"}[i%3]
		_, err := service.PlaceBid(ctx, "product1", bidder, model.Money(amount), baseTime.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)

		price, total = currentPrice(t, repo)
		require.True(t, model.Money(amount).Equal(price), "after %s price is %s", amount, price)
		require.Equal(t, i+1, total)
	}
}

func TestBiddingService_PlaceBid_RejectionsLeaveBidsUnchanged(t *testing.T) {
	t.Parallel()
	service, repo := seededService(t)
	ctx := context.Background()

	_, err := service.PlaceBid(ctx, "product1", "buyer1", model.Money("100"), baseTime)
	require.NoError(t, err)
	before, err := repo.GetBidsByProduct(ctx, "product1")
	require.NoError(t, err)

	for _, amount := range []string{"100", "99.99", "1"} {
		_, err = service.PlaceBid(ctx, "product1", "buyer2", model.Money(amount), baseTime.Add(time.Minute))
		require.ErrorIs(t, err, biddingerrors.ErrBidTooLow)
	}

	_, err = service.PlaceBid(ctx, "product1", "buyer2", model.Money("500"), baseTime.Add(2*time.Hour))
	require.ErrorIs(t, err, biddingerrors.ErrAuctionEnded)

	_, err = service.PlaceBid(ctx, "product1", "nobody", model.Money("500"), baseTime)
	require.ErrorIs(t, err, biddingerrors.ErrUserNotFound)

	after, err := repo.GetBidsByProduct(ctx, "product1")
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestBiddingService_PlaceBid_SellerMayBid(t *testing.T) {
	t.Parallel()
	service, _ := seededService(t)

	bid, err := service.PlaceBid(context.Background(), "product1", "seller1", model.Money("91"), baseTime)
	require.NoError(t, err)
	require.Equal(t, "seller1", bid.BidderID)
}

func TestBiddingService_PlaceBid_CancelledCallerCommitsNothing(t *testing.T) {
	t.Parallel()
	service, repo := seededService(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := service.PlaceBid(ctx, "product1", "buyer1", model.Money("100"), baseTime)
	require.ErrorIs(t, err, context.Canceled)

	_, total := currentPrice(t, repo)
	require.Zero(t, total)
}

// Two racing bids of 100 and 105 on a price of 90 always end at 105.
// 100 is only admitted when it commits first.
func TestBiddingService_PlaceBid_ConcurrentPair(t *testing.T) {
	t.Parallel()

	for round := 0; round < 20; round++ {
		service, repo := seededService(t)
		ctx := context.Background()

		var (
			wg   sync.WaitGroup
			errs = make([]error, 2)
		)
		for i, amount := range []string{"100", "105"} {
			wg.Add(1)
			go func(i int, amount string) {
				defer wg.Done()
				_, errs[i] = service.PlaceBid(ctx, "product1", fmt.Sprintf("buyer%d", i+1), model.Money(amount), baseTime)
			}(i, amount)
		}
		wg.Wait()

		require.NoError(t, errs[1], "the 105 bid must always be admitted")
		if errs[0] != nil {
			require.ErrorIs(t, errs[0], biddingerrors.ErrBidTooLow)
		}

		price, total := currentPrice(t, repo)
		require.Equal(t, "105", price.String())
		if errs[0] == nil {
			require.Equal(t, 2, total)
		} else {
			require.Equal(t, 1, total)
		}

		leading, err := service.GetLeadingBid(ctx, "product1")
		require.NoError(t, err)
		require.Equal(t, "105", leading.Amount.String())
	}
}

func TestBiddingService_PlaceBid_ConcurrentBidsStrictlyIncrease(t *testing.T) {
	t.Parallel()
	service, repo := seededService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 60)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bidder := fmt.Sprintf("buyer%d", i%3+1)
			_, errs[i] = service.PlaceBid(ctx, "product1", bidder, model.MoneyFromInt(int64(91+i)), baseTime)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, biddingerrors.ErrBidTooLow, "bid of %d", 91+i)
		}
	}

	bids, err := repo.GetBidsByProduct(ctx, "product1")
	require.NoError(t, err)
	require.NotEmpty(t, bids)
	for i := 1; i < len(bids); i++ {
		require.True(t, bids[i].Amount.GreaterThan(bids[i-1].Amount),
			"bid %d (%s) admitted after %s", i, bids[i].Amount, bids[i-1].Amount)
	}

	price, _ := currentPrice(t, repo)
	require.Equal(t, "150", price.String())
}

// Tests GetBidsForProduct
func TestBiddingService_GetBidsForProduct(t *testing.T) {
	t.Parallel()

	bidsExample := []model.Bid{
		{BidID: "bid1", ProductID: "product1", BidderID: "user1", Amount: model.Money("100"), CreatedAt: baseTime},
		{BidID: "bid2", ProductID: "product1", BidderID: "user2", Amount: model.Money("150"), CreatedAt: baseTime.Add(time.Second)},
	}

	tests := []struct {
		name          string
		productID     string
		mockSetup     func(repo *repository.MockAuctionDB)
		expectedError error
		expectedIDs   []string
	}{
		{
			name:      "valid_product_with_bids",
			productID: "product1",
			mockSetup: func(repo *repository.MockAuctionDB) {
				repo.EXPECT().GetBidsByProduct(gomock.Any(), "product1").Return(bidsExample, nil)
			},
			expectedIDs: []string{"bid2", "bid1"},
		},
		{
			name:      "valid_product_no_bids",
			productID: "product2",
			mockSetup: func(repo *repository.MockAuctionDB) {
				repo.EXPECT().GetBidsByProduct(gomock.Any(), "product2").Return(nil, nil)
			},
			expectedIDs: []string{},
		},
		{
			name:          "empty_productID",
			productID:     "",
			mockSetup:     func(*repository.MockAuctionDB) {},
			expectedError: biddingerrors.ErrInvalidBid,
		},
		{
			name:      "unknown_product",
			productID: "product3",
			mockSetup: func(repo *repository.MockAuctionDB) {
				repo.EXPECT().GetBidsByProduct(gomock.Any(), "product3").Return(nil, biddingerrors.ErrProductNotFound)
			},
			expectedError: biddingerrors.ErrNotFound,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel() // Run tests concurrently

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			mockRepo := repository.NewMockAuctionDB(ctrl)
			tc.mockSetup(mockRepo)

			bids, err := NewBiddingService(mockRepo).GetBidsForProduct(context.Background(), tc.productID)

			if tc.expectedError != nil {
				require.ErrorIs(t, err, tc.expectedError)
				return
			}
			require.NoError(t, err)
			ids := make([]string, 0, len(bids))
			for _, b := range bids {
				ids = append(ids, b.BidID)
			}
			require.Equal(t, tc.expectedIDs, ids)
		})
	}
}

// Test GetLeadingBid
func TestBiddingService_GetLeadingBid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		productID     string
		bids          []model.Bid
		repoErr       error
		expectedError error
		expectedID    string
	}{
		{
			name:      "earliest_of_equal_bids_leads",
			productID: "product1",
			bids: []model.Bid{
				{BidID: "late", Amount: model.Money("100"), Status: model.BidActive, CreatedAt: baseTime.Add(time.Second)},
				{BidID: "early", Amount: model.Money("100"), Status: model.BidActive, CreatedAt: baseTime},
				{BidID: "low", Amount: model.Money("99"), Status: model.BidActive, CreatedAt: baseTime},
			},
			expectedID: "early",
		},
		{
			name:          "empty_productID",
			productID:     "",
			expectedError: biddingerrors.ErrInvalidBid,
		},
		{
			name:          "no_bids",
			productID:     "product2",
			bids:          []model.Bid{},
			expectedError: biddingerrors.ErrNoBids,
		},
		{
			name:          "repo_returns_error",
			productID:     "product3",
			repoErr:       biddingerrors.NewPersistenceError("query bids", errors.New("timeout")),
			expectedError: biddingerrors.ErrPersistence,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel() // Run tests concurrently

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			mockRepo := repository.NewMockAuctionDB(ctrl)
			if tc.productID != "" {
				mockRepo.EXPECT().GetBidsByProduct(gomock.Any(), tc.productID).Return(tc.bids, tc.repoErr)
			}

			bid, err := NewBiddingService(mockRepo).GetLeadingBid(context.Background(), tc.productID)
			if tc.expectedError != nil {
				require.ErrorIs(t, err, tc.expectedError)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expectedID, bid.BidID)
		})
	}
}

// Test GetProductsByBidder
func TestBiddingService_GetProductsByBidder(t *testing.T) {
	t.Parallel()

	productsExample := []model.Product{
		{ProductID: "product1", Name: "name1", BasePrice: model.Money("1000")},
		{ProductID: "product2", Name: "name2", BasePrice: model.Money("500")},
	}

	tests := []struct {
		name             string
		userID           string
		mockSetup        func(repo *repository.MockAuctionDB)
		expectedError    error
		expectedProducts []model.Product
	}{
		{
			name:   "valid_user_with_products",
			userID: "user1",
			mockSetup: func(repo *repository.MockAuctionDB) {
				repo.EXPECT().GetProductsByBidder(gomock.Any(), "user1").Return(productsExample, nil)
			},
			expectedProducts: productsExample,
		},
		{
			name:   "valid_user_no_products",
			userID: "user2",
			mockSetup: func(repo *repository.MockAuctionDB) {
				repo.EXPECT().GetProductsByBidder(gomock.Any(), "user2").Return([]model.Product{}, nil)
			},
			expectedProducts: []model.Product{},
		},
		{
			name:          "empty_userID",
			userID:        "",
			mockSetup:     func(*repository.MockAuctionDB) {},
			expectedError: biddingerrors.ErrInvalidBid,
		},
		{
			name:   "unknown_user",
			userID: "user3",
			mockSetup: func(repo *repository.MockAuctionDB) {
				repo.EXPECT().GetProductsByBidder(gomock.Any(), "user3").Return(nil, biddingerrors.ErrUserNotFound)
			},
			expectedError: biddingerrors.ErrUserNotFound,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel() // Run tests concurrently

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			mockRepo := repository.NewMockAuctionDB(ctrl)
			tc.mockSetup(mockRepo)

			products, err := NewBiddingService(mockRepo).GetProductsByBidder(context.Background(), tc.userID)
			if tc.expectedError != nil {
				require.ErrorIs(t, err, tc.expectedError)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expectedProducts, products)
		})
	}
}

func TestBiddingService_RunLifecycleSweep(t *testing.T) {
	t.Parallel()
	service, repo := seededService(t)
	ctx := context.Background()

	_, err := service.PlaceBid(ctx, "product1", "buyer1", model.Money("100"), baseTime)
	require.NoError(t, err)
	_, err = service.PlaceBid(ctx, "product1", "buyer2", model.Money("105"), baseTime.Add(time.Minute))
	require.NoError(t, err)

	end := baseTime.Add(time.Hour)
	for i := 0; i < 2; i++ {
		result, err := service.RunLifecycleSweep(ctx, end)
		require.NoError(t, err)
		require.Equal(t, 1-i, result.Total())
	}

	order, err := repo.GetOrderByProduct(ctx, "product1")
	require.NoError(t, err)
	require.Equal(t, "buyer2", order.BuyerID)
	require.Equal(t, "105", order.FinalPrice.String())

	view, err := service.GetProductView(ctx, "product1")
	require.NoError(t, err)
	require.Equal(t, model.ProductSold, view.Status)
	require.Equal(t, "105", view.CurrentPrice.String())
	require.NotNil(t, view.Order)

	_, err = service.PlaceBid(ctx, "product1", "buyer3", model.Money("200"), baseTime)
	require.ErrorIs(t, err, biddingerrors.ErrAuctionEnded)
}

// A bid landing just before the close and a sweep at the close settle to one order either way
func TestBiddingService_RunLifecycleSweep_RacesLateBid(t *testing.T) {
	t.Parallel()
	end := baseTime.Add(time.Hour)

	for round := 0; round < 100; round++ {
		service, repo := seededService(t)
		ctx := context.Background()

		_, err := service.PlaceBid(ctx, "product1", "buyer1", model.Money("100"), baseTime)
		require.NoError(t, err)

		var (
			wg       sync.WaitGroup
			bidErr   error
			sweepErr error
			result   lifecycle.SweepResult
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, bidErr = service.PlaceBid(ctx, "product1", "buyer2", model.Money("150"), end.Add(-time.Millisecond))
		}()
		go func() {
			defer wg.Done()
			result, sweepErr = service.RunLifecycleSweep(ctx, end)
		}()
		wg.Wait()

		require.NoError(t, sweepErr)
		require.Equal(t, 1, result.Sold)
		require.Equal(t, 1, result.Total())

		order, err := repo.GetOrderByProduct(ctx, "product1")
		require.NoError(t, err)

		winner, winning := "buyer2", "150"
		if bidErr != nil {
			require.ErrorIs(t, bidErr, biddingerrors.ErrAuctionEnded, "round %d", round)
			winner, winning = "buyer1", "100"
		}
		require.Equal(t, winner, order.BuyerID, "round %d", round)
		require.Equal(t, winning, order.FinalPrice.String())

		var orders int
		for _, buyer := range []string{"buyer1", "buyer2"} {
			won, err := repo.GetOrdersByBuyer(ctx, buyer)
			require.NoError(t, err)
			orders += len(won)
		}
		require.Equal(t, 1, orders)

		snap, err := repo.GetProduct(ctx, "product1")
		require.NoError(t, err)
		require.Equal(t, model.ProductSold, snap.Product.Status)
		for _, bid := range snap.Bids {
			want := model.BidLost
			if bid.BidderID == winner {
				want = model.BidWon
			}
			require.Equal(t, want, bid.Status, "bid by %s", bid.BidderID)
		}
	}
}
