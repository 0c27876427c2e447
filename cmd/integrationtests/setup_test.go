package integrationtests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/repository"
	"auction-engine/internal/server"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// SetupTestRouter initializes the router over a fresh in-memory repository
func SetupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	repo := repository.NewMemoryRepo(repository.WithLockTimeout(time.Second))
	service := bidding.NewBiddingService(repo)
	return server.SetupRouter(service, 5*time.Second)
}

// ExecuteRequestAndParse executes an HTTP request on the given router and decodes the JSON envelope
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		var err error
		reqBody, err = json.Marshal(v)
		require.NoError(t, err, "failed to marshal body")
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "failed to unmarshal response: %s", w.Body.String())
	}
	return resp, w
}

// dataObject returns the "data" member of a single-entity response
func dataObject(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	data, ok := resp["data"].(map[string]any)
	require.True(t, ok, "response data is not an object: %v", resp)
	return data
}

// dataList returns the "data" member of a collection response
func dataList(t *testing.T, resp map[string]any) []any {
	t.Helper()
	data, ok := resp["data"].([]any)
	require.True(t, ok, "response data is not a list: %v", resp)
	return data
}

// createUser registers a user over HTTP and returns its id
func createUser(t *testing.T, router *gin.Engine, username, role string) string {
	t.Helper()
	resp, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/users", map[string]any{
		"username": username,
		"email":    username + "@example.com",
		"role":     role,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return dataObject(t, resp)["user_id"].(string)
}

// createProduct lists a product over HTTP and returns its id
func createProduct(t *testing.T, router *gin.Engine, sellerID, name, basePrice string, endTime time.Time) string {
	t.Helper()
	resp, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/products", map[string]any{
		"name":       name,
		"base_price": basePrice,
		"seller_id":  sellerID,
		"category":   "test",
		"end_time":   endTime.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return dataObject(t, resp)["product_id"].(string)
}

// placeBid posts a bid and returns the recorder
func placeBid(t *testing.T, router *gin.Engine, productID, bidderID, amount string) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()
	return ExecuteRequestAndParse(t, router, http.MethodPost, "/bids", map[string]any{
		"product_id": productID,
		"bidder_id":  bidderID,
		"amount":     amount,
	})
}
