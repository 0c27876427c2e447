package handler

import (
	"net/http"

	bidding "auction-engine/internal/biddingService"
	model "auction-engine/internal/models"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// CreateUserHandler handles POST /users
func (h *BiddingHandler) CreateUserHandler(c *gin.Context) {
	var req helpers.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateUserHandler", err)
		return
	}

	user, err := h.service.CreateUser(c.Request.Context(), req.Username, req.Email, model.Role(req.Role))
	if err != nil {
		helpers.HandleServiceError(c, "CreateUserHandler", err, map[string]any{"username": req.Username})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, user, "user created successfully")
	helpers.LogSuccess("CreateUserHandler", "user created successfully", map[string]any{
		"user_id": user.UserID,
		"role":    string(user.Role),
	})
}

// CreateProductHandler handles POST /products
func (h *BiddingHandler) CreateProductHandler(c *gin.Context) {
	var req helpers.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateProductHandler", err)
		return
	}

	product, err := h.service.CreateProduct(c.Request.Context(), bidding.NewProductInput{
		Name:        req.Name,
		Description: req.Description,
		BasePrice:   req.BasePrice,
		SellerID:    req.SellerID,
		Category:    req.Category,
		Images:      req.Images,
		EndTime:     req.EndTime,
	})
	if err != nil {
		helpers.HandleServiceError(c, "CreateProductHandler", err, map[string]any{
			"seller_id": req.SellerID,
			"name":      req.Name,
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, product, "product created successfully")
	helpers.LogSuccess("CreateProductHandler", "product created successfully", map[string]any{
		"product_id": product.ProductID,
		"seller_id":  product.SellerID,
	})
}

// GetProductHandler handles GET /products/:product_id
func (h *BiddingHandler) GetProductHandler(c *gin.Context) {
	productID := c.Param("product_id")
	view, err := h.service.GetProductView(c.Request.Context(), productID)
	if err != nil {
		helpers.HandleServiceError(c, "GetProductHandler", err, map[string]any{"product_id": productID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, view, "product retrieved successfully")
}

// GetOrderByProductHandler handles GET /products/:product_id/order
func (h *BiddingHandler) GetOrderByProductHandler(c *gin.Context) {
	productID := c.Param("product_id")
	order, err := h.service.GetOrderForProduct(c.Request.Context(), productID)
	if err != nil {
		helpers.HandleServiceError(c, "GetOrderByProductHandler", err, map[string]any{"product_id": productID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, order, "order retrieved successfully")
}

// ListProductsHandler handles GET /products
func (h *BiddingHandler) ListProductsHandler(c *gin.Context) {
	var q helpers.ListProductsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		helpers.HandleBindError(c, "ListProductsHandler", err)
		return
	}

	views, err := h.service.ListProducts(c.Request.Context(), bidding.ProductFilter{
		Search:   q.Search,
		Category: q.Category,
		Status:   model.ProductStatus(q.Status),
		SellerID: q.SellerID,
		Sort:     q.Sort,
		Limit:    q.Limit,
		Offset:   q.Offset,
	})
	if err != nil {
		helpers.HandleServiceError(c, "ListProductsHandler", err, map[string]any{"sort": q.Sort})
		return
	}

	utils.JSONList(c, http.StatusOK, views, "products retrieved successfully")
	helpers.LogSuccess("ListProductsHandler", "products retrieved successfully", map[string]any{
		"count":    len(views),
		"category": q.Category,
		"sort":     q.Sort,
	})
}

// GetOrdersByUserHandler handles GET /users/:user_id/orders
func (h *BiddingHandler) GetOrdersByUserHandler(c *gin.Context) {
	userID := c.Param("user_id")
	orders, err := h.service.GetOrdersByBuyer(c.Request.Context(), userID)
	if err != nil {
		helpers.HandleServiceError(c, "GetOrdersByUserHandler", err, map[string]any{"user_id": userID})
		return
	}

	utils.JSONList(c, http.StatusOK, orders, "orders retrieved successfully")
	helpers.LogSuccess("GetOrdersByUserHandler", "orders retrieved successfully", map[string]any{
		"user_id":      userID,
		"orders_count": len(orders),
	})
}
