package server

import (
	"time"

	handler "auction-engine/services/bidding/handler"

	"github.com/gin-gonic/gin"
)

// SetupRouter configures all Gin routes for the application.
// requestTimeout bounds each request's context; zero disables it.
func SetupRouter(biddingService handler.BiddingServiceInterface, requestTimeout time.Duration) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging
	router.Use(RequestTimeoutMiddleware(requestTimeout))

	biddingHandler := handler.NewBiddingHandler(biddingService)

	bids := router.Group("/bids")
	{
		bids.POST("", biddingHandler.RecordBidHandler)
	}

	products := router.Group("/products")
	{
		products.POST("", biddingHandler.CreateProductHandler)
		products.GET("", biddingHandler.ListProductsHandler)
		products.GET("/:product_id", biddingHandler.GetProductHandler)
		products.GET("/:product_id/bids", biddingHandler.GetBidsByProductHandler)
		products.GET("/:product_id/winning", biddingHandler.GetLeadingBidHandler)
		products.GET("/:product_id/order", biddingHandler.GetOrderByProductHandler)
	}

	users := router.Group("/users")
	{
		users.POST("", biddingHandler.CreateUserHandler)
		users.GET("/:user_id/products", biddingHandler.GetProductsByUserHandler)
		users.GET("/:user_id/orders", biddingHandler.GetOrdersByUserHandler)
	}

	admin := router.Group("/admin")
	{
		admin.POST("/sweep", biddingHandler.SweepHandler)
	}

	return router
}
