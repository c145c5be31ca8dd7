package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"shop-service/internal/auth"
	"shop-service/internal/service"
	"shop-service/internal/store"
	"shop-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	catalog *service.CatalogService
	users   *service.UserService
	cart    *service.CartService
	orders  *service.OrderService
	tokens  *auth.TokenManager
}

// NewHandler creates a new HTTP handler
func NewHandler(
	catalog *service.CatalogService,
	users *service.UserService,
	cart *service.CartService,
	orders *service.OrderService,
	tokens *auth.TokenManager,
) *Handler {
	return &Handler{
		catalog: catalog,
		users:   users,
		cart:    cart,
		orders:  orders,
		tokens:  tokens,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	authed := v1.Group("", h.requireAuth())

	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
		authed.POST("/products", h.createProduct)
		authed.PUT("/products/:id", h.updateProduct)
		authed.DELETE("/products/:id", h.deleteProduct)

		v1.GET("/categories", h.listCategories)
		v1.GET("/categories/:id", h.getCategory)
		authed.POST("/categories", h.createCategory)
		authed.PUT("/categories/:id", h.updateCategory)
		authed.DELETE("/categories/:id", h.deleteCategory)

		v1.POST("/users/register", h.registerUser)
		v1.POST("/users/login", h.loginUser)
		authed.GET("/users", h.listUsers)
		authed.PUT("/users/:id", h.updateUser)
		authed.DELETE("/users/:id", h.deleteUser)

		v1.GET("/cart/:user_id", h.getCart)
		v1.POST("/cart", h.addToCart)
		v1.DELETE("/cart/:user_id/:product_id", h.removeFromCart)
		v1.DELETE("/cart/clear/:user_id", h.clearCart)
		v1.GET("/cart/count/:user_id", h.cartCount)

		v1.POST("/orders", h.placeOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/orders/user/:user_id", h.ordersByUser)
		v1.GET("/orders/pending-count/:user_id", h.pendingOrderCount)
		authed.GET("/orders", h.listOrders)
		authed.PUT("/orders/:id/status", h.updateOrderStatus)
		authed.DELETE("/orders/:id", h.deleteOrder)
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// requireAuth rejects requests without a valid Bearer token and stores
// the claims on the context.
func (h *Handler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := h.tokens.Verify(header[len(prefix):])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid token"})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Next()
	}
}

// respondError maps service and store errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case service.IsValidationError(err), errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, store.ErrDuplicateEmail):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// --- products ---

func (h *Handler) listProducts(c *gin.Context) {
	var f store.ProductFilter
	f.Name = c.Query("name")
	f.CategoryID, _ = strconv.ParseInt(c.Query("category_id"), 10, 64)
	f.Limit, _ = strconv.Atoi(c.Query("limit"))
	f.Offset, _ = strconv.Atoi(c.Query("offset"))

	products, err := h.catalog.ListProducts(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) createProduct(c *gin.Context) {
	var in service.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product, err := h.catalog.CreateProduct(c.Request.Context(), &in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var in service.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product, err := h.catalog.UpdateProduct(c.Request.Context(), id, &in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.catalog.DeleteProduct(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted"})
}

// --- categories ---

func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (h *Handler) getCategory(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	category, err := h.catalog.GetCategory(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

type categoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) createCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	category, err := h.catalog.CreateCategory(c.Request.Context(), req.Name, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (h *Handler) updateCategory(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	category, err := h.catalog.UpdateCategory(c.Request.Context(), id, req.Name, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

func (h *Handler) deleteCategory(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.catalog.DeleteCategory(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Category deleted"})
}

// --- users ---

func (h *Handler) registerUser(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.Register(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Register successful",
		"user":    user,
	})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) loginUser(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"user":    user,
	})
}

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) updateUser(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.UpdateUser(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) deleteUser(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.users.DeleteUser(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
}

// --- cart ---

func (h *Handler) getCart(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	entries, err := h.cart.GetCart(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

type addToCartRequest struct {
	UserID    int64 `json:"user_id" binding:"required"`
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity"`
}

func (h *Handler) addToCart(c *gin.Context) {
	var req addToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	line, err := h.cart.AddToCart(c.Request.Context(), req.UserID, req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, line)
}

func (h *Handler) removeFromCart(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	productID, ok := pathID(c, "product_id")
	if !ok {
		return
	}

	if err := h.cart.RemoveFromCart(c.Request.Context(), userID, productID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product removed from cart"})
}

func (h *Handler) clearCart(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	if err := h.cart.ClearCart(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart cleared"})
}

func (h *Handler) cartCount(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	count, err := h.cart.CountCart(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "cart_count": count})
}

// --- orders ---

func (h *Handler) placeOrder(c *gin.Context) {
	var req service.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	order, err := h.orders.PlaceOrder(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "order": order})
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orders.ListOrders(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) getOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, items, err := h.orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order, "items": items})
}

func (h *Handler) ordersByUser(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	orders, err := h.orders.ListOrdersByUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) pendingOrderCount(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	count, err := h.orders.CountPendingOrders(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "pending_count": count})
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) deleteOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.orders.DeleteOrder(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order deleted"})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
