package handler

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/core/domain"
	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/core/service"
)

// HTTPHandler exposes the cart, checkout and order lifecycle over JSON.
// Identity comes from the verified JWT subject; the handler trusts it.
type HTTPHandler struct {
	carts    *service.CartService
	checkout *service.CheckoutService
	orders   *service.OrderService
}

func NewHTTPHandler(carts *service.CartService, checkout *service.CheckoutService, orders *service.OrderService) *HTTPHandler {
	return &HTTPHandler{carts: carts, checkout: checkout, orders: orders}
}

// Register mounts all routes. Everything under /api requires a valid token.
func (h *HTTPHandler) Register(e *echo.Echo, jwtSecret string) {
	e.GET("/health", h.HealthCheck)

	api := e.Group("/api", echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(jwtSecret),
	}))

	api.GET("/cart", h.GetCart)
	api.POST("/cart/items", h.SetCartItem)
	api.DELETE("/cart/items/:productID", h.RemoveCartItem)
	api.DELETE("/cart", h.ClearCart)

	api.POST("/checkout", h.Checkout)

	api.GET("/orders/:id", h.GetOrder)
	api.POST("/orders/:id/receipt", h.UploadReceipt)
	api.POST("/orders/:id/confirm", h.ConfirmPayment)
	api.POST("/orders/:id/cancel", h.CancelOrder)
	api.GET("/purchases", h.ListPurchases)
	api.GET("/sales", h.ListSales)
}

func (h *HTTPHandler) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// --- cart ---

type setCartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *HTTPHandler) SetCartItem(c echo.Context) error {
	buyerID, err := userID(c)
	if err != nil {
		return err
	}

	var req setCartItemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if req.ProductID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "product_id is required"})
	}

	if err := h.carts.AddOrUpdate(c.Request().Context(), buyerID, req.ProductID, req.Quantity); err != nil {
		return writeError(c, err)
	}
	return h.GetCart(c)
}

func (h *HTTPHandler) RemoveCartItem(c echo.Context) error {
	buyerID, err := userID(c)
	if err != nil {
		return err
	}
	if err := h.carts.Remove(c.Request().Context(), buyerID, c.Param("productID")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *HTTPHandler) ClearCart(c echo.Context) error {
	buyerID, err := userID(c)
	if err != nil {
		return err
	}
	if err := h.carts.Clear(c.Request().Context(), buyerID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type cartLineResponse struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type cartResponse struct {
	Lines []cartLineResponse `json:"lines"`
	Total decimal.Decimal    `json:"total"`
}

func (h *HTTPHandler) GetCart(c echo.Context) error {
	buyerID, err := userID(c)
	if err != nil {
		return err
	}
	cart, err := h.carts.Get(c.Request().Context(), buyerID)
	if err != nil {
		return writeError(c, err)
	}

	resp := cartResponse{Lines: make([]cartLineResponse, 0, len(cart.Lines)), Total: cart.Total}
	for _, l := range cart.Lines {
		resp.Lines = append(resp.Lines, cartLineResponse{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  l.Subtotal(),
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// --- checkout ---

type checkoutRequest struct {
	PaymentMethod string `json:"payment_method"`
}

type checkoutResponse struct {
	Orders []orderResponse `json:"orders"`
}

func (h *HTTPHandler) Checkout(c echo.Context) error {
	buyerID, err := userID(c)
	if err != nil {
		return err
	}

	var req checkoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	idempotencyKey := c.Request().Header.Get("Idempotency-Key")
	created, err := h.checkout.Checkout(c.Request().Context(), buyerID,
		domain.PaymentMethod(req.PaymentMethod), idempotencyKey)
	if err != nil {
		return writeError(c, err)
	}

	resp := checkoutResponse{Orders: make([]orderResponse, 0, len(created))}
	for _, co := range created {
		order := toOrderResponse(co.Order)
		disclosed := co.VendorPaymentDisclosed
		order.VendorPaymentDisclosed = &disclosed
		resp.Orders = append(resp.Orders, order)
	}
	return c.JSON(http.StatusCreated, resp)
}

// --- orders ---

func (h *HTTPHandler) GetOrder(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	order, err := h.orders.Get(c.Request().Context(), uid, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponse(*order))
}

func (h *HTTPHandler) UploadReceipt(c echo.Context) error {
	buyerID, err := userID(c)
	if err != nil {
		return err
	}

	fileHeader, err := c.FormFile("receipt")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "receipt file is required"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "cannot read receipt file"})
	}
	defer file.Close()

	// Sniff the real content type instead of trusting the client header.
	head := make([]byte, 512)
	n, err := file.Read(head)
	if err != nil && err != io.EOF {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "cannot read receipt file"})
	}
	head = head[:n]

	upload := service.ReceiptUpload{
		Filename:    fileHeader.Filename,
		ContentType: http.DetectContentType(head),
		Size:        fileHeader.Size,
		Content:     io.MultiReader(bytes.NewReader(head), file),
	}

	order, err := h.orders.AttachReceipt(c.Request().Context(), buyerID, c.Param("id"), upload)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponse(*order))
}

func (h *HTTPHandler) ConfirmPayment(c echo.Context) error {
	vendorID, err := userID(c)
	if err != nil {
		return err
	}
	order, err := h.orders.ConfirmPayment(c.Request().Context(), vendorID, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponse(*order))
}

func (h *HTTPHandler) CancelOrder(c echo.Context) error {
	buyerID, err := userID(c)
	if err != nil {
		return err
	}
	order, err := h.orders.Cancel(c.Request().Context(), buyerID, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponse(*order))
}

func (h *HTTPHandler) ListPurchases(c echo.Context) error {
	buyerID, err := userID(c)
	if err != nil {
		return err
	}
	orders, err := h.orders.ListPurchases(c.Request().Context(), buyerID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponses(orders))
}

func (h *HTTPHandler) ListSales(c echo.Context) error {
	vendorID, err := userID(c)
	if err != nil {
		return err
	}
	orders, err := h.orders.ListSales(c.Request().Context(), vendorID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponses(orders))
}

// --- DTOs and helpers ---

type orderLineResponse struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type orderResponse struct {
	ID                     string              `json:"id"`
	CheckoutID             string              `json:"checkout_id"`
	BuyerID                string              `json:"buyer_id"`
	VendorID               string              `json:"vendor_id"`
	Total                  decimal.Decimal     `json:"total"`
	PaymentMethod          string              `json:"payment_method"`
	Status                 string              `json:"status"`
	ReceiptRef             string              `json:"receipt_ref,omitempty"`
	Lines                  []orderLineResponse `json:"lines"`
	CreatedAt              time.Time           `json:"created_at"`
	VendorPaymentDisclosed *bool               `json:"vendor_payment_disclosed,omitempty"`
}

func toOrderResponse(order domain.Order) orderResponse {
	resp := orderResponse{
		ID:            order.ID,
		CheckoutID:    order.CheckoutID,
		BuyerID:       order.BuyerID,
		VendorID:      order.VendorID,
		Total:         order.Total,
		PaymentMethod: string(order.Method),
		Status:        string(order.Status),
		ReceiptRef:    order.ReceiptRef,
		Lines:         make([]orderLineResponse, 0, len(order.Lines)),
		CreatedAt:     order.CreatedAt,
	}
	for _, l := range order.Lines {
		resp.Lines = append(resp.Lines, orderLineResponse{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	return resp
}

func toOrderResponses(orders []domain.Order) []orderResponse {
	result := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		result = append(result, toOrderResponse(o))
	}
	return result
}

type errorResponse struct {
	Error string `json:"error"`
}

func userID(c echo.Context) (string, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}
	return sub, nil
}

func writeError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrUploadValidation),
		errors.Is(err, service.ErrInvalidPaymentMethod):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrForbidden):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, service.ErrNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrInvalidStateTransition),
		errors.Is(err, service.ErrDuplicateRequest),
		errors.Is(err, service.ErrInsufficientStock):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrEmptyCart):
		status, message = http.StatusUnprocessableEntity, err.Error()
	}

	return c.JSON(status, errorResponse{Error: message})
}
