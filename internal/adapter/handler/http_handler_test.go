package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/adapter/payment"
	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/adapter/storage"
	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/core/domain"
	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/core/service"
)

const testSecret = "test-secret"

// pngHeader is enough for content sniffing to report image/png.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

type noopNotifier struct{}

func (noopNotifier) Publish(context.Context, domain.OrderEvent) error { return nil }

type handlerFixture struct {
	e   *echo.Echo
	mem *storage.MemoryAdapter
}

func newHandlerFixture() *handlerFixture {
	mem := storage.NewMemoryAdapter()
	mem.SeedVendor(domain.Vendor{ID: "vendor-a", Name: "Vendor A", BankAccount: "123"})
	mem.SeedProduct(domain.Product{
		ID: "product-x", VendorID: "vendor-a", Name: "Product X",
		Price: decimal.NewFromInt(10),
	}, 5)

	log := zerolog.Nop()
	carts := service.NewCartService(mem, mem, log)
	checkout := service.NewCheckoutService(
		mem, mem, mem, mem,
		payment.NewSimulatedGateway(0, nil), noopNotifier{}, log, time.Second,
	)
	orders := service.NewOrderService(mem, mem, mem, memReceiptStore{}, noopNotifier{}, log)

	e := echo.New()
	NewHTTPHandler(carts, checkout, orders).Register(e, testSecret)
	return &handlerFixture{e: e, mem: mem}
}

// memReceiptStore keeps receipts out of the filesystem for handler tests.
type memReceiptStore struct{}

func (memReceiptStore) Save(_ context.Context, orderID, _ string, _ io.Reader) (string, error) {
	return "receipts/" + orderID + ".png", nil
}

func signToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func (f *handlerFixture) do(t *testing.T, method, path, subject string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	if subject != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+signToken(t, subject))
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func (f *handlerFixture) doJSON(t *testing.T, method, path, subject string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	return f.do(t, method, path, subject, &body, echo.MIMEApplicationJSON)
}

func TestRoutes_RequireToken(t *testing.T) {
	f := newHandlerFixture()

	rec := f.do(t, http.MethodGet, "/api/cart", "", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestHealthCheck_Open(t *testing.T) {
	f := newHandlerFixture()

	rec := f.do(t, http.MethodGet, "/health", "", nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestCartFlow(t *testing.T) {
	f := newHandlerFixture()

	rec := f.doJSON(t, http.MethodPost, "/api/cart/items", "buyer-1",
		map[string]any{"product_id": "product-x", "quantity": 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var cart struct {
		Lines []struct {
			ProductID string          `json:"product_id"`
			Quantity  int             `json:"quantity"`
			Subtotal  decimal.Decimal `json:"subtotal"`
		} `json:"lines"`
		Total decimal.Decimal `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &cart); err != nil {
		t.Fatalf("decode cart: %v", err)
	}
	if len(cart.Lines) != 1 || cart.Lines[0].Quantity != 2 {
		t.Fatalf("unexpected cart: %+v", cart)
	}
	if !cart.Total.Equal(decimal.NewFromInt(20)) {
		t.Errorf("expected total 20, got %s", cart.Total)
	}

	rec = f.do(t, http.MethodDelete, "/api/cart/items/product-x", "buyer-1", nil, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestSetCartItem_BadQuantity(t *testing.T) {
	f := newHandlerFixture()

	rec := f.doJSON(t, http.MethodPost, "/api/cart/items", "buyer-1",
		map[string]any{"product_id": "product-x", "quantity": 0})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestCheckout_EmptyCartIsUnprocessable(t *testing.T) {
	f := newHandlerFixture()

	rec := f.doJSON(t, http.MethodPost, "/api/checkout", "buyer-1",
		map[string]any{"payment_method": "TRANSFER"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d: %s", rec.Code, rec.Body)
	}
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	f := newHandlerFixture()

	rec := f.doJSON(t, http.MethodPost, "/api/cart/items", "buyer-1",
		map[string]any{"product_id": "product-x", "quantity": 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("fill cart: %d: %s", rec.Code, rec.Body)
	}

	rec = f.doJSON(t, http.MethodPost, "/api/checkout", "buyer-1",
		map[string]any{"payment_method": "TRANSFER"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout: %d: %s", rec.Code, rec.Body)
	}

	var created struct {
		Orders []struct {
			ID                     string `json:"id"`
			Status                 string `json:"status"`
			VendorPaymentDisclosed *bool  `json:"vendor_payment_disclosed"`
		} `json:"orders"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode checkout: %v", err)
	}
	if len(created.Orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(created.Orders))
	}
	orderID := created.Orders[0].ID
	if created.Orders[0].Status != "PENDIENTE" {
		t.Errorf("expected PENDIENTE, got %s", created.Orders[0].Status)
	}
	if created.Orders[0].VendorPaymentDisclosed == nil || !*created.Orders[0].VendorPaymentDisclosed {
		t.Error("expected vendor_payment_disclosed true")
	}

	// Buyer uploads the transfer receipt.
	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	part, err := writer.CreateFormFile("receipt", "comprobante.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write(pngHeader)
	part.Write([]byte("rest of the image"))
	writer.Close()

	rec = f.do(t, http.MethodPost, "/api/orders/"+orderID+"/receipt", "buyer-1", &form, writer.FormDataContentType())
	if rec.Code != http.StatusOK {
		t.Fatalf("upload receipt: %d: %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), "PAGADO_VERIFICANDO") {
		t.Errorf("expected PAGADO_VERIFICANDO, got: %s", rec.Body)
	}

	// Vendor confirms the funds arrived.
	rec = f.do(t, http.MethodPost, "/api/orders/"+orderID+"/confirm", "vendor-a", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: %d: %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"status":"PAGADO"`) {
		t.Errorf("expected PAGADO, got: %s", rec.Body)
	}

	rec = f.do(t, http.MethodGet, "/api/purchases", "buyer-1", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("purchases: %d", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/api/sales", "vendor-a", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("sales: %d", rec.Code)
	}
}

func TestUploadReceipt_RejectsNonImage(t *testing.T) {
	f := newHandlerFixture()
	orderID := checkoutOneOrder(t, f)

	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	part, _ := writer.CreateFormFile("receipt", "notes.txt")
	part.Write([]byte("plain text, definitely not an image"))
	writer.Close()

	rec := f.do(t, http.MethodPost, "/api/orders/"+orderID+"/receipt", "buyer-1", &form, writer.FormDataContentType())
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body)
	}
}

func TestGetOrder_ForbiddenForStrangers(t *testing.T) {
	f := newHandlerFixture()
	orderID := checkoutOneOrder(t, f)

	rec := f.do(t, http.MethodGet, "/api/orders/"+orderID, "someone-else", nil, "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/orders/no-such-order", "buyer-1", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestCancelOrder_ConflictWhenNotPending(t *testing.T) {
	f := newHandlerFixture()
	orderID := checkoutOneOrder(t, f)

	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	part, _ := writer.CreateFormFile("receipt", "comprobante.png")
	part.Write(pngHeader)
	writer.Close()
	rec := f.do(t, http.MethodPost, "/api/orders/"+orderID+"/receipt", "buyer-1", &form, writer.FormDataContentType())
	if rec.Code != http.StatusOK {
		t.Fatalf("upload receipt: %d: %s", rec.Code, rec.Body)
	}

	rec = f.do(t, http.MethodPost, "/api/orders/"+orderID+"/cancel", "buyer-1", nil, "")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d: %s", rec.Code, rec.Body)
	}
}

func checkoutOneOrder(t *testing.T, f *handlerFixture) string {
	t.Helper()

	rec := f.doJSON(t, http.MethodPost, "/api/cart/items", "buyer-1",
		map[string]any{"product_id": "product-x", "quantity": 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("fill cart: %d: %s", rec.Code, rec.Body)
	}

	rec = f.doJSON(t, http.MethodPost, "/api/checkout", "buyer-1",
		map[string]any{"payment_method": "TRANSFER"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout: %d: %s", rec.Code, rec.Body)
	}

	var created struct {
		Orders []struct {
			ID string `json:"id"`
		} `json:"orders"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode checkout: %v", err)
	}
	return created.Orders[0].ID
}
