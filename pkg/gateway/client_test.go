package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bazaarly/bazaarly-backend/pkg/config"
	pkgerrors "github.com/bazaarly/bazaarly-backend/pkg/errors"
	"github.com/bazaarly/bazaarly-backend/pkg/logger"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "gateway-test"})
	c, err := NewClient(context.Background(), config.GatewayConfig{
		KeyID:     "rzp_test_key",
		KeySecret: "s3cret",
		BaseURL:   baseURL,
		Timeout:   5 * time.Second,
	}, logg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestNewClientRequiresCredentials(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "gateway-test"})
	if _, err := NewClient(context.Background(), config.GatewayConfig{KeySecret: "x"}, logg); err == nil {
		t.Fatalf("expected key id error")
	}
	if _, err := NewClient(context.Background(), config.GatewayConfig{KeyID: "x"}, logg); err == nil {
		t.Fatalf("expected key secret error")
	}
}

func TestCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "rzp_test_key" || pass != "s3cret" {
			t.Fatalf("missing basic auth")
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["amount"].(float64) != 125000 {
			t.Fatalf("unexpected amount %v", body["amount"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":       "order_Nxyz123",
			"amount":   125000,
			"currency": "INR",
			"receipt":  body["receipt"],
			"status":   "created",
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	order, err := c.CreateOrder(context.Background(), OrderCreateParams{
		AmountPaise: 125000,
		Receipt:     "BZ-20260831-0001",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.ID != "order_Nxyz123" {
		t.Fatalf("unexpected order id %q", order.ID)
	}
	if order.AmountPaise != 125000 {
		t.Fatalf("unexpected amount %d", order.AmountPaise)
	}
	if order.Status != "created" {
		t.Fatalf("unexpected status %q", order.Status)
	}
}

func TestCreateOrderMapsGatewayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": "BAD_REQUEST_ERROR", "description": "key mismatch"},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.CreateOrder(context.Background(), OrderCreateParams{AmountPaise: 100})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized gateway error, got %v", err)
	}
}

func TestCreateOrderRejectsNonPositiveAmount(t *testing.T) {
	c := newTestClient(t, "http://unused.invalid")
	_, err := c.CreateOrder(context.Background(), OrderCreateParams{AmountPaise: 0})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestVerifySignature(t *testing.T) {
	c := newTestClient(t, "http://unused.invalid")

	sig := SignPayload("s3cret", "order_Nxyz123", "pay_Nabc456")
	if !c.VerifySignature("order_Nxyz123", "pay_Nabc456", sig) {
		t.Fatalf("expected valid signature to verify")
	}
	if c.VerifySignature("order_Nxyz123", "pay_other", sig) {
		t.Fatalf("expected mismatched payment ref to fail")
	}
	if c.VerifySignature("order_Nxyz123", "pay_Nabc456", "") {
		t.Fatalf("expected empty signature to fail")
	}
	if c.VerifySignature("", "pay_Nabc456", sig) {
		t.Fatalf("expected empty order ref to fail")
	}
}
