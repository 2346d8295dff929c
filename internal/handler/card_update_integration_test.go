package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/boxibox/dunning-engine/internal/domain"
	"github.com/boxibox/dunning-engine/internal/transport"
)

func TestCardUpdateIntegration_InspectToken(t *testing.T) {
	t.Parallel()

	expiresAt, _ := time.Parse(time.RFC3339, "2026-03-12T10:00:00Z")
	svc := &stubCardUpdateService{
		inspectFn: func(ctx context.Context, token string) (*domain.RetryAttempt, error) {
			switch token {
			case "tok-valid":
				return &domain.RetryAttempt{
					ID:                       "a-1",
					TenantID:                 "t-1",
					CustomerID:               "c-1",
					InvoiceID:                "inv-1",
					AmountCents:              2990,
					Currency:                 "EUR",
					Status:                   domain.StatusScheduled,
					AttemptNumber:            2,
					MaxAttempts:              4,
					CardUpdateTokenExpiresAt: &expiresAt,
				}, nil
			case "tok-used":
				return nil, domain.ErrTokenUsed
			case "tok-expired":
				return nil, domain.ErrTokenExpired
			default:
				return nil, domain.ErrTokenNotFound
			}
		},
	}

	app := newCardUpdateTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodGet, "/card-update/tok-valid", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["invoiceId"] != "inv-1" {
		t.Fatalf("invoiceId = %v, want inv-1", parsed["invoiceId"])
	}
	if parsed["expiresAt"] != "2026-03-12T10:00:00Z" {
		t.Fatalf("expiresAt = %v, want 2026-03-12T10:00:00Z", parsed["expiresAt"])
	}
	// The customer-facing page must not see internal identifiers.
	if _, present := parsed["tenantId"]; present {
		t.Fatal("response leaks tenantId")
	}

	cases := []struct {
		token      string
		wantStatus int
	}{
		{"tok-missing", fiber.StatusNotFound},
		{"tok-used", fiber.StatusConflict},
		{"tok-expired", fiber.StatusGone},
	}
	for _, tc := range cases {
		resp, _ := performRequest(t, app, http.MethodGet, "/card-update/"+tc.token, "")
		if resp.StatusCode != tc.wantStatus {
			t.Fatalf("token %s: status = %d, want %d", tc.token, resp.StatusCode, tc.wantStatus)
		}
	}
}

func TestCardUpdateIntegration_ConsumeToken(t *testing.T) {
	t.Parallel()

	svc := &stubCardUpdateService{
		consumeFn: func(ctx context.Context, token string, paymentMethodID string) (*domain.RetryAttempt, error) {
			if token != "tok-valid" {
				return nil, domain.ErrTokenNotFound
			}
			if paymentMethodID != "pm-new" {
				t.Fatalf("paymentMethodID = %s, want pm-new", paymentMethodID)
			}
			now := time.Now().UTC()
			return &domain.RetryAttempt{
				ID:             "a-1",
				TenantID:       "t-1",
				CustomerID:     "c-1",
				InvoiceID:      "inv-1",
				AmountCents:    2990,
				Currency:       "EUR",
				Status:         domain.StatusScheduled,
				AttemptNumber:  2,
				MaxAttempts:    4,
				ScheduledAt:    &now,
				CardWasUpdated: true,
			}, nil
		},
	}

	app := newCardUpdateTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodPost, "/card-update/tok-valid",
		`{"paymentMethodId":"pm-new"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["status"] != domain.StatusScheduled.String() {
		t.Fatalf("status = %v, want SCHEDULED", parsed["status"])
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/card-update/tok-valid", `{}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing paymentMethodId", resp.StatusCode)
	}
}

type stubCardUpdateService struct {
	inspectFn func(ctx context.Context, token string) (*domain.RetryAttempt, error)
	consumeFn func(ctx context.Context, token string, paymentMethodID string) (*domain.RetryAttempt, error)
}

func (s *stubCardUpdateService) Inspect(ctx context.Context, token string) (*domain.RetryAttempt, error) {
	if s.inspectFn != nil {
		return s.inspectFn(ctx, token)
	}
	return nil, domain.ErrTokenNotFound
}

func (s *stubCardUpdateService) Consume(ctx context.Context, token string, paymentMethodID string) (*domain.RetryAttempt, error) {
	if s.consumeFn != nil {
		return s.consumeFn(ctx, token, paymentMethodID)
	}
	return nil, domain.ErrTokenNotFound
}

func newCardUpdateTestApp(t *testing.T, svc CardUpdateResolver) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	if err := RegisterCardUpdateRoutes(app, svc); err != nil {
		t.Fatalf("RegisterCardUpdateRoutes() error = %v", err)
	}

	return app
}
