package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chatapi/internal/api/v1/dto"
	"chatapi/internal/model"
	"chatapi/internal/quota"
	"chatapi/internal/service"

	"github.com/rs/zerolog"
)

type fakeEvaluator struct {
	decision  *model.AdmissionDecision
	err       error
	lastModel string
	lastEst   int64
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, userID, modelID string, estimatedTokens int64) (*model.AdmissionDecision, error) {
	f.lastModel = modelID
	f.lastEst = estimatedTokens
	return f.decision, f.err
}

func (f *fakeEvaluator) UsageSummary(ctx context.Context, userID string) (*model.DailyTierUsage, string, map[quota.Tier]int64, error) {
	return nil, "", nil, errors.New("not implemented")
}

func gateRequest(t *testing.T, eval *fakeEvaluator, next http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	mw := QuotaMiddleware(eval, service.NewTokenEstimator(2000), "https://example.com/upgrade", zerolog.Nop())
	req := httptest.NewRequest(http.MethodPost, "/chat/completions", strings.NewReader(body))
	ctx := context.WithValue(req.Context(), UserContextKey, "user-1")
	req = req.WithContext(ctx)
	rr := httptest.NewRecorder()
	mw(next).ServeHTTP(rr, req)
	return rr
}

func TestQuotaMiddlewareAllowsAndAttachesDecision(t *testing.T) {
	eval := &fakeEvaluator{decision: &model.AdmissionDecision{
		Allowed: true,
		Reason:  model.ReasonWithinLimits,
		Tier:    quota.TierPremium,
	}}

	var seen *model.AdmissionDecision
	var gotBody []byte
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = AdmissionFromContext(r.Context())
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	})

	body := `{"model":"gpt-4o","messages":[{"role":"user","content":"hello"}]}`
	rr := gateRequest(t, eval, next, body)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if seen == nil || seen.Tier != quota.TierPremium {
		t.Fatalf("handler did not receive the admission decision: %+v", seen)
	}
	if string(gotBody) != body {
		t.Errorf("body was not restored for the handler: %q", gotBody)
	}
	if eval.lastModel != "gpt-4o" {
		t.Errorf("evaluated model = %q, want gpt-4o", eval.lastModel)
	}
	if eval.lastEst <= 2000 {
		t.Errorf("estimate = %d, should include message content on top of the allowance", eval.lastEst)
	}
}

func TestQuotaMiddlewareDeniesWith429(t *testing.T) {
	eval := &fakeEvaluator{decision: &model.AdmissionDecision{
		Allowed:      false,
		Reason:       model.ReasonExceedsLimit,
		Tier:         quota.TierPremium,
		Plan:         "explore",
		CurrentUsage: 49000,
		DailyLimit:   50000,
	}}

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { nextCalled = true })

	rr := gateRequest(t, eval, next, `{"model":"gpt-4o","messages":[{"content":"hi"}]}`)

	if nextCalled {
		t.Fatal("denied request must not reach the handler")
	}
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rr.Code)
	}
	var resp dto.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding error envelope: %v", err)
	}
	if resp.Code != dto.CodeUsageLimitReached {
		t.Errorf("code = %q, want %q", resp.Code, dto.CodeUsageLimitReached)
	}
	if resp.Details == nil || resp.Details.CurrentUsage != 49000 || resp.Details.DailyLimit != 50000 {
		t.Errorf("envelope details missing or wrong: %+v", resp.Details)
	}
	if resp.UpgradeURL != "https://example.com/upgrade" {
		t.Errorf("upgradeUrl = %q", resp.UpgradeURL)
	}
	if !strings.Contains(resp.Message, "premium") {
		t.Errorf("message should name the tier: %q", resp.Message)
	}
}

func TestQuotaMiddlewareRejectsMissingModel(t *testing.T) {
	eval := &fakeEvaluator{}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a model id")
	})

	rr := gateRequest(t, eval, next, `{"messages":[{"content":"hi"}]}`)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	var resp dto.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding error envelope: %v", err)
	}
	if resp.Code != dto.CodeNoModelID {
		t.Errorf("code = %q, want %q", resp.Code, dto.CodeNoModelID)
	}
}

func TestQuotaMiddlewareModelFromQueryParam(t *testing.T) {
	eval := &fakeEvaluator{decision: &model.AdmissionDecision{Allowed: true, Reason: model.ReasonWithinLimits}}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	mw := QuotaMiddleware(eval, service.NewTokenEstimator(2000), "", zerolog.Nop())
	req := httptest.NewRequest(http.MethodPost, "/chat/completions?model=gpt-4o-mini", bytes.NewReader(nil))
	req = req.WithContext(context.WithValue(req.Context(), UserContextKey, "user-1"))
	rr := httptest.NewRecorder()
	mw(next).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if eval.lastModel != "gpt-4o-mini" {
		t.Errorf("evaluated model = %q, want the query-param fallback", eval.lastModel)
	}
}

func TestQuotaMiddlewareFailsOpenOnEvaluatorError(t *testing.T) {
	eval := &fakeEvaluator{err: errors.New("ledger unreachable")}

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		if AdmissionFromContext(r.Context()) != nil {
			t.Error("fail-open request must not carry an admission decision")
		}
		w.WriteHeader(http.StatusOK)
	})

	rr := gateRequest(t, eval, next, `{"model":"gpt-4o","messages":[{"content":"hi"}]}`)

	if !nextCalled {
		t.Fatal("evaluator failure must not block the request")
	}
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestQuotaMiddlewareRequiresIdentity(t *testing.T) {
	eval := &fakeEvaluator{}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without an authenticated user")
	})

	mw := QuotaMiddleware(eval, service.NewTokenEstimator(2000), "", zerolog.Nop())
	req := httptest.NewRequest(http.MethodPost, "/chat/completions", strings.NewReader(`{"model":"gpt-4o"}`))
	rr := httptest.NewRecorder()
	mw(next).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestUnwrappedRoutesBypassTheGate(t *testing.T) {
	// Only model-invoking routes carry the gate. A user over their limit can
	// still browse chat history.
	eval := &fakeEvaluator{decision: &model.AdmissionDecision{Allowed: false, Reason: model.ReasonExceedsLimit}}
	mw := QuotaMiddleware(eval, service.NewTokenEstimator(2000), "", zerolog.Nop())
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	mux := http.NewServeMux()
	mux.Handle("GET /chats", ok)
	mux.Handle("POST /chat/completions", mw(ok))

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	req = req.WithContext(context.WithValue(req.Context(), UserContextKey, "user-1"))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("list route must not consult the gate: status = %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/chat/completions", strings.NewReader(`{"model":"gpt-4o"}`))
	req = req.WithContext(context.WithValue(req.Context(), UserContextKey, "user-1"))
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("completion route must consult the gate: status = %d", rr.Code)
	}
}
