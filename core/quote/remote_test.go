package quote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"quote-pricing/core/input"
	"quote-pricing/internal/errors"
)

func lineRequest() LineRequest {
	v := make(input.Values)
	v.Set("material", "HR-01")
	v.Set("itemNumber", "10")
	return LineRequest{ClientID: "client-a", CalculationID: "calc-1", Values: v}
}

func TestRemotePriceLine(t *testing.T) {
	var gotPath, gotCalcID, gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotCalcID = r.Header.Get("x-insight-calculationid")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"itemNumber":"10","recommendedPricePerPound":0.7458,"margin":0.2058},"metadata":{}}`))
	}))
	defer srv.Close()

	p := NewRemotePricer(srv.URL, "master", 5*time.Second, zap.NewNop())
	req := lineRequest()
	req.Token = "tok123"
	res, err := p.PriceLine(context.Background(), req)
	if err != nil {
		t.Fatalf("PriceLine: %v", err)
	}

	if gotPath != "/ces/clients/client-a/calculations/quoteLineSAP" {
		t.Errorf("path = %q", gotPath)
	}
	if gotCalcID != "calc-1" {
		t.Errorf("calculation id header = %q", gotCalcID)
	}
	if gotAuth != "Bearer tok123" {
		t.Errorf("authorization header = %q, want Bearer tok123", gotAuth)
	}
	if _, ok := gotBody["modelInputs"]; !ok {
		t.Error("request body missing modelInputs")
	}

	// The endpoint's key order survives the decode.
	wantOrder := []string{"itemNumber", "recommendedPricePerPound", "margin"}
	if len(res.Outputs) != len(wantOrder) {
		t.Fatalf("got %d outputs, want %d", len(res.Outputs), len(wantOrder))
	}
	for i, name := range wantOrder {
		if res.Outputs[i].Name != name {
			t.Errorf("output %d = %s, want %s", i, res.Outputs[i].Name, name)
		}
	}
	if price, _ := res.Outputs.Get("recommendedPricePerPound"); price != 0.7458 {
		t.Errorf("recommendedPricePerPound = %v", price)
	}
}

func TestRemotePriceLineErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"responseCode":400,"description":"missing required inputs"},"metadata":{}}`))
	}))
	defer srv.Close()

	p := NewRemotePricer(srv.URL, "master", 5*time.Second, zap.NewNop())
	_, err := p.PriceLine(context.Background(), lineRequest())
	masked, ok := errors.AsMasked(err)
	if !ok {
		t.Fatalf("err = %v, want MaskedError", err)
	}
	if masked.UserMessage != "missing required inputs" {
		t.Errorf("UserMessage = %q", masked.UserMessage)
	}
}

func TestRemotePriceLineUnreachable(t *testing.T) {
	p := NewRemotePricer("http://127.0.0.1:1", "master", 500*time.Millisecond, zap.NewNop())
	_, err := p.PriceLine(context.Background(), lineRequest())
	masked, ok := errors.AsMasked(err)
	if !ok {
		t.Fatalf("err = %v, want MaskedError", err)
	}
	if masked.UserMessage != "Calculation service unavailable" {
		t.Errorf("UserMessage = %q", masked.UserMessage)
	}
}

func TestRemotePriceLineBreakPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"itemNumber":"10","errorMessage":"Product not found"},"metadata":{}}`))
	}))
	defer srv.Close()

	p := NewRemotePricer(srv.URL, "master", 5*time.Second, zap.NewNop())
	res, err := p.PriceLine(context.Background(), lineRequest())
	if err != nil {
		t.Fatalf("PriceLine: %v", err)
	}
	if !res.Broke() {
		t.Fatal("expected the remote break to pass through")
	}
	if res.ErrorMessage != "Product not found" {
		t.Errorf("ErrorMessage = %q", res.ErrorMessage)
	}
}
