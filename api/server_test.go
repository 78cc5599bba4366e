package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"quote-pricing/core/audit"
	"quote-pricing/core/calc"
	"quote-pricing/core/model"
	"quote-pricing/core/quote"
	"quote-pricing/core/refdata"
)

type fakeLookup struct {
	records map[string]map[string]refdata.Record
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{records: make(map[string]map[string]refdata.Record)}
}

func (f *fakeLookup) put(table, key string, rec refdata.Record) {
	if f.records[table] == nil {
		f.records[table] = make(map[string]refdata.Record)
	}
	f.records[table][strings.ToUpper(key)] = rec
}

func (f *fakeLookup) Lookup(_ context.Context, table, key string) (refdata.Record, error) {
	rec, ok := f.records[table][strings.ToUpper(key)]
	if !ok {
		return nil, nil
	}
	return rec, nil
}

func (f *fakeLookup) BucketedLookup(context.Context, string, float64, string) (string, error) {
	return "", nil
}

func (f *fakeLookup) LookupOpCode(context.Context, string, float64, float64, float64) (*refdata.OpCode, error) {
	return nil, nil
}

type captureAudit struct {
	mu      sync.Mutex
	records []audit.Record
}

func (c *captureAudit) Record(_ context.Context, rec audit.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
}

func (c *captureAudit) Close() error { return nil }

func pricingFixture() *fakeLookup {
	f := newFakeLookup()
	f.put(refdata.TableCustomer, "C1|CHI", refdata.Record{
		"customer_number": "C1", "customer_sales_office": "CHI", "isr_office": "CHI",
		"multi_market_name": "MW", "rc_mapping": "MW", "sap_ind": "N", "waive_skid": "Y",
	})
	f.put(refdata.TableProduct, "MW|HR-01", refdata.Record{
		"rc_mapping": "MW", "material": "HR-01", "bellwether_material": "BW1",
		"product_name": "HRS", "form": "FLAT", "index_name": "IDX", "modeled_cost": 40.0,
	})
	f.put(refdata.TableMillToPlantFreight, "BW1|S42", refdata.Record{
		"mill_to_plant_freight_value": 0.05,
	})
	f.put(refdata.TableTargetMargin, "CHI|BW1", refdata.Record{
		"target_margin_value": 0.25,
	})
	f.put(refdata.TableTmAdjustment, "MW|HRS|FLAT", refdata.Record{
		"weight_class_2000": 0.05,
	})
	f.put(refdata.TableFreightDefault, "S42|IL", refdata.Record{
		"default_freight_charge_per_100_pounds": 8.0,
		"default_minimum_freight_charge":        60.0,
	})
	return f
}

func testServer(t *testing.T) (*httptest.Server, *captureAudit) {
	t.Helper()
	log := zap.NewNop()
	lookup := pricingFixture()
	calculator := calc.New(lookup, log)
	orchestrator := quote.New(lookup, &quote.LocalPricer{Calc: calculator}, log, 2)
	auditLog := &captureAudit{}

	srv := New(model.NewRegistry(), orchestrator, calculator, auditLog, log, "master")
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, auditLog
}

func post(t *testing.T, ts *httptest.Server, path, body string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

const quoteBody = `{
	"customerId": "C1",
	"salesOffice": "CHI",
	"shipToState": "IL",
	"quoteLines": [
		{"material": "HR-01", "itemNumber": "10", "stockPlant": "S42", "weight": 3000}
	]
}`

func TestHealth(t *testing.T) {
	ts, _ := testServer(t)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestCalculationQuote(t *testing.T) {
	ts, auditLog := testServer(t)

	resp, body := post(t, ts, "/ces/clients/client-a/calculations/recommendedPrice", quoteBody,
		map[string]string{headerCalculationID: "calc-1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %v", resp.StatusCode, body)
	}

	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("data = %v", body["data"])
	}
	lines, ok := data["quoteLines"].([]any)
	if !ok || len(lines) != 1 {
		t.Fatalf("quoteLines = %v", data["quoteLines"])
	}
	line := lines[0].(map[string]any)
	if line["recommendedPricePerPound"] != 0.7458 {
		t.Errorf("recommendedPricePerPound = %v, want 0.7458", line["recommendedPricePerPound"])
	}

	meta := body["metadata"].(map[string]any)
	if meta["calculationId"] != "calc-1" {
		t.Errorf("calculationId = %v", meta["calculationId"])
	}
	if meta["namespace"] != "master" {
		t.Errorf("namespace = %v", meta["namespace"])
	}

	if len(auditLog.records) != 1 {
		t.Fatalf("audit records = %d, want 1", len(auditLog.records))
	}
	rec := auditLog.records[0]
	if rec.CalculationID != "calc-1" {
		t.Errorf("audit calculationId = %q", rec.CalculationID)
	}
	if got := rec.Inputs["customerid"]; got != "C1" {
		t.Errorf("audit inputs customerId = %v, want normalized C1", got)
	}
	if len(rec.Traces) != 1 {
		t.Fatalf("audit traces = %d, want one per line", len(rec.Traces))
	}
	if _, ok := rec.Traces[0]["landedCostPerPound"]; !ok {
		t.Error("audit trace missing landedCostPerPound")
	}
}

func TestCalculationModelInputsEnvelope(t *testing.T) {
	ts, _ := testServer(t)
	lineBody := `{"modelInputs": {
		"material": "HR-01", "itemNumber": "10", "stockPlant": "S42",
		"weight": 3000, "totalQuotePounds": 3000,
		"customerId": "C1", "salesOffice": "CHI", "isrOffice": "CHI",
		"multiMarketName": "MW", "rcMapping": "MW", "sapInd": "N",
		"waiveSkid": "Y", "shipToState": "IL"
	}}`
	resp, body := post(t, ts, "/ces/clients/client-a/calculations/quoteLineSAP", lineBody, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %v", resp.StatusCode, body)
	}
	data := body["data"].(map[string]any)
	if data["recommendedPricePerPound"] != 0.7458 {
		t.Errorf("recommendedPricePerPound = %v, want 0.7458", data["recommendedPricePerPound"])
	}
}

func TestCalculationQuoteFanOut(t *testing.T) {
	ts, _ := testServer(t)

	// Line dispatch posts back at the service's own calculation route.
	log := zap.NewNop()
	lookup := pricingFixture()
	pricer := quote.NewRemotePricer(ts.URL, "master", 5*time.Second, log)
	orchestrator := quote.New(lookup, pricer, log, 2)

	def, ok := model.NewRegistry().Get(model.RecommendedPriceID, false)
	if !ok {
		t.Fatal("recommendedPrice model missing")
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(quoteBody), &raw); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	res, err := orchestrator.Quote(context.Background(), raw, def, "client-a", "calc-2", "")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if res.Broke() {
		t.Fatalf("unexpected break: %s", res.ErrorMessage)
	}
	v, _ := res.Outputs.Get("quoteLines")
	lines := v.([]calc.Outputs)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if msg, ok := lines[0].Get("errorMessage"); ok {
		t.Fatalf("line rejected: %v", msg)
	}
	if price, _ := lines[0].Get("recommendedPricePerPound"); price != 0.7458 {
		t.Errorf("recommendedPricePerPound = %v, want 0.7458", price)
	}
}

func TestCalculationUnknownModel(t *testing.T) {
	ts, _ := testServer(t)
	resp, body := post(t, ts, "/ces/clients/client-a/calculations/nope", quoteBody, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	errObj := body["error"].(map[string]any)
	if errObj["responseCode"] != float64(http.StatusNotFound) {
		t.Errorf("responseCode = %v", errObj["responseCode"])
	}
}

func TestCalculationValidation(t *testing.T) {
	ts, _ := testServer(t)
	resp, body := post(t, ts, "/ces/clients/client-a/calculations/recommendedPrice",
		`{"salesOffice": "CHI", "quoteLines": []}`, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	errObj := body["error"].(map[string]any)
	desc, _ := errObj["description"].(string)
	if !strings.Contains(desc, "customerId") {
		t.Errorf("description = %q, want it to name customerId", desc)
	}
}

func TestCalculationMalformedBody(t *testing.T) {
	ts, _ := testServer(t)
	resp, _ := post(t, ts, "/ces/clients/client-a/calculations/recommendedPrice", `[1,2]`, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestCalculationCustomerNotFoundIsPriceless200(t *testing.T) {
	ts, _ := testServer(t)
	body := strings.Replace(quoteBody, `"C1"`, `"NOBODY"`, 1)
	resp, decoded := post(t, ts, "/ces/clients/client-a/calculations/recommendedPrice", body, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	data := decoded["data"].(map[string]any)
	msg, _ := data["errorMessage"].(string)
	if !strings.Contains(msg, "Customer not found") {
		t.Errorf("errorMessage = %q", msg)
	}
	if _, ok := data["quoteLines"]; ok {
		t.Error("broken quote must not carry quoteLines")
	}
}

func TestCalculationLineModelWithDebug(t *testing.T) {
	ts, _ := testServer(t)
	lineBody := `{
		"material": "HR-01", "itemNumber": "10", "stockPlant": "S42",
		"weight": 3000, "totalQuotePounds": 3000,
		"customerId": "C1", "salesOffice": "CHI", "isrOffice": "CHI",
		"multiMarketName": "MW", "rcMapping": "MW", "sapInd": "N",
		"waiveSkid": "Y", "shipToState": "IL"
	}`
	resp, body := post(t, ts, "/ces/clients/client-a/calculations/quoteLineSAP", lineBody,
		map[string]string{headerDebug: "true"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %v", resp.StatusCode, body)
	}
	data := body["data"].(map[string]any)
	if data["recommendedPricePerPound"] != 0.7458 {
		t.Errorf("recommendedPricePerPound = %v", data["recommendedPricePerPound"])
	}
	if _, ok := data["landedCostPerPound"]; !ok {
		t.Error("debug response missing traced landedCostPerPound")
	}
}

func TestExtractClientID(t *testing.T) {
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"appid":"svc-quotes"}`))
	token := "eyJhbGciOiJub25lIn0." + payload + ".sig"

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if got := ExtractClientID(req); got != "svc-quotes" {
		t.Errorf("ExtractClientID = %q, want svc-quotes", got)
	}

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	if got := ExtractClientID(req); got != "unknown" {
		t.Errorf("ExtractClientID without token = %q, want unknown", got)
	}
}
