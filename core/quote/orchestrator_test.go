package quote

import (
	"context"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"quote-pricing/core/calc"
	"quote-pricing/core/model"
	"quote-pricing/core/refdata"
	"quote-pricing/internal/errors"
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

// capturePricer records every line request it is asked to price and
// answers with the line's item number.
type capturePricer struct {
	mu    sync.Mutex
	seen  []LineRequest
	errBy map[string]error
}

func (p *capturePricer) PriceLine(_ context.Context, req LineRequest) (*calc.Result, error) {
	p.mu.Lock()
	p.seen = append(p.seen, req)
	p.mu.Unlock()

	item := req.Values.Str("itemNumber")
	if err := p.errBy[item]; err != nil {
		return nil, err
	}
	return &calc.Result{
		Outputs: calc.Outputs{
			{Name: "itemNumber", Passthrough: true, Value: item},
			{Name: "recommendedPricePerPound", Value: 1.0},
		},
		Trace: calc.NewTrace(),
	}, nil
}

func quoteDef(t *testing.T) *model.Definition {
	t.Helper()
	def, ok := model.NewRegistry().Get(model.RecommendedPriceID, false)
	if !ok {
		t.Fatal("recommendedPrice model missing")
	}
	return def
}

func customerRecord() refdata.Record {
	return refdata.Record{
		"customer_number":       "C1",
		"customer_sales_office": "CHI",
		"isr_office":            "CHI",
		"customer_name":         "Acme Metals",
		"multi_market_name":     "MW",
		"region":                "MIDWEST",
		"rc_mapping":            "MW",
		"sap_ind":               "Y",
		"waive_skid":            "N",
		"dso_adder":             0.01,
	}
}

func line(item string, weight float64) map[string]any {
	return map[string]any{
		"material":   "HR-01",
		"itemNumber": item,
		"stockPlant": "S42",
		"weight":     weight,
	}
}

func quoteRaw(lines ...map[string]any) map[string]any {
	arr := make([]any, len(lines))
	for i, l := range lines {
		arr[i] = l
	}
	return map[string]any{
		"customerId":  "C1",
		"salesOffice": "CHI",
		"quoteLines":  arr,
	}
}

func TestQuoteAnnotatesSharedContext(t *testing.T) {
	f := newFakeLookup()
	f.put(refdata.TableCustomer, "C1|CHI", customerRecord())

	pricer := &capturePricer{}
	o := New(f, pricer, zap.NewNop(), 2)

	res, err := o.Quote(context.Background(), quoteRaw(line("10", 1000), line("20", 2000)),
		quoteDef(t), "client-a", "calc-1", "tok-1")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if res.Broke() {
		t.Fatalf("unexpected break: %s", res.ErrorMessage)
	}

	if len(pricer.seen) != 2 {
		t.Fatalf("priced %d lines, want 2", len(pricer.seen))
	}
	for _, req := range pricer.seen {
		if req.Token != "tok-1" {
			t.Errorf("Token = %q, want tok-1", req.Token)
		}
		v := req.Values
		if got := v.Str("isrOffice"); got != "CHI" {
			t.Errorf("isrOffice = %q, want CHI", got)
		}
		if got := v.Str("customerName"); got != "Acme Metals" {
			t.Errorf("customerName = %q, want Acme Metals", got)
		}
		if got := v.Str("region"); got != "MIDWEST" {
			t.Errorf("region = %q, want MIDWEST", got)
		}
		if got := v.Str("sapInd"); got != "Y" {
			t.Errorf("sapInd = %q, want Y", got)
		}
		if got := v.Float("dsoAdder"); got != 0.01 {
			t.Errorf("dsoAdder = %v, want 0.01", got)
		}
		if got := v.Float("totalQuotePounds"); got != 3000 {
			t.Errorf("totalQuotePounds = %v, want combined 3000", got)
		}
	}
}

func TestQuoteIndependentCalculationFlag(t *testing.T) {
	f := newFakeLookup()
	f.put(refdata.TableCustomer, "C1|CHI", customerRecord())

	pricer := &capturePricer{}
	o := New(f, pricer, zap.NewNop(), 1)

	raw := quoteRaw(line("10", 1000), line("20", 2000))
	raw["independentCalculationFlag"] = true
	_, err := o.Quote(context.Background(), raw, quoteDef(t), "client-a", "calc-1", "")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}

	for _, req := range pricer.seen {
		v := req.Values
		want := v.Float("weight")
		if got := v.Float("totalQuotePounds"); got != want {
			t.Errorf("item %s: totalQuotePounds = %v, want own weight %v", v.Str("itemNumber"), got, want)
		}
	}
}

func TestQuotePreservesLineOrder(t *testing.T) {
	f := newFakeLookup()
	f.put(refdata.TableCustomer, "C1|CHI", customerRecord())

	o := New(f, &capturePricer{}, zap.NewNop(), 4)

	res, err := o.Quote(context.Background(),
		quoteRaw(line("10", 100), line("20", 100), line("30", 100), line("40", 100)),
		quoteDef(t), "client-a", "calc-1", "")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}

	v, _ := res.Outputs.Get("quoteLines")
	lines, ok := v.([]calc.Outputs)
	if !ok {
		t.Fatalf("quoteLines is %T", v)
	}
	want := []string{"10", "20", "30", "40"}
	for i, l := range lines {
		if item, _ := l.Get("itemNumber"); item != want[i] {
			t.Errorf("line %d itemNumber = %v, want %s", i, item, want[i])
		}
	}
}

func TestQuoteCustomerResolutionFallbacks(t *testing.T) {
	f := newFakeLookup()
	f.put(refdata.TableCustomerByNumber, "C1", customerRecord())
	f.put(refdata.TableOfficeDefault, "DAL", customerRecord())

	o := New(f, &capturePricer{}, zap.NewNop(), 1)

	// No office supplied: the customer-number record resolves.
	raw := quoteRaw(line("10", 100))
	raw["salesOffice"] = "NA"
	res, err := o.Quote(context.Background(), raw, quoteDef(t), "client-a", "calc-1", "")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if res.Broke() {
		t.Fatalf("customer-number fallback failed: %s", res.ErrorMessage)
	}

	// Unknown customer with a known office: the office default resolves.
	raw = quoteRaw(line("10", 100))
	raw["customerId"] = "UNKNOWN"
	raw["salesOffice"] = "DAL"
	res, err = o.Quote(context.Background(), raw, quoteDef(t), "client-a", "calc-1", "")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if res.Broke() {
		t.Fatalf("office-default fallback failed: %s", res.ErrorMessage)
	}
}

func TestQuoteCustomerNotFound(t *testing.T) {
	o := New(newFakeLookup(), &capturePricer{}, zap.NewNop(), 1)

	res, err := o.Quote(context.Background(), quoteRaw(line("10", 100)),
		quoteDef(t), "client-a", "calc-1", "")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if !res.Broke() {
		t.Fatal("expected a customer-not-found break")
	}
	if !strings.Contains(res.ErrorMessage, "Customer not found") {
		t.Errorf("ErrorMessage = %q", res.ErrorMessage)
	}
	if _, ok := res.Outputs.Get("quoteLines"); ok {
		t.Error("broken quote must not carry quoteLines")
	}
}

func TestQuoteMaskedLineFailureBecomesLineError(t *testing.T) {
	f := newFakeLookup()
	f.put(refdata.TableCustomer, "C1|CHI", customerRecord())

	pricer := &capturePricer{errBy: map[string]error{
		"20": errors.Masked("dial tcp refused", "Calculation service unavailable"),
	}}
	o := New(f, pricer, zap.NewNop(), 2)

	res, err := o.Quote(context.Background(), quoteRaw(line("10", 100), line("20", 100)),
		quoteDef(t), "client-a", "calc-1", "")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}

	v, _ := res.Outputs.Get("quoteLines")
	lines := v.([]calc.Outputs)
	if msg, _ := lines[1].Get("errorMessage"); msg != "Calculation service unavailable" {
		t.Errorf("line 2 errorMessage = %v", msg)
	}
	if _, ok := lines[0].Get("recommendedPricePerPound"); !ok {
		t.Error("line 1 should still carry its price")
	}
}

func TestQuoteMissingCustomerIdValidates(t *testing.T) {
	o := New(newFakeLookup(), &capturePricer{}, zap.NewNop(), 1)

	raw := quoteRaw(line("10", 100))
	delete(raw, "customerId")
	_, err := o.Quote(context.Background(), raw, quoteDef(t), "client-a", "calc-1", "")
	verr, ok := errors.AsValidation(err)
	if !ok {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if len(verr.Missing) != 1 || verr.Missing[0] != "customerId" {
		t.Errorf("Missing = %v, want [customerId]", verr.Missing)
	}
}
