// Package quote orchestrates multi-line quote calculations: customer
// resolution, shared-context annotation, and ordered parallel line
// pricing, either in process or through remote dispatch.
package quote

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quote-pricing/core/calc"
	"quote-pricing/core/input"
	"quote-pricing/core/model"
	"quote-pricing/core/partition"
	"quote-pricing/core/refdata"
	"quote-pricing/internal/errors"
)

// LineRequest is one line handed to a pricer, carrying the request
// identity and credentials a remote dispatcher needs on the wire.
type LineRequest struct {
	ClientID      string
	CalculationID string
	Token         string
	Values        input.Values
	Debug         bool
}

// LinePricer prices a single annotated quote line.
type LinePricer interface {
	PriceLine(ctx context.Context, req LineRequest) (*calc.Result, error)
}

// LocalPricer runs lines through the in-process calculator.
type LocalPricer struct {
	Calc *calc.Calculator
}

// PriceLine implements LinePricer.
func (p *LocalPricer) PriceLine(ctx context.Context, req LineRequest) (*calc.Result, error) {
	return p.Calc.PriceNormalized(ctx, req.Values, req.Debug)
}

// Result is a completed quote calculation. Inputs holds the normalized
// quote-level request for the audit snapshot.
type Result struct {
	Outputs      calc.Outputs
	Inputs       input.Values
	Lines        []*calc.Result
	ErrorMessage string
}

// Broke reports whether the quote halted before any line was priced.
func (r *Result) Broke() bool { return r.ErrorMessage != "" }

// Orchestrator prices whole quotes.
type Orchestrator struct {
	lookup      refdata.LookupService
	pricer      LinePricer
	log         *zap.Logger
	maxParallel int
}

// New creates an Orchestrator. maxParallel bounds the per-quote line
// worker pool; values below 1 run lines sequentially.
func New(lookup refdata.LookupService, pricer LinePricer, log *zap.Logger, maxParallel int) *Orchestrator {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Orchestrator{lookup: lookup, pricer: pricer, log: log, maxParallel: maxParallel}
}

// Quote validates a raw quote request, resolves the customer, annotates
// every line with the shared quote context, and prices the lines in
// parallel while preserving request order. token is the caller's
// bearer credential, forwarded on remote line dispatch.
func (o *Orchestrator) Quote(ctx context.Context, raw map[string]any, def *model.Definition, clientID, calculationID, token string) (*Result, error) {
	values, _, err := input.Normalize(raw, def)
	if err != nil {
		return nil, err
	}

	customerID := values.Str("customerId")
	salesOffice := values.Str("salesOffice")

	customer, found, err := o.resolveCustomer(ctx, customerID, salesOffice)
	if err != nil {
		return nil, err
	}
	if !found {
		msg := "Customer not found for customer Id " + customerID + " and sales office " + salesOffice
		o.log.Info("quote break", zap.String("calculationId", calculationID), zap.String("message", msg))
		return &Result{
			Outputs:      calc.Outputs{{Name: "errorMessage", Value: msg}},
			Inputs:       values,
			ErrorMessage: msg,
		}, nil
	}

	rawLines := values.Array("quoteLines")
	lines, err := o.annotateLines(rawLines, values, customer, def.Debug)
	if err != nil {
		return nil, err
	}

	results := make([]*calc.Result, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxParallel)
	for i, line := range lines {
		i, line := i, line
		g.Go(func() error {
			res, err := o.priceOne(gctx, LineRequest{
				ClientID:      clientID,
				CalculationID: calculationID,
				Token:         token,
				Values:        line,
				Debug:         def.Debug,
			})
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	quoteLines := make([]calc.Outputs, len(results))
	for i, res := range results {
		quoteLines[i] = res.Outputs
	}

	return &Result{
		Outputs: calc.Outputs{{Name: "quoteLines", Value: quoteLines}},
		Inputs:  values,
		Lines:   results,
	}, nil
}

// priceOne prices a single line, folding masked remote failures and
// line-level validation problems into an error entry so one bad line
// never sinks the quote.
func (o *Orchestrator) priceOne(ctx context.Context, req LineRequest) (*calc.Result, error) {
	res, err := o.pricer.PriceLine(ctx, req)
	if err == nil {
		return res, nil
	}
	if masked, ok := errors.AsMasked(err); ok {
		o.log.Warn("line dispatch failed",
			zap.String("calculationId", req.CalculationID),
			zap.String("itemNumber", req.Values.Str("itemNumber")),
			zap.String("error", masked.Internal))
		return lineError(req.Values.Str("itemNumber"), masked.UserMessage), nil
	}
	return nil, err
}

// lineError composes the priceless error entry for one line.
func lineError(itemNumber, message string) *calc.Result {
	return &calc.Result{
		Outputs: calc.Outputs{
			{Name: "itemNumber", Passthrough: true, Value: itemNumber},
			{Name: "errorMessage", Value: message},
		},
		Trace:        calc.NewTrace(),
		ErrorMessage: message,
	}
}

// resolveCustomer resolves the customer context in precedence order:
// the exact customer/office record, then the customer-number record
// when no office was supplied, then the office default.
func (o *Orchestrator) resolveCustomer(ctx context.Context, customerID, salesOffice string) (*refdata.Customer, bool, error) {
	customer, found, err := refdata.Get(ctx, o.lookup, refdata.TableCustomer,
		partition.Key(customerID, salesOffice), refdata.DecodeCustomer)
	if err != nil {
		return nil, false, errors.FatalWrap("customer lookup failed", err)
	}
	if found {
		return &customer, true, nil
	}

	if strings.EqualFold(salesOffice, "NA") {
		customer, found, err = refdata.Get(ctx, o.lookup, refdata.TableCustomerByNumber,
			customerID, refdata.DecodeCustomer)
		if err != nil {
			return nil, false, errors.FatalWrap("customer number lookup failed", err)
		}
		if found {
			return &customer, true, nil
		}
	}

	customer, found, err = refdata.Get(ctx, o.lookup, refdata.TableOfficeDefault,
		salesOffice, refdata.DecodeCustomer)
	if err != nil {
		return nil, false, errors.FatalWrap("office default lookup failed", err)
	}
	if found {
		return &customer, true, nil
	}
	return nil, false, nil
}

// annotateLines normalizes every quote line against the per-line model
// and copies the shared quote and customer context onto each. Shared
// values never overwrite a value the line itself carries.
func (o *Orchestrator) annotateLines(rawLines []any, quote input.Values, customer *refdata.Customer, debug bool) ([]input.Values, error) {
	lineDef, ok := model.NewRegistry().Get(model.QuoteLineSapID, debug)
	if !ok {
		return nil, errors.Fatalf("line model %s not registered", model.QuoteLineSapID)
	}

	independent := quote.Bool("independentCalculationFlag")

	// Quote pounds are the combined weight of every line that names a
	// positive weight, unless each line prices against its own weight.
	totalPounds := 0.0
	for _, raw := range rawLines {
		line, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if w := rawWeight(line); w > 0 {
			totalPounds += w
		}
	}

	salesOffice := quote.Str("salesOffice")
	if customer.CustomerSalesOffice != "" {
		salesOffice = customer.CustomerSalesOffice
	}

	shared := map[string]any{
		"customerId":                   quote.Str("customerId"),
		"customerName":                 customer.CustomerName,
		"salesOffice":                  salesOffice,
		"isrOffice":                    customer.IsrOffice,
		"multiMarketName":              customer.MultiMarketName,
		"region":                       customer.Region,
		"rcMapping":                    customer.RcMapping,
		"sapInd":                       customer.SapInd,
		"waiveSkid":                    customer.WaiveSkid,
		"dsoAdder":                     customer.DsoAdder,
		"percentAdder":                 customer.PercentAdder,
		"dollarAdder":                  customer.DollarAdder,
		"shipToZipCode":                quote.Str("shipToZipCode"),
		"shipToState":                  quote.Str("shipToState"),
		"includedProperties":           quote.Array("includedProperties"),
		"automatedTuningGroupOverride": quote.Str("automatedTuningGroupOverride"),
		"automatedTuningFlagOverride":  quote.Str("automatedTuningFlagOverride"),
	}

	lines := make([]input.Values, 0, len(rawLines))
	for i, raw := range rawLines {
		line, ok := raw.(map[string]any)
		if !ok {
			return nil, errors.Invalidf("quote line %d must be an object", i+1)
		}

		annotated := make(map[string]any, len(line)+len(shared)+1)
		for k, v := range line {
			annotated[k] = v
		}
		for k, v := range shared {
			setIfAbsent(annotated, k, v)
		}
		pounds := totalPounds
		if independent {
			pounds = rawWeight(line)
		}
		setIfAbsent(annotated, "totalQuotePounds", pounds)

		values, _, err := input.Normalize(annotated, lineDef)
		if err != nil {
			if verr, ok := errors.AsValidation(err); ok {
				return nil, errors.Invalidf("quote line %d: %s", i+1, verr.Error())
			}
			return nil, err
		}
		lines = append(lines, values)
	}
	return lines, nil
}

// rawWeight reads a line's weight before normalization, tolerating key
// casing and string-typed numbers.
func rawWeight(line map[string]any) float64 {
	for k, v := range line {
		if !strings.EqualFold(k, "weight") {
			continue
		}
		switch w := v.(type) {
		case float64:
			return w
		case int:
			return float64(w)
		case string:
			f, _ := strconv.ParseFloat(strings.TrimSpace(w), 64)
			return f
		}
	}
	return 0
}

// setIfAbsent stores a value unless the map already carries the key
// under any casing.
func setIfAbsent(m map[string]any, key string, value any) {
	for k := range m {
		if strings.EqualFold(k, key) {
			return
		}
	}
	m[key] = value
}
