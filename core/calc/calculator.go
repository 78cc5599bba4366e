// Package calc implements the per-line pricing pipeline.
//
// A calculation runs as an ordered sequence of stage functions over an
// accumulating state and write-once trace. A stage may continue, break
// (an expected resolution miss that yields a priceless result carrying
// an error message), or fault (an invariant violation that aborts and
// propagates).
package calc

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"quote-pricing/core/input"
	"quote-pricing/core/model"
	"quote-pricing/core/refdata"
	"quote-pricing/internal/errors"
)

// Calculator prices one quote line.
type Calculator struct {
	lookup refdata.LookupService
	log    *zap.Logger
	now    func() time.Time
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithClock overrides the calculator's clock. The clock drives the
// weekly tuning-group key and the date-windowed price adjustment.
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) { c.now = now }
}

// New creates a Calculator over a lookup service.
func New(lookup refdata.LookupService, log *zap.Logger, opts ...Option) *Calculator {
	c := &Calculator{
		lookup: lookup,
		log:    log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result is a completed line calculation: the ordered outputs, the
// normalized inputs and full trace kept for the audit snapshot, and
// the break message when the pipeline halted without a price.
type Result struct {
	Outputs      Outputs
	Inputs       input.Values
	Trace        *Trace
	ErrorMessage string
}

// Broke reports whether the pipeline halted on a break condition.
func (r *Result) Broke() bool { return r.ErrorMessage != "" }

// state accumulates one line's calculation.
type state struct {
	in    input.Values
	trace *Trace
	debug bool

	// Line identity.
	material    string
	itemNumber  string
	stockPlant  string
	shipPlant   string
	weight      float64
	quotePounds float64

	// Customer context, annotated onto the line by the orchestrator.
	customerID   string
	salesOffice  string
	isrOffice    string
	market       string
	region       string
	rcMapping    string
	sapInd       bool
	waiveSkid    bool
	dsoAdder     float64
	percentAdder float64
	dollarAdder  float64
	shipToZip    string
	shipToState  string

	// Cost basis.
	costAdj        *refdata.CostAdjustment
	product        *refdata.Product
	classification string
	costPlus       bool
	productName    string
	form           string
	bellwether     string
	modeledCost    float64

	// Landed cost.
	replacementCost float64
	millFreight     float64
	idoCharge       float64
	landedCost      float64

	// Margin.
	baseMargin    float64
	tmAdj         refdata.TmAdjustment
	weightClass   int
	appliedMargin float64
	customerPrice float64
	priceByClass  map[int]float64

	// Discount.
	clCode   string
	discount float64

	// Packaging / handling.
	skid        *refdata.SouthSkidCharge
	packaging   *refdata.PackagingCost
	fabHandling float64
	orderCost   float64

	// Freight.
	freightLevel   int
	freightTable   *refdata.FreightTable
	freightDefault *refdata.FreightDefault
	freight        float64

	// Adders.
	locationGroup *refdata.LocationGroup
	smallOrder    float64
	labor         float64

	// Price assembly.
	floorPrice    float64
	bwRatingValue string
	bwAdder       float64
	preTuning     float64

	// Tuning.
	tuning          *refdata.AutomatedTuning
	tuningGroup     string
	tuningMagnitude float64

	// Final adjustment and reporting.
	mso             *refdata.MaterialSalesOffice
	priceAdjustment float64
	price           float64
	totalCost       float64
	margin          float64
	marginPercent   float64
	classPrices     Outputs
}

type stageFunc func(ctx context.Context, s *state) error

// Price normalizes a raw line input against the model definition and
// runs the pricing pipeline. A break yields a priceless Result with an
// error message and the trace captured so far; a validation failure or
// fatal condition returns an error.
func (c *Calculator) Price(ctx context.Context, raw map[string]any, def *model.Definition) (*Result, error) {
	values, _, err := input.Normalize(raw, def)
	if err != nil {
		return nil, err
	}
	return c.PriceNormalized(ctx, values, def.Debug)
}

// PriceNormalized runs the pipeline over an already-normalized line.
func (c *Calculator) PriceNormalized(ctx context.Context, values input.Values, debug bool) (*Result, error) {
	s := &state{
		in:    values,
		trace: NewTrace(),
		debug: debug,
	}

	stages := []struct {
		name string
		fn   stageFunc
	}{
		{"lineContext", c.stageLineContext},
		{"costBasis", c.stageCostBasis},
		{"costAdjustmentTest", c.stageCostAdjustmentTest},
		{"landedCost", c.stageLandedCost},
		{"targetMargin", c.stageTargetMargin},
		{"discountCode", c.stageDiscountCode},
		{"customerPriceTable", c.stageCustomerPriceTable},
		{"packaging", c.stagePackaging},
		{"freight", c.stageFreight},
		{"smallOrderAdder", c.stageSmallOrderAdder},
		{"priceAssembly", c.stagePriceAssembly},
		{"automatedTuning", c.stageAutomatedTuning},
		{"priceAdjustment", c.stagePriceAdjustment},
		{"breakpointPrices", c.stageBreakpointPrices},
		{"marginReport", c.stageMarginReport},
	}

	for _, stage := range stages {
		if err := stage.fn(ctx, s); err != nil {
			if brk, ok := errors.AsBreak(err); ok {
				c.log.Debug("pipeline break",
					zap.String("stage", stage.name),
					zap.String("itemNumber", s.itemNumber),
					zap.String("message", brk.Message))
				return c.breakResult(s, brk), nil
			}
			return nil, err
		}
	}

	return c.successResult(s), nil
}

// breakResult composes the priceless output for a halted pipeline.
func (c *Calculator) breakResult(s *state, brk *errors.BreakError) *Result {
	outputs := Outputs{
		{Name: "itemNumber", Passthrough: true, Value: s.itemNumber},
		{Name: "errorMessage", Value: brk.Message},
	}
	outputs = c.appendEcho(s, outputs)
	return &Result{Outputs: outputs, Inputs: s.in, Trace: s.trace, ErrorMessage: brk.Message}
}

// successResult composes the priced output.
func (c *Calculator) successResult(s *state) *Result {
	var red, yellow float64
	if s.mso != nil {
		red = s.mso.RedMarginThreshold
		yellow = s.mso.YellowMarginThreshold
	}

	outputs := Outputs{
		{Name: "itemNumber", Passthrough: true, Value: s.itemNumber},
		{Name: "recommendedPricePerPound", Value: s.price},
		{Name: "totalCostPerPound", Value: s.totalCost},
		{Name: "margin", Value: s.margin},
		{Name: "marginPercent", Value: s.marginPercent},
		{Name: "redMarginThreshold", Value: red},
		{Name: "yellowMarginThreshold", Value: yellow},
		{Name: "weightClassPrices", Value: s.classPrices},
	}
	outputs = c.appendEcho(s, outputs)
	return &Result{Outputs: outputs, Inputs: s.in, Trace: s.trace}
}

// appendEcho echoes requested values onto the outputs: every
// normalized input and traced intermediate under debug, otherwise only
// the names the request listed in includedProperties.
func (c *Calculator) appendEcho(s *state, outputs Outputs) Outputs {
	if s.debug {
		return c.appendAll(s, outputs)
	}

	included := s.in.Array("includedProperties")
	if len(included) == 0 {
		return outputs
	}

	present := presentNames(outputs)
	for _, raw := range included {
		name, ok := raw.(string)
		if !ok {
			continue
		}
		folded := strings.ToLower(name)
		if present[folded] {
			continue
		}
		if s.in.Has(name) {
			present[folded] = true
			outputs = append(outputs, Output{Name: name, Passthrough: true, Value: s.in.Any(name)})
			continue
		}
		if value, ok := s.trace.Get(name); ok {
			present[folded] = true
			outputs = append(outputs, Output{Name: name, Value: value})
		}
	}
	return outputs
}

// appendAll echoes the normalized inputs and every traced intermediate
// value for a debug response.
func (c *Calculator) appendAll(s *state, outputs Outputs) Outputs {
	present := presentNames(outputs)

	inputNames := make([]string, 0, len(s.in))
	for name := range s.in {
		inputNames = append(inputNames, name)
	}
	sort.Strings(inputNames)
	for _, name := range inputNames {
		if present[strings.ToLower(name)] {
			continue
		}
		present[strings.ToLower(name)] = true
		outputs = append(outputs, Output{Name: name, Passthrough: true, Value: s.in[name]})
	}

	for _, name := range s.trace.Names() {
		if present[strings.ToLower(name)] {
			continue
		}
		present[strings.ToLower(name)] = true
		value, _ := s.trace.Get(name)
		outputs = append(outputs, Output{Name: name, Value: value})
	}
	return outputs
}

// presentNames folds the output names already emitted so echoes never
// duplicate an entry under a different casing.
func presentNames(outputs Outputs) map[string]bool {
	present := make(map[string]bool, len(outputs))
	for _, o := range outputs {
		present[strings.ToLower(o.Name)] = true
	}
	return present
}

// stageLineContext reads the line identity and annotated customer
// context out of the normalized input.
func (c *Calculator) stageLineContext(_ context.Context, s *state) error {
	s.material = s.in.Str("material")
	s.itemNumber = s.in.Str("itemNumber")
	s.stockPlant = s.in.Str("stockPlant")
	s.shipPlant = s.in.Str("shipPlant")
	if s.shipPlant == "" {
		s.shipPlant = s.stockPlant
	}
	s.weight = s.in.Float("weight")
	s.quotePounds = s.in.Float("totalQuotePounds")

	s.customerID = s.in.Str("customerId")
	s.salesOffice = s.in.Str("salesOffice")
	s.isrOffice = s.in.Str("isrOffice")
	s.market = s.in.Str("multiMarketName")
	s.region = s.in.Str("region")
	s.rcMapping = s.in.Str("rcMapping")
	s.sapInd = strings.EqualFold(s.in.Str("sapInd"), "Y")
	s.waiveSkid = strings.EqualFold(s.in.Str("waiveSkid"), "Y")
	s.dsoAdder = s.in.Float("dsoAdder")
	s.percentAdder = s.in.Float("percentAdder")
	s.dollarAdder = s.in.Float("dollarAdder")
	s.shipToZip = s.in.Str("shipToZipCode")
	s.shipToState = s.in.Str("shipToState")

	if s.weight <= 0 {
		return errors.Fatalf("weight must be positive for item %s", s.itemNumber)
	}
	if s.quotePounds <= 0 {
		return errors.Fatalf("total quote pounds must be positive for item %s", s.itemNumber)
	}

	s.trace.Put("material", s.material)
	s.trace.Put("weight", s.weight)
	s.trace.Put("totalQuotePounds", s.quotePounds)
	return nil
}

// resolveWeightClass finds the weight class for a weight through the
// bucketed reference table, falling back to the static breakpoint list
// when the table has no covering bucket.
func (c *Calculator) resolveWeightClass(ctx context.Context, weight float64) (int, error) {
	name, err := c.lookup.BucketedLookup(ctx, refdata.TableWeightClass, weight, "class_name")
	if err != nil {
		return 0, err
	}
	if name != "" {
		if class, err := strconv.Atoi(name); err == nil {
			return class, nil
		}
	}
	return refdata.ClassFor(weight), nil
}
