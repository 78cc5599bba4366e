package calc

import "github.com/shopspring/decimal"

// Material classifications that price against a cost-adjustment record.
const (
	classificationCostPlus = "CP"
	classificationLM       = "LM"
)

// Cost-adjustment test-group eligibility bounds, inclusive.
const (
	costTestMinWeight = 25.0
	costTestMaxWeight = 5000.0
)

// costAdjustmentSalt fixes the cost-adjustment partition key so group
// assignment is reproducible across deployments.
const costAdjustmentSalt = "QLSALT1"

// testAccounts are designated test customer numbers: excluded from the
// cost-adjustment experiment and given the fixed discount code.
var testAccounts = map[string]bool{
	"0000099999": true,
	"0000098765": true,
}

// Fixed discount code treatment.
const (
	testAccountClCode  = "TEST"
	unresolvedClCode   = "NONE"
	defaultDiscountSap = 0.0
	defaultDiscount    = 0.02
)

// Target margin clamp bounds. The per-breakpoint table allows a higher
// ceiling than the quoted line itself.
const (
	marginFloor        = -0.20
	marginCeiling      = 0.85
	classMarginCeiling = 0.98
)

// IDO duty band defaults when the resolved record leaves them unset.
const (
	idoDefaultMin = 0.0
	idoDefaultMax = 10000.0
)

// Freight escalation constants: the level-1 rate used when a resolved
// record has no mapping for the weight class, and the fixed level-3
// fallback.
const (
	unmappedClassRate     = 2.5
	fallbackFreightRate   = 6.0
	fallbackMinimumCharge = 75.0
)

// Small-order adder fees by region.
const (
	southSmallOrderFee       = 25.0
	southSmallOrderLimit     = 500.0
	northeastSmallOrderFee   = 15.0
	northeastSmallOrderLimit = 1000.0
	otherSmallOrderFee       = 50.0
	otherSmallOrderLimit     = 500.0
)

// Labor charge: a flat amount spread over the line weight, floored.
const (
	laborFlatCharge  = 15.0
	laborMinPerPound = 0.01
)

// defaultBwRatingValue labels lines whose bellwether has no rating row.
const defaultBwRatingValue = "EXCLUDED"

// round4 rounds a figure to the 4 decimal places every rounding point
// in the pipeline uses.
func round4(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(4).Float64()
	return f
}

// clamp bounds v to [lo,hi], replacing an out-of-range value with the
// nearest bound.
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
