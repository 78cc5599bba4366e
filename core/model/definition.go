// Package model defines the calculation models and their parameter
// specifications.
package model

import (
	"strings"
	"time"
)

// Parameter type names accepted by the input normalizer.
const (
	TypeString      = "string"
	TypeInt         = "int"
	TypeDouble      = "double"
	TypeBool        = "bool"
	TypeArray       = "array"
	TypeObjectArray = "objectarray"
	TypeLiteral     = "literal"
)

// ParameterSpec describes one model input. Names are case-insensitive.
type ParameterSpec struct {
	Name         string
	Type         string
	Required     bool
	DefaultValue string

	// HasDefault distinguishes a default of "" from no default at all.
	HasDefault bool
}

// Optional creates an optional ParameterSpec with a default.
func Optional(name, typ, defaultValue string) ParameterSpec {
	return ParameterSpec{Name: name, Type: typ, DefaultValue: defaultValue, HasDefault: true}
}

// Required creates a required ParameterSpec.
func Required(name, typ string) ParameterSpec {
	return ParameterSpec{Name: name, Type: typ, Required: true}
}

// Definition is a calculation model: identity, activation state, and
// the ordered parameter list its inputs are normalized against.
type Definition struct {
	ID            string
	Name          string
	Version       int
	Active        bool
	DebugEligible bool
	Debug         bool
	Parameters    []ParameterSpec
	CreateDate    time.Time
}

// Param returns the ParameterSpec for a case-insensitive name.
func (d *Definition) Param(name string) (ParameterSpec, bool) {
	for _, p := range d.Parameters {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return ParameterSpec{}, false
}

// Model identifiers.
const (
	RecommendedPriceID = "recommendedPrice"
	QuoteLineSapID     = "quoteLineSAP"
)

// Registry resolves model definitions by id.
type Registry struct{}

// NewRegistry creates the model registry.
func NewRegistry() *Registry { return &Registry{} }

// Get resolves a model definition by case-insensitive id, applying the
// requested debug mode when the model is debug-eligible. The second
// return is false for unknown model ids.
func (r *Registry) Get(modelID string, debugRequested bool) (*Definition, bool) {
	switch {
	case strings.EqualFold(modelID, RecommendedPriceID):
		return recommendedPrice(debugRequested), true
	case strings.EqualFold(modelID, QuoteLineSapID):
		return quoteLineSap(debugRequested), true
	default:
		return nil, false
	}
}

// recommendedPrice is the multi-line quote model.
func recommendedPrice(debug bool) *Definition {
	return &Definition{
		ID:            RecommendedPriceID,
		Name:          "RecommendedPrice",
		Version:       3,
		Active:        true,
		DebugEligible: true,
		Debug:         debug,
		Parameters: []ParameterSpec{
			Required("quoteLines", TypeArray),
			Required("customerId", TypeString),
			Optional("shipToZipCode", TypeString, ""),
			Optional("shipToState", TypeString, ""),
			Optional("salesOffice", TypeString, "NA"),
			Optional("independentCalculationFlag", TypeBool, "false"),
			Optional("includedProperties", TypeArray, ""),
			Optional("automatedTuningGroupOverride", TypeString, ""),
			Optional("automatedTuningFlagOverride", TypeString, ""),
		},
	}
}

// quoteLineSap is the per-line pricing model.
func quoteLineSap(debug bool) *Definition {
	return &Definition{
		ID:            QuoteLineSapID,
		Name:          "quoteLineSAP",
		Version:       40,
		Active:        true,
		DebugEligible: true,
		Debug:         debug,
		Parameters: []ParameterSpec{
			Required("material", TypeString),
			Required("itemNumber", TypeString),
			Optional("shipPlant", TypeString, ""),
			Required("stockPlant", TypeString),
			Required("weight", TypeDouble),
			Optional("opCode", TypeString, ""),
			Optional("netWeightOfSalesItem", TypeDouble, "-1.0"),
			Optional("netWeightPerFinishedPiece", TypeDouble, "0.0"),
			Optional("bundles", TypeInt, "-1"),
			Required("totalQuotePounds", TypeDouble),
			Optional("includedProperties", TypeArray, ""),
			Optional("automatedTuningGroupOverride", TypeString, ""),
			Optional("automatedTuningFlagOverride", TypeString, ""),
		},
	}
}
