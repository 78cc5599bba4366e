package input

import (
	"reflect"
	"testing"

	"quote-pricing/core/model"
	"quote-pricing/internal/errors"
)

func lineDef(t *testing.T) *model.Definition {
	t.Helper()
	def, ok := model.NewRegistry().Get(model.QuoteLineSapID, false)
	if !ok {
		t.Fatal("quoteLineSAP model missing")
	}
	return def
}

func TestNormalizeFoldsAndDefaults(t *testing.T) {
	raw := map[string]any{
		"Material":         "HR-01",
		"ITEMNUMBER":       "10",
		"stockPlant":       "S42",
		"weight":           "3000",
		"totalQuotePounds": 3000.0,
		"opCode":           "   ",
		"ignoredExtra":     nil,
	}

	values, included, err := Normalize(raw, lineDef(t))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if got := values.Str("material"); got != "HR-01" {
		t.Errorf("material = %q", got)
	}
	if got := values.Float("weight"); got != 3000 {
		t.Errorf("weight = %v, want coerced 3000", got)
	}
	if got := values.Str("shipPlant"); got != "" {
		t.Errorf("shipPlant default = %q, want empty", got)
	}
	// Blank opCode is scrubbed, then refilled with its default.
	if got := values.Str("opCode"); got != "" {
		t.Errorf("opCode = %q, want default empty", got)
	}
	if got := values.Float("netWeightOfSalesItem"); got != -1.0 {
		t.Errorf("netWeightOfSalesItem = %v, want -1.0", got)
	}
	if got := values.Int("bundles"); got != -1 {
		t.Errorf("bundles = %v, want -1", got)
	}
	if len(included) == 0 {
		t.Error("included names empty")
	}
}

func TestNormalizeMissingRequired(t *testing.T) {
	raw := map[string]any{
		"itemNumber":       "10",
		"stockPlant":       "S42",
		"weight":           3000.0,
		"totalQuotePounds": 3000.0,
	}

	_, _, err := Normalize(raw, lineDef(t))
	verr, ok := errors.AsValidation(err)
	if !ok {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if len(verr.Missing) != 1 || verr.Missing[0] != "material" {
		t.Errorf("Missing = %v, want [material]", verr.Missing)
	}
}

func TestNormalizeBlankRequiredCountsAsMissing(t *testing.T) {
	raw := map[string]any{
		"material":         " ",
		"itemNumber":       "10",
		"stockPlant":       "S42",
		"weight":           3000.0,
		"totalQuotePounds": 3000.0,
	}

	_, _, err := Normalize(raw, lineDef(t))
	verr, ok := errors.AsValidation(err)
	if !ok {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if len(verr.Missing) != 1 || verr.Missing[0] != "material" {
		t.Errorf("Missing = %v, want [material]", verr.Missing)
	}
}

func TestNormalizeRejectsBadTypes(t *testing.T) {
	raw := map[string]any{
		"material":         "HR-01",
		"itemNumber":       "10",
		"stockPlant":       "S42",
		"weight":           "heavy",
		"totalQuotePounds": 3000.0,
	}

	_, _, err := Normalize(raw, lineDef(t))
	if _, ok := errors.AsValidation(err); !ok {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	raw := map[string]any{
		"material":         "HR-01",
		"itemNumber":       "10",
		"stockPlant":       "S42",
		"weight":           3000.0,
		"totalQuotePounds": 3000.0,
	}

	def := lineDef(t)
	once, _, err := Normalize(raw, def)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	twice, _, err := Normalize(once, def)
	if err != nil {
		t.Fatalf("Normalize again: %v", err)
	}

	if len(once) != len(twice) {
		t.Fatalf("len = %d then %d", len(once), len(twice))
	}
	for k, v := range once {
		if !reflect.DeepEqual(twice[k], v) {
			t.Errorf("%s = %v then %v", k, v, twice[k])
		}
	}
}

func TestNormalizeFirstDuplicateKeyWins(t *testing.T) {
	// Go map iteration order is random, so seed exactly one folded
	// collision through differing case and assert a single key remains.
	raw := map[string]any{
		"material":         "HR-01",
		"MATERIAL":         "HR-02",
		"itemNumber":       "10",
		"stockPlant":       "S42",
		"weight":           3000.0,
		"totalQuotePounds": 3000.0,
	}

	values, _, err := Normalize(raw, lineDef(t))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	got := values.Str("material")
	if got != "HR-01" && got != "HR-02" {
		t.Errorf("material = %q, want one of the supplied values", got)
	}
}
