// Package partition provides the deterministic key-to-fraction hash
// used for reproducible experiment-group assignment, plus the two
// group assignments built on it.
package partition

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Value maps a key string to a fraction in [0,1). The same key always
// yields the same fraction: a 128-bit digest of the key is rendered as
// uppercase hex, the first 6 hex characters are parsed as an unsigned
// 24-bit integer, and the result is divided by 0xFFFFFF.
func Value(key string) float64 {
	sum := md5.Sum([]byte(key))
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	n, _ := strconv.ParseUint(digest[:6], 16, 32)
	return float64(n) / float64(0xFFFFFF)
}

// Key joins parts into the pipe-delimited composite form every
// partition key uses.
func Key(parts ...string) string {
	return strings.Join(parts, "|")
}

// costAdjustmentPercentages maps the seven cost-adjustment test
// buckets 1:1 to their price-test percentages.
var costAdjustmentPercentages = [7]float64{0, 0.05, -0.05, 0.10, -0.10, 0.20, -0.20}

// CostAdjustmentBucket assigns a key to one of the seven
// cost-adjustment test buckets, clamped to [1,7].
func CostAdjustmentBucket(key string) int {
	bucket := int(math.Ceil(Value(key) / (1.0 / 7.0)))
	if bucket < 1 {
		bucket = 1
	}
	if bucket > 7 {
		bucket = 7
	}
	return bucket
}

// CostAdjustmentPercentage returns the price-test percentage for a
// bucket from CostAdjustmentBucket.
func CostAdjustmentPercentage(bucket int) float64 {
	if bucket < 1 || bucket > 7 {
		return 0
	}
	return costAdjustmentPercentages[bucket-1]
}

// Automated-tuning test groups.
const (
	GroupControl   = "A"
	GroupPriceUp   = "B"
	GroupPriceDown = "C"
)

// TuningGroup assigns a key to the weekly automated-tuning test group.
// The control concentration is whatever remains after the up and down
// concentrations.
func TuningGroup(key string, priceUpConcentration, priceDownConcentration float64) string {
	control := 1 - (priceUpConcentration + priceDownConcentration)
	p := Value(key)
	switch {
	case p <= control:
		return GroupControl
	case p <= control+priceUpConcentration:
		return GroupPriceUp
	default:
		return GroupPriceDown
	}
}

// MondayOfWeek returns the most recent Monday (today when today is a
// Monday) as a stable calendar date, making weekly group assignment
// sticky for a full week.
func MondayOfWeek(now time.Time) string {
	offset := (int(now.Weekday()) + 6) % 7
	monday := now.AddDate(0, 0, -offset)
	return fmt.Sprintf("%04d-%02d-%02d", monday.Year(), monday.Month(), monday.Day())
}
