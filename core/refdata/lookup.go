package refdata

import (
	"context"
)

// LookupService is the abstract read interface over the reference
// store. Keys are case-insensitive pipe-delimited composites.
//
// Lookup returns a nil Record when no row matches; BucketedLookup
// returns "" when no row's [min,max) bounds contain the value.
type LookupService interface {
	Lookup(ctx context.Context, table, key string) (Record, error)
	BucketedLookup(ctx context.Context, table string, value float64, column string) (string, error)

	// LookupOpCode matches an op-code row by three numeric-range
	// predicates simultaneously: net weight, per-piece weight, and
	// bundle count must all fall inside the row's [low,high) bounds.
	LookupOpCode(ctx context.Context, opCode string, netWeight, pieceWeight, bundles float64) (*OpCode, error)
}

// Get resolves one typed reference record: a single generic lookup
// plus the kind's decoder, so call sites stay type safe without one
// interface method per record kind.
func Get[T any](ctx context.Context, svc LookupService, table, key string, decode func(Record) T) (T, bool, error) {
	var zero T
	rec, err := svc.Lookup(ctx, table, key)
	if err != nil {
		return zero, false, err
	}
	if rec == nil {
		return zero, false, nil
	}
	return decode(rec), true, nil
}
