package db

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"quote-pricing/core/refdata"
)

// opCodeTable holds the fabrication op-code ranges. It is queried
// through its own three-range predicate, never through Lookup.
const opCodeTable = "op_code"

// lookupTables is the allowlist of tables reachable through Lookup.
// Table names are interpolated into SQL and must never come from a
// caller directly.
var lookupTables = map[string]bool{
	refdata.TableCustomer:            true,
	refdata.TableCustomerByNumber:    true,
	refdata.TableOfficeDefault:       true,
	refdata.TableProduct:             true,
	refdata.TableCostAdjustment:      true,
	refdata.TableMillToPlantFreight:  true,
	refdata.TableTargetMargin:        true,
	refdata.TableTmAdjustment:        true,
	refdata.TableMaterialSalesOffice: true,
	refdata.TablePackagingCost:       true,
	refdata.TableSouthSkidCharge:     true,
	refdata.TableSapFreight:          true,
	refdata.TableShipZone:            true,
	refdata.TableSouthFreight:        true,
	refdata.TableFreightDefault:      true,
	refdata.TableSoBwFloorPrice:      true,
	refdata.TableBwRating:            true,
	refdata.TableLocationGroup:       true,
	refdata.TableAutomatedTuning:     true,
	refdata.TableIdo:                 true,
	refdata.TableClCode:              true,
}

// bucketedColumns allowlists the value columns of range-keyed tables.
var bucketedColumns = map[string]map[string]bool{
	refdata.TableWeightClass: {"class_name": true},
}

// Store is the SQLite refdata.LookupService.
type Store struct {
	conn *sql.DB
	log  *zap.Logger
}

// NewStore creates a Store over an open database.
func NewStore(conn *sql.DB, log *zap.Logger) *Store {
	return &Store{conn: conn, log: log}
}

// Lookup implements refdata.LookupService. Keys match case
// insensitively; a miss returns a nil Record.
func (s *Store) Lookup(ctx context.Context, table, key string) (refdata.Record, error) {
	if !lookupTables[table] {
		return nil, fmt.Errorf("unknown lookup table %q", table)
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT * FROM `+table+` WHERE lookup_key = ? COLLATE NOCASE LIMIT 1`, key)
	if err != nil {
		return nil, fmt.Errorf("lookup %s %q: %w", table, key, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	rec, err := scanRecord(rows)
	if err != nil {
		return nil, fmt.Errorf("lookup %s %q: %w", table, key, err)
	}
	return rec, nil
}

// BucketedLookup implements refdata.LookupService: it resolves the row
// whose [bucket_min, bucket_max) range contains the value and returns
// the named column, or "" when no bucket covers it.
func (s *Store) BucketedLookup(ctx context.Context, table string, value float64, column string) (string, error) {
	cols, ok := bucketedColumns[table]
	if !ok {
		return "", fmt.Errorf("unknown bucketed table %q", table)
	}
	if !cols[column] {
		return "", fmt.Errorf("unknown column %q on bucketed table %q", column, table)
	}

	var result sql.NullString
	err := s.conn.QueryRowContext(ctx,
		`SELECT `+column+` FROM `+table+` WHERE ? >= bucket_min AND ? < bucket_max LIMIT 1`,
		value, value).Scan(&result)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("bucketed lookup %s %v: %w", table, value, err)
	}
	return result.String, nil
}

// LookupOpCode implements refdata.LookupService: the three numeric
// predicates must all land inside the row's half-open ranges.
func (s *Store) LookupOpCode(ctx context.Context, opCode string, netWeight, pieceWeight, bundles float64) (*refdata.OpCode, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT * FROM `+opCodeTable+`
		 WHERE op_code_value = ? COLLATE NOCASE
		   AND ? >= net_weight_low AND ? < net_weight_high
		   AND ? >= pieces_weight_low AND ? < pieces_weight_high
		   AND ? >= bundles_low AND ? < bundles_high
		 LIMIT 1`,
		opCode, netWeight, netWeight, pieceWeight, pieceWeight, bundles, bundles)
	if err != nil {
		return nil, fmt.Errorf("op code lookup %q: %w", opCode, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	rec, err := scanRecord(rows)
	if err != nil {
		return nil, fmt.Errorf("op code lookup %q: %w", opCode, err)
	}
	op := refdata.DecodeOpCode(rec)
	return &op, nil
}

// scanRecord reads the current row into a column-keyed Record.
func scanRecord(rows *sql.Rows) (refdata.Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	rec := make(refdata.Record, len(columns))
	for i, col := range columns {
		rec[col] = values[i]
	}
	return rec, nil
}
