// Package refdata defines the reference record kinds the pricing
// pipeline resolves, the abstract lookup interface that serves them,
// and the per-kind decoders that give call sites typed records over a
// single generic lookup operation.
package refdata

// Reference table names. Composite keys are pipe-delimited and matched
// case-insensitively by the store.
const (
	TableCustomer            = "customer"
	TableCustomerByNumber    = "customer_by_number"
	TableOfficeDefault       = "office_default"
	TableProduct             = "product"
	TableCostAdjustment      = "cost_adjustment"
	TableMillToPlantFreight  = "mill_to_plant_freight"
	TableTargetMargin        = "target_margin"
	TableTmAdjustment        = "tm_adjustment"
	TableMaterialSalesOffice = "material_sales_office"
	TablePackagingCost       = "packaging_cost"
	TableSouthSkidCharge     = "south_skid_charge"
	TableSapFreight          = "sap_freight"
	TableShipZone            = "ship_zone"
	TableSouthFreight        = "south_freight"
	TableFreightDefault      = "freight_default"
	TableSoBwFloorPrice      = "so_bw_floor_price"
	TableBwRating            = "bw_rating"
	TableLocationGroup       = "location_group"
	TableAutomatedTuning     = "automated_tuning"
	TableIdo                 = "ido"
	TableClCode              = "cl_code"
	TableWeightClass         = "weight_class"
)

// Customer identifies a sold-to account and its office assignment,
// fulfillment indicator, and customer-service adders.
type Customer struct {
	UniqueID            string
	CustomerNumber      string
	SapInd              string
	MultiMarketName     string
	CustomerSalesOffice string
	IsrOffice           string
	CustomerName        string
	Region              string
	RcMapping           string
	Dso                 float64
	WaiveSkid           string
	DsoAdder            float64
	PercentAdder        float64
	DollarAdder         float64
}

// Product carries the modeled cost series for a material in a region.
type Product struct {
	UniqueID            string
	RcMapping           string
	Material            string
	BellwetherMaterial  string
	ProductName         string
	Form                string
	Index               string
	BellwetherBaseCost  float64
	MarketMovementAdder float64
	PercentAdjustment   float64
	DollarAdjustment    float64
	ModeledCost         float64
	UnitHandlingCost    float64
	PerTonPackagingCost float64
	PerTonStockingCost  float64
	MaterialDescription string
	ExchangeRate        float64
}

// CostAdjustment is a tested cost override; cost-plus classified
// materials price from this record instead of the product table.
type CostAdjustment struct {
	UniqueID               string
	Product                string
	Form                   string
	Material               string
	MaterialClassification string
	MaterialDescription    string
	StockPlant             string
	Cost                   float64
	TargetMargin           float64
}

// MillToPlantFreight is the inbound freight from mill to stocking plant.
type MillToPlantFreight struct {
	UniqueID                string
	BellwetherMaterial      string
	ShipPlant               string
	MillToPlantFreightValue float64
}

// TmAdjustment is the target-margin adjustment keyed by weight class.
type TmAdjustment struct {
	UniqueID        string
	MultiMarketName string
	Product         string
	Form            string

	// ByClass maps a weight-class breakpoint to its margin adjustment.
	ByClass map[int]float64
}

// MaterialSalesOffice supplies margin thresholds and a date-windowed
// price adjustment for an office/material pair.
type MaterialSalesOffice struct {
	UniqueID              string
	Material              string
	IsrOffice             string
	StartEffectiveDate    string
	EndEffectiveDate      string
	RedMarginThreshold    float64
	YellowMarginThreshold float64
	PriceAdjustment       float64
}

// PackagingCost is the per-ton packaging/stocking cost table for an
// overhead group.
type PackagingCost struct {
	UniqueID            string
	OverheadGroup       string
	OverheadGroupName   string
	UnitHandlingCost    float64
	PerTonPackagingCost float64
	PerTonStockingCost  float64
}

// SouthSkidCharge is the skid-charge-per-weight-break table used by
// non-SAP fulfillment.
type SouthSkidCharge struct {
	UniqueID      string
	Product       string
	Form          string
	WeightPerSkid float64
	SkidCharge    float64
}

// FreightTable is a ship-plant/zone freight record: a per-hundredweight
// rate by weight class plus a minimum charge. Both the SAP and south
// freight tables decode into this shape.
type FreightTable struct {
	UniqueID  string
	ShipPlant string
	Zone      string

	// ByClass maps a weight-class breakpoint (including class 0) to a
	// freight rate per hundred pounds.
	ByClass map[int]float64

	MinimumFreightCharge float64
}

// ShipZone maps a customer/ship-plant pair to its freight zone.
type ShipZone struct {
	UniqueID   string
	CustomerID string
	ShipPlant  string
	Zone       string
}

// FreightDefault is the ship-plant/state fallback freight record.
type FreightDefault struct {
	UniqueID                         string
	ShipPlant                        string
	State                            string
	DefaultFreightChargePer100Pounds float64
	DefaultMinimumFreightCharge      float64
}

// SoBwFloorPrice is the floor price for an office/bellwether pair.
type SoBwFloorPrice struct {
	UniqueID           string
	IsrOffice          string
	BellwetherMaterial string
	FloorPrice         float64
}

// BwRating is the bellwether rating multiplicative adder.
type BwRating struct {
	UniqueID           string
	MultiMarketName    string
	BellwetherMaterial string
	BwRatingValue      string
	BwRatingAdder      float64
}

// LocationGroup maps a region code to its location group and region name.
type LocationGroup struct {
	UniqueID           string
	RcMapping          string
	LocationGroupValue string
	Region             string
}

// AutomatedTuning is the weekly price-tuning experiment configuration
// for a location group/product/form combination.
type AutomatedTuning struct {
	UniqueID      string
	Product       string
	CondensedForm string
	LocationGroup string
	SaltValue     string

	PriceUpActiveFlag    string
	PriceUpConcentration float64
	PriceUpMagnitude     float64

	PriceDownActiveFlag    string
	PriceDownConcentration float64
	PriceDownMagnitude     float64
}

// Ido is the per-pound inventory/distribution duty band for a
// stock-plant/ship-plant pair.
type Ido struct {
	UniqueID    string
	StockPlant  string
	ShipPlant   string
	IdoPerPound float64
	IdoMin      float64
	IdoMax      float64
}

// ClCode is the customer discount code record.
type ClCode struct {
	UniqueID            string
	CustomerNumber      string
	CustomerSalesOffice string
	Product             string
	Form                string
	ClCodeValue         string
	ClDiscount          float64
}

// OpCode is a fabrication op-code record matched by three numeric
// ranges at once.
type OpCode struct {
	UniqueID         string
	OpCodeValue      string
	Description      string
	CuttingOperation string
	FabIndicator     string
	NetWeightLow     float64
	NetWeightHigh    float64
	PiecesWeightLow  float64
	PiecesWeightHigh float64
	BundlesLow       float64
	BundlesHigh      float64
	LongBasePullTime float64
	OpCodeType       string
}
