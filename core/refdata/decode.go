package refdata

import (
	"fmt"
	"strconv"
	"strings"
)

// WeightBreakpoints are the standardized shipment-weight thresholds
// (in pounds) that key the freight and margin-adjustment tables.
var WeightBreakpoints = []int{1, 200, 500, 1000, 2000, 5000, 6500, 10000, 20000, 24000, 40000}

// ClassFor returns the weight-class breakpoint for a weight: the
// largest breakpoint not exceeding it, or 0 below the first.
func ClassFor(weight float64) int {
	class := 0
	for _, bp := range WeightBreakpoints {
		if weight >= float64(bp) {
			class = bp
		}
	}
	return class
}

// Record is one reference row as returned by the store: column name
// to raw value. Field readers absorb the driver's concrete types.
type Record map[string]any

// Str reads a string column, or "" when absent.
func (r Record) Str(column string) string {
	switch v := r[column].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// Float reads a numeric column, or 0 when absent.
func (r Record) Float(column string) float64 {
	switch v := r[column].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case []byte:
		f, _ := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f
	default:
		return 0
	}
}

// byClass reads every weight-class column present on a record,
// including class 0 when includeZero is set.
func (r Record) byClass(includeZero bool) map[int]float64 {
	classes := make(map[int]float64, len(WeightBreakpoints)+1)
	if includeZero {
		if v, ok := r["weight_class_0"]; ok && v != nil {
			classes[0] = r.Float("weight_class_0")
		}
	}
	for _, bp := range WeightBreakpoints {
		col := "weight_class_" + strconv.Itoa(bp)
		if v, ok := r[col]; ok && v != nil {
			classes[bp] = r.Float(col)
		}
	}
	return classes
}

// DecodeCustomer decodes a customer row.
func DecodeCustomer(r Record) Customer {
	return Customer{
		UniqueID:            r.Str("unique_id"),
		CustomerNumber:      r.Str("customer_number"),
		SapInd:              r.Str("sap_ind"),
		MultiMarketName:     r.Str("multi_market_name"),
		CustomerSalesOffice: r.Str("customer_sales_office"),
		IsrOffice:           r.Str("isr_office"),
		CustomerName:        r.Str("customer_name"),
		Region:              r.Str("region"),
		RcMapping:           r.Str("rc_mapping"),
		Dso:                 r.Float("dso"),
		WaiveSkid:           r.Str("waive_skid"),
		DsoAdder:            r.Float("dso_adder"),
		PercentAdder:        r.Float("percent_adder"),
		DollarAdder:         r.Float("dollar_adder"),
	}
}

// DecodeProduct decodes a product row.
func DecodeProduct(r Record) Product {
	return Product{
		UniqueID:            r.Str("unique_id"),
		RcMapping:           r.Str("rc_mapping"),
		Material:            r.Str("material"),
		BellwetherMaterial:  r.Str("bellwether_material"),
		ProductName:         r.Str("product_name"),
		Form:                r.Str("form"),
		Index:               r.Str("index_name"),
		BellwetherBaseCost:  r.Float("bellwether_base_cost"),
		MarketMovementAdder: r.Float("market_movement_adder"),
		PercentAdjustment:   r.Float("percent_adjustment"),
		DollarAdjustment:    r.Float("dollar_adjustment"),
		ModeledCost:         r.Float("modeled_cost"),
		UnitHandlingCost:    r.Float("unit_handling_cost"),
		PerTonPackagingCost: r.Float("per_ton_packaging_cost"),
		PerTonStockingCost:  r.Float("per_ton_stocking_cost"),
		MaterialDescription: r.Str("material_description"),
		ExchangeRate:        r.Float("exchange_rate"),
	}
}

// DecodeCostAdjustment decodes a cost-adjustment row.
func DecodeCostAdjustment(r Record) CostAdjustment {
	return CostAdjustment{
		UniqueID:               r.Str("unique_id"),
		Product:                r.Str("product"),
		Form:                   r.Str("form"),
		Material:               r.Str("material"),
		MaterialClassification: strings.ToUpper(r.Str("material_classification")),
		MaterialDescription:    r.Str("material_description"),
		StockPlant:             r.Str("stock_plant"),
		Cost:                   r.Float("cost"),
		TargetMargin:           r.Float("target_margin"),
	}
}

// DecodeMillToPlantFreight decodes a mill-to-plant freight row.
func DecodeMillToPlantFreight(r Record) MillToPlantFreight {
	return MillToPlantFreight{
		UniqueID:                r.Str("unique_id"),
		BellwetherMaterial:      r.Str("bellwether_material"),
		ShipPlant:               r.Str("ship_plant"),
		MillToPlantFreightValue: r.Float("mill_to_plant_freight_value"),
	}
}

// DecodeTmAdjustment decodes a target-margin adjustment row.
func DecodeTmAdjustment(r Record) TmAdjustment {
	return TmAdjustment{
		UniqueID:        r.Str("unique_id"),
		MultiMarketName: r.Str("multi_market_name"),
		Product:         r.Str("product"),
		Form:            r.Str("form"),
		ByClass:         r.byClass(false),
	}
}

// DecodeMaterialSalesOffice decodes a material/sales-office row.
func DecodeMaterialSalesOffice(r Record) MaterialSalesOffice {
	return MaterialSalesOffice{
		UniqueID:              r.Str("unique_id"),
		Material:              r.Str("material"),
		IsrOffice:             r.Str("isr_office"),
		StartEffectiveDate:    r.Str("start_effective_date"),
		EndEffectiveDate:      r.Str("end_effective_date"),
		RedMarginThreshold:    r.Float("red_margin_threshold"),
		YellowMarginThreshold: r.Float("yellow_margin_threshold"),
		PriceAdjustment:       r.Float("price_adjustment"),
	}
}

// DecodePackagingCost decodes a packaging-cost row.
func DecodePackagingCost(r Record) PackagingCost {
	return PackagingCost{
		UniqueID:            r.Str("unique_id"),
		OverheadGroup:       r.Str("overhead_group"),
		OverheadGroupName:   r.Str("overhead_group_name"),
		UnitHandlingCost:    r.Float("unit_handling_cost"),
		PerTonPackagingCost: r.Float("per_ton_packaging_cost"),
		PerTonStockingCost:  r.Float("per_ton_stocking_cost"),
	}
}

// DecodeSouthSkidCharge decodes a skid-charge row.
func DecodeSouthSkidCharge(r Record) SouthSkidCharge {
	return SouthSkidCharge{
		UniqueID:      r.Str("unique_id"),
		Product:       r.Str("product"),
		Form:          r.Str("form"),
		WeightPerSkid: r.Float("weight_per_skid"),
		SkidCharge:    r.Float("skid_charge"),
	}
}

// DecodeFreightTable decodes a sap_freight or south_freight row.
func DecodeFreightTable(r Record) FreightTable {
	return FreightTable{
		UniqueID:             r.Str("unique_id"),
		ShipPlant:            r.Str("ship_plant"),
		Zone:                 r.Str("zone"),
		ByClass:              r.byClass(true),
		MinimumFreightCharge: r.Float("minimum_freight_charge"),
	}
}

// DecodeShipZone decodes a ship-zone row.
func DecodeShipZone(r Record) ShipZone {
	return ShipZone{
		UniqueID:   r.Str("unique_id"),
		CustomerID: r.Str("customer_id"),
		ShipPlant:  r.Str("ship_plant"),
		Zone:       r.Str("zone"),
	}
}

// DecodeFreightDefault decodes a freight-default row.
func DecodeFreightDefault(r Record) FreightDefault {
	return FreightDefault{
		UniqueID:                         r.Str("unique_id"),
		ShipPlant:                        r.Str("ship_plant"),
		State:                            r.Str("state"),
		DefaultFreightChargePer100Pounds: r.Float("default_freight_charge_per_100_pounds"),
		DefaultMinimumFreightCharge:      r.Float("default_minimum_freight_charge"),
	}
}

// DecodeSoBwFloorPrice decodes a floor-price row.
func DecodeSoBwFloorPrice(r Record) SoBwFloorPrice {
	return SoBwFloorPrice{
		UniqueID:           r.Str("unique_id"),
		IsrOffice:          r.Str("isr_office"),
		BellwetherMaterial: r.Str("bellwether_material"),
		FloorPrice:         r.Float("floor_price"),
	}
}

// DecodeBwRating decodes a bellwether-rating row.
func DecodeBwRating(r Record) BwRating {
	return BwRating{
		UniqueID:           r.Str("unique_id"),
		MultiMarketName:    r.Str("multi_market_name"),
		BellwetherMaterial: r.Str("bellwether_material"),
		BwRatingValue:      r.Str("bw_rating_value"),
		BwRatingAdder:      r.Float("bw_rating_adder"),
	}
}

// DecodeLocationGroup decodes a location-group row.
func DecodeLocationGroup(r Record) LocationGroup {
	return LocationGroup{
		UniqueID:           r.Str("unique_id"),
		RcMapping:          r.Str("rc_mapping"),
		LocationGroupValue: r.Str("location_group_value"),
		Region:             r.Str("region"),
	}
}

// DecodeAutomatedTuning decodes an automated-tuning row.
func DecodeAutomatedTuning(r Record) AutomatedTuning {
	return AutomatedTuning{
		UniqueID:               r.Str("unique_id"),
		Product:                r.Str("product"),
		CondensedForm:          r.Str("condensed_form"),
		LocationGroup:          r.Str("location_group"),
		SaltValue:              r.Str("salt_value"),
		PriceUpActiveFlag:      r.Str("price_up_active_flag"),
		PriceUpConcentration:   r.Float("price_up_concentration"),
		PriceUpMagnitude:       r.Float("price_up_magnitude"),
		PriceDownActiveFlag:    r.Str("price_down_active_flag"),
		PriceDownConcentration: r.Float("price_down_concentration"),
		PriceDownMagnitude:     r.Float("price_down_magnitude"),
	}
}

// DecodeIdo decodes an inventory/distribution duty row.
func DecodeIdo(r Record) Ido {
	return Ido{
		UniqueID:    r.Str("unique_id"),
		StockPlant:  r.Str("stock_plant"),
		ShipPlant:   r.Str("ship_plant"),
		IdoPerPound: r.Float("ido_per_pound"),
		IdoMin:      r.Float("ido_min"),
		IdoMax:      r.Float("ido_max"),
	}
}

// DecodeClCode decodes a discount-code row.
func DecodeClCode(r Record) ClCode {
	return ClCode{
		UniqueID:            r.Str("unique_id"),
		CustomerNumber:      r.Str("customer_number"),
		CustomerSalesOffice: r.Str("customer_sales_office"),
		Product:             r.Str("product"),
		Form:                r.Str("form"),
		ClCodeValue:         r.Str("cl_code_value"),
		ClDiscount:          r.Float("cl_discount"),
	}
}

// DecodeTargetMargin decodes a target-margin row into its value.
func DecodeTargetMargin(r Record) float64 {
	return r.Float("target_margin_value")
}

// DecodeOpCode decodes an op-code row.
func DecodeOpCode(r Record) OpCode {
	return OpCode{
		UniqueID:         r.Str("unique_id"),
		OpCodeValue:      r.Str("op_code_value"),
		Description:      r.Str("description"),
		CuttingOperation: r.Str("cutting_operation"),
		FabIndicator:     r.Str("fab_indicator"),
		NetWeightLow:     r.Float("net_weight_low"),
		NetWeightHigh:    r.Float("net_weight_high"),
		PiecesWeightLow:  r.Float("pieces_weight_low"),
		PiecesWeightHigh: r.Float("pieces_weight_high"),
		BundlesLow:       r.Float("bundles_low"),
		BundlesHigh:      r.Float("bundles_high"),
		LongBasePullTime: r.Float("long_base_pull_time"),
		OpCodeType:       r.Str("op_code_type"),
	}
}
