package calc

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"quote-pricing/core/partition"
	"quote-pricing/core/refdata"
	"quote-pricing/internal/errors"
)

// stageCostBasis resolves the cost basis: the product record by
// region/material, or the cost-adjustment record when the material is
// classified cost-plus.
func (c *Calculator) stageCostBasis(ctx context.Context, s *state) error {
	adj, found, err := refdata.Get(ctx, c.lookup, refdata.TableCostAdjustment,
		partition.Key(s.material, s.stockPlant), refdata.DecodeCostAdjustment)
	if err != nil {
		return errors.FatalWrap("cost adjustment lookup failed", err)
	}
	if found {
		s.costAdj = &adj
		s.classification = adj.MaterialClassification
		s.costPlus = adj.MaterialClassification == classificationCostPlus
	}
	s.trace.Put("materialClassification", s.classification)

	product, haveProduct, err := refdata.Get(ctx, c.lookup, refdata.TableProduct,
		partition.Key(s.rcMapping, s.material), refdata.DecodeProduct)
	if err != nil {
		return errors.FatalWrap("product lookup failed", err)
	}
	if haveProduct {
		s.product = &product
	}

	if s.costPlus {
		s.productName = s.costAdj.Product
		s.form = s.costAdj.Form
		s.bellwether = s.material
		if haveProduct && product.BellwetherMaterial != "" {
			s.bellwether = product.BellwetherMaterial
		}
		s.modeledCost = s.costAdj.Cost
		if s.modeledCost == 0 {
			return errors.Breakf("Modeled cost is zero for material %s", s.material)
		}
	} else {
		if !haveProduct {
			return errors.Breakf("Product not found for material %s in region %s", s.material, s.rcMapping)
		}
		if product.BellwetherMaterial == "" {
			return errors.Breakf("Bellwether material is missing for material %s", s.material)
		}
		if strings.EqualFold(product.BellwetherMaterial, "NA") {
			return errors.Breakf("Bellwether material is NA for material %s", s.material)
		}
		if product.Index == "" {
			return errors.Breakf("Index is missing for material %s", s.material)
		}
		if product.ModeledCost == 0 {
			return errors.Breakf("Modeled cost is zero for material %s", s.material)
		}
		s.productName = product.ProductName
		s.form = product.Form
		s.bellwether = product.BellwetherMaterial
		s.modeledCost = product.ModeledCost
	}

	s.trace.Put("productName", s.productName)
	s.trace.Put("form", s.form)
	s.trace.Put("bellwetherMaterial", s.bellwether)
	s.trace.Put("modeledCost", round4(s.modeledCost))
	return nil
}

// stageCostAdjustmentTest applies the cost-adjustment experiment
// percentage to the modeled cost for eligible lines.
func (c *Calculator) stageCostAdjustmentTest(_ context.Context, s *state) error {
	eligible := (s.classification == classificationCostPlus || s.classification == classificationLM) &&
		s.weight >= costTestMinWeight && s.weight <= costTestMaxWeight &&
		!testAccounts[s.customerID]

	pct := 0.0
	if eligible {
		key := partition.Key(s.customerID, s.isrOffice, s.material, costAdjustmentSalt)
		bucket := partition.CostAdjustmentBucket(key)
		pct = partition.CostAdjustmentPercentage(bucket)
		s.trace.Put("costAdjustmentTestBucket", bucket)
		s.trace.Put("costAdjustmentPartitionValue", partition.Value(key))
	}

	s.modeledCost = round4(s.modeledCost * (1 + pct))
	s.trace.Put("costAdjustmentTestPercentage", pct)
	s.trace.Put("adjustedModeledCost", s.modeledCost)
	return nil
}

// stageLandedCost computes the landed cost per pound: replacement cost
// plus mill-to-plant freight plus the clamped IDO duty.
func (c *Calculator) stageLandedCost(ctx context.Context, s *state) error {
	s.replacementCost = round4(s.modeledCost / 100)

	mill, found, err := refdata.Get(ctx, c.lookup, refdata.TableMillToPlantFreight,
		partition.Key(s.bellwether, s.shipPlant), refdata.DecodeMillToPlantFreight)
	if err != nil {
		return errors.FatalWrap("mill-to-plant freight lookup failed", err)
	}
	if found {
		s.millFreight = mill.MillToPlantFreightValue
	}

	ido, found, err := refdata.Get(ctx, c.lookup, refdata.TableIdo,
		partition.Key(s.stockPlant, s.shipPlant), refdata.DecodeIdo)
	if err != nil {
		return errors.FatalWrap("ido lookup failed", err)
	}
	if found {
		min, max := ido.IdoMin, ido.IdoMax
		if max == 0 {
			max = idoDefaultMax
		}
		if min == 0 {
			min = idoDefaultMin
		}
		s.idoCharge = round4(clamp(ido.IdoPerPound, min, max))
	}

	s.landedCost = round4(s.replacementCost + s.millFreight + s.idoCharge)

	s.trace.Put("replacementCost", s.replacementCost)
	s.trace.Put("millToPlantFreight", s.millFreight)
	s.trace.Put("idoCharge", s.idoCharge)
	s.trace.Put("landedCostPerPound", s.landedCost)
	return nil
}

// stageTargetMargin resolves the base margin and its weight-class
// adjustment and derives the customer base price.
func (c *Calculator) stageTargetMargin(ctx context.Context, s *state) error {
	if s.costPlus {
		s.baseMargin = s.costAdj.TargetMargin
	} else {
		margin, _, err := refdata.Get(ctx, c.lookup, refdata.TableTargetMargin,
			partition.Key(s.isrOffice, s.bellwether), refdata.DecodeTargetMargin)
		if err != nil {
			return errors.FatalWrap("target margin lookup failed", err)
		}
		s.baseMargin = margin
	}
	if s.baseMargin == 0 {
		return errors.Breakf("Target margin not found for office %s and bellwether %s", s.isrOffice, s.bellwether)
	}
	s.trace.Put("baseTargetMargin", s.baseMargin)

	tmAdj, found, err := refdata.Get(ctx, c.lookup, refdata.TableTmAdjustment,
		partition.Key(s.market, s.productName, s.form), refdata.DecodeTmAdjustment)
	if err != nil {
		return errors.FatalWrap("target margin adjustment lookup failed", err)
	}
	if !found {
		return errors.Breakf("Target margin adjustment not found for market %s, product %s, form %s",
			s.market, s.productName, s.form)
	}
	s.tmAdj = tmAdj

	class, err := c.resolveWeightClass(ctx, s.weight)
	if err != nil {
		return errors.FatalWrap("weight class lookup failed", err)
	}
	s.weightClass = class
	s.trace.Put("weightClass", class)

	s.appliedMargin = c.marginFor(s, class, marginCeiling)
	s.trace.Put("appliedMargin", s.appliedMargin)

	price, err := c.basePriceFor(s, s.appliedMargin)
	if err != nil {
		return err
	}
	s.customerPrice = price
	s.trace.Put("customerPrice", s.customerPrice)
	return nil
}

// marginFor clamps the base margin plus the weight-class adjustment.
func (c *Calculator) marginFor(s *state, class int, ceiling float64) float64 {
	adjClass := class
	if adjClass == 0 {
		adjClass = refdata.WeightBreakpoints[0]
	}
	return round4(clamp(s.baseMargin+s.tmAdj.ByClass[adjClass], marginFloor, ceiling))
}

// basePriceFor grosses the landed cost (excluding the IDO duty) up by
// the margin and adds the clamped IDO back on top.
func (c *Calculator) basePriceFor(s *state, margin float64) (float64, error) {
	divisor := 1 - margin
	if divisor <= 0 {
		return 0, errors.Fatalf("margin %v leaves no divisor for item %s", margin, s.itemNumber)
	}
	return round4((s.replacementCost+s.millFreight)/divisor + s.idoCharge), nil
}

// stageDiscountCode resolves the customer discount code.
func (c *Calculator) stageDiscountCode(ctx context.Context, s *state) error {
	if testAccounts[s.customerID] {
		s.clCode = testAccountClCode
		s.discount = 0
	} else {
		code, found, err := refdata.Get(ctx, c.lookup, refdata.TableClCode,
			partition.Key(s.customerID, s.salesOffice, s.productName, s.form), refdata.DecodeClCode)
		if err != nil {
			return errors.FatalWrap("cl code lookup failed", err)
		}
		if found {
			s.clCode = code.ClCodeValue
			s.discount = code.ClDiscount
		} else {
			s.clCode = unresolvedClCode
			if s.sapInd {
				s.discount = defaultDiscountSap
			} else {
				s.discount = defaultDiscount
			}
		}
	}
	s.trace.Put("clCode", s.clCode)
	s.trace.Put("clDiscount", s.discount)
	return nil
}

// stageCustomerPriceTable recomputes the base-price formula at every
// standard weight breakpoint for later freight and adder escalation.
func (c *Calculator) stageCustomerPriceTable(_ context.Context, s *state) error {
	s.priceByClass = make(map[int]float64, len(refdata.WeightBreakpoints))
	for _, bp := range refdata.WeightBreakpoints {
		margin := c.marginFor(s, bp, classMarginCeiling)
		price, err := c.basePriceFor(s, margin)
		if err != nil {
			return err
		}
		s.priceByClass[bp] = price
		s.trace.Put("customerPriceWeightClass"+strconv.Itoa(bp), price)
	}
	return nil
}

// stagePackaging computes the packaging/handling/stocking order cost:
// a per-ton cost table under SAP fulfillment, a skid-charge table
// otherwise.
func (c *Calculator) stagePackaging(ctx context.Context, s *state) error {
	if s.sapInd {
		pkg, found, err := refdata.Get(ctx, c.lookup, refdata.TablePackagingCost,
			s.rcMapping, refdata.DecodePackagingCost)
		if err != nil {
			return errors.FatalWrap("packaging cost lookup failed", err)
		}
		if found {
			s.packaging = &pkg
		} else if s.product != nil {
			s.packaging = &refdata.PackagingCost{
				UnitHandlingCost:    s.product.UnitHandlingCost,
				PerTonPackagingCost: s.product.PerTonPackagingCost,
				PerTonStockingCost:  s.product.PerTonStockingCost,
			}
		}

		if opCode := s.in.Str("opCode"); opCode != "" {
			op, err := c.lookup.LookupOpCode(ctx, opCode,
				s.in.Float("netWeightOfSalesItem"),
				s.in.Float("netWeightPerFinishedPiece"),
				float64(s.in.Int("bundles")))
			if err != nil {
				return errors.FatalWrap("op code lookup failed", err)
			}
			if op != nil {
				s.trace.Put("cuttingOperation", op.CuttingOperation)
				if strings.EqualFold(op.FabIndicator, "Y") && s.packaging != nil {
					s.fabHandling = s.packaging.UnitHandlingCost
				}
			}
		}
	} else if !s.waiveSkid {
		skid, found, err := refdata.Get(ctx, c.lookup, refdata.TableSouthSkidCharge,
			partition.Key(s.productName, s.form), refdata.DecodeSouthSkidCharge)
		if err != nil {
			return errors.FatalWrap("skid charge lookup failed", err)
		}
		if found {
			s.skid = &skid
		}
	}

	s.orderCost = c.orderCostFor(s, s.weight)
	s.trace.Put("orderCostPerPound", s.orderCost)
	for _, bp := range refdata.WeightBreakpoints {
		s.trace.Put("orderCostWeightClass"+strconv.Itoa(bp), c.orderCostFor(s, float64(bp)))
	}
	return nil
}

// orderCostFor evaluates the packaging order cost per pound at a given
// order weight.
func (c *Calculator) orderCostFor(s *state, weight float64) float64 {
	if s.sapInd {
		if s.packaging == nil {
			return 0
		}
		cost := (s.packaging.PerTonPackagingCost + s.packaging.PerTonStockingCost) / 2000
		if s.fabHandling > 0 {
			cost += s.fabHandling / weight
		}
		return round4(cost)
	}
	if s.skid == nil || s.skid.WeightPerSkid <= 0 {
		return 0
	}
	skids := math.Ceil(weight / s.skid.WeightPerSkid)
	return round4(skids * s.skid.SkidCharge / weight)
}

// stageFreight resolves outbound freight through three escalation
// levels: exact plant/zone record, plant/state default record, fixed
// fallback. The first level to resolve is the one used; later levels
// are never consulted.
func (c *Calculator) stageFreight(ctx context.Context, s *state) error {
	table := refdata.TableSouthFreight
	if s.sapInd {
		table = refdata.TableSapFreight
	}

	zone := s.shipToZip
	shipZone, found, err := refdata.Get(ctx, c.lookup, refdata.TableShipZone,
		partition.Key(s.customerID, s.shipPlant), refdata.DecodeShipZone)
	if err != nil {
		return errors.FatalWrap("ship zone lookup failed", err)
	}
	if found {
		zone = shipZone.Zone
	}
	s.trace.Put("freightZone", zone)

	freight, found, err := refdata.Get(ctx, c.lookup, table,
		partition.Key(s.shipPlant, zone), refdata.DecodeFreightTable)
	if err != nil {
		return errors.FatalWrap("freight lookup failed", err)
	}
	if found {
		s.freightLevel = 1
		s.freightTable = &freight
	} else {
		fd, found, err := refdata.Get(ctx, c.lookup, refdata.TableFreightDefault,
			partition.Key(s.shipPlant, s.shipToState), refdata.DecodeFreightDefault)
		if err != nil {
			return errors.FatalWrap("freight default lookup failed", err)
		}
		if found {
			s.freightLevel = 2
			s.freightDefault = &fd
		} else {
			s.freightLevel = 3
		}
	}

	s.freight = c.freightFor(s, s.weightClass, s.quotePounds)
	s.trace.Put("freightLevel", s.freightLevel)
	s.trace.Put("freightPerPound", s.freight)
	return nil
}

// freightFor evaluates the resolved freight level at a weight class
// and quote weight: max of the per-pound rate and the spread minimum.
func (c *Calculator) freightFor(s *state, class int, quotePounds float64) float64 {
	var rate, minCharge float64
	switch s.freightLevel {
	case 1:
		r, mapped := s.freightTable.ByClass[class]
		if !mapped {
			r = unmappedClassRate
		}
		rate = r
		minCharge = s.freightTable.MinimumFreightCharge
	case 2:
		rate = s.freightDefault.DefaultFreightChargePer100Pounds
		minCharge = s.freightDefault.DefaultMinimumFreightCharge
	default:
		rate = fallbackFreightRate
		minCharge = fallbackMinimumCharge
	}
	return round4(math.Max(rate/100, minCharge/quotePounds))
}

// stageSmallOrderAdder spreads the region-specific small-order fee
// over the quote weight.
func (c *Calculator) stageSmallOrderAdder(ctx context.Context, s *state) error {
	group, found, err := refdata.Get(ctx, c.lookup, refdata.TableLocationGroup,
		s.rcMapping, refdata.DecodeLocationGroup)
	if err != nil {
		return errors.FatalWrap("location group lookup failed", err)
	}
	if found {
		s.locationGroup = &group
		if s.region == "" {
			s.region = group.Region
		}
	}

	s.smallOrder = round4(smallOrderFee(s.region, s.quotePounds) / s.quotePounds)
	s.trace.Put("region", s.region)
	s.trace.Put("smallOrderAdder", s.smallOrder)
	return nil
}

// smallOrderFee returns the flat small-order fee for a region and
// quote weight.
func smallOrderFee(region string, quotePounds float64) float64 {
	switch {
	case strings.EqualFold(region, "SOUTH"):
		if quotePounds <= southSmallOrderLimit {
			return southSmallOrderFee
		}
	case strings.EqualFold(region, "NORTHEAST"):
		if quotePounds <= northeastSmallOrderLimit {
			return northeastSmallOrderFee
		}
	default:
		if quotePounds <= otherSmallOrderLimit {
			return otherSmallOrderFee
		}
	}
	return 0
}

// stagePriceAssembly builds the pre-tuning price: discounted customer
// price plus order cost, freight, labor, and the small-order adder,
// then the customer-service adders, floor clamp, and bellwether-rating
// adder.
func (c *Calculator) stagePriceAssembly(ctx context.Context, s *state) error {
	s.labor = round4(math.Max(laborFlatCharge/s.weight, laborMinPerPound))
	s.trace.Put("laborCost", s.labor)

	floor, found, err := refdata.Get(ctx, c.lookup, refdata.TableSoBwFloorPrice,
		partition.Key(s.isrOffice, s.bellwether), refdata.DecodeSoBwFloorPrice)
	if err != nil {
		return errors.FatalWrap("floor price lookup failed", err)
	}
	if found {
		s.floorPrice = floor.FloorPrice
	}
	s.trace.Put("floorPrice", s.floorPrice)

	s.bwRatingValue = defaultBwRatingValue
	rating, found, err := refdata.Get(ctx, c.lookup, refdata.TableBwRating,
		partition.Key(s.market, s.bellwether), refdata.DecodeBwRating)
	if err != nil {
		return errors.FatalWrap("bw rating lookup failed", err)
	}
	if found {
		s.bwRatingValue = rating.BwRatingValue
		s.bwAdder = rating.BwRatingAdder
	}
	s.trace.Put("bwRatingValue", s.bwRatingValue)
	s.trace.Put("bwRatingAdder", s.bwAdder)

	s.preTuning = c.assemble(s, s.customerPrice, s.weight, s.quotePounds, s.weightClass)
	s.trace.Put("preTuningPrice", s.preTuning)
	return nil
}

// assemble applies the price formula at a given weight: discounted
// customer price plus cost components, customer-service adders, floor
// clamp, and the bellwether-rating adder.
func (c *Calculator) assemble(s *state, customerPrice, weight, quotePounds float64, class int) float64 {
	labor := round4(math.Max(laborFlatCharge/weight, laborMinPerPound))
	small := round4(smallOrderFee(s.region, quotePounds) / quotePounds)

	price := round4(customerPrice * (1 + s.discount + s.dsoAdder))
	price = round4(price + c.orderCostFor(s, weight) + c.freightFor(s, class, quotePounds) + labor + small)
	price = round4(price*(1+s.percentAdder) + s.dollarAdder)
	if price < s.floorPrice {
		price = s.floorPrice
	}
	return round4(price * (1 + s.bwAdder))
}

// stageAutomatedTuning resolves the weekly tuning experiment and
// applies its magnitude. An explicit group override input replaces the
// hash-assigned group; the flag override input overwrites the record's
// active flags.
func (c *Calculator) stageAutomatedTuning(ctx context.Context, s *state) error {
	condensedForm := s.form
	if strings.EqualFold(condensedForm, "FLAT") {
		condensedForm = "FR"
	}

	locationGroup := ""
	if s.locationGroup != nil {
		locationGroup = s.locationGroup.LocationGroupValue
	}

	tuning, found, err := refdata.Get(ctx, c.lookup, refdata.TableAutomatedTuning,
		partition.Key(locationGroup, s.productName, condensedForm), refdata.DecodeAutomatedTuning)
	if err != nil {
		return errors.FatalWrap("automated tuning lookup failed", err)
	}

	if found {
		s.tuning = &tuning

		if flagOverride := s.in.Str("automatedTuningFlagOverride"); flagOverride != "" {
			tuning.PriceUpActiveFlag = flagOverride
			tuning.PriceDownActiveFlag = flagOverride
		}

		group := strings.ToUpper(s.in.Str("automatedTuningGroupOverride"))
		if group == "" {
			key := partition.Key(s.customerID, s.isrOffice, s.bellwether,
				partition.MondayOfWeek(c.now()), tuning.SaltValue)
			group = partition.TuningGroup(key, tuning.PriceUpConcentration, tuning.PriceDownConcentration)
		}
		s.tuningGroup = group

		switch group {
		case partition.GroupPriceUp:
			if tuningFlagActive(tuning.PriceUpActiveFlag) {
				s.tuningMagnitude = tuning.PriceUpMagnitude
			}
		case partition.GroupPriceDown:
			if tuningFlagActive(tuning.PriceDownActiveFlag) {
				s.tuningMagnitude = tuning.PriceDownMagnitude
			}
		}
	}

	s.price = round4(s.preTuning * (1 + s.tuningMagnitude))
	s.trace.Put("automatedTuningGroup", s.tuningGroup)
	s.trace.Put("automatedTuningMagnitude", s.tuningMagnitude)
	return nil
}

// tuningFlagActive interprets a tuning active flag.
func tuningFlagActive(flag string) bool {
	return strings.EqualFold(flag, "Y") || strings.EqualFold(flag, "TRUE")
}

// stagePriceAdjustment applies the date-windowed office/material price
// adjustment, added last.
func (c *Calculator) stagePriceAdjustment(ctx context.Context, s *state) error {
	mso, found, err := refdata.Get(ctx, c.lookup, refdata.TableMaterialSalesOffice,
		partition.Key(s.material, s.isrOffice), refdata.DecodeMaterialSalesOffice)
	if err != nil {
		return errors.FatalWrap("material sales office lookup failed", err)
	}
	if found {
		s.mso = &mso
		if adjustmentWindowOpen(mso, c.now()) {
			s.priceAdjustment = mso.PriceAdjustment
		}
	}

	s.price = round4(s.price + s.priceAdjustment)
	s.trace.Put("priceAdjustment", s.priceAdjustment)
	s.trace.Put("recommendedPricePerPound", s.price)
	return nil
}

// adjustmentWindowOpen reports whether now falls inside the record's
// effective-date window.
func adjustmentWindowOpen(mso refdata.MaterialSalesOffice, now time.Time) bool {
	const layout = "2006-01-02"
	start, err := time.Parse(layout, mso.StartEffectiveDate)
	if err != nil {
		return false
	}
	end, err := time.Parse(layout, mso.EndEffectiveDate)
	if err != nil {
		return false
	}
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return !day.Before(start) && !day.After(end)
}

// stageBreakpointPrices recomputes the full price formula at each
// standard breakpoint for reporting.
func (c *Calculator) stageBreakpointPrices(_ context.Context, s *state) error {
	s.classPrices = make(Outputs, 0, len(refdata.WeightBreakpoints))
	for _, bp := range refdata.WeightBreakpoints {
		weight := float64(bp)
		price := c.assemble(s, s.priceByClass[bp], weight, weight, bp)
		price = round4(price * (1 + s.tuningMagnitude))
		price = round4(price + s.priceAdjustment)
		name := "weightClass" + strconv.Itoa(bp)
		s.classPrices = append(s.classPrices, Output{Name: name, Value: price})
		s.trace.Put("recommendedPriceWeightClass"+strconv.Itoa(bp), price)
	}
	return nil
}

// stageMarginReport derives the reported margin figures.
func (c *Calculator) stageMarginReport(_ context.Context, s *state) error {
	s.totalCost = round4(s.landedCost + s.orderCost + s.freight + s.labor + s.smallOrder)
	s.margin = round4(s.price - s.totalCost)
	if s.price != 0 {
		s.marginPercent = round4(s.margin / s.price)
	}
	s.trace.Put("totalCostPerPound", s.totalCost)
	s.trace.Put("margin", s.margin)
	s.trace.Put("marginPercent", s.marginPercent)
	return nil
}
