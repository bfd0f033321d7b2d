package money

import (
	"sort"

	"github.com/bizmanager/ledgersync/pkg/enums"
	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// Amount derives a line item's amount from its unit price and quantity.
// Negative inputs normalize to zero before multiplication, and the product is
// ceiled to a whole number of currency units so tax is never under-collected.
func Amount(price, quantity decimal.Decimal) int64 {
	if price.IsNegative() {
		price = decimal.Zero
	}
	if quantity.IsNegative() {
		quantity = decimal.Zero
	}
	return price.Mul(quantity).Ceil().IntPart()
}

// InclusiveTax extracts the tax embedded in a tax-included subtotal:
// ceiling(subtotal * r/100 / (1 + r/100)).
func InclusiveTax(subtotal int64, rate decimal.Decimal) int64 {
	if rate.IsNegative() || subtotal <= 0 {
		return 0
	}
	fraction := rate.Div(oneHundred)
	return decimal.NewFromInt(subtotal).
		Mul(fraction).
		Div(decimal.NewFromInt(1).Add(fraction)).
		Ceil().
		IntPart()
}

// ExclusiveTax computes the tax owed on a single tax-exclusive amount:
// ceiling(amount * r/100).
func ExclusiveTax(amount int64, rate decimal.Decimal) int64 {
	if rate.IsNegative() || amount <= 0 {
		return 0
	}
	return decimal.NewFromInt(amount).
		Mul(rate).
		Div(oneHundred).
		Ceil().
		IntPart()
}

// Line is the tax-relevant projection of one ledger row. A nil Rate means no
// tax applies: the amount still counts toward the subtotal but joins no bucket.
type Line struct {
	Amount int64
	Rate   *decimal.Decimal
}

// TaxBucket aggregates the lines sharing one tax rate.
type TaxBucket struct {
	Rate     decimal.Decimal
	Subtotal int64
	Tax      int64
}

// Aggregates is the derived view of a ledger. It is a pure function of the
// input lines and recomputing it is idempotent.
type Aggregates struct {
	Subtotal     int64
	Buckets      []TaxBucket
	TaxTotal     int64
	TotalWithTax int64
}

// Compute aggregates the lines of one ledger. Cost ledgers always apply the
// inclusive formula regardless of the display mode. Inclusive tax is extracted
// once per rate bucket; exclusive tax is ceiled per line and summed, matching
// the differing rounding granularity of the two modes.
func Compute(lines []Line, kind enums.LedgerKind, mode enums.TaxMode) Aggregates {
	if kind == enums.LedgerKindCost {
		mode = enums.TaxModeInclusive
	}

	agg := Aggregates{}
	var buckets []TaxBucket

	for _, line := range lines {
		agg.Subtotal += line.Amount
		if line.Rate == nil {
			continue
		}
		idx := -1
		for i := range buckets {
			if buckets[i].Rate.Equal(*line.Rate) {
				idx = i
				break
			}
		}
		if idx < 0 {
			buckets = append(buckets, TaxBucket{Rate: *line.Rate})
			idx = len(buckets) - 1
		}
		buckets[idx].Subtotal += line.Amount
		if mode == enums.TaxModeExclusive {
			buckets[idx].Tax += ExclusiveTax(line.Amount, *line.Rate)
		}
	}

	for i := range buckets {
		if mode == enums.TaxModeInclusive {
			buckets[i].Tax = InclusiveTax(buckets[i].Subtotal, buckets[i].Rate)
		}
		agg.TaxTotal += buckets[i].Tax
	}

	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Rate.LessThan(buckets[j].Rate)
	})
	agg.Buckets = buckets

	switch {
	case kind == enums.LedgerKindCost:
		// Profit is computed against the full tax-bearing cost.
		agg.TotalWithTax = agg.Subtotal + agg.TaxTotal
	case mode == enums.TaxModeExclusive:
		agg.TotalWithTax = agg.Subtotal + agg.TaxTotal
	default:
		agg.TotalWithTax = agg.Subtotal
	}
	return agg
}

// Profit is the invoice ledger's total less the cost ledger's total.
func Profit(invoice, cost Aggregates) int64 {
	return invoice.TotalWithTax - cost.TotalWithTax
}
