// Package pricing resolves the selling price, MRP and discount label of a
// catalog product. Resolution is a pure function of its input.
package pricing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"brandempire.shop/storefront/internal/format"
)

// DiscountType distinguishes percentage discounts from flat amounts.
type DiscountType string

const (
	Percentage DiscountType = "percentage"
	Amount     DiscountType = "amount"
)

// ParseDiscountType maps the upstream discount_type field. Anything that is
// not recognisably a flat amount is treated as a percentage.
func ParseDiscountType(raw string) DiscountType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "amount", "fixed", "flat", "taka", "tk":
		return Amount
	default:
		return Percentage
	}
}

// Discount is a discount value together with how to apply it.
type Discount struct {
	Value float64
	Type  DiscountType
}

// Active reports whether the discount changes the price at all.
func (d Discount) Active() bool { return d.Value > 0 }

// Campaign is a promotional override attached to a product.
type Campaign struct {
	ID       string
	Name     string
	Discount Discount
	Status   string
	StartsAt time.Time
	EndsAt   time.Time
}

// ActiveAt reports whether the campaign applies at now.
func (c Campaign) ActiveAt(now time.Time) bool {
	if !c.Discount.Active() {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(c.Status)) {
	case "inactive", "expired", "disabled", "0":
		return false
	}
	if !now.IsZero() {
		if !c.StartsAt.IsZero() && now.Before(c.StartsAt) {
			return false
		}
		if !c.EndsAt.IsZero() && now.After(c.EndsAt) {
			return false
		}
	}
	return true
}

// Variant carries the price overrides of the selected variant.
type Variant struct {
	Price    float64
	MRP      float64
	Discount *Discount
}

// Input is everything the resolver looks at.
type Input struct {
	MRP       float64
	Discount  Discount
	Variant   *Variant
	Campaigns []Campaign
	Now       time.Time
}

// Source names the rule that produced a quote.
type Source string

const (
	SourceCampaign Source = "campaign"
	SourceVariant  Source = "variant"
	SourceBase     Source = "base"
)

// Quote is the resolved price of one product.
type Quote struct {
	Price           int64
	MRP             int64
	Label           string
	Discount        Discount
	DiscountPercent float64
	Source          Source
	CampaignID      string
}

// Resolver turns an Input into a Quote.
type Resolver struct {
	// Symbol prefixes flat-amount labels.
	Symbol string
}

// NewResolver returns a Resolver labelling amounts with symbol.
func NewResolver(symbol string) Resolver {
	if symbol == "" {
		symbol = format.DefaultSymbol
	}
	return Resolver{Symbol: symbol}
}

var hundred = decimal.NewFromInt(100)

// Resolve applies, in order: an active campaign's discount, a variant price
// above zero, then the record's own MRP and discount. The result is never
// negative; an MRP of zero resolves to a zero price without error.
func (r Resolver) Resolve(in Input) Quote {
	base := in.MRP
	mrp := in.MRP
	discount := in.Discount
	source := SourceBase

	if v := in.Variant; v != nil && v.Price > 0 {
		base = v.Price
		mrp = v.Price
		if v.MRP > 0 {
			mrp = v.MRP
		}
		if v.Discount != nil && v.Discount.Value > 0 {
			discount = *v.Discount
		}
		source = SourceVariant
	}

	campaignID := ""
	if c, ok := activeCampaign(in.Campaigns, in.Now); ok {
		discount = c.Discount
		source = SourceCampaign
		campaignID = c.ID
	}

	if base < 0 {
		base = 0
	}
	if mrp < 0 {
		mrp = 0
	}
	if discount.Type == "" {
		discount.Type = Percentage
	}

	return Quote{
		Price:           applyDiscount(base, discount),
		MRP:             decimal.NewFromFloat(mrp).Round(0).IntPart(),
		Label:           r.Label(discount),
		Discount:        discount,
		DiscountPercent: percentEquivalent(base, discount),
		Source:          source,
		CampaignID:      campaignID,
	}
}

// Label renders "25% OFF" or "৳150 OFF"; empty when there is no discount.
func (r Resolver) Label(d Discount) string {
	if !d.Active() {
		return ""
	}
	if d.Type == Amount {
		symbol := r.Symbol
		if symbol == "" {
			symbol = format.DefaultSymbol
		}
		return format.CurrencyNumber(d.Value, symbol) + " OFF"
	}
	return format.Number(d.Value) + "% OFF"
}

func activeCampaign(campaigns []Campaign, now time.Time) (Campaign, bool) {
	for _, c := range campaigns {
		if c.ActiveAt(now) {
			return c, true
		}
	}
	return Campaign{}, false
}

func applyDiscount(base float64, d Discount) int64 {
	price := decimal.NewFromFloat(base)
	if d.Active() {
		value := decimal.NewFromFloat(d.Value)
		if d.Type == Amount {
			price = price.Sub(value)
		} else {
			price = price.Mul(hundred.Sub(value)).Div(hundred)
		}
	}
	final := price.Round(0).IntPart()
	if final < 0 {
		return 0
	}
	return final
}

func percentEquivalent(base float64, d Discount) float64 {
	if !d.Active() {
		return 0
	}
	if d.Type != Amount {
		return d.Value
	}
	if base <= 0 {
		return 0
	}
	pct, _ := decimal.NewFromFloat(d.Value).Div(decimal.NewFromFloat(base)).Mul(hundred).Round(2).Float64()
	return pct
}
