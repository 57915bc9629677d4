// Package product maps raw catalog records onto the single priced view every
// listing and detail page renders.
package product

import (
	"html"
	"strings"
	"time"

	"brandempire.shop/storefront/internal/catalog"
	"brandempire.shop/storefront/internal/pricing"
)

// View is the normalised, price-resolved representation of a product.
type View struct {
	ID               string    `json:"id"`
	Brand            string    `json:"brand"`
	Name             string    `json:"name"`
	Price            int64     `json:"price"`
	MRP              int64     `json:"mrp"`
	DiscountLabel    string    `json:"discountLabel,omitempty"`
	Images           []string  `json:"images"`
	Sizes            []string  `json:"sizes"`
	UnavailableSizes []string  `json:"unavailableSizes"`
	Color            string    `json:"color,omitempty"`
	Rating           float64   `json:"rating"`
	ReviewCount      int       `json:"reviewCount"`
	RawPrice         float64   `json:"-"`
	RawDiscount      float64   `json:"-"`
	CategoryID       string    `json:"categoryId,omitempty"`
	SubCategoryID    string    `json:"subCategoryId,omitempty"`
	ChildCategoryID  string    `json:"childCategoryId,omitempty"`
	Variants         []Variant `json:"variants,omitempty"`
	CampaignID       string    `json:"campaignId,omitempty"`
	CreatedAt        time.Time `json:"-"`
}

// Variant is the stock snapshot of one size.
type Variant struct {
	Size  string  `json:"size"`
	Stock int     `json:"stock"`
	Price float64 `json:"price,omitempty"`
}

// HasSize reports whether size is one of the product's size labels.
func (v View) HasSize(size string) bool {
	for _, s := range v.Sizes {
		if strings.EqualFold(s, size) {
			return true
		}
	}
	return false
}

// SizeLabel returns the product's own spelling of size, matched without
// regard to case.
func (v View) SizeLabel(size string) (string, bool) {
	for _, s := range v.Sizes {
		if strings.EqualFold(s, size) {
			return s, true
		}
	}
	for _, variant := range v.Variants {
		if strings.EqualFold(variant.Size, size) {
			return variant.Size, true
		}
	}
	return "", false
}

// Stock returns the stock of size, or the total stock when size is empty.
// The second result is false when no stock information exists.
func (v View) Stock(size string) (int, bool) {
	if len(v.Variants) == 0 {
		return 0, false
	}
	total := 0
	for _, variant := range v.Variants {
		if size == "" {
			total += variant.Stock
			continue
		}
		if strings.EqualFold(variant.Size, size) {
			return variant.Stock, true
		}
	}
	if size != "" {
		return 0, false
	}
	return total, true
}

// FirstImage returns the lead image or "".
func (v View) FirstImage() string {
	if len(v.Images) == 0 {
		return ""
	}
	return v.Images[0]
}

// Options controls normalisation.
type Options struct {
	Resolver     pricing.Resolver
	ImageBaseURL string
	Now          time.Time
	// SelectedSize picks the variant whose price overrides the record price.
	SelectedSize string
}

// Normalize maps a record onto a View. It is total: every record, however
// sparse, yields a view with non-negative prices.
func Normalize(rec catalog.ProductRecord, opts Options) View {
	variants := rec.AllVariants()
	quote := opts.Resolver.Resolve(priceInput(rec, variants, opts))

	view := View{
		ID:              rec.ID.String(),
		Brand:           rec.BrandLabel(),
		Name:            strings.TrimSpace(rec.Name.String()),
		Price:           quote.Price,
		MRP:             quote.MRP,
		DiscountLabel:   quote.Label,
		Images:          images(rec, opts.ImageBaseURL),
		Color:           strings.TrimSpace(rec.Color.String()),
		Rating:          rec.ReviewSummary.AverageRating.Float(),
		ReviewCount:     rec.ReviewSummary.TotalReviews.Int(),
		RawPrice:        float64(quote.Price),
		RawDiscount:     quote.DiscountPercent,
		CategoryID:      rec.CategoryID.String(),
		SubCategoryID:   rec.SubCategoryID.String(),
		ChildCategoryID: rec.ChildCategoryID.String(),
		CampaignID:      quote.CampaignID,
		CreatedAt:       catalog.ParseTime(rec.CreatedAt.String()),
		Sizes:           []string{},
	}

	seen := make(map[string]struct{}, len(variants))
	for _, variant := range variants {
		label := variant.Label()
		if label == "" {
			continue
		}
		key := strings.ToLower(label)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		stock := variant.Quantity.Int()
		if stock < 0 {
			stock = 0
		}
		view.Sizes = append(view.Sizes, label)
		view.Variants = append(view.Variants, Variant{Size: label, Stock: stock, Price: variant.Price.Float()})
		if stock == 0 {
			view.UnavailableSizes = append(view.UnavailableSizes, label)
		}
		if view.Color == "" {
			view.Color = strings.TrimSpace(variant.Color.String())
		}
	}
	if view.UnavailableSizes == nil {
		view.UnavailableSizes = []string{}
	}
	return view
}

// NormalizeAll maps every record, preserving order.
func NormalizeAll(records []catalog.ProductRecord, opts Options) []View {
	out := make([]View, 0, len(records))
	for _, rec := range records {
		out = append(out, Normalize(rec, opts))
	}
	return out
}

func priceInput(rec catalog.ProductRecord, variants []catalog.VariantRecord, opts Options) pricing.Input {
	in := pricing.Input{
		MRP: rec.RetailsPrice.Float(),
		Discount: pricing.Discount{
			Value: rec.Discount.Float(),
			Type:  pricing.ParseDiscountType(rec.DiscountType.String()),
		},
		Now: opts.Now,
	}
	if opts.SelectedSize != "" {
		for _, variant := range variants {
			if !strings.EqualFold(variant.Label(), strings.TrimSpace(opts.SelectedSize)) {
				continue
			}
			v := &pricing.Variant{Price: variant.Price.Float(), MRP: variant.RetailsPrice.Float()}
			if variant.Discount > 0 {
				v.Discount = &pricing.Discount{
					Value: variant.Discount.Float(),
					Type:  pricing.ParseDiscountType(variant.DiscountType.String()),
				}
			}
			in.Variant = v
			break
		}
	}
	for _, ref := range rec.Campaigns {
		start, end := ref.Window()
		in.Campaigns = append(in.Campaigns, pricing.Campaign{
			ID:   ref.ID.String(),
			Name: ref.Name.String(),
			Discount: pricing.Discount{
				Value: ref.Discount.Float(),
				Type:  pricing.ParseDiscountType(ref.DiscountType.String()),
			},
			Status:   ref.Status.String(),
			StartsAt: start,
			EndsAt:   end,
		})
	}
	return in
}

func images(rec catalog.ProductRecord, base string) []string {
	out := []string{}
	seen := map[string]struct{}{}
	candidates := []string{rec.ImagePath.String(), rec.ImagePath1.String(), rec.ImagePath2.String()}
	candidates = append(candidates, rec.Images...)
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		resolved := imageURL(base, candidate)
		if _, dup := seen[resolved]; dup {
			continue
		}
		seen[resolved] = struct{}{}
		out = append(out, resolved)
	}
	return out
}

func imageURL(base, path string) string {
	lower := strings.ToLower(path)
	if base == "" || strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(path, "//") {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// Detail is a View plus the content shown only on the product page.
type Detail struct {
	View
	Description    string          `json:"descriptionHtml"`
	Specifications []Specification `json:"specifications"`
	Reviews        []Review        `json:"reviews"`
}

// Specification is a labelled attribute row.
type Specification struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Review is one customer review.
type Review struct {
	Name      string    `json:"name"`
	Rating    float64   `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}

// RenderFunc turns stored description text into safe HTML.
type RenderFunc func(string) string

// NewDetail normalises a detail record. render is applied to the description
// and to every specification value; nil escapes them as plain text.
func NewDetail(rec catalog.ProductRecord, opts Options, render RenderFunc) Detail {
	if render == nil {
		render = html.EscapeString
	}
	d := Detail{
		View:           Normalize(rec, opts),
		Specifications: []Specification{},
		Reviews:        []Review{},
	}
	if desc := strings.TrimSpace(rec.Description.String()); desc != "" {
		d.Description = render(desc)
	}
	for _, spec := range rec.Specifications {
		name := strings.TrimSpace(spec.Name.String())
		if name == "" {
			continue
		}
		d.Specifications = append(d.Specifications, Specification{Name: name, Value: render(spec.Description.String())})
	}
	for _, r := range rec.Reviews {
		d.Reviews = append(d.Reviews, Review{
			Name:      strings.TrimSpace(r.Name.String()),
			Rating:    r.Rating.Float(),
			Comment:   strings.TrimSpace(r.Comment.String()),
			CreatedAt: catalog.ParseTime(r.CreatedAt.String()),
		})
	}
	return d
}
