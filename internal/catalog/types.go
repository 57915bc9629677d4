package catalog

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// ProductRecord is a product as the Catalog Service returns it.
type ProductRecord struct {
	ID              ID              `json:"id"`
	Name            Text            `json:"name"`
	Brand           BrandRef        `json:"brands"`
	BrandAlt        BrandRef        `json:"brand"`
	BrandName       Text            `json:"brand_name"`
	CategoryID      ID              `json:"category_id"`
	SubCategoryID   ID              `json:"sub_category_id"`
	ChildCategoryID ID              `json:"child_category_id"`
	RetailsPrice    Number          `json:"retails_price"`
	Discount        Number          `json:"discount"`
	DiscountType    Text            `json:"discount_type"`
	ImagePath       Text            `json:"image_path"`
	ImagePath1      Text            `json:"image_path1"`
	ImagePath2      Text            `json:"image_path2"`
	Images          ImageList       `json:"images"`
	Color           Text            `json:"color"`
	Variants        []VariantRecord `json:"product_variants"`
	Items           []VariantRecord `json:"items"`
	Campaigns       []CampaignRef   `json:"campaigns"`
	ReviewSummary   ReviewSummary   `json:"review_summary"`
	Description     Text            `json:"description"`
	Specifications  []Specification `json:"specifications"`
	Reviews         []Review        `json:"reviews"`
	CreatedAt       Text            `json:"created_at"`
}

// BrandLabel returns the first non-empty brand name the record carries.
func (p ProductRecord) BrandLabel() string {
	for _, candidate := range []string{p.Brand.Name, p.BrandAlt.Name, p.BrandName.String()} {
		if c := strings.TrimSpace(candidate); c != "" {
			return c
		}
	}
	return ""
}

// AllVariants returns product_variants, falling back to items.
func (p ProductRecord) AllVariants() []VariantRecord {
	if len(p.Variants) > 0 {
		return p.Variants
	}
	return p.Items
}

// BrandRef is a brand reference that may be an object or a bare name.
type BrandRef struct {
	ID   ID
	Name string
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *BrandRef) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	*b = BrandRef{}
	if len(raw) == 0 {
		return nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			b.Name = strings.TrimSpace(s)
		}
	case '{':
		var obj struct {
			ID   ID   `json:"id"`
			Name Text `json:"name"`
		}
		if err := json.Unmarshal(raw, &obj); err == nil {
			b.ID = obj.ID
			b.Name = obj.Name.String()
		}
	}
	return nil
}

// VariantRecord is one purchasable variant, usually a size.
type VariantRecord struct {
	ID           ID     `json:"id"`
	Name         Text   `json:"name"`
	Size         Text   `json:"size"`
	Color        Text   `json:"color"`
	Quantity     Number `json:"quantity"`
	Price        Number `json:"price"`
	RetailsPrice Number `json:"retails_price"`
	Discount     Number `json:"discount"`
	DiscountType Text   `json:"discount_type"`
}

// Label returns the size label of the variant.
func (v VariantRecord) Label() string {
	if s := strings.TrimSpace(v.Size.String()); s != "" {
		return s
	}
	return strings.TrimSpace(v.Name.String())
}

// CampaignRef is a campaign attached to a product record.
type CampaignRef struct {
	ID           ID     `json:"id"`
	Name         Text   `json:"name"`
	Discount     Number `json:"discount"`
	DiscountType Text   `json:"discount_type"`
	Status       Text   `json:"status"`
	StartAt      Text   `json:"start_at"`
	StartDate    Text   `json:"start_date"`
	EndAt        Text   `json:"end_at"`
	EndDate      Text   `json:"end_date"`
}

// Window returns the parsed start and end of the campaign; zero when absent.
func (c CampaignRef) Window() (time.Time, time.Time) {
	start := ParseTime(c.StartAt.String())
	if start.IsZero() {
		start = ParseTime(c.StartDate.String())
	}
	end := ParseTime(c.EndAt.String())
	if end.IsZero() {
		end = ParseTime(c.EndDate.String())
	}
	return start, end
}

// ReviewSummary aggregates product reviews.
type ReviewSummary struct {
	AverageRating Number `json:"average_rating"`
	TotalReviews  Number `json:"total_reviews"`
}

// Specification is a labelled product attribute.
type Specification struct {
	Name        Text `json:"name"`
	Description Text `json:"description"`
}

// Review is one customer review on the detail endpoint.
type Review struct {
	ID        ID     `json:"id"`
	Name      Text   `json:"name"`
	Rating    Number `json:"rating"`
	Comment   Text   `json:"comment"`
	CreatedAt Text   `json:"created_at"`
}

// ImageList accepts an array of URLs or of objects carrying one.
type ImageList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *ImageList) UnmarshalJSON(raw []byte) error {
	*l = nil
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 {
			continue
		}
		if item[0] == '"' {
			var s string
			if err := json.Unmarshal(item, &s); err == nil {
				*l = append(*l, s)
			}
			continue
		}
		var obj struct {
			Image Text `json:"image"`
			URL   Text `json:"url"`
			Path  Text `json:"path"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			continue
		}
		for _, candidate := range []Text{obj.Image, obj.URL, obj.Path} {
			if candidate != "" {
				*l = append(*l, candidate.String())
				break
			}
		}
	}
	return nil
}

// Category is a node of the category tree: category, subcategory or child.
type Category struct {
	ID           ID
	Name         string
	BannerImage  string
	ProductCount int
	Children     []Category
}

// UnmarshalJSON accepts the naming variants used at each tree level.
func (c *Category) UnmarshalJSON(raw []byte) error {
	var obj struct {
		ID              ID         `json:"id"`
		Name            Text       `json:"name"`
		Image           Text       `json:"image_url"`
		Banner          Text       `json:"banner_image"`
		ProductCount    Number     `json:"product_count"`
		SubCategories   []Category `json:"sub_category"`
		SubCategories2  []Category `json:"subcategories"`
		ChildCategories []Category `json:"child_categories"`
		Childs          []Category `json:"childs"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return err
	}
	*c = Category{
		ID:           obj.ID,
		Name:         obj.Name.String(),
		BannerImage:  firstNonEmpty(obj.Banner.String(), obj.Image.String()),
		ProductCount: obj.ProductCount.Int(),
	}
	for _, group := range [][]Category{obj.SubCategories, obj.SubCategories2, obj.ChildCategories, obj.Childs} {
		if len(group) > 0 {
			c.Children = group
			break
		}
	}
	return nil
}

// Find returns the node with id anywhere in the tree.
func Find(tree []Category, id ID) (Category, bool) {
	for _, c := range tree {
		if c.ID == id {
			return c, true
		}
		if found, ok := Find(c.Children, id); ok {
			return found, true
		}
	}
	return Category{}, false
}

// Brand is an entry of the brand list.
type Brand struct {
	ID    ID   `json:"id"`
	Name  Text `json:"name"`
	Image Text `json:"image_path"`
}

// Campaign is an entry of the campaign list.
type Campaign struct {
	CampaignRef
	Banner      Text `json:"banner_image"`
	Description Text `json:"description"`
}

// Page is one fetched page of product records.
type Page struct {
	Records []ProductRecord
	// LastPage is the server-supplied last page; 0 when the endpoint does not paginate.
	LastPage int
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
