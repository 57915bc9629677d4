package order

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"brandempire.shop/storefront/internal/cart"
	"brandempire.shop/storefront/internal/delivery"
	"brandempire.shop/storefront/internal/observability"
)

// PaymentCashOnDelivery is the default payment mode.
const PaymentCashOnDelivery = "cod"

var paymentModes = map[string]struct{}{
	PaymentCashOnDelivery: {},
	"online":              {},
}

var bdMobile = regexp.MustCompile(`^(?:\+?88)?01[3-9]\d{8}$`)

var errPlacerRequired = errors.New("order: placer is required")

// ValidationError lists per-field problems with a checkout form.
type ValidationError struct {
	fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.fields))
	for k := range e.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.fields[k])
	}
	return "order: invalid checkout: " + strings.Join(parts, "; ")
}

// Fields returns a copy of the field messages.
func (e *ValidationError) Fields() map[string]string {
	out := make(map[string]string, len(e.fields))
	for k, v := range e.fields {
		out[k] = v
	}
	return out
}

// Form is what the buyer enters at checkout.
type Form struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	Address     string `json:"address"`
	District    string `json:"district"`
	City        string `json:"city"`
	Note        string `json:"note"`
	PaymentMode string `json:"paymentMode"`
}

// Normalize trims every field, strips phone separators and defaults the
// payment mode.
func (f Form) Normalize() Form {
	f.Name = strings.TrimSpace(f.Name)
	f.Phone = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(f.Phone))
	f.Email = strings.TrimSpace(f.Email)
	f.Address = strings.TrimSpace(f.Address)
	f.District = strings.TrimSpace(f.District)
	f.City = strings.TrimSpace(f.City)
	f.Note = strings.TrimSpace(f.Note)
	f.PaymentMode = strings.ToLower(strings.TrimSpace(f.PaymentMode))
	if f.PaymentMode == "" {
		f.PaymentMode = PaymentCashOnDelivery
	}
	return f
}

// Validate checks a normalised form against the cart lines. It returns a
// *ValidationError or nil.
func (f Form) Validate(items []cart.Item) error {
	fields := map[string]string{}
	if f.Name == "" {
		fields["name"] = "Please enter your name"
	}
	if f.Phone == "" {
		fields["phone"] = "Please enter your mobile number"
	} else if !bdMobile.MatchString(f.Phone) {
		fields["phone"] = "Please enter a valid Bangladeshi mobile number"
	}
	if f.Email != "" {
		if _, err := mail.ParseAddress(f.Email); err != nil {
			fields["email"] = "Please enter a valid email address"
		}
	}
	if f.Address == "" {
		fields["address"] = "Please enter your address"
	}
	if f.District == "" {
		fields["district"] = "Please select a district"
	}
	if f.City == "" {
		fields["city"] = "Please select a city"
	}
	if _, ok := paymentModes[f.PaymentMode]; !ok {
		fields["paymentMode"] = "Unsupported payment mode"
	}
	if len(items) == 0 {
		fields["cart"] = "Your cart is empty"
	}
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{fields: fields}
}

// Placer submits orders.
type Placer interface {
	PlaceOrder(ctx context.Context, req Request) (Confirmation, error)
}

// CheckoutDeps wires the checkout service.
type CheckoutDeps struct {
	Placer      Placer
	Fees        delivery.Calculator
	Logger      *zap.Logger
	IDGenerator func() string
}

// Checkout turns a cart and a form into a placed order.
type Checkout struct {
	placer Placer
	fees   delivery.Calculator
	logger *zap.Logger
	newKey func() string
}

// NewCheckout validates deps. A zero Fees calculator selects the built-in rules.
func NewCheckout(deps CheckoutDeps) (*Checkout, error) {
	if deps.Placer == nil {
		return nil, errPlacerRequired
	}
	fees := deps.Fees
	if len(fees.Rules) == 0 && fees.DefaultFee == 0 {
		fees = delivery.DefaultCalculator()
	}
	return &Checkout{
		placer: deps.Placer,
		fees:   fees,
		logger: observability.OrNop(deps.Logger),
		newKey: deps.IDGenerator,
	}, nil
}

// QuoteDelivery computes the fee of a selection and applies it to store, so
// the cart total always reflects the latest selection.
func (c *Checkout) QuoteDelivery(store *cart.Store, city, district string) delivery.Quote {
	quote := c.fees.Quote(city, district)
	store.SetDeliveryFee(quote.Fee)
	return quote
}

// Receipt describes a placed order.
type Receipt struct {
	InvoiceID   string      `json:"invoiceId"`
	Items       []cart.Item `json:"items"`
	Subtotal    int64       `json:"subtotal"`
	DeliveryFee int64       `json:"deliveryFee"`
	Total       int64       `json:"total"`
	PaymentMode string      `json:"paymentMode"`
}

// Submit validates form, recomputes the delivery fee, places the order and
// takes the ordered lines out of the cart. Invalid input returns a *ValidationError before any
// network call.
func (c *Checkout) Submit(ctx context.Context, store *cart.Store, form Form) (Receipt, error) {
	form = form.Normalize()
	if err := form.Validate(store.Items()); err != nil {
		return Receipt{}, err
	}

	c.QuoteDelivery(store, form.City, form.District)
	snap := store.Snapshot()

	req := Request{
		Customer:    Customer{Name: form.Name, Phone: form.Phone, Email: form.Email},
		Address:     Address{Address: form.Address, District: form.District, City: form.City},
		DeliveryFee: snap.DeliveryFee,
		Subtotal:    snap.Subtotal,
		Total:       snap.Total,
		PaymentMode: form.PaymentMode,
		Note:        form.Note,
	}
	if c.newKey != nil {
		req.IdempotencyKey = c.newKey()
	}
	for _, item := range snap.Items {
		req.Items = append(req.Items, Line{
			ProductID: item.ID,
			Quantity:  item.Quantity,
			Price:     item.Price,
			Size:      string(item.SelectedSize),
			Color:     string(item.SelectedColor),
		})
	}

	conf, err := c.placer.PlaceOrder(ctx, req)
	if err != nil {
		return Receipt{}, fmt.Errorf("order: place: %w", err)
	}

	if err := store.Settle(ctx, snap.Items); err != nil {
		// the order exists; a stale cart is preferable to reporting failure
		c.logger.Error("settle cart after order", zap.String("invoice", conf.InvoiceID), zap.Error(err))
	}
	c.logger.Info("order placed",
		zap.String("invoice", conf.InvoiceID),
		zap.Int("lines", len(snap.Items)),
		zap.Int64("total", snap.Total),
	)
	return Receipt{
		InvoiceID:   conf.InvoiceID,
		Items:       snap.Items,
		Subtotal:    snap.Subtotal,
		DeliveryFee: snap.DeliveryFee,
		Total:       snap.Total,
		PaymentMode: form.PaymentMode,
	}, nil
}
