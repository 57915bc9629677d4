// Package cart holds the line items a browser profile has selected. Every
// mutation is written through to durable storage before it becomes visible.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"brandempire.shop/storefront/internal/localstore"
	"brandempire.shop/storefront/internal/observability"
	"brandempire.shop/storefront/internal/product"
)

// StorageKey is the key the serialized item list is stored under.
const StorageKey = "cart"

var (
	// ErrInvalidQuantity is returned when adding fewer than one unit.
	ErrInvalidQuantity = errors.New("cart: quantity must be at least 1")
	// ErrOutOfStock is returned when the selected size has no stock.
	ErrOutOfStock = errors.New("cart: out of stock")
	// ErrItemNotFound is returned when no line matches the identity key.
	ErrItemNotFound = errors.New("cart: item not found")
	// ErrPersist wraps storage failures; the cart is left unchanged.
	ErrPersist = errors.New("cart: persist failed")
	// ErrRetired is returned by mutations on a store that was retired.
	ErrRetired = errors.New("cart: store retired")

	errBackendRequired = errors.New("cart: storage backend is required")
)

// Option is an optional selection that serializes as null when unset.
type Option string

// MarshalJSON implements json.Marshaler.
func (o Option) MarshalJSON() ([]byte, error) {
	if o == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(o))
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Option) UnmarshalJSON(b []byte) error {
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*o = ""
	if s != nil {
		*o = Option(strings.TrimSpace(*s))
	}
	return nil
}

// Item is one line of the cart. Price is a snapshot taken when the line was
// first added.
type Item struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Price         int64  `json:"price"`
	OriginalPrice int64  `json:"originalPrice,omitempty"`
	Image         string `json:"image,omitempty"`
	Quantity      int    `json:"quantity"`
	// MaxStock is the stock snapshot; 0 means unknown and unbounded.
	MaxStock      int    `json:"maxStock,omitempty"`
	SelectedSize  Option `json:"selectedSize"`
	SelectedColor Option `json:"selectedColor"`
	Brand         string `json:"brand,omitempty"`
}

// Key identifies a line.
type Key struct {
	ID    string
	Size  string
	Color string
}

// Matches compares keys; size and color ignore case.
func (k Key) Matches(other Key) bool {
	return k.ID == other.ID && strings.EqualFold(k.Size, other.Size) && strings.EqualFold(k.Color, other.Color)
}

// Key returns the identity key of the line.
func (i Item) Key() Key {
	return Key{ID: i.ID, Size: string(i.SelectedSize), Color: string(i.SelectedColor)}
}

// LineTotal is price times quantity.
func (i Item) LineTotal() int64 { return i.Price * int64(i.Quantity) }

func (i Item) clamp(quantity int) int {
	if i.MaxStock > 0 && quantity > i.MaxStock {
		return i.MaxStock
	}
	return quantity
}

// NewKey normalises an identity key; blank size or color means not selected.
func NewKey(id, size, color string) Key {
	return Key{ID: strings.TrimSpace(id), Size: strings.TrimSpace(size), Color: strings.TrimSpace(color)}
}

// FromView snapshots a product view into a line for the given selection.
func FromView(v product.View, quantity int, size, color string) (Item, error) {
	size, color = strings.TrimSpace(size), strings.TrimSpace(color)
	if label, ok := v.SizeLabel(size); ok {
		size = label
	}
	item := Item{
		ID:            v.ID,
		Name:          v.Name,
		Price:         v.Price,
		Image:         v.FirstImage(),
		Quantity:      quantity,
		SelectedSize:  Option(size),
		SelectedColor: Option(color),
		Brand:         v.Brand,
	}
	if v.MRP > v.Price {
		item.OriginalPrice = v.MRP
	}
	if stock, known := v.Stock(size); known {
		if stock <= 0 {
			return Item{}, ErrOutOfStock
		}
		item.MaxStock = stock
	}
	return item, nil
}

// Store is the cart of one profile.
type Store struct {
	backend   localstore.Store
	namespace string
	logger    *zap.Logger

	mu          sync.Mutex
	items       []Item
	deliveryFee int64
	open        bool
	retired     bool
}

// Open hydrates the cart of namespace from backend. An unreadable persisted
// value is logged and replaced by an empty cart.
func Open(ctx context.Context, backend localstore.Store, namespace string, logger *zap.Logger) (*Store, error) {
	if backend == nil {
		return nil, errBackendRequired
	}
	s := &Store{
		backend:   backend,
		namespace: namespace,
		logger:    observability.OrNop(logger),
		items:     []Item{},
	}
	raw, ok, err := backend.Get(ctx, namespace, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("cart: load: %w", err)
	}
	if !ok || len(raw) == 0 {
		return s, nil
	}
	var items []Item
	if err := json.Unmarshal(raw, &items); err != nil {
		s.logger.Warn("discarding unreadable cart", zap.String("profile", namespace), zap.Error(err))
		return s, nil
	}
	for _, item := range items {
		if item.ID == "" || item.Quantity < 1 {
			continue
		}
		s.items = append(s.items, item)
	}
	return s, nil
}

// Add merges item into the cart: a line with the same key gains item.Quantity
// units, otherwise item is appended. Quantities are clamped to the stock
// snapshot. The resulting line is returned.
func (s *Store) Add(ctx context.Context, item Item) (Item, error) {
	if item.Quantity < 1 {
		return Item{}, ErrInvalidQuantity
	}
	item.ID = strings.TrimSpace(item.ID)
	item.SelectedSize = Option(strings.TrimSpace(string(item.SelectedSize)))
	item.SelectedColor = Option(strings.TrimSpace(string(item.SelectedColor)))
	var result Item
	err := s.mutate(ctx, func(items []Item) ([]Item, error) {
		if idx := indexOf(items, item.Key()); idx >= 0 {
			line := items[idx]
			line.Quantity = line.clamp(line.Quantity + item.Quantity)
			items[idx] = line
			result = line
			return items, nil
		}
		item.Quantity = item.clamp(item.Quantity)
		result = item
		return append(items, item), nil
	})
	return result, err
}

// AddProduct snapshots v and adds it.
func (s *Store) AddProduct(ctx context.Context, v product.View, quantity int, size, color string) (Item, error) {
	if quantity < 1 {
		return Item{}, ErrInvalidQuantity
	}
	item, err := FromView(v, quantity, size, color)
	if err != nil {
		return Item{}, err
	}
	return s.Add(ctx, item)
}

// UpdateQuantity sets the quantity of a line. Zero or less removes it; larger
// values are clamped to the stock snapshot.
func (s *Store) UpdateQuantity(ctx context.Context, key Key, quantity int) error {
	if quantity <= 0 {
		return s.Remove(ctx, key)
	}
	return s.mutate(ctx, func(items []Item) ([]Item, error) {
		idx := indexOf(items, key)
		if idx < 0 {
			return nil, ErrItemNotFound
		}
		items[idx].Quantity = items[idx].clamp(quantity)
		return items, nil
	})
}

// Remove deletes the matching line; removing a missing line is a no-op.
func (s *Store) Remove(ctx context.Context, key Key) error {
	return s.mutate(ctx, func(items []Item) ([]Item, error) {
		return slices.DeleteFunc(items, func(item Item) bool { return item.Key().Matches(key) }), nil
	})
}

// Retire makes every later mutation fail with ErrRetired. A store is retired
// once another instance may own the same persisted cart.
func (s *Store) Retire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retired = true
}

// Clear empties the cart and deletes the persisted copy.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retired {
		return ErrRetired
	}
	if err := s.backend.Delete(ctx, s.namespace, StorageKey); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	s.items = []Item{}
	s.deliveryFee = 0
	return nil
}

// Settle takes the ordered units out of the cart. Lines added or topped up
// after the order was taken stay; an emptied cart is deleted as by Clear.
func (s *Store) Settle(ctx context.Context, ordered []Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retired {
		return ErrRetired
	}
	next := slices.Clone(s.items)
	for _, o := range ordered {
		if idx := indexOf(next, o.Key()); idx >= 0 {
			next[idx].Quantity -= o.Quantity
		}
	}
	next = slices.DeleteFunc(next, func(item Item) bool { return item.Quantity <= 0 })
	if len(next) > 0 {
		return s.persist(ctx, next)
	}
	if err := s.backend.Delete(ctx, s.namespace, StorageKey); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	s.items = []Item{}
	s.deliveryFee = 0
	return nil
}

// Items returns a copy of the lines in insertion order.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

// Count is the sum of quantities.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, item := range s.items {
		n += item.Quantity
	}
	return n
}

// Subtotal is the sum of price times quantity.
func (s *Store) Subtotal() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return subtotal(s.items)
}

// SetDeliveryFee records the fee of the current delivery selection.
func (s *Store) SetDeliveryFee(fee int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveryFee = max(fee, 0)
}

func (s *Store) DeliveryFee() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deliveryFee
}

// Total is subtotal plus delivery fee.
func (s *Store) Total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return subtotal(s.items) + s.deliveryFee
}

func (s *Store) SetOpen(open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = open
}

func (s *Store) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Snapshot is a consistent read of the whole cart.
type Snapshot struct {
	Items       []Item `json:"items"`
	Count       int    `json:"count"`
	Subtotal    int64  `json:"subtotal"`
	DeliveryFee int64  `json:"deliveryFee"`
	Total       int64  `json:"total"`
	Open        bool   `json:"open"`
}

// Snapshot reads every field under one lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Items:       slices.Clone(s.items),
		Subtotal:    subtotal(s.items),
		DeliveryFee: s.deliveryFee,
		Open:        s.open,
	}
	for _, item := range s.items {
		snap.Count += item.Quantity
	}
	snap.Total = snap.Subtotal + snap.DeliveryFee
	return snap
}

// mutate computes the next list from a copy, persists it, and only then
// commits it in memory, all under the store lock.
func (s *Store) mutate(ctx context.Context, fn func([]Item) ([]Item, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retired {
		return ErrRetired
	}
	next, err := fn(slices.Clone(s.items))
	if err != nil {
		return err
	}
	return s.persist(ctx, next)
}

// persist writes next through and commits it. s.mu must be held.
func (s *Store) persist(ctx context.Context, next []Item) error {
	if next == nil {
		next = []Item{}
	}
	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if err := s.backend.Set(ctx, s.namespace, StorageKey, raw); err != nil {
		s.logger.Error("cart persist failed", zap.String("profile", s.namespace), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	s.items = next
	return nil
}

func indexOf(items []Item, key Key) int {
	return slices.IndexFunc(items, func(item Item) bool { return item.Key().Matches(key) })
}

func subtotal(items []Item) int64 {
	var total int64
	for _, item := range items {
		total += item.LineTotal()
	}
	return total
}
