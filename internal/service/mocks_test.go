package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/NineNineAFK/verto/internal/domain"
	"github.com/NineNineAFK/verto/internal/gateway"
	"github.com/NineNineAFK/verto/internal/repository"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memDB is an in-memory document store. Its unit of work serializes transactions and
// restores a snapshot when fn fails, which is enough to exercise atomic groups in tests.
type memDB struct {
	txMu sync.Mutex
	mu   sync.Mutex

	products   map[primitive.ObjectID]domain.Product
	warehouses map[primitive.ObjectID]domain.Warehouse
	audits     []domain.AuditEntry
	carts      map[primitive.ObjectID]domain.Cart
	embedded   map[primitive.ObjectID][]domain.EmbeddedCartItem
	orders     map[string]domain.Order

	// AppendErr, when set, fails the next audit append.
	AppendErr error
}

func newMemDB() *memDB {
	return &memDB{
		products:   make(map[primitive.ObjectID]domain.Product),
		warehouses: make(map[primitive.ObjectID]domain.Warehouse),
		carts:      make(map[primitive.ObjectID]domain.Cart),
		embedded:   make(map[primitive.ObjectID][]domain.EmbeddedCartItem),
		orders:     make(map[string]domain.Order),
	}
}

type memSnapshot struct {
	products   map[primitive.ObjectID]domain.Product
	warehouses map[primitive.ObjectID]domain.Warehouse
	audits     []domain.AuditEntry
	carts      map[primitive.ObjectID]domain.Cart
	embedded   map[primitive.ObjectID][]domain.EmbeddedCartItem
	orders     map[string]domain.Order
}

func (db *memDB) snapshot() memSnapshot {
	db.mu.Lock()
	defer db.mu.Unlock()

	s := memSnapshot{
		products:   make(map[primitive.ObjectID]domain.Product, len(db.products)),
		warehouses: make(map[primitive.ObjectID]domain.Warehouse, len(db.warehouses)),
		audits:     append([]domain.AuditEntry(nil), db.audits...),
		carts:      make(map[primitive.ObjectID]domain.Cart, len(db.carts)),
		embedded:   make(map[primitive.ObjectID][]domain.EmbeddedCartItem, len(db.embedded)),
		orders:     make(map[string]domain.Order, len(db.orders)),
	}
	for k, v := range db.products {
		s.products[k] = v
	}
	for k, v := range db.warehouses {
		s.warehouses[k] = v
	}
	for k, v := range db.carts {
		v.Items = append([]domain.CartItem(nil), v.Items...)
		s.carts[k] = v
	}
	for k, v := range db.embedded {
		s.embedded[k] = append([]domain.EmbeddedCartItem(nil), v...)
	}
	for k, v := range db.orders {
		v.Items = append([]domain.OrderItem(nil), v.Items...)
		s.orders[k] = v
	}
	return s
}

func (db *memDB) restore(s memSnapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.products, db.warehouses, db.audits = s.products, s.warehouses, s.audits
	db.carts, db.embedded, db.orders = s.carts, s.embedded, s.orders
}

func (db *memDB) Do(ctx context.Context, fn func(tx repository.Tx) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	snap := db.snapshot()
	if err := fn(repository.NoTx(ctx)); err != nil {
		db.restore(snap)
		if domain.IsKnown(err) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrTransactionAborted, err)
	}
	return nil
}

func (db *memDB) auditsFor(productID primitive.ObjectID) []domain.AuditEntry {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []domain.AuditEntry
	for _, a := range db.audits {
		if a.ProductID != nil && *a.ProductID == productID {
			out = append(out, a)
		}
	}
	return out
}

func (db *memDB) product(id primitive.ObjectID) domain.Product {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.products[id]
}

type stores struct {
	db         *memDB
	products   *memProducts
	warehouses *memWarehouses
	audits     *memAudits
	carts      *memCarts
	users      *memUsers
	orders     *memOrders
}

func newStores() *stores {
	db := newMemDB()
	return &stores{
		db:         db,
		products:   &memProducts{db},
		warehouses: &memWarehouses{db},
		audits:     &memAudits{db},
		carts:      &memCarts{db},
		users:      &memUsers{db},
		orders:     &memOrders{db},
	}
}

// products

type memProducts struct{ db *memDB }

func (m *memProducts) Insert(_ repository.Tx, p *domain.Product) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	m.db.products[p.ID] = *p
	return nil
}

func (m *memProducts) FindByID(_ repository.Tx, id primitive.ObjectID) (*domain.Product, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return &p, nil
}

func (m *memProducts) FindInWarehouse(tx repository.Tx, warehouseID, productID primitive.ObjectID) (*domain.Product, error) {
	p, err := m.FindByID(tx, productID)
	if err != nil {
		return nil, err
	}
	if p.WarehouseID != warehouseID {
		return nil, repository.ErrProductNotFound
	}
	return p, nil
}

func (m *memProducts) FindMany(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*domain.Product, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := make(map[primitive.ObjectID]*domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := m.db.products[id]; ok {
			out[id] = &p
		}
	}
	return out, nil
}

func (m *memProducts) AdjustStock(_ repository.Tx, id primitive.ObjectID, delta int) (int, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.products[id]
	if !ok || p.StockQuantity+delta < 0 {
		return 0, repository.ErrStockGuard
	}
	p.StockQuantity += delta
	m.db.products[id] = p
	return p.StockQuantity, nil
}

func (m *memProducts) Update(_ repository.Tx, p *domain.Product) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.products[p.ID]; !ok {
		return repository.ErrProductNotFound
	}
	m.db.products[p.ID] = *p
	return nil
}

func (m *memProducts) SoftDelete(_ repository.Tx, id primitive.ObjectID, token string, at time.Time) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.products[id]
	if !ok || p.Deleted {
		return repository.ErrProductNotFound
	}
	p.Deleted, p.DeletedAt, p.DeletedToken = true, &at, token
	m.db.products[id] = p
	return nil
}

func (m *memProducts) Restore(_ repository.Tx, id primitive.ObjectID) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.products[id]
	if !ok || !p.Deleted {
		return repository.ErrProductNotFound
	}
	p.Deleted, p.DeletedAt, p.DeletedToken = false, nil, ""
	m.db.products[id] = p
	return nil
}

func (m *memProducts) StampWarehouseDeleted(_ repository.Tx, warehouseID primitive.ObjectID, token string, at time.Time) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var n int64
	for id, p := range m.db.products {
		if p.WarehouseID == warehouseID && !p.Deleted {
			p.Deleted, p.DeletedAt, p.DeletedToken = true, &at, token
			m.db.products[id] = p
			n++
		}
	}
	return n, nil
}

func (m *memProducts) RestoreByToken(_ repository.Tx, warehouseID primitive.ObjectID, token string) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var n int64
	for id, p := range m.db.products {
		if p.WarehouseID == warehouseID && p.Deleted && p.DeletedToken == token {
			p.Deleted, p.DeletedAt, p.DeletedToken = false, nil, ""
			m.db.products[id] = p
			n++
		}
	}
	return n, nil
}

func (m *memProducts) DeleteByWarehouse(_ repository.Tx, warehouseID primitive.ObjectID) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var n int64
	for id, p := range m.db.products {
		if p.WarehouseID == warehouseID {
			delete(m.db.products, id)
			n++
		}
	}
	return n, nil
}

func (m *memProducts) filter(keep func(domain.Product) bool) []domain.Product {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := make([]domain.Product, 0)
	for _, p := range m.db.products {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *memProducts) ListByWarehouse(_ context.Context, warehouseID primitive.ObjectID) ([]domain.Product, error) {
	return m.filter(func(p domain.Product) bool { return p.WarehouseID == warehouseID }), nil
}

func (m *memProducts) ListLowStock(_ context.Context, warehouseID primitive.ObjectID) ([]domain.Product, error) {
	return m.filter(func(p domain.Product) bool {
		return p.WarehouseID == warehouseID && !p.Deleted && p.IsLowStock()
	}), nil
}

func (m *memProducts) ListStore(_ context.Context, exclude []primitive.ObjectID, lowOnly bool) ([]domain.Product, error) {
	excluded := make(map[primitive.ObjectID]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}
	return m.filter(func(p domain.Product) bool {
		if p.Deleted || excluded[p.WarehouseID] {
			return false
		}
		return !lowOnly || p.IsLowStock()
	}), nil
}

func (m *memProducts) CountActive(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]int, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	want := make(map[primitive.ObjectID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	counts := make(map[primitive.ObjectID]int)
	for _, p := range m.db.products {
		if want[p.WarehouseID] && !p.Deleted {
			counts[p.WarehouseID]++
		}
	}
	return counts, nil
}

// warehouses

type memWarehouses struct{ db *memDB }

func (m *memWarehouses) Insert(_ context.Context, w *domain.Warehouse) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if w.ID.IsZero() {
		w.ID = primitive.NewObjectID()
	}
	m.db.warehouses[w.ID] = *w
	return nil
}

func (m *memWarehouses) FindByID(_ repository.Tx, id primitive.ObjectID) (*domain.Warehouse, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	w, ok := m.db.warehouses[id]
	if !ok {
		return nil, repository.ErrWarehouseNotFound
	}
	return &w, nil
}

func (m *memWarehouses) ListByOwner(_ context.Context, owner primitive.ObjectID) ([]domain.Warehouse, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := make([]domain.Warehouse, 0)
	for _, w := range m.db.warehouses {
		if w.OwnerID == owner {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *memWarehouses) Update(_ context.Context, w *domain.Warehouse) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.warehouses[w.ID]; !ok {
		return repository.ErrWarehouseNotFound
	}
	m.db.warehouses[w.ID] = *w
	return nil
}

func (m *memWarehouses) MarkDeleted(_ repository.Tx, id primitive.ObjectID, token string, at time.Time) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	w, ok := m.db.warehouses[id]
	if !ok || w.Deleted {
		return false, nil
	}
	w.Deleted, w.DeletedAt, w.DeletedToken = true, &at, token
	m.db.warehouses[id] = w
	return true, nil
}

func (m *memWarehouses) MarkRestored(_ repository.Tx, id primitive.ObjectID, token string) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	w, ok := m.db.warehouses[id]
	if !ok || !w.Deleted || w.DeletedToken != token {
		return false, nil
	}
	w.Deleted, w.DeletedAt, w.DeletedToken = false, nil, ""
	m.db.warehouses[id] = w
	return true, nil
}

func (m *memWarehouses) Delete(_ repository.Tx, id primitive.ObjectID) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.warehouses[id]; !ok {
		return repository.ErrWarehouseNotFound
	}
	delete(m.db.warehouses, id)
	return nil
}

// audits

type memAudits struct{ db *memDB }

func (m *memAudits) Append(_ repository.Tx, e *domain.AuditEntry) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if m.db.AppendErr != nil {
		err := m.db.AppendErr
		m.db.AppendErr = nil
		return err
	}
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	m.db.audits = append(m.db.audits, *e)
	return nil
}

func (m *memAudits) ListByWarehouse(_ context.Context, warehouseID primitive.ObjectID, limit int64) ([]domain.AuditEntry, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := make([]domain.AuditEntry, 0)
	for i := len(m.db.audits) - 1; i >= 0; i-- {
		a := m.db.audits[i]
		if a.WarehouseID != nil && *a.WarehouseID == warehouseID {
			out = append(out, a)
		}
		if limit > 0 && int64(len(out)) == limit {
			break
		}
	}
	return out, nil
}

func (m *memAudits) ListByProduct(_ context.Context, productID primitive.ObjectID) ([]domain.AuditEntry, error) {
	out := m.db.auditsFor(productID)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (m *memAudits) ArchiveByWarehouse(_ repository.Tx, warehouseID primitive.ObjectID, at time.Time) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var n int64
	for i, a := range m.db.audits {
		if a.WarehouseID != nil && *a.WarehouseID == warehouseID {
			a.WarehouseID = nil
			a.Archived = true
			a.Archive = &domain.ArchiveMarker{OriginalWarehouseID: warehouseID, ArchivedAt: at}
			m.db.audits[i] = a
			n++
		}
	}
	return n, nil
}

// carts

type memCarts struct{ db *memDB }

func (m *memCarts) GetCart(_ repository.Tx, userID primitive.ObjectID) (*domain.Cart, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	c, ok := m.db.carts[userID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	c.Items = append([]domain.CartItem(nil), c.Items...)
	return &c, nil
}

func (m *memCarts) UpsertCart(_ repository.Tx, cart *domain.Cart) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	c := *cart
	c.Items = append([]domain.CartItem(nil), cart.Items...)
	m.db.carts[cart.UserID] = c
	return nil
}

func (m *memCarts) SetItem(_ repository.Tx, userID primitive.ObjectID, item domain.CartItem) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	c, ok := m.db.carts[userID]
	if !ok {
		c = domain.Cart{ID: primitive.NewObjectID(), UserID: userID}
	}
	items := append([]domain.CartItem(nil), c.Items...)
	replaced := false
	for i := range items {
		if items[i].ProductID == item.ProductID {
			items[i] = item
			replaced = true
		}
	}
	if !replaced {
		items = append(items, item)
	}
	c.Items = items
	m.db.carts[userID] = c
	return nil
}

func (m *memCarts) RemoveItem(_ repository.Tx, userID, productID primitive.ObjectID) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	c, ok := m.db.carts[userID]
	if !ok {
		return nil
	}
	items := make([]domain.CartItem, 0, len(c.Items))
	for _, it := range c.Items {
		if it.ProductID != productID {
			items = append(items, it)
		}
	}
	c.Items = items
	m.db.carts[userID] = c
	return nil
}

func (m *memCarts) DeleteCart(_ repository.Tx, userID primitive.ObjectID) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.carts[userID]; !ok {
		return repository.ErrCartNotFound
	}
	delete(m.db.carts, userID)
	return nil
}

// users

type memUsers struct{ db *memDB }

func (m *memUsers) EmbeddedCart(_ repository.Tx, userID primitive.ObjectID) ([]domain.EmbeddedCartItem, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return append([]domain.EmbeddedCartItem(nil), m.db.embedded[userID]...), nil
}

func (m *memUsers) ClearEmbeddedCart(_ repository.Tx, userID primitive.ObjectID) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.embedded[userID]; ok {
		m.db.embedded[userID] = []domain.EmbeddedCartItem{}
	}
	return nil
}

// orders

type memOrders struct{ db *memDB }

func (m *memOrders) Insert(_ context.Context, o *domain.Order) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	key := o.PaymentDetails.MerchantTransactionID
	if _, ok := m.db.orders[key]; ok {
		return repository.ErrDuplicateOrder
	}
	if o.ID.IsZero() {
		o.ID = primitive.NewObjectID()
	}
	m.db.orders[key] = *o
	return nil
}

func (m *memOrders) FindByMerchantID(_ repository.Tx, key string) (*domain.Order, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	o, ok := m.db.orders[key]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return &o, nil
}

func (m *memOrders) Transition(_ repository.Tx, key string, status domain.PaymentStatus, gw domain.GatewayStatus, at time.Time) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	o, ok := m.db.orders[key]
	if !ok || o.PaymentDetails.Status != domain.PaymentStatusPending {
		return false, nil
	}
	applyGatewayStatus(&o, status, &gw, at)
	m.db.orders[key] = o
	return true, nil
}

// gateway

type fakeGateway struct {
	mu          sync.Mutex
	TokenErr    error
	InitiateErr error
	Response    json.RawMessage
	States      map[string]*domain.GatewayStatus
	StatusErr   error
	Initiated   []gateway.InitiateRequest
	StatusCalls int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		Response: json.RawMessage(`{"orderId":"OMO1","state":"PENDING","redirectUrl":"https://pay.example/r"}`),
		States:   make(map[string]*domain.GatewayStatus),
	}
}

func (g *fakeGateway) Token(context.Context) (string, error) {
	return "token", g.TokenErr
}

func (g *fakeGateway) Initiate(_ context.Context, req gateway.InitiateRequest) (json.RawMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Initiated = append(g.Initiated, req)
	if g.InitiateErr != nil {
		return nil, g.InitiateErr
	}
	return g.Response, nil
}

func (g *fakeGateway) QueryStatus(_ context.Context, key string) (*domain.GatewayStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.StatusCalls++
	if g.StatusErr != nil {
		return nil, g.StatusErr
	}
	st, ok := g.States[key]
	if !ok {
		return nil, fmt.Errorf("%w: unknown order", domain.ErrGateway)
	}
	cp := *st
	return &cp, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	Events []*domain.Settlement
	Err    error
}

func (p *fakePublisher) PublishSettlement(_ context.Context, s *domain.Settlement) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, s)
	return p.Err
}

var errStoreDown = errors.New("store unavailable")

func noTx() repository.Tx {
	return repository.NoTx(context.Background())
}
