package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"posledger/internal/domain"
	"posledger/internal/store"
	"posledger/internal/xid"
)

// Store is the in-memory repository used for dev mode and unit tests. The
// single mutex gives every operation the same all-or-nothing behavior the
// postgres transactions provide.
type Store struct {
	mu               sync.RWMutex
	products         map[string]domain.Product
	productIDsByName map[string]string
	schemes          []domain.DiscountScheme
	sessionsByID     map[string]domain.RegisterSession
	openSessionByKey map[string]string
	salesByID        map[string]*domain.Sale
	invoicesByNo     map[string]*domain.Invoice
	returnsByID      map[string]domain.SalesReturn
	heldCartsByID    map[string]domain.HeldCart
	auditLog         []domain.AuditEntry
	usersByUsername  map[string]domain.UserAccount
	itemOrder        map[string]int64
	itemSeq          int64
}

// seedUsers builds the initial user accounts for dev/demo mode. Credentials
// come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; hardcoded dev
// defaults apply when unset, with a warning. Production deployments use
// PostgreSQL (DATABASE_URL set) and never hit this path.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		id       string
		username string
		password string
		role     string
	}{
		{"1", "admin", adminPwd, "admin"},
		{"2", "user1", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			ID:        u.id,
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	dec := func(v string) decimal.Decimal { return decimal.RequireFromString(v) }

	products := []domain.Product{
		{ID: "p-rice-5kg", Name: "Rice 5kg", Category: "grocery", SalesPrice: dec("1450.00"), WholesalePrice: dec("1320.00"), StockQuantity: dec("80"), Active: true},
		{ID: "p-sugar-1kg", Name: "Sugar 1kg", Category: "grocery", SalesPrice: dec("265.00"), WholesalePrice: dec("240.00"), StockQuantity: dec("120"), Active: true},
		{ID: "p-milk-1l", Name: "Milk 1L", Category: "dairy", SalesPrice: dec("480.00"), WholesalePrice: dec("455.00"), StockQuantity: dec("60"), Active: true},
		{ID: "p-bread-loaf", Name: "Bread Loaf", Category: "bakery", SalesPrice: dec("180.00"), WholesalePrice: decimal.Zero, StockQuantity: dec("40"), Active: true},
		{ID: "p-tea-100g", Name: "Tea Leaves 100g", Category: "beverage", SalesPrice: dec("340.00"), WholesalePrice: dec("310.00"), StockQuantity: dec("95"), Active: true},
		{ID: "p-soap-bar", Name: "Soap Bar", Category: "household", SalesPrice: dec("120.00"), WholesalePrice: dec("105.00"), StockQuantity: dec("200"), Active: true},
	}

	schemes := []domain.DiscountScheme{
		{ID: "scheme-rice-10", Scope: domain.SchemeScopeProduct, Target: "Rice 5kg", Kind: domain.SchemeKindPercentage, Value: dec("10"), Active: true},
		{ID: "scheme-dairy-5", Scope: domain.SchemeScopeCategory, Target: "dairy", Kind: domain.SchemeKindPercentage, Value: dec("5"), Active: true},
		{ID: "scheme-soap-15", Scope: domain.SchemeScopeProduct, Target: "Soap Bar", Kind: domain.SchemeKindFixedAmount, Value: dec("15.00"), Active: true},
		{ID: "scheme-bakery-off", Scope: domain.SchemeScopeCategory, Target: "bakery", Kind: domain.SchemeKindPercentage, Value: dec("20"), Active: false},
	}

	productMap := make(map[string]domain.Product, len(products))
	byName := make(map[string]string, len(products))
	for _, p := range products {
		productMap[p.ID] = p
		byName[p.Name] = p.ID
	}

	invoiceCreated := time.Now().UTC().Add(-24 * time.Hour)
	invoices := map[string]*domain.Invoice{
		"INV-1001": {
			ID:           "inv-seed-1001",
			InvoiceNo:    "INV-1001",
			CustomerName: "Walk-in",
			Total:        dec("960.00"),
			CreatedAt:    invoiceCreated,
			Items: []domain.InvoiceItem{
				{ID: "invitem-1001-1", InvoiceNo: "INV-1001", ProductID: "p-milk-1l", Quantity: dec("2"), UnitPrice: dec("480.00"), CreatedAt: invoiceCreated},
			},
		},
	}

	return &Store{
		products:         productMap,
		productIDsByName: byName,
		schemes:          schemes,
		sessionsByID:     make(map[string]domain.RegisterSession),
		openSessionByKey: make(map[string]string),
		salesByID:        make(map[string]*domain.Sale),
		invoicesByNo:     invoices,
		returnsByID:      make(map[string]domain.SalesReturn),
		heldCartsByID:    make(map[string]domain.HeldCart),
		auditLog:         make([]domain.AuditEntry, 0, 128),
		usersByUsername:  seedUsers(),
		itemOrder:        make(map[string]int64),
	}
}

func sessionKey(actorID string, terminalID string) string {
	return actorID + "|" + terminalID
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) GetProductByName(_ context.Context, name string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.productIDsByName[name]
	if !exists {
		return nil, store.ErrNotFound
	}
	product := s.products[id]
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) ListDiscountSchemes(_ context.Context) ([]domain.DiscountScheme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schemes := make([]domain.DiscountScheme, len(s.schemes))
	copy(schemes, s.schemes)
	return schemes, nil
}

func (s *Store) OpenRegisterSession(_ context.Context, session domain.RegisterSession) (*domain.RegisterSession, error) {
	if strings.TrimSpace(session.ActorID) == "" || strings.TrimSpace(session.TerminalID) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(session.ActorID, session.TerminalID)
	if _, open := s.openSessionByKey[key]; open {
		return nil, store.ErrConflict
	}

	if session.ID == "" {
		session.ID = xid.New("regsess")
	}
	if session.OpenedAt.IsZero() {
		session.OpenedAt = time.Now().UTC()
	}
	session.Status = domain.SessionStatusOpen
	session.ClosedAt = nil
	session.ClosingFloat = decimal.Zero
	session.ClosingDetail = ""

	s.sessionsByID[session.ID] = session
	s.openSessionByKey[key] = session.ID

	saved := session
	return &saved, nil
}

func (s *Store) CloseRegisterSession(_ context.Context, sessionID string, closingFloat decimal.Decimal, closingDetail string, closedAt time.Time) (*domain.RegisterSession, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, store.ErrInvalidInput
	}
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessionsByID[sessionID]
	if !exists || session.Status != domain.SessionStatusOpen {
		return nil, store.ErrNotFound
	}

	session.Status = domain.SessionStatusClosed
	session.ClosingFloat = closingFloat
	session.ClosingDetail = closingDetail
	session.ClosedAt = &closedAt

	s.sessionsByID[sessionID] = session
	delete(s.openSessionByKey, sessionKey(session.ActorID, session.TerminalID))

	saved := session
	return &saved, nil
}

func (s *Store) GetOpenRegisterSession(_ context.Context, actorID string, terminalID string) (*domain.RegisterSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessionID, open := s.openSessionByKey[sessionKey(actorID, terminalID)]
	if !open {
		return nil, store.ErrNotFound
	}
	session := s.sessionsByID[sessionID]
	copySession := session
	return &copySession, nil
}

func (s *Store) MaxBillSequence(_ context.Context, prefix string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.maxBillSequenceLocked(prefix), nil
}

func (s *Store) maxBillSequenceLocked(prefix string) int {
	maxSeq := 0
	for _, sale := range s.salesByID {
		seq, ok := billSequence(sale.BillNumber, prefix)
		if ok && seq > maxSeq {
			maxSeq = seq
		}
	}
	return maxSeq
}

// billSequence parses the numeric tail of a bill number under the given
// prefix ("U1-0042" → 42). Bills under another prefix report false.
func billSequence(billNumber string, prefix string) (int, bool) {
	tail, found := strings.CutPrefix(billNumber, prefix+"-")
	if !found {
		return 0, false
	}
	seq, err := strconv.Atoi(tail)
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale, prefix string) (*domain.Sale, error) {
	if strings.TrimSpace(prefix) == "" || strings.TrimSpace(sale.ActorID) == "" {
		return nil, store.ErrInvalidInput
	}
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.maxBillSequenceLocked(prefix) + 1
	sale.BillNumber = fmt.Sprintf("%s-%04d", prefix, next)

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	s.attachItemsLocked(&sale)

	saved := cloneSale(&sale)
	s.salesByID[sale.ID] = saved
	result := cloneSale(saved)
	return result, nil
}

// attachItemsLocked assigns ids, timestamps and insertion order to a sale's
// items. The order counter is what "most recently created sale item" means
// during return reconciliation.
func (s *Store) attachItemsLocked(sale *domain.Sale) {
	now := time.Now().UTC()
	for i := range sale.Items {
		item := &sale.Items[i]
		if item.ID == "" {
			item.ID = xid.New("saleitem")
		}
		item.SaleID = sale.ID
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		s.itemSeq++
		s.itemOrder[item.ID] = s.itemSeq
	}
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) ReplaceSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if strings.TrimSpace(sale.ID) == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.salesByID[sale.ID]
	if !exists {
		return nil, store.ErrNotFound
	}

	// Bill number, actor and creation time survive the replace.
	sale.BillNumber = existing.BillNumber
	sale.ActorID = existing.ActorID
	sale.CreatedAt = existing.CreatedAt

	for _, old := range existing.Items {
		delete(s.itemOrder, old.ID)
	}
	for i := range sale.Items {
		sale.Items[i].ID = ""
	}
	s.attachItemsLocked(&sale)

	saved := cloneSale(&sale)
	s.salesByID[sale.ID] = saved
	result := cloneSale(saved)
	return result, nil
}

func (s *Store) DeleteSale(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return store.ErrNotFound
	}
	for _, item := range sale.Items {
		delete(s.itemOrder, item.ID)
	}
	delete(s.salesByID, id)
	return nil
}

func (s *Store) CreateSalesReturn(_ context.Context, ret domain.SalesReturn) (*domain.SalesReturn, error) {
	if err := validateReturn(ret); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ret.ID == "" {
		ret.ID = xid.New("salesreturn")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}
	for i := range ret.Items {
		if ret.Items[i].ID == "" {
			ret.Items[i].ID = xid.New("retitem")
		}
		ret.Items[i].ReturnID = ret.ID
	}

	if ret.Status == domain.ReturnStatusApproved {
		if err := s.applyAdjustmentLocked(ret.InvoiceNo, ret.Items, false); err != nil {
			return nil, err
		}
	}

	s.returnsByID[ret.ID] = cloneReturn(ret)
	saved := cloneReturn(ret)
	return &saved, nil
}

func (s *Store) GetSalesReturn(_ context.Context, id string) (*domain.SalesReturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ret, exists := s.returnsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	saved := cloneReturn(ret)
	return &saved, nil
}

func (s *Store) UpdateSalesReturn(_ context.Context, ret domain.SalesReturn) (*domain.SalesReturn, error) {
	if strings.TrimSpace(ret.ID) == "" {
		return nil, store.ErrInvalidInput
	}
	if err := validateReturn(ret); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.returnsByID[ret.ID]
	if !exists {
		return nil, store.ErrNotFound
	}

	wasApproved := existing.Status == domain.ReturnStatusApproved
	willBeApproved := ret.Status == domain.ReturnStatusApproved

	// Leaving approved undoes the OLD items; entering approved applies the
	// NEW items. Approved to approved replaces without re-adjusting.
	if wasApproved && !willBeApproved {
		if err := s.applyAdjustmentLocked(existing.InvoiceNo, existing.Items, true); err != nil {
			return nil, err
		}
	}

	ret.CreatedAt = existing.CreatedAt
	for i := range ret.Items {
		if ret.Items[i].ID == "" {
			ret.Items[i].ID = xid.New("retitem")
		}
		ret.Items[i].ReturnID = ret.ID
	}

	if !wasApproved && willBeApproved {
		if err := s.applyAdjustmentLocked(ret.InvoiceNo, ret.Items, false); err != nil {
			// Restore the old adjustment state: nothing was changed yet in this
			// branch, so just refuse the update.
			return nil, err
		}
	}

	s.returnsByID[ret.ID] = cloneReturn(ret)
	saved := cloneReturn(ret)
	return &saved, nil
}

func (s *Store) DeleteSalesReturn(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.returnsByID[id]
	if !exists {
		return store.ErrNotFound
	}

	if existing.Status == domain.ReturnStatusApproved {
		if err := s.applyAdjustmentLocked(existing.InvoiceNo, existing.Items, true); err != nil {
			return err
		}
	}

	delete(s.returnsByID, id)
	return nil
}

// applyAdjustmentLocked mutates the three quantity ledgers for a return's
// items. reverse=false is the approval direction: the most recently created
// sale item for the product loses the returned quantity (floored at zero),
// the invoice item loses it too when an invoice is referenced, and the
// product's stock gains it. reverse=true is the exact algebraic inverse.
// All products are checked up front so a missing one leaves every ledger
// untouched.
func (s *Store) applyAdjustmentLocked(invoiceNo string, items []domain.SalesReturnItem, reverse bool) error {
	for _, item := range items {
		if _, exists := s.products[item.ProductID]; !exists {
			return store.ErrReferenceIntegrity
		}
	}

	for _, item := range items {
		qty := item.Quantity
		if qty.Sign() <= 0 {
			continue
		}

		if saleID, idx, ok := s.latestSaleItemLocked(item.ProductID); ok {
			line := &s.salesByID[saleID].Items[idx]
			if reverse {
				line.Quantity = line.Quantity.Add(qty)
			} else {
				line.Quantity = decimal.Max(line.Quantity.Sub(qty), decimal.Zero)
			}
		}

		if invoiceNo != "" {
			if invoice, exists := s.invoicesByNo[invoiceNo]; exists {
				for i := range invoice.Items {
					if invoice.Items[i].ProductID != item.ProductID {
						continue
					}
					if reverse {
						invoice.Items[i].Quantity = invoice.Items[i].Quantity.Add(qty)
					} else {
						invoice.Items[i].Quantity = decimal.Max(invoice.Items[i].Quantity.Sub(qty), decimal.Zero)
					}
					break
				}
			}
		}

		product := s.products[item.ProductID]
		if reverse {
			product.StockQuantity = decimal.Max(product.StockQuantity.Sub(qty), decimal.Zero)
		} else {
			product.StockQuantity = product.StockQuantity.Add(qty)
		}
		s.products[item.ProductID] = product
	}

	return nil
}

// latestSaleItemLocked finds the most recently created sale item for a
// product across ALL sales, matching the legacy reconciliation behavior the
// system ships with. A return against an old bill can therefore adjust a
// newer sale's line.
func (s *Store) latestSaleItemLocked(productID string) (string, int, bool) {
	bestSeq := int64(-1)
	bestSale := ""
	bestIdx := -1
	for saleID, sale := range s.salesByID {
		for i, item := range sale.Items {
			if item.ProductID != productID {
				continue
			}
			if seq := s.itemOrder[item.ID]; seq > bestSeq {
				bestSeq = seq
				bestSale = saleID
				bestIdx = i
			}
		}
	}
	if bestIdx < 0 {
		return "", 0, false
	}
	return bestSale, bestIdx, true
}

func validateReturn(ret domain.SalesReturn) error {
	hasBill := strings.TrimSpace(ret.BillNumber) != ""
	hasInvoice := strings.TrimSpace(ret.InvoiceNo) != ""
	if hasBill == hasInvoice {
		return store.ErrInvalidInput
	}
	switch ret.Status {
	case domain.ReturnStatusPending, domain.ReturnStatusApproved, domain.ReturnStatusRejected:
	default:
		return store.ErrInvalidInput
	}
	if len(ret.Items) == 0 {
		return store.ErrInvalidInput
	}
	return nil
}

func (s *Store) CreateHeldCart(_ context.Context, held domain.HeldCart) (*domain.HeldCart, error) {
	if strings.TrimSpace(held.TerminalID) == "" || strings.TrimSpace(held.ActorID) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if held.HoldID == "" {
		held.HoldID = uuid.NewString()
	}
	if held.HeldAt.IsZero() {
		held.HeldAt = time.Now().UTC()
	}

	s.heldCartsByID[held.HoldID] = held
	saved := held
	return &saved, nil
}

func (s *Store) ListHeldCarts(_ context.Context, terminalID string) ([]domain.HeldCart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.HeldCart, 0, len(s.heldCartsByID))
	for _, held := range s.heldCartsByID {
		if terminalID != "" && held.TerminalID != terminalID {
			continue
		}
		result = append(result, held)
	}

	slices.SortFunc(result, func(a, b domain.HeldCart) int {
		if a.HeldAt.Equal(b.HeldAt) {
			return cmpString(a.HoldID, b.HoldID)
		}
		if a.HeldAt.Before(b.HeldAt) {
			return -1
		}
		return 1
	})

	return result, nil
}

func (s *Store) PopHeldCart(_ context.Context, holdID string) (*domain.HeldCart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	held, exists := s.heldCartsByID[holdID]
	if !exists {
		return nil, store.ErrNotFound
	}
	delete(s.heldCartsByID, holdID)
	recalled := held
	return &recalled, nil
}

func (s *Store) DeleteHeldCart(_ context.Context, holdID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.heldCartsByID[holdID]; !exists {
		return store.ErrNotFound
	}
	delete(s.heldCartsByID, holdID)
	return nil
}

func (s *Store) GetInvoiceByNo(_ context.Context, invoiceNo string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoice, exists := s.invoicesByNo[invoiceNo]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := *invoice
	copied.Items = make([]domain.InvoiceItem, len(invoice.Items))
	copy(copied.Items, invoice.Items)
	return &copied, nil
}

func (s *Store) AppendAudit(_ context.Context, entry domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLog = append(s.auditLog, entry)
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	if user.ID == "" {
		user.ID = strconv.Itoa(len(s.usersByUsername) + 1)
	}
	user.Username = username
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))

	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneSale(sale *domain.Sale) *domain.Sale {
	copied := *sale
	copied.Items = make([]domain.SaleItem, len(sale.Items))
	copy(copied.Items, sale.Items)
	return &copied
}

func cloneReturn(ret domain.SalesReturn) domain.SalesReturn {
	copied := ret
	copied.Items = make([]domain.SalesReturnItem, len(ret.Items))
	copy(copied.Items, ret.Items)
	return copied
}

func cmpString(a string, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
