package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"posledger/internal/domain"
	"posledger/internal/pricing"
	"posledger/internal/store"
	"posledger/internal/xid"
)

var (
	ErrUnauthenticated = errors.New("authentication required")

	// ErrRegisterClosed gates every sale commit: the acting cashier must
	// have an open register session on the terminal first.
	ErrRegisterClosed = errors.New("no open register session for this terminal")
)

// ValidationError carries a field-level message that maps to a 422 at the
// HTTP layer.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field string, message string) error {
	return &ValidationError{Field: field, Message: message}
}

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const (
	StockPolicyWarn  = "warn"
	StockPolicyBlock = "block"
)

type Service struct {
	repo        store.Repository
	pricer      *pricing.Engine
	stockPolicy string
}

func New(repo store.Repository, pricer *pricing.Engine, stockPolicy string) *Service {
	if stockPolicy == "" {
		stockPolicy = StockPolicyWarn
	}

	return &Service{
		repo:        repo,
		pricer:      pricer,
		stockPolicy: stockPolicy,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

// --- register sessions ---

func (s *Service) GetRegisterStatus(ctx context.Context, terminalID string) (domain.RegisterStatusResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.RegisterStatusResponse{}, ErrUnauthenticated
	}
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return domain.RegisterStatusResponse{}, invalid("terminal", "terminal is required")
	}

	session, err := s.repo.GetOpenRegisterSession(ctx, actor.ID, terminalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.RegisterStatusResponse{Status: domain.SessionStatusClosed}, nil
		}
		return domain.RegisterStatusResponse{}, err
	}

	return domain.RegisterStatusResponse{Status: domain.SessionStatusOpen, Session: session}, nil
}

func (s *Service) OpenRegister(ctx context.Context, req domain.RegisterOpenRequest) (domain.RegisterSession, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.RegisterSession{}, ErrUnauthenticated
	}

	actorID := strings.TrimSpace(req.ActorID)
	if actorID == "" {
		actorID = actor.ID
	}
	terminalID := strings.TrimSpace(req.TerminalID)
	if terminalID == "" {
		return domain.RegisterSession{}, invalid("terminal", "terminal is required")
	}
	if req.OpeningFloat.Sign() < 0 {
		return domain.RegisterSession{}, invalid("opening_float", "opening float cannot be negative")
	}

	session, err := s.repo.OpenRegisterSession(ctx, domain.RegisterSession{
		ActorID:      actorID,
		TerminalID:   terminalID,
		OpeningFloat: req.OpeningFloat,
		OpenedAt:     time.Now().UTC(),
	})
	if err != nil {
		return domain.RegisterSession{}, err
	}

	s.logAudit(ctx, "register_open", "register_session", session.ID, fmt.Sprintf("terminal=%s,float=%s", terminalID, req.OpeningFloat))
	return *session, nil
}

func (s *Service) CloseRegister(ctx context.Context, req domain.RegisterCloseRequest) (domain.RegisterSession, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.RegisterSession{}, ErrUnauthenticated
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return domain.RegisterSession{}, invalid("session_id", "session_id is required")
	}

	session, err := s.repo.CloseRegisterSession(ctx, sessionID, req.ClosingFloat, req.ClosingDetail, time.Now().UTC())
	if err != nil {
		return domain.RegisterSession{}, err
	}

	s.logAudit(ctx, "register_close", "register_session", session.ID, fmt.Sprintf("terminal=%s,float=%s", session.TerminalID, req.ClosingFloat))
	return *session, nil
}

// --- bill numbering ---

// billPrefix derives the per-cashier bill prefix: the uppercased first
// letter of the username followed by the user id. Cashier "user1" with id 2
// issues bills U2-0001, U2-0002 and so on.
func billPrefix(actor domain.Actor) string {
	initial := "X"
	for _, r := range actor.Username {
		initial = string(unicode.ToUpper(r))
		break
	}
	return initial + actor.ID
}

// NextBillNumber previews the number the next commit on this prefix would
// receive. It reserves nothing: two previews without a commit between them
// return the same value.
func (s *Service) NextBillNumber(ctx context.Context) (string, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return "", ErrUnauthenticated
	}

	prefix := billPrefix(actor)
	maxSeq, err := s.repo.MaxBillSequence(ctx, prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%04d", prefix, maxSeq+1), nil
}

// --- sales ---

func (s *Service) CommitSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SaleResponse{}, ErrUnauthenticated
	}
	terminalID := strings.TrimSpace(req.TerminalID)
	if terminalID == "" {
		return domain.SaleResponse{}, invalid("terminal", "terminal is required")
	}

	if _, err := s.repo.GetOpenRegisterSession(ctx, actor.ID, terminalID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.SaleResponse{}, ErrRegisterClosed
		}
		return domain.SaleResponse{}, err
	}

	sale, warnings, shortfalls, err := s.buildSale(ctx, actor, req)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	if err := s.enforceStockPolicy(shortfalls); err != nil {
		return domain.SaleResponse{}, err
	}

	created, err := s.repo.CreateSale(ctx, sale, billPrefix(actor))
	if err != nil {
		return domain.SaleResponse{}, err
	}

	s.logAudit(ctx, "sale_commit", "sale", created.ID, fmt.Sprintf("bill=%s,total=%s", created.BillNumber, created.Total))
	return domain.SaleResponse{Sale: *created, Warnings: warnings}, nil
}

// stockShortfall records a catalog-matched line selling more than is on
// hand. Commit and update decide per stock policy whether it is advisory
// or fatal.
type stockShortfall struct {
	productName string
	available   decimal.Decimal
	requested   decimal.Decimal
}

func (sf stockShortfall) warning() string {
	return fmt.Sprintf("insufficient stock for %s: have %s, selling %s", sf.productName, sf.available, sf.requested)
}

func (s *Service) enforceStockPolicy(shortfalls []stockShortfall) error {
	if s.stockPolicy != StockPolicyBlock || len(shortfalls) == 0 {
		return nil
	}
	return invalid("items", shortfalls[0].warning())
}

// buildSale resolves every line against the catalog. A name-matched product
// gets server-side pricing through the discount engine; the client's figures
// on such lines are ignored. Unmatched names keep the client's figures, the
// catalog simply does not know the item.
func (s *Service) buildSale(ctx context.Context, actor domain.Actor, req domain.SaleRequest) (domain.Sale, []string, []stockShortfall, error) {
	channel := strings.TrimSpace(req.Channel)
	if channel == "" {
		channel = domain.ChannelRetail
	}
	if channel != domain.ChannelRetail && channel != domain.ChannelWholesale {
		return domain.Sale{}, nil, nil, invalid("channel", "channel must be retail or wholesale")
	}
	if len(req.Items) == 0 {
		return domain.Sale{}, nil, nil, invalid("items", "at least one item is required")
	}

	now := time.Now().UTC()
	var warnings []string
	var shortfalls []stockShortfall
	items := make([]domain.SaleItem, 0, len(req.Items))
	subtotal := decimal.Zero
	discountTotal := decimal.Zero

	for i, line := range req.Items {
		name := strings.TrimSpace(line.ProductName)
		if name == "" {
			return domain.Sale{}, nil, nil, invalid("items", fmt.Sprintf("item %d: product_name is required", i))
		}
		if line.Quantity.Sign() <= 0 {
			return domain.Sale{}, nil, nil, invalid("items", fmt.Sprintf("item %d: quantity must be positive", i))
		}

		item := domain.SaleItem{
			ProductName: name,
			Quantity:    line.Quantity,
			MRP:         line.MRP,
			UnitPrice:   line.UnitPrice,
			Discount:    line.Discount,
			LineTotal:   line.LineTotal,
		}

		product, err := s.repo.GetProductByName(ctx, name)
		switch {
		case err == nil:
			res, err := s.pricer.ResolveFor(ctx, *product, channel, now)
			if err != nil {
				return domain.Sale{}, nil, nil, err
			}
			item.ProductID = product.ID
			item.MRP = res.BasePrice
			item.UnitPrice = res.EffectivePrice
			item.Discount = res.Discount
			item.LineTotal = res.EffectivePrice.Mul(line.Quantity)

			if product.StockQuantity.LessThan(line.Quantity) {
				shortfall := stockShortfall{productName: name, available: product.StockQuantity, requested: line.Quantity}
				shortfalls = append(shortfalls, shortfall)
				warnings = append(warnings, shortfall.warning())
			}
		case errors.Is(err, store.ErrNotFound):
			warnings = append(warnings, fmt.Sprintf("product %q not in catalog, using submitted figures", name))
		default:
			return domain.Sale{}, nil, nil, err
		}

		subtotal = subtotal.Add(item.MRP.Mul(item.Quantity))
		discountTotal = discountTotal.Add(item.Discount.Mul(item.Quantity))
		items = append(items, item)
	}

	total := subtotal.Sub(discountTotal).Add(req.Tax)
	sale := domain.Sale{
		ActorID:        actor.ID,
		CustomerName:   strings.TrimSpace(req.CustomerName),
		Channel:        channel,
		Subtotal:       subtotal,
		Discount:       discountTotal,
		Tax:            req.Tax,
		Total:          total,
		PaymentMethod:  strings.TrimSpace(req.PaymentMethod),
		ReceivedAmount: req.ReceivedAmount,
		Balance:        req.ReceivedAmount.Sub(total),
		CreatedAt:      now,
		Items:          items,
	}
	return sale, warnings, shortfalls, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.Sale{}, ErrUnauthenticated
	}
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

// UpdateSale replaces the sale in place: every previous line is dropped and
// the submitted set re-priced and re-inserted. The same gates as CommitSale
// apply, the register must be open and the stock policy holds. Lines with a
// non-positive quantity are skipped with a warning rather than failing the
// update.
func (s *Service) UpdateSale(ctx context.Context, id string, req domain.SaleRequest) (domain.SaleResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SaleResponse{}, ErrUnauthenticated
	}
	if strings.TrimSpace(id) == "" {
		return domain.SaleResponse{}, invalid("id", "sale id is required")
	}
	terminalID := strings.TrimSpace(req.TerminalID)
	if terminalID == "" {
		return domain.SaleResponse{}, invalid("terminal", "terminal is required")
	}

	if _, err := s.repo.GetOpenRegisterSession(ctx, actor.ID, terminalID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.SaleResponse{}, ErrRegisterClosed
		}
		return domain.SaleResponse{}, err
	}

	kept := make([]domain.SaleLineInput, 0, len(req.Items))
	var warnings []string
	for i, line := range req.Items {
		if line.Quantity.Sign() <= 0 {
			log.Printf("[service] WARN: sale %s update: skipping item %d (%s) with non-positive quantity %s", id, i, line.ProductName, line.Quantity)
			warnings = append(warnings, fmt.Sprintf("skipped %q: non-positive quantity", line.ProductName))
			continue
		}
		kept = append(kept, line)
	}
	if len(kept) == 0 {
		return domain.SaleResponse{}, invalid("items", "no items with positive quantity")
	}
	req.Items = kept

	sale, buildWarnings, shortfalls, err := s.buildSale(ctx, actor, req)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	if err := s.enforceStockPolicy(shortfalls); err != nil {
		return domain.SaleResponse{}, err
	}
	warnings = append(warnings, buildWarnings...)

	sale.ID = id
	updated, err := s.repo.ReplaceSale(ctx, sale)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	s.logAudit(ctx, "sale_update", "sale", updated.ID, fmt.Sprintf("bill=%s,total=%s", updated.BillNumber, updated.Total))
	return domain.SaleResponse{Sale: *updated, Warnings: warnings}, nil
}

func (s *Service) DeleteSale(ctx context.Context, id string) error {
	if _, ok := ActorFromContext(ctx); !ok {
		return ErrUnauthenticated
	}
	if err := s.repo.DeleteSale(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "sale_delete", "sale", id, "")
	return nil
}

// --- sales returns ---

func (s *Service) CreateReturn(ctx context.Context, req domain.ReturnRequest) (domain.SalesReturn, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.SalesReturn{}, ErrUnauthenticated
	}

	ret, err := s.returnFromRequest(ctx, req)
	if err != nil {
		return domain.SalesReturn{}, err
	}

	created, err := s.repo.CreateSalesReturn(ctx, ret)
	if err != nil {
		return domain.SalesReturn{}, mapReturnStoreError(err)
	}

	s.logAudit(ctx, "return_create", "sales_return", created.ID, fmt.Sprintf("status=%s", created.Status))
	return *created, nil
}

func (s *Service) GetReturn(ctx context.Context, id string) (domain.SalesReturn, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.SalesReturn{}, ErrUnauthenticated
	}
	ret, err := s.repo.GetSalesReturn(ctx, id)
	if err != nil {
		return domain.SalesReturn{}, err
	}
	return *ret, nil
}

func (s *Service) UpdateReturn(ctx context.Context, id string, req domain.ReturnRequest) (domain.SalesReturn, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.SalesReturn{}, ErrUnauthenticated
	}
	if strings.TrimSpace(id) == "" {
		return domain.SalesReturn{}, invalid("id", "return id is required")
	}

	existing, err := s.repo.GetSalesReturn(ctx, id)
	if err != nil {
		return domain.SalesReturn{}, err
	}
	if err := validateTransition(existing.Status, req.Status); err != nil {
		return domain.SalesReturn{}, err
	}

	ret, err := s.returnFromRequest(ctx, req)
	if err != nil {
		return domain.SalesReturn{}, err
	}
	ret.ID = id

	updated, err := s.repo.UpdateSalesReturn(ctx, ret)
	if err != nil {
		return domain.SalesReturn{}, mapReturnStoreError(err)
	}

	s.logAudit(ctx, "return_update", "sales_return", updated.ID, fmt.Sprintf("status=%s->%s", existing.Status, updated.Status))
	return *updated, nil
}

func (s *Service) DeleteReturn(ctx context.Context, id string) error {
	if _, ok := ActorFromContext(ctx); !ok {
		return ErrUnauthenticated
	}
	if err := s.repo.DeleteSalesReturn(ctx, id); err != nil {
		return mapReturnStoreError(err)
	}
	s.logAudit(ctx, "return_delete", "sales_return", id, "")
	return nil
}

func (s *Service) returnFromRequest(ctx context.Context, req domain.ReturnRequest) (domain.SalesReturn, error) {
	billNumber := strings.TrimSpace(req.BillNumber)
	invoiceNo := strings.TrimSpace(req.InvoiceNo)
	hasBill := billNumber != ""
	hasInvoice := invoiceNo != ""
	if hasBill && hasInvoice {
		return domain.SalesReturn{}, invalid("bill_number", "provide bill_number or invoice_no, not both")
	}
	if !hasBill && !hasInvoice {
		return domain.SalesReturn{}, invalid("bill_number", "bill_number or invoice_no is required")
	}

	status := strings.TrimSpace(req.Status)
	if status == "" {
		status = domain.ReturnStatusPending
	}
	switch status {
	case domain.ReturnStatusPending, domain.ReturnStatusApproved, domain.ReturnStatusRejected:
	default:
		return domain.SalesReturn{}, invalid("status", "status must be pending, approved or rejected")
	}

	if len(req.Items) == 0 {
		return domain.SalesReturn{}, invalid("items", "at least one item is required")
	}

	if hasInvoice {
		if _, err := s.repo.GetInvoiceByNo(ctx, invoiceNo); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.SalesReturn{}, invalid("invoice_no", "invoice not found")
			}
			return domain.SalesReturn{}, err
		}
	}

	items := make([]domain.SalesReturnItem, 0, len(req.Items))
	for i, line := range req.Items {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return domain.SalesReturn{}, invalid("items", fmt.Sprintf("item %d: product_id is required", i))
		}
		if line.Quantity.Sign() <= 0 {
			return domain.SalesReturn{}, invalid("items", fmt.Sprintf("item %d: quantity must be positive", i))
		}
		items = append(items, domain.SalesReturnItem{
			ProductID: productID,
			Quantity:  line.Quantity,
			UnitCost:  line.UnitCost,
			Reason:    strings.TrimSpace(line.Reason),
		})
	}

	return domain.SalesReturn{
		BillNumber:   billNumber,
		InvoiceNo:    invoiceNo,
		Status:       status,
		RefundMethod: strings.TrimSpace(req.RefundMethod),
		Remarks:      strings.TrimSpace(req.Remarks),
		Items:        items,
	}, nil
}

// validateTransition enforces the return status machine. Every transition a
// reviewer can take is allowed except resurrecting a rejected return
// straight to approved; it has to pass through pending again.
func validateTransition(from string, to string) error {
	if to == "" || from == to {
		return nil
	}
	if from == domain.ReturnStatusRejected && to == domain.ReturnStatusApproved {
		return invalid("status", "rejected returns cannot be approved directly, move to pending first")
	}
	return nil
}

func mapReturnStoreError(err error) error {
	if errors.Is(err, store.ErrReferenceIntegrity) {
		return invalid("items", "a returned product no longer exists")
	}
	if errors.Is(err, store.ErrInvalidInput) {
		return invalid("", "invalid return payload")
	}
	return err
}

// --- held carts ---

func (s *Service) HoldCart(ctx context.Context, req domain.HoldCartRequest) (domain.HeldCart, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.HeldCart{}, ErrUnauthenticated
	}
	terminalID := strings.TrimSpace(req.TerminalID)
	if terminalID == "" {
		return domain.HeldCart{}, invalid("terminal", "terminal is required")
	}
	if len(req.Cart.Items) == 0 {
		return domain.HeldCart{}, invalid("cart", "cannot hold an empty cart")
	}

	actorID := strings.TrimSpace(req.ActorID)
	if actorID == "" {
		actorID = actor.ID
	}

	held, err := s.repo.CreateHeldCart(ctx, domain.HeldCart{
		TerminalID: terminalID,
		ActorID:    actorID,
		Cart:       req.Cart,
		HeldAt:     time.Now().UTC(),
	})
	if err != nil {
		return domain.HeldCart{}, err
	}

	s.logAudit(ctx, "cart_hold", "held_cart", held.HoldID, fmt.Sprintf("terminal=%s,lines=%d", terminalID, len(req.Cart.Items)))
	return *held, nil
}

func (s *Service) ListHeldCarts(ctx context.Context, terminalID string) ([]domain.HeldCart, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return nil, ErrUnauthenticated
	}
	return s.repo.ListHeldCarts(ctx, strings.TrimSpace(terminalID))
}

// RecallHeldCart is destructive: the hold is removed as it is returned, so
// a second recall of the same id reports not found.
func (s *Service) RecallHeldCart(ctx context.Context, holdID string) (domain.HeldCart, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.HeldCart{}, ErrUnauthenticated
	}
	held, err := s.repo.PopHeldCart(ctx, strings.TrimSpace(holdID))
	if err != nil {
		return domain.HeldCart{}, err
	}

	s.logAudit(ctx, "cart_recall", "held_cart", held.HoldID, "")
	return *held, nil
}

func (s *Service) DiscardHeldCart(ctx context.Context, holdID string) error {
	if _, ok := ActorFromContext(ctx); !ok {
		return ErrUnauthenticated
	}
	if err := s.repo.DeleteHeldCart(ctx, strings.TrimSpace(holdID)); err != nil {
		return err
	}
	s.logAudit(ctx, "cart_discard", "held_cart", holdID, "")
	return nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{ID: "system", Role: "system"}
	}

	if err := s.repo.AppendAudit(ctx, domain.AuditEntry{
		ID:         xid.New("audit"),
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		log.Printf("[service] WARN: failed to append audit entry action=%s entity=%s: %v", action, entityID, err)
	}
}
