package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"posledger/internal/domain"
	"posledger/internal/pricing"
	"posledger/internal/store"
	"posledger/internal/store/memory"
)

var (
	cashier = domain.Actor{ID: "2", Username: "user1", Role: "cashier"}
	admin   = domain.Actor{ID: "1", Username: "admin", Role: "admin"}
)

func newTestService() *Service {
	repo := memory.NewSeeded()
	pricer := pricing.NewEngine(repo, nil, 5*time.Second)
	return New(repo, pricer, StockPolicyWarn)
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), cashier)
}

func dec(t *testing.T, v string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(v)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", v, err)
	}
	return d
}

func openRegister(t *testing.T, svc *Service, ctx context.Context, terminal string) domain.RegisterSession {
	t.Helper()
	session, err := svc.OpenRegister(ctx, domain.RegisterOpenRequest{
		TerminalID:   terminal,
		OpeningFloat: decimal.NewFromInt(500),
	})
	if err != nil {
		t.Fatalf("open register: %v", err)
	}
	return session
}

func TestOpenRegisterIsExclusivePerActorTerminal(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	openRegister(t, svc, ctx, "terminal-a1")

	_, err := svc.OpenRegister(ctx, domain.RegisterOpenRequest{TerminalID: "terminal-a1"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on second open, got %v", err)
	}

	// A different terminal is a different pair and opens fine.
	if _, err := svc.OpenRegister(ctx, domain.RegisterOpenRequest{TerminalID: "terminal-b2"}); err != nil {
		t.Fatalf("open on second terminal: %v", err)
	}
}

func TestConcurrentOpensYieldExactlyOneSession(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.OpenRegister(ctx, domain.RegisterOpenRequest{TerminalID: "terminal-race"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, store.ErrConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful open, got %d", succeeded)
	}
}

func TestCloseRegisterLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	session := openRegister(t, svc, ctx, "terminal-a1")

	closed, err := svc.CloseRegister(ctx, domain.RegisterCloseRequest{
		SessionID:    session.ID,
		ClosingFloat: dec(t, "1234.50"),
	})
	if err != nil {
		t.Fatalf("close register: %v", err)
	}
	if closed.Status != domain.SessionStatusClosed || closed.ClosedAt == nil {
		t.Fatalf("expected closed session, got %+v", closed)
	}

	// Closing an already-closed session reports not found.
	_, err = svc.CloseRegister(ctx, domain.RegisterCloseRequest{SessionID: session.ID})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found on double close, got %v", err)
	}

	status, err := svc.GetRegisterStatus(ctx, "terminal-a1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Status != domain.SessionStatusClosed || status.Session != nil {
		t.Fatalf("expected closed status after close, got %+v", status)
	}

	// Re-open creates a fresh session rather than resurrecting the old one.
	reopened := openRegister(t, svc, ctx, "terminal-a1")
	if reopened.ID == session.ID {
		t.Fatalf("expected a new session id on re-open")
	}
}

func TestGetRegisterStatusIsReadOnly(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	for i := 0; i < 3; i++ {
		status, err := svc.GetRegisterStatus(ctx, "terminal-a1")
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if status.Status != domain.SessionStatusClosed {
			t.Fatalf("status must not open a session, got %+v", status)
		}
	}
}

func saleRequest(terminal string, lines ...domain.SaleLineInput) domain.SaleRequest {
	return domain.SaleRequest{
		TerminalID:    terminal,
		Channel:       domain.ChannelRetail,
		PaymentMethod: "cash",
		Items:         lines,
	}
}

func TestCommitSaleRequiresOpenRegister(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	_, err := svc.CommitSale(ctx, saleRequest("terminal-a1",
		domain.SaleLineInput{ProductName: "Rice 5kg", Quantity: decimal.NewFromInt(1)},
	))
	if !errors.Is(err, ErrRegisterClosed) {
		t.Fatalf("expected register-closed error, got %v", err)
	}
}

func TestCommitSaleMintsSequentialBillNumbers(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	openRegister(t, svc, ctx, "terminal-a1")

	first, err := svc.CommitSale(ctx, saleRequest("terminal-a1",
		domain.SaleLineInput{ProductName: "Sugar 1kg", Quantity: decimal.NewFromInt(1)},
	))
	if err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if first.Sale.BillNumber != "U2-0001" {
		t.Fatalf("expected U2-0001, got %s", first.Sale.BillNumber)
	}

	second, err := svc.CommitSale(ctx, saleRequest("terminal-a1",
		domain.SaleLineInput{ProductName: "Sugar 1kg", Quantity: decimal.NewFromInt(1)},
	))
	if err != nil {
		t.Fatalf("second commit: %v", err)
	}
	if second.Sale.BillNumber != "U2-0002" {
		t.Fatalf("expected U2-0002, got %s", second.Sale.BillNumber)
	}
}

func TestNextBillNumberPreviewReservesNothing(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	openRegister(t, svc, ctx, "terminal-a1")

	preview1, err := svc.NextBillNumber(ctx)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	preview2, err := svc.NextBillNumber(ctx)
	if err != nil {
		t.Fatalf("second preview: %v", err)
	}
	if preview1 != preview2 {
		t.Fatalf("previews must be idempotent: %s vs %s", preview1, preview2)
	}

	resp, err := svc.CommitSale(ctx, saleRequest("terminal-a1",
		domain.SaleLineInput{ProductName: "Sugar 1kg", Quantity: decimal.NewFromInt(1)},
	))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if resp.Sale.BillNumber != preview1 {
		t.Fatalf("commit should receive the previewed number %s, got %s", preview1, resp.Sale.BillNumber)
	}
}

func TestNextBillNumberRequiresActor(t *testing.T) {
	svc := newTestService()
	if _, err := svc.NextBillNumber(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestCommitSaleResolvesPricesServerSide(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	openRegister(t, svc, ctx, "terminal-a1")

	// Client submits nonsense figures; the catalog-matched line must come
	// back with the engine's numbers. Rice 5kg retails at 1450 with a 10%
	// product scheme.
	resp, err := svc.CommitSale(ctx, saleRequest("terminal-a1", domain.SaleLineInput{
		ProductName: "Rice 5kg",
		Quantity:    decimal.NewFromInt(2),
		UnitPrice:   decimal.NewFromInt(1),
		LineTotal:   decimal.NewFromInt(2),
	}))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	item := resp.Sale.Items[0]
	if !item.MRP.Equal(dec(t, "1450")) {
		t.Fatalf("expected MRP 1450, got %s", item.MRP)
	}
	if !item.UnitPrice.Equal(dec(t, "1305")) {
		t.Fatalf("expected unit price 1305, got %s", item.UnitPrice)
	}
	if !item.Discount.Equal(dec(t, "145")) {
		t.Fatalf("expected per-unit discount 145, got %s", item.Discount)
	}
	if !item.LineTotal.Equal(dec(t, "2610")) {
		t.Fatalf("expected line total 2610, got %s", item.LineTotal)
	}
	if !resp.Sale.Subtotal.Equal(dec(t, "2900")) {
		t.Fatalf("expected subtotal 2900, got %s", resp.Sale.Subtotal)
	}
	if !resp.Sale.Discount.Equal(dec(t, "290")) {
		t.Fatalf("expected discount 290, got %s", resp.Sale.Discount)
	}
	if !resp.Sale.Total.Equal(dec(t, "2610")) {
		t.Fatalf("expected total 2610, got %s", resp.Sale.Total)
	}
}

func TestCommitSaleKeepsClientFiguresForUnmatchedProduct(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	openRegister(t, svc, ctx, "terminal-a1")

	resp, err := svc.CommitSale(ctx, saleRequest("terminal-a1", domain.SaleLineInput{
		ProductName: "Handwritten Special",
		Quantity:    decimal.NewFromInt(1),
		MRP:         dec(t, "99.50"),
		UnitPrice:   dec(t, "99.50"),
		LineTotal:   dec(t, "99.50"),
	}))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !resp.Sale.Items[0].UnitPrice.Equal(dec(t, "99.50")) {
		t.Fatalf("unmatched line must keep client figures, got %s", resp.Sale.Items[0].UnitPrice)
	}
	if len(resp.Warnings) == 0 || !strings.Contains(resp.Warnings[0], "not in catalog") {
		t.Fatalf("expected catalog warning, got %v", resp.Warnings)
	}
}

func TestCommitSaleDoesNotTouchStock(t *testing.T) {
	repo := memory.NewSeeded()
	svc := New(repo, pricing.NewEngine(repo, nil, time.Second), StockPolicyWarn)
	ctx := cashierCtx()
	openRegister(t, svc, ctx, "terminal-a1")

	before, err := repo.GetProductByName(ctx, "Sugar 1kg")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}

	if _, err := svc.CommitSale(ctx, saleRequest("terminal-a1",
		domain.SaleLineInput{ProductName: "Sugar 1kg", Quantity: decimal.NewFromInt(5)},
	)); err != nil {
		t.Fatalf("commit: %v", err)
	}

	after, err := repo.GetProductByName(ctx, "Sugar 1kg")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if !after.StockQuantity.Equal(before.StockQuantity) {
		t.Fatalf("sale commit must not decrement stock: %s -> %s", before.StockQuantity, after.StockQuantity)
	}
}

func TestCommitSaleStockPolicyWarnVsBlock(t *testing.T) {
	repo := memory.NewSeeded()
	warnSvc := New(repo, pricing.NewEngine(repo, nil, time.Second), StockPolicyWarn)
	ctx := cashierCtx()
	openRegister(t, warnSvc, ctx, "terminal-a1")

	// Rice 5kg is seeded with stock 80; oversell it.
	oversell := saleRequest("terminal-a1", domain.SaleLineInput{
		ProductName: "Rice 5kg",
		Quantity:    decimal.NewFromInt(100),
	})

	resp, err := warnSvc.CommitSale(ctx, oversell)
	if err != nil {
		t.Fatalf("warn policy should commit: %v", err)
	}
	if len(resp.Warnings) == 0 || !strings.Contains(resp.Warnings[0], "insufficient stock") {
		t.Fatalf("expected stock warning, got %v", resp.Warnings)
	}

	blockSvc := New(repo, pricing.NewEngine(repo, nil, time.Second), StockPolicyBlock)
	var ve *ValidationError
	if _, err := blockSvc.CommitSale(ctx, oversell); !errors.As(err, &ve) {
		t.Fatalf("block policy should reject the oversell, got %v", err)
	}
}

func TestUpdateSaleRequiresOpenRegister(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	session := openRegister(t, svc, ctx, "terminal-a1")

	created, err := svc.CommitSale(ctx, saleRequest("terminal-a1",
		domain.SaleLineInput{ProductName: "Sugar 1kg", Quantity: decimal.NewFromInt(1)},
	))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	if _, err := svc.CloseRegister(ctx, domain.RegisterCloseRequest{SessionID: session.ID}); err != nil {
		t.Fatalf("close register: %v", err)
	}

	_, err = svc.UpdateSale(ctx, created.Sale.ID, saleRequest("terminal-a1",
		domain.SaleLineInput{ProductName: "Sugar 1kg", Quantity: decimal.NewFromInt(2)},
	))
	if !errors.Is(err, ErrRegisterClosed) {
		t.Fatalf("update on a closed register must be refused, got %v", err)
	}
}

func TestUpdateSaleStockPolicyWarnVsBlock(t *testing.T) {
	repo := memory.NewSeeded()
	warnSvc := New(repo, pricing.NewEngine(repo, nil, time.Second), StockPolicyWarn)
	ctx := cashierCtx()
	openRegister(t, warnSvc, ctx, "terminal-a1")

	created, err := warnSvc.CommitSale(ctx, saleRequest("terminal-a1",
		domain.SaleLineInput{ProductName: "Rice 5kg", Quantity: decimal.NewFromInt(1)},
	))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	// Rice 5kg is seeded with stock 80; the update oversells it.
	oversell := saleRequest("terminal-a1", domain.SaleLineInput{
		ProductName: "Rice 5kg",
		Quantity:    decimal.NewFromInt(100),
	})

	resp, err := warnSvc.UpdateSale(ctx, created.Sale.ID, oversell)
	if err != nil {
		t.Fatalf("warn policy should update: %v", err)
	}
	if len(resp.Warnings) == 0 || !strings.Contains(resp.Warnings[0], "insufficient stock") {
		t.Fatalf("expected stock warning, got %v", resp.Warnings)
	}

	blockSvc := New(repo, pricing.NewEngine(repo, nil, time.Second), StockPolicyBlock)
	var ve *ValidationError
	if _, err := blockSvc.UpdateSale(ctx, created.Sale.ID, oversell); !errors.As(err, &ve) {
		t.Fatalf("block policy should reject the oversold update, got %v", err)
	}
}

func TestUpdateSaleReplacesItemsAndSkipsNonPositiveLines(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	openRegister(t, svc, ctx, "terminal-a1")

	created, err := svc.CommitSale(ctx, saleRequest("terminal-a1",
		domain.SaleLineInput{ProductName: "Sugar 1kg", Quantity: decimal.NewFromInt(2)},
		domain.SaleLineInput{ProductName: "Milk 1L", Quantity: decimal.NewFromInt(1)},
	))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	updated, err := svc.UpdateSale(ctx, created.Sale.ID, saleRequest("terminal-a1",
		domain.SaleLineInput{ProductName: "Tea Leaves 100g", Quantity: decimal.NewFromInt(3)},
		domain.SaleLineInput{ProductName: "Sugar 1kg", Quantity: decimal.Zero},
	))
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if updated.Sale.BillNumber != created.Sale.BillNumber {
		t.Fatalf("update must keep the bill number: %s vs %s", created.Sale.BillNumber, updated.Sale.BillNumber)
	}
	if len(updated.Sale.Items) != 1 || updated.Sale.Items[0].ProductName != "Tea Leaves 100g" {
		t.Fatalf("expected the old item set fully replaced, got %+v", updated.Sale.Items)
	}
	found := false
	for _, w := range updated.Warnings {
		if strings.Contains(w, "Sugar 1kg") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a skip warning for the zero-quantity line, got %v", updated.Warnings)
	}
}

func TestUpdateSaleWithOnlyNonPositiveLinesFails(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	openRegister(t, svc, ctx, "terminal-a1")

	created, err := svc.CommitSale(ctx, saleRequest("terminal-a1",
		domain.SaleLineInput{ProductName: "Sugar 1kg", Quantity: decimal.NewFromInt(1)},
	))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	var ve *ValidationError
	_, err = svc.UpdateSale(ctx, created.Sale.ID, saleRequest("terminal-a1",
		domain.SaleLineInput{ProductName: "Sugar 1kg", Quantity: decimal.NewFromInt(-1)},
	))
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error when every line is skipped, got %v", err)
	}
}

func TestDeleteSaleRemovesItems(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	openRegister(t, svc, ctx, "terminal-a1")

	created, err := svc.CommitSale(ctx, saleRequest("terminal-a1",
		domain.SaleLineInput{ProductName: "Sugar 1kg", Quantity: decimal.NewFromInt(1)},
	))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := svc.DeleteSale(ctx, created.Sale.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetSale(ctx, created.Sale.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := svc.DeleteSale(ctx, created.Sale.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found on double delete, got %v", err)
	}
}

// --- returns ---

func adminCtx() context.Context {
	return WithActor(context.Background(), admin)
}

func returnRequest(bill string, status string, lines ...domain.ReturnLineInput) domain.ReturnRequest {
	return domain.ReturnRequest{
		BillNumber:   bill,
		Status:       status,
		RefundMethod: "cash",
		Items:        lines,
	}
}

func TestCreateReturnRequiresExactlyOneReference(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()
	line := domain.ReturnLineInput{ProductID: "p-milk-1l", Quantity: decimal.NewFromInt(1)}

	var ve *ValidationError
	_, err := svc.CreateReturn(ctx, domain.ReturnRequest{
		BillNumber: "U2-0001",
		InvoiceNo:  "INV-1001",
		Items:      []domain.ReturnLineInput{line},
	})
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error for both references, got %v", err)
	}

	_, err = svc.CreateReturn(ctx, domain.ReturnRequest{
		Items: []domain.ReturnLineInput{line},
	})
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error for neither reference, got %v", err)
	}
}

func TestApproveReturnAdjustsLatestSaleItemAndStock(t *testing.T) {
	repo := memory.NewSeeded()
	svc := New(repo, pricing.NewEngine(repo, nil, time.Second), StockPolicyWarn)
	ctx := cashierCtx()
	openRegister(t, svc, ctx, "terminal-a1")

	// Two sales of milk: the later one holds the most recent milk line.
	if _, err := svc.CommitSale(ctx, saleRequest("terminal-a1",
		domain.SaleLineInput{ProductName: "Milk 1L", Quantity: decimal.NewFromInt(5)},
	)); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	later, err := svc.CommitSale(ctx, saleRequest("terminal-a1",
		domain.SaleLineInput{ProductName: "Milk 1L", Quantity: decimal.NewFromInt(3)},
	))
	if err != nil {
		t.Fatalf("second commit: %v", err)
	}

	stockBefore, _ := repo.GetProductByID(ctx, "p-milk-1l")

	ret, err := svc.CreateReturn(adminCtx(), returnRequest("U2-0001", domain.ReturnStatusApproved,
		domain.ReturnLineInput{ProductID: "p-milk-1l", Quantity: decimal.NewFromInt(2)},
	))
	if err != nil {
		t.Fatalf("create return: %v", err)
	}
	if ret.Status != domain.ReturnStatusApproved {
		t.Fatalf("expected approved return, got %s", ret.Status)
	}

	stockAfter, _ := repo.GetProductByID(ctx, "p-milk-1l")
	if !stockAfter.StockQuantity.Equal(stockBefore.StockQuantity.Add(decimal.NewFromInt(2))) {
		t.Fatalf("expected stock +2, got %s -> %s", stockBefore.StockQuantity, stockAfter.StockQuantity)
	}

	// The most recent milk line across all sales takes the decrement, even
	// though the return references the first bill.
	laterSale, err := svc.GetSale(ctx, later.Sale.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if !laterSale.Items[0].Quantity.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected latest sale line 3-2=1, got %s", laterSale.Items[0].Quantity)
	}
}

func TestReturnApprovalRoundTripIsIdentity(t *testing.T) {
	repo := memory.NewSeeded()
	svc := New(repo, pricing.NewEngine(repo, nil, time.Second), StockPolicyWarn)
	ctx := cashierCtx()
	openRegister(t, svc, ctx, "terminal-a1")

	sale, err := svc.CommitSale(ctx, saleRequest("terminal-a1",
		domain.SaleLineInput{ProductName: "Milk 1L", Quantity: decimal.NewFromInt(4)},
	))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	stockBefore, _ := repo.GetProductByID(ctx, "p-milk-1l")

	actx := adminCtx()
	ret, err := svc.CreateReturn(actx, returnRequest(sale.Sale.BillNumber, domain.ReturnStatusApproved,
		domain.ReturnLineInput{ProductID: "p-milk-1l", Quantity: decimal.NewFromInt(2)},
	))
	if err != nil {
		t.Fatalf("create return: %v", err)
	}

	// Approved -> pending reverses the adjustment exactly.
	if _, err := svc.UpdateReturn(actx, ret.ID, returnRequest(sale.Sale.BillNumber, domain.ReturnStatusPending,
		domain.ReturnLineInput{ProductID: "p-milk-1l", Quantity: decimal.NewFromInt(2)},
	)); err != nil {
		t.Fatalf("un-approve: %v", err)
	}

	stockAfter, _ := repo.GetProductByID(ctx, "p-milk-1l")
	if !stockAfter.StockQuantity.Equal(stockBefore.StockQuantity) {
		t.Fatalf("expect stock restored exactly: %s vs %s", stockBefore.StockQuantity, stockAfter.StockQuantity)
	}

	restored, err := svc.GetSale(ctx, sale.Sale.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if !restored.Items[0].Quantity.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("expected sale line restored to 4, got %s", restored.Items[0].Quantity)
	}
}

func TestApprovedToApprovedReplacesItemsWithoutReadjusting(t *testing.T) {
	repo := memory.NewSeeded()
	svc := New(repo, pricing.NewEngine(repo, nil, time.Second), StockPolicyWarn)
	ctx := cashierCtx()
	openRegister(t, svc, ctx, "terminal-a1")

	sale, err := svc.CommitSale(ctx, saleRequest("terminal-a1",
		domain.SaleLineInput{ProductName: "Milk 1L", Quantity: decimal.NewFromInt(4)},
	))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	actx := adminCtx()
	ret, err := svc.CreateReturn(actx, returnRequest(sale.Sale.BillNumber, domain.ReturnStatusApproved,
		domain.ReturnLineInput{ProductID: "p-milk-1l", Quantity: decimal.NewFromInt(2)},
	))
	if err != nil {
		t.Fatalf("create return: %v", err)
	}

	stockAfterApproval, _ := repo.GetProductByID(ctx, "p-milk-1l")

	if _, err := svc.UpdateReturn(actx, ret.ID, returnRequest(sale.Sale.BillNumber, domain.ReturnStatusApproved,
		domain.ReturnLineInput{ProductID: "p-milk-1l", Quantity: decimal.NewFromInt(3), Reason: "edited remarks"},
	)); err != nil {
		t.Fatalf("approved->approved update: %v", err)
	}

	stockAfterEdit, _ := repo.GetProductByID(ctx, "p-milk-1l")
	if !stockAfterEdit.StockQuantity.Equal(stockAfterApproval.StockQuantity) {
		t.Fatalf("approved->approved must not re-adjust stock: %s vs %s", stockAfterApproval.StockQuantity, stockAfterEdit.StockQuantity)
	}
}

func TestDeleteApprovedReturnReversesAdjustment(t *testing.T) {
	repo := memory.NewSeeded()
	svc := New(repo, pricing.NewEngine(repo, nil, time.Second), StockPolicyWarn)
	ctx := cashierCtx()
	openRegister(t, svc, ctx, "terminal-a1")

	sale, err := svc.CommitSale(ctx, saleRequest("terminal-a1",
		domain.SaleLineInput{ProductName: "Milk 1L", Quantity: decimal.NewFromInt(4)},
	))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	stockBefore, _ := repo.GetProductByID(ctx, "p-milk-1l")

	actx := adminCtx()
	ret, err := svc.CreateReturn(actx, returnRequest(sale.Sale.BillNumber, domain.ReturnStatusApproved,
		domain.ReturnLineInput{ProductID: "p-milk-1l", Quantity: decimal.NewFromInt(2)},
	))
	if err != nil {
		t.Fatalf("create return: %v", err)
	}

	if err := svc.DeleteReturn(actx, ret.ID); err != nil {
		t.Fatalf("delete return: %v", err)
	}

	stockAfter, _ := repo.GetProductByID(ctx, "p-milk-1l")
	if !stockAfter.StockQuantity.Equal(stockBefore.StockQuantity) {
		t.Fatalf("delete must un-approve first: %s vs %s", stockBefore.StockQuantity, stockAfter.StockQuantity)
	}
	if _, err := svc.GetReturn(actx, ret.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected return gone, got %v", err)
	}
}

func TestRejectedReturnCannotBeApprovedDirectly(t *testing.T) {
	svc := newTestService()
	actx := adminCtx()

	ret, err := svc.CreateReturn(actx, returnRequest("U2-0001", domain.ReturnStatusRejected,
		domain.ReturnLineInput{ProductID: "p-milk-1l", Quantity: decimal.NewFromInt(1)},
	))
	if err != nil {
		t.Fatalf("create return: %v", err)
	}

	var ve *ValidationError
	_, err = svc.UpdateReturn(actx, ret.ID, returnRequest("U2-0001", domain.ReturnStatusApproved,
		domain.ReturnLineInput{ProductID: "p-milk-1l", Quantity: decimal.NewFromInt(1)},
	))
	if !errors.As(err, &ve) {
		t.Fatalf("expected rejected->approved to be refused, got %v", err)
	}
}

func TestApproveReturnWithMissingProductRollsBack(t *testing.T) {
	repo := memory.NewSeeded()
	svc := New(repo, pricing.NewEngine(repo, nil, time.Second), StockPolicyWarn)
	ctx := cashierCtx()
	openRegister(t, svc, ctx, "terminal-a1")

	if _, err := svc.CommitSale(ctx, saleRequest("terminal-a1",
		domain.SaleLineInput{ProductName: "Milk 1L", Quantity: decimal.NewFromInt(4)},
	)); err != nil {
		t.Fatalf("commit: %v", err)
	}

	stockBefore, _ := repo.GetProductByID(ctx, "p-milk-1l")

	var ve *ValidationError
	_, err := svc.CreateReturn(adminCtx(), returnRequest("U2-0001", domain.ReturnStatusApproved,
		domain.ReturnLineInput{ProductID: "p-milk-1l", Quantity: decimal.NewFromInt(1)},
		domain.ReturnLineInput{ProductID: "p-vanished", Quantity: decimal.NewFromInt(1)},
	))
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error for missing product, got %v", err)
	}

	// The valid line must not have been applied before the failure.
	stockAfter, _ := repo.GetProductByID(ctx, "p-milk-1l")
	if !stockAfter.StockQuantity.Equal(stockBefore.StockQuantity) {
		t.Fatalf("partial adjustment leaked: %s vs %s", stockBefore.StockQuantity, stockAfter.StockQuantity)
	}
}

func TestInvoiceAttachedReturnAdjustsInvoiceItems(t *testing.T) {
	repo := memory.NewSeeded()
	svc := New(repo, pricing.NewEngine(repo, nil, time.Second), StockPolicyWarn)
	actx := adminCtx()

	ret, err := svc.CreateReturn(actx, domain.ReturnRequest{
		InvoiceNo: "INV-1001",
		Status:    domain.ReturnStatusApproved,
		Items: []domain.ReturnLineInput{
			{ProductID: "p-milk-1l", Quantity: decimal.NewFromInt(1)},
		},
	})
	if err != nil {
		t.Fatalf("create return: %v", err)
	}
	if ret.InvoiceNo != "INV-1001" {
		t.Fatalf("expected invoice reference kept, got %q", ret.InvoiceNo)
	}

	invoice, err := repo.GetInvoiceByNo(actx, "INV-1001")
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	if !invoice.Items[0].Quantity.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected invoice item 2-1=1, got %s", invoice.Items[0].Quantity)
	}
}

func TestReturnRejectsUnknownInvoice(t *testing.T) {
	svc := newTestService()

	var ve *ValidationError
	_, err := svc.CreateReturn(adminCtx(), domain.ReturnRequest{
		InvoiceNo: "INV-9999",
		Items: []domain.ReturnLineInput{
			{ProductID: "p-milk-1l", Quantity: decimal.NewFromInt(1)},
		},
	})
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error for unknown invoice, got %v", err)
	}
}

// --- held carts ---

func holdRequest(terminal string) domain.HoldCartRequest {
	return domain.HoldCartRequest{
		TerminalID: terminal,
		Cart: domain.CartState{
			Channel: domain.ChannelRetail,
			Items: []domain.CartLine{
				{ProductName: "Sugar 1kg", Quantity: decimal.NewFromInt(2)},
			},
		},
	}
}

func TestHoldListRecallDiscard(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	held, err := svc.HoldCart(ctx, holdRequest("terminal-a1"))
	if err != nil {
		t.Fatalf("hold: %v", err)
	}
	other, err := svc.HoldCart(ctx, holdRequest("terminal-b2"))
	if err != nil {
		t.Fatalf("second hold: %v", err)
	}

	all, err := svc.ListHeldCarts(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 holds, got %d", len(all))
	}

	filtered, err := svc.ListHeldCarts(ctx, "terminal-a1")
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(filtered) != 1 || filtered[0].HoldID != held.HoldID {
		t.Fatalf("expected only the terminal-a1 hold, got %+v", filtered)
	}

	recalled, err := svc.RecallHeldCart(ctx, held.HoldID)
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(recalled.Cart.Items) != 1 || recalled.Cart.Items[0].ProductName != "Sugar 1kg" {
		t.Fatalf("recalled cart differs from held cart: %+v", recalled.Cart)
	}

	// Recall is destructive: the same hold id cannot be recalled twice.
	if _, err := svc.RecallHeldCart(ctx, held.HoldID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found on second recall, got %v", err)
	}

	if err := svc.DiscardHeldCart(ctx, other.HoldID); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, err := svc.RecallHeldCart(ctx, other.HoldID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected discarded hold to be gone, got %v", err)
	}
}

func TestHoldEmptyCartRejected(t *testing.T) {
	svc := newTestService()

	var ve *ValidationError
	_, err := svc.HoldCart(cashierCtx(), domain.HoldCartRequest{TerminalID: "terminal-a1"})
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error on empty cart, got %v", err)
	}
}
