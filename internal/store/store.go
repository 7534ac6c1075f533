package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"posledger/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrReferenceIntegrity = errors.New("referenced record missing")
	ErrInvalidInput       = errors.New("invalid input")
)

// Repository is the storage contract for the transaction core. Every
// multi-row write is transactional inside the implementation: concurrent
// callers never observe a partially applied sale, return adjustment, or
// register open.
type Repository interface {
	// Products and discount schemes (read-only master data).
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductByName(ctx context.Context, name string) (*domain.Product, error)
	ListDiscountSchemes(ctx context.Context) ([]domain.DiscountScheme, error)

	// Register sessions. OpenRegisterSession serializes the check-then-insert
	// for (actor, terminal) and returns ErrConflict when a session is already
	// open. CloseRegisterSession returns ErrNotFound unless the session
	// exists and is open.
	OpenRegisterSession(ctx context.Context, session domain.RegisterSession) (*domain.RegisterSession, error)
	CloseRegisterSession(ctx context.Context, sessionID string, closingFloat decimal.Decimal, closingDetail string, closedAt time.Time) (*domain.RegisterSession, error)
	GetOpenRegisterSession(ctx context.Context, actorID string, terminalID string) (*domain.RegisterSession, error)

	// MaxBillSequence reads the highest persisted sequence for a bill prefix.
	// It is a plain read; only CreateSale makes a number durable.
	MaxBillSequence(ctx context.Context, prefix string) (int, error)

	// Sales. CreateSale mints the bill number inside the transaction from the
	// durable rows under the given prefix; a lost race surfaces as
	// ErrConflict. ReplaceSale rewrites the header and the full item set.
	CreateSale(ctx context.Context, sale domain.Sale, prefix string) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ReplaceSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	DeleteSale(ctx context.Context, id string) error

	// Sales returns. The implementations apply the quantity reconciliation
	// (sale item, invoice item, product stock) inside the same transaction as
	// the status change; a missing product yields ErrReferenceIntegrity and
	// rolls back everything.
	CreateSalesReturn(ctx context.Context, ret domain.SalesReturn) (*domain.SalesReturn, error)
	GetSalesReturn(ctx context.Context, id string) (*domain.SalesReturn, error)
	UpdateSalesReturn(ctx context.Context, ret domain.SalesReturn) (*domain.SalesReturn, error)
	DeleteSalesReturn(ctx context.Context, id string) error

	// Held carts. PopHeldCart removes and returns in one step so a cart is
	// recalled exactly once.
	CreateHeldCart(ctx context.Context, held domain.HeldCart) (*domain.HeldCart, error)
	ListHeldCarts(ctx context.Context, terminalID string) ([]domain.HeldCart, error)
	PopHeldCart(ctx context.Context, holdID string) (*domain.HeldCart, error)
	DeleteHeldCart(ctx context.Context, holdID string) error

	// Invoices are owned by manual invoicing elsewhere; the core only needs
	// lookups for return validation.
	GetInvoiceByNo(ctx context.Context, invoiceNo string) (*domain.Invoice, error)

	AppendAudit(ctx context.Context, entry domain.AuditEntry) error

	// User accounts back the auth layer.
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
