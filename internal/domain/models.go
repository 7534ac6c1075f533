package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Actor is the authenticated cashier (or admin) performing a request.
// ID feeds the bill-number prefix, so it must be stable per user.
type Actor struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type UserAccount struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	SessionStatusOpen   = "open"
	SessionStatusClosed = "closed"
)

// RegisterSession is the cashier/terminal authorization window. At most one
// session per (actor, terminal) may be open at any instant; closed sessions
// are kept forever, a re-open creates a fresh row.
type RegisterSession struct {
	ID            string          `json:"id"`
	ActorID       string          `json:"actor_id"`
	TerminalID    string          `json:"terminal_id"`
	Status        string          `json:"status"`
	OpeningFloat  decimal.Decimal `json:"opening_float"`
	ClosingFloat  decimal.Decimal `json:"closing_float"`
	ClosingDetail string          `json:"closing_detail,omitempty"`
	OpenedAt      time.Time       `json:"opened_at"`
	ClosedAt      *time.Time      `json:"closed_at,omitempty"`
}

const (
	ChannelRetail    = "retail"
	ChannelWholesale = "wholesale"
)

type Product struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	SalesPrice     decimal.Decimal `json:"sales_price"`
	WholesalePrice decimal.Decimal `json:"wholesale_price"`
	StockQuantity  decimal.Decimal `json:"stock_quantity"`
	Active         bool            `json:"active"`
}

const (
	SchemeScopeProduct  = "product"
	SchemeScopeCategory = "category"

	SchemeKindPercentage  = "percentage"
	SchemeKindFixedAmount = "fixed_amount"
)

// DiscountScheme is read-only to this core; master-data CRUD owns it.
// Target is a name match: the product name for product scope, the category
// name for category scope.
type DiscountScheme struct {
	ID        string          `json:"id"`
	Scope     string          `json:"scope"`
	Target    string          `json:"target"`
	Kind      string          `json:"kind"`
	Value     decimal.Decimal `json:"value"`
	Active    bool            `json:"active"`
	StartDate *time.Time      `json:"start_date,omitempty"`
	EndDate   *time.Time      `json:"end_date,omitempty"`
}

// Sale owns its items exclusively: an update replaces the whole item set and
// a delete removes them in the same operation.
type Sale struct {
	ID             string          `json:"id"`
	BillNumber     string          `json:"bill_number"`
	ActorID        string          `json:"actor_id"`
	CustomerName   string          `json:"customer_name,omitempty"`
	Channel        string          `json:"channel"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Discount       decimal.Decimal `json:"discount"`
	Tax            decimal.Decimal `json:"tax"`
	Total          decimal.Decimal `json:"total"`
	PaymentMethod  string          `json:"payment_method"`
	ReceivedAmount decimal.Decimal `json:"received_amount"`
	Balance        decimal.Decimal `json:"balance"`
	CreatedAt      time.Time       `json:"created_at"`
	Items          []SaleItem      `json:"items"`
}

// SaleItem is one priced line of a sale. Discount is per unit; the header's
// Discount holds the quantity-weighted sum across lines.
type SaleItem struct {
	ID          string          `json:"id"`
	SaleID      string          `json:"sale_id"`
	ProductID   string          `json:"product_id,omitempty"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	MRP         decimal.Decimal `json:"mrp"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	LineTotal   decimal.Decimal `json:"line_total"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Invoice is the manual-invoicing record with its own numbering space.
// Returns may reference an invoice_no instead of a bill_number.
type Invoice struct {
	ID           string          `json:"id"`
	InvoiceNo    string          `json:"invoice_no"`
	CustomerName string          `json:"customer_name,omitempty"`
	Total        decimal.Decimal `json:"total"`
	CreatedAt    time.Time       `json:"created_at"`
	Items        []InvoiceItem   `json:"items"`
}

type InvoiceItem struct {
	ID        string          `json:"id"`
	InvoiceNo string          `json:"invoice_no"`
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	CreatedAt time.Time       `json:"created_at"`
}

const (
	ReturnStatusPending  = "pending"
	ReturnStatusApproved = "approved"
	ReturnStatusRejected = "rejected"
)

// SalesReturn references exactly one of bill_number or invoice_no. Moving
// into or out of approved triggers the quantity reconciliation.
type SalesReturn struct {
	ID           string            `json:"id"`
	BillNumber   string            `json:"bill_number,omitempty"`
	InvoiceNo    string            `json:"invoice_no,omitempty"`
	Status       string            `json:"status"`
	RefundMethod string            `json:"refund_method,omitempty"`
	Remarks      string            `json:"remarks,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	Items        []SalesReturnItem `json:"items"`
}

type SalesReturnItem struct {
	ID        string          `json:"id"`
	ReturnID  string          `json:"return_id"`
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Reason    string          `json:"reason,omitempty"`
}

// HeldCart is a suspended, not-yet-committed sale snapshot. It lives only
// between hold and recall/discard and is not part of sales history.
type HeldCart struct {
	HoldID     string    `json:"hold_id"`
	TerminalID string    `json:"terminal_id"`
	ActorID    string    `json:"actor_id"`
	Cart       CartState `json:"cart"`
	HeldAt     time.Time `json:"held_at"`
}

type CartState struct {
	CustomerName string          `json:"customer_name,omitempty"`
	Channel      string          `json:"channel"`
	Items        []CartLine      `json:"items"`
	Discount     decimal.Decimal `json:"discount"`
	Tax          decimal.Decimal `json:"tax"`
	Total        decimal.Decimal `json:"total"`
}

type CartLine struct {
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	MRP         decimal.Decimal `json:"mrp"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type AuditEntry struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actor_id"`
	ActorRole  string    `json:"actor_role"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// --- request / response shapes ---

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type RegisterOpenRequest struct {
	ActorID      string          `json:"actor"`
	TerminalID   string          `json:"terminal"`
	OpeningFloat decimal.Decimal `json:"opening_float"`
}

type RegisterCloseRequest struct {
	SessionID     string          `json:"session_id"`
	ClosingFloat  decimal.Decimal `json:"closing_float"`
	ClosingDetail string          `json:"closing_detail"`
}

type RegisterStatusResponse struct {
	Status  string           `json:"status"`
	Session *RegisterSession `json:"session"`
}

type SessionResponse struct {
	Session RegisterSession `json:"session"`
}

type BillNumberResponse struct {
	NextBillNumber string `json:"next_bill_number"`
}

type SaleLineInput struct {
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	MRP         decimal.Decimal `json:"mrp"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type SaleRequest struct {
	TerminalID     string          `json:"terminal"`
	CustomerName   string          `json:"customer_name"`
	Channel        string          `json:"channel"`
	Tax            decimal.Decimal `json:"tax"`
	PaymentMethod  string          `json:"payment_method"`
	ReceivedAmount decimal.Decimal `json:"received_amount"`
	Items          []SaleLineInput `json:"items"`
}

type SaleResponse struct {
	Sale     Sale     `json:"sale"`
	Warnings []string `json:"warnings,omitempty"`
}

type ReturnLineInput struct {
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Reason    string          `json:"reason"`
}

type ReturnRequest struct {
	BillNumber   string            `json:"bill_number"`
	InvoiceNo    string            `json:"invoice_no"`
	Status       string            `json:"status"`
	RefundMethod string            `json:"refund_method"`
	Remarks      string            `json:"remarks"`
	Items        []ReturnLineInput `json:"items"`
}

type ReturnResponse struct {
	Return SalesReturn `json:"return"`
}

type HoldCartRequest struct {
	TerminalID string    `json:"terminal"`
	ActorID    string    `json:"actor"`
	Cart       CartState `json:"cart"`
}

type HoldCartResponse struct {
	HoldID string `json:"hold_id"`
}

type HeldCartListResponse struct {
	Items []HeldCart `json:"items"`
}

type RecallCartResponse struct {
	Cart CartState `json:"cart"`
}
