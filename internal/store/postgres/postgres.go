package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"posledger/internal/domain"
	"posledger/internal/store"
	"posledger/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, sales_price, wholesale_price, stock_quantity, active
		FROM products
		WHERE active = true
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.SalesPrice, &p.WholesalePrice, &p.StockQuantity, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	return s.getProduct(ctx, `WHERE id = $1`, id)
}

func (s *Store) GetProductByName(ctx context.Context, name string) (*domain.Product, error) {
	return s.getProduct(ctx, `WHERE name = $1`, name)
}

func (s *Store) getProduct(ctx context.Context, where string, arg any) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, sales_price, wholesale_price, stock_quantity, active
		FROM products
	`+where, arg).Scan(&p.ID, &p.Name, &p.Category, &p.SalesPrice, &p.WholesalePrice, &p.StockQuantity, &p.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListDiscountSchemes(ctx context.Context) ([]domain.DiscountScheme, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scope, target, kind, value, active, start_date, end_date
		FROM discount_schemes
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	schemes := make([]domain.DiscountScheme, 0, 32)
	for rows.Next() {
		var scheme domain.DiscountScheme
		var start, end sql.NullTime
		if err := rows.Scan(&scheme.ID, &scheme.Scope, &scheme.Target, &scheme.Kind, &scheme.Value, &scheme.Active, &start, &end); err != nil {
			return nil, err
		}
		if start.Valid {
			t := start.Time
			scheme.StartDate = &t
		}
		if end.Valid {
			t := end.Time
			scheme.EndDate = &t
		}
		schemes = append(schemes, scheme)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return schemes, nil
}

// OpenRegisterSession serializes the check-then-insert with a row lock on
// the pair's open session. A partial unique index on
// (actor_id, terminal_id) WHERE status = 'open' backstops the race: losing
// it surfaces as ErrConflict, same as finding the row.
func (s *Store) OpenRegisterSession(ctx context.Context, session domain.RegisterSession) (*domain.RegisterSession, error) {
	if strings.TrimSpace(session.ActorID) == "" || strings.TrimSpace(session.TerminalID) == "" {
		return nil, store.ErrInvalidInput
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

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var existingID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM register_sessions
		WHERE actor_id = $1 AND terminal_id = $2 AND status = 'open'
		FOR UPDATE
	`, session.ActorID, session.TerminalID).Scan(&existingID)
	if err == nil {
		return nil, store.ErrConflict
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO register_sessions (
			id, actor_id, terminal_id, status, opening_float,
			closing_float, closing_detail, opened_at, closed_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, session.ID, session.ActorID, session.TerminalID, session.Status, session.OpeningFloat,
		session.ClosingFloat, nullIfEmpty(session.ClosingDetail), session.OpenedAt, nullTime(session.ClosedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		if isSerializationFailure(err) || isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	saved := session
	return &saved, nil
}

func (s *Store) CloseRegisterSession(ctx context.Context, sessionID string, closingFloat decimal.Decimal, closingDetail string, closedAt time.Time) (*domain.RegisterSession, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, store.ErrInvalidInput
	}
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	var session domain.RegisterSession
	var detail sql.NullString
	var closed sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		UPDATE register_sessions
		SET status = 'closed', closing_float = $2, closing_detail = $3, closed_at = $4
		WHERE id = $1 AND status = 'open'
		RETURNING id, actor_id, terminal_id, status, opening_float,
			closing_float, closing_detail, opened_at, closed_at
	`, sessionID, closingFloat, nullIfEmpty(closingDetail), closedAt).Scan(
		&session.ID,
		&session.ActorID,
		&session.TerminalID,
		&session.Status,
		&session.OpeningFloat,
		&session.ClosingFloat,
		&detail,
		&session.OpenedAt,
		&closed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if detail.Valid {
		session.ClosingDetail = detail.String
	}
	if closed.Valid {
		t := closed.Time
		session.ClosedAt = &t
	}
	return &session, nil
}

func (s *Store) GetOpenRegisterSession(ctx context.Context, actorID string, terminalID string) (*domain.RegisterSession, error) {
	var session domain.RegisterSession
	var detail sql.NullString
	var closed sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, actor_id, terminal_id, status, opening_float,
			closing_float, closing_detail, opened_at, closed_at
		FROM register_sessions
		WHERE actor_id = $1 AND terminal_id = $2 AND status = 'open'
	`, actorID, terminalID).Scan(
		&session.ID,
		&session.ActorID,
		&session.TerminalID,
		&session.Status,
		&session.OpeningFloat,
		&session.ClosingFloat,
		&detail,
		&session.OpenedAt,
		&closed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if detail.Valid {
		session.ClosingDetail = detail.String
	}
	if closed.Valid {
		t := closed.Time
		session.ClosedAt = &t
	}
	return &session, nil
}

func (s *Store) MaxBillSequence(ctx context.Context, prefix string) (int, error) {
	if strings.TrimSpace(prefix) == "" {
		return 0, store.ErrInvalidInput
	}
	var maxSeq int
	err := s.db.QueryRowContext(ctx, maxBillSequenceQuery, prefix).Scan(&maxSeq)
	if err != nil {
		return 0, err
	}
	return maxSeq, nil
}

// Only strictly numeric tails count so a malformed legacy bill number can
// never break the cast.
const maxBillSequenceQuery = `
	SELECT COALESCE(MAX(substring(bill_number FROM char_length($1) + 2)::int), 0)
	FROM sales
	WHERE bill_number ~ ('^' || $1 || '-[0-9]+$')
`

// CreateSale mints the bill number and inserts the sale in one serializable
// transaction. The number is derived from durably persisted rows, never from
// a cached counter; the unique index on sales.bill_number turns any race the
// isolation level misses into ErrConflict.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale, prefix string) (*domain.Sale, error) {
	if strings.TrimSpace(prefix) == "" || strings.TrimSpace(sale.ActorID) == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var maxSeq int
	if err := tx.QueryRowContext(ctx, maxBillSequenceQuery, prefix).Scan(&maxSeq); err != nil {
		return nil, err
	}
	sale.BillNumber = formatBillNumber(prefix, maxSeq+1)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, bill_number, actor_id, customer_name, channel,
			subtotal, discount, tax, total, payment_method,
			received_amount, balance, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, sale.ID, sale.BillNumber, sale.ActorID, nullIfEmpty(sale.CustomerName), sale.Channel,
		sale.Subtotal, sale.Discount, sale.Tax, sale.Total, sale.PaymentMethod,
		sale.ReceivedAmount, sale.Balance, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	if err := insertSaleItems(ctx, tx, &sale); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		if isSerializationFailure(err) || isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	saved := sale
	return &saved, nil
}

func insertSaleItems(ctx context.Context, tx *sql.Tx, sale *domain.Sale) error {
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
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (
				id, sale_id, product_id, product_name, quantity,
				mrp, unit_price, discount, line_total, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, item.ID, item.SaleID, nullIfEmpty(item.ProductID), item.ProductName, item.Quantity,
			item.MRP, item.UnitPrice, item.Discount, item.LineTotal, item.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := scanSaleHeader(s.db.QueryRowContext(ctx, `
		SELECT id, bill_number, actor_id, customer_name, channel,
			subtotal, discount, tax, total, payment_method,
			received_amount, balance, created_at
		FROM sales
		WHERE id = $1
	`, id))
	if err != nil {
		return nil, err
	}

	items, err := s.listSaleItems(ctx, id)
	if err != nil {
		return nil, err
	}
	sale.Items = items
	return sale, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSaleHeader(row rowScanner) (*domain.Sale, error) {
	var sale domain.Sale
	var customer sql.NullString
	err := row.Scan(
		&sale.ID,
		&sale.BillNumber,
		&sale.ActorID,
		&customer,
		&sale.Channel,
		&sale.Subtotal,
		&sale.Discount,
		&sale.Tax,
		&sale.Total,
		&sale.PaymentMethod,
		&sale.ReceivedAmount,
		&sale.Balance,
		&sale.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if customer.Valid {
		sale.CustomerName = customer.String
	}
	return &sale, nil
}

func (s *Store) listSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, product_id, product_name, quantity,
			mrp, unit_price, discount, line_total, created_at
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY created_at, id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 16)
	for rows.Next() {
		var item domain.SaleItem
		var productID sql.NullString
		if err := rows.Scan(&item.ID, &item.SaleID, &productID, &item.ProductName, &item.Quantity,
			&item.MRP, &item.UnitPrice, &item.Discount, &item.LineTotal, &item.CreatedAt); err != nil {
			return nil, err
		}
		if productID.Valid {
			item.ProductID = productID.String
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// ReplaceSale rewrites the header and swaps the entire item set inside one
// transaction: either all old lines are gone and all new lines present, or
// the sale is untouched.
func (s *Store) ReplaceSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if strings.TrimSpace(sale.ID) == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		SELECT bill_number, actor_id, created_at
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, sale.ID).Scan(&sale.BillNumber, &sale.ActorID, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sales
		SET customer_name = $2, channel = $3, subtotal = $4, discount = $5,
			tax = $6, total = $7, payment_method = $8, received_amount = $9, balance = $10
		WHERE id = $1
	`, sale.ID, nullIfEmpty(sale.CustomerName), sale.Channel, sale.Subtotal, sale.Discount,
		sale.Tax, sale.Total, sale.PaymentMethod, sale.ReceivedAmount, sale.Balance)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, sale.ID); err != nil {
		return nil, err
	}
	for i := range sale.Items {
		sale.Items[i].ID = ""
		sale.Items[i].CreatedAt = time.Time{}
	}
	if err := insertSaleItems(ctx, tx, &sale); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	saved := sale
	return &saved, nil
}

func (s *Store) DeleteSale(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	return tx.Commit()
}

func (s *Store) CreateSalesReturn(ctx context.Context, ret domain.SalesReturn) (*domain.SalesReturn, error) {
	if err := validateReturn(ret); err != nil {
		return nil, err
	}
	if ret.ID == "" {
		ret.ID = xid.New("salesreturn")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales_returns (
			id, bill_number, invoice_no, status, refund_method, remarks, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, ret.ID, nullIfEmpty(ret.BillNumber), nullIfEmpty(ret.InvoiceNo), ret.Status,
		nullIfEmpty(ret.RefundMethod), nullIfEmpty(ret.Remarks), ret.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := insertReturnItems(ctx, tx, &ret); err != nil {
		return nil, err
	}

	if ret.Status == domain.ReturnStatusApproved {
		if err := applyAdjustment(ctx, tx, ret.InvoiceNo, ret.Items, false); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	saved := ret
	return &saved, nil
}

func insertReturnItems(ctx context.Context, tx *sql.Tx, ret *domain.SalesReturn) error {
	for i := range ret.Items {
		item := &ret.Items[i]
		if item.ID == "" {
			item.ID = xid.New("retitem")
		}
		item.ReturnID = ret.ID
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sales_return_items (
				id, return_id, product_id, quantity, unit_cost, reason
			)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, item.ID, item.ReturnID, item.ProductID, item.Quantity, item.UnitCost, nullIfEmpty(item.Reason))
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetSalesReturn(ctx context.Context, id string) (*domain.SalesReturn, error) {
	ret, err := s.getReturnHeader(ctx, s.db, id, false)
	if err != nil {
		return nil, err
	}
	items, err := listReturnItems(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	ret.Items = items
	return ret, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getReturnHeader(ctx context.Context, q querier, id string, forUpdate bool) (*domain.SalesReturn, error) {
	query := `
		SELECT id, bill_number, invoice_no, status, refund_method, remarks, created_at
		FROM sales_returns
		WHERE id = $1
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var ret domain.SalesReturn
	var bill, invoice, refund, remarks sql.NullString
	err := q.QueryRowContext(ctx, query, id).Scan(
		&ret.ID, &bill, &invoice, &ret.Status, &refund, &remarks, &ret.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	ret.BillNumber = bill.String
	ret.InvoiceNo = invoice.String
	ret.RefundMethod = refund.String
	ret.Remarks = remarks.String
	return &ret, nil
}

func listReturnItems(ctx context.Context, q querier, returnID string) ([]domain.SalesReturnItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, return_id, product_id, quantity, unit_cost, reason
		FROM sales_return_items
		WHERE return_id = $1
		ORDER BY id
	`, returnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SalesReturnItem, 0, 8)
	for rows.Next() {
		var item domain.SalesReturnItem
		var reason sql.NullString
		if err := rows.Scan(&item.ID, &item.ReturnID, &item.ProductID, &item.Quantity, &item.UnitCost, &reason); err != nil {
			return nil, err
		}
		item.Reason = reason.String
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateSalesReturn replaces the header and item set, applying the
// reconciliation required by the status transition: leaving approved
// reverses the OLD items first, entering approved applies the NEW items
// after the replace, approved to approved replaces without re-adjusting.
func (s *Store) UpdateSalesReturn(ctx context.Context, ret domain.SalesReturn) (*domain.SalesReturn, error) {
	if strings.TrimSpace(ret.ID) == "" {
		return nil, store.ErrInvalidInput
	}
	if err := validateReturn(ret); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := s.getReturnHeader(ctx, tx, ret.ID, true)
	if err != nil {
		return nil, err
	}
	oldItems, err := listReturnItems(ctx, tx, ret.ID)
	if err != nil {
		return nil, err
	}

	wasApproved := existing.Status == domain.ReturnStatusApproved
	willBeApproved := ret.Status == domain.ReturnStatusApproved

	if wasApproved && !willBeApproved {
		if err := applyAdjustment(ctx, tx, existing.InvoiceNo, oldItems, true); err != nil {
			return nil, err
		}
	}

	ret.CreatedAt = existing.CreatedAt
	_, err = tx.ExecContext(ctx, `
		UPDATE sales_returns
		SET bill_number = $2, invoice_no = $3, status = $4, refund_method = $5, remarks = $6
		WHERE id = $1
	`, ret.ID, nullIfEmpty(ret.BillNumber), nullIfEmpty(ret.InvoiceNo), ret.Status,
		nullIfEmpty(ret.RefundMethod), nullIfEmpty(ret.Remarks))
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sales_return_items WHERE return_id = $1`, ret.ID); err != nil {
		return nil, err
	}
	for i := range ret.Items {
		ret.Items[i].ID = ""
	}
	if err := insertReturnItems(ctx, tx, &ret); err != nil {
		return nil, err
	}

	if !wasApproved && willBeApproved {
		if err := applyAdjustment(ctx, tx, ret.InvoiceNo, ret.Items, false); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	saved := ret
	return &saved, nil
}

func (s *Store) DeleteSalesReturn(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := s.getReturnHeader(ctx, tx, id, true)
	if err != nil {
		return err
	}

	// Deleting an approved return is an implicit un-approval.
	if existing.Status == domain.ReturnStatusApproved {
		items, err := listReturnItems(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := applyAdjustment(ctx, tx, existing.InvoiceNo, items, true); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sales_return_items WHERE return_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sales_returns WHERE id = $1`, id); err != nil {
		return err
	}

	return tx.Commit()
}

// applyAdjustment mutates the three quantity ledgers for a set of return
// items. Every touched row is locked first so a concurrent sale edit cannot
// interleave, and all products are verified up front so a missing one rolls
// the whole transaction back.
//
// The sale-side target is the most recently created sale_items row for the
// product across ALL sales. That matches the behavior this system has always
// shipped with; a return against an old bill can adjust a newer sale's line.
func applyAdjustment(ctx context.Context, tx *sql.Tx, invoiceNo string, items []domain.SalesReturnItem, reverse bool) error {
	for _, item := range items {
		var productID string
		err := tx.QueryRowContext(ctx, `SELECT id FROM products WHERE id = $1 FOR UPDATE`, item.ProductID).Scan(&productID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrReferenceIntegrity
			}
			return err
		}
	}

	for _, item := range items {
		qty := item.Quantity
		if qty.Sign() <= 0 {
			continue
		}

		var saleItemID string
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM sale_items
			WHERE product_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT 1
			FOR UPDATE
		`, item.ProductID).Scan(&saleItemID)
		switch {
		case err == nil:
			if reverse {
				_, err = tx.ExecContext(ctx, `UPDATE sale_items SET quantity = quantity + $2 WHERE id = $1`, saleItemID, qty)
			} else {
				_, err = tx.ExecContext(ctx, `UPDATE sale_items SET quantity = GREATEST(quantity - $2, 0) WHERE id = $1`, saleItemID, qty)
			}
			if err != nil {
				return err
			}
		case errors.Is(err, sql.ErrNoRows):
			// No sale line for this product; nothing to adjust on the sale side.
		default:
			return err
		}

		if invoiceNo != "" {
			var invoiceItemID string
			err := tx.QueryRowContext(ctx, `
				SELECT id FROM invoice_items
				WHERE invoice_no = $1 AND product_id = $2
				LIMIT 1
				FOR UPDATE
			`, invoiceNo, item.ProductID).Scan(&invoiceItemID)
			switch {
			case err == nil:
				if reverse {
					_, err = tx.ExecContext(ctx, `UPDATE invoice_items SET quantity = quantity + $2 WHERE id = $1`, invoiceItemID, qty)
				} else {
					_, err = tx.ExecContext(ctx, `UPDATE invoice_items SET quantity = GREATEST(quantity - $2, 0) WHERE id = $1`, invoiceItemID, qty)
				}
				if err != nil {
					return err
				}
			case errors.Is(err, sql.ErrNoRows):
			default:
				return err
			}
		}

		if reverse {
			_, err = tx.ExecContext(ctx, `UPDATE products SET stock_quantity = GREATEST(stock_quantity - $2, 0) WHERE id = $1`, item.ProductID, qty)
		} else {
			_, err = tx.ExecContext(ctx, `UPDATE products SET stock_quantity = stock_quantity + $2 WHERE id = $1`, item.ProductID, qty)
		}
		if err != nil {
			return err
		}
	}

	return nil
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

func (s *Store) CreateHeldCart(ctx context.Context, held domain.HeldCart) (*domain.HeldCart, error) {
	if strings.TrimSpace(held.TerminalID) == "" || strings.TrimSpace(held.ActorID) == "" {
		return nil, store.ErrInvalidInput
	}
	if held.HoldID == "" {
		held.HoldID = newHoldID()
	}
	if held.HeldAt.IsZero() {
		held.HeldAt = time.Now().UTC()
	}

	cartRaw, err := json.Marshal(held.Cart)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO held_carts (hold_id, terminal_id, actor_id, cart, held_at)
		VALUES ($1,$2,$3,$4,$5)
	`, held.HoldID, held.TerminalID, held.ActorID, cartRaw, held.HeldAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	saved := held
	return &saved, nil
}

func (s *Store) ListHeldCarts(ctx context.Context, terminalID string) ([]domain.HeldCart, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hold_id, terminal_id, actor_id, cart, held_at
		FROM held_carts
		WHERE ($1 = '' OR terminal_id = $1)
		ORDER BY held_at, hold_id
	`, terminalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.HeldCart, 0, 16)
	for rows.Next() {
		var held domain.HeldCart
		var cartRaw []byte
		if err := rows.Scan(&held.HoldID, &held.TerminalID, &held.ActorID, &cartRaw, &held.HeldAt); err != nil {
			return nil, err
		}
		if len(cartRaw) > 0 {
			if err := json.Unmarshal(cartRaw, &held.Cart); err != nil {
				return nil, err
			}
		}
		result = append(result, held)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// PopHeldCart locks, reads and deletes in one transaction so concurrent
// recalls of the same hold id yield exactly one cart.
func (s *Store) PopHeldCart(ctx context.Context, holdID string) (*domain.HeldCart, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var held domain.HeldCart
	var cartRaw []byte
	err = tx.QueryRowContext(ctx, `
		SELECT hold_id, terminal_id, actor_id, cart, held_at
		FROM held_carts
		WHERE hold_id = $1
		FOR UPDATE
	`, holdID).Scan(&held.HoldID, &held.TerminalID, &held.ActorID, &cartRaw, &held.HeldAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if len(cartRaw) > 0 {
		if err := json.Unmarshal(cartRaw, &held.Cart); err != nil {
			return nil, err
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM held_carts WHERE hold_id = $1`, holdID)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &held, nil
}

func (s *Store) DeleteHeldCart(ctx context.Context, holdID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM held_carts WHERE hold_id = $1`, holdID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetInvoiceByNo(ctx context.Context, invoiceNo string) (*domain.Invoice, error) {
	var invoice domain.Invoice
	var customer sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, invoice_no, customer_name, total, created_at
		FROM invoices
		WHERE invoice_no = $1
	`, invoiceNo).Scan(&invoice.ID, &invoice.InvoiceNo, &customer, &invoice.Total, &invoice.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	invoice.CustomerName = customer.String

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invoice_no, product_id, quantity, unit_price, created_at
		FROM invoice_items
		WHERE invoice_no = $1
		ORDER BY created_at, id
	`, invoiceNo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.InvoiceItem
		if err := rows.Scan(&item.ID, &item.InvoiceNo, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.CreatedAt); err != nil {
			return nil, err
		}
		invoice.Items = append(invoice.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (s *Store) AppendAudit(ctx context.Context, entry domain.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor_id, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorID, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID,
		nullIfEmpty(entry.Detail), entry.CreatedAt)
	return err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return store.ErrConflict
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.ID, &user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username)), password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func formatBillNumber(prefix string, seq int) string {
	return fmt.Sprintf("%s-%04d", prefix, seq)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// 40001 is a serialization failure under the serializable isolation level;
// callers treat it as a retryable conflict.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func newHoldID() string {
	return uuid.NewString()
}
