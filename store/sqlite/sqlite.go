/*
Package sqlite provides the SQLite-backed implementation of ledger.Store.

PURPOSE:
  Persists shops, deliveries, payments, manual adjustments, deferred marks,
  products, staff, stock, and the deleted-deliveries audit trail. The store
  stays record-oriented: it never aggregates pending amounts in SQL - every
  balance figure is computed by the engine from raw rows.

KEY TABLES:
  shops               customer records (soft-deactivated, never deleted)
  deliveries          dated delivery records with line items and paid amount
  payments            immutable cash receipts
  manual_adjustments  out-of-band debt/credit records
  deferred_marks      "pay tomorrow" flags, unique per shop+date
  products / staff    reference data
  stock               per-product on-hand quantity and threshold
  deleted_deliveries  audit trail for logically deleted deliveries

AMOUNTS:
  Currency amounts are stored as decimal strings and parsed back through
  shopspring/decimal. No REAL columns for money. A malformed stored amount
  is a read error, never a silent zero.

WRITE ATOMICITY:
  ApplyPayment writes the payment row, the delivery paid-amount updates, and
  the manual-debt settlement credit in one SQL transaction. DeleteDelivery
  moves the row into the audit table in one SQL transaction.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, and SQLite is opened in WAL mode.
  Per-shop write serialization is the service layer's job, not the store's.

USAGE:
  store, err := sqlite.New("./data/milkroute.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions and the read contract
  - ledger/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/milkroute/ledger-engine/ledger"
)

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS shops (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		owner_name TEXT,
		phone TEXT,
		address TEXT,
		route_number TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_shops_active ON shops(is_active);

	CREATE TABLE IF NOT EXISTS deliveries (
		id TEXT PRIMARY KEY,
		shop_id TEXT NOT NULL,
		staff_id TEXT NOT NULL,
		delivery_date TEXT NOT NULL,
		lines_json TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		paid_amount TEXT NOT NULL DEFAULT '0',
		archived INTEGER NOT NULL DEFAULT 0,
		note TEXT,
		created_at TEXT NOT NULL
	);

	-- Hot path: per-shop reconciliation reads
	CREATE INDEX IF NOT EXISTS idx_deliveries_shop_date
		ON deliveries(shop_id, delivery_date);
	CREATE INDEX IF NOT EXISTS idx_deliveries_date_archived
		ON deliveries(delivery_date, archived);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		shop_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		payment_date TEXT NOT NULL,
		collected_by TEXT NOT NULL,
		note TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_shop_date
		ON payments(shop_id, payment_date);

	CREATE TABLE IF NOT EXISTS manual_adjustments (
		id TEXT PRIMARY KEY,
		shop_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		origin_date TEXT NOT NULL,
		note TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_adjustments_shop
		ON manual_adjustments(shop_id);

	CREATE TABLE IF NOT EXISTS deferred_marks (
		shop_id TEXT NOT NULL,
		date TEXT NOT NULL,
		note TEXT,
		created_at TEXT NOT NULL,
		PRIMARY KEY (shop_id, date)
	);

	CREATE INDEX IF NOT EXISTS idx_deferred_marks_date ON deferred_marks(date);

	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS staff (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS stock (
		product_id TEXT PRIMARY KEY,
		quantity INTEGER NOT NULL DEFAULT 0,
		low_stock_threshold INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS deleted_deliveries (
		id TEXT PRIMARY KEY,
		delivery_json TEXT NOT NULL,
		deleted_by TEXT NOT NULL,
		reason TEXT,
		deleted_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTION READER (ledger.TransactionReader interface)
// =============================================================================

// ShopTransactions returns raw records for reconciliation: unarchived
// deliveries dated <= asOf, archived deliveries that still carry unpaid
// balance, payments dated <= asOf, and all manual adjustments.
func (s *Store) ShopTransactions(ctx context.Context, shopID ledger.ShopID, asOf ledger.Date) (ledger.ShopTransactions, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs := ledger.ShopTransactions{ShopID: shopID}

	// Archived rows are fetched unconditionally; the unpaid filter happens
	// in Go because amounts are stored as decimal strings.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shop_id, staff_id, delivery_date, lines_json, total_amount,
		       paid_amount, archived, note, created_at
		FROM deliveries
		WHERE shop_id = ? AND ((archived = 0 AND delivery_date <= ?) OR archived = 1)
		ORDER BY delivery_date ASC, created_at ASC
	`, shopID, asOf.String())
	if err != nil {
		return txs, &ledger.FetchError{ShopID: shopID, Op: "deliveries", Err: err}
	}
	deliveries, err := scanDeliveries(rows)
	if err != nil {
		return txs, &ledger.FetchError{ShopID: shopID, Op: "deliveries", Err: err}
	}
	for _, d := range deliveries {
		if d.Archived && !d.Unpaid().IsPositive() {
			continue
		}
		txs.Deliveries = append(txs.Deliveries, d)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT id, shop_id, amount, payment_date, collected_by, note, created_at
		FROM payments
		WHERE shop_id = ? AND payment_date <= ?
		ORDER BY payment_date ASC, created_at ASC
	`, shopID, asOf.String())
	if err != nil {
		return txs, &ledger.FetchError{ShopID: shopID, Op: "payments", Err: err}
	}
	txs.Payments, err = scanPayments(rows)
	if err != nil {
		return txs, &ledger.FetchError{ShopID: shopID, Op: "payments", Err: err}
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT id, shop_id, amount, origin_date, note, created_at
		FROM manual_adjustments
		WHERE shop_id = ?
		ORDER BY origin_date ASC, created_at ASC
	`, shopID)
	if err != nil {
		return txs, &ledger.FetchError{ShopID: shopID, Op: "adjustments", Err: err}
	}
	txs.Adjustments, err = scanAdjustments(rows)
	if err != nil {
		return txs, &ledger.FetchError{ShopID: shopID, Op: "adjustments", Err: err}
	}

	return txs, nil
}

// =============================================================================
// SHOPS
// =============================================================================

func (s *Store) ListShops(ctx context.Context, activeOnly bool) ([]ledger.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, name, owner_name, phone, address, route_number, is_active, created_at FROM shops`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list shops: %w", err)
	}
	defer rows.Close()

	var shops []ledger.Shop
	for rows.Next() {
		shop, err := scanShop(rows)
		if err != nil {
			return nil, err
		}
		shops = append(shops, shop)
	}
	return shops, rows.Err()
}

func (s *Store) GetShop(ctx context.Context, id ledger.ShopID) (*ledger.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, owner_name, phone, address, route_number, is_active, created_at
		FROM shops WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get shop: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ledger.ErrShopNotFound
	}
	shop, err := scanShop(rows)
	if err != nil {
		return nil, err
	}
	return &shop, nil
}

func (s *Store) SaveShop(ctx context.Context, shop ledger.Shop) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := shop.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shops (id, name, owner_name, phone, address, route_number, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			owner_name = excluded.owner_name,
			phone = excluded.phone,
			address = excluded.address,
			route_number = excluded.route_number,
			is_active = excluded.is_active
	`, shop.ID, shop.Name, shop.OwnerName, shop.Phone, shop.Address, shop.RouteNumber,
		boolToInt(shop.Active), createdAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save shop: %w", err)
	}
	return nil
}

func (s *Store) DeactivateShop(ctx context.Context, id ledger.ShopID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE shops SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate shop: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrShopNotFound
	}
	return nil
}

// =============================================================================
// DELIVERIES
// =============================================================================

func (s *Store) SaveDelivery(ctx context.Context, d ledger.DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	linesJSON, err := marshalLines(d.Lines)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery lines: %w", err)
	}
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO deliveries
		(id, shop_id, staff_id, delivery_date, lines_json, total_amount, paid_amount, archived, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.ShopID, d.StaffID, d.DeliveryDate.String(), linesJSON,
		d.TotalAmount.String(), d.PaidAmount.String(), boolToInt(d.Archived), d.Note,
		createdAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save delivery: %w", err)
	}
	return nil
}

func (s *Store) GetDelivery(ctx context.Context, id ledger.DeliveryID) (*ledger.DeliveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getDelivery(ctx, id)
}

// getDelivery is the lock-free variant shared with DeleteDelivery.
func (s *Store) getDelivery(ctx context.Context, id ledger.DeliveryID) (*ledger.DeliveryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shop_id, staff_id, delivery_date, lines_json, total_amount,
		       paid_amount, archived, note, created_at
		FROM deliveries WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery: %w", err)
	}
	deliveries, err := scanDeliveries(rows)
	if err != nil {
		return nil, err
	}
	if len(deliveries) == 0 {
		return nil, ledger.ErrDeliveryNotFound
	}
	return &deliveries[0], nil
}

func (s *Store) DeliveriesForDate(ctx context.Context, date ledger.Date) ([]ledger.DeliveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shop_id, staff_id, delivery_date, lines_json, total_amount,
		       paid_amount, archived, note, created_at
		FROM deliveries
		WHERE delivery_date = ? AND archived = 0
		ORDER BY created_at ASC
	`, date.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	return scanDeliveries(rows)
}

// ApplyPayment persists the payment, the allocation's delivery updates, and
// the manual-debt settlement credit (if any) in one SQL transaction.
func (s *Store) ApplyPayment(ctx context.Context, p ledger.PaymentRecord, updated []ledger.DeliveryRecord, settlement *ledger.ManualAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (id, shop_id, amount, payment_date, collected_by, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.ShopID, p.Amount.String(), p.PaymentDate.String(), p.CollectedBy, p.Note,
		createdAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}

	for _, d := range updated {
		res, err := tx.ExecContext(ctx,
			`UPDATE deliveries SET paid_amount = ? WHERE id = ?`,
			d.PaidAmount.String(), d.ID)
		if err != nil {
			return fmt.Errorf("failed to update delivery %s: %w", d.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ledger.ErrDeliveryNotFound
		}
	}

	if settlement != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO manual_adjustments (id, shop_id, amount, origin_date, note, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, settlement.ID, settlement.ShopID, settlement.Amount.String(),
			settlement.OriginDate.String(), settlement.Note, createdAt.Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("failed to insert settlement adjustment: %w", err)
		}
	}

	return tx.Commit()
}

// DeleteDelivery moves the row into the deleted-deliveries audit table.
func (s *Store) DeleteDelivery(ctx context.Context, id ledger.DeliveryID, deletedBy ledger.StaffID, reason string) (*ledger.DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.getDelivery(ctx, id)
	if err != nil {
		return nil, err
	}

	deliveryJSON, err := json.Marshal(storedDelivery(*d))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal deleted delivery: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM deliveries WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to delete delivery: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO deleted_deliveries (id, delivery_json, deleted_by, reason, deleted_at)
		VALUES (?, ?, ?, ?, ?)
	`, d.ID, string(deliveryJSON), deletedBy, reason,
		time.Now().UTC().Format(time.RFC3339)); err != nil {
		return nil, fmt.Errorf("failed to insert audit record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Store) DeletedDeliveries(ctx context.Context) ([]ledger.DeletedDelivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, delivery_json, deleted_by, reason, deleted_at
		FROM deleted_deliveries
		ORDER BY deleted_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list deleted deliveries: %w", err)
	}
	defer rows.Close()

	var out []ledger.DeletedDelivery
	for rows.Next() {
		var dd ledger.DeletedDelivery
		var deliveryJSON, deletedAt string
		var reason sql.NullString
		if err := rows.Scan(&dd.ID, &deliveryJSON, &dd.DeletedBy, &reason, &deletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deleted delivery: %w", err)
		}
		var stored deliveryRecordJSON
		if err := json.Unmarshal([]byte(deliveryJSON), &stored); err != nil {
			return nil, fmt.Errorf("failed to unmarshal deleted delivery: %w", err)
		}
		d, err := stored.toRecord()
		if err != nil {
			return nil, err
		}
		dd.Delivery = d
		dd.Reason = reason.String
		dd.DeletedAt, _ = time.Parse(time.RFC3339, deletedAt)
		out = append(out, dd)
	}
	return out, rows.Err()
}

// =============================================================================
// ADJUSTMENTS AND DEFERRED MARKS
// =============================================================================

func (s *Store) SaveAdjustment(ctx context.Context, a ledger.ManualAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO manual_adjustments (id, shop_id, amount, origin_date, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, a.ShopID, a.Amount.String(), a.OriginDate.String(), a.Note,
		createdAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save adjustment: %w", err)
	}
	return nil
}

func (s *Store) GetDeferredMark(ctx context.Context, shopID ledger.ShopID, date ledger.Date) (*ledger.DeferredPaymentMark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var mark ledger.DeferredPaymentMark
	var day, createdAt string
	var note sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT shop_id, date, note, created_at FROM deferred_marks
		WHERE shop_id = ? AND date = ?
	`, shopID, date.String()).Scan(&mark.ShopID, &day, &note, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deferred mark: %w", err)
	}
	mark.Date, _ = ledger.ParseDate(day)
	mark.Note = note.String
	mark.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &mark, nil
}

func (s *Store) SaveDeferredMark(ctx context.Context, mark ledger.DeferredPaymentMark) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := mark.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	// Idempotent: re-marking the same shop+date is a no-op.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deferred_marks (shop_id, date, note, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(shop_id, date) DO NOTHING
	`, mark.ShopID, mark.Date.String(), mark.Note, createdAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save deferred mark: %w", err)
	}
	return nil
}

func (s *Store) ClearDeferredMarks(ctx context.Context, date ledger.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM deferred_marks WHERE date = ?`, date.String()); err != nil {
		return fmt.Errorf("failed to clear deferred marks: %w", err)
	}
	return nil
}

// =============================================================================
// PRODUCTS AND STAFF
// =============================================================================

func (s *Store) ListProducts(ctx context.Context, activeOnly bool) ([]ledger.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, name, unit_price, is_active, created_at FROM products`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []ledger.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id ledger.ProductID) (*ledger.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, unit_price, is_active, created_at FROM products WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ledger.ErrProductNotFound
	}
	p, err := scanProduct(rows)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) SaveProduct(ctx context.Context, p ledger.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, unit_price, is_active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			unit_price = excluded.unit_price,
			is_active = excluded.is_active
	`, p.ID, p.Name, p.UnitPrice.String(), boolToInt(p.Active), createdAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}
	return nil
}

func (s *Store) ListStaff(ctx context.Context, activeOnly bool) ([]ledger.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, name, phone, is_active, created_at FROM staff`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	defer rows.Close()

	var staff []ledger.Staff
	for rows.Next() {
		st, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		staff = append(staff, st)
	}
	return staff, rows.Err()
}

func (s *Store) GetStaff(ctx context.Context, id ledger.StaffID) (*ledger.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, phone, is_active, created_at FROM staff WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get staff: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ledger.ErrStaffNotFound
	}
	st, err := scanStaff(rows)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) SaveStaff(ctx context.Context, st ledger.Staff) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := st.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO staff (id, name, phone, is_active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			phone = excluded.phone,
			is_active = excluded.is_active
	`, st.ID, st.Name, st.Phone, boolToInt(st.Active), createdAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save staff: %w", err)
	}
	return nil
}

// =============================================================================
// STOCK
// =============================================================================

func (s *Store) StockLevels(ctx context.Context) ([]ledger.StockLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, quantity, low_stock_threshold, updated_at
		FROM stock ORDER BY product_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock: %w", err)
	}
	defer rows.Close()

	var levels []ledger.StockLevel
	for rows.Next() {
		var l ledger.StockLevel
		var updatedAt string
		if err := rows.Scan(&l.ProductID, &l.Quantity, &l.LowStockThreshold, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stock: %w", err)
		}
		l.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		levels = append(levels, l)
	}
	return levels, rows.Err()
}

func (s *Store) GetStock(ctx context.Context, productID ledger.ProductID) (*ledger.StockLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var l ledger.StockLevel
	var updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT product_id, quantity, low_stock_threshold, updated_at
		FROM stock WHERE product_id = ?
	`, productID).Scan(&l.ProductID, &l.Quantity, &l.LowStockThreshold, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock: %w", err)
	}
	l.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &l, nil
}

func (s *Store) SetStock(ctx context.Context, level ledger.StockLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stock (product_id, quantity, low_stock_threshold, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(product_id) DO UPDATE SET
			quantity = excluded.quantity,
			low_stock_threshold = excluded.low_stock_threshold,
			updated_at = excluded.updated_at
	`, level.ProductID, level.Quantity, level.LowStockThreshold,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to set stock: %w", err)
	}
	return nil
}

// AdjustStock applies a signed delta, rejecting adjustments that would drive
// the on-hand quantity negative.
func (s *Store) AdjustStock(ctx context.Context, productID ledger.ProductID, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var quantity int
	err = tx.QueryRowContext(ctx,
		`SELECT quantity FROM stock WHERE product_id = ?`, productID).Scan(&quantity)
	if err == sql.ErrNoRows {
		return ledger.ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read stock: %w", err)
	}

	next := quantity + delta
	if next < 0 {
		return &ledger.InsufficientStockError{
			ProductID: productID,
			Requested: -delta,
			OnHand:    quantity,
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE stock SET quantity = ?, updated_at = ? WHERE product_id = ?`,
		next, time.Now().UTC().Format(time.RFC3339), productID)
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}
	return tx.Commit()
}

// =============================================================================
// DAILY RESET
// =============================================================================

// ArchiveDeliveries marks every non-archived delivery dated <= date as
// archived and returns the number of rows affected.
func (s *Store) ArchiveDeliveries(ctx context.Context, date ledger.Date) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE deliveries SET archived = 1 WHERE archived = 0 AND delivery_date <= ?`,
		date.String())
	if err != nil {
		return 0, fmt.Errorf("failed to archive deliveries: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Reset wipes every table. Demo scenario loading only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reset: %w", err)
	}
	defer tx.Rollback()

	tables := []string{
		"deleted_deliveries", "deferred_marks", "manual_adjustments",
		"payments", "deliveries", "stock", "products", "staff", "shops",
	}
	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// =============================================================================
// ROW SCANNING AND SERIALIZATION HELPERS
// =============================================================================

// lineRecord is the stored form of a delivery line item.
type lineRecord struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Subtotal  string `json:"subtotal"`
}

func marshalLines(lines []ledger.ProductLine) (string, error) {
	records := make([]lineRecord, len(lines))
	for i, l := range lines {
		records[i] = lineRecord{
			ProductID: string(l.ProductID),
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.String(),
			Subtotal:  l.Subtotal.String(),
		}
	}
	b, err := json.Marshal(records)
	return string(b), err
}

func unmarshalLines(data string) ([]ledger.ProductLine, error) {
	var records []lineRecord
	if err := json.Unmarshal([]byte(data), &records); err != nil {
		return nil, err
	}
	lines := make([]ledger.ProductLine, len(records))
	for i, r := range records {
		unitPrice, err := ledger.ParseMoney(r.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("bad line unit price %q: %w", r.UnitPrice, err)
		}
		subtotal, err := ledger.ParseMoney(r.Subtotal)
		if err != nil {
			return nil, fmt.Errorf("bad line subtotal %q: %w", r.Subtotal, err)
		}
		lines[i] = ledger.ProductLine{
			ProductID: ledger.ProductID(r.ProductID),
			Quantity:  r.Quantity,
			UnitPrice: unitPrice,
			Subtotal:  subtotal,
		}
	}
	return lines, nil
}

// deliveryRecordJSON is the stored form of a full delivery (audit trail).
type deliveryRecordJSON struct {
	ID           string       `json:"id"`
	ShopID       string       `json:"shop_id"`
	StaffID      string       `json:"staff_id"`
	DeliveryDate string       `json:"delivery_date"`
	Lines        []lineRecord `json:"lines"`
	TotalAmount  string       `json:"total_amount"`
	PaidAmount   string       `json:"paid_amount"`
	Archived     bool         `json:"archived"`
	Note         string       `json:"note,omitempty"`
	CreatedAt    string       `json:"created_at"`
}

func storedDelivery(d ledger.DeliveryRecord) deliveryRecordJSON {
	lines := make([]lineRecord, len(d.Lines))
	for i, l := range d.Lines {
		lines[i] = lineRecord{
			ProductID: string(l.ProductID),
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.String(),
			Subtotal:  l.Subtotal.String(),
		}
	}
	return deliveryRecordJSON{
		ID:           string(d.ID),
		ShopID:       string(d.ShopID),
		StaffID:      string(d.StaffID),
		DeliveryDate: d.DeliveryDate.String(),
		Lines:        lines,
		TotalAmount:  d.TotalAmount.String(),
		PaidAmount:   d.PaidAmount.String(),
		Archived:     d.Archived,
		Note:         d.Note,
		CreatedAt:    d.CreatedAt.Format(time.RFC3339),
	}
}

func (j deliveryRecordJSON) toRecord() (ledger.DeliveryRecord, error) {
	date, err := ledger.ParseDate(j.DeliveryDate)
	if err != nil {
		return ledger.DeliveryRecord{}, fmt.Errorf("bad delivery date %q: %w", j.DeliveryDate, err)
	}
	lines := make([]ledger.ProductLine, len(j.Lines))
	for i, l := range j.Lines {
		unitPrice, err := ledger.ParseMoney(l.UnitPrice)
		if err != nil {
			return ledger.DeliveryRecord{}, fmt.Errorf("bad line unit price %q: %w", l.UnitPrice, err)
		}
		subtotal, err := ledger.ParseMoney(l.Subtotal)
		if err != nil {
			return ledger.DeliveryRecord{}, fmt.Errorf("bad line subtotal %q: %w", l.Subtotal, err)
		}
		lines[i] = ledger.ProductLine{
			ProductID: ledger.ProductID(l.ProductID),
			Quantity:  l.Quantity,
			UnitPrice: unitPrice,
			Subtotal:  subtotal,
		}
	}
	total, err := ledger.ParseMoney(j.TotalAmount)
	if err != nil {
		return ledger.DeliveryRecord{}, fmt.Errorf("bad total amount %q: %w", j.TotalAmount, err)
	}
	paid, err := ledger.ParseMoney(j.PaidAmount)
	if err != nil {
		return ledger.DeliveryRecord{}, fmt.Errorf("bad paid amount %q: %w", j.PaidAmount, err)
	}
	createdAt, _ := time.Parse(time.RFC3339, j.CreatedAt)
	return ledger.DeliveryRecord{
		ID:           ledger.DeliveryID(j.ID),
		ShopID:       ledger.ShopID(j.ShopID),
		StaffID:      ledger.StaffID(j.StaffID),
		DeliveryDate: date,
		Lines:        lines,
		TotalAmount:  total,
		PaidAmount:   paid,
		Archived:     j.Archived,
		Note:         j.Note,
		CreatedAt:    createdAt,
	}, nil
}

func scanShop(rows *sql.Rows) (ledger.Shop, error) {
	var shop ledger.Shop
	var owner, phone, address, route sql.NullString
	var active int
	var createdAt string
	if err := rows.Scan(&shop.ID, &shop.Name, &owner, &phone, &address, &route, &active, &createdAt); err != nil {
		return shop, fmt.Errorf("failed to scan shop: %w", err)
	}
	shop.OwnerName = owner.String
	shop.Phone = phone.String
	shop.Address = address.String
	shop.RouteNumber = route.String
	shop.Active = active == 1
	shop.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return shop, nil
}

func scanDeliveries(rows *sql.Rows) ([]ledger.DeliveryRecord, error) {
	defer rows.Close()

	var out []ledger.DeliveryRecord
	for rows.Next() {
		var d ledger.DeliveryRecord
		var day, linesJSON, total, paid, createdAt string
		var note sql.NullString
		var archived int
		if err := rows.Scan(&d.ID, &d.ShopID, &d.StaffID, &day, &linesJSON,
			&total, &paid, &archived, &note, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		date, err := ledger.ParseDate(day)
		if err != nil {
			return nil, fmt.Errorf("bad delivery date %q: %w", day, err)
		}
		lines, err := unmarshalLines(linesJSON)
		if err != nil {
			return nil, fmt.Errorf("bad delivery lines: %w", err)
		}
		d.DeliveryDate = date
		d.Lines = lines
		if d.TotalAmount, err = ledger.ParseMoney(total); err != nil {
			return nil, fmt.Errorf("bad total amount %q for delivery %s: %w", total, d.ID, err)
		}
		if d.PaidAmount, err = ledger.ParseMoney(paid); err != nil {
			return nil, fmt.Errorf("bad paid amount %q for delivery %s: %w", paid, d.ID, err)
		}
		d.Archived = archived == 1
		d.Note = note.String
		d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanPayments(rows *sql.Rows) ([]ledger.PaymentRecord, error) {
	defer rows.Close()

	var out []ledger.PaymentRecord
	for rows.Next() {
		var p ledger.PaymentRecord
		var day, amount, createdAt string
		var note sql.NullString
		if err := rows.Scan(&p.ID, &p.ShopID, &amount, &day, &p.CollectedBy, &note, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		date, err := ledger.ParseDate(day)
		if err != nil {
			return nil, fmt.Errorf("bad payment date %q: %w", day, err)
		}
		if p.Amount, err = ledger.ParseMoney(amount); err != nil {
			return nil, fmt.Errorf("bad amount %q for payment %s: %w", amount, p.ID, err)
		}
		p.PaymentDate = date
		p.Note = note.String
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanAdjustments(rows *sql.Rows) ([]ledger.ManualAdjustment, error) {
	defer rows.Close()

	var out []ledger.ManualAdjustment
	for rows.Next() {
		var a ledger.ManualAdjustment
		var day, amount, createdAt string
		var note sql.NullString
		if err := rows.Scan(&a.ID, &a.ShopID, &amount, &day, &note, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}
		date, err := ledger.ParseDate(day)
		if err != nil {
			return nil, fmt.Errorf("bad adjustment date %q: %w", day, err)
		}
		if a.Amount, err = ledger.ParseMoney(amount); err != nil {
			return nil, fmt.Errorf("bad amount %q for adjustment %s: %w", amount, a.ID, err)
		}
		a.OriginDate = date
		a.Note = note.String
		a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanProduct(rows *sql.Rows) (ledger.Product, error) {
	var p ledger.Product
	var price, createdAt string
	var active int
	if err := rows.Scan(&p.ID, &p.Name, &price, &active, &createdAt); err != nil {
		return p, fmt.Errorf("failed to scan product: %w", err)
	}
	var err error
	if p.UnitPrice, err = ledger.ParseMoney(price); err != nil {
		return p, fmt.Errorf("bad unit price %q for product %s: %w", price, p.ID, err)
	}
	p.Active = active == 1
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return p, nil
}

func scanStaff(rows *sql.Rows) (ledger.Staff, error) {
	var st ledger.Staff
	var createdAt string
	var phone sql.NullString
	var active int
	if err := rows.Scan(&st.ID, &st.Name, &phone, &active, &createdAt); err != nil {
		return st, fmt.Errorf("failed to scan staff: %w", err)
	}
	st.Phone = phone.String
	st.Active = active == 1
	st.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return st, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
