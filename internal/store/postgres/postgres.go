package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"battrack/backend/internal/domain"
	"battrack/backend/internal/store"
	"battrack/backend/internal/xid"
)

// Store persists the back office in Postgres. Nested invoice structures
// (product lines, payments, edit history) live in jsonb columns; stock,
// sales mirrors and the invoice counter are relational so lifecycle
// mutations can run as conditional updates inside one transaction.
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

func (s *Store) NextInvoiceNo(ctx context.Context) (string, error) {
	var counter int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO invoice_counters (id, counter)
		VALUES ('invoice', 1)
		ON CONFLICT (id) DO UPDATE SET counter = invoice_counters.counter + 1
		RETURNING counter
	`).Scan(&counter)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%08d", counter), nil
}

func (s *Store) CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	if invoice.InvoiceNo == "" || invoice.ClientID == "" || len(invoice.Products) == 0 {
		return nil, store.ErrInvalidInvoice
	}
	if invoice.ID == "" {
		invoice.ID = xid.New("inv")
	}

	now := time.Now().UTC()
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = now
	}
	invoice.UpdatedAt = invoice.CreatedAt

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Every line must clear the conditional decrement; a short line rolls
	// the whole invoice back.
	for _, line := range invoice.Products {
		if line.ProductID == "" || line.Quantity < 1 {
			return nil, store.ErrInvalidInvoice
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE stock_entries
			SET in_stock = in_stock - $1, sold_count = sold_count + $1, updated_at = now()
			WHERE client_id = $2 AND product_id = $3 AND in_stock >= $1
		`, line.Quantity, invoice.ClientID, line.ProductID)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, store.ErrInsufficientStock
		}
	}

	if err := insertInvoice(ctx, tx, &invoice); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInvoice
		}
		return nil, err
	}
	if err := upsertSalesMirror(ctx, tx, salesMirror(&invoice)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := invoice
	return &created, nil
}

func (s *Store) ReplaceInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	if invoice.ID == "" || len(invoice.Products) == 0 {
		return nil, store.ErrInvalidInvoice
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := getInvoiceForUpdate(ctx, tx, invoice.ID)
	if err != nil {
		return nil, err
	}
	// InvoiceNo and client are fixed at creation.
	invoice.InvoiceNo = existing.InvoiceNo
	invoice.ClientID = existing.ClientID
	invoice.CreatedAt = existing.CreatedAt
	invoice.UpdatedAt = time.Now().UTC()

	// Net effect per product: the original quantities come back before
	// the new ones are taken, all inside the same transaction.
	deltas := make(map[string]int)
	for _, line := range existing.Products {
		deltas[line.ProductID] -= line.Quantity
	}
	for _, line := range invoice.Products {
		if line.ProductID == "" || line.Quantity < 1 {
			return nil, store.ErrInvalidInvoice
		}
		deltas[line.ProductID] += line.Quantity
	}

	for productID, delta := range deltas {
		if delta == 0 {
			continue
		}
		if err := applyStockDelta(ctx, tx, invoice.ClientID, productID, delta); err != nil {
			return nil, err
		}
	}

	if err := updateInvoice(ctx, tx, &invoice); err != nil {
		return nil, err
	}
	if err := upsertSalesMirror(ctx, tx, salesMirror(&invoice)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	updated := invoice
	return &updated, nil
}

func (s *Store) DeleteInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := getInvoiceForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	for _, line := range existing.Products {
		// soldCount may dip below zero here; the sync verifier clamps
		// and reports it rather than the ledger hiding it.
		res, err := tx.ExecContext(ctx, `
			UPDATE stock_entries
			SET in_stock = in_stock + $1, sold_count = sold_count - $1, updated_at = now()
			WHERE client_id = $2 AND product_id = $3
		`, line.Quantity, existing.ClientID, line.ProductID)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO stock_entries (product_id, client_id, brand_name, series_name, in_stock, sold_count, updated_at)
				VALUES ($1,$2,$3,$4,$5,$6,now())
			`, line.ProductID, existing.ClientID, line.BrandName, line.SeriesName, line.Quantity, -line.Quantity)
			if err != nil {
				return nil, err
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sales_records WHERE invoice_no = $1`, existing.InvoiceNo); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM invoices WHERE id = $1`, id); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *Store) AddInvoicePayment(ctx context.Context, id string, payment domain.PaymentEntry) (*domain.Invoice, error) {
	if payment.Amount <= 0 {
		return nil, store.ErrInvalidInvoice
	}
	if payment.AddedAt.IsZero() {
		payment.AddedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := getInvoiceForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if payment.Amount > existing.RemainingAmount+0.005 {
		return nil, store.ErrInvalidInvoice
	}

	existing.AdditionalPayments = append(existing.AdditionalPayments, payment)
	received := existing.ReceivedAmount + existing.BatteriesRate
	for _, p := range existing.AdditionalPayments {
		received += p.Amount
	}
	existing.RemainingAmount = round2(existing.TotalAmount - received)
	if existing.RemainingAmount < 0 {
		existing.RemainingAmount = 0
	}
	existing.PaymentStatus = paymentStatusFor(received, existing.RemainingAmount)
	existing.UpdatedAt = time.Now().UTC()

	paymentsJSON, err := json.Marshal(existing.AdditionalPayments)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE invoices
		SET additional_payments = $2, remaining_amount = $3, payment_status = $4, updated_at = $5
		WHERE id = $1
	`, id, paymentsJSON, existing.RemainingAmount, existing.PaymentStatus, existing.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *Store) GetInvoiceByID(ctx context.Context, id string) (*domain.Invoice, error) {
	row := s.db.QueryRowContext(ctx, selectInvoiceSQL+` WHERE id = $1`, id)
	invoice, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return invoice, nil
}

func (s *Store) ListInvoices(ctx context.Context, filter domain.InvoiceListFilter) ([]domain.Invoice, int, error) {
	conditions := make([]string, 0, 4)
	args := make([]any, 0, 4)

	if filter.ClientID != "" {
		args = append(args, filter.ClientID)
		conditions = append(conditions, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if needle := strings.TrimSpace(filter.CustomerName); needle != "" {
		args = append(args, "%"+needle+"%")
		conditions = append(conditions, fmt.Sprintf("customer_name ILIKE $%d", len(args)))
	}
	if filter.StartDate != nil {
		args = append(args, *filter.StartDate)
		conditions = append(conditions, fmt.Sprintf("invoice_date >= $%d", len(args)))
	}
	if filter.EndDate != nil {
		args = append(args, *filter.EndDate)
		conditions = append(conditions, fmt.Sprintf("invoice_date <= $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM invoices`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	pageArgs := args
	paging := " ORDER BY created_at DESC, invoice_no DESC"
	if filter.Limit > 0 {
		pageArgs = append(pageArgs, filter.Limit)
		paging += fmt.Sprintf(" LIMIT $%d", len(pageArgs))
	}
	if filter.Offset > 0 {
		pageArgs = append(pageArgs, filter.Offset)
		paging += fmt.Sprintf(" OFFSET $%d", len(pageArgs))
	}

	rows, err := s.db.QueryContext(ctx, selectInvoiceSQL+where+paging, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	invoices := make([]domain.Invoice, 0, 32)
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, *invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}

func (s *Store) GetStockByProductID(ctx context.Context, clientID string, productID string) (*domain.StockEntry, error) {
	var entry domain.StockEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT product_id, client_id, brand_name, series_name, in_stock, sold_count
		FROM stock_entries
		WHERE client_id = $1 AND product_id = $2
	`, clientID, productID).Scan(&entry.ProductID, &entry.ClientID, &entry.BrandName, &entry.SeriesName, &entry.InStock, &entry.SoldCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (s *Store) GetStockByKey(ctx context.Context, clientID string, brand string, series string) (*domain.StockEntry, error) {
	var entry domain.StockEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT product_id, client_id, brand_name, series_name, in_stock, sold_count
		FROM stock_entries
		WHERE client_id = $1 AND brand_name = $2 AND series_name = $3
		ORDER BY product_id
		LIMIT 1
	`, clientID, brand, series).Scan(&entry.ProductID, &entry.ClientID, &entry.BrandName, &entry.SeriesName, &entry.InStock, &entry.SoldCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (s *Store) UpsertStockEntry(ctx context.Context, entry domain.StockEntry) error {
	if entry.ProductID == "" || entry.ClientID == "" || entry.InStock < 0 || entry.SoldCount < 0 {
		return store.ErrInvalidInvoice
	}

	// An upsert never rewinds the sold counter.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_entries (product_id, client_id, brand_name, series_name, in_stock, sold_count, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
		ON CONFLICT (client_id, product_id) DO UPDATE SET
			brand_name = EXCLUDED.brand_name,
			series_name = EXCLUDED.series_name,
			in_stock = EXCLUDED.in_stock,
			sold_count = GREATEST(stock_entries.sold_count, EXCLUDED.sold_count),
			updated_at = now()
	`, entry.ProductID, entry.ClientID, entry.BrandName, entry.SeriesName, entry.InStock, entry.SoldCount)
	return err
}

func (s *Store) ReceiveStock(ctx context.Context, clientID string, productID string, qty int) (*domain.StockEntry, error) {
	if qty < 1 {
		return nil, store.ErrInvalidInvoice
	}

	var entry domain.StockEntry
	err := s.db.QueryRowContext(ctx, `
		UPDATE stock_entries
		SET in_stock = in_stock + $1, updated_at = now()
		WHERE client_id = $2 AND product_id = $3
		RETURNING product_id, client_id, brand_name, series_name, in_stock, sold_count
	`, qty, clientID, productID).Scan(&entry.ProductID, &entry.ClientID, &entry.BrandName, &entry.SeriesName, &entry.InStock, &entry.SoldCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (s *Store) ListStock(ctx context.Context, clientID string) ([]domain.StockEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, client_id, brand_name, series_name, in_stock, sold_count
		FROM stock_entries
		WHERE client_id = $1
		ORDER BY brand_name, series_name
	`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.StockEntry, 0, 64)
	for rows.Next() {
		var entry domain.StockEntry
		if err := rows.Scan(&entry.ProductID, &entry.ClientID, &entry.BrandName, &entry.SeriesName, &entry.InStock, &entry.SoldCount); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) ListSales(ctx context.Context, clientID string, limit int, offset int) ([]domain.SalesRecord, error) {
	if offset < 0 {
		offset = 0
	}

	conditions := ""
	args := []any{}
	if clientID != "" {
		args = append(args, clientID)
		conditions = " WHERE client_id = $1"
	}
	paging := " ORDER BY invoice_no ASC"
	if limit > 0 {
		args = append(args, limit)
		paging += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		paging += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT invoice_no, client_id, customer_name, invoice_date, lines, total_amount
		FROM sales_records
	`+conditions+paging, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.SalesRecord, 0, 64)
	for rows.Next() {
		record, err := scanSalesRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) GetSalesByInvoiceNo(ctx context.Context, invoiceNo string) (*domain.SalesRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT invoice_no, client_id, customer_name, invoice_date, lines, total_amount
		FROM sales_records
		WHERE invoice_no = $1
	`, invoiceNo)
	record, err := scanSalesRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return record, nil
}

func (s *Store) CreateWarrantyRecord(ctx context.Context, record domain.WarrantyRecord) error {
	if record.ClientID == "" || record.InvoiceNo == "" {
		return store.ErrInvalidInvoice
	}
	if record.ID == "" {
		record.ID = xid.New("war")
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO warranty_history (
			id, client_id, invoice_no, product_id, brand_name, series_name,
			code, start_date, end_date, duration_months, event, reason, recorded_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, record.ID, record.ClientID, record.InvoiceNo, record.ProductID, record.BrandName, record.SeriesName,
		record.Code, record.StartDate, record.EndDate, record.DurationMonths, record.Event, nullIfEmpty(record.Reason), record.RecordedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInvoice
		}
		return err
	}
	return nil
}

func (s *Store) ListWarrantyRecords(ctx context.Context, clientID string, invoiceNo string) ([]domain.WarrantyRecord, error) {
	conditions := "WHERE client_id = $1"
	args := []any{clientID}
	if invoiceNo != "" {
		args = append(args, invoiceNo)
		conditions += " AND invoice_no = $2"
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, invoice_no, product_id, brand_name, series_name,
			code, start_date, end_date, duration_months, event, reason, recorded_at
		FROM warranty_history
		`+conditions+`
		ORDER BY recorded_at DESC, id ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.WarrantyRecord, 0, 16)
	for rows.Next() {
		var record domain.WarrantyRecord
		var reason sql.NullString
		if err := rows.Scan(
			&record.ID,
			&record.ClientID,
			&record.InvoiceNo,
			&record.ProductID,
			&record.BrandName,
			&record.SeriesName,
			&record.Code,
			&record.StartDate,
			&record.EndDate,
			&record.DurationMonths,
			&record.Event,
			&reason,
			&record.RecordedAt,
		); err != nil {
			return nil, err
		}
		if reason.Valid {
			record.Reason = reason.String
		}
		record.StartDate = record.StartDate.UTC()
		record.EndDate = record.EndDate.UTC()
		record.RecordedAt = record.RecordedAt.UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) ArchiveInvoice(ctx context.Context, archive domain.ArchivedInvoice) error {
	if archive.Snapshot.ID == "" {
		return store.ErrInvalidInvoice
	}
	if archive.ID == "" {
		archive.ID = xid.New("arc")
	}
	if archive.ArchivedAt.IsZero() {
		archive.ArchivedAt = time.Now().UTC()
	}

	snapshotJSON, err := json.Marshal(archive.Snapshot)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO archived_invoices (id, reason, snapshot, archived_at)
		VALUES ($1,$2,$3,$4)
	`, archive.ID, archive.Reason, snapshotJSON, archive.ArchivedAt)
	return err
}

func (s *Store) CreateEditHistory(ctx context.Context, entry domain.EditHistoryEntry) error {
	if entry.InvoiceID == "" {
		return store.ErrInvalidInvoice
	}
	if entry.ID == "" {
		entry.ID = xid.New("edh")
	}
	if entry.SavedAt.IsZero() {
		entry.SavedAt = time.Now().UTC()
	}

	snapshotJSON, err := json.Marshal(entry.Snapshot)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO invoice_edit_history (id, invoice_id, invoice_no, snapshot, saved_at)
		VALUES ($1,$2,$3,$4,$5)
	`, entry.ID, entry.InvoiceID, entry.InvoiceNo, snapshotJSON, entry.SavedAt)
	return err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInvoice
	}
	if user.Role == "" {
		user.Role = "staff"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, client_id, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, user.Username, user.Password, user.Role, user.ClientID, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInvoice
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, client_id, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.ClientID, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInvoice
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
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

const selectInvoiceSQL = `
	SELECT id, invoice_no, client_id, customer_id, customer_name, customer_address,
		customer_contact, customer_type, invoice_date, products, payment_method,
		received_amount, batteries_rate, total_amount, remaining_amount, payment_status,
		additional_payments, edit_history, created_at, updated_at
	FROM invoices`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*domain.Invoice, error) {
	var invoice domain.Invoice
	var customerID sql.NullString
	var productsRaw, methodsRaw, paymentsRaw, historyRaw []byte
	if err := row.Scan(
		&invoice.ID,
		&invoice.InvoiceNo,
		&invoice.ClientID,
		&customerID,
		&invoice.CustomerName,
		&invoice.CustomerAddress,
		&invoice.CustomerContactNumber,
		&invoice.CustomerType,
		&invoice.InvoiceDate,
		&productsRaw,
		&methodsRaw,
		&invoice.ReceivedAmount,
		&invoice.BatteriesRate,
		&invoice.TotalAmount,
		&invoice.RemainingAmount,
		&invoice.PaymentStatus,
		&paymentsRaw,
		&historyRaw,
		&invoice.CreatedAt,
		&invoice.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if customerID.Valid {
		invoice.CustomerID = customerID.String
	}
	if len(productsRaw) > 0 {
		if err := json.Unmarshal(productsRaw, &invoice.Products); err != nil {
			return nil, err
		}
	}
	if len(methodsRaw) > 0 {
		if err := json.Unmarshal(methodsRaw, &invoice.PaymentMethod); err != nil {
			return nil, err
		}
	}
	if len(paymentsRaw) > 0 {
		if err := json.Unmarshal(paymentsRaw, &invoice.AdditionalPayments); err != nil {
			return nil, err
		}
	}
	if len(historyRaw) > 0 {
		if err := json.Unmarshal(historyRaw, &invoice.EditHistory); err != nil {
			return nil, err
		}
	}
	invoice.InvoiceDate = invoice.InvoiceDate.UTC()
	invoice.CreatedAt = invoice.CreatedAt.UTC()
	invoice.UpdatedAt = invoice.UpdatedAt.UTC()
	return &invoice, nil
}

func getInvoiceForUpdate(ctx context.Context, tx *sql.Tx, id string) (*domain.Invoice, error) {
	row := tx.QueryRowContext(ctx, selectInvoiceSQL+` WHERE id = $1 FOR UPDATE`, id)
	invoice, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return invoice, nil
}

func invoiceColumnsJSON(invoice *domain.Invoice) (products []byte, methods []byte, payments []byte, history []byte, err error) {
	if products, err = json.Marshal(invoice.Products); err != nil {
		return nil, nil, nil, nil, err
	}
	if methods, err = json.Marshal(invoice.PaymentMethod); err != nil {
		return nil, nil, nil, nil, err
	}
	if payments, err = json.Marshal(invoice.AdditionalPayments); err != nil {
		return nil, nil, nil, nil, err
	}
	if history, err = json.Marshal(invoice.EditHistory); err != nil {
		return nil, nil, nil, nil, err
	}
	return products, methods, payments, history, nil
}

func insertInvoice(ctx context.Context, tx *sql.Tx, invoice *domain.Invoice) error {
	products, methods, payments, history, err := invoiceColumnsJSON(invoice)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO invoices (
			id, invoice_no, client_id, customer_id, customer_name, customer_address,
			customer_contact, customer_type, invoice_date, products, payment_method,
			received_amount, batteries_rate, total_amount, remaining_amount, payment_status,
			additional_payments, edit_history, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`, invoice.ID, invoice.InvoiceNo, invoice.ClientID, nullIfEmpty(invoice.CustomerID), invoice.CustomerName, invoice.CustomerAddress,
		invoice.CustomerContactNumber, invoice.CustomerType, invoice.InvoiceDate, products, methods,
		invoice.ReceivedAmount, invoice.BatteriesRate, invoice.TotalAmount, invoice.RemainingAmount, invoice.PaymentStatus,
		payments, history, invoice.CreatedAt, invoice.UpdatedAt)
	return err
}

func updateInvoice(ctx context.Context, tx *sql.Tx, invoice *domain.Invoice) error {
	products, methods, payments, history, err := invoiceColumnsJSON(invoice)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE invoices
		SET customer_id = $2, customer_name = $3, customer_address = $4, customer_contact = $5,
			customer_type = $6, invoice_date = $7, products = $8, payment_method = $9,
			received_amount = $10, batteries_rate = $11, total_amount = $12, remaining_amount = $13,
			payment_status = $14, additional_payments = $15, edit_history = $16, updated_at = $17
		WHERE id = $1
	`, invoice.ID, nullIfEmpty(invoice.CustomerID), invoice.CustomerName, invoice.CustomerAddress, invoice.CustomerContactNumber,
		invoice.CustomerType, invoice.InvoiceDate, products, methods,
		invoice.ReceivedAmount, invoice.BatteriesRate, invoice.TotalAmount, invoice.RemainingAmount,
		invoice.PaymentStatus, payments, history, invoice.UpdatedAt)
	return err
}

// applyStockDelta moves delta units from shelf to sold (positive) or
// back (negative). A positive delta that overdraws the shelf fails; a
// negative delta against a missing row creates one so returned stock is
// never dropped on the floor.
func applyStockDelta(ctx context.Context, tx *sql.Tx, clientID string, productID string, delta int) error {
	if delta > 0 {
		res, err := tx.ExecContext(ctx, `
			UPDATE stock_entries
			SET in_stock = in_stock - $1, sold_count = sold_count + $1, updated_at = now()
			WHERE client_id = $2 AND product_id = $3 AND in_stock >= $1
		`, delta, clientID, productID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return store.ErrInsufficientStock
		}
		return nil
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE stock_entries
		SET in_stock = in_stock - $1, sold_count = sold_count + $1, updated_at = now()
		WHERE client_id = $2 AND product_id = $3
	`, delta, clientID, productID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock_entries (product_id, client_id, brand_name, series_name, in_stock, sold_count, updated_at)
			VALUES ($1,$2,'','',$3,$4,now())
		`, productID, clientID, -delta, delta)
		return err
	}
	return nil
}

func upsertSalesMirror(ctx context.Context, tx *sql.Tx, record *domain.SalesRecord) error {
	linesJSON, err := json.Marshal(record.Lines)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales_records (invoice_no, client_id, customer_name, invoice_date, lines, total_amount)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (invoice_no) DO UPDATE SET
			client_id = EXCLUDED.client_id,
			customer_name = EXCLUDED.customer_name,
			invoice_date = EXCLUDED.invoice_date,
			lines = EXCLUDED.lines,
			total_amount = EXCLUDED.total_amount
	`, record.InvoiceNo, record.ClientID, record.CustomerName, record.InvoiceDate, linesJSON, record.TotalAmount)
	return err
}

func scanSalesRecord(row rowScanner) (*domain.SalesRecord, error) {
	var record domain.SalesRecord
	var linesRaw []byte
	if err := row.Scan(
		&record.InvoiceNo,
		&record.ClientID,
		&record.CustomerName,
		&record.InvoiceDate,
		&linesRaw,
		&record.TotalAmount,
	); err != nil {
		return nil, err
	}
	if len(linesRaw) > 0 {
		if err := json.Unmarshal(linesRaw, &record.Lines); err != nil {
			return nil, err
		}
	}
	record.InvoiceDate = record.InvoiceDate.UTC()
	return &record, nil
}

func salesMirror(invoice *domain.Invoice) *domain.SalesRecord {
	lines := make([]domain.SalesLine, 0, len(invoice.Products))
	for _, line := range invoice.Products {
		lines = append(lines, domain.SalesLine{
			ProductID:  line.ProductID,
			BrandName:  line.BrandName,
			SeriesName: line.SeriesName,
			Price:      line.Price,
			Quantity:   line.Quantity,
			TotalPrice: line.TotalPrice,
		})
	}
	return &domain.SalesRecord{
		InvoiceNo:    invoice.InvoiceNo,
		ClientID:     invoice.ClientID,
		CustomerName: invoice.CustomerName,
		InvoiceDate:  invoice.InvoiceDate,
		Lines:        lines,
		TotalAmount:  invoice.TotalAmount,
	}
}

func paymentStatusFor(received float64, remaining float64) string {
	switch {
	case remaining <= 0.005:
		return domain.PaymentStatusPaid
	case received > 0:
		return domain.PaymentStatusPartial
	default:
		return domain.PaymentStatusPending
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
