package memory

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"battrack/backend/internal/domain"
	"battrack/backend/internal/store"
	"battrack/backend/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	invoiceCounter   int64
	invoicesByID     map[string]*domain.Invoice
	invoiceIDByNo    map[string]string
	salesByInvoiceNo map[string]*domain.SalesRecord
	stockByClient    map[string]map[string]domain.StockEntry
	warrantyByClient map[string][]domain.WarrantyRecord
	archivedInvoices []domain.ArchivedInvoice
	editHistory      []domain.EditHistoryEntry
	usersByUsername  map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
		clientID string
	}{
		{"admin", adminPwd, "admin", ""},
		{"staff", staffPwd, "staff", "main-client"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			ClientID:  u.clientID,
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
	entries := []domain.StockEntry{
		{ProductID: "prod-ags-gx120", ClientID: "main-client", BrandName: "AGS", SeriesName: "GX-120", InStock: 40},
		{ProductID: "prod-ags-ws90", ClientID: "main-client", BrandName: "AGS", SeriesName: "WS-90", InStock: 35},
		{ProductID: "prod-exide-tr1500", ClientID: "main-client", BrandName: "Exide", SeriesName: "TR-1500", InStock: 25},
		{ProductID: "prod-exide-n100", ClientID: "main-client", BrandName: "Exide", SeriesName: "N-100", InStock: 30},
		{ProductID: "prod-phoenix-tx700", ClientID: "main-client", BrandName: "Phoenix", SeriesName: "TX-700", InStock: 28},
		{ProductID: "prod-phoenix-ns60", ClientID: "main-client", BrandName: "Phoenix", SeriesName: "NS-60", InStock: 50},
		{ProductID: "prod-osaka-tonic1l", ClientID: "main-client", BrandName: "Osaka", SeriesName: "Battery Tonic 1L", InStock: 60},
		{ProductID: "prod-osaka-dw800", ClientID: "main-client", BrandName: "Osaka", SeriesName: "Distilled Water 800ml", InStock: 80},
	}

	stock := map[string]map[string]domain.StockEntry{"main-client": {}}
	for _, entry := range entries {
		stock[entry.ClientID][entry.ProductID] = entry
	}

	return &Store{
		invoicesByID:     make(map[string]*domain.Invoice),
		invoiceIDByNo:    make(map[string]string),
		salesByInvoiceNo: make(map[string]*domain.SalesRecord),
		stockByClient:    stock,
		warrantyByClient: make(map[string][]domain.WarrantyRecord),
		archivedInvoices: make([]domain.ArchivedInvoice, 0, 64),
		editHistory:      make([]domain.EditHistoryEntry, 0, 64),
		usersByUsername:  seedUsers(),
	}
}

func (s *Store) NextInvoiceNo(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invoiceCounter++
	return fmt.Sprintf("%08d", s.invoiceCounter), nil
}

func (s *Store) CreateInvoice(_ context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if invoice.InvoiceNo == "" || invoice.ClientID == "" || len(invoice.Products) == 0 {
		return nil, store.ErrInvalidInvoice
	}
	if _, exists := s.invoiceIDByNo[invoice.InvoiceNo]; exists {
		return nil, store.ErrInvalidInvoice
	}
	if invoice.ID == "" {
		invoice.ID = xid.New("inv")
	}
	if _, exists := s.invoicesByID[invoice.ID]; exists {
		return nil, store.ErrInvalidInvoice
	}

	clientStock, ok := s.stockByClient[invoice.ClientID]
	if !ok {
		clientStock = make(map[string]domain.StockEntry)
		s.stockByClient[invoice.ClientID] = clientStock
	}

	// All lines must clear the stock check before anything is written.
	for _, line := range invoice.Products {
		if line.ProductID == "" || line.Quantity < 1 {
			return nil, store.ErrInvalidInvoice
		}
		entry, exists := clientStock[line.ProductID]
		if !exists || entry.InStock < line.Quantity {
			return nil, store.ErrInsufficientStock
		}
	}

	now := time.Now().UTC()
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = now
	}
	invoice.UpdatedAt = invoice.CreatedAt

	for _, line := range invoice.Products {
		entry := clientStock[line.ProductID]
		entry.InStock -= line.Quantity
		entry.SoldCount += line.Quantity
		clientStock[line.ProductID] = entry
	}

	created := cloneInvoice(&invoice)
	s.invoicesByID[invoice.ID] = created
	s.invoiceIDByNo[invoice.InvoiceNo] = invoice.ID
	s.salesByInvoiceNo[invoice.InvoiceNo] = salesMirror(created)

	return cloneInvoice(created), nil
}

func (s *Store) ReplaceInvoice(_ context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if invoice.ID == "" || len(invoice.Products) == 0 {
		return nil, store.ErrInvalidInvoice
	}
	existing, ok := s.invoicesByID[invoice.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	// InvoiceNo and client are fixed at creation.
	invoice.InvoiceNo = existing.InvoiceNo
	invoice.ClientID = existing.ClientID
	invoice.CreatedAt = existing.CreatedAt

	clientStock := s.stockByClient[invoice.ClientID]
	if clientStock == nil {
		clientStock = make(map[string]domain.StockEntry)
		s.stockByClient[invoice.ClientID] = clientStock
	}

	// Net effect per product: the original quantities come back before
	// the new ones are taken, all under the same lock hold.
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
		if delta <= 0 {
			continue
		}
		entry, exists := clientStock[productID]
		if !exists || entry.InStock < delta {
			return nil, store.ErrInsufficientStock
		}
	}

	for productID, delta := range deltas {
		if delta == 0 {
			continue
		}
		entry, exists := clientStock[productID]
		if !exists {
			entry = domain.StockEntry{ProductID: productID, ClientID: invoice.ClientID}
		}
		entry.InStock -= delta
		entry.SoldCount += delta
		clientStock[productID] = entry
	}

	invoice.UpdatedAt = time.Now().UTC()
	updated := cloneInvoice(&invoice)
	s.invoicesByID[invoice.ID] = updated
	s.salesByInvoiceNo[invoice.InvoiceNo] = salesMirror(updated)

	return cloneInvoice(updated), nil
}

func (s *Store) DeleteInvoice(_ context.Context, id string) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.invoicesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	clientStock := s.stockByClient[existing.ClientID]
	for _, line := range existing.Products {
		entry, exists := clientStock[line.ProductID]
		if !exists {
			entry = domain.StockEntry{
				ProductID:  line.ProductID,
				ClientID:   existing.ClientID,
				BrandName:  line.BrandName,
				SeriesName: line.SeriesName,
			}
		}
		// soldCount may dip below zero here; the sync verifier clamps
		// and reports it rather than the ledger hiding it.
		entry.InStock += line.Quantity
		entry.SoldCount -= line.Quantity
		clientStock[line.ProductID] = entry
	}

	snapshot := cloneInvoice(existing)
	delete(s.invoicesByID, id)
	delete(s.invoiceIDByNo, existing.InvoiceNo)
	delete(s.salesByInvoiceNo, existing.InvoiceNo)

	return snapshot, nil
}

func (s *Store) AddInvoicePayment(_ context.Context, id string, payment domain.PaymentEntry) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.invoicesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if payment.Amount <= 0 {
		return nil, store.ErrInvalidInvoice
	}
	if payment.Amount > existing.RemainingAmount+0.005 {
		return nil, store.ErrInvalidInvoice
	}
	if payment.AddedAt.IsZero() {
		payment.AddedAt = time.Now().UTC()
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

	return cloneInvoice(existing), nil
}

func (s *Store) GetInvoiceByID(_ context.Context, id string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoice, ok := s.invoicesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneInvoice(invoice), nil
}

func (s *Store) ListInvoices(_ context.Context, filter domain.InvoiceListFilter) ([]domain.Invoice, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(filter.CustomerName))
	matched := make([]domain.Invoice, 0, len(s.invoicesByID))
	for _, invoice := range s.invoicesByID {
		if filter.ClientID != "" && invoice.ClientID != filter.ClientID {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(invoice.CustomerName), needle) {
			continue
		}
		if filter.StartDate != nil && invoice.InvoiceDate.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && invoice.InvoiceDate.After(*filter.EndDate) {
			continue
		}
		matched = append(matched, *cloneInvoice(invoice))
	}

	slices.SortFunc(matched, func(a, b domain.Invoice) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.InvoiceNo, a.InvoiceNo)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})

	total := len(matched)
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	matched = matched[offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *Store) GetStockByProductID(_ context.Context, clientID string, productID string) (*domain.StockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.stockByClient[clientID][productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyEntry := entry
	return &copyEntry, nil
}

func (s *Store) GetStockByKey(_ context.Context, clientID string, brand string, series string) (*domain.StockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := domain.StockKey(brand, series)
	for _, entry := range s.stockByClient[clientID] {
		if domain.StockKey(entry.BrandName, entry.SeriesName) == key {
			copyEntry := entry
			return &copyEntry, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpsertStockEntry(_ context.Context, entry domain.StockEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ProductID == "" || entry.ClientID == "" || entry.InStock < 0 || entry.SoldCount < 0 {
		return store.ErrInvalidInvoice
	}
	clientStock, ok := s.stockByClient[entry.ClientID]
	if !ok {
		clientStock = make(map[string]domain.StockEntry)
		s.stockByClient[entry.ClientID] = clientStock
	}
	if existing, exists := clientStock[entry.ProductID]; exists {
		// An upsert never rewinds the sold counter.
		if entry.SoldCount < existing.SoldCount {
			entry.SoldCount = existing.SoldCount
		}
	}
	clientStock[entry.ProductID] = entry
	return nil
}

func (s *Store) ReceiveStock(_ context.Context, clientID string, productID string, qty int) (*domain.StockEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if qty < 1 {
		return nil, store.ErrInvalidInvoice
	}
	entry, ok := s.stockByClient[clientID][productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	entry.InStock += qty
	s.stockByClient[clientID][productID] = entry
	copyEntry := entry
	return &copyEntry, nil
}

func (s *Store) ListStock(_ context.Context, clientID string) ([]domain.StockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.StockEntry, 0, len(s.stockByClient[clientID]))
	for _, entry := range s.stockByClient[clientID] {
		entries = append(entries, entry)
	}
	slices.SortFunc(entries, func(a, b domain.StockEntry) int {
		if a.BrandName == b.BrandName {
			return cmpString(a.SeriesName, b.SeriesName)
		}
		return cmpString(a.BrandName, b.BrandName)
	})
	return entries, nil
}

func (s *Store) ListSales(_ context.Context, clientID string, limit int, offset int) ([]domain.SalesRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.SalesRecord, 0, len(s.salesByInvoiceNo))
	for _, record := range s.salesByInvoiceNo {
		if clientID != "" && record.ClientID != clientID {
			continue
		}
		records = append(records, cloneSalesRecord(record))
	}
	slices.SortFunc(records, func(a, b domain.SalesRecord) int {
		return cmpString(a.InvoiceNo, b.InvoiceNo)
	})

	if offset < 0 {
		offset = 0
	}
	if offset > len(records) {
		offset = len(records)
	}
	records = records[offset:]
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *Store) GetSalesByInvoiceNo(_ context.Context, invoiceNo string) (*domain.SalesRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.salesByInvoiceNo[invoiceNo]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := cloneSalesRecord(record)
	return &clone, nil
}

func (s *Store) CreateWarrantyRecord(_ context.Context, record domain.WarrantyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ClientID == "" || record.InvoiceNo == "" {
		return store.ErrInvalidInvoice
	}
	if record.ID == "" {
		record.ID = xid.New("war")
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now().UTC()
	}
	s.warrantyByClient[record.ClientID] = append(s.warrantyByClient[record.ClientID], record)
	return nil
}

func (s *Store) ListWarrantyRecords(_ context.Context, clientID string, invoiceNo string) ([]domain.WarrantyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.WarrantyRecord, 0, 16)
	for _, record := range s.warrantyByClient[clientID] {
		if invoiceNo != "" && record.InvoiceNo != invoiceNo {
			continue
		}
		result = append(result, record)
	}
	slices.SortFunc(result, func(a, b domain.WarrantyRecord) int {
		if a.RecordedAt.Equal(b.RecordedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.RecordedAt.After(b.RecordedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) ArchiveInvoice(_ context.Context, archive domain.ArchivedInvoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if archive.Snapshot.ID == "" {
		return store.ErrInvalidInvoice
	}
	if archive.ID == "" {
		archive.ID = xid.New("arc")
	}
	if archive.ArchivedAt.IsZero() {
		archive.ArchivedAt = time.Now().UTC()
	}
	s.archivedInvoices = append(s.archivedInvoices, archive)
	return nil
}

func (s *Store) CreateEditHistory(_ context.Context, entry domain.EditHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.InvoiceID == "" {
		return store.ErrInvalidInvoice
	}
	if entry.ID == "" {
		entry.ID = xid.New("edh")
	}
	if entry.SavedAt.IsZero() {
		entry.SavedAt = time.Now().UTC()
	}
	s.editHistory = append(s.editHistory, entry)
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInvoice
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidInvoice
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "staff"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
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
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInvoice
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// salesMirror projects an invoice into its sales record. The caller
// holds the write lock.
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

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneInvoice(src *domain.Invoice) *domain.Invoice {
	if src == nil {
		return nil
	}
	dup := *src
	products := make([]domain.ProductLine, len(src.Products))
	copy(products, src.Products)
	for i, line := range src.Products {
		if line.Warranty != nil {
			warranty := *line.Warranty
			products[i].Warranty = &warranty
		}
	}
	dup.Products = products
	methods := make([]string, len(src.PaymentMethod))
	copy(methods, src.PaymentMethod)
	dup.PaymentMethod = methods
	payments := make([]domain.PaymentEntry, len(src.AdditionalPayments))
	copy(payments, src.AdditionalPayments)
	dup.AdditionalPayments = payments
	edits := make([]domain.EditRecord, len(src.EditHistory))
	copy(edits, src.EditHistory)
	for i, edit := range src.EditHistory {
		changes := make([]domain.FieldChange, len(edit.Changes))
		copy(changes, edit.Changes)
		edits[i].Changes = changes
	}
	dup.EditHistory = edits
	return &dup
}

func cloneSalesRecord(src *domain.SalesRecord) domain.SalesRecord {
	dup := *src
	lines := make([]domain.SalesLine, len(src.Lines))
	copy(lines, src.Lines)
	for i, line := range src.Lines {
		if line.BatteryDetail != nil {
			detail := *line.BatteryDetail
			lines[i].BatteryDetail = &detail
		}
	}
	dup.Lines = lines
	return dup
}
