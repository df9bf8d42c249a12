package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"battrack/backend/internal/cache"
	"battrack/backend/internal/dedup"
	"battrack/backend/internal/domain"
	"battrack/backend/internal/store"
	"battrack/backend/internal/syncaudit"
	"battrack/backend/internal/warranty"
	"battrack/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const dateLayout = "2006-01-02"

type Service struct {
	repo            store.Repository
	guard           *dedup.Guard
	lookups         *dedup.LookupCache
	reportCache     cache.SyncReportCache
	verifier        *syncaudit.Verifier
	defaultClientID string
	reportTTL       time.Duration
}

func New(repo store.Repository, guard *dedup.Guard, lookups *dedup.LookupCache, reportCache cache.SyncReportCache, verifier *syncaudit.Verifier, defaultClientID string, reportTTL time.Duration) *Service {
	if defaultClientID == "" {
		defaultClientID = "main-client"
	}
	if reportTTL <= 0 {
		reportTTL = 20 * time.Second
	}
	if reportCache == nil {
		reportCache = cache.NoopSyncReportCache{}
	}

	return &Service{
		repo:            repo,
		guard:           guard,
		lookups:         lookups,
		reportCache:     reportCache,
		verifier:        verifier,
		defaultClientID: defaultClientID,
		reportTTL:       reportTTL,
	}
}

// resolveClientID applies the tenant precedence: an explicit selection
// outranks the token's client, which outranks the server default. A
// non-superadmin can only select their own client.
func (s *Service) resolveClientID(ctx context.Context, requested string) (string, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return "", store.ErrNoClientAccess
	}
	requested = strings.TrimSpace(requested)
	if requested != "" {
		if actor.IsSuperAdmin || actor.ClientID == requested {
			return requested, nil
		}
		return "", store.ErrNoClientAccess
	}
	if actor.ClientID != "" {
		return actor.ClientID, nil
	}
	if actor.IsSuperAdmin {
		return s.defaultClientID, nil
	}
	return "", store.ErrNoClientAccess
}

func (s *Service) canAccessInvoice(ctx context.Context, invoice *domain.Invoice) bool {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return false
	}
	return actor.IsSuperAdmin || actor.ClientID == invoice.ClientID
}

func (s *Service) CreateInvoice(ctx context.Context, req domain.InvoiceCreateRequest) (domain.InvoiceCreateResponse, error) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerContactNumber = strings.TrimSpace(req.CustomerContactNumber)
	if req.CustomerName == "" || len(req.Products) == 0 {
		return domain.InvoiceCreateResponse{}, store.ErrInvalidInvoice
	}

	clientID, err := s.resolveClientID(ctx, req.SelectedClientID)
	if err != nil {
		return domain.InvoiceCreateResponse{}, err
	}

	release, err := s.guard.Acquire(dedup.CreateKey(req.CustomerName, req.CustomerContactNumber, req.SubmittedAtMillis))
	if err != nil {
		return domain.InvoiceCreateResponse{}, err
	}
	defer release()

	now := time.Now().UTC()
	invoiceDate, err := resolveInvoiceDate(req, now)
	if err != nil {
		return domain.InvoiceCreateResponse{}, err
	}

	lines, total, err := buildLines(req, invoiceDate, now)
	if err != nil {
		return domain.InvoiceCreateResponse{}, err
	}

	remaining, status, err := settle(total, req.ReceivedAmount, req.BatteriesRate, 0)
	if err != nil {
		return domain.InvoiceCreateResponse{}, err
	}

	invoiceNo, err := s.repo.NextInvoiceNo(ctx)
	if err != nil {
		return domain.InvoiceCreateResponse{}, err
	}

	invoice := domain.Invoice{
		ID:                    xid.New("inv"),
		InvoiceNo:             invoiceNo,
		ClientID:              clientID,
		CustomerID:            req.CustomerID,
		CustomerName:          req.CustomerName,
		CustomerAddress:       strings.TrimSpace(req.CustomerAddress),
		CustomerContactNumber: req.CustomerContactNumber,
		CustomerType:          strings.TrimSpace(req.CustomerType),
		InvoiceDate:           invoiceDate,
		Products:              lines,
		PaymentMethod:         normalizePaymentMethods(req.PaymentMethod),
		ReceivedAmount:        req.ReceivedAmount,
		BatteriesRate:         req.BatteriesRate,
		TotalAmount:           total,
		RemainingAmount:       remaining,
		PaymentStatus:         status,
		CreatedAt:             now,
	}

	created, err := s.repo.CreateInvoice(ctx, invoice)
	if err != nil {
		return domain.InvoiceCreateResponse{}, err
	}

	s.recordWarranties(ctx, created, domain.WarrantyEventCreated, "")

	return domain.InvoiceCreateResponse{
		Message:   "Invoice created successfully",
		InvoiceNo: created.InvoiceNo,
	}, nil
}

func (s *Service) EditInvoice(ctx context.Context, req domain.InvoiceEditRequest) (domain.InvoiceEditResponse, error) {
	req.ID = strings.TrimSpace(req.ID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.ID == "" || req.CustomerName == "" || len(req.Products) == 0 {
		return domain.InvoiceEditResponse{}, store.ErrInvalidInvoice
	}

	release, err := s.guard.Acquire(dedup.EditKey(req.ID, req.SubmittedAtMillis))
	if err != nil {
		return domain.InvoiceEditResponse{}, err
	}
	defer release()

	original, err := s.repo.GetInvoiceByID(ctx, req.ID)
	if err != nil {
		return domain.InvoiceEditResponse{}, err
	}
	if !s.canAccessInvoice(ctx, original) {
		return domain.InvoiceEditResponse{}, store.ErrNoClientAccess
	}

	// Preserve the pre-edit state before anything changes. Failures
	// here must not block the edit itself.
	if err := s.repo.ArchiveInvoice(ctx, domain.ArchivedInvoice{
		Reason:   domain.ArchiveReasonEdit,
		Snapshot: *original,
	}); err != nil {
		log.Printf("[service] WARN: failed to archive invoice %s before edit: %v", original.InvoiceNo, err)
	}
	if err := s.repo.CreateEditHistory(ctx, domain.EditHistoryEntry{
		InvoiceID: original.ID,
		InvoiceNo: original.InvoiceNo,
		Snapshot:  *original,
	}); err != nil {
		log.Printf("[service] WARN: failed to record edit history for %s: %v", original.InvoiceNo, err)
	}

	now := time.Now().UTC()
	invoiceDate, err := resolveInvoiceDate(req.InvoiceCreateRequest, now)
	if err != nil {
		return domain.InvoiceEditResponse{}, err
	}

	lines, total, err := buildLines(req.InvoiceCreateRequest, invoiceDate, now)
	if err != nil {
		return domain.InvoiceEditResponse{}, err
	}

	additional := 0.0
	for _, p := range original.AdditionalPayments {
		additional += p.Amount
	}
	remaining, status, err := settle(total, req.ReceivedAmount, req.BatteriesRate, additional)
	if err != nil {
		return domain.InvoiceEditResponse{}, err
	}

	updated := domain.Invoice{
		ID:                    original.ID,
		InvoiceNo:             original.InvoiceNo,
		ClientID:              original.ClientID,
		CustomerID:            req.CustomerID,
		CustomerName:          req.CustomerName,
		CustomerAddress:       strings.TrimSpace(req.CustomerAddress),
		CustomerContactNumber: strings.TrimSpace(req.CustomerContactNumber),
		CustomerType:          strings.TrimSpace(req.CustomerType),
		InvoiceDate:           invoiceDate,
		Products:              lines,
		PaymentMethod:         normalizePaymentMethods(req.PaymentMethod),
		ReceivedAmount:        req.ReceivedAmount,
		BatteriesRate:         req.BatteriesRate,
		TotalAmount:           total,
		RemainingAmount:       remaining,
		PaymentStatus:         status,
		AdditionalPayments:    original.AdditionalPayments,
		EditHistory:           original.EditHistory,
		CreatedAt:             original.CreatedAt,
	}

	changes := diffInvoices(original, &updated)
	if len(changes) > 0 {
		actor, _ := ActorFromContext(ctx)
		updated.EditHistory = append(updated.EditHistory, domain.EditRecord{
			EditedAt: now,
			EditedBy: actor.Username,
			Changes:  changes,
		})
	}

	saved, err := s.repo.ReplaceInvoice(ctx, updated)
	if err != nil {
		return domain.InvoiceEditResponse{}, err
	}

	s.recordWarranties(ctx, saved, domain.WarrantyEventEdited, "")

	return domain.InvoiceEditResponse{
		Message: "Invoice updated successfully",
		UpdatedInvoice: domain.UpdatedInvoice{
			InvoiceNo:     saved.InvoiceNo,
			TotalAmount:   saved.TotalAmount,
			PaymentStatus: saved.PaymentStatus,
			ProductsCount: len(saved.Products),
		},
	}, nil
}

func (s *Service) DeleteInvoice(ctx context.Context, id string) (domain.InvoiceDeleteResponse, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.InvoiceDeleteResponse{}, store.ErrInvalidInvoice
	}

	existing, err := s.repo.GetInvoiceByID(ctx, id)
	if err != nil {
		return domain.InvoiceDeleteResponse{}, err
	}
	if !s.canAccessInvoice(ctx, existing) {
		return domain.InvoiceDeleteResponse{}, store.ErrNoClientAccess
	}

	// Warranty snapshots survive the invoice, so they are written from
	// the live copy before it goes away.
	warrantiesRecorded := s.recordWarranties(ctx, existing, domain.WarrantyEventDeleted, "invoice deleted")

	snapshot, err := s.repo.DeleteInvoice(ctx, id)
	if err != nil {
		return domain.InvoiceDeleteResponse{}, err
	}

	actions := []string{"invoice deleted", "stock restored", "sales records removed"}
	if warrantiesRecorded {
		actions = append(actions, "warranty history recorded")
	}
	if err := s.repo.ArchiveInvoice(ctx, domain.ArchivedInvoice{
		Reason:   domain.ArchiveReasonDelete,
		Snapshot: *snapshot,
	}); err != nil {
		log.Printf("[service] WARN: failed to archive deleted invoice %s: %v", snapshot.InvoiceNo, err)
	} else {
		actions = append(actions, "invoice archived")
	}

	return domain.InvoiceDeleteResponse{
		Message:          "Invoice deleted successfully",
		DeletedInvoiceNo: snapshot.InvoiceNo,
		ActionsCompleted: actions,
	}, nil
}

func (s *Service) AddPayment(ctx context.Context, req domain.AddPaymentRequest) (domain.AddPaymentResponse, error) {
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" || req.AdditionalPayment <= 0 {
		return domain.AddPaymentResponse{}, store.ErrInvalidInvoice
	}
	methods := normalizePaymentMethods(req.PaymentMethod)
	for _, m := range methods {
		if !isSupportedPaymentMethod(m) {
			return domain.AddPaymentResponse{}, store.ErrInvalidInvoice
		}
	}

	existing, err := s.repo.GetInvoiceByID(ctx, req.ID)
	if err != nil {
		return domain.AddPaymentResponse{}, err
	}
	if !s.canAccessInvoice(ctx, existing) {
		return domain.AddPaymentResponse{}, store.ErrNoClientAccess
	}

	updated, err := s.repo.AddInvoicePayment(ctx, req.ID, domain.PaymentEntry{
		Amount:  req.AdditionalPayment,
		Method:  strings.Join(methods, "+"),
		AddedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.AddPaymentResponse{}, err
	}

	return domain.AddPaymentResponse{
		Message:         "Payment added successfully",
		RemainingAmount: updated.RemainingAmount,
		PaymentStatus:   updated.PaymentStatus,
	}, nil
}

func (s *Service) GetInvoice(ctx context.Context, id string) (domain.Invoice, error) {
	invoice, err := s.repo.GetInvoiceByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Invoice{}, err
	}
	if !s.canAccessInvoice(ctx, invoice) {
		return domain.Invoice{}, store.ErrNoClientAccess
	}
	return *invoice, nil
}

func (s *Service) ListInvoices(ctx context.Context, filter domain.InvoiceListFilter) (domain.InvoiceListResponse, error) {
	clientID, err := s.resolveClientID(ctx, filter.ClientID)
	if err != nil {
		return domain.InvoiceListResponse{}, err
	}
	filter.ClientID = clientID
	if filter.Limit < 1 {
		filter.Limit = 20
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	invoices, total, err := s.repo.ListInvoices(ctx, filter)
	if err != nil {
		return domain.InvoiceListResponse{}, err
	}

	return domain.InvoiceListResponse{
		Success: true,
		Data:    invoices,
		Pagination: domain.Pagination{
			Total:   total,
			Limit:   filter.Limit,
			Offset:  filter.Offset,
			HasMore: filter.Offset+len(invoices) < total,
		},
	}, nil
}

func (s *Service) ReceiveStock(ctx context.Context, req domain.StockReceiveRequest) (domain.StockEntry, error) {
	clientID, err := s.resolveClientID(ctx, req.SelectedClientID)
	if err != nil {
		return domain.StockEntry{}, err
	}
	if req.Quantity < 1 {
		return domain.StockEntry{}, store.ErrInvalidInvoice
	}

	productID := strings.TrimSpace(req.ProductID)
	brand := strings.TrimSpace(req.BrandName)
	series := strings.TrimSpace(req.SeriesName)

	if productID == "" {
		if brand == "" || series == "" {
			return domain.StockEntry{}, store.ErrInvalidInvoice
		}
		existing, err := s.repo.GetStockByKey(ctx, clientID, brand, series)
		switch {
		case err == nil:
			productID = existing.ProductID
		case errors.Is(err, store.ErrNotFound):
			productID = xid.New("prod")
		default:
			return domain.StockEntry{}, err
		}
	}

	entry, err := s.repo.ReceiveStock(ctx, clientID, productID, req.Quantity)
	if errors.Is(err, store.ErrNotFound) && brand != "" && series != "" {
		fresh := domain.StockEntry{
			ProductID:  productID,
			ClientID:   clientID,
			BrandName:  brand,
			SeriesName: series,
			InStock:    req.Quantity,
		}
		if err := s.repo.UpsertStockEntry(ctx, fresh); err != nil {
			return domain.StockEntry{}, err
		}
		return fresh, nil
	}
	if err != nil {
		return domain.StockEntry{}, err
	}
	return *entry, nil
}

func (s *Service) ListStock(ctx context.Context, selectedClientID string) ([]domain.StockEntry, error) {
	clientID, err := s.resolveClientID(ctx, selectedClientID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListStock(ctx, clientID)
}

func (s *Service) ListWarranties(ctx context.Context, selectedClientID string, invoiceNo string) ([]domain.WarrantyRecord, error) {
	clientID, err := s.resolveClientID(ctx, selectedClientID)
	if err != nil {
		return nil, err
	}
	invoiceNo = strings.TrimSpace(invoiceNo)

	cacheKey := "warranties:" + clientID + ":" + invoiceNo
	if s.lookups != nil {
		if cached, ok := s.lookups.Get(cacheKey); ok {
			if records, ok := cached.([]domain.WarrantyRecord); ok {
				return records, nil
			}
		}
	}

	records, err := s.repo.ListWarrantyRecords(ctx, clientID, invoiceNo)
	if err != nil {
		return nil, err
	}
	if s.lookups != nil {
		s.lookups.Set(cacheKey, records)
	}
	return records, nil
}

func (s *Service) Dashboard(ctx context.Context, selectedClientID string) (domain.DashboardOverview, error) {
	clientID, err := s.resolveClientID(ctx, selectedClientID)
	if err != nil {
		return domain.DashboardOverview{}, err
	}

	invoices, total, err := s.repo.ListInvoices(ctx, domain.InvoiceListFilter{ClientID: clientID})
	if err != nil {
		return domain.DashboardOverview{}, err
	}
	revenue := 0.0
	outstanding := 0.0
	for _, invoice := range invoices {
		revenue += invoice.TotalAmount
		outstanding += invoice.RemainingAmount
	}

	stock, err := s.repo.ListStock(ctx, clientID)
	if err != nil {
		return domain.DashboardOverview{}, err
	}

	overview := domain.DashboardOverview{
		TotalInvoices:     total,
		TotalRevenue:      round2(revenue),
		OutstandingAmount: round2(outstanding),
		StockEntries:      len(stock),
	}

	report, err := s.syncReport(ctx, clientID)
	if err != nil {
		// The dashboard still renders without the audit section.
		log.Printf("[service] WARN: sync verification unavailable for client %s: %v", clientID, err)
	} else {
		overview.SyncVerification = report
	}

	return overview, nil
}

func (s *Service) syncReport(ctx context.Context, clientID string) (*domain.SyncReport, error) {
	cacheKey := "syncreport:" + clientID

	cached, hit, err := s.reportCache.Get(ctx, cacheKey)
	if err != nil {
		log.Printf("[service] WARN: sync report cache read failed: %v", err)
	}
	if hit {
		return cached, nil
	}

	report, err := s.verifier.Run(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if err := s.reportCache.Set(ctx, cacheKey, &report, s.reportTTL); err != nil {
		log.Printf("[service] WARN: sync report cache write failed: %v", err)
	}
	return &report, nil
}

// recordWarranties writes an immutable snapshot per warrantied line.
// Failures are logged, never propagated: warranty history is an audit
// trail, not part of the lifecycle transaction.
func (s *Service) recordWarranties(ctx context.Context, invoice *domain.Invoice, event string, reason string) bool {
	recorded := false
	now := time.Now().UTC()
	for _, line := range invoice.Products {
		if line.Warranty == nil {
			continue
		}
		record := domain.WarrantyRecord{
			ClientID:       invoice.ClientID,
			InvoiceNo:      invoice.InvoiceNo,
			ProductID:      line.ProductID,
			BrandName:      line.BrandName,
			SeriesName:     line.SeriesName,
			Code:           line.Warranty.Code,
			StartDate:      line.Warranty.StartDate,
			EndDate:        line.Warranty.EndDate,
			DurationMonths: line.Warranty.DurationMonths,
			Event:          event,
			Reason:         reason,
			RecordedAt:     now,
		}
		if err := s.repo.CreateWarrantyRecord(ctx, record); err != nil {
			log.Printf("[service] WARN: failed to record warranty %s for invoice %s: %v", line.Warranty.Code, invoice.InvoiceNo, err)
			continue
		}
		recorded = true
	}
	return recorded
}

func resolveInvoiceDate(req domain.InvoiceCreateRequest, now time.Time) (time.Time, error) {
	if !req.UseCustomDate {
		return now, nil
	}
	if strings.TrimSpace(req.CustomDate) == "" {
		return time.Time{}, store.ErrInvalidInvoice
	}
	parsed, err := time.ParseInLocation(dateLayout, strings.TrimSpace(req.CustomDate), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad custom date", store.ErrInvalidInvoice)
	}
	return parsed, nil
}

func buildLines(req domain.InvoiceCreateRequest, invoiceDate time.Time, now time.Time) ([]domain.ProductLine, float64, error) {
	lines := make([]domain.ProductLine, 0, len(req.Products))
	total := 0.0
	for _, input := range req.Products {
		brand := strings.TrimSpace(input.BrandName)
		series := strings.TrimSpace(input.SeriesName)
		if brand == "" || series == "" || input.Quantity < 1 || input.Price <= 0 {
			return nil, 0, store.ErrInvalidInvoice
		}

		productType := strings.TrimSpace(input.ProductType)
		if productType == "" {
			productType = warranty.ClassifySeries(series)
		}

		line := domain.ProductLine{
			ProductID:   strings.TrimSpace(input.ProductID),
			BrandName:   brand,
			SeriesName:  series,
			ProductType: productType,
			Price:       input.Price,
			Quantity:    input.Quantity,
			TotalPrice:  round2(input.Price * float64(input.Quantity)),
		}

		if !warranty.Exempt(productType) {
			start := invoiceDate
			if !req.UseCustomDate && strings.TrimSpace(input.WarrantyStartDate) != "" {
				parsed, err := time.ParseInLocation(dateLayout, strings.TrimSpace(input.WarrantyStartDate), time.UTC)
				if err != nil {
					return nil, 0, fmt.Errorf("%w: bad warranty start date", store.ErrInvalidInvoice)
				}
				start = parsed
			}
			if err := warranty.Validate(start, input.WarrantyMonths, now); err != nil {
				return nil, 0, fmt.Errorf("%w: %v", store.ErrInvalidInvoice, err)
			}
			code := strings.TrimSpace(input.WarrantyCode)
			if code == "" {
				code = xid.New("wty")
			}
			line.Warranty = &domain.LineWarranty{
				Code:           code,
				StartDate:      start,
				EndDate:        warranty.EndDate(start, input.WarrantyMonths),
				DurationMonths: input.WarrantyMonths,
			}
		}

		lines = append(lines, line)
		total += line.TotalPrice
	}
	return lines, round2(total), nil
}

func settle(total float64, received float64, batteriesRate float64, additional float64) (float64, string, error) {
	if received < 0 || batteriesRate < 0 {
		return 0, "", store.ErrInvalidInvoice
	}
	paid := received + batteriesRate + additional
	if paid > total+0.005 {
		return 0, "", store.ErrInvalidInvoice
	}
	remaining := round2(total - paid)
	if remaining < 0 {
		remaining = 0
	}
	status := domain.PaymentStatusPending
	switch {
	case remaining <= 0.005:
		status = domain.PaymentStatusPaid
		remaining = 0
	case paid > 0:
		status = domain.PaymentStatusPartial
	}
	return remaining, status, nil
}

func diffInvoices(oldInvoice *domain.Invoice, newInvoice *domain.Invoice) []domain.FieldChange {
	changes := make([]domain.FieldChange, 0, 8)

	appendChange := func(field string, oldValue string, newValue string, kind string) {
		if oldValue == newValue {
			return
		}
		changes = append(changes, domain.FieldChange{
			Field:    field,
			OldValue: oldValue,
			NewValue: newValue,
			Type:     kind,
		})
	}

	appendChange("customerName", oldInvoice.CustomerName, newInvoice.CustomerName, domain.ChangeTypeCustomer)
	appendChange("customerAddress", oldInvoice.CustomerAddress, newInvoice.CustomerAddress, domain.ChangeTypeCustomer)
	appendChange("customerContactNumber", oldInvoice.CustomerContactNumber, newInvoice.CustomerContactNumber, domain.ChangeTypeCustomer)
	appendChange("customerType", oldInvoice.CustomerType, newInvoice.CustomerType, domain.ChangeTypeCustomer)

	appendChange("receivedAmount", formatAmount(oldInvoice.ReceivedAmount), formatAmount(newInvoice.ReceivedAmount), domain.ChangeTypePayment)
	appendChange("batteriesRate", formatAmount(oldInvoice.BatteriesRate), formatAmount(newInvoice.BatteriesRate), domain.ChangeTypePayment)
	appendChange("totalAmount", formatAmount(oldInvoice.TotalAmount), formatAmount(newInvoice.TotalAmount), domain.ChangeTypePayment)
	appendChange("paymentMethod", strings.Join(oldInvoice.PaymentMethod, ","), strings.Join(newInvoice.PaymentMethod, ","), domain.ChangeTypePayment)

	appendChange("productDetail", renderLines(oldInvoice.Products), renderLines(newInvoice.Products), domain.ChangeTypeProduct)
	appendChange("invoiceDate", oldInvoice.InvoiceDate.Format(dateLayout), newInvoice.InvoiceDate.Format(dateLayout), domain.ChangeTypeDate)

	return changes
}

func renderLines(lines []domain.ProductLine) string {
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		parts = append(parts, fmt.Sprintf("%s %s x%d @%s", line.BrandName, line.SeriesName, line.Quantity, formatAmount(line.Price)))
	}
	return strings.Join(parts, "; ")
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func normalizePaymentMethods(methods []string) []string {
	result := make([]string, 0, len(methods))
	for _, m := range methods {
		m = strings.ToLower(strings.TrimSpace(m))
		if m == "" {
			continue
		}
		result = append(result, m)
	}
	if len(result) == 0 {
		result = append(result, "cash")
	}
	return result
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case "cash", "card", "bank", "cheque", "jazzcash", "easypaisa":
		return true
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
