package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"battrack/backend/internal/cache"
	"battrack/backend/internal/dedup"
	"battrack/backend/internal/domain"
	"battrack/backend/internal/store"
	"battrack/backend/internal/store/memory"
	"battrack/backend/internal/syncaudit"
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	verifier := syncaudit.NewVerifier(repo, 100, 5*time.Second)
	svc := New(repo, dedup.NewGuard(), dedup.NewLookupCache(time.Minute), cache.NoopSyncReportCache{}, verifier, "main-client", 5*time.Second)
	return svc, repo
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		Username:     "admin",
		Role:         "admin",
		IsSuperAdmin: true,
	})
}

func staffCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		Username: "staff",
		Role:     "staff",
		ClientID: "main-client",
	})
}

func createRequest(lines ...domain.ProductLineInput) domain.InvoiceCreateRequest {
	return domain.InvoiceCreateRequest{
		CustomerName:          "Ali Traders",
		CustomerAddress:       "Shop 12, Battery Market",
		CustomerContactNumber: "0300-1234567",
		CustomerType:          "retailer",
		PaymentMethod:         []string{"cash"},
		Products:              lines,
	}
}

func batteryInput(qty int) domain.ProductLineInput {
	return domain.ProductLineInput{
		ProductID:      "prod-ags-gx120",
		BrandName:      "AGS",
		SeriesName:     "GX-120",
		Price:          18500,
		Quantity:       qty,
		WarrantyMonths: 6,
	}
}

func tonicInput(qty int) domain.ProductLineInput {
	return domain.ProductLineInput{
		ProductID:  "prod-osaka-tonic1l",
		BrandName:  "Osaka",
		SeriesName: "Battery Tonic 1L",
		Price:      450,
		Quantity:   qty,
	}
}

func TestCreateInvoiceSequentialNumbers(t *testing.T) {
	svc, _ := newTestService()
	ctx := staffCtx()

	for _, want := range []string{"00000001", "00000002", "00000003"} {
		req := createRequest(batteryInput(1))
		req.ReceivedAmount = 18500
		resp, err := svc.CreateInvoice(ctx, req)
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if resp.InvoiceNo != want {
			t.Fatalf("expected invoice no %s, got %s", want, resp.InvoiceNo)
		}
	}
}

func TestCreateInvoicePartialPayment(t *testing.T) {
	svc, repo := newTestService()
	ctx := staffCtx()

	req := createRequest(batteryInput(2))
	req.ReceivedAmount = 10000
	req.BatteriesRate = 2000
	resp, err := svc.CreateInvoice(ctx, req)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	list, _, err := repo.ListInvoices(ctx, domain.InvoiceListFilter{ClientID: "main-client"})
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one invoice, got %d err %v", len(list), err)
	}
	invoice := list[0]
	if invoice.InvoiceNo != resp.InvoiceNo {
		t.Fatalf("invoice no mismatch")
	}
	if invoice.TotalAmount != 37000 {
		t.Fatalf("expected total 37000, got %v", invoice.TotalAmount)
	}
	if invoice.RemainingAmount != 25000 {
		t.Fatalf("expected remaining 25000, got %v", invoice.RemainingAmount)
	}
	if invoice.PaymentStatus != domain.PaymentStatusPartial {
		t.Fatalf("expected partial status, got %s", invoice.PaymentStatus)
	}
}

func TestCreateInvoiceRejectsOverpayment(t *testing.T) {
	svc, _ := newTestService()

	req := createRequest(batteryInput(1))
	req.ReceivedAmount = 18000
	req.BatteriesRate = 1000
	if _, err := svc.CreateInvoice(staffCtx(), req); !errors.Is(err, store.ErrInvalidInvoice) {
		t.Fatalf("expected ErrInvalidInvoice for received+batteries > total, got %v", err)
	}
}

func TestCreateInvoiceWarrantyFromCustomDate(t *testing.T) {
	svc, repo := newTestService()
	ctx := staffCtx()

	req := createRequest(batteryInput(1))
	req.ReceivedAmount = 18500
	req.UseCustomDate = true
	req.CustomDate = "2024-02-10"
	// A per-line start date loses to the custom invoice date.
	req.Products[0].WarrantyStartDate = "2024-01-01"
	if _, err := svc.CreateInvoice(ctx, req); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	list, _, _ := repo.ListInvoices(ctx, domain.InvoiceListFilter{ClientID: "main-client"})
	w := list[0].Products[0].Warranty
	if w == nil {
		t.Fatalf("expected warranty on battery line")
	}
	wantStart := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	if !w.StartDate.Equal(wantStart) {
		t.Fatalf("expected custom date to force warranty start, got %v", w.StartDate)
	}
	if !w.EndDate.Equal(wantStart.AddDate(0, 6, 0)) {
		t.Fatalf("expected calendar month end date, got %v", w.EndDate)
	}
}

func TestCreateInvoiceTonicSkipsWarranty(t *testing.T) {
	svc, repo := newTestService()
	ctx := staffCtx()

	req := createRequest(tonicInput(3))
	req.ReceivedAmount = 1350
	if _, err := svc.CreateInvoice(ctx, req); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	list, _, _ := repo.ListInvoices(ctx, domain.InvoiceListFilter{ClientID: "main-client"})
	line := list[0].Products[0]
	if line.ProductType != domain.ProductTypeTonic && line.ProductType != domain.ProductTypeConsumable {
		t.Fatalf("expected exempt product type, got %s", line.ProductType)
	}
	if line.Warranty != nil {
		t.Fatalf("expected no warranty on tonic line")
	}

	records, err := svc.ListWarranties(ctx, "", list[0].InvoiceNo)
	if err != nil {
		t.Fatalf("list warranties failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no warranty records, got %d", len(records))
	}
}

func TestCreateInvoiceRequiresWarrantyMonthsForBattery(t *testing.T) {
	svc, _ := newTestService()

	input := batteryInput(1)
	input.WarrantyMonths = 0
	req := createRequest(input)
	req.ReceivedAmount = 18500
	if _, err := svc.CreateInvoice(staffCtx(), req); !errors.Is(err, store.ErrInvalidInvoice) {
		t.Fatalf("expected validation failure without warranty months, got %v", err)
	}

	input.WarrantyMonths = 121
	req = createRequest(input)
	req.ReceivedAmount = 18500
	if _, err := svc.CreateInvoice(staffCtx(), req); !errors.Is(err, store.ErrInvalidInvoice) {
		t.Fatalf("expected validation failure for 121 months, got %v", err)
	}
}

func TestCreateInvoiceDuplicateSubmission(t *testing.T) {
	svc, _ := newTestService()
	ctx := staffCtx()

	req := createRequest(batteryInput(1))
	req.ReceivedAmount = 18500
	req.SubmittedAtMillis = 1700000000000

	release, err := svc.guard.Acquire(dedup.CreateKey(req.CustomerName, req.CustomerContactNumber, req.SubmittedAtMillis))
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer release()

	if _, err := svc.CreateInvoice(ctx, req); !errors.Is(err, dedup.ErrDuplicateInFlight) {
		t.Fatalf("expected ErrDuplicateInFlight, got %v", err)
	}

	// A submission stamped one millisecond later is a different key.
	req.SubmittedAtMillis++
	if _, err := svc.CreateInvoice(ctx, req); err != nil {
		t.Fatalf("expected later submission to pass, got %v", err)
	}
}

func TestCreateInvoiceTenantPrecedence(t *testing.T) {
	svc, repo := newTestService()

	// Superadmin with no selection lands on the server default.
	req := createRequest(batteryInput(1))
	req.ReceivedAmount = 18500
	if _, err := svc.CreateInvoice(adminCtx(), req); err != nil {
		t.Fatalf("admin create failed: %v", err)
	}
	list, _, _ := repo.ListInvoices(context.Background(), domain.InvoiceListFilter{ClientID: "main-client"})
	if len(list) != 1 {
		t.Fatalf("expected invoice under default client, got %d", len(list))
	}

	// Staff cannot write into another tenant.
	req = createRequest(batteryInput(1))
	req.ReceivedAmount = 18500
	req.SelectedClientID = "other-client"
	if _, err := svc.CreateInvoice(staffCtx(), req); !errors.Is(err, store.ErrNoClientAccess) {
		t.Fatalf("expected ErrNoClientAccess, got %v", err)
	}

	// No actor at all is rejected outright.
	req.SelectedClientID = ""
	if _, err := svc.CreateInvoice(context.Background(), req); !errors.Is(err, store.ErrNoClientAccess) {
		t.Fatalf("expected ErrNoClientAccess without actor, got %v", err)
	}
}

func TestDeleteInvoiceRoundTripsStock(t *testing.T) {
	svc, repo := newTestService()
	ctx := staffCtx()

	req := createRequest(batteryInput(5))
	req.ReceivedAmount = 92500
	if _, err := svc.CreateInvoice(ctx, req); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	entry, _ := repo.GetStockByProductID(ctx, "main-client", "prod-ags-gx120")
	if entry.InStock != 35 || entry.SoldCount != 5 {
		t.Fatalf("expected 35/5 after sale, got %+v", entry)
	}

	list, _, _ := repo.ListInvoices(ctx, domain.InvoiceListFilter{ClientID: "main-client"})
	resp, err := svc.DeleteInvoice(ctx, list[0].ID)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if resp.DeletedInvoiceNo != list[0].InvoiceNo {
		t.Fatalf("unexpected manifest %+v", resp)
	}
	if len(resp.ActionsCompleted) == 0 {
		t.Fatalf("expected completed actions in manifest")
	}

	entry, _ = repo.GetStockByProductID(ctx, "main-client", "prod-ags-gx120")
	if entry.InStock != 40 || entry.SoldCount != 0 {
		t.Fatalf("expected full round trip to 40/0, got %+v", entry)
	}

	// Warranty snapshots outlive the invoice.
	records, err := svc.ListWarranties(ctx, "", resp.DeletedInvoiceNo)
	if err != nil {
		t.Fatalf("list warranties failed: %v", err)
	}
	foundDeleted := false
	for _, record := range records {
		if record.Event == domain.WarrantyEventDeleted {
			foundDeleted = true
		}
	}
	if !foundDeleted {
		t.Fatalf("expected a deleted-event warranty record, got %+v", records)
	}
}

func TestEditInvoiceAppliesNetStockDelta(t *testing.T) {
	svc, repo := newTestService()
	ctx := staffCtx()

	req := createRequest(batteryInput(5))
	req.ReceivedAmount = 92500
	if _, err := svc.CreateInvoice(ctx, req); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	list, _, _ := repo.ListInvoices(ctx, domain.InvoiceListFilter{ClientID: "main-client"})

	editReq := domain.InvoiceEditRequest{ID: list[0].ID, InvoiceCreateRequest: createRequest(batteryInput(8))}
	editReq.ReceivedAmount = 100000
	resp, err := svc.EditInvoice(ctx, editReq)
	if err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	if resp.UpdatedInvoice.ProductsCount != 1 || resp.UpdatedInvoice.TotalAmount != 148000 {
		t.Fatalf("unexpected edit summary %+v", resp.UpdatedInvoice)
	}

	entry, _ := repo.GetStockByProductID(ctx, "main-client", "prod-ags-gx120")
	if entry.InStock != 32 || entry.SoldCount != 8 {
		t.Fatalf("expected net -3 applied, got %+v", entry)
	}

	edited, err := repo.GetInvoiceByID(ctx, list[0].ID)
	if err != nil {
		t.Fatalf("fetch edited failed: %v", err)
	}
	if len(edited.EditHistory) != 1 {
		t.Fatalf("expected one edit record, got %d", len(edited.EditHistory))
	}
	sawProductChange := false
	for _, change := range edited.EditHistory[0].Changes {
		if change.Type == domain.ChangeTypeProduct {
			sawProductChange = true
		}
	}
	if !sawProductChange {
		t.Fatalf("expected a product-typed change, got %+v", edited.EditHistory[0].Changes)
	}
}

func TestEditInvoiceInsufficientStockLeavesOriginal(t *testing.T) {
	svc, repo := newTestService()
	ctx := staffCtx()

	req := createRequest(batteryInput(5))
	req.ReceivedAmount = 92500
	if _, err := svc.CreateInvoice(ctx, req); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	list, _, _ := repo.ListInvoices(ctx, domain.InvoiceListFilter{ClientID: "main-client"})

	editReq := domain.InvoiceEditRequest{ID: list[0].ID, InvoiceCreateRequest: createRequest(batteryInput(99))}
	editReq.ReceivedAmount = 0
	if _, err := svc.EditInvoice(ctx, editReq); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	entry, _ := repo.GetStockByProductID(ctx, "main-client", "prod-ags-gx120")
	if entry.InStock != 35 || entry.SoldCount != 5 {
		t.Fatalf("expected original quantities intact, got %+v", entry)
	}
}

func TestAddPaymentSettlesInvoice(t *testing.T) {
	svc, repo := newTestService()
	ctx := staffCtx()

	req := createRequest(batteryInput(2))
	req.ReceivedAmount = 10000
	if _, err := svc.CreateInvoice(ctx, req); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	list, _, _ := repo.ListInvoices(ctx, domain.InvoiceListFilter{ClientID: "main-client"})

	resp, err := svc.AddPayment(ctx, domain.AddPaymentRequest{
		ID:                list[0].ID,
		AdditionalPayment: 7000,
		PaymentMethod:     []string{"cash"},
	})
	if err != nil {
		t.Fatalf("add payment failed: %v", err)
	}
	if resp.RemainingAmount != 20000 || resp.PaymentStatus != domain.PaymentStatusPartial {
		t.Fatalf("expected 20000 remaining partial, got %+v", resp)
	}

	resp, err = svc.AddPayment(ctx, domain.AddPaymentRequest{
		ID:                list[0].ID,
		AdditionalPayment: 20000,
		PaymentMethod:     []string{"bank"},
	})
	if err != nil {
		t.Fatalf("settling payment failed: %v", err)
	}
	if resp.RemainingAmount != 0 || resp.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected settled invoice, got %+v", resp)
	}

	_, err = svc.AddPayment(ctx, domain.AddPaymentRequest{ID: list[0].ID, AdditionalPayment: 1})
	if !errors.Is(err, store.ErrInvalidInvoice) {
		t.Fatalf("expected overpayment rejection, got %v", err)
	}
}

func TestDashboardReportsDrift(t *testing.T) {
	svc, repo := newTestService()
	ctx := staffCtx()

	req := createRequest(batteryInput(4))
	req.ReceivedAmount = 74000
	if _, err := svc.CreateInvoice(ctx, req); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	overview, err := svc.Dashboard(ctx, "")
	if err != nil {
		t.Fatalf("dashboard failed: %v", err)
	}
	if overview.TotalInvoices != 1 || overview.TotalRevenue != 74000 {
		t.Fatalf("unexpected totals %+v", overview)
	}
	if overview.SyncVerification == nil || !overview.SyncVerification.IsFullySynced {
		t.Fatalf("expected clean sync report, got %+v", overview.SyncVerification)
	}

	// Tamper with the ledger counter behind the sales mirror's back.
	entry, _ := repo.GetStockByProductID(ctx, "main-client", "prod-ags-gx120")
	tampered := *entry
	tampered.SoldCount = 1
	if err := repo.UpsertStockEntry(ctx, domain.StockEntry{
		ProductID: tampered.ProductID, ClientID: tampered.ClientID,
		BrandName: tampered.BrandName, SeriesName: tampered.SeriesName,
		InStock: tampered.InStock, SoldCount: tampered.SoldCount,
	}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	overview, err = svc.Dashboard(ctx, "")
	if err != nil {
		t.Fatalf("dashboard failed: %v", err)
	}
	report := overview.SyncVerification
	if report == nil {
		t.Fatalf("expected sync report")
	}
	// Upsert refuses to rewind the sold counter, so the ledger still
	// reads 4 and the report stays clean. Drift needs a missing sale.
	if !report.IsFullySynced {
		t.Fatalf("expected still synced, got %+v", report.SyncIssues)
	}

	if err := repo.UpsertStockEntry(ctx, domain.StockEntry{
		ProductID: "prod-ghost", ClientID: "main-client",
		BrandName: "Ghost", SeriesName: "GH-1", InStock: 3, SoldCount: 2,
	}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	overview, err = svc.Dashboard(ctx, "")
	if err != nil {
		t.Fatalf("dashboard failed: %v", err)
	}
	report = overview.SyncVerification
	if report.IsFullySynced || report.SyncSummary.IssueCount != 1 {
		t.Fatalf("expected one drift issue, got %+v", report)
	}
	if report.SyncIssues[0].Issue != syncaudit.IssueSalesNotFound {
		t.Fatalf("expected sales-not-found issue, got %q", report.SyncIssues[0].Issue)
	}
}

func TestReceiveStockCreatesAndIncrements(t *testing.T) {
	svc, _ := newTestService()
	ctx := staffCtx()

	entry, err := svc.ReceiveStock(ctx, domain.StockReceiveRequest{
		ProductID: "prod-ags-gx120",
		Quantity:  10,
	})
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if entry.InStock != 50 {
		t.Fatalf("expected 50 in stock, got %d", entry.InStock)
	}

	entry, err = svc.ReceiveStock(ctx, domain.StockReceiveRequest{
		BrandName:  "Volta",
		SeriesName: "VL-55",
		Quantity:   12,
	})
	if err != nil {
		t.Fatalf("receive new product failed: %v", err)
	}
	if entry.ProductID == "" || entry.InStock != 12 {
		t.Fatalf("expected fresh entry with 12 in stock, got %+v", entry)
	}

	if _, err := svc.ReceiveStock(ctx, domain.StockReceiveRequest{ProductID: "prod-ags-gx120", Quantity: 0}); !errors.Is(err, store.ErrInvalidInvoice) {
		t.Fatalf("expected rejection of zero quantity, got %v", err)
	}
}
