package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"battrack/backend/internal/domain"
	"battrack/backend/internal/store"
)

func testInvoice(invoiceNo string, lines ...domain.ProductLine) domain.Invoice {
	total := 0.0
	for _, line := range lines {
		total += line.TotalPrice
	}
	return domain.Invoice{
		InvoiceNo:       invoiceNo,
		ClientID:        "main-client",
		CustomerName:    "Ali Traders",
		InvoiceDate:     time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		Products:        lines,
		PaymentMethod:   []string{"cash"},
		ReceivedAmount:  total,
		TotalAmount:     total,
		RemainingAmount: 0,
		PaymentStatus:   domain.PaymentStatusPaid,
	}
}

func batteryLine(productID string, qty int) domain.ProductLine {
	return domain.ProductLine{
		ProductID:   productID,
		BrandName:   "AGS",
		SeriesName:  "GX-120",
		ProductType: domain.ProductTypeBattery,
		Price:       18500,
		Quantity:    qty,
		TotalPrice:  18500 * float64(qty),
	}
}

func TestNextInvoiceNoSequential(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	for i, want := range []string{"00000001", "00000002", "00000003"} {
		got, err := s.NextInvoiceNo(ctx)
		if err != nil {
			t.Fatalf("NextInvoiceNo %d failed: %v", i, err)
		}
		if got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	}
}

func TestCreateInvoiceMovesStockAndMirrorsSales(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	before, err := s.GetStockByProductID(ctx, "main-client", "prod-ags-gx120")
	if err != nil {
		t.Fatalf("stock lookup failed: %v", err)
	}

	created, err := s.CreateInvoice(ctx, testInvoice("00000001", batteryLine("prod-ags-gx120", 5)))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated invoice id")
	}

	after, err := s.GetStockByProductID(ctx, "main-client", "prod-ags-gx120")
	if err != nil {
		t.Fatalf("stock lookup failed: %v", err)
	}
	if after.InStock != before.InStock-5 || after.SoldCount != before.SoldCount+5 {
		t.Fatalf("expected lockstep stock move, got inStock %d soldCount %d", after.InStock, after.SoldCount)
	}

	sales, err := s.GetSalesByInvoiceNo(ctx, "00000001")
	if err != nil {
		t.Fatalf("sales mirror missing: %v", err)
	}
	if len(sales.Lines) != 1 || sales.Lines[0].Quantity != 5 || sales.TotalAmount != created.TotalAmount {
		t.Fatalf("unexpected sales mirror %+v", sales)
	}
}

func TestCreateInvoiceInsufficientStockWritesNothing(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	invoice := testInvoice("00000001",
		batteryLine("prod-ags-gx120", 2),
		domain.ProductLine{
			ProductID: "prod-exide-tr1500", BrandName: "Exide", SeriesName: "TR-1500",
			ProductType: domain.ProductTypeBattery, Price: 30000, Quantity: 9999, TotalPrice: 30000 * 9999,
		},
	)
	if _, err := s.CreateInvoice(ctx, invoice); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	// The first line must not have been decremented.
	entry, err := s.GetStockByProductID(ctx, "main-client", "prod-ags-gx120")
	if err != nil {
		t.Fatalf("stock lookup failed: %v", err)
	}
	if entry.InStock != 40 || entry.SoldCount != 0 {
		t.Fatalf("expected untouched stock, got %+v", entry)
	}
	if _, err := s.GetSalesByInvoiceNo(ctx, "00000001"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no sales mirror, got %v", err)
	}
}

func TestReplaceInvoiceAppliesNetDelta(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	created, err := s.CreateInvoice(ctx, testInvoice("00000001", batteryLine("prod-ags-gx120", 5)))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	edited := testInvoice("00000001", batteryLine("prod-ags-gx120", 8))
	edited.ID = created.ID
	if _, err := s.ReplaceInvoice(ctx, edited); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	entry, err := s.GetStockByProductID(ctx, "main-client", "prod-ags-gx120")
	if err != nil {
		t.Fatalf("stock lookup failed: %v", err)
	}
	if entry.InStock != 32 || entry.SoldCount != 8 {
		t.Fatalf("expected net -3 applied, got inStock %d soldCount %d", entry.InStock, entry.SoldCount)
	}

	sales, err := s.GetSalesByInvoiceNo(ctx, "00000001")
	if err != nil {
		t.Fatalf("sales mirror missing: %v", err)
	}
	if sales.Lines[0].Quantity != 8 {
		t.Fatalf("expected mirrored quantity 8, got %d", sales.Lines[0].Quantity)
	}
}

func TestReplaceInvoiceRejectsWhenDeltaExceedsStock(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	created, err := s.CreateInvoice(ctx, testInvoice("00000001", batteryLine("prod-ags-gx120", 5)))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	edited := testInvoice("00000001", batteryLine("prod-ags-gx120", 5+36))
	edited.ID = created.ID
	if _, err := s.ReplaceInvoice(ctx, edited); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	entry, err := s.GetStockByProductID(ctx, "main-client", "prod-ags-gx120")
	if err != nil {
		t.Fatalf("stock lookup failed: %v", err)
	}
	if entry.InStock != 35 || entry.SoldCount != 5 {
		t.Fatalf("expected original stock preserved, got %+v", entry)
	}
}

func TestDeleteInvoiceRestoresStockAndRemovesSales(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	created, err := s.CreateInvoice(ctx, testInvoice("00000001", batteryLine("prod-ags-gx120", 5)))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	snapshot, err := s.DeleteInvoice(ctx, created.ID)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if snapshot.InvoiceNo != "00000001" {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}

	entry, err := s.GetStockByProductID(ctx, "main-client", "prod-ags-gx120")
	if err != nil {
		t.Fatalf("stock lookup failed: %v", err)
	}
	if entry.InStock != 40 || entry.SoldCount != 0 {
		t.Fatalf("expected full round trip to 40/0, got %+v", entry)
	}
	if _, err := s.GetSalesByInvoiceNo(ctx, "00000001"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected sales mirror removed, got %v", err)
	}
	if _, err := s.GetInvoiceByID(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected invoice gone, got %v", err)
	}
}

func TestAddInvoicePaymentRecomputesStatus(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	invoice := testInvoice("00000001", batteryLine("prod-ags-gx120", 2))
	invoice.ReceivedAmount = 10000
	invoice.RemainingAmount = invoice.TotalAmount - 10000
	invoice.PaymentStatus = domain.PaymentStatusPartial
	created, err := s.CreateInvoice(ctx, invoice)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	updated, err := s.AddInvoicePayment(ctx, created.ID, domain.PaymentEntry{Amount: 7000, Method: "cash"})
	if err != nil {
		t.Fatalf("add payment failed: %v", err)
	}
	if updated.RemainingAmount != 20000 || updated.PaymentStatus != domain.PaymentStatusPartial {
		t.Fatalf("expected remaining 20000 partial, got %v %s", updated.RemainingAmount, updated.PaymentStatus)
	}

	updated, err = s.AddInvoicePayment(ctx, created.ID, domain.PaymentEntry{Amount: 20000, Method: "bank"})
	if err != nil {
		t.Fatalf("settling payment failed: %v", err)
	}
	if updated.RemainingAmount != 0 || updated.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected settled invoice, got %v %s", updated.RemainingAmount, updated.PaymentStatus)
	}

	if _, err := s.AddInvoicePayment(ctx, created.ID, domain.PaymentEntry{Amount: 1, Method: "cash"}); !errors.Is(err, store.ErrInvalidInvoice) {
		t.Fatalf("expected overpayment rejection, got %v", err)
	}
}

func TestUpsertStockEntryNeverRewindsSoldCount(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	if _, err := s.CreateInvoice(ctx, testInvoice("00000001", batteryLine("prod-ags-gx120", 5))); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	err := s.UpsertStockEntry(ctx, domain.StockEntry{
		ProductID: "prod-ags-gx120", ClientID: "main-client",
		BrandName: "AGS", SeriesName: "GX-120", InStock: 100, SoldCount: 0,
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	entry, err := s.GetStockByProductID(ctx, "main-client", "prod-ags-gx120")
	if err != nil {
		t.Fatalf("stock lookup failed: %v", err)
	}
	if entry.InStock != 100 || entry.SoldCount != 5 {
		t.Fatalf("expected sold count preserved, got %+v", entry)
	}
}

func TestGetStockByKeyResolvesCompositeKey(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	entry, err := s.GetStockByKey(ctx, "main-client", "AGS", "GX-120")
	if err != nil {
		t.Fatalf("composite key lookup failed: %v", err)
	}
	if entry.ProductID != "prod-ags-gx120" {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestListInvoicesFiltersAndPaginates(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	for i, name := range []string{"Ali Traders", "Bashir Autos", "Ali Traders"} {
		invoice := testInvoice("", batteryLine("prod-ags-gx120", 1))
		invoice.InvoiceNo, _ = s.NextInvoiceNo(ctx)
		invoice.CustomerName = name
		invoice.CreatedAt = time.Date(2024, 5, 1+i, 0, 0, 0, 0, time.UTC)
		if _, err := s.CreateInvoice(ctx, invoice); err != nil {
			t.Fatalf("create %d failed: %v", i, err)
		}
	}

	invoices, total, err := s.ListInvoices(ctx, domain.InvoiceListFilter{ClientID: "main-client", CustomerName: "ali"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 2 || len(invoices) != 2 {
		t.Fatalf("expected 2 matches, got total %d len %d", total, len(invoices))
	}
	// Newest first.
	if invoices[0].InvoiceNo != "00000003" {
		t.Fatalf("expected newest first, got %s", invoices[0].InvoiceNo)
	}

	invoices, total, err = s.ListInvoices(ctx, domain.InvoiceListFilter{ClientID: "main-client", Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("paged list failed: %v", err)
	}
	if total != 3 || len(invoices) != 1 {
		t.Fatalf("expected page with 1 of 3, got total %d len %d", total, len(invoices))
	}
}
