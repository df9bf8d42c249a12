package store

import (
	"context"
	"errors"

	"battrack/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInvoice    = errors.New("invalid invoice")
	ErrNoClientAccess    = errors.New("no client access")
)

// Repository is the persistence collaborator. Lifecycle mutations are
// composite operations: each one adjusts stock, the invoice, and the
// sales mirror atomically, so a failed stock check leaves nothing
// half-written.
type Repository interface {
	NextInvoiceNo(ctx context.Context) (string, error)

	CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error)
	ReplaceInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error)
	DeleteInvoice(ctx context.Context, id string) (*domain.Invoice, error)
	AddInvoicePayment(ctx context.Context, id string, payment domain.PaymentEntry) (*domain.Invoice, error)
	GetInvoiceByID(ctx context.Context, id string) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, filter domain.InvoiceListFilter) ([]domain.Invoice, int, error)

	GetStockByProductID(ctx context.Context, clientID string, productID string) (*domain.StockEntry, error)
	GetStockByKey(ctx context.Context, clientID string, brand string, series string) (*domain.StockEntry, error)
	UpsertStockEntry(ctx context.Context, entry domain.StockEntry) error
	ReceiveStock(ctx context.Context, clientID string, productID string, qty int) (*domain.StockEntry, error)
	ListStock(ctx context.Context, clientID string) ([]domain.StockEntry, error)

	ListSales(ctx context.Context, clientID string, limit int, offset int) ([]domain.SalesRecord, error)
	GetSalesByInvoiceNo(ctx context.Context, invoiceNo string) (*domain.SalesRecord, error)

	CreateWarrantyRecord(ctx context.Context, record domain.WarrantyRecord) error
	ListWarrantyRecords(ctx context.Context, clientID string, invoiceNo string) ([]domain.WarrantyRecord, error)

	ArchiveInvoice(ctx context.Context, archive domain.ArchivedInvoice) error
	CreateEditHistory(ctx context.Context, entry domain.EditHistoryEntry) error

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
