package domain

import "time"

// ProductType is assigned explicitly when an invoice line is built.
// Exempt types never carry a warranty.
const (
	ProductTypeBattery    = "battery"
	ProductTypeTonic      = "tonic"
	ProductTypeConsumable = "consumable"
)

const (
	PaymentStatusPaid    = "paid"
	PaymentStatusPartial = "partial"
	PaymentStatusPending = "pending"
)

const (
	WarrantyEventCreated = "created"
	WarrantyEventEdited  = "edited"
	WarrantyEventDeleted = "deleted"
)

const (
	ArchiveReasonEdit   = "edit"
	ArchiveReasonDelete = "delete"
)

const (
	ChangeTypeCustomer = "customer"
	ChangeTypePayment  = "payment"
	ChangeTypeProduct  = "product"
	ChangeTypeDate     = "date"
)

type LineWarranty struct {
	Code           string    `json:"code"`
	StartDate      time.Time `json:"startDate"`
	EndDate        time.Time `json:"endDate"`
	DurationMonths int       `json:"durationMonths"`
}

type ProductLine struct {
	ProductID   string        `json:"productId"`
	BrandName   string        `json:"brandName"`
	SeriesName  string        `json:"seriesName"`
	ProductType string        `json:"productType"`
	Price       float64       `json:"price"`
	Quantity    int           `json:"quantity"`
	TotalPrice  float64       `json:"totalPrice"`
	Warranty    *LineWarranty `json:"warranty,omitempty"`
}

type PaymentEntry struct {
	Amount  float64   `json:"amount"`
	Method  string    `json:"method"`
	AddedAt time.Time `json:"addedDate"`
}

type FieldChange struct {
	Field    string `json:"field"`
	OldValue string `json:"oldValue"`
	NewValue string `json:"newValue"`
	Type     string `json:"type"`
}

type EditRecord struct {
	EditedAt time.Time     `json:"editedAt"`
	EditedBy string        `json:"editedBy,omitempty"`
	Changes  []FieldChange `json:"changes"`
}

type Invoice struct {
	ID                    string         `json:"id"`
	InvoiceNo             string         `json:"invoiceNo"`
	ClientID              string         `json:"clientId"`
	CustomerID            string         `json:"customerId,omitempty"`
	CustomerName          string         `json:"customerName"`
	CustomerAddress       string         `json:"customerAddress"`
	CustomerContactNumber string         `json:"customerContactNumber"`
	CustomerType          string         `json:"customerType"`
	InvoiceDate           time.Time      `json:"invoiceDate"`
	Products              []ProductLine  `json:"productDetail"`
	PaymentMethod         []string       `json:"paymentMethod"`
	ReceivedAmount        float64        `json:"receivedAmount"`
	BatteriesRate         float64        `json:"batteriesRate"`
	TotalAmount           float64        `json:"totalAmount"`
	RemainingAmount       float64        `json:"remainingAmount"`
	PaymentStatus         string         `json:"paymentStatus"`
	AdditionalPayments    []PaymentEntry `json:"additionalPayment"`
	EditHistory           []EditRecord   `json:"editHistory"`
	CreatedAt             time.Time      `json:"createdAt"`
	UpdatedAt             time.Time      `json:"updatedAt"`
}

// BatteryDetail is the legacy nested shape some sales rows carry instead
// of direct brand/series fields.
type BatteryDetail struct {
	BrandName  string `json:"brandName"`
	SeriesName string `json:"seriesName"`
}

type SalesLine struct {
	ProductID     string         `json:"productId"`
	BrandName     string         `json:"brandName,omitempty"`
	SeriesName    string         `json:"seriesName,omitempty"`
	BatteryDetail *BatteryDetail `json:"batteryDetail,omitempty"`
	Price         float64        `json:"price"`
	Quantity      int            `json:"quantity"`
	TotalPrice    float64        `json:"totalPrice"`
}

// SalesRecord mirrors an invoice's commercial facts for reporting.
// It is keyed by InvoiceNo and must stay in lockstep with its invoice.
type SalesRecord struct {
	InvoiceNo    string      `json:"invoiceNo"`
	ClientID     string      `json:"clientId"`
	CustomerName string      `json:"customerName"`
	InvoiceDate  time.Time   `json:"invoiceDate"`
	Lines        []SalesLine `json:"lines"`
	TotalAmount  float64     `json:"totalAmount"`
}

// StockEntry is the unified stock shape: one record per product id,
// carrying brand/series so legacy composite-key callers can still
// resolve it.
type StockEntry struct {
	ProductID  string `json:"productId"`
	ClientID   string `json:"clientId"`
	BrandName  string `json:"brandName"`
	SeriesName string `json:"seriesName"`
	InStock    int    `json:"inStock"`
	SoldCount  int    `json:"soldCount"`
}

// StockKey is the legacy (brand, series) composite key.
func StockKey(brand, series string) string {
	return brand + "|" + series
}

// WarrantyRecord is an immutable historical snapshot written on
// create/edit/delete; it outlives the invoice.
type WarrantyRecord struct {
	ID             string    `json:"id"`
	ClientID       string    `json:"clientId"`
	InvoiceNo      string    `json:"invoiceNo"`
	ProductID      string    `json:"productId"`
	BrandName      string    `json:"brandName"`
	SeriesName     string    `json:"seriesName"`
	Code           string    `json:"code"`
	StartDate      time.Time `json:"startDate"`
	EndDate        time.Time `json:"endDate"`
	DurationMonths int       `json:"durationMonths"`
	Event          string    `json:"event"`
	Reason         string    `json:"reason,omitempty"`
	RecordedAt     time.Time `json:"recordedAt"`
}

type ArchivedInvoice struct {
	ID         string    `json:"id"`
	Reason     string    `json:"reason"`
	Snapshot   Invoice   `json:"snapshot"`
	ArchivedAt time.Time `json:"archivedAt"`
}

type EditHistoryEntry struct {
	ID        string    `json:"id"`
	InvoiceID string    `json:"invoiceId"`
	InvoiceNo string    `json:"invoiceNo"`
	Snapshot  Invoice   `json:"snapshot"`
	SavedAt   time.Time `json:"savedAt"`
}

type ProductLineInput struct {
	ProductID         string  `json:"productId"`
	BrandName         string  `json:"brandName"`
	SeriesName        string  `json:"seriesName"`
	ProductType       string  `json:"productType,omitempty"`
	Price             float64 `json:"price"`
	Quantity          int     `json:"quantity"`
	WarrantyCode      string  `json:"warrantyCode,omitempty"`
	WarrantyStartDate string  `json:"warrantyStartDate,omitempty"`
	WarrantyMonths    int     `json:"warrantyMonths,omitempty"`
}

type InvoiceCreateRequest struct {
	CustomerName          string             `json:"customerName"`
	CustomerAddress       string             `json:"customerAddress"`
	CustomerContactNumber string             `json:"customerContactNumber"`
	CustomerType          string             `json:"customerType"`
	CustomerID            string             `json:"customerId,omitempty"`
	PaymentMethod         []string           `json:"paymentMethod"`
	ReceivedAmount        float64            `json:"receivedAmount"`
	BatteriesRate         float64            `json:"batteriesRate"`
	Products              []ProductLineInput `json:"productDetail"`
	UseCustomDate         bool               `json:"useCustomDate,omitempty"`
	CustomDate            string             `json:"customDate,omitempty"`
	SelectedClientID      string             `json:"selectedClientId,omitempty"`
	SubmittedAtMillis     int64              `json:"submittedAtMillis,omitempty"`
}

type InvoiceCreateResponse struct {
	Message   string `json:"message"`
	InvoiceNo string `json:"invoiceNo"`
}

type InvoiceEditRequest struct {
	ID                string `json:"id"`
	InvoiceCreateRequest
}

type InvoiceEditResponse struct {
	Message        string         `json:"message"`
	UpdatedInvoice UpdatedInvoice `json:"updatedInvoice"`
}

type UpdatedInvoice struct {
	InvoiceNo     string  `json:"invoiceNo"`
	TotalAmount   float64 `json:"totalAmount"`
	PaymentStatus string  `json:"paymentStatus"`
	ProductsCount int     `json:"productsCount"`
}

type InvoiceDeleteRequest struct {
	ID string `json:"id"`
}

type InvoiceDeleteResponse struct {
	Message          string   `json:"message"`
	DeletedInvoiceNo string   `json:"deletedInvoiceNo"`
	ActionsCompleted []string `json:"actionsCompleted"`
}

type AddPaymentRequest struct {
	ID                string   `json:"id"`
	AdditionalPayment float64  `json:"additionalPayment"`
	PaymentMethod     []string `json:"paymentMethod"`
}

type AddPaymentResponse struct {
	Message         string  `json:"message"`
	RemainingAmount float64 `json:"remainingAmount"`
	PaymentStatus   string  `json:"paymentStatus"`
}

type InvoiceListFilter struct {
	ClientID     string
	CustomerName string
	StartDate    *time.Time
	EndDate      *time.Time
	Limit        int
	Offset       int
}

type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

type InvoiceListResponse struct {
	Success    bool       `json:"success"`
	Data       []Invoice  `json:"data"`
	Pagination Pagination `json:"pagination"`
}

type StockReceiveRequest struct {
	ProductID        string `json:"productId"`
	BrandName        string `json:"brandName"`
	SeriesName       string `json:"seriesName"`
	Quantity         int    `json:"quantity"`
	SelectedClientID string `json:"selectedClientId,omitempty"`
}

type SyncIssue struct {
	Product        string `json:"product"`
	StockSoldCount int    `json:"stockSoldCount"`
	ActualSales    int    `json:"actualSales"`
	Difference     int    `json:"difference"`
	Issue          string `json:"issue"`
}

type SyncSummary struct {
	TotalStockEntries int `json:"totalStockEntries"`
	TotalSalesKeys    int `json:"totalSalesKeys"`
	SyncedCount       int `json:"syncedCount"`
	IssueCount        int `json:"issueCount"`
}

// SyncReport is derived and never persisted; it is recomputed per audit
// run and deterministic for identical inputs.
type SyncReport struct {
	SyncSummary   SyncSummary `json:"syncSummary"`
	SyncIssues    []SyncIssue `json:"syncIssues"`
	IsFullySynced bool        `json:"isFullySynced"`
}

type DashboardOverview struct {
	TotalInvoices     int         `json:"totalInvoices"`
	TotalRevenue      float64     `json:"totalRevenue"`
	OutstandingAmount float64     `json:"outstandingAmount"`
	StockEntries      int         `json:"stockEntries"`
	SyncVerification  *SyncReport `json:"syncVerification"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the decoded identity claim. The engine trusts it; token
// issuance is the identity collaborator's problem.
type Actor struct {
	Username     string
	Role         string
	IsSuperAdmin bool
	ClientID     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	ClientID  string
	Active    bool
	CreatedAt time.Time
}
