// Package syncaudit compares aggregated sales quantities against the
// stock ledger's recorded sold counts and reports drift between them.
package syncaudit

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"battrack/backend/internal/domain"
	"battrack/backend/internal/store"
)

const (
	IssueUndercounted  = "Stock undercounted"
	IssueOvercounted   = "Stock overcounted"
	IssueMissingStock  = "Product in sales but missing from stock"
	IssueSalesNotFound = "Product in stock with soldCount but no sales records"
)

type stockFacts struct {
	soldCount int
	inStock   int
}

// resolveKey extracts the (brand, series) key from a sales line, falling
// back to the nested battery-detail shape older records carry.
func resolveKey(line domain.SalesLine) (string, bool) {
	brand, series := line.BrandName, line.SeriesName
	if brand == "" && series == "" && line.BatteryDetail != nil {
		brand, series = line.BatteryDetail.BrandName, line.BatteryDetail.SeriesName
	}
	if brand == "" && series == "" {
		return "", false
	}
	return domain.StockKey(brand, series), true
}

// BuildReport is pure and deterministic: identical inputs always
// produce the identical report, and nothing is persisted.
func BuildReport(sales []domain.SalesRecord, stock []domain.StockEntry) domain.SyncReport {
	stockMap := make(map[string]stockFacts, len(stock))
	for _, entry := range stock {
		sold := entry.SoldCount
		if sold < 0 {
			log.Printf("[syncaudit] WARN: negative soldCount %d for %s/%s, clamping to 0", sold, entry.BrandName, entry.SeriesName)
			sold = 0
		}
		stockMap[domain.StockKey(entry.BrandName, entry.SeriesName)] = stockFacts{soldCount: sold, inStock: entry.InStock}
	}

	salesMap := make(map[string]int)
	for _, record := range sales {
		for _, line := range record.Lines {
			key, ok := resolveKey(line)
			if !ok {
				continue
			}
			salesMap[key] += line.Quantity
		}
	}

	issues := make([]domain.SyncIssue, 0)
	synced := 0
	for key, facts := range stockMap {
		actual, hasSales := salesMap[key]
		delta := actual - facts.soldCount
		switch {
		case delta == 0:
			synced++
		case !hasSales && facts.soldCount > 0:
			issues = append(issues, domain.SyncIssue{
				Product:        key,
				StockSoldCount: facts.soldCount,
				ActualSales:    0,
				Difference:     delta,
				Issue:          IssueSalesNotFound,
			})
		case delta > 0:
			issues = append(issues, domain.SyncIssue{
				Product:        key,
				StockSoldCount: facts.soldCount,
				ActualSales:    actual,
				Difference:     delta,
				Issue:          IssueUndercounted,
			})
		default:
			issues = append(issues, domain.SyncIssue{
				Product:        key,
				StockSoldCount: facts.soldCount,
				ActualSales:    actual,
				Difference:     delta,
				Issue:          IssueOvercounted,
			})
		}
	}

	for key, actual := range salesMap {
		if _, ok := stockMap[key]; ok {
			continue
		}
		issues = append(issues, domain.SyncIssue{
			Product:     key,
			ActualSales: actual,
			Difference:  actual,
			Issue:       IssueMissingStock,
		})
	}

	// Map iteration order is random; sort so the report is deterministic.
	sort.Slice(issues, func(i, j int) bool { return issues[i].Product < issues[j].Product })

	return domain.SyncReport{
		SyncSummary: domain.SyncSummary{
			TotalStockEntries: len(stock),
			TotalSalesKeys:    len(salesMap),
			SyncedCount:       synced,
			IssueCount:        len(issues),
		},
		SyncIssues:    issues,
		IsFullySynced: len(issues) == 0,
	}
}

// Verifier pages the sales history out of the store in batches so a
// large tenant cannot pin a request goroutine on one unbounded scan.
type Verifier struct {
	repo      store.Repository
	batchSize int
	timeout   time.Duration
}

func NewVerifier(repo store.Repository, batchSize int, timeout time.Duration) *Verifier {
	if batchSize < 1 {
		batchSize = 500
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Verifier{repo: repo, batchSize: batchSize, timeout: timeout}
}

// Run audits one tenant. It is read-only and honors ctx cancellation
// between batches.
func (v *Verifier) Run(ctx context.Context, clientID string) (domain.SyncReport, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	stock, err := v.repo.ListStock(ctx, clientID)
	if err != nil {
		return domain.SyncReport{}, fmt.Errorf("list stock: %w", err)
	}

	sales := make([]domain.SalesRecord, 0, v.batchSize)
	for offset := 0; ; offset += v.batchSize {
		if err := ctx.Err(); err != nil {
			return domain.SyncReport{}, err
		}
		batch, err := v.repo.ListSales(ctx, clientID, v.batchSize, offset)
		if err != nil {
			return domain.SyncReport{}, fmt.Errorf("list sales: %w", err)
		}
		sales = append(sales, batch...)
		if len(batch) < v.batchSize {
			break
		}
	}

	return BuildReport(sales, stock), nil
}
