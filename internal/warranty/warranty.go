// Package warranty computes warranty end dates and classifies which
// product lines are exempt from carrying a warranty at all.
package warranty

import (
	"fmt"
	"strings"
	"time"

	"battrack/backend/internal/domain"
)

const (
	MinDurationMonths = 1
	MaxDurationMonths = 120
)

// exemptMarkers are series-name fragments that mark consumables sold
// without warranty (acid tonics, distilled water bottles, etc.).
var exemptMarkers = []string{"tonic", "ml", "distilled"}

// ClassifySeries infers an explicit product type from a series name.
// Used only for inputs that do not already carry a productType; once
// assigned, the attribute is authoritative.
func ClassifySeries(seriesName string) string {
	name := strings.ToLower(seriesName)
	for _, marker := range exemptMarkers {
		if strings.Contains(name, marker) {
			return domain.ProductTypeConsumable
		}
	}
	if strings.Contains(name, "battery") && strings.Contains(name, "water") {
		return domain.ProductTypeConsumable
	}
	return domain.ProductTypeBattery
}

// Exempt reports whether a product type never carries a warranty.
func Exempt(productType string) bool {
	return productType == domain.ProductTypeConsumable || productType == domain.ProductTypeTonic
}

// EndDate adds whole calendar months to the start date. A warranty
// starting Jan 15 with 6 months ends Jul 15, regardless of month
// lengths in between.
func EndDate(start time.Time, months int) time.Time {
	return start.AddDate(0, months, 0)
}

// Validate checks the warranty facts for a non-exempt line.
func Validate(start time.Time, months int, now time.Time) error {
	if start.IsZero() {
		return fmt.Errorf("warranty start date required")
	}
	if months < MinDurationMonths || months > MaxDurationMonths {
		return fmt.Errorf("warranty duration must be between %d and %d months", MinDurationMonths, MaxDurationMonths)
	}
	if start.After(now) {
		return fmt.Errorf("warranty start date must not be in the future")
	}
	return nil
}
