// Package suppliers holds supplier master data, running ratings and delivery
// performance.
package suppliers

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/tintworks/dyeops/internal/platform/httpx"
)

// Supplier is a vendor of dyes and chemicals.
type Supplier struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	ContactPerson      string    `json:"contactPerson"`
	Phone              string    `json:"phone"`
	MaterialCategories []string  `json:"materialCategories"`
	Rating             float64   `json:"rating"`
	RatingCount        int       `json:"ratingCount"`
	IsActive           bool      `json:"isActive"`
	CreatedAt          time.Time `json:"createdAt"`
}

// MinRating and MaxRating bound a delivery score.
const (
	MinRating = 1
	MaxRating = 5
)

// NextRating folds one delivery score into a running mean.
func NextRating(mean float64, count int, score int) (float64, int) {
	return (mean*float64(count) + float64(score)) / float64(count+1), count + 1
}

// ValidRating reports whether score is within bounds.
func ValidRating(score int) bool {
	return score >= MinRating && score <= MaxRating
}

// DeliveryDelayThresholdDays is the approval-to-receipt time after which a
// delivery counts as delayed.
const DeliveryDelayThresholdDays = 5.0

// HistorySize caps the delivery history returned by analytics.
const HistorySize = 10

// DeliveryRecord is one completed indent for a supplier.
type DeliveryRecord struct {
	IndentID    uuid.UUID `json:"id"`
	Number      string    `json:"number"`
	CreatedAt   time.Time `json:"createdAt"`
	ApprovedAt  time.Time `json:"approvedAt"`
	CompletedAt time.Time `json:"completedAt"`
	Status      string    `json:"status"`
	DelayDays   float64   `json:"delayDays"`
	IsDelayed   bool      `json:"isDelayed"`
}

// Days is the approval-to-receipt time in days.
func (d DeliveryRecord) Days() float64 {
	return d.CompletedAt.Sub(d.ApprovedAt).Hours() / 24
}

// Health grades a supplier's delay rate.
type Health string

const (
	HealthGood  Health = "Good"
	HealthWatch Health = "Watch"
	HealthPoor  Health = "Poor"
)

// GradeDelayRate maps a delayed percentage to a Health grade.
func GradeDelayRate(pct float64) Health {
	switch {
	case pct < 20:
		return HealthGood
	case pct < 40:
		return HealthWatch
	default:
		return HealthPoor
	}
}

// Metrics summarise delivery performance over completed indents.
type Metrics struct {
	TotalCompleted   int     `json:"totalCompletedPIs"`
	AvgDeliveryDays  float64 `json:"avgDeliveryTime"`
	DelayedCount     int     `json:"delayedCount"`
	OnTimePercentage float64 `json:"onTimePercentage"`
	Status           Health  `json:"status"`
}

// Analytics is the supplier detail view.
type Analytics struct {
	Supplier Supplier         `json:"supplier"`
	Metrics  Metrics          `json:"metrics"`
	History  []DeliveryRecord `json:"history"`
}

// Summarise computes metrics over all deliveries and annotates each with its
// delay in days rounded to one decimal.
func Summarise(deliveries []DeliveryRecord) (Metrics, []DeliveryRecord) {
	out := make([]DeliveryRecord, len(deliveries))
	var m Metrics
	var total float64
	for i, d := range deliveries {
		days := d.Days()
		d.DelayDays = round1(days)
		d.IsDelayed = days > DeliveryDelayThresholdDays
		out[i] = d
		total += days
		if d.IsDelayed {
			m.DelayedCount++
		}
	}
	m.TotalCompleted = len(deliveries)
	delayedRate := 0.0
	if m.TotalCompleted > 0 {
		m.AvgDeliveryDays = round1(total / float64(m.TotalCompleted))
		delayedRate = float64(m.DelayedCount) / float64(m.TotalCompleted) * 100
	}
	m.OnTimePercentage = round1(100 - delayedRate)
	m.Status = GradeDelayRate(delayedRate)
	return m, out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// ErrNotFound indicates an unknown supplier.
var ErrNotFound = fmt.Errorf("suppliers: supplier not found: %w", httpx.ErrNotFound)
