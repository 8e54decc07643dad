// Package domain contains the derived value objects served by the analytics
// engine. Nothing here is persisted; every view is recomputed per request.
package domain

import (
	"context"
	"errors"
	"time"
)

// HeatmapCell is one calendar day with its paid-bill count.
type HeatmapCell struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// ProjectionBucket is one calendar month of projected spend.
type ProjectionBucket struct {
	Month string  `json:"month"`
	Total float64 `json:"total"`
}

// SankeyNode is a deduplicated endpoint in the category flow diagram.
type SankeyNode struct {
	Name string `json:"name"`
}

// SankeyLink carries monthly-equivalent spend from a category to a
// subscription.
type SankeyLink struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Value  float64 `json:"value"`
}

// AnomalyType classifies detected irregularities in payment history.
type AnomalyType string

const AnomalyPriceIncrease AnomalyType = "PRICE_INCREASE"

// AnomalyEvent is one detected irregularity on a subscription's history.
type AnomalyEvent struct {
	Type             AnomalyType `json:"type"`
	SubscriptionID   string      `json:"subscription_id"`
	SubscriptionName string      `json:"subscription_name"`
	OldAmount        float64     `json:"old_amount"`
	NewAmount        float64     `json:"new_amount"`
	Currency         string      `json:"currency"`
	ObservedAt       time.Time   `json:"observed_at"`
}

// Overview bundles every analytics view for a user.
type Overview struct {
	Heatmap        []HeatmapCell      `json:"heatmap"`
	YearToDate     float64            `json:"year_to_date"`
	Projection     []ProjectionBucket `json:"projection"`
	ProjectedTotal float64            `json:"projected_total"`
	SankeyNodes    []SankeyNode       `json:"sankey_nodes"`
	SankeyLinks    []SankeyLink       `json:"sankey_links"`
	Anomalies      []AnomalyEvent     `json:"anomalies"`
	Currency       string             `json:"currency"`
}

type OverviewRequest struct {
	UserID      string
	ExcludedIDs []string
}

type Service interface {
	Overview(ctx context.Context, req OverviewRequest) (Overview, error)
}

var ErrInvalidUser = errors.New("invalid_user")
