package domain

import (
	"context"
	"time"
)

// NotificationService defines the interface for notification services
type NotificationService interface {
	// SendSuccess reports a finished prefetch run
	SendSuccess(ctx context.Context, stats WarmStats) error

	// SendError sends an error notification with error details
	SendError(ctx context.Context, err error) error
}

// WarmStats holds the totals of one prefetch run
type WarmStats struct {
	RunID           string
	Cache           string
	EndpointsOK     int
	EndpointsFailed int
	AssetsOK        int
	AssetsFailed    int
	Warnings        int
	Duration        time.Duration
}
