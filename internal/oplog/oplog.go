// Package oplog writes travel operation events to zap.
package oplog

import (
	"context"

	"github.com/MarkoPoloResearchLab/travelbook/pkg/travel"
	"go.uber.org/zap"
)

const statusError = "error"

// ZapLogger implements travel.OperationLogger.
type ZapLogger struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger.Named("operation")}
}

func (adapter *ZapLogger) LogOperation(_ context.Context, entry travel.OperationLog) {
	fields := make([]zap.Field, 0, 10)
	fields = append(fields, zap.String("operation", entry.Operation), zap.String("status", entry.Status))
	if !entry.UserID.IsZero() {
		fields = append(fields, zap.String("user_id", entry.UserID.String()))
	}
	if ref := entry.TxRef.String(); ref != "" {
		fields = append(fields, zap.String("tx_ref", ref))
	}
	if id := entry.BookingID.Int64(); id > 0 {
		fields = append(fields, zap.Int64("booking_id", id))
	}
	if id := entry.ListingID.Int64(); id > 0 {
		fields = append(fields, zap.Int64("listing_id", id))
	}
	if entry.Amount.Int64() > 0 {
		fields = append(fields, zap.String("amount", entry.Amount.String()))
	}
	if entry.From != "" || entry.To != "" {
		fields = append(fields, zap.String("from", entry.From.String()), zap.String("to", entry.To.String()))
	}
	if entry.Error != nil || entry.Status == statusError {
		fields = append(fields, zap.Error(entry.Error))
		adapter.logger.Warn("operation failed", fields...)
		return
	}
	adapter.logger.Info("operation", fields...)
}
