package travel

import "context"

// OperationLogger records domain-level events emitted by service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing operation.
type OperationLog struct {
	Operation string
	UserID    UserID
	TxRef     TxRef
	BookingID BookingID
	ListingID ListingID
	Amount    AmountCents
	From      PaymentStatus
	To        PaymentStatus
	Status    string
	Error     error
}

type operationLogSink struct {
	logger OperationLogger
}

func (sink operationLogSink) log(ctx context.Context, entry OperationLog) {
	if sink.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	sink.logger.LogOperation(ctx, entry)
}
