package travel

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// PaymentConfig carries the settings the payment orchestrator needs from the environment.
type PaymentConfig struct {
	// CallbackURL is forwarded to the gateway so it can redirect the payer back.
	CallbackURL string
}

// InitiateRequest describes a payment to start with the gateway.
type InitiateRequest struct {
	Amount      AmountCents
	Currency    Currency
	Payer       Payer
	Description string
	Metadata    map[string]any
	BookingID   *BookingID
}

// InitiateResult is returned to the caller after the gateway acknowledged the transaction.
type InitiateResult struct {
	PaymentURL string
	TxRef      TxRef
	Status     PaymentStatus
}

// ReconcileResult reports the stored status after reconciliation.
type ReconcileResult struct {
	TxRef   TxRef
	Status  PaymentStatus
	Changed bool
}

// SweepResult summarizes a ReconcilePending run.
type SweepResult struct {
	Examined    int
	Succeeded   int
	Failed      int
	Unavailable int
}

// PaymentService drives the payment lifecycle: pending, then exactly one of success or failed.
type PaymentService struct {
	store    Store
	gateway  Gateway
	notifier Notifier
	config   PaymentConfig
	serviceOptions
}

// NewPaymentService wires a PaymentService.
func NewPaymentService(store Store, gateway Gateway, notifier Notifier, config PaymentConfig, options ...Option) (*PaymentService, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if gateway == nil {
		return nil, fmt.Errorf("%w: gateway dependency is nil", ErrInvalidServiceConfig)
	}
	if strings.TrimSpace(config.CallbackURL) == "" {
		return nil, fmt.Errorf("%w: callback url is required", ErrInvalidServiceConfig)
	}
	return &PaymentService{
		store:          store,
		gateway:        gateway,
		notifier:       notifier,
		config:         config,
		serviceOptions: applyOptions(options),
	}, nil
}

// Initiate validates the request, initializes the transaction with the gateway, and records it as pending.
func (service *PaymentService) Initiate(ctx context.Context, request InitiateRequest) (InitiateResult, error) {
	result, operationError := service.initiate(ctx, request)
	entry := OperationLog{
		Operation: operationInitiate,
		UserID:    request.Payer.UserID,
		TxRef:     result.TxRef,
		Amount:    request.Amount,
		To:        result.Status,
		Error:     operationError,
	}
	if request.BookingID != nil {
		entry.BookingID = *request.BookingID
	}
	service.sink.log(ctx, entry)
	return result, operationError
}

func (service *PaymentService) initiate(ctx context.Context, request InitiateRequest) (InitiateResult, error) {
	if err := validateInitiateRequest(request); err != nil {
		return InitiateResult{}, err
	}
	if request.BookingID != nil {
		if err := service.checkBookingPayment(ctx, request); err != nil {
			return InitiateResult{}, err
		}
	}
	metadata, err := initiateMetadata(request)
	if err != nil {
		return InitiateResult{}, invalid(ErrInvalidMetadata, err.Error())
	}
	txRef, err := service.allocateTxRef(ctx)
	if err != nil {
		return InitiateResult{}, err
	}
	acknowledgement, err := service.gateway.Initialize(ctx, InitializeRequest{
		TxRef:       txRef,
		Amount:      request.Amount,
		Currency:    request.Currency,
		Email:       strings.TrimSpace(request.Payer.Email),
		FirstName:   request.Payer.FirstName,
		LastName:    request.Payer.LastName,
		CallbackURL: service.config.CallbackURL,
		Metadata:    metadata,
	})
	if err != nil {
		return InitiateResult{TxRef: txRef}, classifyGatewayError(err)
	}
	nowUTC := service.nowFn()
	payment := Payment{
		TxRef:       txRef,
		BookingID:   request.BookingID,
		Payer:       request.Payer,
		GatewayTxID: acknowledgement.GatewayTxID,
		Amount:      request.Amount,
		Currency:    request.Currency,
		Status:      PaymentStatusPending,
		Description: request.Description,
		Metadata:    metadata,
		CreatedAt:   nowUTC,
		UpdatedAt:   nowUTC,
	}
	if err := service.store.CreatePayment(ctx, payment); err != nil {
		return InitiateResult{TxRef: txRef}, err
	}
	return InitiateResult{
		PaymentURL: acknowledgement.CheckoutURL,
		TxRef:      txRef,
		Status:     PaymentStatusPending,
	}, nil
}

// checkBookingPayment only lets the booking's guest pay the booking total, once.
func (service *PaymentService) checkBookingPayment(ctx context.Context, request InitiateRequest) error {
	booking, err := service.store.GetBooking(ctx, *request.BookingID)
	if err != nil {
		return err
	}
	if booking.GuestID != request.Payer.UserID {
		return fmt.Errorf("%w: booking %d belongs to another guest", ErrForbidden, booking.ID.Int64())
	}
	if request.Amount != booking.TotalPrice {
		return invalid(ErrInvalidAmountCents, fmt.Sprintf("amount must equal the booking total %s", booking.TotalPrice))
	}
	if request.Currency.String() != booking.Currency.String() {
		return invalid(ErrInvalidCurrency, fmt.Sprintf("currency must be %s", booking.Currency))
	}
	payments, err := service.store.ListPaymentsByBooking(ctx, booking.ID)
	if err != nil {
		return err
	}
	for _, payment := range payments {
		if payment.Status == PaymentStatusSuccess {
			return fmt.Errorf("%w: booking %d", ErrBookingAlreadyPaid, booking.ID.Int64())
		}
	}
	return nil
}

// Reconcile asks the gateway for the outcome of a pending payment and records it.
// Terminal payments are returned as stored without contacting the gateway.
func (service *PaymentService) Reconcile(ctx context.Context, txRef TxRef) (ReconcileResult, error) {
	result, from, operationError := service.reconcile(ctx, txRef)
	service.sink.log(ctx, OperationLog{
		Operation: operationReconcile,
		TxRef:     txRef,
		From:      from,
		To:        result.Status,
		Error:     operationError,
	})
	return result, operationError
}

func (service *PaymentService) reconcile(ctx context.Context, txRef TxRef) (ReconcileResult, PaymentStatus, error) {
	if txRef.String() == "" {
		return ReconcileResult{}, "", invalid(ErrInvalidTxRef, "tx_ref is required")
	}
	payment, err := service.store.GetPayment(ctx, txRef)
	if err != nil {
		return ReconcileResult{TxRef: txRef}, "", err
	}
	unchanged := ReconcileResult{TxRef: txRef, Status: payment.Status}
	if payment.Status.IsTerminal() {
		return unchanged, payment.Status, nil
	}
	verification, err := service.gateway.Verify(ctx, txRef)
	if err != nil {
		return unchanged, payment.Status, classifyGatewayError(err)
	}
	target := PaymentStatusFailed
	if verification.Succeeded {
		target = PaymentStatusSuccess
	}
	gatewayTxID := verification.GatewayTxID
	if gatewayTxID == "" {
		gatewayTxID = payment.GatewayTxID
	}
	err = service.store.TransitionPaymentStatus(ctx, PaymentTransition{
		TxRef:       txRef,
		From:        PaymentStatusPending,
		To:          target,
		GatewayTxID: gatewayTxID,
		At:          service.nowFn(),
	})
	if errors.Is(err, ErrPaymentFinalized) {
		stored, lookupErr := service.store.GetPayment(ctx, txRef)
		if lookupErr != nil {
			return unchanged, payment.Status, lookupErr
		}
		return ReconcileResult{TxRef: txRef, Status: stored.Status}, payment.Status, nil
	}
	if err != nil {
		return unchanged, payment.Status, err
	}
	if target == PaymentStatusSuccess {
		service.dispatch(ctx, paymentConfirmation(payment), OperationLog{TxRef: txRef, UserID: payment.Payer.UserID})
	}
	return ReconcileResult{TxRef: txRef, Status: target, Changed: true}, payment.Status, nil
}

// ReconcilePending reconciles pending payments created before olderThan whose callback never arrived.
// Payments the gateway cannot currently answer for are skipped and counted.
func (service *PaymentService) ReconcilePending(ctx context.Context, olderThan time.Time, limit int) (SweepResult, error) {
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	summary := SweepResult{}
	payments, err := service.store.ListPendingPayments(ctx, olderThan, limit)
	if err != nil {
		service.sink.log(ctx, OperationLog{Operation: operationSweep, Error: err})
		return summary, err
	}
	for _, payment := range payments {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Examined++
		result, err := service.Reconcile(ctx, payment.TxRef)
		if errors.Is(err, ErrGatewayUnavailable) {
			summary.Unavailable++
			continue
		}
		if err != nil {
			service.sink.log(ctx, OperationLog{Operation: operationSweep, TxRef: payment.TxRef, Error: err})
			return summary, err
		}
		switch result.Status {
		case PaymentStatusSuccess:
			summary.Succeeded++
		case PaymentStatusFailed:
			summary.Failed++
		}
	}
	service.sink.log(ctx, OperationLog{Operation: operationSweep})
	return summary, nil
}

// dispatch enqueues a notification; failures are logged and never returned.
func (service *PaymentService) dispatch(ctx context.Context, notification Notification, entry OperationLog) {
	dispatchNotification(ctx, service.notifier, service.sink, notification, entry)
}

func dispatchNotification(ctx context.Context, notifier Notifier, sink operationLogSink, notification Notification, entry OperationLog) {
	if notifier == nil {
		return
	}
	entry.Operation = operationNotify
	entry.Error = notifier.Enqueue(ctx, notification)
	sink.log(ctx, entry)
}

func (service *PaymentService) allocateTxRef(ctx context.Context) (TxRef, error) {
	for attempt := 0; attempt < maxTxRefAttempts; attempt++ {
		txRef, err := NewTxRef(service.newTxRefFn())
		if err != nil {
			return TxRef{}, err
		}
		_, err = service.store.GetPayment(ctx, txRef)
		if errors.Is(err, ErrPaymentNotFound) {
			return txRef, nil
		}
		if err != nil {
			return TxRef{}, err
		}
	}
	return TxRef{}, fmt.Errorf("%w: %d attempts", ErrTxRefCollision, maxTxRefAttempts)
}

func validateInitiateRequest(request InitiateRequest) error {
	if request.Amount <= 0 {
		return invalid(ErrInvalidAmountCents, "amount is required and must be greater than zero")
	}
	if err := validateEmail(request.Payer.Email); err != nil {
		return err
	}
	return nil
}

func validateEmail(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return invalid(ErrInvalidEmail, "email is required")
	}
	if _, err := mail.ParseAddress(trimmed); err != nil {
		return invalid(ErrInvalidEmail, fmt.Sprintf("%q is not an email address", raw))
	}
	return nil
}

func initiateMetadata(request InitiateRequest) (MetadataJSON, error) {
	values := make(map[string]any, len(request.Metadata)+2)
	for key, value := range request.Metadata {
		values[key] = value
	}
	values["description"] = request.Description
	if request.BookingID != nil {
		values["booking_id"] = request.BookingID.Int64()
	} else if !request.Payer.UserID.IsZero() {
		values["user_id"] = request.Payer.UserID.String()
	}
	return MetadataFromMap(values)
}

// classifyGatewayError keeps the gateway's classification and treats anything else as unavailable.
func classifyGatewayError(err error) error {
	if errors.Is(err, ErrGatewayRejected) || errors.Is(err, ErrGatewayUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
}

func paymentConfirmation(payment Payment) Notification {
	return Notification{
		Recipient: payment.Payer.Email,
		Subject:   "Booking Payment Confirmation",
		Body: fmt.Sprintf(
			"Hello %s,\n\nYour payment of %s %s for booking has been successfully processed.\n\nThank you!",
			payment.Payer.FirstName,
			payment.Amount.String(),
			payment.Currency.String(),
		),
	}
}
