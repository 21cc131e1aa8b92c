package travel

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PaymentInitiator starts a gateway payment. *PaymentService satisfies it.
type PaymentInitiator interface {
	Initiate(ctx context.Context, request InitiateRequest) (InitiateResult, error)
}

// CreateBookingRequest describes a stay requested by a guest.
type CreateBookingRequest struct {
	ListingID ListingID
	Guest     Payer
	CheckIn   time.Time
	CheckOut  time.Time
	// TotalPrice overrides the nightly price times nights when set.
	TotalPrice *AmountCents
	Currency   Currency
}

// CreateBookingResult carries the stored booking and the payment started for it.
type CreateBookingResult struct {
	Booking Booking
	Payment InitiateResult
}

// BookingDetails is a booking with its listing and every payment attempted for it.
type BookingDetails struct {
	Booking  Booking
	Listing  Listing
	Payments []Payment
}

// BookingService creates bookings and drives their payments.
type BookingService struct {
	store    Store
	payments PaymentInitiator
	notifier Notifier
	serviceOptions
}

// NewBookingService wires a BookingService.
func NewBookingService(store Store, payments PaymentInitiator, notifier Notifier, options ...Option) (*BookingService, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if payments == nil {
		return nil, fmt.Errorf("%w: payment dependency is nil", ErrInvalidServiceConfig)
	}
	return &BookingService{
		store:          store,
		payments:       payments,
		notifier:       notifier,
		serviceOptions: applyOptions(options),
	}, nil
}

// CreateBooking persists the booking and initiates its payment.
// A payment failure leaves the booking in place: the result carries it alongside the error.
func (service *BookingService) CreateBooking(ctx context.Context, request CreateBookingRequest) (CreateBookingResult, error) {
	booking, listing, err := service.createBooking(ctx, request)
	service.sink.log(ctx, OperationLog{
		Operation: operationCreateBooking,
		UserID:    request.Guest.UserID,
		BookingID: booking.ID,
		ListingID: request.ListingID,
		Amount:    booking.TotalPrice,
		Error:     err,
	})
	if err != nil {
		return CreateBookingResult{}, err
	}
	payment, err := service.payments.Initiate(ctx, bookingPaymentRequest(booking, request.Guest))
	result := CreateBookingResult{Booking: booking, Payment: payment}
	if err != nil {
		return result, err
	}
	dispatchNotification(ctx, service.notifier, service.sink, Notification{
		Recipient: request.Guest.Email,
		Subject:   fmt.Sprintf("Booking Confirmation - %s", listing.Title),
		Body:      fmt.Sprintf("Your booking (ID: %d) for %s has been confirmed!", booking.ID.Int64(), listing.Title),
	}, OperationLog{UserID: request.Guest.UserID, BookingID: booking.ID, TxRef: payment.TxRef})
	return result, nil
}

func (service *BookingService) createBooking(ctx context.Context, request CreateBookingRequest) (Booking, Listing, error) {
	if request.Guest.UserID.IsZero() {
		return Booking{}, Listing{}, invalid(ErrInvalidUserID, "guest is required")
	}
	if err := validateEmail(request.Guest.Email); err != nil {
		return Booking{}, Listing{}, err
	}
	if request.ListingID <= 0 {
		return Booking{}, Listing{}, invalid(ErrInvalidListingID, "listing is required")
	}
	if request.CheckIn.IsZero() || request.CheckOut.IsZero() {
		return Booking{}, Listing{}, invalid(ErrInvalidStayDates, "check_in and check_out are required")
	}
	checkIn := NormalizeStayDate(request.CheckIn)
	checkOut := NormalizeStayDate(request.CheckOut)
	if !checkOut.After(checkIn) {
		return Booking{}, Listing{}, invalid(ErrInvalidStayDates, "check_out must be after check_in")
	}
	var (
		stored  Booking
		listing Listing
	)
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		var err error
		listing, err = transactionStore.GetListing(ctx, request.ListingID)
		if err != nil {
			return err
		}
		total := listing.PricePerNight * AmountCents(nightsBetween(checkIn, checkOut))
		if request.TotalPrice != nil {
			total = *request.TotalPrice
		}
		if total <= 0 {
			return invalid(ErrInvalidAmountCents, "total price must be greater than zero")
		}
		stored, err = transactionStore.CreateBooking(ctx, Booking{
			ListingID:  listing.ID,
			GuestID:    request.Guest.UserID,
			CheckIn:    checkIn,
			CheckOut:   checkOut,
			TotalPrice: total,
			Currency:   request.Currency,
			CreatedAt:  service.nowFn(),
		})
		return err
	})
	if err != nil {
		return Booking{}, Listing{}, err
	}
	return stored, listing, nil
}

// RetryPayment starts a new payment for a booking whose earlier attempts did not succeed.
func (service *BookingService) RetryPayment(ctx context.Context, bookingID BookingID, guest Payer) (InitiateResult, error) {
	result, err := service.retryPayment(ctx, bookingID, guest)
	service.sink.log(ctx, OperationLog{
		Operation: operationRetryPayment,
		UserID:    guest.UserID,
		BookingID: bookingID,
		TxRef:     result.TxRef,
		Error:     err,
	})
	return result, err
}

func (service *BookingService) retryPayment(ctx context.Context, bookingID BookingID, guest Payer) (InitiateResult, error) {
	booking, err := service.ownedBooking(ctx, bookingID, guest.UserID)
	if err != nil {
		return InitiateResult{}, err
	}
	// Initiate refuses a booking that already has a successful payment.
	return service.payments.Initiate(ctx, bookingPaymentRequest(booking, guest))
}

// GetBooking returns a booking owned by guestID together with its listing and payments.
func (service *BookingService) GetBooking(ctx context.Context, bookingID BookingID, guestID UserID) (BookingDetails, error) {
	booking, err := service.ownedBooking(ctx, bookingID, guestID)
	if err != nil {
		return BookingDetails{}, err
	}
	listing, err := service.store.GetListing(ctx, booking.ListingID)
	if err != nil && !errors.Is(err, ErrListingNotFound) {
		return BookingDetails{}, err
	}
	payments, err := service.store.ListPaymentsByBooking(ctx, booking.ID)
	if err != nil {
		return BookingDetails{}, err
	}
	return BookingDetails{Booking: booking, Listing: listing, Payments: payments}, nil
}

// ListBookings returns the guest's bookings, newest first.
func (service *BookingService) ListBookings(ctx context.Context, guestID UserID, limit int) ([]Booking, error) {
	if guestID.IsZero() {
		return nil, invalid(ErrInvalidUserID, "guest is required")
	}
	return service.store.ListBookingsByGuest(ctx, guestID, clampLimit(limit))
}

func (service *BookingService) ownedBooking(ctx context.Context, bookingID BookingID, guestID UserID) (Booking, error) {
	if guestID.IsZero() {
		return Booking{}, invalid(ErrInvalidUserID, "guest is required")
	}
	if bookingID <= 0 {
		return Booking{}, invalid(ErrInvalidBookingID, "booking id must be positive")
	}
	booking, err := service.store.GetBooking(ctx, bookingID)
	if err != nil {
		return Booking{}, err
	}
	if booking.GuestID != guestID {
		return Booking{}, fmt.Errorf("%w: booking %d belongs to another guest", ErrForbidden, bookingID.Int64())
	}
	return booking, nil
}

func bookingPaymentRequest(booking Booking, guest Payer) InitiateRequest {
	bookingID := booking.ID
	return InitiateRequest{
		Amount:      booking.TotalPrice,
		Currency:    booking.Currency,
		Payer:       guest,
		Description: fmt.Sprintf("Payment for booking #%d", booking.ID.Int64()),
		BookingID:   &bookingID,
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
