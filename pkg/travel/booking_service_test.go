package travel

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type bookingFixture struct {
	store    *memoryStore
	gateway  *stubGateway
	notifier *recordingNotifier
	service  *BookingService
	listing  Listing
	guest    Payer
}

func newBookingFixture(test *testing.T) bookingFixture {
	test.Helper()
	store := newMemoryStore(test)
	gateway := newStubGateway()
	notifier := &recordingNotifier{}
	payments := mustNewPaymentService(test, store, gateway, notifier)
	service, err := NewBookingService(store, payments, notifier)
	if err != nil {
		test.Fatalf("booking service init failed: %v", err)
	}
	listing := store.seedListing(test, Listing{
		Slug:          "lakeside-cabin-abc",
		Title:         "Lakeside Cabin",
		PricePerNight: 5000,
		HostID:        mustUserID(test, "host-1"),
	})
	return bookingFixture{
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		service:  service,
		listing:  listing,
		guest:    Payer{UserID: mustUserID(test, "guest-1"), Email: "guest@example.com", FirstName: "Sara"},
	}
}

func (fixture bookingFixture) request(test *testing.T, checkIn string, checkOut string) CreateBookingRequest {
	test.Helper()
	return CreateBookingRequest{
		ListingID: fixture.listing.ID,
		Guest:     fixture.guest,
		CheckIn:   mustStayDate(test, checkIn),
		CheckOut:  mustStayDate(test, checkOut),
	}
}

func TestCreateBookingInitiatesPayment(test *testing.T) {
	test.Parallel()
	fixture := newBookingFixture(test)

	result, err := fixture.service.CreateBooking(context.Background(), fixture.request(test, "2024-06-01", "2024-06-04"))
	if err != nil {
		test.Fatalf("create booking: %v", err)
	}
	if result.Booking.ID == 0 {
		test.Fatalf("expected stored booking id")
	}
	if result.Booking.TotalPrice != 15000 {
		test.Fatalf("expected derived total 15000, got %d", result.Booking.TotalPrice)
	}
	if result.Payment.Status != PaymentStatusPending || result.Payment.PaymentURL != "https://pay/x" {
		test.Fatalf("unexpected payment result %+v", result.Payment)
	}
	payment := fixture.store.mustPayment(test, result.Payment.TxRef)
	if payment.BookingID == nil || *payment.BookingID != result.Booking.ID {
		test.Fatalf("expected payment linked to booking %d, got %v", result.Booking.ID, payment.BookingID)
	}
	wantDescription := fmt.Sprintf("Payment for booking #%d", result.Booking.ID)
	if payment.Description != wantDescription {
		test.Fatalf("expected description %q, got %q", wantDescription, payment.Description)
	}
	if fixture.gateway.lastInitialize.Metadata.Map()["booking_id"] != float64(result.Booking.ID) {
		test.Fatalf("expected booking_id metadata, got %s", fixture.gateway.lastInitialize.Metadata)
	}
	sent := fixture.notifier.sent()
	if len(sent) != 1 || sent[0].Subject != "Booking Confirmation - Lakeside Cabin" {
		test.Fatalf("unexpected notifications %+v", sent)
	}
}

func TestCreateBookingHonorsExplicitTotal(test *testing.T) {
	test.Parallel()
	fixture := newBookingFixture(test)
	request := fixture.request(test, "2024-06-01", "2024-06-02")
	total := AmountCents(12345)
	request.TotalPrice = &total

	result, err := fixture.service.CreateBooking(context.Background(), request)
	if err != nil {
		test.Fatalf("create booking: %v", err)
	}
	if result.Booking.TotalPrice != total {
		test.Fatalf("expected total %d, got %d", total, result.Booking.TotalPrice)
	}
}

func TestCreateBookingRejectsDuplicateStay(test *testing.T) {
	test.Parallel()
	fixture := newBookingFixture(test)
	request := fixture.request(test, "2024-06-01", "2024-06-04")
	if _, err := fixture.service.CreateBooking(context.Background(), request); err != nil {
		test.Fatalf("first booking: %v", err)
	}

	_, err := fixture.service.CreateBooking(context.Background(), request)
	if !errors.Is(err, ErrDuplicateBooking) {
		test.Fatalf("expected ErrDuplicateBooking, got %v", err)
	}
	if initializeCalls, _ := fixture.gateway.calls(); initializeCalls != 1 {
		test.Fatalf("expected one gateway call, got %d", initializeCalls)
	}
}

func TestCreateBookingValidation(test *testing.T) {
	test.Parallel()
	cases := []struct {
		name      string
		mutate    func(*CreateBookingRequest)
		wantErr   error
		wantCause error
	}{
		{
			name:      "check out before check in",
			mutate:    func(request *CreateBookingRequest) { request.CheckIn, request.CheckOut = request.CheckOut, request.CheckIn },
			wantErr:   ErrValidation,
			wantCause: ErrInvalidStayDates,
		},
		{
			name:      "same day",
			mutate:    func(request *CreateBookingRequest) { request.CheckOut = request.CheckIn },
			wantErr:   ErrValidation,
			wantCause: ErrInvalidStayDates,
		},
		{
			name:      "missing email",
			mutate:    func(request *CreateBookingRequest) { request.Guest.Email = "" },
			wantErr:   ErrValidation,
			wantCause: ErrInvalidEmail,
		},
		{
			name:    "unknown listing",
			mutate:  func(request *CreateBookingRequest) { request.ListingID = 999 },
			wantErr: ErrListingNotFound,
		},
	}
	for _, testCase := range cases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			fixture := newBookingFixture(test)
			request := fixture.request(test, "2024-06-01", "2024-06-04")
			testCase.mutate(&request)

			_, err := fixture.service.CreateBooking(context.Background(), request)
			if !errors.Is(err, testCase.wantErr) {
				test.Fatalf("expected %v, got %v", testCase.wantErr, err)
			}
			if testCase.wantCause != nil && !errors.Is(err, testCase.wantCause) {
				test.Fatalf("expected cause %v, got %v", testCase.wantCause, err)
			}
			if initializeCalls, _ := fixture.gateway.calls(); initializeCalls != 0 {
				test.Fatalf("expected no gateway call, got %d", initializeCalls)
			}
		})
	}
}

func TestCreateBookingPaymentFailureKeepsBooking(test *testing.T) {
	test.Parallel()
	fixture := newBookingFixture(test)
	fixture.gateway.initializeErr = fmt.Errorf("%w: bad request", ErrGatewayRejected)

	result, err := fixture.service.CreateBooking(context.Background(), fixture.request(test, "2024-06-01", "2024-06-04"))
	if !errors.Is(err, ErrGatewayRejected) {
		test.Fatalf("expected ErrGatewayRejected, got %v", err)
	}
	if result.Booking.ID == 0 {
		test.Fatalf("expected booking in result despite payment failure")
	}
	if _, lookupErr := fixture.store.GetBooking(context.Background(), result.Booking.ID); lookupErr != nil {
		test.Fatalf("expected booking persisted: %v", lookupErr)
	}
	if len(fixture.notifier.sent()) != 0 {
		test.Fatalf("expected no confirmation email")
	}
}

func TestRetryPayment(test *testing.T) {
	test.Parallel()
	fixture := newBookingFixture(test)
	fixture.gateway.initializeErr = fmt.Errorf("%w: timeout", ErrGatewayUnavailable)
	created, _ := fixture.service.CreateBooking(context.Background(), fixture.request(test, "2024-07-01", "2024-07-03"))
	if created.Booking.ID == 0 {
		test.Fatalf("expected booking to be stored")
	}

	stranger := Payer{UserID: mustUserID(test, "guest-2"), Email: "other@example.com"}
	if _, err := fixture.service.RetryPayment(context.Background(), created.Booking.ID, stranger); !errors.Is(err, ErrForbidden) {
		test.Fatalf("expected ErrForbidden for another guest, got %v", err)
	}

	fixture.gateway.mu.Lock()
	fixture.gateway.initializeErr = nil
	fixture.gateway.mu.Unlock()
	retried, err := fixture.service.RetryPayment(context.Background(), created.Booking.ID, fixture.guest)
	if err != nil {
		test.Fatalf("retry payment: %v", err)
	}
	if retried.Status != PaymentStatusPending {
		test.Fatalf("expected pending payment, got %s", retried.Status)
	}
	if err := fixture.store.TransitionPaymentStatus(context.Background(), PaymentTransition{
		TxRef: retried.TxRef,
		From:  PaymentStatusPending,
		To:    PaymentStatusSuccess,
		At:    fixedNow,
	}); err != nil {
		test.Fatalf("transition: %v", err)
	}
	if _, err := fixture.service.RetryPayment(context.Background(), created.Booking.ID, fixture.guest); !errors.Is(err, ErrBookingAlreadyPaid) {
		test.Fatalf("expected ErrBookingAlreadyPaid, got %v", err)
	}
}

func TestGetBookingReturnsPaymentsForOwner(test *testing.T) {
	test.Parallel()
	fixture := newBookingFixture(test)
	created, err := fixture.service.CreateBooking(context.Background(), fixture.request(test, "2024-08-10", "2024-08-12"))
	if err != nil {
		test.Fatalf("create booking: %v", err)
	}

	details, err := fixture.service.GetBooking(context.Background(), created.Booking.ID, fixture.guest.UserID)
	if err != nil {
		test.Fatalf("get booking: %v", err)
	}
	if details.Listing.Title != "Lakeside Cabin" || len(details.Payments) != 1 {
		test.Fatalf("unexpected details %+v", details)
	}
	if _, err := fixture.service.GetBooking(context.Background(), created.Booking.ID, mustUserID(test, "intruder")); !errors.Is(err, ErrForbidden) {
		test.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := fixture.service.GetBooking(context.Background(), 404, fixture.guest.UserID); !errors.Is(err, ErrBookingNotFound) {
		test.Fatalf("expected ErrBookingNotFound, got %v", err)
	}

	bookings, err := fixture.service.ListBookings(context.Background(), fixture.guest.UserID, 0)
	if err != nil {
		test.Fatalf("list bookings: %v", err)
	}
	if len(bookings) != 1 || bookings[0].ID != created.Booking.ID {
		test.Fatalf("unexpected bookings %+v", bookings)
	}
}

func TestInitiateForBookingRequiresOwnerAndTotal(test *testing.T) {
	test.Parallel()
	fixture := newBookingFixture(test)
	fixture.gateway.initializeErr = fmt.Errorf("%w: timeout", ErrGatewayUnavailable)
	created, _ := fixture.service.CreateBooking(context.Background(), fixture.request(test, "2024-09-01", "2024-09-03"))
	if created.Booking.ID == 0 {
		test.Fatalf("expected booking to be stored")
	}
	fixture.gateway.mu.Lock()
	fixture.gateway.initializeErr = nil
	fixture.gateway.mu.Unlock()
	initializeBefore, _ := fixture.gateway.calls()

	bookingID := created.Booking.ID
	missingID := BookingID(9999)
	stranger := Payer{UserID: mustUserID(test, "guest-2"), Email: "other@example.com"}
	testCases := []struct {
		name     string
		request  InitiateRequest
		expected error
	}{
		{
			name:     "another guest",
			request:  InitiateRequest{Amount: 1, Payer: stranger, BookingID: &bookingID},
			expected: ErrForbidden,
		},
		{
			name:     "partial amount",
			request:  InitiateRequest{Amount: 1, Payer: fixture.guest, BookingID: &bookingID},
			expected: ErrValidation,
		},
		{
			name:     "wrong currency",
			request:  InitiateRequest{Amount: created.Booking.TotalPrice, Currency: Currency{value: "USD"}, Payer: fixture.guest, BookingID: &bookingID},
			expected: ErrValidation,
		},
		{
			name:     "missing booking",
			request:  InitiateRequest{Amount: 1, Payer: fixture.guest, BookingID: &missingID},
			expected: ErrBookingNotFound,
		},
	}

	for _, testCase := range testCases {
		if _, err := fixture.service.payments.Initiate(context.Background(), testCase.request); !errors.Is(err, testCase.expected) {
			test.Fatalf("%s: expected %v, got %v", testCase.name, testCase.expected, err)
		}
	}
	if initializeAfter, _ := fixture.gateway.calls(); initializeAfter != initializeBefore {
		test.Fatalf("expected no gateway calls for rejected requests, got %d", initializeAfter-initializeBefore)
	}
	if payments, _ := fixture.store.ListPaymentsByBooking(context.Background(), bookingID); len(payments) != 0 {
		test.Fatalf("expected no payments linked to the booking, got %d", len(payments))
	}

	if _, err := fixture.service.RetryPayment(context.Background(), bookingID, fixture.guest); err != nil {
		test.Fatalf("owner retry payment: %v", err)
	}
}
