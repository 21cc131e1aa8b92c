package travel

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"
)

var fixedNow = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

type memoryStore struct {
	mu            sync.Mutex
	listings      map[ListingID]Listing
	reviews       []Review
	bookings      map[BookingID]Booking
	payments      map[string]Payment
	nextListingID int64
	nextBookingID int64
	nextReviewID  int64
	createErr     error
	transitions   int
}

func newMemoryStore(test *testing.T) *memoryStore {
	test.Helper()
	return &memoryStore{
		listings: map[ListingID]Listing{},
		bookings: map[BookingID]Booking{},
		payments: map[string]Payment{},
	}
}

func (store *memoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *memoryStore) CreateListing(_ context.Context, listing Listing) (Listing, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, existing := range store.listings {
		if existing.Slug == listing.Slug {
			return Listing{}, ErrDuplicateSlug
		}
	}
	store.nextListingID++
	listing.ID = ListingID(store.nextListingID)
	store.listings[listing.ID] = listing
	return listing, nil
}

func (store *memoryStore) GetListing(_ context.Context, listingID ListingID) (Listing, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	listing, ok := store.listings[listingID]
	if !ok {
		return Listing{}, ErrListingNotFound
	}
	return listing, nil
}

func (store *memoryStore) GetListingBySlug(_ context.Context, slugValue string) (Listing, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, listing := range store.listings {
		if listing.Slug == slugValue {
			return listing, nil
		}
	}
	return Listing{}, ErrListingNotFound
}

func (store *memoryStore) ListListings(_ context.Context, limit int, offset int) ([]Listing, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	listings := make([]Listing, 0, len(store.listings))
	for _, listing := range store.listings {
		listings = append(listings, listing)
	}
	sort.Slice(listings, func(left, right int) bool { return listings[left].ID > listings[right].ID })
	if offset >= len(listings) {
		return nil, nil
	}
	listings = listings[offset:]
	if len(listings) > limit {
		listings = listings[:limit]
	}
	return listings, nil
}

func (store *memoryStore) UpdateListing(_ context.Context, listing Listing) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if _, ok := store.listings[listing.ID]; !ok {
		return ErrListingNotFound
	}
	store.listings[listing.ID] = listing
	return nil
}

func (store *memoryStore) DeleteListing(_ context.Context, listingID ListingID) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if _, ok := store.listings[listingID]; !ok {
		return ErrListingNotFound
	}
	delete(store.listings, listingID)
	return nil
}

func (store *memoryStore) CreateReview(_ context.Context, review Review) (Review, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.nextReviewID++
	review.ID = store.nextReviewID
	store.reviews = append(store.reviews, review)
	return review, nil
}

func (store *memoryStore) ListReviews(_ context.Context, listingID ListingID) ([]Review, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var reviews []Review
	for _, review := range store.reviews {
		if review.ListingID == listingID {
			reviews = append(reviews, review)
		}
	}
	return reviews, nil
}

func (store *memoryStore) CreateBooking(_ context.Context, booking Booking) (Booking, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, existing := range store.bookings {
		if existing.ListingID == booking.ListingID && existing.GuestID == booking.GuestID &&
			existing.CheckIn.Equal(booking.CheckIn) && existing.CheckOut.Equal(booking.CheckOut) {
			return Booking{}, fmt.Errorf("%w: stay already booked", ErrDuplicateBooking)
		}
	}
	store.nextBookingID++
	booking.ID = BookingID(store.nextBookingID)
	store.bookings[booking.ID] = booking
	return booking, nil
}

func (store *memoryStore) GetBooking(_ context.Context, bookingID BookingID) (Booking, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	booking, ok := store.bookings[bookingID]
	if !ok {
		return Booking{}, ErrBookingNotFound
	}
	return booking, nil
}

func (store *memoryStore) ListBookingsByGuest(_ context.Context, guestID UserID, limit int) ([]Booking, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var bookings []Booking
	for _, booking := range store.bookings {
		if booking.GuestID == guestID {
			bookings = append(bookings, booking)
		}
	}
	sort.Slice(bookings, func(left, right int) bool { return bookings[left].ID > bookings[right].ID })
	if len(bookings) > limit {
		bookings = bookings[:limit]
	}
	return bookings, nil
}

func (store *memoryStore) CreatePayment(_ context.Context, payment Payment) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.createErr != nil {
		return store.createErr
	}
	if _, ok := store.payments[payment.TxRef.String()]; ok {
		return ErrDuplicateTxRef
	}
	store.payments[payment.TxRef.String()] = payment
	return nil
}

func (store *memoryStore) GetPayment(_ context.Context, txRef TxRef) (Payment, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	payment, ok := store.payments[txRef.String()]
	if !ok {
		return Payment{}, ErrPaymentNotFound
	}
	return payment, nil
}

func (store *memoryStore) ListPaymentsByBooking(_ context.Context, bookingID BookingID) ([]Payment, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var payments []Payment
	for _, payment := range store.payments {
		if payment.BookingID != nil && *payment.BookingID == bookingID {
			payments = append(payments, payment)
		}
	}
	return payments, nil
}

func (store *memoryStore) ListPendingPayments(_ context.Context, createdBefore time.Time, limit int) ([]Payment, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var payments []Payment
	for _, payment := range store.payments {
		if payment.Status == PaymentStatusPending && payment.CreatedAt.Before(createdBefore) {
			payments = append(payments, payment)
		}
	}
	sort.Slice(payments, func(left, right int) bool { return payments[left].TxRef.String() < payments[right].TxRef.String() })
	if len(payments) > limit {
		payments = payments[:limit]
	}
	return payments, nil
}

func (store *memoryStore) TransitionPaymentStatus(_ context.Context, transition PaymentTransition) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	payment, ok := store.payments[transition.TxRef.String()]
	if !ok {
		return ErrPaymentNotFound
	}
	if payment.Status != transition.From {
		return ErrPaymentFinalized
	}
	payment.Status = transition.To
	payment.GatewayTxID = transition.GatewayTxID
	payment.UpdatedAt = transition.At
	store.payments[transition.TxRef.String()] = payment
	store.transitions++
	return nil
}

func (store *memoryStore) paymentCount() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.payments)
}

func (store *memoryStore) mustPayment(test *testing.T, txRef TxRef) Payment {
	test.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	payment, ok := store.payments[txRef.String()]
	if !ok {
		test.Fatalf("payment %s not stored", txRef.String())
	}
	return payment
}

func (store *memoryStore) seedPayment(test *testing.T, payment Payment) {
	test.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	store.payments[payment.TxRef.String()] = payment
}

func (store *memoryStore) seedListing(test *testing.T, listing Listing) Listing {
	test.Helper()
	stored, err := store.CreateListing(context.Background(), listing)
	if err != nil {
		test.Fatalf("seed listing: %v", err)
	}
	return stored
}

type stubGateway struct {
	mu              sync.Mutex
	initializeCalls int
	verifyCalls     int
	lastInitialize  InitializeRequest
	initializeResp  InitializeResult
	initializeErr   error
	verifyResp      VerifyResult
	verifyErr       error
}

func newStubGateway() *stubGateway {
	return &stubGateway{
		initializeResp: InitializeResult{GatewayTxID: "gw1", CheckoutURL: "https://pay/x"},
		verifyResp:     VerifyResult{Succeeded: true, GatewayTxID: "gw1"},
	}
}

func (gateway *stubGateway) Initialize(_ context.Context, request InitializeRequest) (InitializeResult, error) {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	gateway.initializeCalls++
	gateway.lastInitialize = request
	if gateway.initializeErr != nil {
		return InitializeResult{}, gateway.initializeErr
	}
	return gateway.initializeResp, nil
}

func (gateway *stubGateway) Verify(_ context.Context, _ TxRef) (VerifyResult, error) {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	gateway.verifyCalls++
	if gateway.verifyErr != nil {
		return VerifyResult{}, gateway.verifyErr
	}
	return gateway.verifyResp, nil
}

func (gateway *stubGateway) calls() (int, int) {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	return gateway.initializeCalls, gateway.verifyCalls
}

type recordingNotifier struct {
	mu            sync.Mutex
	notifications []Notification
	err           error
}

func (notifier *recordingNotifier) Enqueue(_ context.Context, notification Notification) error {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if notifier.err != nil {
		return notifier.err
	}
	notifier.notifications = append(notifier.notifications, notification)
	return nil
}

func (notifier *recordingNotifier) sent() []Notification {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	return append([]Notification(nil), notifier.notifications...)
}

type recorderLogger struct {
	mu      sync.Mutex
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	logger.entries = append(logger.entries, entry)
}

func (logger *recorderLogger) operations(operation string) []OperationLog {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	var matched []OperationLog
	for _, entry := range logger.entries {
		if entry.Operation == operation {
			matched = append(matched, entry)
		}
	}
	return matched
}

func mustNewPaymentService(test *testing.T, store Store, gateway Gateway, notifier Notifier, options ...Option) *PaymentService {
	test.Helper()
	options = append([]Option{WithClock(func() time.Time { return fixedNow })}, options...)
	service, err := NewPaymentService(store, gateway, notifier, PaymentConfig{CallbackURL: "https://site.example/api/payment/callback/"}, options...)
	if err != nil {
		test.Fatalf("payment service init failed: %v", err)
	}
	return service
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}

func mustTxRef(test *testing.T, raw string) TxRef {
	test.Helper()
	txRef, err := NewTxRef(raw)
	if err != nil {
		test.Fatalf("tx ref: %v", err)
	}
	return txRef
}

func mustAmount(test *testing.T, raw string) AmountCents {
	test.Helper()
	amount, err := ParseAmountCents(raw)
	if err != nil {
		test.Fatalf("amount: %v", err)
	}
	return amount
}

func mustStayDate(test *testing.T, raw string) time.Time {
	test.Helper()
	parsed, err := ParseStayDate(raw)
	if err != nil {
		test.Fatalf("stay date: %v", err)
	}
	return parsed
}

func pendingPayment(test *testing.T, raw string, email string) Payment {
	test.Helper()
	return Payment{
		TxRef:       mustTxRef(test, raw),
		Payer:       Payer{Email: email, FirstName: "Abebe"},
		GatewayTxID: "gw-" + raw,
		Amount:      10000,
		Currency:    Currency{value: DefaultCurrency},
		Status:      PaymentStatusPending,
		CreatedAt:   fixedNow.Add(-time.Hour),
		UpdatedAt:   fixedNow.Add(-time.Hour),
	}
}
