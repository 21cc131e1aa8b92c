package travel

import (
	"context"
	"time"
)

// Store is the persistence contract used by the services.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	CreateListing(ctx context.Context, listing Listing) (Listing, error)
	GetListing(ctx context.Context, listingID ListingID) (Listing, error)
	GetListingBySlug(ctx context.Context, slug string) (Listing, error)
	ListListings(ctx context.Context, limit int, offset int) ([]Listing, error)
	UpdateListing(ctx context.Context, listing Listing) error
	DeleteListing(ctx context.Context, listingID ListingID) error
	CreateReview(ctx context.Context, review Review) (Review, error)
	ListReviews(ctx context.Context, listingID ListingID) ([]Review, error)

	CreateBooking(ctx context.Context, booking Booking) (Booking, error)
	GetBooking(ctx context.Context, bookingID BookingID) (Booking, error)
	ListBookingsByGuest(ctx context.Context, guestID UserID, limit int) ([]Booking, error)

	CreatePayment(ctx context.Context, payment Payment) error
	GetPayment(ctx context.Context, txRef TxRef) (Payment, error)
	ListPaymentsByBooking(ctx context.Context, bookingID BookingID) ([]Payment, error)
	ListPendingPayments(ctx context.Context, createdBefore time.Time, limit int) ([]Payment, error)
	// TransitionPaymentStatus applies the change only while the stored status equals transition.From
	// and returns ErrPaymentFinalized otherwise.
	TransitionPaymentStatus(ctx context.Context, transition PaymentTransition) error
}

// InitializeRequest is the payload sent to the gateway's initialize endpoint.
type InitializeRequest struct {
	TxRef       TxRef
	Amount      AmountCents
	Currency    Currency
	Email       string
	FirstName   string
	LastName    string
	CallbackURL string
	Metadata    MetadataJSON
}

// InitializeResult is the gateway acknowledgement of an initialized transaction.
type InitializeResult struct {
	GatewayTxID string
	CheckoutURL string
}

// VerifyResult is the gateway's authoritative outcome for a transaction.
type VerifyResult struct {
	Succeeded   bool
	GatewayTxID string
	Message     string
}

// Gateway wraps the external payment provider.
// Implementations return ErrGatewayUnavailable for transport failures and ErrGatewayRejected
// for non-success initialize responses. Verify reports gateway-side failure through
// VerifyResult.Succeeded rather than an error.
type Gateway interface {
	Initialize(ctx context.Context, request InitializeRequest) (InitializeResult, error)
	Verify(ctx context.Context, txRef TxRef) (VerifyResult, error)
}

// Notification is a unit of email work.
type Notification struct {
	Recipient string
	Subject   string
	Body      string
}

// Notifier queues notifications for asynchronous delivery. Enqueue must not block on delivery.
type Notifier interface {
	Enqueue(ctx context.Context, notification Notification) error
}
