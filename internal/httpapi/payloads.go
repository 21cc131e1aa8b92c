package httpapi

import (
	"encoding/json"
	"time"

	"github.com/MarkoPoloResearchLab/travelbook/pkg/travel"
)

type listingRequest struct {
	Title         string         `json:"title" binding:"required"`
	Description   string         `json:"description"`
	PricePerNight flexibleAmount `json:"price_per_night" binding:"required,amount"`
	Location      string         `json:"location"`
}

type reviewRequest struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment"`
}

type bookingRequest struct {
	ListingID  int64          `json:"listing_id" binding:"required,gt=0"`
	CheckIn    string         `json:"check_in" binding:"required,staydate"`
	CheckOut   string         `json:"check_out" binding:"required,staydate"`
	TotalPrice flexibleAmount `json:"total_price" binding:"omitempty,amount"`
	Currency   string         `json:"currency" binding:"omitempty,len=3,alpha"`
	FirstName  string         `json:"first_name"`
	LastName   string         `json:"last_name"`
}

type initiateRequest struct {
	Amount      flexibleAmount `json:"amount" binding:"required,amount"`
	Currency    string         `json:"currency" binding:"omitempty,len=3,alpha"`
	Email       string         `json:"email" binding:"omitempty,email"`
	FirstName   string         `json:"first_name"`
	LastName    string         `json:"last_name"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
	BookingID   *int64         `json:"booking_id" binding:"omitempty,gt=0"`
}

type listingPayload struct {
	ID            int64     `json:"id"`
	Slug          string    `json:"slug"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	PricePerNight string    `json:"price_per_night"`
	Location      string    `json:"location"`
	HostID        string    `json:"host_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type reviewPayload struct {
	ID         int64     `json:"id"`
	ListingID  int64     `json:"listing_id"`
	ReviewerID string    `json:"reviewer_id"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
}

type bookingPayload struct {
	ID         int64     `json:"id"`
	ListingID  int64     `json:"listing_id"`
	GuestID    string    `json:"guest_id"`
	CheckIn    string    `json:"check_in"`
	CheckOut   string    `json:"check_out"`
	Nights     int64     `json:"nights"`
	TotalPrice string    `json:"total_price"`
	Currency   string    `json:"currency"`
	CreatedAt  time.Time `json:"created_at"`
}

type paymentPayload struct {
	TxRef       string          `json:"tx_ref"`
	BookingID   *int64          `json:"booking_id,omitempty"`
	GatewayTxID string          `json:"gateway_tx_id"`
	Amount      string          `json:"amount"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	Description string          `json:"description"`
	Metadata    json.RawMessage `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type initiatePayload struct {
	PaymentURL string `json:"payment_url"`
	TxRef      string `json:"tx_ref"`
	Status     string `json:"status"`
}

func newListingPayload(listing travel.Listing) listingPayload {
	return listingPayload{
		ID:            listing.ID.Int64(),
		Slug:          listing.Slug,
		Title:         listing.Title,
		Description:   listing.Description,
		PricePerNight: listing.PricePerNight.String(),
		Location:      listing.Location,
		HostID:        listing.HostID.String(),
		CreatedAt:     listing.CreatedAt,
		UpdatedAt:     listing.UpdatedAt,
	}
}

func newReviewPayload(review travel.Review) reviewPayload {
	return reviewPayload{
		ID:         review.ID,
		ListingID:  review.ListingID.Int64(),
		ReviewerID: review.ReviewerID.String(),
		Rating:     review.Rating,
		Comment:    review.Comment,
		CreatedAt:  review.CreatedAt,
	}
}

func newBookingPayload(booking travel.Booking) bookingPayload {
	return bookingPayload{
		ID:         booking.ID.Int64(),
		ListingID:  booking.ListingID.Int64(),
		GuestID:    booking.GuestID.String(),
		CheckIn:    travel.FormatStayDate(booking.CheckIn),
		CheckOut:   travel.FormatStayDate(booking.CheckOut),
		Nights:     booking.Nights(),
		TotalPrice: booking.TotalPrice.String(),
		Currency:   booking.Currency.String(),
		CreatedAt:  booking.CreatedAt,
	}
}

func newPaymentPayload(payment travel.Payment) paymentPayload {
	payload := paymentPayload{
		TxRef:       payment.TxRef.String(),
		GatewayTxID: payment.GatewayTxID,
		Amount:      payment.Amount.String(),
		Currency:    payment.Currency.String(),
		Status:      payment.Status.String(),
		Description: payment.Description,
		Metadata:    json.RawMessage(payment.Metadata.String()),
		CreatedAt:   payment.CreatedAt,
		UpdatedAt:   payment.UpdatedAt,
	}
	if payment.BookingID != nil {
		bookingID := payment.BookingID.Int64()
		payload.BookingID = &bookingID
	}
	return payload
}

func newInitiatePayload(result travel.InitiateResult) initiatePayload {
	return initiatePayload{
		PaymentURL: result.PaymentURL,
		TxRef:      result.TxRef.String(),
		Status:     result.Status.String(),
	}
}
