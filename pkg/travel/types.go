package travel

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AmountCents is a fixed-point currency amount in minor units.
type AmountCents int64

// NewAmountCents validates a non-negative amount.
func NewAmountCents(raw int64) (AmountCents, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidAmountCents)
	}
	return AmountCents(raw), nil
}

// ParseAmountCents parses a decimal amount with at most two fractional digits ("100", "100.5", "100.00").
func ParseAmountCents(raw string) (AmountCents, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidAmountCents)
	}
	if strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "+") {
		return 0, fmt.Errorf("%w: signed value %q", ErrInvalidAmountCents, raw)
	}
	wholePart, fractionPart, hasFraction := strings.Cut(trimmed, ".")
	if !isDigits(wholePart) || (hasFraction && (!isDigits(fractionPart) || len(fractionPart) > 2)) {
		return 0, fmt.Errorf("%w: malformed value %q", ErrInvalidAmountCents, raw)
	}
	whole, err := strconv.ParseInt(wholePart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed value %q", ErrInvalidAmountCents, raw)
	}
	var fraction int64
	if hasFraction {
		if len(fractionPart) == 1 {
			fractionPart += "0"
		}
		fraction, err = strconv.ParseInt(fractionPart, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: malformed value %q", ErrInvalidAmountCents, raw)
		}
	}
	if whole > (1<<62)/100 {
		return 0, fmt.Errorf("%w: value %q out of range", ErrInvalidAmountCents, raw)
	}
	return AmountCents(whole*100 + fraction), nil
}

// Int64 returns the raw minor-unit value.
func (amount AmountCents) Int64() int64 {
	return int64(amount)
}

// String renders the amount as a two-decimal string.
func (amount AmountCents) String() string {
	return fmt.Sprintf("%d.%02d", int64(amount)/100, int64(amount)%100)
}

// UserID identifies a host, guest, or payer.
type UserID struct {
	value string
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// IsZero reports whether the id was never set.
func (id UserID) IsZero() bool {
	return id.value == ""
}

// TxRef correlates a local payment with the gateway transaction.
type TxRef struct {
	value string
}

// NewTxRef validates and normalizes a transaction reference.
func NewTxRef(raw string) (TxRef, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return TxRef{}, fmt.Errorf("%w: empty value", ErrInvalidTxRef)
	}
	if len(trimmed) > maxTxRefLength {
		return TxRef{}, fmt.Errorf("%w: longer than %d characters", ErrInvalidTxRef, maxTxRefLength)
	}
	return TxRef{value: trimmed}, nil
}

// String returns the reference.
func (ref TxRef) String() string {
	return ref.value
}

// Currency is an upper-case ISO 4217 code.
type Currency struct {
	value string
}

// NewCurrency validates a currency code, defaulting to ETB when empty.
func NewCurrency(raw string) (Currency, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	if trimmed == "" {
		trimmed = DefaultCurrency
	}
	if len(trimmed) != 3 {
		return Currency{}, fmt.Errorf("%w: %q must be a three-letter code", ErrInvalidCurrency, raw)
	}
	for _, character := range trimmed {
		if character < 'A' || character > 'Z' {
			return Currency{}, fmt.Errorf("%w: %q must be alphabetic", ErrInvalidCurrency, raw)
		}
	}
	return Currency{value: trimmed}, nil
}

// String returns the code.
func (currency Currency) String() string {
	if currency.value == "" {
		return DefaultCurrency
	}
	return currency.value
}

// ListingID identifies a listing.
type ListingID int64

// NewListingID validates a listing id.
func NewListingID(raw int64) (ListingID, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be positive", ErrInvalidListingID)
	}
	return ListingID(raw), nil
}

// Int64 returns the raw id.
func (id ListingID) Int64() int64 {
	return int64(id)
}

// BookingID identifies a booking.
type BookingID int64

// NewBookingID validates a booking id.
func NewBookingID(raw int64) (BookingID, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be positive", ErrInvalidBookingID)
	}
	return BookingID(raw), nil
}

// Int64 returns the raw id.
func (id BookingID) Int64() int64 {
	return int64(id)
}

// PaymentStatus defines the payment lifecycle.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// ParsePaymentStatus validates a stored status value.
func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	switch PaymentStatus(strings.TrimSpace(raw)) {
	case PaymentStatusPending:
		return PaymentStatusPending, nil
	case PaymentStatusSuccess:
		return PaymentStatusSuccess, nil
	case PaymentStatusFailed:
		return PaymentStatusFailed, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
}

// String returns the status value.
func (status PaymentStatus) String() string {
	return string(status)
}

// IsTerminal reports whether no further transition is allowed.
func (status PaymentStatus) IsTerminal() bool {
	return status == PaymentStatusSuccess || status == PaymentStatusFailed
}

// MetadataJSON stores arbitrary gateway metadata.
type MetadataJSON struct {
	value string
}

// NewMetadataJSON validates metadata string (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadata)
	}
	return MetadataJSON{value: normalized}, nil
}

// MetadataFromMap encodes a metadata map.
func MetadataFromMap(values map[string]any) (MetadataJSON, error) {
	if len(values) == 0 {
		return MetadataJSON{value: "{}"}, nil
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return MetadataJSON{}, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	return MetadataJSON{value: string(encoded)}, nil
}

// String returns the JSON blob.
func (metadata MetadataJSON) String() string {
	if metadata.value == "" {
		return "{}"
	}
	return metadata.value
}

// Map decodes the metadata into a map.
func (metadata MetadataJSON) Map() map[string]any {
	values := map[string]any{}
	_ = json.Unmarshal([]byte(metadata.String()), &values)
	return values
}

// Payer carries the contact fields forwarded to the gateway.
type Payer struct {
	UserID    UserID
	Email     string
	FirstName string
	LastName  string
}

// Listing is a bookable property owned by a host.
type Listing struct {
	ID            ListingID
	Slug          string
	Title         string
	Description   string
	PricePerNight AmountCents
	Location      string
	HostID        UserID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Review is a guest rating of a listing.
type Review struct {
	ID         int64
	ListingID  ListingID
	ReviewerID UserID
	Rating     int
	Comment    string
	CreatedAt  time.Time
}

// Booking is a guest stay at a listing.
type Booking struct {
	ID         BookingID
	ListingID  ListingID
	GuestID    UserID
	CheckIn    time.Time
	CheckOut   time.Time
	TotalPrice AmountCents
	Currency   Currency
	CreatedAt  time.Time
}

// Nights returns the number of nights between check-in and check-out.
func (booking Booking) Nights() int64 {
	return nightsBetween(booking.CheckIn, booking.CheckOut)
}

// Payment is the local record of a gateway transaction.
type Payment struct {
	TxRef       TxRef
	BookingID   *BookingID
	Payer       Payer
	GatewayTxID string
	Amount      AmountCents
	Currency    Currency
	Status      PaymentStatus
	Description string
	Metadata    MetadataJSON
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PaymentTransition describes a compare-and-set status change.
type PaymentTransition struct {
	TxRef       TxRef
	From        PaymentStatus
	To          PaymentStatus
	GatewayTxID string
	At          time.Time
}

// NormalizeStayDate truncates a timestamp to its UTC calendar day.
func NormalizeStayDate(value time.Time) time.Time {
	utc := value.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseStayDate parses a YYYY-MM-DD date.
func ParseStayDate(raw string) (time.Time, error) {
	parsed, err := time.Parse(stayDateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a %s date", ErrInvalidStayDates, raw, stayDateLayout)
	}
	return parsed.UTC(), nil
}

// FormatStayDate renders a stay date as YYYY-MM-DD.
func FormatStayDate(value time.Time) string {
	return value.UTC().Format(stayDateLayout)
}

func isDigits(raw string) bool {
	if raw == "" {
		return false
	}
	for _, character := range raw {
		if character < '0' || character > '9' {
			return false
		}
	}
	return true
}

func nightsBetween(checkIn time.Time, checkOut time.Time) int64 {
	return int64(NormalizeStayDate(checkOut).Sub(NormalizeStayDate(checkIn)).Hours() / 24)
}
