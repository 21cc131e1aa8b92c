package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/travelbook/pkg/travel"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	constraintListingSlug    = "uniq_listings_slug"
	constraintBookingStay    = "uniq_bookings_stay"
	constraintPaymentPrimary = "payments_pkey"
	defaultMetadataJSON      = "{}"
	pgUniqueViolationCode    = "23505"
	sqliteConstraintPrimary  = 1555
	sqliteConstraintUnique   = 2067
	errorOperationStore      = "store"
	errorSubjectListing      = "listing"
	errorSubjectReview       = "review"
	errorSubjectBooking      = "booking"
	errorSubjectPayment      = "payment"
	errorCodeCreate          = "create"
	errorCodeDelete          = "delete"
	errorCodeDuplicate       = "duplicate"
	errorCodeGet             = "get"
	errorCodeInvalid         = "invalid"
	errorCodeList            = "list"
	errorCodeUpdate          = "update"
	errorCodeUpdateStatus    = "update_status"
)

// Store implements travel.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore travel.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) CreateListing(ctx context.Context, listing travel.Listing) (travel.Listing, error) {
	model := Listing{
		Slug:               listing.Slug,
		Title:              listing.Title,
		Description:        listing.Description,
		PricePerNightCents: listing.PricePerNight.Int64(),
		Location:           listing.Location,
		HostID:             listing.HostID.String(),
		CreatedAt:          utcOrNow(listing.CreatedAt),
		UpdatedAt:          utcOrNow(listing.UpdatedAt),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err, constraintListingSlug) {
		return travel.Listing{}, wrapStoreError(errorSubjectListing, errorCodeDuplicate, travel.ErrDuplicateSlug)
	}
	if err != nil {
		return travel.Listing{}, wrapStoreError(errorSubjectListing, errorCodeCreate, err)
	}
	return mapListing(model)
}

func (store *Store) GetListing(ctx context.Context, listingID travel.ListingID) (travel.Listing, error) {
	return store.takeListing(ctx, "id = ?", listingID.Int64())
}

func (store *Store) GetListingBySlug(ctx context.Context, slug string) (travel.Listing, error) {
	return store.takeListing(ctx, "slug = ?", slug)
}

func (store *Store) takeListing(ctx context.Context, query string, argument any) (travel.Listing, error) {
	var model Listing
	err := store.db.WithContext(ctx).Where(query, argument).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return travel.Listing{}, wrapStoreError(errorSubjectListing, errorCodeGet, travel.ErrListingNotFound)
		}
		return travel.Listing{}, wrapStoreError(errorSubjectListing, errorCodeGet, err)
	}
	return mapListing(model)
}

func (store *Store) ListListings(ctx context.Context, limit int, offset int) ([]travel.Listing, error) {
	var rows []Listing
	err := store.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectListing, errorCodeList, err)
	}
	listings := make([]travel.Listing, 0, len(rows))
	for _, row := range rows {
		listing, err := mapListing(row)
		if err != nil {
			return nil, err
		}
		listings = append(listings, listing)
	}
	return listings, nil
}

func (store *Store) UpdateListing(ctx context.Context, listing travel.Listing) error {
	result := store.db.WithContext(ctx).
		Model(&Listing{}).
		Where("id = ?", listing.ID.Int64()).
		Updates(map[string]any{
			"title":                 listing.Title,
			"description":           listing.Description,
			"price_per_night_cents": listing.PricePerNight.Int64(),
			"location":              listing.Location,
			"updated_at":            utcOrNow(listing.UpdatedAt),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectListing, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectListing, errorCodeUpdate, travel.ErrListingNotFound)
	}
	return nil
}

func (store *Store) DeleteListing(ctx context.Context, listingID travel.ListingID) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		if err := transaction.Where("listing_id = ?", listingID.Int64()).Delete(&Review{}).Error; err != nil {
			return wrapStoreError(errorSubjectReview, errorCodeDelete, err)
		}
		result := transaction.Where("id = ?", listingID.Int64()).Delete(&Listing{})
		if result.Error != nil {
			return wrapStoreError(errorSubjectListing, errorCodeDelete, result.Error)
		}
		if result.RowsAffected == 0 {
			return wrapStoreError(errorSubjectListing, errorCodeDelete, travel.ErrListingNotFound)
		}
		return nil
	})
}

func (store *Store) CreateReview(ctx context.Context, review travel.Review) (travel.Review, error) {
	model := Review{
		ListingID:  review.ListingID.Int64(),
		ReviewerID: review.ReviewerID.String(),
		Rating:     review.Rating,
		Comment:    review.Comment,
		CreatedAt:  utcOrNow(review.CreatedAt),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return travel.Review{}, wrapStoreError(errorSubjectReview, errorCodeCreate, err)
	}
	return mapReview(model)
}

func (store *Store) ListReviews(ctx context.Context, listingID travel.ListingID) ([]travel.Review, error) {
	var rows []Review
	err := store.db.WithContext(ctx).
		Where("listing_id = ?", listingID.Int64()).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectReview, errorCodeList, err)
	}
	reviews := make([]travel.Review, 0, len(rows))
	for _, row := range rows {
		review, err := mapReview(row)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, review)
	}
	return reviews, nil
}

func (store *Store) CreateBooking(ctx context.Context, booking travel.Booking) (travel.Booking, error) {
	model := Booking{
		ListingID:       booking.ListingID.Int64(),
		GuestID:         booking.GuestID.String(),
		CheckIn:         travel.NormalizeStayDate(booking.CheckIn),
		CheckOut:        travel.NormalizeStayDate(booking.CheckOut),
		TotalPriceCents: booking.TotalPrice.Int64(),
		Currency:        booking.Currency.String(),
		CreatedAt:       utcOrNow(booking.CreatedAt),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err, constraintBookingStay) {
		return travel.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeDuplicate, travel.ErrDuplicateBooking)
	}
	if err != nil {
		return travel.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeCreate, err)
	}
	return mapBooking(model)
}

func (store *Store) GetBooking(ctx context.Context, bookingID travel.BookingID) (travel.Booking, error) {
	var model Booking
	err := store.db.WithContext(ctx).Where("id = ?", bookingID.Int64()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return travel.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeGet, travel.ErrBookingNotFound)
		}
		return travel.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeGet, err)
	}
	return mapBooking(model)
}

func (store *Store) ListBookingsByGuest(ctx context.Context, guestID travel.UserID, limit int) ([]travel.Booking, error) {
	var rows []Booking
	err := store.db.WithContext(ctx).
		Where("guest_id = ?", guestID.String()).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	bookings := make([]travel.Booking, 0, len(rows))
	for _, row := range rows {
		booking, err := mapBooking(row)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, booking)
	}
	return bookings, nil
}

func (store *Store) CreatePayment(ctx context.Context, payment travel.Payment) error {
	var bookingID *int64
	if payment.BookingID != nil {
		value := payment.BookingID.Int64()
		bookingID = &value
	}
	model := Payment{
		TxRef:          payment.TxRef.String(),
		BookingID:      bookingID,
		PayerUserID:    payment.Payer.UserID.String(),
		PayerEmail:     payment.Payer.Email,
		PayerFirstName: payment.Payer.FirstName,
		PayerLastName:  payment.Payer.LastName,
		GatewayTxID:    payment.GatewayTxID,
		AmountCents:    payment.Amount.Int64(),
		Currency:       payment.Currency.String(),
		Status:         payment.Status.String(),
		Description:    payment.Description,
		Metadata:       datatypesJSON(payment.Metadata.String()),
		CreatedAt:      utcOrNow(payment.CreatedAt),
		UpdatedAt:      utcOrNow(payment.UpdatedAt),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err, constraintPaymentPrimary) {
		return wrapStoreError(errorSubjectPayment, errorCodeDuplicate, travel.ErrDuplicateTxRef)
	}
	if err != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetPayment(ctx context.Context, txRef travel.TxRef) (travel.Payment, error) {
	var model Payment
	err := store.db.WithContext(ctx).Where("tx_ref = ?", txRef.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return travel.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeGet, travel.ErrPaymentNotFound)
		}
		return travel.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeGet, err)
	}
	return mapPayment(model)
}

func (store *Store) ListPaymentsByBooking(ctx context.Context, bookingID travel.BookingID) ([]travel.Payment, error) {
	var rows []Payment
	err := store.db.WithContext(ctx).
		Where("booking_id = ?", bookingID.Int64()).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectPayment, errorCodeList, err)
	}
	return mapPayments(rows)
}

func (store *Store) ListPendingPayments(ctx context.Context, createdBefore time.Time, limit int) ([]travel.Payment, error) {
	var rows []Payment
	err := store.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", travel.PaymentStatusPending.String(), createdBefore.UTC()).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectPayment, errorCodeList, err)
	}
	return mapPayments(rows)
}

// TransitionPaymentStatus is a compare-and-set on status: exactly one concurrent caller wins.
func (store *Store) TransitionPaymentStatus(ctx context.Context, transition travel.PaymentTransition) error {
	result := store.db.WithContext(ctx).
		Model(&Payment{}).
		Where("tx_ref = ? AND status = ?", transition.TxRef.String(), transition.From.String()).
		Updates(map[string]any{
			"status":        transition.To.String(),
			"gateway_tx_id": transition.GatewayTxID,
			"updated_at":    utcOrNow(transition.At),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := store.db.WithContext(ctx).Model(&Payment{}).Where("tx_ref = ?", transition.TxRef.String()).Count(&count).Error; err != nil {
			return wrapStoreError(errorSubjectPayment, errorCodeUpdateStatus, err)
		}
		if count == 0 {
			return wrapStoreError(errorSubjectPayment, errorCodeUpdateStatus, travel.ErrPaymentNotFound)
		}
		return wrapStoreError(errorSubjectPayment, errorCodeUpdateStatus, travel.ErrPaymentFinalized)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return travel.WrapError(errorOperationStore, subject, code, err)
}

func mapListing(row Listing) (travel.Listing, error) {
	listingID, err := travel.NewListingID(row.ID)
	if err != nil {
		return travel.Listing{}, wrapStoreError(errorSubjectListing, errorCodeInvalid, err)
	}
	hostID, err := travel.NewUserID(row.HostID)
	if err != nil {
		return travel.Listing{}, wrapStoreError(errorSubjectListing, errorCodeInvalid, err)
	}
	price, err := travel.NewAmountCents(row.PricePerNightCents)
	if err != nil {
		return travel.Listing{}, wrapStoreError(errorSubjectListing, errorCodeInvalid, err)
	}
	return travel.Listing{
		ID:            listingID,
		Slug:          row.Slug,
		Title:         row.Title,
		Description:   row.Description,
		PricePerNight: price,
		Location:      row.Location,
		HostID:        hostID,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}, nil
}

func mapReview(row Review) (travel.Review, error) {
	listingID, err := travel.NewListingID(row.ListingID)
	if err != nil {
		return travel.Review{}, wrapStoreError(errorSubjectReview, errorCodeInvalid, err)
	}
	reviewerID, err := travel.NewUserID(row.ReviewerID)
	if err != nil {
		return travel.Review{}, wrapStoreError(errorSubjectReview, errorCodeInvalid, err)
	}
	return travel.Review{
		ID:         row.ID,
		ListingID:  listingID,
		ReviewerID: reviewerID,
		Rating:     row.Rating,
		Comment:    row.Comment,
		CreatedAt:  row.CreatedAt.UTC(),
	}, nil
}

func mapBooking(row Booking) (travel.Booking, error) {
	bookingID, err := travel.NewBookingID(row.ID)
	if err != nil {
		return travel.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	listingID, err := travel.NewListingID(row.ListingID)
	if err != nil {
		return travel.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	guestID, err := travel.NewUserID(row.GuestID)
	if err != nil {
		return travel.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	total, err := travel.NewAmountCents(row.TotalPriceCents)
	if err != nil {
		return travel.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	currency, err := travel.NewCurrency(row.Currency)
	if err != nil {
		return travel.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	return travel.Booking{
		ID:         bookingID,
		ListingID:  listingID,
		GuestID:    guestID,
		CheckIn:    travel.NormalizeStayDate(row.CheckIn),
		CheckOut:   travel.NormalizeStayDate(row.CheckOut),
		TotalPrice: total,
		Currency:   currency,
		CreatedAt:  row.CreatedAt.UTC(),
	}, nil
}

func mapPayments(rows []Payment) ([]travel.Payment, error) {
	payments := make([]travel.Payment, 0, len(rows))
	for _, row := range rows {
		payment, err := mapPayment(row)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	return payments, nil
}

func mapPayment(row Payment) (travel.Payment, error) {
	txRef, err := travel.NewTxRef(row.TxRef)
	if err != nil {
		return travel.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	var bookingID *travel.BookingID
	if row.BookingID != nil {
		parsedBookingID, err := travel.NewBookingID(*row.BookingID)
		if err != nil {
			return travel.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
		}
		bookingID = &parsedBookingID
	}
	var payerID travel.UserID
	if row.PayerUserID != "" {
		payerID, err = travel.NewUserID(row.PayerUserID)
		if err != nil {
			return travel.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
		}
	}
	amount, err := travel.NewAmountCents(row.AmountCents)
	if err != nil {
		return travel.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	currency, err := travel.NewCurrency(row.Currency)
	if err != nil {
		return travel.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	status, err := travel.ParsePaymentStatus(row.Status)
	if err != nil {
		return travel.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	metadata, err := travel.NewMetadataJSON(string(row.Metadata))
	if err != nil {
		return travel.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	return travel.Payment{
		TxRef:     txRef,
		BookingID: bookingID,
		Payer: travel.Payer{
			UserID:    payerID,
			Email:     row.PayerEmail,
			FirstName: row.PayerFirstName,
			LastName:  row.PayerLastName,
		},
		GatewayTxID: row.GatewayTxID,
		Amount:      amount,
		Currency:    currency,
		Status:      status,
		Description: row.Description,
		Metadata:    metadata,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}, nil
}

func utcOrNow(value time.Time) time.Time {
	if value.IsZero() {
		return time.Now().UTC()
	}
	return value.UTC()
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		// sqlite carries no constraint name; match unique and primary key codes only.
		code := sqliteErr.Code()
		return code == sqliteConstraintUnique || code == sqliteConstraintPrimary
	}
	return false
}
