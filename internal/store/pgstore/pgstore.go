package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/travelbook/pkg/travel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	constraintListingSlug    = "uniq_listings_slug"
	constraintBookingStay    = "uniq_bookings_stay"
	constraintPaymentPrimary = "payments_pkey"
	pgUniqueViolationCode    = "23505"
	errorOperationStore      = "store"
	errorSubjectListing      = "listing"
	errorSubjectReview       = "review"
	errorSubjectBooking      = "booking"
	errorSubjectPayment      = "payment"
	errorSubjectSchema       = "schema"
	errorSubjectTransaction  = "transaction"
	errorCodeBegin           = "begin"
	errorCodeCommit          = "commit"
	errorCodeCreate          = "create"
	errorCodeDelete          = "delete"
	errorCodeDuplicate       = "duplicate"
	errorCodeGet             = "get"
	errorCodeInvalid         = "invalid"
	errorCodeList            = "list"
	errorCodeMigrate         = "migrate"
	errorCodeUpdate          = "update"
	errorCodeUpdateStatus    = "update_status"

	listingColumns = `id, slug, title, description, price_per_night_cents, location, host_id, created_at, updated_at`
	bookingColumns = `id, listing_id, guest_id, check_in, check_out, total_price_cents, currency, created_at`
	paymentColumns = `tx_ref, booking_id, payer_user_id, payer_email, payer_first_name, payer_last_name,
		gateway_tx_id, amount_cents, currency, status, description, coalesce(metadata::text,'{}'), created_at, updated_at`

	sqlInsertListing = `
		insert into listings(slug, title, description, price_per_night_cents, location, host_id, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning ` + listingColumns

	sqlSelectListingByID   = `select ` + listingColumns + ` from listings where id = $1`
	sqlSelectListingBySlug = `select ` + listingColumns + ` from listings where slug = $1`
	sqlListListings        = `select ` + listingColumns + ` from listings order by created_at desc, id desc limit $1 offset $2`

	sqlUpdateListing = `
		update listings
		set title = $2, description = $3, price_per_night_cents = $4, location = $5, updated_at = $6
		where id = $1
	`

	sqlDeleteReviews = `delete from reviews where listing_id = $1`
	sqlDeleteListing = `delete from listings where id = $1`

	sqlInsertReview = `
		insert into reviews(listing_id, reviewer_id, rating, comment, created_at)
		values ($1, $2, $3, $4, $5)
		returning id
	`

	sqlListReviews = `
		select id, listing_id, reviewer_id, rating, comment, created_at
		from reviews
		where listing_id = $1
		order by created_at desc, id desc
	`

	sqlInsertBooking = `
		insert into bookings(listing_id, guest_id, check_in, check_out, total_price_cents, currency, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning ` + bookingColumns

	sqlSelectBooking       = `select ` + bookingColumns + ` from bookings where id = $1`
	sqlListBookingsByGuest = `select ` + bookingColumns + ` from bookings where guest_id = $1 order by created_at desc, id desc limit $2`

	sqlInsertPayment = `
		insert into payments(
			tx_ref, booking_id, payer_user_id, payer_email, payer_first_name, payer_last_name,
			gateway_tx_id, amount_cents, currency, status, description, metadata, created_at, updated_at
		)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, coalesce(nullif($12,''),'{}')::jsonb, $13, $14)
	`

	sqlSelectPayment         = `select ` + paymentColumns + ` from payments where tx_ref = $1`
	sqlListPaymentsByBooking = `select ` + paymentColumns + ` from payments where booking_id = $1 order by created_at desc`
	sqlListPendingPayments   = `select ` + paymentColumns + ` from payments where status = 'pending' and created_at < $1 order by created_at asc limit $2`

	sqlTransitionPayment = `
		update payments
		set status = $3, gateway_tx_id = $4, updated_at = $5
		where tx_ref = $1 and status = $2
	`

	sqlPaymentExists = `select exists(select 1 from payments where tx_ref = $1)`
)

// querier is the subset of pgx shared by the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
}

// Store implements travel.Store using a pgx connection pool (autocommit).
type Store struct {
	queries
	pool *pgxpool.Pool
}

// TxStore implements travel.Store for an active transaction.
type TxStore struct {
	queries
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: queries{db: pool}, pool: pool}
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore travel.Store) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, err)
	}
	transactionStore := &TxStore{queries: queries{db: tx}}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, err)
	}
	return nil
}

// EnsureSchema creates the tables when they do not exist yet.
func (store *Store) EnsureSchema(ctx context.Context) error {
	if _, err := store.pool.Exec(ctx, schemaSQL); err != nil {
		return wrapStoreError(errorSubjectSchema, errorCodeMigrate, err)
	}
	return nil
}

func (store *TxStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore travel.Store) error) error {
	return fn(ctx, store)
}

type queries struct {
	db querier
}

func (q queries) CreateListing(ctx context.Context, listing travel.Listing) (travel.Listing, error) {
	row := q.db.QueryRow(ctx, sqlInsertListing,
		listing.Slug,
		listing.Title,
		listing.Description,
		listing.PricePerNight.Int64(),
		listing.Location,
		listing.HostID.String(),
		utcOrNow(listing.CreatedAt),
		utcOrNow(listing.UpdatedAt),
	)
	stored, err := scanListing(row)
	if isUniqueViolation(err, constraintListingSlug) {
		return travel.Listing{}, wrapStoreError(errorSubjectListing, errorCodeDuplicate, travel.ErrDuplicateSlug)
	}
	if err != nil {
		return travel.Listing{}, wrapStoreError(errorSubjectListing, errorCodeCreate, err)
	}
	return stored, nil
}

func (q queries) GetListing(ctx context.Context, listingID travel.ListingID) (travel.Listing, error) {
	return q.getListing(ctx, sqlSelectListingByID, listingID.Int64())
}

func (q queries) GetListingBySlug(ctx context.Context, slug string) (travel.Listing, error) {
	return q.getListing(ctx, sqlSelectListingBySlug, slug)
}

func (q queries) getListing(ctx context.Context, sql string, argument any) (travel.Listing, error) {
	listing, err := scanListing(q.db.QueryRow(ctx, sql, argument))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return travel.Listing{}, wrapStoreError(errorSubjectListing, errorCodeGet, travel.ErrListingNotFound)
		}
		return travel.Listing{}, wrapStoreError(errorSubjectListing, errorCodeGet, err)
	}
	return listing, nil
}

func (q queries) ListListings(ctx context.Context, limit int, offset int) ([]travel.Listing, error) {
	rows, err := q.db.Query(ctx, sqlListListings, limit, offset)
	if err != nil {
		return nil, wrapStoreError(errorSubjectListing, errorCodeList, err)
	}
	defer rows.Close()
	listings := make([]travel.Listing, 0, limit)
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectListing, errorCodeInvalid, err)
		}
		listings = append(listings, listing)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectListing, errorCodeList, err)
	}
	return listings, nil
}

func (q queries) UpdateListing(ctx context.Context, listing travel.Listing) error {
	tag, err := q.db.Exec(ctx, sqlUpdateListing,
		listing.ID.Int64(),
		listing.Title,
		listing.Description,
		listing.PricePerNight.Int64(),
		listing.Location,
		utcOrNow(listing.UpdatedAt),
	)
	if err != nil {
		return wrapStoreError(errorSubjectListing, errorCodeUpdate, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectListing, errorCodeUpdate, travel.ErrListingNotFound)
	}
	return nil
}

func (q queries) DeleteListing(ctx context.Context, listingID travel.ListingID) error {
	if _, err := q.db.Exec(ctx, sqlDeleteReviews, listingID.Int64()); err != nil {
		return wrapStoreError(errorSubjectReview, errorCodeDelete, err)
	}
	tag, err := q.db.Exec(ctx, sqlDeleteListing, listingID.Int64())
	if err != nil {
		return wrapStoreError(errorSubjectListing, errorCodeDelete, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectListing, errorCodeDelete, travel.ErrListingNotFound)
	}
	return nil
}

func (q queries) CreateReview(ctx context.Context, review travel.Review) (travel.Review, error) {
	review.CreatedAt = utcOrNow(review.CreatedAt)
	err := q.db.QueryRow(ctx, sqlInsertReview,
		review.ListingID.Int64(),
		review.ReviewerID.String(),
		review.Rating,
		review.Comment,
		review.CreatedAt,
	).Scan(&review.ID)
	if err != nil {
		return travel.Review{}, wrapStoreError(errorSubjectReview, errorCodeCreate, err)
	}
	return review, nil
}

func (q queries) ListReviews(ctx context.Context, listingID travel.ListingID) ([]travel.Review, error) {
	rows, err := q.db.Query(ctx, sqlListReviews, listingID.Int64())
	if err != nil {
		return nil, wrapStoreError(errorSubjectReview, errorCodeList, err)
	}
	defer rows.Close()
	reviews := make([]travel.Review, 0, 16)
	for rows.Next() {
		var (
			review          travel.Review
			listingIDValue  int64
			reviewerIDValue string
		)
		if err := rows.Scan(&review.ID, &listingIDValue, &reviewerIDValue, &review.Rating, &review.Comment, &review.CreatedAt); err != nil {
			return nil, wrapStoreError(errorSubjectReview, errorCodeList, err)
		}
		if review.ListingID, err = travel.NewListingID(listingIDValue); err != nil {
			return nil, wrapStoreError(errorSubjectReview, errorCodeInvalid, err)
		}
		if review.ReviewerID, err = travel.NewUserID(reviewerIDValue); err != nil {
			return nil, wrapStoreError(errorSubjectReview, errorCodeInvalid, err)
		}
		review.CreatedAt = review.CreatedAt.UTC()
		reviews = append(reviews, review)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectReview, errorCodeList, err)
	}
	return reviews, nil
}

func (q queries) CreateBooking(ctx context.Context, booking travel.Booking) (travel.Booking, error) {
	row := q.db.QueryRow(ctx, sqlInsertBooking,
		booking.ListingID.Int64(),
		booking.GuestID.String(),
		travel.NormalizeStayDate(booking.CheckIn),
		travel.NormalizeStayDate(booking.CheckOut),
		booking.TotalPrice.Int64(),
		booking.Currency.String(),
		utcOrNow(booking.CreatedAt),
	)
	stored, err := scanBooking(row)
	if isUniqueViolation(err, constraintBookingStay) {
		return travel.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeDuplicate, travel.ErrDuplicateBooking)
	}
	if err != nil {
		return travel.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeCreate, err)
	}
	return stored, nil
}

func (q queries) GetBooking(ctx context.Context, bookingID travel.BookingID) (travel.Booking, error) {
	booking, err := scanBooking(q.db.QueryRow(ctx, sqlSelectBooking, bookingID.Int64()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return travel.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeGet, travel.ErrBookingNotFound)
		}
		return travel.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeGet, err)
	}
	return booking, nil
}

func (q queries) ListBookingsByGuest(ctx context.Context, guestID travel.UserID, limit int) ([]travel.Booking, error) {
	rows, err := q.db.Query(ctx, sqlListBookingsByGuest, guestID.String(), limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	defer rows.Close()
	bookings := make([]travel.Booking, 0, limit)
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	return bookings, nil
}

func (q queries) CreatePayment(ctx context.Context, payment travel.Payment) error {
	var bookingID *int64
	if payment.BookingID != nil {
		value := payment.BookingID.Int64()
		bookingID = &value
	}
	_, err := q.db.Exec(ctx, sqlInsertPayment,
		payment.TxRef.String(),
		bookingID,
		payment.Payer.UserID.String(),
		payment.Payer.Email,
		payment.Payer.FirstName,
		payment.Payer.LastName,
		payment.GatewayTxID,
		payment.Amount.Int64(),
		payment.Currency.String(),
		payment.Status.String(),
		payment.Description,
		payment.Metadata.String(),
		utcOrNow(payment.CreatedAt),
		utcOrNow(payment.UpdatedAt),
	)
	if isUniqueViolation(err, constraintPaymentPrimary) {
		return wrapStoreError(errorSubjectPayment, errorCodeDuplicate, travel.ErrDuplicateTxRef)
	}
	if err != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeCreate, err)
	}
	return nil
}

func (q queries) GetPayment(ctx context.Context, txRef travel.TxRef) (travel.Payment, error) {
	payment, err := scanPayment(q.db.QueryRow(ctx, sqlSelectPayment, txRef.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return travel.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeGet, travel.ErrPaymentNotFound)
		}
		return travel.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeGet, err)
	}
	return payment, nil
}

func (q queries) ListPaymentsByBooking(ctx context.Context, bookingID travel.BookingID) ([]travel.Payment, error) {
	return q.listPayments(ctx, sqlListPaymentsByBooking, bookingID.Int64())
}

func (q queries) ListPendingPayments(ctx context.Context, createdBefore time.Time, limit int) ([]travel.Payment, error) {
	return q.listPayments(ctx, sqlListPendingPayments, createdBefore.UTC(), limit)
}

func (q queries) listPayments(ctx context.Context, sql string, arguments ...any) ([]travel.Payment, error) {
	rows, err := q.db.Query(ctx, sql, arguments...)
	if err != nil {
		return nil, wrapStoreError(errorSubjectPayment, errorCodeList, err)
	}
	defer rows.Close()
	payments := make([]travel.Payment, 0, 16)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
		}
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectPayment, errorCodeList, err)
	}
	return payments, nil
}

func (q queries) TransitionPaymentStatus(ctx context.Context, transition travel.PaymentTransition) error {
	tag, err := q.db.Exec(ctx, sqlTransitionPayment,
		transition.TxRef.String(),
		transition.From.String(),
		transition.To.String(),
		transition.GatewayTxID,
		utcOrNow(transition.At),
	)
	if err != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeUpdateStatus, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := q.db.QueryRow(ctx, sqlPaymentExists, transition.TxRef.String()).Scan(&exists); err != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeUpdateStatus, err)
	}
	if !exists {
		return wrapStoreError(errorSubjectPayment, errorCodeUpdateStatus, travel.ErrPaymentNotFound)
	}
	return wrapStoreError(errorSubjectPayment, errorCodeUpdateStatus, travel.ErrPaymentFinalized)
}

func scanListing(row pgx.Row) (travel.Listing, error) {
	var (
		idValue    int64
		hostValue  string
		priceValue int64
		listing    travel.Listing
	)
	if err := row.Scan(
		&idValue,
		&listing.Slug,
		&listing.Title,
		&listing.Description,
		&priceValue,
		&listing.Location,
		&hostValue,
		&listing.CreatedAt,
		&listing.UpdatedAt,
	); err != nil {
		return travel.Listing{}, err
	}
	var err error
	if listing.ID, err = travel.NewListingID(idValue); err != nil {
		return travel.Listing{}, err
	}
	if listing.HostID, err = travel.NewUserID(hostValue); err != nil {
		return travel.Listing{}, err
	}
	if listing.PricePerNight, err = travel.NewAmountCents(priceValue); err != nil {
		return travel.Listing{}, err
	}
	listing.CreatedAt = listing.CreatedAt.UTC()
	listing.UpdatedAt = listing.UpdatedAt.UTC()
	return listing, nil
}

func scanBooking(row pgx.Row) (travel.Booking, error) {
	var (
		idValue       int64
		listingValue  int64
		guestValue    string
		totalValue    int64
		currencyValue string
		booking       travel.Booking
	)
	if err := row.Scan(
		&idValue,
		&listingValue,
		&guestValue,
		&booking.CheckIn,
		&booking.CheckOut,
		&totalValue,
		&currencyValue,
		&booking.CreatedAt,
	); err != nil {
		return travel.Booking{}, err
	}
	var err error
	if booking.ID, err = travel.NewBookingID(idValue); err != nil {
		return travel.Booking{}, err
	}
	if booking.ListingID, err = travel.NewListingID(listingValue); err != nil {
		return travel.Booking{}, err
	}
	if booking.GuestID, err = travel.NewUserID(guestValue); err != nil {
		return travel.Booking{}, err
	}
	if booking.TotalPrice, err = travel.NewAmountCents(totalValue); err != nil {
		return travel.Booking{}, err
	}
	if booking.Currency, err = travel.NewCurrency(currencyValue); err != nil {
		return travel.Booking{}, err
	}
	booking.CheckIn = travel.NormalizeStayDate(booking.CheckIn)
	booking.CheckOut = travel.NormalizeStayDate(booking.CheckOut)
	booking.CreatedAt = booking.CreatedAt.UTC()
	return booking, nil
}

func scanPayment(row pgx.Row) (travel.Payment, error) {
	var (
		txRefValue    string
		bookingValue  *int64
		payerIDValue  string
		amountValue   int64
		currencyValue string
		statusValue   string
		metadataValue string
		payment       travel.Payment
	)
	if err := row.Scan(
		&txRefValue,
		&bookingValue,
		&payerIDValue,
		&payment.Payer.Email,
		&payment.Payer.FirstName,
		&payment.Payer.LastName,
		&payment.GatewayTxID,
		&amountValue,
		&currencyValue,
		&statusValue,
		&payment.Description,
		&metadataValue,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	); err != nil {
		return travel.Payment{}, err
	}
	var err error
	if payment.TxRef, err = travel.NewTxRef(txRefValue); err != nil {
		return travel.Payment{}, err
	}
	if bookingValue != nil {
		bookingID, err := travel.NewBookingID(*bookingValue)
		if err != nil {
			return travel.Payment{}, err
		}
		payment.BookingID = &bookingID
	}
	if payerIDValue != "" {
		if payment.Payer.UserID, err = travel.NewUserID(payerIDValue); err != nil {
			return travel.Payment{}, err
		}
	}
	if payment.Amount, err = travel.NewAmountCents(amountValue); err != nil {
		return travel.Payment{}, err
	}
	if payment.Currency, err = travel.NewCurrency(currencyValue); err != nil {
		return travel.Payment{}, err
	}
	if payment.Status, err = travel.ParsePaymentStatus(statusValue); err != nil {
		return travel.Payment{}, err
	}
	if payment.Metadata, err = travel.NewMetadataJSON(metadataValue); err != nil {
		return travel.Payment{}, err
	}
	payment.CreatedAt = payment.CreatedAt.UTC()
	payment.UpdatedAt = payment.UpdatedAt.UTC()
	return payment, nil
}

func utcOrNow(value time.Time) time.Time {
	if value.IsZero() {
		return time.Now().UTC()
	}
	return value.UTC()
}

func wrapStoreError(subject string, code string, err error) error {
	return travel.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	return false
}
