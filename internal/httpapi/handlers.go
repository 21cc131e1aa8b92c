package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarkoPoloResearchLab/travelbook/pkg/travel"
	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
)

func (handler *httpHandler) handleListListings(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	listings, err := handler.services.Listings.List(requestCtx, queryInt(ctx, "limit"), queryInt(ctx, "offset"))
	if err != nil {
		handler.respondError(ctx, "list listings", err)
		return
	}
	payloads := make([]listingPayload, 0, len(listings))
	for _, listing := range listings {
		payloads = append(payloads, newListingPayload(listing))
	}
	ctx.JSON(http.StatusOK, gin.H{"listings": payloads})
}

func (handler *httpHandler) handleGetListing(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	listing, err := handler.services.Listings.Get(requestCtx, ctx.Param("slug"))
	if err != nil {
		handler.respondError(ctx, "get listing", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"listing": newListingPayload(listing)})
}

func (handler *httpHandler) handleCreateListing(ctx *gin.Context) {
	hostID, _, ok := sessionUser(ctx)
	if !ok {
		return
	}
	input, ok := bindListingInput(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	listing, err := handler.services.Listings.Create(requestCtx, hostID, input)
	if err != nil {
		handler.respondError(ctx, "create listing", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"listing": newListingPayload(listing)})
}

func (handler *httpHandler) handleUpdateListing(ctx *gin.Context) {
	hostID, _, ok := sessionUser(ctx)
	if !ok {
		return
	}
	input, ok := bindListingInput(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	listing, err := handler.services.Listings.Update(requestCtx, hostID, ctx.Param("slug"), input)
	if err != nil {
		handler.respondError(ctx, "update listing", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"listing": newListingPayload(listing)})
}

func (handler *httpHandler) handleDeleteListing(ctx *gin.Context) {
	hostID, _, ok := sessionUser(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.services.Listings.Delete(requestCtx, hostID, ctx.Param("slug")); err != nil {
		handler.respondError(ctx, "delete listing", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleListReviews(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	reviews, err := handler.services.Listings.Reviews(requestCtx, ctx.Param("slug"))
	if err != nil {
		handler.respondError(ctx, "list reviews", err)
		return
	}
	payloads := make([]reviewPayload, 0, len(reviews))
	for _, review := range reviews {
		payloads = append(payloads, newReviewPayload(review))
	}
	ctx.JSON(http.StatusOK, gin.H{"reviews": payloads})
}

func (handler *httpHandler) handleCreateReview(ctx *gin.Context) {
	reviewerID, _, ok := sessionUser(ctx)
	if !ok {
		return
	}
	var request reviewRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		invalidPayload(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	review, err := handler.services.Listings.AddReview(requestCtx, ctx.Param("slug"), travel.ReviewInput{
		ReviewerID: reviewerID,
		Rating:     request.Rating,
		Comment:    request.Comment,
	})
	if err != nil {
		handler.respondError(ctx, "create review", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"review": newReviewPayload(review)})
}

func (handler *httpHandler) handleCreateBooking(ctx *gin.Context) {
	guestID, claims, ok := sessionUser(ctx)
	if !ok {
		return
	}
	var request bookingRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		invalidPayload(ctx, err)
		return
	}
	domainRequest, err := request.toDomain(guestPayer(guestID, claims, request.FirstName, request.LastName))
	if err != nil {
		handler.respondError(ctx, "create booking", err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.services.Bookings.CreateBooking(requestCtx, domainRequest)
	if err != nil {
		status, code := classifyError(err)
		if result.Booking.ID.Int64() > 0 {
			// The booking stays persisted; the client may retry payment for it.
			body := errorResponse(code, err.Error())
			body["booking"] = newBookingPayload(result.Booking)
			ctx.JSON(status, body)
			return
		}
		handler.respondError(ctx, "create booking", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{
		"booking": newBookingPayload(result.Booking),
		"payment": newInitiatePayload(result.Payment),
	})
}

func (handler *httpHandler) handleListBookings(ctx *gin.Context) {
	guestID, _, ok := sessionUser(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	bookings, err := handler.services.Bookings.ListBookings(requestCtx, guestID, queryInt(ctx, "limit"))
	if err != nil {
		handler.respondError(ctx, "list bookings", err)
		return
	}
	payloads := make([]bookingPayload, 0, len(bookings))
	for _, booking := range bookings {
		payloads = append(payloads, newBookingPayload(booking))
	}
	ctx.JSON(http.StatusOK, gin.H{"bookings": payloads})
}

func (handler *httpHandler) handleGetBooking(ctx *gin.Context) {
	guestID, _, ok := sessionUser(ctx)
	if !ok {
		return
	}
	bookingID, err := bookingIDParam(ctx)
	if err != nil {
		handler.respondError(ctx, "get booking", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	details, err := handler.services.Bookings.GetBooking(requestCtx, bookingID, guestID)
	if err != nil {
		handler.respondError(ctx, "get booking", err)
		return
	}
	payments := make([]paymentPayload, 0, len(details.Payments))
	for _, payment := range details.Payments {
		payments = append(payments, newPaymentPayload(payment))
	}
	body := gin.H{
		"booking":  newBookingPayload(details.Booking),
		"payments": payments,
	}
	if details.Listing.ID.Int64() > 0 {
		body["listing"] = newListingPayload(details.Listing)
	}
	ctx.JSON(http.StatusOK, body)
}

func (handler *httpHandler) handleRetryPayment(ctx *gin.Context) {
	guestID, claims, ok := sessionUser(ctx)
	if !ok {
		return
	}
	bookingID, err := bookingIDParam(ctx)
	if err != nil {
		handler.respondError(ctx, "retry payment", err)
		return
	}
	var request struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := ctx.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		invalidPayload(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.services.Bookings.RetryPayment(requestCtx, bookingID, guestPayer(guestID, claims, request.FirstName, request.LastName))
	if err != nil {
		handler.respondError(ctx, "retry payment", err)
		return
	}
	ctx.JSON(http.StatusCreated, newInitiatePayload(result))
}

func (handler *httpHandler) handleInitiatePayment(ctx *gin.Context) {
	userID, claims, ok := sessionUser(ctx)
	if !ok {
		return
	}
	var request initiateRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		invalidPayload(ctx, err)
		return
	}
	amount, err := request.Amount.cents()
	if err != nil {
		handler.respondError(ctx, "initiate payment", err)
		return
	}
	currency, err := travel.NewCurrency(request.Currency)
	if err != nil {
		handler.respondError(ctx, "initiate payment", err)
		return
	}
	payer := guestPayer(userID, claims, request.FirstName, request.LastName)
	if email := strings.TrimSpace(request.Email); email != "" {
		payer.Email = email
	}
	domainRequest := travel.InitiateRequest{
		Amount:      amount,
		Currency:    currency,
		Payer:       payer,
		Description: request.Description,
		Metadata:    request.Metadata,
	}
	if request.BookingID != nil {
		bookingID, err := travel.NewBookingID(*request.BookingID)
		if err != nil {
			handler.respondError(ctx, "initiate payment", err)
			return
		}
		domainRequest.BookingID = &bookingID
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.services.Payments.Initiate(requestCtx, domainRequest)
	if err != nil {
		handler.respondError(ctx, "initiate payment", err)
		return
	}
	ctx.JSON(http.StatusCreated, newInitiatePayload(result))
}

// handlePaymentCallback reconciles a payment. The gateway redirects with ?tx_ref= (or trx_ref)
// and its webhook posts a JSON body carrying the same field.
func (handler *httpHandler) handlePaymentCallback(ctx *gin.Context) {
	rawRef := firstNonEmpty(ctx.Query("tx_ref"), ctx.Query("trx_ref"))
	if rawRef == "" && ctx.Request.Method == http.MethodPost {
		body, err := io.ReadAll(io.LimitReader(ctx.Request.Body, 64<<10))
		if err != nil || (len(body) > 0 && !gjson.ValidBytes(body)) {
			ctx.JSON(http.StatusBadRequest, errorResponse("validation_error", "expected JSON body"))
			return
		}
		rawRef = firstNonEmpty(gjson.GetBytes(body, "tx_ref").String(), gjson.GetBytes(body, "trx_ref").String())
	}
	txRef, err := travel.NewTxRef(rawRef)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("validation_error", "tx_ref is required"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.services.Payments.Reconcile(requestCtx, txRef)
	if err != nil {
		handler.respondError(ctx, "reconcile payment", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"tx_ref":  result.TxRef.String(),
		"status":  result.Status.String(),
		"changed": result.Changed,
	})
}

func bindListingInput(ctx *gin.Context) (travel.ListingInput, bool) {
	var request listingRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		invalidPayload(ctx, err)
		return travel.ListingInput{}, false
	}
	price, err := request.PricePerNight.cents()
	if err != nil {
		invalidPayload(ctx, err)
		return travel.ListingInput{}, false
	}
	return travel.ListingInput{
		Title:         request.Title,
		Description:   request.Description,
		PricePerNight: price,
		Location:      request.Location,
	}, true
}

func (request bookingRequest) toDomain(guest travel.Payer) (travel.CreateBookingRequest, error) {
	listingID, err := travel.NewListingID(request.ListingID)
	if err != nil {
		return travel.CreateBookingRequest{}, err
	}
	checkIn, err := travel.ParseStayDate(request.CheckIn)
	if err != nil {
		return travel.CreateBookingRequest{}, err
	}
	checkOut, err := travel.ParseStayDate(request.CheckOut)
	if err != nil {
		return travel.CreateBookingRequest{}, err
	}
	currency, err := travel.NewCurrency(request.Currency)
	if err != nil {
		return travel.CreateBookingRequest{}, err
	}
	domainRequest := travel.CreateBookingRequest{
		ListingID: listingID,
		Guest:     guest,
		CheckIn:   checkIn,
		CheckOut:  checkOut,
		Currency:  currency,
	}
	if request.TotalPrice != "" {
		total, err := request.TotalPrice.cents()
		if err != nil {
			return travel.CreateBookingRequest{}, err
		}
		domainRequest.TotalPrice = &total
	}
	return domainRequest, nil
}

// guestPayer builds payer fields from the session, letting explicit names win.
func guestPayer(userID travel.UserID, claims *sessionvalidator.Claims, firstName string, lastName string) travel.Payer {
	payer := travel.Payer{UserID: userID}
	if claims != nil {
		payer.Email = claims.GetUserEmail()
		nameParts := strings.Fields(claims.GetUserDisplayName())
		if len(nameParts) > 0 {
			payer.FirstName = nameParts[0]
			payer.LastName = strings.Join(nameParts[1:], " ")
		}
	}
	if trimmed := strings.TrimSpace(firstName); trimmed != "" {
		payer.FirstName = trimmed
	}
	if trimmed := strings.TrimSpace(lastName); trimmed != "" {
		payer.LastName = trimmed
	}
	return payer
}

func bookingIDParam(ctx *gin.Context) (travel.BookingID, error) {
	raw := ctx.Param("id")
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a booking id", travel.ErrInvalidBookingID, raw)
	}
	return travel.NewBookingID(value)
}

func queryInt(ctx *gin.Context, name string) int {
	value, err := strconv.Atoi(ctx.Query(name))
	if err != nil {
		return 0
	}
	return value
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
