package travel

// DefaultCurrency is used when a request omits the currency.
const DefaultCurrency = "ETB"

const (
	operationInitiate      = "initiate"
	operationReconcile     = "reconcile"
	operationSweep         = "sweep"
	operationCreateBooking = "create_booking"
	operationRetryPayment  = "retry_payment"
	operationNotify        = "notify"
	operationCreateListing = "create_listing"
	operationUpdateListing = "update_listing"
	operationDeleteListing = "delete_listing"
	operationCreateReview  = "create_review"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	maxTxRefLength    = 100
	maxTxRefAttempts  = 3
	minRating         = 1
	maxRating         = 5
	stayDateLayout    = "2006-01-02"
	defaultListLimit  = 50
	maxListLimit      = 200
	defaultSweepLimit = 100
)
