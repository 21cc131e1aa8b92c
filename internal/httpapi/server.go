package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/travelbook/pkg/travel"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

const claimsContextKey = "auth_claims"

// ListingAPI is satisfied by *travel.ListingService.
type ListingAPI interface {
	Create(ctx context.Context, hostID travel.UserID, input travel.ListingInput) (travel.Listing, error)
	Get(ctx context.Context, slug string) (travel.Listing, error)
	List(ctx context.Context, limit int, offset int) ([]travel.Listing, error)
	Update(ctx context.Context, hostID travel.UserID, slug string, input travel.ListingInput) (travel.Listing, error)
	Delete(ctx context.Context, hostID travel.UserID, slug string) error
	AddReview(ctx context.Context, slug string, input travel.ReviewInput) (travel.Review, error)
	Reviews(ctx context.Context, slug string) ([]travel.Review, error)
}

// BookingAPI is satisfied by *travel.BookingService.
type BookingAPI interface {
	CreateBooking(ctx context.Context, request travel.CreateBookingRequest) (travel.CreateBookingResult, error)
	RetryPayment(ctx context.Context, bookingID travel.BookingID, guest travel.Payer) (travel.InitiateResult, error)
	GetBooking(ctx context.Context, bookingID travel.BookingID, guestID travel.UserID) (travel.BookingDetails, error)
	ListBookings(ctx context.Context, guestID travel.UserID, limit int) ([]travel.Booking, error)
}

// PaymentAPI is satisfied by *travel.PaymentService.
type PaymentAPI interface {
	Initiate(ctx context.Context, request travel.InitiateRequest) (travel.InitiateResult, error)
	Reconcile(ctx context.Context, txRef travel.TxRef) (travel.ReconcileResult, error)
}

// Services bundles the domain services behind the routes.
type Services struct {
	Listings ListingAPI
	Bookings BookingAPI
	Payments PaymentAPI
}

// Run serves the API until ctx is cancelled.
func Run(ctx context.Context, cfg Config, services Services, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sessionValidator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		return fmt.Errorf("session validator: %w", err)
	}

	router := NewRouter(cfg, services, sessionValidator, logger)
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("travelbook api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter wires every route. Listing reads and the payment callback are public.
func NewRouter(cfg Config, services Services, validator *sessionvalidator.Validator, logger *zap.Logger) *gin.Engine {
	registerValidators()
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handler := &httpHandler{
		logger:   logger,
		services: services,
		cfg:      cfg,
	}

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/listings/", handler.handleListListings)
	api.GET("/listings/:slug", handler.handleGetListing)
	api.GET("/listings/:slug/reviews", handler.handleListReviews)
	api.GET("/payment/callback/", handler.handlePaymentCallback)
	api.POST("/payment/callback/", handler.handlePaymentCallback)

	authed := api.Group("")
	authed.Use(validator.GinMiddleware(claimsContextKey))
	authed.POST("/listings/", handler.handleCreateListing)
	authed.PUT("/listings/:slug", handler.handleUpdateListing)
	authed.DELETE("/listings/:slug", handler.handleDeleteListing)
	authed.POST("/listings/:slug/reviews", handler.handleCreateReview)
	authed.POST("/bookings/", handler.handleCreateBooking)
	authed.GET("/bookings/", handler.handleListBookings)
	authed.GET("/bookings/:id", handler.handleGetBooking)
	authed.POST("/bookings/:id/payment", handler.handleRetryPayment)
	authed.POST("/payment/initiate/", handler.handleInitiatePayment)

	return router
}

type httpHandler struct {
	logger   *zap.Logger
	services Services
	cfg      Config
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}

// sessionUser resolves the caller or writes a 401.
func sessionUser(ctx *gin.Context) (travel.UserID, *sessionvalidator.Claims, bool) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return travel.UserID{}, nil, false
	}
	userID, err := travel.NewUserID(claims.GetUserID())
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "session has no user"))
		return travel.UserID{}, nil, false
	}
	return userID, claims, true
}
