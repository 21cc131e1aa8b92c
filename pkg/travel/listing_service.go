package travel

import (
	"context"
	"fmt"
	"strings"

	"github.com/gosimple/slug"
)

// ListingInput carries the host-editable listing fields.
type ListingInput struct {
	Title         string
	Description   string
	PricePerNight AmountCents
	Location      string
}

// ReviewInput carries a guest review.
type ReviewInput struct {
	ReviewerID UserID
	Rating     int
	Comment    string
}

// ListingService manages the listing catalogue and its reviews.
type ListingService struct {
	store Store
	serviceOptions
}

// NewListingService wires a ListingService.
func NewListingService(store Store, options ...Option) (*ListingService, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	return &ListingService{store: store, serviceOptions: applyOptions(options)}, nil
}

// Create stores a listing owned by hostID under a slug derived from its title.
func (service *ListingService) Create(ctx context.Context, hostID UserID, input ListingInput) (Listing, error) {
	listing, err := service.create(ctx, hostID, input)
	service.sink.log(ctx, OperationLog{
		Operation: operationCreateListing,
		UserID:    hostID,
		ListingID: listing.ID,
		Amount:    input.PricePerNight,
		Error:     err,
	})
	return listing, err
}

func (service *ListingService) create(ctx context.Context, hostID UserID, input ListingInput) (Listing, error) {
	if hostID.IsZero() {
		return Listing{}, invalid(ErrInvalidUserID, "host is required")
	}
	normalized, err := normalizeListingInput(input)
	if err != nil {
		return Listing{}, err
	}
	nowUTC := service.nowFn()
	return service.store.CreateListing(ctx, Listing{
		Slug:          listingSlug(normalized.Title, service.newSuffix()),
		Title:         normalized.Title,
		Description:   normalized.Description,
		PricePerNight: normalized.PricePerNight,
		Location:      normalized.Location,
		HostID:        hostID,
		CreatedAt:     nowUTC,
		UpdatedAt:     nowUTC,
	})
}

// Get returns the listing stored under slug.
func (service *ListingService) Get(ctx context.Context, slugValue string) (Listing, error) {
	trimmed := strings.TrimSpace(slugValue)
	if trimmed == "" {
		return Listing{}, fmt.Errorf("%w: empty slug", ErrListingNotFound)
	}
	return service.store.GetListingBySlug(ctx, trimmed)
}

// List pages through listings, newest first.
func (service *ListingService) List(ctx context.Context, limit int, offset int) ([]Listing, error) {
	if offset < 0 {
		offset = 0
	}
	return service.store.ListListings(ctx, clampLimit(limit), offset)
}

// Update replaces the editable fields of a listing owned by hostID. The slug is kept.
func (service *ListingService) Update(ctx context.Context, hostID UserID, slugValue string, input ListingInput) (Listing, error) {
	var updated Listing
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		listing, err := service.ownedListing(ctx, transactionStore, hostID, slugValue)
		if err != nil {
			return err
		}
		normalized, err := normalizeListingInput(input)
		if err != nil {
			return err
		}
		listing.Title = normalized.Title
		listing.Description = normalized.Description
		listing.PricePerNight = normalized.PricePerNight
		listing.Location = normalized.Location
		listing.UpdatedAt = service.nowFn()
		if err := transactionStore.UpdateListing(ctx, listing); err != nil {
			return err
		}
		updated = listing
		return nil
	})
	service.sink.log(ctx, OperationLog{
		Operation: operationUpdateListing,
		UserID:    hostID,
		ListingID: updated.ID,
		Error:     err,
	})
	if err != nil {
		return Listing{}, err
	}
	return updated, nil
}

// Delete removes a listing owned by hostID.
func (service *ListingService) Delete(ctx context.Context, hostID UserID, slugValue string) error {
	var listingID ListingID
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		listing, err := service.ownedListing(ctx, transactionStore, hostID, slugValue)
		if err != nil {
			return err
		}
		listingID = listing.ID
		return transactionStore.DeleteListing(ctx, listing.ID)
	})
	service.sink.log(ctx, OperationLog{
		Operation: operationDeleteListing,
		UserID:    hostID,
		ListingID: listingID,
		Error:     err,
	})
	return err
}

// AddReview records a rating for the listing stored under slug.
func (service *ListingService) AddReview(ctx context.Context, slugValue string, input ReviewInput) (Review, error) {
	var review Review
	err := func() error {
		if input.ReviewerID.IsZero() {
			return invalid(ErrInvalidUserID, "reviewer is required")
		}
		if input.Rating < minRating || input.Rating > maxRating {
			return invalid(ErrInvalidRating, fmt.Sprintf("rating must be between %d and %d", minRating, maxRating))
		}
		listing, err := service.Get(ctx, slugValue)
		if err != nil {
			return err
		}
		review, err = service.store.CreateReview(ctx, Review{
			ListingID:  listing.ID,
			ReviewerID: input.ReviewerID,
			Rating:     input.Rating,
			Comment:    strings.TrimSpace(input.Comment),
			CreatedAt:  service.nowFn(),
		})
		return err
	}()
	service.sink.log(ctx, OperationLog{
		Operation: operationCreateReview,
		UserID:    input.ReviewerID,
		ListingID: review.ListingID,
		Error:     err,
	})
	if err != nil {
		return Review{}, err
	}
	return review, nil
}

// Reviews lists the reviews of the listing stored under slug.
func (service *ListingService) Reviews(ctx context.Context, slugValue string) ([]Review, error) {
	listing, err := service.Get(ctx, slugValue)
	if err != nil {
		return nil, err
	}
	return service.store.ListReviews(ctx, listing.ID)
}

func (service *ListingService) ownedListing(ctx context.Context, store Store, hostID UserID, slugValue string) (Listing, error) {
	if hostID.IsZero() {
		return Listing{}, invalid(ErrInvalidUserID, "host is required")
	}
	listing, err := store.GetListingBySlug(ctx, strings.TrimSpace(slugValue))
	if err != nil {
		return Listing{}, err
	}
	if listing.HostID != hostID {
		return Listing{}, fmt.Errorf("%w: listing %s belongs to another host", ErrForbidden, listing.Slug)
	}
	return listing, nil
}

func normalizeListingInput(input ListingInput) (ListingInput, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	input.Location = strings.TrimSpace(input.Location)
	if input.Title == "" {
		return ListingInput{}, invalid(ErrInvalidTitle, "title is required")
	}
	if input.PricePerNight < 0 {
		return ListingInput{}, invalid(ErrInvalidAmountCents, "price per night must not be negative")
	}
	return input, nil
}

func listingSlug(title string, suffix string) string {
	base := slug.Make(title)
	if base == "" {
		base = "listing"
	}
	if suffix == "" {
		return base
	}
	return base + "-" + suffix
}
