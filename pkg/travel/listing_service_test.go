package travel

import (
	"context"
	"errors"
	"testing"
)

func mustNewListingService(test *testing.T, store Store, options ...Option) *ListingService {
	test.Helper()
	options = append([]Option{WithSlugSuffixGenerator(func() string { return "a1b2c3d4" })}, options...)
	service, err := NewListingService(store, options...)
	if err != nil {
		test.Fatalf("listing service init failed: %v", err)
	}
	return service
}

func TestListingCreateDerivesSlug(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	logger := &recorderLogger{}
	service := mustNewListingService(test, store, WithOperationLogger(logger))
	host := mustUserID(test, "host-1")

	listing, err := service.Create(context.Background(), host, ListingInput{
		Title:         "  Cozy Loft in Addis Ababa ",
		PricePerNight: 7500,
		Location:      "Addis Ababa",
	})
	if err != nil {
		test.Fatalf("create listing: %v", err)
	}
	if listing.Slug != "cozy-loft-in-addis-ababa-a1b2c3d4" {
		test.Fatalf("unexpected slug %q", listing.Slug)
	}
	if listing.Title != "Cozy Loft in Addis Ababa" || listing.HostID != host {
		test.Fatalf("unexpected listing %+v", listing)
	}
	fetched, err := service.Get(context.Background(), listing.Slug)
	if err != nil || fetched.ID != listing.ID {
		test.Fatalf("get listing: %+v %v", fetched, err)
	}
	if entries := logger.operations(operationCreateListing); len(entries) != 1 || entries[0].ListingID != listing.ID {
		test.Fatalf("unexpected log entries %+v", entries)
	}
}

func TestListingCreateValidation(test *testing.T) {
	test.Parallel()
	cases := []struct {
		name      string
		host      UserID
		input     ListingInput
		wantCause error
	}{
		{name: "missing host", input: ListingInput{Title: "Cabin"}, wantCause: ErrInvalidUserID},
		{name: "missing title", host: UserID{value: "host"}, input: ListingInput{Title: "  "}, wantCause: ErrInvalidTitle},
		{name: "negative price", host: UserID{value: "host"}, input: ListingInput{Title: "Cabin", PricePerNight: -1}, wantCause: ErrInvalidAmountCents},
	}
	for _, testCase := range cases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			service := mustNewListingService(test, newMemoryStore(test))
			_, err := service.Create(context.Background(), testCase.host, testCase.input)
			if !errors.Is(err, ErrValidation) || !errors.Is(err, testCase.wantCause) {
				test.Fatalf("expected validation error wrapping %v, got %v", testCase.wantCause, err)
			}
		})
	}
}

func TestListingUpdateAndDeleteRequireHost(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	service := mustNewListingService(test, store)
	host := mustUserID(test, "host-1")
	other := mustUserID(test, "host-2")
	listing, err := service.Create(context.Background(), host, ListingInput{Title: "Desert Camp", PricePerNight: 3000})
	if err != nil {
		test.Fatalf("create listing: %v", err)
	}

	if _, err := service.Update(context.Background(), other, listing.Slug, ListingInput{Title: "Hijacked"}); !errors.Is(err, ErrForbidden) {
		test.Fatalf("expected ErrForbidden on update, got %v", err)
	}
	if err := service.Delete(context.Background(), other, listing.Slug); !errors.Is(err, ErrForbidden) {
		test.Fatalf("expected ErrForbidden on delete, got %v", err)
	}

	updated, err := service.Update(context.Background(), host, listing.Slug, ListingInput{Title: "Desert Camp Deluxe", PricePerNight: 4500})
	if err != nil {
		test.Fatalf("update listing: %v", err)
	}
	if updated.Slug != listing.Slug || updated.Title != "Desert Camp Deluxe" || updated.PricePerNight != 4500 {
		test.Fatalf("unexpected update result %+v", updated)
	}

	if err := service.Delete(context.Background(), host, listing.Slug); err != nil {
		test.Fatalf("delete listing: %v", err)
	}
	if _, err := service.Get(context.Background(), listing.Slug); !errors.Is(err, ErrListingNotFound) {
		test.Fatalf("expected ErrListingNotFound after delete, got %v", err)
	}
}

func TestListingReviews(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	service := mustNewListingService(test, store)
	listing, err := service.Create(context.Background(), mustUserID(test, "host-1"), ListingInput{Title: "Mountain Lodge", PricePerNight: 9000})
	if err != nil {
		test.Fatalf("create listing: %v", err)
	}
	reviewer := mustUserID(test, "guest-1")

	for _, rating := range []int{0, 6} {
		if _, err := service.AddReview(context.Background(), listing.Slug, ReviewInput{ReviewerID: reviewer, Rating: rating}); !errors.Is(err, ErrInvalidRating) {
			test.Fatalf("expected ErrInvalidRating for %d, got %v", rating, err)
		}
	}
	if _, err := service.AddReview(context.Background(), "missing", ReviewInput{ReviewerID: reviewer, Rating: 4}); !errors.Is(err, ErrListingNotFound) {
		test.Fatalf("expected ErrListingNotFound, got %v", err)
	}
	review, err := service.AddReview(context.Background(), listing.Slug, ReviewInput{ReviewerID: reviewer, Rating: 5, Comment: " great view "})
	if err != nil {
		test.Fatalf("add review: %v", err)
	}
	if review.Comment != "great view" || review.ListingID != listing.ID {
		test.Fatalf("unexpected review %+v", review)
	}
	reviews, err := service.Reviews(context.Background(), listing.Slug)
	if err != nil || len(reviews) != 1 {
		test.Fatalf("expected one review, got %+v %v", reviews, err)
	}
}

func TestListingListClampsPaging(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	host := mustUserID(test, "host-1")
	for index, title := range []string{"One", "Two", "Three"} {
		service := mustNewListingService(test, store, WithSlugSuffixGenerator(func() string { return string(rune('a' + index)) }))
		if _, err := service.Create(context.Background(), host, ListingInput{Title: title}); err != nil {
			test.Fatalf("create %s: %v", title, err)
		}
	}
	service := mustNewListingService(test, store)
	listings, err := service.List(context.Background(), 2, -5)
	if err != nil {
		test.Fatalf("list: %v", err)
	}
	if len(listings) != 2 || listings[0].Title != "Three" {
		test.Fatalf("unexpected listings %+v", listings)
	}
}
