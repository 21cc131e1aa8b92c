package gormstore

import (
	"time"

	"gorm.io/datatypes"
)

// Listing mirrors the listings table.
type Listing struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement"`
	Slug               string    `gorm:"size:255;not null;uniqueIndex:uniq_listings_slug"`
	Title              string    `gorm:"size:255;not null"`
	Description        string    `gorm:"type:text;not null;default:''"`
	PricePerNightCents int64     `gorm:"not null"`
	Location           string    `gorm:"size:255;not null;default:''"`
	HostID             string    `gorm:"not null;index:idx_listings_host"`
	CreatedAt          time.Time `gorm:"not null;index:idx_listings_created"`
	UpdatedAt          time.Time `gorm:"not null"`
}

func (Listing) TableName() string { return "listings" }

// Review mirrors the reviews table.
type Review struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	ListingID  int64     `gorm:"not null;index:idx_reviews_listing"`
	ReviewerID string    `gorm:"not null"`
	Rating     int       `gorm:"not null;check:rating >= 1 AND rating <= 5"`
	Comment    string    `gorm:"type:text;not null;default:''"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (Review) TableName() string { return "reviews" }

// Booking mirrors the bookings table. A stay is unique per listing, guest and dates.
type Booking struct {
	ID              int64     `gorm:"primaryKey;autoIncrement"`
	ListingID       int64     `gorm:"not null;uniqueIndex:uniq_bookings_stay,priority:1"`
	GuestID         string    `gorm:"not null;uniqueIndex:uniq_bookings_stay,priority:2;index:idx_bookings_guest"`
	CheckIn         time.Time `gorm:"not null;uniqueIndex:uniq_bookings_stay,priority:3"`
	CheckOut        time.Time `gorm:"not null;uniqueIndex:uniq_bookings_stay,priority:4"`
	TotalPriceCents int64     `gorm:"not null"`
	Currency        string    `gorm:"size:3;not null"`
	CreatedAt       time.Time `gorm:"not null"`
}

func (Booking) TableName() string { return "bookings" }

// Payment mirrors the payments table.
type Payment struct {
	TxRef          string         `gorm:"size:100;primaryKey"`
	BookingID      *int64         `gorm:"index:idx_payments_booking"`
	PayerUserID    string         `gorm:"not null;default:''"`
	PayerEmail     string         `gorm:"not null"`
	PayerFirstName string         `gorm:"not null;default:''"`
	PayerLastName  string         `gorm:"not null;default:''"`
	GatewayTxID    string         `gorm:"size:100;not null;default:''"`
	AmountCents    int64          `gorm:"not null"`
	Currency       string         `gorm:"size:3;not null"`
	Status         string         `gorm:"size:10;not null;index:idx_payments_status_created,priority:1"`
	Description    string         `gorm:"type:text;not null;default:''"`
	Metadata       datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt      time.Time      `gorm:"not null;index:idx_payments_status_created,priority:2"`
	UpdatedAt      time.Time      `gorm:"not null"`
	Booking        *Booking       `gorm:"foreignKey:BookingID;constraint:OnDelete:RESTRICT"`
}

func (Payment) TableName() string { return "payments" }

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{&Listing{}, &Review{}, &Booking{}, &Payment{}}
}
