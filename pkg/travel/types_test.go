package travel

import (
	"errors"
	"testing"
	"time"
)

func TestParseAmountCents(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		input   string
		want    AmountCents
		wantErr error
	}{
		{name: "whole", input: "100", want: 10000},
		{name: "two decimals", input: "100.00", want: 10000},
		{name: "one decimal", input: "100.5", want: 10050},
		{name: "padded", input: " 0.07 ", want: 7},
		{name: "empty", input: "", wantErr: ErrInvalidAmountCents},
		{name: "negative", input: "-1", wantErr: ErrInvalidAmountCents},
		{name: "three decimals", input: "1.234", wantErr: ErrInvalidAmountCents},
		{name: "signed fraction", input: "1.-5", wantErr: ErrInvalidAmountCents},
		{name: "letters", input: "ten", wantErr: ErrInvalidAmountCents},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			result, err := ParseAmountCents(tc.input)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected error %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, result)
			}
		})
	}
}

func TestAmountCentsString(t *testing.T) {
	t.Parallel()
	if got := AmountCents(10050).String(); got != "100.50" {
		t.Fatalf("expected 100.50, got %s", got)
	}
	if got := AmountCents(7).String(); got != "0.07" {
		t.Fatalf("expected 0.07, got %s", got)
	}
}

func TestNewCurrency(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		input   string
		wantVal string
		wantErr error
	}{
		{name: "default", input: "", wantVal: "ETB"},
		{name: "lower case", input: " usd ", wantVal: "USD"},
		{name: "too long", input: "EURO", wantErr: ErrInvalidCurrency},
		{name: "digits", input: "E1B", wantErr: ErrInvalidCurrency},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			result, err := NewCurrency(tc.input)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected error %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.String() != tc.wantVal {
				t.Fatalf("expected %q, got %q", tc.wantVal, result.String())
			}
		})
	}
}

func TestNewTxRef(t *testing.T) {
	t.Parallel()
	if _, err := NewTxRef("  "); !errors.Is(err, ErrInvalidTxRef) {
		t.Fatalf("expected ErrInvalidTxRef, got %v", err)
	}
	long := make([]byte, maxTxRefLength+1)
	for index := range long {
		long[index] = 'a'
	}
	if _, err := NewTxRef(string(long)); !errors.Is(err, ErrInvalidTxRef) {
		t.Fatalf("expected ErrInvalidTxRef for long value, got %v", err)
	}
}

func TestParsePaymentStatus(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"pending", "success", "failed"} {
		status, err := ParsePaymentStatus(raw)
		if err != nil || status.String() != raw {
			t.Fatalf("parse %q: %v", raw, err)
		}
	}
	if _, err := ParsePaymentStatus("refunded"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if PaymentStatusPending.IsTerminal() || !PaymentStatusFailed.IsTerminal() {
		t.Fatalf("unexpected terminal classification")
	}
}

func TestMetadataJSON(t *testing.T) {
	t.Parallel()
	if _, err := NewMetadataJSON("{bad"); !errors.Is(err, ErrInvalidMetadata) {
		t.Fatalf("expected ErrInvalidMetadata, got %v", err)
	}
	empty, err := NewMetadataJSON("")
	if err != nil || empty.String() != "{}" {
		t.Fatalf("expected {}, got %q %v", empty.String(), err)
	}
	encoded, err := MetadataFromMap(map[string]any{"booking_id": 7})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if encoded.Map()["booking_id"] != float64(7) {
		t.Fatalf("unexpected decoded metadata %v", encoded.Map())
	}
}

func TestBookingNights(t *testing.T) {
	t.Parallel()
	booking := Booking{
		CheckIn:  time.Date(2024, time.June, 1, 15, 0, 0, 0, time.UTC),
		CheckOut: time.Date(2024, time.June, 4, 9, 0, 0, 0, time.UTC),
	}
	if nights := booking.Nights(); nights != 3 {
		t.Fatalf("expected 3 nights, got %d", nights)
	}
	parsed, err := ParseStayDate("2024-06-01")
	if err != nil || FormatStayDate(parsed) != "2024-06-01" {
		t.Fatalf("stay date round trip failed: %v", err)
	}
	if _, err := ParseStayDate("06/01/2024"); !errors.Is(err, ErrInvalidStayDates) {
		t.Fatalf("expected ErrInvalidStayDates, got %v", err)
	}
}
