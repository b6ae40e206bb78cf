package extract

import (
	"testing"

	"github.com/realestate9x/whatsapp-listings/internal/domain"
)

func testMsg() *domain.GroupMessage {
	return &domain.GroupMessage{ID: "m1", UserID: "u1"}
}

func TestNormalizeCandidateAcceptsValid(t *testing.T) {
	c := Candidate{
		ListingType:  "Rental",
		PropertyType: "Apartment",
		Location:     " Andheri West ",
		Price:        float64(25000),
		Bedrooms:     float64(2),
		AreaSqft:     "950",
		Furnishing:   "Semi-Furnished",
		Parking:      float64(1),
		ContactPhone: "9876543210",
		Confidence:   0.85,
	}
	l, ok := normalizeCandidate(c, testMsg(), "raw", 0.3)
	if !ok {
		t.Fatal("candidate rejected")
	}
	if l.ListingType != "rental" || l.PropertyType != "apartment" {
		t.Errorf("types = %q/%q", l.ListingType, l.PropertyType)
	}
	if l.Location != "Andheri West" {
		t.Errorf("location = %q", l.Location)
	}
	if l.Price == nil || *l.Price != 25000 {
		t.Errorf("price = %v", l.Price)
	}
	if l.Bedrooms == nil || *l.Bedrooms != 2 {
		t.Errorf("bedrooms = %v", l.Bedrooms)
	}
	if l.AreaSqft == nil || *l.AreaSqft != 950 {
		t.Errorf("area = %v", l.AreaSqft)
	}
	if l.Furnishing == nil || *l.Furnishing != "semi-furnished" {
		t.Errorf("furnishing = %v", l.Furnishing)
	}
	if !l.HasParking || l.ParkingCount == nil || *l.ParkingCount != 1 {
		t.Errorf("parking = %v/%v", l.HasParking, l.ParkingCount)
	}
	if l.Confidence != 0.85 {
		t.Errorf("confidence = %v", l.Confidence)
	}
	if l.MessageID != "m1" || l.UserID != "u1" {
		t.Errorf("ownership = %q/%q", l.MessageID, l.UserID)
	}
}

func TestNormalizeCandidateGate(t *testing.T) {
	cases := []struct {
		name string
		c    Candidate
	}{
		{"unknown listing type", Candidate{ListingType: "swap", Confidence: 0.9}},
		{"empty listing type", Candidate{Confidence: 0.9}},
		{"low confidence", Candidate{ListingType: "sale", Confidence: 0.2}},
		{"threshold is exclusive", Candidate{ListingType: "sale", Confidence: 0.3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := normalizeCandidate(tc.c, testMsg(), "", 0.3); ok {
				t.Error("candidate passed the gate")
			}
		})
	}
}

func TestNormalizeCandidateAliases(t *testing.T) {
	l, ok := normalizeCandidate(Candidate{ListingType: "rent", Confidence: 0.9}, testMsg(), "", 0.3)
	if !ok || l.ListingType != "rental" {
		t.Fatalf("rent alias: ok=%v type=%v", ok, l)
	}
	l, ok = normalizeCandidate(Candidate{ListingType: "selling", Confidence: 0.9}, testMsg(), "", 0.3)
	if !ok || l.ListingType != "sale" {
		t.Fatalf("selling alias: ok=%v type=%v", ok, l)
	}
}

func TestNormalizePropertyTypeFallback(t *testing.T) {
	if got := normalizePropertyType("Penthouse"); got != "other" {
		t.Errorf("unknown type = %q, want other", got)
	}
	if got := normalizePropertyType(""); got != "" {
		t.Errorf("empty type = %q, want empty", got)
	}
	if got := normalizePropertyType(" Villa "); got != "villa" {
		t.Errorf("known type = %q, want villa", got)
	}
}

func TestNormalizeCandidateCoercesStrings(t *testing.T) {
	c := Candidate{
		ListingType: "sale",
		Price:       "1,25,00,000",
		Bedrooms:    "3",
		Confidence:  "0.7",
		Parking:     "2",
	}
	l, ok := normalizeCandidate(c, testMsg(), "", 0.3)
	if !ok {
		t.Fatal("candidate rejected")
	}
	if l.Price == nil || *l.Price != 12500000 {
		t.Errorf("price = %v", l.Price)
	}
	if l.Bedrooms == nil || *l.Bedrooms != 3 {
		t.Errorf("bedrooms = %v", l.Bedrooms)
	}
	if l.Confidence != 0.7 {
		t.Errorf("confidence = %v", l.Confidence)
	}
	if !l.HasParking || l.ParkingCount == nil || *l.ParkingCount != 2 {
		t.Errorf("parking = %v/%v", l.HasParking, l.ParkingCount)
	}
}

func TestNormalizeCandidateClampsConfidence(t *testing.T) {
	l, ok := normalizeCandidate(Candidate{ListingType: "sale", Confidence: 1.8}, testMsg(), "", 0.3)
	if !ok {
		t.Fatal("candidate rejected")
	}
	if l.Confidence != 1 {
		t.Errorf("confidence = %v, want 1", l.Confidence)
	}
}

func TestNormalizeParkingBoolean(t *testing.T) {
	has, count := normalizeParking(true)
	if !has || count != nil {
		t.Errorf("true = %v/%v", has, count)
	}
	has, count = normalizeParking(false)
	if has || count != nil {
		t.Errorf("false = %v/%v", has, count)
	}
	has, count = normalizeParking(float64(0))
	if has || count != nil {
		t.Errorf("zero = %v/%v", has, count)
	}
}

func TestNormalizeCandidateRejectsBogusFurnishing(t *testing.T) {
	l, ok := normalizeCandidate(Candidate{ListingType: "sale", Furnishing: "fancy", Confidence: 0.9}, testMsg(), "", 0.3)
	if !ok {
		t.Fatal("candidate rejected")
	}
	if l.Furnishing != nil {
		t.Errorf("furnishing = %q, want nil", *l.Furnishing)
	}
}
