package extract

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/realestate9x/whatsapp-listings/internal/domain"
)

var listingTypes = map[string]struct{}{
	"sale":   {},
	"rental": {},
	"lease":  {},
}

var propertyTypes = map[string]struct{}{
	"apartment":  {},
	"house":      {},
	"villa":      {},
	"plot":       {},
	"commercial": {},
	"office":     {},
	"shop":       {},
	"warehouse":  {},
	"pg":         {},
	"other":      {},
}

var furnishings = map[string]struct{}{
	"furnished":      {},
	"semi-furnished": {},
	"unfurnished":    {},
}

// listingTypeAliases maps common model spellings onto the canonical set.
var listingTypeAliases = map[string]string{
	"rent":    "rental",
	"renting": "rental",
	"sell":    "sale",
	"selling": "sale",
	"buy":     "sale",
}

// normalizeCandidate converts one raw model candidate into a persistable
// listing. It returns false when the candidate fails the acceptance gate:
// the listing type must be recognized and confidence must exceed minConf.
func normalizeCandidate(c Candidate, msg *domain.GroupMessage, raw string, minConf float64) (*domain.PropertyListing, bool) {
	lt := strings.ToLower(strings.TrimSpace(c.ListingType))
	if alias, ok := listingTypeAliases[lt]; ok {
		lt = alias
	}
	if _, ok := listingTypes[lt]; !ok {
		return nil, false
	}
	conf := clamp01(toFloat(c.Confidence))
	if conf <= minConf {
		return nil, false
	}

	l := &domain.PropertyListing{
		ID:           uuid.NewString(),
		MessageID:    msg.ID,
		UserID:       msg.UserID,
		ListingType:  lt,
		PropertyType: normalizePropertyType(c.PropertyType),
		Location:     strings.TrimSpace(c.Location),
		ContactPhone: strings.TrimSpace(c.ContactPhone),
		Confidence:   conf,
		RawResponse:  raw,
	}

	if v, ok := toInt64(c.Price); ok && v > 0 {
		l.Price = &v
	}
	if v, ok := toInt(c.Bedrooms); ok && v > 0 {
		l.Bedrooms = &v
	}
	if v, ok := toInt(c.Bathrooms); ok && v > 0 {
		l.Bathrooms = &v
	}
	if v, ok := toInt(c.AreaSqft); ok && v > 0 {
		l.AreaSqft = &v
	}
	if v, ok := toInt(c.Floor); ok {
		l.Floor = &v
	}
	if f := strings.ToLower(strings.TrimSpace(c.Furnishing)); f != "" {
		if _, ok := furnishings[f]; ok {
			l.Furnishing = &f
		}
	}
	l.HasParking, l.ParkingCount = normalizeParking(c.Parking)

	return l, true
}

// normalizePropertyType lower-cases the value and falls back to "other"
// for anything outside the known set. Empty stays empty.
func normalizePropertyType(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if _, ok := propertyTypes[s]; ok {
		return s
	}
	return "other"
}

// normalizeParking accepts booleans, numbers, and numeric strings. A count
// above zero implies has_parking; a bare true sets the flag without a count.
func normalizeParking(v any) (bool, *int) {
	switch p := v.(type) {
	case bool:
		return p, nil
	case nil:
		return false, nil
	default:
		if n, ok := toInt(v); ok && n > 0 {
			return true, &n
		}
		return false, nil
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f
	default:
		return 0
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(n, ",", ""))
		if s == "" {
			return 0, false
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f), true
		}
		return 0, false
	default:
		return 0, false
	}
}

func toInt(v any) (int, bool) {
	i, ok := toInt64(v)
	if !ok {
		return 0, false
	}
	return int(i), true
}
