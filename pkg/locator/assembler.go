package locator

import (
	"strings"

	"github.com/rxlocator/platform/pkg/common/models"
)

// ProviderRow is one provider as produced by the page and detail queries.
// Text columns are nullable in the reference data.
type ProviderRow struct {
	NPI            int64   `gorm:"column:npi"`
	FirstName      *string `gorm:"column:first_name"`
	LastName       *string `gorm:"column:last_name"`
	Credentials    *string `gorm:"column:credentials"`
	Classification *string `gorm:"column:taxonomy_classification"`
	Specialization *string `gorm:"column:taxonomy_specialization"`
	AddressLine1   *string `gorm:"column:address_line1"`
	AddressLine2   *string `gorm:"column:address_line2"`
	City           *string `gorm:"column:city"`
	State          *string `gorm:"column:state"`
	Phone          *string `gorm:"column:phone"`
	Latitude       float64 `gorm:"column:latitude"`
	Longitude      float64 `gorm:"column:longitude"`
	DistanceMeters float64 `gorm:"column:distance_m"`
	ClaimCount     int64   `gorm:"column:claim_count"`
}

// Assemble maps rows to views, preserving order.
func Assemble(rows []ProviderRow) []models.ProviderView {
	out := make([]models.ProviderView, 0, len(rows))
	for _, r := range rows {
		out = append(out, AssembleOne(r))
	}
	return out
}

func AssembleOne(r ProviderRow) models.ProviderView {
	first, last, cred := str(r.FirstName), str(r.LastName), str(r.Credentials)
	return models.ProviderView{
		ID:             r.NPI,
		Name:           displayName(first, last, cred),
		FirstName:      first,
		LastName:       last,
		Title:          cred,
		Specialties:    specialties(str(r.Classification), str(r.Specialization)),
		City:           str(r.City),
		State:          str(r.State),
		AddressLine:    joinNonEmpty(", ", str(r.AddressLine1), str(r.AddressLine2)),
		Phone:          str(r.Phone),
		Latitude:       r.Latitude,
		Longitude:      r.Longitude,
		DistanceMeters: r.DistanceMeters,
		ClaimCount:     r.ClaimCount,
	}
}

func displayName(first, last, cred string) string {
	name := joinNonEmpty(" ", first, last)
	if name == "" {
		return cred
	}
	return joinNonEmpty(", ", name, cred)
}

func specialties(values ...string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
