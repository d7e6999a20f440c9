package models

import (
	"time"
)

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // search.usage
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// Search API models

const (
	SortDistance = "distance"
	SortClaims   = "claims"
	SortName     = "name"
)

const (
	DefaultRadiusMiles = 10
	DefaultPageSize    = 10
	MaxPageSize        = 100
)

// SearchRequest is the decoded client request. The origin is never taken
// from it directly: LocationName and ZipCode are inputs to tier resolution,
// and each tier reads only the ones it uses. RadiusMiles and PageSize are
// pointers so an explicit zero is rejected rather than defaulted.
type SearchRequest struct {
	DrugName      string   `json:"drugName" validate:"required,max=200"`
	RadiusMiles   *float64 `json:"radiusMiles,omitempty" validate:"omitempty,gte=1,lte=100"`
	MinClaims     int      `json:"minClaims" validate:"gte=0"`
	TaxonomyClass string   `json:"taxonomyClass,omitempty" validate:"max=200"`
	SortBy        string   `json:"sortBy" validate:"oneof=distance claims name"`
	LocationName  string   `json:"locationName,omitempty"`
	ZipCode       string   `json:"zipCode,omitempty"`
	Cursor        int      `json:"cursor" validate:"gte=0"`
	PageSize      *int     `json:"pageSize,omitempty" validate:"omitempty,gte=1,lte=100"`
}

// WithDefaults fills absent fields with the documented defaults.
func (r SearchRequest) WithDefaults() SearchRequest {
	if r.RadiusMiles == nil {
		r.RadiusMiles = Ptr(float64(DefaultRadiusMiles))
	}
	if r.PageSize == nil {
		r.PageSize = Ptr(DefaultPageSize)
	}
	if r.SortBy == "" {
		r.SortBy = SortDistance
	}
	return r
}

// Radius is the requested radius in miles, or the default when absent.
func (r SearchRequest) Radius() float64 {
	if r.RadiusMiles == nil {
		return DefaultRadiusMiles
	}
	return *r.RadiusMiles
}

// Limit is the requested page size, or the default when absent.
func (r SearchRequest) Limit() int {
	if r.PageSize == nil {
		return DefaultPageSize
	}
	return *r.PageSize
}

func Ptr[T any](v T) *T { return &v }

type SearchResult struct {
	Data       []ProviderView `json:"data"`
	TotalCount int64          `json:"totalCount"`
	NextCursor *int           `json:"nextCursor"`
}

type ProviderView struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	FirstName      string   `json:"firstName"`
	LastName       string   `json:"lastName"`
	Title          string   `json:"title"`
	Specialties    []string `json:"specialties"`
	City           string   `json:"city"`
	State          string   `json:"state"`
	AddressLine    string   `json:"addressLine"`
	Phone          string   `json:"phone"`
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	DistanceMeters float64  `json:"distanceMeters"`
	ClaimCount     int64    `json:"claimCount"`
}

// Account models

type Profile struct {
	UserID  string `json:"userId"`
	Email   string `json:"email,omitempty"`
	Tier    string `json:"tier"`
	Metered bool   `json:"usageMetered"`
}

type SavedLocation struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"-"`
	Label     string    `json:"label"`
	ZipCode   string    `json:"zipCode"`
	IsPrimary bool      `json:"isPrimary"`
	CreatedAt time.Time `json:"createdAt"`
}

type CreateLocationRequest struct {
	Label   string `json:"label" validate:"required,max=100"`
	ZipCode string `json:"zipCode" validate:"required,zipcode"`
	Primary bool   `json:"primary"`
}

// Taxonomy catalog models

type TaxonomyClass struct {
	Code            string   `yaml:"code" json:"code"`
	Classification  string   `yaml:"classification" json:"classification"`
	Specializations []string `yaml:"specializations" json:"specializations,omitempty"`
}
