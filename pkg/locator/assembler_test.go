package locator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sp(s string) *string { return &s }

func TestAssembleOne(t *testing.T) {
	v := AssembleOne(ProviderRow{
		NPI:            1234567890,
		FirstName:      sp("Jane"),
		LastName:       sp("Doe"),
		Credentials:    sp("MD"),
		Classification: sp("Psychiatry & Neurology"),
		Specialization: sp("Psychiatry"),
		AddressLine1:   sp("3400 Spruce St"),
		AddressLine2:   sp("Suite 2"),
		City:           sp("Philadelphia"),
		State:          sp("PA"),
		Phone:          sp("2155551234"),
		Latitude:       39.95,
		Longitude:      -75.19,
		DistanceMeters: 812.5,
		ClaimCount:     42,
	})

	assert.Equal(t, int64(1234567890), v.ID)
	assert.Equal(t, "Jane Doe, MD", v.Name)
	assert.Equal(t, "MD", v.Title)
	assert.Equal(t, []string{"Psychiatry & Neurology", "Psychiatry"}, v.Specialties)
	assert.Equal(t, "3400 Spruce St, Suite 2", v.AddressLine)
	assert.Equal(t, 812.5, v.DistanceMeters)
	assert.Equal(t, int64(42), v.ClaimCount)
}

func TestAssembleOneNulls(t *testing.T) {
	v := AssembleOne(ProviderRow{NPI: 1, LastName: sp("Acme Pharmacy"), Classification: sp("Pharmacy"), Specialization: sp("pharmacy")})

	assert.Equal(t, "Acme Pharmacy", v.Name)
	assert.Equal(t, "", v.FirstName)
	assert.Equal(t, "", v.Title)
	assert.Equal(t, "", v.AddressLine)
	assert.Equal(t, "", v.Phone)
	assert.Equal(t, "", v.City)
	assert.Equal(t, []string{"Pharmacy"}, v.Specialties)
}

func TestAssembleEmptySpecialtiesNotNil(t *testing.T) {
	v := AssembleOne(ProviderRow{NPI: 2, Credentials: sp("NP"), Specialization: sp("  ")})
	assert.NotNil(t, v.Specialties)
	assert.Empty(t, v.Specialties)
	assert.Equal(t, "NP", v.Name)
	assert.NotNil(t, Assemble(nil))
}
