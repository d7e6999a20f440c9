package locator

import (
	"strings"
	"testing"

	"github.com/rxlocator/platform/pkg/common/models"
	"github.com/rxlocator/platform/pkg/geo"
	"github.com/stretchr/testify/assert"
)

var philly = geo.Point{Lon: -75.1932, Lat: 39.9566}

func TestBuildPlanArguments(t *testing.T) {
	f := Filters{DrugName: " Sertraline ", RadiusMiles: 10, MinClaims: 5, SortBy: models.SortDistance}
	p := BuildPlan(PostGIS, philly, f, 4, 2)

	wantWhere := []interface{}{philly.Lon, philly.Lat, geo.MilesToMeters(10), "%sertraline%", "%sertraline%", 5}
	assert.Equal(t, wantWhere, p.CountArgs)

	wantPage := append([]interface{}{philly.Lon, philly.Lat}, wantWhere...)
	wantPage = append(wantPage, 2, 4)
	assert.Equal(t, wantPage, p.PageArgs)

	assert.Equal(t, strings.Count(p.CountSQL, "?"), len(p.CountArgs))
	assert.Equal(t, strings.Count(p.PageSQL, "?"), len(p.PageArgs))
	assert.Contains(t, p.CountSQL, "COUNT(DISTINCT p.npi)")
	assert.Contains(t, p.CountSQL, "ST_DWithin(z.geog")
	assert.Contains(t, p.CountSQL, "p.deactivation_date IS NULL")
}

func TestBuildPlanTaxonomyFilter(t *testing.T) {
	f := Filters{DrugName: "x", RadiusMiles: 1, TaxonomyClass: "Family", SortBy: models.SortDistance}
	p := BuildPlan(PostGIS, philly, f, 0, 10)

	assert.Contains(t, p.CountSQL, "LOWER(p.taxonomy_classification) LIKE ?")
	assert.Equal(t, "%family%", p.CountArgs[len(p.CountArgs)-1])
	assert.Equal(t, strings.Count(p.PageSQL, "?"), len(p.PageArgs))
}

func TestBuildPlanEscapesLikeInput(t *testing.T) {
	p := BuildPlan(PostGIS, philly, Filters{DrugName: `50%_off\`, RadiusMiles: 1}, 0, 10)
	assert.Equal(t, `%50\%\_off\\%`, p.CountArgs[3])
}

func TestBuildPlanOrderings(t *testing.T) {
	tests := map[string]string{
		models.SortDistance: "ORDER BY m.distance_m ASC, m.npi ASC",
		models.SortClaims:   "ORDER BY claim_count DESC, m.distance_m ASC, m.npi ASC",
		models.SortName:     "ORDER BY LOWER(COALESCE(m.last_name, '')) ASC, LOWER(COALESCE(m.first_name, '')) ASC, m.distance_m ASC, m.npi ASC",
		"":                  "ORDER BY m.distance_m ASC, m.npi ASC",
	}
	for sortBy, want := range tests {
		p := BuildPlan(PostGIS, philly, Filters{DrugName: "x", RadiusMiles: 1, SortBy: sortBy}, 0, 10)
		assert.Contains(t, p.PageSQL, want, sortBy)
	}
}

func TestSQLiteDialect(t *testing.T) {
	d := SQLiteHaversine("haversine_m")
	p := BuildPlan(d, philly, Filters{DrugName: "x", RadiusMiles: 1}, 0, 10)

	assert.Equal(t, "sqlite", d.Name())
	assert.Contains(t, p.CountSQL, "haversine_m(?, ?, z.longitude, z.latitude) <= ?")
	assert.Contains(t, p.PageSQL, "haversine_m(?, ?, z.longitude, z.latitude) AS distance_m")
	assert.NotContains(t, p.PageSQL, "geog")
}
