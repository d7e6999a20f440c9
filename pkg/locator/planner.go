package locator

import (
	"fmt"
	"strings"

	"github.com/rxlocator/platform/pkg/common/models"
	"github.com/rxlocator/platform/pkg/geo"
)

// Dialect supplies the store-specific spatial expressions. Both expressions
// reference the zip_centroids alias z and take the origin as (lon, lat)
// bound parameters; Within additionally binds the radius in meters.
type Dialect interface {
	Name() string
	Distance() string
	Within() string
}

type postgisDialect struct{}

func (postgisDialect) Name() string { return "postgres" }

func (postgisDialect) Distance() string {
	return "ST_Distance(z.geog, ST_SetSRID(ST_MakePoint(?, ?), 4326)::geography)"
}

func (postgisDialect) Within() string {
	return "ST_DWithin(z.geog, ST_SetSRID(ST_MakePoint(?, ?), 4326)::geography, ?)"
}

type sqliteDialect struct{ fn string }

func (sqliteDialect) Name() string { return "sqlite" }

func (d sqliteDialect) Distance() string {
	return d.fn + "(?, ?, z.longitude, z.latitude)"
}

func (d sqliteDialect) Within() string {
	return d.fn + "(?, ?, z.longitude, z.latitude) <= ?"
}

// PostGIS measures on the geography type, in meters.
var PostGIS Dialect = postgisDialect{}

// SQLiteHaversine returns a dialect backed by the named scalar function.
func SQLiteHaversine(fn string) Dialect { return sqliteDialect{fn: fn} }

// Filters is the typed predicate set shared by the count and page queries.
type Filters struct {
	DrugName      string
	RadiusMiles   float64
	MinClaims     int
	TaxonomyClass string
	SortBy        string
}

func (f Filters) RadiusMeters() float64 { return geo.MilesToMeters(f.RadiusMiles) }

// Plan holds both statements for one search. Args are positional.
type Plan struct {
	CountSQL  string
	CountArgs []interface{}
	PageSQL   string
	PageArgs  []interface{}
	Offset    int
	Limit     int
}

const matchFrom = `
FROM providers p
JOIN provider_addresses a ON a.npi = p.npi
JOIN zip_centroids z ON z.zip_code = a.practice_zip
JOIN prescriptions rx ON rx.npi = p.npi`

const pageColumns = `m.npi, m.first_name, m.last_name, m.credentials, m.taxonomy_classification, m.taxonomy_specialization,
	m.address_line1, m.address_line2, m.city, m.state, m.phone, m.latitude, m.longitude, m.distance_m`

var orderings = map[string]string{
	models.SortDistance: "m.distance_m ASC, m.npi ASC",
	models.SortClaims:   "claim_count DESC, m.distance_m ASC, m.npi ASC",
	models.SortName:     "LOWER(COALESCE(m.last_name, '')) ASC, LOWER(COALESCE(m.first_name, '')) ASC, m.distance_m ASC, m.npi ASC",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a case-insensitive substring pattern for LIKE ... ESCAPE '\'.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(s))) + "%"
}

// BuildPlan renders the count and page statements. Identical predicate
// arguments are bound to both so they observe the same filter set.
func BuildPlan(d Dialect, origin geo.Point, f Filters, offset, limit int) Plan {
	where, whereArgs := matchPredicate(d, origin, f)

	countSQL := "SELECT COUNT(DISTINCT p.npi)" + matchFrom + "\nWHERE " + where

	order, ok := orderings[f.SortBy]
	if !ok {
		order = orderings[models.SortDistance]
	}

	pageSQL := fmt.Sprintf(`SELECT %s, SUM(m.claims) AS claim_count
FROM (
	SELECT p.npi, p.first_name, p.last_name, p.credentials, p.taxonomy_classification, p.taxonomy_specialization,
		a.address_line1, a.address_line2, a.city, a.state, a.phone, z.latitude, z.longitude,
		%s AS distance_m, rx.total_claim_count AS claims%s
	WHERE %s
) m
GROUP BY %s
ORDER BY %s
LIMIT ? OFFSET ?`, pageColumns, d.Distance(), matchFrom, where, pageColumns, order)

	pageArgs := make([]interface{}, 0, len(whereArgs)+4)
	pageArgs = append(pageArgs, origin.Lon, origin.Lat)
	pageArgs = append(pageArgs, whereArgs...)
	pageArgs = append(pageArgs, limit, offset)

	return Plan{
		CountSQL:  countSQL,
		CountArgs: whereArgs,
		PageSQL:   pageSQL,
		PageArgs:  pageArgs,
		Offset:    offset,
		Limit:     limit,
	}
}

func matchPredicate(d Dialect, origin geo.Point, f Filters) (string, []interface{}) {
	drug := containsPattern(f.DrugName)
	clauses := []string{
		"p.deactivation_date IS NULL",
		d.Within(),
		`(LOWER(rx.drug_name) LIKE ? ESCAPE '\' OR LOWER(rx.generic_name) LIKE ? ESCAPE '\')`,
		"rx.total_claim_count >= ?",
	}
	args := []interface{}{origin.Lon, origin.Lat, f.RadiusMeters(), drug, drug, f.MinClaims}

	if tc := strings.TrimSpace(f.TaxonomyClass); tc != "" {
		clauses = append(clauses, `LOWER(p.taxonomy_classification) LIKE ? ESCAPE '\'`)
		args = append(args, containsPattern(tc))
	}
	return strings.Join(clauses, "\n\tAND "), args
}

// providerSQL loads one active provider with its lifetime claim total.
const providerSQL = `SELECT p.npi, p.first_name, p.last_name, p.credentials, p.taxonomy_classification, p.taxonomy_specialization,
	a.address_line1, a.address_line2, a.city, a.state, a.phone,
	COALESCE(z.latitude, 0) AS latitude, COALESCE(z.longitude, 0) AS longitude,
	CAST(0 AS DOUBLE PRECISION) AS distance_m,
	COALESCE((SELECT SUM(rx.total_claim_count) FROM prescriptions rx WHERE rx.npi = p.npi), 0) AS claim_count
FROM providers p
LEFT JOIN provider_addresses a ON a.npi = p.npi
LEFT JOIN zip_centroids z ON z.zip_code = a.practice_zip
WHERE p.npi = ? AND p.deactivation_date IS NULL`
