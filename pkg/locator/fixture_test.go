package locator

import (
	"bytes"
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/rxlocator/platform/pkg/billing"
	"github.com/rxlocator/platform/pkg/common/database"
	"github.com/rxlocator/platform/pkg/common/logger"
	"github.com/rxlocator/platform/pkg/geo"
	"github.com/stretchr/testify/require"
)

// origin is the 19104 centroid; test zips sit due north of it.
var origin = geo.Point{Lon: -75.1932, Lat: 39.9566}

var zipMiles = map[string]float64{
	"19001": 1,
	"19002": 2,
	"19003": 3,
	"19006": 5,
	"19004": 9.9,
	"19005": 10.1,
}

type fixture struct {
	t   *testing.T
	db  *sql.DB
	rep *countingReporter
	svc *Service
}

type countingReporter struct {
	mu     sync.Mutex
	events []billing.UsageEvent
	err    error
}

func (c *countingReporter) ReportUsage(_ context.Context, e billing.UsageEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return c.err
}

func (c *countingReporter) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenSQLite(":memory:", 1)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logger.New("error", &bytes.Buffer{})
	store := NewSQLiteStore(db, 5*time.Second)
	rep := &countingReporter{}
	f := &fixture{
		t:   t,
		db:  db,
		rep: rep,
		svc: NewService(store, NewMeter(rep, store, time.Second, log), log),
	}

	f.exec(`INSERT INTO zip_centroids (zip_code, latitude, longitude, city, state) VALUES (?, ?, ?, 'Philadelphia', 'PA')`,
		"19104", origin.Lat, origin.Lon)
	for zip, miles := range zipMiles {
		p := geo.NorthOf(origin, geo.MilesToMeters(miles))
		f.exec(`INSERT INTO zip_centroids (zip_code, latitude, longitude) VALUES (?, ?, ?)`, zip, p.Lat, p.Lon)
	}
	return f
}

func (f *fixture) exec(query string, args ...interface{}) {
	f.t.Helper()
	_, err := f.db.Exec(query, args...)
	require.NoError(f.t, err)
}

type providerSeed struct {
	npi         int64
	first, last string
	cred        string
	class, spec string
	zip         string
	deactivated bool
}

func (f *fixture) provider(p providerSeed) {
	f.t.Helper()
	var deact interface{}
	if p.deactivated {
		deact = "2023-06-30"
	}
	f.exec(`INSERT INTO providers (npi, first_name, last_name, credentials, taxonomy_classification, taxonomy_specialization, deactivation_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, p.npi, nullable(p.first), nullable(p.last), nullable(p.cred), nullable(p.class), nullable(p.spec), deact)
	f.exec(`INSERT INTO provider_addresses (npi, address_line1, city, state, practice_zip, phone) VALUES (?, ?, 'Philadelphia', 'PA', ?, NULL)`,
		p.npi, "100 Main St", p.zip)
}

func (f *fixture) rx(npi int64, drug, generic string, claims int) {
	f.t.Helper()
	f.exec(`INSERT INTO prescriptions (npi, drug_name, generic_name, total_claim_count) VALUES (?, ?, ?, ?)`,
		npi, drug, nullable(generic), claims)
}

func (f *fixture) profile(userID, tier string, metered bool) {
	f.t.Helper()
	f.exec(`INSERT INTO profiles (user_id, tier, usage_metered) VALUES (?, ?, ?)`, userID, nullable(tier), metered)
}

func (f *fixture) savedLocation(userID, label, zip string, primary bool) {
	f.t.Helper()
	f.exec(`INSERT INTO saved_locations (user_id, label, zip_code, is_primary) VALUES (?, ?, ?, ?)`, userID, label, zip, primary)
}

func (f *fixture) auditRows() int {
	f.t.Helper()
	var n int
	require.NoError(f.t, f.db.QueryRow(`SELECT COUNT(*) FROM usage_audit_logs`).Scan(&n))
	return n
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// seedSertraline loads the Philadelphia scenario: four qualifying providers
// and one decoy per exclusion rule.
func (f *fixture) seedSertraline() {
	f.provider(providerSeed{npi: 1001, first: "Alice", last: "Adams", cred: "MD", class: "Psychiatry & Neurology", spec: "Psychiatry", zip: "19001"})
	f.rx(1001, "Sertraline HCl", "SERTRALINE", 10)
	f.rx(1001, "Zoloft", "Sertraline", 5)

	f.provider(providerSeed{npi: 1002, first: "Bob", last: "Brown", cred: "DO", class: "Family Medicine", zip: "19002"})
	f.rx(1002, "sertraline", "", 7)

	f.provider(providerSeed{npi: 1003, first: "Carol", last: "Clark", cred: "NP", class: "Psychiatry & Neurology", zip: "19003"})
	f.rx(1003, "SERTRALINE HCL", "sertraline hcl", 20)

	f.provider(providerSeed{npi: 1004, first: "Dan", last: "Davis", class: "Internal Medicine", zip: "19004"})
	f.rx(1004, "Sertraline", "", 6)

	// 10.1 miles out
	f.provider(providerSeed{npi: 1005, first: "Eve", last: "Evans", zip: "19005"})
	f.rx(1005, "Sertraline", "", 50)

	f.provider(providerSeed{npi: 1006, first: "Frank", last: "Foster", zip: "19006", deactivated: true})
	f.rx(1006, "Sertraline", "", 100)

	// below minClaims
	f.provider(providerSeed{npi: 1007, first: "Gina", last: "Green", zip: "19002"})
	f.rx(1007, "Sertraline", "", 3)

	f.provider(providerSeed{npi: 1008, first: "Hank", last: "Hill", zip: "19003"})
	f.rx(1008, "Fluoxetine", "fluoxetine", 30)

	// practice zip without a centroid
	f.provider(providerSeed{npi: 1009, first: "Ivy", last: "Irwin", zip: "00000"})
	f.rx(1009, "Sertraline", "", 40)

	// orphans
	f.rx(9999, "Sertraline", "", 100)
	f.exec(`INSERT INTO provider_addresses (npi, practice_zip) VALUES (8888, '19001')`)
}

// seedBupropion loads providers with tied claim counts and tied names.
func (f *fixture) seedBupropion() {
	f.provider(providerSeed{npi: 2001, first: "Amy", last: "Young", zip: "19003"})
	f.rx(2001, "Bupropion XL", "", 10)
	f.provider(providerSeed{npi: 2002, first: "Ben", last: "Young", zip: "19001"})
	f.rx(2002, "Bupropion XL", "", 10)
	f.provider(providerSeed{npi: 2003, first: "Cara", last: "Xu", zip: "19002"})
	f.rx(2003, "Bupropion XL", "", 12)
	f.provider(providerSeed{npi: 2004, first: "John", last: "Smith", zip: "19002"})
	f.rx(2004, "Wellbutrin", "bupropion", 5)
	f.provider(providerSeed{npi: 2005, first: "john", last: "SMITH", zip: "19001"})
	f.rx(2005, "Bupropion SR", "", 5)
}
