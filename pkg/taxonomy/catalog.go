// Package taxonomy holds the provider taxonomy classifications offered as
// search filters.
package taxonomy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rxlocator/platform/pkg/common/models"
	"gopkg.in/yaml.v3"
)

type Catalog struct {
	Classes []models.TaxonomyClass `yaml:"classes" json:"classes"`
}

// Load reads a YAML catalog. An empty path yields the built-in catalog, and
// so does any failure, alongside the error.
func Load(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultCatalog(), err
	}
	var cat Catalog
	if err := yaml.Unmarshal(content, &cat); err != nil {
		return DefaultCatalog(), fmt.Errorf("parse taxonomy catalog: %w", err)
	}
	cat = cat.normalized()
	if len(cat.Classes) == 0 {
		return DefaultCatalog(), fmt.Errorf("taxonomy catalog %s has no classes", path)
	}
	return cat, nil
}

func (c Catalog) normalized() Catalog {
	seen := make(map[string]struct{}, len(c.Classes))
	out := make([]models.TaxonomyClass, 0, len(c.Classes))
	for _, cls := range c.Classes {
		cls.Classification = strings.TrimSpace(cls.Classification)
		if cls.Classification == "" {
			continue
		}
		key := strings.ToLower(cls.Classification)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, cls)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Classification) < strings.ToLower(out[j].Classification)
	})
	return Catalog{Classes: out}
}

// Lookup finds a class by code or classification, ignoring case.
func (c Catalog) Lookup(key string) (models.TaxonomyClass, bool) {
	key = strings.TrimSpace(key)
	for _, cls := range c.Classes {
		if strings.EqualFold(cls.Code, key) || strings.EqualFold(cls.Classification, key) {
			return cls, true
		}
	}
	return models.TaxonomyClass{}, false
}

// Match returns the classes whose classification contains q.
func (c Catalog) Match(q string) []models.TaxonomyClass {
	q = strings.ToLower(strings.TrimSpace(q))
	out := make([]models.TaxonomyClass, 0, len(c.Classes))
	for _, cls := range c.Classes {
		if q == "" || strings.Contains(strings.ToLower(cls.Classification), q) {
			out = append(out, cls)
		}
	}
	return out
}

func DefaultCatalog() Catalog {
	return Catalog{Classes: []models.TaxonomyClass{
		{Code: "207Q00000X", Classification: "Family Medicine", Specializations: []string{"Adult Medicine", "Geriatric Medicine"}},
		{Code: "207R00000X", Classification: "Internal Medicine", Specializations: []string{"Cardiovascular Disease", "Endocrinology, Diabetes & Metabolism"}},
		{Code: "363L00000X", Classification: "Nurse Practitioner", Specializations: []string{"Family", "Psych/Mental Health"}},
		{Code: "207V00000X", Classification: "Obstetrics & Gynecology"},
		{Code: "208000000X", Classification: "Pediatrics"},
		{Code: "363A00000X", Classification: "Physician Assistant", Specializations: []string{"Medical"}},
		{Code: "2084P0800X", Classification: "Psychiatry & Neurology", Specializations: []string{"Psychiatry", "Neurology"}},
		{Code: "1223G0001X", Classification: "Dentist", Specializations: []string{"General Practice"}},
	}}.normalized()
}
