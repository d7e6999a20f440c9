package locator

import (
	"context"
	"errors"
	"strings"

	"github.com/rxlocator/platform/pkg/common/models"
	"github.com/rxlocator/platform/pkg/observability/metrics"
	"github.com/sirupsen/logrus"
)

const searchEndpoint = "search"

// ClassLookup resolves a taxonomy code or classification to its catalog entry.
type ClassLookup interface {
	Lookup(key string) (models.TaxonomyClass, bool)
}

// Service runs provider searches for authenticated callers.
type Service struct {
	store    Store
	resolver *Resolver
	meter    *Meter
	classes  ClassLookup
	log      logrus.FieldLogger
}

func NewService(store Store, meter *Meter, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		store:    store,
		resolver: NewResolver(log),
		meter:    meter,
		log:      log,
	}
}

// UseTaxonomy makes Search accept catalog codes as taxonomyClass. A code or
// exact classification is replaced by the catalog classification; anything
// else is matched as given.
func (s *Service) UseTaxonomy(classes ClassLookup) *Service {
	s.classes = classes
	return s
}

// Search validates req, resolves the origin from the caller's tier and
// returns one page of matching providers.
func (s *Service) Search(ctx context.Context, userID string, req models.SearchRequest) (*models.SearchResult, error) {
	req = normalize(req)
	if err := req.Validate(); err != nil {
		return nil, s.failed(validationError("%s", models.ValidationMessage(err)))
	}

	filters := Filters{
		DrugName:      req.DrugName,
		RadiusMiles:   req.Radius(),
		MinClaims:     req.MinClaims,
		TaxonomyClass: s.classification(req.TaxonomyClass),
		SortBy:        req.SortBy,
	}

	var (
		profile models.Profile
		total   int64
		rows    []ProviderRow
	)
	err := s.store.Session(ctx, func(sess Session) error {
		var err error
		profile, err = sess.Profile(ctx, userID)
		if err != nil {
			return storeError("profile", err)
		}

		tier := ParseTier(profile.Tier)
		in := Consulted(tier, Origin{Label: req.LocationName, Zip: req.ZipCode})
		req.LocationName, req.ZipCode = in.Label, in.Zip

		zip, err := s.resolver.Resolve(ctx, sess, userID, tier, in)
		if err != nil {
			return err
		}

		origin, err := sess.LookupZip(ctx, zip)
		if errors.Is(err, ErrZipNotFound) {
			return originNotFound(zip)
		}
		if err != nil {
			return storeError("zip lookup", err)
		}

		plan := BuildPlan(s.store.Dialect(), origin.Point, filters, req.Cursor, req.Limit())
		total, err = sess.Count(ctx, plan)
		if err != nil {
			return storeError("count", err)
		}
		if total == 0 || int64(req.Cursor) >= total {
			return nil
		}
		rows, err = sess.Page(ctx, plan)
		if err != nil {
			return storeError("page", err)
		}
		return nil
	})
	if err != nil {
		return nil, s.failed(storeError("session", err))
	}

	result := &models.SearchResult{
		Data:       Assemble(rows),
		TotalCount: total,
		NextCursor: NextCursor(req.Cursor, len(rows), total),
	}
	metrics.ObserveSearch(len(result.Data))

	if profile.Metered && s.meter != nil {
		s.meter.Record(ctx, Usage{
			UserID:      userID,
			Endpoint:    searchEndpoint,
			Filters:     auditFilters(req),
			ResultCount: len(result.Data),
		})
	}
	return result, nil
}

// Provider returns one active provider without distance.
func (s *Service) Provider(ctx context.Context, npi int64) (*models.ProviderView, error) {
	if npi <= 0 {
		return nil, s.failed(validationError("provider id must be positive"))
	}

	var row ProviderRow
	err := s.store.Session(ctx, func(sess Session) error {
		var err error
		row, err = sess.Provider(ctx, npi)
		if errors.Is(err, ErrProviderNotFound) {
			return notFound("provider not found")
		}
		return storeError("provider", err)
	})
	if err != nil {
		return nil, s.failed(storeError("session", err))
	}

	metrics.ObserveProviderLookup()
	view := AssembleOne(row)
	return &view, nil
}

// Profile returns the caller's stored profile. email fills in a blank stored email.
func (s *Service) Profile(ctx context.Context, userID, email string) (*models.Profile, error) {
	var profile models.Profile
	err := s.store.Session(ctx, func(sess Session) error {
		var err error
		profile, err = sess.Profile(ctx, userID)
		return storeError("profile", err)
	})
	if err != nil {
		return nil, s.failed(storeError("session", err))
	}
	if profile.Email == "" {
		profile.Email = email
	}
	profile.Tier = string(ParseTier(profile.Tier))
	return &profile, nil
}

func (s *Service) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) classification(key string) string {
	if key == "" || s.classes == nil {
		return key
	}
	if cls, ok := s.classes.Lookup(key); ok {
		return cls.Classification
	}
	return key
}

func (s *Service) failed(err error) error {
	kind := KindOf(err)
	metrics.ObserveFailure(string(kind))
	entry := s.log.WithField("kind", string(kind))
	if kind == KindTransientStore {
		entry.WithError(err).Error("search store failure")
	} else {
		entry.WithField("reason", MessageOf(err)).Debug("request rejected")
	}
	return err
}

func normalize(req models.SearchRequest) models.SearchRequest {
	req.DrugName = strings.TrimSpace(req.DrugName)
	req.TaxonomyClass = strings.TrimSpace(req.TaxonomyClass)
	req.LocationName = strings.TrimSpace(req.LocationName)
	req.ZipCode = strings.TrimSpace(req.ZipCode)
	req.SortBy = strings.ToLower(strings.TrimSpace(req.SortBy))
	return req.WithDefaults()
}

func auditFilters(req models.SearchRequest) map[string]interface{} {
	f := map[string]interface{}{
		"drugName":    req.DrugName,
		"radiusMiles": req.Radius(),
		"minClaims":   req.MinClaims,
		"sortBy":      req.SortBy,
		"cursor":      req.Cursor,
		"pageSize":    req.Limit(),
	}
	if req.TaxonomyClass != "" {
		f["taxonomyClass"] = req.TaxonomyClass
	}
	if req.LocationName != "" {
		f["locationName"] = req.LocationName
	}
	if req.ZipCode != "" {
		f["zipCode"] = req.ZipCode
	}
	return f
}
