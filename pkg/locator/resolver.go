package locator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rxlocator/platform/pkg/geo"
	"github.com/sirupsen/logrus"
)

// Tier is the subscription tier read from the caller's profile.
type Tier string

const (
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
	TierExpert  Tier = "expert"
	TierUnknown Tier = "unknown"
)

// ParseTier maps a stored tier label to a Tier. Empty, NULL and unrecognised
// labels all become TierUnknown.
func ParseTier(s string) Tier {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case TierBasic, TierPremium, TierExpert:
		return t
	default:
		return TierUnknown
	}
}

// LocationQuery selects at most one saved location for a user.
type LocationQuery struct {
	Label       string
	PrimaryOnly bool
}

// LocationLookup returns the zip of the matching saved location or
// ErrLocationNotFound.
type LocationLookup interface {
	SavedLocation(ctx context.Context, userID string, q LocationQuery) (string, error)
}

// Origin is the caller input the resolver may consult.
type Origin struct {
	Label string
	Zip   string
}

// Consulted keeps only the Origin fields tier t reads. Basic reads neither,
// premium reads the label, and expert and unknown read the zip.
func Consulted(t Tier, in Origin) Origin {
	switch t {
	case TierBasic:
		return Origin{}
	case TierPremium:
		return Origin{Label: in.Label}
	default:
		return Origin{Zip: in.Zip}
	}
}

type strategy func(ctx context.Context, lookup LocationLookup, userID string, in Origin) (string, error)

// Resolver picks the search origin zip according to the caller's tier.
type Resolver struct {
	log        logrus.FieldLogger
	strategies map[Tier]strategy
}

func NewResolver(log logrus.FieldLogger) *Resolver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Resolver{
		log: log,
		strategies: map[Tier]strategy{
			TierBasic:   resolvePrimary,
			TierPremium: resolveLabel,
			TierExpert:  resolveZip,
			TierUnknown: resolveZip,
		},
	}
}

func (r *Resolver) Resolve(ctx context.Context, lookup LocationLookup, userID string, tier Tier, in Origin) (string, error) {
	fn, ok := r.strategies[tier]
	if !ok || tier == TierUnknown {
		r.log.WithFields(logrus.Fields{
			"user_id": userID,
			"tier":    string(tier),
		}).Warn("degraded tier path")
		fn = r.strategies[TierUnknown]
	}
	return fn(ctx, lookup, userID, Consulted(tier, in))
}

func resolvePrimary(ctx context.Context, lookup LocationLookup, userID string, _ Origin) (string, error) {
	zip, err := lookup.SavedLocation(ctx, userID, LocationQuery{PrimaryOnly: true})
	if errors.Is(err, ErrLocationNotFound) {
		return "", resolutionError("no primary saved location")
	}
	if err != nil {
		return "", storeError("primary location", err)
	}
	return zip, nil
}

func resolveLabel(ctx context.Context, lookup LocationLookup, userID string, in Origin) (string, error) {
	label := strings.TrimSpace(in.Label)
	if label == "" {
		return "", resolutionError("locationName is required for this plan")
	}
	zip, err := lookup.SavedLocation(ctx, userID, LocationQuery{Label: label})
	if errors.Is(err, ErrLocationNotFound) {
		return "", resolutionError(fmt.Sprintf("saved location %q not found", label))
	}
	if err != nil {
		return "", storeError("saved location", err)
	}
	return zip, nil
}

func resolveZip(_ context.Context, _ LocationLookup, _ string, in Origin) (string, error) {
	zip := strings.TrimSpace(in.Zip)
	if zip == "" {
		return "", resolutionError("zipCode is required for this plan")
	}
	if !geo.ValidZip(zip) {
		return "", validationError("zipCode must be 5 digits")
	}
	return zip, nil
}
