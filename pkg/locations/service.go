package locations

import (
	"context"
	"errors"
	"strings"

	"github.com/rxlocator/platform/pkg/common/models"
	"github.com/rxlocator/platform/pkg/locator"
	"github.com/sirupsen/logrus"
)

// Service manages the saved locations the tier resolver reads.
type Service struct {
	repo Repository
	log  logrus.FieldLogger
}

func NewService(repo Repository, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{repo: repo, log: log}
}

func (s *Service) List(ctx context.Context, userID string) ([]models.SavedLocation, error) {
	locs, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, s.mapError("list", err)
	}
	return locs, nil
}

func (s *Service) Create(ctx context.Context, userID string, req models.CreateLocationRequest) (*models.SavedLocation, error) {
	req.Label = strings.TrimSpace(req.Label)
	req.ZipCode = strings.TrimSpace(req.ZipCode)
	if err := req.Validate(); err != nil {
		return nil, &locator.Error{Kind: locator.KindValidation, Message: models.ValidationMessage(err)}
	}

	ok, err := s.repo.ZipExists(ctx, req.ZipCode)
	if err != nil {
		return nil, s.mapError("zip lookup", err)
	}
	if !ok {
		return nil, &locator.Error{Kind: locator.KindOriginNotFound, Message: "unknown location " + req.ZipCode}
	}

	loc := &models.SavedLocation{UserID: userID, Label: req.Label, ZipCode: req.ZipCode, IsPrimary: req.Primary}
	if err := s.repo.Create(ctx, loc); err != nil {
		return nil, s.mapError("create", err)
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "label": loc.Label, "primary": loc.IsPrimary}).Info("saved location created")
	return loc, nil
}

func (s *Service) Delete(ctx context.Context, userID, label string) error {
	if err := s.repo.Delete(ctx, userID, strings.TrimSpace(label)); err != nil {
		return s.mapError("delete", err)
	}
	return nil
}

func (s *Service) SetPrimary(ctx context.Context, userID, label string) error {
	if err := s.repo.SetPrimary(ctx, userID, strings.TrimSpace(label)); err != nil {
		return s.mapError("set primary", err)
	}
	return nil
}

func (s *Service) mapError(op string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return &locator.Error{Kind: locator.KindNotFound, Message: "saved location not found"}
	case errors.Is(err, ErrDuplicateLabel):
		return &locator.Error{Kind: locator.KindConflict, Message: "a location with this label already exists"}
	case errors.Is(err, ErrConcurrentChange):
		return &locator.Error{Kind: locator.KindConflict, Message: "saved locations changed, try again"}
	case errors.Is(err, ErrPrimaryDelete):
		return &locator.Error{Kind: locator.KindConflict, Message: "choose another primary location before deleting this one"}
	}
	s.log.WithError(err).WithField("op", op).Error("saved location store failure")
	return &locator.Error{Kind: locator.KindTransientStore, Message: "store unavailable", Err: err}
}
