package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/attaboy/tracking/internal/domain"
	"github.com/attaboy/tracking/internal/infra"
	"github.com/attaboy/tracking/internal/repository"
	"github.com/attaboy/tracking/internal/tracking"
)

// ConversionService records conversions reported by network postbacks.
type ConversionService struct {
	db       repository.DBTX
	clicks   repository.ClickRepository
	offers   repository.OfferRepository
	leads    repository.LeadRepository
	recorder *tracking.Recorder
	logger   *slog.Logger
}

// NewConversionService creates a ConversionService.
func NewConversionService(db repository.DBTX, clicks repository.ClickRepository, offers repository.OfferRepository, leads repository.LeadRepository, recorder *tracking.Recorder, logger *slog.Logger) *ConversionService {
	return &ConversionService{db: db, clicks: clicks, offers: offers, leads: leads, recorder: recorder, logger: logger}
}

// PostbackInput holds the raw postback parameters.
type PostbackInput struct {
	NetworkID     string `json:"-"`
	ClickID       string `json:"click_id"`
	OfferID       string `json:"offer_id,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Value         string `json:"value,omitempty"`
	Status        string `json:"status,omitempty"`
}

// RecordPostback records a conversion for a stored click. The offer defaults
// to the click's offer and the value to the offer value. The visitor's most
// recent lead, if any, is attached.
func (s *ConversionService) RecordPostback(ctx context.Context, in PostbackInput) (*domain.Conversion, error) {
	if err := domain.ValidateIdentifier("click_id", in.ClickID); err != nil {
		return nil, err
	}
	status, err := domain.ParseConversionStatus(in.Status)
	if err != nil {
		return nil, err
	}
	var value *int64
	if in.Value != "" {
		cents, err := infra.ParseAmountCents(in.Value)
		if err != nil {
			return nil, domain.ErrValidation(err.Error())
		}
		value = &cents
	}

	click, err := s.clicks.FindByID(ctx, s.db, in.ClickID)
	if err != nil {
		return nil, domain.ErrInternal("load click", err)
	}
	if click == nil {
		return nil, domain.ErrNotFound("click", in.ClickID)
	}

	offerID := in.OfferID
	if offerID == "" {
		offerID = click.OfferID
	}
	if offerID == "" {
		return nil, domain.ErrValidation("offer_id is required for clicks without an offer")
	}
	offer, err := s.offers.FindByID(ctx, s.db, offerID)
	if err != nil {
		return nil, domain.ErrInternal("load offer", err)
	}
	if offer == nil {
		return nil, domain.ErrNotFound("offer", offerID)
	}

	var leadID string
	lead, err := s.leads.FindMostRecentByVisitor(ctx, s.db, click.VisitorID)
	if err != nil {
		s.logger.Warn("lead lookup failed, recording conversion without lead", "visitor_id", click.VisitorID, "error", err)
	} else if lead != nil {
		leadID = lead.ID
	}

	meta, _ := json.Marshal(map[string]string{"network_id": in.NetworkID})
	conv, err := s.recorder.RecordConversion(ctx, tracking.ConversionInput{
		ClickID:       click.ID,
		VisitorID:     click.VisitorID,
		LeadID:        leadID,
		TransactionID: in.TransactionID,
		Offer:         offer,
		ValueCents:    value,
		Status:        status,
		Metadata:      meta,
		Origin:        tracking.OriginPostback,
	})
	if err != nil {
		if _, ok := domain.AsAppError(err); ok {
			return nil, err
		}
		return nil, domain.ErrInternal("record conversion", err)
	}

	s.logger.Info("postback conversion recorded",
		"conversion_id", conv.ID, "click_id", click.ID, "offer_id", offer.ID, "network_id", in.NetworkID)
	return conv, nil
}
