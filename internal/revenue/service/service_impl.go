package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/renderforge/billing/internal/clock"
	"github.com/renderforge/billing/internal/config"
	obsmetrics "github.com/renderforge/billing/internal/observability/metrics"
	"github.com/renderforge/billing/internal/revenue/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Clock      clock.Clock
	Cfg        config.Config
	FeeLookup  domain.FeeLookup    `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	clock      clock.Clock
	feeRateBps int64
	feeFixed   int64
	feeLookup  domain.FeeLookup
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("revenue.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		clock:      p.Clock,
		feeRateBps: p.Cfg.FeeRateBps,
		feeFixed:   p.Cfg.FeeFixedCents,
		feeLookup:  p.FeeLookup,
		obsMetrics: p.ObsMetrics,
	}
}

// Record stores one revenue event. The estimate is always computed and kept;
// the actual fee, when available, sits alongside it as corroborating data.
func (s *Service) Record(ctx context.Context, req domain.RecordRequest) (snowflake.ID, error) {
	req.EventID = strings.TrimSpace(req.EventID)
	if req.EventID == "" {
		return 0, domain.ErrInvalidEventID
	}
	if req.Amount < 0 {
		return 0, domain.ErrInvalidAmount
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		return 0, domain.ErrInvalidCurrency
	}

	estimated := s.estimateFee(req.Amount)

	var actual *int64
	if s.feeLookup != nil && req.ObjectID != "" {
		fee, err := s.feeLookup.ActualFee(ctx, req.ObjectID)
		if err != nil {
			s.log.Debug("fee lookup failed, using estimate",
				zap.String("object_id", req.ObjectID),
				zap.Error(err),
			)
		} else {
			actual = &fee
		}
	}

	fee := estimated
	if actual != nil {
		fee = *actual
	}
	net := req.Amount - fee
	if net < 0 {
		net = 0
	}

	event := &domain.Event{
		ID:           s.genID.Generate(),
		EventID:      req.EventID,
		ObjectID:     req.ObjectID,
		CustomerID:   req.CustomerID,
		Source:       req.Source,
		Amount:       req.Amount,
		Currency:     currency,
		EstimatedFee: estimated,
		ActualFee:    actual,
		NetAmount:    net,
		OccurredAt:   req.OccurredAt.UTC(),
		CreatedAt:    s.clock.Now().UTC(),
	}
	if req.UserID != 0 {
		userID := req.UserID
		event.UserID = &userID
	}

	inserted, err := s.repo.Insert(ctx, s.db, event)
	if err != nil {
		return 0, err
	}
	if !inserted {
		existing, err := s.repo.FindByEventID(ctx, s.db, req.EventID)
		if err != nil {
			return 0, err
		}
		return existing.ID, nil
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordRevenueEvent(ctx, string(req.Source))
	}
	return event.ID, nil
}

func (s *Service) FindByEventID(ctx context.Context, eventID string) (*domain.Event, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, domain.ErrInvalidEventID
	}
	return s.repo.FindByEventID(ctx, s.db, eventID)
}

func (s *Service) estimateFee(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	return amount*s.feeRateBps/10_000 + s.feeFixed
}
