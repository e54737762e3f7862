package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/renderforge/billing/internal/clock"
	"github.com/renderforge/billing/internal/config"
	obsmetrics "github.com/renderforge/billing/internal/observability/metrics"
	"github.com/renderforge/billing/internal/webhookevent/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
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
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	clock      clock.Clock
	lease      time.Duration
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("webhookevent.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		clock:      p.Clock,
		lease:      p.Cfg.ProcessingLease,
		obsMetrics: p.ObsMetrics,
	}
}

// Begin claims an event id for this delivery attempt. The insert is the fast
// path; on conflict the existing record decides whether a redelivery may take
// over. Processed records never run again; failed records always retry;
// processing records retry only once the lease has lapsed.
func (s *Service) Begin(ctx context.Context, eventID, eventType string, payload []byte) (bool, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return false, domain.ErrInvalidEventID
	}

	now := s.clock.Now().UTC()
	inserted, err := s.repo.Insert(ctx, s.db, &domain.EventRecord{
		ID:        s.genID.Generate(),
		EventID:   eventID,
		EventType: eventType,
		Status:    domain.StatusProcessing,
		Payload:   datatypes.JSON(payload),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return false, err
	}
	if inserted {
		return true, nil
	}

	existing, err := s.repo.Find(ctx, s.db, eventID)
	if err != nil {
		return false, err
	}
	if existing.Status == domain.StatusProcessed {
		return false, nil
	}

	// Conditional update keeps concurrent redeliveries from both winning:
	// only one UPDATE matches the failed or stale row.
	reclaimed, err := s.repo.Reclaim(ctx, s.db, eventID, now.Add(-s.lease), now)
	if err != nil {
		return false, err
	}
	if reclaimed {
		s.log.Info("reclaimed webhook event",
			zap.String("event_id", eventID),
			zap.String("previous_status", string(existing.Status)),
		)
	}
	return reclaimed, nil
}

func (s *Service) Complete(ctx context.Context, eventID string) error {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return domain.ErrInvalidEventID
	}
	return s.repo.MarkProcessed(ctx, s.db, eventID, s.clock.Now().UTC())
}

func (s *Service) Fail(ctx context.Context, eventID string, cause error) error {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return domain.ErrInvalidEventID
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.repo.MarkFailed(ctx, s.db, eventID, msg, s.clock.Now().UTC())
}

func (s *Service) Find(ctx context.Context, eventID string) (*domain.EventRecord, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, domain.ErrInvalidEventID
	}
	return s.repo.Find(ctx, s.db, eventID)
}
