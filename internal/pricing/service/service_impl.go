package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/crateflow/internal/audit/domain"
	"github.com/smallbiznis/crateflow/internal/clock"
	"github.com/smallbiznis/crateflow/internal/lock"
	masterdatadomain "github.com/smallbiznis/crateflow/internal/masterdata/domain"
	obsmetrics "github.com/smallbiznis/crateflow/internal/observability/metrics"
	"github.com/smallbiznis/crateflow/internal/observability/tracing"
	pricingdomain "github.com/smallbiznis/crateflow/internal/pricing/domain"
	"github.com/smallbiznis/crateflow/pkg/db"
	"github.com/smallbiznis/crateflow/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Locker     lock.Locker
	Repo       pricingdomain.Repository
	MasterData masterdatadomain.Repository
	AuditSvc   auditdomain.Service
	Metrics    *obsmetrics.BillingMetrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	locker     lock.Locker
	repo       pricingdomain.Repository
	masterData masterdatadomain.Repository
	auditSvc   auditdomain.Service
	metrics    *obsmetrics.BillingMetrics
}

func NewService(p Params) pricingdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("pricing.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		locker:     p.Locker,
		repo:       p.Repo,
		masterData: p.MasterData,
		auditSvc:   p.AuditSvc,
		metrics:    p.Metrics,
	}
}

// Insert appends a price to the pair's timeline. The new entry must be strictly
// later than every existing one.
func (s *Service) Insert(ctx context.Context, req pricingdomain.InsertPriceRequest) (entry pricingdomain.PriceEntry, err error) {
	ctx, span := tracing.Tracer("pricing").Start(ctx, "pricing.Insert")
	defer func() {
		s.metrics.IncOperationError(obsmetrics.OperationInsertPrice, err)
		tracing.EndSpan(span, err)
	}()

	clientID, err := parseID(req.ClientID)
	if err != nil {
		return pricingdomain.PriceEntry{}, pricingdomain.ErrInvalidClient
	}
	containerID, err := parseID(req.ContainerID)
	if err != nil {
		return pricingdomain.PriceEntry{}, pricingdomain.ErrInvalidContainer
	}
	price, err := money.Parse(req.Price)
	if err != nil || price.IsNegative() {
		return pricingdomain.PriceEntry{}, pricingdomain.ErrInvalidPrice
	}

	now := s.clock.Now()
	effectiveFrom := now
	if req.EffectiveFrom != nil && !req.EffectiveFrom.IsZero() {
		effectiveFrom = *req.EffectiveFrom
	}
	effectiveFrom = pricingdomain.NormalizeEffectiveFrom(effectiveFrom)

	release, err := s.locker.Acquire(ctx, lock.PriceKey(clientID, containerID))
	if err != nil {
		return pricingdomain.PriceEntry{}, err
	}
	defer release()

	var previous *pricingdomain.PriceEntry
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensurePair(ctx, tx, clientID, containerID); err != nil {
			return err
		}

		existing, err := s.repo.ListForPair(ctx, tx, clientID, containerID)
		if err != nil {
			return err
		}
		timeline := pricingdomain.NewTimeline(existing)
		if err := timeline.CanAppend(effectiveFrom); err != nil {
			return err
		}
		if latest, ok := timeline.Latest(); ok {
			previous = &latest
		}

		entry = pricingdomain.PriceEntry{
			ID:            s.genID.Generate(),
			ClientID:      clientID,
			ContainerID:   containerID,
			Price:         price,
			EffectiveFrom: effectiveFrom,
			CreatedAt:     now,
		}
		if err := s.repo.Insert(ctx, tx, &entry); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return pricingdomain.ErrDuplicateEffectiveDate
			}
			return err
		}
		return nil
	})
	if err != nil {
		return pricingdomain.PriceEntry{}, err
	}

	metadata := map[string]any{
		"client_id":      clientID.String(),
		"container_id":   containerID.String(),
		"price":          price.StringFixed(2),
		"effective_from": effectiveFrom,
	}
	if previous != nil {
		metadata["previous_price"] = previous.Price.StringFixed(2)
	}
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		Action:     auditdomain.ActionSetPrice,
		EntityType: auditdomain.EntityPrice,
		EntityID:   entry.ID.String(),
		Details:    fmt.Sprintf("price for client %s container %s set to %s", clientID, containerID, price.StringFixed(2)),
		Metadata:   metadata,
	})

	return entry, nil
}

func (s *Service) ensurePair(ctx context.Context, tx *gorm.DB, clientID, containerID snowflake.ID) error {
	client, err := s.masterData.FindClient(ctx, tx, clientID)
	if err != nil {
		return err
	}
	if client == nil {
		return masterdatadomain.ErrClientNotFound
	}
	container, err := s.masterData.FindContainer(ctx, tx, containerID)
	if err != nil {
		return err
	}
	if container == nil {
		return masterdatadomain.ErrContainerNotFound
	}
	return nil
}

// Resolve returns the price in force for the pair at req.At (now when unset).
func (s *Service) Resolve(ctx context.Context, req pricingdomain.ResolvePriceRequest) (pricingdomain.PriceEntry, error) {
	clientID, err := parseID(req.ClientID)
	if err != nil {
		return pricingdomain.PriceEntry{}, pricingdomain.ErrInvalidClient
	}
	containerID, err := parseID(req.ContainerID)
	if err != nil {
		return pricingdomain.PriceEntry{}, pricingdomain.ErrInvalidContainer
	}
	at := s.clock.Now()
	if req.At != nil && !req.At.IsZero() {
		at = req.At.UTC()
	}

	entries, err := s.repo.ListForPair(ctx, s.db, clientID, containerID)
	if err != nil {
		return pricingdomain.PriceEntry{}, err
	}
	entry, ok := pricingdomain.NewTimeline(entries).At(at)
	if !ok {
		return pricingdomain.PriceEntry{}, fmt.Errorf("%w: client %s container %s", pricingdomain.ErrPriceNotSet, clientID, containerID)
	}
	return entry, nil
}

func (s *Service) List(ctx context.Context, req pricingdomain.ListPriceRequest) ([]pricingdomain.PriceEntry, error) {
	var filter pricingdomain.ListFilter
	if strings.TrimSpace(req.ClientID) != "" {
		id, err := parseID(req.ClientID)
		if err != nil {
			return nil, pricingdomain.ErrInvalidClient
		}
		filter.ClientID = &id
	}
	if strings.TrimSpace(req.ContainerID) != "" {
		id, err := parseID(req.ContainerID)
		if err != nil {
			return nil, pricingdomain.ErrInvalidContainer
		}
		filter.ContainerID = &id
	}
	return s.repo.List(ctx, s.db, filter)
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, errors.New("zero id")
	}
	return id, nil
}
