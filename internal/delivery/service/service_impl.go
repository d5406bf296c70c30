package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/crateflow/internal/audit/domain"
	"github.com/smallbiznis/crateflow/internal/clock"
	deliverydomain "github.com/smallbiznis/crateflow/internal/delivery/domain"
	masterdatadomain "github.com/smallbiznis/crateflow/internal/masterdata/domain"
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
	Repo       deliverydomain.Repository
	MasterData masterdatadomain.Repository
	AuditSvc   auditdomain.Service
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       deliverydomain.Repository
	masterData masterdatadomain.Repository
	auditSvc   auditdomain.Service
}

func NewService(p Params) deliverydomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("delivery.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		masterData: p.MasterData,
		auditSvc:   p.AuditSvc,
	}
}

// RecordTrip stores the container lines of one trip as unbilled deliveries.
func (s *Service) RecordTrip(ctx context.Context, req deliverydomain.RecordTripRequest) (deliverydomain.RecordTripResponse, error) {
	clientID, err := parseID(req.ClientID)
	if err != nil {
		return deliverydomain.RecordTripResponse{}, deliverydomain.ErrInvalidClient
	}
	if len(req.Lines) == 0 {
		return deliverydomain.RecordTripResponse{}, deliverydomain.ErrEmptyTrip
	}

	tripID := s.genID.Generate()
	if strings.TrimSpace(req.TripID) != "" {
		tripID, err = parseID(req.TripID)
		if err != nil {
			return deliverydomain.RecordTripResponse{}, deliverydomain.ErrInvalidTrip
		}
	}

	var driverID *snowflake.ID
	if strings.TrimSpace(req.DriverID) != "" {
		id, err := parseID(req.DriverID)
		if err != nil {
			return deliverydomain.RecordTripResponse{}, deliverydomain.ErrInvalidTrip
		}
		driverID = &id
	}

	now := s.clock.Now()
	deliveredAt := now
	if req.DeliveredAt != nil && !req.DeliveredAt.IsZero() {
		deliveredAt = req.DeliveredAt.UTC()
	}

	var deliveries []deliverydomain.Delivery
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		client, err := s.masterData.FindClient(ctx, tx, clientID)
		if err != nil {
			return err
		}
		if client == nil {
			return masterdatadomain.ErrClientNotFound
		}
		if !client.IsActive {
			return masterdatadomain.ErrClientInactive
		}

		deliveries = make([]deliverydomain.Delivery, 0, len(req.Lines))
		for _, line := range req.Lines {
			containerID, err := parseID(line.ContainerID)
			if err != nil {
				return deliverydomain.ErrInvalidContainer
			}
			container, err := s.masterData.FindContainer(ctx, tx, containerID)
			if err != nil {
				return err
			}
			if container == nil || !container.IsActive {
				return fmt.Errorf("%w: %s", masterdatadomain.ErrContainerNotFound, containerID)
			}
			if err := validateLine(line, container.IsReturnable); err != nil {
				return err
			}

			deliveries = append(deliveries, deliverydomain.Delivery{
				ID:           s.genID.Generate(),
				ClientID:     clientID,
				TripID:       tripID,
				DriverID:     driverID,
				ContainerID:  containerID,
				DeliveredQty: line.DeliveredQty,
				ReturnedQty:  line.ReturnedQty,
				DeliveredAt:  deliveredAt,
				CreatedAt:    now,
			})
		}

		return s.repo.InsertBatch(ctx, tx, deliveries)
	})
	if err != nil {
		return deliverydomain.RecordTripResponse{}, err
	}

	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		Action:     auditdomain.ActionRecordDelivery,
		EntityType: auditdomain.EntityClient,
		EntityID:   clientID.String(),
		Details:    fmt.Sprintf("trip %s recorded with %d container lines", tripID, len(deliveries)),
		Metadata: map[string]any{
			"trip_id": tripID.String(),
			"lines":   len(deliveries),
		},
	})

	return deliverydomain.RecordTripResponse{TripID: tripID, Deliveries: deliveries}, nil
}

func validateLine(line deliverydomain.RecordLine, returnable bool) error {
	if line.DeliveredQty < 0 || line.ReturnedQty < 0 {
		return deliverydomain.ErrInvalidQuantity
	}
	if line.DeliveredQty == 0 && line.ReturnedQty == 0 {
		return deliverydomain.ErrInvalidQuantity
	}
	if !returnable && line.ReturnedQty > 0 {
		return fmt.Errorf("%w: container is not returnable", deliverydomain.ErrInvalidQuantity)
	}
	return nil
}

func (s *Service) ListUnbilled(ctx context.Context, clientID string) ([]deliverydomain.Delivery, error) {
	id, err := parseID(clientID)
	if err != nil {
		return nil, deliverydomain.ErrInvalidClient
	}
	return s.repo.ListUnbilled(ctx, s.db, id)
}

func (s *Service) ListByInvoice(ctx context.Context, invoiceID string) ([]deliverydomain.Delivery, error) {
	id, err := parseID(invoiceID)
	if err != nil {
		return nil, deliverydomain.ErrInvalidInvoice
	}
	return s.repo.ListByInvoice(ctx, s.db, id)
}

// ContainerBalance reports delivered minus returned per returnable container.
func (s *Service) ContainerBalance(ctx context.Context, clientID string) ([]deliverydomain.ContainerBalance, error) {
	id, err := parseID(clientID)
	if err != nil {
		return nil, deliverydomain.ErrInvalidClient
	}
	client, err := s.masterData.FindClient(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, masterdatadomain.ErrClientNotFound
	}

	rows, err := s.repo.SumByContainer(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Outstanding = rows[i].Delivered - rows[i].Returned
	}
	return rows, nil
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}
