package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/ScepterCode/project-nest-api/internal/dto"
	"github.com/ScepterCode/project-nest-api/internal/models"
	"github.com/ScepterCode/project-nest-api/internal/repository"
)

// AuditRecord captures the details of a gated mutation attempt before it is
// persisted.
type AuditRecord struct {
	ActorID    uint
	ActorRole  string
	Action     string
	TargetType string
	TargetID   *uint
	Reason     string
	Outcome    string
	Metadata   map[string]interface{}
}

// AuditLog is the recording capability handed to every mutating service as an
// explicit collaborator, so tests can substitute an in-memory log and assert
// on its contents.
//
// Record persists a standalone entry (denials, failures outside a storage
// transaction). Prepare builds an entry for the repository layer to persist
// inside the same transaction as the mutation it records. Announce publishes
// a committed entry downstream, best-effort.
type AuditLog interface {
	Record(ctx context.Context, rec AuditRecord) error
	Prepare(rec AuditRecord) *models.AuditEntry
	Announce(ctx context.Context, entry *models.AuditEntry)
}

// AuditService exposes the audit log plus history queries.
type AuditService interface {
	AuditLog
	List(ctx context.Context, req dto.AuditListRequest) (dto.AuditListResponse, error)
}

type auditService struct {
	repo    repository.AuditRepository
	nats    *nats.Conn
	subject string
	logger  zerolog.Logger
	tracer  trace.Tracer
}

// NewAuditService constructs the audit log service. The NATS connection is
// optional; when present, committed entries are fanned out to the configured
// subject for downstream consumers.
func NewAuditService(repo repository.AuditRepository, natsConn *nats.Conn, subject string, logger zerolog.Logger) AuditService {
	return &auditService{
		repo:    repo,
		nats:    natsConn,
		subject: subject,
		logger:  logger.With().Str("component", "audit_service").Logger(),
		tracer:  otel.Tracer("github.com/ScepterCode/project-nest-api/internal/service/audit"),
	}
}

func (s *auditService) Prepare(rec AuditRecord) *models.AuditEntry {
	return &models.AuditEntry{
		ActorID:    rec.ActorID,
		ActorRole:  strings.ToLower(strings.TrimSpace(rec.ActorRole)),
		Action:     strings.ToLower(strings.TrimSpace(rec.Action)),
		TargetType: strings.ToLower(strings.TrimSpace(rec.TargetType)),
		TargetID:   rec.TargetID,
		Reason:     strings.TrimSpace(rec.Reason),
		Outcome:    rec.Outcome,
		Metadata:   sanitizeMetadata(rec.Metadata),
	}
}

func (s *auditService) Record(ctx context.Context, rec AuditRecord) error {
	ctx, span := s.tracer.Start(ctx, "audit.record", trace.WithAttributes(
		attribute.String("audit.action", rec.Action),
		attribute.String("audit.outcome", rec.Outcome),
	))
	defer span.End()

	if strings.TrimSpace(rec.Action) == "" {
		return fmt.Errorf("audit action is required")
	}
	if strings.TrimSpace(rec.TargetType) == "" {
		return fmt.Errorf("audit target type is required")
	}

	entry := s.Prepare(rec)
	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("action", entry.Action).Msg("failed to persist audit entry")
		return err
	}

	s.Announce(ctx, entry)
	return nil
}

func (s *auditService) Announce(ctx context.Context, entry *models.AuditEntry) {
	if s.nats == nil || s.subject == "" || entry == nil {
		return
	}

	payload, err := json.Marshal(auditEvent{Entry: dto.NewAuditResponse(*entry), SentAt: time.Now()})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode audit event")
		return
	}

	if err := s.nats.Publish(s.subject, payload); err != nil {
		s.logger.Warn().Err(err).Str("subject", s.subject).Msg("failed to publish audit event")
	}
}

func (s *auditService) List(ctx context.Context, req dto.AuditListRequest) (dto.AuditListResponse, error) {
	filter := repository.AuditFilter{
		Page:       req.Page,
		PageSize:   req.PageSize,
		TargetType: strings.ToLower(strings.TrimSpace(req.TargetType)),
		Action:     strings.ToLower(strings.TrimSpace(req.Action)),
		Outcome:    strings.ToLower(strings.TrimSpace(req.Outcome)),
	}
	if req.ActorID > 0 {
		filter.ActorID = &req.ActorID
	}
	if req.TargetID > 0 {
		filter.TargetID = &req.TargetID
	}

	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return dto.AuditListResponse{}, err
	}

	responses := make([]dto.AuditResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, dto.NewAuditResponse(entry))
	}

	pagination := dto.PaginationMeta{
		Page:       maxInt(req.Page, 1),
		PageSize:   req.PageSize,
		TotalItems: total,
	}
	if req.PageSize > 0 {
		pagination.TotalPages = int(math.Ceil(float64(total) / float64(req.PageSize)))
	} else {
		pagination.TotalPages = 1
	}

	return dto.AuditListResponse{Items: responses, Pagination: pagination}, nil
}

type auditEvent struct {
	Entry  dto.AuditResponse `json:"entry"`
	SentAt time.Time         `json:"sent_at"`
}

func sanitizeMetadata(metadata map[string]interface{}) datatypes.JSONMap {
	if metadata == nil {
		return datatypes.JSONMap{}
	}

	sanitized := datatypes.JSONMap{}
	for key, value := range metadata {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "email") || strings.Contains(lower, "token") {
			sanitized[key] = "***"
			continue
		}
		sanitized[key] = value
	}
	return sanitized
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
