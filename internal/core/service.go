package core

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/leadintake/internal/config"
	"github.com/JonMunkholm/leadintake/internal/logging"
	"github.com/JonMunkholm/leadintake/internal/partner"
	"github.com/JonMunkholm/leadintake/internal/pathmap"
	"github.com/JonMunkholm/leadintake/internal/schema"
	"github.com/JonMunkholm/leadintake/internal/store"
)

// DefaultIngestTimeout bounds a single bulk ingest when none is configured.
const DefaultIngestTimeout = 10 * time.Minute

// DefaultPageSize is the number of leads listed when take is not given.
const DefaultPageSize = 50

// Partner forwards leads to downstream systems. *partner.Client is the
// production implementation.
type Partner interface {
	SendLead(ctx context.Context, lead partner.SendLead) (*partner.SendResult, error)
	ForwardLead(ctx context.Context, lead *schema.Lead, isTest bool) (*partner.ForwardResult, error)
}

// Service is the entry point for lead operations used by the HTTP and CLI
// layers.
type Service struct {
	store         store.Store
	pipeline      *Pipeline
	partner       Partner
	limiter       *IngestLimiter
	ingestTimeout time.Duration
}

// NewService wires a service from config. p may be nil when no partner is
// configured.
func NewService(s store.Store, p Partner, cfg *config.Config, opts ...PipelineOption) *Service {
	timeout := cfg.Upload.Timeout
	if timeout <= 0 {
		timeout = DefaultIngestTimeout
	}
	opts = append([]PipelineOption{WithTempDir(cfg.Export.TempDir)}, opts...)

	return &Service{
		store:         s,
		pipeline:      NewPipeline(s, opts...),
		partner:       p,
		limiter:       NewIngestLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		ingestTimeout: timeout,
	}
}

// Pipeline returns the underlying ingest pipeline.
func (s *Service) Pipeline() *Pipeline { return s.pipeline }

// CreateLead validates one nested record and stores it.
func (s *Service) CreateLead(ctx context.Context, rec *pathmap.Record) (*schema.StoredLead, error) {
	return s.pipeline.IngestRecord(ctx, rec)
}

// IngestFile runs a bulk ingest while holding an ingest slot.
func (s *Service) IngestFile(ctx context.Context, fileName string, data []byte, opts IngestOptions) (*IngestResult, error) {
	var result *IngestResult
	err := s.limiter.Run(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, s.ingestTimeout)
		defer cancel()

		var err error
		result, err = s.pipeline.Ingest(ctx, fileName, data, opts)
		return err
	})
	return result, err
}

// GetLead returns the lead with id or store.ErrNotFound.
func (s *Service) GetLead(ctx context.Context, id int64) (*schema.StoredLead, error) {
	lead, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if lead == nil {
		return nil, store.ErrNotFound
	}
	return lead, nil
}

// ListResult is one page of leads.
type ListResult struct {
	Data  []*schema.StoredLead `json:"data"`
	Count int                  `json:"count"`
}

// ListLeads returns leads matching filter. Take defaults to DefaultPageSize.
// An empty page is ErrNoLeads.
func (s *Service) ListLeads(ctx context.Context, filter store.Filter) (*ListResult, error) {
	if filter.Take == nil {
		take := DefaultPageSize
		filter.Take = &take
	}
	leads, err := s.store.FindMany(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(leads) == 0 {
		return nil, ErrNoLeads
	}
	return &ListResult{Data: leads, Count: len(leads)}, nil
}

// UpdateLead validates rec and replaces the lead with id.
func (s *Service) UpdateLead(ctx context.Context, id int64, rec *pathmap.Record) (*schema.StoredLead, error) {
	lead, err := s.pipeline.Validate(rec)
	if err != nil {
		return nil, err
	}
	return s.store.Update(ctx, id, lead)
}

// DeleteLead removes the lead with id.
func (s *Service) DeleteLead(ctx context.Context, id int64) error {
	return s.store.Delete(ctx, id)
}

// ExportLeads writes matching leads to a file. The caller removes it.
func (s *Service) ExportLeads(ctx context.Context, filter store.Filter, ext FileExt) (*ExportFile, error) {
	return s.pipeline.Export(ctx, filter, ext)
}

// Template writes a lead file template. The caller removes it.
func (s *Service) Template(ctx context.Context, ext FileExt, exampleRow bool) (*ExportFile, error) {
	return s.pipeline.Template(ctx, ext, exampleRow)
}

// SendToPartner posts a short lead to UNICORE.
func (s *Service) SendToPartner(ctx context.Context, lead partner.SendLead) (*partner.SendResult, error) {
	if s.partner == nil {
		return nil, partner.ErrNotConfigured
	}
	return s.partner.SendLead(ctx, lead)
}

// ForwardResult pairs LEADCRAFT's answer with the stored lead.
type ForwardResult struct {
	Partner *partner.ForwardResult `json:"partner"`
	Lead    *schema.StoredLead     `json:"lead"`
}

// ForwardLead validates rec, forwards it to LEADCRAFT and, once accepted,
// stores it with meta.is_test set to isTest. Nothing is stored when the
// partner call fails.
func (s *Service) ForwardLead(ctx context.Context, rec *pathmap.Record, isTest bool) (*ForwardResult, error) {
	if s.partner == nil {
		return nil, partner.ErrNotConfigured
	}
	lead, err := s.pipeline.Validate(rec)
	if err != nil {
		return nil, err
	}

	resp, err := s.partner.ForwardLead(ctx, lead, isTest)
	if err != nil {
		return nil, err
	}

	lead.Meta.IsTest = isTest
	stored, err := s.store.Create(ctx, lead)
	if err != nil {
		logging.FromContext(ctx).Error("forwarded lead not stored",
			"partner_status", resp.Status,
			"error", err,
		)
		return nil, fmt.Errorf("store forwarded lead: %w", err)
	}
	return &ForwardResult{Partner: resp, Lead: stored}, nil
}

// IngestStatus reports the ingest limiter state.
func (s *Service) IngestStatus() IngestLimiterStatus {
	return s.limiter.Status()
}

// Drain stops accepting ingests and waits for running ones.
func (s *Service) Drain(ctx context.Context) error {
	if err := s.limiter.Drain(ctx); err != nil {
		return fmt.Errorf("drain ingests: %w", err)
	}
	return nil
}
