package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/leadintake/internal/config"
	"github.com/JonMunkholm/leadintake/internal/partner"
	"github.com/JonMunkholm/leadintake/internal/schema"
	"github.com/JonMunkholm/leadintake/internal/store"
)

type fakePartner struct {
	forwardErr error
	forwarded  []*schema.Lead
	isTest     []bool
	sent       []partner.SendLead
}

func (f *fakePartner) SendLead(_ context.Context, lead partner.SendLead) (*partner.SendResult, error) {
	f.sent = append(f.sent, lead)
	return &partner.SendResult{StatusCode: 200, Accepted: &partner.Accepted{LeadID: 9, Status: "ok"}}, nil
}

func (f *fakePartner) ForwardLead(_ context.Context, lead *schema.Lead, isTest bool) (*partner.ForwardResult, error) {
	if f.forwardErr != nil {
		return nil, f.forwardErr
	}
	f.forwarded = append(f.forwarded, lead)
	f.isTest = append(f.isTest, isTest)
	return &partner.ForwardResult{ID: json.RawMessage(`1`), Status: "accepted"}, nil
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Upload: config.UploadConfig{MaxConcurrent: 2, MaxWaitTime: time.Second, Timeout: time.Minute},
		Export: config.ExportConfig{TempDir: t.TempDir()},
	}
}

func newTestService(t *testing.T, p Partner) (*Service, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	return NewService(s, p, testConfig(t)), s
}

// ============================================================================
// CRUD
// ============================================================================

func TestService_LeadLifecycle(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	created, err := svc.CreateLead(ctx, leadRecord(t, schema.ExampleLead()))
	require.NoError(t, err)

	got, err := svc.GetLead(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "stream1", got.Stream)

	changed := schema.ExampleLead()
	changed.Stream = "renamed"
	updated, err := svc.UpdateLead(ctx, created.ID, leadRecord(t, changed))
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Stream)
	assert.Equal(t, created.ID, updated.ID)

	require.NoError(t, svc.DeleteLead(ctx, created.ID))
	_, err = svc.GetLead(ctx, created.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_UpdateRejectsInvalid(t *testing.T) {
	svc, s := newTestService(t, nil)
	ctx := context.Background()
	created, err := svc.CreateLead(ctx, leadRecord(t, schema.ExampleLead()))
	require.NoError(t, err)

	bad := schema.ExampleLead()
	bad.Product = 7
	_, err = svc.UpdateLead(ctx, created.ID, leadRecord(t, bad))
	var sve *SchemaValidationError
	require.True(t, errors.As(err, &sve))

	stored, err := s.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Product)
}

func TestService_ListLeads(t *testing.T) {
	svc, s := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.ListLeads(ctx, store.Filter{})
	assert.ErrorIs(t, err, ErrNoLeads)

	_, err = s.CreateMany(ctx, sampleLeads(DefaultPageSize+5))
	require.NoError(t, err)

	page, err := svc.ListLeads(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, page.Count)
	assert.Len(t, page.Data, DefaultPageSize)

	skip := DefaultPageSize
	page, err = svc.ListLeads(ctx, store.Filter{Skip: &skip})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Count)
}

// ============================================================================
// Ingest
// ============================================================================

func TestService_IngestFile(t *testing.T) {
	svc, s := newTestService(t, nil)

	result, err := svc.IngestFile(context.Background(), "leads.csv", leadCSV(t, sampleLeads(4)...), IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Created)
	assert.Equal(t, 4, s.Len())
	assert.Equal(t, 0, svc.IngestStatus().Active)
}

func TestService_IngestAfterDrain(t *testing.T) {
	svc, s := newTestService(t, nil)
	require.NoError(t, svc.Drain(context.Background()))

	_, err := svc.IngestFile(context.Background(), "leads.csv", leadCSV(t, sampleLeads(1)...), IngestOptions{})
	assert.ErrorIs(t, err, ErrShuttingDown)
	assert.Equal(t, 0, s.Len())
	assert.True(t, svc.IngestStatus().Draining)
}

// ============================================================================
// Partners
// ============================================================================

func TestService_ForwardLead(t *testing.T) {
	fp := &fakePartner{}
	svc, s := newTestService(t, fp)

	result, err := svc.ForwardLead(context.Background(), leadRecord(t, schema.ExampleLead()), false)
	require.NoError(t, err)

	require.Len(t, fp.forwarded, 1)
	assert.Equal(t, []bool{false}, fp.isTest)
	assert.Equal(t, "accepted", result.Partner.Status)

	require.NotNil(t, result.Lead)
	assert.False(t, result.Lead.Meta.IsTest)
	assert.Equal(t, "token", result.Lead.APIToken)
	assert.Equal(t, 1, s.Len())
}

func TestService_ForwardLeadNotStoredOnPartnerFailure(t *testing.T) {
	upstream := &partner.UpstreamError{Partner: partner.Leadcraft, StatusCode: 400, Body: []byte(`{}`)}
	svc, s := newTestService(t, &fakePartner{forwardErr: upstream})

	_, err := svc.ForwardLead(context.Background(), leadRecord(t, schema.ExampleLead()), true)

	var ue *partner.UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, 0, s.Len())
}

func TestService_ForwardLeadValidatesFirst(t *testing.T) {
	fp := &fakePartner{}
	svc, _ := newTestService(t, fp)

	bad := schema.ExampleLead()
	bad.User.Phone = 123
	_, err := svc.ForwardLead(context.Background(), leadRecord(t, bad), true)

	var sve *SchemaValidationError
	require.True(t, errors.As(err, &sve))
	assert.Empty(t, fp.forwarded)
}

func TestService_PartnerNotConfigured(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.SendToPartner(context.Background(), partner.SendLead{Phone: 79990000000, Campaign: "c"})
	assert.ErrorIs(t, err, partner.ErrNotConfigured)

	_, err = svc.ForwardLead(context.Background(), leadRecord(t, schema.ExampleLead()), true)
	assert.ErrorIs(t, err, partner.ErrNotConfigured)
}

func TestService_SendToPartner(t *testing.T) {
	fp := &fakePartner{}
	svc, _ := newTestService(t, fp)

	result, err := svc.SendToPartner(context.Background(), partner.SendLead{Phone: 79990000000, Campaign: "c"})
	require.NoError(t, err)
	assert.Equal(t, int64(9), result.Accepted.LeadID)
	require.Len(t, fp.sent, 1)
}
