package contacts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tenantID = "5b3c2a7e-1f0d-4e7b-9a61-2f4c8d9e0a11"

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+1 (555) 123-0000", "+15551230000"},
		{"5551230000", "+15551230000"},
		{"+445551230000", "+445551230000"},
		{"15551230000", "+15551230000"},
		{"", ""},
		{"anonymous", ""},
		{"123", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhone(tt.in))
		})
	}
}

func TestNewPlaceholder(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := NewPlaceholder(tenantID, "+15551230000", now)
	b := NewPlaceholder(tenantID, "+15551230000", now)

	assert.Equal(t, "Unknown", a.FirstName)
	assert.Equal(t, StatusLead, a.Status)
	assert.Equal(t, NeutralLeadScore, a.LeadScore)
	assert.Equal(t, SourceVoiceCall, a.Source)
	assert.True(t, strings.HasPrefix(a.Email, "unknown+15551230000."))
	assert.NotEqual(t, a.Email, b.Email, "placeholder emails must be unique")
	assert.True(t, a.IsPlaceholder())
	assert.False(t, (&Contact{FirstName: "Dana", Email: "dana@example.com"}).IsPlaceholder())
}

func TestResolverCreatesOnceThenReuses(t *testing.T) {
	repo := NewInMemoryRepository()
	resolver := NewResolver(repo, nil)
	ctx := context.Background()

	first, created, err := resolver.Resolve(ctx, tenantID, "(555) 123-0000")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "+15551230000", first.Phone)

	second, created, err := resolver.Resolve(ctx, tenantID, "+15551230000")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, repo.Count(tenantID))

	other, created, err := resolver.Resolve(ctx, "0f8a3a56-9e8d-4f52-8b8e-4d9b2c1a7f00", "+15551230000")
	require.NoError(t, err)
	assert.True(t, created, "same phone in another tenant is a different contact")
	assert.NotEqual(t, first.ID, other.ID)
}

func TestResolverConcurrentSamePhone(t *testing.T) {
	repo := NewInMemoryRepository()
	resolver := NewResolver(repo, nil)

	var wg sync.WaitGroup
	ids := make([]string, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, _, err := resolver.Resolve(context.Background(), tenantID, "+15551230000")
			if err == nil {
				ids[i] = c.ID
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, repo.Count(tenantID))
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestResolverNoPhone(t *testing.T) {
	_, _, err := NewResolver(NewInMemoryRepository(), nil).Resolve(context.Background(), tenantID, "")
	assert.ErrorIs(t, err, ErrNoPhone)
}

type failingRepo struct{ Repository }

func (failingRepo) FindByPhone(context.Context, string, string) (*Contact, error) {
	return nil, errors.New("db down")
}

func TestResolverPropagatesLookupErrors(t *testing.T) {
	_, _, err := NewResolver(failingRepo{}, nil).Resolve(context.Background(), tenantID, "+15551230000")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrContactNotFound)
}

var contactCols = []string{"id", "tenant_id", "first_name", "last_name", "email", "phone", "status", "lead_score", "source", "created_at", "updated_at"}

func contactRow(c *Contact) *pgxmock.Rows {
	return pgxmock.NewRows(contactCols).AddRow(c.ID, c.TenantID, c.FirstName, c.LastName, c.Email, c.Phone, c.Status, c.LeadScore, c.Source, c.CreatedAt, c.UpdatedAt)
}

func TestPostgresFindByPhone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	want := NewPlaceholder(tenantID, "+15551230000", time.Now().UTC())
	mock.ExpectQuery("SELECT id, tenant_id").WithArgs(tenantID, "+15551230000").WillReturnRows(contactRow(want))
	mock.ExpectQuery("SELECT id, tenant_id").WithArgs(tenantID, "+15559999999").WillReturnError(pgx.ErrNoRows)

	repo := NewPostgresRepository(mock)
	got, err := repo.FindByPhone(context.Background(), tenantID, "+15551230000")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)

	_, err = repo.FindByPhone(context.Background(), tenantID, "+15559999999")
	assert.ErrorIs(t, err, ErrContactNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateIfAbsentInserts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	c := NewPlaceholder(tenantID, "+15551230000", time.Now().UTC())
	mock.ExpectQuery("INSERT INTO contacts").
		WithArgs(c.ID, c.TenantID, c.FirstName, c.LastName, c.Email, c.Phone, c.Status, c.LeadScore, c.Source, c.CreatedAt, c.UpdatedAt).
		WillReturnRows(contactRow(c))

	got, created, err := NewPostgresRepository(mock).CreateIfAbsent(context.Background(), c)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, c.ID, got.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateIfAbsentLosesRace(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mine := NewPlaceholder(tenantID, "+15551230000", time.Now().UTC())
	winner := NewPlaceholder(tenantID, "+15551230000", time.Now().UTC())
	mock.ExpectQuery("INSERT INTO contacts").WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT id, tenant_id").WithArgs(tenantID, "+15551230000").WillReturnRows(contactRow(winner))

	got, created, err := NewPostgresRepository(mock).CreateIfAbsent(context.Background(), mine)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, winner.ID, got.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateIfAbsentError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO contacts").WillReturnError(errors.New("unique violation on email"))
	_, _, err = NewPostgresRepository(mock).CreateIfAbsent(context.Background(), NewPlaceholder(tenantID, "+15551230000", time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contacts: insert failed")
}
