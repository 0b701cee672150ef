package store

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"sort"
	"time"

	"entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/territoryengine/pkg/database"
	"github.com/jordanlanch/territoryengine/pkg/domain"
	"github.com/jordanlanch/territoryengine/pkg/models"
)

// lookupBatchSize caps the ids bound into one IN clause. SQLite allows
// 32766 parameters per statement and PostgreSQL 65535.
const lookupBatchSize = 500

var (
	leadColumns         = []string{"id", "title", "lead_value", "stage_code", "source", "industry", "country", "region", "city", "user_id", "created_at", "updated_at"}
	organizationColumns = []string{"id", "name", "industry", "country", "region", "city", "employee_count", "annual_revenue", "user_id", "created_at", "updated_at"}
	personColumns       = []string{"id", "name", "email", "job_title", "organization_id", "country", "city", "user_id", "created_at", "updated_at"}
)

// LeadStore reads and writes leads.
type LeadStore struct {
	drv     *sql.Driver
	dialect string
}

// NewLeadStore creates a lead store.
func NewLeadStore(db *database.Client) *LeadStore {
	return &LeadStore{drv: db.Driver, dialect: db.Dialect()}
}

// Create inserts a lead.
func (s *LeadStore) Create(ctx context.Context, l *models.Lead) error {
	query, args := sql.Dialect(s.dialect).
		Insert("leads").
		Columns(leadColumns...).
		Values(l.ID, l.Title, l.LeadValue, l.StageCode, l.Source, l.Industry, l.Country, l.Region, l.City,
			nullString(l.UserID), utc(l.CreatedAt), utc(l.UpdatedAt)).
		Query()
	if err := s.drv.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("failed to create lead: %w", err)
	}
	return nil
}

// Save persists the lead's mutable fields.
func (s *LeadStore) Save(ctx context.Context, l *models.Lead) error {
	l.UpdatedAt = time.Now().UTC()
	query, args := sql.Dialect(s.dialect).
		Update("leads").
		Set("title", l.Title).
		Set("lead_value", l.LeadValue).
		Set("stage_code", l.StageCode).
		Set("source", l.Source).
		Set("industry", l.Industry).
		Set("country", l.Country).
		Set("region", l.Region).
		Set("city", l.City).
		Set("user_id", nullString(l.UserID)).
		Set("updated_at", l.UpdatedAt).
		Where(sql.EQ("id", l.ID)).
		Query()
	return saveResult(ctx, s.drv, "lead", query, args)
}

// Find returns the lead or a not found error.
func (s *LeadStore) Find(ctx context.Context, id string) (*models.Lead, error) {
	leads, err := s.list(ctx, sql.EQ("id", id))
	if err != nil {
		return nil, err
	}
	if len(leads) == 0 {
		return nil, domain.NewNotFoundError("lead")
	}
	return leads[0], nil
}

// FindByIDs returns the leads that exist among ids, ordered by creation.
// Lookups are split into batches of lookupBatchSize ids so large territories
// stay under the drivers' bind parameter limits.
func (s *LeadStore) FindByIDs(ctx context.Context, ids []string) ([]*models.Lead, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var leads []*models.Lead
	for start := 0; start < len(ids); start += lookupBatchSize {
		end := min(start+lookupBatchSize, len(ids))
		args := make([]any, end-start)
		for i, id := range ids[start:end] {
			args[i] = id
		}
		batch, err := s.list(ctx, sql.In("id", args...))
		if err != nil {
			return nil, err
		}
		leads = append(leads, batch...)
	}

	if len(ids) > lookupBatchSize {
		sort.SliceStable(leads, func(i, j int) bool {
			if !leads[i].CreatedAt.Equal(leads[j].CreatedAt) {
				return leads[i].CreatedAt.Before(leads[j].CreatedAt)
			}
			return leads[i].ID < leads[j].ID
		})
	}
	return leads, nil
}

func (s *LeadStore) list(ctx context.Context, pred *sql.Predicate) ([]*models.Lead, error) {
	query, args := sql.Dialect(s.dialect).
		Select(leadColumns...).
		From(sql.Table("leads")).
		Where(pred).
		OrderBy("created_at", "id").
		Query()

	var leads []*models.Lead
	err := queryRows(ctx, s.drv, query, args, func(row scanner) error {
		var (
			l      models.Lead
			userID stdsql.NullString
		)
		if err := row.Scan(&l.ID, &l.Title, &l.LeadValue, &l.StageCode, &l.Source, &l.Industry, &l.Country,
			&l.Region, &l.City, &userID, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return err
		}
		l.UserID = userID.String
		leads = append(leads, &l)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	return leads, nil
}

// OrganizationStore reads and writes organizations.
type OrganizationStore struct {
	drv     *sql.Driver
	dialect string
}

// NewOrganizationStore creates an organization store.
func NewOrganizationStore(db *database.Client) *OrganizationStore {
	return &OrganizationStore{drv: db.Driver, dialect: db.Dialect()}
}

// Create inserts an organization.
func (s *OrganizationStore) Create(ctx context.Context, o *models.Organization) error {
	query, args := sql.Dialect(s.dialect).
		Insert("organizations").
		Columns(organizationColumns...).
		Values(o.ID, o.Name, o.Industry, o.Country, o.Region, o.City, o.EmployeeCount, o.AnnualRevenue,
			nullString(o.UserID), utc(o.CreatedAt), utc(o.UpdatedAt)).
		Query()
	if err := s.drv.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

// Save persists the organization's mutable fields.
func (s *OrganizationStore) Save(ctx context.Context, o *models.Organization) error {
	o.UpdatedAt = time.Now().UTC()
	query, args := sql.Dialect(s.dialect).
		Update("organizations").
		Set("name", o.Name).
		Set("industry", o.Industry).
		Set("country", o.Country).
		Set("region", o.Region).
		Set("city", o.City).
		Set("employee_count", o.EmployeeCount).
		Set("annual_revenue", o.AnnualRevenue).
		Set("user_id", nullString(o.UserID)).
		Set("updated_at", o.UpdatedAt).
		Where(sql.EQ("id", o.ID)).
		Query()
	return saveResult(ctx, s.drv, "organization", query, args)
}

// Find returns the organization or a not found error.
func (s *OrganizationStore) Find(ctx context.Context, id string) (*models.Organization, error) {
	query, args := sql.Dialect(s.dialect).
		Select(organizationColumns...).
		From(sql.Table("organizations")).
		Where(sql.EQ("id", id)).
		Query()

	var found *models.Organization
	err := queryRows(ctx, s.drv, query, args, func(row scanner) error {
		var (
			o      models.Organization
			userID stdsql.NullString
		)
		if err := row.Scan(&o.ID, &o.Name, &o.Industry, &o.Country, &o.Region, &o.City, &o.EmployeeCount,
			&o.AnnualRevenue, &userID, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return err
		}
		o.UserID = userID.String
		found = &o
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query organization: %w", err)
	}
	if found == nil {
		return nil, domain.NewNotFoundError("organization")
	}
	return found, nil
}

// PersonStore reads and writes persons.
type PersonStore struct {
	drv     *sql.Driver
	dialect string
}

// NewPersonStore creates a person store.
func NewPersonStore(db *database.Client) *PersonStore {
	return &PersonStore{drv: db.Driver, dialect: db.Dialect()}
}

// Create inserts a person.
func (s *PersonStore) Create(ctx context.Context, p *models.Person) error {
	query, args := sql.Dialect(s.dialect).
		Insert("persons").
		Columns(personColumns...).
		Values(p.ID, p.Name, p.Email, p.JobTitle, nullString(p.OrganizationID), p.Country, p.City,
			nullString(p.UserID), utc(p.CreatedAt), utc(p.UpdatedAt)).
		Query()
	if err := s.drv.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("failed to create person: %w", err)
	}
	return nil
}

// Save persists the person's mutable fields.
func (s *PersonStore) Save(ctx context.Context, p *models.Person) error {
	p.UpdatedAt = time.Now().UTC()
	query, args := sql.Dialect(s.dialect).
		Update("persons").
		Set("name", p.Name).
		Set("email", p.Email).
		Set("job_title", p.JobTitle).
		Set("organization_id", nullString(p.OrganizationID)).
		Set("country", p.Country).
		Set("city", p.City).
		Set("user_id", nullString(p.UserID)).
		Set("updated_at", p.UpdatedAt).
		Where(sql.EQ("id", p.ID)).
		Query()
	return saveResult(ctx, s.drv, "person", query, args)
}

// Find returns the person or a not found error.
func (s *PersonStore) Find(ctx context.Context, id string) (*models.Person, error) {
	query, args := sql.Dialect(s.dialect).
		Select(personColumns...).
		From(sql.Table("persons")).
		Where(sql.EQ("id", id)).
		Query()

	var found *models.Person
	err := queryRows(ctx, s.drv, query, args, func(row scanner) error {
		var (
			p              models.Person
			organizationID stdsql.NullString
			userID         stdsql.NullString
		)
		if err := row.Scan(&p.ID, &p.Name, &p.Email, &p.JobTitle, &organizationID, &p.Country, &p.City,
			&userID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return err
		}
		p.OrganizationID = organizationID.String
		p.UserID = userID.String
		found = &p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query person: %w", err)
	}
	if found == nil {
		return nil, domain.NewNotFoundError("person")
	}
	return found, nil
}

func saveResult(ctx context.Context, drv *sql.Driver, resource, query string, args []any) error {
	n, err := execAffected(ctx, drv, query, args)
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", resource, err)
	}
	if n == 0 {
		return domain.NewNotFoundError(resource)
	}
	return nil
}
