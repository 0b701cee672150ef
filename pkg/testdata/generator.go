// Package testdata generates realistic leads, organizations and persons for
// seeding development databases and exercising territory rules in tests.
package testdata

import (
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jordanlanch/territoryengine/pkg/models"
)

// LocationData maps countries to a region and its major cities
var LocationData = map[string]struct {
	Region string
	Cities []string
}{
	"US": {"NA", []string{"New York", "Los Angeles", "Chicago", "Houston", "Phoenix"}},
	"CA": {"NA", []string{"Toronto", "Montreal", "Vancouver", "Calgary", "Ottawa"}},
	"GB": {"EMEA", []string{"London", "Manchester", "Birmingham", "Leeds", "Glasgow"}},
	"DE": {"EMEA", []string{"Berlin", "Munich", "Hamburg", "Cologne", "Frankfurt"}},
	"ES": {"EMEA", []string{"Madrid", "Barcelona", "Valencia", "Seville", "Málaga"}},
	"FR": {"EMEA", []string{"Paris", "Marseille", "Lyon", "Toulouse", "Nice"}},
	"AU": {"APAC", []string{"Sydney", "Melbourne", "Brisbane", "Perth", "Adelaide"}},
}

// Industries used for generated entities
var Industries = []string{"software", "retail", "healthcare", "finance", "manufacturing", "logistics"}

var (
	// Fixed order keeps generation deterministic; map iteration is not.
	countryCodes = []string{"US", "CA", "GB", "DE", "ES", "FR", "AU"}
	sources      = []string{"website", "referral", "event", "outbound", "partner"}
	stages       = []string{
		models.StageNew, models.StageContacted, models.StageQualified,
		models.StageNegotiating, models.StageWon, models.StageLost,
	}
)

// Config narrows what the generator produces. Zero values mean "any".
type Config struct {
	Country  string
	Industry string
	MinValue float64
	MaxValue float64
}

// Generator produces deterministic entities for a given seed.
type Generator struct {
	faker *gofakeit.Faker
	now   time.Time
}

// NewGenerator creates a generator. The same seed yields the same entities.
func NewGenerator(seed int64) *Generator {
	return &Generator{
		faker: gofakeit.New(seed),
		now:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Lead generates one lead.
func (g *Generator) Lead(cfg Config) *models.Lead {
	country, region, city := g.location(cfg.Country)
	minValue, maxValue := cfg.MinValue, cfg.MaxValue
	if maxValue <= minValue {
		minValue, maxValue = 1000, 250000
	}
	created := g.createdAt()

	return &models.Lead{
		ID:        g.id(),
		Title:     g.faker.Company() + " " + g.faker.BuzzWord(),
		LeadValue: float64(int(g.faker.Float64Range(minValue, maxValue))),
		StageCode: g.faker.RandomString(stages),
		Source:    g.faker.RandomString(sources),
		Industry:  g.industry(cfg.Industry),
		Country:   country,
		Region:    region,
		City:      city,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// Leads generates n leads.
func (g *Generator) Leads(n int, cfg Config) []*models.Lead {
	leads := make([]*models.Lead, n)
	for i := range leads {
		leads[i] = g.Lead(cfg)
	}
	return leads
}

// Organization generates one organization.
func (g *Generator) Organization(cfg Config) *models.Organization {
	country, region, city := g.location(cfg.Country)
	created := g.createdAt()

	return &models.Organization{
		ID:            g.id(),
		Name:          g.faker.Company(),
		Industry:      g.industry(cfg.Industry),
		Country:       country,
		Region:        region,
		City:          city,
		EmployeeCount: g.faker.Number(5, 5000),
		AnnualRevenue: float64(g.faker.Number(100, 50000)) * 1000,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

// Person generates one person, optionally working for org.
func (g *Generator) Person(org *models.Organization, cfg Config) *models.Person {
	country, _, city := g.location(cfg.Country)
	created := g.createdAt()

	p := &models.Person{
		ID:        g.id(),
		Name:      g.faker.Name(),
		Email:     g.faker.Email(),
		JobTitle:  g.faker.JobTitle(),
		Country:   country,
		City:      city,
		CreatedAt: created,
		UpdatedAt: created,
	}
	if org != nil {
		p.OrganizationID = org.ID
		p.Country = org.Country
		p.City = org.City
	}
	return p
}

func (g *Generator) id() string {
	// Derived from the faker so a seed reproduces ids too
	id, err := uuid.FromBytes([]byte(g.faker.LetterN(16)))
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (g *Generator) location(country string) (string, string, string) {
	if _, ok := LocationData[country]; !ok {
		country = g.faker.RandomString(countryCodes)
	}
	loc := LocationData[country]
	return country, loc.Region, g.faker.RandomString(loc.Cities)
}

func (g *Generator) industry(industry string) string {
	if industry != "" {
		return industry
	}
	return g.faker.RandomString(Industries)
}

func (g *Generator) createdAt() time.Time {
	return g.now.Add(-time.Duration(g.faker.Number(0, 365*24)) * time.Hour)
}
