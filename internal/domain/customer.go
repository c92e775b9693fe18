package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CustomerKind discriminates the two customer shapes.
type CustomerKind string

const (
	CustomerIndividual   CustomerKind = "INDIVIDUAL"
	CustomerOrganization CustomerKind = "ORGANIZATION"
)

// IncomeSource describes where an individual's income comes from.
type IncomeSource struct {
	Source          string          `json:"source"`
	EmployerName    string          `json:"employer_name,omitempty"`
	EmployerAddress string          `json:"employer_address,omitempty"`
	MonthlyIncome   decimal.Decimal `json:"monthly_income"`
}

// NextOfKin is the emergency contact of an individual.
type NextOfKin struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	Gender       string `json:"gender,omitempty"`
	Phone        string `json:"phone"`
}

// IndividualProfile holds the fields only individuals have.
type IndividualProfile struct {
	FirstName      string       `json:"first_name"`
	Surname        string       `json:"surname"`
	DateOfBirth    time.Time    `json:"date_of_birth"`
	Gender         string       `json:"gender,omitempty"`
	Income         IncomeSource `json:"income"`
	IncomeVerified bool         `json:"income_verified"`
	NextOfKin      NextOfKin    `json:"next_of_kin"`
}

// OrganizationProfile holds the fields only organizations have.
type OrganizationProfile struct {
	CompanyName        string          `json:"company_name"`
	RegistrationNumber string          `json:"registration_number"`
	BusinessType       string          `json:"business_type"`
	ContactPerson      string          `json:"contact_person"`
	SourceOfIncome     string          `json:"source_of_income,omitempty"`
	AnnualRevenue      decimal.Decimal `json:"annual_revenue"`
}

// Customer owns accounts. ID is the identification number and never changes.
// Exactly one of Individual and Organization is set, matching Kind.
type Customer struct {
	ID           string               `json:"id"`
	Kind         CustomerKind         `json:"kind"`
	Address      string               `json:"address,omitempty"`
	Email        string               `json:"email,omitempty"`
	Phone        string               `json:"phone,omitempty"`
	RegisteredAt time.Time            `json:"registered_at"`
	Individual   *IndividualProfile   `json:"individual,omitempty"`
	Organization *OrganizationProfile `json:"organization,omitempty"`

	accounts []string
}

// NewIndividual builds an individual customer registered at now.
func NewIndividual(id string, profile IndividualProfile, now time.Time) (*Customer, error) {
	c := &Customer{ID: strings.TrimSpace(id), Kind: CustomerIndividual, RegisteredAt: now, Individual: &profile}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewOrganization builds an organization customer registered at now.
func NewOrganization(id string, profile OrganizationProfile, now time.Time) (*Customer, error) {
	c := &Customer{ID: strings.TrimSpace(id), Kind: CustomerOrganization, RegisteredAt: now, Organization: &profile}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks that the customer is internally consistent.
func (c *Customer) Validate() error {
	const op = "Customer.Validate"
	invalid := func(reason string) error {
		return &Error{Kind: ErrValidation, Op: op, CustomerID: c.ID, Reason: reason}
	}
	if c.ID == "" {
		return invalid("identification number is required")
	}
	if c.RegisteredAt.IsZero() {
		return invalid("registration timestamp is required")
	}
	switch c.Kind {
	case CustomerIndividual:
		if c.Individual == nil || c.Organization != nil {
			return invalid("individual customer must carry only an individual profile")
		}
		if strings.TrimSpace(c.Individual.FirstName) == "" || strings.TrimSpace(c.Individual.Surname) == "" {
			return invalid("first name and surname are required")
		}
		if c.Individual.Income.MonthlyIncome.IsNegative() {
			return invalid("monthly income cannot be negative")
		}
	case CustomerOrganization:
		if c.Organization == nil || c.Individual != nil {
			return invalid("organization customer must carry only an organization profile")
		}
		if strings.TrimSpace(c.Organization.CompanyName) == "" {
			return invalid("company name is required")
		}
		if strings.TrimSpace(c.Organization.RegistrationNumber) == "" {
			return invalid("registration number is required")
		}
	default:
		return invalid("unknown customer kind " + string(c.Kind))
	}
	return nil
}

// DisplayName is the name shown to tellers.
func (c *Customer) DisplayName() string {
	switch c.Kind {
	case CustomerIndividual:
		return strings.TrimSpace(c.Individual.FirstName + " " + c.Individual.Surname)
	case CustomerOrganization:
		return c.Organization.CompanyName
	}
	return c.ID
}

// HasVerifiedIncome reports whether the customer is an individual with verified income.
func (c *Customer) HasVerifiedIncome() bool {
	return c.Kind == CustomerIndividual && c.Individual != nil && c.Individual.IncomeVerified
}

// AccountNumbers returns the numbers of the accounts the customer owns.
func (c *Customer) AccountNumbers() []string {
	return slices.Clone(c.accounts)
}

// AttachAccount records ownership of an account. Attaching twice is a no-op.
func (c *Customer) AttachAccount(number string) {
	if !slices.Contains(c.accounts, number) {
		c.accounts = append(c.accounts, number)
	}
}

// DetachAccount forgets an owned account.
func (c *Customer) DetachAccount(number string) {
	c.accounts = slices.DeleteFunc(c.accounts, func(n string) bool { return n == number })
}

// Clone returns a deep copy safe to hand across package boundaries.
func (c *Customer) Clone() *Customer {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Individual != nil {
		ind := *c.Individual
		cp.Individual = &ind
	}
	if c.Organization != nil {
		org := *c.Organization
		cp.Organization = &org
	}
	cp.accounts = slices.Clone(c.accounts)
	return &cp
}
