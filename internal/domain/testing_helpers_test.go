package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var registered = time.Date(2024, time.January, 15, 9, 30, 0, 0, time.UTC)

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func verifiedIndividual(t *testing.T) *Customer {
	t.Helper()
	c, err := NewIndividual("8001015009087", IndividualProfile{
		FirstName:      "Thandi",
		Surname:        "Mokoena",
		Income:         IncomeSource{Source: "EMPLOYMENT", EmployerName: "Acme", MonthlyIncome: money("25000")},
		IncomeVerified: true,
	}, registered)
	if err != nil {
		t.Fatalf("NewIndividual failed: %v", err)
	}
	return c
}

func unverifiedIndividual(t *testing.T) *Customer {
	t.Helper()
	c, err := NewIndividual("9002026009088", IndividualProfile{FirstName: "Sipho", Surname: "Dube"}, registered)
	if err != nil {
		t.Fatalf("NewIndividual failed: %v", err)
	}
	return c
}

func organization(t *testing.T) *Customer {
	t.Helper()
	c, err := NewOrganization("2019/123456/07", OrganizationProfile{
		CompanyName:        "Mokoena Holdings",
		RegistrationNumber: "2019/123456/07",
		BusinessType:       "Retail",
	}, registered)
	if err != nil {
		t.Fatalf("NewOrganization failed: %v", err)
	}
	return c
}

func openAccount(t *testing.T, kind AccountKind, owner *Customer, deposit string) *Account {
	t.Helper()
	a, err := NewAccount("700000000001", kind, "JHB-01", owner, money(deposit), "", registered)
	if err != nil {
		t.Fatalf("NewAccount(%s, %s) failed: %v", kind, deposit, err)
	}
	return a
}
