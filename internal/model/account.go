package model

import (
	"github.com/shopspring/decimal"
)

// AccountType partitions accounts into the two sides of the balance sheet.
type AccountType string

const (
	AccountAsset     AccountType = "asset"
	AccountLiability AccountType = "liability"
)

// Account mirrors a remote account. The opening date is the earlier of
// the service-provided opening date and the earliest transaction date
// observed for the account.
type Account struct {
	ID             int64
	DisplayName    string
	Type           AccountType
	Currency       string
	OpeningDate    Date
	OpeningBalance *decimal.Decimal
}

// AccountTypeFromService maps the remote service's account kinds onto
// asset/liability. Unknown kinds default to asset.
func AccountTypeFromService(kind string) AccountType {
	switch kind {
	case "credit_card", "loan", "mortgage":
		return AccountLiability
	default:
		return AccountAsset
	}
}

// ObserveOpening lowers the opening date when an earlier transaction
// date is seen for the account.
func (a *Account) ObserveOpening(d Date) {
	if a.OpeningDate.IsZero() || d.Before(a.OpeningDate) {
		a.OpeningDate = d
	}
}

// Category mirrors a remote category. Categories form a forest via
// ParentID; cycles are invalid.
type Category struct {
	ID       int64
	Title    string
	ParentID *int64
}

// BalanceAssertion is an informational account balance checkpoint.
type BalanceAssertion struct {
	AccountID int64
	Date      Date
	Amount    decimal.Decimal
}
