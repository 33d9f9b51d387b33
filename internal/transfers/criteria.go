// Package transfers detects pairs of transactions that are the two
// sides of a single internal movement between user-owned accounts,
// classifying each pair as confirmed or suspected, and applies the
// resulting annotations symmetrically.
package transfers

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// DetectionCriteria tunes the detector. The zero value is not usable;
// start from DefaultCriteria.
type DetectionCriteria struct {
	// ConfirmedDateDays is the widest date gap a confirmed pair may have.
	ConfirmedDateDays int
	// SuspectedDateDays is the widest date gap a suspected pair may have.
	// It also sets the date bucket width of the candidate index.
	SuspectedDateDays int
	// AmountTolerance is the absolute amount slack for confirmed pairs.
	// Zero means exact match.
	AmountTolerance decimal.Decimal
	// FXTolerancePercent is the relative amount slack for suspected
	// pairs involving an FX-enabled account.
	FXTolerancePercent decimal.Decimal
	// FXAccounts are substrings (case-insensitive) of account display
	// names that hold foreign currency and so may book fee-adjusted
	// amounts.
	FXAccounts []string
	// NameVariations are the account-holder name spellings that, next
	// to the word "transfer", mark a description-based suspect. Empty
	// disables the description heuristic.
	NameVariations []string
	// BucketThreshold caps the size of a single index bucket; beyond it
	// the detector falls back to a sorted date-window scan.
	BucketThreshold int
	// PatternThreshold is the minimum number of suspected pairs sharing
	// one reason before the detector reports the pattern.
	PatternThreshold int
}

// DefaultCriteria returns the stock detection criteria.
func DefaultCriteria() DetectionCriteria {
	return DetectionCriteria{
		ConfirmedDateDays:  2,
		SuspectedDateDays:  4,
		AmountTolerance:    decimal.Zero,
		FXTolerancePercent: decimal.NewFromInt(5),
		BucketThreshold:    1000,
		PatternThreshold:   1,
	}
}

// descriptionPattern compiles the name-variation alternation used by
// the description heuristic, or nil when no variations are configured.
func (c DetectionCriteria) descriptionPattern() (*regexp.Regexp, error) {
	if len(c.NameVariations) == 0 {
		return nil, nil
	}
	quoted := make([]string, len(c.NameVariations))
	for i, v := range c.NameVariations {
		quoted[i] = regexp.QuoteMeta(strings.TrimSpace(v))
	}
	re, err := regexp.Compile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
	if err != nil {
		return nil, fmt.Errorf("name variations: %w", err)
	}
	return re, nil
}
