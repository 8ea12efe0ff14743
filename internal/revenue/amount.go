package revenue

import (
	"errors"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount indicates an amount that is not a finite number.
	ErrInvalidAmount = errors.New("revenue: amount is not a valid number")
	// ErrNegativeAmount indicates an amount below zero.
	ErrNegativeAmount = errors.New("revenue: amount must not be negative")
	// ErrSubCentAmount indicates an amount with more than two decimal places.
	ErrSubCentAmount = errors.New("revenue: amount must be in whole cents")
	// ErrAmountTooLarge indicates an amount the ledger columns cannot hold.
	ErrAmountTooLarge = errors.New("revenue: amount exceeds 999999999999.99")
)

// MaxMoney is the largest amount a NUMERIC(14,2) ledger column stores.
var MaxMoney = decimal.RequireFromString("999999999999.99")

// TransactionType mirrors the stored transaction categories.
type TransactionType string

const (
	TypeConsultationFee    TransactionType = "consultation_fee"
	TypePartnershipPayment TransactionType = "partnership_payment"
	TypeGrant              TransactionType = "grant"
	TypeOther              TransactionType = "other"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeConsultationFee, TypePartnershipPayment, TypeGrant, TypeOther:
		return true
	}
	return false
}

// KindFor maps a transaction to the split applied to it. Grants and other income
// only feed the team when the recorder opted in.
func KindFor(t TransactionType, distributeToTeam bool) Kind {
	switch t {
	case TypeConsultationFee:
		return KindConsultation
	case TypePartnershipPayment:
		return KindPartnership
	case TypeGrant, TypeOther:
		if distributeToTeam {
			return KindPartnership
		}
	}
	return KindDirect
}

// ValidateAmount rejects negative amounts.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}

// ValidateMoney checks that amount can be stored as a ledger value without
// rounding: whole cents, non-negative and within MaxMoney.
func ValidateMoney(amount decimal.Decimal) error {
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	if !amount.Equal(amount.Round(2)) {
		return ErrSubCentAmount
	}
	if amount.GreaterThan(MaxMoney) {
		return ErrAmountTooLarge
	}
	return nil
}

// ParseAmount parses user input such as "125.50".
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// AmountFromFloat converts a float, rejecting NaN and infinities.
func AmountFromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, ErrInvalidAmount
	}
	d := decimal.NewFromFloat(f)
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}
