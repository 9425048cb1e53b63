package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// User is owned by the auth system; this service only reads it and mutates
// Balance through the ledger and the payout account fields.
type User struct {
	gorm.Model
	Name     string          `gorm:"not null"`
	Email    string          `gorm:"uniqueIndex;not null"`
	Password string          `gorm:"not null" json:"-"`
	Phone    string          `gorm:"index"`
	Role     string          `gorm:"default:'user'"`
	Status   string          `gorm:"default:'active'"`
	Balance  decimal.Decimal `gorm:"type:numeric(15,2);not null;default:0;check:balance >= 0"`

	AccountNumber string `gorm:"size:20"`
	BankCode      string `gorm:"size:16"`
	AccountName   string `gorm:"size:128"`

	LastLoginAt  *time.Time
	TokenVersion int `gorm:"default:1"`
}

// PayoutDestination returns the user's current bank details.
func (u *User) PayoutDestination() PayoutDestination {
	name := u.AccountName
	if name == "" {
		name = u.Name
	}
	return PayoutDestination{
		AccountNumber: u.AccountNumber,
		BankCode:      u.BankCode,
		AccountName:   name,
	}
}

func (u *User) IsAdmin() bool {
	return u.Role == "admin"
}
