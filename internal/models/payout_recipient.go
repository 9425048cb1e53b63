package models

import "time"

// PayoutRecipient caches the provider-side handle for a bank account.
type PayoutRecipient struct {
	ID            uint      `gorm:"primarykey"`
	Provider      Provider  `gorm:"uniqueIndex:idx_recipient_account;not null;size:16"`
	AccountNumber string    `gorm:"uniqueIndex:idx_recipient_account;not null;size:20"`
	BankCode      string    `gorm:"uniqueIndex:idx_recipient_account;not null;size:16"`
	RecipientCode string    `gorm:"not null;size:64"`
	CreatedAt     time.Time
}
