package repositories

import (
	"context"
	"errors"
	"fmt"

	apperrors "settlr/internal/errors"
	"settlr/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const pgUniqueViolation = "23505"

type settlementRepository struct {
	db *gorm.DB
}

func NewSettlementRepository(db *gorm.DB) SettlementRepository {
	return &settlementRepository{db: db}
}

func (r *settlementRepository) GetByReference(ctx context.Context, ref string) (*models.SettlementRecord, error) {
	var rec models.SettlementRecord
	err := r.db.WithContext(ctx).
		Where("reference = ? OR provider_reference = ?", ref, ref).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrSettlementNotFound
		}
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	return &rec, nil
}

func (r *settlementRepository) List(ctx context.Context, f SettlementFilter) ([]models.SettlementRecord, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.SettlementRecord{})
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Provider != "" {
		q = q.Where("provider = ?", f.Provider)
	}
	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if !f.CreatedBefore.IsZero() {
		q = q.Where("created_at < ?", f.CreatedBefore)
	}
	if f.ExcludeHeld {
		q = q.Where("reconciliation_hold = ?", false)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count settlements: %w", err)
	}

	var out []models.SettlementRecord
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	err := q.Offset(f.Offset).Order("created_at ASC").Find(&out).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list settlements: %w", err)
	}
	return out, total, nil
}

func (r *settlementRepository) GetUser(ctx context.Context, userID uint) (*models.User, error) {
	return getUser(r.db.WithContext(ctx), userID)
}

func (r *settlementRepository) UpdatePayoutAccount(ctx context.Context, userID uint, dest models.PayoutDestination) error {
	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"account_number": dest.AccountNumber,
			"bank_code":      dest.BankCode,
			"account_name":   dest.AccountName,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update payout account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func (r *settlementRepository) GetRecipient(ctx context.Context, provider models.Provider, accountNumber, bankCode string) (*models.PayoutRecipient, error) {
	var rec models.PayoutRecipient
	err := r.db.WithContext(ctx).
		Where("provider = ? AND account_number = ? AND bank_code = ?", provider, accountNumber, bankCode).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payout recipient: %w", err)
	}
	return &rec, nil
}

func (r *settlementRepository) SaveRecipient(ctx context.Context, rec *models.PayoutRecipient) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "account_number"}, {Name: "bank_code"}},
			DoUpdates: clause.AssignmentColumns([]string{"recipient_code"}),
		}).
		Create(rec).Error
	if err != nil {
		return fmt.Errorf("failed to save payout recipient: %w", err)
	}
	return nil
}

func (r *settlementRepository) ExecuteInTransaction(ctx context.Context, fn func(SettlementTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&settlementTx{db: tx})
	})
}

type settlementTx struct {
	db *gorm.DB
}

func (t *settlementTx) CreateSettlement(rec *models.SettlementRecord) error {
	if err := t.db.Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrDuplicateReference.WithCause(err)
		}
		return fmt.Errorf("failed to create settlement: %w", err)
	}
	return nil
}

func (t *settlementTx) LockSettlement(ref string) (*models.SettlementRecord, error) {
	var rec models.SettlementRecord
	err := t.db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("reference = ? OR provider_reference = ?", ref, ref).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrSettlementNotFound
		}
		return nil, fmt.Errorf("failed to lock settlement: %w", err)
	}
	return &rec, nil
}

func (t *settlementTx) SaveSettlement(rec *models.SettlementRecord) error {
	if err := t.db.Save(rec).Error; err != nil {
		return fmt.Errorf("failed to save settlement: %w", err)
	}
	return nil
}

func (t *settlementTx) GetUser(userID uint) (*models.User, error) {
	return getUser(t.db, userID)
}

func (t *settlementTx) AdjustBalance(userID uint, delta decimal.Decimal) (decimal.Decimal, error) {
	q := t.db.Model(&models.User{}).Where("id = ?", userID)
	if delta.IsNegative() {
		q = q.Where("balance >= ?", delta.Neg())
	}
	result := q.Update("balance", gorm.Expr("balance + ?", delta))
	if result.Error != nil {
		return decimal.Zero, fmt.Errorf("failed to adjust balance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := getUser(t.db, userID); err != nil {
			return decimal.Zero, err
		}
		return decimal.Zero, apperrors.ErrInsufficientFunds
	}

	var user models.User
	if err := t.db.Select("id", "balance").First(&user, userID).Error; err != nil {
		return decimal.Zero, fmt.Errorf("failed to read balance: %w", err)
	}
	return user.Balance, nil
}

func (t *settlementTx) AppendLedgerEntry(entry *models.LedgerEntry) error {
	if err := t.db.Create(entry).Error; err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrInconsistentState.WithCause(err)
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func (t *settlementTx) LedgerEntries(reference string) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := t.db.
		Where("reference = ?", reference).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries: %w", err)
	}
	return entries, nil
}

func getUser(db *gorm.DB, userID uint) (*models.User, error) {
	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
