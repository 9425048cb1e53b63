package handlers

import (
	"context"
	"strings"

	"settlr/internal/models"
	"settlr/internal/utils"
	"settlr/internal/utils/response"
	"settlr/internal/utils/validation"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// PayoutAccounts stores the bank account withdrawals are paid to.
type PayoutAccounts interface {
	UpdatePayoutAccount(ctx context.Context, userID uint, dest models.PayoutDestination) error
}

type UserHandler struct {
	accounts PayoutAccounts
	log      *zap.Logger
}

func NewUserHandler(accounts PayoutAccounts, log *zap.Logger) *UserHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserHandler{accounts: accounts, log: log.Named("user_handler")}
}

type payoutAccountRequest struct {
	AccountNumber string `json:"account_number" validate:"required,account_number"`
	BankCode      string `json:"bank_code" validate:"required,bank_code"`
	AccountName   string `json:"account_name" validate:"max=128"`
}

// UpdatePayoutAccount sets the destination used by future withdrawals.
// Withdrawals already requested keep their own snapshot.
func (h *UserHandler) UpdatePayoutAccount(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return response.Unauthorized(c, "invalid claims")
	}

	var req payoutAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request format")
	}
	req.AccountNumber = strings.TrimSpace(req.AccountNumber)
	req.BankCode = strings.TrimSpace(req.BankCode)
	req.AccountName = strings.TrimSpace(req.AccountName)
	if err := validation.Struct(req); err != nil {
		return response.FromError(c, err)
	}

	dest := models.PayoutDestination{
		AccountNumber: req.AccountNumber,
		BankCode:      req.BankCode,
		AccountName:   req.AccountName,
	}
	if err := h.accounts.UpdatePayoutAccount(c.UserContext(), claims.UserID, dest); err != nil {
		logFailure(h.log, "payout account update failed", err, zap.Uint("user_id", claims.UserID))
		return response.FromError(c, err)
	}
	return response.Success(c, "Payout account updated", dest)
}
