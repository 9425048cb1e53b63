package handlers

import (
	"encoding/json"

	apperrors "settlr/internal/errors"
	"settlr/internal/models"
	"settlr/internal/services/status"
	"settlr/internal/services/withdrawal"
	"settlr/internal/utils"
	"settlr/internal/utils/response"
	"settlr/internal/utils/validation"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type WithdrawalHandler struct {
	withdrawals withdrawal.Service
	status      status.Service
	log         *zap.Logger
}

func NewWithdrawalHandler(withdrawals withdrawal.Service, statusSvc status.Service, log *zap.Logger) *WithdrawalHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WithdrawalHandler{
		withdrawals: withdrawals,
		status:      statusSvc,
		log:         log.Named("withdrawal_handler"),
	}
}

type withdrawalRequest struct {
	Amount json.Number `json:"amount" validate:"required,money"`
}

func (h *WithdrawalHandler) Request(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return response.Unauthorized(c, "invalid claims")
	}

	var req withdrawalRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request format")
	}
	if err := validation.Struct(req); err != nil {
		return response.FromError(c, err)
	}
	amount, err := validation.Amount(req.Amount.String())
	if err != nil {
		return response.FromError(c, err)
	}

	res, err := h.withdrawals.Request(c.UserContext(), withdrawal.RequestInput{
		UserID: claims.UserID,
		Amount: amount,
	})
	if err != nil {
		logFailure(h.log, "withdrawal request failed", err, zap.Uint("user_id", claims.UserID))
		return response.FromError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": res.Message,
		"data":    res,
	})
}

// Status returns a withdrawal owned by the caller.
func (h *WithdrawalHandler) Status(c *fiber.Ctx) error {
	view, err := lookup(c, h.status)
	if err != nil {
		return response.FromError(c, err)
	}
	if view.Kind != models.KindWithdrawal {
		return response.FromError(c, apperrors.ErrSettlementNotFound)
	}
	return response.Success(c, "Withdrawal status", view)
}

type SettlementHandler struct {
	status status.Service
}

func NewSettlementHandler(statusSvc status.Service) *SettlementHandler {
	return &SettlementHandler{status: statusSvc}
}

// Status returns any settlement owned by the caller, or any settlement for admins.
func (h *SettlementHandler) Status(c *fiber.Ctx) error {
	view, err := lookup(c, h.status)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Settlement status", view)
}

func lookup(c *fiber.Ctx, svc status.Service) (*status.View, error) {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return nil, fiber.ErrUnauthorized
	}
	ref := c.Params("reference")
	if ref == "" {
		return nil, apperrors.Validation("reference is required")
	}
	return svc.Lookup(c.UserContext(), ref, status.Viewer{UserID: claims.UserID, Admin: claims.IsAdmin()})
}
