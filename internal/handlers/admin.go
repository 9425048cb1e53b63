package handlers

import (
	"context"
	"strings"

	"settlr/internal/services/deposit"
	"settlr/internal/services/ledger"
	"settlr/internal/services/withdrawal"
	"settlr/internal/utils"
	"settlr/internal/utils/pagination"
	"settlr/internal/utils/response"
	"settlr/internal/utils/validation"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// WithdrawalSweep triggers an on-demand withdrawal retry sweep.
type WithdrawalSweep interface {
	SweepWithdrawals(ctx context.Context) (*withdrawal.SweepReport, error)
}

type AdminHandler struct {
	deposits deposit.Service
	sweeper  WithdrawalSweep
	ledger   ledger.Service
	log      *zap.Logger
}

func NewAdminHandler(deposits deposit.Service, sweeper WithdrawalSweep, ledgerSvc ledger.Service, log *zap.Logger) *AdminHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminHandler{
		deposits: deposits,
		sweeper:  sweeper,
		ledger:   ledgerSvc,
		log:      log.Named("admin_handler"),
	}
}

type approveRequest struct {
	Reference string `json:"reference" validate:"required,max=64"`
}

type rejectRequest struct {
	Reference string `json:"reference" validate:"required,max=64"`
	Reason    string `json:"reason" validate:"required,max=500"`
}

func (h *AdminHandler) ApproveDeposit(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return response.Unauthorized(c, "invalid claims")
	}
	var req approveRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request format")
	}
	req.Reference = strings.TrimSpace(req.Reference)
	if err := validation.Struct(req); err != nil {
		return response.FromError(c, err)
	}

	res, err := h.deposits.Approve(c.UserContext(), req.Reference, claims.UserID)
	if err != nil {
		logFailure(h.log, "deposit approval failed", err, zap.String("reference", req.Reference))
		return response.FromError(c, err)
	}
	h.log.Info("deposit approval handled",
		zap.String("reference", req.Reference),
		zap.Uint("admin_id", claims.UserID),
		zap.Bool("applied", res.Applied),
	)
	return response.Success(c, "Deposit approved", res.Record)
}

func (h *AdminHandler) RejectDeposit(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return response.Unauthorized(c, "invalid claims")
	}
	var req rejectRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request format")
	}
	req.Reference = strings.TrimSpace(req.Reference)
	req.Reason = strings.TrimSpace(req.Reason)
	if err := validation.Struct(req); err != nil {
		return response.FromError(c, err)
	}

	res, err := h.deposits.Reject(c.UserContext(), req.Reference, claims.UserID, req.Reason)
	if err != nil {
		logFailure(h.log, "deposit rejection failed", err, zap.String("reference", req.Reference))
		return response.FromError(c, err)
	}
	return response.Success(c, "Deposit rejected", res.Record)
}

// PendingDeposits lists manual deposits awaiting a decision, oldest first.
func (h *AdminHandler) PendingDeposits(c *fiber.Ctx) error {
	p := pagination.ParseFromRequest(c)
	records, total, err := h.deposits.ListAwaitingApproval(c.UserContext(), p.Limit, p.Offset)
	if err != nil {
		logFailure(h.log, "listing pending deposits failed", err)
		return response.FromError(c, err)
	}
	p.Total = total
	return c.JSON(pagination.Response(p, records))
}

func (h *AdminHandler) RetryWithdrawals(c *fiber.Ctx) error {
	report, err := h.sweeper.SweepWithdrawals(c.UserContext())
	if err != nil {
		logFailure(h.log, "on-demand withdrawal sweep failed", err)
		return response.FromError(c, err)
	}
	return response.Success(c, "Withdrawal sweep completed", report)
}

// Reconcile checks a record's ledger entries; a mismatch puts it on hold.
func (h *AdminHandler) Reconcile(c *fiber.Ctx) error {
	ref := c.Params("reference")
	if err := h.ledger.Reconcile(c.UserContext(), ref); err != nil {
		logFailure(h.log, "reconciliation failed", err, zap.String("reference", ref))
		return response.FromError(c, err)
	}
	return response.Success(c, "Settlement is consistent", fiber.Map{"reference": ref})
}
