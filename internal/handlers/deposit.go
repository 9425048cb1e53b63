package handlers

import (
	"encoding/json"
	"io"
	"strings"

	apperrors "settlr/internal/errors"
	"settlr/internal/models"
	"settlr/internal/services/deposit"
	"settlr/internal/utils"
	"settlr/internal/utils/response"
	"settlr/internal/utils/validation"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type DepositHandler struct {
	deposits deposit.Service
	log      *zap.Logger
}

func NewDepositHandler(deposits deposit.Service, log *zap.Logger) *DepositHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &DepositHandler{
		deposits: deposits,
		log:      log.Named("deposit_handler"),
	}
}

type depositRequest struct {
	Amount   json.Number `json:"amount" validate:"required,money"`
	Provider string      `json:"provider" validate:"required,oneof=manual gateway_a gateway_b paystack monnify"`
}

// Initiate accepts JSON, or multipart form data carrying a payment_proof file
// for manual deposits.
func (h *DepositHandler) Initiate(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return response.Unauthorized(c, "invalid claims")
	}

	var req depositRequest
	var proof []byte
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		req.Amount = json.Number(strings.TrimSpace(c.FormValue("amount")))
		req.Provider = strings.TrimSpace(c.FormValue("provider"))
		if proof, err = readProof(c); err != nil {
			return response.FromError(c, err)
		}
	} else if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request format")
	}

	if err := validation.Struct(req); err != nil {
		return response.FromError(c, err)
	}
	amount, err := validation.Amount(req.Amount.String())
	if err != nil {
		return response.FromError(c, err)
	}
	p, _ := models.ParseProvider(req.Provider)

	res, err := h.deposits.Initiate(c.UserContext(), deposit.InitiateInput{
		UserID:   claims.UserID,
		Amount:   amount,
		Provider: p,
		Proof:    proof,
	})
	if err != nil {
		logFailure(h.log, "deposit initiation failed", err, zap.Uint("user_id", claims.UserID))
		return response.FromError(c, err)
	}

	message := "Deposit initiated"
	if p == models.ProviderManual {
		message = "Deposit submitted for approval"
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": message,
		"data":    res,
	})
}

func readProof(c *fiber.Ctx) ([]byte, error) {
	fh, err := c.FormFile("payment_proof")
	if err != nil {
		return nil, nil
	}
	if fh.Size > deposit.MaxProofSize {
		return nil, apperrors.Validation("payment proof must not exceed 2MB")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, apperrors.Validation("payment proof could not be read")
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, deposit.MaxProofSize+1))
	if err != nil {
		return nil, apperrors.Validation("payment proof could not be read")
	}
	return data, nil
}

// Callback is the gateway redirect target. The query string only names the
// deposit; the outcome always comes from re-verifying with the provider.
func (h *DepositHandler) Callback(c *fiber.Ctx) error {
	ref := firstQuery(c, "reference", "trxref", "paymentReference")
	if ref == "" {
		return response.BadRequest(c, "reference is required")
	}

	res, err := h.deposits.HandleCallback(c.UserContext(), ref)
	if err != nil {
		logFailure(h.log, "deposit callback failed", err, zap.String("reference", ref))
		return response.FromError(c, err)
	}
	return response.Success(c, "Deposit status", fiber.Map{
		"reference": res.Record.Reference,
		"status":    res.Record.Status,
		"amount":    res.Record.RequestedAmount,
	})
}

func (h *DepositHandler) ManualInstructions(c *fiber.Ctx) error {
	instructions, err := h.deposits.ManualInstructions()
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Manual deposit instructions", instructions)
}

// logFailure logs server-side failures at Error and client errors at Info.
func logFailure(log *zap.Logger, msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if response.StatusOf(err) >= fiber.StatusInternalServerError {
		log.Error(msg, fields...)
		return
	}
	log.Info(msg, fields...)
}

func firstQuery(c *fiber.Ctx, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(c.Query(k)); v != "" {
			return v
		}
	}
	return ""
}
