package handlers

import (
	"errors"
	"math/big"

	"veyra/internal/middleware"
	"veyra/internal/money"
	"veyra/internal/services/investment"

	"github.com/gofiber/fiber/v2"
)

type InvestmentHandler struct {
	investments investment.Service
}

func NewInvestmentHandler(investments investment.Service) *InvestmentHandler {
	return &InvestmentHandler{investments: investments}
}

// Invest locks USD into the index asset at the current oracle price.
// Amount is a decimal USD string.
func (h *InvestmentHandler) Invest(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	amount, ok := parseUSDAmount(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid amount"})
	}

	inv, err := h.investments.Invest(c.Context(), userID, amount)
	if err != nil {
		switch {
		case errors.Is(err, investment.ErrBelowMinimum):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "minimum investment is $10"})
		case errors.Is(err, investment.ErrInsufficientFunds):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "insufficient balance"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "investment failed"})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": inv})
}

// Redeem converts locked index holdings back to withdrawable USD.
func (h *InvestmentHandler) Redeem(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	amount, ok := parseUSDAmount(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid amount"})
	}

	inv, err := h.investments.Redeem(c.Context(), userID, amount)
	if err != nil {
		switch {
		case errors.Is(err, investment.ErrBelowMinimum):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "minimum redemption is $10"})
		case errors.Is(err, investment.ErrInsufficientLocked):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "insufficient locked holdings"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "redemption failed"})
	}
	return c.JSON(fiber.Map{"data": inv})
}

// GetInvestments lists the user's investment events, optionally
// filtered by type (ADD or REMOVE).
func (h *InvestmentHandler) GetInvestments(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	investments, err := h.investments.List(userID, c.Query("type"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load investments"})
	}
	return c.JSON(fiber.Map{"data": investments})
}

// GetStats returns the replayed portfolio view: growth windows, cost
// basis and ROI at the current oracle price.
func (h *InvestmentHandler) GetStats(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	stats, err := h.investments.Stats(c.Context(), userID)
	if err != nil {
		if errors.Is(err, investment.ErrNoInvestments) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no investments found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to compute stats"})
	}
	return c.JSON(fiber.Map{"data": stats})
}

// parseUSDAmount reads a decimal USD amount from the request body and
// converts it to wei.
func parseUSDAmount(c *fiber.Ctx) (*big.Int, bool) {
	var input struct {
		Amount string `json:"amount"`
	}
	if err := c.BodyParser(&input); err != nil || input.Amount == "" {
		return nil, false
	}
	amount, err := money.ParsePrice(input.Amount)
	if err != nil || amount.Sign() <= 0 {
		return nil, false
	}
	return amount, true
}
