package handlers

import (
	"errors"

	"veyra/internal/middleware"
	"veyra/internal/repositories"
	"veyra/internal/services/referral"

	"github.com/gofiber/fiber/v2"
)

type ReferralHandler struct {
	referrals referral.Service
}

func NewReferralHandler(referrals referral.Service) *ReferralHandler {
	return &ReferralHandler{referrals: referrals}
}

// GetSummary returns the user's referral node with per-level earnings,
// missed amounts and downline counts.
func (h *ReferralHandler) GetSummary(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	summary, err := h.referrals.Summary(userID)
	if err != nil {
		if errors.Is(err, repositories.ErrReferralNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "referral record not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load referral data"})
	}
	return c.JSON(fiber.Map{"data": summary})
}
