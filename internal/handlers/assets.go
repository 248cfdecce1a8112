package handlers

import (
	"veyra/internal/repositories"

	"github.com/gofiber/fiber/v2"
)

type AssetHandler struct {
	store repositories.Store
}

func NewAssetHandler(store repositories.Store) *AssetHandler {
	return &AssetHandler{store: store}
}

// ListAssets returns the enabled assets, optionally filtered by chain.
func (h *AssetHandler) ListAssets(c *fiber.Ctx) error {
	assets, err := h.store.Assets().ListEnabled(c.Query("chain"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load assets"})
	}
	return c.JSON(fiber.Map{"data": assets})
}
