package handlers

import (
	"errors"
	"strconv"

	"veyra/internal/middleware"
	"veyra/internal/money"
	"veyra/internal/repositories"
	"veyra/internal/services/wallet"

	"github.com/gofiber/fiber/v2"
)

type WalletHandler struct {
	walletService wallet.Service
}

func NewWalletHandler(walletService wallet.Service) *WalletHandler {
	return &WalletHandler{walletService: walletService}
}

// GetBalance returns the wallet summary with per-asset USD valuations.
func (h *WalletHandler) GetBalance(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	summary, err := h.walletService.Balance(c.Context(), userID)
	if err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "wallet not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load balance"})
	}
	return c.JSON(fiber.Map{"data": summary})
}

// RequestWithdrawal opens a withdrawal for the sender worker to
// broadcast. Amount is the raw token amount in wei.
func (h *WalletHandler) RequestWithdrawal(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var input struct {
		AssetID   uint   `json:"assetId"`
		Address   string `json:"address"`
		AmountWei string `json:"amountWei"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	amount, err := money.Parse(input.AmountWei)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid amount"})
	}

	tx, err := h.walletService.RequestWithdrawal(c.Context(), userID, input.AssetID, input.Address, amount)
	if err != nil {
		switch {
		case errors.Is(err, wallet.ErrInvalidAddress):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid address"})
		case errors.Is(err, wallet.ErrInvalidAmount):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid amount"})
		case errors.Is(err, wallet.ErrAssetDisabled):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "asset not available"})
		case errors.Is(err, wallet.ErrInsufficientFunds):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "insufficient balance"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "withdrawal request failed"})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": tx})
}

// CreateDepositIntent opens a deposit watch window for one asset.
func (h *WalletHandler) CreateDepositIntent(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var input struct {
		AssetID uint `json:"assetId"`
	}
	if err := c.BodyParser(&input); err != nil || input.AssetID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "assetId is required"})
	}

	tx, err := h.walletService.CreateDepositIntent(c.Context(), userID, input.AssetID)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrAssetNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "asset not found"})
		case errors.Is(err, wallet.ErrAssetDisabled):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "asset not available"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to open deposit"})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"data": fiber.Map{
			"transaction": tx,
			"address":     tx.ReceiverAddress,
		},
	})
}

// GetTransactions lists the user's deposit and withdrawal history.
func (h *WalletHandler) GetTransactions(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	txType := c.Query("type")
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	txs, err := h.walletService.Transactions(userID, txType, limit, offset)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load transactions"})
	}
	return c.JSON(fiber.Map{"data": txs})
}
