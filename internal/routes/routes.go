// Package routes defines the API routing configuration. It wires the
// repositories, services and handlers and groups routes by auth
// requirements.
package routes

import (
	"time"

	"veyra/internal/config"
	"veyra/internal/handlers"
	"veyra/internal/middleware"
	"veyra/internal/repositories"
	"veyra/internal/services/auth"
	"veyra/internal/services/investment"
	"veyra/internal/services/keycustody"
	"veyra/internal/services/price"
	"veyra/internal/services/referral"
	"veyra/internal/services/wallet"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SetupRoutes configures all application routes.
func SetupRoutes(app *fiber.App, db *gorm.DB) {
	store := repositories.NewStore(db)

	// Custody key pair. The private key is only needed by the worker
	// process; the API runs with the public half and cannot unseal
	// wallet keys.
	publicKey, err := keycustody.LoadPublicKey(config.GetEnv("CUSTODY_PUBLIC_KEY", "keys/custody.pub.pem"))
	if err != nil {
		logrus.WithError(err).Fatal("failed to load custody public key")
	}
	var custody *keycustody.Service
	if privPath := config.GetEnv("CUSTODY_PRIVATE_KEY", ""); privPath != "" {
		privateKey, err := keycustody.LoadPrivateKey(privPath)
		if err != nil {
			logrus.WithError(err).Fatal("failed to load custody private key")
		}
		custody = keycustody.NewService(publicKey, privateKey)
	} else {
		custody = keycustody.NewService(publicKey, nil)
	}

	// Price oracle with a Redis TTL cache in front of CoinGecko.
	priceTTL := time.Duration(config.GetIntEnv("PRICE_CACHE_TTL_SECONDS", 60)) * time.Second
	oracle := price.NewCachedOracle(price.NewCoinGeckoOracle(), repositories.NewRedisCache(), priceTTL)

	referralService := referral.NewService(store)
	walletService := wallet.NewService(store, custody, oracle)
	investmentService := investment.NewService(store, oracle, referralService, config.IndexAssets()[0])
	authService := auth.NewService(store, walletService, referralService)

	authHandler := handlers.NewAuthHandler(authService)
	walletHandler := handlers.NewWalletHandler(walletService)
	investmentHandler := handlers.NewInvestmentHandler(investmentService)
	referralHandler := handlers.NewReferralHandler(referralService)
	assetHandler := handlers.NewAssetHandler(store)

	api := app.Group("/api")

	// Public endpoints.
	api.Post("/register", authHandler.RegisterUser)
	api.Post("/login", authHandler.LoginUser)
	api.Post("/refresh", authHandler.RefreshToken)
	api.Get("/health", handlers.HealthCheck(db))

	// Everything below requires a valid token.
	authMiddleware := middleware.NewAuthMiddleware(authService)
	protected := api.Use(authMiddleware.Handler)

	protected.Post("/logout", authHandler.LogoutUser)
	protected.Get("/assets", assetHandler.ListAssets)

	walletGroup := protected.Group("/wallet")
	walletGroup.Get("/balance", walletHandler.GetBalance)
	walletGroup.Post("/withdraw", walletHandler.RequestWithdrawal)
	walletGroup.Post("/deposit", walletHandler.CreateDepositIntent)
	walletGroup.Get("/transactions", walletHandler.GetTransactions)

	investGroup := protected.Group("/investment")
	investGroup.Post("/", investmentHandler.Invest)
	investGroup.Post("/redeem", investmentHandler.Redeem)
	investGroup.Get("/", investmentHandler.GetInvestments)
	investGroup.Get("/stats", investmentHandler.GetStats)

	protected.Get("/referral", referralHandler.GetSummary)
}
