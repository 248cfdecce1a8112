// Package main is the entry point for the background worker process. It
// schedules the deposit watcher, withdrawal sender and sweeper for every
// configured chain. The worker holds the custody private key; the API
// server does not.
package main

import (
	"context"
	"strings"
	"time"

	"veyra/internal/chain"
	"veyra/internal/config"
	"veyra/internal/repositories"
	"veyra/internal/services/keycustody"
	"veyra/internal/services/price"
	"veyra/internal/services/wallet"
	"veyra/internal/workers"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	watcherSchedule = "@every 30s"
	senderSchedule  = "@every 45s"
	sweeperSchedule = "@every 55s"

	// Each run gets a deadline shorter than the longest schedule so
	// overlapping runs of the same job cannot pile up.
	runTimeout = 25 * time.Second
)

func main() {
	config.LoadEnv()

	if config.IsProduction() {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	if err := repositories.InitDB(); err != nil {
		logrus.WithError(err).Fatal("database initialization failed")
	}
	store := repositories.NewStore(repositories.DB)

	publicKey, err := keycustody.LoadPublicKey(config.MustGetEnv("CUSTODY_PUBLIC_KEY"))
	if err != nil {
		logrus.WithError(err).Fatal("failed to load custody public key")
	}
	privateKey, err := keycustody.LoadPrivateKey(config.MustGetEnv("CUSTODY_PRIVATE_KEY"))
	if err != nil {
		logrus.WithError(err).Fatal("failed to load custody private key")
	}
	custody := keycustody.NewService(publicKey, privateKey)

	priceTTL := time.Duration(config.GetIntEnv("PRICE_CACHE_TTL_SECONDS", 60)) * time.Second
	oracle := price.NewCachedOracle(price.NewCoinGeckoOracle(), repositories.NewRedisCache(), priceTTL)
	wallets := wallet.NewService(store, custody, oracle)

	keeperUserID := uint(config.GetIntEnv("KEEPER_USER_ID", 0))
	if keeperUserID == 0 {
		logrus.Fatal("KEEPER_USER_ID is not set")
	}
	adminAddress := config.MustGetEnv("ADMIN_COLD_WALLET")

	scheduler := cron.New()
	for _, chainName := range config.Chains() {
		rpcURL := config.MustGetEnv("RPC_URL_" + envKey(chainName))

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		client, err := chain.Dial(ctx, rpcURL)
		cancel()
		if err != nil {
			logrus.WithError(err).WithField("chain", chainName).Fatal("failed to dial RPC endpoint")
		}

		watcher := workers.NewWatcher(chainName, client, store, wallets)
		sender := workers.NewSender(chainName, client, store, wallets, keeperUserID)
		sweeper := workers.NewSweeper(chainName, client, store, wallets, keeperUserID, adminAddress)

		mustSchedule(scheduler, watcherSchedule, runner("watcher", chainName, watcher.Run))
		mustSchedule(scheduler, senderSchedule, runner("sender", chainName, sender.Run))
		mustSchedule(scheduler, sweeperSchedule, runner("sweeper", chainName, sweeper.Run))

		logrus.WithField("chain", chainName).Info("workers scheduled")
	}

	scheduler.Start()
	logrus.Info("worker process started")
	select {}
}

// runner wraps a worker cycle with a deadline and failure logging so
// one bad cycle never takes the scheduler down.
func runner(job, chainName string, run func(ctx context.Context) error) func() {
	log := logrus.WithFields(logrus.Fields{"job": job, "chain": chainName})
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		if err := run(ctx); err != nil {
			log.WithError(err).Error("worker cycle failed")
		}
	}
}

func mustSchedule(scheduler *cron.Cron, spec string, fn func()) {
	if _, err := scheduler.AddFunc(spec, fn); err != nil {
		logrus.WithError(err).Fatal("failed to schedule job")
	}
}

// envKey converts a chain name to its env-var suffix, e.g. "polygon"
// becomes "POLYGON".
func envKey(chainName string) string {
	return strings.ToUpper(strings.ReplaceAll(chainName, "-", "_"))
}
