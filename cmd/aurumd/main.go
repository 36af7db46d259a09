package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"aurum/config"
	"aurum/core/events"
	"aurum/core/state"
	nativecommon "aurum/native/common"
	"aurum/native/sale"
	"aurum/native/treasury"
	"aurum/observability/logging"
	"aurum/rpc"
	"aurum/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("AURUM_ENV"))
	logger := logging.Setup("aurumd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	manager := state.NewManager(db)
	if err := seedState(manager, cfg); err != nil {
		panic(fmt.Sprintf("Failed to seed state: %v", err))
	}

	saleEngine, feeds, err := buildSaleEngine(manager, cfg)
	if err != nil {
		panic(fmt.Sprintf("Failed to build sale engine: %v", err))
	}
	treasuryEngine, err := buildTreasuryEngine(manager, cfg)
	if err != nil {
		panic(fmt.Sprintf("Failed to build treasury engine: %v", err))
	}

	emitter := events.NewLogEmitter(logger)
	saleEngine.SetEmitter(emitter)
	treasuryEngine.SetEmitter(emitter)

	server := rpc.NewServer(saleEngine, treasuryEngine, logger)
	for ref, feed := range feeds {
		server.RegisterManualFeed(ref, feed)
	}
	if quota, ok := purchaseQuota(cfg); ok {
		server.SetPurchaseQuota(quota)
	}

	logger.Info("aurumd ready",
		slog.String("network", cfg.NetworkName),
		slog.String("rpc", cfg.RPCAddress),
		slog.Int("paymentTokens", len(cfg.Sale.PaymentTokens)))
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// purchaseQuota translates the configured per-buyer limits into a quota over
// one-minute epochs.
func purchaseQuota(cfg *config.Config) (nativecommon.Quota, bool) {
	quota := nativecommon.Quota{
		MaxRequestsPerEpoch: cfg.Sale.MaxPurchasesPerMinute,
		EpochSeconds:        60,
	}
	if strings.TrimSpace(cfg.Sale.MaxGPTPerMinute) != "" {
		limit, err := config.ParseAmount(cfg.Sale.MaxGPTPerMinute)
		if err == nil && limit.IsUint64() {
			quota.MaxGPTPerEpoch = limit.Uint64()
		}
	}
	return quota, quota.Enabled()
}

// seedState applies the configured access-control lists, relayer and payment
// tokens so a fresh data directory starts in a usable state.
func seedState(manager *state.Manager, cfg *config.Config) error {
	for _, admin := range cfg.Roles.Admins {
		addr, err := config.ParseAddress(admin)
		if err != nil {
			return err
		}
		if err := manager.GrantRole(sale.RoleAdmin, addr[:]); err != nil {
			return err
		}
	}
	for _, salesManager := range cfg.Roles.SalesManagers {
		addr, err := config.ParseAddress(salesManager)
		if err != nil {
			return err
		}
		if err := manager.GrantRole(sale.RoleSalesManager, addr[:]); err != nil {
			return err
		}
	}
	if strings.TrimSpace(cfg.Sale.RelayerAddress) != "" {
		relayer, err := config.ParseAddress(cfg.Sale.RelayerAddress)
		if err != nil {
			return err
		}
		if err := manager.RelayerPut(relayer); err != nil {
			return err
		}
	}
	for _, token := range cfg.Sale.PaymentTokens {
		addr, err := config.ParseAddress(token.Address)
		if err != nil {
			return err
		}
		tokenCfg := &sale.TokenConfig{Accepted: true, FeedRef: token.FeedRef, Decimals: token.Decimals}
		if err := manager.TokenConfigPut(addr, tokenCfg); err != nil {
			return err
		}
	}
	return nil
}

func buildSaleEngine(manager *state.Manager, cfg *config.Config) (*sale.Engine, map[string]*sale.ManualFeed, error) {
	verifyingContract, err := config.ParseAddress(cfg.Sale.VerifyingContract)
	if err != nil {
		return nil, nil, fmt.Errorf("sale.VerifyingContract: %w", err)
	}
	gptToken, err := config.ParseAddress(cfg.Sale.GPTTokenAddress)
	if err != nil {
		return nil, nil, fmt.Errorf("sale.GPTTokenAddress: %w", err)
	}
	treasuryAddr, err := config.ParseAddress(cfg.Treasury.TreasuryAddress)
	if err != nil {
		return nil, nil, fmt.Errorf("treasury.TreasuryAddress: %w", err)
	}
	perTroyOunce, err := config.ParseAmount(cfg.Sale.TokensPerTroyOunce)
	if err != nil {
		return nil, nil, fmt.Errorf("sale.TokensPerTroyOunce: %w", err)
	}

	engine := sale.NewEngine()
	engine.SetState(manager)
	engine.SetPauses(manager)
	engine.SetAuthorizer(sale.NewAuthorizer(cfg.Sale.ChainID, verifyingContract))
	engine.SetResolver(sale.NewResolver(time.Duration(cfg.Sale.MaxPriceAgeSeconds) * time.Second))
	engine.SetTreasury(treasuryAddr)
	engine.SetGPTToken(gptToken)
	engine.SetTokensPerTroyOunce(perTroyOunce)

	feeds := make(map[string]*sale.ManualFeed)
	goldFeed := sale.NewManualFeed(cfg.Sale.GoldFeedDecimals)
	feeds[cfg.Sale.GoldFeedRef] = goldFeed
	engine.RegisterFeed(cfg.Sale.GoldFeedRef, goldFeed)
	engine.SetGoldFeedRef(cfg.Sale.GoldFeedRef)
	for _, token := range cfg.Sale.PaymentTokens {
		ref := strings.TrimSpace(token.FeedRef)
		if _, exists := feeds[ref]; exists {
			continue
		}
		feed := sale.NewManualFeed(token.FeedDecimals)
		feeds[ref] = feed
		engine.RegisterFeed(ref, feed)
	}
	return engine, feeds, nil
}

func buildTreasuryEngine(manager *state.Manager, cfg *config.Config) (*treasury.Engine, error) {
	treasuryAddr, err := config.ParseAddress(cfg.Treasury.TreasuryAddress)
	if err != nil {
		return nil, fmt.Errorf("treasury.TreasuryAddress: %w", err)
	}
	safeWallet, err := config.ParseAddress(cfg.Treasury.SafeWallet)
	if err != nil {
		return nil, fmt.Errorf("treasury.SafeWallet: %w", err)
	}
	threshold, err := config.ParseAmount(cfg.Treasury.Threshold)
	if err != nil {
		return nil, fmt.Errorf("treasury.Threshold: %w", err)
	}

	engine := treasury.NewEngine()
	engine.SetState(manager)
	engine.SetPauses(manager)
	engine.SetTreasury(treasuryAddr)
	engine.SetSafeWallet(safeWallet)
	engine.SetThreshold(threshold)
	engine.SetDelay(time.Duration(cfg.Treasury.DelaySeconds) * time.Second)
	return engine, nil
}
