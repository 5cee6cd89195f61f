package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"uni-gocycle/internal/assets"
	"uni-gocycle/internal/chain"
	"uni-gocycle/internal/cycle"
	"uni-gocycle/internal/dotenv"
	"uni-gocycle/internal/ethutil"
	"uni-gocycle/internal/executor"
	"uni-gocycle/internal/headwatch"
	"uni-gocycle/internal/jsonl"
	"uni-gocycle/internal/runner"
)

const (
	defaultFeeTier     = 3000
	defaultDelayMin    = 30 * time.Second
	defaultDelayMax    = 60 * time.Second
	headLogEveryBlocks = 50
	defaultDialTimeout = 12 * time.Second
)

type config struct {
	rpcURL string
	wsURL  string

	accounts []ethutil.Account
	router   common.Address
	assets   []assets.Asset
	table    *cycle.Table

	feeTier      uint32
	amountOutMin *big.Int
	swapDeadline time.Duration
	waitTimeout  time.Duration

	delayMin time.Duration
	delayMax time.Duration

	tradeLogPath string
}

func main() {
	if err := dotenv.Load(); err != nil {
		log.Printf("[warn] %v", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, dialCancel := context.WithTimeout(ctx, defaultDialTimeout)
	eth, err := ethclient.DialContext(dialCtx, cfg.rpcURL)
	dialCancel()
	if err != nil {
		log.Fatalf("[fatal] dial rpc: %v", err)
	}
	defer eth.Close()

	idCtx, idCancel := context.WithTimeout(ctx, defaultDialTimeout)
	chainID, err := eth.ChainID(idCtx)
	idCancel()
	if err != nil {
		log.Fatalf("[fatal] fetch chain id: %v", err)
	}

	ledger, err := chain.NewClient(eth, chainID, chain.Config{
		Router:       cfg.router,
		SwapDeadline: cfg.swapDeadline,
		WaitTimeout:  cfg.waitTimeout,
	})
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	tradeLog := jsonl.New(cfg.tradeLogPath)
	if tradeLog != nil {
		log.Printf("Trade log: %s (JSONL)", cfg.tradeLogPath)
		defer func() {
			if err := tradeLog.Close(); err != nil {
				log.Printf("[warn] trade log close: %v", err)
			}
		}()
	}

	log.Printf("Swap cycler (chain=%d router=%s)", chainID, cfg.router.Hex())
	log.Printf("Accounts: %d", len(cfg.accounts))
	for _, acct := range cfg.accounts {
		log.Printf("  %s", acct.Address.Hex())
	}
	log.Printf("Assets: %s", describeAssets(cfg.assets))
	log.Printf("Cycle: %s", describeCycle(cfg.table))
	log.Printf("Fee tier: %d", cfg.feeTier)
	if cfg.amountOutMin.Sign() == 0 {
		log.Printf("Min output: 0 (no slippage floor)")
	} else {
		log.Printf("Min output: %s units", cfg.amountOutMin)
	}
	log.Printf("Delay: %s..%s", cfg.delayMin, cfg.delayMax)

	if cfg.wsURL != "" {
		go watchHeads(ctx, cfg.wsURL)
	}

	exec := executor.New(ledger, cfg.router, cfg.feeTier, cfg.amountOutMin)
	r, err := runner.New(runner.Config{
		Accounts: cfg.accounts,
		Table:    cfg.table,
		DelayMin: cfg.delayMin,
		DelayMax: cfg.delayMax,
		TradeLog: tradeLog,
	}, exec)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	if err := r.Run(ctx); err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	log.Printf("Shutting down")
}

func loadConfig() (config, error) {
	var cfg config

	var delayMinFlag string
	var delayMaxFlag string
	var tradeLogFlag string

	flag.StringVar(&delayMinFlag, "delay-min", "", "Minimum pacing delay (default from DELAY_MIN or 30s)")
	flag.StringVar(&delayMaxFlag, "delay-max", "", "Maximum pacing delay (default from DELAY_MAX or 60s)")
	flag.StringVar(&tradeLogFlag, "trade-log", "", "JSONL trade log path (default from TRADE_LOG; empty disables)")
	flag.Parse()

	rpcURL := strings.TrimSpace(os.Getenv("RPC_URL"))
	if rpcURL == "" {
		return cfg, fmt.Errorf("RPC_URL required")
	}
	if !strings.HasPrefix(rpcURL, "http") && !strings.HasPrefix(rpcURL, "wss") {
		return cfg, fmt.Errorf("RPC_URL must be http(s):// or wss://, got %q", rpcURL)
	}
	cfg.rpcURL = rpcURL
	cfg.wsURL = strings.TrimSpace(os.Getenv("RPC_WS_URL"))

	accounts, err := ethutil.ParsePrivateKeys(os.Getenv("PRIVATE_KEYS"))
	if err != nil {
		return cfg, fmt.Errorf("PRIVATE_KEYS: %w", err)
	}
	if len(accounts) == 0 {
		return cfg, fmt.Errorf("PRIVATE_KEYS required (comma-delimited)")
	}
	cfg.accounts = accounts

	router, err := ethutil.ParseAddress(os.Getenv("ROUTER_ADDRESS"))
	if err != nil {
		return cfg, fmt.Errorf("ROUTER_ADDRESS: %w", err)
	}
	cfg.router = router

	assetList, err := assets.ParseSpec(os.Getenv("ASSETS"))
	if err != nil {
		return cfg, fmt.Errorf("ASSETS: %w", err)
	}
	cfg.assets = assetList

	table, err := cycle.ParseTable(os.Getenv("CYCLE"), assets.BySymbol(assetList))
	if err != nil {
		return cfg, fmt.Errorf("CYCLE: %w", err)
	}
	cfg.table = table

	feeTier := uint64(defaultFeeTier)
	if env := strings.TrimSpace(os.Getenv("FEE_TIER")); env != "" {
		feeTier, err = strconv.ParseUint(env, 10, 24)
		if err != nil {
			return cfg, fmt.Errorf("invalid FEE_TIER %q: %w", env, err)
		}
	}
	cfg.feeTier = uint32(feeTier)

	cfg.amountOutMin = big.NewInt(0)
	if env := strings.TrimSpace(os.Getenv("AMOUNT_OUT_MIN")); env != "" {
		v, ok := new(big.Int).SetString(env, 10)
		if !ok || v.Sign() < 0 {
			return cfg, fmt.Errorf("invalid AMOUNT_OUT_MIN %q", env)
		}
		cfg.amountOutMin = v
	}

	cfg.swapDeadline = chain.DefaultSwapDeadline
	if env := strings.TrimSpace(os.Getenv("SWAP_DEADLINE")); env != "" {
		d, err := time.ParseDuration(env)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("invalid SWAP_DEADLINE %q", env)
		}
		cfg.swapDeadline = d
	}

	cfg.waitTimeout = chain.DefaultWaitTimeout
	if env := strings.TrimSpace(os.Getenv("WAIT_TIMEOUT")); env != "" {
		d, err := time.ParseDuration(env)
		if err != nil || d < 0 {
			return cfg, fmt.Errorf("invalid WAIT_TIMEOUT %q", env)
		}
		cfg.waitTimeout = d
	}

	cfg.delayMin, err = durationSetting(delayMinFlag, "DELAY_MIN", defaultDelayMin)
	if err != nil {
		return cfg, err
	}
	cfg.delayMax, err = durationSetting(delayMaxFlag, "DELAY_MAX", defaultDelayMax)
	if err != nil {
		return cfg, err
	}
	if cfg.delayMax < cfg.delayMin {
		return cfg, fmt.Errorf("delay range inverted: min=%s max=%s", cfg.delayMin, cfg.delayMax)
	}

	cfg.tradeLogPath = strings.TrimSpace(firstNonEmpty(tradeLogFlag, os.Getenv("TRADE_LOG")))

	return cfg, nil
}

func durationSetting(flagValue, envName string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(firstNonEmpty(flagValue, os.Getenv(envName)))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envName, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", envName, d)
	}
	return d, nil
}

func describeAssets(list []assets.Asset) string {
	parts := make([]string, 0, len(list))
	for _, a := range list {
		parts = append(parts, fmt.Sprintf("%s(%s, %d dec)", a.Symbol, a.Address.Hex(), a.Decimals))
	}
	return strings.Join(parts, ", ")
}

func describeCycle(table *cycle.Table) string {
	parts := make([]string, 0, table.Len())
	for i := 0; i < table.Len(); i++ {
		parts = append(parts, table.StepAt(i).String())
	}
	return strings.Join(parts, ", ")
}

// watchHeads logs chain progress while the bot runs. Purely informational;
// errors here never affect the scheduler loop.
func watchHeads(ctx context.Context, wsURL string) {
	heads, errs := headwatch.Start(ctx, wsURL, headwatch.Options{})
	var lastLogged uint64
	for {
		select {
		case <-ctx.Done():
			return
		case h, ok := <-heads:
			if !ok {
				return
			}
			if lastLogged == 0 || h.Number >= lastLogged+headLogEveryBlocks {
				log.Printf("[head] block=%d", h.Number)
				lastLogged = h.Number
			}
		case err, ok := <-errs:
			if !ok {
				return
			}
			log.Printf("[warn] headwatch: %v", err)
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
