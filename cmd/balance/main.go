// Command balance prints per-account token balances and router allowances
// for every configured asset. Read-only; useful before starting the cycler.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"uni-gocycle/internal/assets"
	"uni-gocycle/internal/chain"
	"uni-gocycle/internal/dotenv"
	"uni-gocycle/internal/ethutil"
)

func main() {
	if err := dotenv.Load(); err != nil {
		log.Printf("[warn] %v", err)
	}

	var addressFlag string
	flag.StringVar(&addressFlag, "address", "", "Inspect a single address instead of PRIVATE_KEYS")
	flag.Parse()

	rpcURL := strings.TrimSpace(os.Getenv("RPC_URL"))
	if rpcURL == "" {
		log.Fatalf("[fatal] RPC_URL required")
	}

	router, err := ethutil.ParseAddress(os.Getenv("ROUTER_ADDRESS"))
	if err != nil {
		log.Fatalf("[fatal] ROUTER_ADDRESS: %v", err)
	}

	assetList, err := assets.ParseSpec(os.Getenv("ASSETS"))
	if err != nil {
		log.Fatalf("[fatal] ASSETS: %v", err)
	}

	var owners []common.Address
	if addressFlag != "" {
		owner, err := ethutil.ParseAddress(addressFlag)
		if err != nil {
			log.Fatalf("[fatal] -address: %v", err)
		}
		owners = append(owners, owner)
	} else {
		accounts, err := ethutil.ParsePrivateKeys(os.Getenv("PRIVATE_KEYS"))
		if err != nil {
			log.Fatalf("[fatal] PRIVATE_KEYS: %v", err)
		}
		if len(accounts) == 0 {
			log.Fatalf("[fatal] set PRIVATE_KEYS or pass -address")
		}
		for _, acct := range accounts {
			owners = append(owners, acct.Address)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		log.Fatalf("[fatal] dial rpc: %v", err)
	}
	defer eth.Close()

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		log.Fatalf("[fatal] fetch chain id: %v", err)
	}

	client, err := chain.NewClient(eth, chainID, chain.Config{Router: router})
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	fmt.Printf("Chain %d, router %s\n", chainID, router.Hex())
	for _, owner := range owners {
		fmt.Printf("\n%s\n", owner.Hex())
		for _, asset := range assetList {
			balance, err := client.TokenBalance(ctx, asset.Address, owner)
			if err != nil {
				log.Printf("[warn] %s balance: %v", asset.Symbol, err)
				continue
			}
			allowance, err := client.TokenAllowance(ctx, asset.Address, owner, router)
			if err != nil {
				log.Printf("[warn] %s allowance: %v", asset.Symbol, err)
				continue
			}
			fmt.Printf("  %-8s balance %s  allowance %s\n",
				asset.Symbol,
				assets.FormatUnits(balance, asset.Decimals),
				assets.FormatUnits(allowance, asset.Decimals))
		}
	}
}
