// Command examples demonstrates the unified adapter surface: it loads
// credentials through pkg/config, constructs one connector per venue
// and fetches public market data from each. Private calls run only for
// venues with configured credentials.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/veiloq/venue-adapters/pkg/config"
	"github.com/veiloq/venue-adapters/pkg/exchanges/btcex"
	"github.com/veiloq/venue-adapters/pkg/exchanges/coinlist"
	"github.com/veiloq/venue-adapters/pkg/exchanges/fxopen"
	"github.com/veiloq/venue-adapters/pkg/exchanges/interfaces"
	"github.com/veiloq/venue-adapters/pkg/exchanges/nonkyc"
	"github.com/veiloq/venue-adapters/pkg/exchanges/waves"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (optional)")
	symbol := flag.String("symbol", "BTC/USDT", "unified symbol to query")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	connectors := []interfaces.Exchange{
		btcex.NewConnector(cfg.Options("btcex")),
		coinlist.NewConnector(cfg.Options("coinlist")),
		fxopen.NewConnector(cfg.Options("fxopen")),
		nonkyc.NewConnector(cfg.Options("nonkyc")),
		waves.NewConnector(cfg.Options("waves")),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, connector := range connectors {
		showVenue(ctx, connector, *symbol, cfg)
	}
}

func showVenue(ctx context.Context, connector interfaces.Exchange, symbol string, cfg *config.Config) {
	fmt.Printf("== %s ==\n", connector.ID())

	markets, err := connector.FetchMarkets(ctx)
	if err != nil {
		fmt.Printf("  markets: %v\n", err)
		return
	}
	fmt.Printf("  markets: %d instruments\n", len(markets))

	ticker, err := connector.FetchTicker(ctx, symbol)
	if err != nil {
		if errors.Is(err, interfaces.ErrBadRequest) {
			fmt.Printf("  ticker: %s is not listed here\n", symbol)
		} else {
			fmt.Printf("  ticker: %v\n", err)
		}
	} else {
		fmt.Printf("  ticker: last=%.8g bid=%.8g ask=%.8g\n", ticker.Last, ticker.Bid, ticker.Ask)
	}

	creds, configured := cfg.Venues[connector.ID()]
	if !configured || creds.APIKey == "" {
		fmt.Println("  (no credentials configured, skipping private calls)")
		return
	}

	balances, err := connector.FetchBalance(ctx)
	if err != nil {
		fmt.Printf("  balances: %v\n", err)
		return
	}
	for currency, balance := range balances {
		if balance.Total != "" && balance.Total != "0" {
			fmt.Printf("  balance %s: free=%s used=%s\n", currency, balance.Free, balance.Used)
		}
	}
}
