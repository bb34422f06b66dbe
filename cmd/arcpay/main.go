// Command arcpay sends a payment with an on-chain receipt, or prints the
// receipt dashboard of a wallet.
//
//	arcpay pay -to 0x... -amount 12.50 -category Invoice -reason rent [-currency EUR]
//	arcpay pay -mode swap -target EURC -amount 5
//	arcpay status [-wallet 0x...] [-mode sent|received] [-from YYYY-MM-DD] [-to YYYY-MM-DD] [-page N]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"arcreceipts/internal/backend"
	"arcreceipts/internal/cli"
	"arcreceipts/internal/config"
	"arcreceipts/internal/core"
	applog "arcreceipts/internal/log"
	"arcreceipts/internal/metrics"
	"arcreceipts/internal/payment"
	"arcreceipts/internal/services"

	"github.com/ethereum/go-ethereum/common"
)

var errUsage = errors.New("usage: arcpay pay|status [flags]")

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentPayment)
	cfg := cli.LoadAndValidateConfig(logger)

	bcfg, err := backend.FromAppConfig(cfg, nil)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConfirmTimeout+time.Minute)
	defer cancel()

	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err)
	}
	defer res.Cleanup()

	if err := run(ctx, cfg, res, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "arcpay:", err)
		_ = res.Cleanup()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, res *backend.BackendResult, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "pay":
		return runPay(ctx, cfg, res, args[1:], out)
	case "status":
		return runStatus(ctx, cfg, res, args[1:], out)
	default:
		return fmt.Errorf("unknown command %q: %w", args[0], errUsage)
	}
}

func runPay(ctx context.Context, cfg *config.Config, res *backend.BackendResult, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("pay", flag.ContinueOnError)
	fs.SetOutput(out)
	mode := fs.String("mode", "direct", "payment mode: direct or swap")
	to := fs.String("to", "", "recipient address (defaults to the payer)")
	amount := fs.String("amount", "", "USDC amount, at most 6 decimals")
	category := fs.String("category", "Other", "category label or index")
	reason := fs.String("reason", "", "free-text reason stored on the receipt")
	target := fs.String("target", "", "swap output token symbol, e.g. EURC")
	currency := fs.String("currency", "", "label for both sides of a direct payment (default USD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if res.Payer == (common.Address{}) {
		return errors.New("PAYER_PRIVATE_KEY is required to send payments")
	}
	m, err := payment.ParseMode(*mode)
	if err != nil {
		return err
	}
	cat, err := core.ParseCategory(*category)
	if err != nil {
		return err
	}

	explorer := core.Explorer{BaseURL: cfg.ExplorerURL}
	svc := payment.NewService(res.Chain, res.Payer, payment.Addresses{
		Receipts: cfg.Receipts(),
		USDC:     cfg.USDC(),
		Router:   cfg.FXRouter(),
	}, payment.WithProgress(func(s payment.Stage) {
		fmt.Fprintf(out, "... %s\n", strings.ReplaceAll(string(s), "_", " "))
	}), payment.WithObserver(metricsObserver{}))

	result, err := svc.Pay(ctx, payment.Request{
		Mode:     m,
		To:       *to,
		Amount:   *amount,
		Category: cat,
		Reason:   *reason,
		Target:   *target,
		Currency: *currency,
	})
	if result.ExpectedID != 0 {
		fmt.Fprintf(out, "expected receipt id: %d\n", result.ExpectedID)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "tx: %s\n", result.Tx.Hex())
	fmt.Fprintf(out, "block: %d\n", result.BlockNumber)
	fmt.Fprintf(out, "corridor: %s\n", result.Corridor)
	fmt.Fprintf(out, "receipt: %s\n", result.ReceiptPath)
	fmt.Fprintf(out, "explorer: %s\n", explorer.TxURL(result.Tx.Hex()))
	return nil
}

func runStatus(ctx context.Context, cfg *config.Config, res *backend.BackendResult, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(out)
	wallet := fs.String("wallet", "", "wallet to inspect (defaults to the payer)")
	mode := fs.String("mode", "all", "history rows: all, sent or received")
	from := fs.String("from", "", "first history day, YYYY-MM-DD")
	to := fs.String("to", "", "last history day, YYYY-MM-DD")
	page := fs.Int("page", 1, "history page")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var filter core.HistoryFilter
	var err error
	if filter.Mode, err = core.ParseHistoryMode(*mode); err != nil {
		return err
	}
	if filter.From, err = core.ParseDate(*from); err != nil {
		return err
	}
	if filter.To, err = core.ParseDate(*to); err != nil {
		return err
	}

	subject := res.Payer
	if *wallet != "" {
		a, err := core.ParseAddress(*wallet)
		if err != nil {
			return err
		}
		subject = a
	}
	if subject == (common.Address{}) {
		return errors.New("no wallet: pass -wallet or set PAYER_PRIVATE_KEY")
	}

	view := services.NewWalletView(services.NewReceiptService(services.Config{
		Reader:   res.Reader,
		Source:   res.Source,
		Logs:     res.Chain,
		Contract: cfg.Receipts(),
		Explorer: core.Explorer{BaseURL: cfg.ExplorerURL},
		Lookback: cfg.ScanLookback,
		PageSize: cfg.PageSize,
	}))
	view.Connect(subject)
	if err := view.SetHistoryFilter(filter); err != nil {
		return err
	}
	if state, _ := view.Refresh(ctx); state.Err != nil {
		return state.Err
	}
	view.SetHistoryPage(*page)
	state := view.State()

	fmt.Fprintf(out, "wallet: %s\n", subject.Hex())
	if state.Latest == nil {
		fmt.Fprintln(out, "latest: none")
	} else {
		r := state.Latest
		dir := "received from " + r.From.Hex()
		if r.IsSender(subject) {
			dir = "sent to " + r.To.Hex()
		}
		fmt.Fprintf(out, "latest: #%d %s USDC %s (%s)\n", r.ID, r.Amount.String(), dir, r.Category.Label())
	}
	if !state.HasData {
		fmt.Fprintln(out, "analytics: no data")
	} else {
		fmt.Fprintf(out, "sent: %s USDC\n", state.Analytics.TotalSent.String())
		fmt.Fprintf(out, "received: %s USDC\n", state.Analytics.TotalReceived.String())
		for _, c := range state.Analytics.Breakdown {
			fmt.Fprintf(out, "  %s: %.2f\n", c.Label, c.Value)
		}
	}
	h := state.History
	fmt.Fprintf(out, "history (%s): page %d/%d, %d rows\n", filter.Mode, h.CurrentPage, h.TotalPages, h.TotalRows)
	for _, r := range h.Rows {
		fmt.Fprintf(out, "  #%d %s %s USDC %s\n", r.ID, r.Time().Format(time.DateOnly), r.Amount.String(), r.Category.Label())
	}
	if state.Window.Truncated {
		fmt.Fprintf(out, "scanned back to receipt #%d only\n", state.Window.OldestScanned)
	}
	return nil
}

// metricsObserver logs payment outcomes in the same buckets the server
// exports as metrics.
type metricsObserver struct{}

func (metricsObserver) ObservePayment(mode string, err error) {
	applog.FromContext(context.Background()).WithComponent(applog.ComponentPayment).
		InfoContext(context.Background(), "Payment finished", "mode", mode, "outcome", metrics.Outcome(err))
}
