// Command orderdesk is the trading client entrypoint: it places, cancels and
// inspects LIMIT orders on a configured symbol and can follow the execution
// stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"

	"github.com/coachpo/orderdesk/config"
	"github.com/coachpo/orderdesk/errs"
	"github.com/coachpo/orderdesk/internal/binance"
	"github.com/coachpo/orderdesk/internal/model"
	"github.com/coachpo/orderdesk/internal/observability"
	"github.com/coachpo/orderdesk/internal/persist"
	"github.com/coachpo/orderdesk/internal/persist/postgres"
	"github.com/coachpo/orderdesk/internal/service"
	"github.com/coachpo/orderdesk/internal/state"
	"github.com/coachpo/orderdesk/internal/stream"
	"github.com/coachpo/orderdesk/internal/validator"
	"github.com/coachpo/orderdesk/lib/telemetry"
)

const (
	loggerPrefix             = "orderdesk "
	persisterShutdownTimeout = 10 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
)

const usage = `usage: orderdesk [-config path] [-verbose] <command> [arguments]

commands:
  place -side BUY|SELL -price P -qty Q [-id clientOrderId]
  cancel <orderId|clientOrderId>
  show <orderId|clientOrderId>
  reconcile [orderId|clientOrderId]
  list
  sync
  prune
  balances
  price
  stream
`

func main() {
	var (
		cfgPath = flag.String("config", "", "Path to the YAML configuration file")
		verbose = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	logger := log.New(os.Stderr, loggerPrefix, log.LstdFlags)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *verbose {
		cfg.Verbose = true
	}
	observability.SetLogger(observability.NewStdLogger(logger, cfg.Verbose))

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(cfg, args[0], args[1:]); err != nil {
		logger.Fatalf("%s: %v", args[0], err)
	}
}

func run(cfg config.Settings, command string, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	meterProvider, shutdownTelemetry, err := telemetry.Init(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	observability.SetMetrics(telemetry.NewCounters(meterProvider))
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			observability.Log().Warn("telemetry shutdown failed",
				observability.F("error", err.Error()))
		}
	}()

	client := binance.NewClient(cfg.RESTBaseURL, cfg.Credentials.APIKey, cfg.Credentials.APISecret,
		cfg.RecvWindow, cfg.HTTPTimeout)
	if err := client.SyncClock(ctx); err != nil {
		return fmt.Errorf("sync exchange clock: %w", err)
	}

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	store := state.NewStore()
	snapshot, err := repo.ReadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("load persisted orders: %w", err)
	}
	if err := store.Load(snapshot); err != nil {
		return fmt.Errorf("restore order state: %w", err)
	}

	persister := state.NewPersister(repo)
	persister.Start()
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), persisterShutdownTimeout)
		defer cancel()
		if err := persister.Shutdown(flushCtx); err != nil {
			observability.Log().Error("final state flush failed",
				observability.F("error", err.Error()))
		}
	}()

	svc := service.NewOrderService(client, store, persister, cfg.Symbol(),
		validator.Policy{RequireReferencePrice: cfg.RequireReferencePrice})

	switch command {
	case "place":
		return cmdPlace(ctx, svc, args)
	case "cancel":
		return cmdCancel(ctx, svc, args)
	case "show":
		return cmdShow(svc, args)
	case "reconcile":
		return cmdReconcile(ctx, svc, args)
	case "list":
		return cmdList(svc)
	case "sync":
		return svc.SyncOpenOrders(ctx)
	case "prune":
		fmt.Printf("pruned %d terminal order(s)\n", svc.Prune())
		return nil
	case "balances":
		return cmdBalances(ctx, svc)
	case "price":
		return cmdPrice(ctx, svc)
	case "stream":
		return cmdStream(ctx, cfg, client, store, persister, svc)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func openRepository(ctx context.Context, cfg config.Settings) (persist.Repository, error) {
	if cfg.PostgresDSN != "" {
		repo, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		observability.Log().Info("using postgres order snapshots")
		return repo, nil
	}
	observability.Log().Info("using file order snapshots",
		observability.F("path", cfg.StateFile))
	return persist.NewFileRepository(cfg.StateFile), nil
}

func cmdPlace(ctx context.Context, svc *service.OrderService, args []string) error {
	fs := flag.NewFlagSet("place", flag.ExitOnError)
	var (
		sideFlag  = fs.String("side", "", "Order side: BUY or SELL")
		priceFlag = fs.String("price", "", "Limit price")
		qtyFlag   = fs.String("qty", "", "Order quantity in base asset")
		idFlag    = fs.String("id", "", "Client order id (generated when empty)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	side, err := model.ParseSide(*sideFlag)
	if err != nil {
		return err
	}
	price, err := decimal.NewFromString(*priceFlag)
	if err != nil {
		return fmt.Errorf("invalid price %q: %w", *priceFlag, err)
	}
	qty, err := decimal.NewFromString(*qtyFlag)
	if err != nil {
		return fmt.Errorf("invalid quantity %q: %w", *qtyFlag, err)
	}

	order, warnings, err := svc.Place(ctx, side, price, qty, *idFlag)
	if err != nil {
		return describeFailure(err)
	}
	for _, w := range warnings {
		fmt.Println("warning:", w)
	}
	printOrder(order)
	return nil
}

func cmdCancel(ctx context.Context, svc *service.OrderService, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("cancel requires exactly one order identifier")
	}
	order, err := svc.Cancel(ctx, args[0])
	if err != nil {
		return describeFailure(err)
	}
	printOrder(order)
	return nil
}

func cmdShow(svc *service.OrderService, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("show requires exactly one order identifier")
	}
	order, ok := svc.Get(args[0])
	if !ok {
		return fmt.Errorf("order %q is not tracked", args[0])
	}
	printOrder(order)
	return nil
}

func cmdReconcile(ctx context.Context, svc *service.OrderService, args []string) error {
	if len(args) == 0 {
		return svc.ReconcileAll(ctx)
	}
	order, err := svc.Reconcile(ctx, args[0])
	if err != nil {
		return describeFailure(err)
	}
	printOrder(order)
	return nil
}

func cmdList(svc *service.OrderService) error {
	open := svc.ListOpen()
	if len(open) == 0 {
		fmt.Println("no open orders")
		return nil
	}
	for _, order := range open {
		printOrder(order)
	}
	return nil
}

func cmdBalances(ctx context.Context, svc *service.OrderService) error {
	balances, err := svc.Balances(ctx)
	if err != nil {
		return describeFailure(err)
	}
	for _, b := range balances {
		if b.Total().IsZero() {
			continue
		}
		fmt.Printf("%-8s free=%s locked=%s\n", b.Asset, b.Free, b.Locked)
	}
	return nil
}

func cmdPrice(ctx context.Context, svc *service.OrderService) error {
	price, err := svc.Price(ctx)
	if err != nil {
		return describeFailure(err)
	}
	fmt.Println(price.String())
	return nil
}

// cmdStream follows the execution stream until interrupted, reconciling open
// orders first so the local book starts from exchange truth.
func cmdStream(ctx context.Context, cfg config.Settings, client *binance.Client,
	store *state.Store, persister *state.Persister, svc *service.OrderService) error {
	if err := svc.SyncOpenOrders(ctx); err != nil {
		observability.Log().Warn("startup order sync failed",
			observability.F("error", err.Error()))
	}

	streamSvc := stream.New(stream.Config{
		URL:               cfg.WSURL,
		APIKey:            cfg.Credentials.APIKey,
		Signer:            binance.NewSigner(cfg.Credentials.APISecret),
		Clock:             client.Clock(),
		RecvWindow:        cfg.RecvWindow,
		KeepAliveInterval: cfg.KeepAliveInterval,
	}, store, persister, client)

	var wg conc.WaitGroup
	errCh := make(chan error, 1)
	wg.Go(func() {
		errCh <- streamSvc.Run(ctx)
	})
	defer wg.Wait()

	err := <-errCh
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func printOrder(order model.Order) {
	fmt.Printf("%-22s id=%-10d %-4s %-6s price=%-14s qty=%-12s filled=%-12s %s\n",
		order.ClientOrderID, order.OrderID, order.Side, order.Status,
		order.Price, order.OrigQty, order.ExecutedQty,
		time.UnixMilli(order.UpdateTime).UTC().Format(time.RFC3339))
}

// describeFailure keeps exchange outcomes readable on the command line.
func describeFailure(err error) error {
	switch errs.Canonical(err) {
	case errs.CanonicalInsufficientBalance:
		return fmt.Errorf("insufficient balance: %w", err)
	case errs.CanonicalDuplicateOrder:
		return fmt.Errorf("duplicate client order id, use a fresh one: %w", err)
	case errs.CanonicalOrderNotFound:
		return fmt.Errorf("order not found on the exchange: %w", err)
	case errs.CanonicalFilterViolation:
		return fmt.Errorf("order violates trading rules: %w", err)
	case errs.CanonicalRateLimited:
		return fmt.Errorf("rate limited after retries: %w", err)
	default:
		return err
	}
}
