package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/bizmanager/ledgersync/internal/ledger"
	"github.com/bizmanager/ledgersync/internal/store"
	"github.com/bizmanager/ledgersync/internal/syncer"
	"github.com/bizmanager/ledgersync/pkg/config"
	"github.com/bizmanager/ledgersync/pkg/enums"
	"github.com/bizmanager/ledgersync/pkg/env"
	"github.com/bizmanager/ledgersync/pkg/logger"
	"github.com/bizmanager/ledgersync/pkg/metrics"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

const usage = `usage: ledgercli <command> [args]

  list    <kind> <order-id>
  add     <kind> <order-id> <name> [price qty [tax-rate]]
  set     <kind> <order-id> <item-id> <field> <value>
  del     <kind> <order-id> <item-id>
  reorder <kind> <order-id> <item-id>...
`

func main() {
	logg := logger.New(logger.Options{ServiceName: "ledgercli"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		fatal(logg, "failed to load config", err)
	}
	logg = logger.New(logger.Options{
		ServiceName: "ledgercli",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
	})

	if len(os.Args) < 4 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	kind, err := enums.ParseLedgerKind(os.Args[2])
	if err != nil {
		fatal(logg, "unknown ledger kind", err)
	}
	orderID, err := strconv.ParseInt(os.Args[3], 10, 64)
	if err != nil || orderID <= 0 {
		fatal(logg, "order id must be a positive integer", err)
	}

	httpStore, err := store.NewHTTPStore(store.TransportContext{
		BaseURL:    cfg.Store.BaseURL,
		Token:      cfg.Store.Token,
		HTTPClient: &http.Client{},
	})
	if err != nil {
		fatal(logg, "failed to build store client", err)
	}

	registry := prometheus.NewRegistry()
	coordinator, err := syncer.NewCoordinator(syncer.Options{
		Store:          httpStore,
		Logger:         logg,
		Metrics:        metrics.NewSyncMetrics(registry),
		Notifier:       syncer.NotifierFunc(printNotification),
		RequestTimeout: cfg.Store.RequestTimeout,
	})
	if err != nil {
		fatal(logg, "failed to build coordinator", err)
	}

	mode, err := enums.ParseTaxMode(env.Get("LEDGERSYNC_TAX_MODE", enums.TaxModeInclusive.String()))
	if err != nil {
		fatal(logg, "unknown tax mode", err)
	}

	led, err := openLedger(logg, httpStore, coordinator, kind, mode, orderID)
	if err != nil {
		fatal(logg, "failed to open ledger", err)
	}

	args := os.Args[4:]
	if err := run(led, command, args); err != nil {
		coordinator.Wait()
		fatal(logg, "command failed", err)
	}
	coordinator.Wait()

	printLedger(led)
}

func run(led *ledger.Ledger, command string, args []string) error {
	switch command {
	case "list":
		return nil

	case "add":
		if len(args) < 1 {
			return fmt.Errorf("add needs a product name")
		}
		id, err := led.AddRow()
		if err != nil {
			return err
		}
		if err := led.SetField(id, enums.ItemFieldProductName, args[0]); err != nil {
			return err
		}
		if len(args) >= 3 {
			if err := led.SetField(id, enums.ItemFieldPrice, args[1]); err != nil {
				return err
			}
			if err := led.SetField(id, enums.ItemFieldQuantity, args[2]); err != nil {
				return err
			}
		}
		if len(args) >= 4 {
			if err := led.SetField(id, enums.ItemFieldTaxRate, args[3]); err != nil {
				return err
			}
		}
		return nil

	case "set":
		if len(args) != 3 {
			return fmt.Errorf("set needs <item-id> <field> <value>")
		}
		localID, err := resolveRow(led, args[0])
		if err != nil {
			return err
		}
		field, err := enums.ParseItemField(args[1])
		if err != nil {
			return err
		}
		return led.SetField(localID, field, args[2])

	case "del":
		if len(args) != 1 {
			return fmt.Errorf("del needs <item-id>")
		}
		localID, err := resolveRow(led, args[0])
		if err != nil {
			return err
		}
		return led.DeleteRow(localID, true)

	case "reorder":
		if len(args) == 0 {
			return fmt.Errorf("reorder needs the full item id sequence")
		}
		order := make([]uuid.UUID, 0, len(args))
		for _, arg := range args {
			localID, err := resolveRow(led, arg)
			if err != nil {
				return err
			}
			order = append(order, localID)
		}
		return led.Reorder(order)
	}

	return fmt.Errorf("unknown command %q", command)
}

func openLedger(logg *logger.Logger, httpStore *store.HTTPStore, coordinator *syncer.Coordinator, kind enums.LedgerKind, mode enums.TaxMode, orderID int64) (*ledger.Ledger, error) {
	snapshots, err := httpStore.ListItems(context.Background(), kind, orderID)
	if err != nil {
		return nil, err
	}

	seeds := make([]ledger.Seed, 0, len(snapshots))
	for _, snap := range snapshots {
		seed := ledger.Seed{
			RemoteID:    snap.ItemID,
			ProductName: snap.ProductName,
			Price:       parseDecimal(snap.Price),
			Quantity:    parseDecimal(snap.Quantity),
			Remarks:     snap.Remarks,
			Unit:        snap.Unit,
		}
		if snap.TaxRate != nil {
			if rate, err := decimal.NewFromString(*snap.TaxRate); err == nil {
				seed.TaxRate = &rate
			}
		}
		seeds = append(seeds, seed)
	}

	return ledger.New(ledger.Config{
		OrderID: orderID,
		Kind:    kind,
		TaxMode: mode,
		Syncer:  coordinator,
		Logger:  logg,
		Items:   seeds,
	})
}

// resolveRow maps a remote item id to the hydrated row's local identity.
func resolveRow(led *ledger.Ledger, arg string) (uuid.UUID, error) {
	remoteID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || remoteID <= 0 {
		return uuid.Nil, fmt.Errorf("item id must be a positive integer, got %q", arg)
	}
	for _, item := range led.Items() {
		if item.RemoteID == remoteID {
			return item.LocalID, nil
		}
	}
	return uuid.Nil, fmt.Errorf("no row with item id %d", remoteID)
}

func parseDecimal(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func printNotification(n syncer.Notification) {
	if n.Code != "" {
		fmt.Fprintf(os.Stderr, "[%s] %s: %s\n", n.Severity, n.Code, n.Message)
		return
	}
	fmt.Fprintf(os.Stderr, "[%s] %s\n", n.Severity, n.Message)
}

func printLedger(led *ledger.Ledger) {
	for _, item := range led.Items() {
		rate := "-"
		if item.TaxRate != nil {
			rate = item.TaxRate.String() + "%"
		}
		fmt.Printf("%3d  %-24s  %10s x %-8s  amount=%-8d tax=%-6s [%s]\n",
			item.RemoteID, item.ProductName, item.Price.String(), item.Quantity.String(),
			item.Amount, rate, item.Lifecycle)
	}

	totals := led.Totals()
	fmt.Printf("\nsubtotal=%d", totals.Subtotal)
	for _, bucket := range totals.Buckets {
		fmt.Printf("  tax@%s=%d", bucket.Rate.String(), bucket.Tax)
	}
	fmt.Printf("  tax_total=%d  total_with_tax=%d\n", totals.TaxTotal, totals.TotalWithTax)
}

func fatal(logg *logger.Logger, msg string, err error) {
	logg.Error(context.Background(), msg, err)
	os.Exit(1)
}
