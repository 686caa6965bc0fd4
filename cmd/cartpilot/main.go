package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"cartpilot/internal"
	"cartpilot/internal/catalog"
	"cartpilot/internal/config"
	"cartpilot/internal/connectors"
	"cartpilot/internal/events"
	"cartpilot/internal/httpapi"
	"cartpilot/internal/listener"
	"cartpilot/internal/observability"
	"cartpilot/internal/pipeline"
	"cartpilot/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	must(err)
	defer func() { _ = logger.Sync() }()

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "run":
		runGoal(ctx, cfg, db, logger, args)
	case "reoptimize":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		runID := fs.Int("run", 0, "saved run id")
		mode := fs.String("mode", "", "balanced|cheapest|fastest|highest-quality")
		_ = fs.Parse(args)
		if *runID == 0 || *mode == "" {
			must(errors.New("--run and --mode are required"))
		}
		svc, _ := buildPipeline(ctx, cfg, db, logger)
		pc, err := pipeline.LoadRun(ctx, db, *runID)
		must(err)
		must(svc.Reoptimize(ctx, pc, internal.OptimizationMode(*mode), printSink{}))
		cartJSON, err := json.Marshal(pc.Cart)
		must(err)
		savingsJSON, err := json.Marshal(pc.Savings)
		must(err)
		must(db.UpdateRunCart(ctx, *runID, pc.Mode, string(cartJSON), string(savingsJSON)))
		printSummary(*runID, pc.Result())
	case "checkout":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		runID := fs.Int("run", 0, "saved run id")
		_ = fs.Parse(args)
		if *runID == 0 {
			must(errors.New("--run is required"))
		}
		svc, _ := buildPipeline(ctx, cfg, db, logger)
		pc, err := pipeline.CheckoutSavedRun(ctx, db, svc, *runID, printSink{}, func(p internal.CheckoutProgress) {
			fmt.Printf("  [%5.1f%%] %s\n", p.ProgressPct, p.Message)
		})
		must(err)
		for _, c := range pc.Confirmations {
			fmt.Printf("order %s: %s\n", c.SourceID, c.OrderNumber)
		}
	case "runs:list":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		limit := fs.Int("limit", 20, "max runs")
		_ = fs.Parse(args)
		runs, err := db.ListRuns(ctx, *limit)
		must(err)
		for _, r := range runs {
			fmt.Printf("%d\t%s\t%s\t%s\t%s\n", r.ID, r.CreatedAt, r.Status, r.Mode, r.Goal)
		}
	case "runs:show":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		runID := fs.Int("run", 0, "saved run id")
		_ = fs.Parse(args)
		if *runID == 0 {
			must(errors.New("--run is required"))
		}
		report, err := pipeline.LoadRunReport(ctx, db, *runID)
		must(err)
		r := report.Run
		fmt.Printf("run %d trace=%s status=%s mode=%s created=%s\n", r.ID, r.TraceID, r.Status, r.Mode, r.CreatedAt)
		fmt.Printf("goal: %s\n", r.Goal)
		if report.Request != nil {
			fmt.Printf("request %d: %s from %s (%s, %s)\n", report.Request.ID, report.Request.Subject, report.Request.Sender, report.Request.Provider, report.Request.Status)
		}
		for _, p := range report.Progress {
			fmt.Printf("  [%5.1f%%] %s\n", p.ProgressPct, p.Message)
		}
		for _, o := range report.Orders {
			fmt.Printf("order %s: %s\n", o.SourceID, o.OrderNumber)
		}
	case "requests:show":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.Int("id", 0, "goal request id")
		_ = fs.Parse(args)
		if *id == 0 {
			must(errors.New("--id is required"))
		}
		report, err := pipeline.LoadRequestReport(ctx, db, *id)
		must(err)
		req := report.Request
		fmt.Printf("request %d %s/%s status=%s received=%s\n", req.ID, req.Provider, req.MessageID, req.Status, req.ReceivedAt)
		fmt.Printf("from %s: %s\n", req.Sender, req.Subject)
		if report.LatestRun == nil {
			fmt.Println("no runs yet")
			return
		}
		fmt.Printf("latest run %d status=%s mode=%s created=%s\n", report.LatestRun.ID, report.LatestRun.Status, report.LatestRun.Mode, report.LatestRun.CreatedAt)
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		runID := fs.Int("run", 0, "saved run id")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(args)
		if *runID == 0 || strings.TrimSpace(*out) == "" {
			must(errors.New("--run and --out are required"))
		}
		pc, err := pipeline.LoadRun(ctx, db, *runID)
		must(err)
		must(pipeline.ExportCartToXLSX(pc.Result(), *out))
		fmt.Printf("exported run %d (%d lines) to %s\n", *runID, len(pc.Cart.Lines), *out)
	case "scenarios":
		for _, s := range pipeline.Scenarios() {
			fmt.Printf("%-10s %s: %s\n", s.ID, s.Title, s.Goal)
		}
	case "prefs:show":
		prefs, err := db.LoadPreferences(ctx)
		must(err)
		printJSON(prefs)
	case "prefs:set":
		setPreferences(ctx, db, args)
	case "catalog:sync":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		full := fs.Bool("full", false, "ignore the last sync time")
		_ = fs.Parse(args)
		count, err := catalog.NewSyncService(db, cfg, logger).Sync(ctx, *full)
		must(err)
		fmt.Printf("catalog sync complete: %d products\n", count)
	case "catalog:show":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		category := fs.String("category", "", "comma-separated categories (default all)")
		_ = fs.Parse(args)
		var categories []string
		for _, c := range strings.Split(*category, ",") {
			if c = strings.TrimSpace(c); c != "" {
				categories = append(categories, c)
			}
		}
		products, err := catalog.NewSyncService(db, cfg, logger).Cached(ctx, categories)
		must(err)
		for _, p := range products {
			fmt.Printf("%s\t%s\t%s\t%.2f\t%s\n", p.SourceID, p.Category, p.ID, p.Price, p.Name)
		}
		fmt.Printf("%d cached products\n", len(products))
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		label := fs.String("label", cfg.MailListenerLabel, "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(args)
		fetch := newFetchService(ctx, cfg, db, logger, *provider)
		result, err := fetch.FetchAndStore(ctx, *label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d\n", *provider, result.Fetched, result.Stored)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "", "only process requests from gmail|imap")
		messageID := fs.String("messageId", "", "specific message-id")
		batch := fs.Int("batch", 20, "batch size")
		_ = fs.Parse(args)
		svc, _ := buildPipeline(ctx, cfg, db, logger)
		processor := pipeline.NewProcessingService(db, cfg, svc, logger)
		if strings.TrimSpace(*messageID) != "" {
			res, err := processor.ProcessByProviderMessageID(ctx, *provider, *messageID)
			must(err)
			fmt.Printf("processed request id=%d run=%d skipped=%t export=%s\n", res.RequestID, res.RunID, res.Skipped, res.ExportPath)
			return
		}
		processed, skipped, err := processor.ProcessPending(ctx, *batch, *provider)
		must(err)
		fmt.Printf("processed pending requests=%d skipped=%d\n", processed, skipped)
	case "mail:listen":
		must(runListener(ctx, cfg, db, logger))
	case "serve":
		svc, unified := buildPipeline(ctx, cfg, db, logger)
		srv := httpapi.New(httpapi.Config{
			Address:  cfg.HTTPAddr,
			Pipeline: svc,
			Catalog:  unified,
			Prefs:    db,
			DB:       db,
			Logger:   logger,
		})
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			must(err)
		}
	default:
		usage()
		os.Exit(1)
	}
}

func runGoal(ctx context.Context, cfg config.Config, db *storage.DB, logger *zap.Logger, args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	scenario := fs.String("scenario", "", "hackathon|skiing|party")
	input := fs.String("input", "", "goal text, or a file path for xlsx/pdf")
	inType := fs.String("type", "text", "text|email_text|email_html|xlsx|pdf")
	mode := fs.String("mode", cfg.DefaultMode, "balanced|cheapest|fastest|highest-quality")
	output := fs.String("output", "", "optional xlsx export path")
	checkoutNow := fs.Bool("checkout", false, "check out right after planning")
	_ = fs.Parse(args)

	var goal string
	switch {
	case *scenario != "":
		sc, ok := pipeline.ScenarioByID(*scenario)
		if !ok {
			must(fmt.Errorf("unknown scenario %q", *scenario))
		}
		goal = sc.Goal
	case *input != "":
		g, err := pipeline.GoalFromInput(internal.GoalSource(*inType), *input)
		must(err)
		goal = g.Text
	default:
		goal = strings.Join(fs.Args(), " ")
	}
	if strings.TrimSpace(goal) == "" {
		must(errors.New("a goal, --input or --scenario is required"))
	}
	parsed, ok := internal.ParseMode(*mode)
	if !ok {
		must(fmt.Errorf("unknown mode %q", *mode))
	}

	svc, _ := buildPipeline(ctx, cfg, db, logger)
	res, err := svc.Run(ctx, goal, parsed, printSink{})
	must(err)
	runID, err := pipeline.SaveRun(ctx, db, res, nil, pipeline.RunStatusPlanned)
	must(err)
	printSummary(runID, res)

	if *output != "" {
		must(pipeline.ExportCartToXLSX(res, *output))
		fmt.Printf("exported to %s\n", *output)
	}
	if *checkoutNow {
		_, err := pipeline.CheckoutSavedRun(ctx, db, svc, runID, printSink{}, nil)
		must(err)
	}
}

func buildPipeline(ctx context.Context, cfg config.Config, db *storage.DB, logger *zap.Logger) (*pipeline.Service, *catalog.Unified) {
	svc, unified, err := pipeline.FromConfig(ctx, cfg, db, logger)
	must(err)
	return svc, unified
}

func newFetchService(ctx context.Context, cfg config.Config, db *storage.DB, logger *zap.Logger, provider string) *connectors.FetchService {
	cfg.MailListenerProvider = provider
	conn, err := listener.NewConnector(ctx, cfg)
	must(err)
	return connectors.NewFetchService(db, cfg.RawMailDir, conn, logger)
}

func runListener(ctx context.Context, cfg config.Config, db *storage.DB, logger *zap.Logger) error {
	svc, _ := buildPipeline(ctx, cfg, db, logger)
	fetch := newFetchService(ctx, cfg, db, logger, cfg.MailListenerProvider)
	processor := pipeline.NewProcessingService(db, cfg, svc, logger)
	return listener.NewService(cfg, fetch, processor, logger).Run(ctx)
}

func setPreferences(ctx context.Context, db *storage.DB, args []string) {
	prefs, err := db.LoadPreferences(ctx)
	must(err)

	fs := flag.NewFlagSet("prefs:set", flag.ExitOnError)
	fs.StringVar(&prefs.PreferredSource, "preferred-source", prefs.PreferredSource, "source id or any")
	fs.BoolVar(&prefs.PrioritizeFastShipping, "fast-shipping", prefs.PrioritizeFastShipping, "prioritize fast shipping")
	fs.IntVar(&prefs.MaxDeliveryDays, "max-delivery-days", prefs.MaxDeliveryDays, "max delivery days")
	fs.Float64Var(&prefs.MinRating, "min-rating", prefs.MinRating, "minimum rating")
	fs.BoolVar(&prefs.EcoFriendly, "eco", prefs.EcoFriendly, "prefer eco-friendly items")
	fs.BoolVar(&prefs.BundleOrders, "bundle", prefs.BundleOrders, "bundle orders per source")
	_ = fs.Parse(args)

	must(db.SavePreferences(ctx, prefs))
	saved, err := db.LoadPreferences(ctx)
	must(err)
	printJSON(saved)
}

type printSink struct{}

func (printSink) Emit(ev internal.Event) {
	fmt.Printf("%s %-18s %s\n", ev.Icon, ev.StageName, ev.Message)
}

var _ events.Sink = printSink{}

func printSummary(runID int, res pipeline.Result) {
	fmt.Printf("\nrun %d (%s, %s mode)\n", runID, res.TraceID, res.Mode)
	for i, line := range res.Cart.Lines {
		fmt.Printf("  %d. %-40s x%-3d %-8s $%.2f\n", i, line.Item.Name, line.Quantity, line.Item.SourceID, line.Cost())
	}
	fmt.Printf("total $%.2f of $%.2f (%.1f%%), saved $%.2f vs random shopping\n",
		res.Cart.TotalCost, res.Cart.MaxBudget, res.Cart.BudgetUtilizationPct, res.Savings.MoneySaved)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	must(enc.Encode(v))
}

func usage() {
	fmt.Println("usage: cartpilot <command>")
	fmt.Println("commands:")
	fmt.Println("  run [--scenario=party | --input=... --type=text|email_text|email_html|xlsx|pdf | <goal>] [--mode=balanced] [--output=cart.xlsx] [--checkout]")
	fmt.Println("  reoptimize --run=1 --mode=cheapest")
	fmt.Println("  checkout --run=1")
	fmt.Println("  runs:list [--limit=20]")
	fmt.Println("  runs:show --run=1")
	fmt.Println("  requests:show --id=1")
	fmt.Println("  export:xlsx --run=1 --out=./out/cart.xlsx")
	fmt.Println("  scenarios")
	fmt.Println("  prefs:show")
	fmt.Println("  prefs:set [--preferred-source=amazon] [--max-delivery-days=3] [--min-rating=4.5] ...")
	fmt.Println("  catalog:sync [--full]")
	fmt.Println("  catalog:show [--category=snacks,badges]")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=50")
	fmt.Println("  mail:process [--provider=gmail|imap] [--messageId=...] [--batch=20]")
	fmt.Println("  mail:listen")
	fmt.Println("  serve")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
