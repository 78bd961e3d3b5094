// Package main provides the unified intelligence server:
// - Intake: JSON endpoints receiving scraped observations
// - Analysis: trends, comparison, strategy, changes, recommendations
// - Feed: WebSocket broadcast of change events from the periodic scan
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"competitor-intel/internal/change"
	"competitor-intel/internal/compare"
	"competitor-intel/internal/domain"
	"competitor-intel/internal/feed"
	"competitor-intel/internal/observability"
	"competitor-intel/internal/recommend"
	"competitor-intel/internal/reporting"
	"competitor-intel/internal/storage"
	chstore "competitor-intel/internal/storage/clickhouse"
	"competitor-intel/internal/storage/memory"
	"competitor-intel/internal/storage/migrations"
	pgstore "competitor-intel/internal/storage/postgres"
	"competitor-intel/internal/strategy"
	"competitor-intel/internal/trend"
)

// Server holds all components of the intelligence service.
type Server struct {
	observations storage.ObservationStore
	promotions   storage.PromotionStore
	competitors  storage.CompetitorStore
	archive      storage.ObservationArchive // nil without ClickHouse

	trends     *trend.Classifier
	comparator *compare.Comparator
	strategies *strategy.Detector
	changes    *change.Detector
	engine     *recommend.Engine
	generator  *reporting.Generator
	hub        *feed.Hub

	scanInterval      time.Duration
	changeWindowHours int
	minChangePercent  float64

	logger *log.Logger
}

func main() {
	loadEnvFile()

	listenAddr := flag.String("listen-addr", ":8080", "API HTTP address")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional archive)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	scanInterval := flag.Duration("scan-interval", 15*time.Minute, "Periodic change scan interval")
	changeWindow := flag.Int("change-window-hours", change.DefaultWindowHours, "Change detection window in hours")
	minChange := flag.Float64("min-change-percent", change.DefaultConfig().MinChangePercent, "Minimum price change percent to report")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (or pass --use-memory)")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s, cleanup, err := newServer(ctx, *postgresDSN, *clickhouseDSN, *useMemory, logger)
	if err != nil {
		logger.Fatalf("setup: %v", err)
	}
	defer cleanup()

	s.scanInterval = *scanInterval
	s.changeWindowHours = *changeWindow
	s.minChangePercent = *minChange

	go s.hub.Run(ctx)
	go s.runChangeScan(ctx)
	go serveMetrics(ctx, *metricsAddr, logger)

	logger.Printf("listening on %s", *listenAddr)
	if err := s.serveAPI(ctx, *listenAddr); err != nil {
		logger.Fatalf("serve: %v", err)
	}
}

// newServer wires stores and analysis components.
func newServer(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool, logger *log.Logger) (*Server, func(), error) {
	s := &Server{
		hub:    feed.NewHub(),
		logger: logger,
	}
	cleanup := func() {}

	if useMemory {
		logger.Println("using in-memory storage")
		s.observations = memory.NewObservationStore()
		s.promotions = memory.NewPromotionStore()
		s.competitors = memory.NewCompetitorStore()
	} else {
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		s.observations = pgstore.NewObservationStore(pool)
		s.promotions = pgstore.NewPromotionStore(pool)
		s.competitors = pgstore.NewCompetitorStore(pool)
		cleanup = pool.Close
	}

	if clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		s.archive = chstore.NewObservationArchive(conn)
		pgCleanup := cleanup
		cleanup = func() {
			conn.Close()
			pgCleanup()
		}
	}

	matcher := compare.NormalizedNameMatcher{}
	s.trends = trend.NewClassifier(s.observations)
	s.comparator = compare.NewComparator(s.observations, matcher)
	s.strategies = strategy.NewDetector(s.observations, s.promotions, matcher)
	s.changes = change.NewDetector(s.observations, s.promotions, s.competitors)
	s.engine = recommend.NewEngine(s.trends, s.comparator, s.strategies, s.changes, recommend.DefaultConfig())
	s.generator = reporting.NewGenerator(s.competitors, s.trends, s.comparator, s.strategies, s.changes, s.engine, reporting.DefaultConfig())

	return s, cleanup, nil
}

// serveAPI blocks until ctx is canceled or the listener fails.
func (s *Server) serveAPI(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func serveMetrics(ctx context.Context, addr string, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Printf("metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Printf("metrics server: %v", err)
	}
}

// runChangeScan periodically diffs every enabled competitor and publishes
// fresh events to the feed.
func (s *Server) runChangeScan(ctx context.Context) {
	ticker := time.NewTicker(s.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scanOnce(ctx)
		}
	}
}

func (s *Server) scanOnce(ctx context.Context) {
	start := time.Now()
	cfg := change.Config{
		MinChangePercent:      s.minChangePercent,
		DiscontinuedAfterDays: change.DefaultConfig().DiscontinuedAfterDays,
	}

	summary, err := s.changes.GetChangesSummary(ctx, "", s.changeWindowHours, cfg)
	if err != nil {
		s.logger.Printf("change scan: %v", err)
		observability.RecordAnalysis("change_scan", "error", time.Since(start).Seconds())
		return
	}

	now := time.Now().UnixMilli()
	for _, row := range summary.Competitors {
		if row.DataError != "" {
			s.logger.Printf("change scan: %s degraded: %s", row.CompetitorID, row.DataError)
			continue
		}
		s.publishChanges(row.CompetitorID, &row.Changes, now)
	}

	observability.RecordAnalysis("change_scan", "ok", time.Since(start).Seconds())
	observability.DefaultMetrics.LastSuccessfulScan.Set(float64(now) / 1000)
}

// publishChanges fans one competitor's fresh events out to the feed and
// records per-kind counters.
func (s *Server) publishChanges(competitorID string, set *domain.ChangeSet, now int64) {
	for _, np := range set.NewProducts {
		s.hub.Publish(feed.Event{Kind: feed.KindNewProduct, CompetitorID: competitorID, Payload: np, EmittedAt: now})
	}
	for _, np := range set.NewPromotions {
		s.hub.Publish(feed.Event{Kind: feed.KindNewPromotion, CompetitorID: competitorID, Payload: np, EmittedAt: now})
	}
	for _, pc := range set.PriceIncreases {
		s.hub.Publish(feed.Event{Kind: feed.KindPriceIncrease, CompetitorID: competitorID, Payload: pc, EmittedAt: now})
	}
	for _, pc := range set.PriceDecreases {
		s.hub.Publish(feed.Event{Kind: feed.KindPriceDecrease, CompetitorID: competitorID, Payload: pc, EmittedAt: now})
	}
	for _, sc := range set.BackInStock {
		s.hub.Publish(feed.Event{Kind: feed.KindBackInStock, CompetitorID: competitorID, Payload: sc, EmittedAt: now})
	}
	for _, sc := range set.OutOfStock {
		s.hub.Publish(feed.Event{Kind: feed.KindOutOfStock, CompetitorID: competitorID, Payload: sc, EmittedAt: now})
	}

	counts := set.Counts()
	observability.RecordChangeEvents("new_product", counts.TotalNewProducts)
	observability.RecordChangeEvents("new_promotion", counts.TotalNewPromotions)
	observability.RecordChangeEvents("price_increase", counts.TotalPriceIncreases)
	observability.RecordChangeEvents("price_decrease", counts.TotalPriceDecreases)
	observability.RecordChangeEvents("back_in_stock", counts.TotalBackInStock)
	observability.RecordChangeEvents("out_of_stock", counts.TotalOutOfStock)
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
