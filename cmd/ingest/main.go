package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"competitor-intel/internal/ingestion"
	"competitor-intel/internal/observability"
	"competitor-intel/internal/storage"
	chstore "competitor-intel/internal/storage/clickhouse"
	"competitor-intel/internal/storage/memory"
	"competitor-intel/internal/storage/migrations"
	pgstore "competitor-intel/internal/storage/postgres"
)

func main() {
	kind := flag.String("kind", "observations", "Record kind: observations or promotions")
	file := flag.String("file", "", "Input file path (- for stdin)")
	format := flag.String("format", "csv", "Input format: csv or jsonl")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string for the observation archive (optional)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL (dry runs)")
	batchSize := flag.Int("batch-size", ingestion.DefaultBatchSize, "Rows per bulk insert")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (empty to disable)")
	flag.Parse()

	logger := log.New(os.Stdout, "[ingest] ", log.LstdFlags|log.Lshortfile)

	if *file == "" {
		logger.Fatal("--file is required")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for a dry run)")
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *kind, *file, ingestion.Format(*format), *postgresDSN, *clickhouseDSN, *useMemory, *batchSize); err != nil {
		logger.Fatalf("Error: %v", err)
	}
}

func run(ctx context.Context, logger *log.Logger, kind, file string, format ingestion.Format, postgresDSN, clickhouseDSN string, useMemory bool, batchSize int) error {
	var (
		observations storage.ObservationStore = memory.NewObservationStore()
		promotions   storage.PromotionStore   = memory.NewPromotionStore()
		archive      storage.ObservationArchive
	)

	if !useMemory {
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		observations = pgstore.NewObservationStore(pool)
		promotions = pgstore.NewPromotionStore(pool)

		if clickhouseDSN != "" {
			conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
			if err != nil {
				return fmt.Errorf("run clickhouse migrations: %w", err)
			}
			defer conn.Close()
			archive = chstore.NewObservationArchive(conn)
		}
	}

	var in *os.File
	if file == "-" {
		in = os.Stdin
	} else {
		f, err := os.Open(file)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	loader := ingestion.NewLoader(ingestion.LoaderOptions{
		ObservationStore: observations,
		PromotionStore:   promotions,
		Archive:          archive,
		BatchSize:        batchSize,
		Logger:           logger,
	})

	start := time.Now()
	var (
		result *ingestion.Result
		err    error
	)
	switch kind {
	case "observations":
		result, err = loader.LoadObservations(ctx, in, format)
	case "promotions":
		result, err = loader.LoadPromotions(ctx, in, format)
	default:
		return fmt.Errorf("unknown kind %q", kind)
	}
	if err != nil {
		return err
	}

	logger.Printf("Load complete: %d read, %d inserted, %d duplicates, %d skipped in %v",
		result.RowsRead, result.Inserted, result.Duplicates, result.Skipped, time.Since(start))
	return nil
}
