// Package ingestion loads competitor observations from exported files
// (CSV or JSON Lines) into the snapshot stores.
package ingestion

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"competitor-intel/internal/domain"
	"competitor-intel/internal/idhash"
	"competitor-intel/internal/observability"
	"competitor-intel/internal/storage"
)

// Format identifies a supported input encoding.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

// DefaultBatchSize is the number of rows buffered before a bulk insert.
const DefaultBatchSize = 500

// LoaderOptions configures a Loader. ObservationStore is required; Archive
// is optional write-behind.
type LoaderOptions struct {
	ObservationStore storage.ObservationStore
	PromotionStore   storage.PromotionStore
	Archive          storage.ObservationArchive
	BatchSize        int
	Logger           *log.Logger
}

// Loader parses observation exports and bulk-inserts them.
type Loader struct {
	observations storage.ObservationStore
	promotions   storage.PromotionStore
	archive      storage.ObservationArchive
	batchSize    int
	logger       *log.Logger
	now          func() time.Time
}

// Result summarizes a completed load.
type Result struct {
	RowsRead   int
	Inserted   int
	Duplicates int
	Skipped    int
}

func NewLoader(opts LoaderOptions) *Loader {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Loader{
		observations: opts.ObservationStore,
		promotions:   opts.PromotionStore,
		archive:      opts.Archive,
		batchSize:    batchSize,
		logger:       logger,
		now:          time.Now,
	}
}

// WithClock overrides the time source used for rows without a timestamp.
func (l *Loader) WithClock(clock func() time.Time) *Loader {
	l.now = clock
	return l
}

// observationRow is one input record in either encoding. CSV columns use the
// same names as the JSON keys.
type observationRow struct {
	CompetitorID string  `json:"competitor_id"`
	Name         string  `json:"name"`
	SKU          string  `json:"sku"`
	URL          string  `json:"url"`
	Category     string  `json:"category"`
	Price        float64 `json:"price"`
	Currency     string  `json:"currency"`
	InStock      bool    `json:"in_stock"`
	PromotionRef string  `json:"promotion_ref"`
	ObservedAt   int64   `json:"observed_at"`
}

type promotionRow struct {
	CompetitorID  string  `json:"competitor_id"`
	Title         string  `json:"title"`
	PromotionType string  `json:"promotion_type"`
	DiscountValue float64 `json:"discount_value"`
	DiscountType  string  `json:"discount_type"`
	ObservedAt    int64   `json:"observed_at"`
}

// LoadObservations reads observation rows from r and inserts them in batches.
// Duplicate rows (same product at the same timestamp) are counted and skipped
// by retrying the batch row by row. Rows missing competitor_id or name are
// skipped with a log line.
func (l *Loader) LoadObservations(ctx context.Context, r io.Reader, format Format) (*Result, error) {
	rows, err := l.parseObservations(r, format)
	if err != nil {
		return nil, err
	}

	result := &Result{RowsRead: len(rows)}
	nowMs := l.now().UnixMilli()

	batch := make([]*domain.Observation, 0, l.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		inserted, dups, err := l.insertObservationBatch(ctx, batch)
		if err != nil {
			return err
		}
		result.Inserted += inserted
		result.Duplicates += dups
		batch = batch[:0]
		return nil
	}

	for i, row := range rows {
		if row.CompetitorID == "" || row.Name == "" {
			l.logger.Printf("skipping row %d: missing competitor_id or name", i+1)
			observability.RecordIntakeError("observation", "missing_fields")
			result.Skipped++
			continue
		}
		observedAt := row.ObservedAt
		if observedAt == 0 {
			observedAt = nowMs
		}
		currency := row.Currency
		if currency == "" {
			currency = "USD"
		}
		batch = append(batch, &domain.Observation{
			CompetitorID: row.CompetitorID,
			ProductKey:   idhash.ComputeProductKey(row.CompetitorID, row.Name, row.SKU, row.URL),
			Name:         row.Name,
			SKU:          row.SKU,
			URL:          row.URL,
			Category:     row.Category,
			Price:        row.Price,
			Currency:     currency,
			InStock:      row.InStock,
			PromotionRef: row.PromotionRef,
			ObservedAt:   observedAt,
		})
		if len(batch) >= l.batchSize {
			if err := flush(); err != nil {
				return result, err
			}
		}
	}
	if err := flush(); err != nil {
		return result, err
	}

	observability.RecordObservationsIngested(result.Inserted)
	return result, nil
}

// insertObservationBatch tries the whole batch first, then falls back to
// row-by-row on a duplicate so the rest of the batch still lands.
func (l *Loader) insertObservationBatch(ctx context.Context, batch []*domain.Observation) (inserted, dups int, err error) {
	err = l.observations.InsertBulk(ctx, batch)
	if err == nil {
		l.archiveBatch(ctx, batch)
		return len(batch), 0, nil
	}
	if !errors.Is(err, storage.ErrDuplicateKey) {
		return 0, 0, fmt.Errorf("insert batch: %w", err)
	}

	landed := make([]*domain.Observation, 0, len(batch))
	for _, o := range batch {
		insErr := l.observations.Insert(ctx, o)
		switch {
		case insErr == nil:
			inserted++
			landed = append(landed, o)
		case errors.Is(insErr, storage.ErrDuplicateKey):
			dups++
		default:
			return inserted, dups, fmt.Errorf("insert observation %s: %w", o.ProductKey, insErr)
		}
	}
	l.archiveBatch(ctx, landed)
	return inserted, dups, nil
}

func (l *Loader) archiveBatch(ctx context.Context, batch []*domain.Observation) {
	if l.archive == nil || len(batch) == 0 {
		return
	}
	if err := l.archive.InsertBulk(ctx, batch); err != nil {
		// Archive is write-behind; a failure never blocks intake.
		l.logger.Printf("archive batch: %v", err)
	}
}

// LoadPromotions reads promotion rows from r and inserts them in batches.
func (l *Loader) LoadPromotions(ctx context.Context, r io.Reader, format Format) (*Result, error) {
	rows, err := l.parsePromotions(r, format)
	if err != nil {
		return nil, err
	}

	result := &Result{RowsRead: len(rows)}
	nowMs := l.now().UnixMilli()

	batch := make([]*domain.PromotionObservation, 0, l.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := l.promotions.InsertBulk(ctx, batch)
		if err == nil {
			result.Inserted += len(batch)
			batch = batch[:0]
			return nil
		}
		if !errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("insert promotion batch: %w", err)
		}
		for _, p := range batch {
			insErr := l.promotions.Insert(ctx, p)
			switch {
			case insErr == nil:
				result.Inserted++
			case errors.Is(insErr, storage.ErrDuplicateKey):
				result.Duplicates++
			default:
				return fmt.Errorf("insert promotion %s: %w", p.PromotionKey, insErr)
			}
		}
		batch = batch[:0]
		return nil
	}

	for i, row := range rows {
		if row.CompetitorID == "" || row.Title == "" {
			l.logger.Printf("skipping row %d: missing competitor_id or title", i+1)
			observability.RecordIntakeError("promotion", "missing_fields")
			result.Skipped++
			continue
		}
		promotionType := domain.PromotionType(row.PromotionType)
		if !promotionType.IsValid() {
			promotionType = domain.PromotionOther
		}
		observedAt := row.ObservedAt
		if observedAt == 0 {
			observedAt = nowMs
		}
		batch = append(batch, &domain.PromotionObservation{
			CompetitorID:  row.CompetitorID,
			PromotionKey:  idhash.ComputePromotionKey(row.CompetitorID, row.Title, string(promotionType)),
			Title:         row.Title,
			PromotionType: promotionType,
			DiscountValue: row.DiscountValue,
			DiscountType:  row.DiscountType,
			ObservedAt:    observedAt,
		})
		if len(batch) >= l.batchSize {
			if err := flush(); err != nil {
				return result, err
			}
		}
	}
	if err := flush(); err != nil {
		return result, err
	}

	observability.RecordPromotionsIngested(result.Inserted)
	return result, nil
}

func (l *Loader) parseObservations(r io.Reader, format Format) ([]observationRow, error) {
	switch format {
	case FormatCSV:
		return parseObservationCSV(r)
	case FormatJSONL:
		var rows []observationRow
		if err := parseJSONL(r, func(line []byte) error {
			var row observationRow
			if err := json.Unmarshal(line, &row); err != nil {
				return err
			}
			rows = append(rows, row)
			return nil
		}); err != nil {
			return nil, err
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

func (l *Loader) parsePromotions(r io.Reader, format Format) ([]promotionRow, error) {
	switch format {
	case FormatCSV:
		return parsePromotionCSV(r)
	case FormatJSONL:
		var rows []promotionRow
		if err := parseJSONL(r, func(line []byte) error {
			var row promotionRow
			if err := json.Unmarshal(line, &row); err != nil {
				return err
			}
			rows = append(rows, row)
			return nil
		}); err != nil {
			return nil, err
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

func parseJSONL(r io.Reader, each func(line []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := each([]byte(line)); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	return scanner.Err()
}

// parseObservationCSV reads a headered CSV. Column order is free; unknown
// columns are ignored.
func parseObservationCSV(r io.Reader) ([]observationRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := indexColumns(header)

	var rows []observationRow
	for lineNo := 2; ; lineNo++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		row := observationRow{
			CompetitorID: field(record, col, "competitor_id"),
			Name:         field(record, col, "name"),
			SKU:          field(record, col, "sku"),
			URL:          field(record, col, "url"),
			Category:     field(record, col, "category"),
			Currency:     field(record, col, "currency"),
			PromotionRef: field(record, col, "promotion_ref"),
		}
		if raw := field(record, col, "price"); raw != "" {
			row.Price, err = strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: price: %w", lineNo, err)
			}
		}
		if raw := field(record, col, "in_stock"); raw != "" {
			row.InStock, err = strconv.ParseBool(raw)
			if err != nil {
				return nil, fmt.Errorf("line %d: in_stock: %w", lineNo, err)
			}
		}
		if raw := field(record, col, "observed_at"); raw != "" {
			row.ObservedAt, err = parseTimestamp(raw)
			if err != nil {
				return nil, fmt.Errorf("line %d: observed_at: %w", lineNo, err)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parsePromotionCSV(r io.Reader) ([]promotionRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := indexColumns(header)

	var rows []promotionRow
	for lineNo := 2; ; lineNo++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		row := promotionRow{
			CompetitorID:  field(record, col, "competitor_id"),
			Title:         field(record, col, "title"),
			PromotionType: field(record, col, "promotion_type"),
			DiscountType:  field(record, col, "discount_type"),
		}
		if raw := field(record, col, "discount_value"); raw != "" {
			row.DiscountValue, err = strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: discount_value: %w", lineNo, err)
			}
		}
		if raw := field(record, col, "observed_at"); raw != "" {
			row.ObservedAt, err = parseTimestamp(raw)
			if err != nil {
				return nil, fmt.Errorf("line %d: observed_at: %w", lineNo, err)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func indexColumns(header []string) map[string]int {
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return col
}

func field(record []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// parseTimestamp accepts unix milliseconds or RFC3339.
func parseTimestamp(raw string) (int64, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return ms, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}
