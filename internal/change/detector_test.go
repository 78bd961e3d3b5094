package change

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"competitor-intel/internal/analysis"
	"competitor-intel/internal/domain"
	"competitor-intel/internal/idhash"
	"competitor-intel/internal/storage/memory"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

const hourMs = int64(time.Hour / time.Millisecond)

type fixture struct {
	observations *memory.ObservationStore
	promotions   *memory.PromotionStore
	competitors  *memory.CompetitorStore
	detector     *Detector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		observations: memory.NewObservationStore(),
		promotions:   memory.NewPromotionStore(),
		competitors:  memory.NewCompetitorStore(),
	}
	f.detector = NewDetector(f.observations, f.promotions, f.competitors).
		WithClock(func() time.Time { return testNow })
	return f
}

func (f *fixture) addCompetitor(t *testing.T, id, name string) {
	t.Helper()
	err := f.competitors.Insert(context.Background(), &domain.Competitor{
		CompetitorID: id,
		Name:         name,
		Enabled:      true,
		CreatedAt:    testNow.UnixMilli() - 90*24*hourMs,
	})
	if err != nil {
		t.Fatalf("insert competitor: %v", err)
	}
}

// addObservation records one observation hoursAgo hours before testNow.
func (f *fixture) addObservation(t *testing.T, competitorID, name string, price float64, inStock bool, hoursAgo int) string {
	t.Helper()
	key := idhash.ComputeProductKey(competitorID, name, "", "")
	err := f.observations.Insert(context.Background(), &domain.Observation{
		CompetitorID: competitorID,
		ProductKey:   key,
		Name:         name,
		Category:     "widgets",
		Price:        price,
		Currency:     "USD",
		InStock:      inStock,
		ObservedAt:   testNow.UnixMilli() - int64(hoursAgo)*hourMs,
	})
	if err != nil {
		t.Fatalf("insert observation: %v", err)
	}
	return key
}

func (f *fixture) addPromotion(t *testing.T, competitorID, title string, hoursAgo int) string {
	t.Helper()
	key := idhash.ComputePromotionKey(competitorID, title, string(domain.PromotionPercentage))
	err := f.promotions.Insert(context.Background(), &domain.PromotionObservation{
		CompetitorID:  competitorID,
		PromotionKey:  key,
		Title:         title,
		PromotionType: domain.PromotionPercentage,
		DiscountValue: 20,
		ObservedAt:    testNow.UnixMilli() - int64(hoursAgo)*hourMs,
	})
	if err != nil {
		t.Fatalf("insert promotion: %v", err)
	}
	return key
}

func TestDetectNewProducts(t *testing.T) {
	f := newFixture(t)

	// Established product: seen before and inside the window.
	f.addObservation(t, "c1", "Old Widget", 10, true, 48)
	f.addObservation(t, "c1", "Old Widget", 10, true, 2)
	// New product: first seen inside the window.
	newKey := f.addObservation(t, "c1", "Fresh Widget", 15, true, 3)
	// Re-observed inside the window; must still appear once.
	f.addObservation(t, "c1", "Fresh Widget", 15, true, 1)

	got, err := f.detector.DetectNewProducts(context.Background(), "c1", 24)
	if err != nil {
		t.Fatalf("DetectNewProducts: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 new product, got %d", len(got))
	}
	if got[0].ProductKey != newKey {
		t.Errorf("product key = %q, want %q", got[0].ProductKey, newKey)
	}
	if got[0].FirstSeenAt != testNow.UnixMilli()-3*hourMs {
		t.Errorf("FirstSeenAt = %d, want first in-window observation", got[0].FirstSeenAt)
	}
}

func TestDetectNewProducts_BaselineProductNotNew(t *testing.T) {
	f := newFixture(t)

	// Seen only before the window: silent now, but not new.
	f.addObservation(t, "c1", "Dormant Widget", 10, true, 72)

	got, err := f.detector.DetectNewProducts(context.Background(), "c1", 24)
	if err != nil {
		t.Fatalf("DetectNewProducts: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no new products, got %d", len(got))
	}
}

func TestDetectNewPromotions(t *testing.T) {
	f := newFixture(t)

	f.addPromotion(t, "c1", "Spring Sale", 48)
	f.addPromotion(t, "c1", "Spring Sale", 2)
	newKey := f.addPromotion(t, "c1", "Flash Deal", 3)

	got, err := f.detector.DetectNewPromotions(context.Background(), "c1", 24)
	if err != nil {
		t.Fatalf("DetectNewPromotions: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 new promotion, got %d", len(got))
	}
	if got[0].PromotionKey != newKey {
		t.Errorf("promotion key = %q, want %q", got[0].PromotionKey, newKey)
	}
}

func TestDetectPriceChanges_RoundTrip(t *testing.T) {
	f := newFixture(t)

	f.addObservation(t, "c1", "Widget", 100, true, 48)
	f.addObservation(t, "c1", "Widget", 106, true, 2)

	increases, decreases, err := f.detector.DetectPriceChanges(context.Background(), "c1", 24, 5.0)
	if err != nil {
		t.Fatalf("DetectPriceChanges: %v", err)
	}
	if len(decreases) != 0 {
		t.Fatalf("expected no decreases, got %d", len(decreases))
	}
	if len(increases) != 1 {
		t.Fatalf("expected 1 increase, got %d", len(increases))
	}
	pc := increases[0]
	if pc.OldPrice != 100 || pc.NewPrice != 106 {
		t.Errorf("prices = %v -> %v, want 100 -> 106", pc.OldPrice, pc.NewPrice)
	}
	if pc.ChangePercent != 6.0 {
		t.Errorf("ChangePercent = %v, want exactly 6.0", pc.ChangePercent)
	}
	if pc.ChangeAbsolute != 6.0 {
		t.Errorf("ChangeAbsolute = %v, want 6.0", pc.ChangeAbsolute)
	}
}

func TestDetectPriceChanges_ThresholdIsStrict(t *testing.T) {
	f := newFixture(t)

	f.addObservation(t, "c1", "Barely", 100, true, 48)
	f.addObservation(t, "c1", "Barely", 104.9, true, 2) // 4.9%
	f.addObservation(t, "c1", "Exactly", 100, true, 48)
	f.addObservation(t, "c1", "Exactly", 105, true, 2) // 5.0%
	f.addObservation(t, "c1", "Dropper", 100, true, 48)
	f.addObservation(t, "c1", "Dropper", 88, true, 2) // -12%

	increases, decreases, err := f.detector.DetectPriceChanges(context.Background(), "c1", 24, 5.0)
	if err != nil {
		t.Fatalf("DetectPriceChanges: %v", err)
	}
	for _, pc := range append(append([]domain.PriceChange{}, increases...), decreases...) {
		if math.Abs(pc.ChangePercent) < 5.0 {
			t.Errorf("event %q below threshold: %v", pc.Name, pc.ChangePercent)
		}
	}
	if len(increases) != 1 || increases[0].Name != "Exactly" {
		t.Errorf("increases = %+v, want only the exact-threshold product", increases)
	}
	if len(decreases) != 1 || decreases[0].Name != "Dropper" {
		t.Errorf("decreases = %+v, want only the 12%% drop", decreases)
	}
}

func TestDetectPriceChanges_NewProductExcluded(t *testing.T) {
	f := newFixture(t)

	// No baseline: cannot have changed.
	f.addObservation(t, "c1", "Newcomer", 50, true, 2)

	increases, decreases, err := f.detector.DetectPriceChanges(context.Background(), "c1", 24, 5.0)
	if err != nil {
		t.Fatalf("DetectPriceChanges: %v", err)
	}
	if len(increases)+len(decreases) != 0 {
		t.Fatalf("expected no events for a product without baseline")
	}
}

func TestDetectPriceChanges_ZeroBaselineSkipped(t *testing.T) {
	f := newFixture(t)

	f.addObservation(t, "c1", "Freebie", 0, true, 48)
	f.addObservation(t, "c1", "Freebie", 20, true, 2)

	increases, decreases, err := f.detector.DetectPriceChanges(context.Background(), "c1", 24, 5.0)
	if err != nil {
		t.Fatalf("DetectPriceChanges: %v", err)
	}
	if len(increases)+len(decreases) != 0 {
		t.Fatalf("zero baseline must be skipped, got %d events", len(increases)+len(decreases))
	}
}

func TestDetectPriceChanges_SortedByMagnitude(t *testing.T) {
	f := newFixture(t)

	f.addObservation(t, "c1", "Small", 100, true, 48)
	f.addObservation(t, "c1", "Small", 107, true, 2)
	f.addObservation(t, "c1", "Big", 100, true, 48)
	f.addObservation(t, "c1", "Big", 130, true, 2)

	increases, _, err := f.detector.DetectPriceChanges(context.Background(), "c1", 24, 5.0)
	if err != nil {
		t.Fatalf("DetectPriceChanges: %v", err)
	}
	if len(increases) != 2 {
		t.Fatalf("expected 2 increases, got %d", len(increases))
	}
	if increases[0].Name != "Big" || increases[1].Name != "Small" {
		t.Errorf("order = [%s, %s], want largest magnitude first", increases[0].Name, increases[1].Name)
	}
}

func TestDetectStockChanges(t *testing.T) {
	f := newFixture(t)

	f.addObservation(t, "c1", "Restocked", 10, false, 48)
	f.addObservation(t, "c1", "Restocked", 10, true, 2)
	f.addObservation(t, "c1", "Sold Out", 20, true, 48)
	f.addObservation(t, "c1", "Sold Out", 20, false, 2)
	f.addObservation(t, "c1", "Steady", 30, true, 48)
	f.addObservation(t, "c1", "Steady", 30, true, 2)

	backInStock, outOfStock, err := f.detector.DetectStockChanges(context.Background(), "c1", 24)
	if err != nil {
		t.Fatalf("DetectStockChanges: %v", err)
	}
	if len(backInStock) != 1 || backInStock[0].Name != "Restocked" {
		t.Errorf("backInStock = %+v, want only Restocked", backInStock)
	}
	if !backInStock[0].InStock {
		t.Error("back-in-stock event must carry InStock=true")
	}
	if len(outOfStock) != 1 || outOfStock[0].Name != "Sold Out" {
		t.Errorf("outOfStock = %+v, want only Sold Out", outOfStock)
	}
	if outOfStock[0].InStock {
		t.Error("out-of-stock event must carry InStock=false")
	}
}

func TestDetectStockChanges_LastWrittenWinsOnTies(t *testing.T) {
	f := newFixture(t)

	// Two in-window rows at the same timestamp: the later insert wins.
	f.addObservation(t, "c1", "Flapper", 10, true, 48)
	f.addObservation(t, "c1", "Flapper", 10, true, 2)
	f.addObservation(t, "c1", "Flapper", 10, false, 2)

	backInStock, outOfStock, err := f.detector.DetectStockChanges(context.Background(), "c1", 24)
	if err != nil {
		t.Fatalf("DetectStockChanges: %v", err)
	}
	if len(backInStock) != 0 {
		t.Errorf("expected no back-in-stock events, got %d", len(backInStock))
	}
	if len(outOfStock) != 1 {
		t.Errorf("expected 1 out-of-stock event, got %d", len(outOfStock))
	}
}

func TestDetectDiscontinued(t *testing.T) {
	f := newFixture(t)

	staleKey := f.addObservation(t, "c1", "Forgotten", 10, true, 10*24)
	f.addObservation(t, "c1", "Current", 20, true, 2)

	got, err := f.detector.DetectDiscontinued(context.Background(), "c1", 7)
	if err != nil {
		t.Fatalf("DetectDiscontinued: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 discontinued product, got %d", len(got))
	}
	if got[0].ProductKey != staleKey {
		t.Errorf("product key = %q, want %q", got[0].ProductKey, staleKey)
	}
	if got[0].DaysInactive != 10 {
		t.Errorf("DaysInactive = %d, want 10", got[0].DaysInactive)
	}
}

func TestDetector_InvalidArguments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.detector.DetectNewProducts(ctx, "", 24); !errors.Is(err, analysis.ErrInvalidArgument) {
		t.Errorf("empty competitor: err = %v, want ErrInvalidArgument", err)
	}
	if _, err := f.detector.DetectNewProducts(ctx, "c1", 0); !errors.Is(err, analysis.ErrInvalidArgument) {
		t.Errorf("zero hours: err = %v, want ErrInvalidArgument", err)
	}
	if _, _, err := f.detector.DetectPriceChanges(ctx, "c1", 24, -1); !errors.Is(err, analysis.ErrInvalidArgument) {
		t.Errorf("negative threshold: err = %v, want ErrInvalidArgument", err)
	}
	if _, err := f.detector.DetectDiscontinued(ctx, "c1", -3); !errors.Is(err, analysis.ErrInvalidArgument) {
		t.Errorf("negative days: err = %v, want ErrInvalidArgument", err)
	}
	if _, err := f.detector.GetChangesSummary(ctx, "", -1, DefaultConfig()); !errors.Is(err, analysis.ErrInvalidArgument) {
		t.Errorf("negative summary hours: err = %v, want ErrInvalidArgument", err)
	}
}

func TestGetChangesSummary_Scenario(t *testing.T) {
	f := newFixture(t)
	f.addCompetitor(t, "c1", "Acme")

	// Ten established products.
	for _, name := range []string{"P1", "P2", "P3", "P4", "P5", "P6", "P7", "P8", "P9", "P10"} {
		f.addObservation(t, "c1", name, 100, true, 48)
		f.addObservation(t, "c1", name, 100, true, 2)
	}
	// Two new products inside the window.
	f.addObservation(t, "c1", "NewOne", 50, true, 3)
	f.addObservation(t, "c1", "NewTwo", 60, true, 3)
	// One ~8% price increase on an established product.
	f.addObservation(t, "c1", "P1", 108, true, 1)

	summary, err := f.detector.GetChangesSummary(context.Background(), "c1", 24, DefaultConfig())
	if err != nil {
		t.Fatalf("GetChangesSummary: %v", err)
	}
	if summary.CompetitorsAnalyzed != 1 || len(summary.Competitors) != 1 {
		t.Fatalf("CompetitorsAnalyzed = %d, want 1", summary.CompetitorsAnalyzed)
	}
	row := summary.Competitors[0]
	if row.DataError != "" {
		t.Fatalf("unexpected data error: %s", row.DataError)
	}
	if row.Counts.TotalNewProducts != 2 {
		t.Errorf("TotalNewProducts = %d, want 2", row.Counts.TotalNewProducts)
	}
	if row.Counts.TotalPriceIncreases != 1 {
		t.Errorf("TotalPriceIncreases = %d, want 1", row.Counts.TotalPriceIncreases)
	}
	if row.Counts.TotalPriceDecreases != 0 {
		t.Errorf("TotalPriceDecreases = %d, want 0", row.Counts.TotalPriceDecreases)
	}
	if got := row.Changes.PriceIncreases[0].ChangePercent; got != 8.0 {
		t.Errorf("ChangePercent = %v, want 8.0", got)
	}
}

func TestGetChangesSummary_AllCompetitors(t *testing.T) {
	f := newFixture(t)
	f.addCompetitor(t, "c2", "Beta")
	f.addCompetitor(t, "c1", "Acme")

	f.addObservation(t, "c1", "Widget", 10, true, 2)
	f.addObservation(t, "c2", "Gadget", 20, true, 2)

	summary, err := f.detector.GetChangesSummary(context.Background(), "", 24, DefaultConfig())
	if err != nil {
		t.Fatalf("GetChangesSummary: %v", err)
	}
	if summary.CompetitorsAnalyzed != 2 {
		t.Fatalf("CompetitorsAnalyzed = %d, want 2", summary.CompetitorsAnalyzed)
	}
	if summary.Competitors[0].CompetitorID != "c1" || summary.Competitors[1].CompetitorID != "c2" {
		t.Errorf("rows not sorted by competitor ID: %+v", summary.Competitors)
	}
	if summary.AnalyzedAt != testNow.UnixMilli() {
		t.Errorf("AnalyzedAt = %d, want clock time", summary.AnalyzedAt)
	}
}

func TestGetChangesSummary_UnknownCompetitor(t *testing.T) {
	f := newFixture(t)

	_, err := f.detector.GetChangesSummary(context.Background(), "ghost", 24, DefaultConfig())
	if !errors.Is(err, analysis.ErrNoObservations) {
		t.Fatalf("err = %v, want ErrNoObservations", err)
	}
}

func TestDetectChanges_Idempotent(t *testing.T) {
	f := newFixture(t)

	f.addObservation(t, "c1", "Widget", 100, true, 48)
	f.addObservation(t, "c1", "Widget", 110, true, 2)
	f.addObservation(t, "c1", "Newcomer", 5, false, 1)

	first, err := f.detector.DetectChanges(context.Background(), "c1", 24, DefaultConfig())
	if err != nil {
		t.Fatalf("DetectChanges: %v", err)
	}
	second, err := f.detector.DetectChanges(context.Background(), "c1", 24, DefaultConfig())
	if err != nil {
		t.Fatalf("DetectChanges: %v", err)
	}
	if first.Counts() != second.Counts() {
		t.Errorf("counts differ across runs: %+v vs %+v", first.Counts(), second.Counts())
	}
	if len(first.PriceIncreases) != 1 || first.PriceIncreases[0].ChangePercent != second.PriceIncreases[0].ChangePercent {
		t.Errorf("price change results differ across runs")
	}
}
