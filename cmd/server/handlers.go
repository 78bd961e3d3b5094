package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"competitor-intel/internal/analysis"
	"competitor-intel/internal/change"
	"competitor-intel/internal/domain"
	"competitor-intel/internal/idhash"
	"competitor-intel/internal/observability"
	"competitor-intel/internal/reporting"
	"competitor-intel/internal/storage"
	"competitor-intel/internal/strategy"
	"competitor-intel/internal/trend"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /api/competitors", s.handleListCompetitors)
	mux.HandleFunc("POST /api/competitors", s.handleCreateCompetitor)
	mux.HandleFunc("POST /api/observations", s.handleIngestObservations)
	mux.HandleFunc("POST /api/promotions", s.handleIngestPromotions)

	mux.HandleFunc("GET /api/competitors/{id}/trends", s.handleTrends)
	mux.HandleFunc("GET /api/competitors/{id}/strategy", s.handleStrategy)
	mux.HandleFunc("GET /api/competitors/{id}/changes", s.handleChanges)
	mux.HandleFunc("GET /api/competitors/{id}/discontinued", s.handleDiscontinued)
	mux.HandleFunc("GET /api/competitors/{id}/recommendations", s.handleRecommendations)

	mux.HandleFunc("GET /api/changes/summary", s.handleChangesSummary)
	mux.HandleFunc("GET /api/comparison", s.handleComparison)
	mux.HandleFunc("GET /api/report", s.handleReport)

	mux.Handle("GET /ws/changes", s.hub)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, analysis.ErrInvalidArgument), errors.Is(err, storage.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, analysis.ErrNoObservations), errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, storage.ErrDuplicateKey):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

// queryInt reads an integer query parameter, falling back to def when absent.
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func queryFloat(r *http.Request, key string, def float64) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseFloat(raw, 64)
}

func (s *Server) handleListCompetitors(w http.ResponseWriter, r *http.Request) {
	competitors, err := s.competitors.GetAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, competitors)
}

type createCompetitorRequest struct {
	CompetitorID string `json:"competitor_id"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	Enabled      *bool  `json:"enabled"`
}

func (s *Server) handleCreateCompetitor(w http.ResponseWriter, r *http.Request) {
	var req createCompetitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json: " + err.Error()})
		return
	}
	if req.CompetitorID == "" || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "competitor_id and name are required"})
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	c := &domain.Competitor{
		CompetitorID: req.CompetitorID,
		Name:         req.Name,
		URL:          req.URL,
		Enabled:      enabled,
		CreatedAt:    time.Now().UnixMilli(),
	}
	if err := s.competitors.Insert(r.Context(), c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

type observationRequest struct {
	CompetitorID string  `json:"competitor_id"`
	Name         string  `json:"name"`
	SKU          string  `json:"sku"`
	URL          string  `json:"url"`
	Category     string  `json:"category"`
	Price        float64 `json:"price"`
	Currency     string  `json:"currency"`
	InStock      bool    `json:"in_stock"`
	PromotionRef string  `json:"promotion_ref"`
	ObservedAt   int64   `json:"observed_at"` // unix ms, 0 means now
}

func (s *Server) handleIngestObservations(w http.ResponseWriter, r *http.Request) {
	var reqs []observationRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		observability.RecordIntakeError("observation", "bad_json")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json: " + err.Error()})
		return
	}

	now := time.Now().UnixMilli()
	obs := make([]*domain.Observation, 0, len(reqs))
	for _, req := range reqs {
		if req.CompetitorID == "" || req.Name == "" {
			observability.RecordIntakeError("observation", "missing_fields")
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "competitor_id and name are required"})
			return
		}
		observedAt := req.ObservedAt
		if observedAt == 0 {
			observedAt = now
		}
		currency := req.Currency
		if currency == "" {
			currency = "USD"
		}
		obs = append(obs, &domain.Observation{
			CompetitorID: req.CompetitorID,
			ProductKey:   idhash.ComputeProductKey(req.CompetitorID, req.Name, req.SKU, req.URL),
			Name:         req.Name,
			SKU:          req.SKU,
			URL:          req.URL,
			Category:     req.Category,
			Price:        req.Price,
			Currency:     currency,
			InStock:      req.InStock,
			PromotionRef: req.PromotionRef,
			ObservedAt:   observedAt,
		})
	}

	if err := s.observations.InsertBulk(r.Context(), obs); err != nil {
		observability.RecordIntakeError("observation", "store")
		writeError(w, err)
		return
	}
	observability.RecordObservationsIngested(len(obs))

	if s.archive != nil {
		if err := s.archive.InsertBulk(r.Context(), obs); err != nil {
			// Archive is write-behind; the hot store already has the rows.
			s.logger.Printf("archive observations: %v", err)
		}
	}

	writeJSON(w, http.StatusCreated, map[string]int{"inserted": len(obs)})
}

type promotionRequest struct {
	CompetitorID  string  `json:"competitor_id"`
	Title         string  `json:"title"`
	PromotionType string  `json:"promotion_type"`
	DiscountValue float64 `json:"discount_value"`
	DiscountType  string  `json:"discount_type"`
	ObservedAt    int64   `json:"observed_at"`
}

func (s *Server) handleIngestPromotions(w http.ResponseWriter, r *http.Request) {
	var reqs []promotionRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		observability.RecordIntakeError("promotion", "bad_json")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json: " + err.Error()})
		return
	}

	now := time.Now().UnixMilli()
	promos := make([]*domain.PromotionObservation, 0, len(reqs))
	for _, req := range reqs {
		if req.CompetitorID == "" || req.Title == "" {
			observability.RecordIntakeError("promotion", "missing_fields")
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "competitor_id and title are required"})
			return
		}
		promotionType := domain.PromotionType(req.PromotionType)
		if !promotionType.IsValid() {
			promotionType = domain.PromotionOther
		}
		observedAt := req.ObservedAt
		if observedAt == 0 {
			observedAt = now
		}
		promos = append(promos, &domain.PromotionObservation{
			CompetitorID:  req.CompetitorID,
			PromotionKey:  idhash.ComputePromotionKey(req.CompetitorID, req.Title, string(promotionType)),
			Title:         req.Title,
			PromotionType: promotionType,
			DiscountValue: req.DiscountValue,
			DiscountType:  req.DiscountType,
			ObservedAt:    observedAt,
		})
	}

	if err := s.promotions.InsertBulk(r.Context(), promos); err != nil {
		observability.RecordIntakeError("promotion", "store")
		writeError(w, err)
		return
	}
	observability.RecordPromotionsIngested(len(promos))

	writeJSON(w, http.StatusCreated, map[string]int{"inserted": len(promos)})
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", 30)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid days"})
		return
	}

	start := time.Now()
	report, err := s.trends.ClassifyTrends(r.Context(), r.PathValue("id"), days, trend.DefaultConfig())
	observability.RecordAnalysis("classify_trends", statusOf(err), time.Since(start).Seconds())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleStrategy(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	profile, err := s.strategies.DetectStrategy(r.Context(), r.PathValue("id"), strategy.DefaultConfig())
	observability.RecordAnalysis("detect_strategy", statusOf(err), time.Since(start).Seconds())
	if errors.Is(err, analysis.ErrInsufficientData) {
		// Not enough data to classify: render unknown rather than fail.
		writeJSON(w, http.StatusOK, map[string]string{
			"competitor_id": r.PathValue("id"),
			"strategy":      "unknown",
		})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	hours, err := queryInt(r, "hours", s.changeWindowHours)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid hours"})
		return
	}
	minChange, err := queryFloat(r, "min_change_percent", s.minChangePercent)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid min_change_percent"})
		return
	}

	cfg := change.DefaultConfig()
	cfg.MinChangePercent = minChange

	start := time.Now()
	set, err := s.changes.DetectChanges(r.Context(), r.PathValue("id"), hours, cfg)
	observability.RecordAnalysis("detect_changes", statusOf(err), time.Since(start).Seconds())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (s *Server) handleDiscontinued(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", change.DefaultConfig().DiscontinuedAfterDays)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid days"})
		return
	}

	products, err := s.changes.DetectDiscontinued(r.Context(), r.PathValue("id"), days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	recs, err := s.engine.Recommend(r.Context(), r.PathValue("id"))
	observability.RecordAnalysis("recommend", statusOf(err), time.Since(start).Seconds())
	if err != nil {
		writeError(w, err)
		return
	}
	observability.DefaultMetrics.RecommendationsBuilt.Add(float64(len(recs)))
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleChangesSummary(w http.ResponseWriter, r *http.Request) {
	hours, err := queryInt(r, "hours", s.changeWindowHours)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid hours"})
		return
	}

	cfg := change.DefaultConfig()
	cfg.MinChangePercent = s.minChangePercent

	start := time.Now()
	summary, err := s.changes.GetChangesSummary(r.Context(), r.URL.Query().Get("competitor_id"), hours, cfg)
	observability.RecordAnalysis("changes_summary", statusOf(err), time.Since(start).Seconds())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleComparison(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	comparison, err := s.comparator.ComparePrices(r.Context(), r.URL.Query().Get("category"))
	observability.RecordAnalysis("compare_prices", statusOf(err), time.Since(start).Seconds())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comparison)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.generator.Generate(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "json":
		writeJSON(w, http.StatusOK, report)
	case "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write([]byte(reporting.RenderMarkdown(report)))
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		var gaps []domain.PriceGap
		if report.Comparison != nil {
			gaps = report.Comparison.Gaps
		}
		w.Write([]byte(reporting.RenderCSV(gaps)))
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown format"})
	}
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
