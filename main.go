package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Tutortoise/pet-match-service/config"
	"github.com/Tutortoise/pet-match-service/gallery"
	"github.com/Tutortoise/pet-match-service/models"
	"github.com/Tutortoise/pet-match-service/similarity"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"golang.org/x/sys/cpu"
)

var (
	debugMode bool

	errNoImageData   = errors.New("no image data")
	errInvalidBase64 = errors.New("invalid base64 image data")
)

func logTimings(t *models.ProcessingTimings) {
	if debugMode {
		log.Printf("[DEBUG] RequestID: %s - Processing times:\n"+
			"\tQuery Decode: %v\n"+
			"\tGallery Load: %v\n"+
			"\tScan:         %v\n"+
			"\tTotal:        %v\n"+
			"\tScanned: %d Skipped: %d Matched: %d",
			t.RequestID,
			t.QueryDecode,
			t.GalleryLoad,
			t.Scan,
			t.Total,
			t.Scanned,
			t.Skipped,
			t.Matched)
	}
}

type AppState struct {
	Config  *config.Config
	Matcher *similarity.Matcher
	Gallery gallery.Provider
	Pool    *ScanPool
}

type MatchResponse struct {
	Status          string      `json:"status"`
	Code            string      `json:"code,omitempty"`
	Message         string      `json:"message"`
	SimilarityScore float64     `json:"similarity_score"`
	Confidence      float64     `json:"confidence"`
	Matches         []MatchItem `json:"matches"`
	Skipped         int         `json:"skipped"`
	SkippedIDs      []int64     `json:"skipped_ids,omitempty"`
}

type MatchItem struct {
	LostPetID  int64   `json:"lost_pet_id"`
	PetName    string  `json:"pet_name"`
	PetType    string  `json:"pet_type"`
	Breed      *string `json:"breed"`
	Similarity float64 `json:"similarity"`
	ImageURL   *string `json:"image_url"`
	OwnerName  *string `json:"owner_name"`
	Location   *string `json:"location"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(ctx context.Context, cfg *config.Config) error {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	debugMode = cfg.Debug

	store, err := gallery.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("can't connect to gallery storage: %w", err)
	}
	defer store.Close()

	if cfg.Migrate {
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("can't init gallery storage: %w", err)
		}
	}

	var provider gallery.Provider = store
	if cfg.CacheTTL > 0 {
		provider = gallery.NewCachedProvider(store, cfg.CacheTTL)
	}

	matcher, err := similarity.NewMatcher(cfg.Similarity, provider, gallery.NewFileStore(cfg.ImageRoot))
	if err != nil {
		return err
	}
	matcher.Debug = cfg.Debug

	pool := NewScanPool(cfg.PoolSize, cfg.AcquireTimeout)
	defer pool.Close()

	state := &AppState{
		Config:  cfg,
		Matcher: matcher,
		Gallery: provider,
		Pool:    pool,
	}

	srv := &http.Server{
		Handler:      newRouter(state),
		Addr:         cfg.Addr,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Printf("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func newRouter(state *AppState) *mux.Router {
	r := mux.NewRouter()

	compare := handleComparePetImage(state)
	r.HandleFunc("/compare_pet_image", compare).Methods("POST")
	r.HandleFunc("/compare_pet_image.php", compare).Methods("POST")
	r.HandleFunc("/compare-pet-image", compare).Methods("POST")
	state.addMonitoringRoutes(r)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		sendErrorResponse(w, "method_not_allowed", "Method not allowed", http.StatusMethodNotAllowed)
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		sendErrorResponse(w, "not_found", "Not found", http.StatusNotFound)
	})
	return r
}

func handleComparePetImage(state *AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTotal := time.Now()
		requestID := fmt.Sprintf("%d", time.Now().UnixNano())
		timings := &models.ProcessingTimings{RequestID: requestID}

		imgBytes, userID, err := parseCompareRequest(w, r, state.Config.MaxUploadBytes)
		if err != nil {
			var tooLarge *http.MaxBytesError
			switch {
			case errors.As(err, &tooLarge):
				sendErrorResponse(w, "payload_too_large", MsgPayloadTooLarge, http.StatusRequestEntityTooLarge)
			case errors.Is(err, errNoImageData):
				sendErrorResponse(w, "no_image_data", MsgNoImageData, http.StatusBadRequest)
			case errors.Is(err, errInvalidBase64):
				sendErrorResponse(w, "invalid_image", MsgInvalidImage, http.StatusBadRequest)
			default:
				sendErrorResponse(w, "invalid_request", err.Error(), http.StatusBadRequest)
			}
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), state.Config.ScanTimeout)
		defer cancel()

		if err := state.Pool.Acquire(ctx); err != nil {
			log.Printf("RequestID: %s - no scan slot: %v", requestID, err)
			sendErrorResponse(w, "busy", MsgBusy, http.StatusServiceUnavailable)
			return
		}
		defer state.Pool.Release()

		res, err := state.Matcher.Match(ctx, similarity.Request{
			Image:     imgBytes,
			UserID:    userID,
			RequestID: requestID,
			Timings:   timings,
		})
		if err != nil {
			switch {
			case errors.Is(err, similarity.ErrQueryDecode):
				sendErrorResponse(w, "invalid_image", MsgInvalidImage, http.StatusBadRequest)
			case errors.Is(err, similarity.ErrScanTimeout):
				log.Printf("RequestID: %s - %v", requestID, err)
				sendErrorResponse(w, "scan_timeout", MsgScanTimeout, http.StatusGatewayTimeout)
			case errors.Is(err, similarity.ErrNoDataSource):
				log.Printf("RequestID: %s - %v", requestID, err)
				sendErrorResponse(w, "data_source_unavailable", MsgDataSourceUnavailable, http.StatusServiceUnavailable)
			default:
				log.Printf("RequestID: %s - %v", requestID, err)
				sendErrorResponse(w, "processing_error", MsgInternal, http.StatusInternalServerError)
			}
			return
		}

		timings.Total = time.Since(startTotal)
		logTimings(timings)

		writeJSON(w, http.StatusOK, newMatchResponse(res, state.Config.PublicBaseURL))
	}
}

func (s *AppState) addMonitoringRoutes(r *mux.Router) {
	r.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
}

func (s *AppState) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	metrics := s.Pool.GetMetrics()
	response := map[string]interface{}{
		"pool_size":        metrics.Size,
		"slots_in_use":     metrics.InUse,
		"total_acquired":   metrics.TotalAcquired,
		"total_released":   metrics.TotalReleased,
		"acquire_failures": metrics.AcquireFailures,
		"wait_time_ms":     metrics.WaitTime.Milliseconds(),
		"scan_workers":     s.Matcher.Config().Workers,
		"num_cpu":          runtime.NumCPU(),
		"cpu": map[string]bool{
			"avx512": cpu.X86.HasAVX512,
			"avx2":   cpu.X86.HasAVX2,
			"sse41":  cpu.X86.HasSSE41,
			"asimd":  cpu.ARM64.HasASIMD,
		},
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *AppState) handleHealth(w http.ResponseWriter, r *http.Request) {
	if pinger, ok := s.Gallery.(gallery.Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pinger.Ping(ctx); err != nil {
			sendErrorResponse(w, "data_source_unavailable", MsgDataSourceUnavailable, http.StatusServiceUnavailable)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseCompareRequest extracts the query image and optional requester id from
// a form, multipart or JSON request body.
func parseCompareRequest(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, *int64, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		return handleJSONRequest(r)
	case "multipart/form-data":
		return handleMultipartRequest(r, maxBytes)
	default:
		return handleFormRequest(r)
	}
}

func handleJSONRequest(r *http.Request) ([]byte, *int64, error) {
	var req struct {
		ImageBase64 string      `json:"image_base64"`
		UserID      json.Number `json:"user_id"`
	}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return nil, nil, fmt.Errorf("invalid JSON body: %w", err)
	}

	userID := parseUserID(req.UserID.String())
	img, err := decodeBase64Image(req.ImageBase64)
	return img, userID, err
}

func handleMultipartRequest(r *http.Request, maxBytes int64) ([]byte, *int64, error) {
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, nil, err
	}

	userID := parseUserID(r.FormValue("user_id"))

	if payload := r.FormValue("image_base64"); payload != "" {
		img, err := decodeBase64Image(payload)
		return img, userID, err
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		return nil, nil, errNoImageData
	}
	defer file.Close()

	img, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, err
	}
	if len(img) == 0 {
		return nil, nil, errNoImageData
	}
	return img, userID, nil
}

func handleFormRequest(r *http.Request) ([]byte, *int64, error) {
	if err := r.ParseForm(); err != nil {
		return nil, nil, err
	}

	userID := parseUserID(r.PostFormValue("user_id"))
	img, err := decodeBase64Image(r.PostFormValue("image_base64"))
	return img, userID, err
}

// parseUserID returns nil for a missing or malformed id. The id is only
// logged, so a bad one never fails the request.
func parseUserID(raw string) *int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("ignoring invalid user_id %q: %v", raw, err)
		return nil
	}
	return &id
}

// decodeBase64Image accepts standard, unpadded and URL-safe base64, with or
// without a data URI prefix. Form encoding may have turned '+' into spaces.
func decodeBase64Image(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		if i := strings.Index(payload, ";base64,"); i >= 0 {
			payload = payload[i+len(";base64,"):]
		}
	}
	payload = strings.Map(func(r rune) rune {
		switch r {
		case ' ':
			return '+'
		case '\n', '\r', '\t':
			return -1
		}
		return r
	}, payload)

	if payload == "" {
		return nil, errNoImageData
	}

	var lastErr error
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		data, err := enc.DecodeString(payload)
		if err == nil {
			if len(data) == 0 {
				return nil, errNoImageData
			}
			return data, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", errInvalidBase64, lastErr)
}

func newMatchResponse(res *similarity.Result, publicBaseURL string) MatchResponse {
	items := make([]MatchItem, 0, len(res.Matches))
	for _, m := range res.Matches {
		items = append(items, MatchItem{
			LostPetID:  m.ID,
			PetName:    m.PetName,
			PetType:    m.PetType,
			Breed:      m.Breed,
			Similarity: round(m.Score, 2),
			ImageURL:   imageURL(publicBaseURL, m.ImageRef),
			OwnerName:  m.OwnerName,
			Location:   m.Location,
		})
	}

	message := MsgNoMatches
	if len(items) > 0 {
		message = fmt.Sprintf(MsgMatchesFound, len(items))
	}

	return MatchResponse{
		Status:          "success",
		Message:         message,
		SimilarityScore: round(res.TopScore, 4),
		Confidence:      round(res.Confidence, 4),
		Matches:         items,
		Skipped:         len(res.Skipped),
		SkippedIDs:      res.SkippedIDs(),
	}
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// imageURL makes a stored image reference absolute when a public base URL is
// configured.
func imageURL(base, ref string) *string {
	if ref == "" {
		return nil
	}
	if base == "" || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return &ref
	}
	u := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(ref, "/")
	return &u
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("can't write response: %v", err)
	}
}

func sendErrorResponse(w http.ResponseWriter, code, message string, status int) {
	writeJSON(w, status, MatchResponse{
		Status:  "error",
		Code:    code,
		Message: message,
		Matches: []MatchItem{},
	})
}
