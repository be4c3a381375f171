package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"fragment-loader/common"
	"fragment-loader/internal/kafka"
	"fragment-loader/internal/models"
	"fragment-loader/internal/store"
)

type server struct {
	prod  kafka.LoadProducer
	store store.StatusStore
}

func newServer(prod kafka.LoadProducer, store store.StatusStore) *server {
	return &server{
		prod:  prod,
		store: store,
	}
}

func main() {
	broker := common.GetEnv("KAFKA_BROKER", "localhost:9092")
	topic := common.GetEnv("KAFKA_LOADS_TOPIC", "fragments.page.loads")
	redisAddr := common.GetEnv("REDIS_ADDR", "localhost:6379")
	statusTTL := common.ParseDuration(common.GetEnv("STATUS_TTL", "24h"), 24*time.Hour)
	addr := common.GetEnv("API_ADDR", ":8080")

	prod := kafka.NewProducer(broker, topic)
	defer func() {
		if err := prod.Close(); err != nil {
			log.Printf("failed to close producer: %v", err)
		}
	}()

	statusStore := store.NewRedisStatusStore(redisAddr, "fragments:load:", statusTTL)
	defer func() {
		if err := statusStore.Close(); err != nil {
			log.Printf("failed to close status store: %v", err)
		}
	}()

	srv := newServer(prod, statusStore)

	log.Printf("api listening on %s topic=%s", addr, topic)
	if err := http.ListenAndServe(addr, srv.routes()); err != nil {
		log.Fatal(err)
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/loads", s.handleLoad)
	mux.HandleFunc("/loads/", s.handleLoadStatus)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// handleLoad accepts POST requests to assemble a page.
//
// Method: POST
// Path:   /loads?page=...
// Example:
//
//	curl -X POST "http://localhost:8080/loads?page=https://example.org/article/index.html"
func (s *server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pageURL := strings.TrimSpace(r.URL.Query().Get("page"))
	if pageURL == "" {
		http.Error(w, "missing page", http.StatusBadRequest)
		return
	}
	if !validPageURL(pageURL) {
		http.Error(w, "page must be an absolute http(s) URL", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	req := models.LoadRequest{
		LoadID:    uuid.NewString(),
		PageURL:   pageURL,
		CreatedAt: now,
	}
	status := models.LoadStatus{
		LoadID:    req.LoadID,
		PageURL:   pageURL,
		Status:    models.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	// queued must be stored before the request is visible to workers.
	if err := s.store.SetStatus(ctx, status); err != nil {
		log.Printf("persist status failed load=%s: %v", req.LoadID, err)
		http.Error(w, "failed to persist status", http.StatusBadGateway)
		return
	}

	if err := s.prod.WriteLoad(ctx, req); err != nil {
		log.Printf("enqueue load failed id=%s page=%s: %v", req.LoadID, pageURL, err)
		failed := status
		failed.Status = models.StatusFailed
		failed.Error = "enqueue failed"
		failed.UpdatedAt = time.Now().UTC()
		if err := s.store.SetStatus(ctx, failed); err != nil {
			log.Printf("persist failed status failed load=%s: %v", req.LoadID, err)
		}
		http.Error(w, "failed to enqueue load", http.StatusBadGateway)
		return
	}

	writeJSON(w, status, http.StatusAccepted)
}

// handleLoadStatus returns status for a previously created load.
//
// Method: GET
// Path:   /loads/{loadID}
// Example:
//
//	curl "http://localhost:8080/loads/0b6c3c8e-4d1f-4a58-9d43-9a1f1e0c2f11"
func (s *server) handleLoadStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	loadID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/loads/"), "/")
	if loadID == "" {
		http.Error(w, "missing load id", http.StatusBadRequest)
		return
	}

	status, ok, err := s.store.GetStatus(r.Context(), loadID)
	if err != nil {
		http.Error(w, "failed to load status", http.StatusBadGateway)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	writeJSON(w, status, http.StatusOK)
}

// handleMetrics exposes a minimal Prometheus-compatible endpoint.
func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("fragments_api_up 1\n"))
}

func writeJSON(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func validPageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
