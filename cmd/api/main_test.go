package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/golang/mock/gomock"

	"fragment-loader/internal/models"
	"fragment-loader/mocks"
)

const testPage = "https://example.org/article/index.html"

func newTestServer(t *testing.T) (*server, *mocks.MockLoadProducer, *mocks.MockStatusStore) {
	t.Helper()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	prod := mocks.NewMockLoadProducer(ctrl)
	statusStore := mocks.NewMockStatusStore(ctrl)
	return newServer(prod, statusStore), prod, statusStore
}

func TestHandleLoad(t *testing.T) {
	srv, prod, statusStore := newTestServer(t)

	var published models.LoadRequest
	prod.EXPECT().WriteLoad(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req models.LoadRequest) error {
			published = req
			return nil
		})
	statusStore.EXPECT().SetStatus(gomock.Any(), gomock.Any()).Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/loads?page="+testPage, nil)
	rec := httptest.NewRecorder()
	srv.handleLoad(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, rec.Code)
	}

	var payload models.LoadStatus
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.LoadID == "" || payload.LoadID != published.LoadID {
		t.Fatalf("expected load id %q to match published request %q", payload.LoadID, published.LoadID)
	}
	if payload.PageURL != testPage || published.PageURL != testPage {
		t.Fatalf("unexpected page url: %s", payload.PageURL)
	}
	if payload.Status != models.StatusQueued {
		t.Fatalf("unexpected status: %s", payload.Status)
	}
}

func TestHandleLoadMissingPage(t *testing.T) {
	srv, prod, statusStore := newTestServer(t)
	prod.EXPECT().WriteLoad(gomock.Any(), gomock.Any()).Times(0)
	statusStore.EXPECT().SetStatus(gomock.Any(), gomock.Any()).Times(0)

	rec := httptest.NewRecorder()
	srv.handleLoad(rec, httptest.NewRequest(http.MethodPost, "/loads", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestHandleLoadRelativePage(t *testing.T) {
	srv, prod, _ := newTestServer(t)
	prod.EXPECT().WriteLoad(gomock.Any(), gomock.Any()).Times(0)

	rec := httptest.NewRecorder()
	srv.handleLoad(rec, httptest.NewRequest(http.MethodPost, "/loads?page=index.html", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestHandleLoadMethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleLoad(rec, httptest.NewRequest(http.MethodGet, "/loads?page="+testPage, nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

// memStatusStore is an in-memory StatusStore keyed by load id.
type memStatusStore struct {
	mu       sync.Mutex
	statuses map[string]models.LoadStatus
}

func newMemStatusStore() *memStatusStore {
	return &memStatusStore{statuses: make(map[string]models.LoadStatus)}
}

func (m *memStatusStore) SetStatus(_ context.Context, status models.LoadStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[status.LoadID] = status
	return nil
}

func (m *memStatusStore) GetStatus(_ context.Context, loadID string) (models.LoadStatus, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.statuses[loadID]
	return status, ok, nil
}

// instantWorker finishes the load while it is being published.
type instantWorker struct {
	store *memStatusStore
}

func (p instantWorker) WriteLoad(ctx context.Context, req models.LoadRequest) error {
	return p.store.SetStatus(ctx, models.LoadStatus{LoadID: req.LoadID, PageURL: req.PageURL, Status: models.StatusCompleted})
}

func TestHandleLoadKeepsStatusSetDuringPublish(t *testing.T) {
	statusStore := newMemStatusStore()
	srv := newServer(instantWorker{store: statusStore}, statusStore)

	rec := httptest.NewRecorder()
	srv.handleLoad(rec, httptest.NewRequest(http.MethodPost, "/loads?page="+testPage, nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, rec.Code)
	}

	var payload models.LoadStatus
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	got, ok, _ := statusStore.GetStatus(context.Background(), payload.LoadID)
	if !ok || got.Status != models.StatusCompleted {
		t.Fatalf("expected completed status to survive, got %+v (found=%v)", got, ok)
	}
}

func TestHandleLoadProducerFailure(t *testing.T) {
	srv, prod, statusStore := newTestServer(t)
	var stored []models.LoadStatus
	statusStore.EXPECT().SetStatus(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, status models.LoadStatus) error {
			stored = append(stored, status)
			return nil
		}).Times(2)
	prod.EXPECT().WriteLoad(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	rec := httptest.NewRecorder()
	srv.handleLoad(rec, httptest.NewRequest(http.MethodPost, "/loads?page="+testPage, nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected status %d, got %d", http.StatusBadGateway, rec.Code)
	}
	if stored[0].Status != models.StatusQueued || stored[1].Status != models.StatusFailed {
		t.Fatalf("expected queued then failed, got %+v", stored)
	}
	if stored[0].LoadID != stored[1].LoadID {
		t.Fatalf("expected both writes for one load, got %q and %q", stored[0].LoadID, stored[1].LoadID)
	}
}

func TestHandleLoadStatusStoreFailure(t *testing.T) {
	srv, prod, statusStore := newTestServer(t)
	statusStore.EXPECT().SetStatus(gomock.Any(), gomock.Any()).Return(errors.New("redis down"))
	prod.EXPECT().WriteLoad(gomock.Any(), gomock.Any()).Times(0)

	rec := httptest.NewRecorder()
	srv.handleLoad(rec, httptest.NewRequest(http.MethodPost, "/loads?page="+testPage, nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected status %d, got %d", http.StatusBadGateway, rec.Code)
	}
}

func TestHandleLoadStatus(t *testing.T) {
	srv, _, statusStore := newTestServer(t)
	want := models.LoadStatus{LoadID: "load-1", PageURL: testPage, Status: models.StatusDegraded, Fragments: 3, Loaded: 2, Failed: 1}
	statusStore.EXPECT().GetStatus(gomock.Any(), "load-1").Return(want, true, nil)

	rec := httptest.NewRecorder()
	srv.handleLoadStatus(rec, httptest.NewRequest(http.MethodGet, "/loads/load-1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var got models.LoadStatus
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Status != models.StatusDegraded || got.Failed != 1 {
		t.Fatalf("unexpected status payload: %+v", got)
	}
}

func TestHandleLoadStatusNotFound(t *testing.T) {
	srv, _, statusStore := newTestServer(t)
	statusStore.EXPECT().GetStatus(gomock.Any(), "missing").Return(models.LoadStatus{}, false, nil)

	rec := httptest.NewRecorder()
	srv.handleLoadStatus(rec, httptest.NewRequest(http.MethodGet, "/loads/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestHandleLoadStatusMissingID(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleLoadStatus(rec, httptest.NewRequest(http.MethodGet, "/loads/", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestRoutesHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected healthz response: %d %q", rec.Code, rec.Body.String())
	}
}

func TestHandleMetrics(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleMetrics(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "fragments_api_up 1\n" {
		t.Fatalf("unexpected metrics response: %d %q", rec.Code, rec.Body.String())
	}
}
