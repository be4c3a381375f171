package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"fragment-loader/common"
	"fragment-loader/internal/fetchqueue"
	"fragment-loader/internal/fragment"
	fkafka "fragment-loader/internal/kafka"
	"fragment-loader/internal/models"
	"fragment-loader/internal/page"
	"fragment-loader/internal/store"
)

type messageReader = fkafka.MessageReader
type resultWriter = fkafka.MessageWriter

type worker struct {
	reader         messageReader
	store          store.StatusStore
	resultsWriter  resultWriter
	dlqWriter      resultWriter
	client         *http.Client
	queue          common.QueueConfig
	prefix         string
	outputDir      string
	loadTimeout    time.Duration // whole page load, all fragments included
	publishTimeout time.Duration // status + Kafka publish after the load settles
	respectRobots  bool
	generateTOC    bool
}

func newWorker(
	reader messageReader,
	store store.StatusStore,
	resultsWriter resultWriter,
	dlqWriter resultWriter,
	client *http.Client,
	queue common.QueueConfig,
	outputDir string,
	loadTimeout time.Duration,
	publishTimeout time.Duration,
	respectRobots bool,
	generateTOC bool,
) *worker {
	if loadTimeout <= 0 {
		loadTimeout = 5 * time.Minute
	}
	if publishTimeout <= 0 {
		publishTimeout = 30 * time.Second
	}
	return &worker{
		reader:         reader,
		store:          store,
		resultsWriter:  resultsWriter,
		dlqWriter:      dlqWriter,
		client:         client,
		queue:          queue,
		prefix:         page.DefaultPrefix,
		outputDir:      outputDir,
		loadTimeout:    loadTimeout,
		publishTimeout: publishTimeout,
		respectRobots:  respectRobots,
		generateTOC:    generateTOC,
	}
}

func main() {
	broker := common.GetEnv("KAFKA_BROKER", "localhost:9092")
	loadsTopic := common.GetEnv("KAFKA_LOADS_TOPIC", "fragments.page.loads")
	groupID := common.GetEnv("KAFKA_GROUP_ID", "fragments-worker")
	resultsTopic := common.GetEnv("KAFKA_RESULTS_TOPIC", "fragments.page.results")
	dlqTopic := common.GetEnv("KAFKA_DLQ_TOPIC", "fragments.fragment.dlq")
	redisAddr := common.GetEnv("REDIS_ADDR", "localhost:6379")
	statusTTL := common.ParseDuration(common.GetEnv("STATUS_TTL", "24h"), 24*time.Hour)
	outputDir := common.GetEnv("OUTPUT_DIR", "out")
	loadTimeout := common.ParseDuration(common.GetEnv("LOAD_TIMEOUT", "5m"), 5*time.Minute)
	publishTimeout := common.ParseDuration(common.GetEnv("PUBLISH_TIMEOUT", "30s"), 30*time.Second)
	respectRobots := common.ParseBool(common.GetEnv("RESPECT_ROBOTS_TXT", ""), false)
	generateTOC := common.ParseBool(common.GetEnv("GENERATE_TOC", ""), true)
	metricsAddr := common.GetEnv("METRICS_ADDR", ":9090")
	queueConfig := common.QueueConfigFromEnv()

	if err := queueConfig.Validate(); err != nil {
		log.Fatalf("invalid fetch queue config: %v", err)
	}

	reader := fkafka.NewReader(broker, loadsTopic, groupID)
	defer func() {
		if err := reader.Close(); err != nil {
			log.Printf("failed to close reader: %v", err)
		}
	}()

	statusStore := store.NewRedisStatusStore(redisAddr, "fragments:load:", statusTTL)
	defer func() {
		if err := statusStore.Close(); err != nil {
			log.Printf("failed to close status store: %v", err)
		}
	}()

	resultsWriter := fkafka.NewWriter(broker, resultsTopic)
	defer func() {
		if err := resultsWriter.Close(); err != nil {
			log.Printf("failed to close results writer: %v", err)
		}
	}()

	dlqWriter := fkafka.NewWriter(broker, dlqTopic)
	defer func() {
		if err := dlqWriter.Close(); err != nil {
			log.Printf("failed to close dlq writer: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient, proxyURL := fragment.BuildHTTPClient()
	metricsProxyURL = proxyURL
	if metricsAddr != "" {
		startMetricsServer(ctx, metricsAddr)
	}

	log.Printf("worker consuming topic=%s group=%s broker=%s max_concurrent=%d max_retries=%d base_delay=%s",
		loadsTopic, groupID, broker, queueConfig.MaxConcurrent, queueConfig.MaxRetries, queueConfig.BaseDelay)
	w := newWorker(
		reader,
		statusStore,
		resultsWriter,
		dlqWriter,
		httpClient,
		queueConfig,
		outputDir,
		loadTimeout,
		publishTimeout,
		respectRobots,
		generateTOC,
	)
	w.run(ctx)
}

// run consumes load requests one at a time; each load fans out over its own fetch queue.
func (w *worker) run(ctx context.Context) {
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("fetch error: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if err := w.processMessage(ctx, msg); err != nil {
			log.Printf("message processing error: %v", err)
		}
	}
}

// processMessage loads one page, publishes the outcome and commits the message.
// The offset advances even when the load fails so one bad page can't stall the partition.
func (w *worker) processMessage(ctx context.Context, msg kafka.Message) error {
	var req models.LoadRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		log.Printf("invalid load payload partition=%d offset=%d: %v", msg.Partition, msg.Offset, err)
		return w.commit(ctx, msg)
	}
	atomic.AddUint64(&workerLoadsReceived, 1)
	log.Printf("received load id=%s page=%s partition=%d offset=%d", req.LoadID, req.PageURL, msg.Partition, msg.Offset)

	loadCtx, cancel := context.WithTimeout(ctx, w.loadTimeout)
	status, failures := w.handleLoad(loadCtx, req)
	cancel()
	countLoadOutcome(status.Status)

	publishCtx, publishCancel := context.WithTimeout(ctx, w.publishTimeout)
	defer publishCancel()
	w.publishOutcome(publishCtx, req, status, failures)

	return w.commit(ctx, msg)
}

// handleLoad fetches the page, loads every allowed placeholder through a fresh
// fetch queue and writes the assembled page. It returns the final status and
// the fragments that failed terminally.
func (w *worker) handleLoad(ctx context.Context, req models.LoadRequest) (models.LoadStatus, []fetchqueue.Result) {
	status := models.LoadStatus{
		LoadID:    req.LoadID,
		PageURL:   req.PageURL,
		Status:    models.StatusRunning,
		CreatedAt: req.CreatedAt,
		UpdatedAt: time.Now().UTC(),
	}
	w.setStatus(ctx, status)

	fail := func(err error) (models.LoadStatus, []fetchqueue.Result) {
		log.Printf("load failed id=%s page=%s: %v", req.LoadID, req.PageURL, err)
		status.Status = models.StatusFailed
		status.Error = err.Error()
		status.UpdatedAt = time.Now().UTC()
		return status, nil
	}

	outputPath, err := w.outputPath(req.LoadID)
	if err != nil {
		return fail(err)
	}
	body, err := fragment.FetchWithClient(ctx, w.client, req.PageURL, fragment.DefaultUserAgent)
	if err != nil {
		return fail(fmt.Errorf("fetch page: %w", err))
	}
	doc, err := page.Parse(bytes.NewReader(body))
	if err != nil {
		return fail(err)
	}
	client, err := fragment.NewClient(req.PageURL, w.client)
	if err != nil {
		return fail(err)
	}
	q, err := fetchqueue.New(
		metricsFetcher{next: client},
		append(w.queue.Options(), fetchqueue.WithObserver(fetchqueue.ObserverFunc(observeQueueEvent)))...,
	)
	if err != nil {
		return fail(err)
	}

	placeholders, skipped := w.allowedPlaceholders(ctx, req.PageURL, client, doc.Placeholders(w.prefix))
	report := page.Load(ctx, q, placeholders)
	if w.generateTOC {
		if entries, ok := doc.GenerateTOC(); ok {
			log.Printf("table of contents id=%s entries=%d", req.LoadID, entries)
		}
	}

	if err := writeDocument(outputPath, doc); err != nil {
		return fail(err)
	}

	status.Fragments = len(placeholders) + skipped
	status.Loaded = report.Loaded
	status.Failed = report.Failed
	status.Skipped = skipped
	status.OutputPath = outputPath
	status.Status = models.StatusCompleted
	if report.Degraded() || skipped > 0 {
		status.Status = models.StatusDegraded
	}
	status.UpdatedAt = time.Now().UTC()
	log.Printf("load done id=%s status=%s fragments=%d loaded=%d failed=%d skipped=%d output=%s",
		req.LoadID, status.Status, status.Fragments, status.Loaded, status.Failed, status.Skipped, outputPath)
	return status, report.Failures()
}

// allowedPlaceholders drops placeholders whose fragment robots.txt disallows.
// A missing or unreachable robots.txt allows everything.
func (w *worker) allowedPlaceholders(ctx context.Context, pageURL string, client *fragment.Client, placeholders []*page.Placeholder) ([]*page.Placeholder, int) {
	if !w.respectRobots {
		return placeholders, 0
	}
	body, err := fragment.FetchRobots(ctx, w.client, pageURL)
	if err != nil {
		if !fragment.IsRobotsMissing(err) {
			log.Printf("robots.txt fetch failed (will allow all fragments): %v", err)
		}
		return placeholders, 0
	}
	rules := fragment.ParseRobots(body, fragment.DefaultUserAgent)

	allowed := make([]*page.Placeholder, 0, len(placeholders))
	skipped := 0
	for _, p := range placeholders {
		target, err := client.Resolve(p.Path())
		if err == nil && !rules.Allowed(fragment.PathFromURL(target)) {
			log.Printf("robots.txt disallows fragment %s", target)
			skipped++
			continue
		}
		allowed = append(allowed, p)
	}
	return allowed, skipped
}

func (w *worker) outputPath(loadID string) (string, error) {
	if loadID == "" || strings.ContainsAny(loadID, `/\`) || strings.Contains(loadID, "..") {
		return "", fmt.Errorf("unsafe load id %q", loadID)
	}
	return filepath.Join(w.outputDir, loadID+".html"), nil
}

func writeDocument(path string, doc *page.Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := doc.Render(f); err != nil {
		f.Close()
		return fmt.Errorf("render page: %w", err)
	}
	return f.Close()
}

// publishOutcome stores the final status, sends each failed fragment to the
// DLQ and publishes the load result. Errors are logged; the commit still happens.
func (w *worker) publishOutcome(ctx context.Context, req models.LoadRequest, status models.LoadStatus, failures []fetchqueue.Result) {
	w.setStatus(ctx, status)
	for _, res := range failures {
		if err := w.publishDLQ(ctx, req, res); err != nil {
			log.Printf("dlq publish error locator=%s: %v", res.Job.Locator, err)
		}
	}
	if err := w.publishResult(ctx, status); err != nil {
		log.Printf("publish result error id=%s: %v", status.LoadID, err)
	}
}

func (w *worker) setStatus(ctx context.Context, status models.LoadStatus) {
	if w.store == nil {
		return
	}
	if err := w.store.SetStatus(ctx, status); err != nil {
		log.Printf("status update error id=%s status=%s: %v", status.LoadID, status.Status, err)
	}
}

func (w *worker) publishResult(ctx context.Context, status models.LoadStatus) error {
	if w.resultsWriter == nil {
		return nil
	}
	payload, err := models.NewLoadResult(status)
	if err != nil {
		return err
	}
	return w.resultsWriter.WriteMessages(ctx, kafka.Message{
		Key:   []byte(status.LoadID),
		Value: payload,
		Time:  time.Now().UTC(),
	})
}

func (w *worker) publishDLQ(ctx context.Context, req models.LoadRequest, res fetchqueue.Result) error {
	if w.dlqWriter == nil || res.Err == nil {
		return nil
	}
	return fkafka.WriteJSON(ctx, w.dlqWriter, req.LoadID, models.FragmentFailure{
		LoadID:     req.LoadID,
		PageURL:    req.PageURL,
		Locator:    res.Job.Locator,
		Attempts:   res.Attempts,
		StatusCode: fetchqueue.StatusCode(res.Err),
		Error:      res.Err.Error(),
		FailedAt:   time.Now().UTC(),
	})
}

func (w *worker) commit(ctx context.Context, msg kafka.Message) error {
	start := time.Now()
	err := w.reader.CommitMessages(ctx, msg)
	observeCommitLatency(time.Since(start))
	if err != nil {
		atomic.AddUint64(&workerCommitErrorsTotal, 1)
		return fmt.Errorf("commit partition=%d offset=%d: %w", msg.Partition, msg.Offset, err)
	}
	return nil
}
