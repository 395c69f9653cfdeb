package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	processortypes "github.com/frahmantamala/tutor-billing/internal/core/datamodel/processor"
)

const maxAttempts = 3

// CaptureJob is one capture attempt against the external processor.
// Attempts of the same job always reuse the idempotency key, so a
// retried call has exactly-once effect on the processor side.
type CaptureJob struct {
	IdempotencyKey string
	AmountCents    int64
	Currency       string
	MethodRef      string
	Attempt        int
}

type Worker struct {
	ID         int
	WorkerPool chan chan CaptureJob
	JobChannel chan CaptureJob
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan CaptureJob, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan CaptureJob),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(CaptureJob)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {

			w.WorkerPool <- w.JobChannel

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker processing capture", "worker_id", w.ID, "idempotency_key", job.IdempotencyKey)
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

// Client talks to the external billing processor through a bounded
// worker pool. Capture outcomes come back through the webhook URL; no
// caller ever blocks on the processor round trip.
type Client struct {
	apiURL      string
	apiKey      string
	webhookURL  string
	callTimeout time.Duration
	logger      *slog.Logger

	jobQueue   chan CaptureJob
	workerPool chan chan CaptureJob
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

type Config struct {
	APIURL         string
	APIKey         string
	WebhookURL     string
	CallTimeout    time.Duration
	MaxWorkers     int
	JobQueueSize   int
	WorkerPoolSize int
}

func NewClient(config Config, logger *slog.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	jobQueueSize := config.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = 100
	}

	workerPoolSize := config.WorkerPoolSize
	if workerPoolSize <= 0 {
		workerPoolSize = maxWorkers
	}

	callTimeout := config.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}

	client := &Client{
		apiURL:      config.APIURL,
		apiKey:      config.APIKey,
		webhookURL:  config.WebhookURL,
		callTimeout: callTimeout,
		logger:      logger,

		maxWorkers: maxWorkers,
		jobQueue:   make(chan CaptureJob, jobQueueSize),
		workerPool: make(chan chan CaptureJob, workerPoolSize),
		ctx:        ctx,
		cancel:     cancel,
	}

	client.startWorkerPool()

	return client
}

func (c *Client) startWorkerPool() {
	c.once.Do(func() {

		for i := 0; i < c.maxWorkers; i++ {
			worker := NewWorker(i, c.workerPool, c.logger)
			worker.Start(c.ctx, &c.wg, c.processCaptureJob)
		}

		go c.dispatch()

		c.logger.Info("processor worker pool started",
			"max_workers", c.maxWorkers,
			"queue_size", cap(c.jobQueue))
	})
}

func (c *Client) dispatch() {
	c.wg.Add(1)
	defer c.wg.Done()

	for {
		select {
		case job := <-c.jobQueue:

			select {
			case jobChannel := <-c.workerPool:

				select {
				case jobChannel <- job:

				case <-c.ctx.Done():
					c.logger.Info("dispatcher shutting down")
					return
				}
			case <-c.ctx.Done():
				c.logger.Info("dispatcher shutting down")
				return
			}
		case <-c.ctx.Done():
			c.logger.Info("dispatcher shutting down")
			return
		}
	}
}

func (c *Client) Shutdown() {
	c.logger.Info("shutting down processor client")
	c.cancel()
	c.wg.Wait()
	c.logger.Info("processor client shutdown complete")
}

// Capture queues an asynchronous capture. The immediate result is
// always pending; the outcome arrives on the webhook.
func (c *Client) Capture(req *processortypes.CaptureRequest) error {
	if err := req.Validate(); err != nil {
		c.logger.Error("capture request validation failed", "error", err)
		return fmt.Errorf("validation error: %w", err)
	}

	job := CaptureJob{
		IdempotencyKey: req.IdempotencyKey,
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		MethodRef:      req.MethodRef,
		Attempt:        1,
	}

	select {
	case c.jobQueue <- job:
		c.logger.Info("capture job queued",
			"idempotency_key", req.IdempotencyKey,
			"amount_cents", req.AmountCents,
			"queue_length", len(c.jobQueue))
	default:
		c.logger.Warn("capture queue full, rejecting",
			"idempotency_key", req.IdempotencyKey,
			"queue_capacity", cap(c.jobQueue))
		return fmt.Errorf("capture queue full, please try again later")
	}

	return nil
}

// Refund is synchronous: the refund workflow already serializes
// process() per request, so there is no queue to decouple.
func (c *Client) Refund(ctx context.Context, req *processortypes.RefundRequest) (*processortypes.Result, error) {
	if err := req.Validate(); err != nil {
		c.logger.Error("refund request validation failed", "error", err)
		return nil, fmt.Errorf("validation error: %w", err)
	}

	result, err := c.post(ctx, "/v1/refunds", req.IdempotencyKey, req)
	if err != nil {
		return nil, err
	}

	c.logger.Info("processor refund call completed",
		"idempotency_key", req.IdempotencyKey,
		"outcome", result.Outcome,
		"reason", result.Reason)

	return result, nil
}

func (c *Client) processCaptureJob(job CaptureJob) {
	c.logger.Info("processing capture job",
		"idempotency_key", job.IdempotencyKey,
		"attempt", job.Attempt)

	req := &processortypes.CaptureRequest{
		IdempotencyKey: job.IdempotencyKey,
		AmountCents:    job.AmountCents,
		Currency:       job.Currency,
		MethodRef:      job.MethodRef,
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.callTimeout)
	result, err := c.post(ctx, "/v1/charges", req.IdempotencyKey, req)
	cancel()

	if err != nil {
		result = &processortypes.Result{
			Outcome:   processortypes.OutcomeError,
			Reason:    err.Error(),
			Retryable: true,
		}
	}

	if result.Outcome == processortypes.OutcomeError && result.Retryable {
		if job.Attempt < maxAttempts {
			job.Attempt++
			c.logger.Warn("capture attempt failed, re-queueing with same key",
				"idempotency_key", job.IdempotencyKey,
				"attempt", job.Attempt,
				"reason", result.Reason)

			select {
			case c.jobQueue <- job:
				return
			case <-c.ctx.Done():
				return
			}
		}

		c.logger.Error("capture retries exhausted",
			"idempotency_key", job.IdempotencyKey,
			"reason", result.Reason)
	}

	c.sendCallbackToWebhook(job.IdempotencyKey, job.AmountCents, result)
}

func (c *Client) post(ctx context.Context, path, idempotencyKey string, payload interface{}) (*processortypes.Result, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal processor request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.apiURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	client := &http.Client{Timeout: c.callTimeout}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var result processortypes.Result
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("failed to decode processor response: %w", err)
		}
		return &result, nil

	case resp.StatusCode == http.StatusPaymentRequired:
		var result processortypes.Result
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			result = processortypes.Result{Reason: "card declined"}
		}
		result.Outcome = processortypes.OutcomeDeclined
		return &result, nil

	case resp.StatusCode >= 500:
		return &processortypes.Result{
			Outcome:   processortypes.OutcomeError,
			Reason:    fmt.Sprintf("processor returned status %d", resp.StatusCode),
			Retryable: true,
		}, nil

	default:
		return &processortypes.Result{
			Outcome:   processortypes.OutcomeError,
			Reason:    fmt.Sprintf("processor returned status %d", resp.StatusCode),
			Retryable: false,
		}, nil
	}
}

// CaptureCallback is the payload posted back to the engine's webhook.
type CaptureCallback struct {
	IdempotencyKey string `json:"idempotency_key"`
	Outcome        string `json:"outcome"`
	Reason         string `json:"reason,omitempty"`
	ProviderRef    string `json:"provider_ref,omitempty"`
	AmountCents    int64  `json:"amount_cents"`
}

func (c *Client) sendCallbackToWebhook(idempotencyKey string, amountCents int64, result *processortypes.Result) {

	select {
	case <-c.ctx.Done():
		c.logger.Info("webhook callback cancelled", "idempotency_key", idempotencyKey)
		return
	default:

	}

	callback := CaptureCallback{
		IdempotencyKey: idempotencyKey,
		Outcome:        string(result.Outcome),
		Reason:         result.Reason,
		ProviderRef:    result.ProviderRef,
		AmountCents:    amountCents,
	}

	jsonData, err := json.Marshal(callback)
	if err != nil {
		c.logger.Error("failed to marshal webhook callback", "error", err)
		return
	}

	c.logger.Info("sending capture callback",
		"idempotency_key", idempotencyKey,
		"outcome", result.Outcome,
		"webhook_url", c.webhookURL)

	ctx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", c.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		c.logger.Error("failed to create webhook request",
			"error", err,
			"idempotency_key", idempotencyKey)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		c.logger.Error("webhook callback failed",
			"error", err,
			"idempotency_key", idempotencyKey)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		c.logger.Info("webhook callback delivered",
			"idempotency_key", idempotencyKey,
			"status_code", resp.StatusCode)
	} else {
		c.logger.Warn("webhook callback rejected",
			"idempotency_key", idempotencyKey,
			"status_code", resp.StatusCode)
	}
}
