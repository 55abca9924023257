package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	HeaderEvent     = "X-Payroll-Event"
	HeaderSignature = "X-Payroll-Signature"
	HeaderWebhookID = "X-Payroll-Webhook-ID"
)

// Dispatcher posts signed payloads to webhook URLs from a bounded in-memory
// queue. Every attempt is recorded in webhook_deliveries when db is set.
type Dispatcher struct {
	db         *pgxpool.Pool
	httpClient *http.Client
	deliveries chan DeliveryRequest
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

type DeliveryRequest struct {
	WebhookID uuid.UUID
	URL       string
	Secret    string
	Event     string
	Payload   []byte
}

func NewDispatcher(db *pgxpool.Pool, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := &Dispatcher{
		db: db,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		deliveries: make(chan DeliveryRequest, 1000),
	}
	d.wg.Add(1)
	go d.processLoop()
	return d
}

// Enqueue never blocks; a full queue drops the delivery.
func (d *Dispatcher) Enqueue(req DeliveryRequest) bool {
	select {
	case d.deliveries <- req:
		return true
	default:
		slog.Warn("webhook delivery queue full, dropping", "webhook_id", req.WebhookID, "event", req.Event)
		return false
	}
}

// Close stops accepting deliveries and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.deliveries) })
	d.wg.Wait()
}

func (d *Dispatcher) processLoop() {
	defer d.wg.Done()
	for req := range d.deliveries {
		ctx, cancel := context.WithTimeout(context.Background(), d.httpClient.Timeout+5*time.Second)
		status, err := d.Deliver(ctx, req)
		d.recordDelivery(ctx, req, status, err)
		cancel()
	}
}

// Deliver performs a single signed POST and returns the response status.
// A non-2xx status is reported as an error.
func (d *Dispatcher) Deliver(ctx context.Context, req DeliveryRequest) (int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Payload))
	if err != nil {
		return 0, fmt.Errorf("create webhook request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(HeaderEvent, req.Event)
	httpReq.Header.Set(HeaderSignature, Sign(req.Payload, req.Secret))
	httpReq.Header.Set(HeaderWebhookID, req.WebhookID.String())

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		slog.Error("webhook delivery failed", "error", err, "webhook_id", req.WebhookID)
		return 0, fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		slog.Warn("webhook received non-success response", "status", resp.StatusCode, "webhook_id", req.WebhookID)
		return resp.StatusCode, fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (d *Dispatcher) recordDelivery(ctx context.Context, req DeliveryRequest, status int, deliveryErr error) {
	if d.db == nil {
		return
	}

	var (
		deliveredAt *time.Time
		errText     *string
	)
	if deliveryErr == nil {
		now := time.Now()
		deliveredAt = &now
	} else {
		msg := deliveryErr.Error()
		errText = &msg
	}

	_, err := d.db.Exec(ctx,
		`INSERT INTO webhook_deliveries (webhook_id, event, payload, response_status, error, attempts, delivered_at)
		 VALUES ($1, $2, $3, $4, $5, 1, $6)`,
		req.WebhookID, req.Event, req.Payload, status, errText, deliveredAt,
	)
	if err != nil {
		slog.Error("failed to record webhook delivery", "error", err)
	}
}

// Sign returns the signature header value for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return fmt.Sprintf("sha256=%s", hex.EncodeToString(mac.Sum(nil)))
}

// Verify checks a signature header in constant time.
func Verify(payload []byte, secret, signature string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}
