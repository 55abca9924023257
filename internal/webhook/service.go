package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikhilbhutani/payrollflow/internal/models"
)

var (
	ErrNotFound        = errors.New("webhook not found")
	ErrUnknownEvent    = errors.New("unknown webhook event")
	ErrCompanyNotFound = errors.New("company not found")
)

// Events a webhook may subscribe to.
var Events = []string{models.EventPayrollApproved, models.EventPayrollPaid}

type Service struct {
	db         *pgxpool.Pool
	dispatcher *Dispatcher
}

func NewService(db *pgxpool.Pool, dispatcher *Dispatcher) *Service {
	return &Service{db: db, dispatcher: dispatcher}
}

type CreateRequest struct {
	URL    string   `json:"url" validate:"required,url"`
	Events []string `json:"events" validate:"required,min=1"`
}

func (s *Service) Create(ctx context.Context, companyID uuid.UUID, req CreateRequest) (*models.Webhook, error) {
	for _, ev := range req.Events {
		if !slices.Contains(Events, ev) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, ev)
		}
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	var wh models.Webhook
	err = s.db.QueryRow(ctx,
		`INSERT INTO webhooks (company_id, url, events, secret, is_active)
		 VALUES ($1, $2, $3, $4, true)
		 RETURNING id, company_id, url, events, is_active, created_at`,
		companyID, req.URL, req.Events, secret,
	).Scan(&wh.ID, &wh.CompanyID, &wh.URL, &wh.Events, &wh.IsActive, &wh.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert webhook: %w", insertError(err))
	}

	// Return secret only on creation
	wh.Secret = secret

	return &wh, nil
}

// insertError reports a webhook for a company that does not exist as
// ErrCompanyNotFound.
func insertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
		return ErrCompanyNotFound
	}
	return err
}

func (s *Service) List(ctx context.Context, companyID uuid.UUID) ([]models.Webhook, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, company_id, url, events, is_active, created_at
		 FROM webhooks WHERE company_id = $1 ORDER BY created_at DESC`,
		companyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	var webhooks []models.Webhook
	for rows.Next() {
		var wh models.Webhook
		if err := rows.Scan(&wh.ID, &wh.CompanyID, &wh.URL, &wh.Events, &wh.IsActive, &wh.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		webhooks = append(webhooks, wh)
	}
	return webhooks, rows.Err()
}

func (s *Service) Delete(ctx context.Context, companyID, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM webhooks WHERE id = $1 AND company_id = $2", id, companyID)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Dispatch queues event for every active webhook of the company subscribed
// to it and returns how many were queued.
func (s *Service) Dispatch(ctx context.Context, companyID uuid.UUID, event string, payload any) (int, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, url, secret FROM webhooks
		 WHERE company_id = $1 AND is_active = true AND $2 = ANY(events)`,
		companyID, event,
	)
	if err != nil {
		return 0, fmt.Errorf("find matching webhooks: %w", err)
	}
	defer rows.Close()

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal webhook payload: %w", err)
	}

	queued := 0
	for rows.Next() {
		var id uuid.UUID
		var url, secret string
		if err := rows.Scan(&id, &url, &secret); err != nil {
			return queued, fmt.Errorf("scan webhook: %w", err)
		}

		if s.dispatcher != nil && s.dispatcher.Enqueue(DeliveryRequest{
			WebhookID: id,
			URL:       url,
			Secret:    secret,
			Event:     event,
			Payload:   payloadJSON,
		}) {
			queued++
		}
	}
	return queued, rows.Err()
}

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(b), nil
}
