package core

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Audit event kinds recorded for the auth surface.
const (
	AuditLoginSuccess    = "login_success"
	AuditLoginFailure    = "login_failure"
	AuditLogout          = "logout"
	AuditCSRFReject      = "csrf_reject"
	AuditValidateFailure = "validate_failure"
	AuditRegister        = "register"
)

// TaskAuditEvent is the asynq task type carrying one audit event.
const TaskAuditEvent = "audit:event"

// AuditEvent is the payload persisted by the audit worker.
type AuditEvent struct {
	Kind      string    `json:"kind"`
	Username  string    `json:"username,omitempty"`
	ClientIP  string    `json:"client_ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// AuditRecorder enqueues audit events without blocking the auth path.
// Enqueue failures are logged and dropped; auditing must never fail a
// login or logout.
type AuditRecorder struct {
	client *asynq.Client
}

// NewAuditRecorder builds a recorder on the given redis backend. A nil
// return (when redisURL is empty) disables auditing.
func NewAuditRecorder(redisURL string) (*AuditRecorder, error) {
	if redisURL == "" {
		return nil, nil
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, err
	}
	return &AuditRecorder{client: asynq.NewClient(opt)}, nil
}

// Record enqueues the event, stamping At when unset.
func (a *AuditRecorder) Record(ev AuditEvent) {
	if a == nil || a.client == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("marshal audit event: %v", err)
		return
	}
	if _, err := a.client.Enqueue(asynq.NewTask(TaskAuditEvent, payload), asynq.MaxRetry(3)); err != nil {
		log.Printf("enqueue audit event %s: %v", ev.Kind, err)
	}
}

// Close releases the underlying asynq client.
func (a *AuditRecorder) Close() error {
	if a == nil || a.client == nil {
		return nil
	}
	return a.client.Close()
}

// AuditSink persists audit events. The worker binary wires the postgres
// implementation.
type AuditSink interface {
	Write(ctx context.Context, ev AuditEvent) error
}

// PgAuditSink appends audit events to the audit_log table.
type PgAuditSink struct {
	db *pgxpool.Pool
}

func NewPgAuditSink(db *pgxpool.Pool) *PgAuditSink {
	return &PgAuditSink{db: db}
}

func (s *PgAuditSink) Write(ctx context.Context, ev AuditEvent) error {
	const q = `INSERT INTO audit_log (kind, username, client_ip, user_agent, detail, occurred_at) VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := s.db.Exec(ctx, q, ev.Kind, ev.Username, ev.ClientIP, ev.UserAgent, ev.Detail, ev.At)
	return err
}

// HandleAuditTask is the asynq handler run by cmd/auditworker.
func HandleAuditTask(sink AuditSink) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var ev AuditEvent
		if err := json.Unmarshal(t.Payload(), &ev); err != nil {
			// Malformed payloads are not retryable.
			log.Printf("drop malformed audit task: %v", err)
			return nil
		}
		return sink.Write(ctx, ev)
	}
}
