package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vincentmworia/GreenhouseIOT/internal/infrastructure/mqtt"
)

// timeLayout is fixed-width so occurred_at sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Page size bounds for List.
const (
	defaultLimit = 50
	maxLimit     = 500
)

// Entry is one persisted session lifecycle event.
type Entry struct {
	ID         string          `json:"id"`
	Kind       mqtt.EventKind  `json:"kind"`
	ClientID   string          `json:"client_id"`
	ReasonCode mqtt.ReasonCode `json:"reason_code"`
	Reason     string          `json:"reason,omitempty"`
	Clean      bool            `json:"clean"`
	Topic      string          `json:"topic,omitempty"`
	Error      string          `json:"error,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// EntryFromEvent converts a session event into its journal form.
func EntryFromEvent(ev mqtt.Event) Entry {
	e := Entry{
		ID:         ev.ID,
		Kind:       ev.Kind,
		ClientID:   ev.ClientID,
		ReasonCode: ev.Reason,
		Clean:      ev.Clean,
		Topic:      ev.Topic,
		OccurredAt: ev.Time,
	}
	if ev.Reason != mqtt.ReasonSuccess {
		e.Reason = ev.Reason.String()
	}
	if ev.Err != nil {
		e.Error = ev.Err.Error()
	}
	return e
}

// Filter controls which entries List returns.
type Filter struct {
	Kind     mqtt.EventKind // optional
	ClientID string         // optional
	Since    time.Time      // optional: only entries at or after this instant
	Limit    int            // default 50, max 500
	Offset   int
}

// ListResult is one page of journal entries, most recent first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository defines the journal storage operations.
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores entries in the session_events table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a journal repository on an open database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an entry. The ID and OccurredAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_events (id, kind, client_id, reason_code, reason, clean, topic, error, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, string(entry.Kind), entry.ClientID,
		int(entry.ReasonCode), entry.Reason, boolToInt(entry.Clean),
		entry.Topic, entry.Error,
		entry.OccurredAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting session event: %w", err)
	}

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// List returns entries matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.ClientID != "" {
		conditions = append(conditions, "client_id = ?")
		args = append(args, filter.ClientID)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "occurred_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM session_events %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting session events: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		`SELECT id, kind, client_id, reason_code, reason, clean, topic, error, occurred_at
		 FROM session_events %s ORDER BY occurred_at DESC, id DESC LIMIT ? OFFSET ?`,
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying session events: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e          Entry
			kind       string
			reasonCode int
			clean      int
			occurredAt string
		)
		if err := rows.Scan(&e.ID, &kind, &e.ClientID, &reasonCode, &e.Reason,
			&clean, &e.Topic, &e.Error, &occurredAt); err != nil {
			return nil, fmt.Errorf("scanning session event: %w", err)
		}

		e.Kind = mqtt.EventKind(kind)
		e.ReasonCode = mqtt.ReasonCode(reasonCode) // #nosec G115 -- stored from a byte
		e.Clean = clean != 0

		t, err := time.Parse(timeLayout, occurredAt)
		if err != nil {
			return nil, fmt.Errorf("parsing session event timestamp %q: %w", occurredAt, err)
		}
		e.OccurredAt = t

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session events: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
