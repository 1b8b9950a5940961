package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"warelay/internal/domain"
	"warelay/internal/store"
	"warelay/internal/util"
)

const uniqueViolation = "23505"

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) Ping(ctx context.Context) error { return s.DB.Ping(ctx) }

func (s *Store) InsertMessage(ctx context.Context, in store.MessageInsert) error {
	var meta []byte
	if in.AttachmentsMeta != nil {
		b, err := json.Marshal(in.AttachmentsMeta)
		if err != nil {
			return fmt.Errorf("marshal attachments_meta: %w", err)
		}
		meta = b
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO messages (id, tenant_id, phone, direction, text, attachments_meta, external_msg_id, status, raw_payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, in.ID, in.TenantID, in.Phone, string(in.Direction), nullIfEmpty(in.Text), meta,
		nullIfEmpty(in.ExternalMsgID), nullIfEmpty(in.Status), nullIfEmpty(string(in.RawPayload)),
		util.FormatTime(in.CreatedAt))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return store.ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Store) UpdateStatusByExternalID(ctx context.Context, externalID, status string) (int64, error) {
	ct, err := s.DB.Exec(ctx, `UPDATE messages SET status=$2 WHERE external_msg_id=$1`, externalID, status)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func (s *Store) HasProcessedID(ctx context.Context, externalID string) (bool, error) {
	var one int
	err := s.DB.QueryRow(ctx, `SELECT 1 FROM processed_ids WHERE external_msg_id=$1`, externalID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// AddProcessedID reports false when the id was already recorded.
func (s *Store) AddProcessedID(ctx context.Context, externalID string, now time.Time) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		INSERT INTO processed_ids (external_msg_id, seen_at) VALUES ($1,$2)
		ON CONFLICT (external_msg_id) DO NOTHING
	`, externalID, util.FormatTime(now))
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// ListMessagesByPhone returns newest first. before is an exclusive created_at cursor.
func (s *Store) ListMessagesByPhone(ctx context.Context, phone string, limit int, before string) ([]store.Message, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if before != "" {
		rows, err = s.DB.Query(ctx, selectMessages+`
			WHERE phone=$1 AND created_at < $2 ORDER BY created_at DESC LIMIT $3
		`, phone, before, limit)
	} else {
		rows, err = s.DB.Query(ctx, selectMessages+`
			WHERE phone=$1 ORDER BY created_at DESC LIMIT $2
		`, phone, limit)
	}
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

// ListMessagesByTenant returns the oldest first, for replaying a conversation.
func (s *Store) ListMessagesByTenant(ctx context.Context, tenantID string, limit int) ([]store.Message, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT * FROM (`+selectMessages+`
			WHERE tenant_id=$1 ORDER BY created_at DESC LIMIT $2
		) recent ORDER BY created_at ASC
	`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

// ListConversation returns the latest limit messages between one tenant and
// one phone, oldest first.
func (s *Store) ListConversation(ctx context.Context, tenantID, phone string, limit int) ([]store.Message, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT * FROM (`+selectMessages+`
			WHERE tenant_id=$1 AND phone=$2 ORDER BY created_at DESC LIMIT $3
		) recent ORDER BY created_at ASC
	`, tenantID, phone, limit)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

func (s *Store) ListRecentContacts(ctx context.Context, limit int) ([]store.Contact, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT phone, tenant_id, MAX(created_at) AS last_message_at
		FROM messages
		GROUP BY phone, tenant_id
		ORDER BY last_message_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Contact
	for rows.Next() {
		var c store.Contact
		if err := rows.Scan(&c.Phone, &c.TenantID, &c.LastMessageAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const selectMessages = `
	SELECT id, tenant_id, phone, direction, COALESCE(text,'') AS text, attachments_meta,
	       COALESCE(external_msg_id,'') AS external_msg_id, COALESCE(status,'') AS status,
	       COALESCE(raw_payload,'') AS raw_payload, created_at
	FROM messages`

func scanMessages(rows pgx.Rows) ([]store.Message, error) {
	defer rows.Close()
	var out []store.Message
	for rows.Next() {
		var (
			m   store.Message
			dir string
		)
		if err := rows.Scan(&m.ID, &m.TenantID, &m.Phone, &dir, &m.Text, &m.AttachmentsMeta,
			&m.ExternalMsgID, &m.Status, &m.RawPayload, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Direction = domain.Direction(dir)
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
