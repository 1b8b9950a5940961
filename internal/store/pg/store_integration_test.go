//go:build integration

package pg

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"warelay/internal/domain"
	"warelay/internal/store"
)

func TestMessageLifecycle(t *testing.T) {
	ctx := context.Background()
	db, cleanup := setupTestDB(t)
	defer cleanup()
	s := New(db)

	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	err := s.InsertMessage(ctx, store.MessageInsert{
		ID: "m1", TenantID: "t1", Phone: "5511999990000", Direction: domain.DirectionOutbound,
		Text: "hi", ExternalMsgID: "wamid.ABC", Status: "sent", RawPayload: []byte(`{"messages":[{"id":"wamid.ABC"}]}`),
		CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	err = s.InsertMessage(ctx, store.MessageInsert{ID: "m2", TenantID: "t1", Phone: "x", Direction: domain.DirectionInbound, ExternalMsgID: "wamid.ABC", CreatedAt: now})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	n, err := s.UpdateStatusByExternalID(ctx, "wamid.ABC", "read")
	if err != nil || n != 1 {
		t.Fatalf("update rows=%d err=%v", n, err)
	}

	msgs, err := s.ListMessagesByPhone(ctx, "5511999990000", 10, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Status != "read" || msgs[0].CreatedAt != "2026-05-01T10:00:00.000Z" {
		t.Fatalf("unexpected rows %+v", msgs)
	}
}

func TestTemplateMetaRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, cleanup := setupTestDB(t)
	defer cleanup()
	s := New(db)

	tpl := domain.Template{Name: "hello_world", Language: domain.Language{Code: "en_US"}}
	if err := s.InsertMessage(ctx, store.MessageInsert{
		ID: "m1", TenantID: "t1", Phone: "p", Direction: domain.DirectionOutbound,
		AttachmentsMeta: map[string]any{"template": tpl}, CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	msgs, err := s.ListMessagesByTenant(ctx, "t1", 10)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("list: %v %d", err, len(msgs))
	}
	if len(msgs[0].AttachmentsMeta) == 0 {
		t.Fatalf("expected attachments_meta")
	}
}

func TestProcessedIDs(t *testing.T) {
	ctx := context.Background()
	db, cleanup := setupTestDB(t)
	defer cleanup()
	s := New(db)

	now := time.Now()
	if seen, err := s.HasProcessedID(ctx, "wamid.X"); err != nil || seen {
		t.Fatalf("seen=%v err=%v", seen, err)
	}
	if added, err := s.AddProcessedID(ctx, "wamid.X", now); err != nil || !added {
		t.Fatalf("added=%v err=%v", added, err)
	}
	if added, err := s.AddProcessedID(ctx, "wamid.X", now); err != nil || added {
		t.Fatalf("second add added=%v err=%v", added, err)
	}
	if seen, err := s.HasProcessedID(ctx, "wamid.X"); err != nil || !seen {
		t.Fatalf("seen=%v err=%v", seen, err)
	}
}

func TestPaginationAndContacts(t *testing.T) {
	ctx := context.Background()
	db, cleanup := setupTestDB(t)
	defer cleanup()
	s := New(db)

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := s.InsertMessage(ctx, store.MessageInsert{
			ID: fmt.Sprintf("m%d", i), TenantID: "t1", Phone: "p", Direction: domain.DirectionInbound,
			Text: fmt.Sprint(i), CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	page, err := s.ListMessagesByPhone(ctx, "p", 3, "")
	if err != nil || len(page) != 3 || page[0].Text != "4" {
		t.Fatalf("page1 %+v err=%v", page, err)
	}
	page, err = s.ListMessagesByPhone(ctx, "p", 3, page[2].CreatedAt)
	if err != nil || len(page) != 2 || page[0].Text != "1" {
		t.Fatalf("page2 %+v err=%v", page, err)
	}

	contacts, err := s.ListRecentContacts(ctx, 10)
	if err != nil || len(contacts) != 1 || contacts[0].LastMessageAt != "2026-05-01T10:00:00.004Z" {
		t.Fatalf("contacts %+v err=%v", contacts, err)
	}
}

func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	schema := fmt.Sprintf("test_%d", time.Now().UnixNano())
	admin, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect admin db: %v", err)
	}
	if _, err := admin.Exec(context.Background(), "CREATE SCHEMA "+schema); err != nil {
		admin.Close()
		t.Fatalf("create schema: %v", err)
	}

	u, err := url.Parse(dsn)
	if err != nil {
		admin.Close()
		t.Fatalf("parse dsn: %v", err)
	}
	q := u.Query()
	q.Set("options", "-c search_path="+schema)
	u.RawQuery = q.Encode()

	db, err := NewPool(context.Background(), u.String(), PoolOptions{MaxConns: 4})
	if err != nil {
		admin.Close()
		t.Fatalf("connect test db: %v", err)
	}
	if err := Migrate(context.Background(), db); err != nil {
		db.Close()
		admin.Close()
		t.Fatalf("run migrations: %v", err)
	}

	return db, func() {
		db.Close()
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		admin.Close()
	}
}

func TestListConversation(t *testing.T) {
	ctx := context.Background()
	db, cleanup := setupTestDB(t)
	defer cleanup()
	s := New(db)

	base := time.Now().UTC()
	for i, tenant := range []string{"t1", "t1", "t2", "t2"} {
		if err := s.InsertMessage(ctx, store.MessageInsert{
			ID: fmt.Sprintf("m%d", i), TenantID: tenant, Phone: "p", Direction: domain.DirectionInbound,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	msgs, err := s.ListConversation(ctx, "t1", "p", 2)
	if err != nil || len(msgs) != 2 {
		t.Fatalf("list: %v %d", err, len(msgs))
	}
	if msgs[0].ID != "m0" || msgs[1].ID != "m1" {
		t.Fatalf("order: %s %s", msgs[0].ID, msgs[1].ID)
	}
}
