package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"warelay/internal/domain"
	"warelay/internal/store"
)

var t0 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func insert(t *testing.T, s *Store, id, phone, ext string, at time.Time) {
	t.Helper()
	err := s.InsertMessage(context.Background(), store.MessageInsert{
		ID: id, TenantID: "t1", Phone: phone, Direction: domain.DirectionOutbound,
		Text: id, ExternalMsgID: ext, Status: "sent", CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("insert %s: %v", id, err)
	}
}

func TestDuplicateExternalID(t *testing.T) {
	s := New()
	insert(t, s, "m1", "p", "wamid.1", t0)
	err := s.InsertMessage(context.Background(), store.MessageInsert{ID: "m2", ExternalMsgID: "wamid.1", CreatedAt: t0})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	// rows without an external id never collide
	insert(t, s, "m3", "p", "", t0)
	insert(t, s, "m4", "p", "", t0)
}

func TestProcessedIDs(t *testing.T) {
	s := New()
	ctx := context.Background()
	if seen, _ := s.HasProcessedID(ctx, "x"); seen {
		t.Fatalf("unexpected seen")
	}
	if added, _ := s.AddProcessedID(ctx, "x", t0); !added {
		t.Fatalf("first add should report true")
	}
	if added, _ := s.AddProcessedID(ctx, "x", t0); added {
		t.Fatalf("second add should report false")
	}
	if seen, _ := s.HasProcessedID(ctx, "x"); !seen {
		t.Fatalf("expected seen")
	}
}

func TestUpdateStatus(t *testing.T) {
	s := New()
	insert(t, s, "m1", "p", "wamid.1", t0)
	n, _ := s.UpdateStatusByExternalID(context.Background(), "wamid.1", "read")
	if n != 1 {
		t.Fatalf("rows=%d", n)
	}
	if n, _ := s.UpdateStatusByExternalID(context.Background(), "wamid.none", "read"); n != 0 {
		t.Fatalf("rows=%d", n)
	}
	if got := s.Messages()[0].Status; got != "read" {
		t.Fatalf("status=%s", got)
	}
}

func TestListMessagesByPhonePagination(t *testing.T) {
	s := New()
	for i, id := range []string{"a", "b", "c", "d"} {
		insert(t, s, id, "p", "", t0.Add(time.Duration(i)*time.Second))
	}
	insert(t, s, "other", "q", "", t0)

	page, _ := s.ListMessagesByPhone(context.Background(), "p", 2, "")
	if len(page) != 2 || page[0].ID != "d" || page[1].ID != "c" {
		t.Fatalf("unexpected first page %+v", page)
	}
	page, _ = s.ListMessagesByPhone(context.Background(), "p", 10, page[1].CreatedAt)
	if len(page) != 2 || page[0].ID != "b" || page[1].ID != "a" {
		t.Fatalf("unexpected second page %+v", page)
	}
}

func TestListRecentContacts(t *testing.T) {
	s := New()
	insert(t, s, "a", "p", "", t0)
	insert(t, s, "b", "q", "", t0.Add(time.Minute))
	insert(t, s, "c", "p", "", t0.Add(2*time.Minute))

	got, _ := s.ListRecentContacts(context.Background(), 10)
	if len(got) != 2 || got[0].Phone != "p" || got[1].Phone != "q" {
		t.Fatalf("unexpected contacts %+v", got)
	}
	if got[0].LastMessageAt != "2026-05-01T10:02:00.000Z" {
		t.Fatalf("last_message_at=%s", got[0].LastMessageAt)
	}
}

func TestListConversationScopesTenantBeforeLimit(t *testing.T) {
	s := New()
	ctx := context.Background()
	insert(t, s, "a", "p", "", t0)
	insert(t, s, "b", "p", "", t0.Add(time.Second))
	for i, id := range []string{"x", "y", "z"} {
		err := s.InsertMessage(ctx, store.MessageInsert{
			ID: id, TenantID: "t2", Phone: "p", Direction: domain.DirectionInbound,
			CreatedAt: t0.Add(time.Duration(10+i) * time.Second),
		})
		if err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}

	got, _ := s.ListConversation(ctx, "t1", "p", 2)
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("unexpected conversation %+v", got)
	}
	got, _ = s.ListConversation(ctx, "t2", "p", 2)
	if len(got) != 2 || got[0].ID != "y" || got[1].ID != "z" {
		t.Fatalf("unexpected tail %+v", got)
	}
}
