// Package memory is a process-local message store for local runs and tests.
package memory

import (
	"cmp"
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"warelay/internal/store"
	"warelay/internal/util"
)

type Store struct {
	mu        sync.Mutex
	messages  []store.Message
	external  map[string]int
	processed map[string]string
}

func New() *Store {
	return &Store{
		external:  make(map[string]int),
		processed: make(map[string]string),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) InsertMessage(_ context.Context, in store.MessageInsert) error {
	m := store.Message{
		ID:            in.ID,
		TenantID:      in.TenantID,
		Phone:         in.Phone,
		Direction:     in.Direction,
		Text:          in.Text,
		ExternalMsgID: in.ExternalMsgID,
		Status:        in.Status,
		RawPayload:    string(in.RawPayload),
		CreatedAt:     util.FormatTime(in.CreatedAt),
	}
	if in.AttachmentsMeta != nil {
		b, err := json.Marshal(in.AttachmentsMeta)
		if err != nil {
			return err
		}
		m.AttachmentsMeta = b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ExternalMsgID != "" {
		if _, ok := s.external[m.ExternalMsgID]; ok {
			return store.ErrDuplicate
		}
		s.external[m.ExternalMsgID] = len(s.messages)
	}
	s.messages = append(s.messages, m)
	return nil
}

func (s *Store) UpdateStatusByExternalID(_ context.Context, externalID, status string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.external[externalID]
	if !ok {
		return 0, nil
	}
	s.messages[i].Status = status
	return 1, nil
}

func (s *Store) HasProcessedID(_ context.Context, externalID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[externalID]
	return ok, nil
}

func (s *Store) AddProcessedID(_ context.Context, externalID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processed[externalID]; ok {
		return false, nil
	}
	s.processed[externalID] = util.FormatTime(now)
	return true, nil
}

func (s *Store) ListMessagesByPhone(_ context.Context, phone string, limit int, before string) ([]store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Message
	for _, m := range s.messages {
		if m.Phone != phone || (before != "" && m.CreatedAt >= before) {
			continue
		}
		out = append(out, m)
	}
	slices.SortStableFunc(out, func(a, b store.Message) int { return cmp.Compare(b.CreatedAt, a.CreatedAt) })
	return head(out, limit), nil
}

func (s *Store) ListMessagesByTenant(_ context.Context, tenantID string, limit int) ([]store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Message
	for _, m := range s.messages {
		if m.TenantID == tenantID {
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, func(a, b store.Message) int { return cmp.Compare(a.CreatedAt, b.CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *Store) ListConversation(_ context.Context, tenantID, phone string, limit int) ([]store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Message
	for _, m := range s.messages {
		if m.TenantID == tenantID && m.Phone == phone {
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, func(a, b store.Message) int { return cmp.Compare(a.CreatedAt, b.CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *Store) ListRecentContacts(_ context.Context, limit int) ([]store.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type k struct{ phone, tenant string }
	last := map[k]string{}
	for _, m := range s.messages {
		key := k{m.Phone, m.TenantID}
		if m.CreatedAt > last[key] {
			last[key] = m.CreatedAt
		}
	}
	out := make([]store.Contact, 0, len(last))
	for key, at := range last {
		out = append(out, store.Contact{Phone: key.phone, TenantID: key.tenant, LastMessageAt: at})
	}
	slices.SortFunc(out, func(a, b store.Contact) int { return cmp.Compare(b.LastMessageAt, a.LastMessageAt) })
	return head(out, limit), nil
}

// Messages returns a copy of every stored row in insert order.
func (s *Store) Messages() []store.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

func head[T any](in []T, limit int) []T {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}
