package notifications

import (
	"context"
	"slices"
	"sync"
)

// MemoryStorage keeps notifications in process memory.
// Suitable for development and testing.
type MemoryStorage struct {
	mu            sync.RWMutex
	notifications map[string][]Notification // userID -> oldest first
	unread        map[string]int
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		notifications: make(map[string][]Notification),
		unread:        make(map[string]int),
	}
}

func (s *MemoryStorage) Insert(_ context.Context, userID string, notifs []Notification) error {
	if userID == "" {
		return ErrUserIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range notifs {
		if n.UserID != userID {
			return ErrUserIDRequired
		}
	}

	for _, n := range notifs {
		s.notifications[userID] = append(s.notifications[userID], n)
		if !n.Read {
			s.unread[userID]++
		}
	}
	return nil
}

func (s *MemoryStorage) Get(_ context.Context, userID, id string) (Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.notifications[userID] {
		if n.ID == id {
			return n, nil
		}
	}
	return Notification{}, ErrNotificationNotFound
}

func (s *MemoryStorage) List(_ context.Context, userID string, opts ListOptions) ([]Notification, int, error) {
	opts = opts.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.notifications[userID]
	matched := make([]Notification, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		n := all[i]
		if opts.Type != "" && n.Type != opts.Type {
			continue
		}
		if opts.Read != nil && n.Read != *opts.Read {
			continue
		}
		matched = append(matched, n)
	}

	total := len(matched)
	start := min(opts.Offset(), total)
	end := min(start+opts.Limit, total)
	return slices.Clone(matched[start:end]), total, nil
}

func (s *MemoryStorage) MarkRead(_ context.Context, userID string, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	list := s.notifications[userID]
	for i := range list {
		if !list[i].Read && slices.Contains(ids, list[i].ID) {
			list[i].Read = true
			changed++
		}
	}
	s.unread[userID] = max(s.unread[userID]-changed, 0)
	return changed, nil
}

func (s *MemoryStorage) MarkAllRead(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	list := s.notifications[userID]
	for i := range list {
		if !list[i].Read {
			list[i].Read = true
			changed++
		}
	}
	s.unread[userID] = 0
	return changed, nil
}

func (s *MemoryStorage) Delete(_ context.Context, userID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.notifications[userID]
	i := slices.IndexFunc(list, func(n Notification) bool { return n.ID == id })
	if i < 0 {
		return false, ErrNotificationNotFound
	}

	wasUnread := !list[i].Read
	s.notifications[userID] = slices.Delete(list, i, i+1)
	if wasUnread {
		s.unread[userID] = max(s.unread[userID]-1, 0)
	}
	return wasUnread, nil
}

func (s *MemoryStorage) UnreadCount(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread[userID], nil
}

func (s *MemoryStorage) Recount(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, notif := range s.notifications[userID] {
		if !notif.Read {
			n++
		}
	}
	s.unread[userID] = n
	return n, nil
}

var _ Storage = (*MemoryStorage)(nil)
