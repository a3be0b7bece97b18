package notifications

import (
	"context"
	"fmt"
)

// Storage persists notifications and the per-user unread counter.
//
// Every mutating method keeps rows and counter together in one atomic unit.
// The counter is maintained incrementally; Recount rebuilds it from rows.
type Storage interface {
	// Insert stores notifs for userID and adds the unread ones to the counter.
	Insert(ctx context.Context, userID string, notifs []Notification) error

	// Get returns one notification or ErrNotificationNotFound.
	Get(ctx context.Context, userID, id string) (Notification, error)

	// List returns one page, newest first, and the total number of matches.
	List(ctx context.Context, userID string, opts ListOptions) ([]Notification, int, error)

	// MarkRead marks the given notifications read and decrements the counter
	// by the number that were unread. It returns that number.
	MarkRead(ctx context.Context, userID string, ids []string) (int, error)

	// MarkAllRead marks every notification read and resets the counter to 0.
	MarkAllRead(ctx context.Context, userID string) (int, error)

	// Delete removes one notification and reports whether it was unread.
	Delete(ctx context.Context, userID, id string) (bool, error)

	// UnreadCount returns the counter.
	UnreadCount(ctx context.Context, userID string) (int, error)

	// Recount sets the counter to the number of unread rows and returns it.
	Recount(ctx context.Context, userID string) (int, error)
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
	// MaxPage bounds the page number so the row offset cannot overflow.
	MaxPage = 10000
)

// ListOptions filters and pages a list call. Page starts at 1.
type ListOptions struct {
	Page  int
	Limit int
	Type  Type
	// Read filters by read state when set.
	Read *bool
}

// Normalize clamps Page and Limit into their valid ranges.
func (o ListOptions) Normalize() ListOptions {
	o.Page = min(max(o.Page, 1), MaxPage)
	if o.Limit < 1 {
		o.Limit = DefaultPageLimit
	}
	o.Limit = min(o.Limit, MaxPageLimit)
	return o
}

// Offset is the number of rows skipped before the page.
// Page and Limit are clamped first.
func (o ListOptions) Offset() int {
	n := o.Normalize()
	return (n.Page - 1) * n.Limit
}

// cacheKey identifies the options inside a user's cached pages.
func (o ListOptions) cacheKey() string {
	read := "any"
	if o.Read != nil {
		read = fmt.Sprint(*o.Read)
	}
	return fmt.Sprintf("%d:%d:%s:%s", o.Page, o.Limit, o.Type, read)
}

// Pagination describes where a page sits in the full result.
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasMore    bool `json:"hasMore"`
}

// Page is the result of Pipeline.List.
type Page struct {
	Items      []Notification `json:"items"`
	Pagination Pagination     `json:"pagination"`
}

func newPage(items []Notification, total int, opts ListOptions) Page {
	if items == nil {
		items = []Notification{}
	}
	pages := (total + opts.Limit - 1) / opts.Limit
	return Page{
		Items: items,
		Pagination: Pagination{
			Page:       opts.Page,
			Limit:      opts.Limit,
			Total:      total,
			TotalPages: pages,
			HasMore:    opts.Page < pages,
		},
	}
}
