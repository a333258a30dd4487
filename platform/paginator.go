package platform

import "time"

// InteractionWindow is how long page-flip controls stay valid after the
// paginated message is posted.
const InteractionWindow = 2 * time.Minute

// Paginator holds per-message page state for a paginated report. It is bound
// to a single posted message and expires after InteractionWindow.
type Paginator struct {
	pages   []Report
	current int
	expires time.Time
	now     func() time.Time
}

// NewPaginator builds page state over the given reports. Panics on empty
// pages would be unhelpful mid-command, so an empty input yields a single
// placeholder page.
func NewPaginator(pages []Report) *Paginator {
	return newPaginatorAt(pages, time.Now)
}

func newPaginatorAt(pages []Report, now func() time.Time) *Paginator {
	if len(pages) == 0 {
		pages = []Report{{Description: "Nothing to show."}}
	}
	return &Paginator{pages: pages, expires: now().Add(InteractionWindow), now: now}
}

// Current returns the page the message is showing.
func (p *Paginator) Current() Report { return p.pages[p.current] }

// Len returns the page count.
func (p *Paginator) Len() int { return len(p.pages) }

// Index returns the zero-based current page index.
func (p *Paginator) Index() int { return p.current }

// Expired reports whether the interaction window has closed.
func (p *Paginator) Expired() bool { return p.now().After(p.expires) }

// Next advances one page. The bool result is false when already on the last
// page or when the interaction window has closed.
func (p *Paginator) Next() (Report, bool) {
	if p.Expired() || p.current >= len(p.pages)-1 {
		return p.Current(), false
	}
	p.current++
	return p.Current(), true
}

// Prev goes back one page. The bool result is false when already on the
// first page or when the interaction window has closed.
func (p *Paginator) Prev() (Report, bool) {
	if p.Expired() || p.current <= 0 {
		return p.Current(), false
	}
	p.current--
	return p.Current(), true
}
