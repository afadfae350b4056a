// Package mailbox lists unprocessed newsletter mails and marks them
// processed once their promotions have all been handled.
package mailbox

import "context"

// Thread is one newsletter mail. HTML is preferred for extraction; Plain is
// the fallback when a sender ships text-only mails.
type Thread struct {
	ID      string
	Subject string
	HTML    string
	Plain   string
}

// Body returns the best extraction source for the thread.
func (t Thread) Body() string {
	if t.HTML != "" {
		return t.HTML
	}
	return t.Plain
}

// Source is a mailbox the pipeline can drain.
type Source interface {
	// ListUnprocessed returns up to limit unprocessed threads, oldest first.
	ListUnprocessed(ctx context.Context, limit int) ([]Thread, error)
	// MarkProcessed flags a thread so later runs skip it.
	MarkProcessed(ctx context.Context, id string) error
	Close() error
}
