package mailbox

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"

	"github.com/ldelaire/dealsniper/internal/config"
	"github.com/ldelaire/dealsniper/internal/logger"
)

// IMAPSource reads newsletter mails over IMAP. Processed mails are marked
// with \Flagged rather than \Seen so that a human reading the mailbox does
// not silently unmark them.
type IMAPSource struct {
	client *client.Client
	folder string
}

// DialIMAP connects, authenticates, and selects the configured folder.
func DialIMAP(cfg config.MailboxConfig) (*IMAPSource, error) {
	c, err := client.DialTLS(cfg.Address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial IMAP server: %w", err)
	}

	if err := c.Login(cfg.Username, cfg.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("failed to login: %w", err)
	}

	if _, err := c.Select(cfg.Folder, false); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("failed to select folder %q: %w", cfg.Folder, err)
	}

	return &IMAPSource{client: c, folder: cfg.Folder}, nil
}

// ListUnprocessed returns up to limit unflagged mails, oldest first.
func (s *IMAPSource) ListUnprocessed(ctx context.Context, limit int) ([]Thread, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.FlaggedFlag}

	uids, err := s.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search mailbox: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}
	if limit > 0 && len(uids) > limit {
		uids = uids[:limit]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqset, items, messages)
	}()

	var threads []Thread
	for msg := range messages {
		select {
		case <-ctx.Done():
			<-done
			return nil, ctx.Err()
		default:
		}

		thread, err := buildThread(msg, section)
		if err != nil {
			logger.Warn("mailbox: skipping mail uid %d: %v", msg.Uid, err)
			continue
		}
		threads = append(threads, thread)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch mails: %w", err)
	}
	return threads, nil
}

// buildThread parses one fetched message into a Thread, collecting the
// text/html and text/plain inline parts.
func buildThread(msg *imap.Message, section *imap.BodySectionName) (Thread, error) {
	body := msg.GetBody(section)
	if body == nil {
		return Thread{}, fmt.Errorf("server returned no body")
	}

	mr, err := mail.CreateReader(body)
	if err != nil {
		return Thread{}, fmt.Errorf("failed to parse mail: %w", err)
	}

	thread := Thread{ID: strconv.FormatUint(uint64(msg.Uid), 10)}
	if msg.Envelope != nil {
		thread.Subject = msg.Envelope.Subject
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Thread{}, fmt.Errorf("failed to read mail part: %w", err)
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, err := h.ContentType()
		if err != nil {
			continue
		}

		data, err := io.ReadAll(p.Body)
		if err != nil {
			return Thread{}, fmt.Errorf("failed to read mail body: %w", err)
		}

		switch contentType {
		case "text/html":
			if thread.HTML == "" {
				thread.HTML = string(data)
			}
		case "text/plain":
			if thread.Plain == "" {
				thread.Plain = string(data)
			}
		}
	}

	if thread.HTML == "" && thread.Plain == "" {
		return Thread{}, fmt.Errorf("mail has no text part")
	}
	return thread, nil
}

// MarkProcessed flags a mail by its UID.
func (s *IMAPSource) MarkProcessed(ctx context.Context, id string) error {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return fmt.Errorf("thread id %q is not a UID: %w", id, err)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(uid))

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.FlaggedFlag}
	if err := s.client.UidStore(seqset, item, flags, nil); err != nil {
		return fmt.Errorf("failed to flag mail: %w", err)
	}
	return nil
}

// Close logs out of the server.
func (s *IMAPSource) Close() error {
	return s.client.Logout()
}
