package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ldelaire/dealsniper/internal/dedup"
	"github.com/ldelaire/dealsniper/internal/extract"
	"github.com/ldelaire/dealsniper/internal/mailbox"
	"github.com/ldelaire/dealsniper/internal/models"
)

type fakeMail struct {
	mu      sync.Mutex
	threads []mailbox.Thread
	marked  map[string]bool
}

func (f *fakeMail) ListUnprocessed(ctx context.Context, limit int) ([]mailbox.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []mailbox.Thread
	for _, t := range f.threads {
		if !f.marked[t.ID] && len(out) < limit {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeMail) MarkProcessed(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.marked == nil {
		f.marked = make(map[string]bool)
	}
	f.marked[id] = true
	return nil
}

func (f *fakeMail) isMarked(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.marked[id]
}

type fakeFetcher struct {
	pages map[string]string
}

func (f *fakeFetcher) Get(ctx context.Context, url string) (int, string, error) {
	if body, ok := f.pages[url]; ok {
		return 200, body, nil
	}
	return 0, "", fmt.Errorf("no route to host")
}

type fakeStore struct {
	fail    bool
	upserts []*models.Deal
}

func (f *fakeStore) Upsert(ctx context.Context, d *models.Deal) error {
	if f.fail {
		return fmt.Errorf("store down")
	}
	f.upserts = append(f.upserts, d)
	return nil
}

type fakeNotifier struct {
	fail    bool
	sent    []*models.Deal
	indexes []int
}

func (f *fakeNotifier) SendDeal(deal *models.Deal, index int) error {
	if f.fail {
		return fmt.Errorf("telegram down")
	}
	f.sent = append(f.sent, deal)
	f.indexes = append(f.indexes, index)
	return nil
}

const twoDealsBody = `<p>Veuillez mettre le code : RCZFOX</p>` +
	`<p>Fourche Fox 36 / 389.99 € instead of 799.00 €</p>` +
	`<p>Roue DT Swiss / 299.00 € instead of 420.00 €</p>`

func newTestPipeline(t *testing.T, mail MailSource, store DealStore, notifier Notifier, maxItems int) (*Pipeline, *dedup.State) {
	t.Helper()

	extractor, err := extract.New(extract.Options{
		Lookahead:        4,
		LinkHostPatterns: []string{`rczbikeshop\.com`},
	})
	if err != nil {
		t.Fatalf("extract.New failed: %v", err)
	}

	keys, err := dedup.NewGenerator(
		[]string{`rczbikeshop\.com`}, []string{"utm_source"}, "fr", "https://www.rczbikeshop.com")
	if err != nil {
		t.Fatalf("NewGenerator failed: %v", err)
	}

	state := dedup.NewState(filepath.Join(t.TempDir(), "ledger.json"), 20, 150)

	pipe, err := New(Options{
		Mail:                mail,
		Fetcher:             &fakeFetcher{},
		Store:               store,
		Notifier:            notifier,
		Extractor:           extractor,
		Keys:                keys,
		State:               state,
		MaxThreadsPerRun:    5,
		MaxItemsPerThread:   maxItems,
		TitleMatchThreshold: 0.35,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return pipe, state
}

func TestRun_EmitsAndMarksThread(t *testing.T) {
	mail := &fakeMail{threads: []mailbox.Thread{{ID: "t1", Subject: "RCZ", HTML: twoDealsBody}}}
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	pipe, state := newTestPipeline(t, mail, store, notifier, 5)

	if err := pipe.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(notifier.sent) != 2 {
		t.Fatalf("Expected 2 deals sent, got %d", len(notifier.sent))
	}
	// Highest discount first: Fox at 51%, DT Swiss at 29%.
	if notifier.sent[0].Title != "Fourche Fox 36" {
		t.Errorf("Expected Fox deal first, got %q", notifier.sent[0].Title)
	}
	if notifier.indexes[0] != 1 || notifier.indexes[1] != 2 {
		t.Errorf("Expected indexes [1 2], got %v", notifier.indexes)
	}
	if notifier.sent[0].CouponCode != "RCZFOX" {
		t.Errorf("Expected sticky coupon code, got %q", notifier.sent[0].CouponCode)
	}
	if len(store.upserts) != 2 {
		t.Errorf("Expected 2 upserts, got %d", len(store.upserts))
	}
	if !mail.isMarked("t1") {
		t.Errorf("expected thread to be marked processed")
	}
	if !state.Threads.SeenValue("t1") {
		t.Errorf("expected thread id in ledger")
	}
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	mail := &fakeMail{threads: []mailbox.Thread{{ID: "t1", HTML: twoDealsBody}}}
	notifier := &fakeNotifier{}
	pipe, _ := newTestPipeline(t, mail, &fakeStore{}, notifier, 5)

	if err := pipe.Run(context.Background()); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	// Same promos arrive again under a new thread ID.
	mail.mu.Lock()
	mail.threads = append(mail.threads, mailbox.Thread{ID: "t2", HTML: twoDealsBody})
	mail.mu.Unlock()

	if err := pipe.Run(context.Background()); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	if len(notifier.sent) != 2 {
		t.Errorf("Expected no duplicate sends, got %d total", len(notifier.sent))
	}
	if !mail.isMarked("t2") {
		t.Errorf("expected duplicate thread to still be marked processed")
	}
}

func TestRun_BatchLimitResumesNextRun(t *testing.T) {
	mail := &fakeMail{threads: []mailbox.Thread{{ID: "t1", HTML: twoDealsBody}}}
	notifier := &fakeNotifier{}
	pipe, _ := newTestPipeline(t, mail, &fakeStore{}, notifier, 1)

	if err := pipe.Run(context.Background()); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("Expected 1 deal in first batch, got %d", len(notifier.sent))
	}
	if mail.isMarked("t1") {
		t.Errorf("expected thread to stay unprocessed while candidates remain")
	}

	if err := pipe.Run(context.Background()); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if len(notifier.sent) != 2 {
		t.Fatalf("Expected second batch to emit the remaining deal, got %d total", len(notifier.sent))
	}
	// Numbering continues across batches.
	if notifier.indexes[1] != 2 {
		t.Errorf("Expected resumed index 2, got %d", notifier.indexes[1])
	}
	if !mail.isMarked("t1") {
		t.Errorf("expected thread to be marked once drained")
	}
}

func TestRun_StoreFailureBlocksNotifyAndLedger(t *testing.T) {
	mail := &fakeMail{threads: []mailbox.Thread{{ID: "t1", HTML: twoDealsBody}}}
	store := &fakeStore{fail: true}
	notifier := &fakeNotifier{}
	pipe, state := newTestPipeline(t, mail, store, notifier, 5)

	if err := pipe.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(notifier.sent) != 0 {
		t.Errorf("Expected no sends when store fails, got %d", len(notifier.sent))
	}
	if state.Items.Len() != 0 {
		t.Errorf("Expected no recorded item keys, got %d", state.Items.Len())
	}

	// Store recovers: the same candidates go through on the next run.
	store.fail = false
	if err := pipe.Run(context.Background()); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if len(notifier.sent) != 2 {
		t.Errorf("Expected retried sends after recovery, got %d", len(notifier.sent))
	}
}

func TestRun_NotifyFailureBlocksLedger(t *testing.T) {
	mail := &fakeMail{threads: []mailbox.Thread{{ID: "t1", HTML: twoDealsBody}}}
	notifier := &fakeNotifier{fail: true}
	pipe, state := newTestPipeline(t, mail, &fakeStore{}, notifier, 5)

	if err := pipe.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if state.Items.Len() != 0 {
		t.Errorf("Expected no recorded item keys when notify fails, got %d", state.Items.Len())
	}

	notifier.fail = false
	if err := pipe.Run(context.Background()); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if len(notifier.sent) != 2 {
		t.Errorf("Expected retried sends after recovery, got %d", len(notifier.sent))
	}
}

func TestRun_ZeroPriceCandidateDroppedTerminally(t *testing.T) {
	body := `<p>Gants Fox / 0.00 € instead of 10.00 €</p>`
	mail := &fakeMail{threads: []mailbox.Thread{{ID: "t1", HTML: body}}}
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	pipe, state := newTestPipeline(t, mail, store, notifier, 5)

	if err := pipe.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(notifier.sent) != 0 || len(store.upserts) != 0 {
		t.Errorf("Expected unbuildable deal not to reach downstream, got %d sends, %d upserts",
			len(notifier.sent), len(store.upserts))
	}
	if !mail.isMarked("t1") {
		t.Errorf("expected thread to drain despite the dropped candidate")
	}
	if state.Items.Len() == 0 {
		t.Errorf("expected dropped candidate keys to be recorded")
	}

	// The same promo in a later mail is a known duplicate, not a fresh drop.
	mail.mu.Lock()
	mail.threads = append(mail.threads, mailbox.Thread{ID: "t2", HTML: body})
	mail.mu.Unlock()

	if err := pipe.Run(context.Background()); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if !mail.isMarked("t2") {
		t.Errorf("expected follow-up thread to drain")
	}
	if len(notifier.sent) != 0 {
		t.Errorf("Expected no sends on re-encounter, got %d", len(notifier.sent))
	}
}

func TestRun_DefaultClassification(t *testing.T) {
	mail := &fakeMail{threads: []mailbox.Thread{{ID: "t1", HTML: twoDealsBody}}}
	notifier := &fakeNotifier{}
	pipe, _ := newTestPipeline(t, mail, &fakeStore{}, notifier, 5)

	if err := pipe.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for _, deal := range notifier.sent {
		if deal.Category != "Autre" {
			t.Errorf("Expected neutral category without classifier, got %q", deal.Category)
		}
	}
}

func TestRun_OverlappingRunSkipped(t *testing.T) {
	mail := &fakeMail{threads: []mailbox.Thread{{ID: "t1", HTML: twoDealsBody}}}
	notifier := &fakeNotifier{}
	pipe, _ := newTestPipeline(t, mail, &fakeStore{}, notifier, 5)

	pipe.running.Store(true)
	if err := pipe.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Errorf("Expected overlapping run to do nothing, got %d sends", len(notifier.sent))
	}
	pipe.running.Store(false)
}
