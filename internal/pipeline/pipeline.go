// Package pipeline orchestrates one end-to-end processing run: drain
// unprocessed newsletter mails, extract promo candidates, suppress
// duplicates against the persisted ledger, enrich and classify the
// survivors, persist them, notify, and record their identity keys.
//
// The ordering inside a run is deliberate. A candidate's keys are recorded
// only after its deal has been stored and notified, so a crash or a
// downstream failure leaves the candidate eligible for the next run instead
// of silently swallowing it. Candidates that can never yield a valid deal
// are the one exception: their keys are recorded without delivery so they
// stop occupying their thread. The ledger is saved after every recorded
// candidate for the same reason.
package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ldelaire/dealsniper/internal/dedup"
	"github.com/ldelaire/dealsniper/internal/enrich"
	"github.com/ldelaire/dealsniper/internal/extract"
	"github.com/ldelaire/dealsniper/internal/logger"
	"github.com/ldelaire/dealsniper/internal/mailbox"
	"github.com/ldelaire/dealsniper/internal/models"
)

// MailSource lists and flags newsletter mails.
type MailSource interface {
	ListUnprocessed(ctx context.Context, limit int) ([]mailbox.Thread, error)
	MarkProcessed(ctx context.Context, id string) error
}

// PageFetcher retrieves product pages.
type PageFetcher interface {
	Get(ctx context.Context, url string) (int, string, error)
}

// Classifier labels a deal. Implementations degrade to a neutral result.
type Classifier interface {
	Classify(ctx context.Context, title, description string) (models.Classification, error)
}

// DealStore persists deals.
type DealStore interface {
	Upsert(ctx context.Context, d *models.Deal) error
}

// Notifier delivers a deal to its audience.
type Notifier interface {
	SendDeal(deal *models.Deal, index int) error
}

// Options configures a Pipeline. Classifier, Store and Notifier may be nil;
// the corresponding stage is skipped.
type Options struct {
	Mail       MailSource
	Fetcher    PageFetcher
	Classifier Classifier
	Store      DealStore
	Notifier   Notifier

	Extractor *extract.Extractor
	Keys      *dedup.Generator
	State     *dedup.State

	MaxThreadsPerRun    int
	MaxItemsPerThread   int
	Throttle            time.Duration
	TitleMatchThreshold float64
}

// Pipeline executes runs. A Pipeline is safe for concurrent Run calls;
// overlapping runs are rejected, not queued.
type Pipeline struct {
	opts    Options
	running atomic.Bool
}

// New creates a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Mail == nil {
		return nil, fmt.Errorf("mail source is required")
	}
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("page fetcher is required")
	}
	if opts.Extractor == nil || opts.Keys == nil || opts.State == nil {
		return nil, fmt.Errorf("extractor, key generator and state are required")
	}
	if opts.MaxThreadsPerRun <= 0 {
		opts.MaxThreadsPerRun = 1
	}
	if opts.MaxItemsPerThread <= 0 {
		opts.MaxItemsPerThread = 5
	}
	return &Pipeline{opts: opts}, nil
}

// Run executes one pipeline pass. If a previous run is still active the
// call returns immediately without doing anything.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		logger.Warn("pipeline: previous run still active, skipping")
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("pipeline: run panicked: %v", r)
		}
		p.running.Store(false)
	}()

	threads, err := p.opts.Mail.ListUnprocessed(ctx, p.opts.MaxThreadsPerRun)
	if err != nil {
		return fmt.Errorf("failed to list unprocessed mails: %w", err)
	}
	if len(threads) == 0 {
		logger.Debug("pipeline: no unprocessed mails")
		return nil
	}

	for _, thread := range threads {
		if err := ctx.Err(); err != nil {
			return err
		}

		if p.opts.State.Threads.SeenValue(thread.ID) {
			// Already fully handled; only the mailbox flag is missing.
			if err := p.opts.Mail.MarkProcessed(ctx, thread.ID); err != nil {
				logger.Warn("pipeline: failed to re-flag thread %s: %v", thread.ID, err)
			}
			continue
		}

		if err := p.processThread(ctx, thread); err != nil {
			logger.Error("pipeline: thread %s failed: %v", thread.ID, err)
		}
	}

	if err := p.opts.State.Save(); err != nil {
		logger.Error("pipeline: failed to save ledger: %v", err)
	}
	return nil
}

// processThread handles one newsletter mail. Candidates are ranked by
// discount and emitted in bounded batches; the thread is marked processed
// only once no unemitted candidate remains.
func (p *Pipeline) processThread(ctx context.Context, thread mailbox.Thread) error {
	logger.Info("pipeline: processing thread %s (%s)", thread.ID, thread.Subject)

	promos := p.opts.Extractor.Extract(thread.Body())
	if len(promos) == 0 {
		logger.Info("pipeline: thread %s yielded no candidates", thread.ID)
		return p.finishThread(ctx, thread.ID)
	}

	sort.SliceStable(promos, func(i, j int) bool {
		return promos[i].DiscountPercent > promos[j].DiscountPercent
	})

	// Candidates already in the ledger still advance the numbering, so a
	// deal keeps its position across resumed batches.
	sentBefore := 0
	var unsent []models.Promo
	for i := range promos {
		if p.opts.State.Items.Seen(p.opts.Keys.PreKeys(&promos[i])) {
			sentBefore++
			continue
		}
		unsent = append(unsent, promos[i])
	}

	batch := unsent
	if len(batch) > p.opts.MaxItemsPerThread {
		batch = batch[:p.opts.MaxItemsPerThread]
	}
	logger.Info("pipeline: thread %s: %d candidates, %d already sent, emitting %d",
		thread.ID, len(promos), sentBefore, len(batch))

	failed := 0
	for n := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}

		promo := &batch[n]
		index := sentBefore + n + 1

		outcome := p.processCandidate(ctx, promo, index)
		if outcome == candidateFailed {
			failed++
			continue
		}

		// Delivered and terminally dropped candidates both get their keys
		// recorded; a dropped candidate would otherwise be re-extracted
		// and re-dropped on every run.
		p.opts.State.Items.Record(p.opts.Keys.PostKeys(promo))
		if err := p.opts.State.Save(); err != nil {
			logger.Error("pipeline: failed to save ledger after candidate: %v", err)
		}
		if outcome == candidateDelivered {
			p.throttle(ctx)
		}
	}

	// Unemitted candidates, whether over the batch limit or failed
	// downstream, keep the thread open so the next run retries them.
	if remaining := len(unsent) - len(batch) + failed; remaining > 0 {
		logger.Info("pipeline: thread %s: %d candidates left for next run", thread.ID, remaining)
		return nil
	}
	return p.finishThread(ctx, thread.ID)
}

// finishThread flags the mail and records the thread ID.
func (p *Pipeline) finishThread(ctx context.Context, id string) error {
	if err := p.opts.Mail.MarkProcessed(ctx, id); err != nil {
		return fmt.Errorf("failed to mark thread processed: %w", err)
	}
	p.opts.State.Threads.RecordValue(id)
	if err := p.opts.State.Save(); err != nil {
		logger.Error("pipeline: failed to save ledger after thread: %v", err)
	}
	return nil
}

// candidateOutcome distinguishes retryable downstream failures from
// terminal decisions about a candidate.
type candidateOutcome int

const (
	// candidateDelivered means every enabled downstream stage succeeded.
	candidateDelivered candidateOutcome = iota
	// candidateDropped means the candidate can never become a valid deal;
	// retrying it is pointless.
	candidateDropped
	// candidateFailed means a downstream stage failed transiently and the
	// candidate should be retried on a later run.
	candidateFailed
)

// processCandidate enriches, classifies, stores and notifies one candidate.
// Only candidateFailed keeps the candidate eligible for retry; the other
// outcomes are final and lead to its keys being recorded.
func (p *Pipeline) processCandidate(ctx context.Context, promo *models.Promo, index int) candidateOutcome {
	p.enrichCandidate(ctx, promo)
	p.classifyCandidate(ctx, promo)

	deal := p.buildDeal(promo)
	if err := deal.Validate(); err != nil {
		logger.Warn("pipeline: dropping unbuildable deal for %q: %v",
			promo.RawDescription, err)
		return candidateDropped
	}

	if p.opts.Store != nil {
		if err := p.opts.Store.Upsert(ctx, deal); err != nil {
			logger.Error("pipeline: failed to store deal %s: %v", deal.ID, err)
			return candidateFailed
		}
	}

	if p.opts.Notifier != nil {
		if err := p.opts.Notifier.SendDeal(deal, index); err != nil {
			logger.Error("pipeline: failed to notify deal %s: %v", deal.ID, err)
			return candidateFailed
		}
	}

	logger.Info("pipeline: emitted deal %s (%d%% off)", deal.ID, deal.DiscountPercent)
	return candidateDelivered
}

// enrichCandidate resolves the product page. Failures degrade: the
// candidate keeps its mail-derived fields and its link doubles as the
// canonical URL.
func (p *Pipeline) enrichCandidate(ctx context.Context, promo *models.Promo) {
	fetchURL := promo.Link
	if p.opts.Keys.IsStoreLink(fetchURL) {
		if norm, ok := p.opts.Keys.NormalizeStoreURL(fetchURL); ok {
			fetchURL = norm
		}
	}
	promo.Canonical = fetchURL
	if fetchURL == "" {
		return
	}

	status, body, err := p.opts.Fetcher.Get(ctx, fetchURL)
	if err != nil {
		logger.Warn("pipeline: fetch failed for %s: %v", fetchURL, err)
		return
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		logger.Warn("pipeline: fetch for %s returned status %d", fetchURL, status)
		return
	}

	meta := enrich.ScrapeMeta(body, fetchURL)
	if meta.Canonical != "" {
		promo.Canonical = meta.Canonical
	}
	promo.Title = meta.Title
	promo.PageDescription = meta.Description
	promo.Image = meta.Image

	score := enrich.TitleMatchScore(promo.RawDescription, meta.Title)
	if promo.Image != "" && score < p.opts.TitleMatchThreshold {
		logger.Debug("pipeline: title match %.2f below threshold, dropping image for %q",
			score, promo.RawDescription)
		promo.Image = ""
	}
}

// classifyCandidate labels the candidate. A failed or disabled classifier
// yields the neutral category.
func (p *Pipeline) classifyCandidate(ctx context.Context, promo *models.Promo) {
	if p.opts.Classifier == nil {
		promo.Classification = models.Classification{Usage: "Autre"}
		return
	}

	title := promo.Title
	if title == "" {
		title = promo.RawDescription
	}
	cls, err := p.opts.Classifier.Classify(ctx, title, promo.PageDescription)
	if err != nil {
		logger.Warn("pipeline: classification failed for %q: %v", title, err)
	}
	promo.Classification = cls
}

// buildDeal assembles the persistable record. Identity falls back from
// canonical URL to raw link to content key.
func (p *Pipeline) buildDeal(promo *models.Promo) *models.Deal {
	id := promo.Canonical
	if id == "" {
		id = promo.Link
	}
	if id == "" {
		if key, ok := dedup.ContentKey(promo); ok {
			id = key
		}
	}

	url := promo.Canonical
	if url == "" {
		url = promo.Link
	}

	title := promo.Title
	if title == "" {
		title = promo.RawDescription
	}

	return &models.Deal{
		ID:              id,
		Title:           title,
		URL:             url,
		PriceCurrent:    promo.PriceNew,
		PriceOriginal:   promo.PriceOld,
		DiscountPercent: promo.DiscountPercent,
		CouponCode:      promo.CouponCode,
		Category:        promo.Classification.Usage,
		ItemType:        promo.Classification.Type,
		Description:     promo.PageDescription,
		Summary:         promo.Classification.Summary,
		Image:           promo.Image,
		Token:           uuid.NewString(),
		Available:       true,
	}
}

func (p *Pipeline) throttle(ctx context.Context) {
	if p.opts.Throttle <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(p.opts.Throttle):
	}
}
