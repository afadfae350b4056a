package store

import (
	"context"
	"fmt"

	"github.com/ldelaire/dealsniper/internal/models"
)

// DealStore persists deals using PostgreSQL.
type DealStore struct {
	pool *Pool
}

// NewDealStore creates a new DealStore.
func NewDealStore(pool *Pool) *DealStore {
	return &DealStore{pool: pool}
}

// Upsert inserts a deal or refreshes an existing row with the same ID. A
// re-run that resolves the same canonical URL must not produce a second row.
func (s *DealStore) Upsert(ctx context.Context, d *models.Deal) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("invalid deal: %w", err)
	}

	query := `
		INSERT INTO deals (
			id, title, url, price_current, price_original, prct_discount,
			coupon_code, category, item_type, description, summary, image,
			token, available, available_since
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now())
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			url = EXCLUDED.url,
			price_current = EXCLUDED.price_current,
			price_original = EXCLUDED.price_original,
			prct_discount = EXCLUDED.prct_discount,
			coupon_code = EXCLUDED.coupon_code,
			category = EXCLUDED.category,
			item_type = EXCLUDED.item_type,
			description = EXCLUDED.description,
			summary = EXCLUDED.summary,
			image = EXCLUDED.image,
			available = EXCLUDED.available,
			available_until = NULL
	`

	_, err := s.pool.Exec(ctx, query,
		d.ID,
		d.Title,
		d.URL,
		d.PriceCurrent,
		d.PriceOriginal,
		d.DiscountPercent,
		nullable(d.CouponCode),
		nullable(d.Category),
		nullable(d.ItemType),
		nullable(d.Description),
		nullable(d.Summary),
		nullable(d.Image),
		d.Token,
		d.Available,
	)
	if err != nil {
		return fmt.Errorf("upsert deal: %w", err)
	}
	return nil
}

// GetByID retrieves a deal. Returns ErrNotFound if it does not exist.
func (s *DealStore) GetByID(ctx context.Context, id string) (*models.Deal, error) {
	query := `
		SELECT id, title, url, price_current, price_original, prct_discount,
			coupon_code, category, item_type, description, summary, image,
			token, available, available_since, available_until
		FROM deals
		WHERE id = $1
	`

	row := s.pool.QueryRow(ctx, query, id)
	d, err := scanDeal(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get deal by id: %w", err)
	}
	return d, nil
}

// ListAvailable returns every deal still marked available, oldest first.
func (s *DealStore) ListAvailable(ctx context.Context) ([]*models.Deal, error) {
	query := `
		SELECT id, title, url, price_current, price_original, prct_discount,
			coupon_code, category, item_type, description, summary, image,
			token, available, available_since, available_until
		FROM deals
		WHERE available = TRUE
		ORDER BY available_since ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list available deals: %w", err)
	}
	defer rows.Close()

	var deals []*models.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		deals = append(deals, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deals: %w", err)
	}
	return deals, nil
}

// SetAvailability updates the availability flag; marking a deal unavailable
// also stamps available_until.
func (s *DealStore) SetAvailability(ctx context.Context, id string, available bool) error {
	query := `
		UPDATE deals
		SET available = $2,
			available_until = CASE WHEN $2 THEN NULL ELSE now() END
		WHERE id = $1
	`

	tag, err := s.pool.Exec(ctx, query, id, available)
	if err != nil {
		return fmt.Errorf("set availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// rowScanner covers pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeal(row rowScanner) (*models.Deal, error) {
	var (
		d                                                       models.Deal
		couponCode, category, itemType, desc, summary, imageURL *string
	)

	err := row.Scan(
		&d.ID,
		&d.Title,
		&d.URL,
		&d.PriceCurrent,
		&d.PriceOriginal,
		&d.DiscountPercent,
		&couponCode,
		&category,
		&itemType,
		&desc,
		&summary,
		&imageURL,
		&d.Token,
		&d.Available,
		&d.AvailableSince,
		&d.AvailableUntil,
	)
	if err != nil {
		return nil, err
	}

	d.CouponCode = deref(couponCode)
	d.Category = deref(category)
	d.ItemType = deref(itemType)
	d.Description = deref(desc)
	d.Summary = deref(summary)
	d.Image = deref(imageURL)
	return &d, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
