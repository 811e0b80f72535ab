package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"paywall/core/events"
	"paywall/core/types"
)

// Indexer projects committed events into the relational read model.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
	nowFn  func() time.Time
}

// NewIndexer wraps an open, migrated database.
func NewIndexer(db *gorm.DB, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{db: db, logger: logger, nowFn: time.Now}
}

// Run applies events from sub until ctx is cancelled or the subscription is
// closed. Projection failures are logged and skipped.
func (i *Indexer) Run(ctx context.Context, sub *events.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.C():
			if !ok {
				return
			}
			if err := i.Apply(ctx, evt); err != nil {
				i.logger.Error("index event failed", "type", evt.Type, "event_id", evt.ID, "error", err.Error())
			}
		}
	}
}

// Apply projects a single event.
func (i *Indexer) Apply(ctx context.Context, evt *types.Event) error {
	if evt == nil {
		return nil
	}
	db := i.db.WithContext(ctx)
	at := i.eventTime(evt)
	switch evt.Type {
	case events.TypeArticleCreated:
		return i.applyArticleCreated(db, evt, at)
	case events.TypeArticleUpdated:
		price, err := parseUint(evt, "price")
		if err != nil {
			return err
		}
		return db.Model(&Article{}).Where("id = ?", evt.Attr("article")).
			Updates(map[string]interface{}{"price": Uint64(price), "updated_at": at}).Error
	case events.TypePurchased:
		return i.applyPurchased(db, evt, at)
	case events.TypeAccessCredentialMinted:
		cred := Credential{
			ID:           evt.Attr("credential"),
			Article:      evt.Attr("article"),
			Owner:        evt.Attr("buyer"),
			Transferable: evt.Attr("transferable") == "true",
			UpdatedAt:    at,
		}
		return db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"owner", "updated_at"}),
		}).Create(&cred).Error
	case events.TypeCredentialTransferred:
		return db.Model(&Credential{}).Where("id = ?", evt.Attr("credential")).
			Updates(map[string]interface{}{"owner": evt.Attr("to"), "updated_at": at}).Error
	case events.TypeFeeUpdated:
		protocol, err := parseUint(evt, "protocolBps")
		if err != nil {
			return err
		}
		referrer, err := parseUint(evt, "referrerBps")
		if err != nil {
			return err
		}
		change := FeeChange{
			EventID:     evt.ID,
			ProtocolBps: uint16(protocol),
			ReferrerBps: uint16(referrer),
			Treasury:    evt.Attr("treasury"),
			CreatedAt:   at,
		}
		return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&change).Error
	default:
		return nil
	}
}

func (i *Indexer) applyArticleCreated(db *gorm.DB, evt *types.Event, at time.Time) error {
	sequence, err := parseUint(evt, "sequence")
	if err != nil {
		return err
	}
	price, err := parseUint(evt, "price")
	if err != nil {
		return err
	}
	royalty, err := parseUint(evt, "royaltyBps")
	if err != nil {
		return err
	}
	row := Article{
		ID:           evt.Attr("article"),
		Creator:      evt.Attr("creator"),
		Sequence:     Uint64(sequence),
		URI:          evt.Attr("uri"),
		PayCurrency:  evt.Attr("payCurrency"),
		Price:        Uint64(price),
		RoyaltyBps:   uint16(royalty),
		Transferable: evt.Attr("transferable") == "true",
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

func (i *Indexer) applyPurchased(db *gorm.DB, evt *types.Event, at time.Time) error {
	row := Purchase{
		EventID:  evt.ID,
		Article:  evt.Attr("article"),
		Buyer:    evt.Attr("buyer"),
		Referrer: evt.Attr("referrer"),
	}
	amounts := []struct {
		key string
		dst *Uint64
	}{
		{"price", &row.Price},
		{"protocolFee", &row.ProtocolFee},
		{"referrerFee", &row.ReferrerFee},
		{"creatorAmount", &row.CreatorAmount},
	}
	for _, amount := range amounts {
		value, err := parseUint(evt, amount.key)
		if err != nil {
			return err
		}
		*amount.dst = Uint64(value)
	}
	row.PurchasedAt = at
	if ts, err := strconv.ParseInt(evt.Attr("purchasedAt"), 10, 64); err == nil && ts > 0 {
		row.PurchasedAt = time.Unix(ts, 0).UTC()
	}
	return db.Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		var listing Article
		err := tx.Select("id", "sales").Where("id = ?", row.Article).Take(&listing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return tx.Model(&Article{}).Where("id = ?", row.Article).
			Updates(map[string]interface{}{"sales": listing.Sales + 1, "updated_at": at}).Error
	})
}

func (i *Indexer) eventTime(evt *types.Event) time.Time {
	if evt.Timestamp > 0 {
		return time.Unix(evt.Timestamp, 0).UTC()
	}
	return i.nowFn().UTC()
}

func parseUint(evt *types.Event, key string) (uint64, error) {
	value, err := strconv.ParseUint(evt.Attr(key), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: attribute %q: %w", evt.Type, key, err)
	}
	return value, nil
}

// ArticlesByCreator lists a creator's articles, newest first.
func (i *Indexer) ArticlesByCreator(ctx context.Context, creator string, limit int) ([]Article, error) {
	var rows []Article
	err := i.db.WithContext(ctx).Where("creator = ?", creator).
		Order("created_at DESC").Order("sequence DESC").Limit(clampLimit(limit)).Find(&rows).Error
	return rows, err
}

// PurchasesByBuyer lists a buyer's purchases, newest first.
func (i *Indexer) PurchasesByBuyer(ctx context.Context, buyer string, limit int) ([]Purchase, error) {
	var rows []Purchase
	err := i.db.WithContext(ctx).Where("buyer = ?", buyer).
		Order("purchased_at DESC").Limit(clampLimit(limit)).Find(&rows).Error
	return rows, err
}

// PurchasesSince streams purchases at or after since in chronological order.
func (i *Indexer) PurchasesSince(ctx context.Context, since time.Time, fn func(Purchase) error) error {
	rows, err := i.db.WithContext(ctx).Model(&Purchase{}).
		Where("purchased_at >= ?", since.UTC()).Order("purchased_at ASC").Rows()
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var row Purchase
		if err := i.db.ScanRows(rows, &row); err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
