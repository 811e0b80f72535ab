package paywall

import (
	"errors"

	"paywall/core/events"
	"paywall/core/state"
)

func validateArticle(params NewArticle) error {
	if len(params.URI) > MaxURILength {
		return ErrUriTooLong
	}
	if params.RoyaltyBps > BasisPoints {
		return ErrInvalidRoyalty
	}
	if params.Price == 0 {
		return ErrInvalidPrice
	}
	return nil
}

// CreateArticle lists a new article at the address derived from the creator
// and sequence. Reusing a sequence fails with ErrArticleExists.
func (e *Engine) CreateArticle(creator [20]byte, params NewArticle) (*Article, error) {
	if err := validateArticle(params); err != nil {
		return nil, err
	}
	if isZeroAddress(creator) {
		return nil, ErrUnauthorized
	}
	id := ArticleAddress(creator, params.Sequence)
	article := &Article{
		ID:           id,
		Creator:      creator,
		Sequence:     params.Sequence,
		URI:          params.URI,
		PayCurrency:  params.PayCurrency,
		Price:        params.Price,
		RoyaltyBps:   params.RoyaltyBps,
		Transferable: params.Transferable,
		CreatedAt:    uint64(e.now()),
	}
	err := e.update(func(t *txn) error {
		if err := t.state.KVCreate(articleKey(id), article, creator); err != nil {
			if errors.Is(err, state.ErrRecordExists) {
				return ErrArticleExists
			}
			return mapStateErr(err)
		}
		t.emit(events.ArticleCreated{
			Article:      id,
			Creator:      creator,
			Sequence:     article.Sequence,
			URI:          article.URI,
			PayCurrency:  article.PayCurrency,
			Price:        article.Price,
			RoyaltyBps:   article.RoyaltyBps,
			Transferable: article.Transferable,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return article, nil
}

// SetArticlePrice reprices an article. Only its creator may do so.
func (e *Engine) SetArticlePrice(caller [20]byte, id [32]byte, price uint64) (*Article, error) {
	var updated *Article
	err := e.update(func(t *txn) error {
		article, err := loadArticle(t.state, id)
		if err != nil {
			return err
		}
		if article.Creator != caller {
			return ErrUnauthorized
		}
		if price == 0 {
			return ErrInvalidPrice
		}
		article.Price = price
		if err := t.state.KVPut(articleKey(id), article); err != nil {
			return err
		}
		t.emit(events.ArticleUpdated{Article: id, Price: price})
		updated = article
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Article returns the article stored at id.
func (e *Engine) Article(id [32]byte) (*Article, error) {
	var article *Article
	err := e.view(func(t *txn) error {
		var err error
		article, err = loadArticle(t.state, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return article, nil
}

func loadArticle(manager *state.Manager, id [32]byte) (*Article, error) {
	var article Article
	ok, err := manager.KVGet(articleKey(id), &article)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrArticleNotFound
	}
	return &article, nil
}
