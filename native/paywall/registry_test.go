package paywall

import (
	"errors"
	"strings"
	"testing"

	"paywall/core/events"
)

func TestCreateArticleRoundTrip(t *testing.T) {
	f := newFixture(t)
	created := f.article(t, 7, 1000, true)
	if created.ID != ArticleAddress(testCreator, 7) {
		t.Fatalf("article stored at unexpected address")
	}
	loaded, err := f.engine.Article(created.ID)
	if err != nil {
		t.Fatalf("load article: %v", err)
	}
	if loaded.Sales != 0 || loaded.Price != 1000 || loaded.RoyaltyBps != 500 || !loaded.Transferable {
		t.Fatalf("unexpected article %+v", loaded)
	}
	if loaded.Creator != testCreator || loaded.PayCurrency != testCurrency || loaded.URI != "ipfs://encrypted/article" {
		t.Fatalf("identity fields mismatch: %+v", loaded)
	}
	recorded := f.recorder.Events()
	if len(recorded) != 1 {
		t.Fatalf("expected 1 event, got %d", len(recorded))
	}
	evt, ok := recorded[0].(events.ArticleCreated)
	if !ok {
		t.Fatalf("unexpected event %T", recorded[0])
	}
	if evt.Sequence != 7 || evt.Price != 1000 || evt.RoyaltyBps != 500 || !evt.Transferable {
		t.Fatalf("event fields mismatch: %+v", evt)
	}
}

func TestCreateArticleValidation(t *testing.T) {
	f := newFixture(t)
	base := NewArticle{Sequence: 1, URI: "u", PayCurrency: testCurrency, Price: 1, RoyaltyBps: 0}
	cases := []struct {
		name   string
		mutate func(*NewArticle)
		want   error
	}{
		{"uri 201", func(p *NewArticle) { p.URI = strings.Repeat("x", 201) }, ErrUriTooLong},
		{"royalty 10001", func(p *NewArticle) { p.RoyaltyBps = 10_001 }, ErrInvalidRoyalty},
		{"price 0", func(p *NewArticle) { p.Price = 0 }, ErrInvalidPrice},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := base
			tc.mutate(&params)
			if _, err := f.engine.CreateArticle(testCreator, params); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	edge := base
	edge.URI = strings.Repeat("x", MaxURILength)
	edge.RoyaltyBps = BasisPoints
	if _, err := f.engine.CreateArticle(testCreator, edge); err != nil {
		t.Fatalf("boundary values should be accepted: %v", err)
	}
	if len(f.recorder.Events()) != 1 {
		t.Fatalf("rejected creates must not emit events")
	}
}

func TestCreateArticleSequenceReuse(t *testing.T) {
	f := newFixture(t)
	f.article(t, 3, 10, false)
	_, err := f.engine.CreateArticle(testCreator, NewArticle{Sequence: 3, URI: "other", PayCurrency: testCurrency, Price: 99})
	if !errors.Is(err, ErrArticleExists) {
		t.Fatalf("expected ErrArticleExists, got %v", err)
	}
	other := [20]byte{0xC2}
	if _, err := f.engine.CreateArticle(other, NewArticle{Sequence: 3, URI: "other", PayCurrency: testCurrency, Price: 99}); err != nil {
		t.Fatalf("different creator may reuse the sequence: %v", err)
	}
}

func TestSetArticlePrice(t *testing.T) {
	f := newFixture(t)
	article := f.article(t, 1, 1000, true)
	f.recorder.Reset()

	if _, err := f.engine.SetArticlePrice([20]byte{0x99}, article.ID, 5); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := f.engine.SetArticlePrice(testCreator, article.ID, 0); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	if _, err := f.engine.SetArticlePrice(testCreator, [32]byte{0x42}, 5); !errors.Is(err, ErrArticleNotFound) {
		t.Fatalf("expected ErrArticleNotFound, got %v", err)
	}
	updated, err := f.engine.SetArticlePrice(testCreator, article.ID, 2500)
	if err != nil {
		t.Fatalf("set price: %v", err)
	}
	if updated.Price != 2500 {
		t.Fatalf("price not updated")
	}
	loaded, _ := f.engine.Article(article.ID)
	if loaded.Price != 2500 {
		t.Fatalf("price not persisted")
	}
	recorded := f.recorder.Events()
	if len(recorded) != 1 {
		t.Fatalf("expected single ArticleUpdated, got %d events", len(recorded))
	}
	if evt, ok := recorded[0].(events.ArticleUpdated); !ok || evt.Price != 2500 {
		t.Fatalf("unexpected event %#v", recorded[0])
	}
}
