package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"paywall/crypto"
	"paywall/native/paywall"
)

func (s *Server) handleCreateArticle(w http.ResponseWriter, r *http.Request) {
	var req createArticleRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	currency, err := parseCurrency("payCurrency", req.PayCurrency)
	if err != nil {
		badRequest(w, err)
		return
	}
	article, err := s.engine.CreateArticle(caller(r), paywall.NewArticle{
		Sequence:     req.Sequence,
		URI:          req.URI,
		PayCurrency:  currency,
		Price:        req.Price,
		RoyaltyBps:   req.RoyaltyBps,
		Transferable: req.Transferable,
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, articleFrom(article))
}

func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, err)
		return
	}
	article, err := s.engine.Article(id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, articleFrom(article))
}

func (s *Server) handleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, err)
		return
	}
	var req updatePriceRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	article, err := s.engine.SetArticlePrice(caller(r), id, req.Price)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, articleFrom(article))
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, err)
		return
	}
	referrer, err := parseReferrer(r.URL.Query().Get("referrer"))
	if err != nil {
		badRequest(w, err)
		return
	}
	split, err := s.engine.Quote(id, referrer)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, splitFrom(split))
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, err)
		return
	}
	var req purchaseRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	currency, err := parseCurrency("payCurrency", req.PayCurrency)
	if err != nil {
		badRequest(w, err)
		return
	}
	referrer, err := parseReferrer(req.Referrer)
	if err != nil {
		badRequest(w, err)
		return
	}
	result, err := s.engine.Purchase(paywall.PurchaseRequest{
		Article:     id,
		Buyer:       caller(r),
		PayCurrency: currency,
		Referrer:    referrer,
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	resp := purchaseResponse{
		Receipt: receiptFrom(result.Receipt),
		Split:   splitFrom(result.Split),
		Sales:   result.Sales,
	}
	if result.Referrer.Present {
		resp.Referrer = crypto.FormatAccount(result.Referrer.Address)
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, err)
		return
	}
	buyer, err := parseAccount("buyer", chi.URLParam(r, "buyer"))
	if err != nil {
		badRequest(w, err)
		return
	}
	receipt, err := s.engine.Receipt(id, buyer)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receiptFrom(receipt))
}

func (s *Server) handleGetCredential(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, err)
		return
	}
	credential, err := s.engine.Credential(id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, credentialFrom(credential))
}

func (s *Server) handleTransferCredential(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, err)
		return
	}
	var req transferCredentialRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	to, err := parseAccount("to", req.To)
	if err != nil {
		badRequest(w, err)
		return
	}
	credential, err := s.engine.TransferCredential(caller(r), id, to)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, credentialFrom(credential))
}

func (s *Server) handleGetFees(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.engine.FeeConfig()
	if err != nil {
		if paywall.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
			return
		}
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feeConfigFrom(cfg))
}

func (s *Server) handleSetFees(w http.ResponseWriter, r *http.Request) {
	var req setFeesRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	treasury, err := parseAccount("treasury", req.Treasury)
	if err != nil {
		badRequest(w, err)
		return
	}
	cfg, err := s.engine.SetFeeConfig(caller(r), req.ProtocolBps, req.ReferrerBps, treasury)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feeConfigFrom(cfg))
}

func (s *Server) handleIndexArticles(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		writeError(w, http.StatusServiceUnavailable, "index_unavailable", "read model is not configured", nil)
		return
	}
	addr, err := parseAccount("creator", r.URL.Query().Get("creator"))
	if err != nil {
		badRequest(w, err)
		return
	}
	rows, err := s.index.ArticlesByCreator(r.Context(), crypto.FormatAccount(addr), queryLimit(r))
	if err != nil {
		s.logger.Error("index query failed", "query", "articles", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "index query failed", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"articles": indexedArticlesFrom(rows)})
}

func (s *Server) handleIndexReceipts(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		writeError(w, http.StatusServiceUnavailable, "index_unavailable", "read model is not configured", nil)
		return
	}
	addr, err := parseAccount("buyer", r.URL.Query().Get("buyer"))
	if err != nil {
		badRequest(w, err)
		return
	}
	rows, err := s.index.PurchasesByBuyer(r.Context(), crypto.FormatAccount(addr), queryLimit(r))
	if err != nil {
		s.logger.Error("index query failed", "query", "receipts", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "index query failed", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipts": indexedPurchasesFrom(rows)})
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return limit
}
