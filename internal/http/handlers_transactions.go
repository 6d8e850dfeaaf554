package http

import (
	"net/http"
	"time"

	"moneypools/internal/core"
	"moneypools/internal/log"
	"moneypools/internal/middleware/auth"
	"moneypools/internal/services"
)

type addTransactionRequest struct {
	PoolID      string     `json:"pool_id"`
	Sum         core.Money `json:"sum"`
	Description string     `json:"description"`
	// Timestamp defaults to now.
	Timestamp *time.Time `json:"timestamp"`
	IsDiffuse bool       `json:"is_diffuse"`
	Tags      []string   `json:"tags"`
}

type transferRequest struct {
	FromPoolID  string     `json:"from_pool_id"`
	ToPoolID    string     `json:"to_pool_id"`
	Sum         core.Money `json:"sum"`
	Description string     `json:"description"`
}

type transactionsResponse struct {
	Transactions []core.Transaction `json:"transactions"`
	Offset       int                `json:"offset"`
	Count        int                `json:"count"`
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q, err := ParseTransactionQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, log.OpList, err, nil)
		return
	}
	ts, err := s.ledger.ListTransactions(r.Context(), auth.OwnerFrom(r.Context()), q.Filter, q.Order, q.Offset, q.Count)
	if err != nil {
		writeError(w, r, log.OpList, err, nil)
		return
	}
	if ts == nil {
		ts = []core.Transaction{}
	}
	NewJSONResponse().Body(transactionsResponse{Transactions: ts, Offset: q.Offset, Count: len(ts)}).Write(w)
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	var req addTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpCreate, err, nil)
		return
	}
	t := core.Transaction{
		PoolID:      req.PoolID,
		Sum:         req.Sum,
		Description: req.Description,
		IsDiffuse:   req.IsDiffuse,
		Tags:        req.Tags,
	}
	if req.Timestamp != nil {
		t.Timestamp = *req.Timestamp
	}
	stored, err := s.ledger.AddTransaction(r.Context(), auth.OwnerFrom(r.Context()), t)
	if err != nil {
		writeError(w, r, log.OpCreate, err, nil)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(stored).Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var u core.TransactionUpdate
	if err := decodeJSON(w, r, &u); err != nil {
		writeError(w, r, log.OpUpdate, err, nil)
		return
	}
	t, err := s.ledger.UpdateTransaction(r.Context(), auth.OwnerFrom(r.Context()), r.PathValue("id"), u)
	if err != nil {
		writeError(w, r, log.OpUpdate, err, nil)
		return
	}
	NewJSONResponse().Body(t).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.ledger.DeleteTransaction(r.Context(), auth.OwnerFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, log.OpDelete, err, nil)
		return
	}
	if !deleted {
		NotFoundError(core.ErrTransactionNotFound.Error()).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpTransfer, err, nil)
		return
	}
	res, err := s.ledger.Transfer(r.Context(), auth.OwnerFrom(r.Context()), services.TransferRequest{
		FromPoolID:  req.FromPoolID,
		ToPoolID:    req.ToPoolID,
		Sum:         req.Sum,
		Description: req.Description,
	})
	if err != nil {
		var result any
		if res.Outcome != "" {
			result = res
		}
		writeError(w, r, log.OpTransfer, err, result)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(res).Write(w)
}
