package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"moneypools/internal/core"
	"moneypools/internal/log"
	"moneypools/internal/middleware/auth"
)

type createPoolRequest struct {
	DisplayName  string       `json:"display_name"`
	Balance      []core.Money `json:"balance"`
	IsVisible    *bool        `json:"is_visible"`
	DisplayColor *string      `json:"display_color"`
}

type syncPoolRequest struct {
	// Targets are positional, one per balance line.
	Targets []decimal.Decimal `json:"targets"`
}

type poolsResponse struct {
	Pools []core.Pool `json:"pools"`
}

func (s *Server) handleListPools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.ledger.ListPools(r.Context(), auth.OwnerFrom(r.Context()))
	if err != nil {
		writeError(w, r, log.OpList, err, nil)
		return
	}
	if pools == nil {
		pools = []core.Pool{}
	}
	NewJSONResponse().Body(poolsResponse{Pools: pools}).Write(w)
}

func (s *Server) handleCreatePool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpCreate, err, nil)
		return
	}
	visible := true
	if req.IsVisible != nil {
		visible = *req.IsVisible
	}
	pool, err := s.ledger.CreatePool(r.Context(), auth.OwnerFrom(r.Context()), core.Pool{
		DisplayName:  req.DisplayName,
		Balance:      req.Balance,
		IsVisible:    visible,
		DisplayColor: req.DisplayColor,
	})
	if err != nil {
		writeError(w, r, log.OpCreate, err, nil)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/pools/"+pool.ID).
		Body(pool).
		Write(w)
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	pool, err := s.ledger.GetPool(r.Context(), auth.OwnerFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, log.OpRead, err, nil)
		return
	}
	NewJSONResponse().Body(pool).Write(w)
}

func (s *Server) handleUpdatePool(w http.ResponseWriter, r *http.Request) {
	var u core.PoolAttributesUpdate
	if err := decodeJSON(w, r, &u); err != nil {
		writeError(w, r, log.OpUpdate, err, nil)
		return
	}
	pool, err := s.ledger.SetPoolAttributes(r.Context(), auth.OwnerFrom(r.Context()), r.PathValue("id"), u)
	if err != nil {
		writeError(w, r, log.OpUpdate, err, nil)
		return
	}
	NewJSONResponse().Body(pool).Write(w)
}

func (s *Server) handleSyncPool(w http.ResponseWriter, r *http.Request) {
	var req syncPoolRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpSync, err, nil)
		return
	}
	res, err := s.ledger.SyncPoolBalance(r.Context(), auth.OwnerFrom(r.Context()), r.PathValue("id"), req.Targets)
	if err != nil {
		var result any
		if len(res.Applied) > 0 || len(res.Failed) > 0 {
			result = res
		}
		writeError(w, r, log.OpSync, err, result)
		return
	}
	NewJSONResponse().Body(res).Write(w)
}
