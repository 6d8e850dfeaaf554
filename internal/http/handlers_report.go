package http

import (
	"fmt"
	"net/http"
	"strings"

	"moneypools/internal/core"
	"moneypools/internal/log"
	"moneypools/internal/middleware/auth"
	"moneypools/internal/report"
)

// handleReport serves GET /report?start=&end=&points=&currency=. start is
// required; end defaults to now, points to 10 and currency to the reporting
// currency.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseReportRequest(r)
	if err != nil {
		writeError(w, r, log.OpReport, err, nil)
		return
	}
	rep, err := s.reports.Build(r.Context(), auth.OwnerFrom(r.Context()), req)
	if err != nil {
		writeError(w, r, log.OpReport, err, nil)
		return
	}
	NewJSONResponse().Body(rep).Write(w)
}

func (s *Server) parseReportRequest(r *http.Request) (report.Request, error) {
	query := r.URL.Query()
	var req report.Request

	start := query.Get("start")
	if strings.TrimSpace(start) == "" {
		return req, fmt.Errorf("start is required: %w", core.ErrValidation)
	}
	var err error
	if req.Start, err = parseTime("start", start); err != nil {
		return req, err
	}
	end, err := optionalTime(query, "end")
	if err != nil {
		return req, err
	}
	if end != nil {
		req.End = *end
	}
	if req.Points, err = intParam(query, "points", defaultReportSize); err != nil {
		return req, err
	}
	req.Currency = s.ledger.ReportingCurrency()
	if code := strings.TrimSpace(query.Get("currency")); code != "" {
		if req.Currency, err = core.ParseCurrency(code); err != nil {
			return req, err
		}
	}
	return req, nil
}
