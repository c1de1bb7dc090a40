package app

import (
	"net/http"
	"strconv"
	"strings"

	"participa/api/internal/export"
	"participa/api/internal/rbac"
	"participa/api/internal/store"
	"participa/api/internal/tracking"
)

func (s *HTTPServer) handleProposals(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		views, err := s.service.ListProposals(r.Context(), session, proposalFiltersFromQuery(r))
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"proposals": views})

	case len(parts) == 0 && r.Method == http.MethodPost:
		if !s.enforce(w, r, session, rbac.RouteSubmission) {
			return
		}
		var input ProposalInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.CreateProposal(r.Context(), session, input)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, view)

	case len(parts) == 1 && parts[0] == "mine" && r.Method == http.MethodGet:
		views, err := s.service.MyProposals(r.Context(), session)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"proposals": views})

	case len(parts) == 1 && parts[0] == "filters" && r.Method == http.MethodGet:
		options, err := s.service.FilterOptions(r.Context())
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, options)

	case len(parts) == 1 && parts[0] == "summary" && r.Method == http.MethodGet:
		summary, err := s.service.Summary(r.Context())
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, summary)

	case len(parts) == 1 && r.Method == http.MethodGet:
		view, execution, err := s.service.GetProposal(r.Context(), session, parts[0])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		payload := map[string]any{"proposal": view}
		if execution != nil {
			payload["execution"] = map[string]any{
				"percentPhysical":  execution.PercentPhysical,
				"percentFinancial": execution.PercentFinancial,
				"state":            execution.State,
				"updatedAt":        execution.UpdatedAt,
			}
		}
		writeJSON(w, http.StatusOK, payload)

	case len(parts) == 1 && r.Method == http.MethodPut:
		if !s.enforce(w, r, session, rbac.RouteSubmission) {
			return
		}
		var input ProposalInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.UpdateProposal(r.Context(), session, parts[0], input)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, view)

	case len(parts) == 2 && parts[1] == "submit" && r.Method == http.MethodPost:
		if !s.enforce(w, r, session, rbac.RouteSubmission) {
			return
		}
		view, err := s.service.SubmitProposal(r.Context(), session, parts[0])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, view)

	case len(parts) == 2 && parts[1] == "resubmit" && r.Method == http.MethodPost:
		if !s.enforce(w, r, session, rbac.RouteSubmission) {
			return
		}
		view, err := s.service.ResubmitProposal(r.Context(), session, parts[0])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, view)

	case len(parts) == 2 && parts[1] == "review" && r.Method == http.MethodPost:
		if !s.enforce(w, r, session, rbac.RouteManagerAnalysis) {
			return
		}
		var body struct {
			Decision string `json:"decision"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.ReviewProposal(r.Context(), session, parts[0], body.Decision)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, view)

	case len(parts) == 2 && parts[1] == "vote" && r.Method == http.MethodPost:
		if !s.enforce(w, r, session, rbac.RouteVoting) {
			return
		}
		var input VoteInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.VoteProposal(r.Context(), session, parts[0], input)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, view)

	case len(parts) == 2 && parts[1] == "revisions" && r.Method == http.MethodGet:
		limit := 50
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		entries, err := s.service.ProposalRevisions(r.Context(), session, parts[0], limit)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"revisions": entries})

	case len(parts) == 3 && parts[1] == "revisions" && r.Method == http.MethodGet:
		content, err := s.service.ProposalRevisionContent(r.Context(), session, parts[0], parts[2])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, content)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleTracking(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	switch {
	case len(parts) == 1 && parts[0] == "citizen" && r.Method == http.MethodGet:
		if !s.enforce(w, r, session, rbac.RouteCitizenTracking) {
			return
		}
		views, err := s.service.CitizenExecution(r.Context(), executionFiltersFromQuery(r))
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rows": views})

	case len(parts) == 1 && parts[0] == "manager" && r.Method == http.MethodGet:
		if !s.enforce(w, r, session, rbac.RouteManagerTracking) {
			return
		}
		views, err := s.service.ManagerExecution(r.Context(), session, executionFiltersFromQuery(r))
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rows": views})

	case len(parts) == 1 && parts[0] == "filters" && r.Method == http.MethodGet:
		options, err := s.service.ExecutionFilterOptions(r.Context())
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, options)

	case len(parts) == 1 && parts[0] == "batch" && r.Method == http.MethodPost:
		if !s.enforce(w, r, session, rbac.RouteManagerTracking) {
			return
		}
		var body struct {
			IDs   []string            `json:"ids"`
			Patch tracking.BatchInput `json:"patch"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		results, err := s.service.BatchUpdateExecution(r.Context(), session, body.IDs, body.Patch)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results})

	case len(parts) == 1 && parts[0] == "export" && r.Method == http.MethodGet:
		if !s.enforce(w, r, session, rbac.RouteManagerTracking) {
			return
		}
		format := export.Format(strings.TrimSpace(r.URL.Query().Get("format")))
		if format == "" {
			format = export.FormatCSV
		}
		result, err := s.service.ExportExecutionReport(r.Context(), session, executionFiltersFromQuery(r), format)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)

	case len(parts) == 1 && r.Method == http.MethodPut:
		if !s.enforce(w, r, session, rbac.RouteManagerTracking) {
			return
		}
		var input tracking.BatchInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		status, err := s.service.UpdateExecution(r.Context(), session, parts[0], input)
		if err != nil {
			httpStatus, code, message, details := mapError(err)
			writeError(w, httpStatus, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"proposalId":       status.ProposalID,
			"percentPhysical":  status.PercentPhysical,
			"percentFinancial": status.PercentFinancial,
			"state":            status.State,
			"internalComments": status.InternalComments,
			"updatedBy":        status.UpdatedBy,
			"updatedAt":        status.UpdatedAt,
		})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func proposalFiltersFromQuery(r *http.Request) store.ProposalFilters {
	query := r.URL.Query()
	filters := store.ProposalFilters{
		Status:   strings.TrimSpace(query.Get("status")),
		Category: strings.TrimSpace(query.Get("category")),
		Locality: strings.TrimSpace(query.Get("locality")),
		Search:   strings.TrimSpace(query.Get("q")),
		Sort:     strings.TrimSpace(query.Get("sort")),
	}
	if raw := strings.TrimSpace(query.Get("minBudgetCents")); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filters.MinBudgetCents = parsed
		}
	}
	if raw := strings.TrimSpace(query.Get("maxBudgetCents")); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filters.MaxBudgetCents = parsed
		}
	}
	return filters
}

func executionFiltersFromQuery(r *http.Request) store.ExecutionFilters {
	query := r.URL.Query()
	return store.ExecutionFilters{
		Locality: strings.TrimSpace(query.Get("locality")),
		State:    strings.TrimSpace(query.Get("state")),
		Category: strings.TrimSpace(query.Get("category")),
	}
}
