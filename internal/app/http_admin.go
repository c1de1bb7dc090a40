package app

import (
	"net/http"
	"strconv"
	"strings"

	"participa/api/internal/accounts"
	"participa/api/internal/rbac"
	"participa/api/internal/store"
)

func (s *HTTPServer) handleAdmin(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if !s.enforce(w, r, session, rbac.RouteAdminConfig) {
		return
	}

	switch {
	case len(parts) == 1 && parts[0] == "users" && r.Method == http.MethodGet:
		users, err := s.service.ListUsers(r.Context(), session)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})

	case len(parts) == 1 && parts[0] == "users" && r.Method == http.MethodPost:
		var body struct {
			Email       string `json:"email"`
			Password    string `json:"password"`
			DisplayName string `json:"displayName"`
			Role        string `json:"role"`
			Locality    string `json:"locality"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		user, err := s.service.CreateUser(r.Context(), session, accounts.RegisterRequest{
			Email:       body.Email,
			Password:    body.Password,
			DisplayName: body.DisplayName,
			Role:        body.Role,
			Locality:    body.Locality,
		})
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, user)

	case len(parts) == 3 && parts[0] == "users" && parts[2] == "role" && r.Method == http.MethodPut:
		var body struct {
			Role string `json:"role"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.ChangeUserRole(r.Context(), session, parts[1], body.Role); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(parts) == 3 && parts[0] == "users" && parts[2] == "active" && r.Method == http.MethodPut:
		var body struct {
			Active bool `json:"active"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.SetUserActive(r.Context(), session, parts[1], body.Active); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(parts) == 1 && parts[0] == "settings" && r.Method == http.MethodGet:
		settings, err := s.service.ListSettings(r.Context(), session)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		payload := make([]map[string]any, 0, len(settings))
		for _, setting := range settings {
			payload = append(payload, settingPayload(setting))
		}
		writeJSON(w, http.StatusOK, map[string]any{"settings": payload})

	case len(parts) == 1 && parts[0] == "settings" && r.Method == http.MethodPut:
		var body struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		setting, err := s.service.UpdateSetting(r.Context(), session, body.Key, body.Value)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, settingPayload(setting))

	case len(parts) == 1 && parts[0] == "audit" && r.Method == http.MethodGet:
		limit := 100
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		events, err := s.service.AuditLog(r.Context(), session,
			strings.TrimSpace(r.URL.Query().Get("kind")),
			strings.TrimSpace(r.URL.Query().Get("actorId")),
			limit)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		payload := make([]map[string]any, 0, len(events))
		for _, event := range events {
			payload = append(payload, map[string]any{
				"id":        event.ID,
				"kind":      event.Kind,
				"actorId":   event.ActorID,
				"actorName": event.ActorName,
				"path":      event.Path,
				"decision":  event.Decision,
				"metadata":  event.Metadata,
				"createdAt": event.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": payload})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func settingPayload(setting store.PlatformSetting) map[string]any {
	return map[string]any{
		"key":       setting.Key,
		"value":     setting.Value,
		"updatedBy": setting.UpdatedBy,
		"updatedAt": setting.UpdatedAt,
	}
}
