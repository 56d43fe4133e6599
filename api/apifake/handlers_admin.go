package apifake

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/identkit/identcli/api"
)

func pageParams(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 20
	}
	return page, limit
}

func paginate[T any](items []T, page, limit int) api.Page[T] {
	total := len(items)
	totalPages := (total + limit - 1) / limit
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return api.Page[T]{
		Items:      items[start:end],
		Page:       page,
		Limit:      limit,
		TotalItems: total,
		TotalPages: totalPages,
	}
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request, _ *userRecord) {
	query := r.URL.Query()
	status := query.Get("status")
	q := strings.ToLower(query.Get("q"))

	s.mu.Lock()
	users := make([]api.AdminUser, 0, len(s.usersByID))
	for _, record := range s.usersByID {
		if status != "" && string(record.user.Status) != status {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(record.user.Email), q) {
			continue
		}
		if v := query.Get("email_verified"); v != "" && strconv.FormatBool(record.user.EmailVerified) != v {
			continue
		}
		if v := query.Get("two_factor_enabled"); v != "" && strconv.FormatBool(record.user.TwoFactorEnabled) != v {
			continue
		}
		users = append(users, api.AdminUser{
			User:          record.user,
			SessionsCount: len(s.sessions[record.user.ID]),
		})
	}
	s.mu.Unlock()

	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	page, limit := pageParams(r)
	writeData(w, paginate(users, page, limit))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request, _ *userRecord) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.usersByID[id]
	if !ok {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeData(w, api.AdminUser{User: record.user, SessionsCount: len(s.sessions[id])})
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request, _ *userRecord) {
	id := mux.Vars(r)["id"]
	req, ok := decode[api.UpdateUserStatusRequest](r)
	if !ok || req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, exists := s.usersByID[id]
	if !exists {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	record.user.Status = req.Status
	writeOK(w, "status updated")
}

func (s *Server) handleSetAdmin(w http.ResponseWriter, r *http.Request, _ *userRecord) {
	id := mux.Vars(r)["id"]
	req, ok := decode[api.UpdateUserAdminRequest](r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, exists := s.usersByID[id]
	if !exists {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	record.user.IsAdmin = req.IsAdmin
	writeOK(w, "admin flag updated")
}

func (s *Server) handleAuditLogs(w http.ResponseWriter, r *http.Request, _ *userRecord) {
	query := r.URL.Query()

	s.mu.Lock()
	logs := make([]api.AuditLog, 0, len(s.auditLogs))
	for _, entry := range s.auditLogs {
		if v := query.Get("userId"); v != "" && entry.UserID != v {
			continue
		}
		if v := query.Get("action"); v != "" && entry.Action != v {
			continue
		}
		if v := query.Get("success"); v != "" && strconv.FormatBool(entry.Success) != v {
			continue
		}
		logs = append(logs, entry)
	}
	s.mu.Unlock()

	page, limit := pageParams(r)
	writeData(w, paginate(logs, page, limit))
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request, _ *userRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := 0
	for _, sessions := range s.sessions {
		active += len(sessions)
	}
	oauth := 0
	for _, accounts := range s.oauthAccounts {
		oauth += len(accounts)
	}
	writeData(w, api.AdminStats{
		UserCount:      len(s.usersByID),
		OAuthCount:     oauth,
		ActiveSessions: active,
	})
}
