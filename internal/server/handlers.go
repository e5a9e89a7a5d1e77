package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opd-ai/go-xc-watch/internal/catalog"
	"github.com/opd-ai/go-xc-watch/internal/xtream"
)

// APIResponse represents a standard API response structure.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// LoginRequest carries the credentials for a provider login.
type LoginRequest struct {
	ServerURL   string `json:"server_url"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

// handleHealth provides a simple health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, APIResponse{
		Success: true,
		Message: "Server is healthy",
	})
}

// handleLogin authenticates against the provider. A structurally valid
// response with the authentication flag unset is a rejection, not a
// transport failure: it maps to 401, while network errors map to 502.
// Accepted credentials are persisted and become the active login.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ServerURL == "" || req.Username == "" || req.Password == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "server_url, username and password are required", nil)
		return
	}

	creds := xtream.Credentials{
		ServerURL:   req.ServerURL,
		Username:    req.Username,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	}

	backend := s.newBackend(creds)
	account, err := backend.Authenticate(r.Context())
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadGateway, "Provider unreachable", err)
		return
	}

	if !account.Authenticated {
		s.logger.Info("Login rejected by provider",
			"server_url", creds.ServerURL,
			"username", creds.Username)
		s.writeJSONResponse(w, http.StatusUnauthorized, APIResponse{
			Success: false,
			Data:    account,
			Error:   "Credentials rejected by provider",
		})
		return
	}

	if err := s.store.Set(creds, account); err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to persist login", err)
		return
	}

	s.mu.Lock()
	s.catalog = catalog.New(backend, s.logger)
	s.account = &account
	s.mu.Unlock()

	s.logger.Info("Login accepted",
		"server_url", creds.ServerURL,
		"username", creds.Username,
		"status", account.Status)

	s.writeJSONResponse(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    account,
		Message: "Logged in",
	})
}

// handleLogout ends any active session, clears the saved login and drops
// the catalog.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.exitCurrentSession()

	if err := s.store.Clear(); err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to clear saved login", err)
		return
	}

	s.mu.Lock()
	s.catalog = nil
	s.account = nil
	s.mu.Unlock()

	s.writeJSONResponse(w, http.StatusOK, APIResponse{
		Success: true,
		Message: "Logged out",
	})
}

// handleAccount returns the account information of the active login.
func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	account := s.account
	s.mu.RUnlock()

	if account == nil {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Not logged in", nil)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    account,
	})
}

// activeCatalog returns the catalog for the current login, or nil when no
// login is active.
func (s *Server) activeCatalog() *catalog.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// kindParam parses the {kind} URL parameter.
func kindParam(r *http.Request) (xtream.Kind, bool) {
	kind := xtream.Kind(chi.URLParam(r, "kind"))
	return kind, kind.Valid()
}

// handleCategories lists categories for a content kind, with the synthetic
// All category first.
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	svc := s.activeCatalog()
	if svc == nil {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Not logged in", nil)
		return
	}

	kind, ok := kindParam(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusBadRequest, "Unknown content kind", nil)
		return
	}

	categories, err := svc.Categories(r.Context(), kind)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadGateway, "Failed to list categories", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    categories,
	})
}

// handleStreams lists the catalog for a kind. The category_id query
// parameter narrows to one category; absent means the full catalog.
func (s *Server) handleStreams(w http.ResponseWriter, r *http.Request) {
	svc := s.activeCatalog()
	if svc == nil {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Not logged in", nil)
		return
	}

	kind, ok := kindParam(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusBadRequest, "Unknown content kind", nil)
		return
	}

	items, err := svc.Streams(r.Context(), kind, r.URL.Query().Get("category_id"))
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadGateway, "Failed to list streams", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    items,
	})
}

// idParam parses the {id} URL parameter as a positive integer.
func idParam(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	return id, err == nil && id > 0
}

// handleVodDetail returns detailed metadata for one VOD title.
func (s *Server) handleVodDetail(w http.ResponseWriter, r *http.Request) {
	svc := s.activeCatalog()
	if svc == nil {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Not logged in", nil)
		return
	}

	id, ok := idParam(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid VOD id", nil)
		return
	}

	detail, err := svc.VodDetail(r.Context(), id)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadGateway, "Failed to get VOD detail", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    detail,
	})
}

// handleSeriesDetail returns a series with its ordered seasons and episodes.
func (s *Server) handleSeriesDetail(w http.ResponseWriter, r *http.Request) {
	svc := s.activeCatalog()
	if svc == nil {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Not logged in", nil)
		return
	}

	id, ok := idParam(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid series id", nil)
		return
	}

	detail, err := svc.SeriesDetail(r.Context(), id)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadGateway, "Failed to get series detail", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    detail,
	})
}

// handleGuide returns program-guide entries for a live stream.
func (s *Server) handleGuide(w http.ResponseWriter, r *http.Request) {
	svc := s.activeCatalog()
	if svc == nil {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Not logged in", nil)
		return
	}

	id, ok := idParam(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid stream id", nil)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := svc.Guide(r.Context(), id, limit)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadGateway, "Failed to get guide entries", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    entries,
	})
}

// writeJSONResponse writes a JSON response with the specified status code.
func (s *Server) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

// writeErrorResponse writes an error response with the specified status code and message.
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string, err error) {
	s.logger.Error("HTTP error response",
		"status", statusCode,
		"message", message,
		"error", err)

	errorMsg := message
	if err != nil {
		errorMsg = err.Error()
	}

	s.writeJSONResponse(w, statusCode, APIResponse{
		Success: false,
		Error:   errorMsg,
		Message: message,
	})
}
