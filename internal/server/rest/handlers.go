package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/keyforge/internal/common"
	"github.com/dmitrijs2005/keyforge/internal/server/models"
	"github.com/dmitrijs2005/keyforge/internal/server/services"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

type createAPIKeyRequest struct {
	Name string `json:"name"`
}

type loginRequest struct {
	UserName string `json:"username"`
	Password string `json:"password"`
}

// decodeBody decodes a JSON body into dst. An empty body leaves dst as is
// when allowEmpty is set.
func decodeBody(r *http.Request, dst any, allowEmpty bool) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if errors.Is(err, io.EOF) && allowEmpty {
		return nil
	}
	return err
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, envelope{Message: msg})
}

func keyID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}

func (s *HTTPServer) createAPIKey(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		s.writeError(w, r, common.ErrMissingCredential)
		return
	}

	var req createAPIKeyRequest
	if err := decodeBody(r, &req, true); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	raw, key, err := s.apikeys.IssueNamed(r.Context(), p.UserID, req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.APIKeysIssued.Inc()

	writeJSON(w, http.StatusCreated, issueResponse{
		Key:     raw,
		ID:      key.ID,
		Name:    key.Name,
		Message: "Store this key securely. It will not be shown again.",
		Success: true,
	})
}

// listAPIKeys lists every key, or only those of ?user_id= when given.
func (s *HTTPServer) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	var (
		views []models.APIKeyView
		err   error
	)
	if q := r.URL.Query().Get("user_id"); q != "" {
		userID, perr := strconv.ParseInt(q, 10, 64)
		if perr != nil || userID <= 0 {
			badRequest(w, "invalid user_id")
			return
		}
		views, err = s.apikeys.ListForUser(r.Context(), userID)
	} else {
		views, err = s.apikeys.List(r.Context())
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: views, Success: true})
}

func (s *HTTPServer) getAPIKey(w http.ResponseWriter, r *http.Request) {
	id, ok := keyID(r)
	if !ok {
		badRequest(w, "invalid api key id")
		return
	}

	view, err := s.apikeys.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: view, Success: true})
}

func (s *HTTPServer) updateAPIKey(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		s.writeError(w, r, common.ErrMissingCredential)
		return
	}
	id, ok := keyID(r)
	if !ok {
		badRequest(w, "invalid api key id")
		return
	}

	var patch services.APIKeyPatch
	if err := decodeBody(r, &patch, false); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	key, err := s.apikeys.UpdateOwned(r.Context(), p.UserID, id, patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: key.ToView(), Message: "api key updated", Success: true})
}

func (s *HTTPServer) deleteAPIKey(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		s.writeError(w, r, common.ErrMissingCredential)
		return
	}
	id, ok := keyID(r)
	if !ok {
		badRequest(w, "invalid api key id")
		return
	}

	deleted, err := s.apikeys.RevokeOwned(r.Context(), p.UserID, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !deleted {
		s.writeError(w, r, common.ErrorNotFound)
		return
	}
	s.metrics.APIKeysRevoked.Inc()

	writeJSON(w, http.StatusOK, envelope{Message: "api key revoked", Success: true})
}

func (s *HTTPServer) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req, false); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	res, err := s.users.Login(r.Context(), req.UserName, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt.UTC().Format(time.RFC3339),
		Success:   true,
	})
}

func (s *HTTPServer) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			s.logger.Warn(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, envelope{Message: "database unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, envelope{Message: "ok", Success: true})
}
