package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/genai-kitchen/internal/auth"
	"github.com/fpang/genai-kitchen/internal/debounce"
	"github.com/fpang/genai-kitchen/internal/inference"
	"github.com/fpang/genai-kitchen/internal/kitchen"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "genai-kitchen",
		"model":   inference.GetModelName(),
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody)).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		httpError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	token, err := s.authn.Login(req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		log.Warn().Str("user", req.Username).Msg("Login rejected")
		httpError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "could not issue token", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"expiresIn": int(auth.DefaultTokenTTL / time.Second),
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req kitchen.GenerateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxGenerateBody)).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Operation = inference.Operation(r.PathValue("operation"))

	if claims, ok := ClaimsFromContext(r.Context()); ok {
		log.Debug().Str("user", claims.Username).Str("operation", string(req.Operation)).Msg("Generation requested")
	}

	resp, err := s.svc.Generate(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DebounceKey string `json:"debounceKey"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody)).Decode(&body); err != nil || body.DebounceKey == "" {
		httpError(w, http.StatusBadRequest, "debounceKey is required")
		return
	}
	s.svc.CancelPending(body.DebounceKey)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEdgeMask(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBody)
	if err := r.ParseMultipartForm(MaxUploadBody); err != nil {
		httpError(w, http.StatusBadRequest, "expected multipart form with an image field")
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		httpError(w, http.StatusBadRequest, "image field is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		httpError(w, http.StatusBadRequest, "could not read image")
		return
	}

	png, coverage, err := kitchen.EdgeMask(data)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Mask-Coverage", strconv.FormatFloat(coverage, 'f', 4, 64))
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.svc.CacheStats())
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.svc.ClearCache()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWorkspace(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.svc.Workspace())
}

func (s *Server) handleHistoryStats(w http.ResponseWriter, r *http.Request) {
	top := 5
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httpError(w, http.StatusBadRequest, "top must be a non-negative integer")
			return
		}
		top = n
	}
	respondJSON(w, http.StatusOK, s.svc.HistoryStats(top))
}

func (s *Server) handleHistoryExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.svc.HistoryExport()
	if err != nil {
		httpError(w, http.StatusInternalServerError, "could not export history", err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="kitchen-history-%s.json"`, time.Now().UTC().Format("20060102T150405Z")))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.svc.UndoWorkspace()
	if !ok {
		httpError(w, http.StatusConflict, "nothing to undo")
		return
	}
	respondJSON(w, http.StatusOK, ws)
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.svc.RedoWorkspace()
	if !ok {
		httpError(w, http.StatusConflict, "nothing to redo")
		return
	}
	respondJSON(w, http.StatusOK, ws)
}

// writeError maps service errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	var ve *kitchen.ValidationError
	var pe *inference.ProviderError
	switch {
	case errors.As(err, &ve):
		httpError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, kitchen.ErrDuplicateRequest):
		httpError(w, http.StatusTooManyRequests, "an identical request is already being processed")
	case debounce.IsCancellation(err):
		httpError(w, http.StatusConflict, "request superseded by a newer one")
	case errors.As(err, &pe):
		status := http.StatusBadGateway
		switch pe.Kind {
		case inference.KindQuotaExceeded:
			status = http.StatusTooManyRequests
		case inference.KindBadRequest:
			status = http.StatusBadRequest
		}
		httpError(w, status, pe.Message, err.Error())
	case errors.Is(err, inference.ErrNoImage):
		httpError(w, http.StatusBadGateway, "the model did not return an image", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		httpError(w, http.StatusGatewayTimeout, "generation timed out")
	default:
		httpError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}
