package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/zhengjr9/edgechat/internal/api"
	apierrors "github.com/zhengjr9/edgechat/internal/errors"
	"github.com/zhengjr9/edgechat/internal/httputil"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, api.ServiceInfo{
		Service: serviceName,
		Version: Version,
		Status:  "running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.gw.Health(r.Context())
	code := http.StatusOK
	if !status.Reachable {
		code = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, code, status)
}

func (s *Server) handleChatCompletion(w http.ResponseWriter, r *http.Request) {
	var req api.ChatCompletionRequest
	if err := decodeBody(w, r, &req); err != nil {
		apierrors.WriteError(w, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	resp, err := s.gw.ChatCompletion(ctx, &req)
	if err != nil {
		apierrors.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	var req api.CompletionRequest
	if err := decodeBody(w, r, &req); err != nil {
		apierrors.WriteError(w, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	resp, err := s.gw.Complete(ctx, &req)
	if err != nil {
		apierrors.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.gw.ListModels(r.Context())
	if err != nil {
		apierrors.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models)
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), s.timeout)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", apierrors.ErrValidation, err)
	}
	return nil
}

func notFound(w http.ResponseWriter, r *http.Request) {
	apierrors.WriteJSONError(w, http.StatusNotFound, "no route for "+r.URL.Path)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	apierrors.WriteJSONError(w, http.StatusMethodNotAllowed, r.Method+" not allowed on "+r.URL.Path)
}
