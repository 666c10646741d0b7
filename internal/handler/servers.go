package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/angeloszaimis/mcp-gateway/internal/apperr"
	"github.com/angeloszaimis/mcp-gateway/internal/registry"
)

type registerRequest struct {
	ID              string                `json:"id"`
	Name            string                `json:"name"`
	Endpoint        string                `json:"endpoint"`
	Transport       registry.Transport    `json:"transport"`
	Priority        *int                  `json:"priority,omitempty"`
	RequiresSession bool                  `json:"requiresSession,omitempty"`
	Capabilities    registry.Capabilities `json:"capabilities"`
}

type serversResponse struct {
	Servers []registry.Registration `json:"servers"`
	Count   int                     `json:"count"`
}

func (h *Handler) listServers(w http.ResponseWriter, _ *http.Request) {
	servers := h.gateway.Registry.ListServers()
	writeJSON(w, http.StatusOK, serversResponse{Servers: servers, Count: len(servers)})
}

func (h *Handler) registerServer(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid registration body: " + err.Error()})
		return
	}

	stored, err := h.gateway.RegisterBackend(r.Context(), registry.Registration{
		ID:              req.ID,
		Name:            req.Name,
		Endpoint:        req.Endpoint,
		Transport:       req.Transport,
		Priority:        req.Priority,
		RequiresSession: req.RequiresSession,
		Capabilities:    req.Capabilities,
	})
	if err != nil {
		var vErr *apperr.ValidationError
		if errors.As(err, &vErr) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid registration", Details: vErr.Problems})
			return
		}
		h.requestLogger(r).Error("registration failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusCreated, stored)
}

func (h *Handler) unregisterServer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.gateway.UnregisterBackend(id); err != nil {
		var nf *apperr.NotFoundError
		if errors.As(err, &nf) {
			writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.gateway.Health())
}
