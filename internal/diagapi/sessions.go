package diagapi

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/pipelka/robotv-go/internal/server"
)

// sessionsHandler serves the read-only session-list diagnostic endpoint.
type sessionsHandler struct {
	srv *server.Server
}

func newSessionsHandler(srv *server.Server) *sessionsHandler {
	return &sessionsHandler{srv: srv}
}

func (h *sessionsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listSessions",
		Method:      "GET",
		Path:        "/sessions",
		Summary:     "List connected sessions",
		Tags:        []string{"Diagnostics"},
	}, h.list)
}

type listSessionsInput struct{}

type listSessionsOutput struct {
	Body struct {
		Sessions []sessionInfo `json:"sessions"`
	}
}

type sessionInfo struct {
	ClientID        uint16 `json:"client_id"`
	SessionID       string `json:"session_id"`
	RemoteAddr      string `json:"remote_addr"`
	ConnectedSeconds float64 `json:"connected_seconds"`
	StreamState     string `json:"stream_state"`
}

func (h *sessionsHandler) list(ctx context.Context, input *listSessionsInput) (*listSessionsOutput, error) {
	sessions := h.srv.Sessions()
	out := &listSessionsOutput{}
	out.Body.Sessions = make([]sessionInfo, len(sessions))
	for i, sess := range sessions {
		out.Body.Sessions[i] = sessionInfo{
			ClientID:         sess.ClientID(),
			SessionID:        sess.ExternalID().String(),
			RemoteAddr:       sess.RemoteAddr(),
			ConnectedSeconds: sess.ConnectedSince().Seconds(),
			StreamState:      sess.StreamState().String(),
		}
	}
	return out, nil
}
