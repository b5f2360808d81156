// Package chat contains the HTTP handlers of the support chat: the stored
// history of a conversation, a plain HTTP endpoint to post a message, and
// the WebSocket that runs a live chat session.
//
// Every handler below sits behind middleware.Session, so
// session.FromContext always finds the caller. Support staff (ADMIN) reach
// every conversation; a USER only the one whose clientId is their user id.
package chat

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/aanand-mishra/studyabroad-api/internal/chat"
	"github.com/aanand-mishra/studyabroad-api/internal/session"
	"github.com/aanand-mishra/studyabroad-api/internal/storage"
	"github.com/aanand-mishra/studyabroad-api/internal/types"
	"github.com/aanand-mishra/studyabroad-api/internal/utils/response"
)

// Deps are the collaborators the chat handlers share.
type Deps struct {
	Channel   chat.Channel
	Persister chat.Persister
	Store     storage.Storage
	Options   chat.Options

	// OriginPatterns are passed to websocket.AcceptOptions.
	OriginPatterns []string
}

func (d Deps) logger() *slog.Logger {
	if d.Options.Logger != nil {
		return d.Options.Logger
	}
	return slog.Default()
}

// authorize returns the caller's session when it may reach the
// conversation of clientID. Otherwise it answers 401 or 403 and returns
// false.
func authorize(w http.ResponseWriter, r *http.Request, clientID string) (session.Session, bool) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(session.ErrNoSession))
		return session.Session{}, false
	}
	if !sess.CanAccess(clientID) {
		slog.Info("conversation not allowed",
			slog.String("client_id", clientID),
			slog.String("user_id", sess.UserID))
		response.WriteJSON(w, http.StatusForbidden, response.GeneralError(session.ErrForbidden))
		return session.Session{}, false
	}
	return sess, true
}

// ─────────────────────────────────────────────────────────────────────────────
// History handles GET /api/chat/{clientId}/messages
// Returns the stored messages of a conversation in the order they were
// sent. An unknown client gives [] rather than an error.
//
// Error responses:
//
//	401 Unauthorized : no session (from middleware.Session)
//	403 Forbidden    : a USER asking for someone else's conversation
//	500 Internal     : database error
//
// ─────────────────────────────────────────────────────────────────────────────
func History(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := r.PathValue("clientId")
		if _, ok := authorize(w, r, clientID); !ok {
			return
		}
		slog.Info("getting chat history", slog.String("client_id", clientID))

		messages, err := store.GetChatMessages(r.Context(), clientID)
		if err != nil {
			slog.Error("error getting chat history",
				slog.String("client_id", clientID),
				slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		response.WriteJSON(w, http.StatusOK, messages)
	}
}

var errBlankMessage = errors.New("field message is required")

type postRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
}

type postResponse struct {
	Status  string            `json:"status"`
	Success string            `json:"success"`
	Message types.ChatMessage `json:"message"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Post handles POST /api/chat/{clientId}/messages
// Sends one message as the caller, in the caller's role. Support staff
// use it to answer a client without keeping a socket open.
//
// Request body (JSON):
//
//	{ "message": "Hello, how can we help?" }
//
// Success response (201 Created):
//
//	{ "status": "ok", "success": "Message sent", "message": { "id": "...", ... } }
//
// Error responses:
//
//	400 Bad Request         : empty body, malformed JSON, or empty message
//	401 Unauthorized        : no session (from middleware.Session)
//	403 Forbidden           : a USER posting to someone else's conversation
//	422 Unprocessable Entity: the chat-support action refused the message
//	500 Internal            : channel or database failure
//
// ─────────────────────────────────────────────────────────────────────────────
func Post(deps Deps) http.HandlerFunc {
	validate := validator.New()

	return func(w http.ResponseWriter, r *http.Request) {
		clientID := r.PathValue("clientId")
		sess, ok := authorize(w, r, clientID)
		if !ok {
			return
		}

		var req postRequest
		if err := response.DecodeJSON(r, &req); err != nil {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}
		if err := validate.Struct(req); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				response.WriteJSON(w, http.StatusBadRequest, response.ValidationError(verrs))
				return
			}
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}

		ctrl := chat.NewController(sess, deps.Channel, deps.Persister, nil, deps.Options)
		sub, err := ctrl.Open(r.Context(), clientID)
		if err != nil {
			deps.logger().Error("error opening chat session",
				slog.String("client_id", clientID),
				slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}
		defer sub.Close()

		outcome, err := ctrl.Send(r.Context(), req.Message)
		if err != nil {
			deps.logger().Error("error sending chat message",
				slog.String("client_id", clientID),
				slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}
		if outcome.Error != "" {
			response.WriteJSON(w, http.StatusUnprocessableEntity, response.Response{
				Status: response.StatusError,
				Error:  outcome.Error,
			})
			return
		}

		sent, ok := ctrl.LastSent()
		if !ok {
			// blank text is not sent
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errBlankMessage))
			return
		}
		slog.Info("chat message posted",
			slog.String("client_id", clientID),
			slog.String("role", string(sess.Role)))

		response.WriteJSON(w, http.StatusCreated, postResponse{
			Status:  response.StatusOK,
			Success: outcome.Success,
			Message: sent,
		})
	}
}
