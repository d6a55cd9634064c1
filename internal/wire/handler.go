package wire

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/matthewbaird/onboarding/internal/funding"
	"github.com/matthewbaird/onboarding/internal/notify"
	"github.com/matthewbaird/onboarding/internal/onboarding"
	"github.com/matthewbaird/onboarding/internal/session"
	"github.com/matthewbaird/onboarding/internal/types"
)

// Handler manages WebSocket connections for the onboarding form.
type Handler struct {
	sessions *session.Manager
}

// NewHandler creates a WebSocket handler.
func NewHandler(sessions *session.Manager) *Handler {
	return &Handler{sessions: sessions}
}

// ServeHTTP upgrades to WebSocket, creates a session for the ?client= key,
// restores its saved snapshot and runs the message loop.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Printf("wire: websocket accept: %v", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	client := r.URL.Query().Get("client")
	sess, err := h.sessions.Create(client, notify.SenderFunc(func(ctx context.Context, t notify.Toast) error {
		return wsjson.Write(ctx, conn, ServerMessage{Type: "toast", Data: toastData(t)})
	}))
	if err != nil {
		log.Printf("wire: creating session: %v", err)
		conn.Close(websocket.StatusInternalError, "session unavailable")
		return
	}
	defer h.sessions.Remove(context.WithoutCancel(ctx), sess.ID)
	sess.Attach()
	defer sess.Detach()

	ctrl := sess.Controller
	restored, err := ctrl.Restore(ctx)
	if err != nil {
		log.Printf("wire: %s: restore: %v", sess.ID, err)
	}
	h.send(ctx, conn, ServerMessage{
		Type: "session",
		Data: SessionData{SessionID: sess.ID, Client: client, Restored: restored},
	})
	if v, err := ctrl.View(); err == nil {
		h.send(ctx, conn, ServerMessage{Type: "view", Data: v})
	} else {
		h.sendError(ctx, conn, "", err)
	}

	// Message loop
	for {
		var msg ClientMessage
		err := wsjson.Read(ctx, conn, &msg)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				log.Printf("wire: %s: connection closed: %v", sess.ID, websocket.CloseStatus(err))
			}
			return
		}
		sess.Touch()

		if msg.Type == "ping" {
			h.send(ctx, conn, ServerMessage{Type: "pong", RequestID: msg.ID})
			continue
		}

		ev, err := Decode(msg)
		if err != nil {
			h.sendError(ctx, conn, msg.ID, err)
			continue
		}
		v, err := ctrl.Dispatch(ctx, ev)
		if err != nil {
			h.sendError(ctx, conn, msg.ID, err)
		}
		if v != nil {
			h.send(ctx, conn, ServerMessage{Type: "view", RequestID: msg.ID, Data: v})
		}
	}
}

// decodeError is a malformed client message.
type decodeError struct {
	code string
	msg  string
}

func (e *decodeError) Error() string { return e.msg }

func invalidData(msgType string, err error) error {
	return &decodeError{code: CodeInvalidData, msg: fmt.Sprintf("invalid %s data: %v", msgType, err)}
}

// Decode converts a client message into a controller event.
func Decode(msg ClientMessage) (onboarding.Event, error) {
	switch msg.Type {
	case "select":
		var d SelectData
		if err := unmarshal(msg.Data, &d); err != nil {
			return nil, invalidData(msg.Type, err)
		}
		ref, err := d.ref()
		if err != nil {
			return nil, invalidData(msg.Type, err)
		}
		return onboarding.Select{Ref: ref}, nil
	case "toggle_mode":
		return onboarding.ToggleMode{}, nil
	case "edit":
		var d EditData
		if err := unmarshal(msg.Data, &d); err != nil {
			return nil, invalidData(msg.Type, err)
		}
		value := d.Value
		if d.Checked != nil {
			value = ""
			if *d.Checked {
				value = "true"
			}
		}
		return onboarding.Edit{Field: d.Field, Value: value}, nil
	case "save":
		return onboarding.Save{}, nil
	case "refresh":
		return onboarding.Refresh{}, nil
	case "funding_open", "funding_remove":
		var d FundingRefData
		if err := unmarshal(msg.Data, &d); err != nil {
			return nil, invalidData(msg.Type, err)
		}
		t, err := funding.ParseType(d.Type)
		if err != nil {
			return nil, invalidData(msg.Type, err)
		}
		index := onboarding.NewInstance
		if d.Index != nil && *d.Index >= 0 {
			index = *d.Index
		}
		if msg.Type == "funding_remove" {
			if d.Index == nil {
				return nil, invalidData(msg.Type, fmt.Errorf("index is required"))
			}
			return onboarding.FundingRemove{Type: t, Index: *d.Index}, nil
		}
		return onboarding.FundingOpen{Type: t, Index: index}, nil
	case "funding_submit":
		var d FundingSubmitData
		if err := unmarshal(msg.Data, &d); err != nil {
			return nil, invalidData(msg.Type, err)
		}
		return onboarding.FundingSubmit{Fields: d.Fields}, nil
	case "funding_close":
		return onboarding.FundingClose{}, nil
	case "funding_confirm":
		var d FundingConfirmData
		if err := unmarshal(msg.Data, &d); err != nil {
			return nil, invalidData(msg.Type, err)
		}
		return onboarding.FundingConfirm{Confirm: d.Confirm}, nil
	}
	return nil, &decodeError{code: CodeUnknownType, msg: fmt.Sprintf("unknown message type: %s", msg.Type)}
}

func unmarshal(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("missing data")
	}
	return json.Unmarshal(data, v)
}

func (d SelectData) ref() (types.SectionRef, error) {
	if d.Key != "" {
		return types.ParseSectionKey(d.Key)
	}
	kind, err := types.ParseKind(d.Kind)
	if err != nil {
		return types.SectionRef{}, err
	}
	if d.EntityID == "" || d.Section == "" {
		return types.SectionRef{}, fmt.Errorf("%w: entity_id and section are required", types.ErrInvalidRef)
	}
	return types.SectionRef{Kind: kind, EntityID: d.EntityID, Section: types.Section(d.Section)}, nil
}

func (h *Handler) send(ctx context.Context, conn *websocket.Conn, msg ServerMessage) {
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		log.Printf("wire: write error: %v", err)
	}
}

func (h *Handler) sendError(ctx context.Context, conn *websocket.Conn, requestID string, err error) {
	data := errorData(err)
	if de, ok := err.(*decodeError); ok {
		data.Code = de.code
	}
	h.send(ctx, conn, ServerMessage{
		Type:      "error",
		RequestID: requestID,
		Data:      data,
	})
}
