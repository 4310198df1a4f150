// events.go — WebSocket stream of rendered previews for one session.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/xob0t/GoCard/pkg/compositor"
	"github.com/xob0t/GoCard/pkg/generator"
)

const (
	eventWriteTimeout = 10 * time.Second
	eventQueue        = 8
)

// Frame types sent to the client.
const (
	FrameView    = "view"
	FramePreview = "preview"
	FrameError   = "error"
)

// eventFrame is one server-to-client message.
type eventFrame struct {
	Type    string           `json:"type"`
	Seq     uint64           `json:"seq,omitempty"`
	Zoom    float64          `json:"zoom,omitempty"`
	Width   int              `json:"width,omitempty"`
	Height  int              `json:"height,omitempty"`
	PNG     []byte           `json:"png,omitempty"`
	View    *compositor.View `json:"view,omitempty"`
	Message string           `json:"message,omitempty"`
}

// clientMessage is one client-to-server message.
type clientMessage struct {
	Type   string                 `json:"type"` // display, dismiss, refresh
	Width  int                    `json:"width,omitempty"`
	Height int                    `json:"height,omitempty"`
	Kind   compositor.WarningKind `json:"kind,omitempty"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	e := entryFrom(r)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowedOrigins,
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "session_id", e.id, "error", err)
		return
	}
	defer ws.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sendCh := make(chan eventFrame, eventQueue)
	send := func(f eventFrame) {
		select {
		case sendCh <- f:
		default:
			s.logger.Warn("dropped event for slow client", "session_id", e.id, "type", f.Type)
		}
	}
	viewFrame := func() eventFrame {
		v := e.sess.View()
		return eventFrame{Type: FrameView, View: &v}
	}

	detach := s.sessions.attach(e.id)
	defer detach()

	unsub := e.sess.OnPreview(func(p compositor.Preview) {
		s.sessions.touch(e.id)
		data, err := generator.PNGBytes(p.Image)
		if err != nil {
			send(eventFrame{Type: FrameError, Message: err.Error()})
			return
		}
		v := e.sess.View()
		b := p.Image.Bounds()
		send(eventFrame{
			Type:   FramePreview,
			Seq:    p.Seq,
			Zoom:   p.Zoom,
			Width:  b.Dx(),
			Height: b.Dy(),
			PNG:    data,
			View:   &v,
		})
	})
	defer unsub()

	s.logger.Info("preview stream opened", "session_id", e.id)
	go s.writeEvents(ctx, cancel, ws, sendCh)

	send(viewFrame())
	e.sess.Refresh()

	for {
		var msg clientMessage
		if err := wsjson.Read(ctx, ws, &msg); err != nil {
			s.logger.Debug("preview stream closed", "session_id", e.id, "error", err)
			return
		}
		if _, ok := s.sessions.get(e.id); !ok {
			ws.Close(websocket.StatusGoingAway, "session closed")
			return
		}

		switch msg.Type {
		case "display":
			if err := e.sess.SetDisplay(msg.Width, msg.Height); err != nil {
				send(eventFrame{Type: FrameError, Message: err.Error()})
			}
		case "dismiss":
			e.sess.DismissWarning(msg.Kind)
			send(viewFrame())
		case "refresh":
			e.sess.Refresh()
		default:
			send(eventFrame{Type: FrameError, Message: fmt.Sprintf("unknown message type %q", msg.Type)})
		}
	}
}

// writeEvents drains sendCh to the socket until ctx ends or a write fails.
func (s *Server) writeEvents(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, sendCh <-chan eventFrame) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-sendCh:
			wctx, wcancel := context.WithTimeout(ctx, eventWriteTimeout)
			err := wsjson.Write(wctx, ws, f)
			wcancel()
			if err != nil {
				s.logger.Debug("event write failed", "error", err)
				return
			}
		}
	}
}
