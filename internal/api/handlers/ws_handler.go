package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Preyoshi04/MockWise/internal/interview"
)

const (
	wsWriteWait     = 10 * time.Second
	wsPongWait      = 60 * time.Second
	wsPingEvery     = 30 * time.Second
	wsCameraTimeout = 20 * time.Second
	wsQueueSize     = 16
)

// WSHandler runs one interview.Controller per websocket connection. The
// browser owns the media devices, so the camera is driven remotely.
type WSHandler struct {
	dialer   interview.Dialer
	recorder interview.Recorder
	log      *logrus.Logger
	upgrader websocket.Upgrader

	cameraTimeout time.Duration
}

func NewWSHandler(dialer interview.Dialer, recorder interview.Recorder, log *logrus.Logger, allowedOrigins []string) *WSHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	allow := map[string]struct{}{}
	for _, o := range allowedOrigins {
		allow[o] = struct{}{}
	}
	return &WSHandler{
		dialer:   dialer,
		recorder: recorder,
		log:      log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(allow) == 0 {
					return true
				}
				_, ok := allow[r.Header.Get("Origin")]
				return ok
			},
		},
		cameraTimeout: wsCameraTimeout,
	}
}

type wsClientMsg struct {
	Type   string `json:"type"` // start|toggle_camera|end|abort|camera_result
	Reason string `json:"reason,omitempty"`

	// camera_result
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"` // "denied" or free text
}

type wsServerMsg struct {
	Type    string              `json:"type"` // state|camera|error
	State   *interview.Snapshot `json:"state,omitempty"`
	Action  string              `json:"action,omitempty"`
	Message string              `json:"message,omitempty"`
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.c.WriteJSON(v)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (w *wsConn) close(code int, text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteWait))
}

func (h *WSHandler) Session(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	log := h.log.WithFields(logrus.Fields{
		"user_id":    userID,
		"request_id": c.GetString("request_id"),
	})

	// The request context ends when the handler returns; the session must be
	// torn down by us, not by net/http.
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	cam := &remoteCamera{conn: wc, results: make(chan wsClientMsg, 1), timeout: h.cameraTimeout}
	ctrl := interview.NewController(interview.Config{
		Dialer:   h.dialer,
		Camera:   cam,
		Recorder: h.recorder,
		Logger:   log,
		Observer: func(s interview.Snapshot) {
			if err := wc.writeJSON(wsServerMsg{Type: "state", State: &s}); err != nil {
				log.WithError(err).Debug("ws: state write failed")
			}
		},
	})
	go func() {
		if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Warn("ws: session loop ended with error")
		}
	}()

	// Commands run one at a time, in arrival order, off the reader goroutine:
	// ToggleCamera waits on a camera_result that only the reader can deliver.
	queue := make(chan wsClientMsg, wsQueueSize)
	go func() {
		for msg := range queue {
			if err := h.dispatch(ctx, ctrl, userID, msg); err != nil {
				_ = wc.writeJSON(wsServerMsg{Type: "error", Message: err.Error()})
			}
		}
	}()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		defer close(queue)

		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})

		for {
			_, data, rerr := conn.ReadMessage()
			if rerr != nil {
				return
			}
			var msg wsClientMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				_ = wc.writeJSON(wsServerMsg{Type: "error", Message: "invalid json"})
				continue
			}

			switch msg.Type {
			case "camera_result":
				cam.deliver(msg)
			case "start", "toggle_camera", "end", "abort":
				select {
				case queue <- msg:
				default:
					_ = wc.writeJSON(wsServerMsg{Type: "error", Message: "too many pending commands"})
				}
			default:
				_ = wc.writeJSON(wsServerMsg{Type: "error", Message: "unknown message type"})
			}
		}
	}()

	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-readDone:
			// client went away: unmount
			cancel()
			<-ctrl.Done()
			return
		case <-ctrl.Done():
			wc.close(websocket.CloseNormalClosure, ctrl.Snapshot().State.String())
			return
		case <-ticker.C:
			if err := wc.ping(); err != nil {
				cancel()
				<-ctrl.Done()
				return
			}
		}
	}
}

func (h *WSHandler) dispatch(ctx context.Context, ctrl *interview.Controller, userID string, msg wsClientMsg) error {
	switch msg.Type {
	case "start":
		return ctrl.Start(ctx, userID)
	case "toggle_camera":
		return ctrl.ToggleCamera(ctx)
	case "end":
		return ctrl.End(ctx)
	case "abort":
		reason := msg.Reason
		if reason == "" {
			reason = "client-abort"
		}
		return ctrl.Abort(ctx, reason)
	}
	return nil
}

// remoteCamera asks the browser to open or close its camera and waits for the
// camera_result answer.
type remoteCamera struct {
	conn    *wsConn
	results chan wsClientMsg
	timeout time.Duration
}

func (r *remoteCamera) deliver(msg wsClientMsg) {
	select {
	case r.results <- msg:
	default:
	}
}

func (r *remoteCamera) Open(ctx context.Context) error {
	// drop an answer left over from an earlier, timed out request
	select {
	case <-r.results:
	default:
	}

	if err := r.conn.writeJSON(wsServerMsg{Type: "camera", Action: "open"}); err != nil {
		return err
	}

	t := time.NewTimer(r.timeout)
	defer t.Stop()
	select {
	case res := <-r.results:
		if res.OK {
			return nil
		}
		if res.Error == "denied" {
			return interview.ErrCameraDenied
		}
		if res.Error == "" {
			res.Error = "camera unavailable"
		}
		return errors.New(res.Error)
	case <-t.C:
		return errors.New("camera did not respond")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *remoteCamera) Close() error {
	return r.conn.writeJSON(wsServerMsg{Type: "camera", Action: "close"})
}
