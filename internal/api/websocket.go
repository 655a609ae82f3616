package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/droneview/internal/playback"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsMaxMessage = 4096
)

// The default origin check only admits same-host browsers and clients that
// send no Origin header.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// wsMessage is every server to client message. Type is "frame" for state
// pushes and "result" for command replies.
type wsMessage struct {
	Type   string `json:"type"`
	Frame  *Frame `json:"frame,omitempty"`
	Action string `json:"action,omitempty"`
	OK     bool   `json:"ok,omitempty"`
	Error  string `json:"error,omitempty"`
}

// handleWS pushes a frame per session change and accepts commands of the
// form {"action": "restart|forward|style|select|clear", "value": "..."}.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logf("ws upgrade: %v", err)
		return
	}
	defer conn.Close()

	id, frames := s.session.Subscribe()
	defer s.session.Unsubscribe(id)

	replies := make(chan wsMessage, 8)
	stop := make(chan struct{})
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		s.wsReadPump(conn, replies, stop)
	}()

	s.wsWritePump(conn, frames, replies, readDone)
	close(stop)
	conn.Close()
	<-readDone
}

// wsReadPump decodes commands until the connection fails.
func (s *Server) wsReadPump(conn *websocket.Conn, replies chan<- wsMessage, stop <-chan struct{}) {
	conn.SetReadLimit(wsMaxMessage)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logf("ws read: %v", err)
			}
			return
		}

		var cmd command
		reply := wsMessage{Type: "result"}
		if err := json.Unmarshal(data, &cmd); err != nil {
			reply.Error = "invalid command: " + err.Error()
		} else {
			reply.Action = cmd.Action
			if err := s.apply(cmd); err != nil {
				reply.Error = err.Error()
			} else {
				reply.OK = true
			}
		}

		select {
		case replies <- reply:
		case <-stop:
			return
		}
	}
}

// wsWritePump is the connection's only writer.
func (s *Server) wsWritePump(conn *websocket.Conn, frames <-chan playback.Snapshot, replies <-chan wsMessage, readDone <-chan struct{}) {
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	write := func(msg wsMessage) bool {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(msg) == nil
	}

	for {
		select {
		case snap, ok := <-frames:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return
			}
			frame := s.newFrame(snap)
			if !write(wsMessage{Type: "frame", Frame: &frame}) {
				return
			}
		case reply := <-replies:
			if !write(reply) {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readDone:
			return
		}
	}
}
