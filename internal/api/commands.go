package api

import (
	"errors"
	"fmt"
)

// Control actions accepted over the WebSocket and mapped from the POST
// routes.
const (
	ActionRestart = "restart"
	ActionForward = "forward"
	ActionStyle   = "style"
	ActionSelect  = "select"
	ActionClear   = "clear"
)

var errUnknownAction = errors.New("unknown action")

// command is one control request: {"action": "...", "value": "..."}.
type command struct {
	Action string `json:"action"`
	Value  string `json:"value,omitempty"`
}

// apply runs cmd against the session.
func (s *Server) apply(cmd command) error {
	switch cmd.Action {
	case ActionRestart:
		return s.session.Restart()
	case ActionForward:
		return s.session.ForwardToEnd()
	case ActionStyle:
		s.session.SetMapStyle(cmd.Value)
		return nil
	case ActionSelect:
		return s.session.SelectVehicle(cmd.Value)
	case ActionClear:
		return s.session.ClearSelection()
	default:
		return fmt.Errorf("%w: %q", errUnknownAction, cmd.Action)
	}
}
