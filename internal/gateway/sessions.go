package gateway

import (
	"encoding/json"
	"strings"
)

// handleSessionCreate spawns a new tmux window for a fresh agent
// session. It does not write to sessiondb directly: LogPoller discovers
// the new window's log on its next cycle and inserts the record, the
// same path an operator manually starting tmux would take.
func (c *connection) handleSessionCreate(raw []byte) {
	var m inCreateMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		c.sendError("", "malformed session-create")
		return
	}
	if m.ProjectPath == "" {
		c.sendError("", "session-create requires projectPath")
		return
	}
	command := m.Command
	if command == "" {
		command = "claude"
	}

	target, err := c.gw.TM.NewWindow(c.gw.TmuxSession, m.Name, m.ProjectPath, command)
	if err != nil {
		c.sendError("", "creating tmux window: "+err.Error())
		return
	}
	c.gw.Windows.MarkManaged(target)
}

// handleSessionKill kills the tmux session backing a session's current
// window. Killing a window agentboard didn't create requires
// AllowKillExternal, since it's destructive to something another
// process or operator is using.
func (c *connection) handleSessionKill(raw []byte) {
	var m inSessionIDMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		c.sendError("", "malformed session-kill")
		return
	}
	s, ok := c.gw.Registry.Get(m.SessionID)
	if !ok || s.CurrentWindow == "" {
		c.send(outMsg{Type: outKillFailed, SessionID: m.SessionID, Message: "session has no live window"})
		return
	}

	managed := c.gw.Windows.isManaged(s.CurrentWindow)
	if !managed && !c.gw.AllowKillExternal {
		c.send(outMsg{Type: outKillFailed, SessionID: m.SessionID, Message: "refusing to kill a window agentboard did not create"})
		return
	}

	tmuxSession := sessionNameFromTarget(s.CurrentWindow)
	if err := c.gw.TM.KillSession(tmuxSession); err != nil {
		c.send(outMsg{Type: outKillFailed, SessionID: m.SessionID, Message: err.Error()})
		return
	}
	c.gw.Windows.Forget(s.CurrentWindow)
}

func (c *connection) handleSessionRename(raw []byte) {
	var m inRenameMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		c.sendError("", "malformed session-rename")
		return
	}
	newName := strings.TrimSpace(m.NewName)
	if newName == "" {
		c.sendError(m.SessionID, "name cannot be empty")
		return
	}
	unique, err := c.gw.DB.UniqueDisplayName(newName)
	if err != nil {
		c.sendError(m.SessionID, err.Error())
		return
	}
	if err := c.gw.DB.Update(m.SessionID, dbPatchDisplayName(unique)); err != nil {
		c.sendError(m.SessionID, err.Error())
		return
	}
	c.gw.Registry.UpdateSession(m.SessionID, registryPatchDisplayName(unique))
}

func (c *connection) handleSessionPin(raw []byte) {
	var m inPinMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		c.sendError("", "malformed session-pin")
		return
	}
	if err := c.gw.DB.SetPinned(m.SessionID, m.IsPinned); err != nil {
		c.send(outMsg{Type: outSessionPinResult, SessionID: m.SessionID, OK: false, Message: err.Error()})
		return
	}
	pinned := m.IsPinned
	c.gw.Registry.UpdateSession(m.SessionID, registryPatchIsPinned(pinned))
	c.send(outMsg{Type: outSessionPinResult, SessionID: m.SessionID, OK: true})
}

// sessionNameFromTarget extracts the tmux session name from a
// "session:@windowId" target.
func sessionNameFromTarget(target string) string {
	if idx := strings.LastIndex(target, ":"); idx >= 0 {
		return target[:idx]
	}
	return target
}
