package gateway

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/agentboard/agentboard/internal/constants"
	"github.com/agentboard/agentboard/internal/registry"
	"github.com/agentboard/agentboard/internal/sessiondb"
	"github.com/agentboard/agentboard/internal/tmux"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Gateway is the single websocket endpoint clients connect to: one
// connection per browser tab, each with its own TerminalProxy and
// registry subscription.
type Gateway struct {
	Registry *registry.Registry
	DB       *sessiondb.DB
	TM       *tmux.Tmux
	Windows  *WindowSource

	// TmuxSession is the tmux session session-create spawns new windows
	// into.
	TmuxSession string

	AllowKillExternal bool

	Log *slog.Logger

	lockMu       sync.Mutex
	enterLocks   map[string]time.Time // tmux window -> unlock time
}

// NewGateway constructs a Gateway. Log defaults to slog.Default() when nil.
func NewGateway(reg *registry.Registry, db *sessiondb.DB, tm *tmux.Tmux, windows *WindowSource, tmuxSession string, allowKillExternal bool, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		Registry:          reg,
		DB:                db,
		TM:                tm,
		Windows:           windows,
		TmuxSession:       tmuxSession,
		AllowKillExternal: allowKillExternal,
		Log:               log,
		enterLocks:        make(map[string]time.Time),
	}
}

// IsLastUserMessageLocked satisfies poller.EnterLockChecker: it reports
// whether tmuxWindow had an Enter keystroke relayed through this
// Gateway within the last EnterCaptureLockDuration.
func (g *Gateway) IsLastUserMessageLocked(tmuxWindow string) bool {
	g.lockMu.Lock()
	defer g.lockMu.Unlock()
	until, ok := g.enterLocks[tmuxWindow]
	return ok && time.Now().Before(until)
}

func (g *Gateway) lockEnter(tmuxWindow string) {
	if tmuxWindow == "" {
		return
	}
	g.lockMu.Lock()
	g.enterLocks[tmuxWindow] = time.Now().Add(constants.EnterCaptureLockDuration)
	g.lockMu.Unlock()
}

// ServeHTTP upgrades the request to a websocket and runs the connection
// until the client disconnects.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.Log.Warn("websocket upgrade failed", "err", err)
		return
	}
	c := &connection{
		id:      uuid.NewString(),
		gw:      g,
		ws:      conn,
		stopMon: make(chan struct{}),
	}
	c.run()
}

// connection holds the per-client state for one websocket session: its
// current terminal attachment (if any) and the registry listeners
// registered on its behalf.
type connection struct {
	id string
	gw *Gateway
	ws *websocket.Conn

	writeMu sync.Mutex

	proxy            *TerminalProxy
	currentSessionID string
	stopMon          chan struct{}
}

func (c *connection) run() {
	defer c.ws.Close()

	// Registry.On has no matching Off; this connection's listeners live
	// for the process lifetime, but writes to a closed websocket are
	// silently dropped by send, so a finished connection just leaks a
	// few closures rather than a goroutine.
	c.gw.Registry.On(registry.EventSessions, func(payload any) {
		if list, ok := payload.([]registry.Session); ok {
			c.sendSessions(list)
		}
	})

	c.gw.Registry.On(registry.EventSessionUpdated, func(payload any) {
		if s, ok := payload.(registry.Session); ok {
			c.send(outMsg{Type: outSessionUpdate, Session: &s})
		}
	})
	c.gw.Registry.On(registry.EventSessionAdded, func(payload any) {
		if s, ok := payload.(registry.Session); ok {
			c.send(outMsg{Type: outSessionCreated, Session: &s})
		}
	})
	c.gw.Registry.On(registry.EventSessionRemoved, func(payload any) {
		if id, ok := payload.(string); ok {
			c.send(outMsg{Type: outSessionRemoved, SessionID: id})
		}
	})

	c.sendSessions(c.gw.Registry.List())

	c.proxy = NewTerminalProxy(c.gw.TM, func(data []byte) {
		c.send(outMsg{
			Type:      outTerminalOutput,
			SessionID: c.currentSessionID,
			Data:      base64.StdEncoding.EncodeToString(data),
		})
	})
	go c.proxy.MonitorLiveness(c.stopMon)

	defer func() {
		close(c.stopMon)
		c.proxy.Dispose()
	}()

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.dispatch(raw)
	}
}

func (c *connection) sendSessions(list []registry.Session) {
	c.send(outMsg{Type: outSessions, Sessions: list})
	c.send(outMsg{Type: outAgentSessions, AgentSessions: list})
}

func (c *connection) send(m outMsg) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.WriteJSON(m)
}

func (c *connection) sendError(sessionID, message string) {
	c.send(outMsg{Type: outError, SessionID: sessionID, Message: message})
}

func (c *connection) dispatch(raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.sendError("", "malformed message")
		return
	}

	switch env.Type {
	case inTerminalAttach:
		c.handleAttach(raw)
	case inTerminalInput:
		c.handleInput(raw)
	case inTerminalResize:
		c.handleResize(raw)
	case inTerminalDetach:
		c.handleDetach(raw)
	case inCancelCopyMode:
		c.handleCancelCopyMode(raw)
	case inSessionCreate:
		c.handleSessionCreate(raw)
	case inSessionKill:
		c.handleSessionKill(raw)
	case inSessionRename:
		c.handleSessionRename(raw)
	case inSessionRefresh:
		c.sendSessions(c.gw.Registry.List())
	case inSessionPin:
		c.handleSessionPin(raw)
	default:
		c.sendError("", "unknown message type: "+env.Type)
	}
}

func (c *connection) handleAttach(raw []byte) {
	var m inAttachMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		c.sendError("", "malformed terminal-attach")
		return
	}
	target := m.TmuxTarget
	if target == "" {
		if s, ok := c.gw.Registry.Get(m.SessionID); ok {
			target = s.CurrentWindow
		}
	}
	if target == "" {
		c.send(outMsg{Type: outTerminalError, SessionID: m.SessionID, Code: string(ErrNoWindow), Message: "session has no live window"})
		return
	}

	c.currentSessionID = m.SessionID
	if err := c.proxy.SwitchTo(target); err != nil {
		c.sendProxyError(m.SessionID, err)
		return
	}
	if m.Cols > 0 && m.Rows > 0 {
		_ = c.proxy.Resize(m.Cols, m.Rows)
	}
	c.send(outMsg{Type: outTerminalReady, SessionID: m.SessionID})
}

func (c *connection) handleInput(raw []byte) {
	var m inInputMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		c.sendError("", "malformed terminal-input")
		return
	}
	window := c.proxy.CurrentWindow()
	if err := c.proxy.Write(m.Data); err != nil {
		c.sendProxyError(m.SessionID, err)
		return
	}
	if window != "" && containsEnter(m.Data) {
		c.gw.lockEnter(window)
	}
}

func containsEnter(data string) bool {
	for _, r := range data {
		if r == '\n' || r == '\r' {
			return true
		}
	}
	return false
}

func (c *connection) handleResize(raw []byte) {
	var m inResizeMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		c.sendError("", "malformed terminal-resize")
		return
	}
	if err := c.proxy.Resize(m.Cols, m.Rows); err != nil {
		c.sendProxyError(m.SessionID, err)
	}
}

func (c *connection) handleDetach(raw []byte) {
	var m inSessionIDMsg
	_ = json.Unmarshal(raw, &m)
	c.proxy.Dispose()
	c.currentSessionID = ""
}

func (c *connection) handleCancelCopyMode(raw []byte) {
	var m inSessionIDMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		return
	}
	window := c.proxy.CurrentWindow()
	if window == "" {
		return
	}
	_ = c.gw.TM.SendEnter(window)
}

func (c *connection) sendProxyError(sessionID string, err error) {
	pe, ok := err.(*TerminalProxyError)
	if !ok {
		c.sendError(sessionID, err.Error())
		return
	}
	c.send(outMsg{
		Type:      outTerminalError,
		SessionID: sessionID,
		Code:      string(pe.Code),
		Message:   pe.Message,
		Retryable: pe.Retryable,
	})
}
