package internal

import (
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

// channelState tracks the realtime channel lifecycle for the current event.
type channelState int

const (
	channelUninitialized channelState = iota
	channelConnecting
	channelJoined
	channelDisconnected
	channelStopped
)

func (s channelState) String() string {
	switch s {
	case channelConnecting:
		return "connecting"
	case channelJoined:
		return "joined"
	case channelDisconnected:
		return "disconnected"
	case channelStopped:
		return "stopped"
	default:
		return "uninitialized"
	}
}

type appMode int

const (
	modeAuthMenu appMode = iota
	modeAuthUsername
	modeAuthEmail
	modeAuthPassword
	modeEvents
	modeChat
	modeChatError
)

type authIntent int

const (
	authIntentNone authIntent = iota
	authIntentLogin
	authIntentSignup
)

// tui model struct for all the components and modes
type TUIModel struct {
	textInput textinput.Model
	viewport  viewport.Model

	serverWSURL  string
	apiBaseURL   string
	sessionPath  string
	session      *Session // injected identity; nil while browsing logged out
	startEventID string   // when set, the client opens this event's chat directly

	events        []Event
	selectedEvent int

	// chat view state for the current event
	eventID      string
	event        *Event
	history      []ChatMessage // historical batch, fetched once per event
	live         []ChatMessage // live-appended messages, receipt order
	bootstrapped bool
	bootstrapErr error

	channel         channelState
	connectAttempt  int // generation counter; results from older dials are discarded
	websocketConn   *websocket.Conn
	writeMutex      sync.Mutex
	connectionError error
	resyncPending   bool // history re-fetch owed after a transport drop

	alertText string // blocking alert overlay; dismissed by any key
	notice    string // one-line status shown on the menu and list screens

	mode         appMode
	authIntent   authIntent
	authUsername string
	authEmail    string
	loading      bool

	width  int
	height int
	ready  bool
}

// NewTUIModel builds the client model. The session is resolved by the caller
// and handed in explicitly; a nil session means the read-only, logged-out view.
// A non-empty startEventID skips the event list and opens that chat directly.
func NewTUIModel(serverWSURL string, session *Session, sessionPath, startEventID string) (*TUIModel, error) {
	apiBase, err := httpBaseFromWSURL(serverWSURL)
	if err != nil {
		return nil, err
	}

	input := textinput.New()
	input.Placeholder = "Type a message…"
	input.CharLimit = 0
	input.Prompt = "> "

	model := &TUIModel{
		textInput:    input,
		serverWSURL:  serverWSURL,
		apiBaseURL:   apiBase,
		sessionPath:  sessionPath,
		session:      session,
		startEventID: startEventID,
		channel:      channelUninitialized,
	}
	if session.Valid() {
		model.mode = modeEvents
		model.loading = true
	} else {
		model.session = nil
		model.mode = modeAuthMenu
	}
	return model, nil
}

func (model *TUIModel) Init() tea.Cmd {
	if model.startEventID != "" {
		return model.enterChat(model.startEventID)
	}
	if model.mode == modeEvents {
		return model.loadEventsCmd()
	}
	return nil
}

// canSend gates the composer: identity and a joined channel, nothing less.
func (model *TUIModel) canSend() bool {
	return model.session.Valid() && model.channel == channelJoined
}

// isOwn decides presentation alignment only, never delivery.
func (model *TUIModel) isOwn(message ChatMessage) bool {
	return model.session != nil && message.UserID == model.session.UserID
}

// renderedMessages is the merge rule: historical batch ++ live appends, in
// receipt order, never re-sorted.
func (model *TUIModel) renderedMessages() []ChatMessage {
	merged := make([]ChatMessage, 0, len(model.history)+len(model.live))
	merged = append(merged, model.history...)
	merged = append(merged, model.live...)
	return merged
}

// knownMessageIDs supports the reconnect reconcile.
func (model *TUIModel) knownMessageIDs() map[string]bool {
	known := make(map[string]bool, len(model.history)+len(model.live))
	for _, message := range model.history {
		known[message.MessageID] = true
	}
	for _, message := range model.live {
		known[message.MessageID] = true
	}
	return known
}

// closeChannel tears the channel down; safe to call in any state, repeatedly.
// The close frame shares the write mutex with sendCmd, which may be mid-write
// on another goroutine.
func (model *TUIModel) closeChannel() {
	if model.websocketConn != nil {
		model.writeMutex.Lock()
		_ = model.websocketConn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		model.writeMutex.Unlock()
		_ = model.websocketConn.Close()
		model.websocketConn = nil
	}
	model.channel = channelStopped
	model.resyncPending = false
}

// resetChatState clears everything scoped to (eventID, identity) when the view
// is left or the scope changes.
func (model *TUIModel) resetChatState() {
	model.closeChannel()
	model.channel = channelUninitialized
	model.eventID = ""
	model.event = nil
	model.history = nil
	model.live = nil
	model.bootstrapped = false
	model.bootstrapErr = nil
	model.connectionError = nil
	model.alertText = ""
}

// enterChat switches to the chat view for one event and kicks off bootstrap
// and, when an identity exists, the channel connect.
func (model *TUIModel) enterChat(eventID string) tea.Cmd {
	model.resetChatState()
	model.mode = modeChat
	model.eventID = eventID
	model.textInput.SetValue("")
	model.textInput.Placeholder = "Type a message…"
	model.textInput.Prompt = "> "

	cmds := []tea.Cmd{model.bootstrapCmd(eventID)}
	if model.session.Valid() {
		cmds = append(cmds, model.beginConnect())
		cmds = append(cmds, model.textInput.Focus())
	}
	return tea.Batch(cmds...)
}

// beginConnect starts a fresh dial attempt. The attempt number travels with
// the connect command so a result from an abandoned dial cannot register a
// second connection for the same view.
func (model *TUIModel) beginConnect() tea.Cmd {
	model.connectAttempt++
	model.channel = channelConnecting
	return model.connectCmd(model.eventID, model.session.Token, model.connectAttempt)
}

// refreshTimeline re-renders the viewport and pins it to the newest entry.
func (model *TUIModel) refreshTimeline() {
	if !model.ready {
		return
	}
	model.viewport.SetContent(model.renderTimeline())
	model.viewport.GotoBottom()
}
