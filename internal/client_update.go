package internal

import (
	"log"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

// asynchronous events that drive the state machine
type (
	eventsLoadedMsg []Event
	eventsFailedMsg struct{ err error }

	bootstrapLoadedMsg struct {
		eventID string
		event   Event
		history []ChatMessage
	}
	bootstrapFailedMsg struct {
		eventID string
		err     error
	}

	channelJoinedMsg struct {
		eventID string
		attempt int
		conn    *websocket.Conn
	}
	channelFailedMsg struct {
		eventID string
		attempt int
		err     error
	}
	channelDroppedMsg struct {
		eventID string
		err     error
	}
	reconnectMsg struct{}

	pushMsg struct {
		eventID string
		message ChatMessage
	}
	pushFailedMsg struct {
		eventID string
		err     error
	}
	pushSkippedMsg struct{ eventID string }
	errorFrameMsg  struct {
		eventID string
		code    string
		text    string
	}

	messageSentMsg struct{}
	sendFailedMsg  struct{ err error }

	resyncMsg struct {
		eventID  string
		messages []ChatMessage
		err      error
	}

	authOKMsg     struct{ session Session }
	authFailedMsg struct{ err error }
	loggedOutMsg  struct{}
)

func (model *TUIModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMessage := message.(type) {
	case tea.WindowSizeMsg:
		model.width = typedMessage.Width
		model.height = typedMessage.Height
		model.viewport.Width = typedMessage.Width
		model.viewport.Height = timelineHeight(typedMessage.Height)
		model.ready = true
		model.refreshTimeline()
		return model, nil

	case tea.KeyMsg:
		return model.handleKey(typedMessage)

	case eventsLoadedMsg:
		model.loading = false
		model.events = typedMessage
		if model.selectedEvent >= len(model.events) {
			model.selectedEvent = 0
		}
		return model, nil

	case eventsFailedMsg:
		model.loading = false
		model.notice = "Could not load events: " + typedMessage.err.Error()
		return model, nil

	case bootstrapLoadedMsg:
		if !model.chatScoped(typedMessage.eventID) {
			// slow response after the view moved on; discard.
			return model, nil
		}
		event := typedMessage.event
		model.event = &event
		model.history = typedMessage.history
		model.bootstrapped = true
		model.refreshTimeline()
		return model, nil

	case bootstrapFailedMsg:
		if !model.chatScoped(typedMessage.eventID) {
			return model, nil
		}
		// no partial chat view: the channel goes down with the bootstrap.
		model.closeChannel()
		model.bootstrapErr = typedMessage.err
		model.mode = modeChatError
		return model, nil

	case channelJoinedMsg:
		if model.mode != modeChat || model.eventID != typedMessage.eventID ||
			model.channel != channelConnecting || typedMessage.attempt != model.connectAttempt {
			// a dial that was abandoned before it finished; only the current
			// attempt may register, anything else would double-join the group.
			if typedMessage.conn != nil {
				_ = typedMessage.conn.Close()
			}
			return model, nil
		}
		model.websocketConn = typedMessage.conn
		model.channel = channelJoined
		model.connectionError = nil
		commands := []tea.Cmd{model.readOnceCmd(typedMessage.conn, typedMessage.eventID)}
		if model.resyncPending {
			model.resyncPending = false
			commands = append(commands, model.resyncCmd(typedMessage.eventID))
		}
		return model, tea.Batch(commands...)

	case channelFailedMsg:
		if !model.chatScoped(typedMessage.eventID) || model.channel != channelConnecting ||
			typedMessage.attempt != model.connectAttempt {
			return model, nil
		}
		// handshake failures degrade silently; history stays readable.
		log.Printf("channel connect failed for event %s: %v", typedMessage.eventID, typedMessage.err)
		model.channel = channelDisconnected
		model.connectionError = typedMessage.err
		return model, model.scheduleReconnect()

	case channelDroppedMsg:
		if model.eventID != typedMessage.eventID || model.channel == channelStopped {
			return model, nil
		}
		if model.websocketConn != nil {
			_ = model.websocketConn.Close()
			model.websocketConn = nil
		}
		model.channel = channelDisconnected
		model.connectionError = typedMessage.err
		// the transport owes us whatever was pushed during the outage; flag the
		// history re-fetch that runs after the next successful join.
		model.resyncPending = true
		return model, model.scheduleReconnect()

	case reconnectMsg:
		if model.mode == modeChat && model.channel == channelDisconnected && model.session.Valid() {
			return model, model.beginConnect()
		}
		return model, nil

	case pushMsg:
		if model.mode != modeChat || model.eventID != typedMessage.eventID || model.channel != channelJoined {
			// push for a torn-down view; no state update after unmount.
			return model, nil
		}
		model.live = append(model.live, typedMessage.message)
		model.refreshTimeline()
		return model, model.readOnceCmd(model.websocketConn, typedMessage.eventID)

	case pushFailedMsg:
		if model.mode != modeChat || model.eventID != typedMessage.eventID || model.channel != channelJoined {
			return model, nil
		}
		// malformed push: dropped at the boundary, the read chain keeps going.
		log.Printf("dropping push for event %s: %v", typedMessage.eventID, typedMessage.err)
		return model, model.readOnceCmd(model.websocketConn, typedMessage.eventID)

	case pushSkippedMsg:
		if model.mode != modeChat || model.eventID != typedMessage.eventID || model.channel != channelJoined {
			return model, nil
		}
		return model, model.readOnceCmd(model.websocketConn, typedMessage.eventID)

	case errorFrameMsg:
		if model.mode != modeChat || model.eventID != typedMessage.eventID || model.channel != channelJoined {
			return model, nil
		}
		if typedMessage.code == errCodeUnauthorized {
			return model, model.handleAuthExpired()
		}
		model.alertText = typedMessage.text
		return model, model.readOnceCmd(model.websocketConn, typedMessage.eventID)

	case messageSentMsg:
		// the draft clears only after the remote call succeeded; the message
		// itself shows up when the server pushes it back to the group.
		model.textInput.SetValue("")
		return model, nil

	case sendFailedMsg:
		model.alertText = "Message not sent: " + typedMessage.err.Error()
		return model, nil

	case resyncMsg:
		if model.mode != modeChat || model.eventID != typedMessage.eventID {
			return model, nil
		}
		if typedMessage.err != nil {
			log.Printf("history re-sync for event %s: %v", typedMessage.eventID, typedMessage.err)
			return model, nil
		}
		known := model.knownMessageIDs()
		for _, message := range typedMessage.messages {
			if !known[message.MessageID] {
				model.live = append(model.live, message)
			}
		}
		model.refreshTimeline()
		return model, nil

	case authOKMsg:
		session := typedMessage.session
		model.session = &session
		model.loading = true
		model.notice = ""
		model.mode = modeEvents
		model.resetPrompt()
		return model, model.loadEventsCmd()

	case authFailedMsg:
		model.loading = false
		model.notice = typedMessage.err.Error()
		model.mode = modeAuthMenu
		model.resetPrompt()
		return model, nil

	case loggedOutMsg:
		model.session = nil
		model.mode = modeAuthMenu
		model.resetPrompt()
		return model, nil
	}
	return model, nil
}

func (model *TUIModel) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Any mode should respect Ctrl+C so the user can bail out quickly.
	if key.Type == tea.KeyCtrlC {
		model.closeChannel()
		return model, tea.Quit
	}
	// a blocking alert swallows the next key press, nothing else.
	if model.alertText != "" {
		model.alertText = ""
		return model, nil
	}

	switch model.mode {
	case modeAuthMenu:
		switch key.String() {
		case "1", "l", "L":
			model.authIntent = authIntentLogin
			model.mode = modeAuthUsername
			return model, model.promptFor("Enter your username…", "name> ", false)
		case "2", "s", "S":
			model.authIntent = authIntentSignup
			model.mode = modeAuthUsername
			return model, model.promptFor("Pick a username…", "name> ", false)
		case "3", "b", "B":
			model.session = nil
			model.mode = modeEvents
			model.loading = true
			return model, model.loadEventsCmd()
		case "q", "Q", "esc":
			return model, tea.Quit
		}
		return model, nil

	case modeAuthUsername:
		switch key.Type {
		case tea.KeyEnter:
			trimmed := strings.TrimSpace(model.textInput.Value())
			if trimmed == "" {
				model.notice = "Username cannot be empty."
				return model, nil
			}
			model.authUsername = trimmed
			model.notice = ""
			if model.authIntent == authIntentSignup {
				model.mode = modeAuthEmail
				return model, model.promptFor("Email (optional)…", "email> ", false)
			}
			model.mode = modeAuthPassword
			return model, model.promptFor("Enter your password…", "pass> ", true)
		case tea.KeyEsc:
			return model.backToAuthMenu()
		}
		return model.updatePrompt(key)

	case modeAuthEmail:
		switch key.Type {
		case tea.KeyEnter:
			model.authEmail = strings.TrimSpace(model.textInput.Value())
			model.mode = modeAuthPassword
			return model, model.promptFor("Choose a password…", "pass> ", true)
		case tea.KeyEsc:
			return model.backToAuthMenu()
		}
		return model.updatePrompt(key)

	case modeAuthPassword:
		switch key.Type {
		case tea.KeyEnter:
			password := strings.TrimSpace(model.textInput.Value())
			if password == "" {
				model.notice = "Password cannot be empty."
				return model, nil
			}
			model.loading = true
			model.notice = ""
			intent := model.authIntent
			model.resetPrompt()
			if intent == authIntentSignup {
				return model, model.signupCmd(model.authUsername, model.authEmail, password)
			}
			return model, model.loginCmd(model.authUsername, password)
		case tea.KeyEsc:
			return model.backToAuthMenu()
		}
		return model.updatePrompt(key)

	case modeEvents:
		switch key.String() {
		case "up", "k":
			if model.selectedEvent > 0 {
				model.selectedEvent--
			}
			return model, nil
		case "down", "j":
			if model.selectedEvent < len(model.events)-1 {
				model.selectedEvent++
			}
			return model, nil
		case "enter":
			if len(model.events) == 0 {
				return model, nil
			}
			return model, model.enterChat(model.events[model.selectedEvent].ID)
		case "r", "R":
			model.loading = true
			return model, model.loadEventsCmd()
		case "o", "O":
			if model.session.Valid() {
				return model, model.logoutCmd()
			}
			model.mode = modeAuthMenu
			return model, nil
		case "q", "Q", "esc":
			return model, tea.Quit
		}
		return model, nil

	case modeChat:
		switch key.Type {
		case tea.KeyEsc:
			return model.leaveChat()
		case tea.KeyPgUp, tea.KeyPgDown:
			var command tea.Cmd
			model.viewport, command = model.viewport.Update(key)
			return model, command
		case tea.KeyEnter:
			trimmed := strings.TrimSpace(model.textInput.Value())
			if strings.HasPrefix(trimmed, "/") {
				switch strings.ToLower(trimmed) {
				case "/quit", "/exit":
					model.closeChannel()
					return model, tea.Quit
				case "/leave":
					return model.leaveChat()
				}
				return model, nil
			}
			if trimmed == "" || !model.canSend() {
				return model, nil
			}
			return model, model.sendCmd(model.eventID, model.session.UserID, trimmed)
		}
		if !model.session.Valid() {
			// read-only view: no composer to type into.
			return model, nil
		}
		var command tea.Cmd
		model.textInput, command = model.textInput.Update(key)
		return model, command

	case modeChatError:
		switch key.Type {
		case tea.KeyEsc, tea.KeyEnter:
			return model.leaveChat()
		}
		return model, nil
	}
	return model, nil
}

// chatScoped reports whether an async result still belongs to the view on
// screen. Bootstrap results are also accepted while the error screen shows so
// a mixed outcome cannot resurrect a dismissed view.
func (model *TUIModel) chatScoped(eventID string) bool {
	return (model.mode == modeChat || model.mode == modeChatError) && model.eventID == eventID
}

func (model *TUIModel) leaveChat() (tea.Model, tea.Cmd) {
	model.resetChatState()
	model.mode = modeEvents
	model.loading = true
	return model, model.loadEventsCmd()
}

// handleAuthExpired clears the dead identity and sends the user back to sign-in.
func (model *TUIModel) handleAuthExpired() tea.Cmd {
	model.closeChannel()
	_ = DeleteSession(model.sessionPath)
	model.session = nil
	model.notice = "Your session expired. Log in again to send messages."
	model.mode = modeAuthMenu
	model.resetPrompt()
	return nil
}

func (model *TUIModel) backToAuthMenu() (tea.Model, tea.Cmd) {
	model.authIntent = authIntentNone
	model.mode = modeAuthMenu
	model.resetPrompt()
	return model, nil
}

func (model *TUIModel) promptFor(placeholder, prompt string, secret bool) tea.Cmd {
	model.textInput.SetValue("")
	model.textInput.Placeholder = placeholder
	model.textInput.Prompt = prompt
	if secret {
		model.textInput.EchoMode = textinput.EchoPassword
	} else {
		model.textInput.EchoMode = textinput.EchoNormal
	}
	return model.textInput.Focus()
}

func (model *TUIModel) resetPrompt() {
	model.textInput.SetValue("")
	model.textInput.Placeholder = "Type a message…"
	model.textInput.Prompt = "> "
	model.textInput.EchoMode = textinput.EchoNormal
	model.textInput.Blur()
}

func (model *TUIModel) updatePrompt(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	var command tea.Cmd
	model.textInput, command = model.textInput.Update(key)
	return model, command
}

func timelineHeight(total int) int {
	// header, status, input, and hints eat a fixed number of rows.
	height := total - 8
	if height < 3 {
		height = 3
	}
	return height
}
