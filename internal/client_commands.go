package internal

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

func (model *TUIModel) scheduleReconnect() tea.Cmd {
	const retryDelay = 2 * time.Second
	// we schedule a future poke that nudges Update to try the connection again.
	return tea.Tick(retryDelay, func(time.Time) tea.Msg {
		return reconnectMsg{}
	})
}

func (model *TUIModel) loadEventsCmd() tea.Cmd {
	baseURL := model.apiBaseURL
	return func() tea.Msg {
		events, err := apiListEvents(baseURL)
		if err != nil {
			return eventsFailedMsg{err: err}
		}
		return eventsLoadedMsg(events)
	}
}

// bootstrapCmd runs the two mount-time fetches. The result carries the event
// id so a slow response landing after the view moved on is discarded.
func (model *TUIModel) bootstrapCmd(eventID string) tea.Cmd {
	baseURL := model.apiBaseURL
	return func() tea.Msg {
		event, history, err := fetchEventBundle(baseURL, eventID)
		if err != nil {
			return bootstrapFailedMsg{eventID: eventID, err: err}
		}
		return bootstrapLoadedMsg{eventID: eventID, event: *event, history: history}
	}
}

// connectCmd dials the channel endpoint and issues the group join immediately
// after the handshake, before any reads are chained. The attempt number lets
// Update discard results from dials that were abandoned mid-flight.
func (model *TUIModel) connectCmd(eventID, token string, attempt int) tea.Cmd {
	serverWSURL := model.serverWSURL
	return func() tea.Msg {
		channelURL, err := buildChannelURL(serverWSURL, token)
		if err != nil {
			return channelFailedMsg{eventID: eventID, attempt: attempt, err: err}
		}
		conn, _, err := websocket.DefaultDialer.Dial(channelURL, http.Header{})
		if err != nil {
			return channelFailedMsg{eventID: eventID, attempt: attempt, err: err}
		}
		join, err := encodeFrame(hubFrame{Type: frameJoinEvent, EventID: eventID})
		if err != nil {
			_ = conn.Close()
			return channelFailedMsg{eventID: eventID, attempt: attempt, err: err}
		}
		if err := conn.WriteMessage(websocket.TextMessage, join); err != nil {
			_ = conn.Close()
			return channelFailedMsg{eventID: eventID, attempt: attempt, err: err}
		}
		return channelJoinedMsg{eventID: eventID, attempt: attempt, conn: conn}
	}
}

// readOnceCmd reads a single frame from the channel and converts it into a tea
// message; Update schedules it again to keep exactly one read chain alive.
func (model *TUIModel) readOnceCmd(conn *websocket.Conn, eventID string) tea.Cmd {
	return func() tea.Msg {
		if conn == nil {
			return channelDroppedMsg{eventID: eventID, err: fmt.Errorf("channel not connected")}
		}
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			return channelDroppedMsg{eventID: eventID, err: err}
		}
		if messageType != websocket.TextMessage {
			return pushSkippedMsg{eventID: eventID}
		}
		frame, err := decodeFrame(payload)
		if err != nil {
			return pushFailedMsg{eventID: eventID, err: err}
		}
		switch frame.Type {
		case frameReceiveMessage:
			if frame.Message == nil {
				return pushFailedMsg{eventID: eventID, err: fmt.Errorf("%w: receive_message without message", ErrMalformedPayload)}
			}
			if err := frame.Message.validate(); err != nil {
				return pushFailedMsg{eventID: eventID, err: err}
			}
			return pushMsg{eventID: eventID, message: *frame.Message}
		case frameError:
			return errorFrameMsg{eventID: eventID, code: frame.Code, text: frame.Text}
		default:
			return pushFailedMsg{eventID: eventID, err: fmt.Errorf("%w: unexpected frame %s", ErrMalformedPayload, frame.Type)}
		}
	}
}

// sendCmd writes one send_message remote call. The draft is cleared in Update
// only when messageSentMsg comes back, so a failure preserves it.
func (model *TUIModel) sendCmd(eventID string, userID int64, text string) tea.Cmd {
	conn := model.websocketConn
	return func() tea.Msg {
		if conn == nil {
			return sendFailedMsg{err: fmt.Errorf("channel not connected")}
		}
		payload, err := encodeFrame(hubFrame{Type: frameSendMessage, EventID: eventID, UserID: userID, Text: text})
		if err != nil {
			return sendFailedMsg{err: err}
		}
		model.writeMutex.Lock()
		err = conn.WriteMessage(websocket.TextMessage, payload)
		model.writeMutex.Unlock()
		if err != nil {
			return sendFailedMsg{err: err}
		}
		return messageSentMsg{}
	}
}

// resyncCmd re-fetches the history after a reconnect so messages missed during
// the outage can be reconciled by message id.
func (model *TUIModel) resyncCmd(eventID string) tea.Cmd {
	baseURL := model.apiBaseURL
	return func() tea.Msg {
		messages, err := apiEventHistory(baseURL, eventID)
		return resyncMsg{eventID: eventID, messages: messages, err: err}
	}
}

func (model *TUIModel) loginCmd(username, password string) tea.Cmd {
	baseURL := model.apiBaseURL
	sessionPath := model.sessionPath
	return func() tea.Msg {
		resp, err := apiLogin(baseURL, username, password)
		if err != nil {
			return authFailedMsg{err: err}
		}
		session := Session{
			UserID:    resp.UserID,
			Username:  resp.Username,
			Email:     resp.Email,
			Token:     resp.Token,
			ExpiresAt: resp.ExpiresAt,
		}
		if err := SaveSession(sessionPath, session); err != nil {
			return authFailedMsg{err: fmt.Errorf("save session: %w", err)}
		}
		return authOKMsg{session: session}
	}
}

func (model *TUIModel) signupCmd(username, email, password string) tea.Cmd {
	baseURL := model.apiBaseURL
	sessionPath := model.sessionPath
	return func() tea.Msg {
		if err := apiSignup(baseURL, username, email, password); err != nil {
			return authFailedMsg{err: err}
		}
		resp, err := apiLogin(baseURL, username, password)
		if err != nil {
			return authFailedMsg{err: err}
		}
		session := Session{
			UserID:    resp.UserID,
			Username:  resp.Username,
			Email:     resp.Email,
			Token:     resp.Token,
			ExpiresAt: resp.ExpiresAt,
		}
		if err := SaveSession(sessionPath, session); err != nil {
			return authFailedMsg{err: fmt.Errorf("save session: %w", err)}
		}
		return authOKMsg{session: session}
	}
}

func (model *TUIModel) logoutCmd() tea.Cmd {
	baseURL := model.apiBaseURL
	sessionPath := model.sessionPath
	var token string
	if model.session != nil {
		token = model.session.Token
	}
	return func() tea.Msg {
		if token != "" {
			_ = apiLogout(baseURL, token)
		}
		_ = DeleteSession(sessionPath)
		return loggedOutMsg{}
	}
}

// buildChannelURL attaches the session token to the ws endpoint.
func buildChannelURL(base string, token string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return "", fmt.Errorf("invalid scheme for websocket: %s", parsed.Scheme)
	}
	query := parsed.Query()
	query.Set("token", token)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// RunClient launches the bubbletea program with the chat model.
func RunClient(serverWSURL string, session *Session, sessionPath, eventID string) error {
	model, err := NewTUIModel(serverWSURL, session, sessionPath, eventID)
	if err != nil {
		return err
	}
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err = program.Run()
	return err
}
