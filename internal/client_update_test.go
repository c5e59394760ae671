package internal

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func testSession() *Session {
	return &Session{
		UserID:    1,
		Username:  "u1",
		Token:     "tok-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func newTestModel(t *testing.T, session *Session) *TUIModel {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.json")
	model, err := NewTUIModel("ws://127.0.0.1:0/ws", session, path, "")
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	model.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return model
}

func chatMessage(id string, userID int64, text string) ChatMessage {
	return ChatMessage{
		MessageID: id,
		EventID:   "E1",
		UserID:    userID,
		UserName:  fmt.Sprintf("u%d", userID),
		Text:      text,
		Ts:        time.Now().Unix(),
	}
}

// openChat drives the model into the chat view for E1 with a joined channel,
// without touching the network.
func openChat(t *testing.T, model *TUIModel, history []ChatMessage) {
	t.Helper()
	model.enterChat("E1")
	model.Update(bootstrapLoadedMsg{
		eventID: "E1",
		event:   Event{ID: "E1", Title: "Launch party"},
		history: history,
	})
	if model.session.Valid() {
		model.Update(channelJoinedMsg{eventID: "E1", attempt: model.connectAttempt})
		if model.channel != channelJoined {
			t.Fatalf("expected joined channel, got %s", model.channel)
		}
	}
}

func TestTimelineMergeOrder(t *testing.T) {
	history := []ChatMessage{
		chatMessage("m1", 2, "first"),
		chatMessage("m2", 3, "second"),
		chatMessage("m3", 2, "third"),
	}
	model := newTestModel(t, testSession())
	openChat(t, model, history)

	pushed := []ChatMessage{
		chatMessage("m4", 2, "fourth"),
		chatMessage("m5", 1, "fifth"),
	}
	for _, message := range pushed {
		model.Update(pushMsg{eventID: "E1", message: message})
	}

	rendered := model.renderedMessages()
	want := append(append([]ChatMessage{}, history...), pushed...)
	if len(rendered) != len(want) {
		t.Fatalf("rendered %d messages, want %d", len(rendered), len(want))
	}
	for i := range want {
		if rendered[i].MessageID != want[i].MessageID {
			t.Fatalf("position %d: got %s, want %s", i, rendered[i].MessageID, want[i].MessageID)
		}
	}
}

func TestLivePushesAreNeverDeduplicated(t *testing.T) {
	model := newTestModel(t, testSession())
	openChat(t, model, nil)

	duplicate := chatMessage("m1", 2, "hi")
	model.Update(pushMsg{eventID: "E1", message: duplicate})
	model.Update(pushMsg{eventID: "E1", message: duplicate})

	if got := len(model.renderedMessages()); got != 2 {
		t.Fatalf("live pushes must append verbatim, got %d messages", got)
	}
}

func TestOwnMessageAlignment(t *testing.T) {
	model := newTestModel(t, testSession())
	own := chatMessage("m1", 1, "mine")
	other := chatMessage("m2", 2, "theirs")

	if !model.isOwn(own) {
		t.Fatal("message from the session user must be own")
	}
	if model.isOwn(other) {
		t.Fatal("message from another user must not be own")
	}

	// alignment is computed from the current identity at render time
	model.session = &Session{UserID: 2, Username: "u2", Token: "tok-2"}
	if model.isOwn(own) {
		t.Fatal("alignment must follow the current identity")
	}
	if !model.isOwn(other) {
		t.Fatal("alignment must follow the current identity")
	}

	model.session = nil
	if model.isOwn(own) || model.isOwn(other) {
		t.Fatal("no identity means nothing is own")
	}
}

func TestComposerRequiresIdentityAndJoinedChannel(t *testing.T) {
	model := newTestModel(t, testSession())

	for _, state := range []channelState{channelUninitialized, channelConnecting, channelDisconnected, channelStopped} {
		model.channel = state
		if model.canSend() {
			t.Fatalf("composer enabled in channel state %s", state)
		}
	}

	model.channel = channelJoined
	if !model.canSend() {
		t.Fatal("composer must enable with identity and joined channel")
	}

	model.session = nil
	if model.canSend() {
		t.Fatal("composer enabled without identity")
	}
}

func TestNoOptimisticEcho(t *testing.T) {
	model := newTestModel(t, testSession())
	openChat(t, model, []ChatMessage{chatMessage("m1", 2, "hi")})

	model.textInput.SetValue("hello")
	before := len(model.renderedMessages())

	model.Update(messageSentMsg{})

	if got := len(model.renderedMessages()); got != before {
		t.Fatalf("send must not append locally: %d -> %d", before, got)
	}
	if model.textInput.Value() != "" {
		t.Fatal("draft should clear after a successful send")
	}
}

func TestSendFailurePreservesDraftAndAlerts(t *testing.T) {
	model := newTestModel(t, testSession())
	openChat(t, model, nil)

	model.textInput.SetValue("hello")
	model.Update(sendFailedMsg{err: errors.New("boom")})

	if model.textInput.Value() != "hello" {
		t.Fatal("failed send must preserve the draft")
	}
	if model.alertText == "" {
		t.Fatal("failed send must raise a blocking alert")
	}
	if got := len(model.renderedMessages()); got != 0 {
		t.Fatalf("failed send must not append, got %d messages", got)
	}

	// the alert swallows exactly one key press
	model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}})
	if model.alertText != "" {
		t.Fatal("any key should dismiss the alert")
	}
	if model.textInput.Value() != "hello" {
		t.Fatal("dismissing the alert must not touch the draft")
	}
}

func TestTeardownIgnoresLateResults(t *testing.T) {
	states := []channelState{channelConnecting, channelJoined, channelDisconnected}
	for _, state := range states {
		model := newTestModel(t, testSession())
		openChat(t, model, nil)
		model.channel = state

		model.leaveChat()
		if model.mode != modeEvents {
			t.Fatalf("leaving chat in state %s should land on the event list", state)
		}

		// stale results for the torn-down view must all be no-ops
		model.Update(pushMsg{eventID: "E1", message: chatMessage("m9", 2, "late")})
		model.Update(bootstrapLoadedMsg{eventID: "E1", event: Event{ID: "E1"}, history: []ChatMessage{chatMessage("m1", 2, "old")}})
		model.Update(channelDroppedMsg{eventID: "E1", err: errors.New("gone")})
		model.Update(errorFrameMsg{eventID: "E1", code: errCodeRateLimited, text: "slow down"})

		if len(model.live) != 0 || len(model.history) != 0 {
			t.Fatalf("state %s: late results mutated a torn-down view", state)
		}
		if model.mode != modeEvents {
			t.Fatalf("state %s: late results changed the mode", state)
		}
		if model.alertText != "" {
			t.Fatalf("state %s: late error frame raised an alert", state)
		}
	}
}

func TestHappyPathScenario(t *testing.T) {
	model := newTestModel(t, testSession())
	openChat(t, model, []ChatMessage{chatMessage("m1", 2, "hi")})

	if !model.canSend() {
		t.Fatal("composer should be available")
	}

	// the send succeeds; nothing renders until the push comes back
	model.Update(messageSentMsg{})
	if got := len(model.renderedMessages()); got != 1 {
		t.Fatalf("expected only history before the push, got %d", got)
	}

	model.Update(pushMsg{eventID: "E1", message: chatMessage("m2", 1, "hello")})

	rendered := model.renderedMessages()
	if len(rendered) != 2 || rendered[0].MessageID != "m1" || rendered[1].MessageID != "m2" {
		t.Fatalf("expected [m1 m2], got %+v", rendered)
	}
	if model.isOwn(rendered[0]) {
		t.Fatal("m1 must align as another user's message")
	}
	if !model.isOwn(rendered[1]) {
		t.Fatal("m2 must align as the session user's message")
	}
}

func TestMissingIdentityRendersReadOnly(t *testing.T) {
	model := newTestModel(t, nil)
	model.mode = modeEvents
	model.enterChat("E1")

	if model.channel != channelUninitialized {
		t.Fatalf("no identity must not open a channel, got %s", model.channel)
	}
	model.Update(bootstrapLoadedMsg{
		eventID: "E1",
		event:   Event{ID: "E1", Title: "Launch party"},
		history: []ChatMessage{chatMessage("m1", 2, "hi")},
	})

	if model.canSend() {
		t.Fatal("composer must stay disabled without identity")
	}
	view := model.View()
	if !strings.Contains(view, "Log in to send messages") {
		t.Fatal("read-only view must show the log-in call to action")
	}
	if strings.Contains(view, "Enter to send") {
		t.Fatal("read-only view must not show the composer")
	}
}

func TestBootstrapFailureShowsErrorScreen(t *testing.T) {
	model := newTestModel(t, testSession())
	model.enterChat("E1")

	model.Update(bootstrapFailedMsg{eventID: "E1", err: errors.New("event detail: 404")})

	if model.mode != modeChatError {
		t.Fatalf("expected error screen, got mode %d", model.mode)
	}
	if model.channel != channelStopped {
		t.Fatalf("bootstrap failure should stop the channel, got %s", model.channel)
	}
	view := model.View()
	if !strings.Contains(view, "Could not load this event") {
		t.Fatal("error screen missing")
	}
	if strings.Contains(view, "Enter to send") {
		t.Fatal("error screen must not render the composer")
	}

	// the return link goes back to the event list
	model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if model.mode != modeEvents {
		t.Fatalf("expected event list, got mode %d", model.mode)
	}
}

func TestReconnectResyncReconcilesByMessageID(t *testing.T) {
	model := newTestModel(t, testSession())
	openChat(t, model, []ChatMessage{chatMessage("m1", 2, "hi")})
	model.Update(pushMsg{eventID: "E1", message: chatMessage("m2", 2, "there")})

	model.Update(channelDroppedMsg{eventID: "E1", err: errors.New("conn reset")})
	if model.channel != channelDisconnected || !model.resyncPending {
		t.Fatalf("drop should mark the channel disconnected with a resync owed, got %s pending=%v", model.channel, model.resyncPending)
	}

	model.Update(reconnectMsg{})
	if model.channel != channelConnecting {
		t.Fatalf("reconnect tick should redial, got %s", model.channel)
	}
	model.Update(channelJoinedMsg{eventID: "E1", attempt: model.connectAttempt})
	if model.resyncPending {
		t.Fatal("join should consume the pending resync")
	}

	// the re-fetched history overlaps what is already rendered plus one missed message
	model.Update(resyncMsg{eventID: "E1", messages: []ChatMessage{
		chatMessage("m1", 2, "hi"),
		chatMessage("m2", 2, "there"),
		chatMessage("m3", 3, "missed you"),
	}})

	rendered := model.renderedMessages()
	if len(rendered) != 3 {
		t.Fatalf("expected 3 messages after reconcile, got %d", len(rendered))
	}
	if rendered[2].MessageID != "m3" {
		t.Fatalf("missed message should append last, got %s", rendered[2].MessageID)
	}
}

func TestStaleConnectResultIsDiscarded(t *testing.T) {
	model := newTestModel(t, testSession())
	model.enterChat("E1")
	staleAttempt := model.connectAttempt

	// leave while the first dial is in flight, then re-enter the same event
	model.leaveChat()
	model.enterChat("E1")

	model.Update(channelJoinedMsg{eventID: "E1", attempt: staleAttempt})
	if model.websocketConn != nil || model.channel != channelConnecting {
		t.Fatalf("join from an abandoned dial registered: state %s", model.channel)
	}

	model.Update(channelJoinedMsg{eventID: "E1", attempt: model.connectAttempt})
	if model.channel != channelJoined {
		t.Fatalf("current dial rejected: state %s", model.channel)
	}

	// a late failure report from the old dial must not disturb the joined channel
	model.Update(channelFailedMsg{eventID: "E1", attempt: staleAttempt, err: errors.New("dial refused")})
	if model.channel != channelJoined {
		t.Fatalf("stale dial failure disturbed the channel: state %s", model.channel)
	}

	// a duplicate join result for the already-consumed attempt is also stale
	model.Update(channelJoinedMsg{eventID: "E1", attempt: model.connectAttempt})
	if model.channel != channelJoined {
		t.Fatalf("duplicate join changed state: %s", model.channel)
	}
}

func TestStartEventOpensChatDirectly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	model, err := NewTUIModel("ws://127.0.0.1:0/ws", testSession(), path, "E1")
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	if cmd := model.Init(); cmd == nil {
		t.Fatal("direct entry must kick off bootstrap and connect")
	}
	if model.mode != modeChat || model.eventID != "E1" {
		t.Fatalf("expected chat view for E1, got mode %d event %q", model.mode, model.eventID)
	}
	if model.channel != channelConnecting {
		t.Fatalf("expected a dial in flight, got %s", model.channel)
	}
}

func TestCloseChannelConcurrentWithSend(t *testing.T) {
	_, ts := newTestServer(t)
	login := signupAndLogin(t, ts.URL, "ana")
	resp := postJSON(t, ts.URL+"/events", login.Token, createEventRequest{ID: "E1", Title: "Launch"})
	resp.Body.Close()

	conn := dialWS(t, wsURLFor(ts.URL, login.Token))
	model := newTestModel(t, testSession())
	model.enterChat("E1")
	model.Update(channelJoinedMsg{eventID: "E1", attempt: model.connectAttempt, conn: conn})

	send := model.sendCmd("E1", login.UserID, "racing")
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			_ = send()
		}
	}()
	model.closeChannel()
	<-done

	if model.websocketConn != nil || model.channel != channelStopped {
		t.Fatalf("close did not tear the channel down: state %s", model.channel)
	}
}

func TestUnauthorizedErrorFrameClearsSession(t *testing.T) {
	model := newTestModel(t, testSession())
	openChat(t, model, nil)

	model.Update(errorFrameMsg{eventID: "E1", code: errCodeUnauthorized, text: "session expired"})

	if model.session != nil {
		t.Fatal("expired identity must be cleared")
	}
	if model.mode != modeAuthMenu {
		t.Fatalf("expected redirect to sign-in, got mode %d", model.mode)
	}
	if model.channel != channelStopped {
		t.Fatalf("channel should be stopped, got %s", model.channel)
	}
}
