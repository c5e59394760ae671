package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// pre styled colors, all from lipgloss
var (
	appTitleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).Padding(0, 1)
	subtitleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).MarginTop(1)
	menuBoxStyle      = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(1, 2).MarginTop(1)
	menuItemStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).PaddingLeft(1)
	menuHotkeyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	menuHintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).MarginTop(1)
	noticeBoxStyle    = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("95")).Padding(1, 2).MarginTop(1)
	alertBoxStyle     = lipgloss.NewStyle().BorderStyle(lipgloss.DoubleBorder()).BorderForeground(lipgloss.Color("196")).Padding(1, 2).MarginTop(1)
	chatHeaderStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	statusStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("109")).MarginTop(1)
	connectedStyle    = statusStyle.Copy().Foreground(lipgloss.Color("42")).Bold(true)
	connectingStyle   = statusStyle.Copy().Foreground(lipgloss.Color("178")).Italic(true)
	messageBodyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("253"))
	inputBoxStyle     = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1).MarginTop(1)
	timestampStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	usernameStyle     = lipgloss.NewStyle().Bold(true)
	activeUserStyle   = usernameStyle.Copy().Foreground(lipgloss.Color("213"))
	systemTextStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	errorStyle        = statusStyle.Copy().Foreground(lipgloss.Color("196")).Bold(true)
	dividerStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(" ┃ ")
	listSelectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	listItemStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	userColorPalette  = []lipgloss.Color{
		lipgloss.Color("45"),
		lipgloss.Color("81"),
		lipgloss.Color("141"),
		lipgloss.Color("98"),
		lipgloss.Color("63"),
		lipgloss.Color("135"),
		lipgloss.Color("32"),
	}
)

func (model *TUIModel) View() string {
	switch model.mode {
	case modeAuthMenu:
		return model.renderAuthMenuView()
	case modeAuthUsername, modeAuthEmail, modeAuthPassword:
		return model.renderAuthPromptView()
	case modeEvents:
		return model.renderEventsView()
	case modeChatError:
		return model.renderChatErrorView()
	default:
		return model.renderChatView()
	}
}

func (model *TUIModel) renderAuthMenuView() string {
	title := appTitleStyle.Render("EventChat")
	subtitle := subtitleStyle.Render("Live discussion rooms for your events")

	options := []string{
		renderMenuOption("1", "Log in"),
		renderMenuOption("2", "Sign up"),
		renderMenuOption("3", "Browse events without an account"),
		renderMenuOption("q", "Quit"),
	}

	viewSections := []string{
		lipgloss.JoinVertical(lipgloss.Left, title, subtitle),
		menuBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, options...)),
	}

	if model.loading {
		viewSections = append(viewSections, connectingStyle.Render("Working…"))
	}

	if model.notice != "" {
		viewSections = append(viewSections, noticeBoxStyle.Render(systemTextStyle.Render(model.notice)))
	}

	viewSections = append(viewSections, menuHintStyle.Render("1) Log in  •  2) Sign up  •  3) Browse  •  q) Quit"))

	return lipgloss.JoinVertical(lipgloss.Left, viewSections...)
}

func (model *TUIModel) renderAuthPromptView() string {
	title := "Log in"
	if model.authIntent == authIntentSignup {
		title = "Create an account"
	}
	var hint string
	switch model.mode {
	case modeAuthEmail:
		hint = "Enter your email, or leave it blank"
	case modeAuthPassword:
		hint = "Enter your password"
	default:
		hint = "Enter your username"
	}

	header := appTitleStyle.Render(title)
	hintText := menuHintStyle.Render(hint)

	viewSections := []string{header, hintText}

	if model.loading {
		viewSections = append(viewSections, connectingStyle.Render("Working…"))
	}

	if model.notice != "" {
		viewSections = append(viewSections, noticeBoxStyle.Render(systemTextStyle.Render(model.notice)))
	}

	viewSections = append(viewSections, inputBoxStyle.Render(model.textInput.View()))
	viewSections = append(viewSections, menuHintStyle.Render("Enter to continue • Esc to go back"))

	return lipgloss.JoinVertical(lipgloss.Left, viewSections...)
}

func (model *TUIModel) renderEventsView() string {
	var title string
	if model.session.Valid() {
		title = appTitleStyle.Render(fmt.Sprintf("Welcome, %s", model.session.Username))
	} else {
		title = appTitleStyle.Render("Browsing as guest")
	}
	subtitle := subtitleStyle.Render(fmt.Sprintf("Events: %d", len(model.events)))

	viewSections := []string{title, subtitle}

	if model.loading {
		viewSections = append(viewSections, connectingStyle.Render("Loading events…"))
	}

	if model.notice != "" {
		viewSections = append(viewSections, noticeBoxStyle.Render(systemTextStyle.Render(model.notice)))
	}

	var eventLines []string
	if len(model.events) == 0 && !model.loading {
		eventLines = append(eventLines, menuHintStyle.Render("No events yet. Press R to refresh."))
	} else {
		for idx, event := range model.events {
			line := formatEventLine(event)
			if idx == model.selectedEvent {
				eventLines = append(eventLines, listSelectedStyle.Render("➤ "+line))
			} else {
				eventLines = append(eventLines, listItemStyle.Render("  "+line))
			}
		}
	}
	viewSections = append(viewSections, menuBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, eventLines...)))

	hint := "↑/↓ select • Enter open chat • R refresh • O log out • Q quit"
	if !model.session.Valid() {
		hint = "↑/↓ select • Enter open chat • R refresh • O log in • Q quit"
	}
	viewSections = append(viewSections, menuHintStyle.Render(hint))

	return lipgloss.JoinVertical(lipgloss.Left, viewSections...)
}

func (model *TUIModel) renderChatErrorView() string {
	header := appTitleStyle.Render("EventChat")
	body := errorStyle.Render("Could not load this event.")
	var detail string
	if model.bootstrapErr != nil {
		detail = menuHintStyle.Render(model.bootstrapErr.Error())
	}
	hint := menuHintStyle.Render("Press Enter or Esc to return to the event list")

	sections := []string{header, noticeBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, body, detail))}
	sections = append(sections, hint)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (model *TUIModel) renderChatView() string {
	headerSegments := []string{"EventChat"}
	if model.event != nil {
		headerSegments = append(headerSegments, model.event.Title)
		if model.event.Category != "" {
			headerSegments = append(headerSegments, model.event.Category)
		}
	}
	if model.session.Valid() {
		headerSegments = append(headerSegments, fmt.Sprintf("User %s", model.session.Username))
	} else {
		headerSegments = append(headerSegments, "Guest")
	}
	header := chatHeaderStyle.Render(strings.Join(headerSegments, dividerStyle))

	var statusLine string
	switch {
	case !model.session.Valid():
		statusLine = statusStyle.Render("Read only")
	case model.channel == channelJoined:
		statusLine = connectedStyle.Render("Connected")
	case model.channel == channelDisconnected:
		statusLine = errorStyle.Render("Disconnected, retrying…")
	default:
		statusLine = connectingStyle.Render("Connecting…")
	}

	var timeline string
	if !model.bootstrapped {
		timeline = connectingStyle.Render("Loading messages…")
	} else {
		timeline = model.viewport.View()
	}

	sections := []string{header, statusLine, timeline}

	if model.alertText != "" {
		alert := lipgloss.JoinVertical(lipgloss.Left,
			errorStyle.Render(model.alertText),
			menuHintStyle.Render("Press any key to dismiss"),
		)
		sections = append(sections, alertBoxStyle.Render(alert))
	}

	if model.session.Valid() {
		sections = append(sections, inputBoxStyle.Render(model.textInput.View()))
		sections = append(sections, menuHintStyle.Render("Enter to send • Esc or /leave to go back"))
	} else {
		sections = append(sections, noticeBoxStyle.Render(systemTextStyle.Render("Log in to send messages")))
		sections = append(sections, menuHintStyle.Render("Esc to go back"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderTimeline renders the merged history and live messages for the viewport.
func (model *TUIModel) renderTimeline() string {
	messages := model.renderedMessages()
	if len(messages) == 0 {
		return systemTextStyle.Render("No messages yet. Say hi and start the conversation.")
	}
	lines := make([]string, 0, len(messages))
	for _, message := range messages {
		lines = append(lines, model.renderChatMessage(message))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderMenuOption(hotkey string, label string) string {
	key := menuHotkeyStyle.Render(hotkey)
	return lipgloss.JoinHorizontal(lipgloss.Left, key, menuItemStyle.Render(label))
}

func formatEventLine(event Event) string {
	when := time.Unix(event.StartsAt, 0).Format("Jan 2 15:04")
	line := fmt.Sprintf("%s  %s", event.Title, timestampStyle.Render(when))
	if event.OnlineCount > 0 {
		line += timestampStyle.Render(fmt.Sprintf("  %d online", event.OnlineCount))
	}
	return line
}

// renderChatMessage renders a single log line. It stamps the timestamp, picks
// a color for the sender, and indents multi-line messages so they stay legible.
func (model *TUIModel) renderChatMessage(message ChatMessage) string {
	timestamp := timestampStyle.Render(fmt.Sprintf("[%s]", time.Unix(message.Ts, 0).Format("15:04:05")))

	var nameStyle lipgloss.Style
	if model.isOwn(message) {
		nameStyle = activeUserStyle
	} else {
		nameStyle = usernameStyle.Copy().Foreground(colorForUser(message.UserName))
	}

	name := nameStyle.Render(message.UserName)
	bodyText := messageBodyStyle.Render(strings.ReplaceAll(message.Text, "\n", "\n   "))

	return lipgloss.JoinHorizontal(lipgloss.Left, timestamp, " ", name, ": ", bodyText)
}

// color for users
func colorForUser(name string) lipgloss.Color {
	if len(userColorPalette) == 0 {
		return lipgloss.Color("249")
	}
	if name == "" {
		return userColorPalette[0]
	}
	var sum int
	for _, r := range name {
		sum += int(r)
	}
	return userColorPalette[sum%len(userColorPalette)]
}
