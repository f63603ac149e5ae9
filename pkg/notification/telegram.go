// Package notification provides the Telegram chat surface of the bot.
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/deagle/cryptodigest/pkg/core"
	"github.com/deagle/cryptodigest/pkg/digest"
	"github.com/deagle/cryptodigest/pkg/logger"
	"github.com/deagle/cryptodigest/pkg/registry"
)

const maxConnectAttempts = 5

// Inline keyboard buttons, routed by their unique identifiers.
var (
	btnCheck    = tb.InlineButton{Unique: "check", Text: "📊 Check the market"}
	btnSettings = tb.InlineButton{Unique: "settings", Text: "⚙️ Notification settings"}
	btnSetTime  = tb.InlineButton{Unique: "set_time", Text: "🕐 Change notification time"}
	btnDisable  = tb.InlineButton{Unique: "disable_notifications", Text: "❌ Disable notifications"}
	btnBack     = tb.InlineButton{Unique: "back", Text: "🔙 Back"}
)

// Telegram wires bot commands and keyboards over the core components.
// It also implements core.Notifier for the scheduler.
type Telegram struct {
	client   *tb.Bot
	registry *registry.Registry
	provider core.SnapshotProvider
	loc      *time.Location
	log      logger.Logger

	mu      sync.Mutex
	pending map[int64]struct{} // users currently entering a trigger time
}

// NewTelegram creates and initializes the Telegram bot service.
func NewTelegram(
	token string,
	reg *registry.Registry,
	provider core.SnapshotProvider,
	loc *time.Location,
	log logger.Logger,
) (*Telegram, error) {
	client, err := connect(token, log)
	if err != nil {
		return nil, err
	}

	if err := setupCommands(client); err != nil {
		return nil, fmt.Errorf("failed to set commands: %w", err)
	}

	bot := &Telegram{
		client:   client,
		registry: reg,
		provider: provider,
		loc:      loc,
		log:      log,
		pending:  make(map[int64]struct{}),
	}

	bot.registerHandlers()

	return bot, nil
}

// connect creates the bot client, retrying transient API failures with
// exponential backoff.
func connect(token string, log logger.Logger) (*tb.Bot, error) {
	retry := &backoff.Backoff{
		Min:    time.Second,
		Max:    30 * time.Second,
		Factor: 2,
	}

	for {
		client, err := tb.NewBot(tb.Settings{
			Token:     token,
			ParseMode: tb.ModeMarkdown,
			Poller:    &tb.LongPoller{Timeout: 10 * time.Second},
		})
		if err == nil {
			return client, nil
		}

		if retry.Attempt() >= maxConnectAttempts {
			return nil, fmt.Errorf("failed to create telegram bot: %w", err)
		}

		wait := retry.Duration()
		log.WithError(err).Warnf("telegram connection failed, retrying in %s", wait)
		time.Sleep(wait)
	}
}

// setupCommands configures the bot command menu.
func setupCommands(client *tb.Bot) error {
	return client.SetCommands([]tb.Command{
		{Text: "start", Description: "Start the bot"},
		{Text: "check", Description: "Check current market indicators"},
		{Text: "settings", Description: "Configure daily notifications"},
		{Text: "help", Description: "Usage instructions"},
	})
}

// registerHandlers registers all command and callback handlers.
func (t *Telegram) registerHandlers() {
	t.client.Handle("/start", t.StartHandle)
	t.client.Handle("/check", t.CheckHandle)
	t.client.Handle("/settings", t.SettingsHandle)
	t.client.Handle("/help", t.HelpHandle)
	t.client.Handle(tb.OnText, t.TextHandle)

	t.client.Handle(&btnCheck, t.CheckCallback)
	t.client.Handle(&btnSettings, t.SettingsCallback)
	t.client.Handle(&btnSetTime, t.SetTimeCallback)
	t.client.Handle(&btnDisable, t.DisableCallback)
	t.client.Handle(&btnBack, t.BackCallback)
}

// Start begins long polling. It blocks until the client stops.
func (t *Telegram) Start() {
	t.client.Start()
}

// Stop terminates long polling.
func (t *Telegram) Stop() {
	t.client.Stop()
}

// Send implements core.Notifier.
func (t *Telegram) Send(userID int64, text string) error {
	_, err := t.client.Send(&tb.User{ID: userID}, text)
	return err
}

// StartHandle greets the user and shows the main menu.
func (t *Telegram) StartHandle(m *tb.Message) {
	t.sendMessage(m.Sender,
		"Hi! I monitor cryptocurrency market indicators. Set up daily notifications to stay on top of the market.",
		mainMenu())
}

// CheckHandle replies with the current market digest.
func (t *Telegram) CheckHandle(m *tb.Message) {
	t.sendMessage(m.Sender, t.digestText())
}

// SettingsHandle shows the notification settings menu.
func (t *Telegram) SettingsHandle(m *tb.Message) {
	t.sendSettings(m.Sender)
}

// HelpHandle lists the available commands.
func (t *Telegram) HelpHandle(m *tb.Message) {
	commands, err := t.client.GetCommands()
	if err != nil {
		t.log.WithError(err).Error("failed to get commands")
		return
	}

	lines := make([]string, 0, len(commands)+2)
	lines = append(lines, "🤖 I report cryptocurrency market digests on demand and on a daily schedule.\n")
	for _, command := range commands {
		lines = append(lines, fmt.Sprintf("/%s - %s", command.Text, command.Description))
	}
	lines = append(lines, fmt.Sprintf("\nDaily notifications use the %s time zone.", t.loc))

	t.sendMessage(m.Sender, strings.Join(lines, "\n"))
}

// TextHandle consumes free-form text, which is only meaningful while a
// time-entry flow is pending for the sender.
func (t *Telegram) TextHandle(m *tb.Message) {
	t.mu.Lock()
	_, waiting := t.pending[m.Sender.ID]
	t.mu.Unlock()

	if !waiting {
		return
	}

	input := strings.TrimSpace(m.Text)
	if err := t.registry.Set(m.Sender.ID, input); err != nil {
		t.sendMessage(m.Sender, "❌ Invalid time format. Use HH:MM, e.g. 09:00.")
		return
	}

	t.mu.Lock()
	delete(t.pending, m.Sender.ID)
	t.mu.Unlock()

	t.sendMessage(m.Sender,
		fmt.Sprintf("✅ Daily digest scheduled for %s (%s).", input, t.loc),
		t.settingsMenu(true))
}

// CheckCallback handles the market check button.
func (t *Telegram) CheckCallback(c *tb.Callback) {
	t.sendMessage(c.Sender, t.digestText())
	t.respond(c)
}

// SettingsCallback handles the settings button.
func (t *Telegram) SettingsCallback(c *tb.Callback) {
	t.sendSettings(c.Sender)
	t.respond(c)
}

// SetTimeCallback starts the time-entry flow for the sender.
func (t *Telegram) SetTimeCallback(c *tb.Callback) {
	t.mu.Lock()
	t.pending[c.Sender.ID] = struct{}{}
	t.mu.Unlock()

	current, ok := t.registry.Get(c.Sender.ID)
	if !ok {
		current = "not set"
	}

	t.sendMessage(c.Sender, fmt.Sprintf(
		"🕒 Current notification time: %s\n\n"+
			"Enter the daily digest time as HH:MM (%s), e.g. 09:00, 15:30 or 23:00.",
		current, t.loc))
	t.respond(c)
}

// DisableCallback disables notifications for the sender. Disabling an
// already disabled user is reported, not failed.
func (t *Telegram) DisableCallback(c *tb.Callback) {
	if t.registry.Remove(c.Sender.ID) {
		t.sendMessage(c.Sender,
			"✅ Notifications disabled.\n\nTap below to enable them again:",
			t.settingsMenu(false))
	} else {
		t.sendMessage(c.Sender,
			"ℹ️ Notifications are already disabled.\n\nTap below to enable them:",
			t.settingsMenu(false))
	}
	t.respond(c)
}

// BackCallback returns to the main menu.
func (t *Telegram) BackCallback(c *tb.Callback) {
	t.sendMessage(c.Sender, "Main menu:", mainMenu())
	t.respond(c)
}

// digestText renders the current digest, falling back to the apology
// text when no snapshot can be served.
func (t *Telegram) digestText() string {
	snapshot, err := t.provider.Snapshot(context.Background())
	if err != nil {
		t.log.WithError(err).Warn("market data unavailable")
		return digest.Unavailable
	}

	return digest.Format(snapshot, time.Now().In(t.loc))
}

func (t *Telegram) sendSettings(to *tb.User) {
	triggerTime, enabled := t.registry.Get(to.ID)
	current := "not set"
	if enabled {
		current = triggerTime
	}

	text := fmt.Sprintf(
		"⚙️ Your notification settings:\n\n"+
			"🕒 Daily digest time: %s\n"+
			"🌍 Time zone: %s\n\n"+
			"Choose an action:",
		current, t.loc)

	t.sendMessage(to, text, t.settingsMenu(enabled))
}

func mainMenu() *tb.ReplyMarkup {
	return &tb.ReplyMarkup{InlineKeyboard: [][]tb.InlineButton{
		{btnCheck},
		{btnSettings},
	}}
}

func (t *Telegram) settingsMenu(enabled bool) *tb.ReplyMarkup {
	setBtn := btnSetTime
	if !enabled {
		setBtn.Text = "🕐 Enable notifications"
	}

	rows := [][]tb.InlineButton{{setBtn}}
	if enabled {
		rows = append(rows, []tb.InlineButton{btnDisable})
	}
	rows = append(rows, []tb.InlineButton{btnBack})

	return &tb.ReplyMarkup{InlineKeyboard: rows}
}

// sendMessage sends a message to a specific user, logging failures.
func (t *Telegram) sendMessage(to *tb.User, text string, options ...interface{}) {
	_, err := t.client.Send(to, text, options...)
	if err != nil {
		t.log.WithError(err).WithField("user_id", to.ID).Error("failed to send message")
	}
}

func (t *Telegram) respond(c *tb.Callback) {
	if err := t.client.Respond(c, &tb.CallbackResponse{}); err != nil {
		t.log.WithError(err).Error("failed to respond to callback")
	}
}
