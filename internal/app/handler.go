package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"reportbot/internal/report"
	"reportbot/internal/storage"
	kit "reportbot/internal/transport"
	"reportbot/pkg/logx"
)

const (
	welcomeText = "👋 Welcome to our Telegram Bot Business App!\n\n" +
		"Use this bot to manage your accounts and automate reports.\n\n" +
		"Commands:\n" +
		"/add_account - Add a Telegram account\n" +
		"/report - Report a target channel\n" +
		"/help - View help\n" +
		"/about - About this bot"

	helpText = "ℹ️ Help:\n" +
		"/start - Start the bot\n" +
		"/add_account - Add a user account\n" +
		"/report - Report a channel\n" +
		"/cancel - Cancel the current operation\n" +
		"/about - Bot info"

	aboutText = "🤖 This is a Telegram automation bot built with ❤️ using Go."

	unauthorizedText = "❌ You are not authorized."
)

func menuCommands() []kit.BotCommand {
	return []kit.BotCommand{
		{Command: "start", Description: "Start the bot"},
		{Command: "add_account", Description: "Add a Telegram account"},
		{Command: "report", Description: "Report a target channel"},
		{Command: "cancel", Description: "Cancel the current operation"},
		{Command: "help", Description: "View help"},
		{Command: "about", Description: "About this bot"},
	}
}

func (a *App) send(ctx context.Context, chatID int64, text string) {
	if text == "" {
		return
	}
	if err := a.adapter.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, nil); err != nil {
		a.log.Warn("send failed", logx.Int64("chat", chatID), logx.Err(err))
	}
}

func (a *App) isAdmin(userID int64) bool { return userID == a.cfg.AdminID }

// splitCommand parses "/report@SomeBot args" into ("report", "args").
func splitCommand(text string) (string, string) {
	rest := strings.TrimPrefix(text, "/")
	cmd, args, _ := strings.Cut(rest, " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd), strings.TrimSpace(args)
}

func (a *App) handle(ctx context.Context, m kit.Message) {
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}
	if strings.HasPrefix(text, "/") {
		a.handleCommand(ctx, m, text)
		return
	}
	a.handleConversation(ctx, m, text)
}

func (a *App) handleCommand(ctx context.Context, m kit.Message, text string) {
	cmd, _ := splitCommand(text)
	switch cmd {
	case "start":
		a.send(ctx, m.ChatID, welcomeText)
	case "help":
		a.send(ctx, m.ChatID, helpText)
	case "about":
		a.send(ctx, m.ChatID, aboutText)

	case "add_account":
		if !a.isAdmin(m.FromID) {
			a.log.Warn("add_account denied", logx.Int64("from", m.FromID))
			a.send(ctx, m.ChatID, unauthorizedText)
			return
		}
		// The run goroutine may be walking the session files right now; a
		// sign-in started mid-run could race it on the same credential store.
		if a.dispatcher.Running() {
			a.send(ctx, m.ChatID, "⏳ A report run is in progress. Try again when it finishes.")
			return
		}
		a.send(ctx, m.ChatID, a.auth.Begin(m.FromID))

	case "report":
		if !a.isAdmin(m.FromID) {
			a.log.Warn("report denied", logx.Int64("from", m.FromID))
			a.send(ctx, m.ChatID, unauthorizedText)
			return
		}
		a.setAwaitingTarget(m.FromID, true)
		a.send(ctx, m.ChatID, "🔗 Send @channelname to report:")

	case "cancel":
		a.auth.Cancel(m.FromID)
		a.setAwaitingTarget(m.FromID, false)
		a.send(ctx, m.ChatID, "❌ Operation canceled.")

	default:
		a.log.Debug("unknown command", logx.String("cmd", cmd), logx.Int64("from", m.FromID))
	}
}

func (a *App) handleConversation(ctx context.Context, m kit.Message, text string) {
	if a.isAdmin(m.FromID) && a.clearAwaitingTarget(m.FromID) {
		a.startReport(ctx, m, text)
		return
	}
	if reply, ok := a.auth.Advance(ctx, m.FromID, text); ok {
		a.send(ctx, m.ChatID, reply)
		return
	}
	// Free text outside any conversation is ignored.
}

func (a *App) setAwaitingTarget(operatorID int64, v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if v {
		a.awaitingTarget[operatorID] = true
	} else {
		delete(a.awaitingTarget, operatorID)
	}
}

// clearAwaitingTarget consumes the "next message is the target" marker.
func (a *App) clearAwaitingTarget(operatorID int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.awaitingTarget[operatorID] {
		return false
	}
	delete(a.awaitingTarget, operatorID)
	return true
}

// startReport validates the target and kicks off the run on its own goroutine
// so flood-wait sleeps never starve the update loop.
func (a *App) startReport(ctx context.Context, m kit.Message, target string) {
	target = strings.TrimSpace(target)
	if _, err := report.ParseTarget(target); err != nil {
		a.send(ctx, m.ChatID, "❗ Invalid format. Use @channelname")
		return
	}
	if a.dispatcher.Running() {
		a.send(ctx, m.ChatID, "⏳ A report run is already in progress.")
		return
	}

	a.send(ctx, m.ChatID, "🚨 Reporting "+target+" from all sessions...")

	a.reportWG.Add(1)
	go func() {
		defer a.reportWG.Done()
		start := time.Now()
		notify := func(nctx context.Context, line string) {
			a.send(nctx, m.ChatID, line)
		}
		sum, err := a.dispatcher.Run(ctx, target, notify)
		switch {
		case errors.Is(err, report.ErrBusy):
			a.send(ctx, m.ChatID, "⏳ A report run is already in progress.")
			return
		case err != nil:
			a.log.Error("report run aborted", logx.String("target", target), logx.Err(err))
			a.send(ctx, m.ChatID, "❌ Report run aborted: "+err.Error())
		}
		a.auditReport(m.FromID, target, sum, err, time.Since(start))
	}()
}

func (a *App) auditReport(operatorID int64, target string, sum report.Summary, runErr error, took time.Duration) {
	if a.audit == nil {
		return
	}
	e := storage.AuditEntry{
		ActorID: operatorID,
		Action:  "report_run",
		Target:  target,
		Sent:    sum.Sent,
		Total:   sum.Total,
		TookMS:  took.Milliseconds(),
	}
	if runErr != nil {
		e.Error = runErr.Error()
	}
	if err := a.audit.AppendAudit(context.Background(), e); err != nil {
		a.log.Warn("audit append failed", logx.Err(err))
	}
}
