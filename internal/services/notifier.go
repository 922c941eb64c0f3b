package services

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/machines3d/authority/internal/config"
	"github.com/machines3d/authority/internal/models"
)

// MailNotifier renders account mail onto the task queue and pushes account
// events to the notification hub.
type MailNotifier struct {
	queue       TaskQueue
	hub         *NotificationHub
	appName     string
	frontendURL string
	adminNotify []string
}

func NewMailNotifier(queue TaskQueue, hub *NotificationHub, app *config.AppConfig, smtp *config.SMTPConfig) *MailNotifier {
	return &MailNotifier{
		queue:       queue,
		hub:         hub,
		appName:     app.Name,
		frontendURL: strings.TrimRight(app.FrontendURL, "/"),
		adminNotify: smtp.AdminNotify,
	}
}

func (n *MailNotifier) VerificationIssued(_ context.Context, account *models.Account, token string, expiresAt time.Time) error {
	link := n.link("/verify-email", token)
	body := n.render(account.FullName,
		"Please confirm your email address to activate your account.",
		link, "Verify email", expiresAt)
	return n.enqueue(&MailTask{
		Kind:      MailKindVerification,
		AccountID: account.ID,
		To:        []string{account.Email},
		Subject:   fmt.Sprintf("[%s] Verify your email", n.appName),
		Body:      body,
	})
}

func (n *MailNotifier) PasswordResetIssued(_ context.Context, account *models.Account, token string, expiresAt time.Time) error {
	link := n.link("/reset-password", token)
	body := n.render(account.FullName,
		"We received a request to reset your password. If this was not you, ignore this email.",
		link, "Reset password", expiresAt)
	return n.enqueue(&MailTask{
		Kind:      MailKindPasswordReset,
		AccountID: account.ID,
		To:        []string{account.Email},
		Subject:   fmt.Sprintf("[%s] Reset your password", n.appName),
		Body:      body,
	})
}

// EmailVerified sends the welcome mail, tells the admin list and pushes a hub event.
// Every step is attempted; the first error is returned.
func (n *MailNotifier) EmailVerified(_ context.Context, account *models.Account) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	keep(n.enqueue(&MailTask{
		Kind:      MailKindWelcome,
		AccountID: account.ID,
		To:        []string{account.Email},
		Subject:   fmt.Sprintf("Welcome to %s", n.appName),
		Body: n.render(account.FullName,
			"Your email is verified and your account is ready to use.",
			n.frontendURL+"/login", "Sign in", time.Time{}),
	}))

	if len(n.adminNotify) > 0 {
		keep(n.enqueue(&MailTask{
			Kind:      MailKindAdminNotify,
			AccountID: account.ID,
			To:        n.adminNotify,
			Subject:   fmt.Sprintf("[%s] New verified account: %s", n.appName, account.Email),
			Body: n.render("administrator",
				fmt.Sprintf("%s (%s) verified their email address.", html.EscapeString(account.FullName), html.EscapeString(account.Email)),
				"", "", time.Time{}),
		}))
	}

	if n.hub != nil {
		n.hub.PublishToAdmins(Event{
			Type:      EventAccountVerified,
			AccountID: account.ID,
			Data:      map[string]string{"email": account.Email, "full_name": account.FullName},
			At:        time.Now().UTC(),
		})
	}
	return firstErr
}

func (n *MailNotifier) enqueue(task *MailTask) error {
	if n.queue == nil {
		return nil
	}
	if err := n.queue.Enqueue(task); err != nil {
		mailTasks.WithLabelValues(task.Kind, "enqueue_failed").Inc()
		return fmt.Errorf("enqueue %s mail: %w", task.Kind, err)
	}
	return nil
}

func (n *MailNotifier) link(path, token string) string {
	return n.frontendURL + path + "?token=" + url.QueryEscape(token)
}

// render builds the HTML body. message is trusted markup; name is escaped.
func (n *MailNotifier) render(name, message, link, action string, expiresAt time.Time) string {
	var sb strings.Builder

	sb.WriteString("<html><body style=\"font-family: Arial, sans-serif;\">")
	sb.WriteString(fmt.Sprintf("<p>Hello %s,</p>", html.EscapeString(name)))
	sb.WriteString(fmt.Sprintf("<p>%s</p>", message))
	if link != "" {
		sb.WriteString(fmt.Sprintf("<p><a href=\"%s\" style=\"padding: 8px 16px; background: #1677ff; color: #fff; text-decoration: none; border-radius: 4px;\">%s</a></p>",
			html.EscapeString(link), action))
		sb.WriteString(fmt.Sprintf("<p style=\"color: #888; font-size: 12px;\">%s</p>", html.EscapeString(link)))
	}
	if !expiresAt.IsZero() {
		sb.WriteString(fmt.Sprintf("<p>This link expires at %s UTC.</p>", expiresAt.UTC().Format("2006-01-02 15:04")))
	}
	sb.WriteString(fmt.Sprintf("<hr><p style=\"color: #888; font-size: 12px;\">%s</p>", html.EscapeString(n.appName)))
	sb.WriteString("</body></html>")

	return sb.String()
}
