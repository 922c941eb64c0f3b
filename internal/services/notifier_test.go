package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/machines3d/authority/internal/config"
	"github.com/machines3d/authority/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingQueue struct {
	mu    sync.Mutex
	tasks []*MailTask
	err   error
}

func (q *recordingQueue) Enqueue(task *MailTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *recordingQueue) IsAsync() bool { return false }
func (q *recordingQueue) Close() error  { return nil }

func newNotifierForTest(queue TaskQueue, hub *NotificationHub, adminNotify ...string) *MailNotifier {
	return NewMailNotifier(queue, hub,
		&config.AppConfig{Name: "3D Machines", FrontendURL: "https://app.example.com/"},
		&config.SMTPConfig{AdminNotify: adminNotify})
}

func TestMailNotifier_VerificationLink(t *testing.T) {
	queue := &recordingQueue{}
	n := newNotifierForTest(queue, nil)
	account := &models.Account{ID: 3, Email: "a@x.com", FullName: "<Ada>"}

	require.NoError(t, n.VerificationIssued(context.Background(), account, "tok en", time.Now().Add(time.Minute)))
	require.Len(t, queue.tasks, 1)

	task := queue.tasks[0]
	assert.Equal(t, MailKindVerification, task.Kind)
	assert.Equal(t, []string{"a@x.com"}, task.To)
	assert.Contains(t, task.Body, "https://app.example.com/verify-email?token=tok+en")
	assert.Contains(t, task.Body, "&lt;Ada&gt;")
	assert.NotContains(t, task.Body, "<Ada>")
}

func TestMailNotifier_PasswordReset(t *testing.T) {
	queue := &recordingQueue{}
	n := newNotifierForTest(queue, nil)

	require.NoError(t, n.PasswordResetIssued(context.Background(), &models.Account{ID: 1, Email: "a@x.com"}, "abc", time.Now()))
	require.Len(t, queue.tasks, 1)
	assert.Equal(t, MailKindPasswordReset, queue.tasks[0].Kind)
	assert.True(t, strings.Contains(queue.tasks[0].Body, "/reset-password?token=abc"))
}

func TestMailNotifier_EmailVerified(t *testing.T) {
	queue := &recordingQueue{}
	hub := NewNotificationHub()
	adminCh := hub.Subscribe("admin", 99, true)
	n := newNotifierForTest(queue, hub, "ops@x.com")

	require.NoError(t, n.EmailVerified(context.Background(), &models.Account{ID: 5, Email: "a@x.com", FullName: "Ada"}))

	require.Len(t, queue.tasks, 2)
	assert.Equal(t, MailKindWelcome, queue.tasks[0].Kind)
	assert.Equal(t, MailKindAdminNotify, queue.tasks[1].Kind)
	assert.Equal(t, []string{"ops@x.com"}, queue.tasks[1].To)

	select {
	case ev := <-adminCh:
		assert.Equal(t, EventAccountVerified, ev.Type)
		assert.Equal(t, uint(5), ev.AccountID)
	case <-time.After(time.Second):
		t.Fatal("admin did not receive the verified event")
	}
}

func TestMailNotifier_EmailVerifiedWithoutAdminList(t *testing.T) {
	queue := &recordingQueue{}
	n := newNotifierForTest(queue, nil)

	require.NoError(t, n.EmailVerified(context.Background(), &models.Account{ID: 5, Email: "a@x.com"}))
	require.Len(t, queue.tasks, 1)
}

func TestMailNotifier_EnqueueFailure(t *testing.T) {
	queue := &recordingQueue{err: errors.New("redis down")}
	n := newNotifierForTest(queue, nil)

	err := n.VerificationIssued(context.Background(), &models.Account{ID: 1, Email: "a@x.com"}, "t", time.Now())
	assert.ErrorContains(t, err, "redis down")
}
