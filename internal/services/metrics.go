package services

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	authOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_operations_total",
		Help: "Authentication operations by outcome",
	}, []string{"operation", "result"})

	mailTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_mail_tasks_total",
		Help: "Mail tasks by kind and delivery outcome",
	}, []string{"kind", "result"})

	streamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auth_notification_stream_clients",
		Help: "Number of connected notification stream clients",
	})
)

var resultLabels = []struct {
	err   error
	label string
}{
	{ErrValidation, "validation"},
	{ErrNotFound, "not_found"},
	{ErrInvalidCredential, "invalid_credential"},
	{ErrInvalidToken, "invalid_token"},
	{ErrExpired, "expired"},
	{ErrForbidden, "forbidden"},
	{ErrEmailNotVerified, "email_not_verified"},
	{ErrDuplicateEmail, "duplicate_email"},
	{ErrAlreadyVerified, "already_verified"},
	{ErrTooManyAttempts, "too_many_attempts"},
}

// ResultLabel collapses an AuthService error into a bounded metric label.
func ResultLabel(err error) string {
	if err == nil {
		return "success"
	}
	for _, r := range resultLabels {
		if errors.Is(err, r.err) {
			return r.label
		}
	}
	return "error"
}

func observe(operation string, err error) {
	authOperations.WithLabelValues(operation, ResultLabel(err)).Inc()
}
