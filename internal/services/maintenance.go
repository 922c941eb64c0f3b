package services

import (
	"context"
	"time"

	"github.com/machines3d/authority/internal/config"
	"github.com/machines3d/authority/internal/repository"
	"github.com/machines3d/authority/pkg/logger"
	"github.com/robfig/cron/v3"
)

// MaintenanceScheduler periodically clears expired token slots and trims the audit log.
type MaintenanceScheduler struct {
	store   repository.AccountStore
	logs    *SystemLogService
	cfg     config.MaintenanceConfig
	cron    *cron.Cron
	entryID cron.EntryID
	now     func() time.Time
}

// NewMaintenanceScheduler accepts a nil logs service when audit storage is unavailable.
func NewMaintenanceScheduler(store repository.AccountStore, logs *SystemLogService, cfg *config.MaintenanceConfig) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		store: store,
		logs:  logs,
		cfg:   *cfg,
		cron:  cron.New(),
		now:   time.Now,
	}
}

func (m *MaintenanceScheduler) Start() error {
	spec := m.cfg.CleanupCron
	if spec == "" {
		spec = "@every 1h"
	}

	entryID, err := m.cron.AddFunc(spec, func() {
		m.RunOnce(context.Background())
	})
	if err != nil {
		return err
	}
	m.entryID = entryID
	m.cron.Start()
	logger.Infof("[Maintenance] Scheduler started (cron: %s)", spec)
	return nil
}

// Stop waits for a running sweep to finish.
func (m *MaintenanceScheduler) Stop() {
	<-m.cron.Stop().Done()
}

func (m *MaintenanceScheduler) tokenGrace() time.Duration {
	hours := m.cfg.TokenGraceHours
	if hours <= 0 {
		hours = config.DefaultTokenGraceHours
	}
	return time.Duration(hours) * time.Hour
}

type SweepResult struct {
	TokensCleared int64
	LogsDeleted   int64
}

// RunOnce performs a single sweep. Errors are logged; the next tick retries.
func (m *MaintenanceScheduler) RunOnce(ctx context.Context) SweepResult {
	var result SweepResult

	cleared, err := m.store.ClearExpiredTokens(ctx, m.now().UTC().Add(-m.tokenGrace()))
	if err != nil {
		logger.Errorf("[Maintenance] Failed to clear expired tokens: %v", err)
	} else {
		result.TokensCleared = cleared
	}

	if m.logs != nil {
		deleted, err := m.logs.CleanupOldLogs(ctx, m.cfg.LogRetentionDays)
		if err != nil {
			logger.Errorf("[Maintenance] Failed to cleanup old logs: %v", err)
		} else {
			result.LogsDeleted = deleted
		}
	}

	if result.TokensCleared > 0 || result.LogsDeleted > 0 {
		logger.Info().
			Int64("tokens_cleared", result.TokensCleared).
			Int64("logs_deleted", result.LogsDeleted).
			Msg("maintenance sweep")
	}
	return result
}
