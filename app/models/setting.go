package models

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Setting represents a system setting
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:setting_key;size:255;not null;uniqueIndex" json:"key" validate:"required,min=1,max=255"`
	Value     string    `gorm:"type:text" json:"value"`
	Type      string    `gorm:"size:50;not null" json:"type" validate:"required"` // string, boolean, integer
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AppSettings represents the application settings structure
type AppSettings struct {
	SiteTitle string `json:"site_title" validate:"required,min=1,max=255"`

	// Scheduler tuning.
	AutomationTickSeconds   int `json:"automation_tick_seconds" validate:"min=5"`
	ReminderTickMinutes     int `json:"reminder_tick_minutes" validate:"min=1"`
	DispatchWorkerCount     int `json:"dispatch_worker_count" validate:"min=1,max=64"`
	StepMaxAttempts         int `json:"step_max_attempts" validate:"min=1,max=10"`
	RetryBackoffBaseMinutes int `json:"retry_backoff_base_minutes" validate:"min=1"`
	MissedClassAfterDays    int `json:"missed_class_after_days" validate:"min=1"`
	CounterFlushSeconds     int `json:"counter_flush_seconds" validate:"min=1"`

	mu sync.RWMutex
}

// Global settings instance
var (
	appSettings *AppSettings
	settingsMu  sync.RWMutex
)

// GetAppSettings returns the current application settings
func GetAppSettings() *AppSettings {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return appSettings
}

func defaultAppSettings() *AppSettings {
	return &AppSettings{
		SiteTitle:               "DojoPulse",
		AutomationTickSeconds:   60,
		ReminderTickMinutes:     60,
		DispatchWorkerCount:     5,
		StepMaxAttempts:         3,
		RetryBackoffBaseMinutes: 5,
		MissedClassAfterDays:    7,
		CounterFlushSeconds:     5,
	}
}

// LoadSettings loads settings from database into memory
func LoadSettings(db *gorm.DB) error {
	settingsMu.Lock()
	defer settingsMu.Unlock()

	// Initialize with defaults
	appSettings = defaultAppSettings()

	// Load settings from database
	var settings []Setting
	if err := db.Find(&settings).Error; err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	// Apply loaded settings
	for _, setting := range settings {
		switch setting.Key {
		case "site_title":
			appSettings.SiteTitle = setting.Value
		case "automation_tick_seconds":
			applyIntSetting(&appSettings.AutomationTickSeconds, setting.Value)
		case "reminder_tick_minutes":
			applyIntSetting(&appSettings.ReminderTickMinutes, setting.Value)
		case "dispatch_worker_count":
			applyIntSetting(&appSettings.DispatchWorkerCount, setting.Value)
		case "step_max_attempts":
			applyIntSetting(&appSettings.StepMaxAttempts, setting.Value)
		case "retry_backoff_base_minutes":
			applyIntSetting(&appSettings.RetryBackoffBaseMinutes, setting.Value)
		case "missed_class_after_days":
			applyIntSetting(&appSettings.MissedClassAfterDays, setting.Value)
		case "counter_flush_seconds":
			applyIntSetting(&appSettings.CounterFlushSeconds, setting.Value)
		}
	}

	return nil
}

func applyIntSetting(target *int, value string) {
	if v, err := strconv.Atoi(value); err == nil && v > 0 {
		*target = v
	}
}

// SaveSettings saves current settings to database
func SaveSettings(db *gorm.DB, settings *AppSettings) error {
	settingsMu.Lock()
	defer settingsMu.Unlock()

	// Validate settings
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	settingsMap := map[string]string{
		"site_title":                 settings.SiteTitle,
		"automation_tick_seconds":    strconv.Itoa(settings.AutomationTickSeconds),
		"reminder_tick_minutes":      strconv.Itoa(settings.ReminderTickMinutes),
		"dispatch_worker_count":      strconv.Itoa(settings.DispatchWorkerCount),
		"step_max_attempts":          strconv.Itoa(settings.StepMaxAttempts),
		"retry_backoff_base_minutes": strconv.Itoa(settings.RetryBackoffBaseMinutes),
		"missed_class_after_days":    strconv.Itoa(settings.MissedClassAfterDays),
		"counter_flush_seconds":      strconv.Itoa(settings.CounterFlushSeconds),
	}

	// Save each setting
	for key, value := range settingsMap {
		var setting Setting
		result := db.Where("setting_key = ?", key).First(&setting)

		if result.Error != nil {
			if result.Error == gorm.ErrRecordNotFound {
				// Create new setting
				setting = Setting{
					Key:   key,
					Value: value,
					Type:  getSettingType(key),
				}
				if err := db.Create(&setting).Error; err != nil {
					return fmt.Errorf("failed to create setting %s: %w", key, err)
				}
			} else {
				return fmt.Errorf("failed to query setting %s: %w", key, result.Error)
			}
		} else {
			// Update existing setting
			setting.Value = value
			if err := db.Save(&setting).Error; err != nil {
				return fmt.Errorf("failed to update setting %s: %w", key, err)
			}
		}
	}

	appSettings = settings
	return nil
}

func getSettingType(key string) string {
	switch key {
	case "site_title":
		return "string"
	default:
		return "integer"
	}
}

// Validate validates the settings struct
func (s *AppSettings) Validate() error {
	v := validator.New()

	return v.Struct(s)
}

// GetAutomationTick returns the scheduler tick interval for automation work.
func (s *AppSettings) GetAutomationTick() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Duration(s.AutomationTickSeconds) * time.Second
}

// GetReminderTick returns the interval for reminder-class periodic work
// (monthly resets, missed-class sweep).
func (s *AppSettings) GetReminderTick() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Duration(s.ReminderTickMinutes) * time.Minute
}

// GetDispatchWorkerCount returns the size of the dispatch worker pool.
func (s *AppSettings) GetDispatchWorkerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.DispatchWorkerCount
}

// GetStepMaxAttempts returns how many times a step is attempted before the
// enrollment is marked failed.
func (s *AppSettings) GetStepMaxAttempts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.StepMaxAttempts
}

// GetRetryBackoffBase returns the base delay for exponential step retries.
func (s *AppSettings) GetRetryBackoffBase() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Duration(s.RetryBackoffBaseMinutes) * time.Minute
}

// GetMissedClassAfterDays returns how many absent days trigger missed_class.
func (s *AppSettings) GetMissedClassAfterDays() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.MissedClassAfterDays
}

// GetCounterFlushInterval returns how often Redis usage counters are flushed.
func (s *AppSettings) GetCounterFlushInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Duration(s.CounterFlushSeconds) * time.Second
}
