package settings

// DB config keys and defaults for settings.
const (
	// TriggerTickIntervalSecondsKey controls the trigger evaluator tick interval in seconds.
	TriggerTickIntervalSecondsKey = "TRIGGER_TICK_INTERVAL_SECONDS"
	// ConditionDebounceSecondsKey controls the data-condition debounce window in seconds.
	ConditionDebounceSecondsKey = "CONDITION_DEBOUNCE_SECONDS"
	// ReminderTickIntervalSecondsKey controls the reminder scheduler tick interval in seconds.
	ReminderTickIntervalSecondsKey = "REMINDER_TICK_INTERVAL_SECONDS"
	// ReminderClaimHoldSecondsKey controls the temporary hold placed on a claimed reminder.
	ReminderClaimHoldSecondsKey = "REMINDER_CLAIM_HOLD_SECONDS"
	// RunsRetentionDaysKey controls how long workflow run rows are kept.
	RunsRetentionDaysKey = "RUNS_RETENTION_DAYS"

	// DefaultTriggerTickIntervalSeconds is the fallback trigger tick interval (seconds).
	DefaultTriggerTickIntervalSeconds = 300
	// DefaultConditionDebounceSeconds is the fallback debounce window (seconds).
	// Kept strictly shorter than the tick interval so clock jitter cannot make
	// the evaluator skip a legitimate new period.
	DefaultConditionDebounceSeconds = 240
	// DefaultReminderTickIntervalSeconds is the fallback reminder tick interval (seconds).
	DefaultReminderTickIntervalSeconds = 300
	// DefaultReminderClaimHoldSeconds is the fallback claim hold window (seconds).
	DefaultReminderClaimHoldSeconds = 300
	// DefaultRunsRetentionDays is the fallback workflow run retention (days).
	DefaultRunsRetentionDays = 90
)
