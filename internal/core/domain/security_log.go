package domain

import "time"

// UnknownUser is recorded when a security event cannot be tied to a user.
const UnknownUser = "unknown"

// Severity grades a security log entry.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Activity names the kind of anomaly being recorded.
type Activity string

const (
	ActivityLoginFailed        Activity = "login_failed"
	ActivityAccountLocked      Activity = "account_locked"
	ActivityIPMismatch         Activity = "ip_mismatch"
	ActivityUserAgentMismatch  Activity = "user_agent_mismatch"
	ActivityBlacklistedToken   Activity = "blacklisted_token_used"
	ActivityTokenValidation    Activity = "token_validation_failed"
	ActivityRefreshTokenReuse  Activity = "refresh_token_reuse"
	ActivityCSRFMismatch       Activity = "csrf_binding_mismatch"
	ActivityCSRFInvalid        Activity = "csrf_validation_failed"
	ActivityPasswordChanged    Activity = "password_changed"
	ActivityLockedAccountToken Activity = "locked_account_access"
)

// SecurityLogEntry is an append-only audit record.
type SecurityLogEntry struct {
	ID         string         `json:"id"`
	UserID     string         `json:"userId"`
	Activity   Activity       `json:"activity"`
	Severity   Severity       `json:"severity"`
	Details    map[string]any `json:"details,omitempty"`
	IP         string         `json:"ip,omitempty"`
	UserAgent  string         `json:"userAgent,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// SecurityLogFilter narrows a security log listing.
type SecurityLogFilter struct {
	UserID   string
	Activity Activity
	Since    time.Time
	Limit    int
}
