package constant

import (
	"time"
)

// Context key types to avoid collisions
type contextKey string

const (
	ContextKeyUserID    contextKey = "user_id"
	ContextKeyUserEmail contextKey = "user_email"
	ContextKeyUserRole  contextKey = "user_role"
	ContextKeyTokenID   contextKey = "token_id"
)

const (
	RoleSuperAdmin = "superadmin"
	RoleAdmin      = "admin"
	RoleUser       = "user"
)

const (
	RequestParamPage    = "page"
	RequestParamLimit   = "limit"
	RequestParamSortBy  = "sort_by"
	RequestParamSortDir = "sort_dir"
)

const (
	RequestParamID = "id"
)

const (
	DefaultValuePage  = 1
	DefaultValueLimit = 10
)

const (
	FieldCreatedAt  = "created_at"
	FieldCreatedBy  = "created_by"
	FieldModifiedAt = "modified_at"
	FieldModifiedBy = "modified_by"
)

const (
	PqErrorCodeUniqueViolation = "23505"
	PqErrorCodeFkViolation     = "23503"
)

const (
	DateFormat = time.RFC3339

	// Wire formats for slot dates and times of day. ISO is the preferred
	// date format; the slash form is kept for older clients.
	SlotDateFormat       = "2006-01-02"
	SlotDateFormatLegacy = "02/01/2006"
	ClockFormat          = "15:04"
)

const (
	// ClockPattern validates a 24-hour HH:MM time of day.
	ClockPattern = `^([01]?[0-9]|2[0-3]):[0-5][0-9]$`
)

const (
	MinutesPerDay    = 24 * 60
	MinutesToSeconds = 60

	MaxDayOfWeek = 6
)

const (
	// DefaultMaxRangeDays bounds the slot listing horizon.
	DefaultMaxRangeDays = 60

	// DefaultHoldTTLMinutes is how long a payment hold keeps a slot.
	DefaultHoldTTLMinutes = 15

	// DefaultGraceMinutes pads recurring schedule windows when admins
	// validate a new one.
	DefaultGraceMinutes = 30
)

const (
	ConflictPolicyOverlap    = "overlap"
	ConflictPolicyExactStart = "exact_start"
)

const (
	OtelServiceScopeName    = "service"
	OtelRepositoryScopeName = "repository"
	OtelHandlerScopeName    = "handler"

	OtelQueryAttributeKey = "query"
)

const (
	RequestHeaderAuthorization      = "Authorization"
	RequestHeaderUserAgent          = "User-Agent"
	RequestHeaderContentType        = "Content-Type"
	RequestHeaderRateLimit          = "X-RateLimit-Limit"
	RequestHeaderRateLimitRemaining = "X-RateLimit-Remaining"
	RequestHeaderRateLimitWindow    = "X-RateLimit-Window"
	RequestHeaderForwardedFor       = "X-Forwarded-For"
	RequestHeaderRealIP             = "X-Real-IP"
	RequestHeaderAPIKey             = "X-API-Key"
)

const (
	ContentTypeJSON = "application/json"
)

const (
	ResponseErrorPrepareShutdown      = "SERVER PREPARING TO SHUT DOWN"
	ResponseErrorUnhealthy            = "SERVER UNHEALTHY"
	ResponseErrorRequestLimitExceeded = "REQUEST LIMIT EXCEEDED"
)

const (
	ServerEnvDevelopment = "development"
	ServerEnvProduction  = "production"
)

const (
	Asterix = "*"
	Empty   = ""
)
