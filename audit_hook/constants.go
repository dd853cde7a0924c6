package audithook

// Action constants for audit events.
const (
	// Subscription actions
	ActionSubscriptionCreated  = "subscription.created"
	ActionSubscriptionUpgraded = "subscription.upgraded"

	// Quota actions
	ActionQuotaExceeded = "quota.exceeded"
	ActionUsageReset    = "usage.reset"

	// Generation actions
	ActionGenerationFailed = "generation.failed"

	// Payment actions
	ActionPaymentInitiated = "payment.initiated"
	ActionPaymentRejected  = "payment.rejected"
	ActionPaymentCompleted = "payment.completed"
	ActionPaymentFailed    = "payment.failed"

	// Provider actions
	ActionCallbackReceived = "callback.received"
	ActionStatusReconciled = "status.reconciled"
)

// Resource constants for audit events.
const (
	ResourceSubscription = "subscription"
	ResourceUsage        = "usage"
	ResourceGeneration   = "generation"
	ResourceTransaction  = "transaction"
	ResourceProvider     = "provider"
)

// Category constants for audit events.
const (
	CategorySubscription = "subscription"
	CategoryAccess       = "access"
	CategoryPayment      = "payment"
	CategoryIntegration  = "integration"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
