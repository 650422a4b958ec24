package entity

// Confidence bounds shared by the decision and learning flows
const (
	MaxConfidenceScore      = 0.95 // aggregate and reinforced confidence never exceed this
	MinReinforcedConfidence = 0.1  // failure penalty floor
	ReinforceSuccessRate    = 0.1  // fraction of the remaining headroom gained per success
	ReinforceFailurePenalty = 0.15
)

// Decision defaults, overridable through config.DecisionConfig
const (
	DefaultAutoAcceptThreshold    = 0.75
	DefaultRecallConfidenceFloor  = 0.3
	DefaultDuplicateWindowDays    = 7
	DefaultPOMatchWindowDays      = 30
	DefaultPOMatchConfidence      = 0.7
	DefaultResolutionHistoryLimit = 10
)

// Final decision values a reviewer may record
const (
	FinalDecisionApproved = "approved"
	FinalDecisionRejected = "rejected"
)

// Review status derived from a processed invoice record
const (
	ReviewStatusAutoAccepted  = "AUTO_ACCEPTED"
	ReviewStatusPendingReview = "PENDING_REVIEW"
	ReviewStatusResolved      = "RESOLVED"
)
