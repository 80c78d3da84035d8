package constants

// Locate response statuses.
const (
	LocateStatusOK        = "ok"
	LocateStatusError     = "error"
	LocateStatusCancelled = "cancelled"
	LocateStatusDisabled  = "disabled"
	LocateStatusTimeout   = "timeout"
)

// Topic suffixes.
const (
	ResponseTopicSuffix = "response"
)

// Service names used by the registry.
const (
	TrackingServiceName      = "tracking"
	LocateServiceName        = "locate"
	AuthorizationServiceName = "authorization"
)
