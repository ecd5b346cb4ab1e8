package lifecycle

import "errors"

var (
	// ErrSubscriptionNotFound is returned when the workspace has no subscription.
	ErrSubscriptionNotFound = errors.New("subscription not found")
	// ErrNotLinked is returned when an operation needs a gateway subscription
	// and the local row has none.
	ErrNotLinked = errors.New("subscription not linked to gateway")
	// ErrSamePlan is returned when the target plan equals the current plan.
	ErrSamePlan = errors.New("already on requested plan")
	// ErrUnknownPlan is returned when the target plan id is not configured.
	ErrUnknownPlan = errors.New("unknown plan")
	// ErrPendingChangeExists is returned when a different plan change is
	// already scheduled.
	ErrPendingChangeExists = errors.New("a different plan change is already scheduled")
	// ErrChangeNotPending is returned when executing a plan change that is no
	// longer pending.
	ErrChangeNotPending = errors.New("plan change is not pending")
	// ErrProfileMissing is returned when the user has no billing profile.
	ErrProfileMissing = errors.New("billing profile not found")
	// ErrOwnerBound is returned when releasing a billing owner that still
	// backs an active gateway subscription.
	ErrOwnerBound = errors.New("billing owner still backs an active subscription")
	// ErrGatewayFailed wraps gateway call failures; local state is untouched
	// when this is returned.
	ErrGatewayFailed = errors.New("gateway operation failed")
)
