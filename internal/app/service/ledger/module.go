package ledger

import "go.uber.org/fx"

// Module exposes the ledger store via Fx.
var Module = fx.Options(
	fx.Provide(NewService),
	fx.Provide(NewReconciler),
)
