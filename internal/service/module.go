package service

import (
	"github.com/cicconel11/TeamMeet/internal/clock"
	"go.uber.org/fx"
)

var Module = fx.Module("service",
	fx.Provide(
		clock.New,
		NewAttemptService,
	),
)
