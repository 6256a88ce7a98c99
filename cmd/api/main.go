package main

import (
	"github.com/cicconel11/TeamMeet/internal/api"
	"github.com/cicconel11/TeamMeet/internal/checkout"
	"github.com/cicconel11/TeamMeet/internal/config"
	"github.com/cicconel11/TeamMeet/internal/logger"
	"github.com/cicconel11/TeamMeet/internal/provider/stripe"
	"github.com/cicconel11/TeamMeet/internal/service"
	"github.com/cicconel11/TeamMeet/internal/store"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),

		store.Module,
		stripe.Module,
		service.Module,
		checkout.Module,
		api.Module,
	)
	app.Run()
}
