package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/adscope/billing/internal/app/api/server"
	"github.com/adscope/billing/internal/app/scheduler"
	"github.com/adscope/billing/internal/app/service/audit"
	"github.com/adscope/billing/internal/app/service/deadletter"
	"github.com/adscope/billing/internal/app/service/idempo"
	"github.com/adscope/billing/internal/app/service/ledger"
	"github.com/adscope/billing/internal/app/service/lifecycle"
	"github.com/adscope/billing/internal/app/service/renewal"
	"github.com/adscope/billing/internal/app/service/webhook"
	"github.com/adscope/billing/internal/platform/db"
	"github.com/adscope/billing/internal/platform/stripegw"
	"github.com/adscope/billing/pkg/config"
	"github.com/adscope/billing/pkg/logger"
	"github.com/adscope/billing/pkg/metrics"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	metrics.Module,
	db.Module,
	stripegw.Module,
	audit.Module,
	ledger.Module,
	idempo.Module,
	webhook.Module,
	deadletter.Module,
	lifecycle.Module,
	renewal.Module,
	scheduler.Module,
	server.Module,
)
