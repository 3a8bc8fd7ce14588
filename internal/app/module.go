package app

import (
	"time"

	"github.com/fatflowers/allowance/internal/app/api/server"
	"github.com/fatflowers/allowance/internal/app/service/catalog"
	"github.com/fatflowers/allowance/internal/app/service/credit"
	"github.com/fatflowers/allowance/internal/app/service/ledger"
	"github.com/fatflowers/allowance/internal/app/service/maintenance"
	"github.com/fatflowers/allowance/internal/app/service/subscription"
	"github.com/fatflowers/allowance/internal/app/service/usage"
	"github.com/fatflowers/allowance/internal/platform/db"
	"github.com/fatflowers/allowance/pkg/config"
	"github.com/fatflowers/allowance/pkg/logger"

	"go.uber.org/fx"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

// Services carries every service module and the shared platform pieces.
// The API binary layers the HTTP server on top; the cron binary uses it as is.
var Services = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	catalog.Module,
	ledger.Module,
	subscription.Module,
	usage.Module,
	credit.Module,
	maintenance.Module,
)

var Module = fx.Options(
	Services,
	server.Module,
)
