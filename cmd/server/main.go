package main

import (
	"context"
	"flag"
	"licensebot/bot"
	"licensebot/impl/auth"
	"licensebot/impl/core"
	"licensebot/internal/config"
	"licensebot/internal/database"
	"licensebot/internal/database/memory"
	"licensebot/internal/database/mysql"
	"licensebot/internal/entitlement"
	"licensebot/internal/http-server/api"
	"licensebot/internal/scheduler"
	"licensebot/lib/logger"
	"licensebot/lib/sl"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

type store interface {
	entitlement.Store
	bot.RoleRegistry
}

func main() {
	configPath := flag.String("conf", "config.yml", "path to config file")
	logPath := flag.String("log", "/var/log/", "path to log file directory")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	base := logger.SetupLogger(conf.Env, *logPath)
	operatorHandler := logger.NewOperatorHandler(base.Handler(), nil, logger.ParseLevel(conf.Telegram.LogLevel))
	lg := slog.New(operatorHandler)
	lg.Info("starting licensebot", slog.String("config", *configPath), slog.String("env", conf.Env))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	db, closeStore, err := openStore(ctx, conf, lg)
	cancel()
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	svc := entitlement.New(db, entitlement.Config{
		MaxGenerate:          conf.Licenses.MaxGenerate,
		MaxUnused:            conf.Licenses.MaxUnused,
		DefaultDurationHours: conf.Licenses.DefaultDurationHours,
	}, lg)

	var tgBot *bot.TgBot
	if conf.Telegram.Enabled {
		tgBot, err = bot.NewTgBot(conf.Telegram.ApiKey, svc, db, lg, bot.BotConfig{
			Operators:      conf.Telegram.Operators,
			ConfirmTimeout: conf.Licenses.ConfirmTimeout,
			Cooldown:       conf.Telegram.Cooldown,
			AlertInterval:  conf.Telegram.AlertInterval,
		})
		if err != nil {
			lg.Error("telegram bot", sl.Err(err))
			closeStore()
			os.Exit(1)
		}
		svc.SetProvider(tgBot)
		operatorHandler.SetNotifier(tgBot)
		go func() {
			if err := tgBot.Start(); err != nil {
				lg.Error("telegram bot", sl.Err(err))
			}
		}()
	} else {
		lg.Warn("telegram disabled; redemption and role changes are unavailable")
	}

	sweeps := scheduler.New(svc, conf.Licenses.SweepInterval, lg)
	if err = sweeps.Start(); err != nil {
		lg.Error("scheduler", sl.Err(err))
		closeStore()
		os.Exit(1)
	}

	var server *api.Server
	if conf.Api.Enabled {
		handler := core.New(svc, lg)
		handler.SetAuthService(auth.New(conf.Api.Operators))
		server = api.New(conf, lg, handler)
		go func() {
			if err := server.Start(); err != nil {
				lg.Error("api server", sl.Err(err))
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	sig := <-stop
	lg.Info("shutting down", slog.String("signal", sig.String()))

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if server != nil {
		if err = server.Shutdown(ctx); err != nil {
			lg.Error("api server shutdown", sl.Err(err))
		}
	}
	sweeps.Stop(ctx)
	if tgBot != nil {
		operatorHandler.SetNotifier(nil)
		tgBot.Stop()
	}
	closeStore()
	lg.Info("stopped")
}

// openStore connects the configured storage driver and returns a func
// releasing it.
func openStore(ctx context.Context, conf *config.Config, lg *slog.Logger) (store, func(), error) {
	switch conf.Storage.Driver {
	case config.DriverMySQL:
		db, err := mysql.NewSQLClient(ctx, conf)
		if err != nil {
			return nil, nil, err
		}
		lg.Info("mysql connected", slog.String("database", conf.MySQL.Database))
		return db, db.Close, nil
	case config.DriverMemory:
		lg.Warn("in-memory storage; data is lost on restart")
		return memory.New(), func() {}, nil
	default:
		db, err := database.NewMongoClient(ctx, conf)
		if err != nil {
			return nil, nil, err
		}
		lg.Info("mongodb connected", slog.String("database", conf.Mongo.Database))
		return db, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := db.Close(ctx); err != nil {
				lg.Error("mongodb disconnect", sl.Err(err))
			}
		}, nil
	}
}
