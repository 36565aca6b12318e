package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"

	"contestbot/cmd/buildCFG"
	"contestbot/internal/admin"
	"contestbot/internal/api/api"
	"contestbot/internal/bot"
	rabbitReader "contestbot/internal/consumerWorker"
	"contestbot/internal/gate"
	"contestbot/internal/intake"
	"contestbot/internal/metrics"
	"contestbot/internal/model"
	"contestbot/internal/notifier"
	"contestbot/internal/rabbit"
	"contestbot/internal/repo"
	"contestbot/internal/service"
	"contestbot/internal/settings"
	"contestbot/internal/telegram"
)

func main() {
	configPath := pflag.String("config", "config.yaml", "path to the YAML config file")
	pflag.Parse()

	zlog.Init()
	log := zlog.Logger

	cfg := config.New()
	if err := cfg.Load(*configPath, "", "'"); err != nil {
		log.Fatal().Msgf("failed to load configuration: %v", err)
	}
	serverCfg := buildCFG.BuildServerConfig(cfg, &log)
	botCfg, err := buildCFG.BuildBotConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build bot config")
	}
	secrets, err := buildCFG.BuildSecrets()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read secrets")
	}
	if err := buildCFG.CheckAccess(serverCfg, botCfg, secrets); err != nil {
		log.Fatal().Err(err).Msg("refusing unauthenticated configuration")
	}

	storageCfg, err := buildCFG.BuildStorageConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build storage config")
	}
	var repository repo.Repository
	switch storageCfg.Driver {
	case buildCFG.DriverPostgres:
		masterDSN, slaveDSNs, poolOptions, err := buildCFG.BuildDBConfig(cfg, &log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build DB config")
		}
		db, err := dbpg.New(masterDSN, slaveDSNs, poolOptions)
		if err != nil {
			log.Fatal().Msgf("failed to connect to DB: %v", err)
		}
		repository, err = repo.NewRepository(db, &log)
		if err != nil {
			log.Fatal().Msgf("failed to initialize repository: %v", err)
		}
	default:
		repository, err = repo.OpenSQLite(storageCfg.SQLitePath, &log)
		if err != nil {
			log.Fatal().Msgf("failed to open sqlite database: %v", err)
		}
	}
	defer repository.Close()
	log.Info().Str("driver", storageCfg.Driver).Msg("Database connected successfully")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := repository.MigrateUp(ctx); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	defaults := model.DefaultSettings()
	defaults.NextTicket = botCfg.InitialTicket
	store, err := settings.Open(ctx, repository, defaults, nil, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load contest settings")
	}

	metrics.Register()

	tg, err := telegram.NewClient(telegram.Config{Token: secrets.BotToken, APIURL: botCfg.APIURL}, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create telegram client")
	}

	rabbitCfg, err := buildCFG.BuildRabbitConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load RabbitMQ config")
	}
	var rmq *rabbit.Client
	if rabbitCfg.Enabled {
		rmq, err = rabbit.NewRabbit(rabbitCfg.Url, rabbitCfg.Exchange, rabbitCfg.Queue)
		if err != nil {
			log.Fatal().Msgf("Failed to connect to RabbitMQ: %v", err)
		}
		defer rmq.Close()
	}

	notify := notifier.New(tg, notifier.Options{
		OperatorChatID: botCfg.OperatorID,
		AdminChatID:    botCfg.AdminID,
		Footer:         botCfg.Footer,
	}, &log)
	subsGate := gate.New(tg, gate.Options{Concurrency: botCfg.GateConcurrency, Timeout: botCfg.GateTimeout}, &log)

	intakeOpts := intake.Options{ContestTitle: botCfg.ContestTitle}
	if rmq != nil {
		intakeOpts.Publisher = rmq
	}
	machine := intake.NewMachine(store, repository, subsGate, notify, intakeOpts, &log)

	controlPlane := admin.NewControlPlane(store, repository, &log)
	commands := admin.NewCommands(controlPlane, notify, &log)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	dispatcher := intake.NewDispatcher(workerCtx, bot.NewRouter(botCfg.AdminID, commands, machine), &log)

	var (
		pollDone = make(chan struct{})
		reader   *rabbitReader.Reader
	)
	switch botCfg.Inbound {
	case buildCFG.InboundPolling:
		poller := telegram.NewPoller(tg, dispatcher, botCfg.PollTimeout, &log)
		go func() {
			defer close(pollDone)
			_ = poller.Run(ctx)
		}()
	case buildCFG.InboundQueue:
		close(pollDone)
		if rmq == nil {
			log.Fatal().Msg("bot.inbound=queue requires rabbitmq.enabled")
		}
		reader = rabbitReader.NewReader(rmq, tg, dispatcher)
		reader.Start(workerCtx)
	default:
		close(pollDone)
	}

	apiKeys := make(map[string]struct{}, len(secrets.AdminAPIKeys))
	for _, k := range secrets.AdminAPIKeys {
		apiKeys[k] = struct{}{}
	}
	serviceInstance := service.NewService(controlPlane, service.Options{
		Sink:          dispatcher,
		API:           tg,
		WebhookSecret: secrets.WebhookSecret,
	}, &log)
	app := api.NewRouters(&api.Routers{
		Service:       serviceInstance,
		APIKeys:       apiKeys,
		InsecureAdmin: serverCfg.InsecureAdmin,
		Webhook:       botCfg.Inbound == buildCFG.InboundWebhook,
	})

	srv := &http.Server{Addr: ":" + serverCfg.Port, Handler: app}
	serverErrChan := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting server on %s", serverCfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Received shutdown signal. Initiating shutdown...")
	case err := <-serverErrChan:
		log.Error().Msgf("Server error: %v", err)
		stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Msgf("Error shutting down server: %v", err)
	}

	<-pollDone
	if reader != nil {
		reader.Stop()
	}
	// queued events still finish; only then are in-flight calls cancelled
	dispatcher.Close()
	cancelWorkers()

	log.Info().Msg("Shutdown complete")
}
