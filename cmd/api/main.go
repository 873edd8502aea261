package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/api"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/config"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/events"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/media"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/mqtt"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/nodes"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/orchestrator"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/providers/openai"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/storage/postgres"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/version"
)

const dependencyCheckInterval = 10 * time.Second

func loadConfig() *config.EngineConfig {
	path := os.Getenv("WEAVY_CONFIG")
	if path == "" {
		return config.Default()
	}
	cfg, err := config.LoadEngineConfig(path)
	if err != nil {
		log.Fatalf("failed to load %s: %v", path, err)
	}
	return cfg
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := loadConfig()
	secrets, err := config.LoadSecrets(cfg)
	if err != nil {
		log.Fatalf("failed to resolve secrets: %v", err)
	}

	hostname, _ := os.Hostname()
	api.InitMetrics()
	api.SetInstanceName(hostname)
	api.InitAlerts()
	api.InitAuth(secrets)
	if err := api.InitTLS(); err != nil {
		log.Fatalf("failed to resolve TLS settings: %v", err)
	}

	runnerOpts := []orchestrator.Option{
		orchestrator.WithMaxConcurrency(cfg.Engine.MaxConcurrency),
		orchestrator.WithObserver(api.ObserveRun),
	}

	var pg *postgres.Client
	if cfg.Postgres.Enabled {
		pg, err = postgres.New(ctx, hostname)
		if err != nil {
			log.Printf("postgres unavailable, runs will not be stored: %v", err)
		} else {
			defer pg.Close()
			events.SetStore(pg)
			api.SetRunStore(pg)
			runnerOpts = append(runnerOpts, orchestrator.WithSink(pg))
		}
	}
	api.SetPostgresState(pg != nil, !cfg.Postgres.Enabled)

	execOpts := []nodes.Option{
		nodes.WithMediaTransformer(media.New(cfg.Media.BaseURL, cfg.Media.Timeout)),
		nodes.WithRetryPolicy(cfg.RetryPolicy()),
		nodes.WithLLMTimeout(cfg.Engine.LLMTimeout),
		nodes.WithDefaultModel(cfg.LLM.DefaultModel),
	}
	llm, err := openai.New(openai.Config{
		APIKey:            secrets.LLMAPIKey,
		BaseURL:           cfg.LLM.BaseURL,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
	})
	if err != nil {
		log.Printf("LLM nodes disabled: %v", err)
	} else {
		execOpts = append(execOpts, nodes.WithTextGenerator(llm))
	}

	runner := orchestrator.NewRunner(nodes.New(execOpts...), runnerOpts...)
	api.SetRunner(runner)
	api.SetRunTimeout(cfg.Engine.RunTimeout)

	var mq *mqtt.Client
	var trigger *mqtt.RunTrigger
	if cfg.MQTT.Enabled {
		mq = mqtt.NewClient("weavy-engine-"+hostname, cfg.MQTT.TopicPrefix)
		if err := mq.Connect(); err != nil {
			log.Printf("mqtt: failed to connect to %s: %v", mqtt.BrokerURL(), err)
		} else {
			defer mq.Disconnect()
			events.SetPublisher(mq)
			trigger = mqtt.NewRunTrigger(mq, runner, cfg.Engine.RunTimeout)
			if err := trigger.Start(ctx); err != nil {
				log.Printf("mqtt: run trigger not started: %v", err)
			}
		}
	}
	api.SetMQTTState(mq != nil && mq.IsConnected(), !cfg.MQTT.Enabled)

	go watchDependencies(ctx, mq, pg)
	api.StartAlertMonitor(ctx, dependencyCheckInterval)

	events.Emit("info", "system.startup", "engine starting", map[string]interface{}{
		"service":  "api",
		"version":  version.Version,
		"hostname": hostname,
		"pid":      os.Getpid(),
		"port":     cfg.APIPort(),
		"mqtt":     cfg.MQTT.Enabled,
		"postgres": cfg.Postgres.Enabled,
	})

	if err := api.ListenAndServe(ctx, cfg.APIPort()); err != nil {
		log.Fatalf("api server failed: %v", err)
	}

	if trigger != nil {
		if err := trigger.Stop(); err != nil {
			log.Printf("mqtt: run trigger unsubscribe failed: %v", err)
		}
		trigger.Wait()
	}
	events.Emit("info", "system.shutdown", "engine stopped", map[string]interface{}{
		"service":  "api",
		"hostname": hostname,
	})
}

// watchDependencies keeps the readiness state of MQTT and Postgres current.
func watchDependencies(ctx context.Context, mq *mqtt.Client, pg *postgres.Client) {
	ticker := time.NewTicker(dependencyCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if mq != nil {
			api.SetMQTTState(mq.IsConnected(), false)
		}
		if pg != nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			api.SetPostgresState(pg.Ping(pingCtx) == nil, false)
			cancel()
		}
	}
}
