package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/catalog"
	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/coingecko"
	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/config"
	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/dispatcher"
	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/logger"
	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/queue"
	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/reddit"
	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/storage"
	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/telegram"
	"github.com/Dan6erbond/reddit-comments-crypto-counter/internal/tracker"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
	testMode   = flag.Bool("test", false, "Run against the test subreddit and test database")
	clearDB    = flag.Bool("clear-db", false, "Truncate the record store before starting")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *testMode {
		cfg.ApplyTestMode()
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()
	logger.Info("Configuration loaded from %s", *configPath)
	if *testMode {
		logger.Warn("Running in test mode against r/%s", cfg.Bot.TestSubreddit)
	}

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()
	if *clearDB {
		logger.Warn("Clearing record store")
		if err := store.Truncate(); err != nil {
			logger.Fatal("Failed to clear record store: %v", err)
		}
	}

	redditClient := reddit.NewClient(
		cfg.Reddit.AuthURL,
		cfg.Reddit.APIURL,
		cfg.Reddit.UserAgent,
		reddit.Credentials{
			ClientID:     cfg.Reddit.ClientID,
			ClientSecret: cfg.Reddit.ClientSecret,
			Username:     cfg.Reddit.Username,
			Password:     cfg.Reddit.Password,
		},
		cfg.Reddit.Timeout,
		reddit.ClientConfig{
			MaxRetries:     cfg.Reddit.MaxRetries,
			RetryDelayBase: cfg.Reddit.RetryDelayBase,
		},
	)

	geckoClient := coingecko.NewClient(
		cfg.Coingecko.APIURL,
		cfg.Coingecko.Timeout,
		coingecko.ClientConfig{
			MaxRetries:     cfg.Coingecko.MaxRetries,
			RetryDelayBase: cfg.Coingecko.RetryDelayBase,
		},
	)
	coinCache := catalog.NewCache(geckoClient, cfg.Coingecko.VsCurrency, cfg.Coingecko.Limit, cfg.Coingecko.RefreshTTL)

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	username, err := redditClient.Me(ctx)
	if err != nil {
		logger.Fatal("Failed to verify Reddit credentials: %v", err)
	}
	logger.Info("Authenticated as /u/%s, watching %v", username, cfg.Reddit.Subreddits)

	actionQueue := queue.New(redditClient, store, cfg.Bot.QueueSize, cfg.Bot.ActionCooldown)
	go actionQueue.Run(ctx)

	var notifier tracker.Notifier
	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx)
		if err := telegramClient.SendStartup(username, cfg.Reddit.Subreddits); err != nil {
			logger.Warn("Failed to send startup notification: %v", err)
		}
		notifier = telegramClient
	}

	disp := dispatcher.New(redditClient, coinCache, store, actionQueue, notifier, dispatcher.Options{
		Subreddits:        cfg.Reddit.Subreddits,
		TriggerPhrases:    cfg.Bot.TriggerPhrases,
		BotUsername:       username,
		StreamSubmissions: cfg.Bot.StreamSubmissions,
		NotifyOnDuplicate: cfg.Bot.NotifyOnDuplicate,
		StreamInterval:    cfg.Reddit.StreamInterval,
		StartInterval:     cfg.Bot.StartInterval,
		Tracker: tracker.Options{
			BotUsername:      username,
			Footer:           cfg.Bot.Footer,
			MaxSubmissionAge: cfg.Bot.MaxSubmissionAge,
		},
	})

	logger.Info("Starting dispatcher")
	disp.Run(ctx)
	logger.Info("Service stopped")
}
