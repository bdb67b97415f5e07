package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"trypie/config"
	dbt "trypie/db/db"
	"trypie/db/mem"
	"trypie/db/pg"
	"trypie/db/sqlite"
	"trypie/mq/gcppubsub"
	"trypie/mq/goch"
	"trypie/mq/mq"
	"trypie/mq/rabbit"
	"trypie/service"
	"trypie/web"
)

func serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		Long:  `Start the HTTP and websocket API with the store and message queue named in the config.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(map[string]*pflag.Flag{
				"server.dev":  cmd.Flags().Lookup("dev"),
				"server.port": cmd.Flags().Lookup("port"),
				"store.mode":  cmd.Flags().Lookup("store"),
				"mq.mode":     cmd.Flags().Lookup("mq"),
			})
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().Bool("dev", false, "Run in development mode")
	cmd.Flags().Int("port", 8080, "Port to run the web server on")
	cmd.Flags().String("store", config.StoreMemory, "Store mode (memory, postgres, sqlite)")
	cmd.Flags().String("mq", config.MQGoChan, "Message queue mode (go_chan, rabbitmq, gcp_pub_sub)")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	if err := cfg.ValidateServer(); err != nil {
		return err
	}
	slog.Info("starting "+config.AppName, cfg.Redacted()...)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	queues, err := openQueues(ctx, cfg.MQ)
	if err != nil {
		return err
	}
	defer func() {
		if err := queues.Close(); err != nil {
			slog.Error("close message queues", "error", err)
		}
	}()

	server, err := web.NewServer(web.OptionsFromConfig(cfg), service.NewExpenseService(store, queues))
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		return nil
	})
	return g.Wait()
}

func openStore(cfg config.StoreConfig) (dbt.GroupDBWrapper, func(), error) {
	switch cfg.Mode {
	case config.StorePostgres:
		db, err := pg.InitPostgresGORM(pg.CreateDSN(cfg.DatabaseURL))
		if err != nil {
			return nil, nil, err
		}
		return pg.NewGORMGroupDBWrapper(db), func() { pg.CloseGORM(db) }, nil
	case config.StoreSQLite:
		store, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				slog.Error("close sqlite", "error", err)
			}
		}, nil
	case config.StoreMemory:
		slog.Warn("using the in-memory store, data is lost on exit")
		return mem.NewInMemoryGroupDBWrapper(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store mode %q", cfg.Mode)
	}
}

func openQueues(ctx context.Context, cfg config.MQConfig) (mq.GroupMessageQueueWrapper, error) {
	switch cfg.Mode {
	case config.MQRabbitMQ:
		conn, err := rabbit.NewRabbitConnection(cfg.RabbitMQURL)
		if err != nil {
			return nil, err
		}
		queues, err := rabbit.NewRabbitGroupMessageQueueWrapper(conn)
		if err != nil {
			return nil, err
		}
		return queues, nil
	case config.MQGCPPubSub:
		queues, err := gcppubsub.NewGCPGroupMessageQueueWrapper(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, err
		}
		return queues, nil
	case config.MQGoChan:
		return goch.NewGoChanGroupMessageQueueWrapper(goch.DefaultBufferSize), nil
	default:
		return nil, fmt.Errorf("unknown mq mode %q", cfg.Mode)
	}
}
