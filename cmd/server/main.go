package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"ems/internal/attachment"
	"ems/internal/audit"
	exceptionservice "ems/internal/exception/service"
	exceptionstore "ems/internal/exception/store"
	"ems/internal/exceptiontype"
	"ems/internal/platform/config"
	"ems/internal/platform/httpserver"
	"ems/internal/platform/logger"
	"ems/internal/platform/metrics"
	"ems/internal/platform/objstore"
	"ems/internal/platform/postgres"
	platformredis "ems/internal/platform/redis"
	"ems/internal/platform/tracing"
	"ems/internal/sweeper"
	httptransport "ems/internal/transport/http"
	"ems/internal/user"
)

// main wires dependencies and owns the process lifecycle. Business rules live
// in the internal services.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TraceStdout {
		shutdown, err := tracing.Init("ems")
		if err != nil {
			log.Error("tracing init failed", "error", err)
			os.Exit(1)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				log.Warn("tracing shutdown failed", "error", err)
			}
		}()
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := platformredis.New(ctx, cfg.RedisURL)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	m := metrics.New()

	var typeCache *exceptiontype.Cache
	if redisClient != nil {
		typeCache = exceptiontype.NewCache(redisClient.Client)
	}
	typeService := exceptiontype.NewService(exceptiontype.NewPostgres(db), typeCache)
	userService := user.NewService(user.NewPostgres(db))

	excStore := exceptionstore.NewPostgres(db)
	excTx := exceptionstore.NewPostgresTx(db)
	recorder := audit.NewRecorder(nil)
	excService := exceptionservice.New(excTx, excStore, typeCatalog{types: typeService}, recorder, m, log)

	var attachmentService *attachment.Service
	if cfg.S3Endpoint != "" {
		presigner, err := objstore.NewS3(ctx, objstore.Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
		})
		if err != nil {
			log.Error("object storage init failed", "error", err)
			os.Exit(1)
		}
		attachmentService = attachment.NewService(attachment.NewPostgres(db), exceptionDirectory{store: excStore}, presigner)
	} else {
		log.Info("object storage not configured, attachment routes disabled")
	}

	group, groupCtx := errgroup.WithContext(ctx)

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := audit.NewKafkaProducer(ctx, cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			log.Error("kafka producer init failed", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		forwarder := audit.NewForwarder(producer, 0, log)
		excService.SetForwarder(forwarder.Offer)
		group.Go(func() error { return forwarder.Run(groupCtx) })
		log.Info("audit forwarding enabled", "topic", cfg.AuditTopic)
	}

	if cfg.SweeperEnabled {
		sw := sweeper.New(excService, cfg.SweeperInterval, m, log)
		group.Go(func() error { return sw.Run(groupCtx) })
	} else {
		log.Info("sla sweeper disabled")
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:      log,
		Metrics:     m,
		Exceptions:  excService,
		Types:       typeService,
		Users:       userService,
		Attachments: attachmentService,
		DB:          db,
		Redis:       redisClient,
	})
	srv := httpserver.New(cfg.Addr, router)

	group.Go(func() error {
		log.Info("server starting", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
