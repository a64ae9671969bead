package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/pelotonbridge/internal/api"
	"example.com/pelotonbridge/internal/auth"
	"example.com/pelotonbridge/internal/bootstrap"
	"example.com/pelotonbridge/internal/config"
	"example.com/pelotonbridge/internal/consumer"
	"example.com/pelotonbridge/internal/messages"
	"example.com/pelotonbridge/internal/orchestrator"
	"example.com/pelotonbridge/internal/outbox"
	"example.com/pelotonbridge/internal/peloton"
	persistence "example.com/pelotonbridge/internal/persistence/postgres"
	"example.com/pelotonbridge/internal/router"
	httptransport "example.com/pelotonbridge/internal/transport/http"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := messages.NewBus(cfg.EventBuffer)
	publisher := messages.Fanout{bus}

	var orchOpts []orchestrator.Option
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		defer pool.Close()
		orchOpts = append(orchOpts, orchestrator.WithSnapshotRecorder(persistence.NewSnapshotRepository(pool)))
		log.Printf("archiving workout count snapshots to postgres")
	}

	var (
		producer   *outbox.KafkaProducer
		dispatcher *outbox.Dispatcher
	)
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()
	if cfg.KafkaEnabled() {
		producer = outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()

		dispatcher = outbox.NewDispatcher(producer, outbox.Config{
			Topic:         cfg.OutboundTopic,
			Buffer:        cfg.OutboxBuffer,
			FlushInterval: cfg.OutboxFlushInterval,
			BatchSize:     cfg.OutboxBatchSize,
		})
		publisher = append(publisher, dispatcher)
		go dispatcher.Start(dispatchCtx)
	}

	client := peloton.NewClient(cfg.PelotonAPIURL, cfg.PelotonHTTPTimeout)
	orch := orchestrator.New(client, publisher, orchOpts...)
	rt := router.New(orch)

	if cfg.InstancesFile != "" {
		instances, err := bootstrap.LoadInstances(cfg.InstancesFile)
		if err != nil {
			log.Fatalf("failed to load instances: %v", err)
		}
		if err := bootstrap.Replay(ctx, rt, instances); err != nil {
			log.Printf("bootstrap replay: %v", err)
		}
		log.Printf("bootstrapped %d instances from %s", len(instances), cfg.InstancesFile)
	}

	var consumers sync.WaitGroup
	if cfg.KafkaEnabled() {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroupID,
			Topic:           cfg.InboundTopic,
			MinBytes:        1,
			MaxBytes:        10e6,
			CommitInterval:  time.Second,
			ReadLagInterval: -1,
		})
		proc := consumer.NewProcessor(reader, consumer.NewRouterHandler(rt))

		consumers.Add(1)
		go func() {
			defer consumers.Done()
			defer reader.Close()

			log.Printf("consumer started (topic=%s, group=%s)", cfg.InboundTopic, cfg.ConsumerGroupID)
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("consumer stopped with error (topic=%s): %v", cfg.InboundTopic, err)
			}
		}()
	}

	handler := api.NewHandler(rt, orch, bus)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	cors := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", cfg.CORSAllowedOrigin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	logger := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("%s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}

	authMiddleware := auth.NewMiddleware(auth.Config{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Disabled: cfg.AuthDisabled,
	})
	if cfg.AuthDisabled {
		log.Printf("WARNING: bearer token validation is disabled")
	}

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:           cfg.HTTPAddress,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}, logger(cors(authMiddleware.Wrap(mux))))
	// Request contexts derive from ctx so open event streams end when shutdown begins.
	server.BaseContext = func(net.Listener) context.Context { return ctx }

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("peloton-bridge listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	log.Println("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	consumers.Wait()
	rt.Wait()
	orch.Close()

	if dispatcher != nil {
		stopDispatch()
		dispatcher.Wait()
	}
}
