package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	"github.com/pitabwire/frame/workerpool"
	"golang.org/x/sync/errgroup"

	chunkconfig "github.com/voicetyped/chunkscribe/config"
	"github.com/voicetyped/chunkscribe/internal/connectutil"
	"github.com/voicetyped/chunkscribe/internal/jobs"
	jobshandler "github.com/voicetyped/chunkscribe/internal/jobs/handler"
	"github.com/voicetyped/chunkscribe/internal/profiles"
	"github.com/voicetyped/chunkscribe/internal/rpc"
	"github.com/voicetyped/chunkscribe/pkg/events"
	"github.com/voicetyped/chunkscribe/pkg/notify"
	"github.com/voicetyped/chunkscribe/pkg/urlvalidation"

	// Register transcription backends via init().
	_ "github.com/voicetyped/chunkscribe/internal/transcribe/backends/deepgram"
	_ "github.com/voicetyped/chunkscribe/internal/transcribe/backends/httpapi"
	_ "github.com/voicetyped/chunkscribe/internal/transcribe/backends/openai"
	_ "github.com/voicetyped/chunkscribe/internal/transcribe/backends/placeholder"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadWithOIDC[chunkconfig.ServiceConfig](ctx)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	eventRef := cfg.GetEventsQueueName()
	eventURL := cfg.GetEventsQueueURL()

	serviceOpts := []frame.Option{
		frame.WithConfig(&cfg),
		frame.WithName("chunkscribe"),
		frame.WithDatastore(),
		frame.WithRegisterPublisher(eventRef, eventURL),
		frame.WithWorkerPoolOptions(
			workerpool.WithPoolCount(cfg.WorkerPoolCount),
			workerpool.WithSinglePoolCapacity(cfg.WorkerPoolCapacity),
		),
	}
	if cfg.AuthEnabled {
		serviceOpts = append(serviceOpts, frame.WithRegisterServerOauth2Client())
	}
	ctx, srv := frame.NewService(serviceOpts...)
	defer srv.Stop(ctx)

	pool, err := srv.WorkManager().GetPool()
	if err != nil {
		log.Fatalf("getting worker pool: %v", err)
	}

	pub := events.NewPublisher(srv.QueueManager(), "chunkscribe", eventRef)

	repo := jobs.NewRepository(srv.DatastoreManager().GetPool(ctx, "__default__pool_name__"))
	if err := repo.Migrate(ctx); err != nil {
		log.Fatalf("migrating job tables: %v", err)
	}

	loader := profiles.NewLoader(cfg.ProfileDir)
	watchProfiles := true
	if _, err := loader.LoadAll(); err != nil {
		log.Printf("warning: loading profiles: %v", err)
		watchProfiles = false
	}

	var validateOpts []urlvalidation.Option
	if cfg.CallbackAllowPrivate {
		validateOpts = append(validateOpts, urlvalidation.AllowPrivateIPs())
	}

	svc := jobs.NewService(jobs.Options{
		Repo:               repo,
		Pool:               pool,
		Publisher:          pub,
		Profiles:           loader,
		Backends:           cfg.NewBackend,
		Decoder:            cfg.Decoder(),
		Orchestrator:       cfg.Orchestrator(),
		CallbackValidation: validateOpts,
	})

	notifier := notify.NewNotifier(notify.Config{
		Secret:          cfg.CallbackSecret,
		MaxAttempts:     cfg.CallbackMaxAttempts,
		Timeout:         time.Duration(cfg.CallbackTimeoutSec) * time.Second,
		BackoffInitial:  time.Duration(cfg.CallbackBackoffSec) * time.Second,
		BackoffMax:      time.Duration(cfg.CallbackBackoffMaxSec) * time.Second,
		BreakerFailures: cfg.CallbackBreakerFails,
		BreakerReset:    time.Duration(cfg.CallbackBreakerResetSec) * time.Second,
	}, repo, validateOpts...)
	callbacks := &notify.Subscriber{
		Source:   repo,
		Notifier: notifier,
		Pool:     pool,
		Events:   pub,
	}

	// --- HTTP Mux: Connect and REST on one server ---
	mux := http.NewServeMux()
	restMux := http.NewServeMux()
	jobshandler.NewHandler(svc, cfg.MaxUploadBytes).RegisterRoutes(restMux)

	rpcOpts := connectutil.DefaultOptions()
	var restHandler http.Handler = restMux
	if cfg.AuthEnabled {
		authenticator := srv.SecurityManager().GetAuthenticator(ctx)
		rpcOpts, err = connectutil.AuthenticatedOptions(ctx, authenticator)
		if err != nil {
			log.Fatalf("setting up auth interceptors: %v", err)
		}
		restHandler = connectutil.AuthenticatedHTTPMiddleware(restMux, authenticator)
	}

	path, h := rpc.NewServer(svc, pub).Handler(rpcOpts...)
	mux.Handle(path, h)
	mux.Handle("/api/", restHandler)

	srv.Init(ctx,
		frame.WithRegisterSubscriber(eventRef+".callbacks", eventURL, callbacks),
		frame.WithHTTPHandler(connectutil.H2CHandler(mux)),
	)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer stop()
		return srv.Run(gctx, "")
	})
	if watchProfiles {
		g.Go(func() error { return loader.WatchAndReload(gctx) })
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("service exited: %v", err)
	}
}
