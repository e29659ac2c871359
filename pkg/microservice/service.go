package microservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/illmade-knight/go-usercache/pkg/audit"
	"github.com/illmade-knight/go-usercache/pkg/cachestore"
	"github.com/illmade-knight/go-usercache/pkg/docstore"
	"github.com/illmade-knight/go-usercache/pkg/imagestore"
	"github.com/illmade-knight/go-usercache/pkg/notify"
	"github.com/illmade-knight/go-usercache/pkg/types"
	"github.com/illmade-knight/go-usercache/pkg/usermanager"
	"github.com/illmade-knight/go-usercache/pkg/viewcache"
)

// Service defines the common lifecycle interface for the cache services.
type Service interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Mux() *http.ServeMux
	GetHTTPPort() string
}

// UserCacheService assembles the whole cache layer from a Config: the
// Firestore gateways, the view cache and its rebuilders, the mutation
// coordinator, the periodic refresh loop and the admin HTTP server. The
// optional collaborators (Redis, Pub/Sub, BigQuery, GCS) are attached only
// when their settings are present.
type UserCacheService struct {
	*BaseServer

	Coordinator *usermanager.Coordinator
	Users       *viewcache.Collection[types.User]
	Blogs       *viewcache.Collection[types.Blog]

	refresh *viewcache.RefreshService
	auditor *audit.Recorder
	logger  zerolog.Logger
	closers []func() error
}

// NewUserCacheService wires a service from its configuration. It connects to
// every configured backend before returning, so a misconfigured deployment
// fails at startup instead of on the first request.
func NewUserCacheService(ctx context.Context, cfg *Config, logger zerolog.Logger) (*UserCacheService, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("GCP project ID is required")
	}

	service := &UserCacheService{
		BaseServer: NewBaseServer(logger, cfg.HTTPPort),
		logger:     logger.With().Str("service", "UserCacheService").Logger(),
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	fsClient, err := firestore.NewClient(ctx, cfg.ProjectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	service.closers = append(service.closers, fsClient.Close)

	users, err := docstore.NewFirestoreGateway(
		&docstore.FirestoreConfig{ProjectID: cfg.ProjectID, CollectionName: cfg.UsersCollection},
		fsClient, usermanager.UserHandlers(), logger,
	)
	if err != nil {
		return nil, fmt.Errorf("create users gateway: %w", err)
	}
	blogs, err := docstore.NewFirestoreGateway(
		&docstore.FirestoreConfig{ProjectID: cfg.ProjectID, CollectionName: cfg.BlogsCollection},
		fsClient, usermanager.BlogHandlers(), logger,
	)
	if err != nil {
		return nil, fmt.Errorf("create blogs gateway: %w", err)
	}

	userStore, blogStore, err := service.buildViewStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	userViews, err := viewcache.NewRebuilder(
		&viewcache.RebuilderConfig{Key: usermanager.UsersViewKey, RebuildTimeout: cfg.RebuildTimeout},
		users, userStore,
		func(u types.User) string { return u.ID },
		types.User.WithoutSecrets,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("create users rebuilder: %w", err)
	}
	blogViews, err := viewcache.NewRebuilder(
		&viewcache.RebuilderConfig{Key: usermanager.BlogsViewKey, RebuildTimeout: cfg.RebuildTimeout},
		blogs, blogStore,
		func(b types.Blog) string { return b.ID },
		nil,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("create blogs rebuilder: %w", err)
	}

	service.Users, err = viewcache.NewCollection(userViews, logger)
	if err != nil {
		return nil, fmt.Errorf("create users collection: %w", err)
	}
	service.Blogs, err = viewcache.NewCollection(blogViews, logger)
	if err != nil {
		return nil, fmt.Errorf("create blogs collection: %w", err)
	}

	service.Coordinator, err = usermanager.NewCoordinator(users, blogs, userViews, blogViews, logger)
	if err != nil {
		return nil, fmt.Errorf("create coordinator: %w", err)
	}

	if err := service.attachCollaborators(ctx, cfg, clientOpts, logger); err != nil {
		return nil, err
	}

	// The warm-up pass runs synchronously inside Start, so the tick timeout
	// also bounds how long a down store can stall startup.
	service.refresh, err = viewcache.NewRefreshService(viewcache.RefreshServiceConfig{
		Interval:       cfg.RefreshInterval,
		TickTimeout:    cfg.TickTimeout,
		RefreshOnStart: true,
	}, service.Coordinator, logger)
	if err != nil {
		return nil, fmt.Errorf("create refresh service: %w", err)
	}

	service.RegisterCacheAdmin(service.Coordinator, func(ctx context.Context) (any, error) {
		return service.Coordinator.Stats(ctx)
	})

	return service, nil
}

// buildViewStores picks the cache provider: Redis when an address is
// configured, in-memory otherwise.
func (s *UserCacheService) buildViewStores(
	ctx context.Context,
	cfg *Config,
	logger zerolog.Logger,
) (cachestore.KeyValueStore[viewcache.View[types.User]], cachestore.KeyValueStore[viewcache.View[types.Blog]], error) {
	if cfg.RedisAddr == "" {
		return cachestore.NewInMemoryStore[viewcache.View[types.User]](),
			cachestore.NewInMemoryStore[viewcache.View[types.Blog]](), nil
	}

	redisCfg := &cachestore.RedisConfig{Addr: cfg.RedisAddr}
	userStore, err := cachestore.NewRedisStore[viewcache.View[types.User]](ctx, redisCfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis for user views: %w", err)
	}
	s.closers = append(s.closers, userStore.Close)

	blogStore, err := cachestore.NewRedisStore[viewcache.View[types.Blog]](ctx, redisCfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis for blog views: %w", err)
	}
	s.closers = append(s.closers, blogStore.Close)

	return userStore, blogStore, nil
}

// attachCollaborators wires the optional invalidation publisher, audit trail
// and image store onto the coordinator.
func (s *UserCacheService) attachCollaborators(
	ctx context.Context,
	cfg *Config,
	clientOpts []option.ClientOption,
	logger zerolog.Logger,
) error {
	if cfg.InvalidationTopicID != "" {
		psClient, err := pubsub.NewClient(ctx, cfg.ProjectID, clientOpts...)
		if err != nil {
			return fmt.Errorf("create pubsub client: %w", err)
		}
		s.closers = append(s.closers, psClient.Close)

		publisher, err := notify.NewPubsubPublisher(ctx, notify.NewPubsubPublisherDefaults(cfg.InvalidationTopicID), psClient, logger)
		if err != nil {
			return fmt.Errorf("create invalidation publisher: %w", err)
		}
		s.closers = append(s.closers, publisher.Close)
		s.Coordinator.WithNotifier(publisher)
	}

	if cfg.AuditDatasetID != "" {
		bqClient, err := audit.NewProductionBigQueryClient(ctx, cfg.ProjectID, cfg.CredentialsFile, logger)
		if err != nil {
			return fmt.Errorf("create bigquery client: %w", err)
		}
		inserter, err := audit.NewBigQueryInserter[audit.MutationEvent](ctx, bqClient, &audit.BigQueryDatasetConfig{
			DatasetID: cfg.AuditDatasetID,
			TableID:   cfg.AuditTableID,
		}, logger)
		if err != nil {
			return fmt.Errorf("create audit inserter: %w", err)
		}
		s.auditor = audit.NewRecorder(audit.RecorderConfig{}, inserter, logger)
		s.Coordinator.WithAuditor(s.auditor)
	}

	if cfg.ProfileImageBucket != "" {
		gcsClient, err := storage.NewClient(ctx, clientOpts...)
		if err != nil {
			return fmt.Errorf("create storage client: %w", err)
		}
		s.closers = append(s.closers, gcsClient.Close)

		images, err := imagestore.NewGCSImageStore(
			imagestore.GCSImageStoreConfig{BucketName: cfg.ProfileImageBucket},
			imagestore.NewGCSClientAdapter(gcsClient),
			logger,
		)
		if err != nil {
			return fmt.Errorf("create image store: %w", err)
		}
		s.Coordinator.WithImageStore(images)
	}

	return nil
}

// Start warms the views, begins the refresh loop and opens the HTTP server.
func (s *UserCacheService) Start(ctx context.Context) error {
	if s.auditor != nil {
		s.auditor.Start(ctx)
	}
	if err := s.refresh.Start(ctx); err != nil {
		return fmt.Errorf("start refresh service: %w", err)
	}
	if err := s.BaseServer.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	s.logger.Info().Str("port", s.GetHTTPPort()).Msg("User cache service started.")
	return nil
}

// Shutdown stops the HTTP server, the refresh loop and the audit worker,
// then closes every client connection.
func (s *UserCacheService) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.BaseServer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.refresh.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.auditor != nil {
		if err := s.auditor.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.logger.Info().Msg("User cache service shut down.")
	return nil
}
