package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/firmsocial/firm/ap"
	"github.com/firmsocial/firm/auth"
	"github.com/firmsocial/firm/delivery"
	"github.com/firmsocial/firm/store"
	"github.com/firmsocial/firm/util"
	"github.com/firmsocial/firm/web"
)

// App wires the storage partitions, services and HTTP server together.
type App struct {
	config     *util.AppConfig
	store      *store.FetchingStore
	httpServer *http.Server
	worker     *delivery.Worker
	done       chan os.Signal
}

// New creates a new App instance with the given configuration
func New(conf *util.AppConfig) (*App, error) {
	return &App{
		config: conf,
		done:   make(chan os.Signal, 1),
	}, nil
}

// Initialize builds the store partitions per the configured backend and
// wires the authentication, authorization, dispatch and delivery services.
func (a *App) Initialize() error {
	prefixStore, err := a.buildStore()
	if err != nil {
		return err
	}
	a.store = store.NewFetchingStore(prefixStore, nil)

	authenticator := auth.Chain{
		&auth.SignatureAuthenticator{Store: a.store},
		&auth.BasicAuthenticator{Store: a.store},
		&auth.BearerAuthenticator{Store: a.store},
	}

	deliveryService := delivery.NewService(a.store, nil)
	if seconds := a.config.Conf.DeliveryTimeout; seconds > 0 {
		deliveryService.Timeout = time.Duration(seconds) * time.Second
		deliveryService.Client = &http.Client{Timeout: deliveryService.Timeout}
	}
	a.worker = delivery.NewWorker(deliveryService)

	tenants := make([]*ap.Tenant, 0, len(a.config.Conf.Tenants))
	for _, prefix := range a.config.Conf.Tenants {
		authorizer := auth.AuthorizerChain{auth.NewCoreAuthorizer(prefix, a.store)}
		tenants = append(tenants, ap.NewTenant(prefix, a.store, deliveryService, authorizer))
	}
	service := ap.NewService(tenants...)

	router := web.Router(&web.Deps{
		Service:         service,
		Store:           a.store,
		Authenticator:   authenticator,
		Version:         util.GetVersion(),
		NodeName:        a.config.Conf.NodeName,
		NodeDescription: a.config.Conf.NodeDescription,
	})
	a.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", a.config.Conf.Host, a.config.Conf.HttpPort),
		Handler: router,
	}
	return nil
}

// buildStore constructs the partition set: tenants and remote on the
// configured backend, private always on the same backend keyed urn:.
func (a *App) buildStore() (*store.PrefixStore, error) {
	newPartition, err := a.partitionFactory()
	if err != nil {
		return nil, err
	}
	tenants := map[string]store.Store{}
	for _, prefix := range a.config.Conf.Tenants {
		partition, err := newPartition(prefix)
		if err != nil {
			return nil, err
		}
		tenants[prefix] = partition
	}
	remote, err := newPartition("remote")
	if err != nil {
		return nil, err
	}
	private, err := newPartition("private")
	if err != nil {
		return nil, err
	}
	return store.NewPrefixStore(a.config.Conf.Tenants, tenants, remote, private), nil
}

func (a *App) partitionFactory() (func(name string) (store.Store, error), error) {
	switch a.config.Conf.Storage {
	case "", "memory":
		return func(string) (store.Store, error) {
			return store.NewMemoryStore(), nil
		}, nil
	case "file":
		return func(name string) (store.Store, error) {
			return store.NewFileStore(a.config.Conf.StorePath, partitionDirName(name))
		}, nil
	case "sqlite":
		db, err := store.OpenSQL("sqlite", a.config.Conf.DatabaseUrl)
		if err != nil {
			return nil, err
		}
		return func(name string) (store.Store, error) {
			return store.NewSQLStore(db, store.DialectSqlite, name), nil
		}, nil
	case "postgres":
		db, err := store.OpenSQL("postgres", a.config.Conf.DatabaseUrl)
		if err != nil {
			return nil, err
		}
		return func(name string) (store.Store, error) {
			return store.NewSQLStore(db, store.DialectPostgres, name), nil
		}, nil
	}
	return nil, fmt.Errorf("unknown storage backend: %s", a.config.Conf.Storage)
}

// partitionDirName maps a partition name, possibly a URL prefix, to a
// filesystem-safe directory name.
func partitionDirName(name string) string {
	return strings.NewReplacer("://", "_", ":", "_", "/", "_").Replace(name)
}

// Start starts the HTTP server and delivery worker, blocking until a
// shutdown signal is received.
func (a *App) Start() error {
	signal.Notify(a.done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	go a.worker.Run(workerCtx)

	log.Printf("Starting HTTP server on %s:%d", a.config.Conf.Host, a.config.Conf.HttpPort)
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-a.done
	log.Println("Shutdown signal received")
	stopWorker()
	return a.Shutdown()
}

// Shutdown gracefully stops the HTTP server with a 30 second timeout
func (a *App) Shutdown() error {
	log.Println("Initiating graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		return err
	}
	log.Println("HTTP server stopped gracefully")
	return nil
}
