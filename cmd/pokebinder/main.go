package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/pokebinder/pokebinder/internal/cards"
	"github.com/pokebinder/pokebinder/internal/collection"
	"github.com/pokebinder/pokebinder/internal/config"
	"github.com/pokebinder/pokebinder/internal/events"
	"github.com/pokebinder/pokebinder/internal/storage"
	"github.com/pokebinder/pokebinder/internal/storage/repository"
	"github.com/pokebinder/pokebinder/internal/tcgapi"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		return
	}

	switch os.Args[1] {
	case "list":
		runListCommand()
	case "all":
		runAllCommand()
	case "stats":
		runStatsCommand()
	case "add":
		runAddCommand()
	case "remove":
		runRemoveCommand()
	case "collections":
		runCollectionsCommand()
	case "use":
		runUseCommand()
	case "sync":
		runSyncCommand()
	case "migrate":
		runMigrationCommand()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("PokeBinder - Collection Tracker")
	fmt.Println("===============================")
	fmt.Println()
	fmt.Println("Usage: pokebinder <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  list         - Show the active collection")
	fmt.Println("  all          - Show all cards across collections")
	fmt.Println("  stats        - Show collection statistics")
	fmt.Println("  add <id>     - Add one copy of a card to the active collection")
	fmt.Println("  remove <id>  - Remove one copy of a card from the active collection")
	fmt.Println("  collections  - List your collections")
	fmt.Println("  use <id>     - Select the active collection")
	fmt.Println("  sync         - Keep the local index in sync until interrupted")
	fmt.Println("  migrate      - Run card cache database migrations")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  pokebinder add base1-4")
	fmt.Println("  pokebinder use 7")
	fmt.Println("  pokebinder migrate up")
	fmt.Println()
}

// app bundles the wired components behind each command.
type app struct {
	cfg        *config.Config
	db         *storage.DB
	store      collection.RemoteStore
	cache      *cards.Cache
	index      *collection.Index
	engine     *collection.Engine
	views      *collection.Views
	dispatcher *events.Dispatcher
}

// buildApp loads the configuration and wires every component. The returned
// app owns the database handle; callers must Close it.
func buildApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dbPath, err := cfg.DBPath()
	if err != nil {
		return nil, err
	}

	dbConfig := storage.DefaultConfig(dbPath)
	dbConfig.AutoMigrate = true
	db, err := storage.Open(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("open card cache database: %w", err)
	}

	var catalogOpts []tcgapi.Option
	if cfg.Catalog.BaseURL != "" {
		catalogOpts = append(catalogOpts, tcgapi.WithBaseURL(cfg.Catalog.BaseURL))
	}
	if cfg.Catalog.APIKey != "" {
		catalogOpts = append(catalogOpts, tcgapi.WithAPIKey(cfg.Catalog.APIKey))
	}
	catalog := tcgapi.NewClient(catalogOpts...)

	repo := repository.NewCardCacheRepository(db.Conn())
	cache := cards.NewCache(repo, catalog)

	storeConfig := collection.DefaultClientConfig(cfg.Store.BaseURL)
	storeConfig.AuthToken = cfg.Store.AuthToken
	if timeout, err := cfg.GetStoreTimeout(); err == nil {
		storeConfig.Timeout = timeout
	}
	store := collection.NewHTTPStore(storeConfig)

	index := collection.NewIndex(store, cfg.Store.UserID)
	dispatcher := events.NewDispatcher()
	dispatcher.Register(&consoleObserver{})

	var engineOpts []collection.EngineOption
	if grace, err := cfg.GetPendingGrace(); err == nil {
		engineOpts = append(engineOpts, collection.WithPendingGrace(grace))
	}
	engine := collection.NewEngine(index, store, cache, dispatcher, engineOpts...)

	return &app{
		cfg:        cfg,
		db:         db,
		store:      store,
		cache:      cache,
		index:      index,
		engine:     engine,
		views:      collection.NewViews(index, cache),
		dispatcher: dispatcher,
	}, nil
}

// Close releases the app's resources after draining background writes.
func (a *app) Close() {
	a.engine.Wait()
	if err := a.db.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
}

// selectActive refreshes the index and resolves the active collection from
// config, falling back to the first collection the store returns.
func (a *app) selectActive(ctx context.Context) (collection.Collection, error) {
	if err := a.index.Refresh(ctx); err != nil {
		return collection.Collection{}, err
	}

	collections, err := a.store.ListCollections(ctx, a.cfg.Store.UserID)
	if err != nil {
		return collection.Collection{}, fmt.Errorf("list collections: %w", err)
	}
	if len(collections) == 0 {
		return collection.Collection{}, fmt.Errorf("no collections exist for user %d", a.cfg.Store.UserID)
	}

	selected := collections[0]
	if a.cfg.Store.ActiveCollection != 0 {
		found := false
		for _, c := range collections {
			if c.ID == a.cfg.Store.ActiveCollection {
				selected = c
				found = true
				break
			}
		}
		if !found {
			log.Printf("Configured collection %d not found, using %q", a.cfg.Store.ActiveCollection, selected.Name)
		}
	}

	a.engine.SetActiveCollection(ctx, selected)
	return selected, nil
}

func runListCommand() {
	a, err := buildApp()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	active, err := a.selectActive(ctx)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	rows := a.views.PerCollection(ctx, active.ID)
	fmt.Printf("%s (%d cards)\n", active.Name, len(rows))
	fmt.Println()
	for _, row := range rows {
		fmt.Printf("  %-40s x%-3d %s\n", row.Card.DisplayName(), row.Entry.Quantity, row.Entry.CardID)
	}
}

func runAllCommand() {
	a, err := buildApp()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	if err := a.index.Refresh(ctx); err != nil {
		log.Fatalf("Error refreshing index: %v", err)
	}

	groups := a.views.CrossCollection(ctx)
	fmt.Printf("All cards (%d unique)\n", len(groups))
	fmt.Println()
	for _, group := range groups {
		fmt.Printf("  %-40s x%-3d in %d collection(s)\n",
			group.Card.DisplayName(), group.TotalQuantity, len(group.CollectionIDs))
	}
}

func runStatsCommand() {
	a, err := buildApp()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	if err := a.index.Refresh(ctx); err != nil {
		log.Fatalf("Error refreshing index: %v", err)
	}

	stats := a.views.Stats(ctx)
	fmt.Println("Collection Statistics")
	fmt.Println("=====================")
	fmt.Printf("Unique cards: %d\n", stats.UniqueCards)
	fmt.Printf("Total cards:  %d\n", stats.TotalCards)
	if stats.PendingLookup > 0 {
		fmt.Printf("Awaiting metadata: %d\n", stats.PendingLookup)
	}

	if len(stats.ByRarity) > 0 {
		fmt.Println()
		fmt.Println("By rarity:")
		for rarity, count := range stats.ByRarity {
			fmt.Printf("  %-20s %d\n", rarity, count)
		}
	}
	if len(stats.BySet) > 0 {
		fmt.Println()
		fmt.Println("By set:")
		for set, count := range stats.BySet {
			fmt.Printf("  %-20s %d\n", set, count)
		}
	}
}

func runAddCommand() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: pokebinder add <card-id>")
		os.Exit(1)
	}
	cardID := os.Args[2]

	a, err := buildApp()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	if _, err := a.selectActive(ctx); err != nil {
		log.Fatalf("Error: %v", err)
	}

	if err := a.engine.RequestAdd(ctx, cardID); err != nil {
		log.Fatalf("Error adding card: %v", err)
	}
	a.engine.Wait()
}

func runRemoveCommand() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: pokebinder remove <card-id>")
		os.Exit(1)
	}
	cardID := os.Args[2]

	a, err := buildApp()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	if _, err := a.selectActive(ctx); err != nil {
		log.Fatalf("Error: %v", err)
	}

	if err := a.engine.RequestRemove(ctx, cardID); err != nil {
		log.Fatalf("Error removing card: %v", err)
	}
	a.engine.Wait()
}

func runCollectionsCommand() {
	a, err := buildApp()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	collections, err := a.store.ListCollections(ctx, a.cfg.Store.UserID)
	if err != nil {
		log.Fatalf("Error listing collections: %v", err)
	}

	fmt.Println("Your collections:")
	for _, c := range collections {
		marker := " "
		if c.ID == a.cfg.Store.ActiveCollection {
			marker = "*"
		}
		fmt.Printf("  %s %d  %s\n", marker, c.ID, c.Name)
	}
}

func runUseCommand() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: pokebinder use <collection-id>")
		os.Exit(1)
	}
	id, err := strconv.ParseInt(os.Args[2], 10, 64)
	if err != nil {
		log.Fatalf("Invalid collection id %q", os.Args[2])
	}

	a, err := buildApp()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	collections, err := a.store.ListCollections(ctx, a.cfg.Store.UserID)
	if err != nil {
		log.Fatalf("Error listing collections: %v", err)
	}

	for _, c := range collections {
		if c.ID == id {
			a.cfg.Store.ActiveCollection = id
			if err := a.cfg.Save(); err != nil {
				log.Fatalf("Error saving config: %v", err)
			}
			fmt.Printf("Active collection: %s\n", c.Name)
			return
		}
	}
	log.Fatalf("Collection %d not found", id)
}

func runSyncCommand() {
	a, err := buildApp()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.index.Refresh(ctx); err != nil {
		log.Printf("Initial refresh failed: %v", err)
	}

	interval, err := a.cfg.GetRefreshInterval()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	fmt.Printf("Syncing every %v. Press Ctrl+C to stop.\n", interval)

	var schedMu sync.Mutex
	scheduler := collection.NewScheduler(a.index, interval)
	scheduler.Start(ctx)

	// Restart the scheduler when the refresh interval changes on disk.
	configPath, err := config.Path()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	go func() {
		err := config.Watch(ctx, configPath, func(cfg *config.Config) {
			newInterval, err := cfg.GetRefreshInterval()
			if err != nil {
				return
			}

			schedMu.Lock()
			defer schedMu.Unlock()
			if newInterval == interval {
				return
			}
			log.Printf("Refresh interval changed to %v, restarting scheduler", newInterval)
			scheduler.Stop()
			interval = newInterval
			scheduler = collection.NewScheduler(a.index, newInterval)
			scheduler.Start(ctx)
		})
		if err != nil && ctx.Err() == nil {
			log.Printf("Config watcher stopped: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down...")
	cancel()

	schedMu.Lock()
	current := scheduler
	schedMu.Unlock()
	current.Stop()
}

func runMigrationCommand() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: pokebinder migrate <up|down|status>")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	dbPath, err := cfg.DBPath()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	mgr, err := storage.NewMigrationManager(dbPath)
	if err != nil {
		log.Fatalf("Error creating migration manager: %v", err)
	}
	defer func() {
		if err := mgr.Close(); err != nil {
			log.Printf("Error closing migration manager: %v", err)
		}
	}()

	switch os.Args[2] {
	case "up":
		fmt.Println("Applying all pending migrations...")
		if err := mgr.Up(); err != nil {
			log.Fatalf("Error applying migrations: %v", err)
		}
		printMigrationVersion(mgr)

	case "down":
		fmt.Println("Rolling back last migration...")
		if err := mgr.Down(); err != nil {
			log.Fatalf("Error rolling back migration: %v", err)
		}
		printMigrationVersion(mgr)

	case "status", "version":
		printMigrationVersion(mgr)

	default:
		fmt.Fprintf(os.Stderr, "Unknown migrate command: %s\n", os.Args[2])
		os.Exit(1)
	}
}

func printMigrationVersion(mgr *storage.MigrationManager) {
	version, dirty, err := mgr.Version()
	if err != nil {
		log.Fatalf("Error getting version: %v", err)
	}
	if dirty {
		fmt.Printf("Current version: %d (dirty - migration failed or interrupted)\n", version)
	} else {
		fmt.Printf("Current version: %d\n", version)
	}
}

// consoleObserver prints engine notifications to the terminal.
type consoleObserver struct{}

func (o *consoleObserver) OnEvent(event events.Event) error {
	n, ok := events.TypedData[events.Notification](event)
	if !ok {
		return nil
	}

	switch n.Level {
	case events.LevelError:
		fmt.Fprintf(os.Stderr, "✗ %s\n", n.Message)
	case events.LevelWarning:
		fmt.Fprintf(os.Stderr, "! %s\n", n.Message)
	default:
		fmt.Printf("✓ %s\n", n.Message)
	}
	return nil
}

func (o *consoleObserver) GetName() string { return "console" }

func (o *consoleObserver) ShouldHandle(eventType string) bool {
	return eventType == events.TypeNotification
}
