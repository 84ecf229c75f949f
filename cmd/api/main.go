package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"

	"github.com/zhouzirui/emergency-hub/backend/internal/analysis/category"
	"github.com/zhouzirui/emergency-hub/backend/internal/config"
	"github.com/zhouzirui/emergency-hub/backend/internal/handler"
	"github.com/zhouzirui/emergency-hub/backend/internal/model/agent"
	"github.com/zhouzirui/emergency-hub/backend/internal/model/facility"
	"github.com/zhouzirui/emergency-hub/backend/internal/service/ai"
	"github.com/zhouzirui/emergency-hub/backend/internal/service/chat"
	"github.com/zhouzirui/emergency-hub/backend/internal/service/dispatch"
	"github.com/zhouzirui/emergency-hub/backend/internal/service/location"
	"github.com/zhouzirui/emergency-hub/backend/internal/service/routing"
	"github.com/zhouzirui/emergency-hub/backend/internal/watch"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	facilities, err := loadFacilities(cfg.Facility)
	if err != nil {
		log.Fatalf("failed to load facility data: %v", err)
	}
	counts := facilities.Counts()
	log.Printf("facility data loaded: %d hospitals, %d fire stations, %d police stations",
		counts[facility.Medical], counts[facility.Fire], counts[facility.Police])

	agents := agent.NewMemoryStore(agent.Seed())

	chatService := chat.NewService(chat.Config{
		TTL:         cfg.Session.TTL,
		MaxSessions: cfg.Session.MaxSessions,
		MaxMessages: cfg.Session.MaxMessages,
	})
	go chatService.RunJanitor(ctx, cfg.Session.JanitorInterval)

	router, err := buildCategoryRouter(ctx, cfg.Routing)
	if err != nil {
		log.Fatalf("failed to load routing terms: %v", err)
	}

	// Initialize AI service
	var aiService *ai.Service
	if cfg.AI.Enabled() {
		aiService, err = ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing with scripted agent replies only")
			aiService = nil
		} else {
			log.Printf("AI service initialized successfully (provider=%s)", cfg.AI.ResolvedProvider())
		}
	} else {
		log.Println("LLM 凭证未配置，使用预设的应急回复")
	}

	routingCfg := routing.Config{
		Enabled:      cfg.AI.RouterLLMEnabled,
		HistoryLimit: cfg.AI.RouterHistoryLimit,
	}
	var chatModelForRouting model.ChatModel
	if aiService != nil {
		chatModelForRouting = aiService.GetChatModel()
	}
	routingSvc, err := routing.NewService(ctx, chatModelForRouting, routingCfg, router)
	if err != nil {
		log.Fatalf("failed to initialize routing service: %v", err)
	} else if routingSvc.Enabled() {
		log.Println("LLM emergency classifier enabled")
	} else if routingCfg.Enabled {
		log.Println("LLM classifier requested but chat model unavailable, falling back to keywords")
	}

	locator := location.NewService(location.Config{
		Enabled: cfg.Location.IPLookupEnabled,
		BaseURL: cfg.Location.IPLookupURL,
		Timeout: cfg.Location.Timeout,
	}, nil)

	var responder dispatch.Responder
	if aiService != nil {
		responder = aiService
	}
	coordinator := dispatch.NewCoordinator(chatService, facilities, agents, routingSvc, locator, responder, dispatch.Config{
		RadiusKM:      cfg.Facility.DefaultRadius,
		FacilityLimit: cfg.Facility.PromptLimit,
	})

	httpRouter := handler.NewRouter(handler.Deps{
		Chat:           chatService,
		Coordinator:    coordinator,
		Routing:        routingSvc,
		Facilities:     facilities,
		Agents:         agents,
		DefaultRadius:  cfg.Facility.DefaultRadius,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AIEnabled:      aiService != nil,
	})

	startServer(ctx, cfg.Server, httpRouter)
}

func loadFacilities(cfg config.FacilityConfig) (*facility.MemoryStore, error) {
	var (
		items []facility.Facility
		err   error
	)
	if cfg.DataDir != "" {
		items, err = facility.LoadDir(cfg.DataDir)
	} else {
		items, err = facility.LoadEmbedded()
	}
	if err != nil {
		return nil, err
	}
	return facility.NewMemoryStore(items), nil
}

// buildCategoryRouter 加载词表，并在开启时监听文件变化
func buildCategoryRouter(ctx context.Context, cfg config.RoutingConfig) (*category.Router, error) {
	if cfg.TermsFile == "" {
		return category.NewRouter(nil), nil
	}

	terms, err := config.LoadTerms(cfg.TermsFile)
	if err != nil {
		return nil, err
	}
	router := category.NewRouter(terms)
	log.Printf("routing terms loaded from %s", cfg.TermsFile)

	if cfg.Watch {
		if err := watch.NewTermsWatcher(cfg.TermsFile, router).Start(ctx); err != nil {
			log.Printf("warning: terms hot reload disabled: %v", err)
		}
	}
	return router, nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Emergency Hub backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
