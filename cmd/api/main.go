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

	"github.com/joho/godotenv"

	"github.com/zhouzirui/yuanfang/backend/internal/capability"
	"github.com/zhouzirui/yuanfang/backend/internal/config"
	"github.com/zhouzirui/yuanfang/backend/internal/handler"
	"github.com/zhouzirui/yuanfang/backend/internal/handler/session"
	"github.com/zhouzirui/yuanfang/backend/internal/service/agent"
	"github.com/zhouzirui/yuanfang/backend/internal/service/ai"
	"github.com/zhouzirui/yuanfang/backend/internal/service/knowledge"
	"github.com/zhouzirui/yuanfang/backend/internal/service/speech"
	"github.com/zhouzirui/yuanfang/backend/internal/store/sqlite"
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

	store, err := sqlite.New(cfg.Store.DatabasePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()
	log.Printf("store initialized at %s", cfg.Store.DatabasePath)

	dispatcher := buildDispatcher(cfg, store)
	log.Printf("capabilities registered: %v", dispatcher.Names())

	// Initialize AI service
	var pipeline *agent.Pipeline
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing without conversation pipeline - 请检查 Ark 模型相关环境变量")
		} else {
			log.Println("AI service initialized successfully")
			pipeline = agent.NewPipeline(store, dispatcher, aiService, time.Duration(cfg.AI.Timeout)*time.Second)
		}
	} else {
		log.Println("Ark 凭证未配置，跳过 AI 功能初始化")
	}

	// Initialize Speech service
	var speechService session.SpeechService
	if cfg.Speech.AppID != "" && cfg.Speech.APIKey != "" && cfg.Speech.APISecret != "" {
		speechService = speech.NewService(&cfg.Speech)
		log.Println("Speech service initialized successfully")
	} else {
		log.Println("讯飞凭证未配置，跳过语音功能初始化")
	}

	var pipelineForRouter session.TurnProcessor
	if pipeline != nil {
		pipelineForRouter = pipeline
	}
	router := handler.NewRouter(store, dispatcher, pipelineForRouter, speechService)

	startServer(ctx, cfg.Server, router)
}

// buildDispatcher 装配全部能力。知识检索只在配置了 agent 时注册，
// 未注册时调用方会拿到 "capability unavailable"。
func buildDispatcher(cfg *config.Config, store *sqlite.Store) *capability.Dispatcher {
	handlers := []capability.Handler{
		capability.NewEmotionAnalysis(store),
		capability.NewMemoryRecall(store),
		capability.NewSafetyCheck(nil),
		capability.NewEmotionLog(store),
		capability.NewTaskManagement(store),
		capability.NewWorkStatus(store),
		capability.NewScheduleManagement(store),
	}

	knowledgeClient := knowledge.NewClient(knowledge.Config{
		BaseURL: cfg.Knowledge.BaseURL,
		Token:   cfg.Knowledge.Token,
		AgentID: cfg.Knowledge.AgentID,
	})
	if knowledgeClient.Enabled() {
		handlers = append(handlers, capability.NewKnowledgeSearch(knowledgeClient))
		log.Println("knowledge search capability enabled")
	} else {
		log.Println("知识库 agent 未配置，跳过 knowledge_search 能力")
	}

	return capability.NewDispatcher(handlers...)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Yuanfang backend listening on %s", addr)
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
