package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/yuanfang/backend/internal/capability"
	"github.com/zhouzirui/yuanfang/backend/internal/handler/conversation"
	"github.com/zhouzirui/yuanfang/backend/internal/handler/session"
	"github.com/zhouzirui/yuanfang/backend/internal/handler/workbench"
	middlewarePkg "github.com/zhouzirui/yuanfang/backend/internal/middleware"
	"github.com/zhouzirui/yuanfang/backend/internal/store/sqlite"
	"github.com/zhouzirui/yuanfang/backend/pkg/utils"
)

// NewRouter 把 HTTP 路由接到各个服务上。
func NewRouter(store *sqlite.Store, dispatcher *capability.Dispatcher, pipeline session.TurnProcessor, speechSvc session.SpeechService) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	conversationHandler := conversation.New(store)
	workbenchHandler := workbench.New(dispatcher)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]any{
				"status":       "ok",
				"capabilities": dispatcher.Names(),
			})
		})

		conversationHandler.RegisterRoutes(api)
		workbenchHandler.RegisterRoutes(api)
	})

	// 语音会话需要识别与合成都就绪。
	if speechSvc != nil && pipeline != nil {
		sessionHandler := session.New(speechSvc, pipeline, store)
		sessionHandler.RegisterRoutes(r)
	}

	return r
}
