package handlers

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func SetupRouter(app App) *chi.Mux {
	mux := chi.NewRouter()

	mux.Use(middleware.RequestID)
	if app.TrustProxy() {
		mux.Use(middleware.RealIP)
	}
	mux.Use(NewStructuredLogger(app.Logger(), app.TrustProxy()))
	mux.Use(middleware.Recoverer)

	mux.Get("/healthz", MakeHandler(app, HandleHealth))

	mux.Route("/api", func(r chi.Router) {
		r.With(RateLimit(app, ipKey(app))).Post("/register", MakeHandler(app, HandleRegister))
		r.With(RateLimit(app, ipKey(app))).Post("/login", MakeHandler(app, HandleLogin))

		r.Group(func(r chi.Router) {
			r.Use(BasicAuth(app))

			r.Post("/logout", MakeHandler(app, HandleLogout))
			r.Patch("/me", MakeHandler(app, HandleUpdateMe))
			r.Delete("/me", MakeHandler(app, HandleDeleteMe))

			r.Get("/conversations", MakeHandler(app, HandleConversations))
			r.Get("/threads", MakeHandler(app, HandleListThreads))
			r.Post("/threads", MakeHandler(app, HandleAllocateThread))
			r.Get("/threads/with/{userID}", MakeHandler(app, HandleResolveThread))
			r.Get("/threads/{threadID}/messages", MakeHandler(app, HandleThreadMessages))
			r.Get("/threads/{threadID}/recent", MakeHandler(app, HandleRecentMessages))
			r.With(RateLimit(app, userKey)).Post("/messages", MakeHandler(app, HandleSendMessage))
			r.Delete("/messages/{messageID}", MakeHandler(app, HandleDeleteMessage))

			r.Post("/comments", MakeHandler(app, HandleCreateComment))
			r.Get("/comments", MakeHandler(app, HandleListComments))
			r.Get("/comments/map", MakeHandler(app, HandleCommentMap))
			r.Get("/comments/search", MakeHandler(app, HandleSearchComments))
			r.Patch("/comments/{commentID}/privacy", MakeHandler(app, HandleSetCommentPrivacy))
			r.Get("/locations/suggest", MakeHandler(app, HandleSuggestLocations))

			r.With(RequireAdmin(app)).Post("/admin/backup", MakeHandler(app, HandleDatabaseBackup))
		})
	})

	mux.With(BasicAuth(app)).Get("/ws", MakeHandler(app, HandleWebsocket))

	return mux
}
