package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterOptions struct {
	// ImagesDir, when set, is served read-only under ImagesPrefix.
	ImagesDir    string
	ImagesPrefix string
}

func NewRouter(userHandler *UserHandler, opts RouterOptions) chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(RequestLogger)
	router.Use(middleware.Recoverer)
	router.Use(CORS())

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	userHandler.RegisterRoutes(router)

	if opts.ImagesDir != "" {
		prefix := "/" + strings.Trim(opts.ImagesPrefix, "/")
		fileServer := http.StripPrefix(prefix+"/", http.FileServer(http.Dir(opts.ImagesDir)))
		router.Get(prefix+"/*", func(w http.ResponseWriter, r *http.Request) {
			// No directory listings.
			if strings.HasSuffix(r.URL.Path, "/") {
				http.NotFound(w, r)
				return
			}
			fileServer.ServeHTTP(w, r)
		})
	}

	return router
}
