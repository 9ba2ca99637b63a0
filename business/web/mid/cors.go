package mid

import (
	"context"
	"net/http"

	"github.com/ardanlabs/powchain/foundation/web"
	"github.com/rs/cors"
)

// Cors sets the response headers needed for Cross-Origin Resource Sharing.
// Preflight requests are answered here and never reach the handler.
func Cors(origins ...string) web.Middleware {
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Accept", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization"},
	})

	// This is the actual middleware function to be executed.
	m := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			c.HandlerFunc(w, r)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				return web.SetStatusCode(ctx, http.StatusNoContent)
			}

			// Call the next handler.
			return handler(ctx, w, r)
		}

		return h
	}

	return m
}
