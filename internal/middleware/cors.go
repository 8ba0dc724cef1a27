package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/rs/cors"
)

// CORS allows the configured origins to call the API from a browser. An empty
// list or "*" allows any origin without credentials.
func CORS(allowedOrigins []string, logger *slog.Logger) func(next http.Handler) http.Handler {
	opts := cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
		opts.AllowedOrigins = []string{"*"}
		opts.AllowCredentials = false
	}
	if logger != nil && logger.Enabled(context.Background(), slog.LevelDebug) {
		opts.Logger = corsLogger{logger: logger}
	}
	return cors.New(opts).Handler
}

type corsLogger struct {
	logger *slog.Logger
}

func (l corsLogger) Printf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), slog.String("component", "cors"))
}
