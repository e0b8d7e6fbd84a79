package health

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/anicoll/fritz-collector/internal/pkg/metrics"
)

type server struct {
	logFile string
	logger  *zap.Logger
	now     func() time.Time
}

// NewHandler serves GET /healthz (log file freshness) and GET /metrics.
func NewHandler(logFile string) http.Handler {
	s := &server{logFile: logFile, logger: zap.L(), now: time.Now}
	r := mux.NewRouter()
	r.Use(LoggingMiddleware)
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}

func NewServer(addr, logFile string) *http.Server {
	return &http.Server{
		Handler:      NewHandler(logFile),
		Addr:         addr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}
}

func (s *server) healthz(w http.ResponseWriter, _ *http.Request) {
	if err := CheckLogFile(s.logFile, MaxLogAge, s.now()); err != nil {
		s.logger.Warn("unhealthy", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(err.Error()))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func LoggingMiddleware(next http.Handler) http.Handler {
	logger := zap.L()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debug(r.RequestURI, zap.String("method", r.Method))
		next.ServeHTTP(w, r)
	})
}
