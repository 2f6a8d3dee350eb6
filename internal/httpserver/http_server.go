package httpserver

import (
	"context"
	"net/http"
	"time"

	"gitlab.com/TitanInd/fundvault/internal/interfaces"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type HTTPServer struct {
	serverAddr string
	handler    http.Handler

	log interfaces.ILogger
}

func NewHTTPServer(serverAddr string, handler http.Handler, log interfaces.ILogger) *HTTPServer {
	return &HTTPServer{
		serverAddr: serverAddr,
		handler:    handler,
		log:        log,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *HTTPServer) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.serverAddr,
		Handler: s.handler,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Infof("http server is listening: %s", s.serverAddr)
		err := server.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		s.log.Infof("http server closed: %s", s.serverAddr)
		return err
	})

	return g.Wait()
}
