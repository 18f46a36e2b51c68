// MODUL: server
// ZWECK: HTTP-Oberflaeche fuer einen Pool von InferCore-Instanzen
// INPUT: ml.Pool, net.Listener
// OUTPUT: JSON-API unter /api
// NEBENEFFEKTE: Belegt Lanes des Pools pro Anfrage
// ABHAENGIGKEITEN: gin-gonic/gin, gin-contrib/cors, ml
// HINWEISE: Ist der Pool ausgelastet, wartet eine Anfrage bis ihr Context endet

package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/easydeploy/infercore/envconfig"
	"github.com/easydeploy/infercore/ml"
)

// Server serves inference requests from a pool.
type Server struct {
	addr net.Addr
	pool *ml.Pool

	backend         ml.CoreType
	core            string
	inputs, outputs *ml.ShapeMap
	blobs           []BlobInfo
}

// New describes the pool's cores. All lanes share the same model, so the
// first lane is representative.
func New(pool *ml.Pool, addr net.Addr) *Server {
	lane := pool.Lanes()[0]
	s := &Server{
		addr:    addr,
		pool:    pool,
		backend: lane.Core.Type(),
		core:    lane.Core.Name(),
		inputs:  lane.Core.Inputs(),
		outputs: lane.Core.Outputs(),
	}

	for _, dir := range []struct {
		name   string
		shapes *ml.ShapeMap
	}{{"input", s.inputs}, {"output", s.outputs}} {
		for name := range dir.shapes.All() {
			t, _ := lane.Blobs.Get(name)
			s.blobs = append(s.blobs, BlobInfo{
				Name:      name,
				Direction: dir.name,
				DType:     t.DType().String(),
				Shape:     t.DefaultShape(),
				Bytes:     t.ByteSize(),
			})
		}
	}
	return s
}

// GenerateRoutes builds the gin handler.
func (s *Server) GenerateRoutes() http.Handler {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{"Authorization", "Content-Type", "User-Agent", "Accept", "X-Requested-With"}
	corsConfig.AllowOrigins = envconfig.AllowedOrigins()

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(
		gin.Recovery(),
		cors.New(corsConfig),
		allowedHostsMiddleware(s.addr),
	)

	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "infercore is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "infercore is running") })

	r.GET("/api/health", s.HealthHandler)
	r.GET("/api/blobs", s.BlobsHandler)
	r.POST("/api/infer", s.InferHandler)

	return r
}

// Serve runs the HTTP server until SIGINT/SIGTERM or ctx is done. The pool
// is closed on return.
func Serve(ctx context.Context, ln net.Listener, pool *ml.Pool) error {
	defer pool.Close()

	s := New(pool, ln.Addr())
	srv := &http.Server{Handler: s.GenerateRoutes()}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	slog.Info("listening", "addr", ln.Addr(), "core", s.core, "lanes", pool.Size(), "env", envconfig.Values())
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
