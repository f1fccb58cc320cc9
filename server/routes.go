// routes.go - HTTP-Router des Run-Browsers
//
// Dieses Modul enthaelt:
// - Server: Haelt den Run-Store und die Listen-Adresse
// - allowedHostsMiddleware: Schutz vor DNS-Rebinding bei Loopback-Bindung
// - GenerateRoutes: Router mit CORS und allen Run-Routen
// - Serve: Startet den Server und beendet ihn bei SIGINT/SIGTERM
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/7blacky7/transformer-vae/envconfig"
	"github.com/7blacky7/transformer-vae/store"
)

var mode string = gin.DebugMode

// Server liefert gespeicherte Runs per HTTP aus
type Server struct {
	addr  net.Addr
	store *store.Store
}

func init() {
	switch mode {
	case gin.DebugMode:
	case gin.ReleaseMode:
	case gin.TestMode:
	default:
		mode = gin.DebugMode
	}

	gin.SetMode(mode)
}

// NewServer erstellt einen Server ueber dem gegebenen Store
func NewServer(st *store.Store, addr net.Addr) *Server {
	return &Server{addr: addr, store: st}
}

// allowedHost prueft ob der Host erlaubt ist
func allowedHost(host string) bool {
	host = strings.ToLower(host)

	if host == "" || host == "localhost" {
		return true
	}

	if hostname, err := os.Hostname(); err == nil && host == strings.ToLower(hostname) {
		return true
	}

	for _, tld := range []string{"localhost", "local", "internal"} {
		if strings.HasSuffix(host, "."+tld) {
			return true
		}
	}

	return false
}

// allowedHostsMiddleware blockiert Anfragen von nicht erlaubten Hosts,
// solange der Server nur auf Loopback lauscht
func allowedHostsMiddleware(addr net.Addr) gin.HandlerFunc {
	return func(c *gin.Context) {
		if addr == nil {
			c.Next()
			return
		}

		if addr, err := netip.ParseAddrPort(addr.String()); err == nil && !addr.Addr().IsLoopback() {
			c.Next()
			return
		}

		host, _, err := net.SplitHostPort(c.Request.Host)
		if err != nil {
			host = c.Request.Host
		}

		if addr, err := netip.ParseAddr(host); err == nil {
			if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() {
				c.Next()
				return
			}
		}

		if allowedHost(host) {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}

			c.Next()
			return
		}

		c.AbortWithStatus(http.StatusForbidden)
	}
}

// GenerateRoutes erstellt und konfiguriert den HTTP-Router
func (s *Server) GenerateRoutes() http.Handler {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
	}
	corsConfig.AllowOrigins = envconfig.AllowedOrigins()

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(
		gin.Recovery(),
		requestLogger(),
		cors.New(corsConfig),
		allowedHostsMiddleware(s.addr),
	)

	// General
	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "transformer-vae is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "transformer-vae is running") })

	// Runs
	r.GET("/api/runs", s.ListRunsHandler)
	r.GET("/api/runs/:id", s.ShowRunHandler)
	r.DELETE("/api/runs/:id", s.DeleteRunHandler)
	r.GET("/api/runs/:id/metrics", s.MetricsHandler)
	r.GET("/api/runs/:id/probes", s.ProbesHandler)

	return r
}

// requestLogger schreibt jede Anfrage als Debug-Eintrag ueber slog
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		slog.Debug("request", "method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status())
	}
}

// Serve startet den HTTP-Server und blockiert bis SIGINT/SIGTERM oder ctx endet
func Serve(ctx context.Context, ln net.Listener, st *store.Store) error {
	slog.Info("server config", "env", envconfig.Values())

	s := NewServer(st, ln.Addr())
	srvr := &http.Server{Handler: s.GenerateRoutes()}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		srvr.Close()
	}()

	slog.Info(fmt.Sprintf("Listening on %s", ln.Addr()))
	if err := srvr.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
