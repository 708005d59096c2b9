package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/do/v2"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type EchoService struct {
	echo *echo.Echo
	port int
}

func NewEchoService(i do.Injector) (*EchoService, error) {
	port := do.MustInvokeNamed[int](i, "port")

	e := NewEcho()

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${id} ${remote_ip} ${status} ${method} ${path} ${error} ${latency_human} ${bytes_in} ${bytes_out}\n",
	}))
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		//nolint:wrapcheck
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	return &EchoService{
		echo: e,
		port: port,
	}, nil
}

// NewEcho returns a bare echo instance with the JSON error handler installed.
func NewEcho() *echo.Echo {
	e := echo.New()

	e.HideBanner = true
	e.HidePort = false
	e.HTTPErrorHandler = ErrorHandler

	return e
}

func (s *EchoService) Register(c func(e *echo.Echo)) {
	c(s.echo)
}

func (s *EchoService) Start() error {
	err := s.echo.Start(fmt.Sprintf(":%d", s.port))
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start echo server: %w", err)
	}

	return nil
}

func (s *EchoService) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("failed to shutdown echo server: %w", err)
	}

	return nil
}

// ErrorHandler renders every error as {error, details?, ...}.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		status int
		body   any
	)

	var appErr *Error

	var httpErr *echo.HTTPError

	switch {
	case errors.As(err, &appErr):
		status = appErr.Status()
		body = appErr
	case errors.As(err, &httpErr):
		status = httpErr.Code
		body = map[string]string{"error": fmt.Sprint(httpErr.Message)}
	default:
		status = http.StatusInternalServerError
		body = map[string]string{"error": http.StatusText(status)}
	}

	if status >= http.StatusInternalServerError {
		log.WithFields(log.Fields{
			"method": c.Request().Method,
			"path":   c.Path(),
			"status": status,
		}).Errorf("request failed: %v", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}

	if err != nil {
		log.Errorf("failed to write error response: %v", err)
	}
}

// RateLimiter limits requests per client IP to perSecond with the given burst.
func RateLimiter(perSecond float64, burst int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(perSecond),
		Burst:     burst,
		ExpiresIn: 3 * time.Minute, //nolint:mnd
	})

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(_ echo.Context, _ error) error {
			return NewError(KindInternal, "Failed to identify client.")
		},
		DenyHandler: func(_ echo.Context, _ string, _ error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests.")
		},
	})
}
