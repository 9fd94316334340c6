package httpapi

import (
	"fmt"
	"sync"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"eventattendance/internal/attendance"
	"eventattendance/internal/httpmiddleware"
)

// RouterOptions configures the middleware stack.
type RouterOptions struct {
	RateLimitPerMin int
	Log             zerolog.Logger
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

var (
	registerOnce sync.Once
	registerErr  error
)

// RegisterValidators adds the custom tags used by query structs to gin's validator.
// The result of the first call is returned on every call.
func RegisterValidators() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
			return
		}
		if err := v.RegisterValidation("regtype", func(fl validator.FieldLevel) bool {
			_, err := attendance.ParseRegType(fl.Field().String())
			return err == nil
		}); err != nil {
			registerErr = fmt.Errorf("register regtype validator: %w", err)
		}
	})
	return registerErr
}

// NewRouter wires the handler into a gin engine. It panics if the query validators
// cannot be registered.
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	if err := RegisterValidators(); err != nil {
		panic(err)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(opts.Log, "/healthz", "/metrics"))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
	}))
	if opts.RateLimitPerMin > 0 {
		r.Use(httpmiddleware.NewIPLimiter(opts.RateLimitPerMin).GinMiddleware())
	}
	if h.metrics != nil {
		r.Use(h.metrics.GinMiddleware())
	}

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	r.GET("/healthz", h.Healthz)
	r.GET("/hello", h.Hello)

	api := r.Group("/api")
	{
		api.GET("/events", h.ListEvents)
		api.GET("/student-info", h.StudentInfo)
		api.GET("/mark-attendance", h.MarkAttendanceDevice)
		api.GET("/mark-attendance-manual", h.MarkAttendanceManual)
		api.GET("/stats", h.Stats)
		api.GET("/spotregistration", h.SpotRegistration)
		api.GET("/recent-scans", h.RecentScans)
	}
	return r
}
