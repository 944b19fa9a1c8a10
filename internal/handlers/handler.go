package handlers

import (
	"blinds_bridge/internal/logger"
	"blinds_bridge/internal/metrics"
	"blinds_bridge/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger

	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{services: services, log: log}
}

// WithMetrics enables the request counter middleware and serves g on /metrics.
func (h *Handler) WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) *Handler {
	h.metrics = m
	h.gatherer = g
	return h
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if h.metrics != nil {
		router.Use(h.metrics.GinMiddleware())
	}

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", h.health)
	if h.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	// Snapshot stream, same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.requireController)
	{
		h.registerAccessoryRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerAccessoryRoutes(api *gin.RouterGroup) {
	acc := api.Group("/accessories")
	{
		acc.GET("", h.listAccessories)
		acc.GET("/:id", h.getAccessory)
		acc.GET("/:id/current-position", h.getCurrentPosition)
		acc.GET("/:id/target-position", h.getTargetPosition)
		acc.GET("/:id/battery", h.getBattery)
		// Body example: {"value":70}
		acc.PUT("/:id/target-position", h.setTargetPosition)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("/", h.getLogs)
	}
}
