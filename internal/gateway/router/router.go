package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/seqlab/annopipe/internal/gateway/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "annotation-gateway",
		})
	})

	annotationHandler := handler.NewAnnotationHandler(deps)

	v1 := r.Group("/api/v1")
	{
		annotations := v1.Group("/annotations")
		{
			annotations.POST("", annotationHandler.SubmitAnnotation)
			annotations.GET("", annotationHandler.ListAnnotations)
			annotations.GET("/:job_id", annotationHandler.GetAnnotation)
		}

		subscriptions := v1.Group("/subscriptions")
		{
			subscriptions.POST("", annotationHandler.UpgradeSubscription)
		}
	}

	return r
}
