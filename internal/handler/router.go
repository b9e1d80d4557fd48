package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"smart-erp-go/internal/middleware"
)

// NewRouter 注册全部路由。
func NewRouter(ds *DataSourceHandler, files *FileHandler) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiV1 := r.Group("/api/v1")
	{
		datasources := apiV1.Group("/datasources")
		{
			datasources.GET("", ds.List)
			datasources.POST("", ds.Create)
			datasources.GET("/active", ds.GetActive)
			datasources.GET("/:id", ds.Get)
			datasources.PUT("/:id", ds.Update)
			datasources.DELETE("/:id", ds.Delete)
			datasources.POST("/:id/activate", ds.Activate)
			datasources.PUT("/:id/deactivate", ds.Deactivate)

			datasources.POST("/:id/files/upload", files.Upload)
			datasources.GET("/:id/files", files.List)
			datasources.GET("/:id/files/:fileId", files.Get)
			datasources.DELETE("/:id/files/:fileId", files.Delete)
		}

		apiV1.GET("/files/:fileId/status", files.Status)
		apiV1.GET("/upload/supported-types", files.SupportedTypes)
	}
	return r
}
