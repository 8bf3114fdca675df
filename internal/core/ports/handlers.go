package ports

import "github.com/gin-gonic/gin"

// HTTPHandler is implemented by each transport handler group.
type HTTPHandler interface {
	RegisterRoutes(api *gin.RouterGroup)
}
