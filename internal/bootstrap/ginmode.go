package bootstrap

import "github.com/gin-gonic/gin"

// SetGinMode maps APP_ENV onto the gin mode; anything unrecognized stays in
// debug mode.
func SetGinMode(env string) {
	switch env {
	case "production":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}
}
