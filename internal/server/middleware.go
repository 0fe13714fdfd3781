package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const apiKeyHeader = "X-API-Key"

// placeholder key shipped in the sample config; treating it as unset keeps
// a copy-pasted config from opening the API.
const placeholderAPIKey = "your-secure-api-key"

// APIKeyAuth checks the shared-secret header on every request.
func APIKeyAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		supplied := c.GetHeader(apiKeyHeader)
		if supplied == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API Key was not provided"})
			return
		}
		if apiKey == "" || apiKey == placeholderAPIKey {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Server configuration error: API Key not properly configured"})
			return
		}
		if supplied != apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized client"})
			return
		}
		c.Next()
	}
}
