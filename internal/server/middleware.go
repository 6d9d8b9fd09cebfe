package server

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	contextBillingStrategyKey = "billing_strategy"
	defaultBillingStrategy    = "recurring"
)

// BillingStrategy resolves the strategy query parameter so the request log
// carries it even when the handler rejects the request.
func BillingStrategy() gin.HandlerFunc {
	return func(c *gin.Context) {
		strategy := strings.ToLower(strings.TrimSpace(c.Query("strategy")))
		if strategy == "" {
			strategy = defaultBillingStrategy
		}
		c.Set(contextBillingStrategyKey, strategy)
		c.Next()
	}
}
