package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/smallbiznis/antaeus/internal/billing/domain"
)

type billingResponse struct {
	Status    string                   `json:"status"`
	Execution *billingdomain.Execution `json:"execution,omitempty"`
}

// ExecuteBilling runs an immediate pass or registers the recurring trigger.
// The strategy defaults to recurring with the monthly cron.
func (s *Server) ExecuteBilling(c *gin.Context) {
	if s.billing == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	kind := c.GetString(contextBillingStrategyKey)
	if kind == "" {
		kind = defaultBillingStrategy
	}
	params := map[string]string{}
	if expr := strings.TrimSpace(c.Query(billingdomain.ParamCron)); expr != "" {
		params[billingdomain.ParamCron] = expr
	}

	strategy, err := billingdomain.ParseStrategy(kind, params)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	execution, err := s.billing.Execute(c.Request.Context(), strategy)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, billingResponse{Status: "executed", Execution: &execution})
}

func (s *Server) GetBillingSchedule(c *gin.Context) {
	if s.billing == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s.billing.Schedule()})
}
