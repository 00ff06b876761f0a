package handler

import (
	"github.com/gin-gonic/gin"

	reportapp "github.com/serialtrack/backend/internal/application/report"
	"github.com/serialtrack/backend/internal/interfaces/http/router"
)

// ReportHandler handles aggregation report API endpoints
type ReportHandler struct {
	BaseHandler
	aggregation *reportapp.AggregationService
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(aggregation *reportapp.AggregationService) *ReportHandler {
	return &ReportHandler{aggregation: aggregation}
}

// RegisterRoutes registers report routes
func (h *ReportHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/reports/monthly", h.MonthlyReport)
}

var _ router.RouteRegistrar = (*ReportHandler)(nil)

// MonthlyReportRequest selects the month to aggregate
type MonthlyReportRequest struct {
	Year    int  `form:"year" binding:"required"`
	Month   int  `form:"month" binding:"required"`
	Refresh bool `form:"refresh"`
}

// MonthlyReport returns the movement breakdown and cumulative remaining for
// one calendar month. refresh=true skips the cache and recomputes.
func (h *ReportHandler) MonthlyReport(c *gin.Context) {
	var req MonthlyReportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	var opts []reportapp.QueryOption
	if req.Refresh {
		opts = append(opts, reportapp.BypassCache())
	}

	report, err := h.aggregation.MonthlyReport(c.Request.Context(), req.Year, req.Month, opts...)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, report)
}
