package handlers

import (
	"fmt"
	"regexp"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/quality-agent/backend/internal/knowledge"
	"github.com/quality-agent/backend/internal/pipeline"
	"github.com/quality-agent/backend/pkg/logger"
)

// Fixed dashboard aggregations over the quality table. These bypass the
// synthesis pipeline entirely; only the executor is shared.
const (
	yearlyRateQuery = `
		SELECT SUBSTR(DAY_CD, 1, 4) AS year,
		       SUM(TR_F_PRODQUANTITY) AS production_qty,
		       SUM(QLY_INC_HPW) AS defect_qty,
		       SUM(QLY_INC_HPW) * 100.0 / SUM(TR_F_PRODQUANTITY) AS defect_rate
		FROM ` + knowledge.TableQuality + `
		GROUP BY year
		ORDER BY year`

	monthlyRateQuery = `
		SELECT SUBSTR(DAY_CD, 5, 2) AS month,
		       SUM(TR_F_PRODQUANTITY) AS production_qty,
		       SUM(QLY_INC_HPW) AS defect_qty,
		       SUM(QLY_INC_HPW) * 100.0 / SUM(TR_F_PRODQUANTITY) AS defect_rate
		FROM ` + knowledge.TableQuality + `
		WHERE SUBSTR(DAY_CD, 1, 4) = '%s'
		GROUP BY month
		ORDER BY month`
)

var yearParamPattern = regexp.MustCompile(`^\d{4}$`)

type DashboardHandler struct {
	executor pipeline.Executor
}

func NewDashboardHandler(executor pipeline.Executor) *DashboardHandler {
	return &DashboardHandler{
		executor: executor,
	}
}

func (h *DashboardHandler) YearlyDefectRate(c *fiber.Ctx) error {
	columns, rows, err := h.executor.Execute(c.Context(), yearlyRateQuery)
	if err != nil {
		logger.Error("Yearly dashboard query failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load yearly defect rates",
		})
	}

	return c.JSON(fiber.Map{
		"columns": columns,
		"rows":    rows,
	})
}

func (h *DashboardHandler) MonthlyDefectRate(c *fiber.Ctx) error {
	year := c.Query("year", "2025")
	if !yearParamPattern.MatchString(year) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "year must be a 4-digit year",
		})
	}

	columns, rows, err := h.executor.Execute(c.Context(), monthlyQueryFor(year))
	if err != nil {
		logger.Error("Monthly dashboard query failed", zap.Error(err), zap.String("year", year))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load monthly defect rates",
		})
	}

	return c.JSON(fiber.Map{
		"year":    year,
		"columns": columns,
		"rows":    rows,
	})
}

func monthlyQueryFor(year string) string {
	// year is pattern-checked above; plain substitution is safe here.
	return fmt.Sprintf(monthlyRateQuery, year)
}
