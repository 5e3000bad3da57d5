package api

import (
	"errors"

	"draftlab/analytics/internal/aggregator"
	"draftlab/analytics/internal/cache"
	"draftlab/analytics/internal/query"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

type analyticsRequest struct {
	DataType string            `json:"dataType"`
	Filters  map[string]string `json:"filters"`
}

type createIndexRequest struct {
	Collection string   `json:"collection"`
	Fields     []string `json:"fields"`
}

func (s *Server) health(c *fiber.Ctx) error {
	if s.Health != nil {
		if err := s.Health.Health(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
	}
	return c.JSON(fiber.Map{"status": "healthy"})
}

func (s *Server) runQuery(c *fiber.Ctx) error {
	var req query.Request
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid JSON"})
		}
	}
	req.Collection = c.Params("collection")

	resp, err := s.Query.Query(c.UserContext(), req)
	if err != nil {
		return queryError(c, err)
	}
	return c.JSON(resp)
}

func (s *Server) analytics(c *fiber.Ctx) error {
	var req analyticsRequest
	if c.Method() == fiber.MethodPost && len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid JSON"})
		}
	} else {
		req.DataType = c.Query("dataType")
		if team := c.Query("team"); team != "" {
			req.Filters = map[string]string{"team": team}
		}
	}

	resp := s.Analytics.Get(c.UserContext(), req.DataType, req.Filters)
	switch {
	case resp.CacheStatus == cache.StatusError:
		return c.Status(fiber.StatusInternalServerError).JSON(resp)
	case resp.Error != "":
		return c.Status(fiber.StatusNotFound).JSON(resp)
	}
	return c.JSON(resp)
}

func (s *Server) playerTrends(c *fiber.Ctx) error {
	data, err := s.Trends.PlayerTrends(c.UserContext(), c.Query("position"), c.QueryInt("weeks"), c.QueryInt("season"))
	if err != nil {
		return queryError(c, err)
	}
	return c.JSON(fiber.Map{"data": data})
}

func (s *Server) aggregate(c *fiber.Ctx) error {
	run := s.Aggregator.Run
	if c.Query("mode") == aggregator.ModeIncremental {
		run = s.Aggregator.RunIncremental
	}

	result, err := run(c.UserContext())
	if errors.Is(err, aggregator.ErrRunInProgress) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		log.Error().Err(err).Str("subject", subject(c)).Msg("Manual aggregation failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	log.Info().
		Str("subject", subject(c)).
		Str("run_id", result.RunID).
		Str("mode", result.Mode).
		Msg("Manual aggregation completed")
	return c.JSON(fiber.Map{
		"runId":     result.RunID,
		"mode":      result.Mode,
		"sessions":  result.Sessions,
		"documents": result.Documents,
		"duration":  result.Duration.String(),
	})
}

func (s *Server) indexRequests(c *fiber.Ctx) error {
	requests, err := s.Query.IndexRequests(c.UserContext())
	if err != nil {
		return queryError(c, err)
	}
	return c.JSON(fiber.Map{"data": requests})
}

func (s *Server) createIndex(c *fiber.Ctx) error {
	var req createIndexRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid JSON"})
	}

	resolved, err := s.Query.CreateIndex(c.UserContext(), req.Collection, req.Fields)
	if err != nil {
		return queryError(c, err)
	}

	log.Info().
		Str("subject", subject(c)).
		Str("collection", req.Collection).
		Strs("fields", req.Fields).
		Msg("Index created from admin request")
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"resolved": resolved})
}

// queryError maps service errors to a status and {"error", "code"} body
func queryError(c *fiber.Ctx, err error) error {
	var qErr *query.Error
	if !errors.As(err, &qErr) {
		log.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
			"code":  query.CodeInternal,
		})
	}

	status := fiber.StatusInternalServerError
	switch qErr.Code {
	case query.CodeInvalidArgument:
		status = fiber.StatusBadRequest
	case query.CodeNotFound:
		status = fiber.StatusNotFound
	}
	return c.Status(status).JSON(fiber.Map{"error": qErr.Message, "code": qErr.Code})
}

func subject(c *fiber.Ctx) string {
	s, _ := c.Locals("subject").(string)
	return s
}
