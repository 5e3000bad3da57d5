package api

import (
	"strconv"
	"strings"
	"time"

	"draftlab/analytics/internal/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// AdminRole is the role claim admin tokens must carry
const AdminRole = "admin"

// RequireAdmin accepts HS256 bearer tokens signed with secret whose role
// claim is admin
func RequireAdmin(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing token"})
		}
		if !strings.HasPrefix(header, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid header format"})
		}

		token, err := jwt.Parse(strings.TrimPrefix(header, "Bearer "), func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token claims"})
		}
		if role, _ := claims["role"].(string); role != AdminRole {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Admin role required"})
		}

		subject, _ := claims.GetSubject()
		c.Locals("subject", subject)
		return c.Next()
	}
}

// Metrics records request counts and latency per route
func Metrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		route := c.Route().Path
		metrics.RecordHTTPRequest(route, c.Method(), strconv.Itoa(status), time.Since(start).Seconds())

		log.Debug().
			Str("method", c.Method()).
			Str("route", route).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
		return err
	}
}

// errorHandler renders unhandled errors as {"error": ...}
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal server error"
	if fe, ok := err.(*fiber.Error); ok {
		code = fe.Code
		msg = fe.Message
	} else {
		metrics.RecordError("api", "unhandled")
		log.Error().Err(err).Str("path", c.Path()).Msg("Unhandled request error")
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}
