package middleware

import (
	"context"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

const (
	segmentName = "remoterun-gateway"
	ctxLocal    = "xray-ctx"
	segLocal    = "xray-seg"
)

// XRayMiddleware wraps Fiber requests with AWS X-Ray tracing
func XRayMiddleware(logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Skip tracing for health checks and scrapes to reduce noise
		if c.Path() == "/health" || c.Path() == "/metrics" {
			return c.Next()
		}

		ctx, seg := xray.BeginSegment(c.UserContext(), segmentName)
		defer func() {
			if seg != nil {
				seg.Close(nil)
			}
		}()

		if seg.GetHTTP() != nil {
			seg.GetHTTP().GetRequest().Method = c.Method()
			seg.GetHTTP().GetRequest().URL = c.OriginalURL()
			seg.GetHTTP().GetRequest().ClientIP = c.IP()
			seg.GetHTTP().GetRequest().UserAgent = c.Get("User-Agent")
		}

		seg.AddAnnotation("route", c.Path())
		seg.AddAnnotation("method", c.Method())

		c.Locals(ctxLocal, ctx)
		c.Locals(segLocal, seg)
		c.SetUserContext(ctx)

		err := c.Next()

		if seg.GetHTTP() != nil {
			seg.GetHTTP().GetResponse().Status = c.Response().StatusCode()
		}

		if err != nil {
			logger.Error().Err(err).Str("path", c.Path()).Msg("request error")
			seg.AddError(err)
			if seg.GetHTTP() != nil {
				seg.GetHTTP().GetResponse().Status = fiber.StatusInternalServerError
			}
		}

		return err
	}
}

// GetXRayContext retrieves X-Ray context from Fiber locals
func GetXRayContext(c *fiber.Ctx) context.Context {
	if ctx, ok := c.Locals(ctxLocal).(context.Context); ok && ctx != nil {
		return ctx
	}
	return c.UserContext()
}
