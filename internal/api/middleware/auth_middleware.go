package middleware

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/postdispatch/configs"
	"github.com/maheshrc27/postdispatch/pkg/utils"
)

const ScopeSession = ""

type AuthMiddleware struct {
	cfg config.Config
}

func NewAuthMiddleware(cfg config.Config) *AuthMiddleware {
	return &AuthMiddleware{cfg: cfg}
}

func bearerToken(c *fiber.Ctx) string {
	h := c.Get(fiber.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// Authenticate accepts a JWT from the session cookie or an Authorization
// bearer header and requires it to carry scope. Session tokens have no
// scope; the dispatch invoker uses utils.ScopeDispatch.
func (m *AuthMiddleware) Authenticate(scope string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fromCookie := false
		tokenString := bearerToken(c)
		if tokenString == "" {
			tokenString = c.Cookies(m.cfg.CookieName)
			fromCookie = tokenString != ""
		}

		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing token or cookie",
			})
		}

		claims, err := utils.ValidateToken(m.cfg.SecretKey, tokenString)
		if err != nil {
			if fromCookie {
				c.Cookie(&fiber.Cookie{
					Name:   m.cfg.CookieName,
					Value:  "",
					Path:   "/",
					MaxAge: -1,
				})
			}

			slog.Info("token validation failed", "error", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		if claims.Scope != scope {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Token is not valid for this endpoint",
			})
		}

		workspaceID, err := claims.Workspace()
		if err != nil && scope == ScopeSession {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid workspace",
			})
		}

		c.Locals("workspace_id", workspaceID)
		return c.Next()
	}
}
