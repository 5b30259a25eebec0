// Package middleware 提供地面站 API 的HTTP中间件
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pocketqube-lab/comms-server/internal/config"
)

// TokenAuth 令牌认证中间件
//
// 使用方式:
//  1. Header: X-API-Key: gs_xxxx
//  2. Header: Authorization: Bearer gs_xxxx
//
// 审计日志记录所有认证失败尝试
func TokenAuth(cfg config.APIAuthConfig, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 未启用认证时直接放行（仅限开发环境）
		if !cfg.Enabled {
			c.Next()
			return
		}

		token := c.GetHeader("X-API-Key")
		if token == "" {
			auth := c.GetHeader("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				token = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if token == "" {
			logger.Warn("api auth: missing token",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
				zap.String("remote_addr", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "请在Header中提供 X-API-Key 或 Authorization: Bearer <token>",
			})
			return
		}

		valid := false
		for _, k := range cfg.Tokens {
			if k == token {
				valid = true
				break
			}
		}

		if !valid {
			logger.Warn("api auth: invalid token",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
				zap.String("remote_addr", c.ClientIP()),
				zap.String("token_prefix", maskToken(token)),
			)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "无效的令牌",
			})
			return
		}

		c.Set("authenticated", true)
		c.Next()
	}
}

// maskToken 脱敏令牌（仅显示前4位和后4位）
func maskToken(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
