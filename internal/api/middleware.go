package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// tokenMiddleware проверяет статический токен в заголовке Authorization
// для изменяющих маршрутов. Пустой токен в конфиге отключает проверку.
func (rs *RestServer) tokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rs.apiToken == "" {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			rs.fail(c, http.StatusUnauthorized, "Отсутствует токен авторизации")
			return
		}

		// Проверяем формат "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			rs.fail(c, http.StatusUnauthorized, "Неверный формат токена")
			return
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(rs.apiToken)) != 1 {
			rs.fail(c, http.StatusUnauthorized, "Недействительный токен")
			return
		}

		c.Next()
	}
}

// corsMiddleware разрешает запросы из браузерного просмотрщика
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
