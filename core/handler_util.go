package core

import "github.com/gin-gonic/gin"

// respondError sends unified error payload {"error": {"code", "message"}}.
func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": gin.H{"code": code, "message": message}})
}

// respondFieldError sends a validation failure tied to a single field.
func respondFieldError(c *gin.Context, status int, ferr *FieldError) {
	c.JSON(status, gin.H{"error": gin.H{
		"code":    "VALIDATION_ERROR",
		"field":   ferr.Field,
		"message": ferr.Message,
	}})
}
