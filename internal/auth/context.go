package auth

import "github.com/gin-gonic/gin"

const (
	ctxUserID    = "userID"
	ctxUserEmail = "userEmail"
	ctxUserName  = "userName"
)

// GetUserID returns the authenticated user's ID or empty string.
func GetUserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

// GetUserEmail returns the authenticated user's email or empty string.
func GetUserEmail(c *gin.Context) string {
	return c.GetString(ctxUserEmail)
}

// GetIdentity returns the verified identity stored by AuthRequired.
func GetIdentity(c *gin.Context) Identity {
	return Identity{
		UserID:      c.GetString(ctxUserID),
		Email:       c.GetString(ctxUserEmail),
		DisplayName: c.GetString(ctxUserName),
	}
}

func setIdentity(c *gin.Context, id Identity) {
	c.Set(ctxUserID, id.UserID)
	c.Set(ctxUserEmail, id.Email)
	c.Set(ctxUserName, id.DisplayName)
}
