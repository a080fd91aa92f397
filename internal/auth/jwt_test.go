package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Minute)
	want := Identity{UserID: "u-1", Email: "ann@example.com", DisplayName: "Ann"}

	tok, err := m.GenerateAccessToken(want)
	require.NoError(t, err)

	got, err := m.ParseAndValidate(tok)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestJWTRejects(t *testing.T) {
	m := NewJWTManager("secret", time.Minute)

	t.Run("Wrong Secret", func(t *testing.T) {
		tok, err := NewJWTManager("other", time.Minute).GenerateAccessToken(Identity{UserID: "u-1"})
		require.NoError(t, err)
		_, err = m.ParseAndValidate(tok)
		assert.Error(t, err)
	})

	t.Run("Expired", func(t *testing.T) {
		tok, err := NewJWTManager("secret", -time.Minute).GenerateAccessToken(Identity{UserID: "u-1"})
		require.NoError(t, err)
		_, err = m.ParseAndValidate(tok)
		assert.Error(t, err)
	})

	t.Run("No Subject", func(t *testing.T) {
		tok, err := m.GenerateAccessToken(Identity{Email: "ann@example.com"})
		require.NoError(t, err)
		_, err = m.ParseAndValidate(tok)
		assert.Error(t, err)
	})

	t.Run("Unsigned", func(t *testing.T) {
		claims := &Claims{UserID: "u-1", RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		}}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = m.ParseAndValidate(tok)
		assert.Error(t, err)
	})
}

func TestAuthRequired(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewJWTManager("secret", time.Minute)

	r := gin.New()
	r.GET("/me", AuthRequired(m), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": GetUserID(c), "email": GetUserEmail(c)})
	})

	call := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	tok, err := m.GenerateAccessToken(Identity{UserID: "u-1", Email: "ann@example.com"})
	require.NoError(t, err)

	w := call("Bearer " + tok)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"u-1","email":"ann@example.com"}`, w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, call("").Code)
	assert.Equal(t, http.StatusUnauthorized, call("Token "+tok).Code)
	assert.Equal(t, http.StatusUnauthorized, call("Bearer garbage").Code)
}
