package middleware

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/cinehub/pkg/token"
)

// CookieName は認証トークンを運ぶクッキーの名前。
// フロントエンドとの取り決めで固定であり、ヘッダーによる代替手段はない。
const CookieName = "jwt"

// JWTCookieAuth はクッキーのJWTトークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストに "user_id" と "email" を設定する。
// 拒否理由は内部ログにのみ残し、レスポンスは理由を問わず同一の401を返す。
func JWTCookieAuth(secret token.Secret) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := verifyCookie(c, secret)
		if err != nil {
			log.Printf("[AUTH] 認証拒否 %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "認証が必要です",
			})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("email", claims.Email)
		c.Next()
	}
}

// IsAuthenticated はリクエストが有効な認証クッキーを持つかどうかを返す。
// 認証済みかどうかでレスポンスを変えるハンドラー向けの判定形で、
// リクエストを中断しない。認証済みの場合はコンテキストにユーザー情報を設定する。
func IsAuthenticated(c *gin.Context, secret token.Secret) bool {
	claims, err := verifyCookie(c, secret)
	if err != nil {
		return false
	}

	c.Set("user_id", claims.UserID)
	c.Set("email", claims.Email)
	return true
}

// verifyCookie はリクエストのクッキーから認証トークンを取り出して検証する。
// クッキーの不存在はトークン欠如として扱う。
func verifyCookie(c *gin.Context, secret token.Secret) (*token.Claims, error) {
	value, err := c.Cookie(CookieName)
	if err != nil {
		return nil, token.ErrTokenMissing
	}
	return token.Verify(value, secret, token.AlgorithmHS256)
}

// GetUserID はGinコンテキストから認証済みユーザーのIDを取得する。
// JWTCookieAuthミドルウェアが事前に適用されている必要がある。
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetEmail はGinコンテキストから認証済みユーザーのメールアドレスを取得する。
// JWTCookieAuthミドルウェアが事前に適用されている必要がある。
func GetEmail(c *gin.Context) string {
	email, _ := c.Get("email")
	if e, ok := email.(string); ok {
		return e
	}
	return ""
}
