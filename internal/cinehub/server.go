package cinehub

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nao1215/cinehub/pkg/dbcache"
	"github.com/nao1215/cinehub/pkg/httpclient"
	"github.com/nao1215/cinehub/pkg/middleware"
	"github.com/nao1215/cinehub/pkg/token"
)

// tokenLifetime はログインで発行するJWTトークンの有効期間。
const tokenLifetime = 24 * time.Hour

// Server はcinehubのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// cache は共有データベースハンドルの遅延初期化キャッシュ。
	cache *dbcache.Cache
	// secret はJWTの署名と検証に使うシークレット。
	// デコードに失敗した場合は利用不能のまま保持し、全ての認証を拒否する。
	secret token.Secret
	// recommender はレコメンドサービスへのHTTPクライアント。
	recommender *httpclient.Client
}

// NewServer は新しいcinehubサーバーを生成する。
// データベースへは接続せず、最初にハンドルが必要になったリクエストで接続する。
// DB_PATHが未設定の場合は起動できない。
func NewServer(port string) (*Server, error) {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		return nil, errors.New("環境変数DB_PATHが設定されていません")
	}

	secret, err := token.DecodeSecret(os.Getenv("JWT_SECRET"))
	if err != nil {
		// シークレットが利用不能でも起動は継続する。認証付きリクエストは全て拒否される。
		log.Printf("[WARN] JWT_SECRETが利用できないため、全ての認証リクエストを拒否します: %v", err)
	}

	recommenderURL := getEnvOr("RECOMMENDER_URL", "http://localhost:8090")
	frontendURL := getEnvOr("FRONTEND_URL", "http://localhost:3000")

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS([]string{frontendURL}))

	s := &Server{
		router:      router,
		port:        port,
		cache:       dbcache.New(connectDB(dbPath)),
		secret:      secret,
		recommender: httpclient.New(recommenderURL),
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// connectDB は指定パスのSQLiteデータベースへ接続する接続関数を返す。
// 接続の成立時にスキーマのマイグレーションも適用する。
func connectDB(dbPath string) dbcache.ConnectFunc {
	return func(ctx context.Context) (*sql.DB, error) {
		dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("データベース接続に失敗: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("データベース疎通確認に失敗: %w", err)
		}
		if err := initSchema(db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
		}
		return db, nil
	}
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// 認証エンドポイント（認証不要）
	auth := s.router.Group("/auth")
	{
		auth.POST("/login", s.handleLogin())
		auth.POST("/logout", s.handleLogout())
		auth.GET("/session", s.handleSession())
	}

	// 認証必須のAPIエンドポイント
	api := s.router.Group("/api/v1")
	api.Use(middleware.JWTCookieAuth(s.secret))
	{
		// ユーザー情報
		api.GET("/me", s.handleGetCurrentUser())

		movies := api.Group("/movies")
		{
			// 映画登録
			movies.POST("", s.handleCreateMovie())
			// 映画一覧・検索
			movies.GET("", s.handleListMovies())
			// 映画詳細取得
			movies.GET("/:id", s.handleGetMovieByID())
			// 評価の登録・更新
			movies.PUT("/:id/rating", s.handleUpsertRating())
			// 評価一覧取得
			movies.GET("/:id/ratings", s.handleListRatings())
		}

		watchlist := api.Group("/watchlist")
		{
			// ウォッチリスト取得
			watchlist.GET("", s.handleListWatchlist())
			// ウォッチリストに追加
			watchlist.POST("", s.handleAddToWatchlist())
			// ウォッチリストから削除
			watchlist.DELETE("/:movie_id", s.handleRemoveFromWatchlist())
		}

		// レコメンド取得（外部サービスへの委譲）
		api.GET("/recommendations", s.handleRecommendations())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "cinehub"})
	})
}

// acquireQueries は共有データベースハンドルを取得してクエリ実行オブジェクトを返す。
// 接続に失敗した場合は503を返してリクエストを中断し、falseを返す。
// 失敗してもキャッシュは空に戻るため、次のリクエストで再接続を試みる。
func (s *Server) acquireQueries(c *gin.Context) (*queries, bool) {
	db, err := s.cache.Acquire(c.Request.Context())
	if err != nil {
		log.Printf("データベース接続エラー: %v", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "サービスを一時的に利用できません"})
		return nil, false
	}
	return newQueries(db), true
}

// loginRequest はログインリクエストのJSON構造。
type loginRequest struct {
	// Email はログインするユーザーのメールアドレス。
	Email string `json:"email" binding:"required"`
	// DisplayName は表示名。省略した場合は既存の表示名を維持する。
	DisplayName string `json:"display_name"`
}

// handleLogin はログインを処理するハンドラを返す。
// ユーザーをメールアドレスで作成または更新し、JWTクッキーを発行する。
// 信頼されたフロントエンド経由の簡易ログインで、パスワード認証は行わない。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.secret.Usable() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "サービスを一時的に利用できません"})
			return
		}

		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		q, ok := s.acquireQueries(c)
		if !ok {
			return
		}

		user, err := q.UpsertUserByEmail(c.Request.Context(), UpsertUserByEmailParams{
			ID:          uuid.New().String(),
			Email:       req.Email,
			DisplayName: req.DisplayName,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ログインに失敗しました"})
			log.Printf("ユーザー作成エラー: %v", err)
			return
		}

		signed, err := token.Generate(s.secret, user.ID, user.Email, tokenLifetime)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ログインに失敗しました"})
			log.Printf("トークン生成エラー: %v", err)
			return
		}

		// Secure属性はTLS終端に委ねるため付与しない
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(middleware.CookieName, signed, int(tokenLifetime.Seconds()), "/", "", false, true)
		c.JSON(http.StatusOK, gin.H{"user_id": user.ID})
	}
}

// handleLogout はログアウトを処理するハンドラを返す。認証クッキーを失効させる。
func (s *Server) handleLogout() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(middleware.CookieName, "", -1, "/", "", false, true)
		c.JSON(http.StatusOK, gin.H{"message": "ログアウトしました"})
	}
}

// handleSession は現在のセッション状態を返すハンドラを返す。
// クッキーが無い場合や無効な場合もエラーにせず、未認証として応答する。
func (s *Server) handleSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !middleware.IsAuthenticated(c, s.secret) {
			c.JSON(http.StatusOK, gin.H{"authenticated": false})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"authenticated": true,
			"user_id":       middleware.GetUserID(c),
		})
	}
}

// userResponse はユーザー情報のJSONレスポンス構造。
type userResponse struct {
	// ID はユーザーの一意識別子。
	ID string `json:"id"`
	// Email はメールアドレス。
	Email string `json:"email"`
	// DisplayName は表示名。
	DisplayName string `json:"display_name"`
	// CreatedAt は作成日時。
	CreatedAt string `json:"created_at"`
	// LastLoginAt は最終ログイン日時。
	LastLoginAt string `json:"last_login_at"`
}

// handleGetCurrentUser は認証済みユーザーの情報を返すハンドラを返す。
func (s *Server) handleGetCurrentUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "認証が必要です"})
			return
		}

		q, ok := s.acquireQueries(c)
		if !ok {
			return
		}

		user, err := q.GetUserByID(c.Request.Context(), userID)
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの取得に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, userResponse{
			ID:          user.ID,
			Email:       user.Email,
			DisplayName: user.DisplayName,
			CreatedAt:   user.CreatedAt.Format("2006-01-02T15:04:05Z"),
			LastLoginAt: user.LastLoginAt.Format("2006-01-02T15:04:05Z"),
		})
	}
}

// createMovieRequest は映画登録リクエストのJSON構造。
type createMovieRequest struct {
	// Title は映画のタイトル。
	Title string `json:"title" binding:"required"`
	// Director は監督名。
	Director string `json:"director"`
	// Year は公開年。
	Year int64 `json:"year"`
}

// movieResponse は映画のJSONレスポンス構造。
type movieResponse struct {
	// ID は映画の一意識別子。
	ID string `json:"id"`
	// Title は映画のタイトル。
	Title string `json:"title"`
	// Director は監督名。
	Director string `json:"director"`
	// Year は公開年。
	Year int64 `json:"year"`
	// CreatedAt は作成日時。
	CreatedAt string `json:"created_at"`
	// UpdatedAt は更新日時。
	UpdatedAt string `json:"updated_at"`
}

// toMovieResponse はDB行をJSONレスポンスに変換する。
func toMovieResponse(m Movie) movieResponse {
	return movieResponse{
		ID:        m.ID,
		Title:     m.Title,
		Director:  m.Director,
		Year:      m.Year,
		CreatedAt: m.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt: m.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// handleCreateMovie は映画の登録を処理するハンドラを返す。
func (s *Server) handleCreateMovie() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createMovieRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		q, ok := s.acquireQueries(c)
		if !ok {
			return
		}

		movieID := uuid.New().String()
		if err := q.CreateMovie(c.Request.Context(), CreateMovieParams{
			ID:       movieID,
			Title:    req.Title,
			Director: req.Director,
			Year:     req.Year,
		}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "映画の登録に失敗しました"})
			log.Printf("映画登録エラー: %v", err)
			return
		}

		// 登録した映画をDBから取得してレスポンスを返す
		created, err := q.GetMovieByID(c.Request.Context(), movieID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "登録した映画の取得に失敗しました"})
			log.Printf("映画取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, toMovieResponse(created))
	}
}

// handleListMovies は映画一覧の取得を処理するハンドラを返す。
// クエリパラメータqが指定された場合はタイトルの部分一致で絞り込む。
func (s *Server) handleListMovies() gin.HandlerFunc {
	return func(c *gin.Context) {
		q, ok := s.acquireQueries(c)
		if !ok {
			return
		}

		var (
			movies []Movie
			err    error
		)
		if search := c.Query("q"); search != "" {
			movies, err = q.SearchMoviesByTitle(c.Request.Context(), search)
		} else {
			movies, err = q.ListMovies(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "映画一覧の取得に失敗しました"})
			log.Printf("映画一覧取得エラー: %v", err)
			return
		}

		responses := make([]movieResponse, 0, len(movies))
		for _, m := range movies {
			responses = append(responses, toMovieResponse(m))
		}

		c.JSON(http.StatusOK, responses)
	}
}

// handleGetMovieByID は映画詳細の取得を処理するハンドラを返す。
func (s *Server) handleGetMovieByID() gin.HandlerFunc {
	return func(c *gin.Context) {
		q, ok := s.acquireQueries(c)
		if !ok {
			return
		}

		movie, err := q.GetMovieByID(c.Request.Context(), c.Param("id"))
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "映画が見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "映画の取得に失敗しました"})
			log.Printf("映画取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toMovieResponse(movie))
	}
}

// addWatchlistRequest はウォッチリスト追加リクエストのJSON構造。
type addWatchlistRequest struct {
	// MovieID は追加する映画のID。
	MovieID string `json:"movie_id" binding:"required"`
}

// watchlistItemResponse はウォッチリスト項目のJSONレスポンス構造。
type watchlistItemResponse struct {
	// MovieID は映画の一意識別子。
	MovieID string `json:"movie_id"`
	// Title は映画のタイトル。
	Title string `json:"title"`
	// Director は監督名。
	Director string `json:"director"`
	// Year は公開年。
	Year int64 `json:"year"`
	// AddedAt はウォッチリストへの追加日時。
	AddedAt string `json:"added_at"`
}

// handleListWatchlist はウォッチリストの取得を処理するハンドラを返す。
func (s *Server) handleListWatchlist() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "認証が必要です"})
			return
		}

		q, ok := s.acquireQueries(c)
		if !ok {
			return
		}

		items, err := q.ListWatchlistByUserID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ウォッチリストの取得に失敗しました"})
			log.Printf("ウォッチリスト取得エラー: %v", err)
			return
		}

		responses := make([]watchlistItemResponse, 0, len(items))
		for _, item := range items {
			responses = append(responses, watchlistItemResponse{
				MovieID:  item.MovieID,
				Title:    item.Title,
				Director: item.Director,
				Year:     item.Year,
				AddedAt:  item.AddedAt.Format("2006-01-02T15:04:05Z"),
			})
		}

		c.JSON(http.StatusOK, responses)
	}
}

// handleAddToWatchlist はウォッチリストへの追加を処理するハンドラを返す。
// 既に追加済みの映画を追加しても成功として扱う。
func (s *Server) handleAddToWatchlist() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "認証が必要です"})
			return
		}

		var req addWatchlistRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		q, ok := s.acquireQueries(c)
		if !ok {
			return
		}

		// 映画の存在確認
		if _, err := q.GetMovieByID(c.Request.Context(), req.MovieID); err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "映画が見つかりません"})
			return
		} else if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "映画の取得に失敗しました"})
			log.Printf("映画取得エラー: %v", err)
			return
		}

		if err := q.AddToWatchlist(c.Request.Context(), AddToWatchlistParams{
			UserID:  userID,
			MovieID: req.MovieID,
		}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ウォッチリストへの追加に失敗しました"})
			log.Printf("ウォッチリスト追加エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "ウォッチリストに追加しました"})
	}
}

// handleRemoveFromWatchlist はウォッチリストからの削除を処理するハンドラを返す。
func (s *Server) handleRemoveFromWatchlist() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "認証が必要です"})
			return
		}

		q, ok := s.acquireQueries(c)
		if !ok {
			return
		}

		rows, err := q.RemoveFromWatchlist(c.Request.Context(), RemoveFromWatchlistParams{
			UserID:  userID,
			MovieID: c.Param("movie_id"),
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ウォッチリストからの削除に失敗しました"})
			log.Printf("ウォッチリスト削除エラー: %v", err)
			return
		}
		if rows == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "ウォッチリストに登録されていません"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "ウォッチリストから削除しました"})
	}
}

// upsertRatingRequest は評価登録リクエストのJSON構造。
type upsertRatingRequest struct {
	// Score は1から5の評価値。
	Score int64 `json:"score" binding:"required,min=1,max=5"`
	// Comment は任意のコメント。
	Comment string `json:"comment"`
}

// ratingResponse は評価のJSONレスポンス構造。
type ratingResponse struct {
	// UserID は評価したユーザーのID。
	UserID string `json:"user_id"`
	// MovieID は評価対象の映画のID。
	MovieID string `json:"movie_id"`
	// Score は1から5の評価値。
	Score int64 `json:"score"`
	// Comment は任意のコメント。
	Comment string `json:"comment"`
	// RatedAt は評価日時。
	RatedAt string `json:"rated_at"`
}

// handleUpsertRating は映画への評価の登録・更新を処理するハンドラを返す。
// 同じ映画への再評価は上書きになる。
func (s *Server) handleUpsertRating() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "認証が必要です"})
			return
		}

		var req upsertRatingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		q, ok := s.acquireQueries(c)
		if !ok {
			return
		}

		movieID := c.Param("id")

		// 映画の存在確認
		if _, err := q.GetMovieByID(c.Request.Context(), movieID); err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "映画が見つかりません"})
			return
		} else if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "映画の取得に失敗しました"})
			log.Printf("映画取得エラー: %v", err)
			return
		}

		if err := q.UpsertRating(c.Request.Context(), UpsertRatingParams{
			UserID:  userID,
			MovieID: movieID,
			Score:   req.Score,
			Comment: req.Comment,
		}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "評価の登録に失敗しました"})
			log.Printf("評価登録エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "評価を登録しました"})
	}
}

// handleListRatings は映画に付けられた評価一覧の取得を処理するハンドラを返す。
func (s *Server) handleListRatings() gin.HandlerFunc {
	return func(c *gin.Context) {
		q, ok := s.acquireQueries(c)
		if !ok {
			return
		}

		movieID := c.Param("id")

		// 映画の存在確認
		if _, err := q.GetMovieByID(c.Request.Context(), movieID); err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "映画が見つかりません"})
			return
		} else if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "映画の取得に失敗しました"})
			log.Printf("映画取得エラー: %v", err)
			return
		}

		ratings, err := q.ListRatingsByMovieID(c.Request.Context(), movieID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "評価一覧の取得に失敗しました"})
			log.Printf("評価一覧取得エラー: %v", err)
			return
		}

		responses := make([]ratingResponse, 0, len(ratings))
		for _, r := range ratings {
			responses = append(responses, ratingResponse{
				UserID:  r.UserID,
				MovieID: r.MovieID,
				Score:   r.Score,
				Comment: r.Comment,
				RatedAt: r.RatedAt.Format("2006-01-02T15:04:05Z"),
			})
		}

		c.JSON(http.StatusOK, responses)
	}
}

// handleRecommendations はレコメンド一覧の取得を処理するハンドラを返す。
// 推薦の生成は外部のレコメンドサービスに委譲し、認証済みユーザーのIDを伝播する。
func (s *Server) handleRecommendations() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "認証が必要です"})
			return
		}

		ctx := httpclient.WithUserID(c.Request.Context(), userID)
		var result any
		if err := s.recommender.GetJSON(ctx, "/api/v1/recommendations", &result); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "レコメンドの取得に失敗しました"})
			log.Printf("レコメンド取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
