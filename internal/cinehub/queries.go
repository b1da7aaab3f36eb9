package cinehub

import (
	"context"
	"database/sql"
	"time"
)

// User はusersテーブルの1行を表す。
type User struct {
	// ID はユーザーの一意識別子。
	ID string
	// Email はメールアドレス。
	Email string
	// DisplayName は表示名。
	DisplayName string
	// CreatedAt は作成日時。
	CreatedAt time.Time
	// LastLoginAt は最終ログイン日時。
	LastLoginAt time.Time
}

// Movie はmoviesテーブルの1行を表す。
type Movie struct {
	// ID は映画の一意識別子。
	ID string
	// Title は映画のタイトル。
	Title string
	// Director は監督名。
	Director string
	// Year は公開年。
	Year int64
	// CreatedAt は作成日時。
	CreatedAt time.Time
	// UpdatedAt は更新日時。
	UpdatedAt time.Time
}

// WatchlistItem はウォッチリストの1項目を映画情報と結合した行を表す。
type WatchlistItem struct {
	// MovieID は映画の一意識別子。
	MovieID string
	// Title は映画のタイトル。
	Title string
	// Director は監督名。
	Director string
	// Year は公開年。
	Year int64
	// AddedAt はウォッチリストへの追加日時。
	AddedAt time.Time
}

// Rating はratingsテーブルの1行を表す。
type Rating struct {
	// UserID は評価したユーザーのID。
	UserID string
	// MovieID は評価対象の映画のID。
	MovieID string
	// Score は1から5の評価値。
	Score int64
	// Comment は任意のコメント。
	Comment string
	// RatedAt は評価日時。
	RatedAt time.Time
}

// queries はデータベースへのクエリ実行をまとめたオブジェクト。
type queries struct {
	db *sql.DB
}

// newQueries は取得済みのデータベースハンドルからクエリ実行オブジェクトを生成する。
func newQueries(db *sql.DB) *queries {
	return &queries{db: db}
}

// UpsertUserByEmailParams はUpsertUserByEmailのパラメータ。
type UpsertUserByEmailParams struct {
	// ID は新規作成時に使用するユーザーID。既存ユーザーの場合は無視される。
	ID string
	// Email はメールアドレス。
	Email string
	// DisplayName は表示名。空の場合は既存の表示名を維持する。
	DisplayName string
}

// UpsertUserByEmail はメールアドレスでユーザーを作成または更新する。
// 既存ユーザーの場合は最終ログイン日時を更新し、表示名が指定されていれば差し替える。
func (q *queries) UpsertUserByEmail(ctx context.Context, arg UpsertUserByEmailParams) (User, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, display_name)
		VALUES (?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			last_login_at = datetime('now'),
			display_name = CASE
				WHEN excluded.display_name != '' THEN excluded.display_name
				ELSE users.display_name
			END
		RETURNING id, email, display_name, created_at, last_login_at
	`, arg.ID, arg.Email, arg.DisplayName)

	var u User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.CreatedAt, &u.LastLoginAt)
	return u, err
}

// GetUserByID は指定されたIDのユーザーを取得する。
func (q *queries) GetUserByID(ctx context.Context, id string) (User, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, created_at, last_login_at
		FROM users
		WHERE id = ?
	`, id)

	var u User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.CreatedAt, &u.LastLoginAt)
	return u, err
}

// CreateMovieParams はCreateMovieのパラメータ。
type CreateMovieParams struct {
	// ID は映画の一意識別子。
	ID string
	// Title は映画のタイトル。
	Title string
	// Director は監督名。
	Director string
	// Year は公開年。
	Year int64
}

// CreateMovie は映画を登録する。
func (q *queries) CreateMovie(ctx context.Context, arg CreateMovieParams) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO movies (id, title, director, year)
		VALUES (?, ?, ?, ?)
	`, arg.ID, arg.Title, arg.Director, arg.Year)
	return err
}

// GetMovieByID は指定されたIDの映画を取得する。
func (q *queries) GetMovieByID(ctx context.Context, id string) (Movie, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, title, director, year, created_at, updated_at
		FROM movies
		WHERE id = ?
	`, id)

	var m Movie
	err := row.Scan(&m.ID, &m.Title, &m.Director, &m.Year, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

// ListMovies は全ての映画をタイトル順で取得する。
func (q *queries) ListMovies(ctx context.Context) ([]Movie, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, title, director, year, created_at, updated_at
		FROM movies
		ORDER BY title
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanMovies(rows)
}

// SearchMoviesByTitle はタイトルの部分一致で映画を検索する。
func (q *queries) SearchMoviesByTitle(ctx context.Context, title string) ([]Movie, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, title, director, year, created_at, updated_at
		FROM movies
		WHERE title LIKE '%' || ? || '%'
		ORDER BY title
	`, title)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanMovies(rows)
}

// scanMovies は映画の行セットをスライスに変換する。
func scanMovies(rows *sql.Rows) ([]Movie, error) {
	var movies []Movie
	for rows.Next() {
		var m Movie
		if err := rows.Scan(&m.ID, &m.Title, &m.Director, &m.Year, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		movies = append(movies, m)
	}
	return movies, rows.Err()
}

// AddToWatchlistParams はAddToWatchlistのパラメータ。
type AddToWatchlistParams struct {
	// UserID はウォッチリストの所有者のユーザーID。
	UserID string
	// MovieID は追加する映画のID。
	MovieID string
}

// AddToWatchlist は映画をウォッチリストに追加する。
// 既に追加済みの場合は何もしない。
func (q *queries) AddToWatchlist(ctx context.Context, arg AddToWatchlistParams) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO watchlist (user_id, movie_id)
		VALUES (?, ?)
	`, arg.UserID, arg.MovieID)
	return err
}

// RemoveFromWatchlistParams はRemoveFromWatchlistのパラメータ。
type RemoveFromWatchlistParams struct {
	// UserID はウォッチリストの所有者のユーザーID。
	UserID string
	// MovieID は削除する映画のID。
	MovieID string
}

// RemoveFromWatchlist は映画をウォッチリストから削除し、削除した行数を返す。
func (q *queries) RemoveFromWatchlist(ctx context.Context, arg RemoveFromWatchlistParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, `
		DELETE FROM watchlist
		WHERE user_id = ? AND movie_id = ?
	`, arg.UserID, arg.MovieID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ListWatchlistByUserID はユーザーのウォッチリストを映画情報付きで取得する。
// 追加日時の降順で返す。
func (q *queries) ListWatchlistByUserID(ctx context.Context, userID string) ([]WatchlistItem, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT m.id, m.title, m.director, m.year, w.added_at
		FROM watchlist w
		JOIN movies m ON m.id = w.movie_id
		WHERE w.user_id = ?
		ORDER BY w.added_at DESC, m.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []WatchlistItem
	for rows.Next() {
		var item WatchlistItem
		if err := rows.Scan(&item.MovieID, &item.Title, &item.Director, &item.Year, &item.AddedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpsertRatingParams はUpsertRatingのパラメータ。
type UpsertRatingParams struct {
	// UserID は評価したユーザーのID。
	UserID string
	// MovieID は評価対象の映画のID。
	MovieID string
	// Score は1から5の評価値。
	Score int64
	// Comment は任意のコメント。
	Comment string
}

// UpsertRating は映画の評価を登録または更新する。
// 同じユーザーと映画の組み合わせに対する評価は1件のみ保持する。
func (q *queries) UpsertRating(ctx context.Context, arg UpsertRatingParams) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO ratings (user_id, movie_id, score, comment)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, movie_id) DO UPDATE SET
			score = excluded.score,
			comment = excluded.comment,
			rated_at = datetime('now')
	`, arg.UserID, arg.MovieID, arg.Score, arg.Comment)
	return err
}

// ListRatingsByMovieID は映画に付けられた評価を評価日時の降順で取得する。
func (q *queries) ListRatingsByMovieID(ctx context.Context, movieID string) ([]Rating, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT user_id, movie_id, score, comment, rated_at
		FROM ratings
		WHERE movie_id = ?
		ORDER BY rated_at DESC, user_id
	`, movieID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ratings []Rating
	for rows.Next() {
		var r Rating
		if err := rows.Scan(&r.UserID, &r.MovieID, &r.Score, &r.Comment, &r.RatedAt); err != nil {
			return nil, err
		}
		ratings = append(ratings, r)
	}
	return ratings, rows.Err()
}
