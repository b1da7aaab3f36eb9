// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// クッキーで受け取るJWT認証トークンの検証、パニックリカバリ、
// CORS設定など、cinehubのAPI全体で共通して使用するミドルウェアを含む。
package middleware
