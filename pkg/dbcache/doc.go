// Package dbcache はプロセス全体で共有するデータベースハンドルの遅延初期化キャッシュを提供する。
//
// 接続は最初のAcquire呼び出しで一度だけ確立され、以降の呼び出しは同一の
// ハンドルを返す。確立中に到着した呼び出しは同じ試行の完了を待ち、全員が
// 同一の結果を受け取る。試行が失敗した場合は保留状態を破棄するため、
// 次のAcquireが新しい試行を開始する。
package dbcache
