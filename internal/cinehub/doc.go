// Package cinehub は映画ウォッチリストサービスの内部実装を提供する。
//
// ユーザーのログインとJWTクッキーの発行、映画の登録・検索、
// ウォッチリストと評価の管理、レコメンドサービスへの問い合わせを処理する。
// データベース接続は遅延初期化され、プロセス全体で1つのハンドルを共有する。
// 認証はクッキーのJWTトークンをリクエスト毎に検証するステートレス方式で、
// サーバー側にセッション状態を持たない。
package cinehub
