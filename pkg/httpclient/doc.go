// Package httpclient は外部サービスとのHTTP通信を行うクライアントを提供する。
//
// cinehubが推薦の生成を委譲しているレコメンドサービスのAPIを
// 呼び出す際に使用する。認証済みユーザーのIDはX-User-IDヘッダーで伝播する。
package httpclient
