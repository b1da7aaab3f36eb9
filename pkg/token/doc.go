// Package token はJWTクレデンシャルの検証と発行を提供する。
//
// 検証はプロセス起動時に一度だけ復号されたシークレットと、単一の
// 許可アルゴリズム（HMAC-SHA256）に対してのみ行う。トークンヘッダーが
// 申告するアルゴリズムは信用せず、許可アルゴリズムとの一致を強制する
// （アルゴリズム混同攻撃・ダウングレード攻撃への防御）。
// 検証の失敗は閉じた種別（sentinelエラー）として返し、呼び出し側の
// 内部ログでのみ区別する。
package token
