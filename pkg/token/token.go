package token

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AlgorithmHS256 は本プロセスが唯一受け入れる署名アルゴリズム名。
// 発行側と検証側の事前合意で固定され、トークンヘッダーの申告値とは独立に強制される。
const AlgorithmHS256 = "HS256"

// issuer は発行するトークンのiss（発行者）クレームの値。
const issuer = "cinehub"

// 検証失敗の閉じた種別。呼び出し側はerrors.Isで判別できる。
// 種別は内部の診断ログ専用であり、HTTPレスポンスに露出してはならない
// （認証失敗理由の探索を防ぐため）。
var (
	// ErrSecretUnusable はシークレットが未設定または復号不能であることを表す。
	ErrSecretUnusable = errors.New("署名シークレットが利用できません")
	// ErrTokenMissing はリクエストにクレデンシャルが存在しないことを表す。
	ErrTokenMissing = errors.New("トークンが存在しません")
	// ErrTokenMalformed はトークンの構造またはクレームが不正であることを表す。
	ErrTokenMalformed = errors.New("トークンの形式が不正です")
	// ErrTokenExpired は署名は正しいが有効期限が過ぎていることを表す。
	ErrTokenExpired = errors.New("トークンの有効期限が切れています")
	// ErrAlgorithmMismatch はヘッダーのアルゴリズムが許可アルゴリズムと異なることを表す。
	ErrAlgorithmMismatch = errors.New("署名アルゴリズムが一致しません")
	// ErrSignatureInvalid は署名がシークレットと一致しないことを表す。
	ErrSignatureInvalid = errors.New("トークンの署名が不正です")
)

// Secret は署名検証に使用する鍵素材。
// プロセス起動時にDecodeSecretで一度だけ生成し、以後は読み取り専用で共有する。
// ゼロ値は「利用不能」を表し、検証は常に失敗する（fail-closed）。
type Secret struct {
	// key は復号済みの生の鍵バイト列。
	key []byte
}

// DecodeSecret はbase64エンコードされたシークレット文字列を復号してSecretを生成する。
// 空文字列や不正なエンコーディングの場合は利用不能なゼロ値Secretとエラーを返す。
// 部分的に復号されたシークレットが検証に使われることはない。
func DecodeSecret(encoded string) (Secret, error) {
	if encoded == "" {
		return Secret{}, errors.New("署名シークレットが設定されていません")
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Secret{}, fmt.Errorf("署名シークレットのbase64復号に失敗: %w", err)
	}
	if len(key) == 0 {
		return Secret{}, errors.New("署名シークレットが空です")
	}
	return Secret{key: key}, nil
}

// Usable はこのSecretが検証に使用できる状態かどうかを返す。
func (s Secret) Usable() bool {
	return len(s.key) > 0
}

// Claims はJWTトークンの検証済みペイロードを表す。
// 署名・アルゴリズム・有効期限のすべての検査を通過するまで信用してはならない。
type Claims struct {
	jwt.RegisteredClaims
	// UserID は認証済みユーザーの一意識別子。
	UserID string `json:"user_id"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
}

// Generate はユーザー情報からHS256署名済みのJWTトークンを生成する。
// ログインハンドラとテストが使用する発行側の補助であり、検証の中核からは呼ばれない。
func Generate(secret Secret, userID, email string, lifetime time.Duration) (string, error) {
	if !secret.Usable() {
		return "", ErrSecretUnusable
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(lifetime)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    issuer,
		},
		UserID: userID,
		Email:  email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret.key)
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Verify はクレデンシャル文字列を検証し、成功時に検証済みClaimsを返す。
// プロセス状態には依存しない純粋な検証であり、入力と現在時刻のみで結果が決まる。
//
// 検証は次の順で行い、失敗は閉じた種別のいずれかとして返す。
//  1. シークレットが利用可能であること（不能ならErrSecretUnusable、検証は試みない）
//  2. ヘッダーのアルゴリズムが許可アルゴリズムと一致すること（"none"を含む
//     他アルゴリズムはErrAlgorithmMismatch）
//  3. header+payload全体の署名がシークレットと一致すること（ErrSignatureInvalid）
//  4. 有効期限が未来であること（期限切れはErrTokenExpired）
func Verify(tokenString string, secret Secret, alg string) (*Claims, error) {
	if !secret.Usable() {
		return nil, ErrSecretUnusable
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (any, error) {
			if m, ok := t.Method.(*jwt.SigningMethodHMAC); !ok || m.Alg() != alg {
				return nil, ErrAlgorithmMismatch
			}
			return secret.key, nil
		},
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, classify(err)
	}
	if !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// classify はgolang-jwtの検証エラーを閉じた失敗種別へ変換する。
// 種別に対応しない失敗（exp欠落等のクレーム不正を含む）はErrTokenMalformedに畳む。
func classify(err error) error {
	switch {
	case errors.Is(err, ErrAlgorithmMismatch):
		return ErrAlgorithmMismatch
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignatureInvalid
	default:
		return ErrTokenMalformed
	}
}
