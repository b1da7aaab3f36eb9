// cinehubサーバーのエントリポイント。
// ログインとJWTクッキーによる認証、映画・ウォッチリスト・評価の管理、
// レコメンドサービスへの問い合わせを1つのHTTPサーバーとして提供する。
package main

import (
	"log"
	"os"

	"github.com/nao1215/cinehub/internal/cinehub"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server, err := cinehub.NewServer(port)
	if err != nil {
		log.Fatalf("cinehubサーバーの初期化に失敗: %v", err)
	}

	log.Printf("cinehubサーバーを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("cinehubサーバーの起動に失敗: %v", err)
	}
}
