package cinehub

import (
	"database/sql"
	"embed"

	"github.com/nao1215/cinehub/pkg/migration"
)

//go:embed migrations
var migrationsFS embed.FS

// initSchema はマイグレーションを実行してスキーマを適用する。
// 共有データベース接続の確立時に一度だけ呼ばれる。
func initSchema(db *sql.DB) error {
	return migration.Run(db, migrationsFS, "migrations")
}
