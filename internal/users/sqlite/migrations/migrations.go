// Package migrations は SQLite 用のスキーマ定義をバイナリに埋め込みます。
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
