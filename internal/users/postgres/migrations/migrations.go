// Package migrations は PostgreSQL 用の goose マイグレーションを埋め込みます。
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
