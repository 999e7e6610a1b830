//go:build purego || !cgo

package mvsqlite

import (
	_ "modernc.org/sqlite"
)

const (
	sqliteDriverType = "sqlite"
	sqliteBuildType  = "purego"
)
