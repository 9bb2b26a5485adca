//go:build !(sqlite_vec && cgo)

package store

import (
	_ "modernc.org/sqlite"
)

// Pure-Go driver; no CGO toolchain required.
const driverName = "sqlite"
