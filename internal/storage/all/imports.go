// Package all wires the built-in storage backends into the storage factory.
//
// Importing it for side effects makes the "sqlite" and "postgres" kinds
// available to storage.New:
//
//	import _ "effectifs/internal/storage/all"
package all

import (
	_ "effectifs/internal/storage/postgres"
	_ "effectifs/internal/storage/sqlite"
)
