// =============================================================================
// pkg/cf/cf.go - Column Family Names and Helpers
// =============================================================================
//
// This package names the record-store column families. Column families
// partition the normalized trace by artifact class so each class keeps its
// own key shape and iteration order.
//
// =============================================================================

package cf

// =============================================================================
// Column Family Names
// =============================================================================

const (
	// Records holds the main record stream, keyed
	// (cursor index, kind, trace line). Iterating it in key order is the
	// ordering contract the report phase is built on.
	Records = "records"

	// Cursors holds one descriptor per allocated cursor index.
	Cursors = "cursors"

	// Binds holds bind-value text, keyed (cursor index, sequence).
	Binds = "binds"

	// RPC holds legacy RPC CALL/BIND/EXEC records keyed by trace line.
	RPC = "rpc"
)

// Names contains all column family names in creation order.
var Names = []string{Records, Cursors, Binds, RPC}

// Count is the number of column families.
const Count = 4

// IsValidName returns true if the given string is a column family name.
func IsValidName(name string) bool {
	for _, cfName := range Names {
		if cfName == name {
			return true
		}
	}
	return false
}
