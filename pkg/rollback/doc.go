// Package rollback switches the active memory version and restores its snapshot.
//
// Rollback is the only operation that moves the active pointer backward in
// time. A failed data restore does not block the pointer switch; callers must
// check Result.Partial and report it rather than claim success.
package rollback
