//go:build !unix

package vault

import "errors"

// mlock/munlock have no portable implementation outside unix in
// golang.org/x/sys; on those platforms page locking is simply unavailable,
// which per the buffer's contract is a warning condition, not an error —
// the buffer is still fully usable.
func mlock(b []byte) error   { return errors.New("vault: page locking unsupported on this platform") }
func munlock(b []byte) error { return nil }
