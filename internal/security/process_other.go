//go:build !unix

package security

func checkTraced() bool { return false }

func setUmask(mask int) int { return 0 }

func disableCoreDumps() error { return nil }
