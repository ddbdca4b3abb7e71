// +build windows

package system

// ReloadDictionarySig is a no-op on Windows, which has no SIGUSR1.
func ReloadDictionarySig(dict Reloader) {}
