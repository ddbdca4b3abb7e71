// +build darwin dragonfly freebsd linux nacl netbsd openbsd solaris

package system

import "syscall"

// ReloadDictionarySig reloads the phrase dictionary on SIGUSR1.
func ReloadDictionarySig(dict Reloader) {
	reloadDictionarySig(syscall.SIGUSR1, dict)
}
