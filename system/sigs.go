package system

import (
	"os"
	"os/signal"
)

// Reloader is anything whose backing file can be re-read at runtime.
type Reloader interface {
	Reload() error
}

func reloadDictionarySig(sig os.Signal, dict Reloader) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, sig)

	go func() {
		for {
			sigr := <-sigChan
			log.Infof("Received: %s", sig)
			if sigr == sig {
				if err := dict.Reload(); err != nil {
					log.Errorf("Dictionary reload failed: %v", err)
					continue
				}
				log.Infof("Dictionary reloaded.")
			}
		}
	}()
}
