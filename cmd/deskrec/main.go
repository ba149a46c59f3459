// deskrec records desktop input, window, clipboard and snapshot events
// into a local SQLite event log.
//
//	deskrec run            Record until stopped
//	deskrec stop           Ask the running recorder to stop
//	deskrec pause|resume   Suspend or resume recording
//	deskrec reload         Re-read the configuration file
//	deskrec status [-v]    Show recorder status
//	deskrec set-video      Attach a video file to a session
//	deskrec init-config    Write the default configuration
package main

import (
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
