//go:build windows

package driver

import "os"

var forwardedSignals = []os.Signal{os.Interrupt}
