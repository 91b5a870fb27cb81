package locator

import (
	"path/filepath"
	"strings"
)

const (
	// managedRuntimeExt marks a service binary that cannot be executed
	// directly and must be run through the managed-runtime launcher.
	managedRuntimeExt = ".dll"

	// runtimeLauncher executes managed-runtime modules.
	runtimeLauncher = "dotnet"

	// enableLoggingFlag turns on verbose service-side logging.
	enableLoggingFlag = "--enable-logging"
)

// LaunchSpec is the command line used to spawn the service process.
type LaunchSpec struct {
	Command string
	Args    []string
}

// DeriveLaunchSpec builds the launch command for a resolved service path.
// A managed-runtime module is invoked through the runtime launcher with the
// original path as the first argument; anything else is executed directly.
// When verbose is set, --enable-logging is appended exactly once.
func DeriveLaunchSpec(serverPath string, verbose bool) LaunchSpec {
	spec := LaunchSpec{Command: serverPath}

	if strings.EqualFold(filepath.Ext(serverPath), managedRuntimeExt) {
		spec.Command = runtimeLauncher
		spec.Args = []string{serverPath}
	}

	if verbose {
		spec.Args = append(spec.Args, enableLoggingFlag)
	}

	return spec
}
