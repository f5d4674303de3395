package cli

import (
	"fmt"

	"github.com/danielgraviet/daytona-demo/internal/version"
)

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "run":
		return runFleet(args[1:])
	case "status":
		return runStatus(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "init":
		return runInit(args[1:])
	case "settings":
		return runSettings(args[1:])
	case "version", "--version", "-v":
		fmt.Println(version.Value)
		return nil
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("daytona-demo: fan out RL training over Daytona sandboxes")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  export DAYTONA_API_KEY=...")
	fmt.Println("  daytona-demo init")
	fmt.Println("  daytona-demo run --units 25 --episodes 300")
	fmt.Println("  daytona-demo status --latest")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run       provision sandboxes, stream training progress, report results")
	fmt.Println("  status    show a finished or in-progress run from its artifacts")
	fmt.Println("  doctor    check credential, API reachability and local directories")
	fmt.Println("  init      create workspace config + run environment checks")
	fmt.Println("  settings  show/update persisted run defaults")
	fmt.Println("  version   print the CLI version")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Use --json on commands for machine-readable output")
	fmt.Println("  - The run command exits nonzero when any unit fails")
}
