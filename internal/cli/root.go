package cli

import "fmt"

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "generate":
		return runGenerate(args[1:])
	case "track":
		return runTrack(args[1:])
	case "status":
		return runStatus(args[1:])
	case "templates":
		return runTemplates(args[1:])
	case "gallery":
		return runGallery(args[1:])
	case "download":
		return runDownload(args[1:])
	case "open":
		return runOpen(args[1:])
	case "remove":
		return runRemove(args[1:])
	case "version", "--version":
		return runVersion(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("vidgen: generate product videos and track them to completion")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  vidgen templates")
	fmt.Println("  vidgen generate --url <product-url> --progress")
	fmt.Println("  vidgen gallery --interactive")
	fmt.Println()
	fmt.Println("Job Commands:")
	fmt.Println("  generate   submit a product URL and track the job")
	fmt.Println("  track      poll an existing job until it finishes")
	fmt.Println("  status     query a job once")
	fmt.Println("  templates  list the available video templates")
	fmt.Println()
	fmt.Println("Gallery Commands:")
	fmt.Println("  gallery    list completed videos (--interactive to browse)")
	fmt.Println("  download   save a completed video (falls back to opening it)")
	fmt.Println("  open       open a completed video with the system handler")
	fmt.Println("  remove     delete a video from the gallery")
	fmt.Println("  version    print the client version")
	fmt.Println()
	fmt.Println("Global Flags (every command):")
	fmt.Println("  --api-url <url>    service base URL (default http://localhost:8000)")
	fmt.Println("  --data-dir <path>  gallery directory")
	fmt.Println("  --store file|sqlite")
	fmt.Println("  --log-level debug|info|warn|error")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Use --json on commands for machine-readable output")
	fmt.Println("  - Settings can also come from VIDGEN_* variables or a .env file")
}
