package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"vidgen/internal/media"
)

func runGallery(args []string) error {
	fs := flag.NewFlagSet("gallery", flag.ContinueOnError)
	globals := addGlobalFlags(fs)
	interactive := fs.Bool("interactive", false, "browse the gallery in a terminal UI")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(globals)
	if err != nil {
		return err
	}
	defer a.Close()

	if *interactive {
		return runGalleryView(a.ledger, a.media)
	}

	entries, err := a.ledger.List()
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Println("gallery is empty")
		fmt.Println("next: vidgen generate --url <product-url>")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s [%s %d%%]\n", e.ID, e.Status, e.Progress)
		fmt.Printf("  created: %s\n", formatCreatedAt(e.CreatedAt))
		fmt.Printf("  url: %s\n", e.URL)
	}
	fmt.Printf("total: %d\n", len(entries))
	return nil
}

func runDownload(args []string) error {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	globals := addGlobalFlags(fs)
	rawID := fs.String("id", "", "video id")
	dir := fs.String("dir", "", "directory to save into (env VIDGEN_DOWNLOAD_DIR)")
	noFallback := fs.Bool("no-fallback", false, "fail instead of opening the video URL when the download fails")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := requireID(*rawID)
	if err != nil {
		return err
	}

	a, err := newApp(globals)
	if err != nil {
		return err
	}
	defer a.Close()

	facade := a.media
	if d := strings.TrimSpace(*dir); d != "" {
		facade = media.New(a.client, media.Options{BaseURL: a.cfg.APIURL, Dir: d, Logger: a.logger})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *noFallback {
		saved, err := facade.Download(ctx, id)
		if err != nil {
			return err
		}
		if *jsonOut {
			return printJSON(saved)
		}
		fmt.Printf("saved: %s (%s)\n", saved.Path, formatBytesIEC(saved.Bytes))
		return nil
	}

	res, err := facade.Save(ctx, id)
	if err != nil {
		return err
	}
	if *jsonOut {
		out := struct {
			media.Result
			PrimaryError string `json:"primary_error,omitempty"`
		}{Result: res}
		if res.PrimaryErr != nil {
			out.PrimaryError = res.PrimaryErr.Error()
		}
		return printJSON(out)
	}
	switch res.Strategy {
	case media.StrategyOpen:
		fmt.Printf("download failed: %v\n", res.PrimaryErr)
		fmt.Printf("opened: %s\n", res.Locator)
	default:
		fmt.Printf("saved: %s (%s)\n", res.Path, formatBytesIEC(res.Bytes))
	}
	return nil
}

func runOpen(args []string) error {
	fs := flag.NewFlagSet("open", flag.ContinueOnError)
	globals := addGlobalFlags(fs)
	rawID := fs.String("id", "", "video id")
	printOnly := fs.Bool("print", false, "print the video URL instead of opening it")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := requireID(*rawID)
	if err != nil {
		return err
	}

	a, err := newApp(globals)
	if err != nil {
		return err
	}
	defer a.Close()

	if *printOnly {
		fmt.Println(a.media.Locate(id))
		return nil
	}
	if err := a.media.Open(context.Background(), id); err != nil {
		return err
	}
	fmt.Printf("opened: %s\n", a.media.Locate(id))
	return nil
}

func runRemove(args []string) error {
	fs := flag.NewFlagSet("remove", flag.ContinueOnError)
	globals := addGlobalFlags(fs)
	rawID := fs.String("id", "", "video id")
	yes := fs.Bool("yes", false, "skip confirmation")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := requireID(*rawID)
	if err != nil {
		return err
	}
	if !*yes {
		ok, err := promptConfirm(fmt.Sprintf("remove video %q from the gallery? [y/N] ", id))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("aborted")
			return nil
		}
	}

	a, err := newApp(globals)
	if err != nil {
		return err
	}
	defer a.Close()

	removed, err := a.ledger.Remove(id)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{"id": id, "removed": removed})
	}
	if !removed {
		fmt.Printf("not in gallery: %s\n", id)
		return nil
	}
	fmt.Printf("removed: %s\n", id)
	return nil
}
