package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"vidgen/internal/api"
	"vidgen/internal/model"
	"vidgen/internal/tracker"
	"vidgen/internal/version"
)

type trackReport struct {
	ID       model.JobID        `json:"id"`
	State    model.State        `json:"state"`
	Status   string             `json:"status,omitempty"`
	Progress int                `json:"progress"`
	Message  string             `json:"message,omitempty"`
	MediaURL string             `json:"media_url,omitempty"`
	Entry    *model.LedgerEntry `json:"entry,omitempty"`
	Error    string             `json:"error,omitempty"`
}

func runGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	globals := addGlobalFlags(fs)
	productURL := fs.String("url", "", "product page URL")
	aspect := fs.String("aspect", model.DefaultAspectRatio, "aspect ratio: 16:9|9:16|1:1")
	duration := fs.Int("duration", model.DefaultDurationSeconds, "video duration in seconds (15-60)")
	template := fs.String("template", model.DefaultTemplate, "template theme, see: vidgen templates")
	noTrack := fs.Bool("no-track", false, "submit only; print the video id and exit")
	showProgress := fs.Bool("progress", false, "live progress view when stdout is a terminal")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*productURL) == "" {
		return errors.New("--url is required")
	}

	a, err := newApp(globals)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	id, err := a.client.StartGeneration(ctx, *productURL, model.GenerateOptions{
		AspectRatio:     *aspect,
		DurationSeconds: *duration,
		Template:        *template,
	})
	if err != nil {
		return err
	}
	if *noTrack {
		if *jsonOut {
			return printJSON(map[string]string{"id": id.String(), "media_url": a.client.MediaURL(id)})
		}
		fmt.Printf("video_id: %s\n", id)
		fmt.Printf("next: vidgen track --id %s\n", id)
		return nil
	}
	if !*jsonOut {
		fmt.Printf("video_id: %s\n", id)
	}
	return trackJob(ctx, a, id, *showProgress && !*jsonOut, *jsonOut)
}

func runTrack(args []string) error {
	fs := flag.NewFlagSet("track", flag.ContinueOnError)
	globals := addGlobalFlags(fs)
	rawID := fs.String("id", "", "video id returned by generate")
	showProgress := fs.Bool("progress", false, "live progress view when stdout is a terminal")
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return trackJob(ctx, a, id, *showProgress && !*jsonOut, *jsonOut)
}

// trackJob polls id to a terminal state and reports it. Only completed
// jobs return nil.
func trackJob(ctx context.Context, a *app, id model.JobID, live, jsonOut bool) error {
	poller := a.newPoller()

	var (
		res tracker.Result
		err error
	)
	if live && stdoutIsTTY() {
		res, err = runTrackView(ctx, poller, id)
	} else {
		res, err = tracker.Wait(ctx, poller, id, plainTrackPrinter(jsonOut))
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, tracker.ErrStopped) {
		return fmt.Errorf("tracking of %s interrupted; resume with: vidgen track --id %s", id, id)
	}

	report := trackReport{
		ID:       id,
		State:    res.State,
		Status:   res.Snapshot.Status,
		Progress: res.Snapshot.Progress,
		Message:  res.Message,
		Entry:    res.Entry,
	}
	if res.Completed() {
		report.MediaURL = a.client.MediaURL(id)
	}
	if err != nil {
		report.Error = err.Error()
	}
	if jsonOut {
		if perr := printJSON(report); perr != nil {
			return perr
		}
		return err
	}

	switch res.State {
	case model.StateCompleted:
		fmt.Printf("completed: %s\n", id)
		fmt.Printf("  media: %s\n", report.MediaURL)
		if res.Entry != nil {
			fmt.Println("  saved to gallery")
		}
		fmt.Printf("next: vidgen download --id %s\n", id)
		if err != nil {
			return fmt.Errorf("video completed but the gallery was not updated: %w", err)
		}
		return nil
	default:
		if err != nil {
			return err
		}
		return fmt.Errorf("tracking ended in state %s", res.State)
	}
}

func plainTrackPrinter(quiet bool) func(tracker.Update) {
	if quiet {
		return nil
	}
	last := ""
	return func(u tracker.Update) {
		line := fmt.Sprintf("%s  %-10s %3d%%", u.ID, u.State, u.Snapshot.Progress)
		if u.Err != nil {
			line = fmt.Sprintf("%s  %-10s retrying (%d): %v", u.ID, u.State, u.TransientFailures, u.Err)
		}
		if line == last {
			return
		}
		last = line
		fmt.Println(line)
	}
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	globals := addGlobalFlags(fs)
	rawID := fs.String("id", "", "video id")
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

	snap, err := a.client.FetchStatus(context.Background(), id)
	if api.IsNotFound(err) {
		return &model.JobNotFoundError{ID: id}
	}
	if err != nil {
		return err
	}
	step := model.Transition(model.StateChecking, model.ClassifySnapshot(id, snap))

	if *jsonOut {
		return printJSON(struct {
			ID       model.JobID    `json:"id"`
			State    model.State    `json:"state"`
			Snapshot model.Snapshot `json:"snapshot"`
		}{ID: id, State: step.Next, Snapshot: snap})
	}
	fmt.Printf("%s [%s]\n", id, step.Next)
	fmt.Printf("  status: %s\n", snap.Status)
	fmt.Printf("  progress: %d%%\n", snap.Progress)
	if snap.Message != "" {
		fmt.Printf("  message: %s\n", snap.Message)
	}
	if step.Next == model.StateCompleted {
		fmt.Printf("  media: %s\n", a.client.MediaURL(id))
	}
	return nil
}

func runTemplates(args []string) error {
	fs := flag.NewFlagSet("templates", flag.ContinueOnError)
	globals := addGlobalFlags(fs)
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

	templates, err := a.client.FetchTemplates(context.Background())
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(templates)
	}
	if len(templates) == 0 {
		fmt.Println("no templates available")
		return nil
	}
	for _, t := range templates {
		name := t.Name
		if t.Theme != "" {
			name += " (" + t.Theme + ")"
		}
		fmt.Println(name)
		if t.Description != "" {
			fmt.Printf("  %s\n", t.Description)
		}
	}
	return nil
}

func runVersion(args []string) error {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]string{"version": version.Value})
	}
	fmt.Println(version.UserAgent())
	return nil
}
