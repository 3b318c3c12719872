package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"alert-dispatch/internal/db/models"
	"alert-dispatch/pkg/alert"
	"alert-dispatch/pkg/config"
	"alert-dispatch/pkg/httpclient"
	"alert-dispatch/pkg/notification"
	"alert-dispatch/pkg/restart"
)

const version = "1.0.0"

func main() {
	os.Exit(execute())
}

// execute returns the process exit code so deferred cleanup runs before exit
func execute() int {
	// Define CLI flags
	var (
		configFile = flag.String("config", "configs/alert.yaml", "Path to configuration file")
		alertName  = flag.String("alert", "", "Send a test alert for the named alert definition")
		jobName    = flag.String("job", "", "Job name used in the alert, or the job to restart")
		state      = flag.String("state", "", "Send a state change alert for this state instead of a test alert")
		doRestart  = flag.Bool("restart", false, "Restart the job given by -job")
		showVer    = flag.Bool("version", false, "Show version and exit")
		validate   = flag.Bool("validate", false, "Validate configuration and exit")
	)

	flag.Parse()

	// Show version
	if *showVer {
		fmt.Printf("alert-dispatch version %s\n", version)
		return 0
	}

	// Load configuration
	fmt.Printf("Loading configuration from: %s\n", *configFile)
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load configuration: %v\n", err)
		return 1
	}

	// Validate only
	if *validate {
		fmt.Println("Configuration is valid")
		printConfigSummary(cfg)
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := httpclient.New(cfg.HTTP)

	switch {
	case *doRestart:
		return runRestart(ctx, cfg, client, *jobName)
	case *alertName != "":
		return runAlert(ctx, cfg, client, *alertName, *jobName, *state)
	default:
		fmt.Fprintln(os.Stderr, "Error: one of -alert, -restart or -validate is required")
		flag.Usage()
		return 2
	}
}

func runAlert(ctx context.Context, cfg *config.Config, client *httpclient.Client, name, jobName, state string) int {
	def, err := cfg.GetAlert(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	params, err := def.Params()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	var mailer notification.Mailer
	if d := notification.NewDialer(cfg.SMTP); d != nil {
		mailer = d
	}
	dispatcher := alert.NewDispatcher(alert.DispatcherOptions{
		Resolver: notification.NewResolver(notification.Options{
			Client:      client,
			Mailer:      mailer,
			MailFrom:    cfg.SMTP.From,
			DingTalkURL: cfg.Robots.DingTalkURL,
			WeComURL:    cfg.Robots.WeComURL,
			LarkURL:     cfg.Robots.LarkURL,
		}),
	})

	now := time.Now()
	tpl := alert.NewTestTemplate(def.Name, now)
	if state != "" {
		appState := models.AppState(strings.ToUpper(state))
		if !appState.Valid() {
			fmt.Fprintf(os.Stderr, "Error: unknown state %s\n", state)
			return 1
		}
		if jobName == "" {
			jobName = "alert-test"
		}
		tpl = alert.NewStateTemplate(&models.Application{JobName: jobName, StartTime: &now}, appState, now)
	}

	channels := make([]string, 0)
	for _, t := range params.Types() {
		channels = append(channels, t.String())
	}
	fmt.Printf("Sending %q to %s via [%s]\n", tpl.Subject, def.Name, strings.Join(channels, ", "))

	ok, err := dispatcher.Dispatch(ctx, params, tpl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Alert failed:")
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Fprintf(os.Stderr, "  - %s\n", line)
		}
		return 1
	}
	if !ok {
		fmt.Fprintln(os.Stderr, "Alert failed")
		return 1
	}

	fmt.Println("Alert sent successfully")
	return 0
}

func runRestart(ctx context.Context, cfg *config.Config, client *httpclient.Client, jobName string) int {
	if jobName == "" {
		fmt.Fprintln(os.Stderr, "Error: -job is required with -restart")
		return 2
	}

	r := restart.NewRestarter(client, restart.Config{
		BaseURL:       cfg.Restart.BaseURL,
		Authorization: cfg.Restart.Authorization,
		TeamID:        cfg.Restart.TeamID,
	})
	msg, err := r.Restart(ctx, jobName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Restart failed: %v\n", err)
		return 1
	}

	fmt.Printf("%s: %s\n", jobName, msg)
	return 0
}

func printConfigSummary(cfg *config.Config) {
	fmt.Println("\n" + strings.Repeat("-", 60))
	fmt.Println("Configuration Summary")
	fmt.Println(strings.Repeat("-", 60))

	fmt.Printf("HTTP pool: %d total, %d per route, acquire timeout %v\n",
		cfg.HTTP.MaxTotal, cfg.HTTP.MaxPerRoute, cfg.HTTP.AcquireTimeout)
	if cfg.HTTP.QPS > 0 {
		fmt.Printf("Rate limit: %d QPS\n", cfg.HTTP.QPS)
	}
	if cfg.SMTP.Host != "" {
		fmt.Printf("SMTP: %s:%d\n", cfg.SMTP.Host, cfg.SMTP.Port)
	}

	fmt.Printf("\nAlerts: %d\n", len(cfg.Alerts))
	for _, def := range cfg.Alerts {
		fmt.Printf("  - %s: %s\n", def.Name, strings.Join(def.Types, ", "))
	}
	fmt.Println(strings.Repeat("-", 60))
}
