package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/circuitbreakers/printwatch/internal/alert"
	"github.com/circuitbreakers/printwatch/internal/analysis"
	"github.com/circuitbreakers/printwatch/internal/capture"
	"github.com/circuitbreakers/printwatch/internal/config"
	"github.com/circuitbreakers/printwatch/internal/history"
	"github.com/circuitbreakers/printwatch/internal/monitor"
	"github.com/circuitbreakers/printwatch/internal/server"
	"github.com/circuitbreakers/printwatch/internal/tray"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	withTray := flag.Bool("tray", false, "show the system tray icon")
	flag.Parse()

	fmt.Println("PrintWatch - 3D Printer Monitor")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	w := cfg.Watchdog

	store, err := history.New(w.DataDir, w.MaxHistoryEntries)
	if err != nil {
		log.Fatalf("Failed to initialize history store: %v", err)
	}
	defer store.Close()

	device := capture.NewDevice(
		capture.DefaultBackends(w.CameraID),
		time.Duration(w.CaptureTimeoutSeconds)*time.Second,
	)
	if err := device.Initialize(); err != nil {
		// The scheduler keeps retrying, so a missing camera at boot
		// is not fatal.
		log.Printf("Camera not available yet: %v", err)
	}
	defer device.Release()

	retry := analysis.DefaultRetryPolicy()
	retry.MaxRetries = w.MaxRetries
	client := analysis.NewClient(w.APIKey, w.APIURL, analysis.DefaultPrompt, retry)

	alerter := alert.NewDispatcher(w.WebhookURL, time.Duration(w.AlertCooldownMinutes)*time.Minute)

	sched := monitor.NewScheduler(device, client, store, alerter, w.IntervalSeconds)
	sched.Start()
	defer sched.Stop()

	webDir := findWebDir()
	if webDir != "" {
		fmt.Printf("Serving static files from: %s\n", webDir)
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		Monitor:   sched,
		Frames:    device,
		Store:     store,
		Alerter:   alerter,
	})
	defer srv.Close()

	go func() {
		fmt.Printf("Starting server on %s\n", w.ListenAddr)
		if err := srv.ListenAndServe(w.ListenAddr); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	if *withTray {
		runTray(sched, w.ListenAddr)
		return
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	fmt.Println("Shutting down")
}

// runTray blocks on the tray event loop until Quit is selected.
func runTray(sched *monitor.Scheduler, listenAddr string) {
	t := tray.New()
	t.OnToggle(func(monitoring bool) {
		if monitoring {
			sched.Resume()
		} else {
			sched.Pause()
		}
	})
	t.OnDashboard(func() {
		openBrowser("http://localhost" + listenAddr)
	})
	t.OnQuit(func() {
		fmt.Println("Shutting down")
	})

	go func() {
		for range time.Tick(5 * time.Second) {
			st := sched.Status()
			if st.LastAnalysis == "" {
				continue
			}
			t.SetLastStatus(fmt.Sprintf("%s (%.0f%%)", st.StatusEnum, st.Confidence*100))
		}
	}()

	t.Run()
}

// openBrowser opens the given URL with the platform's default opener.
func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Printf("Failed to open browser: %v", err)
	}
}

// findWebDir searches for the web directory in common locations.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".printwatch", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
