package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"

	geiger "github.com/slomkowski/usb-geiger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "status":
		err = statusCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("geiger-edge %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	flow, err := geiger.Conf(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := flow.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := geiger.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	fmt.Printf("config %s looks good: interval %.2fs, tube %.0fV\n",
		*cfgPath, cfg.Monitor.Interval, cfg.Device.Tube.TubeVoltage)
	return nil
}

var (
	statusTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57")).
			Padding(0, 1)
	statusLabel = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(12)
	statusValue = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)
	statusBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

func statusCommand(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := geiger.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	link, err := geiger.OpenDevice(cfg.Device.USB)
	if err != nil {
		return err
	}
	defer link.Close()

	st, err := geiger.ReadStatus(link, cfg.Device.Tube)
	if err != nil {
		return err
	}
	fmt.Println(renderStatus(st))
	return nil
}

func renderStatus(st geiger.Status) string {
	row := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, statusLabel.Render(label), statusValue.Render(value))
	}
	newCount := "no"
	if st.NewCount {
		newCount = "yes"
	}
	body := lipgloss.JoinVertical(lipgloss.Left,
		statusTitle.Render("USB GEIGER"),
		"",
		row("Radiation", fmt.Sprintf("%.3f uSv/h", st.Radiation)),
		row("CPM", fmt.Sprintf("%.2f", st.CPM)),
		row("Interval", fmt.Sprintf("%.2f s", st.Interval)),
		row("Voltage", fmt.Sprintf("%.0f V", st.Voltage)),
		row("New count", newCount),
	)
	return statusBox.Render(body)
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

var statsMetrics = []string{
	"geiger_cycles_total",
	"geiger_cpm",
	"geiger_radiation_usvh",
	"geiger_link_failures_total",
	"geiger_link_recoveries_total",
	"geiger_sink_failures_total",
}

func printMetricsSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	values, err := scanMetrics(bufio.NewScanner(resp.Body), statsMetrics)
	if err != nil {
		return err
	}

	fmt.Printf("[%s] cycles=%.0f cpm=%.2f usvh=%.3f link_failures=%.0f recoveries=%.0f sink_failures=%.0f\n",
		time.Now().Format(time.RFC3339),
		values["geiger_cycles_total"],
		values["geiger_cpm"],
		values["geiger_radiation_usvh"],
		values["geiger_link_failures_total"],
		values["geiger_link_recoveries_total"],
		values["geiger_sink_failures_total"],
	)
	return nil
}

func scanMetrics(scanner *bufio.Scanner, names []string) (map[string]float64, error) {
	values := make(map[string]float64, len(names))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for _, key := range names {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %g", &value); err == nil {
					values[key] = value
				}
			}
		}
	}
	return values, scanner.Err()
}

func printUsage() {
	fmt.Printf(`USB Geiger edge monitor

Usage:
  geiger-edge <command> [flags]

Commands:
  run        Program the counter and start pushing measurements to the configured sinks
  validate   Load and validate a config file without touching the device
  status     Read the counter registers once and print them
  stats      Poll the Prometheus metrics endpoint and print live counters

Examples:
  geiger-edge run -config ./data/config.yaml
  geiger-edge validate -config ./data/config.yaml
  geiger-edge status -config ./data/config.yaml
  geiger-edge stats -url http://localhost:9100/metrics -interval 5s
`)
}
