package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"wmnmon/internal/api"
	"wmnmon/internal/archive"
	"wmnmon/internal/bus"
	"wmnmon/internal/config"
	"wmnmon/internal/explain"
	"wmnmon/internal/export"
	"wmnmon/internal/monitor"
	"wmnmon/internal/server"
	"wmnmon/internal/store"
	"wmnmon/internal/stunutil"
	"wmnmon/internal/telemetry"
)

const usage = `wmnmon - wireless mesh network telemetry collector

Usage:
  wmnmon init --config <path> [--broker <host>] [--listen <addr>]
  wmnmon run --config <path>
  wmnmon status [--addr <host:port>]
  wmnmon devices [--addr <host:port>]
  wmnmon trend --device <id> [--addr <host:port>]
  wmnmon incidents [--addr <host:port>]
  wmnmon ask --device <id> --question <text> [--addr <host:port>]
  wmnmon export csv --device <id> --out <file> [--series latency|score] [--addr <host:port>]
  wmnmon doctor --config <path>
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "-h", "--help", "help":
		fmt.Print(usage)
	case "init":
		handleInit(os.Args[2:])
	case "run":
		handleRun(os.Args[2:])
	case "status":
		handleStatus(os.Args[2:])
	case "devices":
		handleDevices(os.Args[2:])
	case "trend":
		handleTrend(os.Args[2:])
	case "incidents":
		handleIncidents(os.Args[2:])
	case "ask":
		handleAsk(os.Args[2:])
	case "export":
		handleExport(os.Args[2:])
	case "doctor":
		handleDoctor(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func handleInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	broker := fs.String("broker", "", "MQTT broker host")
	listen := fs.String("listen", "", "query API listen address")
	_ = fs.Parse(args)

	if *configPath == "" {
		fatalf("--config is required")
	}

	cfg := defaultConfig()
	if *broker != "" {
		cfg.Broker.Host = *broker
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if err := config.Save(*configPath, cfg); err != nil {
		fatalf("write config: %v", err)
	}
	fmt.Printf("wrote %s\n", *configPath)
}

func defaultConfig() config.Config {
	var cfg config.Config
	config.ApplyDefaults(&cfg)
	return cfg
}

func handleRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatalf("%v", err)
	}
	if err := config.Validate(cfg); err != nil {
		fatalf("invalid config: %v", err)
	}

	st := store.New(cfg.Store.HistoryCapacity)
	mon := monitor.New(st, cfg.IncidentRules())

	var explainer *explain.Client
	if cfg.Explainer.BaseURL != "" {
		explainer = explain.NewClient(cfg.Explainer.BaseURL, cfg.ExplainTimeout())
	}

	var arc *archive.Archive
	if cfg.Archive.Path != "" {
		arc, err = archive.Open(cfg.Archive.Path)
		if err != nil {
			fatalf("open archive: %v", err)
		}
		defer arc.Close()
		log.Printf("archiving messages to %s", cfg.Archive.Path)
	}

	var srv *server.Server
	handler := func(msg telemetry.Message) {
		st.Ingest(msg)
		if arc != nil {
			if err := arc.Log(msg); err != nil {
				log.Printf("archive message: %v", err)
			}
		}
		srv.Notify()
	}

	sub := bus.NewSubscriber(cfg.Broker, handler)
	srv = server.New(cfg.Server.Listen, mon, sub, explainer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() { errCh <- sub.Run(ctx) }()
	go func() { errCh <- srv.Run(ctx) }()

	select {
	case <-ctx.Done():
		log.Printf("shutting down")
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			log.Printf("fatal: %v", err)
		}
		stop()
	}

	// Let the other goroutine finish its shutdown path.
	drain := time.After(3 * time.Second)
	for i := 0; i < 2; i++ {
		select {
		case <-errCh:
		case <-drain:
			return
		}
	}
}

func handleStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	addr := fs.String("addr", config.DefaultListen, "collector address")
	_ = fs.Parse(args)

	client := api.NewClient(*addr)
	status, err := client.Status(context.Background())
	if err != nil {
		fatalf("%v", err)
	}

	state := "connecting"
	if status.Connected {
		state = "connected"
	}
	fmt.Printf("broker: %s\n", state)
	fmt.Printf("devices: %d\n", status.Devices)
	if status.LastMessageAt != "" {
		fmt.Printf("last message: %s\n", status.LastMessageAt)
	}
}

func handleDevices(args []string) {
	fs := flag.NewFlagSet("devices", flag.ExitOnError)
	addr := fs.String("addr", config.DefaultListen, "collector address")
	_ = fs.Parse(args)

	client := api.NewClient(*addr)
	resp, err := client.Devices(context.Background())
	if err != nil {
		fatalf("%v", err)
	}
	if len(resp.Devices) == 0 {
		fmt.Println("no devices")
		return
	}

	fmt.Printf("%-24s %7s %9s %11s %8s %7s\n", "DEVICE", "HEALTH", "RSSI", "LATENCY", "LOSS", "AGE")
	for _, row := range resp.Devices {
		fmt.Printf("%-24s %7s %9s %11s %8s %6ds\n",
			row.Device,
			fmtInt(row.Health),
			fmtFloat(row.RSSIdBm, "dBm"),
			fmtFloat(row.LatencyMs, "ms"),
			fmtFloat(row.LossPct, "%"),
			row.AgeSec,
		)
	}
}

func handleTrend(args []string) {
	fs := flag.NewFlagSet("trend", flag.ExitOnError)
	addr := fs.String("addr", config.DefaultListen, "collector address")
	device := fs.String("device", "", "device id")
	_ = fs.Parse(args)

	if *device == "" {
		fatalf("--device is required")
	}

	client := api.NewClient(*addr)
	resp, err := client.Trend(context.Background(), *device)
	if err != nil {
		fatalf("%v", err)
	}

	samples := resp.Latency.Samples
	if len(samples) == 0 {
		fmt.Println("no latency history")
		return
	}
	for i, s := range samples {
		fmt.Printf("%s %8.1f ms (avg %6.1f)\n",
			s.Timestamp.Format(time.RFC3339), s.Value, resp.Latency.MovingAvg[i].Value)
	}
}

func handleIncidents(args []string) {
	fs := flag.NewFlagSet("incidents", flag.ExitOnError)
	addr := fs.String("addr", config.DefaultListen, "collector address")
	_ = fs.Parse(args)

	client := api.NewClient(*addr)
	resp, err := client.Incidents(context.Background())
	if err != nil {
		fatalf("%v", err)
	}
	if len(resp.Incidents) == 0 {
		fmt.Println("no incidents")
		return
	}
	for _, inc := range resp.Incidents {
		fmt.Printf("%-4s %-16s %-24s %s\n", inc.Severity, inc.Type, inc.DeviceID, inc.Detail)
	}
}

func handleAsk(args []string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	addr := fs.String("addr", config.DefaultListen, "collector address")
	device := fs.String("device", "", "device id")
	question := fs.String("question", "", "question text")
	_ = fs.Parse(args)

	if *device == "" || *question == "" {
		fatalf("--device and --question are required")
	}

	client := api.NewClient(*addr)
	answer, err := client.Explain(context.Background(), api.ExplainRequest{
		DeviceID: *device,
		Question: *question,
	})
	if err != nil {
		fatalf("%v", err)
	}

	var pretty map[string]any
	if err := json.Unmarshal(answer, &pretty); err == nil {
		out, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(out))
		return
	}
	fmt.Println(string(answer))
}

func handleExport(args []string) {
	if len(args) == 0 || args[0] != "csv" {
		fatalf("export subcommand required (csv)")
	}

	fs := flag.NewFlagSet("export csv", flag.ExitOnError)
	addr := fs.String("addr", config.DefaultListen, "collector address")
	device := fs.String("device", "", "device id")
	out := fs.String("out", "", "output file")
	series := fs.String("series", "latency", "series to export: latency|score")
	_ = fs.Parse(args[1:])

	if *device == "" || *out == "" {
		fatalf("--device and --out are required")
	}

	client := api.NewClient(*addr)
	resp, err := client.Trend(context.Background(), *device)
	if err != nil {
		fatalf("%v", err)
	}

	samples := resp.Latency.Samples
	header := "latency_ms"
	if *series == "score" {
		samples = resp.Scores
		header = "score"
	} else if *series != "latency" {
		fatalf("unknown series %q", *series)
	}

	file, err := os.Create(*out)
	if err != nil {
		fatalf("%v", err)
	}
	defer file.Close()

	if err := export.WriteSamplesCSV(file, *device, header, samples); err != nil {
		fatalf("write csv: %v", err)
	}
	fmt.Printf("wrote %d samples to %s\n", len(samples), *out)
}

func handleDoctor(args []string) {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatalf("%v", err)
	}

	brokerAddr := net.JoinHostPort(cfg.Broker.Host, fmt.Sprintf("%d", cfg.Broker.Port))
	conn, err := net.DialTimeout("tcp", brokerAddr, 5*time.Second)
	if err != nil {
		fmt.Printf("broker %s: unreachable (%v)\n", brokerAddr, err)
	} else {
		conn.Close()
		fmt.Printf("broker %s: reachable\n", brokerAddr)
	}

	if len(cfg.Doctor.STUNServers) == 0 {
		fmt.Println("public address: skipped (no stun_servers configured)")
		return
	}
	res, err := stunutil.Discover(context.Background(), cfg.Doctor.STUNServers, 5*time.Second)
	if err != nil {
		fmt.Printf("public address: discovery failed (%v)\n", err)
		return
	}
	fmt.Printf("public address: %s (nat: %s)\n", res.PublicAddr, res.NATType)
}

func loadConfig(path string) (config.Config, error) {
	if strings.TrimSpace(path) == "" {
		return config.Config{}, fmt.Errorf("--config is required")
	}
	return config.Load(path)
}

func fmtInt(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func fmtFloat(v *float64, unit string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f%s", *v, unit)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
