package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	smcp "github.com/zamadev/sandbox/internal/mcp"
	"github.com/zamadev/sandbox/internal/metrics"
	"github.com/zamadev/sandbox/internal/server"
)

const banner = `
 ___   _   _  _ ___  ___  _____  __
/ __| /_\ | \| |   \| _ )/ _ \ \/ /
\__ \/ _ \| .' | |) | _ \ (_) >  <
|___/_/ \_\_|\_|___/|___/\___/_/\_\
`

func newServeCmd() *cobra.Command {
	var (
		dev        bool
		background bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the developer console API server",
		Long:  "Start the HTTP server that exposes sessions, API keys, usage analytics and integration docs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if background {
				return runServeBackground()
			}
			return runServe(dev)
		},
	}

	cmd.Flags().IntP("port", "p", 8080, "HTTP listen port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging)")
	cmd.Flags().BoolVar(&background, "background", false, "Detach and run the server in the background")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(dev bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log, dev)

	fmt.Print(banner)
	fmt.Println()

	var (
		rec      metrics.Recorder = metrics.Nop{}
		gatherer prometheus.Gatherer
	)
	if cfg.Server.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		rec = metrics.NewCollector(reg)
		gatherer = reg
	}

	ctx := context.Background()
	a, err := openApp(ctx, cfg, logger, rec)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.kv.Ping(ctx); err != nil {
		logger.Warn("profile storage is not reachable", "driver", cfg.Storage.Driver, "error", err)
	}

	maxBody, _ := cfg.MaxBodyBytes()
	srvCfg := server.Config{
		Host:             cfg.Server.Host,
		Port:             cfg.Server.Port,
		PublicURL:        cfg.Server.PublicURL,
		ShutdownTimeout:  cfg.ShutdownTimeout(),
		CORSOrigins:      cfg.Server.CORS.Origins,
		MaxBodySize:      maxBody,
		SessionRateLimit: cfg.Server.RateLimit.Session,
		KeyRateLimit:     cfg.Server.RateLimit.KeyCreate,
	}

	deps := server.Deps{
		Auth:     a.auth,
		Keys:     a.keys,
		Usage:    a.usage,
		Store:    a.kv,
		Docs:     a.docs,
		Features: cfg.FeatureFlags(),
		Metrics:  rec,
		Gatherer: gatherer,
	}
	if cfg.MCP.MountHTTP {
		deps.MCP = smcp.NewMCPServer(a.auth, a.keys, a.usage, a.docs, versionString(), logger).Handler()
	}

	srv := server.New(srvCfg, deps, logger)

	if err := writePID(cfg.Storage.DataDir, os.Getpid()); err != nil {
		logger.Warn("failed to write pid file", "error", err)
	}
	defer removePID(cfg.Storage.DataDir)

	base := fmt.Sprintf("http://%s:%d", displayHost(cfg.Server.Host), cfg.Server.Port)
	fmt.Printf("→ Sandbox %s\n", versionString())
	fmt.Printf("→ Listening on %s\n", base)
	fmt.Printf("→ OpenAPI:    %s/openapi.json\n", base)
	fmt.Printf("→ Health:     %s/healthz\n", base)
	if gatherer != nil {
		fmt.Printf("→ Metrics:    %s/metrics\n", base)
	}
	if deps.MCP != nil {
		fmt.Printf("→ MCP:        %s/mcp\n", base)
	}
	fmt.Printf("→ Storage:    %s\n", cfg.Storage.Driver)
	fmt.Println()

	return srv.ListenAndServe()
}

// runServeBackground re-executes serve detached from the terminal, with its
// output sent to the log file in the data directory.
func runServeBackground() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir := cfg.Storage.DataDir
	if pid, err := readPID(dir); err == nil && isProcessRunning(pid) {
		return fmt.Errorf("server is already running (PID %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	logFile, err := os.OpenFile(logFilePath(dir), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	args := []string{"serve", "--data-dir", dir}
	if cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	args = append(args,
		"--host", cfg.Server.Host,
		"--port", fmt.Sprint(cfg.Server.Port),
	)

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setSysProcAttr(child)
	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	fmt.Printf("Sandbox server started in the background (PID %d)\n", child.Process.Pid)
	fmt.Printf("  Logs: %s\n", logFilePath(dir))
	fmt.Println("  Stop it with 'sandbox stop'.")
	return child.Process.Release()
}

func displayHost(host string) string {
	if host == "" || host == "0.0.0.0" {
		return "localhost"
	}
	return host
}
