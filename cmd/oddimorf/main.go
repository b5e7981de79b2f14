// Package main is the entry point for the oddimorf radar subsystem
// process.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/RaedanWulfe/oddimorf/internal/buildinfo"
	"github.com/RaedanWulfe/oddimorf/internal/config"
	"github.com/RaedanWulfe/oddimorf/internal/control"
	"github.com/RaedanWulfe/oddimorf/internal/controller"
	"github.com/RaedanWulfe/oddimorf/internal/egress"
	"github.com/RaedanWulfe/oddimorf/internal/ingress"
	"github.com/RaedanWulfe/oddimorf/internal/pipe"
	"github.com/RaedanWulfe/oddimorf/internal/subsystem"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if flag.NArg() > 0 {
		switch flag.Arg(0) {
		case "serve":
			runServe(logger, *configPath)
		case "version":
			fmt.Println(buildinfo.String())
			for k, v := range buildinfo.Info() {
				fmt.Printf("  %-12s %s\n", k+":", v)
			}
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n", flag.Arg(0))
			os.Exit(1)
		}
		return
	}

	fmt.Println("oddimorf - radar subsystem control and data plane")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve    Connect to the broker and run the subsystem")
	fmt.Println("  version  Show version")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

func runServe(logger *slog.Logger, configPath string) {
	logger.Info("starting oddimorf", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "branch", buildinfo.GitBranch, "built", buildinfo.BuildTime)

	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			logger.Error("invalid log_level in config", "error", err)
			os.Exit(1)
		}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: config.ReplaceLogLevelNames,
		}))
	}

	moduleUID, err := config.NormalizedUID(cfg.UID)
	if err != nil {
		logger.Error("invalid uid in config", "error", err)
		os.Exit(1)
	}

	logger.Info("config loaded", "path", cfgPath, "uid", moduleUID, "name", cfg.Name, "broker", cfg.Broker.IP)

	controls := make([]control.Control, 0, len(cfg.ControlSchema))
	offset := 0
	for _, entry := range cfg.ControlSchema {
		ctl, err := control.FromConfig(entry)
		if err != nil {
			logger.Error("failed to build control", "error", err)
			os.Exit(1)
		}
		ctl.SetMapRange(offset)
		offset = ctl.EndPos()
		controls = append(controls, ctl)
	}

	dataItems := make([]*subsystem.DataItem, 0, len(cfg.DataSchema))
	outputPipes := pipe.NewSet()
	for _, d := range cfg.DataSchema {
		item, err := subsystem.NewDataItem(d.Key, d.DataTypes)
		if err != nil {
			logger.Error("failed to build data item", "key", d.Key, "error", err)
			os.Exit(1)
		}
		dataItems = append(dataItems, item)
		outputPipes.Add(d.Key, pipe.New(item.Descriptor()))
	}

	brokerProtocol := subsystem.ProtocolMQTT
	if cfg.Broker.UseTLS {
		brokerProtocol = subsystem.ProtocolMQTTS
	}
	broker := subsystem.Endpoint{Protocol: brokerProtocol, Address: cfg.Broker.IP, Port: cfg.Broker.Port}

	ctx := subsystem.New(moduleUID, cfg.Name, broker, controls, dataItems)

	in := ingress.New(logger)
	eg := egress.New(logger)
	ctx.SetChannels(in, eg)

	ctl := controller.New(logger, ctx, in, eg, outputPipes)

	runCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := ctl.Run(runCtx); err != nil {
		logger.Error("controller exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("oddimorf stopped")
}
