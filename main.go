package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aerth/contactd/config"
	"github.com/aerth/contactd/keys"
	"github.com/aerth/contactd/logger"
	"github.com/aerth/contactd/system"
	"github.com/urfave/cli/v2"
)

var Version = "v0.1.0"

var info = "contactd contact form daemon"
var logo = "" +
	"                   __             __      __\n" +
	"  _________  ____  / /_____ ______/ /_____/ /\n" +
	" / ___/ __ \\/ __ \\/ __/ __ `/ ___/ __/ __  /   " + info + "\n" +
	"/ /__/ /_/ / / / / /_/ /_/ / /__/ /_/ /_/ /\n" +
	"\\___/\\____/_/ /_/\\__/\\__,_/\\___/\\__/\\__,_/\n\n"

func main() {
	app := &cli.App{
		Name:    "contactd",
		Usage:   info,
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "address to serve (overrides meta.listen)"},
			&cli.StringFlag{Name: "conf", Usage: "path to config.json", EnvVars: []string{"CONTACTD_CONFIG"}},
			&cli.BoolFlag{Name: "dev", Usage: "development mode (insecure)"},
			&cli.BoolFlag{Name: "dumpconfig", Usage: "dump config and exit"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "contactd:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	// read config file and environment
	cfg, err := config.Load(c.String("conf"))
	if err != nil {
		return err
	}
	cfg.Meta.Version = "contactd " + Version

	// override config with flags
	if c.Bool("dev") {
		cfg.Meta.DevelopmentMode = true
	}
	if addr := c.String("addr"); addr != "" {
		cfg.Meta.ListenAddr = addr
	}

	log := logger.New(cfg.Meta.DevelopmentMode)
	if err := config.CheckConfig(cfg, log); err != nil {
		return err
	}

	if c.Bool("dumpconfig") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent(" ", " ")
		return enc.Encode(cfg)
	}

	fmt.Fprint(os.Stderr, logo)
	if cfg.Meta.DevelopmentMode {
		log.Warn().Msg("DEV MODE")
	}

	secret, err := keys.Secret(cfg.Sec.SecretKey)
	if err != nil {
		return err
	}
	k, err := keys.Derive(secret)
	if err != nil {
		return err
	}

	s, closer, err := system.New(system.Options{Config: *cfg, Keys: k, Log: logger.Component(log, "system")})
	if err != nil {
		log.Fatal().Err(err).Msg("boot error")
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx, s.Router())
}
