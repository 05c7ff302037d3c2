package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	corplink "github.com/corplink-go/go-corplink"
	"github.com/corplink-go/go-corplink/config"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var version = "dev"

const (
	flagConfig   = "config"
	flagLogLevel = "log-level"
)

func main() {
	app := &cli.App{
		Name:    "corplink",
		Usage:   "connect to a corplink VPN",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Value:   "config.json",
				Usage:   "path to the config file",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Value: "info",
				Usage: "log level (debug, info, warn, error)",
			},
		},
		Before: setLogLevel,
		Action: connect,
		Commands: []*cli.Command{
			{
				Name:   "connect",
				Usage:  "log in, connect and keep the tunnel up",
				Action: connect,
			},
			{
				Name:   "code",
				Usage:  "print the current 2fa code",
				Action: printCode,
			},
			{
				Name:   "password",
				Usage:  "store the account password in the system keyring",
				Action: storePassword,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("Failed to run")
	}
}

func setLogLevel(c *cli.Context) error {
	level, err := logrus.ParseLevel(c.String(flagLogLevel))
	if err != nil {
		return err
	}

	logrus.SetLevel(level)

	return nil
}

func connect(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(c.String(flagConfig))
	if err != nil {
		return cli.Exit(err, int(corplink.ExitPermission))
	}

	if cfg.DebugWG {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if cfg.Server == "" {
		if err := lookupServer(ctx, cfg); err != nil {
			return cli.Exit(err, int(corplink.ExitPermission))
		}
	}

	jar, err := corplink.NewCookieJar(cfg.CookieFile())
	if err != nil {
		return cli.Exit(fmt.Errorf("failed to open cookie jar: %w", err), int(corplink.ExitPermission))
	}

	m := corplink.New(
		corplink.WithServerURL(cfg.Server),
		corplink.WithCookieJar(jar),
		corplink.WithDebug(cfg.DebugWG),
		corplink.WithLogger(logrus.WithField("pkg", "resty")),
		corplink.WithPanicHandler(panicLogger{}),
	)
	defer m.Close()

	creds, err := cfg.Credentials()
	if err != nil {
		return cli.Exit(err, int(corplink.ExitPermission))
	}

	client, err := m.NewClient(creds, cfg, corplink.NewTerminalConsole())
	if err != nil {
		return cli.Exit(err, int(corplink.ExitPermission))
	}

	logrus.WithFields(logrus.Fields{
		"server":    m.ServerURL(),
		"interface": cfg.InterfaceName,
	}).Info("Connecting")

	engine := corplink.NewExecEngine(cfg.EngineCommand, cfg.InterfaceName)

	if cfg.DebugWG {
		out := logrus.WithField("pkg", "engine").WriterLevel(logrus.InfoLevel)
		defer out.Close()

		engine.Output = out
	}

	runner := corplink.NewRunner(
		client,
		engine,
		corplink.NewUAPIClient(corplink.NewUnixDialer(cfg.InterfaceName)),
	)

	code, err := runner.Run(ctx)
	if err != nil {
		logrus.WithError(err).Error("Run failed")
	}

	if code != corplink.ExitOK {
		return cli.Exit("", int(code))
	}

	return nil
}

func lookupServer(ctx context.Context, cfg *config.Config) error {
	m := corplink.New()
	defer m.Close()

	company, err := m.LookupCompany(ctx, cfg.CompanyName)
	if err != nil {
		return err
	}

	server := company.Domain
	if !strings.Contains(server, "://") {
		server = "https://" + server
	}

	return cfg.SetServer(server)
}

func printCode(c *cli.Context) error {
	cfg, err := config.Load(c.String(flagConfig))
	if err != nil {
		return err
	}

	if cfg.Code == "" {
		return fmt.Errorf("no 2fa secret in %s, log in first", c.String(flagConfig))
	}

	key, err := corplink.DecodeSeed(cfg.Code)
	if err != nil {
		return err
	}

	slot := corplink.TOTPOffset(key, 0)

	fmt.Printf("%s (%s left)\n", slot, time.Duration(slot.SecsLeft)*time.Second)

	return nil
}

func storePassword(c *cli.Context) error {
	cfg, err := config.Load(c.String(flagConfig))
	if err != nil {
		return err
	}

	console := corplink.NewTerminalConsole()

	console.Display(fmt.Sprintf("Password for %s:", cfg.Username))

	password, err := console.ReadSecret(c.Context)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	if password == "" {
		return errors.New("empty password")
	}

	if err := cfg.StorePassword(password); err != nil {
		return err
	}

	fmt.Println("Password stored in the system keyring")

	return nil
}

// panicLogger recovers panics of the tunnel activities so that teardown still runs.
type panicLogger struct{}

func (panicLogger) HandlePanic() {
	if r := recover(); r != nil {
		logrus.WithField("panic", r).Error("Recovered from panic")
	}
}
