package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/NeillJohnston/macropinna/internal/auth"
	"github.com/NeillJohnston/macropinna/internal/bus"
	"github.com/NeillJohnston/macropinna/internal/config"
	"github.com/NeillJohnston/macropinna/internal/device"
	apperrors "github.com/NeillJohnston/macropinna/internal/errors"
	"github.com/NeillJohnston/macropinna/internal/input"
	"github.com/NeillJohnston/macropinna/internal/ipc"
	"github.com/NeillJohnston/macropinna/internal/mdns"
	"github.com/NeillJohnston/macropinna/internal/netaddr"
	"github.com/NeillJohnston/macropinna/internal/server"
	hostTLS "github.com/NeillJohnston/macropinna/internal/tls"
)

// sweepInterval is how often stale initiated and approved entries are dropped.
const sweepInterval = 30 * time.Second

// ServeConfig holds the flags of the serve command.
type ServeConfig struct {
	ConfigPath   string
	Port         int
	InternalPort int
	Socket       string
	StaticDir    string
	InputBackend string
	LogFile      string
	Mdns         bool
	NoTLS        bool
	InitConfig   bool
}

// resolveServeConfig parses flags, loads the config file and applies flags
// that were set explicitly on top of it.
func resolveServeConfig(args []string, stderr io.Writer) (*config.Config, *ServeConfig, error) {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)

	sc := &ServeConfig{}
	fs.StringVar(&sc.ConfigPath, "config", "", "Path to config file (default: <config dir>/macropinna/remote.toml)")
	fs.IntVar(&sc.Port, "port", 0, "External HTTPS port (default: 5174)")
	fs.IntVar(&sc.InternalPort, "internal-port", 0, "Loopback control port (default: 51740)")
	fs.StringVar(&sc.Socket, "socket", "", "Control socket path (default: <config dir>/macropinna/control.sock)")
	fs.StringVar(&sc.StaticDir, "static-dir", "", "Web client directory served at / (default: ./remote-static)")
	fs.StringVar(&sc.InputBackend, "input", "", "Input backend: auto, uinput or log (default: auto)")
	fs.StringVar(&sc.LogFile, "log-file", "", "Write logs to this file instead of stderr")
	fs.BoolVar(&sc.Mdns, "mdns", false, "Advertise on the local network via mDNS")
	fs.BoolVar(&sc.NoTLS, "no-tls", false, "Serve plain HTTP (only behind a TLS-terminating proxy)")
	fs.BoolVar(&sc.InitConfig, "init-config", false, "Write a starter config file if none exists")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: macropinna-remote serve [options]\n\nRun the remote server until interrupted.\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nFlags override values from the config file.\n")
	}

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	if sc.InitConfig {
		path := sc.ConfigPath
		if path == "" {
			var err error
			if path, err = config.DefaultConfigPath(); err != nil {
				return nil, nil, err
			}
		}
		if err := config.WriteDefault(path); err != nil {
			return nil, nil, err
		}
	}

	cfg, err := config.Load(sc.ConfigPath)
	if err != nil {
		return nil, nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = sc.Port
		case "internal-port":
			cfg.InternalPort = sc.InternalPort
		case "socket":
			cfg.ControlSocket = sc.Socket
		case "static-dir":
			cfg.StaticDir = sc.StaticDir
		case "input":
			cfg.InputBackend = sc.InputBackend
		case "log-file":
			cfg.LogFile = sc.LogFile
		case "mdns":
			cfg.MdnsEnabled = sc.Mdns
		}
	})

	dir, err := configDir(sc.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	cfg.ApplyDefaults(dir)
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, sc, nil
}

// configDir is where generated files live: next to an explicit config file,
// or the default directory.
func configDir(configPath string) (string, error) {
	if configPath != "" {
		return filepath.Dir(configPath), nil
	}
	return config.DefaultDir()
}

// openInjector picks the input backend. auto falls back to logging when the
// native backend cannot be opened.
func openInjector(backend string, logger *log.Logger) (input.Injector, error) {
	switch backend {
	case "log":
		return input.NewLogInjector(logger), nil
	case "uinput":
		inj, err := input.NewPlatformInjector()
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInputBackendUnavailable, "native input backend unavailable", err)
		}
		return inj, nil
	default:
		inj, err := input.NewPlatformInjector()
		if err != nil {
			logger.Printf("input: native backend unavailable (%v), logging events instead", err)
			return input.NewLogInjector(logger), nil
		}
		return inj, nil
	}
}

// certificateHosts lists names the generated certificate should cover.
func certificateHosts(urls []netaddr.RemoteURL) []string {
	hosts := []string{"localhost", "127.0.0.1"}
	if name, err := os.Hostname(); err == nil && name != "" {
		hosts = append([]string{name}, hosts...)
	}
	for _, u := range urls {
		if host, _, err := net.SplitHostPort(strings.TrimPrefix(u.IP, "https://")); err == nil {
			hosts = append(hosts, host)
		}
	}
	return hosts
}

func printStartupError(stderr io.Writer, err error) {
	fmt.Fprintf(stderr, "Error: %v\n", err)
	if hint := apperrors.GetNextAction(apperrors.GetCode(err)); hint != "" {
		fmt.Fprintf(stderr, "Hint: %s\n", hint)
	}
}

func runServe(args []string, stdout, stderr io.Writer) int {
	cfg, sc, err := resolveServeConfig(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	var logFile *os.File
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
			fmt.Fprintf(stderr, "Error: failed to create log directory: %v\n", err)
			return 1
		}
		logFile, err = os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(stderr, "Error: failed to open log file: %v\n", err)
			return 1
		}
		defer logFile.Close()
		log.SetOutput(logFile)
	}
	logger := log.Default()

	urls, err := netaddr.RemoteURLs(cfg.Port)
	if err != nil {
		logger.Printf("netaddr: failed to list interfaces: %v", err)
	}

	var certInfo *hostTLS.CertInfo
	if !sc.NoTLS {
		certInfo, err = hostTLS.EnsureCertificate(hostTLS.CertConfig{
			CertPath: cfg.TLSCert,
			KeyPath:  cfg.TLSKey,
			Hosts:    certificateHosts(urls),
		})
		if err != nil {
			printStartupError(stderr, apperrors.Startup(apperrors.CodeStartupCertificate, "certificate unavailable", err))
			return 1
		}
		if certInfo.IsGenerated {
			fmt.Fprintf(stdout, "Generated TLS certificate: %s\n", certInfo.CertPath)
		}
		fmt.Fprintf(stdout, "Certificate fingerprint: %s\n", certInfo.Fingerprint)
	}

	secret, err := auth.NewSecretManager(cfg.SecretFile).EnsureSecret()
	if err != nil {
		printStartupError(stderr, apperrors.Startup(apperrors.CodeStartupSecret, "signing secret unavailable", err))
		return 1
	}
	codec, err := auth.NewCodec(auth.CodecConfig{Secret: secret, TTL: cfg.ApprovedTTL()})
	if err != nil {
		printStartupError(stderr, apperrors.Startup(apperrors.CodeStartupSecret, "signing secret unusable", err))
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := bus.New()
	registry := device.NewRegistry(device.RegistryConfig{
		InitiatedTTL: cfg.InitiatedTTL(),
		ApprovedTTL:  cfg.ApprovedTTL(),
		Publisher:    events,
	})
	go registry.RunSweeper(ctx, sweepInterval)

	injector, err := openInjector(cfg.InputBackend, logger)
	if err != nil {
		printStartupError(stderr, err)
		return 1
	}
	actor := input.NewActor(injector, logger)
	actor.Start()
	defer actor.Stop()

	srv := server.New(server.Config{
		Addr:              net.JoinHostPort("0.0.0.0", strconv.Itoa(cfg.Port)),
		Registry:          registry,
		Codec:             codec,
		Player:            actor,
		ApprovalTimeout:   cfg.ApprovalTimeout(),
		RegisterPerMinute: cfg.RegisterPerMinute,
		StaticDir:         cfg.StaticDir,
	})

	var startErr <-chan error
	if sc.NoTLS {
		startErr = srv.StartAsync()
	} else {
		startErr = srv.StartAsyncTLS(server.TLSConfig{CertPath: cfg.TLSCert, KeyPath: cfg.TLSKey})
	}
	if err := <-startErr; err != nil {
		printStartupError(stderr, apperrors.Startup(apperrors.CodeStartupListen, "external server failed to start", err))
		return 1
	}

	shutdownCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), 5*time.Second)
	}
	defer func() {
		sctx, scancel := shutdownCtx()
		defer scancel()
		if err := srv.Stop(sctx); err != nil {
			logger.Printf("server: shutdown error: %v", err)
		}
	}()

	control := server.NewControlHandler(server.ControlConfig{
		Registry: registry,
		Bus:      events,
		URLs: func() ([]netaddr.RemoteURL, error) {
			return netaddr.RemoteURLs(cfg.Port)
		},
	})

	controlTCP := server.NewControlServer(net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.InternalPort)), control)
	if err := controlTCP.Start(); err != nil {
		printStartupError(stderr, apperrors.Startup(apperrors.CodeStartupListen, "control server failed to start", err))
		return 1
	}
	defer func() {
		sctx, scancel := shutdownCtx()
		defer scancel()
		controlTCP.Stop(sctx)
	}()

	socket := ipc.NewControlSocketServer(cfg.ControlSocket, control, logger)
	if err := socket.Start(); err != nil {
		fmt.Fprintf(stderr, "Warning: control socket unavailable: %v\n", err)
	} else {
		defer func() {
			sctx, scancel := shutdownCtx()
			defer scancel()
			socket.Stop(sctx)
		}()
	}

	if cfg.MdnsEnabled {
		fp := ""
		if certInfo != nil {
			fp = certInfo.Fingerprint
		}
		advertiser := mdns.NewAdvertiser(mdns.Config{Port: cfg.Port, Fingerprint: fp, Name: cfg.MdnsName})
		if err := advertiser.Start(); err != nil {
			fmt.Fprintf(stderr, "Warning: mDNS advertisement failed: %v\n", err)
		} else {
			defer advertiser.Stop()
			fmt.Fprintf(stdout, "Advertising %s on the local network.\n", mdns.ServiceType)
		}
	}

	fmt.Fprintf(stdout, "Remote server listening on %s\n", srv.ListenAddr())
	if len(urls) > 0 {
		fmt.Fprintln(stdout, "Open one of these on your phone:")
		for _, u := range urls {
			DisplayURL(stdout, u)
		}
	}
	fmt.Fprintln(stdout, "Approve devices with 'macropinna-remote watch' or the launcher. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	sig := <-sigCh
	fmt.Fprintf(stdout, "\nReceived signal %v, stopping...\n", sig)
	// Deferred cleanup runs in reverse order of creation.
	return 0
}
