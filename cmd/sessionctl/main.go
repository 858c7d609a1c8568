// Package main is an interactive shell around the session manager:
// log an account in, manage the passcode, and run the logout sequence
// against a real or stub identity provider.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/avolkhov/sessionkit/internal/config"
	"github.com/avolkhov/sessionkit/internal/credstore"
	"github.com/avolkhov/sessionkit/internal/events"
	"github.com/avolkhov/sessionkit/internal/logger"
	"github.com/avolkhov/sessionkit/internal/models"
	"github.com/avolkhov/sessionkit/internal/oauth"
	"github.com/avolkhov/sessionkit/internal/session"
)

var (
	version   string
	buildDate string
)

// promptLine reads one trimmed line after printing the label.
func promptLine(scanner *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(scanner.Text())
}

// repl runs the interactive loop against the session manager.
func repl(mgr *session.Manager, serverURL string) {
	scanner := bufio.NewScanner(os.Stdin)
	ctx := context.Background()

	for {
		fmt.Print("sessionctl> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "help":
			fmt.Println("Available commands: help, status, login, logout, passcode <set|change|clear>, exit")
		case "status":
			if id := mgr.ActiveAccountID(); id != "" {
				fmt.Println("Active account:", id)
			} else {
				fmt.Println("No active account")
			}
			fmt.Println("Passcode set:", mgr.Passcodes().HasStoredPasscode())
			fmt.Println("Installation:", mgr.Devices().InstallationID())
		case "login":
			acct := models.Account{
				ID:           promptLine(scanner, "Account id: "),
				RefreshToken: promptLine(scanner, "Refresh token: "),
				ClientID:     promptLine(scanner, "Client id: "),
				InstanceURL:  serverURL,
			}
			if err := mgr.Login(ctx, acct); err != nil {
				fmt.Println("Login failed:", err)
				continue
			}
			fmt.Println("Logged in as", acct.ID)
		case "logout":
			mgr.Logout(nil, false)
			fmt.Println("Logout started")
		case "passcode":
			if len(args) < 2 {
				fmt.Println("Usage: passcode <set|change|clear>")
				continue
			}
			var old, next string
			switch args[1] {
			case "set":
				next = promptLine(scanner, "New passcode: ")
			case "change":
				old = promptLine(scanner, "Old passcode: ")
				next = promptLine(scanner, "New passcode: ")
			case "clear":
				old = promptLine(scanner, "Current passcode: ")
			default:
				fmt.Println("Usage: passcode <set|change|clear>")
				continue
			}
			if err := mgr.ChangePasscode(ctx, old, next); err != nil {
				fmt.Println("Passcode change failed:", err)
				continue
			}
			fmt.Println("Passcode updated")
		case "exit":
			fmt.Println("Bye")
			return
		default:
			fmt.Println("Unknown command. Type 'help' for a list of commands.")
		}
	}
}

func main() {
	opts := &config.Options{}
	var showVer bool
	flag.StringVar(&opts.StorePath, "store", "credentials.json", "path to the credential store file")
	flag.StringVar(&opts.ServerURL, "url", "http://localhost:8080", "identity provider base URL")
	flag.StringVar(&opts.BootConfig, "boot-config", "", "path to boot config (hosted mode)")
	flag.StringVar(&opts.LogLevel, "log", "Info", "log level")
	flag.BoolVar(&showVer, "version", false, "show build version and date")
	flag.Parse()
	opts.ApplyEnv()

	if showVer {
		fmt.Printf("sessionctl\nVersion: %s\nBuild Date: %s\n", version, buildDate)
		return
	}

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(opts.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	store, err := credstore.NewFileStore(opts.StorePath)
	if err != nil {
		zapLogger.Fatal("cannot open credential store", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker := oauth.StartWorker(ctx, http.DefaultClient, zapLogger)
	defer worker.Close()

	bus := events.NewBus()
	bus.Subscribe(func(e events.Type) {
		if e == events.LogoutComplete {
			fmt.Println("Logout complete")
		}
	})

	cfg := session.Config{
		AppType: models.Native,
		LoginOptions: &models.LoginOptions{
			RedirectURI: "sessionctl://oauth/done",
			ConsumerKey: "sessionctl",
			Scopes:      []string{"api", "refresh_token"},
		},
		Store:   store,
		Bus:     bus,
		Revoker: worker,
		Logger:  zapLogger,
	}
	if opts.BootConfig != "" {
		boot, err := config.LoadBootConfig(opts.BootConfig)
		if err != nil {
			zapLogger.Fatal("cannot load boot config", zap.Error(err))
		}
		cfg.AppType = models.Hosted
		cfg.LoginOptions = nil
		cfg.BootConfig = boot
	}

	mgr, err := session.New(cfg)
	if err != nil {
		zapLogger.Fatal("cannot init session manager", zap.Error(err))
	}
	defer mgr.Close()

	repl(mgr, opts.ServerURL)
}
