// ABOUTME: Google OAuth setup and calendar sync CLI commands
// ABOUTME: Runs the loopback OAuth flow and the week-by-week appointment sync
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/harperreed/doctosync/config"
	"github.com/harperreed/doctosync/sync"
)

const authTimeout = 5 * time.Minute

// SyncInitCommand handles OAuth setup. It writes a starter config when none exists.
func SyncInitCommand(g *Globals, args []string) error {
	flags := flag.NewFlagSet("init", flag.ContinueOnError)
	credentials := flags.String("credentials", "", "Google client secrets JSON (overrides calendar.credentials_path)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := g.ensureConfig()
	if err != nil {
		return err
	}
	if *credentials != "" {
		cfg.Calendar.CredentialsPath = *credentials
	}

	oauthCfg, err := sync.NewOAuthConfig(cfg.Calendar.CredentialsPath)
	if err != nil {
		return fmt.Errorf("failed to get OAuth config: %w", err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to start callback listener: %w", err)
	}

	open := g.OpenBrowser
	if open == nil {
		open = openBrowser
	}

	ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
	defer cancel()

	token, err := authorize(ctx, oauthCfg, listener, func(authURL string) error {
		fmt.Fprintln(g.out(), "Opening browser for Google OAuth...")
		fmt.Fprintf(g.out(), "\nIf browser doesn't open, visit this URL:\n%s\n\n", authURL)
		return open(authURL)
	})
	if err != nil {
		return fmt.Errorf("OAuth flow failed: %w", err)
	}

	if err := sync.SaveToken(cfg.Calendar.TokenPath, token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	fmt.Fprintf(g.out(), "\n✓ Authenticated successfully\n")
	fmt.Fprintf(g.out(), "✓ Tokens saved to %s\n\n", cfg.Calendar.TokenPath)
	fmt.Fprintln(g.out(), "Ready to sync! Run 'doctosync sync' to push this week's appointments.")
	return nil
}

// ensureConfig reads the config file, creating a starter one if it is missing.
func (g *Globals) ensureConfig() (*config.Config, error) {
	cfg, err := g.loadConfig(false)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	cfg = config.Default()
	if err := config.Save(g.configPath(), cfg); err != nil {
		return nil, err
	}
	fmt.Fprintf(g.out(), "✓ Wrote starter config to %s (set api.url before syncing)\n", g.configPath())
	return cfg, nil
}

// authorize runs the authorization code flow with a callback server on listener.
func authorize(ctx context.Context, oauthCfg *oauth2.Config, listener net.Listener, open func(string) error) (*oauth2.Token, error) {
	cfg := *oauthCfg
	cfg.RedirectURL = fmt.Sprintf("http://%s/oauth/callback", listener.Addr().String())
	state := uuid.NewString()

	callbackChan := make(chan *oauth2.Token, 1)
	errChan := make(chan error, 1)
	fail := func(err error) {
		select {
		case errChan <- err:
		default:
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			fail(fmt.Errorf("state mismatch in OAuth callback"))
			return
		}
		if msg := r.URL.Query().Get("error"); msg != "" {
			http.Error(w, "authorization denied", http.StatusBadRequest)
			fail(fmt.Errorf("authorization denied: %s", msg))
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			fail(fmt.Errorf("no authorization code received"))
			return
		}

		token, err := cfg.Exchange(ctx, code)
		if err != nil {
			http.Error(w, "token exchange failed", http.StatusBadGateway)
			fail(fmt.Errorf("failed to exchange code: %w", err))
			return
		}

		_, _ = fmt.Fprintf(w, "Authorization successful! You can close this window.")
		select {
		case callbackChan <- token:
		default:
		}
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fail(err)
		}
	}()
	defer func() { _ = server.Shutdown(context.Background()) }()

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	// A browser that fails to open still leaves the printed URL.
	_ = open(authURL)

	select {
	case token := <-callbackChan:
		return token, nil
	case err := <-errChan:
		return nil, err
	case <-ctx.Done():
		return nil, fmt.Errorf("timed out waiting for authorization: %w", ctx.Err())
	}
}

// SyncCommand syncs the appointments of the current and following weeks.
func SyncCommand(g *Globals, args []string) error {
	flags := flag.NewFlagSet("sync", flag.ContinueOnError)
	weeks := flags.Int("weeks", 1, "Number of weeks to sync, starting with the current one")
	flags.IntVar(weeks, "w", 1, "Shorthand for --weeks")
	dryRun := flags.Bool("dry-run", false, "Print the planned changes without writing them")
	workers := flags.Int("workers", 0, "Concurrent calendar calls per phase (default: sync.workers)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *weeks < 1 {
		return fmt.Errorf("--weeks must be at least 1, got %d", *weeks)
	}

	cfg, err := g.loadConfig(true)
	if err != nil {
		return err
	}

	ctx := context.Background()
	sess, err := g.openSession(ctx, cfg, syncOptions{DryRun: *dryRun, Workers: *workers})
	if err != nil {
		return err
	}
	defer sess.close()

	if err := sess.run(ctx, g, *weeks); err != nil {
		return fmt.Errorf("sync finished with errors: %w", err)
	}
	return nil
}

// openBrowser attempts to open URL in default browser
func openBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start", url}
	default:
		cmd = "xdg-open"
		args = []string{url}
	}

	command := exec.Command(cmd, args...)
	return command.Start()
}
