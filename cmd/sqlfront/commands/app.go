package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/config"
	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/database"
	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/database/backends"
	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/history"
	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/keystore"
	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/notes"
	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/workbench"
)

// app holds what a command needs: configuration, the registry-backed
// workbench, and the local stores. Build one per command run.
type app struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger

	registry  *database.Registry
	workbench *workbench.Workbench
	history   *history.Store
	notes     *notes.Store

	keys       keystore.Store
	keysLoaded bool

	out     io.Writer
	in      io.Reader
	json    bool
	keyFlag string
}

// newApp loads the configuration and wires the components. Logs go to
// logOut: stderr for one-shot commands, stdout for serve.
func newApp(cmd *cobra.Command, logOut io.Writer) (*app, error) {
	flags := cmd.Root().PersistentFlags()
	configPath, _ := flags.GetString("config")
	verbose, _ := flags.GetBool("verbose")
	asJSON, _ := flags.GetBool("json")
	keyFlag, _ := flags.GetString("key")

	cfg, path, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := cfg.Logging.NewLogger(logOut, verbose)
	if path != "" {
		logger.Debug("config loaded", "path", path)
	}

	registry := database.NewRegistry(cfg.Database, logger)
	return &app{
		cfg:        cfg,
		configPath: path,
		logger:     logger,
		registry:   registry,
		workbench:  workbench.New(registry, logger),
		history:    history.New(cfg.History),
		notes:      notes.New(cfg.Notes),
		out:        cmd.OutOrStdout(),
		in:         cmd.InOrStdin(),
		json:       asJSON,
		keyFlag:    keyFlag,
	}, nil
}

// Close releases every open database.
func (a *app) Close() {
	if err := a.registry.Close(); err != nil {
		a.logger.Warn("failed to close connections", "error", err)
	}
}

// openKeystore builds the configured keystore. The vault password comes
// from SQLFRONT_VAULT_PASSWORD or a terminal prompt.
func (a *app) openKeystore() (keystore.Store, error) {
	if a.keysLoaded && a.keys != nil {
		return a.keys, nil
	}

	var password string
	if a.cfg.Keystore.Backend == keystore.BackendVault {
		password = os.Getenv(config.EnvVaultPassword)
		if password == "" && isTerminal(os.Stdin) {
			p, err := readPassword("Vault password: ")
			if err != nil {
				return nil, err
			}
			password = p
		}
	}

	store, err := keystore.New(a.cfg.Keystore, password)
	a.keysLoaded = true
	if err != nil {
		return nil, err
	}
	a.keys = store
	return store, nil
}

// keystore is openKeystore for callers that can live without one.
func (a *app) keystore() keystore.Store {
	if a.keysLoaded {
		return a.keys
	}
	store, err := a.openKeystore()
	if err != nil {
		a.logger.Warn("keystore unavailable", "backend", a.cfg.Keystore.Backend, "error", err)
		return nil
	}
	return store
}

// resolveKey picks the decryption key for path: --key, then SQLFRONT_KEY,
// then the keystore, then an interactive prompt when the file does not
// look like plain SQLite and stdin is a terminal.
func (a *app) resolveKey(path string) (string, error) {
	if a.keyFlag != "" {
		return a.keyFlag, nil
	}
	if key := os.Getenv(config.EnvKey); key != "" {
		return key, nil
	}

	canonical, err := database.CanonicalPath(path)
	if err != nil {
		return "", err
	}

	if a.cfg.Keystore.Backend != keystore.BackendNone {
		if store := a.keystore(); store != nil {
			key, err := store.Get(canonical)
			if err == nil {
				a.logger.Debug("using stored key", "path", canonical, "keystore", store.Name())
				return key, nil
			}
			if !errors.Is(err, keystore.ErrNotFound) {
				a.logger.Debug("keystore lookup failed", "path", canonical, "error", err)
			}
		}
	}

	encrypted, err := backends.LooksEncrypted(canonical)
	if err != nil || !encrypted {
		// Missing or plain files are reported by the open itself.
		return "", nil
	}
	if !isTerminal(os.Stdin) {
		return "", nil
	}
	return promptKey(canonical)
}

// remember records path in the history and optionally stores its key.
func (a *app) remember(path, key string, storeKey bool) {
	if err := a.history.Add("", path, key != ""); err != nil {
		a.logger.Warn("failed to record history", "path", path, "error", err)
	}
	if !storeKey || key == "" {
		return
	}
	store, err := a.openKeystore()
	if err != nil {
		a.logger.Warn("keystore unavailable, key not stored", "error", err)
		return
	}
	if err := store.Set(path, key); err != nil {
		a.logger.Warn("failed to store key", "path", path, "keystore", store.Name(), "error", err)
	}
}

func promptKey(path string) (string, error) {
	var key string
	err := huh.NewInput().
		Title(fmt.Sprintf("Key for %s", filepath.Base(path))).
		Description("The file looks encrypted.").
		EchoMode(huh.EchoModePassword).
		Value(&key).
		Run()
	if err != nil {
		return "", fmt.Errorf("reading key: %w", err)
	}
	return key, nil
}

func confirm(title string) (bool, error) {
	ok := false
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Apply").
		Negative("Cancel").
		Value(&ok).
		Run()
	return ok, err
}

// readPassword reads a password from the terminal without echoing.
func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(string(password), "\r\n"), nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
