package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/cryptchat/internal/client/blobstore"
	"github.com/dmitrijs2005/cryptchat/internal/client/config"
	"github.com/dmitrijs2005/cryptchat/internal/client/keystore"
	"github.com/dmitrijs2005/cryptchat/internal/client/messaging"
	"github.com/dmitrijs2005/cryptchat/internal/client/securestore"
	"github.com/dmitrijs2005/cryptchat/internal/client/vault"
	"github.com/dmitrijs2005/cryptchat/internal/common"
	"github.com/dmitrijs2005/cryptchat/internal/keyexchange"
	"github.com/dmitrijs2005/cryptchat/internal/logging"
	"github.com/dmitrijs2005/cryptchat/internal/repositories/repomanager"
)

type Mode string

const (
	ModeLocked   Mode = "locked"
	ModeUnlocked Mode = "unlocked"
)

// App is the interactive client: a photo vault plus end-to-end encrypted
// conversations, all backed by stores under Config.DataDir.
type App struct {
	config    *config.Config
	logger    logging.Logger
	vault     *vault.Engine
	passwords *vault.PasswordManager
	bio       *vault.BiometricBridge
	keys      keystore.Store
	chat      *messaging.Service
	auth      vault.Authenticator

	// pin is the vault PIN for the unlocked session; nil when locked.
	pin []byte
	// dhPending holds our half of an in-progress key exchange per
	// conversation until the peer's public value arrives.
	dhPending map[string]keyexchange.KeyPair

	Mode    Mode
	reader  *bufio.Reader
	out     io.Writer
	closers []io.Closer
}

// openRepository is a test seam for the PostgreSQL message repository.
var openRepository = func(ctx context.Context, dsn string) (io.Closer, messaging.Repository, error) {
	db, repo, err := repomanager.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return db, repo, nil
}

// NewApp opens every store the client needs. A store that cannot be
// recovered surfaces as common.ErrStorageCorruption.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	a := &App{
		config:    c,
		logger:    logger,
		dhPending: map[string]keyexchange.KeyPair{},
		Mode:      ModeLocked,
		reader:    bufio.NewReader(os.Stdin),
		out:       os.Stdout,
	}
	a.auth = terminalAuthenticator{reader: a.reader, out: a.out}

	if err := a.open(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) open(ctx context.Context) error {
	provider, err := a.keyProvider()
	if err != nil {
		return err
	}

	stores := map[string]*securestore.Store{}
	for _, st := range []struct{ name, path string }{
		{"conversation_keys", a.config.KeyStorePath()},
		{"vault_credentials", a.config.CredentialsPath()},
		{"vault_biometric", a.config.BiometricPath()},
		{"preferences", a.config.PreferencesPath()},
	} {
		s, err := securestore.Open(ctx, st.path, st.name, provider, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, s)
		stores[st.name] = s
	}

	a.passwords = vault.NewPasswordManager(stores["vault_credentials"], a.logger)
	a.bio = vault.NewBiometricBridge(stores["vault_biometric"], stores["preferences"])
	a.vault, err = vault.NewEngine(ctx, a.config.VaultDir(), a.passwords, a.logger, vault.WithBiometric(a.bio))
	if err != nil {
		return err
	}

	content, err := a.contentStore()
	if err != nil {
		return err
	}
	repo, err := a.repository(ctx)
	if err != nil {
		return err
	}
	a.keys = keystore.NewSecureStore(stores["conversation_keys"])
	a.chat = messaging.NewService(a.keys, repo, content, a.logger)
	return nil
}

func (a *App) keyProvider() (securestore.MasterKeyProvider, error) {
	if !a.config.PromptPassphrase {
		return securestore.FileKeyProvider{Path: a.config.MasterKeyPath()}, nil
	}
	pw, err := getPassword(a.out, "Device passphrase")
	if err != nil {
		return nil, err
	}
	return securestore.PassphraseKeyProvider{Passphrase: pw, SaltPath: a.config.MasterSaltPath()}, nil
}

func (a *App) contentStore() (messaging.ContentStore, error) {
	if a.config.S3Bucket == "" {
		return blobstore.NewDirStore(a.config.ContentDir())
	}
	return blobstore.NewS3Store(blobstore.S3Config{
		Region:       a.config.S3Region,
		AccessKey:    a.config.S3AccessKey,
		SecretKey:    a.config.S3SecretKey,
		BaseEndpoint: a.config.S3BaseEndpoint,
		Bucket:       a.config.S3Bucket,
	}, blobstore.NewHTTPFetcher(a.config.FetchTimeout), a.logger), nil
}

func (a *App) repository(ctx context.Context) (messaging.Repository, error) {
	if a.config.DatabaseDSN == "" {
		return messaging.NewMemoryRepository(), nil
	}
	closer, repo, err := openRepository(ctx, a.config.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("open message database: %w", err)
	}
	a.closers = append(a.closers, closer)
	return repo, nil
}

// Close locks the session and releases every store.
func (a *App) Close() error {
	a.lock()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) Run(ctx context.Context) {
	defer a.Close()
	a.Root(ctx)
}

func (a *App) isUnlocked() bool {
	return a.pin != nil
}

func (a *App) setMode(mode Mode) {
	if a.Mode != mode {
		a.Mode = mode
		a.logger.Debug(context.Background(), "vault mode changed", "mode", string(mode))
	}
}

func (a *App) unlockWith(pin []byte) {
	common.WipeByteArray(a.pin)
	a.pin = append([]byte(nil), pin...)
	a.setMode(ModeUnlocked)
}

func (a *App) lock() {
	common.WipeByteArray(a.pin)
	a.pin = nil
	a.setMode(ModeLocked)
}

func (a *App) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// terminalAuthenticator stands in for a platform biometric prompt by asking
// for an explicit confirmation on the terminal.
type terminalAuthenticator struct {
	reader *bufio.Reader
	out    io.Writer
}

var errNotConfirmed = errors.New("not confirmed")

func (t terminalAuthenticator) Authenticate(ctx context.Context, reason string) error {
	if !GetConfirmation(t.reader, reason+"?", t.out) {
		return errNotConfirmed
	}
	return nil
}
