package flags

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/data-exchange-registry/api"
	"github.com/ruteri/data-exchange-registry/api/clients"
	"github.com/ruteri/data-exchange-registry/common"
	"github.com/ruteri/data-exchange-registry/cryptoutils"
	"github.com/ruteri/data-exchange-registry/interfaces"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *api.HTTPServerConfig {
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &api.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

// StateKeyFromFlags returns the state encryption key given by exactly one of
// --state-key, --state-passphrase or --state-key-share. It returns nil when
// none is set.
func StateKeyFromFlags(cCtx *cli.Context) (*cryptoutils.StateKey, error) {
	hexKey := cCtx.String(StateKeyFlag.Name)
	passphrase := cCtx.String(StatePassphraseFlag.Name)
	shares := cCtx.StringSlice(StateKeySharesFlag.Name)

	set := 0
	for _, given := range []bool{hexKey != "", passphrase != "", len(shares) > 0} {
		if given {
			set++
		}
	}
	switch {
	case set == 0:
		return nil, nil
	case set > 1:
		return nil, errors.New("only one of --state-key, --state-passphrase and --state-key-share may be set")
	}

	var (
		key cryptoutils.StateKey
		err error
	)
	switch {
	case hexKey != "":
		key, err = cryptoutils.StateKeyFromHex(hexKey)
	case passphrase != "":
		key = cryptoutils.DeriveStateKey([]byte(passphrase), cCtx.String(StateSaltFlag.Name))
	default:
		raw := make([][]byte, 0, len(shares))
		for i, share := range shares {
			b, decodeErr := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(share), "0x"))
			if decodeErr != nil {
				return nil, fmt.Errorf("invalid state key share %d: %w", i, decodeErr)
			}
			raw = append(raw, b)
		}
		key, err = cryptoutils.CombineStateKeyShares(raw)
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// RegistryClientFromFlags builds a client from the shared client flags.
// When --srv is set the server address is discovered through DNS SRV.
func RegistryClientFromFlags(cCtx *cli.Context) (*clients.RegistryClient, error) {
	serverURL := cCtx.String(ServerAddrFlag.Name)
	if service := cCtx.String(ServerSRVFlag.Name); service != "" {
		resolved, err := clients.ResolveServerURL(cCtx.Context, service, cCtx.String(ResolverAddrFlag.Name), cCtx.String(ServerSchemeFlag.Name))
		if err != nil {
			return nil, fmt.Errorf("could not discover registry server: %w", err)
		}
		serverURL = resolved
	}

	var signingKey *ecdsa.PrivateKey
	if hexKey := cCtx.String(SigningKeyFlag.Name); hexKey != "" {
		var err error
		if signingKey, err = cryptoutils.LoadSigningKey(hexKey); err != nil {
			return nil, err
		}
	}

	client := clients.NewRegistryClient(serverURL, signingKey, cCtx.Duration(ClientTimeoutFlag.Name))
	if caller := cCtx.String(CallerFlag.Name); caller != "" {
		client = client.WithCallerHeader(interfaces.Identity(caller))
	}
	return client, nil
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}

var LogFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
}

var StateKeyFlag = &cli.StringFlag{
	Name:    "state-key",
	EnvVars: []string{"REGISTRY_STATE_KEY"},
	Usage:   "hex-encoded 32-byte key encrypting the stored registry state",
}
var StatePassphraseFlag = &cli.StringFlag{
	Name:    "state-passphrase",
	EnvVars: []string{"REGISTRY_STATE_PASSPHRASE"},
	Usage:   "passphrase the state key is derived from (argon2id)",
}
var StateSaltFlag = &cli.StringFlag{
	Name:  "state-salt",
	Value: "default",
	Usage: "salt for --state-passphrase, should be unique per deployment",
}
var StateKeySharesFlag = &cli.StringSliceFlag{
	Name:  "state-key-share",
	Usage: "hex-encoded Shamir share of the state key, repeat for each share",
}

var StateKeyFlags = []cli.Flag{
	StateKeyFlag,
	StatePassphraseFlag,
	StateSaltFlag,
	StateKeySharesFlag,
}

var ServerAddrFlag = &cli.StringFlag{
	Name:    "server-addr",
	Value:   "http://127.0.0.1:8080",
	EnvVars: []string{"REGISTRY_URL"},
	Usage:   "registry server base URL",
}
var ServerSRVFlag = &cli.StringFlag{
	Name:  "srv",
	Usage: "discover the registry server through this DNS SRV name, e.g. _registry._tcp.example.com",
}
var ServerSchemeFlag = &cli.StringFlag{
	Name:  "srv-scheme",
	Value: "https",
	Usage: "URL scheme for servers discovered through --srv",
}
var ResolverAddrFlag = &cli.StringFlag{
	Name:  "resolver",
	Value: clients.DefaultResolverAddr,
	Usage: "DNS resolver used for --srv lookups",
}
var SigningKeyFlag = &cli.StringFlag{
	Name:    "key",
	EnvVars: []string{"REGISTRY_KEY"},
	Usage:   "hex-encoded secp256k1 key signing mutating calls",
}
var CallerFlag = &cli.StringFlag{
	Name:  "caller",
	Usage: "send this identity in the caller header instead of signing (server must trust the header)",
}
var ClientTimeoutFlag = &cli.DurationFlag{
	Name:  "timeout",
	Value: 30 * time.Second,
	Usage: "registry request timeout",
}

var ClientFlags = []cli.Flag{
	ServerAddrFlag,
	ServerSRVFlag,
	ServerSchemeFlag,
	ResolverAddrFlag,
	SigningKeyFlag,
	CallerFlag,
	ClientTimeoutFlag,
}
