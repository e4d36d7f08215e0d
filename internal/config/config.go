package config

import (
	"os"
	"regexp"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/pkg/errors"

	"github.com/earn-alliance/smartwallet/pkg/constants"
)

const (
	SignerBackendProvider      = "provider"
	SignerBackendWalletService = "walletservice"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Config holds everything the CLI needs to run a session.
type Config struct {
	LogLevel string

	// Key-management provider
	CustodyAPIURL string
	SessionToken  string
	WalletID      string
	AccountAddr   string

	// Account-abstraction relay
	RelayURL    string
	RelayAPIKey string

	// Optional JSON-RPC endpoint used to confirm receipts
	ChainRPCURL string

	NetworkID    uint64
	TokenAddress string
	PollInterval time.Duration

	SignerBackend string
	WalletService WalletServiceConfig

	MetricsAddr string
}

// WalletServiceConfig configures the Lambda signing backend.
type WalletServiceConfig struct {
	LambdaARN    string
	AWSRegion    string
	ClientType   string
	ClientID     string
	AccountTable string
}

func getEnv(key string, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		CustodyAPIURL: getEnv("CUSTODY_API_URL", ""),
		SessionToken:  getEnv("CUSTODY_SESSION_TOKEN", ""),
		WalletID:      getEnv("CUSTODY_WALLET_ID", ""),
		AccountAddr:   getEnv("CUSTODY_ACCOUNT_ADDRESS", ""),
		RelayURL:      getEnv("RELAY_URL", ""),
		RelayAPIKey:   getEnv("RELAY_API_KEY", ""),
		ChainRPCURL:   getEnv("CHAIN_RPC_URL", ""),
		TokenAddress:  getEnv("TOKEN_ADDRESS", constants.BASE_USDC_ADDRESS),
		SignerBackend: getEnv("SIGNER_BACKEND", SignerBackendProvider),
		MetricsAddr:   getEnv("METRICS_ADDR", ""),
		WalletService: WalletServiceConfig{
			LambdaARN:    getEnv("WALLET_SERVICE_LAMBDA_ARN", ""),
			AWSRegion:    getEnv("AWS_REGION", ""),
			ClientType:   getEnv("WALLET_SERVICE_LAMBDA_TYPE", ""),
			ClientID:     getEnv("WALLET_SERVICE_LAMBDA_TYPE_ID", ""),
			AccountTable: getEnv("DYNAMODB_ACCOUNT", ""),
		},
	}

	networkID, err := strconv.ParseUint(getEnv("NETWORK_ID", strconv.FormatUint(constants.BASE_NETWORK_ID, 10)), 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "NETWORK_ID")
	}
	cfg.NetworkID = networkID

	pollInterval, err := time.ParseDuration(getEnv("BALANCE_POLL_INTERVAL", constants.BALANCE_POLL_INTERVAL.String()))
	if err != nil {
		return nil, errors.Wrap(err, "BALANCE_POLL_INTERVAL")
	}
	cfg.PollInterval = pollInterval

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration without touching the environment.
func (c *Config) Validate() error {
	walletService := c.SignerBackend == SignerBackendWalletService

	err := validation.ValidateStruct(c,
		validation.Field(&c.CustodyAPIURL, validation.Required, is.URL),
		validation.Field(&c.RelayURL, validation.Required, is.URL),
		validation.Field(&c.RelayAPIKey, validation.Required),
		validation.Field(&c.ChainRPCURL, is.URL),
		validation.Field(&c.NetworkID, validation.Required),
		validation.Field(&c.TokenAddress, validation.Required, validation.Match(addressPattern)),
		validation.Field(&c.AccountAddr, validation.Match(addressPattern)),
		validation.Field(&c.PollInterval, validation.Required, validation.Min(100*time.Millisecond)),
		validation.Field(&c.SignerBackend, validation.Required, validation.In(SignerBackendProvider, SignerBackendWalletService)),
		validation.Field(&c.WalletService, validation.When(walletService, validation.By(validateWalletService))),
	)
	if err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	return nil
}

func validateWalletService(value interface{}) error {
	ws, _ := value.(WalletServiceConfig)
	return validation.ValidateStruct(&ws,
		validation.Field(&ws.LambdaARN, validation.Required),
		validation.Field(&ws.AWSRegion, validation.Required),
		validation.Field(&ws.ClientType, validation.Required),
		validation.Field(&ws.ClientID, validation.Required),
		validation.Field(&ws.AccountTable, validation.Required),
	)
}
