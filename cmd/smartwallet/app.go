package main

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/earn-alliance/smartwallet/internal/account"
	"github.com/earn-alliance/smartwallet/internal/config"
	"github.com/earn-alliance/smartwallet/internal/custody"
	"github.com/earn-alliance/smartwallet/internal/identity"
	"github.com/earn-alliance/smartwallet/internal/log"
	"github.com/earn-alliance/smartwallet/internal/metrics"
	"github.com/earn-alliance/smartwallet/internal/relay"
	"github.com/earn-alliance/smartwallet/internal/session"
	"github.com/earn-alliance/smartwallet/internal/signer"
	"github.com/earn-alliance/smartwallet/internal/transfer"
	"github.com/earn-alliance/smartwallet/internal/walletservice"
)

const (
	receiptTimeout  = 60 * time.Second
	receiptInterval = 2 * time.Second
)

// app is a fully wired session plus the resources that outlive it.
type app struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	session *session.Session
	chain   *ethclient.Client
}

func newApp(cfg *config.Config) (*app, error) {
	logger := log.Component("cli")
	m := metrics.NewMetrics(prometheus.NewRegistry())

	sess, err := custody.ParseSession(cfg.SessionToken)
	if err != nil {
		// Resolution fails with an identity error and the user is asked to
		// sign in again.
		logger.WithError(err).Warn("no usable session token")
	}
	provider := custody.NewClient(cfg.CustodyAPIURL, sess, nil, m)
	relayClient := relay.NewClient(cfg.RelayURL, cfg.RelayAPIKey, nil, m)

	backend, err := signerBackend(cfg, provider)
	if err != nil {
		return nil, err
	}

	tracker := transfer.NewTracker(relayClient)
	var chain *ethclient.Client
	if cfg.ChainRPCURL != "" {
		rpcClient, err := rpc.DialHTTP(cfg.ChainRPCURL)
		if err != nil {
			return nil, errors.Wrap(err, "dial chain rpc")
		}
		chain = ethclient.NewClient(rpcClient)
		tracker.WithReceipts(chain, receiptTimeout, receiptInterval)
	}

	pipeline := transfer.NewPipeline(
		transfer.NewBuilder(relayClient, common.HexToAddress(cfg.TokenAddress), cfg.NetworkID),
		signer.New(backend),
		tracker,
		m,
	)

	policy := identity.SelectionPolicy{WalletID: cfg.WalletID, AccountAddress: cfg.AccountAddr}

	return &app{
		cfg:     cfg,
		metrics: m,
		session: session.New(
			identity.NewResolver(provider, policy),
			account.NewProvisioner(relayClient, cfg.NetworkID),
			relayClient,
			pipeline,
			cfg.PollInterval,
			m,
		),
		chain: chain,
	}, nil
}

func signerBackend(cfg *config.Config, provider *custody.Client) (signer.Backend, error) {
	switch cfg.SignerBackend {
	case config.SignerBackendWalletService:
		vault, err := walletservice.New(cfg.WalletService)
		if err != nil {
			return nil, err
		}
		return vault, nil
	default:
		return provider, nil
	}
}

func (a *app) Close() {
	a.session.Close()
	if a.chain != nil {
		a.chain.Close()
	}
}
