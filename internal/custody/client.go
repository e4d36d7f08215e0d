package custody

import (
	"context"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	graphql "github.com/hasura/go-graphql-client"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/earn-alliance/smartwallet/internal/log"
	"github.com/earn-alliance/smartwallet/internal/metrics"
)

const serviceName = "custody"

// Client talks to the key-management provider's GraphQL API on behalf of
// one authenticated session.
type Client struct {
	gql     *graphql.Client
	session *Session
	metrics *metrics.Metrics
	logger  *logrus.Entry
	now     func() time.Time
}

// NewClient creates a provider client. Every request carries the session
// token as a bearer credential.
func NewClient(endpoint string, session *Session, httpClient *http.Client, m *metrics.Metrics) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	base := httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	authed := *httpClient
	authed.Transport = &bearerTransport{session: session, base: base}

	return &Client{
		gql:     graphql.NewClient(endpoint, &authed),
		session: session,
		metrics: m,
		logger:  log.Component("custody"),
		now:     time.Now,
	}
}

type bearerTransport struct {
	session *Session
	base    http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.session != nil {
		req.Header.Set("Authorization", "Bearer "+t.session.Token)
	}
	return t.base.RoundTrip(req)
}

// Authenticated reports whether the session is present and unexpired.
func (c *Client) Authenticated() bool {
	return c.session.Active(c.now())
}

func (c *Client) query(ctx context.Context, method string, q interface{}, variables map[string]interface{}) error {
	if !c.Authenticated() {
		return ErrNotAuthenticated
	}
	start := time.Now()
	err := c.gql.Query(ctx, q, variables)
	c.metrics.RecordRemoteCall(serviceName, method, err, time.Since(start).Seconds())
	return errors.Wrap(err, method)
}

func (c *Client) mutate(ctx context.Context, method string, m interface{}, variables map[string]interface{}) error {
	if !c.Authenticated() {
		return ErrNotAuthenticated
	}
	start := time.Now()
	err := c.gql.Mutate(ctx, m, variables)
	c.metrics.RecordRemoteCall(serviceName, method, err, time.Since(start).Seconds())
	return errors.Wrap(err, method)
}

// CurrentUser returns the authenticated user and its organization.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var q struct {
		CurrentUser struct {
			UserID       string `graphql:"userId"`
			Organization struct {
				OrganizationID string `graphql:"organizationId"`
			} `graphql:"organization"`
		} `graphql:"currentUser"`
	}
	if err := c.query(ctx, "currentUser", &q, nil); err != nil {
		return nil, err
	}
	return &User{
		UserID:         q.CurrentUser.UserID,
		OrganizationID: q.CurrentUser.Organization.OrganizationID,
	}, nil
}

// Wallets lists the wallets of an organization in provider order.
func (c *Client) Wallets(ctx context.Context, organizationID string) ([]Wallet, error) {
	var q struct {
		Wallets []struct {
			WalletID   string `graphql:"walletId"`
			WalletName string `graphql:"walletName"`
		} `graphql:"wallets(organizationId: $organizationId)"`
	}
	variables := map[string]interface{}{
		"organizationId": graphql.String(organizationID),
	}
	if err := c.query(ctx, "wallets", &q, variables); err != nil {
		return nil, err
	}

	wallets := make([]Wallet, 0, len(q.Wallets))
	for _, w := range q.Wallets {
		wallets = append(wallets, Wallet{WalletID: w.WalletID, Name: w.WalletName})
	}
	return wallets, nil
}

// WalletAccounts lists the accounts derived in a wallet in provider order.
func (c *Client) WalletAccounts(ctx context.Context, organizationID, walletID string) ([]WalletAccount, error) {
	var q struct {
		WalletAccounts []struct {
			Address string `graphql:"address"`
			Path    string `graphql:"path"`
		} `graphql:"walletAccounts(organizationId: $organizationId, walletId: $walletId)"`
	}
	variables := map[string]interface{}{
		"organizationId": graphql.String(organizationID),
		"walletId":       graphql.String(walletID),
	}
	if err := c.query(ctx, "walletAccounts", &q, variables); err != nil {
		return nil, err
	}

	accounts := make([]WalletAccount, 0, len(q.WalletAccounts))
	for _, a := range q.WalletAccounts {
		accounts = append(accounts, WalletAccount{Address: a.Address, Path: a.Path})
	}
	return accounts, nil
}

// SignMessage asks the provider to sign message as an EIP-191 personal
// message with the key bound to binding.SignWith. Only the message leaves
// this process; the key never does.
func (c *Client) SignMessage(ctx context.Context, binding SignerBinding, message []byte) ([]byte, error) {
	var m struct {
		SignMessage struct {
			Signature string `graphql:"signature"`
		} `graphql:"signMessage(organizationId: $organizationId, signWith: $signWith, message: $message)"`
	}
	variables := map[string]interface{}{
		"organizationId": graphql.String(binding.OrganizationID),
		"signWith":       graphql.String(binding.SignWith.Hex()),
		"message":        graphql.String(hexutil.Encode(message)),
	}

	c.logger.WithField("sign_with", binding.SignWith.Hex()).Debug("requesting remote signature")
	if err := c.mutate(ctx, "signMessage", &m, variables); err != nil {
		return nil, err
	}

	signature, err := hexutil.Decode(m.SignMessage.Signature)
	if err != nil {
		return nil, errors.Wrap(err, "decode signature")
	}
	return signature, nil
}
