package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/earn-alliance/smartwallet/internal/log"
	"github.com/earn-alliance/smartwallet/internal/metrics"
)

const serviceName = "relay"

var ErrMalformedResponse = errors.New("malformed relay response")

// Client is the HTTP client for the account-abstraction relay.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *logrus.Entry
}

// NewClient creates a relay client. A nil httpClient gets a 30s timeout.
func NewClient(baseURL, apiKey string, httpClient *http.Client, m *metrics.Metrics) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		metrics:    m,
		logger:     log.Component("relay"),
	}
}

// CreateSmartAccount creates the smart account owned by owner, or returns the
// existing one. The relay derives the address deterministically.
func (c *Client) CreateSmartAccount(ctx context.Context, owner common.Address) (common.Address, error) {
	var resp createAccountResponse
	err := c.do(ctx, "createSmartAccount", http.MethodPost, "/v3/smart-account",
		createAccountRequest{EOAAddress: owner.Hex()}, &resp)
	if err != nil {
		return common.Address{}, err
	}
	if err := resp.Validate(); err != nil {
		return common.Address{}, errors.Wrap(ErrMalformedResponse, err.Error())
	}

	address := common.HexToAddress(resp.Wallet.ScwAddress)
	c.logger.WithFields(logrus.Fields{"owner": owner.Hex(), "smart_account": address.Hex()}).Debug("smart account ready")
	return address, nil
}

// Balance returns the token balance of a smart account in minor units.
func (c *Client) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	var resp balanceResponse
	path := fmt.Sprintf("/v3/smart-account/%s/balance", url.PathEscape(account.Hex()))
	if err := c.do(ctx, "getBalance", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	balance, ok := new(big.Int).SetString(resp.Balance.String(), 10)
	if !ok || balance.Sign() < 0 {
		return nil, errors.Wrapf(ErrMalformedResponse, "balance %q", resp.Balance.String())
	}
	return balance, nil
}

// BuildOperation asks the relay to turn calls into an unsigned operation.
func (c *Client) BuildOperation(ctx context.Context, req BuildRequest) (*UnsignedOperation, error) {
	body := buildRequestBody{
		TransactionDetails: make([]wireCall, 0, len(req.Calls)),
		Network:            req.NetworkID,
		WalletAddress:      req.Account.Hex(),
		OrderData:          req.Order,
		SignMode:           req.SignMode,
	}
	for _, call := range req.Calls {
		value := "0"
		if call.Value != nil {
			value = call.Value.String()
		}
		body.TransactionDetails = append(body.TransactionDetails, wireCall{
			EncodedData:           hexutil.Encode(call.Data),
			TargetContractAddress: call.Target.Hex(),
			Value:                 value,
		})
	}

	var resp buildResponse
	if err := c.do(ctx, "buildTransaction", http.MethodPost, "/v3/transaction/build", body, &resp); err != nil {
		return nil, err
	}
	if err := resp.Validate(); err != nil {
		return nil, errors.Wrap(ErrMalformedResponse, err.Error())
	}

	return NewUnsignedOperation(req, hexutil.MustDecode(resp.MessageToSign), resp.UserOp), nil
}

// SubmitOperation hands a signed operation to the relay for execution and
// returns the resulting transaction hash.
func (c *Client) SubmitOperation(ctx context.Context, req SubmitRequest) (common.Hash, error) {
	body := submitRequestBody{
		Signature:     hexutil.Encode(req.Signature),
		UserOp:        req.Envelope,
		Network:       req.NetworkID,
		WalletAddress: req.Account.Hex(),
		SignMode:      req.SignMode,
	}

	var resp submitResponse
	if err := c.do(ctx, "submitTransaction", http.MethodPost, "/v3/transaction/submit", body, &resp); err != nil {
		return common.Hash{}, err
	}
	if err := resp.Validate(); err != nil {
		return common.Hash{}, errors.Wrap(ErrMalformedResponse, err.Error())
	}
	return common.HexToHash(resp.TxnHash), nil
}

func (c *Client) do(ctx context.Context, method, httpMethod, path string, in, out interface{}) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordRemoteCall(serviceName, method, err, time.Since(start).Seconds())
	}()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request")
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, httpMethod, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("x-api-key", c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s request failed", method)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseErrorResponse(method, resp)
	}

	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return errors.Wrap(ErrMalformedResponse, err.Error())
	}
	return nil
}

// parseErrorResponse extracts the relay's error message when it sent one.
func parseErrorResponse(method string, resp *http.Response) error {
	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err == nil {
		if errResp.Error != "" {
			return errors.Errorf("%s failed with status %d: %s", method, resp.StatusCode, errResp.Error)
		}
		if errResp.Message != "" {
			return errors.Errorf("%s failed with status %d: %s", method, resp.StatusCode, errResp.Message)
		}
	}
	return errors.Errorf("%s failed with status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(body)))
}
