package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/rvenandowsley/Polymarket-crypto-5min-arbitrage-bot/internal/crypto"
)

// RelayerClient talks to the Polymarket relayer, which submits on-chain
// transactions on the wallet's behalf so the bot does not hold MATIC for
// gas. It is used to merge matched YES/NO pairs back into collateral.
type RelayerClient struct {
	baseURL    string
	wallet     string
	httpClient *http.Client
	auth       *crypto.HMACAuth
}

// NewRelayerClient creates a relayer client.
//
// baseURL is the relayer root, e.g. "https://relayer-v2.polymarket.com".
// auth carries the Builder API credentials used to authenticate requests.
func NewRelayerClient(baseURL, wallet string, auth *crypto.HMACAuth) *RelayerClient {
	return &RelayerClient{
		baseURL: baseURL,
		wallet:  wallet,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		auth: auth,
	}
}

// SubmitMerge asks the relayer to merge equal YES and NO positions of a
// condition back into USDC. amount is the share count in 1e6 base units.
// It returns the transaction hash of the relayed merge.
func (r *RelayerClient) SubmitMerge(ctx context.Context, conditionID string, amount *big.Int, negRisk bool) (string, error) {
	if conditionID == "" {
		return "", fmt.Errorf("polymarket/relayer: condition ID required")
	}
	if amount == nil || amount.Sign() <= 0 {
		return "", fmt.Errorf("polymarket/relayer: merge amount must be positive")
	}

	body := map[string]any{
		"from": r.wallet,
		"type": "MERGE",
		"data": map[string]any{
			"conditionId": conditionID,
			"amount":      amount.String(),
			"negRisk":     negRisk,
		},
	}

	respBody, err := r.doPost(ctx, "/submit", body)
	if err != nil {
		return "", fmt.Errorf("polymarket/relayer: submit merge: %w", err)
	}

	var result struct {
		TransactionID   string `json:"transactionID"`
		TransactionHash string `json:"transactionHash"`
		State           string `json:"state"`
		Error           string `json:"error"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("polymarket/relayer: decode merge response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("polymarket/relayer: merge rejected: %s", result.Error)
	}

	txHash := result.TransactionHash
	if txHash == "" {
		txHash = result.TransactionID
	}
	return txHash, nil
}

// doPost sends a Builder-authenticated POST to the relayer.
func (r *RelayerClient) doPost(ctx context.Context, path string, body any) ([]byte, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if r.auth != nil {
		for k, v := range r.auth.BuilderHeaders(http.MethodPost, path, string(jsonBody)) {
			req.Header.Set(k, v)
		}
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}
