package chainsource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	applerrors "github.com/blockset-corp/chainaudit/internal/errors"
)

// restChainResponse is the JSON shape a REST-style chain-data service
// returns for its tip-height endpoint.
type restChainResponse struct {
	Height int64 `json:"height"`
}

// restBlockResponse is the JSON shape a REST-style chain-data service
// returns for its per-height block endpoint.
type restBlockResponse struct {
	Hash     string `json:"hash"`
	PrevHash string `json:"prev_hash"`
	Height   int64  `json:"height"`
	TxnCount *int   `json:"txn_count"`
}

// RESTAdapter implements Adapter against a JSON/REST chain-data
// service. It backs both the canonical source and Blockset-shaped
// comparison services — the two differ only in base URL and auth.
type RESTAdapter struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewRESTAdapter builds a RESTAdapter with the shared retry transport.
func NewRESTAdapter(baseURL, apiKey string) *RESTAdapter {
	return &RESTAdapter{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: NewRetryTransport(DefaultTransportConfig()),
	}
}

func (a *RESTAdapter) authorize(req *http.Request) {
	if a.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.APIKey)
	}
}

// GetChain fetches the reported chain tip height.
func (a *RESTAdapter) GetChain(ctx context.Context) (Chain, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL+"/chain", nil)
	if err != nil {
		return Chain{}, applerrors.Wrap(err, applerrors.ErrorTypeNetwork, "failed to build chain request")
	}
	a.authorize(req)

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return Chain{}, applerrors.Wrap(err, applerrors.ErrorTypeNetwork, "chain request failed")
	}
	defer resp.Body.Close()

	if !isGoodStatus(resp.StatusCode) {
		return Chain{HTTPStatus: resp.StatusCode}, nil
	}

	var body restChainResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Chain{HTTPStatus: resp.StatusCode}, nil
	}

	height := body.Height
	return Chain{HTTPStatus: resp.StatusCode, ChainHeight: &height}, nil
}

// GetBlock fetches a single block's identifying attributes.
func (a *RESTAdapter) GetBlock(ctx context.Context, height int64) (Block, error) {
	url := fmt.Sprintf("%s/blocks/%d", a.BaseURL, height)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Block{}, applerrors.Wrap(err, applerrors.ErrorTypeNetwork, "failed to build block request")
	}
	a.authorize(req)

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return Block{}, applerrors.Wrap(err, applerrors.ErrorTypeNetwork, "block request failed")
	}
	defer resp.Body.Close()

	if !isGoodStatus(resp.StatusCode) {
		return Block{HTTPStatus: resp.StatusCode}, nil
	}

	var body restBlockResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Block{HTTPStatus: resp.StatusCode}, nil
	}

	txnCount := 0
	if body.TxnCount != nil {
		txnCount = *body.TxnCount
	}
	hash, prevHash, blockHeight := body.Hash, body.PrevHash, body.Height
	return Block{
		HTTPStatus: resp.StatusCode,
		Hash:       &hash,
		PrevHash:   &prevHash,
		Height:     &blockHeight,
		TxnCount:   &txnCount,
	}, nil
}
