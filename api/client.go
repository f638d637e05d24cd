package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mezonai/circlepay/errors"
	"github.com/mezonai/circlepay/jsonx"
	"github.com/mezonai/circlepay/types"
)

const clientTimeout = 10 * time.Second

// Client talks to a running APIServer. Its methods mirror the ledger's, so
// callers can use either one; rejected operations come back as
// *errors.LedgerError carrying the server-side code.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: clientTimeout},
	}
}

func (c *Client) InitState(owner string, feeRateBps uint16, height uint64) (bool, error) {
	var resp CreatedResponse
	err := c.post("/init", "", InitRequest{Owner: owner, FeeRateBps: feeRateBps, Height: height}, &resp)
	return resp.Created, err
}

func (c *Client) Register(identity, contactInfo string) (bool, error) {
	var resp CreatedResponse
	err := c.post("/accounts", identity, RegisterRequest{ContactInfo: contactInfo}, &resp)
	return resp.Created, err
}

func (c *Client) Deposit(identity string, amount uint64) (uint64, error) {
	return c.postAmount("/accounts/deposit", identity, AmountRequest{Amount: amount})
}

func (c *Client) Pay(sender, recipient string, amount uint64) (uint64, error) {
	return c.postAmount("/pay", sender, PayRequest{To: recipient, Amount: amount})
}

func (c *Client) ManualSave(identity string, amount uint64) (uint64, error) {
	return c.postAmount("/save", identity, AmountRequest{Amount: amount})
}

func (c *Client) WithdrawSavings(identity string, amount uint64) (uint64, error) {
	return c.postAmount("/withdraw", identity, AmountRequest{Amount: amount})
}

func (c *Client) SetAutoSavePercent(identity string, percent uint8) (uint8, error) {
	var resp PercentResponse
	err := c.post("/accounts/autosave", identity, AutoSaveRequest{Percent: percent}, &resp)
	return resp.Percent, err
}

func (c *Client) CreateCircle(creator, name string, targetAmount uint64, maxMembers uint32, contributionAmount uint64, payoutFrequency uint32) (uint64, error) {
	var resp CircleIDResponse
	err := c.post("/circles", creator, CreateCircleRequest{
		Name:               name,
		TargetAmount:       targetAmount,
		MaxMembers:         maxMembers,
		ContributionAmount: contributionAmount,
		PayoutFrequency:    payoutFrequency,
	}, &resp)
	return resp.CircleID, err
}

func (c *Client) JoinCircle(circleID uint64, member string) error {
	return c.post(fmt.Sprintf("/circles/%d/join", circleID), member, nil, nil)
}

func (c *Client) Contribute(circleID uint64, member string) (uint64, error) {
	return c.postAmount(fmt.Sprintf("/circles/%d/contribute", circleID), member, nil)
}

func (c *Client) SetFeeRate(caller string, feeRateBps uint16) (uint16, error) {
	var resp FeeResponse
	err := c.post("/admin/fee", caller, FeeRequest{FeeRateBps: feeRateBps}, &resp)
	return resp.FeeRateBps, err
}

func (c *Client) AdvanceHeight(delta uint64) (uint64, error) {
	var resp HeightResponse
	err := c.post("/admin/height", "", HeightRequest{Delta: &delta}, &resp)
	return resp.Height, err
}

func (c *Client) SetHeight(height uint64) (uint64, error) {
	var resp HeightResponse
	err := c.post("/admin/height", "", HeightRequest{Height: &height}, &resp)
	return resp.Height, err
}

// GetAccount returns nil, nil when the server has no such account
func (c *Client) GetAccount(identity string) (*types.Account, error) {
	var acc types.Account
	found, err := c.get("/accounts/"+url.PathEscape(identity), &acc)
	if err != nil || !found {
		return nil, err
	}
	return &acc, nil
}

func (c *Client) GetCircle(circleID uint64) (*types.Circle, error) {
	var circle types.Circle
	found, err := c.get(fmt.Sprintf("/circles/%d", circleID), &circle)
	if err != nil || !found {
		return nil, err
	}
	return &circle, nil
}

func (c *Client) GetMembership(circleID uint64, member string) (*types.Membership, error) {
	var m types.Membership
	found, err := c.get(fmt.Sprintf("/circles/%d/members/%s", circleID, url.PathEscape(member)), &m)
	if err != nil || !found {
		return nil, err
	}
	return &m, nil
}

// ListMembers returns an empty list for an unknown circle, like the ledger
func (c *Client) ListMembers(circleID uint64) ([]*types.Membership, error) {
	members := []*types.Membership{}
	if _, err := c.get(fmt.Sprintf("/circles/%d/members", circleID), &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (c *Client) GetTransaction(id uint64) (*types.Transaction, error) {
	var tx types.Transaction
	found, err := c.get(fmt.Sprintf("/txs/%d", id), &tx)
	if err != nil || !found {
		return nil, err
	}
	return &tx, nil
}

func (c *Client) ListTransactions(offset, limit uint64) ([]*types.Transaction, error) {
	query := url.Values{}
	query.Set("offset", strconv.FormatUint(offset, 10))
	query.Set("limit", strconv.FormatUint(limit, 10))
	var txs []*types.Transaction
	if _, err := c.get("/txs?"+query.Encode(), &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

func (c *Client) TransactionsOf(identity string, limit, offset uint32, filter types.TxFilter) (uint32, []*types.Transaction, error) {
	query := url.Values{}
	query.Set("limit", strconv.FormatUint(uint64(limit), 10))
	query.Set("offset", strconv.FormatUint(uint64(offset), 10))
	query.Set("filter", filter.String())
	var page TxPage
	if _, err := c.get("/accounts/"+url.PathEscape(identity)+"/txs?"+query.Encode(), &page); err != nil {
		return 0, nil, err
	}
	return page.Total, page.Txs, nil
}

func (c *Client) Params() (*types.Params, error) {
	var params types.Params
	if _, err := c.get("/params", &params); err != nil {
		return nil, err
	}
	return &params, nil
}

func (c *Client) postAmount(path, caller string, body interface{}) (uint64, error) {
	var resp AmountResponse
	err := c.post(path, caller, body, &resp)
	return resp.Amount, err
}

// post sends body as JSON with caller in CallerHeader and decodes the reply
// into out when out is non-nil
func (c *Client) post(path, caller string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = jsonx.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(CallerHeader, caller)
	}
	status, respBody, err := c.do(req)
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest {
		return decodeError(status, respBody)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	return jsonx.Unmarshal(respBody, out)
}

// get decodes a read response into out. A plain 404 reports found=false.
func (c *Client) get(path string, out interface{}) (bool, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, err
	}
	status, respBody, err := c.do(req)
	if err != nil {
		return false, err
	}
	if status == http.StatusNotFound {
		return false, nil
	}
	if status >= http.StatusBadRequest {
		return false, decodeError(status, respBody)
	}
	return true, jsonx.Unmarshal(respBody, out)
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request to %s failed: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response from %s: %w", req.URL.Path, err)
	}
	return resp.StatusCode, body, nil
}

const maxResponseBytes = 8 << 20

// decodeError rebuilds the server's LedgerError, falling back to the raw body
func decodeError(status int, body []byte) error {
	var le errors.LedgerError
	if err := jsonx.Unmarshal(body, &le); err == nil && le.Code != 0 {
		return errors.NewError(le.Code, le.Message)
	}
	return fmt.Errorf("server returned %d: %s", status, strings.TrimSpace(string(body)))
}
