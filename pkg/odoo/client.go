// Package odoo provides JSON-RPC access to an Odoo ERP for reading the
// live product catalog.
package odoo

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/meridien-distribution/catalog-cli/internal/model"
)

// Client defines the ERP operations used by the matcher.
type Client interface {
	Authenticate(ctx context.Context) error
	FetchProducts(ctx context.Context, limit int) ([]model.ERPDescriptor, error)
}

// Config holds the connection parameters for one Odoo instance.
type Config struct {
	URL      string `yaml:"url" mapstructure:"url"`
	Database string `yaml:"database" mapstructure:"database"`
	Username string `yaml:"username" mapstructure:"username"`
	APIKey   string `yaml:"api_key" mapstructure:"api_key"`
}

// ClientOption configures the Odoo client.
type ClientOption func(*rpcClient)

// WithRateLimit sets a per-second rate limit for ERP calls.
func WithRateLimit(rps float64) ClientOption {
	return func(c *rpcClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *rpcClient) {
		c.http = hc
	}
}

// rpcClient talks to Odoo's /jsonrpc endpoint.
type rpcClient struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	uid     int
}

// NewClient creates an Odoo client. Authenticate must be called before
// FetchProducts.
func NewClient(cfg Config, opts ...ClientOption) Client {
	c := &rpcClient{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
	ID      int       `json:"id"`
}

type rpcParams struct {
	Service string `json:"service"`
	Method  string `json:"method"`
	Args    []any  `json:"args"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Message string `json:"message"`
	Data    struct {
		Message string `json:"message"`
	} `json:"data"`
}

func (c *rpcClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *rpcClient) call(ctx context.Context, service, method string, args []any, out any) error {
	if err := c.wait(ctx); err != nil {
		return eris.Wrap(err, "odoo: rate limit")
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  rpcParams{Service: service, Method: method, Args: args},
		ID:      1,
	})
	if err != nil {
		return eris.Wrap(err, "odoo: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/jsonrpc", bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "odoo: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrapf(err, "odoo: call %s.%s", service, method)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("odoo: call %s.%s: status %d", service, method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return eris.Wrap(err, "odoo: decode response")
	}
	if rpcResp.Error != nil {
		msg := rpcResp.Error.Data.Message
		if msg == "" {
			msg = rpcResp.Error.Message
		}
		return eris.Errorf("odoo: call %s.%s: %s", service, method, msg)
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return eris.Wrap(err, "odoo: decode result")
		}
	}
	return nil
}

func (c *rpcClient) Authenticate(ctx context.Context) error {
	var uid int
	err := c.call(ctx, "common", "authenticate",
		[]any{c.cfg.Database, c.cfg.Username, c.cfg.APIKey, map[string]any{}},
		&uid,
	)
	if err != nil {
		return err
	}
	if uid == 0 {
		return eris.New("odoo: authentication rejected")
	}
	c.uid = uid
	zap.L().Debug("odoo: authenticated", zap.Int("uid", uid))
	return nil
}

// productFields are the product.template fields read from the ERP.
var productFields = []string{"id", "name", "default_code", "barcode", "manufacturer_name", "manufacturer_pref"}

// odooProduct mirrors one product.template row. Odoo serializes empty
// char fields as boolean false, hence the custom decoding.
type odooProduct struct {
	ID              int
	Name            string
	DefaultCode     string
	Barcode         string
	Manufacturer    string
	ManufacturerRef string
}

func (p *odooProduct) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if id, ok := raw["id"].(float64); ok {
		p.ID = int(id)
	}
	p.Name = odooString(raw["name"])
	p.DefaultCode = odooString(raw["default_code"])
	p.Barcode = odooString(raw["barcode"])
	p.Manufacturer = odooString(raw["manufacturer_name"])
	p.ManufacturerRef = odooString(raw["manufacturer_pref"])
	return nil
}

// odooString unwraps an Odoo char value, mapping false to empty.
func odooString(v any) string {
	s, _ := v.(string)
	return s
}

func (c *rpcClient) FetchProducts(ctx context.Context, limit int) ([]model.ERPDescriptor, error) {
	if c.uid == 0 {
		return nil, eris.New("odoo: not authenticated")
	}
	if limit <= 0 {
		limit = 5000
	}

	var products []odooProduct
	err := c.call(ctx, "object", "execute_kw",
		[]any{
			c.cfg.Database, c.uid, c.cfg.APIKey,
			"product.template", "search_read",
			[]any{[]any{}},
			map[string]any{"fields": productFields, "limit": limit},
		},
		&products,
	)
	if err != nil {
		return nil, err
	}

	descriptors := make([]model.ERPDescriptor, 0, len(products))
	for _, p := range products {
		d := model.ERPDescriptor{ERPID: p.ID, Name: p.Name}
		if p.DefaultCode != "" {
			d.Code = &p.DefaultCode
		}
		if p.Barcode != "" {
			d.Barcode = &p.Barcode
			// Odoo keeps EAN-13 in the barcode field.
			if len(p.Barcode) == 13 {
				d.EAN = &p.Barcode
			}
		}
		if p.Manufacturer != "" {
			d.Manufacturer = &p.Manufacturer
		}
		if p.ManufacturerRef != "" {
			d.ManufacturerRef = &p.ManufacturerRef
		}
		descriptors = append(descriptors, d)
	}

	zap.L().Info("odoo: products fetched", zap.Int("count", len(descriptors)))
	return descriptors, nil
}
