// Package pubchem looks chemicals up through the PubChem PUG REST API.
package pubchem

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"graphmix/pkg/chem"
	"graphmix/pkg/domain"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://pubchem.ncbi.nlm.nih.gov/rest/pug"
	properties     = "MolecularWeight,CanonicalSMILES,MolecularFormula"
)

// Client is safe for concurrent use; requests share one rate limiter.
type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another PUG REST root.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.base = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the transport client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRate limits the client to rps requests per second.
func WithRate(rps float64) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New returns a client limited to five requests per second with a five
// second timeout.
func New(opts ...Option) *Client {
	c := &Client{
		base:    DefaultBaseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
		limiter: rate.NewLimiter(5, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type propertyTable struct {
	PropertyTable struct {
		Properties []struct {
			MolecularWeight    json.RawMessage `json:"MolecularWeight"`
			CanonicalSMILES    string          `json:"CanonicalSMILES"`
			ConnectivitySMILES string          `json:"ConnectivitySMILES"`
			MolecularFormula   string          `json:"MolecularFormula"`
		} `json:"Properties"`
	} `json:"PropertyTable"`
}

// weight accepts the molecular weight as a JSON number or a numeric string.
func weight(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.ParseFloat(s, 64)
	}
	var f float64
	err := json.Unmarshal(raw, &f)
	return f, err
}

// Lookup fetches name's formula, structure and molar mass. An unknown
// compound yields a domain.NotFoundError.
func (c *Client) Lookup(ctx context.Context, name string) (chem.Chemical, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return chem.Chemical{}, err
	}
	uri := fmt.Sprintf("%s/compound/name/%s/property/%s/JSON", c.base, url.PathEscape(name), properties)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return chem.Chemical{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return chem.Chemical{}, fmt.Errorf("pubchem: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return chem.Chemical{}, domain.NotFoundError{Entity: "chemical", Name: name}
	}
	if resp.StatusCode != http.StatusOK {
		return chem.Chemical{}, fmt.Errorf("pubchem: lookup %s: %s", name, resp.Status)
	}
	var table propertyTable
	if err := json.NewDecoder(resp.Body).Decode(&table); err != nil {
		return chem.Chemical{}, fmt.Errorf("pubchem: decode %s: %w", name, err)
	}
	if len(table.PropertyTable.Properties) == 0 {
		return chem.Chemical{}, domain.NotFoundError{Entity: "chemical", Name: name}
	}
	props := table.PropertyTable.Properties[0]
	mass, err := weight(props.MolecularWeight)
	if err != nil {
		return chem.Chemical{}, fmt.Errorf("pubchem: molecular weight of %s: %w", name, err)
	}
	found, err := chem.New(name, props.MolecularFormula, mass)
	if err != nil {
		return chem.Chemical{}, err
	}
	smiles := props.CanonicalSMILES
	if smiles == "" {
		smiles = props.ConnectivitySMILES
	}
	return found.WithStructure(smiles), nil
}
