// Package peer maintains the peer related information and the client used
// to pull blocks from the canonical node.
package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
)

const baseURL = "http://%s/v1/node"

// Peer represents information about a Node in the network.
type Peer struct {
	Host string
}

// New constructs a new peer value.
func New(host string) Peer {
	return Peer{
		Host: host,
	}
}

// Match validates if the specified host matches this node.
func (p Peer) Match(host string) bool {
	return p.Host == host
}

// =============================================================================

// PeerStatus represents information about the status
// of any given peer.
type PeerStatus struct {
	NodeID            string `json:"node_id"`
	LatestBlockHash   string `json:"latest_block_hash"`
	LatestBlockNumber uint64 `json:"latest_block_number"`
	BlockCount        uint64 `json:"block_count"`
	SyncState         string `json:"sync_state"`
}

// =============================================================================

// Client pulls chain data from a peer over its private API.
type Client struct {
	peer   Peer
	client *http.Client
}

// NewClient constructs a client for the specified peer.
func NewClient(peer Peer) *Client {
	return &Client{
		peer:   peer,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Peer returns the peer this client talks to.
func (c *Client) Peer() Peer {
	return c.peer
}

// RequestStatus asks the peer for its current status.
func (c *Client) RequestStatus(ctx context.Context) (PeerStatus, error) {
	url := fmt.Sprintf("%s/status", fmt.Sprintf(baseURL, c.peer.Host))

	var ps PeerStatus
	if err := c.send(ctx, http.MethodGet, url, nil, &ps); err != nil {
		return PeerStatus{}, fmt.Errorf("%s: status: %w", c.peer.Host, err)
	}

	return ps, nil
}

// Count returns the number of blocks the peer holds.
func (c *Client) Count(ctx context.Context) (uint64, error) {
	ps, err := c.RequestStatus(ctx)
	if err != nil {
		return 0, err
	}

	return ps.BlockCount, nil
}

// GetBlock asks the peer for the block at the specified number.
func (c *Client) GetBlock(ctx context.Context, number uint64) (database.Block, error) {
	url := fmt.Sprintf("%s/block/number/%d", fmt.Sprintf(baseURL, c.peer.Host), number)

	var blockData database.BlockData
	if err := c.send(ctx, http.MethodGet, url, nil, &blockData); err != nil {
		return database.Block{}, fmt.Errorf("%s: block[%d]: %w", c.peer.Host, number, err)
	}

	return database.ToBlock(blockData), nil
}

// =============================================================================

// send is a helper function to send an HTTP request to a node.
func (c *Client) send(ctx context.Context, method string, url string, dataSend any, dataRecv any) error {
	var body io.Reader
	if dataSend != nil {
		data, err := json.Marshal(dataSend)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return database.ErrNotFound
	default:
		msg, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return errors.New(string(msg))
	}

	if dataRecv != nil {
		if err := json.NewDecoder(resp.Body).Decode(dataRecv); err != nil {
			return err
		}
	}

	return nil
}
