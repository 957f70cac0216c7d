package raft

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Transport exposes cluster membership over HTTP and joins remote clusters
type Transport struct {
	node   *Node
	client *http.Client
}

// NewTransport creates a new Transport
func NewTransport(node *Node) *Transport {
	return &Transport{
		node:   node,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

type joinRequest struct {
	NodeID   string `json:"node_id"`
	NodeAddr string `json:"node_addr"`
}

type leaveRequest struct {
	NodeID string `json:"node_id"`
}

// JoinCluster asks the node serving HTTP at joinAddr to add this node as a voter
func (t *Transport) JoinCluster(ctx context.Context, joinAddr, nodeID, raftAddr string) error {
	return t.post(ctx, joinAddr, "/raft/join", joinRequest{NodeID: nodeID, NodeAddr: raftAddr})
}

// LeaveCluster asks the node serving HTTP at leaderAddr to remove nodeID
func (t *Transport) LeaveCluster(ctx context.Context, leaderAddr, nodeID string) error {
	return t.post(ctx, leaderAddr, "/raft/leave", leaveRequest{NodeID: nodeID})
}

func (t *Transport) post(ctx context.Context, addr, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("received non-success response %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// RaftHandler returns an HTTP handler for cluster membership, mounted under /raft
func (t *Transport) RaftHandler() http.Handler {
	mux := http.NewServeMux()

	// Handler for joining the cluster
	mux.HandleFunc("/raft/join", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		// Only the leader can add nodes
		if !t.node.Leader() {
			http.Error(w, "Not the leader", http.StatusConflict)
			return
		}

		var req joinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("Failed to decode request: %v", err), http.StatusBadRequest)
			return
		}
		if req.NodeID == "" || req.NodeAddr == "" {
			http.Error(w, "node_id and node_addr are required", http.StatusBadRequest)
			return
		}

		if err := t.node.Join(req.NodeID, req.NodeAddr); err != nil {
			http.Error(w, fmt.Sprintf("Failed to add node: %v", err), http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
	})

	// Handler for leaving the cluster
	mux.HandleFunc("/raft/leave", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		// Only the leader can remove nodes
		if !t.node.Leader() {
			http.Error(w, "Not the leader", http.StatusConflict)
			return
		}

		var req leaveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("Failed to decode request: %v", err), http.StatusBadRequest)
			return
		}

		if err := t.node.Leave(req.NodeID); err != nil {
			http.Error(w, fmt.Sprintf("Failed to remove node: %v", err), http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
	})

	return mux
}
