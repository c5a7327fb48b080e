// Package jmap implements the remote mail store client: paginated query,
// chunked fetch and chunked mutation over the JMAP batched-call protocol.
// It carries no triage logic and performs no retries; a failing call
// aborts the caller's run.
package jmap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/mikey/inbox-triage/internal/config"
	"github.com/mikey/inbox-triage/internal/core"
	"github.com/mikey/inbox-triage/internal/utils"
	"go.uber.org/zap"
)

const (
	capabilityCore = "urn:ietf:params:jmap:core"
	capabilityMail = "urn:ietf:params:jmap:mail"

	defaultQueryPageSize   = 500
	defaultFetchChunkSize  = 100
	defaultUpdateBatchSize = 50
)

var fetchProperties = []string{
	"id",
	"threadId",
	"subject",
	"from",
	"preview",
	"receivedAt",
	"mailboxIds",
	"keywords",
	"header:List-Unsubscribe:asText",
	"header:Precedence:asText",
	"header:X-Mailer:asText",
}

// Client talks to a JMAP mail store over HTTPS with bearer-token auth
type Client struct {
	httpClient      *http.Client
	apiURL          string
	accountID       string
	token           string
	queryPageSize   int
	fetchChunkSize  int
	updateBatchSize int
	logger          *zap.Logger
}

// NewClient creates a client and performs the one-time session discovery.
// Missing credentials or a failing discovery surface as a ConfigError:
// without a session there is nothing to run.
func NewClient(cfg config.JMAPConfig, logger *zap.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, &core.ConfigError{Reason: "jmap.token must be set (INBOX_TRIAGE_JMAP_TOKEN)"}
	}

	c := &Client{
		httpClient:      &http.Client{Timeout: cfg.Timeout},
		token:           cfg.Token,
		queryPageSize:   cfg.QueryPageSize,
		fetchChunkSize:  cfg.FetchChunkSize,
		updateBatchSize: cfg.UpdateBatchSize,
		logger:          logger,
	}
	if c.queryPageSize <= 0 {
		c.queryPageSize = defaultQueryPageSize
	}
	if c.fetchChunkSize <= 0 {
		c.fetchChunkSize = defaultFetchChunkSize
	}
	if c.updateBatchSize <= 0 {
		c.updateBatchSize = defaultUpdateBatchSize
	}

	if err := c.discoverSession(cfg.SessionURL); err != nil {
		return nil, err
	}

	logger.Debug("JMAP session established",
		zap.String("api_url", c.apiURL),
		zap.String("account_id", c.accountID))

	return c, nil
}

func (c *Client) discoverSession(sessionURL string) error {
	req, err := http.NewRequest(http.MethodGet, sessionURL, nil)
	if err != nil {
		return &core.ConfigError{Reason: fmt.Sprintf("invalid session URL %q: %v", sessionURL, err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &core.ConfigError{Reason: fmt.Sprintf("session discovery failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &core.ConfigError{Reason: fmt.Sprintf("session discovery returned %s (check jmap.token)", resp.Status)}
	}

	var session struct {
		APIURL          string            `json:"apiUrl"`
		PrimaryAccounts map[string]string `json:"primaryAccounts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return &core.ConfigError{Reason: fmt.Sprintf("malformed session document: %v", err)}
	}

	c.apiURL = session.APIURL
	c.accountID = session.PrimaryAccounts[capabilityMail]
	if c.apiURL == "" || c.accountID == "" {
		return &core.ConfigError{Reason: "session document has no mail account"}
	}
	return nil
}

// invocation is one [name, arguments, callId] triple of a JMAP request
type invocation struct {
	Name   string
	Args   interface{}
	CallID string
}

func (inv invocation) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]interface{}{inv.Name, inv.Args, inv.CallID})
}

// methodResponse is one [name, arguments, callId] triple of a JMAP response
type methodResponse struct {
	Name   string
	Args   json.RawMessage
	CallID string
}

func (r *methodResponse) UnmarshalJSON(data []byte) error {
	var parts [3]json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if err := json.Unmarshal(parts[0], &r.Name); err != nil {
		return err
	}
	r.Args = parts[1]
	return json.Unmarshal(parts[2], &r.CallID)
}

// call posts a batch of method calls and returns the method responses.
// Any non-2xx status or response whose method name carries the error
// marker fails the entire batch with a RemoteError.
func (c *Client) call(ctx context.Context, invocations []invocation) ([]methodResponse, error) {
	method := invocations[0].Name

	body, err := json.Marshal(map[string]interface{}{
		"using":       []string{capabilityCore, capabilityMail},
		"methodCalls": invocations,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &core.RemoteError{Method: method, Payload: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &core.RemoteError{
			Method:  method,
			Payload: fmt.Sprintf("%s: %s", resp.Status, strings.TrimSpace(string(snippet))),
		}
	}

	var envelope struct {
		MethodResponses []methodResponse `json:"methodResponses"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, &core.RemoteError{Method: method, Payload: fmt.Sprintf("malformed response: %v", err)}
	}

	for _, r := range envelope.MethodResponses {
		if strings.HasSuffix(r.Name, "/error") {
			return nil, &core.RemoteError{Method: r.Name, Payload: string(r.Args)}
		}
	}

	return envelope.MethodResponses, nil
}

type jmapMailbox struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// MailboxIDByRole resolves a folder by server role tag, falling back to a
// case-insensitive name match, creating the folder when neither matches.
// Ties resolve to the first match in server order.
func (c *Client) MailboxIDByRole(ctx context.Context, role string) (string, error) {
	resps, err := c.call(ctx, []invocation{{
		Name:   "Mailbox/get",
		Args:   map[string]interface{}{"accountId": c.accountID, "ids": nil},
		CallID: "m0",
	}})
	if err != nil {
		return "", err
	}

	var result struct {
		List []jmapMailbox `json:"list"`
	}
	if err := json.Unmarshal(resps[0].Args, &result); err != nil {
		return "", &core.RemoteError{Method: "Mailbox/get", Payload: fmt.Sprintf("malformed mailbox list: %v", err)}
	}

	wanted := strings.ToLower(role)
	for _, m := range result.List {
		if m.Role == wanted {
			return m.ID, nil
		}
	}
	for _, m := range result.List {
		if strings.EqualFold(m.Name, role) {
			return m.ID, nil
		}
	}

	c.logger.Info("Creating mailbox", zap.String("name", role))
	resps, err = c.call(ctx, []invocation{{
		Name: "Mailbox/set",
		Args: map[string]interface{}{
			"accountId": c.accountID,
			"create":    map[string]interface{}{"new": map[string]string{"name": role}},
		},
		CallID: "c0",
	}})
	if err != nil {
		return "", err
	}

	var created struct {
		Created map[string]struct {
			ID string `json:"id"`
		} `json:"created"`
	}
	if err := json.Unmarshal(resps[0].Args, &created); err != nil {
		return "", &core.RemoteError{Method: "Mailbox/set", Payload: fmt.Sprintf("malformed create response: %v", err)}
	}
	entry, ok := created.Created["new"]
	if !ok || entry.ID == "" {
		return "", &core.RemoteError{Method: "Mailbox/set", Payload: "mailbox was not created"}
	}
	return entry.ID, nil
}

// QueryIDs pages through Email/query, newest first, advancing a position
// cursor until limit is satisfied or a short page signals exhaustion. The
// result carries no duplicate ids.
func (c *Client) QueryIDs(ctx context.Context, filter core.Filter, limit int) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	position := 0

	for {
		want := c.queryPageSize
		if limit > 0 && limit-len(out) < want {
			want = limit - len(out)
		}
		if want <= 0 {
			break
		}

		resps, err := c.call(ctx, []invocation{{
			Name: "Email/query",
			Args: map[string]interface{}{
				"accountId": c.accountID,
				"filter":    queryFilter(filter),
				"sort": []map[string]interface{}{
					{"property": "receivedAt", "isAscending": false},
				},
				"position": position,
				"limit":    want,
			},
			CallID: "q0",
		}})
		if err != nil {
			return nil, err
		}

		var result struct {
			IDs []string `json:"ids"`
		}
		if err := json.Unmarshal(resps[0].Args, &result); err != nil {
			return nil, &core.RemoteError{Method: "Email/query", Payload: fmt.Sprintf("malformed query response: %v", err)}
		}

		for _, id := range result.IDs {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
		position += len(result.IDs)

		c.logger.Debug("Query page",
			zap.Int("page_size", len(result.IDs)),
			zap.Int("total", len(out)))

		if len(result.IDs) < want {
			break
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}

	return out, nil
}

func queryFilter(filter core.Filter) map[string]interface{} {
	f := make(map[string]interface{})
	if filter.InMailbox != "" {
		f["inMailbox"] = filter.InMailbox
	}
	if filter.HasKeyword != "" {
		f["hasKeyword"] = filter.HasKeyword
	}
	return f
}

type jmapAddress struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type jmapEmail struct {
	ID              string          `json:"id"`
	ThreadID        string          `json:"threadId"`
	Subject         string          `json:"subject"`
	Preview         string          `json:"preview"`
	ReceivedAt      string          `json:"receivedAt"`
	From            []jmapAddress   `json:"from"`
	MailboxIDs      map[string]bool `json:"mailboxIds"`
	Keywords        map[string]bool `json:"keywords"`
	ListUnsubscribe *string         `json:"header:List-Unsubscribe:asText"`
	Precedence      *string         `json:"header:Precedence:asText"`
	XMailer         *string         `json:"header:X-Mailer:asText"`
}

// FetchMessages fetches ids in fixed-size chunks. Results are returned in
// chunk-concatenation order; the server does not guarantee request order
// within a chunk, so callers may only rely on the id set.
func (c *Client) FetchMessages(ctx context.Context, ids []string) ([]*core.Message, error) {
	out := make([]*core.Message, 0, len(ids))

	for start := 0; start < len(ids); start += c.fetchChunkSize {
		end := start + c.fetchChunkSize
		if end > len(ids) {
			end = len(ids)
		}

		resps, err := c.call(ctx, []invocation{{
			Name: "Email/get",
			Args: map[string]interface{}{
				"accountId":  c.accountID,
				"ids":        ids[start:end],
				"properties": fetchProperties,
			},
			CallID: "g0",
		}})
		if err != nil {
			return nil, err
		}

		var result struct {
			List []jmapEmail `json:"list"`
		}
		if err := json.Unmarshal(resps[0].Args, &result); err != nil {
			return nil, &core.RemoteError{Method: "Email/get", Payload: fmt.Sprintf("malformed get response: %v", err)}
		}
		for _, e := range result.List {
			out = append(out, toMessage(e))
		}
	}

	return out, nil
}

func toMessage(e jmapEmail) *core.Message {
	msg := &core.Message{
		ID:         e.ID,
		ThreadID:   e.ThreadID,
		Subject:    utils.SanitizeUTF8(e.Subject),
		Preview:    utils.SanitizeUTF8(e.Preview),
		ReceivedAt: e.ReceivedAt,
		Headers:    make(map[string]string),
		Keywords:   e.Keywords,
		MailboxIDs: e.MailboxIDs,
	}
	if len(e.From) > 0 {
		msg.Sender = e.From[0].Email
	}
	if e.ListUnsubscribe != nil {
		msg.Headers[core.HeaderListUnsubscribe] = *e.ListUnsubscribe
	}
	if e.Precedence != nil {
		msg.Headers[core.HeaderPrecedence] = *e.Precedence
	}
	if e.XMailer != nil {
		msg.Headers[core.HeaderXMailer] = *e.XMailer
	}
	return msg
}

// MoveMessages moves ids into the destination folder in fixed-size
// batches. The first batch the server rejects fails the call with a
// MutationError carrying the rejected ids; batches already applied stay
// applied (at-least-once, non-atomic).
func (c *Client) MoveMessages(ctx context.Context, ids []string, destMailboxID string) error {
	return c.updateInBatches(ctx, ids, func(id string) interface{} {
		return map[string]interface{}{
			"mailboxIds": map[string]bool{destMailboxID: true},
		}
	})
}

// SetFlag sets or clears the $flagged keyword on ids, with the same
// batching and failure policy as MoveMessages
func (c *Client) SetFlag(ctx context.Context, ids []string, flagged bool) error {
	patchKey := "keywords/" + core.KeywordFlagged
	return c.updateInBatches(ctx, ids, func(id string) interface{} {
		if flagged {
			return map[string]interface{}{patchKey: true}
		}
		return map[string]interface{}{patchKey: nil}
	})
}

func (c *Client) updateInBatches(ctx context.Context, ids []string, patch func(id string) interface{}) error {
	for start := 0; start < len(ids); start += c.updateBatchSize {
		end := start + c.updateBatchSize
		if end > len(ids) {
			end = len(ids)
		}

		update := make(map[string]interface{}, end-start)
		for _, id := range ids[start:end] {
			update[id] = patch(id)
		}

		resps, err := c.call(ctx, []invocation{{
			Name: "Email/set",
			Args: map[string]interface{}{
				"accountId": c.accountID,
				"update":    update,
			},
			CallID: "u0",
		}})
		if err != nil {
			return err
		}

		var result struct {
			NotUpdated map[string]json.RawMessage `json:"notUpdated"`
		}
		if err := json.Unmarshal(resps[0].Args, &result); err != nil {
			return &core.RemoteError{Method: "Email/set", Payload: fmt.Sprintf("malformed set response: %v", err)}
		}
		if len(result.NotUpdated) > 0 {
			rejected := make([]string, 0, len(result.NotUpdated))
			for id := range result.NotUpdated {
				rejected = append(rejected, id)
			}
			sort.Strings(rejected)
			return &core.MutationError{Method: "Email/set", IDs: rejected}
		}

		c.logger.Debug("Updated batch", zap.Int("count", end-start))
	}
	return nil
}
