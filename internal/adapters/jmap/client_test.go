package jmap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mikey/inbox-triage/internal/config"
	"github.com/mikey/inbox-triage/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedCall struct {
	Name string
	Args map[string]interface{}
}

// fakeJMAPServer serves a session document and dispatches batched method
// calls to a per-test handler, recording every invocation it sees.
type fakeJMAPServer struct {
	t      *testing.T
	server *httptest.Server

	mu    sync.Mutex
	calls []recordedCall

	handle func(name string, args map[string]interface{}) interface{}
}

func newFakeServer(t *testing.T, handle func(name string, args map[string]interface{}) interface{}) *fakeJMAPServer {
	fs := &fakeJMAPServer{t: t, handle: handle}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/jmap", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"apiUrl": fs.server.URL + "/api",
			"primaryAccounts": map[string]string{
				"urn:ietf:params:jmap:mail": "acc1",
			},
		})
	})
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		var envelope struct {
			MethodCalls [][3]json.RawMessage `json:"methodCalls"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&envelope))

		var responses []interface{}
		for _, mc := range envelope.MethodCalls {
			var name, callID string
			assert.NoError(t, json.Unmarshal(mc[0], &name))
			assert.NoError(t, json.Unmarshal(mc[2], &callID))
			args := make(map[string]interface{})
			assert.NoError(t, json.Unmarshal(mc[1], &args))

			fs.mu.Lock()
			fs.calls = append(fs.calls, recordedCall{Name: name, Args: args})
			fs.mu.Unlock()

			result := fs.handle(name, args)
			responses = append(responses, []interface{}{name, result, callID})
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"methodResponses": responses})
	})
	fs.server = httptest.NewServer(mux)
	t.Cleanup(fs.server.Close)
	return fs
}

func (fs *fakeJMAPServer) recorded(name string) []recordedCall {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var out []recordedCall
	for _, c := range fs.calls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

func (fs *fakeJMAPServer) client(t *testing.T, cfg config.JMAPConfig) *Client {
	cfg.SessionURL = fs.server.URL + "/.well-known/jmap"
	if cfg.Token == "" {
		cfg.Token = "test-token"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	c, err := NewClient(cfg, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestNewClient_MissingToken(t *testing.T) {
	_, err := NewClient(config.JMAPConfig{SessionURL: "http://localhost/jmap"}, zap.NewNop())
	var cfgErr *core.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestNewClient_RejectedDiscovery(t *testing.T) {
	fs := newFakeServer(t, func(string, map[string]interface{}) interface{} { return nil })

	_, err := NewClient(config.JMAPConfig{
		SessionURL: fs.server.URL + "/.well-known/jmap",
		Token:      "wrong-token",
		Timeout:    5 * time.Second,
	}, zap.NewNop())

	var cfgErr *core.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestNewClient_SessionWithoutMailAccount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"apiUrl": "http://x/api"})
	}))
	defer server.Close()

	_, err := NewClient(config.JMAPConfig{
		SessionURL: server.URL,
		Token:      "test-token",
		Timeout:    5 * time.Second,
	}, zap.NewNop())

	var cfgErr *core.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func mailboxList(boxes ...map[string]interface{}) interface{} {
	return map[string]interface{}{"list": boxes}
}

func TestMailboxIDByRole_RoleMatchWinsOverName(t *testing.T) {
	fs := newFakeServer(t, func(name string, args map[string]interface{}) interface{} {
		return mailboxList(
			map[string]interface{}{"id": "mb1", "name": "Archive", "role": ""},
			map[string]interface{}{"id": "mb2", "name": "Old Mail", "role": "archive"},
		)
	})
	c := fs.client(t, config.JMAPConfig{})

	id, err := c.MailboxIDByRole(context.Background(), "archive")
	require.NoError(t, err)
	assert.Equal(t, "mb2", id)
}

func TestMailboxIDByRole_NameFallbackIsCaseInsensitive(t *testing.T) {
	fs := newFakeServer(t, func(name string, args map[string]interface{}) interface{} {
		return mailboxList(
			map[string]interface{}{"id": "mb1", "name": "ARCHIVE", "role": ""},
		)
	})
	c := fs.client(t, config.JMAPConfig{})

	id, err := c.MailboxIDByRole(context.Background(), "archive")
	require.NoError(t, err)
	assert.Equal(t, "mb1", id)
}

func TestMailboxIDByRole_CreatesWhenMissing(t *testing.T) {
	fs := newFakeServer(t, func(name string, args map[string]interface{}) interface{} {
		switch name {
		case "Mailbox/get":
			return mailboxList()
		case "Mailbox/set":
			return map[string]interface{}{
				"created": map[string]interface{}{
					"new": map[string]interface{}{"id": "mb-created"},
				},
			}
		}
		return nil
	})
	c := fs.client(t, config.JMAPConfig{})

	id, err := c.MailboxIDByRole(context.Background(), "archive")
	require.NoError(t, err)
	assert.Equal(t, "mb-created", id)

	sets := fs.recorded("Mailbox/set")
	require.Len(t, sets, 1)
	create := sets[0].Args["create"].(map[string]interface{})
	assert.Contains(t, create, "new")
}

func serverIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("id%03d", i)
	}
	return ids
}

func TestQueryIDs_PaginatesToLimit(t *testing.T) {
	all := serverIDs(200)
	fs := newFakeServer(t, func(name string, args map[string]interface{}) interface{} {
		position := int(args["position"].(float64))
		limit := int(args["limit"].(float64))
		end := position + limit
		if end > len(all) {
			end = len(all)
		}
		return map[string]interface{}{"ids": all[position:end]}
	})
	c := fs.client(t, config.JMAPConfig{QueryPageSize: 50})

	ids, err := c.QueryIDs(context.Background(), core.Filter{InMailbox: "mb1"}, 150)
	require.NoError(t, err)

	require.Len(t, ids, 150)
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, fs.recorded("Email/query"), 3)
}

func TestQueryIDs_StopsOnShortPage(t *testing.T) {
	all := serverIDs(30)
	fs := newFakeServer(t, func(name string, args map[string]interface{}) interface{} {
		position := int(args["position"].(float64))
		limit := int(args["limit"].(float64))
		end := position + limit
		if end > len(all) {
			end = len(all)
		}
		return map[string]interface{}{"ids": all[position:end]}
	})
	c := fs.client(t, config.JMAPConfig{QueryPageSize: 50})

	ids, err := c.QueryIDs(context.Background(), core.Filter{InMailbox: "mb1"}, 0)
	require.NoError(t, err)
	assert.Len(t, ids, 30)
	assert.Len(t, fs.recorded("Email/query"), 1)
}

func TestQueryIDs_DropsDuplicateIDs(t *testing.T) {
	pages := [][]string{
		{"a", "b"},
		{"b", "c"},
		{"d"},
	}
	page := 0
	fs := newFakeServer(t, func(name string, args map[string]interface{}) interface{} {
		if page >= len(pages) {
			return map[string]interface{}{"ids": []string{}}
		}
		ids := pages[page]
		page++
		return map[string]interface{}{"ids": ids}
	})
	c := fs.client(t, config.JMAPConfig{QueryPageSize: 2})

	ids, err := c.QueryIDs(context.Background(), core.Filter{}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
}

func TestQueryIDs_SendsFilterAndSort(t *testing.T) {
	fs := newFakeServer(t, func(name string, args map[string]interface{}) interface{} {
		return map[string]interface{}{"ids": []string{}}
	})
	c := fs.client(t, config.JMAPConfig{})

	_, err := c.QueryIDs(context.Background(), core.Filter{InMailbox: "mb1", HasKeyword: "$flagged"}, 10)
	require.NoError(t, err)

	queries := fs.recorded("Email/query")
	require.Len(t, queries, 1)
	filter := queries[0].Args["filter"].(map[string]interface{})
	assert.Equal(t, "mb1", filter["inMailbox"])
	assert.Equal(t, "$flagged", filter["hasKeyword"])
	sortArg := queries[0].Args["sort"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "receivedAt", sortArg["property"])
	assert.Equal(t, false, sortArg["isAscending"])
}

func emailStub(id string) map[string]interface{} {
	return map[string]interface{}{
		"id":         id,
		"threadId":   "t-" + id,
		"subject":    "Subject " + id,
		"preview":    "Preview " + id,
		"receivedAt": "2024-03-01T00:00:00Z",
		"from":       []map[string]string{{"name": "Sender", "email": id + "@example.com"}},
		"mailboxIds": map[string]bool{"mb1": true},
		"keywords":   map[string]bool{},
	}
}

func TestFetchMessages_ChunksRequests(t *testing.T) {
	fs := newFakeServer(t, func(name string, args map[string]interface{}) interface{} {
		reqIDs := args["ids"].([]interface{})
		list := make([]map[string]interface{}, len(reqIDs))
		for i, id := range reqIDs {
			list[i] = emailStub(id.(string))
		}
		return map[string]interface{}{"list": list}
	})
	c := fs.client(t, config.JMAPConfig{FetchChunkSize: 2})

	ids := []string{"a", "b", "c", "d", "e"}
	msgs, err := c.FetchMessages(context.Background(), ids)
	require.NoError(t, err)

	require.Len(t, msgs, 5)
	got := make(map[string]bool)
	for _, m := range msgs {
		got[m.ID] = true
	}
	for _, id := range ids {
		assert.True(t, got[id], "missing message %s", id)
	}
	gets := fs.recorded("Email/get")
	require.Len(t, gets, 3)
	assert.Len(t, gets[0].Args["ids"].([]interface{}), 2)
	assert.Len(t, gets[2].Args["ids"].([]interface{}), 1)
}

func TestFetchMessages_HeaderPresenceMapping(t *testing.T) {
	fs := newFakeServer(t, func(name string, args map[string]interface{}) interface{} {
		withHeaders := emailStub("a")
		withHeaders["header:List-Unsubscribe:asText"] = ""
		withHeaders["header:Precedence:asText"] = "Bulk"
		return map[string]interface{}{"list": []map[string]interface{}{
			withHeaders,
			emailStub("b"),
		}}
	})
	c := fs.client(t, config.JMAPConfig{})

	msgs, err := c.FetchMessages(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	byID := map[string]*core.Message{msgs[0].ID: msgs[0], msgs[1].ID: msgs[1]}
	// An empty header value still counts as header presence; an absent
	// header (JSON null or missing) does not.
	assert.True(t, byID["a"].HasHeader(core.HeaderListUnsubscribe))
	assert.Equal(t, "Bulk", byID["a"].Headers[core.HeaderPrecedence])
	assert.False(t, byID["b"].HasHeader(core.HeaderListUnsubscribe))
	assert.False(t, byID["b"].HasHeader(core.HeaderPrecedence))

	assert.Equal(t, "a@example.com", byID["a"].Sender)
}

func TestMoveMessages_BatchesUpdates(t *testing.T) {
	fs := newFakeServer(t, func(name string, args map[string]interface{}) interface{} {
		return map[string]interface{}{"updated": map[string]interface{}{}}
	})
	c := fs.client(t, config.JMAPConfig{UpdateBatchSize: 2})

	err := c.MoveMessages(context.Background(), []string{"a", "b", "c", "d", "e"}, "mb-archive")
	require.NoError(t, err)

	sets := fs.recorded("Email/set")
	require.Len(t, sets, 3)
	total := 0
	for _, call := range sets {
		update := call.Args["update"].(map[string]interface{})
		total += len(update)
		for _, patch := range update {
			mailboxes := patch.(map[string]interface{})["mailboxIds"].(map[string]interface{})
			assert.Equal(t, true, mailboxes["mb-archive"])
		}
	}
	assert.Equal(t, 5, total)
}

func TestMoveMessages_RejectedBatchFailsWithSortedIDs(t *testing.T) {
	fs := newFakeServer(t, func(name string, args map[string]interface{}) interface{} {
		update := args["update"].(map[string]interface{})
		if _, ok := update["c"]; ok {
			return map[string]interface{}{
				"notUpdated": map[string]interface{}{
					"d": map[string]string{"type": "notFound"},
					"c": map[string]string{"type": "notFound"},
				},
			}
		}
		return map[string]interface{}{"updated": map[string]interface{}{}}
	})
	c := fs.client(t, config.JMAPConfig{UpdateBatchSize: 2})

	err := c.MoveMessages(context.Background(), []string{"a", "b", "c", "d"}, "mb-archive")
	var mutErr *core.MutationError
	require.ErrorAs(t, err, &mutErr)
	assert.Equal(t, []string{"c", "d"}, mutErr.IDs)

	// The first batch was applied before the failure; no rollback.
	assert.Len(t, fs.recorded("Email/set"), 2)
}

func TestSetFlag_PatchShapes(t *testing.T) {
	fs := newFakeServer(t, func(name string, args map[string]interface{}) interface{} {
		return map[string]interface{}{"updated": map[string]interface{}{}}
	})
	c := fs.client(t, config.JMAPConfig{})

	require.NoError(t, c.SetFlag(context.Background(), []string{"a"}, true))
	require.NoError(t, c.SetFlag(context.Background(), []string{"a"}, false))

	sets := fs.recorded("Email/set")
	require.Len(t, sets, 2)

	setPatch := sets[0].Args["update"].(map[string]interface{})["a"].(map[string]interface{})
	assert.Equal(t, true, setPatch["keywords/$flagged"])

	clearPatch := sets[1].Args["update"].(map[string]interface{})["a"].(map[string]interface{})
	val, present := clearPatch["keywords/$flagged"]
	assert.True(t, present)
	assert.Nil(t, val)
}

func TestCall_MethodLevelError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/.well-known/jmap" {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"apiUrl":          "http://" + r.Host + "/api",
				"primaryAccounts": map[string]string{"urn:ietf:params:jmap:mail": "acc1"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"methodResponses": []interface{}{
				[]interface{}{"Email/query/error", map[string]string{"type": "serverFail"}, "q0"},
			},
		})
	}))
	defer server.Close()

	c, err := NewClient(config.JMAPConfig{
		SessionURL: server.URL + "/.well-known/jmap",
		Token:      "test-token",
		Timeout:    5 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	_, err = c.QueryIDs(context.Background(), core.Filter{}, 10)
	var remoteErr *core.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Contains(t, remoteErr.Payload, "serverFail")
}

func TestCall_HTTPErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/.well-known/jmap" {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"apiUrl":          "http://" + r.Host + "/api",
				"primaryAccounts": map[string]string{"urn:ietf:params:jmap:mail": "acc1"},
			})
			return
		}
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer server.Close()

	c, err := NewClient(config.JMAPConfig{
		SessionURL: server.URL + "/.well-known/jmap",
		Token:      "test-token",
		Timeout:    5 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	_, err = c.QueryIDs(context.Background(), core.Filter{}, 10)
	var remoteErr *core.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, "Email/query", remoteErr.Method)
}
