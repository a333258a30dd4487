package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/arkstatus/arkmon/eos"
	"github.com/arkstatus/arkmon/platform"
	"github.com/arkstatus/arkmon/testutil"
)

type fakeResponder struct {
	replies     []platform.Report
	ephemerals  []string
	paginated   *platform.Paginator
	failReplies int
}

func (f *fakeResponder) Reply(ctx context.Context, r platform.Report) error {
	if f.failReplies > 0 {
		f.failReplies--
		return errors.New("transient")
	}
	f.replies = append(f.replies, r)
	return nil
}

func (f *fakeResponder) ReplyEphemeral(ctx context.Context, text string) error {
	f.ephemerals = append(f.ephemerals, text)
	return nil
}

func (f *fakeResponder) ReplyPaginated(ctx context.Context, p *platform.Paginator) error {
	f.paginated = p
	return nil
}

func newTestHandler(t *testing.T, m *testutil.MockEOSServer) *Handler {
	t.Helper()
	m.MockToken("tok")
	client := &eos.Client{
		APIBase:      m.URL,
		CDNBase:      m.URL,
		DeploymentID: "dep-1",
		Cluster:      "PVPCrossplay",
		Auth: &eos.Authenticator{
			TokenURL:     m.URL + "/auth/v1/oauth/token",
			ClientID:     "client",
			ClientSecret: "secret",
			DeploymentID: "dep-1",
		},
	}
	return &Handler{EOS: client, Cluster: "PVPCrossplay", retryWait: time.Millisecond}
}

func TestServerInfoCommand(t *testing.T) {
	m := testutil.NewMockEOSServer(t)
	h := newTestHandler(t, m)
	m.MockServerList([]map[string]any{
		{"Name": "NA-PVP-2159", "ClusterId": "PVPCrossplay", "SessionID": "sess-1", "IP": "1.2.3.4", "Port": 7777},
	})
	m.MockSession("dep-1", "sess-1", map[string]any{
		"publicData": map[string]any{
			"totalPlayers": 41,
			"settings":     map[string]any{"maxPublicPlayers": 70},
			"attributes": map[string]any{
				"CUSTOMSERVERNAME_s": "NA-PVP-2159",
				"DAYTIME_s":          "1204",
			},
		},
	})

	resp := &fakeResponder{}
	h.Dispatch(context.Background(), resp, Request{Name: "server", Opts: map[string]string{"server": "2159"}})
	if len(resp.replies) != 1 {
		t.Fatalf("replies = %d, want 1", len(resp.replies))
	}
	r := resp.replies[0]
	if r.Title != "NA-PVP-2159" {
		t.Errorf("title = %q", r.Title)
	}
	if r.Fields[0].Value != "41/70" {
		t.Errorf("players field = %q", r.Fields[0].Value)
	}
}

func TestServerInfoUnknownServer(t *testing.T) {
	m := testutil.NewMockEOSServer(t)
	h := newTestHandler(t, m)
	m.MockServerList(nil)

	resp := &fakeResponder{}
	h.Dispatch(context.Background(), resp, Request{Name: "server", Opts: map[string]string{"server": "9999"}})
	if len(resp.ephemerals) != 1 || !strings.Contains(resp.ephemerals[0], "not found") {
		t.Fatalf("ephemerals = %v", resp.ephemerals)
	}
}

func TestListServersFiltersAndPages(t *testing.T) {
	m := testutil.NewMockEOSServer(t)
	h := newTestHandler(t, m)

	var entries []map[string]any
	for i := 0; i < 15; i++ {
		entries = append(entries, map[string]any{
			"Name": fmt.Sprintf("NA-PVP-%04d", i), "ClusterId": "PVPCrossplay", "NumPlayers": 60 + i,
		})
	}
	// Below the bound, wrong cluster, and PVE entries must all be dropped.
	entries = append(entries,
		map[string]any{"Name": "NA-PVP-9998", "ClusterId": "PVPCrossplay", "NumPlayers": 3},
		map[string]any{"Name": "EU-PVP-9997", "ClusterId": "SmallTribes", "NumPlayers": 70},
		map[string]any{"Name": "NA-PVE-9996", "ClusterId": "PVPCrossplay", "NumPlayers": 70, "SessionIsPve": 1},
	)
	m.MockServerList(entries)

	resp := &fakeResponder{}
	h.Dispatch(context.Background(), resp, Request{Name: "list", Opts: map[string]string{"pop": "50", "op": ">"}})
	if resp.paginated == nil {
		t.Fatal("expected a paginated reply")
	}
	if got := resp.paginated.Len(); got != 2 {
		t.Fatalf("pages = %d, want 2 for 15 matches", got)
	}
	first := resp.paginated.Current()
	if !strings.Contains(first.Title, "(15)") {
		t.Errorf("title should carry the match count: %q", first.Title)
	}
	// Busiest server first.
	if !strings.Contains(first.Description, "NA-PVP-0014") {
		t.Errorf("first page should lead with the fullest server:\n%s", first.Description)
	}
}

func TestListServersPlusMinusOps(t *testing.T) {
	m := testutil.NewMockEOSServer(t)
	h := newTestHandler(t, m)
	m.MockServerList([]map[string]any{
		{"Name": "NA-PVP-0001", "ClusterId": "PVPCrossplay", "NumPlayers": 5},
		{"Name": "NA-PVP-0002", "ClusterId": "PVPCrossplay", "NumPlayers": 60},
	})

	resp := &fakeResponder{}
	h.Dispatch(context.Background(), resp, Request{Name: "list", Opts: map[string]string{"pop": "10", "op": "+"}})
	if resp.paginated == nil {
		t.Fatal("op + should produce a listing")
	}
	if got := resp.paginated.Current().Description; !strings.Contains(got, "NA-PVP-0002") || strings.Contains(got, "NA-PVP-0001") {
		t.Fatalf("op + should keep only servers at or above the bound:\n%s", got)
	}

	resp = &fakeResponder{}
	h.Dispatch(context.Background(), resp, Request{Name: "list", Opts: map[string]string{"pop": "10", "op": "-"}})
	if resp.paginated == nil {
		t.Fatal("op - should produce a listing")
	}
	if got := resp.paginated.Current().Description; !strings.Contains(got, "NA-PVP-0001") || strings.Contains(got, "NA-PVP-0002") {
		t.Fatalf("op - should keep only servers at or below the bound:\n%s", got)
	}
}

func TestListServersNoMatches(t *testing.T) {
	m := testutil.NewMockEOSServer(t)
	h := newTestHandler(t, m)
	m.MockServerList([]map[string]any{
		{"Name": "NA-PVP-0001", "ClusterId": "PVPCrossplay", "NumPlayers": 5},
	})

	resp := &fakeResponder{}
	h.Dispatch(context.Background(), resp, Request{Name: "list", Opts: map[string]string{"pop": "50", "op": ">"}})
	if resp.paginated != nil {
		t.Fatal("no pages expected")
	}
	if len(resp.ephemerals) != 1 {
		t.Fatalf("ephemerals = %v", resp.ephemerals)
	}
}

func TestListServersBadOp(t *testing.T) {
	m := testutil.NewMockEOSServer(t)
	h := newTestHandler(t, m)
	resp := &fakeResponder{}
	h.Dispatch(context.Background(), resp, Request{Name: "list", Opts: map[string]string{"pop": "50", "op": "!!"}})
	if len(resp.ephemerals) != 1 {
		t.Fatalf("ephemerals = %v", resp.ephemerals)
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		n     int
		op    string
		bound int
		want  bool
	}{
		{5, ">", 4, true},
		{5, ">", 5, false},
		{5, ">=", 5, true},
		{5, "+", 5, true},
		{5, "+", 6, false},
		{5, "<", 6, true},
		{5, "<=", 4, false},
		{5, "-", 5, true},
		{5, "-", 4, false},
		{5, "=", 5, true},
		{5, "==", 4, false},
	}
	for _, tt := range tests {
		if got := compare(tt.n, tt.op, tt.bound); got != tt.want {
			t.Errorf("compare(%d %s %d) = %v, want %v", tt.n, tt.op, tt.bound, got, tt.want)
		}
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	h := &Handler{retryWait: time.Millisecond}
	resp := &fakeResponder{}
	h.Dispatch(context.Background(), resp, Request{Name: "bogus"})
	if len(resp.ephemerals) != 1 {
		t.Fatalf("ephemerals = %v", resp.ephemerals)
	}
}

func TestReplyRetries(t *testing.T) {
	h := &Handler{retryWait: time.Millisecond}
	resp := &fakeResponder{failReplies: 2}
	if err := h.reply(context.Background(), resp, platform.Report{Title: "x"}); err != nil {
		t.Fatalf("reply: %v", err)
	}
	if len(resp.replies) != 1 {
		t.Fatalf("replies = %d, want 1", len(resp.replies))
	}

	resp = &fakeResponder{failReplies: 10}
	if err := h.reply(context.Background(), resp, platform.Report{Title: "x"}); err == nil {
		t.Fatal("expected failure after retries run out")
	}
}
