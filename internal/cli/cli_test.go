package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"dajam-backend/internal/apperr"
	"dajam-backend/internal/models"
)

func init() {
	color.NoColor = true
}

// fakeServer answers the handful of routes the commands use.
type fakeServer struct {
	mu        sync.Mutex
	session   *models.Session
	people    []*models.Participant
	joins     int
	submitted []json.RawMessage
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	f := &fakeServer{session: &models.Session{
		ID:       uuid.New(),
		Code:     "ABC234",
		AppType:  models.AppPoll,
		Title:    "Lunch",
		IsActive: true,
	}}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/codes/poll/ABC234", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(models.Snapshot{Session: f.session, Participants: f.people})
	})
	base := "/api/v1/sessions/" + f.session.ID.String()
	mux.HandleFunc(base+"/join", func(w http.ResponseWriter, r *http.Request) {
		var req models.JoinSessionRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.joins++
		p := &models.Participant{ID: uuid.New(), SessionID: f.session.ID, DisplayName: req.DisplayName, Role: models.RoleParticipant}
		f.people = append(f.people, p)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(models.JoinSessionResponse{Participant: p, Token: "token-" + p.ID.String()})
	})
	mux.HandleFunc(base+"/rows", func(w http.ResponseWriter, r *http.Request) {
		var req models.SubmitRowRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.submitted = append(f.submitted, req.Payload)
		f.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]interface{}{"id": uuid.New(), "status": "queued"})
	})
	mux.HandleFunc(base+"/results", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.SessionResults{
			SessionID: f.session.ID,
			AppType:   models.AppPoll,
			Kind:      models.ResultTally,
			TotalRows: 1,
			Options:   []models.VoteResult{{Option: "Pizza", Count: 1, Percentage: 100}, {Option: "Tacos"}},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func run(t *testing.T, srv *httptest.Server, home string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--server", srv.URL, "--home", home))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestJoin_ResumesOnSecondRun(t *testing.T) {
	f, srv := newFakeServer(t)
	home := t.TempDir()

	out, err := run(t, srv, home, "join", "poll", "abc-234", "--name", "Ada")
	if err != nil {
		t.Fatalf("first join failed: %v", err)
	}
	if !strings.HasPrefix(out, "joined poll/ABC234 as Ada") {
		t.Fatalf("unexpected output %q", out)
	}

	out, err = run(t, srv, home, "join", "poll", "ABC234")
	if err != nil {
		t.Fatalf("second join failed: %v", err)
	}
	if !strings.HasPrefix(out, "resumed poll/ABC234 as Ada") {
		t.Fatalf("unexpected output %q", out)
	}
	if f.joins != 1 {
		t.Fatalf("expected one join request, got %d", f.joins)
	}
}

func TestJoin_RejoinsWhenBanned(t *testing.T) {
	f, srv := newFakeServer(t)
	home := t.TempDir()

	if _, err := run(t, srv, home, "join", "poll", "ABC234", "--name", "Ada"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	f.mu.Lock()
	f.people[0].IsBanned = true
	f.mu.Unlock()

	out, err := run(t, srv, home, "join", "poll", "ABC234", "--name", "Ada")
	if err != nil {
		t.Fatalf("rejoin failed: %v", err)
	}
	if !strings.HasPrefix(out, "joined") || f.joins != 2 {
		t.Fatalf("expected a fresh join, got %q after %d joins", out, f.joins)
	}
}

func TestVote_RequiresJoin(t *testing.T) {
	_, srv := newFakeServer(t)

	_, err := run(t, srv, t.TempDir(), "vote", "poll", "ABC234", "--option", "0")
	var nf *apperr.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestVote_SubmitsPayload(t *testing.T) {
	f, srv := newFakeServer(t)
	home := t.TempDir()

	if _, err := run(t, srv, home, "join", "poll", "ABC234"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	out, err := run(t, srv, home, "vote", "poll", "ABC234", "--option", "1")
	if err != nil {
		t.Fatalf("vote failed: %v", err)
	}
	if !strings.HasPrefix(out, "submitted ") {
		t.Fatalf("unexpected output %q", out)
	}
	if len(f.submitted) != 1 || string(f.submitted[0]) != `{"option_index":1}` {
		t.Fatalf("unexpected submissions %s", f.submitted)
	}
}

func TestHistory_ListsJoinedSessions(t *testing.T) {
	_, srv := newFakeServer(t)
	home := t.TempDir()

	out, err := run(t, srv, home, "history")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(out, "no sessions joined") {
		t.Fatalf("unexpected empty history %q", out)
	}

	if _, err := run(t, srv, home, "join", "poll", "ABC234", "--name", "Ada"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	out, err = run(t, srv, home, "history")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(out, "poll/ABC234") || !strings.Contains(out, "Ada") {
		t.Fatalf("unexpected history %q", out)
	}
}

func TestResults_PrintsTally(t *testing.T) {
	_, srv := newFakeServer(t)

	out, err := run(t, srv, t.TempDir(), "results", "poll", "ABC234")
	if err != nil {
		t.Fatalf("results failed: %v", err)
	}
	if !strings.Contains(out, "Pizza") || !strings.Contains(out, "100.0%") {
		t.Fatalf("unexpected results %q", out)
	}
}

func TestPayloadFor(t *testing.T) {
	tests := []struct {
		name    string
		app     models.AppType
		flags   voteFlags
		want    string
		wantErr bool
	}{
		{"poll single", models.AppPoll, voteFlags{option: 2}, `{"option_index":2}`, false},
		{"poll multiple", models.AppPoll, voteFlags{option: -1, options: "0, 2"}, `{"option_indices":[0,2]}`, false},
		{"poll missing", models.AppPoll, voteFlags{option: -1}, "", true},
		{"ranking", models.AppRanking, voteFlags{ranking: "2,0,1"}, `{"ranking":[2,0,1]}`, false},
		{"ranking bad index", models.AppRanking, voteFlags{ranking: "2,x"}, "", true},
		{"bracket", models.AppTournament, voteFlags{match: "r1m1", round: 1, winner: "c2"}, `{"match_id":"r1m1","round":1,"winner_id":"c2"}`, false},
		{"word", models.AppWordCloud, voteFlags{word: "sunny"}, `{"word":"sunny"}`, false},
		{"quiz needs raw", models.AppQuiz, voteFlags{}, "", true},
		{"raw payload", models.AppBingo, voteFlags{payload: `{"cell":4}`}, `{"cell":4}`, false},
		{"raw payload invalid", models.AppBingo, voteFlags{payload: `{`}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.flags.payloadFor(tt.app)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("payloadFor returned error: %v", err)
			}
			raw, _ := json.Marshal(got)
			if string(raw) != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, raw)
			}
		})
	}
}

func TestCreateFlags_Request(t *testing.T) {
	f := &createFlags{app: "Poll", title: "Lunch", options: []string{"Pizza", "Tacos"}, multiple: true, max: 10}
	req, err := f.request()
	if err != nil {
		t.Fatalf("request returned error: %v", err)
	}
	if req.AppType != models.AppPoll || req.MaxParticipants == nil || *req.MaxParticipants != 10 {
		t.Fatalf("unexpected request %+v", req)
	}
	if string(req.Config) != `{"mode":"multiple","options":["Pizza","Tacos"]}` {
		t.Fatalf("unexpected config %s", req.Config)
	}

	f = &createFlags{app: "tournament", candidates: []string{"Cats", "Dogs"}}
	req, err = f.request()
	if err != nil {
		t.Fatalf("request returned error: %v", err)
	}
	var cfg struct {
		Candidates []models.Candidate `json:"candidates"`
	}
	json.Unmarshal(req.Config, &cfg)
	if len(cfg.Candidates) != 2 || cfg.Candidates[1].ID != "c2" {
		t.Fatalf("unexpected candidates %+v", cfg.Candidates)
	}

	if _, err := (&createFlags{app: "karaoke"}).request(); err == nil {
		t.Fatalf("expected unknown app type to fail")
	}
}
