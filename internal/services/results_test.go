package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"dajam-backend/internal/models"
)

func row(session *models.Session, p *models.Participant, payload string) *models.DataRow {
	r := &models.DataRow{
		ID:          uuid.New(),
		SessionID:   session.ID,
		Table:       session.AppType.DataTable(),
		PayloadJSON: json.RawMessage(payload),
	}
	if p != nil {
		r.ParticipantID = &p.ID
	}
	return r
}

func roster(sessionID uuid.UUID, names ...string) []*models.Participant {
	out := make([]*models.Participant, len(names))
	for i, n := range names {
		out[i] = &models.Participant{ID: uuid.New(), SessionID: sessionID, DisplayName: n, Role: models.RoleParticipant}
	}
	return out
}

func TestDeriveResults_PollSkipsBannedAndForeignRows(t *testing.T) {
	s := &models.Session{ID: uuid.New(), AppType: models.AppPoll, ConfigJSON: pollConfig("A", "B", "C")}
	ps := roster(s.ID, "p1", "p2", "p3", "p4")
	ps[2].IsBanned = true

	foreign := row(s, ps[0], `{"ranking":[0]}`)
	foreign.Table = "rankings"
	rows := []*models.DataRow{
		row(s, ps[0], `{"option_index":0}`),
		row(s, ps[1], `{"option_index":1}`),
		row(s, ps[2], `{"option_index":1}`),
		row(s, ps[3], `{"option_index":0}`),
		foreign,
	}

	res, err := DeriveResults(s, ps, rows)
	if err != nil {
		t.Fatalf("DeriveResults returned error: %v", err)
	}
	if res.Kind != models.ResultTally || res.TotalRows != 3 || res.ParticipantCount != 3 {
		t.Fatalf("unexpected summary %+v", res)
	}
	want := []int{2, 1, 0}
	for i, w := range want {
		if res.Options[i].Count != w {
			t.Fatalf("option %d count = %d, want %d", i, res.Options[i].Count, w)
		}
	}
}

func TestDeriveResults_MultipleChoicePoll(t *testing.T) {
	cfg, _ := json.Marshal(PollConfig{Options: []string{"A", "B"}, Mode: "multiple"})
	s := &models.Session{ID: uuid.New(), AppType: models.AppPoll, ConfigJSON: cfg}
	rows := []*models.DataRow{
		row(s, nil, `{"option_indices":[0,1]}`),
		row(s, nil, `{"option_indices":[1]}`),
	}

	res, err := DeriveResults(s, nil, rows)
	if err != nil {
		t.Fatalf("DeriveResults returned error: %v", err)
	}
	if res.Options[0].Count != 1 || res.Options[1].Count != 2 {
		t.Fatalf("unexpected counts %+v", res.Options)
	}
	if res.Options[1].Percentage != 100 {
		t.Fatalf("percentage = %v, want 100", res.Options[1].Percentage)
	}
}

func TestDeriveResults_RankingUsesBorda(t *testing.T) {
	cfg, _ := json.Marshal(RankingConfig{Options: []string{"A", "B", "C"}})
	s := &models.Session{ID: uuid.New(), AppType: models.AppRanking, ConfigJSON: cfg}
	rows := []*models.DataRow{
		row(s, nil, `{"ranking":[0,1,2]}`),
		row(s, nil, `{"ranking":[1,0,2]}`),
	}

	res, err := DeriveResults(s, nil, rows)
	if err != nil {
		t.Fatalf("DeriveResults returned error: %v", err)
	}
	got := []string{res.Options[0].Option, res.Options[1].Option, res.Options[2].Option}
	if got[0] != "A" || got[1] != "B" || got[2] != "C" {
		t.Fatalf("order = %v, want [A B C]", got)
	}
	if res.Options[0].Score != 5 || res.Options[2].Score != 2 || res.Options[1].Rank != 2 {
		t.Fatalf("unexpected scores %+v", res.Options)
	}
}

func TestDeriveResults_ChampionsCountsLatestFinalPerParticipant(t *testing.T) {
	cfg, _ := json.Marshal(TournamentConfig{Candidates: []models.Candidate{{ID: "a", Name: "Alpha"}, {ID: "b", Name: "Beta"}}})
	s := &models.Session{ID: uuid.New(), AppType: models.AppTournament, ConfigJSON: cfg}
	ps := roster(s.ID, "p1", "p2", "p3")
	rows := []*models.DataRow{
		row(s, ps[0], `{"match_id":"r2-m0","round":2,"winner_id":"a"}`),
		row(s, ps[0], `{"match_id":"r2-m0","round":2,"winner_id":"b"}`),
		row(s, ps[1], `{"match_id":"r2-m0","round":2,"winner_id":"b"}`),
		row(s, ps[2], `{"match_id":"r4-m0","round":4,"winner_id":"a"}`),
	}

	res, err := DeriveResults(s, ps, rows)
	if err != nil {
		t.Fatalf("DeriveResults returned error: %v", err)
	}
	if res.Options[0].Option != "Alpha" || res.Options[0].Count != 0 {
		t.Fatalf("unexpected Alpha result %+v", res.Options[0])
	}
	if res.Options[1].Count != 2 || res.Options[1].Percentage != 100 {
		t.Fatalf("unexpected Beta result %+v", res.Options[1])
	}
}

func TestDeriveResults_WordsAndOpaqueApps(t *testing.T) {
	words := &models.Session{ID: uuid.New(), AppType: models.AppWordCloud}
	res, err := DeriveResults(words, nil, []*models.DataRow{
		row(words, nil, `{"word":"Hello"}`),
		row(words, nil, `{"word":"world"}`),
		row(words, nil, `{"word":"  hello "}`),
	})
	if err != nil {
		t.Fatalf("DeriveResults returned error: %v", err)
	}
	if len(res.Words) != 2 || res.Words[0].Word != "hello" || res.Words[0].Count != 2 {
		t.Fatalf("unexpected words %+v", res.Words)
	}

	quiz := &models.Session{ID: uuid.New(), AppType: models.AppQuiz}
	res, err = DeriveResults(quiz, nil, []*models.DataRow{row(quiz, nil, `{"answer":2}`)})
	if err != nil {
		t.Fatalf("DeriveResults returned error: %v", err)
	}
	if res.Kind != models.ResultNone || res.TotalRows != 1 || res.Options != nil {
		t.Fatalf("unexpected quiz results %+v", res)
	}
}

func TestResultsService_Compute(t *testing.T) {
	dir, _, _ := newTestDirectory()
	ctx := context.Background()
	s, _, err := dir.CreateSession(ctx, models.CreateSessionRequest{AppType: models.AppPoll, Config: pollConfig("yes", "no")})
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	p, _ := dir.JoinSession(ctx, s.ID, "Ada", nil)
	sub, err := dir.PrepareSubmission(ctx, s.ID, p.ID, json.RawMessage(`{"option_index":1}`))
	if err != nil {
		t.Fatalf("PrepareSubmission returned error: %v", err)
	}
	if err := dir.SubmitRow(ctx, sub.Row()); err != nil {
		t.Fatalf("SubmitRow returned error: %v", err)
	}

	res, err := NewResultsService(dir).Compute(ctx, s.ID)
	if err != nil {
		t.Fatalf("Compute returned error: %v", err)
	}
	if res.Options[1].Count != 1 || res.ParticipantCount != 1 {
		t.Fatalf("unexpected results %+v", res)
	}

	if _, err := NewResultsService(dir).Compute(ctx, uuid.New()); !isNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestExpirySweeper_Sweep(t *testing.T) {
	dir, _, _ := newTestDirectory()
	ctx := context.Background()
	soon := dir.now().Add(1)
	s, _, _ := dir.CreateSession(ctx, models.CreateSessionRequest{AppType: models.AppBingo, ExpiresAt: &soon})

	NewExpirySweeper(dir, 0).sweep(ctx, soon.Add(1))

	got, _ := dir.GetSession(ctx, s.ID)
	if got.IsActive {
		t.Fatalf("expected sweep to close expired session")
	}
}

func TestDeriveResults_PollCountsEveryIndexThatValidated(t *testing.T) {
	cfg, _ := json.Marshal(PollConfig{Options: []string{"A", "B"}, Mode: "multiple"})
	s := &models.Session{ID: uuid.New(), AppType: models.AppPoll, ConfigJSON: cfg}
	payload := `{"option_index":0,"option_indices":[1]}`

	if err := ValidatePayload(s, json.RawMessage(payload)); err != nil {
		t.Fatalf("ValidatePayload returned error: %v", err)
	}
	res, err := DeriveResults(s, nil, []*models.DataRow{row(s, nil, payload)})
	if err != nil {
		t.Fatalf("DeriveResults returned error: %v", err)
	}
	if res.Options[0].Count != 1 || res.Options[1].Count != 1 {
		t.Fatalf("expected both options counted, got %+v", res.Options)
	}
}

func TestPollEmptySelection(t *testing.T) {
	multi, _ := json.Marshal(PollConfig{Options: []string{"A", "B"}, Mode: "multiple"})
	single, _ := json.Marshal(PollConfig{Options: []string{"A", "B"}})

	t.Run("multiple mode accepts and counts the voter", func(t *testing.T) {
		s := &models.Session{ID: uuid.New(), AppType: models.AppPoll, ConfigJSON: multi}
		if err := ValidatePayload(s, json.RawMessage(`{"option_indices":[]}`)); err != nil {
			t.Fatalf("ValidatePayload returned error: %v", err)
		}
		rows := []*models.DataRow{
			row(s, nil, `{"option_indices":[0]}`),
			row(s, nil, `{"option_indices":[]}`),
		}
		res, err := DeriveResults(s, nil, rows)
		if err != nil {
			t.Fatalf("DeriveResults returned error: %v", err)
		}
		if res.TotalRows != 2 || res.Options[0].Percentage != 50 {
			t.Fatalf("expected A at 50%% of 2 voters, got %+v", res)
		}
	})

	t.Run("single mode rejects", func(t *testing.T) {
		s := &models.Session{ID: uuid.New(), AppType: models.AppPoll, ConfigJSON: single}
		if err := ValidatePayload(s, json.RawMessage(`{"option_indices":[]}`)); err == nil {
			t.Fatalf("expected empty single-choice vote to be rejected")
		}
	})
}
