package models

// AppType names the mini-app that owns a session.
type AppType string

const (
	AppPoll       AppType = "poll"
	AppRanking    AppType = "ranking"
	AppTournament AppType = "tournament"
	AppWordCloud  AppType = "wordcloud"
	AppQuiz       AppType = "quiz"
	AppBingo      AppType = "bingo"
)

// ResultKind selects the aggregation run over an app's data rows.
type ResultKind string

const (
	ResultTally     ResultKind = "tally"
	ResultBorda     ResultKind = "borda"
	ResultChampions ResultKind = "champions"
	ResultWords     ResultKind = "words"
	ResultNone      ResultKind = "none"
)

// Logical table names. Participants are always subscribed to.
const (
	TableSessions     = "sessions"
	TableParticipants = "participants"
)

type appInfo struct {
	table  string
	result ResultKind
}

var registry = map[AppType]appInfo{
	AppPoll:       {table: "votes", result: ResultTally},
	AppRanking:    {table: "rankings", result: ResultBorda},
	AppTournament: {table: "bracket_selections", result: ResultChampions},
	AppWordCloud:  {table: "word_entries", result: ResultWords},
	AppQuiz:       {table: "quiz_answers", result: ResultNone},
	AppBingo:      {table: "bingo_marks", result: ResultNone},
}

func (a AppType) Valid() bool {
	_, ok := registry[a]
	return ok
}

// DataTable is the logical table this app writes its rows to.
func (a AppType) DataTable() string {
	return registry[a].table
}

func (a AppType) ResultKind() ResultKind {
	if info, ok := registry[a]; ok {
		return info.result
	}
	return ResultNone
}

// AppTypes lists the registered app types in a fixed order.
func AppTypes() []AppType {
	return []AppType{AppPoll, AppRanking, AppTournament, AppWordCloud, AppQuiz, AppBingo}
}
