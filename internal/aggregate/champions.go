package aggregate

import "dajam-backend/internal/models"

// ChampionPick is one participant's decided final.
type ChampionPick struct {
	ParticipantID string
	WinnerID      string
}

// ChampionTally counts how often each candidate won a participant's
// tournament. A participant who replayed the final counts once, with their
// latest pick. Picks with no participant are counted individually.
func ChampionTally(candidates []models.Candidate, picks []ChampionPick) []models.VoteResult {
	latest := make(map[string]int)
	var kept []ChampionPick
	for _, p := range picks {
		if p.ParticipantID == "" {
			kept = append(kept, p)
			continue
		}
		if i, ok := latest[p.ParticipantID]; ok {
			kept[i] = p
			continue
		}
		latest[p.ParticipantID] = len(kept)
		kept = append(kept, p)
	}

	position := make(map[string]int, len(candidates))
	options := make([]string, len(candidates))
	for i, c := range candidates {
		position[c.ID] = i
		options[i] = c.Name
	}

	votes := make([]Vote, 0, len(kept))
	for _, p := range kept {
		idx, ok := position[p.WinnerID]
		if !ok {
			idx = -1
		}
		votes = append(votes, SingleVote(idx))
	}
	return Tally(options, votes, ModeSingle)
}
