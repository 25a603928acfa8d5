package model

// MatchDetail is the end-of-game summary returned by the match data provider.
// Absent counters decode as zero.
type MatchDetail struct {
	Metadata MatchMetadata `json:"metadata"`
	Info     MatchInfo     `json:"info"`
}

// MatchMetadata identifies the match.
type MatchMetadata struct {
	MatchID      string   `json:"matchId"`
	Participants []string `json:"participants"`
}

// MatchInfo carries the game duration and per-participant counters.
type MatchInfo struct {
	GameDuration int64         `json:"gameDuration"` // seconds
	Participants []Participant `json:"participants"`
}

// Participant is one player's end-of-game line.
type Participant struct {
	PUUID                          string `json:"puuid"`
	ParticipantID                  int    `json:"participantId"`
	TeamID                         int    `json:"teamId"`
	TeamPosition                   string `json:"teamPosition"`
	ChampionName                   string `json:"championName"`
	Win                            bool   `json:"win"`
	Kills                          int    `json:"kills"`
	Deaths                         int    `json:"deaths"`
	Assists                        int    `json:"assists"`
	TotalDamageDealtToChampions    int64  `json:"totalDamageDealtToChampions"`
	GoldEarned                     int64  `json:"goldEarned"`
	ChampExperience                int64  `json:"champExperience"`
	VisionScore                    int64  `json:"visionScore"`
	DamageDealtToObjectives        int64  `json:"damageDealtToObjectives"`
	TotalDamageTaken               int64  `json:"totalDamageTaken"`
	TotalHealsOnTeammates          int64  `json:"totalHealsOnTeammates"`
	TotalDamageShieldedOnTeammates int64  `json:"totalDamageShieldedOnTeammates"`
}

// Participant returns the participant with the given puuid, or nil.
func (m *MatchDetail) Participant(puuid string) *Participant {
	if m == nil {
		return nil
	}
	for i := range m.Info.Participants {
		if m.Info.Participants[i].PUUID == puuid {
			return &m.Info.Participants[i]
		}
	}
	return nil
}

// MatchTimeline is the per-minute snapshot series of a match.
type MatchTimeline struct {
	Metadata MatchMetadata `json:"metadata"`
	Info     TimelineInfo  `json:"info"`
}

// TimelineInfo holds the frames, one per minute starting at 0.
type TimelineInfo struct {
	Frames []Frame `json:"frames"`
}

// Frame is one snapshot keyed by participant id ("1".."10").
type Frame struct {
	Timestamp         int64                       `json:"timestamp"`
	ParticipantFrames map[string]ParticipantFrame `json:"participantFrames"`
}

// ParticipantFrame carries the cumulative totals at a frame.
type ParticipantFrame struct {
	TotalGold int64 `json:"totalGold"`
	XP        int64 `json:"xp"`
}
