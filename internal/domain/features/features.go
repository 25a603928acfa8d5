// Package features turns one match (detail plus timeline) into the fixed-order
// vector consumed by the role models.
package features

import (
	"context"
	"strconv"

	"github.com/okian/champstock/internal/domain/model"
	"github.com/okian/champstock/pkg/logger"
)

// MinDurationMinutes is the shortest game that produces a vector.
const MinDurationMinutes = 5.0

// laneFrameIndex is the timeline frame used for the 15-minute lane diffs.
const laneFrameIndex = 15

// Names is the canonical feature order. Vector.Values follows it exactly.
var Names = []string{
	"kda",
	"dmg_to_champions_per_min",
	"team_damage_share",
	"team_gold_share",
	"gold_diff_15",
	"exp_diff_15",
	"kill_participation",
	"objective_damage_per_min",
	"team_objective_damage_share",
	"vision_score_per_min",
	"team_vision_score_share",
	"damage_taken_per_min",
	"damage_taken_share",
	"healing_shielding_allies_per_min",
	"gold_diff_per_min",
	"exp_diff_per_min",
	"win_loss",
}

// Vector is the per-game feature set for one participant.
type Vector struct {
	Role model.Role

	KDA                          float64
	DmgToChampionsPerMin         float64
	TeamDamageShare              float64
	TeamGoldShare                float64
	GoldDiff15                   float64
	ExpDiff15                    float64
	KillParticipation            float64
	ObjectiveDamagePerMin        float64
	TeamObjectiveDamageShare     float64
	VisionScorePerMin            float64
	TeamVisionScoreShare         float64
	DamageTakenPerMin            float64
	DamageTakenShare             float64
	HealingShieldingAlliesPerMin float64
	GoldDiffPerMin               float64
	ExpDiffPerMin                float64
	WinLoss                      float64
}

// Values returns the numeric features in Names order.
func (v Vector) Values() []float64 {
	return []float64{
		v.KDA,
		v.DmgToChampionsPerMin,
		v.TeamDamageShare,
		v.TeamGoldShare,
		v.GoldDiff15,
		v.ExpDiff15,
		v.KillParticipation,
		v.ObjectiveDamagePerMin,
		v.TeamObjectiveDamageShare,
		v.VisionScorePerMin,
		v.TeamVisionScoreShare,
		v.DamageTakenPerMin,
		v.DamageTakenShare,
		v.HealingShieldingAlliesPerMin,
		v.GoldDiffPerMin,
		v.ExpDiffPerMin,
		v.WinLoss,
	}
}

// Extractor computes vectors. The zero value logs nothing.
type Extractor struct {
	log logger.Logger
}

// NewExtractor returns an extractor that reports missing timeline data to log.
func NewExtractor(log logger.Logger) *Extractor {
	return &Extractor{log: log}
}

type teamTotals struct {
	damage, gold, vision, objective, kills, taken float64
}

func totalsFor(ps []model.Participant, teamID int) teamTotals {
	var t teamTotals
	for _, p := range ps {
		if p.TeamID != teamID {
			continue
		}
		t.damage += float64(p.TotalDamageDealtToChampions)
		t.gold += float64(p.GoldEarned)
		t.vision += float64(p.VisionScore)
		t.objective += float64(p.DamageDealtToObjectives)
		t.kills += float64(p.Kills)
		t.taken += float64(p.TotalDamageTaken)
	}
	t.damage = atLeastOne(t.damage)
	t.gold = atLeastOne(t.gold)
	t.vision = atLeastOne(t.vision)
	t.objective = atLeastOne(t.objective)
	t.kills = atLeastOne(t.kills)
	t.taken = atLeastOne(t.taken)
	return t
}

func atLeastOne(v float64) float64 {
	if v < 1 {
		return 1
	}
	return v
}

// laneOpponent finds the enemy with the same assigned position.
func laneOpponent(ps []model.Participant, me *model.Participant) *model.Participant {
	if me.TeamPosition == "" {
		return nil
	}
	for i := range ps {
		if ps[i].TeamID != me.TeamID && ps[i].TeamPosition == me.TeamPosition {
			return &ps[i]
		}
	}
	return nil
}

// Extract builds the vector for puuid. It reports false when either payload is
// missing, the player did not take part, or the game is shorter than five minutes.
func (e *Extractor) Extract(ctx context.Context, detail *model.MatchDetail, timeline *model.MatchTimeline, puuid string) (Vector, bool) {
	if detail == nil || timeline == nil {
		return Vector{}, false
	}
	me := detail.Participant(puuid)
	if me == nil {
		return Vector{}, false
	}
	minutes := float64(detail.Info.GameDuration) / 60.0
	if minutes < MinDurationMinutes {
		return Vector{}, false
	}

	ps := detail.Info.Participants
	team := totalsFor(ps, me.TeamID)
	kills, deaths, assists := float64(me.Kills), float64(me.Deaths), float64(me.Assists)

	v := Vector{
		Role:                         model.RoleFromPosition(me.TeamPosition),
		KDA:                          (kills + assists) / atLeastOne(deaths),
		DmgToChampionsPerMin:         float64(me.TotalDamageDealtToChampions) / minutes,
		TeamDamageShare:              float64(me.TotalDamageDealtToChampions) / team.damage * 100,
		TeamGoldShare:                float64(me.GoldEarned) / team.gold * 100,
		KillParticipation:            (kills + assists) / team.kills * 100,
		ObjectiveDamagePerMin:        float64(me.DamageDealtToObjectives) / minutes,
		TeamObjectiveDamageShare:     float64(me.DamageDealtToObjectives) / team.objective * 100,
		VisionScorePerMin:            float64(me.VisionScore) / minutes,
		TeamVisionScoreShare:         float64(me.VisionScore) / team.vision * 100,
		DamageTakenPerMin:            float64(me.TotalDamageTaken) / minutes,
		DamageTakenShare:             float64(me.TotalDamageTaken) / team.taken * 100,
		HealingShieldingAlliesPerMin: float64(me.TotalHealsOnTeammates+me.TotalDamageShieldedOnTeammates) / minutes,
	}
	if me.Win {
		v.WinLoss = 1
	}

	opp := laneOpponent(ps, me)
	if opp == nil {
		return v, true
	}
	v.GoldDiffPerMin = float64(me.GoldEarned-opp.GoldEarned) / minutes
	v.ExpDiffPerMin = float64(me.ChampExperience-opp.ChampExperience) / minutes
	v.GoldDiff15, v.ExpDiff15 = e.laneDiff15(ctx, detail.Metadata.MatchID, timeline, me, opp)
	return v, true
}

// laneDiff15 reads gold and xp differences at the 15-minute frame. Missing data yields zeros.
func (e *Extractor) laneDiff15(ctx context.Context, matchID string, tl *model.MatchTimeline, me, opp *model.Participant) (float64, float64) {
	frames := tl.Info.Frames
	if len(frames) <= laneFrameIndex {
		if e.log != nil {
			e.log.Warn(ctx, "timeline has no 15 minute frame",
				logger.String("match_id", matchID),
				logger.Int("frames", len(frames)))
		}
		return 0, 0
	}
	pf := frames[laneFrameIndex].ParticipantFrames
	mine, ok1 := pf[strconv.Itoa(me.ParticipantID)]
	theirs, ok2 := pf[strconv.Itoa(opp.ParticipantID)]
	if !ok1 || !ok2 {
		if e.log != nil {
			e.log.Warn(ctx, "15 minute frame missing participant data",
				logger.String("match_id", matchID),
				logger.Int("participant_id", me.ParticipantID),
				logger.Int("opponent_id", opp.ParticipantID))
		}
		return 0, 0
	}
	return float64(mine.TotalGold - theirs.TotalGold), float64(mine.XP - theirs.XP)
}
