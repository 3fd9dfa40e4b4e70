package escalation

import (
	"sort"
	"time"

	"github.com/pulseguard/pulseguard/internal/config"
	"github.com/pulseguard/pulseguard/internal/types"
	"github.com/rs/zerolog"
)

// Level is one stage of an escalation plan: who is responsible and by
// when they must respond.
type Level struct {
	ID           string        `json:"id"`
	Role         string        `json:"role"`
	Team         []string      `json:"team"`
	ResponseTime time.Duration `json:"response_time"`
	ScheduledAt  time.Time     `json:"scheduled_at"`
}

// Plan is an ordered, time-boxed sequence of responsible teams for an
// alert. It is advisory data, immutable once computed.
type Plan struct {
	AlertID string  `json:"alert_id"`
	Levels  []Level `json:"levels"`
}

// Planner computes escalation plans from the level definitions and the
// team roster.
type Planner struct {
	log zerolog.Logger
	cfg config.EscalationConfig
}

// NewPlanner creates a planner over the escalation configuration.
func NewPlanner(log zerolog.Logger, cfg config.EscalationConfig) *Planner {
	return &Planner{
		log: log.With().Str("component", "escalation").Logger(),
		cfg: cfg,
	}
}

// Plan computes the staged responsibility plan for an alert. The chain
// is looked up by fault type, falling back to a severity-keyed default.
// scheduledAt for level i is now plus the cumulative response budgets
// of all earlier levels, so the values are strictly increasing.
func (p *Planner) Plan(alertID, alertType string, severity types.Severity, now time.Time) Plan {
	chain := p.cfg.ChainsByType[alertType]
	if len(chain) == 0 {
		chain = p.cfg.ChainsBySeverity[string(severity)]
	}
	if len(chain) == 0 {
		p.log.Warn().
			Str("alert_type", alertType).
			Str("severity", string(severity)).
			Msg("no escalation chain configured")
		return Plan{AlertID: alertID}
	}

	plan := Plan{AlertID: alertID, Levels: make([]Level, 0, len(chain))}
	scheduledAt := now
	for _, levelID := range chain {
		levelCfg := p.cfg.Levels[levelID]
		plan.Levels = append(plan.Levels, Level{
			ID:           levelID,
			Role:         levelCfg.TeamRole,
			Team:         p.resolveTeam(levelCfg.TeamRole, now),
			ResponseTime: levelCfg.ResponseTime.Std(),
			ScheduledAt:  scheduledAt,
		})
		scheduledAt = scheduledAt.Add(levelCfg.ResponseTime.Std())
	}
	return plan
}

// resolveTeam returns the members holding the role, ordered on-call
// first, then currently available, preserving roster order otherwise.
func (p *Planner) resolveTeam(role string, now time.Time) []string {
	type candidate struct {
		name      string
		available bool
		oncall    bool
	}

	var candidates []candidate
	for _, member := range p.cfg.Roster {
		if !hasRole(member, role) {
			continue
		}
		candidates = append(candidates, candidate{
			name:      member.Name,
			available: scheduleAllows(member.Schedule, now),
		})
	}
	if len(candidates) == 0 {
		return nil
	}

	// Deterministic rotation: one member per rotation week.
	oncallIdx := rotationWeek(now) % len(candidates)
	candidates[oncallIdx].oncall = true

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidateRank(candidates[i].oncall, candidates[i].available) <
			candidateRank(candidates[j].oncall, candidates[j].available)
	})

	team := make([]string, len(candidates))
	for i, c := range candidates {
		team[i] = c.name
	}
	return team
}

func candidateRank(oncall, available bool) int {
	switch {
	case oncall:
		return 0
	case available:
		return 1
	default:
		return 2
	}
}

func hasRole(member config.RosterMember, role string) bool {
	for _, r := range member.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// rotationWeek numbers weeks from the start of the year. A persisted
// scheduling source would replace this in production.
func rotationWeek(now time.Time) int {
	return now.YearDay() / 7
}

// scheduleAllows reports whether now falls inside the member's declared
// availability window.
func scheduleAllows(schedule config.ScheduleConfig, now time.Time) bool {
	switch schedule.Type {
	case "", "24x7":
		return true
	case "business_hours":
		if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
			return false
		}
		return clockWithin(schedule.Start, schedule.End, now)
	case "extended_hours":
		return clockWithin(schedule.Start, schedule.End, now)
	default:
		return false
	}
}

// clockWithin checks start <= now's clock time < end, with times in
// "15:04" form. Malformed bounds fail closed.
func clockWithin(start, end string, now time.Time) bool {
	startT, err := time.Parse("15:04", start)
	if err != nil {
		return false
	}
	endT, err := time.Parse("15:04", end)
	if err != nil {
		return false
	}

	minutes := now.Hour()*60 + now.Minute()
	startM := startT.Hour()*60 + startT.Minute()
	endM := endT.Hour()*60 + endT.Minute()
	return minutes >= startM && minutes < endM
}
