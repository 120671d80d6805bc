package profiles

import (
	"time"
)

// Profile is the per-source aggregate across all classified events. Profiles
// are global (a source identifier is not user-owned) and never deleted.
type Profile struct {
	SourceIP         string         `json:"source_ip"          db:"source_ip"`
	TotalAttacks     int            `json:"total_attacks"      db:"total_attacks"`
	MostCommonAttack string         `json:"most_common_attack"`
	AverageRisk      float64        `json:"average_risk_score" db:"average_risk"`
	FirstSeen        time.Time      `json:"first_seen"         db:"first_seen"`
	LastSeen         time.Time      `json:"last_seen"          db:"last_seen"`
	AttackTypes      map[string]int `json:"attack_types"       db:"attack_types"`
	ServicesTargeted map[string]int `json:"services_targeted"  db:"services_targeted"`
}

// Update is one accumulation step: the classification of a single event.
type Update struct {
	AttackType string
	RiskScore  int
	Service    string
	Timestamp  time.Time
}

// Apply folds one update into the profile. The operation is commutative up
// to ordering of equal timestamps, so any serial order of concurrent updates
// yields the same end state. The PostgreSQL repository performs the same
// arithmetic in a single atomic statement; this function is the reference
// semantics, used by in-memory stores.
func Apply(p *Profile, u Update) {
	if p.TotalAttacks == 0 {
		p.TotalAttacks = 1
		p.AverageRisk = float64(u.RiskScore)
		p.FirstSeen = u.Timestamp
		p.LastSeen = u.Timestamp
		p.AttackTypes = map[string]int{u.AttackType: 1}
		p.ServicesTargeted = map[string]int{u.Service: 1}
	} else {
		p.AverageRisk = (p.AverageRisk*float64(p.TotalAttacks) + float64(u.RiskScore)) / float64(p.TotalAttacks+1)
		p.TotalAttacks++
		p.AttackTypes[u.AttackType]++
		p.ServicesTargeted[u.Service]++
		if u.Timestamp.Before(p.FirstSeen) {
			p.FirstSeen = u.Timestamp
		}
		if u.Timestamp.After(p.LastSeen) {
			p.LastSeen = u.Timestamp
		}
	}
	p.MostCommonAttack = MostCommon(p.AttackTypes)
}

// MostCommon returns the argmax of the histogram, ties broken lexically.
func MostCommon(hist map[string]int) string {
	best, bestCount := "", -1
	for k, c := range hist {
		if c > bestCount || (c == bestCount && k < best) {
			best, bestCount = k, c
		}
	}
	return best
}
