package report

import (
	"math"

	"github.com/khanhnv2901/secheckup/internal/checker"
)

// Summary tallies the verdicts of one checkup.
type Summary struct {
	Total   int `json:"total"`
	Secure  int `json:"secure"`
	Warning int `json:"warning"`
	Danger  int `json:"danger"`
	Unknown int `json:"unknown"`
	Skipped int `json:"skipped"`
	// Score is the mean over evaluated verdicts (secure 100, warning 50,
	// danger 0). Unknown and skipped verdicts do not count.
	Score   float64        `json:"score"`
	Grade   string         `json:"grade"`
	Overall checker.Status `json:"overall"`
}

// Evaluated is the number of verdicts that contribute to the score.
func (s Summary) Evaluated() int {
	return s.Secure + s.Warning + s.Danger
}

// Summarize aggregates verdicts into a Summary. With no evaluated verdicts
// the score is 0, the grade is "N/A" and Overall is unknown.
func Summarize(verdicts []checker.Verdict) Summary {
	s := Summary{Total: len(verdicts)}
	points := 0
	for _, v := range verdicts {
		switch v.Status {
		case checker.StatusSecure:
			s.Secure++
			points += 100
		case checker.StatusWarning:
			s.Warning++
			points += 50
		case checker.StatusDanger:
			s.Danger++
		case checker.StatusSkipped:
			s.Skipped++
		default:
			s.Unknown++
		}
		if v.Status.Evaluated() {
			s.Overall = checker.Worst(s.Overall, v.Status)
		}
	}

	evaluated := s.Evaluated()
	if evaluated == 0 {
		s.Grade = "N/A"
		s.Overall = checker.StatusUnknown
		return s
	}
	s.Score = math.Round(float64(points)/float64(evaluated)*10) / 10
	s.Grade = Grade(s.Score)
	return s
}

// Grade maps a 0-100 score to a letter.
func Grade(score float64) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 75:
		return "B"
	case score >= 60:
		return "C"
	case score >= 45:
		return "D"
	default:
		return "F"
	}
}
