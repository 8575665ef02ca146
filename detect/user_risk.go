package detect

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"sentra/core"
)

const (
	defaultDomain  = "CORP"
	riskBase       = 20
	riskPerAnomaly = 15
	riskMax        = 100
)

// UserRisk is a simple per-account risk summary.
type UserRisk struct {
	UserName    string `json:"user_name" yaml:"user_name"`
	Domain      string `json:"domain" yaml:"domain"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Email       string `json:"email" yaml:"email"`
	RiskScore   int    `json:"risk_score" yaml:"risk_score"`
	Anomalies   int    `json:"anomalies" yaml:"anomalies"`
	Events      int    `json:"events" yaml:"events"`
}

// UserRisks scores every non-blank user: 20 points plus 15 per suspicious
// event, capped at 100. Highest risk first; ties ordered by user name.
func UserRisks(events []core.EventRecord) []UserRisk {
	type acc struct {
		events    int
		anomalies int
	}
	byUser := make(map[string]*acc)
	for _, e := range events {
		if isBlank(e.User) {
			continue
		}
		a := byUser[e.User]
		if a == nil {
			a = &acc{}
			byUser[e.User] = a
		}
		a.events++
		if isSuspicious(e) {
			a.anomalies++
		}
	}

	out := make([]UserRisk, 0, len(byUser))
	for raw, a := range byUser {
		domain, user := splitDomainUser(raw)
		mailDomain := "local"
		if domain != "" {
			mailDomain = strings.ToLower(domain)
		}
		out = append(out, UserRisk{
			UserName:    user,
			Domain:      domain,
			DisplayName: displayName(user),
			Email:       user + "@" + mailDomain + ".local",
			RiskScore:   clampRisk(riskBase + a.anomalies*riskPerAnomaly),
			Anomalies:   a.anomalies,
			Events:      a.events,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RiskScore != out[j].RiskScore {
			return out[i].RiskScore > out[j].RiskScore
		}
		return out[i].Domain+`\`+out[i].UserName < out[j].Domain+`\`+out[j].UserName
	})
	return out
}

func isSuspicious(e core.EventRecord) bool {
	if strings.EqualFold(e.Severity, core.SeverityWarning) || strings.EqualFold(e.Severity, core.SeverityError) {
		return true
	}
	return containsAny(strings.ToLower(e.Details), "failed login", "failed logon")
}

func clampRisk(v int) int {
	if v > riskMax {
		return riskMax
	}
	if v < 0 {
		return 0
	}
	return v
}

func splitDomainUser(raw string) (string, string) {
	parts := strings.Split(raw, `\`)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return defaultDomain, raw
}

// displayName turns "john.doe" into "John Doe" and "jdoe" into "Jdoe".
func displayName(user string) string {
	if isBlank(user) {
		return ""
	}
	parts := strings.Split(user, ".")
	for i, p := range parts {
		parts[i] = upperFirst(p)
	}
	return strings.Join(parts, " ")
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
