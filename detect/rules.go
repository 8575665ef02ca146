package detect

import (
	"regexp"
	"strconv"
	"strings"

	"sentra/core"
	"sentra/mitre"
)

// Windows Security and Sysmon event IDs the rules key on.
const (
	evtFailedLogon     = 4625
	evtAccountLocked   = 4740
	evtUserCreated     = 4720
	evtPasswordReset   = 4724
	evtPasswordChanged = 4723

	sysmonProcessCreate  = 1
	sysmonNetworkConnect = 3
)

var (
	eventIDPattern     = regexp.MustCompile(`(?i)Event\s*ID\s*[:=]?\s*(\d{3,5})|EventID\s*[:=]?\s*(\d{3,5})`)
	accountNamePattern = regexp.MustCompile(`(?i)Account\s+Name:\s*(.+)`)
)

// Dual-use binaries commonly abused for execution.
var lolbins = []string{
	"powershell", "pwsh", "cmd.exe", "wscript", "cscript",
	"rundll32", "regsvr32", "mshta", "wmic", "certutil",
	"bitsadmin", "schtasks", "net.exe", "sc.exe",
}

var (
	execIndicators    = []string{"encodedcommand", "frombase64string", "iex", "invoke-", "downloadstring", "wget", "curl", "http://", "https://"}
	evasionIndicators = []string{"executionpolicy", "bypass", "hidden", "-nop", "-w hidden"}
	processIndicators = []string{"powershell", "encodedcommand", "rundll32", "regsvr32", "mshta", "certutil", "bitsadmin"}
	networkIndicators = []string{"destinationip", "remote address", "http", "https", "powershell", "rundll32", "mshta"}
)

// ExtractEventID pulls a 3-5 digit event ID out of free-text details.
func ExtractEventID(details string) (int, bool) {
	m := eventIDPattern.FindStringSubmatch(details)
	if m == nil {
		return 0, false
	}
	s := m[1]
	if s == "" {
		s = m[2]
	}
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return id, true
}

// NormalizeUser prefers the explicit user field, then an "Account Name:"
// line in details, then core.UnknownUser.
func NormalizeUser(e core.EventRecord) string {
	if strings.TrimSpace(e.User) != "" {
		return e.User
	}
	if m := accountNamePattern.FindStringSubmatch(e.Details); m != nil {
		if fields := strings.Fields(m[1]); len(fields) > 0 {
			return fields[0]
		}
	}
	return core.UnknownUser
}

// LooksSysmon reports whether the event came from the Sysmon endpoint sensor.
func LooksSysmon(e core.EventRecord) bool {
	return strings.EqualFold(e.Type, "Sysmon") ||
		strings.EqualFold(e.Source, "Sysmon") ||
		strings.Contains(strings.ToLower(e.Type), "sysmon")
}

// eventView is the per-event data every rule reads, computed once.
type eventView struct {
	typ     string
	details string
	process string
	eventID int
	hasID   bool
	sysmon  bool
}

func newEventView(e core.EventRecord) *eventView {
	id, ok := ExtractEventID(e.Details)
	return &eventView{
		typ:     strings.ToLower(e.Type),
		details: strings.ToLower(e.Details),
		process: strings.ToLower(e.Process),
		eventID: id,
		hasID:   ok,
		sysmon:  LooksSysmon(e),
	}
}

func (v *eventView) idIs(ids ...int) bool {
	if !v.hasID {
		return false
	}
	for _, id := range ids {
		if v.eventID == id {
			return true
		}
	}
	return false
}

// containsAny does a case-insensitive substring check; needles may be mixed case.
func containsAny(lowerHaystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(lowerHaystack, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// Rule is one row of the ordered detection table.
type Rule struct {
	ID        string `json:"id"`
	Technique string `json:"technique"`
	Name      string `json:"name"`
	Tactic    string `json:"tactic"`
	Severity  string `json:"severity"`
	// Source, when set, replaces the event source on detections.
	Source string `json:"source,omitempty"`
	// Reference is the ATT&CK page of the technique.
	Reference string `json:"reference,omitempty"`

	match func(v *eventView) bool
}

// DefaultRules returns the ordered rule table. Evaluation stops at the first match.
func DefaultRules() []Rule {
	rules := []Rule{
		{
			ID: "sentra-a", Technique: "T1110", Name: "Brute Force / Failed Logon",
			Tactic: "Credential Access", Severity: core.SeverityHigh,
			match: func(v *eventView) bool {
				return v.idIs(evtFailedLogon) ||
					(v.typ == "security" && containsAny(v.details, "An account failed to log on", "failed logon", "logon failure"))
			},
		},
		{
			ID: "sentra-b", Technique: "T1110", Name: "Account Lockout Detected",
			Tactic: "Credential Access", Severity: core.SeverityHigh,
			match: func(v *eventView) bool {
				return v.idIs(evtAccountLocked) || containsAny(v.details, "account was locked out", "4740")
			},
		},
		{
			ID: "sentra-c", Technique: "T1136", Name: "New User Account Created",
			Tactic: "Persistence", Severity: core.SeverityHigh,
			match: func(v *eventView) bool {
				return v.idIs(evtUserCreated) || containsAny(v.details, "A user account was created", "4720")
			},
		},
		{
			ID: "sentra-d", Technique: "T1098", Name: "Credential Change/Reset",
			Tactic: "Persistence", Severity: core.SeverityMedium,
			match: func(v *eventView) bool {
				return v.idIs(evtPasswordReset, evtPasswordChanged) ||
					containsAny(v.details, "password was reset", "password was changed", "4724", "4723")
			},
		},
		{
			ID: "sentra-e", Technique: "T1059", Name: "Suspicious Script/Command Execution",
			Tactic: "Execution", Severity: core.SeverityHigh,
			match: func(v *eventView) bool {
				return containsAny(v.process, lolbins...) &&
					(containsAny(v.details, execIndicators...) || containsAny(v.details, evasionIndicators...))
			},
		},
		{
			ID: "sentra-f", Technique: "T1059", Name: "Suspicious Process Creation (endpoint-sensor)",
			Tactic: "Execution", Severity: core.SeverityHigh, Source: "Sysmon",
			match: func(v *eventView) bool {
				return v.sysmon &&
					(v.idIs(sysmonProcessCreate) || containsAny(v.details, "EventID 1", "Process Create")) &&
					containsAny(v.details, processIndicators...)
			},
		},
		{
			ID: "sentra-g", Technique: "T1071", Name: "Suspicious Network Connection (endpoint-sensor)",
			Tactic: "Command and Control", Severity: core.SeverityMedium, Source: "Sysmon",
			match: func(v *eventView) bool {
				return v.sysmon &&
					(v.idIs(sysmonNetworkConnect) || containsAny(v.details, "EventID 3", "Network connection")) &&
					containsAny(v.details, networkIndicators...)
			},
		},
	}
	for i := range rules {
		rules[i].Reference = mitre.TechniqueURL(rules[i].Technique)
	}
	return rules
}
