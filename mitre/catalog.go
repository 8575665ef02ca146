// Package mitre holds the small slice of the MITRE ATT&CK catalog that
// detections are labelled with.
package mitre

import (
	"fmt"
	"sort"
	"strings"
)

const attackBaseURL = "https://attack.mitre.org"

// Tactic is an ATT&CK tactic (kill chain phase).
type Tactic struct {
	ID        string `json:"id"`         // e.g. TA0006
	ShortName string `json:"short_name"` // e.g. credential-access
	Name      string `json:"name"`       // e.g. Credential Access
}

// Technique is an ATT&CK technique referenced by a detection rule.
type Technique struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Tactic string `json:"tactic"` // tactic short name
}

// URL returns the ATT&CK page of the technique. Sub-techniques map to
// "Txxxx/yyy".
func (t Technique) URL() string {
	return TechniqueURL(t.ID)
}

var tactics = []Tactic{
	{ID: "TA0043", ShortName: "reconnaissance", Name: "Reconnaissance"},
	{ID: "TA0042", ShortName: "resource-development", Name: "Resource Development"},
	{ID: "TA0001", ShortName: "initial-access", Name: "Initial Access"},
	{ID: "TA0002", ShortName: "execution", Name: "Execution"},
	{ID: "TA0003", ShortName: "persistence", Name: "Persistence"},
	{ID: "TA0004", ShortName: "privilege-escalation", Name: "Privilege Escalation"},
	{ID: "TA0005", ShortName: "defense-evasion", Name: "Defense Evasion"},
	{ID: "TA0006", ShortName: "credential-access", Name: "Credential Access"},
	{ID: "TA0007", ShortName: "discovery", Name: "Discovery"},
	{ID: "TA0008", ShortName: "lateral-movement", Name: "Lateral Movement"},
	{ID: "TA0009", ShortName: "collection", Name: "Collection"},
	{ID: "TA0011", ShortName: "command-and-control", Name: "Command and Control"},
	{ID: "TA0010", ShortName: "exfiltration", Name: "Exfiltration"},
	{ID: "TA0040", ShortName: "impact", Name: "Impact"},
}

var techniques = map[string]Technique{
	"T1110": {ID: "T1110", Name: "Brute Force", Tactic: "credential-access"},
	"T1136": {ID: "T1136", Name: "Create Account", Tactic: "persistence"},
	"T1098": {ID: "T1098", Name: "Account Manipulation", Tactic: "persistence"},
	"T1059": {ID: "T1059", Name: "Command and Scripting Interpreter", Tactic: "execution"},
	"T1071": {ID: "T1071", Name: "Application Layer Protocol", Tactic: "command-and-control"},
}

// LookupTechnique returns the catalog entry for id (case-insensitive).
func LookupTechnique(id string) (Technique, bool) {
	t, ok := techniques[strings.ToUpper(strings.TrimSpace(id))]
	return t, ok
}

// Techniques returns all catalogued techniques ordered by ID.
func Techniques() []Technique {
	out := make([]Technique, 0, len(techniques))
	for _, t := range techniques {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TechniqueURL builds the ATT&CK URL for a technique or sub-technique ID.
func TechniqueURL(id string) string {
	id = strings.ToUpper(strings.TrimSpace(id))
	if id == "" {
		return ""
	}
	return fmt.Sprintf("%s/techniques/%s/", attackBaseURL, strings.ReplaceAll(id, ".", "/"))
}

// LookupTactic resolves a tactic by ID, short name or display name.
func LookupTactic(key string) (Tactic, bool) {
	k := strings.ToLower(strings.TrimSpace(key))
	for _, t := range tactics {
		if strings.ToLower(t.ID) == k || t.ShortName == k || strings.ToLower(t.Name) == k {
			return t, true
		}
	}
	return Tactic{}, false
}
