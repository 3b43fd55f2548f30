package guard

import (
	"context"
	"strconv"
	"strings"

	"github.com/MrEthical07/authcore/audit"
	"github.com/MrEthical07/authcore/identity"
)

// Rule names a suspicious-activity heuristic.
type Rule string

const (
	RuleRepeatedFailures Rule = "repeated_failures"
	RuleMultipleOrigins  Rule = "multiple_origins"
	RuleOffHoursLogin    Rule = "off_hours_login"
)

// Finding is one heuristic that fired.
type Finding struct {
	Rule        Rule
	Severity    audit.Severity
	Description string
	Count       int
}

// Assess evaluates every heuristic over the account's recent attempts and
// emits one suspicious_activity audit event per finding.
func (g *Guard) Assess(ctx context.Context, accountID string) ([]Finding, error) {
	now := g.clock.Now()
	window := g.cfg.ActivityWindow
	if g.cfg.FailureWindow > window {
		window = g.cfg.FailureWindow
	}

	attempts, err := g.attempts.ListAttempts(ctx, accountID, now.Add(-window))
	if err != nil {
		return nil, err
	}

	failSince := now.Add(-g.cfg.FailureWindow)
	activitySince := now.Add(-g.cfg.ActivityWindow)

	var failures, offHours int
	ips := make(map[string]struct{})
	countries := make(map[string]struct{})
	for _, a := range attempts {
		if !a.Success {
			if !a.At.Before(failSince) {
				failures++
			}
			continue
		}
		if a.At.Before(activitySince) {
			continue
		}
		if a.IP != "" {
			ips[a.IP] = struct{}{}
		}
		if c := strings.TrimSpace(a.Country); c != "" {
			countries[strings.ToUpper(c)] = struct{}{}
		}
		if g.offHours(a) {
			offHours++
		}
	}

	var findings []Finding
	if failures >= g.cfg.FailureAlertCount {
		findings = append(findings, Finding{
			Rule:        RuleRepeatedFailures,
			Severity:    audit.SeverityHigh,
			Description: "repeated failed logins in the last " + g.cfg.FailureWindow.String(),
			Count:       failures,
		})
	}
	if len(ips) > g.cfg.MaxDistinctIPs || len(countries) > g.cfg.MaxDistinctCountries {
		n := len(ips)
		if len(countries) > n {
			n = len(countries)
		}
		findings = append(findings, Finding{
			Rule:        RuleMultipleOrigins,
			Severity:    audit.SeverityMedium,
			Description: "successful logins from " + strconv.Itoa(len(ips)) + " addresses in " + strconv.Itoa(len(countries)) + " countries",
			Count:       n,
		})
	}
	if offHours > 0 {
		findings = append(findings, Finding{
			Rule:        RuleOffHoursLogin,
			Severity:    audit.SeverityLow,
			Description: "successful login outside business hours",
			Count:       offHours,
		})
	}

	for _, f := range findings {
		g.audit.Emit(ctx, audit.Event{
			EventType:   "suspicious_activity",
			Description: f.Description,
			AccountID:   accountID,
			Severity:    f.Severity,
			Metadata: map[string]string{
				"rule":  string(f.Rule),
				"count": strconv.Itoa(f.Count),
			},
		})
	}
	return findings, nil
}

// CheckSuspiciousActivity reports whether any finding is medium or above.
func (g *Guard) CheckSuspiciousActivity(ctx context.Context, accountID string) (bool, error) {
	findings, err := g.Assess(ctx, accountID)
	if err != nil {
		return false, err
	}
	return Suspicious(findings), nil
}

// Suspicious reports whether findings contain anything of medium severity or above.
func Suspicious(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity.AtLeast(audit.SeverityMedium) {
			return true
		}
	}
	return false
}

func (g *Guard) offHours(a identity.LoginAttempt) bool {
	h := a.At.In(g.cfg.Location).Hour()
	start, end := g.cfg.OffHoursStart, g.cfg.OffHoursEnd
	if start == end {
		return false
	}
	if start > end {
		return h >= start || h < end
	}
	return h >= start && h < end
}
