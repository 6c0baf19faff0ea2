package stops

import (
	"fmt"
	"strings"

	"github.com/roadtripper/roadtripper/internal/places"
)

// ExtractAttributes matches rule phrases against review and hours text. Absent
// phrases mean unknown, so nothing is reported for them.
func ExtractAttributes(rules []AttributeRule, d *places.Details) (verified, cautions []string) {
	text := strings.Join([]string{d.ReviewText(), strings.ToLower(strings.Join(d.WeekdayHours, "\n"))}, "\n")
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	for _, rule := range rules {
		for _, phrase := range rule.Phrases {
			if phrase == "" || !strings.Contains(text, strings.ToLower(phrase)) {
				continue
			}
			if rule.Negative {
				cautions = appendUnique(cautions, rule.Label)
			} else {
				verified = appendUnique(verified, rule.Label)
			}
			break
		}
	}
	return verified, cautions
}

// Justify writes the one-sentence explanation shown with a stop.
func Justify(s *Stop) string {
	var b strings.Builder

	if s.ReviewCount > 0 {
		fmt.Fprintf(&b, "Rated %.1f from %d reviews", s.Rating, s.ReviewCount)
	} else {
		b.WriteString("Not yet widely reviewed")
	}

	if s.DistanceOffRouteMiles < 0.1 {
		b.WriteString(", right on your route")
	} else {
		fmt.Fprintf(&b, ", %.1f miles off route", s.DistanceOffRouteMiles)
	}

	minutes := int(s.DetourMinutes + 0.5)
	switch {
	case minutes <= 0:
		b.WriteString(" with no added drive time")
	case s.DetourEstimated:
		fmt.Fprintf(&b, " (roughly a %d-minute detour)", minutes)
	default:
		fmt.Fprintf(&b, " (adds about %d minutes)", minutes)
	}
	b.WriteString(".")

	if len(s.VerifiedAttributes) > 0 {
		fmt.Fprintf(&b, " Reviewers mention %s.", joinList(s.VerifiedAttributes))
	}
	if len(s.Cautions) > 0 {
		fmt.Fprintf(&b, " Heads up: %s.", joinList(s.Cautions))
	}
	if s.Relaxed {
		b.WriteString(" Found after widening the search limits.")
	}
	return b.String()
}

func joinList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	}
	return strings.Join(items[:len(items)-1], ", ") + ", and " + items[len(items)-1]
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
