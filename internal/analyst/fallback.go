package analyst

import (
	"fmt"
	"strings"
)

func Fallback(in Input) Assessment {
	sev := normalizeSeverity(in.Severity)
	conf := map[string]float64{"high": 0.7, "med": 0.5, "low": 0.4}[sev]
	return Assessment{
		Severity:   sev,
		OneLiner:   oneLiner(in, sev),
		Why:        trimList(why(in), 3),
		Watch:      trimList(watch(in, sev), 3),
		Confidence: conf,
		Tags:       []string{strings.ToLower(in.Type), "fallback"},
		Mode:       "fallback",
	}
}

func sanitize(out Assessment, in Input) Assessment {
	out.Severity = normalizeSeverity(out.Severity)
	if out.OneLiner == "" {
		out.OneLiner = oneLiner(in, out.Severity)
	}
	if len(out.Why) == 0 {
		out.Why = why(in)
	}
	if len(out.Watch) == 0 {
		out.Watch = watch(in, out.Severity)
	}
	out.Why = trimList(out.Why, 3)
	out.Watch = trimList(out.Watch, 3)
	out.Confidence = min(max(out.Confidence, 0), 1)
	return out
}

func normalizeSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return "high"
	case "med", "medium":
		return "med"
	default:
		return "low"
	}
}

func oneLiner(in Input, sev string) string {
	sym := strings.ToUpper(in.Symbol)
	switch strings.ToUpper(in.Type) {
	case "SPREAD_WIDE":
		return fmt.Sprintf("%s quotes diverge across exchanges (%s)", sym, sev)
	case "FORECAST_MOVE":
		dir := "up"
		if in.ForecastPct < 0 {
			dir = "down"
		}
		return fmt.Sprintf("%s trend model points %s for the next step (%s)", sym, dir, sev)
	}
	return fmt.Sprintf("%s %s event (%s)", sym, strings.ToLower(in.Type), sev)
}

func why(in Input) []string {
	var out []string
	switch strings.ToUpper(in.Type) {
	case "SPREAD_WIDE":
		out = append(out, fmt.Sprintf("Highest bid exceeds lowest ask by %.2f%% (threshold %.2f%%)", in.SpreadPct, in.Threshold))
		if in.LowSource != "" && in.HighSource != "" {
			out = append(out, fmt.Sprintf("Lowest ask on %s, highest bid on %s", in.LowSource, in.HighSource))
		}
	case "FORECAST_MOVE":
		out = append(out, fmt.Sprintf("Next-step forecast %.4f vs last price %.4f (%+.2f%%)", in.Forecast, in.LastPrice, in.ForecastPct))
		out = append(out, fmt.Sprintf("Threshold %.2f%%", in.Threshold))
	}
	if len(out) == 0 {
		out = []string{"Evidence is included in the event"}
	}
	return out
}

func watch(in Input, sev string) []string {
	if strings.ToUpper(in.Type) == "SPREAD_WIDE" {
		return []string{"Check whether one venue is lagging or halted", "Confirm the spread persists over the next cycles"}
	}
	switch sev {
	case "high":
		return []string{"Confirm with the next observed prices", "Watch source failures that may skew the series"}
	default:
		return []string{"Keep observing"}
	}
}

func FormatMarkdown(title string, a Assessment) string {
	if title == "" {
		title = "Assessment"
	}
	lines := []string{
		fmt.Sprintf("### %s", title),
		fmt.Sprintf("**Summary**: %s (severity=%s)", a.OneLiner, a.Severity),
		"",
		"**Evidence**:",
	}
	for _, w := range a.Why {
		lines = append(lines, "- "+w)
	}
	lines = append(lines, "", "**Watch**:")
	for _, w := range a.Watch {
		lines = append(lines, "- "+w)
	}
	lines = append(lines, "", fmt.Sprintf("**Confidence**: %.2f (%s)", a.Confidence, a.Mode))
	return strings.Join(lines, "\n")
}

func trimList(in []string, n int) []string {
	if len(in) > n {
		return in[:n]
	}
	return in
}
