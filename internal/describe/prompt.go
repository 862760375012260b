package describe

import (
	"fmt"
	"strings"
)

// SystemPrompt frames the generation backend as a dashboard annotator for
// loan officers. Kept fixed so output stays comparable across customers.
const SystemPrompt = `You are an AI assistant that writes concise, insightful dashboard annotations for agricultural credit scoring.
- Audience: loan officers and risk analysts.
- Style: professional, supportive, data-driven, avoid jargon.
- Constraints: 2-4 sentences max. Do not invent data, avoid disclaimers, avoid mentioning missing data.
- Focus: key sectors, operational footprint, strengths/risks implied by activity mix and volumes.`

// BuildUserPrompt renders the facts into a deterministic prompt so the same
// cached state always produces the same generation request.
func BuildUserPrompt(facts Facts) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Customer: %s\n", facts.CustomerID)

	if len(facts.Sectors) > 0 {
		fmt.Fprintf(&b, "Active sectors: %s.\n", strings.Join(facts.SectorNames(), ", "))
	} else {
		b.WriteString("Active sectors: none.\n")
	}

	if facts.HasLocation() {
		fmt.Fprintf(&b, "Location: (%.3f, %.3f).\n", *facts.Latitude, *facts.Longitude)
	}

	if len(facts.Counts) > 0 {
		fmt.Fprintf(&b, "Activity volumes: %s.\n", strings.Join(facts.CountSummaries(), "; "))
	}

	b.WriteString("\nTask: Write a short dashboard annotation highlighting strengths and potential risks or considerations based on sector mix and volumes. Do not mention that this is AI-generated.")
	return b.String()
}
