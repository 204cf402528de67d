package gemini

import "fmt"

func analysisPrompt(name string) string {
	return fmt.Sprintf(`Extract key information about the robot '%s'.
Output ONLY a valid JSON object like this, with no extra text or markdown:
{
    "name": "Full official name",
    "manufacturer": "The manufacturer",
    "summary": "A one-sentence summary.",
    "specs": { "Weight": "...", "Payload": "..." }
}

### JSON Output:
`, name)
}

func groundedAnalysisPrompt(name, results string) string {
	return fmt.Sprintf(`Based on the provided search results for '%s', extract key information.
Output ONLY a valid JSON object like this, with no extra text or markdown:
{
    "name": "Full official name",
    "manufacturer": "The manufacturer",
    "summary": "A one-sentence summary.",
    "specs": { "Weight": "...", "Payload": "..." }
}

### Search Results:
%s

### JSON Output:
`, name, results)
}

func competitorPrompt(name string) string {
	return fmt.Sprintf(`I am researching the humanoid robot '%s'. Identify its top 2-3 main competitors in the same category.
Provide the output ONLY as a JSON list of objects, each with "name" and "manufacturer".
Example: [{"name": "Optimus", "manufacturer": "Tesla"}]. Do not add any other text.

### Competitors List (JSON):
`, name)
}

func reportPrompt(compiled string, gaps bool) string {
	note := ""
	if gaps {
		note = `Some entries have "outcome": "error"; list them under "data_gaps" and do not invent data for them.
`
	}
	return fmt.Sprintf(`You are a senior market analyst. Based on the compiled JSON data for multiple robots, generate a comprehensive strategic analysis report.
The report must be a single, valid JSON object. Do not add any text outside this JSON object.
The structure should include: "executive_summary", "competitive_landscape", and "market_trends_and_predictions".
%s
### Compiled Data:
%s

### Strategic Report (JSON):
`, note, compiled)
}
