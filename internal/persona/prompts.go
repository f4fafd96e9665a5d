package persona

import (
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/cohort/internal/dataset"
)

const schemaExample = "```json\n" + `{
  "persona_id": "1",
  "description": "...",
  "motivation": "...",
  "challenges": "...",
  "learning_goals": "...",
  "preferred_learning_methods": "...",
  "suggested_learning_resources": [
      {
         "feature_name": "...",
         "description": "...",
         "justification": "..."
      }
  ]
}` + "\n```\n"

const fieldList = `- persona_id (a number, counting from 1 to n)
- description (an overall description of the persona)
- motivation (why this persona wants to learn)
- challenges (the challenges and pain points this persona faces)
- learning_goals (what this persona wants to achieve)
- preferred_learning_methods (how this persona prefers to learn)
- suggested_learning_resources (recommended resources, each with feature_name, description, justification)
`

// Compose builds the task prompt for one chunk. Survey chunks embed their
// records and every interview document; a document-only chunk embeds just
// the document it stands for.
func Compose(c dataset.Chunk, docs []dataset.Document) string {
	var b strings.Builder

	if c.Document != "" {
		fmt.Fprintf(&b, "Processing interview %d of %d (%s).\n\n", c.StartIndex+1, c.Total, c.Document)
		for _, d := range docs {
			if d.Name == c.Document {
				b.WriteString("Interview material:\n")
				b.WriteString(d.Text)
				b.WriteString("\n\n")
				break
			}
		}
	} else {
		fmt.Fprintf(&b, "Processing survey records %d to %d (of %d in total).\n", c.StartIndex, c.EndIndex(), c.Total)
		fmt.Fprintf(&b, "Survey records for this batch:\n%s\n\n", c.RecordsJSON())
		if len(docs) > 0 {
			b.WriteString("Interview material:\n")
			for _, d := range docs {
				fmt.Fprintf(&b, "## %s\n%s\n", d.Name, d.Text)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("Analyse the material above and produce complete personas for the course audience. Each persona must contain these fields:\n")
	b.WriteString(fieldList)
	b.WriteString("\nOutput JSON in exactly this shape:\n")
	b.WriteString(schemaExample)
	b.WriteString("Write the values in the same language as the material. Output only the JSON above, with no other conversation.\n")
	return b.String()
}

// FeedbackPrompt asks an agent to role-play p and judge a piece of marketing copy.
func FeedbackPrompt(p Persona, marketingCopy string) string {
	var b strings.Builder
	b.WriteString("You are role-playing a persona described as follows:\n")
	b.WriteString(p.Description)
	b.WriteString("\n")
	if p.Motivation != "" {
		fmt.Fprintf(&b, "Motivation: %s\n", p.Motivation)
	}
	if p.Challenges != "" {
		fmt.Fprintf(&b, "Challenges: %s\n", p.Challenges)
	}
	fmt.Fprintf(&b, "\nHere is the marketing copy for a course:\n\"%s\"\n\n", marketingCopy)
	b.WriteString("Answering as this persona:\n")
	b.WriteString("1. How likely are you to buy after reading this copy? (1-10, higher means more likely)\n")
	b.WriteString("2. What makes you want to buy it?\n")
	b.WriteString("3. Why were you not convinced to buy this course?\n")
	return b.String()
}
