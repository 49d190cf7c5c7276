// Package prompt assembles the two generation prompts from a CV and a job
// offer. The builders are pure: no validation, no I/O.
package prompt

import (
	"fmt"
	"strings"
)

// Role tags a turn of the conversation sent to the model.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Kind names a prompt variant.
type Kind string

const (
	KindCoverLetter Kind = "cover_letter"
	KindLinks       Kind = "links"
)

// Segment is one role-tagged turn. Content lines follow the role tag.
type Segment struct {
	Role    Role
	Content []string
}

// Prompt is an ordered list of segments.
type Prompt []Segment

// tag is the line that opens a turn. User tags carry their own newline, so
// a blank line separates them from the content.
func (r Role) tag() string {
	if r == RoleUser {
		return string(r) + "\n"
	}
	return string(r)
}

// String joins every role tag and content line with newlines. An assistant
// segment with no content is the generation cue.
func (p Prompt) String() string {
	var lines []string
	for _, s := range p {
		lines = append(lines, s.Role.tag())
		lines = append(lines, s.Content...)
	}
	return strings.Join(lines, "\n")
}

const coverLetterInstruction = "Create a compelling cover letter for a data scientist position, highlighting relevant experience, " +
	"technical skills, and enthusiasm for the role, tailored to the specific company and job description. Use paragraphs."

const linksInstruction = "Please write in markdown a formatted and indented 2-levels Numbered list. " +
	"Each number describe a link between the offer's requirements and the CV"

const linksFormat = "Each number is the name of the link in bold (3-4 words) and has indented 2 sub-bullets: " +
	"one that contains the exact extract that state the requirements and the other the exact extract from the CV " +
	"that is relevant to that requirements."

const linksExample = "Example : 1. **Fine-Tuning an NLP Model**  \n" +
	"        * **Offer :** Develop and/or fine-tune language models and build downstream NLP capabilities for a variety of " +
	"textual datasets to enable document summarization, entity extraction and relationship identification, and information retrieval.\n" +
	"        * **CV:** Integrated a finetuned flauBERT model that unlocked 50% more matches compared to the base model"

// CoverLetter returns the cover-letter prompt segments.
func CoverLetter(cv, offer string) Prompt {
	return Prompt{
		{Role: RoleUser, Content: []string{
			fmt.Sprintf("Here is my CV : %s. Write the cover letter for this offer : %s", cv, offer),
			coverLetterInstruction,
			"",
		}},
		{Role: RoleAssistant, Content: []string{""}},
	}
}

// Links returns the requirement-to-experience links prompt segments.
func Links(cv, offer string) Prompt {
	return Prompt{
		{Role: RoleUser, Content: []string{
			fmt.Sprintf("Here is my CV : %s. Here is an offer : %s", cv, offer),
			"",
		}},
		{Role: RoleUser, Content: []string{
			linksInstruction,
			linksFormat,
			linksExample,
		}},
		{Role: RoleAssistant, Content: []string{""}},
	}
}

// BuildCoverLetterPrompt returns the joined cover-letter prompt.
func BuildCoverLetterPrompt(cv, offer string) string {
	return CoverLetter(cv, offer).String()
}

// BuildLinksPrompt returns the joined links prompt.
func BuildLinksPrompt(cv, offer string) string {
	return Links(cv, offer).String()
}
