package prompt

import (
	"strings"
	"testing"
)

var inputs = []struct {
	name      string
	cv, offer string
}{
	{"plain", "Jane Doe, data scientist, 5 years NLP", "We are hiring an ML engineer in Paris"},
	{"empty", "", ""},
	{"unicode and braces", "Zoë — {prompt} 100% <b>", "Offre : Ingénieur·e {cv}"},
	{"multiline", "line one\nline two\n\n- bullet", "Requirements:\n* Go\n* SQL"},
}

func TestBuildersAreDeterministic(t *testing.T) {
	for _, in := range inputs {
		t.Run(in.name, func(t *testing.T) {
			if a, b := BuildCoverLetterPrompt(in.cv, in.offer), BuildCoverLetterPrompt(in.cv, in.offer); a != b {
				t.Error("cover letter prompt differs between calls")
			}
			if a, b := BuildLinksPrompt(in.cv, in.offer), BuildLinksPrompt(in.cv, in.offer); a != b {
				t.Error("links prompt differs between calls")
			}
		})
	}
}

func TestBuildersContainInputsVerbatim(t *testing.T) {
	for _, in := range inputs {
		t.Run(in.name, func(t *testing.T) {
			for kind, p := range map[string]string{
				"cover letter": BuildCoverLetterPrompt(in.cv, in.offer),
				"links":        BuildLinksPrompt(in.cv, in.offer),
			} {
				if !strings.Contains(p, in.cv) {
					t.Errorf("%s prompt is missing the CV", kind)
				}
				if !strings.Contains(p, in.offer) {
					t.Errorf("%s prompt is missing the offer", kind)
				}
			}
		})
	}
}

func TestPromptShape(t *testing.T) {
	p := BuildCoverLetterPrompt("CV", "OFFER")
	if !strings.HasPrefix(p, "user\n\nHere is my CV : CV.") {
		t.Errorf("cover letter prompt must open with the user turn, got %q", p[:min(len(p), 40)])
	}
	if !strings.HasSuffix(p, "\nassistant\n") {
		t.Errorf("cover letter prompt must end with an empty assistant turn, got suffix %q", p[max(0, len(p)-20):])
	}

	links := Links("CV", "OFFER")
	if len(links) != 3 {
		t.Fatalf("links prompt has %d segments, want 3", len(links))
	}
	if links[0].Role != RoleUser || links[1].Role != RoleUser || links[2].Role != RoleAssistant {
		t.Errorf("unexpected roles: %v %v %v", links[0].Role, links[1].Role, links[2].Role)
	}
}

func TestVariantsDiffer(t *testing.T) {
	if BuildCoverLetterPrompt("a", "b") == BuildLinksPrompt("a", "b") {
		t.Fatal("the two variants must carry different instructions")
	}
}

func TestCoverLetterPromptText(t *testing.T) {
	want := "user\n\n" +
		"Here is my CV : CV. Write the cover letter for this offer : OFFER\n" +
		"Create a compelling cover letter for a data scientist position, highlighting relevant experience, technical skills, " +
		"and enthusiasm for the role, tailored to the specific company and job description. Use paragraphs.\n" +
		"\n" +
		"assistant\n"
	if got := BuildCoverLetterPrompt("CV", "OFFER"); got != want {
		t.Errorf("cover letter prompt:\n got: %q\nwant: %q", got, want)
	}
}

func TestLinksPromptText(t *testing.T) {
	want := "user\n\n" +
		"Here is my CV : CV. Here is an offer : OFFER\n" +
		"\n" +
		"user\n\n" +
		"Please write in markdown a formatted and indented 2-levels Numbered list. Each number describe a link between the offer's requirements and the CV\n" +
		"Each number is the name of the link in bold (3-4 words) and has indented 2 sub-bullets: one that contains the exact extract " +
		"that state the requirements and the other the exact extract from the CV that is relevant to that requirements.\n" +
		"Example : 1. **Fine-Tuning an NLP Model**  \n" +
		"        * **Offer :** Develop and/or fine-tune language models and build downstream NLP capabilities for a variety of textual " +
		"datasets to enable document summarization, entity extraction and relationship identification, and information retrieval.\n" +
		"        * **CV:** Integrated a finetuned flauBERT model that unlocked 50% more matches compared to the base model\n" +
		"assistant\n"
	if got := BuildLinksPrompt("CV", "OFFER"); got != want {
		t.Errorf("links prompt:\n got: %q\nwant: %q", got, want)
	}
}
