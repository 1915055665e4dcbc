package coursegen

// JSON schemas for the structured model calls. Kept strict so malformed
// output fails the call instead of leaking half-filled artifacts downstream.

const documentAnalysisSystem = "You analyze one source file from a software repository for course construction.\n\n" +
	"Rules:\n" +
	"- Classify doc_type as one of: guide, reference, api, example, overview, tutorial.\n" +
	"- complexity_level is one of: beginner, intermediate, advanced.\n" +
	"- key_concepts are short noun phrases actually present in the file, most important first.\n" +
	"- learning_objectives are outcomes a reader could achieve from this file alone.\n" +
	"- The summary must be specific to this file, not the repository in general.\n"

func documentAnalysisSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":            map[string]any{"type": "string"},
			"doc_type":         map[string]any{"type": "string"},
			"complexity_level": map[string]any{"type": "string"},
			"key_concepts": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"learning_objectives": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"summary": map[string]any{"type": "string"},
		},
		"required":             []string{"title", "doc_type", "complexity_level", "key_concepts", "learning_objectives", "summary"},
		"additionalProperties": false,
	}
}

const pathwayProposeSystem = "You design learning pathways over an analyzed repository corpus.\n\n" +
	"Rules:\n" +
	"- Every module MUST link only documents listed in the corpus, by their exact path.\n" +
	"- Do NOT invent topics that the corpus does not support.\n" +
	"- Order modules so prerequisite themes precede dependent ones.\n" +
	"- module_key is a short stable slug (lowercase, hyphens), unique per module.\n" +
	"- Keep titles specific and professional.\n"

func pathwaySchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":       map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
			"modules": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"module_key":  map[string]any{"type": "string"},
						"title":       map[string]any{"type": "string"},
						"description": map[string]any{"type": "string"},
						"theme":       map[string]any{"type": "string"},
						"learning_objectives": map[string]any{
							"type":  "array",
							"items": map[string]any{"type": "string"},
						},
						"linked_documents": map[string]any{
							"type":  "array",
							"items": map[string]any{"type": "string"},
						},
					},
					"required":             []string{"module_key", "title", "description", "theme", "learning_objectives", "linked_documents"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"title", "description", "modules"},
		"additionalProperties": false,
	}
}

const pathwayCriticSystem = "You review a proposed learning pathway against its source corpus.\n\n" +
	"Grade with a single severity:\n" +
	"- none: publishable as-is.\n" +
	"- minor: small wording or ordering nits only.\n" +
	"- major: coverage gaps or sequencing problems that need another revision.\n" +
	"- blocking: the pathway misrepresents or ignores the corpus.\n\n" +
	"Check: are the key concepts of high-relevance documents represented in some module; " +
	"do prerequisite themes precede dependent ones; is each module grounded in its linked documents. " +
	"The critique must name the concrete problems to fix.\n"

const contentProposeSystem = "You write the full content for one module of a learning course.\n\n" +
	"Rules:\n" +
	"- Ground every section in the module's linked documents; do not invent APIs or behavior.\n" +
	"- Address every learning objective somewhere in the main content.\n" +
	"- The assessment must test the stated learning objectives, nothing else.\n" +
	"- Write prose, not bullet fragments.\n"

func moduleContentSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"introduction": map[string]any{"type": "string"},
			"main_content": map[string]any{"type": "string"},
			"conclusion":   map[string]any{"type": "string"},
			"assessment":   map[string]any{"type": "string"},
			"summary":      map[string]any{"type": "string"},
		},
		"required":             []string{"introduction", "main_content", "conclusion", "assessment", "summary"},
		"additionalProperties": false,
	}
}

const contentCriticSystem = "You review generated module content against the module's learning objectives.\n\n" +
	"Grade with a single severity:\n" +
	"- none: publishable as-is.\n" +
	"- minor: small wording nits only.\n" +
	"- major: an objective is unaddressed or the assessment drifts from the objectives.\n" +
	"- blocking: the content is off-topic, fabricated, or unusable.\n\n" +
	"The critique must name the concrete problems to fix.\n"

func verdictSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"severity": map[string]any{"type": "string"},
			"critique": map[string]any{"type": "string"},
		},
		"required":             []string{"severity", "critique"},
		"additionalProperties": false,
	}
}
