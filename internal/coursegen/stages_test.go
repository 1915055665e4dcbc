package coursegen

import "testing"

func TestStageOrdering(t *testing.T) {
	next, ok := StageRepoIntake.Next()
	if !ok || next != StageDocumentAnalysis {
		t.Fatalf("repo_intake should advance to document_analysis, got %s", next)
	}
	next, ok = StageContentGeneration.Next()
	if !ok || next != StageCompleted {
		t.Fatalf("content_generation should advance to completed, got %s", next)
	}
	if _, ok := StageCompleted.Next(); ok {
		t.Fatalf("completed has no successor")
	}

	if _, ok := StageRepoIntake.Prior(); ok {
		t.Fatalf("repo_intake has no prior")
	}
	prior, ok := StagePathwayBuilding.Prior()
	if !ok || prior != StageDocumentAnalysis {
		t.Fatalf("pathway_building should consume document_analysis, got %s", prior)
	}
}

func TestParseStage(t *testing.T) {
	if _, err := ParseStage("repo_intake"); err != nil {
		t.Fatalf("ParseStage: %v", err)
	}
	if _, err := ParseStage("nonsense"); err == nil {
		t.Fatalf("expected error for unknown stage")
	}
}

func TestStageBandsMonotonic(t *testing.T) {
	log := testLogger(t)
	prevEnd := 0
	for _, stage := range Ordered() {
		start, end := stageBand(log, stage)
		if start < prevEnd {
			t.Fatalf("stage %s band starts at %d before prior end %d", stage, start, prevEnd)
		}
		if end < start {
			t.Fatalf("stage %s has inverted band [%d,%d]", stage, start, end)
		}
		prevEnd = end
	}
	if prevEnd != 100 {
		t.Fatalf("last band should end at 100, got %d", prevEnd)
	}
}
