package filter

import (
	"strings"
	"testing"
)

func TestClassifyListingMessage(t *testing.T) {
	r := Classify("3BHK flat for rent, 15000/month, near metro, contact 9876543210")
	if !r.IsRelevant {
		t.Fatalf("expected relevant, got %+v", r)
	}
	if r.Confidence < 0.6 {
		t.Errorf("confidence = %v, want >= 0.6", r.Confidence)
	}
	if len(r.Signals) == 0 {
		t.Error("expected matched signals to be reported")
	}
}

func TestClassifyGreeting(t *testing.T) {
	r := Classify("good morning")
	if r.IsRelevant || r.Confidence != 0 {
		t.Errorf("greeting classified as relevant: %+v", r)
	}
}

func TestClassifyEmpty(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\t"} {
		if r := Classify(in); r.IsRelevant || r.Confidence != 0 {
			t.Errorf("Classify(%q) = %+v, want zero result", in, r)
		}
	}
}

func TestClassifyDeterministic(t *testing.T) {
	const text = "2 BHK semi-furnished apartment for sale in Andheri West, 95 lakhs, 850 sqft, 4th floor"
	first := Classify(text)
	for i := 0; i < 20; i++ {
		got := Classify(text)
		if got.IsRelevant != first.IsRelevant || got.Confidence != first.Confidence {
			t.Fatalf("non-deterministic result: %+v vs %+v", got, first)
		}
	}
	if !first.IsRelevant {
		t.Errorf("expected a rich listing to be relevant: %+v", first)
	}
}

func TestClassifyShortChatterPenalized(t *testing.T) {
	r := Classify("anyone going to the match today? 9876543210")
	if r.IsRelevant {
		t.Errorf("short non-listing chatter accepted: %+v", r)
	}
}

func TestClassifyPatternFamiliesCountOnce(t *testing.T) {
	// Many price mentions must not score higher than one.
	single := Classify("plot for sale 50 lakhs")
	multi := Classify("plot for sale 50 lakhs or 52 lakhs or 55 lakhs")
	// multi gains at most structure bonuses, not repeated family points
	if multi.Confidence-single.Confidence > 0.11 {
		t.Errorf("repeat matches over-scored: single=%v multi=%v", single.Confidence, multi.Confidence)
	}
}

func TestClassifyConfidenceClamped(t *testing.T) {
	var b strings.Builder
	b.WriteString("flat apartment villa house for rent sale lease, 3 bhk, 1500 sqft, 85 lakhs, 5th floor, contact 9876543210\n")
	b.WriteString("furnished, society parking, owner post, carpet area 1200 sqft\n")
	b.WriteString("ready to move, possession immediate \U0001F3E0 deposit 2 lakhs")
	r := Classify(b.String())
	if !r.IsRelevant {
		t.Fatalf("expected relevant: %+v", r)
	}
	if r.Confidence > 1 {
		t.Errorf("confidence above 1: %v", r.Confidence)
	}
}
