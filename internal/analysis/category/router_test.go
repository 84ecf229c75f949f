package category

import (
	"sync"
	"testing"

	"github.com/zhouzirui/emergency-hub/backend/internal/model/facility"
)

func TestClassifyAmbulanceIsMedical(t *testing.T) {
	result := Classify("I need an ambulance")
	if len(result.Categories) != 1 || result.Categories[0] != facility.Medical {
		t.Fatalf("expected [medical], got %v", result.Categories)
	}
	if result.MultiService {
		t.Fatal("expected single service")
	}
}

func TestClassifyFireWithInjuriesIsMultiService(t *testing.T) {
	result := Classify("There is a fire with injuries")
	if !result.Has(facility.Fire) || !result.Has(facility.Medical) {
		t.Fatalf("expected fire and medical, got %v", result.Categories)
	}
	if result.Has(facility.Police) {
		t.Fatalf("unexpected police category in %v", result.Categories)
	}
	if !result.MultiService {
		t.Fatal("expected multi service")
	}
}

func TestClassifyNoMatchIsGeneral(t *testing.T) {
	for _, text := range []string{"hello", "", "   "} {
		result := Classify(text)
		if !result.General() {
			t.Fatalf("classify(%q) = %v, want general", text, result.Categories)
		}
		if result.Confidence != 50 {
			t.Fatalf("expected neutral confidence, got %d", result.Confidence)
		}
	}
}

func TestClassifyIsCaseInsensitive(t *testing.T) {
	result := Classify("SMOKE everywhere, CALL THE POLICE")
	if !result.Has(facility.Fire) || !result.Has(facility.Police) {
		t.Fatalf("expected fire and police, got %v", result.Categories)
	}
}

func TestClassifyAccidentTriggersMedicalAndPolice(t *testing.T) {
	result := Classify("there was an accident on the highway")
	if !result.Has(facility.Medical) || !result.Has(facility.Police) {
		t.Fatalf("expected medical and police, got %v", result.Categories)
	}
}

func TestClassifyCategoriesInCanonicalOrder(t *testing.T) {
	result := Classify("robbery then fire, someone is bleeding")
	want := []facility.Category{facility.Medical, facility.Fire, facility.Police}
	if len(result.Categories) != len(want) {
		t.Fatalf("got %v, want %v", result.Categories, want)
	}
	for i := range want {
		if result.Categories[i] != want[i] {
			t.Fatalf("got %v, want %v", result.Categories, want)
		}
	}
}

func TestClassifyUrgencyAndConfidence(t *testing.T) {
	urgent := Classify("Emergency! my father is unconscious")
	if urgent.Urgency != Critical {
		t.Fatalf("expected critical urgency, got %s", urgent.Urgency)
	}
	if urgent.Confidence != 15 {
		t.Fatalf("expected confidence 15 for a single hit, got %d", urgent.Confidence)
	}

	calm := Classify("where is the nearest clinic")
	if calm.Urgency != Medium {
		t.Fatalf("expected medium urgency, got %s", calm.Urgency)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	text := "gas leak and a fight broke out, people injured"
	first := Classify(text)
	for i := 0; i < 20; i++ {
		again := Classify(text)
		if again.Reason != first.Reason || again.Confidence != first.Confidence {
			t.Fatalf("non-deterministic result: %+v vs %+v", again, first)
		}
	}
}

func TestRouterReplaceSwapsTerms(t *testing.T) {
	router := NewRouter(nil)
	router.Replace(&Terms{
		Categories: map[facility.Category][]string{
			facility.Fire: {"  Flood "},
		},
	})

	result := router.Classify("the street is flooded")
	if len(result.Categories) != 1 || result.Categories[0] != facility.Fire {
		t.Fatalf("expected fire after replace, got %v", result.Categories)
	}
	if !router.Classify("need an ambulance").General() {
		t.Fatal("expected old terms to be gone")
	}
}

func TestRouterConcurrentReplaceAndClassify(t *testing.T) {
	router := NewRouter(nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			router.Replace(DefaultTerms())
		}()
		go func() {
			defer wg.Done()
			if !router.Classify("fire").Has(facility.Fire) {
				t.Error("expected fire")
			}
		}()
	}
	wg.Wait()
}

func TestClassifyMedicalAttackPhrasesStayMedical(t *testing.T) {
	cases := []struct {
		text       string
		wantPolice bool
	}{
		{"my father is having a heart attack", false},
		{"she has an asthma attack and can't breathe", false},
		{"panic attack, please send someone", false},
		{"heart attack after a knife attack on the street", true},
		{"a gang attack near the market", true},
	}
	for _, tc := range cases {
		result := Classify(tc.text)
		if got := result.Has(facility.Police); got != tc.wantPolice {
			t.Fatalf("classify(%q) police=%v, want %v (categories %v)", tc.text, got, tc.wantPolice, result.Categories)
		}
	}

	heart := Classify("heart attack")
	if len(heart.Categories) != 1 || heart.Categories[0] != facility.Medical {
		t.Fatalf("expected [medical] for heart attack, got %v", heart.Categories)
	}
}

func TestRouterExclusionsApplyPerCategory(t *testing.T) {
	router := NewRouter(&Terms{
		Categories: map[facility.Category][]string{
			facility.Fire:   {"fire"},
			facility.Police: {"fire"},
		},
		Exclusions: map[facility.Category][]string{
			facility.Police: {"Fire Drill"},
		},
	})

	drill := router.Classify("fire drill at school")
	if len(drill.Categories) != 1 || drill.Categories[0] != facility.Fire {
		t.Fatalf("expected only fire, got %v", drill.Categories)
	}
	if got := router.Terms().Exclusions[facility.Police]; len(got) != 1 || got[0] != "fire drill" {
		t.Fatalf("expected normalized exclusion, got %v", got)
	}
}
