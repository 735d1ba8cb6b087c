package extract

import (
	"reflect"
	"testing"
)

type triple struct {
	attr, value string
	approval    bool
}

func triples(cs []Candidate) []triple {
	var out []triple
	for _, c := range cs {
		out = append(out, triple{c.Attribute, c.Value, c.Approval})
	}
	return out
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want []triple
	}{
		{"name", "Hi, my name is Marcus.", []triple{{"name", "Marcus", false}}},
		{"location", "I live in Lisbon", []triple{{"location", "Lisbon", false}}},
		{"spouse", "my wife is Ana", []triple{{"spouse", "Ana", true}}},
		{"spouse possessive", "My husband's name is Tom", []triple{{"spouse", "Tom", true}}},
		{"sons named", "I have two sons named Mateo and Liam.", []triple{
			{"child", "Mateo", true}, {"child", "Liam", true}, {"children_type", "sons", true},
		}},
		{"their names", "I have two daughters. Their names are Eva & Mia.", []triple{
			{"child", "Eva", true}, {"child", "Mia", true}, {"children_type", "daughters", true},
		}},
		{"kids no type", "my kids are Leo, Ada", []triple{{"child", "Leo", true}, {"child", "Ada", true}}},
		{"lowercase kids ignored", "my kids are tired", nil},
		{"lowercase kid dropped", "my kids are Leo and tired", []triple{{"child", "Leo", true}}},
		{"mother", "my mom is Rosa Maria", []triple{{"mother", "Rosa Maria", false}}},
		{"father possessive", "my dad's name is Carlos", []triple{{"father", "Carlos", false}}},
		{"cousins list", "my cousins are jake, Sarah and noel.", []triple{
			{"cousin", "Jake", false}, {"cousin", "Sarah", false}, {"cousin", "Noel", false},
		}},
		{"brother singular", "i have a brother named Luis", []triple{{"sibling", "Luis", false}}},
		{"friend is", "my friend is Dana", []triple{{"friend", "Dana", false}}},
		{"lowercase singular ignored", "my friend called yesterday", nil},
		{"dog", "I have a dog named Rex", []triple{{"pet", "Rex|dog", false}}},
		{"cat", "my cat is Luna", []triple{{"pet", "Luna|cat", false}}},
		{"nothing", "what's the weather like?", nil},
		{"empty", "   ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := triples(Extract(tt.msg))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Extract(%q) = %+v, want %+v", tt.msg, got, tt.want)
			}
		})
	}
}

func TestExtractBlurbsAndPerson(t *testing.T) {
	cs := Extract("My wife is Ana")
	if len(cs) != 1 || cs[0].Blurb != "Your wife's name is Ana." {
		t.Fatalf("spouse candidates = %+v", cs)
	}

	cs = Extract("my name is Marcus")
	if len(cs) != 1 || cs[0].PersonAttributes["relation"] != "user" {
		t.Fatalf("name candidates = %+v", cs)
	}
}

func TestChildrenCapped(t *testing.T) {
	cs := Extract("my children are Aa, Bb, Cc, Dd, Ee, Ff, Gg")
	var n int
	for _, c := range cs {
		if c.Attribute == "child" {
			n++
		}
	}
	if n != MaxChildren {
		t.Errorf("children = %d, want %d", n, MaxChildren)
	}
}

func TestSplitNameList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Jake, Sarah and Noel", []string{"Jake", "Sarah", "Noel"}},
		{"mary ann & JOHN", []string{"Mary Ann", "John"}},
		{"Jake, jake, J", []string{"Jake"}},
		{"o'neil; 42", []string{"O'neil"}},
		{"", nil},
	}
	for _, tt := range tests {
		if got := SplitNameList(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitNameList(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPetValue(t *testing.T) {
	if got := PetValue(" Rex ", "DOG"); got != "Rex|dog" {
		t.Errorf("PetValue = %q", got)
	}
	if got := PetValue("Rex", ""); got != "Rex" {
		t.Errorf("PetValue without species = %q", got)
	}
	if got := PetName("Rex|dog"); got != "Rex" {
		t.Errorf("PetName = %q", got)
	}
}
