package activity

// Serialized contents of a MemSource, as stored in fixture files.
type Fixture struct {
	Authors []Author      `json:"authors,omitempty"`
	Items   []Item        `json:"items,omitempty"`
	Notes   []FixtureNote `json:"notes,omitempty"`
	Pages   []FixturePage `json:"pages,omitempty"`
}

type FixtureNote struct {
	Community string `json:"community"`
	Author    string `json:"author"`
	Note
}

type FixturePage struct {
	Scope string `json:"scope"`
	Path  string `json:"path"`
	Text  string `json:"text"`
}

func (s *MemSource) Load(f Fixture) {
	for _, a := range f.Authors {
		s.PutAuthor(a)
	}
	s.PutItems(f.Items...)
	for _, n := range f.Notes {
		s.PutNote(n.Community, n.Author, n.Note)
	}
	for _, p := range f.Pages {
		s.PutPage(p.Scope, p.Path, p.Text)
	}
}
