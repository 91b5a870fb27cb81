package language

// Configuration declares the editing metadata the host registers for a
// content type handled by the tools service: comment markers, bracket pairs,
// and auto-closing behavior.
type Configuration struct {
	ID         string
	Extensions []string

	LineComment  string
	BlockComment [2]string

	Brackets [][2]string

	AutoClosingPairs []AutoClosingPair
}

// AutoClosingPair describes a pair the editor closes automatically. NotIn
// lists the contexts (for example "string", "comment") where auto-closing is
// suppressed.
type AutoClosingPair struct {
	Open  string
	Close string
	NotIn []string
}

// SQL returns the configuration for SQL documents: `--` line comments,
// `/* */` block comments, and the bracket pairs the service expects, with
// quote auto-closing disabled inside strings and comments.
func SQL() Configuration {
	return Configuration{
		ID:           "sql",
		Extensions:   []string{".sql"},
		LineComment:  "--",
		BlockComment: [2]string{"/*", "*/"},
		Brackets: [][2]string{
			{"{", "}"},
			{"[", "]"},
			{"(", ")"},
		},
		AutoClosingPairs: []AutoClosingPair{
			{Open: "{", Close: "}"},
			{Open: "[", Close: "]"},
			{Open: "(", Close: ")"},
			{Open: `"`, Close: `"`, NotIn: []string{"string", "comment"}},
			{Open: "'", Close: "'", NotIn: []string{"string", "comment"}},
		},
	}
}
