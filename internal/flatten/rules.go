package flatten

// IDField holds the player ID taken from the raw file name.
const IDField = "yahoo_id"

// Rule maps a tag in the raw payload to a field of the flattened record.
type Rule struct {
	Tag   string
	Field string
}

// marker is the literal opening tag searched for on each line.
func (r Rule) marker() string {
	return "<" + r.Tag + ">"
}

// Rules is the fixed tag table. Order here is the key order of the output
// objects.
var Rules = []Rule{
	{Tag: "ascii_first", Field: "first"},
	{Tag: "ascii_last", Field: "last"},
	{Tag: "editorial_team_abbr", Field: "team"},
	{Tag: "week", Field: "byes"},
	{Tag: "uniform_number", Field: "number"},
	{Tag: "position", Field: "positions"},
	{Tag: "position_type", Field: "position_types"},
}
