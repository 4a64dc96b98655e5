package transport

import (
	"github.com/invopop/jsonschema"
)

// The types below only document the wire formats for schema generation; decoding
// goes through models' own codecs.

type schemaMaze struct {
	Agent     [][2]int `json:"agent" jsonschema:"description=Exactly one [row,col] position"`
	Goal      [][2]int `json:"goal" jsonschema:"description=Exactly one [row,col] position"`
	Obstacles [][2]int `json:"obstacles"`
	Path      [][2]int `json:"path,omitempty" jsonschema:"description=Cells visited since the last reset"`
}

type schemaRow struct {
	State   [2]int     `json:"state"`
	QValues []*float64 `json:"q_values" jsonschema:"minItems=4,maxItems=4,description=Up Down Left Right; null is unknown"`
}

type schemaFrame struct {
	CurrentState schemaMaze         `json:"current_state"`
	QTable       map[string]float64 `json:"q_table" jsonschema:"description=Keys are row,col,actionIndex with actionIndex 0..3 for Up Down Left Right"`
	GameOver     bool               `json:"game_over,omitempty"`
}

type schemaStateReply struct {
	Maze  schemaMaze  `json:"maze"`
	Table []schemaRow `json:"table"`
}

type schemaEntry struct {
	value       interface{}
	title       string
	description string
}

var schemaEntries = map[string]schemaEntry{
	"maze": {
		value:       new(schemaMaze),
		title:       "Maze state",
		description: "Reply of POST /maze/reset, first element of the /state and /maze/step replies",
	},
	"row": {
		value:       new(schemaRow),
		title:       "Dense value row",
		description: "Element of the dense value table in the /state and /maze/step replies",
	},
	"frame": {
		value:       new(schemaFrame),
		title:       "Simulation frame",
		description: "Message of the /ws and /maze/simulate streams",
	},
	"handshake": {
		value:       new(Handshake),
		title:       "Simulate handshake",
		description: "Sent by the client on /maze/simulate right after the channel opens",
	},
	"state": {
		value:       new(schemaStateReply),
		title:       "State reply (object form)",
		description: "GET /state returns these two fields as a two element array, in this order",
	},
}

// SchemaNames lists the wire formats Schema knows.
func SchemaNames() []string {
	return []string{"frame", "handshake", "maze", "row", "state"}
}

// Schema reflects the JSON schema of the named wire format, or returns nil.
func Schema(name string) *jsonschema.Schema {
	entry, ok := schemaEntries[name]
	if !ok {
		return nil
	}
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(entry.value)
	schema.Title = entry.title
	schema.Description = entry.description
	return schema
}
