package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// The wire encodings below follow the simulation's JSON: positions are two element
// arrays, and the maze is a map of named position lists.

func (p Position) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{p.Row, p.Col})
}

func (p *Position) UnmarshalJSON(data []byte) error {
	var pair []int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("%w: position %s: %v", ErrMalformedPayload, data, err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("%w: position %s must have two coordinates", ErrMalformedPayload, data)
	}
	if pair[0] < 0 || pair[1] < 0 {
		return fmt.Errorf("%w: position %s has negative coordinates", ErrMalformedPayload, data)
	}
	p.Row, p.Col = pair[0], pair[1]
	return nil
}

type wireMaze struct {
	Agent     json.RawMessage `json:"agent"`
	Goal      json.RawMessage `json:"goal"`
	Obstacles json.RawMessage `json:"obstacles"`
	Path      json.RawMessage `json:"path,omitempty"`
}

func (maze MazeState) MarshalJSON() ([]byte, error) {
	obstacles, path := maze.Obstacles, maze.Path
	if obstacles == nil {
		obstacles = []Position{}
	}
	if path == nil {
		path = []Position{}
	}
	return json.Marshal(map[string][]Position{
		"agent":     {maze.Agent},
		"goal":      {maze.Goal},
		"obstacles": obstacles,
		"path":      path,
	})
}

// UnmarshalJSON accepts agent and goal either as a one element list of positions
// (the simulation's shape) or as a bare position.
func (maze *MazeState) UnmarshalJSON(data []byte) error {
	var wire wireMaze
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: maze: %v", ErrMalformedPayload, err)
	}

	agent, err := decodeOne("agent", wire.Agent)
	if err != nil {
		return err
	}
	goal, err := decodeOne("goal", wire.Goal)
	if err != nil {
		return err
	}
	obstacles, err := decodePositions("obstacles", wire.Obstacles)
	if err != nil {
		return err
	}
	path, err := decodePositions("path", wire.Path)
	if err != nil {
		return err
	}

	*maze = MazeState{
		Agent:     agent,
		Goal:      goal,
		Obstacles: obstacles,
		Path:      path,
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func decodePositions(field string, raw json.RawMessage) ([]Position, error) {
	if isNull(raw) {
		return nil, nil
	}
	var list []Position
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("%w: maze %s: %v", ErrMalformedPayload, field, err)
	}
	return list, nil
}

func decodeOne(field string, raw json.RawMessage) (Position, error) {
	if isNull(raw) {
		return Position{}, fmt.Errorf("%w: maze %s missing", ErrMalformedPayload, field)
	}
	var list []Position
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) != 1 {
			return Position{}, fmt.Errorf("%w: maze %s must hold exactly one position, got %d", ErrMalformedPayload, field, len(list))
		}
		return list[0], nil
	}
	var single Position
	if err := json.Unmarshal(raw, &single); err != nil {
		return Position{}, fmt.Errorf("%w: maze %s: %v", ErrMalformedPayload, field, err)
	}
	return single, nil
}

type wireRow struct {
	State   *Position  `json:"state"`
	QValues []*float64 `json:"q_values"`
}

func (row ValueRow) MarshalJSON() ([]byte, error) {
	state := row.State
	return json.Marshal(wireRow{
		State:   &state,
		QValues: row.Values[:],
	})
}

// UnmarshalJSON requires a position and exactly one number-or-null per action.
func (row *ValueRow) UnmarshalJSON(data []byte) error {
	var wire wireRow
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: value row: %v", ErrMalformedPayload, err)
	}
	if wire.State == nil {
		return fmt.Errorf("%w: value row without state", ErrMalformedPayload)
	}
	if len(wire.QValues) != NumActions {
		return fmt.Errorf("%w: value row %v has %d values, want %d", ErrMalformedPayload, *wire.State, len(wire.QValues), NumActions)
	}
	row.State = *wire.State
	copy(row.Values[:], wire.QValues)
	return nil
}

// MarshalJSON writes the dense form, in row-major order.
func (table ValueTable) MarshalJSON() ([]byte, error) {
	return json.Marshal(table.Rows())
}
