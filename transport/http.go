// transport talks to the remote simulation: request/response calls over HTTP and
// the simulation stream over websocket. Replies are decoded here, once, into
// models types; table payloads are decoded into their tagged shape.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mazeview/models"
)

// GameOverStatus is the step reply's terminal sentinel, compared exactly.
const GameOverStatus = "Game over"

// maxReplySize bounds how much of a reply body is read.
const maxReplySize = 4 << 20

// StepReply is the decoded reply of a step request.
type StepReply struct {
	Maze     models.MazeState
	GameOver bool
	// Table is nil when the reply carried no table, or one that failed to decode.
	Table models.ValueTable
	// TableErr is set when the table was malformed; maze and status are still valid.
	TableErr error
}

// Client issues the request/response calls of the simulation.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient returns a client for the simulation at baseURL, e.g. "http://localhost:3030".
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote url %q: %w", baseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("remote url %q: scheme must be http or https", baseURL)
	}
	return &Client{
		base: base,
		http: &http.Client{Timeout: timeout},
	}, nil
}

// BaseURL returns the simulation's base url.
func (cli *Client) BaseURL() *url.URL {
	u := *cli.base
	return &u
}

func (cli *Client) do(ctx context.Context, method, path string) ([]byte, error) {
	target := cli.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", models.ErrTransportFailure, method, path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := cli.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", models.ErrTransportFailure, method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: reading reply: %v", models.ErrTransportFailure, method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s %s: %s", models.ErrTransportFailure, method, path, resp.Status)
	}
	return body, nil
}

// decodeTuple splits a JSON array reply into its elements.
func decodeTuple(body []byte, lo, hi int) ([]json.RawMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(body, &parts); err != nil {
		return nil, fmt.Errorf("%w: reply is not an array: %v", models.ErrMalformedPayload, err)
	}
	if len(parts) < lo || len(parts) > hi {
		return nil, fmt.Errorf("%w: reply has %d elements, want %d to %d", models.ErrMalformedPayload, len(parts), lo, hi)
	}
	return parts, nil
}

func decodeTable(raw json.RawMessage) (models.ValueTable, error) {
	tagged, err := models.DecodeRawTable(raw)
	if err != nil {
		return nil, err
	}
	table, rejects, err := models.Normalize(tagged)
	if err != nil {
		return nil, err
	}
	if len(rejects) > 0 {
		return nil, fmt.Errorf("%d rejected rows: %w", len(rejects), rejects[0])
	}
	return table, nil
}

// FetchState gets the full state: GET /state -> [maze, table].
func (cli *Client) FetchState(ctx context.Context) (maze models.MazeState, table models.ValueTable, err error) {
	var body []byte
	if body, err = cli.do(ctx, http.MethodGet, "/state"); err != nil {
		return
	}

	var parts []json.RawMessage
	if parts, err = decodeTuple(body, 2, 2); err != nil {
		return
	}
	if err = json.Unmarshal(parts[0], &maze); err != nil {
		err = fmt.Errorf("state: %w", err)
		return
	}
	if table, err = decodeTable(parts[1]); err != nil {
		err = fmt.Errorf("state: %w", err)
	}
	return
}

// Step advances the simulation one move: POST /maze/step -> [maze, status, table?].
// A malformed table does not fail the step; it is reported in TableErr.
func (cli *Client) Step(ctx context.Context) (reply StepReply, err error) {
	var body []byte
	if body, err = cli.do(ctx, http.MethodPost, "/maze/step"); err != nil {
		return
	}

	var parts []json.RawMessage
	if parts, err = decodeTuple(body, 2, 3); err != nil {
		return
	}
	if err = json.Unmarshal(parts[0], &reply.Maze); err != nil {
		err = fmt.Errorf("step: %w", err)
		return
	}

	var status string
	if err = json.Unmarshal(parts[1], &status); err != nil {
		err = fmt.Errorf("%w: step status: %v", models.ErrMalformedPayload, err)
		return
	}
	reply.GameOver = status == GameOverStatus

	if len(parts) == 3 && !bytes.Equal(bytes.TrimSpace(parts[2]), []byte("null")) {
		if reply.Table, reply.TableErr = decodeTable(parts[2]); reply.TableErr != nil {
			reply.TableErr = fmt.Errorf("step table: %w", reply.TableErr)
		}
	}
	return
}

// Reset restarts the agent: POST /maze/reset -> maze.
func (cli *Client) Reset(ctx context.Context) (maze models.MazeState, err error) {
	var body []byte
	if body, err = cli.do(ctx, http.MethodPost, "/maze/reset"); err != nil {
		return
	}
	if err = json.Unmarshal(body, &maze); err != nil {
		err = fmt.Errorf("reset: %w", err)
	}
	return
}
