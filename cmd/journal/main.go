// Command journal prints the relay journal as a tree or as JSON.
package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
)

// Event is one journal row with its children attached.
type Event struct {
	ID        int64
	Timestamp int64
	ParentID  sql.NullInt64
	EventType string
	Payload   map[string]any
	Children  []*Event
}

type options struct {
	maxDepth  int
	noPayload bool
}

func main() {
	_ = godotenv.Load(".env")

	var (
		dbPath  string
		eventID int64
		jsonOut bool
		opts    options
	)
	flag.StringVar(&dbPath, "db", envOrDefault("RELAY_JOURNAL_PATH", "./chatrelay.db"), "journal database path")
	flag.Int64Var(&eventID, "id", 0, "show the subtree of this event id (default: latest relay process)")
	flag.IntVar(&opts.maxDepth, "L", 0, "limit display depth (0 = unlimited)")
	flag.BoolVar(&jsonOut, "json", false, "output JSON")
	flag.BoolVar(&opts.noPayload, "no-payload", false, "hide payload fields")
	flag.Parse()

	if err := run(os.Stdout, dbPath, eventID, jsonOut, opts); err != nil {
		slog.Error("journal", "error", err)
		os.Exit(1)
	}
}

func run(w io.Writer, dbPath string, eventID int64, jsonOut bool, opts options) error {
	database, err := sql.Open("sqlite3", dbPath+"?mode=ro&_journal_mode=WAL")
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer database.Close()
	if err := database.Ping(); err != nil {
		return fmt.Errorf("open journal %s: %w", dbPath, err)
	}

	rootID := eventID
	if rootID == 0 {
		rootID, err = latestRelayRoot(database)
		if err != nil {
			return err
		}
	}
	events, err := querySubtree(database, rootID)
	if err != nil {
		return fmt.Errorf("query subtree: %w", err)
	}
	root := buildTree(events, rootID)
	if root == nil {
		return fmt.Errorf("event %d not found", rootID)
	}

	if jsonOut {
		return writeJSON(w, root, opts)
	}
	writeTree(w, root, "", true, 1, opts)
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// latestRelayRoot finds the most recent process.started event of a relay.
func latestRelayRoot(database *sql.DB) (int64, error) {
	var id int64
	err := database.QueryRow(
		`SELECT id FROM events WHERE event_type = 'process.started'
		 AND json_extract(payload, '$.role') = 'relay'
		 ORDER BY id DESC LIMIT 1`,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("no relay process.started event found")
	}
	return id, err
}

func querySubtree(database *sql.DB, rootID int64) ([]*Event, error) {
	rows, err := database.Query(`
		WITH RECURSIVE subtree(id) AS (
			SELECT id FROM events WHERE id = ?
			UNION ALL
			SELECT e.id FROM events e JOIN subtree s ON e.parent_id = s.id
		)
		SELECT e.id, e.timestamp, e.parent_id, e.event_type, e.payload
		FROM events e
		WHERE e.id IN (SELECT id FROM subtree)
		ORDER BY e.id ASC
	`, rootID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		ev := &Event{}
		var payload sql.NullString
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.ParentID, &ev.EventType, &payload); err != nil {
			return nil, err
		}
		if payload.Valid && payload.String != "" {
			ev.Payload = decodePayload(payload.String)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// decodePayload keeps numbers as json.Number so snowflake ids survive intact.
func decodePayload(raw string) map[string]any {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil
	}
	return m
}

func buildTree(events []*Event, rootID int64) *Event {
	byID := make(map[int64]*Event, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
	}
	for _, ev := range events {
		if !ev.ParentID.Valid || ev.ParentID.Int64 == ev.ID {
			continue
		}
		if parent, ok := byID[ev.ParentID.Int64]; ok {
			parent.Children = append(parent.Children, ev)
		}
	}
	for _, ev := range events {
		sort.Slice(ev.Children, func(i, j int) bool { return ev.Children[i].ID < ev.Children[j].ID })
	}
	return byID[rootID]
}

func writeTree(w io.Writer, ev *Event, prefix string, isLast bool, depth int, opts options) {
	connector := "├── "
	if isLast {
		connector = "└── "
	}
	if depth == 1 {
		fmt.Fprintln(w, formatEvent(ev, opts.noPayload))
	} else {
		fmt.Fprintln(w, prefix+connector+formatEvent(ev, opts.noPayload))
	}

	childPrefix := prefix
	if depth > 1 {
		if isLast {
			childPrefix += "    "
		} else {
			childPrefix += "│   "
		}
	}
	if opts.maxDepth > 0 && depth >= opts.maxDepth {
		if len(ev.Children) > 0 {
			fmt.Fprintln(w, childPrefix+"└── [...]")
		}
		return
	}
	for i, child := range ev.Children {
		writeTree(w, child, childPrefix, i == len(ev.Children)-1, depth+1, opts)
	}
}

// formatEvent renders "[id] timestamp  event_type  key=value ...".
func formatEvent(ev *Event, noPayload bool) string {
	var b strings.Builder
	ts := time.Unix(ev.Timestamp, 0).UTC().Format("2006-01-02 15:04:05")
	fmt.Fprintf(&b, "[%d] %s  %s", ev.ID, ts, ev.EventType)
	if noPayload || len(ev.Payload) == 0 {
		return b.String()
	}
	keys := make([]string, 0, len(ev.Payload))
	for k := range ev.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s=%s", k, formatValue(ev.Payload[k]))
	}
	return b.String()
}

const maxValueLen = 80

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		if len(val) > maxValueLen {
			return fmt.Sprintf("%q", val[:maxValueLen]+"...")
		}
		if val == "" {
			return `""`
		}
		return val
	case json.Number:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

type jsonEvent struct {
	ID        int64          `json:"id"`
	Timestamp int64          `json:"timestamp"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Children  []jsonEvent    `json:"children,omitempty"`
}

func toJSONEvent(ev *Event, depth int, opts options) jsonEvent {
	je := jsonEvent{ID: ev.ID, Timestamp: ev.Timestamp, EventType: ev.EventType}
	if !opts.noPayload {
		je.Payload = ev.Payload
	}
	if opts.maxDepth > 0 && depth >= opts.maxDepth {
		return je
	}
	for _, child := range ev.Children {
		je.Children = append(je.Children, toJSONEvent(child, depth+1, opts))
	}
	return je
}

func writeJSON(w io.Writer, root *Event, opts options) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(toJSONEvent(root, 1, opts)); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
