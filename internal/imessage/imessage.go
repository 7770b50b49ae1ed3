// Package imessage reads recent messages from the local macOS Messages
// database (chat.db) and sends outbound texts through the Messages app.
package imessage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// appleEpoch is 2001-01-01T00:00:00Z, the zero point of chat.db timestamps.
const appleEpoch = 978307200

// Attachment is one file attached to a message. Path is resolved to an
// absolute filesystem path; the file may no longer exist.
type Attachment struct {
	Path string
	Name string
}

// Message is one raw row from chat.db, not yet filtered or normalized.
type Message struct {
	RowID       int64
	GUID        string
	Sender      string
	Text        string
	SentAt      time.Time
	Attachments []Attachment
}

// Client reads chat.db read-only. One Client holds one connection; chat.db
// is owned by the Messages app, so we never write to it.
type Client struct {
	db     *sql.DB
	logger *slog.Logger
}

func Open(dbPath string, logger *slog.Logger) (*Client, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("chat.db not accessible at %s: %w", dbPath, err)
	}

	db, err := sql.Open("sqlite", "file:"+dbPath+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open chat.db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Client{db: db, logger: logger}, nil
}

// Recent returns the most recent messages not authored by the local user,
// newest first, with their attachments resolved.
func (c *Client) Recent(ctx context.Context, limit int) ([]Message, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT m.ROWID, COALESCE(m.guid, ''), COALESCE(m.text, ''), m.date, COALESCE(h.id, '')
		FROM message m
		LEFT JOIN handle h ON m.handle_id = h.ROWID
		WHERE m.is_from_me = 0
		ORDER BY m.date DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var rawDate int64
		if err := rows.Scan(&m.RowID, &m.GUID, &m.Text, &rawDate, &m.Sender); err != nil {
			c.logger.Warn("skipping unreadable message row", "err", err)
			continue
		}
		m.SentAt = fromAppleTime(rawDate)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	for i := range msgs {
		atts, err := c.attachments(ctx, msgs[i].RowID)
		if err != nil {
			c.logger.Warn("cannot load attachments", "guid", msgs[i].GUID, "err", err)
			continue
		}
		msgs[i].Attachments = atts
	}

	return msgs, nil
}

func (c *Client) attachments(ctx context.Context, messageRowID int64) ([]Attachment, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT COALESCE(a.filename, ''), COALESCE(a.transfer_name, '')
		FROM attachment a
		JOIN message_attachment_join j ON j.attachment_id = a.ROWID
		WHERE j.message_id = ?`, messageRowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var atts []Attachment
	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.Path, &a.Name); err != nil {
			return nil, err
		}
		a.Path = expandHome(a.Path)
		if a.Name == "" {
			a.Name = filepath.Base(a.Path)
		}
		atts = append(atts, a)
	}
	return atts, rows.Err()
}

// Send delivers text to a recipient through the Messages app. The script
// receives recipient and body as argv so message content is never
// interpolated into AppleScript source.
func (c *Client) Send(ctx context.Context, recipient, text string) error {
	script := `on run argv
	tell application "Messages"
		set targetService to 1st account whose service type = iMessage
		set targetBuddy to participant (item 1 of argv) of targetService
		send (item 2 of argv) to targetBuddy
	end tell
end run`

	cmd := exec.CommandContext(ctx, "osascript", "-", recipient, text)
	cmd.Stdin = strings.NewReader(script)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("osascript send: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

// fromAppleTime converts a chat.db timestamp to time.Time. Modern macOS
// stores nanoseconds since the Apple epoch; older versions stored seconds.
func fromAppleTime(v int64) time.Time {
	if v > 1_000_000_000_000 { // nanosecond precision
		return time.Unix(appleEpoch+v/1e9, v%1e9)
	}
	return time.Unix(appleEpoch+v, 0)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
