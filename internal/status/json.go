package status

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/sweeney/lamp-relay/internal/logic"
)

// historyTimeLayout is dd/mm/yyyy HH:MM:SS.
const historyTimeLayout = "02/01/2006 15:04:05"

// LampJSON is the body of GET /status.
type LampJSON struct {
	On        int    `json:"on"`
	Historico string `json:"historico"`
}

// StatusJSON is the top-level JSON envelope for the detailed status.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Lamp          string        `json:"lamp"`
	On            bool          `json:"on"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Network       *NetworkJSON  `json:"network,omitempty"`
	Update        *UpdateJSON   `json:"update,omitempty"`
	History       []HistoryJSON `json:"history"`
	Config        ConfigJSON    `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Topic     string `json:"topic"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Mode     string `json:"mode"`
	Hostname string `json:"hostname"`
	SSID     string `json:"ssid"`
	IP       string `json:"ip"`
	MAC      string `json:"mac"`
}

// UpdateJSON is the JSON representation of the update session.
type UpdateJSON struct {
	Status       string `json:"status"`
	BytesWritten int64  `json:"bytes_written"`
	Error        string `json:"error,omitempty"`
}

// HistoryJSON is one history entry.
type HistoryJSON struct {
	Time  string `json:"time"`
	State string `json:"state"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs       int64  `json:"tick_ms"`
	DebounceMs   int64  `json:"debounce_ms"`
	HTTPAddr     string `json:"http_addr"`
	HistoryLimit int    `json:"history_limit"`
}

// StateLabel is the history wording for s.
func StateLabel(s logic.State) string {
	if s == logic.StateOn {
		return "Ligada"
	}
	return "Desligada"
}

// FormatEntry renders one history line, e.g. "🕒 15/01/2024 10:00:00 → Ligada".
func FormatEntry(e Entry) string {
	return "🕒 " + e.At.Format(historyTimeLayout) + " → " + StateLabel(e.State)
}

// HistoryHTML renders the history as an HTML fragment, newest first, one
// entry per line.
func HistoryHTML(entries []Entry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(FormatEntry(e))
		b.WriteString("<br>")
	}
	return b.String()
}

// FormatStatus returns the GET /status body: {"on":0|1,"historico":"..."}.
func FormatStatus(snap Snapshot) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	// The fragment is inserted as HTML by the page; keep <br> literal.
	enc.SetEscapeHTML(false)
	enc.Encode(LampJSON{On: int(snap.State), Historico: HistoryHTML(snap.History)})
	return bytes.TrimRight(buf.Bytes(), "\n")
}

// FormatJSON returns the detailed status for /index.json and the websocket.
func FormatJSON(snap Snapshot) []byte {
	inner := StatusInner{
		Lamp:          snap.State.String(),
		On:            snap.State == logic.StateOn,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT: MQTTStatus{
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
			Topic:     snap.Config.Topic,
		},
		History: make([]HistoryJSON, 0, len(snap.History)),
		Config: ConfigJSON{
			TickMs:       snap.Config.TickMs,
			DebounceMs:   snap.Config.DebounceMs,
			HTTPAddr:     snap.Config.HTTPAddr,
			HistoryLimit: snap.Config.HistoryLimit,
		},
	}

	for _, e := range snap.History {
		inner.History = append(inner.History, HistoryJSON{
			Time:  e.At.Format(time.RFC3339),
			State: e.State.String(),
		})
	}

	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Mode:     snap.Network.Mode,
			Hostname: snap.Network.Hostname,
			SSID:     snap.Network.SSID,
			IP:       snap.Network.IP,
			MAC:      snap.Network.MAC,
		}
	}
	if snap.Update != nil {
		inner.Update = &UpdateJSON{
			Status:       snap.Update.Status,
			BytesWritten: snap.Update.BytesWritten,
			Error:        snap.Update.Error,
		}
	}

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}
