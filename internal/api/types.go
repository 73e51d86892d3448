package api

import (
	"time"

	"barscan/internal/camera"
	"barscan/internal/records"
	"barscan/internal/session"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Device describes a camera in a transport-friendly format.
type Device struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

// SessionStatus summarizes the scan session.
type SessionStatus struct {
	State        string   `json:"state"`
	Status       string   `json:"status"`
	Error        string   `json:"error,omitempty"`
	Capturing    bool     `json:"capturing"`
	Device       *Device  `json:"device,omitempty"`
	Devices      []Device `json:"devices"`
	Records      int      `json:"records"`
	Fallback     bool     `json:"fallback"`
	BestEffort   bool     `json:"bestEffort"`
	Autofocus    bool     `json:"autofocus"`
	DecodeFaults int      `json:"decodeFaults"`
}

// Record is an accepted scan.
type Record struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Format    string `json:"format"`
	ScannedAt string `json:"scannedAt"`
}

// RecordListResponse wraps the accepted records.
type RecordListResponse struct {
	Records []Record `json:"records"`
}

// DeviceListResponse wraps the enumerated cameras.
type DeviceListResponse struct {
	Devices []Device `json:"devices"`
}

// SelectDeviceRequest chooses the camera for the next start.
type SelectDeviceRequest struct {
	DeviceID string `json:"deviceId"`
}

// Update is one session change delivered to long-polling clients.
type Update struct {
	Sequence  uint64  `json:"seq"`
	Timestamp string  `json:"ts"`
	Kind      string  `json:"kind"`
	State     string  `json:"state,omitempty"`
	Status    string  `json:"status,omitempty"`
	Error     string  `json:"error,omitempty"`
	Record    *Record `json:"record,omitempty"`
	RecordID  string  `json:"recordId,omitempty"`
}

// UpdatesResponse carries updates and the cursor for the next poll.
type UpdatesResponse struct {
	Updates []Update `json:"updates"`
	Next    uint64   `json:"next"`
}

// ErrorResponse is returned for failed requests. Message is safe to show
// to end users.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// FromSnapshot converts a session snapshot.
func FromSnapshot(snap session.Snapshot) SessionStatus {
	out := SessionStatus{
		State:        snap.State,
		Status:       snap.Status,
		Error:        snap.Error,
		Capturing:    snap.Capturing,
		Records:      snap.Records,
		Fallback:     snap.Fallback,
		BestEffort:   snap.BestEffort,
		Autofocus:    snap.Autofocus,
		DecodeFaults: snap.DecodeFaults,
	}
	selected := ""
	if snap.Device != nil {
		selected = snap.Device.ID
		out.Device = &Device{ID: snap.Device.ID, Label: snap.Device.Label, Selected: true}
	}
	out.Devices = FromDevices(snap.Devices, selected)
	return out
}

// FromDevices converts cameras, marking selectedID.
func FromDevices(devices []camera.Device, selectedID string) []Device {
	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		out = append(out, Device{ID: d.ID, Label: d.Label, Selected: d.ID == selectedID})
	}
	return out
}

// FromRecord converts an accepted record.
func FromRecord(rec records.Record) Record {
	return Record{
		ID:        rec.ID,
		Text:      rec.Text,
		Format:    rec.Format,
		ScannedAt: formatTime(rec.Timestamp),
	}
}

// FromRecords converts records, preserving order.
func FromRecords(recs []records.Record) []Record {
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		out = append(out, FromRecord(rec))
	}
	return out
}

// FromUpdate converts a hub update.
func FromUpdate(u session.Update) Update {
	out := Update{
		Sequence:  u.Sequence,
		Timestamp: formatTime(u.Timestamp),
		Kind:      string(u.Kind),
		State:     u.State,
		Status:    u.Status,
		Error:     u.Error,
		RecordID:  u.RecordID,
	}
	if u.Record != nil {
		rec := FromRecord(*u.Record)
		out.Record = &rec
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
