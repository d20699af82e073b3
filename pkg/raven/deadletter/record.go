package deadletter

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/ZhanJunLiau/raven-go/pkg/raven/event"
)

// Record is an event that exhausted its delivery attempts.
type Record struct {
	EventID  string    `json:"event_id"`
	Payload  []byte    `json:"payload"`
	Error    string    `json:"error"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
}

// NewRecord captures evt's wire payload together with the final error.
func NewRecord(evt *event.Event, cause error, attempts int) (Record, error) {
	payload, err := json.Marshal(evt.Payload())
	if err != nil {
		return Record{}, err
	}
	rec := Record{
		EventID:  evt.ID(),
		Payload:  payload,
		Attempts: attempts,
		FailedAt: time.Now().UTC(),
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	return rec, nil
}

// DecodePayload decodes the stored payload.
func (r Record) DecodePayload() (*event.Payload, error) {
	var p event.Payload
	if err := json.Unmarshal(r.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r Record) clone() Record {
	r.Payload = append([]byte(nil), r.Payload...)
	return r
}
