package pb

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/breathe-tracking/internal/domain/incident"
)

// Field names of an incident message.
const (
	FieldID         = "id"
	FieldSensorID   = "sensor_id"
	FieldTitle      = "title"
	FieldMessage    = "message"
	FieldLocation   = "location"
	FieldStatus     = "status"
	FieldResolved   = "resolved"
	FieldCreatedAt  = "created_at"
	FieldResolvedAt = "resolved_at"
	FieldLimit      = "limit"
)

// ErrMalformed is wrapped by every conversion error.
var ErrMalformed = errors.New("malformed incident message")

// IncidentToStruct converts an incident into its wire message.
func IncidentToStruct(inc *incident.Incident) *structpb.Struct {
	fields := map[string]*structpb.Value{
		FieldID:        structpb.NewStringValue(inc.ID),
		FieldSensorID:  structpb.NewStringValue(inc.SensorID),
		FieldTitle:     structpb.NewStringValue(inc.Title),
		FieldMessage:   structpb.NewStringValue(inc.Message),
		FieldLocation:  structpb.NewStringValue(inc.Location),
		FieldStatus:    structpb.NewStringValue(string(inc.Status)),
		FieldResolved:  structpb.NewBoolValue(inc.Resolved()),
		FieldCreatedAt: timeValue(inc.CreatedAt),
	}

	if !inc.ResolvedAt.IsZero() {
		fields[FieldResolvedAt] = timeValue(inc.ResolvedAt)
	}

	return &structpb.Struct{Fields: fields}
}

// IncidentFromStruct converts a wire message into an incident.
func IncidentFromStruct(s *structpb.Struct) (*incident.Incident, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: empty message", ErrMalformed)
	}

	r := reader{fields: s.GetFields()}

	inc := &incident.Incident{
		ID:       r.string(FieldID),
		SensorID: r.string(FieldSensorID),
		Title:    r.string(FieldTitle),
		Message:  r.string(FieldMessage),
		Location: r.string(FieldLocation),
	}

	status := r.string(FieldStatus)
	inc.CreatedAt = r.time(FieldCreatedAt)
	inc.ResolvedAt = r.time(FieldResolvedAt)

	if r.err != nil {
		return nil, r.err
	}

	parsed, err := incident.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	inc.Status = parsed

	return inc, nil
}

// IncidentsToList converts incidents into a ListValue of messages.
func IncidentsToList(list []*incident.Incident) *structpb.ListValue {
	values := make([]*structpb.Value, 0, len(list))
	for _, inc := range list {
		values = append(values, structpb.NewStructValue(IncidentToStruct(inc)))
	}

	return &structpb.ListValue{Values: values}
}

// IncidentsFromList converts a ListValue of messages into incidents.
func IncidentsFromList(l *structpb.ListValue) ([]*incident.Incident, error) {
	list := make([]*incident.Incident, 0, len(l.GetValues()))

	for i, v := range l.GetValues() {
		s := v.GetStructValue()
		if s == nil {
			return nil, fmt.Errorf("%w: entry %d is not an object", ErrMalformed, i)
		}

		inc, err := IncidentFromStruct(s)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}

		list = append(list, inc)
	}

	return list, nil
}

// DraftToStruct converts a report draft into a create request.
func DraftToStruct(d incident.Draft) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldSensorID: structpb.NewStringValue(d.SensorID),
		FieldTitle:    structpb.NewStringValue(d.Title),
		FieldMessage:  structpb.NewStringValue(d.Message),
		FieldLocation: structpb.NewStringValue(d.Location),
	}}
}

// DraftFromStruct converts a create request into a report draft.
func DraftFromStruct(s *structpb.Struct) (incident.Draft, error) {
	r := reader{fields: s.GetFields()}

	d := incident.Draft{
		SensorID: r.string(FieldSensorID),
		Title:    r.string(FieldTitle),
		Message:  r.string(FieldMessage),
		Location: r.string(FieldLocation),
	}

	return d, r.err
}

// IDRequest builds a request addressing one incident.
func IDRequest(id string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldID: structpb.NewStringValue(id),
	}}
}

// IDFromRequest extracts the incident id of a request.
func IDFromRequest(s *structpb.Struct) (string, error) {
	r := reader{fields: s.GetFields()}
	id := r.string(FieldID)

	if r.err == nil && id == "" {
		return "", fmt.Errorf("%w: %s is required", ErrMalformed, FieldID)
	}

	return id, r.err
}

// SensorRequest builds a request addressing the incidents of a sensor.
func SensorRequest(sensorID string, limit int) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldSensorID: structpb.NewStringValue(sensorID),
		FieldLimit:    structpb.NewNumberValue(float64(limit)),
	}}
}

// SensorFromRequest extracts the sensor id and limit of a request.
func SensorFromRequest(s *structpb.Struct) (string, int, error) {
	r := reader{fields: s.GetFields()}
	sensorID := r.string(FieldSensorID)
	limit := r.number(FieldLimit)

	if r.err != nil {
		return "", 0, r.err
	}

	if sensorID == "" {
		return "", 0, fmt.Errorf("%w: %s is required", ErrMalformed, FieldSensorID)
	}

	if limit < 0 {
		return "", 0, fmt.Errorf("%w: %s must not be negative", ErrMalformed, FieldLimit)
	}

	return sensorID, int(limit), nil
}

func timeValue(t time.Time) *structpb.Value {
	if t.IsZero() {
		return structpb.NewNullValue()
	}

	return structpb.NewStringValue(t.UTC().Format(time.RFC3339Nano))
}

// reader extracts typed fields and keeps the first error.
type reader struct {
	fields map[string]*structpb.Value
	err    error
}

func (r *reader) value(name string) *structpb.Value {
	v, ok := r.fields[name]
	if !ok || v == nil {
		return nil
	}

	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil
	}

	return v
}

func (r *reader) fail(name, want string) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s must be a %s", ErrMalformed, name, want)
	}
}

func (r *reader) string(name string) string {
	v := r.value(name)
	if v == nil {
		return ""
	}

	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		r.fail(name, "string")

		return ""
	}

	return s.StringValue
}

func (r *reader) number(name string) float64 {
	v := r.value(name)
	if v == nil {
		return 0
	}

	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		r.fail(name, "number")

		return 0
	}

	return n.NumberValue
}

func (r *reader) time(name string) time.Time {
	s := r.string(name)
	if s == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		r.fail(name, "RFC 3339 timestamp")

		return time.Time{}
	}

	return t
}
